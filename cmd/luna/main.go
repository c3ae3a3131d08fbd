// Command luna runs the Luna knowledge-base assistant for the tax-advisory
// CRM. It provides a CLI (via Cobra) for knowledge-base administration and
// an HTTP server consumed by the CRM frontend.
package main

import (
	"fmt"
	"os"

	"github.com/fdctax/luna/cmd/luna/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
