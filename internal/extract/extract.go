// Package extract converts uploaded documents into plain text. PDF, DOCX
// and RTF go through docconv; plain text is read as-is.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"code.sajari.com/docconv/v2"

	"github.com/fdctax/luna/internal/apperr"
)

// Format identifies a supported document format.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	FormatRTF  Format = "rtf"
	FormatText Format = "txt"
)

// formats maps lower-case file extensions to their Format.
var formats = map[string]Format{
	".pdf":  FormatPDF,
	".docx": FormatDOCX,
	".rtf":  FormatRTF,
	".txt":  FormatText,
}

// Detect returns the Format of filename, or an apperr.ErrUnsupportedFormat
// error when the extension is not handled.
func Detect(filename string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if f, ok := formats[ext]; ok {
		return f, nil
	}
	return "", apperr.Unsupported(ext)
}

// Supported reports whether filename has a supported extension.
func Supported(filename string) bool {
	_, err := Detect(filename)
	return err == nil
}

// File extracts the text of the document at path. The format is chosen
// from the extension of path.
func File(path string) (string, error) {
	format, err := Detect(path)
	if err != nil {
		return "", err
	}

	if format == FormatText {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("extract: read %s: %w", filepath.Base(path), err)
		}
		if !utf8.Valid(data) {
			return strings.ToValidUTF8(string(data), "�"), nil
		}
		return string(data), nil
	}

	res, err := docconv.ConvertPath(path)
	if err != nil {
		return "", fmt.Errorf("extract: convert %s document %s: %w", format, filepath.Base(path), err)
	}
	return res.Body, nil
}
