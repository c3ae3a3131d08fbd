// Package chunker splits extracted document text into overlapping,
// fixed-length segments ready for embedding.
package chunker

import (
	"iter"
	"strings"
	"unicode/utf8"

	"github.com/fdctax/luna/internal/apperr"
)

// Defaults used when the configuration leaves a field at zero.
const (
	DefaultSize    = 500
	DefaultOverlap = 50
)

// Config controls the window size and overlap, both measured in characters
// (runes, not bytes).
type Config struct {
	// Size is the maximum length of a chunk.
	Size int
	// Overlap is the number of characters shared by consecutive windows.
	Overlap int
}

// Validate rejects configurations that would produce a degenerate or
// infinite sequence.
func (c Config) Validate() error {
	if c.Size <= 0 {
		return apperr.Validation("chunk size must be positive, got %d", c.Size)
	}
	if c.Overlap < 0 {
		return apperr.Validation("chunk overlap must not be negative, got %d", c.Overlap)
	}
	if c.Overlap >= c.Size {
		return apperr.Validation("chunk overlap (%d) must be smaller than chunk size (%d)", c.Overlap, c.Size)
	}
	return nil
}

// Stride is the distance between the start offsets of consecutive windows.
func (c Config) Stride() int { return c.Size - c.Overlap }

// Chunk is one segment produced by a Chunker.
type Chunk struct {
	// Index is the zero-based position among the chunks actually emitted.
	// Blank windows are skipped without consuming an index.
	Index int
	// Offset is the start of the window in the source text, in runes.
	Offset int
	// Text is the window content, at most Size runes long.
	Text string
}

// Chunker produces chunk sequences for a fixed, validated configuration.
type Chunker struct {
	cfg Config
}

// New validates cfg and returns a Chunker.
func New(cfg Config) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{cfg: cfg}, nil
}

// Config returns the configuration the Chunker was built with.
func (c *Chunker) Config() Config { return c.cfg }

// Chunks returns a lazy sequence over text. Window i starts at rune offset
// i*Stride and spans Size runes; the last window may be shorter.
// The sequence can be ranged over any number of times and always yields
// the same chunks.
func (c *Chunker) Chunks(text string) iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		if text == "" {
			return
		}
		runes := []rune(text)
		if len(runes) == len(text) {
			// ASCII fast path: byte offsets equal rune offsets.
			runes = nil
		}
		n := utf8.RuneCountInString(text)

		index := 0
		for start := 0; start < n; start += c.cfg.Stride() {
			end := min(start+c.cfg.Size, n)

			var window string
			if runes == nil {
				window = text[start:end]
			} else {
				window = string(runes[start:end])
			}
			if strings.TrimSpace(window) == "" {
				continue
			}
			if !yield(Chunk{Index: index, Offset: start, Text: window}) {
				return
			}
			index++
		}
	}
}

// Split collects every chunk of text into a slice.
func (c *Chunker) Split(text string) []Chunk {
	var out []Chunk
	for ch := range c.Chunks(text) {
		out = append(out, ch)
	}
	return out
}
