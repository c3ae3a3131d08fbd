package chunker

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/fdctax/luna/internal/apperr"
)

func mustNew(t *testing.T, cfg Config) *Chunker {
	t.Helper()
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New(%+v): %v", cfg, err)
	}
	return c
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cases := []Config{
		{Size: 0, Overlap: 0},
		{Size: 10, Overlap: -1},
		{Size: 10, Overlap: 10},
		{Size: 10, Overlap: 11},
	}
	for _, cfg := range cases {
		if _, err := New(cfg); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("config %+v: want validation error, got %v", cfg, err)
		}
	}
}

func TestChunks_ThreeChunksFor1200Chars(t *testing.T) {
	t.Parallel()

	c := mustNew(t, Config{Size: 500, Overlap: 50})
	chunks := c.Split(strings.Repeat("A", 1200))
	if len(chunks) != 3 {
		t.Fatalf("want 3 chunks, got %d", len(chunks))
	}

	wantOffsets := []int{0, 450, 900}
	wantLens := []int{500, 500, 300}
	for i, ch := range chunks {
		if ch.Index != i || ch.Offset != wantOffsets[i] || len(ch.Text) != wantLens[i] {
			t.Errorf("chunk %d: index=%d offset=%d len=%d, want %d/%d/%d",
				i, ch.Index, ch.Offset, len(ch.Text), i, wantOffsets[i], wantLens[i])
		}
	}
}

func TestChunks_CoverTextWithExactOverlap(t *testing.T) {
	t.Parallel()

	text := "The quick brown fox jumps over the lazy dog. " +
		"Family day care educators claim running costs."

	for _, cfg := range []Config{{7, 2}, {10, 0}, {13, 12}, {100, 5}} {
		chunks := mustNew(t, cfg).Split(text)
		if len(chunks) == 0 {
			t.Fatalf("cfg %+v: no chunks", cfg)
		}

		for i, ch := range chunks {
			if ch.Offset != i*cfg.Stride() {
				t.Errorf("cfg %+v chunk %d: offset %d, want %d", cfg, i, ch.Offset, i*cfg.Stride())
			}
			if got := text[ch.Offset : ch.Offset+len(ch.Text)]; got != ch.Text {
				t.Errorf("cfg %+v chunk %d: text %q does not match source %q", cfg, i, ch.Text, got)
			}
			// Only full-length windows are followed by exactly Overlap shared
			// characters; tail windows shrink towards the end of the text.
			if i > 0 && len(chunks[i-1].Text) == cfg.Size {
				prev := chunks[i-1]
				shared := prev.Text[len(prev.Text)-cfg.Overlap:]
				if ch.Text[:cfg.Overlap] != shared {
					t.Errorf("cfg %+v chunk %d: overlap %q, want %q", cfg, i, ch.Text[:cfg.Overlap], shared)
				}
			}
		}
		last := chunks[len(chunks)-1]
		if end := last.Offset + len(last.Text); end != len(text) {
			t.Errorf("cfg %+v: last chunk ends at %d, want %d", cfg, end, len(text))
		}
	}
}

func TestChunks_DropsBlankWindowsWithoutGaps(t *testing.T) {
	t.Parallel()

	chunks := mustNew(t, Config{Size: 5, Overlap: 0}).Split("hello          world")
	if len(chunks) != 2 {
		t.Fatalf("want 2 chunks, got %d: %+v", len(chunks), chunks)
	}
	if chunks[0].Text != "hello" || chunks[0].Index != 0 {
		t.Errorf("first chunk: %+v", chunks[0])
	}
	if chunks[1].Index != 1 || chunks[1].Offset != 15 {
		t.Errorf("second chunk: %+v", chunks[1])
	}
}

func TestChunks_EmptyAndWhitespace(t *testing.T) {
	t.Parallel()

	c := mustNew(t, Config{Size: 5, Overlap: 1})
	for _, text := range []string{"", "   \n\t   "} {
		if got := c.Split(text); len(got) != 0 {
			t.Errorf("Split(%q): want no chunks, got %+v", text, got)
		}
	}
}

func TestChunks_Restartable(t *testing.T) {
	t.Parallel()

	seq := mustNew(t, Config{Size: 8, Overlap: 3}).Chunks("deterministic chunking keeps indices stable")
	var first, second []Chunk
	for ch := range seq {
		first = append(first, ch)
	}
	for ch := range seq {
		second = append(second, ch)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("second pass differs:\n%+v\n%+v", first, second)
	}
}

func TestChunks_EarlyStop(t *testing.T) {
	t.Parallel()

	n := 0
	for range mustNew(t, Config{Size: 2, Overlap: 0}).Chunks("abcdefgh") {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Errorf("want 2 iterations, got %d", n)
	}
}

func TestChunks_MultiByteRunes(t *testing.T) {
	t.Parallel()

	chunks := mustNew(t, Config{Size: 4, Overlap: 1}).Split("héllo wörld")
	if len(chunks) < 2 {
		t.Fatalf("want at least 2 chunks, got %d", len(chunks))
	}
	for _, ch := range chunks {
		if !utf8.ValidString(ch.Text) {
			t.Errorf("chunk %d is not valid UTF-8: %q", ch.Index, ch.Text)
		}
		if n := utf8.RuneCountInString(ch.Text); n > 4 {
			t.Errorf("chunk %d has %d runes", ch.Index, n)
		}
	}
	if chunks[0].Text != "héll" {
		t.Errorf("first chunk: %q", chunks[0].Text)
	}
	if chunks[1].Offset != 3 {
		t.Errorf("second offset: %d", chunks[1].Offset)
	}
}
