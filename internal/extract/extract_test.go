package extract

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fdctax/luna/internal/apperr"
)

func TestDetect(t *testing.T) {
	t.Parallel()

	cases := map[string]Format{
		"guide.pdf":            FormatPDF,
		"Guide.PDF":            FormatPDF,
		"notes.docx":           FormatDOCX,
		"legacy.rtf":           FormatRTF,
		"Luna Style Guide.txt": FormatText,
	}
	for name, want := range cases {
		got, err := Detect(name)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", name, err)
			continue
		}
		if got != want {
			t.Errorf("%s: got %v, want %v", name, got, want)
		}
	}
}

func TestDetect_Unsupported(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"image.png", "archive.zip", "noext", "old.doc"} {
		_, err := Detect(name)
		if !errors.Is(err, apperr.ErrUnsupportedFormat) || !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("%s: want unsupported-format validation error, got %v", name, err)
		}
		if Supported(name) {
			t.Errorf("%s: reported as supported", name)
		}
	}
}

func TestFile_PlainText(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "deductions.txt")
	if err := os.WriteFile(path, []byte("Home office running costs are claimable."), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	text, err := File(path)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if text != "Home office running costs are claimable." {
		t.Errorf("got %q", text)
	}
}

func TestFile_UnsupportedNeverTouchesDisk(t *testing.T) {
	t.Parallel()

	if _, err := File("/does/not/exist.exe"); !errors.Is(err, apperr.ErrUnsupportedFormat) {
		t.Errorf("want unsupported format, got %v", err)
	}
}

func TestFile_MissingText(t *testing.T) {
	t.Parallel()

	_, err := File(filepath.Join(t.TempDir(), "missing.txt"))
	if err == nil {
		t.Fatal("want error for missing file")
	}
	if errors.Is(err, apperr.ErrValidation) {
		t.Errorf("missing file should not be a validation error: %v", err)
	}
}
