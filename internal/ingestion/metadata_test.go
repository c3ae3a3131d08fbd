package ingestion

import (
	"testing"
	"time"
)

func TestExtensionFields(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		fields map[string]string
		want   map[string]string
	}{
		{
			name: "nil input",
		},
		{
			name:   "only reserved keys",
			fields: map[string]string{"doc_id": "x", "title": "y", "chunk_index": "9"},
		},
		{
			name:   "mixed keys keep extensions",
			fields: map[string]string{"category": "Core", "audience": "educators", "source": "ato.gov.au"},
			want:   map[string]string{"audience": "educators", "source": "ato.gov.au"},
		},
		{
			name:   "blank key dropped",
			fields: map[string]string{" ": "v", "year": "2025"},
			want:   map[string]string{"year": "2025"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := extensionFields(tc.fields)
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for k, v := range tc.want {
				if got[k] != v {
					t.Errorf("%s: got %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestExtensionFields_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	in := map[string]string{"title": "keep me", "extra": "1"}
	_ = extensionFields(in)
	if in["title"] != "keep me" {
		t.Error("input map was mutated")
	}
}

func TestNewMetadata(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 4, 5, 6, 7, 0, time.FixedZone("AEST", 10*3600))
	m := newMetadata(Request{
		Title:    "Luna Style Guide",
		Category: "Core",
		Filename: "style.txt",
		Metadata: map[string]string{"title": "spoofed", "owner": "ops"},
	}, "doc-1", now)

	if m.DocID != "doc-1" || m.Title != "Luna Style Guide" || m.Category != "Core" || m.Filename != "style.txt" {
		t.Errorf("unexpected metadata: %+v", m)
	}
	if m.CreatedAt.Location() != time.UTC {
		t.Errorf("created_at should be UTC, got %v", m.CreatedAt.Location())
	}
	if _, ok := m.Extra["title"]; ok {
		t.Error("reserved key leaked into Extra")
	}
	if m.Extra["owner"] != "ops" {
		t.Errorf("extension field lost: %v", m.Extra)
	}
}

func TestNewMetadata_FilenameFromFields(t *testing.T) {
	t.Parallel()

	now := time.Now()
	cases := []struct {
		name string
		req  Request
		want string
	}{
		{
			name: "text ingestion takes caller filename",
			req:  Request{Title: "Guide", Metadata: map[string]string{"filename": " luna_style_guide.md "}},
			want: "luna_style_guide.md",
		},
		{
			name: "upload name wins",
			req:  Request{Title: "Guide", Filename: "upload.pdf", Metadata: map[string]string{"filename": "other.md"}},
			want: "upload.pdf",
		},
		{
			name: "absent",
			req:  Request{Title: "Guide"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			m := newMetadata(tc.req, "doc-1", now)
			if m.Filename != tc.want {
				t.Errorf("Filename = %q, want %q", m.Filename, tc.want)
			}
			if _, ok := m.Extra["filename"]; ok {
				t.Error("filename must live in the typed field, not Extra")
			}
		})
	}
}
