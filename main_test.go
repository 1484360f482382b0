package main

import (
	"strings"
	"testing"
	"time"

	"chatmedia/internal/mediakind"
)

func TestParseManifest(t *testing.T) {
	manifest := `
# resolved media for export
image 0123456789abcdef0123456789abcdef
sticker cafebabe
voice friend-42 1700000000 7

image another_b.dat
`
	refs, err := parseManifest(strings.NewReader(manifest))
	if err != nil {
		t.Fatalf("parseManifest() error = %v", err)
	}
	if len(refs) != 4 {
		t.Fatalf("got %d refs, want 4", len(refs))
	}

	if refs[0].Kind != mediakind.KindImage || refs[0].ContentHash != "0123456789abcdef0123456789abcdef" {
		t.Errorf("ref 0 = %+v", refs[0])
	}
	if refs[1].Kind != mediakind.KindSticker {
		t.Errorf("ref 1 kind = %s, want sticker", refs[1].Kind)
	}
	if refs[2].Kind != mediakind.KindVoice ||
		refs[2].SenderID != "friend-42" ||
		!refs[2].Timestamp.Equal(time.Unix(1700000000, 0)) ||
		refs[2].LocalMessageID != 7 {
		t.Errorf("ref 2 = %+v", refs[2])
	}
	if refs[3].ContentHash != "another_b.dat" {
		t.Errorf("ref 3 = %+v", refs[3])
	}
}

func TestParseManifestErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unknown kind", "video abc"},
		{"image without id", "image"},
		{"image with extra field", "image abc def"},
		{"voice missing fields", "voice friend 123"},
		{"voice bad timestamp", "voice friend notanumber 1"},
		{"voice bad local id", "voice friend 123 x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseManifest(strings.NewReader(tt.input)); err == nil {
				t.Error("parseManifest() accepted invalid input")
			}
		})
	}
}

func TestParseManifestEmpty(t *testing.T) {
	refs, err := parseManifest(strings.NewReader("\n# only comments\n\n"))
	if err != nil {
		t.Fatalf("parseManifest() error = %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("got %d refs, want 0", len(refs))
	}
}
