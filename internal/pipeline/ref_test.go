package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"chatmedia/internal/blobstore"
	"chatmedia/internal/coordinator"
	"chatmedia/internal/decrypt"
	"chatmedia/internal/mediakind"
	"chatmedia/internal/speech"
)

func TestRefKey(t *testing.T) {
	hash := "0123456789abcdef0123456789abcdef"

	tests := []struct {
		name string
		ref  Ref
		want string
	}{
		{
			name: "plain content hash",
			ref:  Ref{ContentHash: hash, Kind: mediakind.KindImage},
			want: hash,
		},
		{
			name: "variant tag is normalized away",
			ref:  Ref{ContentHash: hash + "_b", Kind: mediakind.KindImage},
			want: hash,
		},
		{
			name: "bare legacy tag on a hex digest",
			ref:  Ref{ContentHash: hash + "t", Kind: mediakind.KindImage},
			want: hash,
		},
		{
			name: "fallback name when hash is absent",
			ref:  Ref{FallbackName: "Holiday Photo.jpg", Kind: mediakind.KindImage},
			want: "holiday-photo",
		},
		{
			name: "empty image reference",
			ref:  Ref{Kind: mediakind.KindImage},
			want: "",
		},
		{
			name: "voice composite key",
			ref: Ref{
				Kind:           mediakind.KindVoice,
				SenderID:       "friend@Chat",
				Timestamp:      time.Unix(1700000000, 0),
				LocalMessageID: 7,
			},
			want: "v-friend-chat-1700000000-7",
		},
		{
			name: "voice without sender",
			ref:  Ref{Kind: mediakind.KindVoice, Timestamp: time.Unix(1, 0)},
			want: "",
		},
		{
			name: "voice without timestamp",
			ref:  Ref{Kind: mediakind.KindVoice, SenderID: "friend"},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ref.Key(); got != tt.want {
				t.Errorf("Key() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRefKeySharedAcrossVariants(t *testing.T) {
	hash := "0123456789abcdef0123456789abcdef"
	tagged := []string{hash, hash + "_b", hash + "_thumb", hash + "_hd", hash + "h"}

	for _, name := range tagged {
		ref := Ref{ContentHash: name, Kind: mediakind.KindImage}
		if got := ref.Key(); got != hash {
			t.Errorf("Key(%q) = %q, want %q", name, got, hash)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindNone},
		{"key missing", fmt.Errorf("x: %w", decrypt.ErrKeyMissing), KindKeyMissing},
		{"source missing", fmt.Errorf("x: %w", blobstore.ErrSourceMissing), KindSourceMissing},
		{"decryption failed", fmt.Errorf("x: %w", decrypt.ErrDecryptionFailed), KindDecryptionFailed},
		{"decode failed", fmt.Errorf("x: %w", speech.ErrDecodeFailed), KindDecodeFailed},
		{"encode failed", fmt.Errorf("x: %w", speech.ErrEncodeFailed), KindEncodeFailed},
		{"coordinator timeout", fmt.Errorf("x: %w", coordinator.ErrTimeout), KindTimeout},
		{"deadline exceeded", context.DeadlineExceeded, KindTimeout},
		{"corrupt output", fmt.Errorf("x: %w", ErrCorruptOutput), KindCorruptOutput},
		{"unresolvable", fmt.Errorf("x: %w", ErrUnresolvable), KindUnresolvable},
		{"other", errors.New("boom"), KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClassifyUnresolvableWrapsVariantError(t *testing.T) {
	// Exhaustion reports unresolvable even though the last per-variant
	// error was a decryption failure; the per-variant error text is
	// carried for logging only.
	err := fmt.Errorf("pipeline: %w for abc: last variant error: %v", ErrUnresolvable, decrypt.ErrDecryptionFailed)
	if got := Classify(err); got != KindUnresolvable {
		t.Errorf("Classify() = %s, want %s", got, KindUnresolvable)
	}
}
