package pipeline

import (
	"fmt"
	"strings"
	"time"

	"chatmedia/internal/mediakind"
	"chatmedia/internal/variant"
)

// Ref is an attachment reference as produced by the message query
// layer: a content hash or fallback file name for images and stickers,
// or a (sender, timestamp, local id) triple for voice notes.
type Ref struct {
	ContentHash    string
	FallbackName   string
	Kind           mediakind.Kind
	SenderID       string
	Timestamp      time.Time
	LocalMessageID int64
}

// Key derives the content identifier: the stable, sanitized key used
// for caching, deduplication, and output file naming. Returns "" when
// the reference carries nothing to key on.
func (r Ref) Key() string {
	if r.Kind == mediakind.KindVoice {
		if r.SenderID == "" || r.Timestamp.IsZero() {
			return ""
		}
		return sanitizeName(fmt.Sprintf("v-%s-%d-%d", r.SenderID, r.Timestamp.Unix(), r.LocalMessageID))
	}

	base := r.ContentHash
	if base == "" {
		base = r.FallbackName
	}
	if base == "" {
		return ""
	}
	// Normalize away any variant tag so every rendition shares one key.
	key, _ := variant.ParseName(base)
	return sanitizeName(key)
}

// baseName returns the identifier handed to the variant resolver.
func (r Ref) baseName() string {
	if r.ContentHash != "" {
		return r.ContentHash
	}
	return r.FallbackName
}

// sanitizeName restricts a derived identifier to file-system safe
// characters so output paths stay deterministic and portable.
func sanitizeName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range strings.ToLower(s) {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
			b.WriteRune(c)
		default:
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), ".")
}
