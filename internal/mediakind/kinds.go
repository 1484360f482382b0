package mediakind

// Kind represents the logical type of a chat attachment.
type Kind string

const (
	// KindImage represents a picture attachment.
	KindImage Kind = "image"
	// KindVoice represents a voice note.
	KindVoice Kind = "voice"
	// KindSticker represents an animated sticker / custom emoji.
	KindSticker Kind = "sticker"
)

// Valid reports whether k is a known attachment kind.
func (k Kind) Valid() bool {
	switch k {
	case KindImage, KindVoice, KindSticker:
		return true
	}
	return false
}

// OutputDir returns the output cache subdirectory for the kind.
// The layout is deterministic so repeated runs are idempotent.
func (k Kind) OutputDir() string {
	switch k {
	case KindVoice:
		return "voices"
	case KindSticker:
		return "emojis"
	default:
		return "images"
	}
}

// Variant is one physical rendition of a logical attachment.
type Variant int

// Variants in preference order. Lower values are preferred; the
// pipeline always tries the highest-fidelity rendition first.
const (
	VariantBig Variant = iota
	VariantOriginal
	VariantHigh
	VariantCache
	VariantThumbnail
	VariantOther
)

// Rank returns the preference rank of the variant (lower is better).
func (v Variant) Rank() int { return int(v) }

func (v Variant) String() string {
	switch v {
	case VariantBig:
		return "big"
	case VariantOriginal:
		return "original"
	case VariantHigh:
		return "high"
	case VariantCache:
		return "cache"
	case VariantThumbnail:
		return "thumbnail"
	default:
		return "other"
	}
}
