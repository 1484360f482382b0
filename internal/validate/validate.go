package validate

import (
	"image"
	"io"
	"os"
	"time"

	"chatmedia/internal/logging"
	"chatmedia/internal/mediakind"
	"chatmedia/internal/metrics"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	lru "github.com/hashicorp/golang-lru/v2"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// negativeCacheSize bounds the per-session unusable-path cache.
const negativeCacheSize = 4096

// Validator confirms that a produced output file is actually usable
// before the pipeline caches it. Paths that fail validation are
// remembered for the rest of the session so repeated resolutions do
// not re-validate known-bad output.
type Validator struct {
	neg *lru.Cache[string, time.Time]
}

// New creates a Validator with an empty negative cache.
func New() (*Validator, error) {
	neg, err := lru.New[string, time.Time](negativeCacheSize)
	if err != nil {
		return nil, err
	}
	return &Validator{neg: neg}, nil
}

// Usable reports whether the file at path is a well-formed output for
// the given attachment kind. Failures are recorded in the negative
// cache.
func (v *Validator) Usable(path string, kind mediakind.Kind) bool {
	if _, bad := v.neg.Get(path); bad {
		return false
	}

	var ok bool
	switch kind {
	case mediakind.KindVoice:
		ok = v.usableAudio(path)
	default:
		ok = v.usableImage(path)
	}

	if !ok {
		metrics.ValidationFailures.WithLabelValues(string(kind)).Inc()
		v.neg.Add(path, time.Now())
	}
	return ok
}

// Blacklist marks a path unusable for the remainder of the session.
func (v *Validator) Blacklist(path string) {
	v.neg.Add(path, time.Now())
}

// IsBlacklisted reports whether path previously failed validation.
func (v *Validator) IsBlacklisted(path string) bool {
	_, bad := v.neg.Get(path)
	return bad
}

// usableImage checks the magic header, then attempts a full decode and
// discards the pixels. Decoders are tried in a fallback chain: the
// pure-Go decoders first, libvips last (it handles animated WebP the
// pure-Go decoder rejects).
func (v *Validator) usableImage(path string) bool {
	header := make([]byte, mediakind.SniffHeaderSize)
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	n, _ := io.ReadFull(f, header)
	if err := f.Close(); err != nil {
		logging.Warn("failed to close %s: %v", path, err)
	}

	format, ok := mediakind.SniffImage(header[:n])
	if !ok {
		logging.Debug("validate: %s has no recognized image magic", path)
		return false
	}

	if _, err := imaging.Open(path); err == nil {
		return true
	}

	if img, err := decodeImageFile(path); err == nil && img != nil {
		return true
	}

	if format == mediakind.FormatWebP && decodeWithVips(path) {
		return true
	}

	logging.Debug("validate: all decoders rejected %s (%s)", path, format)
	return false
}

func decodeImageFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			logging.Warn("failed to close %s: %v", path, err)
		}
	}()

	img, _, err := image.Decode(f)
	return img, err
}

// usableAudio confirms nonzero size and a parseable MP3 container
// header (ID3v2 tag or MPEG frame sync).
func (v *Validator) usableAudio(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return false
	}

	f, err := os.Open(path)
	if err != nil {
		return false
	}
	header := make([]byte, 10)
	n, _ := io.ReadFull(f, header)
	if err := f.Close(); err != nil {
		logging.Warn("failed to close %s: %v", path, err)
	}

	return mediakind.LooksLikeMP3(header[:n])
}
