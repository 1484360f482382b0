package variant

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"chatmedia/internal/logging"
	"chatmedia/internal/mediakind"
)

// Candidate is one on-disk rendition of a logical attachment.
type Candidate struct {
	Path    string
	Variant mediakind.Variant
}

// tagVariants maps underscore suffix tags to variants. Longer tags are
// matched before shorter ones.
var tagVariants = map[string]mediakind.Variant{
	"_big":   mediakind.VariantBig,
	"_b":     mediakind.VariantBig,
	"_org":   mediakind.VariantOriginal,
	"_o":     mediakind.VariantOriginal,
	"_hd":    mediakind.VariantHigh,
	"_h":     mediakind.VariantHigh,
	"_c":     mediakind.VariantCache,
	"_thumb": mediakind.VariantThumbnail,
	"_t":     mediakind.VariantThumbnail,
}

// tagsByLength is the tag match order (longest first, then lexical for
// determinism).
var tagsByLength = func() []string {
	tags := make([]string, 0, len(tagVariants))
	for tag := range tagVariants {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool {
		if len(tags[i]) != len(tags[j]) {
			return len(tags[i]) > len(tags[j])
		}
		return tags[i] < tags[j]
	})
	return tags
}()

// legacy bare-letter tags, only stripped when the remainder is a
// 32-char hex digest (the legacy naming appended the letter directly
// to the md5 name).
var bareTagVariants = map[byte]mediakind.Variant{
	't': mediakind.VariantThumbnail,
	'h': mediakind.VariantHigh,
	'b': mediakind.VariantBig,
}

// ParseName splits a file base name (without directory) into the
// normalized content key and the variant its suffix tag denotes.
// Untagged names are treated as the original rendition.
func ParseName(name string) (string, mediakind.Variant) {
	base := strings.ToLower(name)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}

	for _, tag := range tagsByLength {
		if rest, ok := strings.CutSuffix(base, tag); ok && rest != "" {
			return rest, tagVariants[tag]
		}
	}

	if n := len(base); n == 33 && isHex(base[:n-1]) {
		if v, ok := bareTagVariants[base[n-1]]; ok {
			return base[:n-1], v
		}
	}

	return base, mediakind.VariantOriginal
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Resolver maps normalized content keys to the variants observed on
// disk. Build it once with Scan; lookups afterwards are read-only.
type Resolver struct {
	root string

	mu      sync.RWMutex
	scanned bool
	index   map[string]map[mediakind.Variant]string
}

// NewResolver creates a resolver over one attachment source root.
func NewResolver(root string) *Resolver {
	return &Resolver{
		root:  root,
		index: make(map[string]map[mediakind.Variant]string),
	}
}

// Scan walks the source root once and records which variants exist for
// each normalized key. Calling Scan again rescans from scratch.
func (r *Resolver) Scan() error {
	index := make(map[string]map[mediakind.Variant]string)
	var files int

	err := filepath.WalkDir(r.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logging.Warn("variant scan: error accessing %s: %v", path, err)
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		key, v := ParseName(d.Name())
		if key == "" {
			return nil
		}
		byVariant, ok := index[key]
		if !ok {
			byVariant = make(map[mediakind.Variant]string)
			index[key] = byVariant
		}
		// First observation wins within a variant; WalkDir order is
		// lexical so repeated scans are deterministic.
		if _, exists := byVariant[v]; !exists {
			byVariant[v] = path
		}
		files++
		return nil
	})
	if err != nil {
		return fmt.Errorf("variant scan of %s: %w", r.root, err)
	}

	r.mu.Lock()
	r.index = index
	r.scanned = true
	r.mu.Unlock()

	logging.Info("Variant scan complete: %d files, %d keys under %s", files, len(index), r.root)
	return nil
}

// Candidates returns the on-disk renditions of baseID ordered by
// variant rank, best first. Only variants observed during Scan are
// returned. The baseID may itself carry a variant tag; it is
// normalized away.
func (r *Resolver) Candidates(baseID string) []Candidate {
	key, _ := ParseName(baseID)

	r.mu.RLock()
	defer r.mu.RUnlock()

	byVariant, ok := r.index[key]
	if !ok {
		return nil
	}

	candidates := make([]Candidate, 0, len(byVariant))
	for v, path := range byVariant {
		candidates = append(candidates, Candidate{Path: path, Variant: v})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Variant.Rank() < candidates[j].Variant.Rank()
	})
	return candidates
}

// Scanned reports whether Scan has completed at least once.
func (r *Resolver) Scanned() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scanned
}
