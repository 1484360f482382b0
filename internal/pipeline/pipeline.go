package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"chatmedia/internal/blobstore"
	"chatmedia/internal/cacheindex"
	"chatmedia/internal/coordinator"
	"chatmedia/internal/decrypt"
	"chatmedia/internal/keystore"
	"chatmedia/internal/logging"
	"chatmedia/internal/mediakind"
	"chatmedia/internal/metrics"
	"chatmedia/internal/speech"
	"chatmedia/internal/validate"
	"chatmedia/internal/variant"
)

// voiceTaskTimeout bounds a whole voice task; the decode and encode
// stages inside it carry their own tighter timeouts, so this only
// fires when a stage hangs without tripping its own limit.
const voiceTaskTimeout = 150 * time.Second

// ResolvedMedia is a successful resolution: a locally usable file any
// consumer can open by path.
type ResolvedMedia struct {
	Key       string
	Kind      mediakind.Kind
	Path      string
	FromCache bool
}

// VoiceSource looks up raw speech-codec payloads.
type VoiceSource interface {
	VoiceBlob(ctx context.Context, senderID string, ts time.Time) ([]byte, int64, error)
}

// VoiceTranscoder runs the decode/encode state machine for one voice task.
type VoiceTranscoder interface {
	Run(ctx context.Context, task speech.Task) error
}

// Config assembles a Facade.
type Config struct {
	// Keys holds the decryption secrets; may be nil when only voice
	// resolution is needed.
	Keys *keystore.KeySet
	// SourceRoot is the per-account directory of encrypted image and
	// sticker blobs.
	SourceRoot string
	// OutputRoot is where resolved media files are written
	// (images/, voices/, emojis/).
	OutputRoot string
	// Voices is the voice blob store; may be nil when only images are
	// resolved.
	Voices VoiceSource
	// Transcoder converts voice blobs to MP3; required when Voices is set.
	Transcoder VoiceTranscoder
	// PoolSize bounds concurrent heavy operations; <= 0 derives it
	// from available parallelism.
	PoolSize int
}

// Facade is the public entry point of the media pipeline: it answers
// "give me a usable local file for this attachment reference". All
// mutable shared state (cache index, in-flight map, negative
// validation cache) is owned by the facade instance, so isolated
// instances can be constructed for tests.
type Facade struct {
	keys       *keystore.KeySet
	variants   *variant.Resolver
	index      *cacheindex.Index
	coord      *coordinator.Coordinator
	valid      *validate.Validator
	voices     VoiceSource
	transcoder VoiceTranscoder
	outRoot    string

	scanOnce sync.Once
	scanErr  error
}

// New builds a Facade from config.
func New(cfg Config) (*Facade, error) {
	if cfg.OutputRoot == "" {
		return nil, errors.New("pipeline: output root is required")
	}
	if cfg.Voices != nil && cfg.Transcoder == nil {
		return nil, errors.New("pipeline: voice source configured without a transcoder")
	}

	v, err := validate.New()
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	return &Facade{
		keys:       cfg.Keys,
		variants:   variant.NewResolver(cfg.SourceRoot),
		index:      cacheindex.New(cfg.OutputRoot),
		coord:      coordinator.New(cfg.PoolSize),
		valid:      v,
		voices:     cfg.Voices,
		transcoder: cfg.Transcoder,
		outRoot:    cfg.OutputRoot,
	}, nil
}

// Resolve produces a usable local file for ref. On failure the error
// classifies via Classify; per-variant failures are recovered
// internally by advancing to the next candidate.
func (f *Facade) Resolve(ctx context.Context, ref Ref) (ResolvedMedia, error) {
	start := time.Now()
	media, err := f.resolve(ctx, ref)

	status := "ok"
	if err != nil {
		status = string(Classify(err))
	}
	metrics.ResolutionsTotal.WithLabelValues(string(ref.Kind), status).Inc()
	metrics.ResolutionDuration.WithLabelValues(string(ref.Kind)).Observe(time.Since(start).Seconds())

	return media, err
}

func (f *Facade) resolve(ctx context.Context, ref Ref) (ResolvedMedia, error) {
	if !ref.Kind.Valid() {
		return ResolvedMedia{}, fmt.Errorf("pipeline: unknown attachment kind %q", ref.Kind)
	}
	key := ref.Key()
	if key == "" {
		return ResolvedMedia{}, fmt.Errorf("pipeline: reference carries no identifier: %w", blobstore.ErrSourceMissing)
	}

	// Already produced? A cache entry is only trusted after it
	// re-validates; a stale entry is dropped and re-produced.
	if entry, ok, err := f.index.Lookup(key); err != nil {
		return ResolvedMedia{}, err
	} else if ok {
		if f.valid.Usable(entry.Path, entry.Kind) {
			metrics.CacheHits.Inc()
			return ResolvedMedia{Key: key, Kind: entry.Kind, Path: entry.Path, FromCache: true}, nil
		}
		logging.Warn("cache entry for %s failed re-validation, invalidating %s", key, entry.Path)
		f.index.Invalidate(key)
	}
	metrics.CacheMisses.Inc()

	var media ResolvedMedia
	var err error
	if ref.Kind == mediakind.KindVoice {
		media, err = f.resolveVoice(ctx, key, ref)
	} else {
		media, err = f.resolveImage(ctx, key, ref)
	}
	if err != nil {
		return ResolvedMedia{}, err
	}

	f.index.Record(cacheindex.Entry{Key: media.Key, Kind: media.Kind, Path: media.Path})
	return media, nil
}

// resolveImage walks the variant candidates best-first, attempting a
// decrypt through the coordinator for each. The first candidate whose
// output validates wins; failures fall back to the next rendition.
func (f *Facade) resolveImage(ctx context.Context, key string, ref Ref) (ResolvedMedia, error) {
	// No key configured means no variant could ever succeed: reported
	// immediately, never retried.
	if f.keys == nil {
		return ResolvedMedia{}, fmt.Errorf("pipeline: %s: %w", key, decrypt.ErrKeyMissing)
	}
	if _, ok := f.keys.XorKey(); !ok {
		return ResolvedMedia{}, fmt.Errorf("pipeline: %s: %w", key, decrypt.ErrKeyMissing)
	}

	if err := f.ensureScanned(); err != nil {
		return ResolvedMedia{}, err
	}

	candidates := f.variants.Candidates(ref.baseName())
	if len(candidates) == 0 {
		return ResolvedMedia{}, fmt.Errorf("pipeline: no variants on disk for %s: %w", key, blobstore.ErrSourceMissing)
	}

	var lastErr error
	for i, cand := range candidates {
		cand := cand
		path, err := f.coord.Resolve(ctx, key, coordinator.DefaultTaskTimeout, func(taskCtx context.Context) (string, error) {
			return f.produceImage(taskCtx, key, ref.Kind, cand)
		})
		if err == nil {
			if i > 0 {
				metrics.VariantFallbacks.Inc()
				logging.Warn("resolved %s from fallback variant %s", key, cand.Variant)
			}
			return ResolvedMedia{Key: key, Kind: ref.Kind, Path: path}, nil
		}

		// Timeouts are surfaced as-is so bulk callers can account for
		// slow items instead of stacking further attempts behind them.
		if errors.Is(err, coordinator.ErrTimeout) {
			return ResolvedMedia{}, err
		}

		logging.Debug("variant %s of %s failed: %v", cand.Variant, key, err)
		lastErr = err
	}

	return ResolvedMedia{}, fmt.Errorf("pipeline: %w for %s: last variant error: %v", ErrUnresolvable, key, lastErr)
}

// produceImage reads one encrypted candidate, decrypts it, writes the
// plaintext next to its final path, and only renames it into place
// after validation passes. The cache therefore never points at a
// corrupt file.
func (f *Facade) produceImage(ctx context.Context, key string, kind mediakind.Kind, cand variant.Candidate) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := blobstore.ReadBlob(cand.Path)
	if err != nil {
		return "", err
	}

	plain, scheme, err := decrypt.Decrypt(data, f.keys)
	if err != nil {
		return "", fmt.Errorf("%s (%s): %w", key, cand.Variant, err)
	}
	logging.Debug("decrypted %s via %s scheme (%d bytes)", key, scheme, len(plain))

	format, _ := mediakind.SniffImage(plain)
	outPath := f.outputPath(key, kind, string(format))

	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	// Stage under a per-variant name so a rejected rendition never
	// poisons the final path in the negative validation cache.
	staged := fmt.Sprintf("%s.%s.tmp", outPath, cand.Variant)
	if err := os.WriteFile(staged, plain, 0644); err != nil {
		return "", fmt.Errorf("write output: %w", err)
	}

	if !f.valid.Usable(staged, kind) {
		if rmErr := os.Remove(staged); rmErr != nil {
			logging.Warn("failed to remove rejected output %s: %v", staged, rmErr)
		}
		return "", fmt.Errorf("%s (%s): %w", key, cand.Variant, ErrCorruptOutput)
	}

	if err := os.Rename(staged, outPath); err != nil {
		return "", fmt.Errorf("finalize output: %w", err)
	}
	return outPath, nil
}

// resolveVoice runs the transcode state machine through the
// coordinator and validates the MP3 before caching.
func (f *Facade) resolveVoice(ctx context.Context, key string, ref Ref) (ResolvedMedia, error) {
	if f.voices == nil || f.transcoder == nil {
		return ResolvedMedia{}, fmt.Errorf("pipeline: no voice store configured: %w", blobstore.ErrSourceMissing)
	}

	outPath := f.outputPath(key, mediakind.KindVoice, "mp3")

	path, err := f.coord.Resolve(ctx, key, voiceTaskTimeout, func(taskCtx context.Context) (string, error) {
		task := speech.Task{
			Key:        key,
			OutputPath: outPath,
			Fetch: func(fetchCtx context.Context) ([]byte, error) {
				blob, _, err := f.voices.VoiceBlob(fetchCtx, ref.SenderID, ref.Timestamp)
				return blob, err
			},
			OnProgress: func(p speech.Progress) {
				logging.Debug("voice %s: stage=%s %d/%d", key, p.Stage, p.Current, p.Total)
			},
		}
		if err := f.transcoder.Run(taskCtx, task); err != nil {
			return "", err
		}
		if !f.valid.Usable(outPath, mediakind.KindVoice) {
			if rmErr := os.Remove(outPath); rmErr != nil && !os.IsNotExist(rmErr) {
				logging.Warn("failed to remove rejected output %s: %v", outPath, rmErr)
			}
			return "", fmt.Errorf("%s: %w", key, ErrCorruptOutput)
		}
		return outPath, nil
	})
	if err != nil {
		return ResolvedMedia{}, err
	}

	return ResolvedMedia{Key: key, Kind: mediakind.KindVoice, Path: path}, nil
}

// outputPath derives the deterministic output location for a key.
func (f *Facade) outputPath(key string, kind mediakind.Kind, ext string) string {
	name := key
	if ext != "" {
		name = key + "." + ext
	}
	return filepath.Join(f.outRoot, kind.OutputDir(), name)
}

func (f *Facade) ensureScanned() error {
	f.scanOnce.Do(func() {
		f.scanErr = f.variants.Scan()
	})
	return f.scanErr
}

// ClearCache removes all produced output files and returns the number
// of bytes freed. The in-memory index is reset by constructing a new
// facade; this is an operational affordance for reclaiming disk.
func (f *Facade) ClearCache() (int64, error) {
	var freed int64

	for _, kind := range []mediakind.Kind{mediakind.KindImage, mediakind.KindVoice, mediakind.KindSticker} {
		dir := filepath.Join(f.outRoot, kind.OutputDir())
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return freed, fmt.Errorf("read cache directory %s: %w", dir, err)
		}
		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())
			info, err := entry.Info()
			if err != nil {
				logging.Warn("failed to stat %s: %v", path, err)
				continue
			}
			if entry.IsDir() {
				continue
			}
			if err := os.Remove(path); err != nil {
				logging.Warn("failed to remove %s: %v", path, err)
				continue
			}
			freed += info.Size()
			f.index.Invalidate(strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())))
		}
	}

	logging.Info("Cleared media cache: freed %d bytes", freed)
	return freed, nil
}
