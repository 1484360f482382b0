package cacheindex

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"chatmedia/internal/mediakind"
)

func seedOutput(t *testing.T, root string, rel string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("media"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLookupLazyScan(t *testing.T) {
	root := t.TempDir()
	imgPath := seedOutput(t, root, "images/abc123.jpg")
	voicePath := seedOutput(t, root, "voices/v-friend-100-1.mp3")
	seedOutput(t, root, "emojis/sticker9.webp")

	idx := New(root)
	if idx.Len() != 0 {
		t.Fatal("index scanned before first lookup")
	}

	e, ok, err := idx.Lookup("abc123")
	if err != nil || !ok {
		t.Fatalf("Lookup(abc123) = (%v, %v), want hit", ok, err)
	}
	if e.Path != imgPath || e.Kind != mediakind.KindImage {
		t.Errorf("entry = %+v, want image at %s", e, imgPath)
	}

	e, ok, _ = idx.Lookup("v-friend-100-1")
	if !ok || e.Path != voicePath || e.Kind != mediakind.KindVoice {
		t.Errorf("voice entry = (%+v, %v)", e, ok)
	}

	if _, ok, _ := idx.Lookup("missing"); ok {
		t.Error("Lookup(missing) hit")
	}

	if idx.Len() != 3 {
		t.Errorf("Len() = %d, want 3", idx.Len())
	}
}

func TestLookupEmptyRoot(t *testing.T) {
	idx := New(filepath.Join(t.TempDir(), "does-not-exist-yet"))
	_, ok, err := idx.Lookup("anything")
	if err != nil {
		t.Fatalf("Lookup on missing root error = %v", err)
	}
	if ok {
		t.Error("Lookup hit on missing root")
	}
}

func TestRecordIdempotent(t *testing.T) {
	idx := New(t.TempDir())

	idx.Record(Entry{Key: "k1", Kind: mediakind.KindImage, Path: "/out/images/k1.png"})
	idx.Record(Entry{Key: "k1", Kind: mediakind.KindImage, Path: "/out/images/other.png"})

	e, ok, err := idx.Lookup("k1")
	if err != nil || !ok {
		t.Fatalf("Lookup(k1) = (%v, %v)", ok, err)
	}
	if e.Path != "/out/images/k1.png" {
		t.Errorf("Record overwrote existing entry: %s", e.Path)
	}
}

func TestInvalidate(t *testing.T) {
	idx := New(t.TempDir())
	idx.Record(Entry{Key: "k1", Kind: mediakind.KindImage, Path: "/x"})

	idx.Invalidate("k1")
	if _, ok, _ := idx.Lookup("k1"); ok {
		t.Error("entry survived Invalidate")
	}

	// Invalidating an absent key is fine.
	idx.Invalidate("k1")
}

func TestConcurrentFirstLookupsShareScan(t *testing.T) {
	root := t.TempDir()
	seedOutput(t, root, "images/shared.jpg")

	idx := New(root)

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for n := 0; n < 32; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := idx.Lookup("shared")
			if err != nil {
				errs <- err
				return
			}
			if !ok {
				errs <- os.ErrNotExist
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent Lookup error: %v", err)
	}
}
