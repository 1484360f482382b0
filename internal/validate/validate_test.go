package validate

import (
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"chatmedia/internal/mediakind"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return v
}

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 60), B: 128, A: 255})
		}
	}
	return img
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, testImage()); err != nil {
		t.Fatalf("png encode: %v", err)
	}
}

func TestUsableImageFormats(t *testing.T) {
	dir := t.TempDir()
	v := newValidator(t)

	pngPath := filepath.Join(dir, "a.png")
	writePNG(t, pngPath)

	jpgPath := filepath.Join(dir, "b.jpg")
	jf, err := os.Create(jpgPath)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := jpeg.Encode(jf, testImage(), &jpeg.Options{Quality: 80}); err != nil {
		t.Fatalf("jpeg encode: %v", err)
	}
	jf.Close()

	gifPath := filepath.Join(dir, "c.gif")
	gf, err := os.Create(gifPath)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := gif.Encode(gf, testImage(), nil); err != nil {
		t.Fatalf("gif encode: %v", err)
	}
	gf.Close()

	for _, path := range []string{pngPath, jpgPath, gifPath} {
		if !v.Usable(path, mediakind.KindImage) {
			t.Errorf("Usable(%s, image) = false, want true", filepath.Base(path))
		}
	}
}

func TestUsableImageRejectsCorrupt(t *testing.T) {
	dir := t.TempDir()
	v := newValidator(t)

	// Valid PNG magic, garbage body: passes the header sniff, fails the
	// full decode.
	corrupt := append([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, []byte("not actually a png body")...)
	path := filepath.Join(dir, "corrupt.png")
	if err := os.WriteFile(path, corrupt, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if v.Usable(path, mediakind.KindImage) {
		t.Error("Usable(corrupt png) = true, want false")
	}
}

func TestUsableImageRejectsWrongMagic(t *testing.T) {
	dir := t.TempDir()
	v := newValidator(t)

	path := filepath.Join(dir, "noise.dat")
	if err := os.WriteFile(path, []byte{0x00, 0x11, 0x22, 0x33, 0x44}, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if v.Usable(path, mediakind.KindImage) {
		t.Error("Usable(noise) = true, want false")
	}
}

func TestUsableAudio(t *testing.T) {
	dir := t.TempDir()
	v := newValidator(t)

	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"id3 header", append([]byte("ID3\x04\x00\x00\x00\x00\x00\x00"), make([]byte, 64)...), true},
		{"frame sync", append([]byte{0xFF, 0xFB, 0x90, 0x00}, make([]byte, 64)...), true},
		{"empty", nil, false},
		{"not audio", []byte("RIFF....WAVE"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".mp3")
			if err := os.WriteFile(path, tt.data, 0644); err != nil {
				t.Fatalf("write: %v", err)
			}
			if got := v.Usable(path, mediakind.KindVoice); got != tt.want {
				t.Errorf("Usable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNegativeCacheStopsRevalidation(t *testing.T) {
	dir := t.TempDir()
	v := newValidator(t)
	path := filepath.Join(dir, "flaky.png")

	if err := os.WriteFile(path, []byte("junk"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if v.Usable(path, mediakind.KindImage) {
		t.Fatal("junk validated as usable")
	}
	if !v.IsBlacklisted(path) {
		t.Fatal("failed path not in negative cache")
	}

	// Even after the file becomes valid, the session blacklist holds.
	writePNG(t, path)
	if v.Usable(path, mediakind.KindImage) {
		t.Error("blacklisted path validated as usable within same session")
	}
}

func TestBlacklist(t *testing.T) {
	dir := t.TempDir()
	v := newValidator(t)
	path := filepath.Join(dir, "good.png")
	writePNG(t, path)

	if !v.Usable(path, mediakind.KindImage) {
		t.Fatal("good png not usable")
	}
	v.Blacklist(path)
	if v.Usable(path, mediakind.KindImage) {
		t.Error("Usable() = true after Blacklist()")
	}
}
