package blobstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *VoiceStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "voices.db")
	s, err := OpenVoiceStore(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("OpenVoiceStore() error = %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return s
}

func TestVoiceBlobRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ts := time.Unix(1700000000, 0)
	payload := []byte{0x02, 0x23, 0x21, 'S', 'I', 'L', 'K'}

	if err := s.InsertVoice(ctx, "friend-42", ts, 7, payload); err != nil {
		t.Fatalf("InsertVoice() error = %v", err)
	}

	got, localID, err := s.VoiceBlob(ctx, "friend-42", ts)
	if err != nil {
		t.Fatalf("VoiceBlob() error = %v", err)
	}
	if localID != 7 {
		t.Errorf("localID = %d, want 7", localID)
	}
	if string(got) != string(payload) {
		t.Error("payload mismatch")
	}
}

func TestVoiceBlobMissing(t *testing.T) {
	s := openTestStore(t)

	_, _, err := s.VoiceBlob(context.Background(), "nobody", time.Unix(1, 0))
	if !errors.Is(err, ErrSourceMissing) {
		t.Errorf("VoiceBlob() error = %v, want ErrSourceMissing", err)
	}
}

func TestVoiceBlobEmptyPayloadIsMissing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ts := time.Unix(1700000001, 0)

	if err := s.InsertVoice(ctx, "friend-42", ts, 8, []byte{}); err != nil {
		t.Fatalf("InsertVoice() error = %v", err)
	}

	_, _, err := s.VoiceBlob(ctx, "friend-42", ts)
	if !errors.Is(err, ErrSourceMissing) {
		t.Errorf("VoiceBlob() error = %v, want ErrSourceMissing", err)
	}
}

func TestReadBlob(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "blob.dat")
	if err := os.WriteFile(path, []byte("payload"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := ReadBlob(path)
	if err != nil {
		t.Fatalf("ReadBlob() error = %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("ReadBlob() = %q, want %q", got, "payload")
	}
}

func TestReadBlobMissing(t *testing.T) {
	_, err := ReadBlob(filepath.Join(t.TempDir(), "nope.dat"))
	if !errors.Is(err, ErrSourceMissing) {
		t.Errorf("ReadBlob() error = %v, want ErrSourceMissing", err)
	}
}

func TestReadBlobEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.dat")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err := ReadBlob(path)
	if !errors.Is(err, ErrSourceMissing) {
		t.Errorf("ReadBlob() error = %v, want ErrSourceMissing", err)
	}
}
