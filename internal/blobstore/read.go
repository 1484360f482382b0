package blobstore

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"chatmedia/internal/logging"
)

// Retry parameters for stale NFS handles. Chat archives frequently
// live on network shares; a stale handle after a server-side rename is
// transient and worth a couple of retries.
const (
	readMaxRetries     = 3
	readInitialBackoff = 50 * time.Millisecond
	readMaxBackoff     = 500 * time.Millisecond
)

// isStaleHandleError checks for ESTALE (stale NFS file handle).
func isStaleHandleError(err error) bool {
	var errno syscall.Errno
	return errors.As(err, &errno) && errno == syscall.ESTALE
}

// ReadBlob reads an encrypted attachment blob from disk, retrying on
// stale NFS handles. A missing file maps to ErrSourceMissing.
func ReadBlob(path string) ([]byte, error) {
	var lastErr error
	backoff := readInitialBackoff

	for attempt := 0; attempt <= readMaxRetries; attempt++ {
		data, err := os.ReadFile(path)
		if err == nil {
			if attempt > 0 {
				logging.Info("blob read succeeded on retry %d for %s", attempt, path)
			}
			if len(data) == 0 {
				return nil, fmt.Errorf("blob %s is empty: %w", path, ErrSourceMissing)
			}
			return data, nil
		}

		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blob %s: %w", path, ErrSourceMissing)
		}

		lastErr = err
		if !isStaleHandleError(err) {
			return nil, fmt.Errorf("read blob %s: %w", path, err)
		}

		if attempt < readMaxRetries {
			logging.Debug("stale handle reading %s, retrying in %v (attempt %d/%d)",
				path, backoff, attempt+1, readMaxRetries)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > readMaxBackoff {
				backoff = readMaxBackoff
			}
		}
	}

	logging.Warn("blob read failed after %d retries for %s: %v", readMaxRetries, path, lastErr)
	return nil, fmt.Errorf("read blob %s: %w", path, lastErr)
}
