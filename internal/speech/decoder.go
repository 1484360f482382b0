package speech

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"chatmedia/internal/logging"
)

// DecoderName is the file name of the external speech decoder binary.
const DecoderName = "silk_v3_decoder"

// FindDecoder resolves the external decoder binary. Resolution order:
// each directory in searchDirs, then PATH. If the binary is only
// present as a bundled payload under bundleDir, it is extracted into
// fallbackDir (which must be writable) and marked executable.
func FindDecoder(searchDirs []string, bundleDir, fallbackDir string) (string, error) {
	for _, dir := range searchDirs {
		candidate := filepath.Join(dir, DecoderName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			logging.Debug("decoder found at %s", candidate)
			return candidate, nil
		}
	}

	if path, err := exec.LookPath(DecoderName); err == nil {
		logging.Debug("decoder found on PATH at %s", path)
		return path, nil
	}

	if bundleDir != "" && fallbackDir != "" {
		bundled := filepath.Join(bundleDir, DecoderName)
		if info, err := os.Stat(bundled); err == nil && !info.IsDir() {
			extracted, err := extractDecoder(bundled, fallbackDir)
			if err != nil {
				return "", fmt.Errorf("extract bundled decoder: %w", err)
			}
			return extracted, nil
		}
	}

	return "", fmt.Errorf("speech decoder %q not found in search path, PATH, or bundle", DecoderName)
}

// extractDecoder copies the bundled decoder payload into a writable
// directory and makes it executable. Idempotent across runs.
func extractDecoder(bundled, fallbackDir string) (string, error) {
	if err := os.MkdirAll(fallbackDir, 0755); err != nil {
		return "", err
	}
	target := filepath.Join(fallbackDir, DecoderName)

	if info, err := os.Stat(target); err == nil && !info.IsDir() && info.Mode()&0111 != 0 {
		return target, nil
	}

	src, err := os.Open(bundled)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := src.Close(); err != nil {
			logging.Warn("failed to close bundled decoder %s: %v", bundled, err)
		}
	}()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0755)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		closeQuietly(dst, target)
		return "", err
	}
	if err := dst.Close(); err != nil {
		return "", err
	}

	logging.Info("Extracted bundled decoder to %s", target)
	return target, nil
}
