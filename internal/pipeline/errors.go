package pipeline

import (
	"context"
	"errors"

	"chatmedia/internal/blobstore"
	"chatmedia/internal/coordinator"
	"chatmedia/internal/decrypt"
	"chatmedia/internal/speech"
)

var (
	// ErrCorruptOutput indicates a produced file failed post-validation.
	ErrCorruptOutput = errors.New("output failed validation")
	// ErrUnresolvable indicates every variant candidate was exhausted.
	ErrUnresolvable = errors.New("all variant candidates exhausted")
)

// ErrorKind classifies a pipeline failure for callers that present
// distinct affordances per failure mode.
type ErrorKind string

const (
	KindNone             ErrorKind = ""
	KindSourceMissing    ErrorKind = "source_missing"
	KindKeyMissing       ErrorKind = "key_missing"
	KindDecryptionFailed ErrorKind = "decryption_failed"
	KindDecodeFailed     ErrorKind = "decode_failed"
	KindEncodeFailed     ErrorKind = "encode_failed"
	KindTimeout          ErrorKind = "timeout"
	KindCorruptOutput    ErrorKind = "corrupt_output"
	KindUnresolvable     ErrorKind = "unresolvable"
	KindOther            ErrorKind = "other"
)

// Classify maps an error returned by Resolve to its kind.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, decrypt.ErrKeyMissing):
		return KindKeyMissing
	case errors.Is(err, ErrUnresolvable):
		return KindUnresolvable
	case errors.Is(err, coordinator.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, blobstore.ErrSourceMissing):
		return KindSourceMissing
	case errors.Is(err, decrypt.ErrDecryptionFailed):
		return KindDecryptionFailed
	case errors.Is(err, speech.ErrDecodeFailed):
		return KindDecodeFailed
	case errors.Is(err, speech.ErrEncodeFailed):
		return KindEncodeFailed
	case errors.Is(err, ErrCorruptOutput):
		return KindCorruptOutput
	default:
		return KindOther
	}
}
