package types

import "errors"

// Failure kinds surfaced by the redaction pipeline. Callers match them with
// errors.Is; none of them are retried internally.
var (
	// ErrInvalidInput covers undecodable images, out-of-range boxes and
	// unknown mask styles. Nothing is masked when it is returned.
	ErrInvalidInput = errors.New("invalid input")

	// ErrOCRUnavailable means the token provider failed. Retrying the OCR
	// stage is safe; masking has not started.
	ErrOCRUnavailable = errors.New("ocr unavailable")

	// ErrMaskingFailure is an internal invariant violation during the
	// masking pass, typically a stale image/token pairing.
	ErrMaskingFailure = errors.New("masking failure")
)
