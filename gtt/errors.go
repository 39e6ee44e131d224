package gtt

import "errors"

// Errors surfaced by the shadow page-table engine. None of them are
// retried automatically; callers decide whether to fault the guest or fail
// the triggering operation.
var (
	// ErrInvalidRange flags a graphics memory address or range outside
	// the vGPU's assigned aperture.
	ErrInvalidRange = errors.New("gma out of vGPU range")

	// ErrTranslationFailure flags a guest frame the frame resolver could
	// not map, usually a frame the guest does not own.
	ErrTranslationFailure = errors.New("cannot translate guest frame")

	// ErrUnsupportedEntryShape flags a large-page bit set where large
	// pages are not supported, or a root-pointer level mismatch.
	ErrUnsupportedEntryShape = errors.New("unsupported entry shape")

	// ErrResourceExhausted flags shadow page allocation failing after
	// reclamation found nothing eligible.
	ErrResourceExhausted = errors.New("out of shadow pages")

	// ErrNotFound flags a failed lookup of a shadow page or tracking
	// record.
	ErrNotFound = errors.New("not found")

	// ErrNotPresent flags a graphics memory address whose walk hit a
	// non-present entry.
	ErrNotPresent = errors.New("gma not present")
)
