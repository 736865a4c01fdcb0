package nandkv

import "fmt"

// Status is the engine's result code, mirroring the teacher's BLTErr
// convention: a small set of named values compared directly rather than
// wrapped in ad-hoc sentinel errors, while still satisfying the standard
// error interface so callers that want %w/errors.Is get it for free.
type Status int

const (
	// StatusOK indicates success.
	StatusOK Status = iota
	// StatusMustFormat is returned by Mount when the META partition's
	// signature page doesn't match — spec.md §7, the sole trigger for a
	// user-invoked Format.
	StatusMustFormat
	// StatusNoSpace is returned when the free-page scan wraps without
	// finding a FREE page (the DATA partition is then read-only), and by
	// Set when its probe finds no run of free virtual pages for the record.
	StatusNoSpace
	// StatusNotFound is returned by Get/Delete when the probe exhausts
	// without locating the key.
	StatusNotFound
	// StatusAlreadyInvalid indicates mark-invalid was attempted on a page
	// that was not VALID — a corruption signal, not an expected outcome.
	StatusAlreadyInvalid
	// StatusIoRead, StatusIoWrite, StatusIoErase surface a non-nil error
	// from the underlying Partition.
	StatusIoRead
	StatusIoWrite
	StatusIoErase
	// StatusAllocFail indicates the signature, bitmap and mapper regions do
	// not fit in the META partition; the engine refuses to come up.
	StatusAllocFail

	// statusNotPermitted is internal: it is the hint create_mapping_multipage
	// uses to tell the caller "advance and keep probing", per spec.md §4.2
	// and §7 ("not an error"). It never crosses the Engine API boundary.
	statusNotPermitted
)

func (s Status) Error() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusMustFormat:
		return "must format"
	case StatusNoSpace:
		return "no space"
	case StatusNotFound:
		return "not found"
	case StatusAlreadyInvalid:
		return "already invalid"
	case StatusIoRead:
		return "io read error"
	case StatusIoWrite:
		return "io write error"
	case StatusIoErase:
		return "io erase error"
	case StatusAllocFail:
		return "allocation failure"
	case statusNotPermitted:
		return "not permitted"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// AsError returns nil for StatusOK, and the status itself (as an error)
// otherwise, which is the usual way a method converts its terminal Status
// into the return value of an idiomatic Go API.
func (s Status) AsError() error {
	if s == StatusOK {
		return nil
	}
	return s
}
