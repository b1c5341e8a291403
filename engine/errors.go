package engine

import (
	"context"
	"errors"

	"nesram/process"
)

var (
	// ErrNotConnected is returned by accesses while no binding exists.
	// Call Connect.
	ErrNotConnected = errors.New("not connected")

	// ErrOutOfWindow is returned for an offset/length pair that does not fit
	// in the RAM window.
	ErrOutOfWindow = errors.New("out of window")

	// ErrReadOnlyViolation is returned by Write when the bound region is no
	// longer writable.
	ErrReadOnlyViolation = errors.New("read-only violation")

	// ErrProcessLost is wrapped into the error of the access that found the
	// bound process gone.
	ErrProcessLost = errors.New("process lost")
)

// Error kinds as reported to tool callers.
const (
	KindNotConnected       = "NotConnected"
	KindOutOfWindow        = "OutOfWindow"
	KindReadOnlyViolation  = "ReadOnlyViolation"
	KindProcessAccess      = "ProcessAccessError"
	KindProcessUnavailable = "ProcessUnavailable"
	KindCancelled          = "Cancelled"
	KindInternal           = "InternalError"
)

// ErrorKind names the category of err. Order matters: an access fault on a
// process that then turned out to be gone is still an access fault.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrOutOfWindow):
		return KindOutOfWindow
	case errors.Is(err, ErrNotConnected):
		return KindNotConnected
	case errors.Is(err, ErrReadOnlyViolation), errors.Is(err, process.ErrRegionNotWritable):
		return KindReadOnlyViolation
	case errors.Is(err, process.ErrProcessAccess), errors.Is(err, process.ErrAddressNotMapped):
		return KindProcessAccess
	case errors.Is(err, process.ErrProcessUnavailable), errors.Is(err, ErrProcessLost), errors.Is(err, process.ErrProcessNotOpen):
		return KindProcessUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	}
	return KindInternal
}
