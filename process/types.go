package process

import "fmt"

// ProcessID represents a unique identifier for a process
type ProcessID int

// Handle identifies one incarnation of a process. A PID alone is not enough:
// once a process exits its PID can be reused, so StartTime is part of the
// identity. Handles are values; a lost process is described by a copy with
// Live set to false.
type Handle struct {
	PID       ProcessID
	Name      string
	StartTime int64 // milliseconds since epoch, 0 if unknown
	Live      bool
}

// Lost returns a copy of h marked as no longer alive.
func (h Handle) Lost() Handle {
	h.Live = false
	return h
}

// Same reports whether h and other refer to the same process incarnation.
func (h Handle) Same(other Handle) bool {
	return h.PID == other.PID && h.StartTime == other.StartTime
}

func (h Handle) String() string {
	return fmt.Sprintf("%s[%d]", h.Name, h.PID)
}
