package signature

import (
	"fmt"
	"time"
)

// FrameAdvance describes the temporal check: the byte at Offset is read
// twice, Delay apart, and must have moved forward by 1..MaxDelta (mod 256).
type FrameAdvance struct {
	Offset   int
	Delay    time.Duration
	MaxDelta byte
}

// Advanced reports whether a counter going from before to after counts as
// the emulator having run.
func (f FrameAdvance) Advanced(before, after byte) bool {
	delta := after - before
	return delta >= 1 && delta <= f.MaxDelta
}

// Signature is the fingerprint of a RAM array of Size bytes.
type Signature struct {
	Name   string
	Size   int
	Static []Check
	Frame  FrameAdvance
}

func (s Signature) Validate() error {
	if s.Size <= 0 {
		return fmt.Errorf("signature %s: size must be positive", s.Name)
	}
	if s.Frame.Offset < 0 || s.Frame.Offset >= s.Size {
		return fmt.Errorf("signature %s: frame counter offset $%04X outside window", s.Name, s.Frame.Offset)
	}
	if s.Frame.MaxDelta == 0 {
		return fmt.Errorf("signature %s: max frame delta must be at least 1", s.Name)
	}
	return nil
}

// Score returns how many static checks pass before the first failure.
func (s Signature) Score(window []byte) int {
	if len(window) < s.Size {
		return 0
	}
	for i, c := range s.Static {
		if !c.Match(window) {
			return i
		}
	}
	return len(s.Static)
}

// Matches reports whether window passes every static check.
func (s Signature) Matches(window []byte) bool {
	return len(window) >= s.Size && s.Score(window) == len(s.Static)
}

// FirstFailure returns the name of the first static check window fails, or
// "" if it passes them all.
func (s Signature) FirstFailure(window []byte) string {
	if len(window) < s.Size {
		return "window too short"
	}
	for _, c := range s.Static {
		if !c.Match(window) {
			return c.Name()
		}
	}
	return ""
}
