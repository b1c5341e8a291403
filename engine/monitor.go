package engine

import (
	"fmt"
	"time"

	"nesram/signature"
)

const (
	DefaultRevalidateEvery    = 64
	DefaultRevalidateInterval = time.Second
)

// Monitor decides when the bound window is due for a recheck and performs
// it. A recheck fails if any static check fails or if the frame counter has
// not moved for a whole Interval.
type Monitor struct {
	Every    int
	Interval time.Duration

	// IgnoreFrame turns off the stuck frame counter rule
	IgnoreFrame bool

	ops            int
	lastCheck      time.Time
	lastFrame      byte
	frameChangedAt time.Time
}

func NewMonitor(every int, interval time.Duration) *Monitor {
	return &Monitor{Every: every, Interval: interval}
}

// Reset starts tracking a freshly bound window.
func (m *Monitor) Reset(now time.Time, frame byte) {
	m.ops = 0
	m.lastCheck = now
	m.lastFrame = frame
	m.frameChangedAt = now
}

// Due counts one access and reports whether a recheck should run first.
func (m *Monitor) Due(now time.Time) bool {
	m.ops++
	if m.Every > 0 && m.ops >= m.Every {
		return true
	}
	return m.Interval > 0 && now.Sub(m.lastCheck) >= m.Interval
}

// Check validates window, a fresh copy of the bound RAM.
func (m *Monitor) Check(sig signature.Signature, window []byte, now time.Time) error {
	m.ops = 0
	m.lastCheck = now

	if failed := sig.FirstFailure(window); failed != "" {
		return fmt.Errorf("signature check failed: %s", failed)
	}

	frame := window[sig.Frame.Offset]
	if frame != m.lastFrame {
		m.lastFrame = frame
		m.frameChangedAt = now
		return nil
	}

	if !m.IgnoreFrame && m.Interval > 0 && now.Sub(m.frameChangedAt) >= m.Interval {
		return fmt.Errorf("frame counter stuck at %d for %v", frame, now.Sub(m.frameChangedAt))
	}

	return nil
}
