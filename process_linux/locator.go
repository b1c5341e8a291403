//go:build linux

package process_linux

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"

	"nesram/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	gops "github.com/shirou/gopsutil/v3/process"
)

// Locator finds the emulator by process name (like pidof) or by a fixed PID.
type Locator struct {
	Name string
	PID  process.ProcessID

	log *logger.Logger
}

var _ process.Locator = (*Locator)(nil)

// NewLocator returns a Locator for name. A non-zero pid pins the target to
// that process and name is only used for display.
func NewLocator(name string, pid process.ProcessID) *Locator {
	return &Locator{
		Name: name,
		PID:  pid,
		log:  logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "locator")),
	}
}

func (l *Locator) Locate(ctx context.Context) (process.Handle, error) {
	if l.PID != 0 {
		p, err := gops.NewProcessWithContext(ctx, int32(l.PID))
		if err != nil {
			return process.Handle{}, fmt.Errorf("%w: pid %d: %w", process.ErrProcessUnavailable, l.PID, err)
		}
		return l.handle(ctx, p), nil
	}

	procs, err := gops.ProcessesWithContext(ctx)
	if err != nil {
		return process.Handle{}, fmt.Errorf("%w: listing processes: %w", process.ErrProcessUnavailable, err)
	}

	var matches []*gops.Process
	for _, p := range procs {
		if l.matches(ctx, p) {
			matches = append(matches, p)
		}
	}

	if len(matches) == 0 {
		return process.Handle{}, fmt.Errorf("%w: no process named '%s'", process.ErrProcessUnavailable, l.Name)
	}

	// pick the lowest PID for determinism
	slices.SortFunc(matches, func(a, b *gops.Process) int {
		return int(a.Pid - b.Pid)
	})
	if len(matches) > 1 {
		l.log.Warn("several processes named ", l.Name, ", using pid ", matches[0].Pid)
	}

	return l.handle(ctx, matches[0]), nil
}

// matches compares comm, which the kernel truncates to 15 bytes, and the exe
// basename.
func (l *Locator) matches(ctx context.Context, p *gops.Process) bool {
	if name, err := p.NameWithContext(ctx); err == nil && name == l.Name {
		return true
	}
	if exe, err := p.ExeWithContext(ctx); err == nil && exe != "" && filepath.Base(exe) == l.Name {
		return true
	}
	return false
}

func (l *Locator) handle(ctx context.Context, p *gops.Process) process.Handle {
	h := process.Handle{
		PID:  process.ProcessID(p.Pid),
		Name: l.Name,
		Live: true,
	}
	if name, err := p.NameWithContext(ctx); err == nil {
		h.Name = name
	}
	if ct, err := p.CreateTimeWithContext(ctx); err == nil {
		h.StartTime = ct
	}
	return h
}

func (l *Locator) Alive(ctx context.Context, h process.Handle) bool {
	if h.PID == 0 || !procExists(int(h.PID)) {
		return false
	}

	p, err := gops.NewProcessWithContext(ctx, int32(h.PID))
	if err != nil {
		return false
	}

	if h.StartTime != 0 {
		ct, err := p.CreateTimeWithContext(ctx)
		if err != nil || ct != h.StartTime {
			// the pid now belongs to someone else
			return false
		}
	}

	status, err := p.StatusWithContext(ctx)
	if err == nil && slices.Contains(status, gops.Zombie) {
		return false
	}

	return true
}

func (l *Locator) Attach(h process.Handle) (process.Process, error) {
	p, err := NewWithPID(h.PID)
	if err != nil {
		return nil, err
	}
	return p, nil
}
