// Package engine owns the binding between the NES RAM window and its
// location inside the emulator process: discovery, revalidation,
// reconnection and bounds-checked access. Every operation runs under one
// mutex and nothing runs in the background.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"nesram/candidate"
	"nesram/process"
	"nesram/signature"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// Options tunes an Engine. The zero value of a field means its default.
type Options struct {
	Filter             candidate.Filter
	RevalidateEvery    int
	RevalidateInterval time.Duration

	// AutoReconnect lets a read or write on a stale or lost binding run one
	// discovery pass before failing with ErrNotConnected.
	AutoReconnect bool

	// Frozen is for targets that never run, such as a saved dump: a frame
	// counter that does not move is not a reason to drop the binding.
	Frozen bool

	Now func() time.Time
}

type Engine struct {
	mu sync.Mutex

	locator   process.Locator
	validator *signature.Validator
	filter    candidate.Filter
	monitor   *Monitor
	auto      bool
	now       func() time.Time

	state      State
	everBound  bool
	handle     process.Handle
	proc       process.Process
	binding    *Binding
	lastResult *signature.Result

	log *logger.Logger
}

func New(locator process.Locator, validator *signature.Validator, opts Options) *Engine {
	if opts.Filter == (candidate.Filter{}) {
		opts.Filter = candidate.Default()
	}
	if opts.RevalidateEvery == 0 {
		opts.RevalidateEvery = DefaultRevalidateEvery
	}
	if opts.RevalidateInterval == 0 {
		opts.RevalidateInterval = DefaultRevalidateInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	monitor := NewMonitor(opts.RevalidateEvery, opts.RevalidateInterval)
	monitor.IgnoreFrame = opts.Frozen

	return &Engine{
		locator:   locator,
		validator: validator,
		filter:    opts.Filter,
		monitor:   monitor,
		auto:      opts.AutoReconnect,
		now:       opts.Now,
		state:     Disconnected,
		log:       logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "engine")),
	}
}

// ConnectStatus is the outcome of a connect that did not fail.
type ConnectStatus string

const (
	StatusConnected ConnectStatus = "connected"
	StatusNotFound  ConnectStatus = "not_found"
)

type ConnectResult struct {
	Status  ConnectStatus
	Binding Binding // valid when Status is StatusConnected
	Process process.Handle
	State   State
	Result  *signature.Result // nil when an existing binding was kept
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Binding returns the current binding, if any.
func (e *Engine) Binding() (Binding, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.binding == nil {
		return Binding{}, false
	}
	return *e.binding, true
}

// Process returns the handle of the attached process.
func (e *Engine) Process() process.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handle
}

// Filter returns the candidate filter used for discovery.
func (e *Engine) Filter() candidate.Filter {
	return e.filter
}

// LastResult returns the validator output of the last discovery.
func (e *Engine) LastResult() (signature.Result, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastResult == nil {
		return signature.Result{}, false
	}
	return *e.lastResult, true
}

// Connect binds the RAM window. While bound it only rechecks the existing
// binding. Not finding the window is reported through the result, not as
// an error.
func (e *Engine) Connect(ctx context.Context) (ConnectResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == Bound && e.binding != nil {
		if err := e.revalidate(ctx); err == nil {
			return e.connectResult(StatusConnected), nil
		}
	}

	return e.discover(ctx)
}

func (e *Engine) connectResult(status ConnectStatus) ConnectResult {
	res := ConnectResult{
		Status:  status,
		Process: e.handle,
		State:   e.state,
		Result:  e.lastResult,
	}
	if e.binding != nil {
		res.Binding = *e.binding
	}
	return res
}

// discover runs one enumerate/filter/validate pass. Caller holds mu.
func (e *Engine) discover(ctx context.Context) (ConnectResult, error) {
	e.binding = nil

	if err := e.attach(ctx); err != nil {
		return e.connectResult(StatusNotFound), err
	}
	e.state = Discovering

	seq, err := Enumerate(e.proc)
	if err != nil {
		e.fault(ctx, err)
		return e.connectResult(StatusNotFound), err
	}
	candidates := e.filter.Collect(seq)
	e.log.Debugln("candidate regions:", len(candidates))

	res, err := e.validator.Validate(ctx, e.proc, candidates)
	e.lastResult = &res
	if err != nil {
		e.fault(ctx, err)
		return e.connectResult(StatusNotFound), err
	}

	if !res.Found {
		e.log.Infoln("RAM window not found in", len(candidates), "candidate regions")
		return e.connectResult(StatusNotFound), nil
	}

	window, err := e.proc.ReadMemory(res.Match, WindowSize)
	if err != nil {
		e.fault(ctx, err)
		return e.connectResult(StatusNotFound), fmt.Errorf("reading new binding: %w", err)
	}

	now := e.now()
	e.binding = &Binding{
		Base:         res.Match,
		Region:       res.Region,
		Process:      e.handle,
		DiscoveredAt: now,
	}
	e.monitor.Reset(now, window[e.validator.Signature.Frame.Offset])
	e.state = Bound
	e.everBound = true

	e.log.Infoln("RAM window bound at", res.Match.ToString(), "in", e.handle.String())

	return e.connectResult(StatusConnected), nil
}

// attach makes sure a live process is attached, locating it again if the
// previous one went away. Caller holds mu.
func (e *Engine) attach(ctx context.Context) error {
	if e.proc != nil && e.locator.Alive(ctx, e.handle) {
		return nil
	}
	if e.proc != nil {
		e.log.Warn("process ", e.handle.String(), " exited")
		e.binding = nil
		e.release()
		e.setLostState()
	}

	h, err := e.locator.Locate(ctx)
	if err != nil {
		e.setLostState()
		return fmt.Errorf("locating emulator: %w", err)
	}

	proc, err := e.locator.Attach(h)
	if err != nil {
		e.setLostState()
		return fmt.Errorf("attaching to %s: %w", h, err)
	}

	e.handle = h
	e.proc = proc
	e.log.Infoln("Attached to", h.String())
	return nil
}

func (e *Engine) setLostState() {
	if e.everBound {
		e.state = ProcessLost
	} else {
		e.state = Disconnected
	}
}

// release closes the attached process. Caller holds mu.
func (e *Engine) release() {
	if e.proc == nil {
		return
	}
	if err := e.proc.Close(); err != nil {
		e.log.Warn("closing ", e.handle.String(), ": ", err)
	}
	e.proc = nil
	e.handle = e.handle.Lost()
}

// fault drops the binding after a failed access or discovery. A dead
// process becomes ProcessLost, anything else Stale. Caller holds mu.
func (e *Engine) fault(ctx context.Context, err error) {
	e.binding = nil

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if e.everBound {
			e.state = Stale
		} else {
			e.state = Disconnected
		}
		return
	}

	if e.proc == nil || !e.locator.Alive(ctx, e.handle) {
		e.log.Warn("process ", e.handle.String(), " is gone: ", err)
		e.release()
		e.setLostState()
		return
	}

	e.log.Warn("binding dropped: ", err)
	if e.everBound {
		e.state = Stale
	} else {
		e.state = Disconnected
	}
}

// revalidate rechecks liveness and the bound window. Caller holds mu and
// the engine is Bound.
func (e *Engine) revalidate(ctx context.Context) error {
	if !e.locator.Alive(ctx, e.handle) {
		e.log.Warn("process ", e.handle.String(), " exited")
		e.binding = nil
		e.release()
		e.state = ProcessLost
		return fmt.Errorf("%w: %w", ErrNotConnected, ErrProcessLost)
	}

	window, err := e.proc.ReadMemory(e.binding.Base, WindowSize)
	if err != nil {
		e.fault(ctx, err)
		return fmt.Errorf("%w: revalidation read failed: %w", ErrNotConnected, err)
	}

	if err := e.monitor.Check(e.validator.Signature, window, e.now()); err != nil {
		e.log.Warn("binding at ", e.binding.Base.ToString(), " is stale: ", err)
		e.binding = nil
		e.state = Stale
		return fmt.Errorf("%w: %w", ErrNotConnected, err)
	}

	return nil
}

// ready gets the engine to a usable binding before an access. Caller holds
// mu.
func (e *Engine) ready(ctx context.Context) error {
	if e.binding == nil && e.auto && (e.state == Stale || e.state == ProcessLost) {
		e.log.Infoln("reconnecting from", e.state.String())
		if _, err := e.discover(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrNotConnected, err)
		}
	}

	if e.binding == nil {
		return fmt.Errorf("%w (state %s)", ErrNotConnected, e.state)
	}

	if e.monitor.Due(e.now()) {
		return e.revalidate(ctx)
	}
	return nil
}

func checkWindow(offset, length int) error {
	if offset < 0 || length < 0 || offset > WindowSize || length > WindowSize-offset {
		return fmt.Errorf("%w: offset 0x%X length %d exceeds 0x%X bytes", ErrOutOfWindow, offset, length, WindowSize)
	}
	return nil
}

// Read returns exactly length bytes starting at window offset.
func (e *Engine) Read(ctx context.Context, offset, length int) ([]byte, error) {
	if err := checkWindow(offset, length); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ready(ctx); err != nil {
		return nil, err
	}
	if length == 0 {
		return []byte{}, nil
	}

	data, err := e.proc.ReadMemory(e.binding.Address(offset), process.ProcessMemorySize(length))
	if err != nil {
		e.fault(ctx, err)
		return nil, accessError(err)
	}

	return data, nil
}

// Snapshot reads the whole window.
func (e *Engine) Snapshot(ctx context.Context) ([]byte, error) {
	return e.Read(ctx, 0, WindowSize)
}

// Write stores data at window offset with a single write. The bound region
// must still be writable.
func (e *Engine) Write(ctx context.Context, offset int, data []byte) error {
	if err := checkWindow(offset, len(data)); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ready(ctx); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	// permissions can change after binding
	if err := e.proc.UpdateMemoryMap(); err != nil {
		e.fault(ctx, err)
		return accessError(err)
	}
	mm, err := e.proc.GetMemoryMap()
	if err != nil {
		e.fault(ctx, err)
		return accessError(err)
	}

	addr := e.binding.Address(offset)
	var writable, mapped bool
	for _, item := range mm {
		if item.Contains(uint64(addr), uint64(len(data))) {
			mapped = true
			writable = item.IsWritable()
			break
		}
	}
	if !mapped {
		err := fmt.Errorf("%w: %s no longer mapped", process.ErrAddressNotMapped, addr.ToString())
		e.fault(ctx, err)
		return accessError(err)
	}
	if !writable {
		return fmt.Errorf("%w: %s", ErrReadOnlyViolation, addr.ToString())
	}

	if err := e.proc.WriteMemory(addr, data); err != nil {
		if errors.Is(err, process.ErrRegionNotWritable) {
			return fmt.Errorf("%w: %w", ErrReadOnlyViolation, err)
		}
		e.fault(ctx, err)
		return accessError(err)
	}

	return nil
}

func accessError(err error) error {
	if errors.Is(err, process.ErrProcessAccess) {
		return err
	}
	return fmt.Errorf("%w: %w", process.ErrProcessAccess, err)
}

// Close releases the attached process and forgets the binding.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.binding = nil
	e.release()
	e.state = Disconnected
	return nil
}
