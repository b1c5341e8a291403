package engine

import (
	"context"
	"slices"

	"nesram/process"
	"nesram/process/memory_map"
	"nesram/signature"
)

// FindReport is the operator view of one discovery run.
type FindReport struct {
	Process    process.Handle
	Regions    int // regions in the memory map
	Candidates int // regions that passed the filter
	Result     signature.Result
}

// FindRAM runs enumeration, filtering and validation without touching the
// binding.
func (e *Engine) FindRAM(ctx context.Context) (FindReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.attach(ctx); err != nil {
		return FindReport{}, err
	}

	seq, err := Enumerate(e.proc)
	if err != nil {
		e.checkAlive(ctx)
		return FindReport{}, err
	}
	all := slices.Collect(seq)
	candidates := e.filter.Collect(slices.Values(all))

	res, err := e.validator.Validate(ctx, e.proc, candidates)
	if err != nil {
		e.checkAlive(ctx)
		return FindReport{}, err
	}

	return FindReport{
		Process:    e.handle,
		Regions:    len(all),
		Candidates: len(candidates),
		Result:     res,
	}, nil
}

// Maps returns the raw memory map of the target.
func (e *Engine) Maps(ctx context.Context) ([]memory_map.MemoryMapItem, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.attach(ctx); err != nil {
		return nil, err
	}

	seq, err := Enumerate(e.proc)
	if err != nil {
		e.checkAlive(ctx)
		return nil, err
	}
	return slices.Collect(seq), nil
}

// Scan searches the target for a byte pattern.
func (e *Engine) Scan(ctx context.Context, aob process.AOB, limit int) ([]process.ProcessMemoryAddress, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.attach(ctx); err != nil {
		return nil, err
	}
	if err := e.proc.UpdateMemoryMap(); err != nil {
		e.checkAlive(ctx)
		return nil, err
	}
	return process.Scan(e.proc, aob, process.ProcessMemorySize(e.validator.MaxScanBytes), limit)
}

// WithProcess runs fn on the attached process under the engine lock, e.g.
// to save a dump. fn must not keep proc.
func (e *Engine) WithProcess(ctx context.Context, fn func(process.Process, process.Handle) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.attach(ctx); err != nil {
		return err
	}
	return fn(e.proc, e.handle)
}

// checkAlive handles a failed diagnostic: only a dead process affects the
// binding. Caller holds mu.
func (e *Engine) checkAlive(ctx context.Context) {
	if e.proc != nil && !e.locator.Alive(ctx, e.handle) {
		e.log.Warn("process ", e.handle.String(), " exited")
		e.binding = nil
		e.release()
		e.setLostState()
	}
}
