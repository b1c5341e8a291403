package signature

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"nesram/process"
	"nesram/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

const (
	DefaultStride       = 16
	DefaultMaxScanBytes = 16 * 1024 * 1024
)

// TieBreak decides what happens when more than one window survives both
// passes.
type TieBreak string

const (
	TieReject  TieBreak = "reject"
	TieLowest  TieBreak = "lowest"
	TieHighest TieBreak = "highest"
)

func ParseTieBreak(s string) (TieBreak, error) {
	switch t := TieBreak(s); t {
	case TieReject, TieLowest, TieHighest:
		return t, nil
	case "":
		return TieReject, nil
	}
	return "", fmt.Errorf("unknown tie-break policy '%s'", s)
}

// Reader is the part of process.Process the validator needs.
type Reader interface {
	ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error)
}

// RegionReport is what the validator saw in one candidate region.
type RegionReport struct {
	Region        memory_map.MemoryMapItem
	Scanned       uint
	BestScore     int
	BestAt        process.ProcessMemoryAddress
	StaticMatches []process.ProcessMemoryAddress
	Advanced      []process.ProcessMemoryAddress
	ReadError     string
}

// Result of a discovery. Not finding anything is a result, not an error.
type Result struct {
	Found     bool
	Match     process.ProcessMemoryAddress
	Region    memory_map.MemoryMapItem
	Matches   []process.ProcessMemoryAddress // windows that survived both passes
	Ambiguous bool
	MaxScore  int
	Reports   []RegionReport
}

type hit struct {
	addr   process.ProcessMemoryAddress
	region int
}

// Validator runs the two-pass discovery over a candidate set.
type Validator struct {
	Signature    Signature
	Stride       int
	MaxScanBytes uint
	TieBreak     TieBreak

	// SkipTemporal accepts static matches without watching the frame
	// counter. Only for targets that never run, such as a saved dump.
	SkipTemporal bool

	// Sleep waits between the two frame counter reads.
	Sleep func(ctx context.Context, d time.Duration) error

	log *logger.Logger
}

func NewValidator(sig Signature) *Validator {
	return &Validator{
		Signature:    sig,
		Stride:       DefaultStride,
		MaxScanBytes: DefaultMaxScanBytes,
		TieBreak:     TieReject,
		Sleep:        SleepContext,
		log:          logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "validator")),
	}
}

// SleepContext sleeps for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Validate looks for exactly one live RAM window in candidates. The only
// errors are cancellation and the process becoming unavailable; a region
// that cannot be read is recorded in its report and skipped.
func (v *Validator) Validate(ctx context.Context, r Reader, candidates []memory_map.MemoryMapItem) (Result, error) {
	result := Result{
		MaxScore: len(v.Signature.Static),
		Reports:  make([]RegionReport, len(candidates)),
	}

	// pass 1: static
	var hits []hit
	for i, region := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		found, err := v.scanRegion(r, region, &result.Reports[i])
		if err != nil {
			return result, err
		}
		for _, addr := range found {
			hits = append(hits, hit{addr: addr, region: i})
		}
	}

	v.log.Debugln("static matches:", len(hits), "in", len(candidates), "regions")
	if len(hits) == 0 {
		return result, nil
	}

	// pass 1: temporal
	survivors, err := v.temporal(ctx, r, hits)
	if err != nil {
		return result, err
	}
	for _, h := range survivors {
		rep := &result.Reports[h.region]
		rep.Advanced = append(rep.Advanced, h.addr)
	}

	// pass 2, only needed to break a tie
	if len(survivors) > 1 {
		v.log.Debugln(len(survivors), "windows advanced, running second pass")
		survivors, err = v.recheck(ctx, r, survivors)
		if err != nil {
			return result, err
		}
	}

	for _, h := range survivors {
		result.Matches = append(result.Matches, h.addr)
	}

	var chosen *hit
	switch {
	case len(survivors) == 0:
		return result, nil
	case len(survivors) == 1:
		chosen = &survivors[0]
	default:
		result.Ambiguous = true
		switch v.TieBreak {
		case TieLowest:
			chosen = &survivors[0]
		case TieHighest:
			chosen = &survivors[len(survivors)-1]
		default:
			v.log.Warn("ambiguous match: ", len(survivors), " windows pass, refusing to pick one")
			return result, nil
		}
	}

	result.Found = true
	result.Match = chosen.addr
	result.Region = candidates[chosen.region]
	return result, nil
}

func (v *Validator) scanRegion(r Reader, region memory_map.MemoryMapItem, rep *RegionReport) ([]process.ProcessMemoryAddress, error) {
	rep.Region = region

	size := v.Signature.Size
	n := region.Size
	if v.MaxScanBytes > 0 && n > v.MaxScanBytes {
		n = v.MaxScanBytes
	}
	if int(n) < size {
		return nil, nil
	}

	data, err := r.ReadMemory(process.ProcessMemoryAddress(region.Address), process.ProcessMemorySize(n))
	if err != nil {
		if errors.Is(err, process.ErrProcessUnavailable) {
			return nil, err
		}
		rep.ReadError = err.Error()
		v.log.Debugln("skipping region", fmt.Sprintf("%x", region.Address), ":", err)
		return nil, nil
	}
	rep.Scanned = uint(len(data))

	stride := max(v.Stride, 1)

	var found []process.ProcessMemoryAddress
	for off := 0; off+size <= len(data); off += stride {
		score := v.Signature.Score(data[off : off+size])
		addr := process.ProcessMemoryAddress(region.Address + uint64(off))
		if score > rep.BestScore {
			rep.BestScore = score
			rep.BestAt = addr
		}
		if score == len(v.Signature.Static) {
			found = append(found, addr)
		}
	}

	rep.StaticMatches = found
	return found, nil
}

// temporal keeps the hits whose frame counter advances across one delay.
func (v *Validator) temporal(ctx context.Context, r Reader, hits []hit) ([]hit, error) {
	if v.SkipTemporal {
		return hits, nil
	}
	frame := v.Signature.Frame

	before := make([]int, len(hits))
	for i, h := range hits {
		before[i] = -1
		b, err := r.ReadMemory(h.addr+process.ProcessMemoryAddress(frame.Offset), 1)
		if err != nil {
			if errors.Is(err, process.ErrProcessUnavailable) {
				return nil, err
			}
			continue
		}
		before[i] = int(b[0])
	}

	if err := v.Sleep(ctx, frame.Delay); err != nil {
		return nil, err
	}

	var out []hit
	for i, h := range hits {
		if before[i] < 0 {
			continue
		}
		b, err := r.ReadMemory(h.addr+process.ProcessMemoryAddress(frame.Offset), 1)
		if err != nil {
			if errors.Is(err, process.ErrProcessUnavailable) {
				return nil, err
			}
			continue
		}
		if frame.Advanced(byte(before[i]), b[0]) {
			out = append(out, h)
		} else {
			v.log.Debugln("frame counter at", h.addr.ToString(), "did not advance:", before[i], "->", b[0])
		}
	}

	slices.SortFunc(out, func(a, b hit) int {
		switch {
		case a.addr < b.addr:
			return -1
		case a.addr > b.addr:
			return 1
		}
		return 0
	})
	return out, nil
}

// recheck repeats the static and temporal checks on the survivors of the
// first pass.
func (v *Validator) recheck(ctx context.Context, r Reader, hits []hit) ([]hit, error) {
	var still []hit
	for _, h := range hits {
		window, err := r.ReadMemory(h.addr, process.ProcessMemorySize(v.Signature.Size))
		if err != nil {
			if errors.Is(err, process.ErrProcessUnavailable) {
				return nil, err
			}
			continue
		}
		if v.Signature.Matches(window) {
			still = append(still, h)
		}
	}
	if len(still) == 0 {
		return nil, nil
	}
	return v.temporal(ctx, r, still)
}
