package signature

import (
	"context"
	"testing"
	"time"

	"nesram/process"
	"nesram/process/memory_map"
	"nesram/process_blob"
	"nesram/test"
)

const (
	testSize     = 0x800
	testFlag     = 0x740
	testField    = 0x400
	testColour   = 0x301
	testFrame    = 0x43
	regionBase   = 0x7f0000000000
	regionLength = 0x4000
)

func testSignature() Signature {
	tiles := NewTileSet(0xFF).AddRange(0xD0, 0xD2)
	return Signature{
		Name: "test",
		Size: testSize,
		Static: []Check{
			ByteEquals{Label: "flag", Offset: testFlag, Value: 0},
			ByteAtMost{Label: "colour", Offset: testColour, Max: 2},
			TilesIn{Label: "field", Offset: testField, Length: 128, Set: tiles},
		},
		Frame: FrameAdvance{Offset: testFrame, Delay: time.Millisecond, MaxDelta: 128},
	}
}

// newImage maps one rw region and plants a matching window at each offset.
// Windows listed in ticking get a live frame counter.
func newImage(t *testing.T, windows []uint64, ticking []uint64) *process_blob.ProcessImage {
	t.Helper()
	img := process_blob.NewProcessImage(1234, "mednafen", 1)
	img.AddRegion(memory_map.MemoryMapItem{Address: regionBase, Size: regionLength, Perms: "rw-p"}, nil)

	field := make([]byte, 128)
	for i := range field {
		field[i] = 0xFF
	}
	field[17] = 0xD1

	for _, off := range windows {
		test.DemandSuccess(t, img.Poke(process.ProcessMemoryAddress(regionBase+off+testField), field))
	}
	for _, off := range ticking {
		img.AddTicker(process.ProcessMemoryAddress(regionBase + off + testFrame))
	}
	return img
}

func newValidator(img *process_blob.ProcessImage) *Validator {
	v := NewValidator(testSignature())
	v.Sleep = func(ctx context.Context, d time.Duration) error {
		img.Tick()
		return ctx.Err()
	}
	return v
}

func candidates(t *testing.T, img *process_blob.ProcessImage) []memory_map.MemoryMapItem {
	t.Helper()
	mm, err := img.GetMemoryMap()
	test.DemandSuccess(t, err)
	return mm
}

func TestChecks(t *testing.T) {
	sig := testSignature()
	window := make([]byte, testSize)
	test.ExpectEquality(t, sig.Score(window), 2)
	test.ExpectEquality(t, sig.FirstFailure(window), sig.Static[2].Name())

	for i := testField; i < testField+128; i++ {
		window[i] = 0xFF
	}
	test.ExpectSuccess(t, sig.Matches(window))
	test.ExpectEquality(t, sig.FirstFailure(window), "")

	window[testColour] = 3
	test.ExpectEquality(t, sig.Score(window), 1)
	window[testFlag] = 1
	test.ExpectEquality(t, sig.Score(window), 0)

	test.ExpectEquality(t, sig.Score(window[:16]), 0)
	test.ExpectFailure(t, sig.Matches(window[:16]))
}

func TestFrameAdvanced(t *testing.T) {
	f := FrameAdvance{MaxDelta: 128}
	test.ExpectSuccess(t, f.Advanced(10, 11))
	test.ExpectSuccess(t, f.Advanced(255, 0))
	test.ExpectSuccess(t, f.Advanced(200, 72))
	test.ExpectFailure(t, f.Advanced(10, 10))
	test.ExpectFailure(t, f.Advanced(10, 200))
}

func TestSignatureValidate(t *testing.T) {
	test.ExpectSuccess(t, testSignature().Validate())

	sig := testSignature()
	sig.Frame.Offset = testSize
	test.ExpectFailure(t, sig.Validate())

	sig = testSignature()
	sig.Frame.MaxDelta = 0
	test.ExpectFailure(t, sig.Validate())
}

func TestParseTieBreak(t *testing.T) {
	tb, err := ParseTieBreak("")
	test.ExpectSuccess(t, err)
	test.ExpectEquality(t, tb, TieReject)

	tb, err = ParseTieBreak("highest")
	test.ExpectSuccess(t, err)
	test.ExpectEquality(t, tb, TieHighest)

	_, err = ParseTieBreak("random")
	test.ExpectFailure(t, err)
}

func TestValidateSingle(t *testing.T) {
	img := newImage(t, []uint64{0x1000}, []uint64{0x1000})
	v := newValidator(img)

	res, err := v.Validate(context.Background(), img, candidates(t, img))
	test.DemandSuccess(t, err)
	test.ExpectSuccess(t, res.Found)
	test.ExpectEquality(t, res.Match, process.ProcessMemoryAddress(regionBase+0x1000))
	test.ExpectEquality(t, res.Region.Address, uint64(regionBase))
	test.ExpectEquality(t, res.MaxScore, 3)
	test.DemandEquality(t, len(res.Reports), 1)
	test.ExpectEquality(t, res.Reports[0].BestScore, 3)
	test.ExpectEquality(t, len(res.Reports[0].StaticMatches), 1)
}

func TestValidateFrozenDecoy(t *testing.T) {
	// both windows look right, only one is running
	img := newImage(t, []uint64{0x0, 0x2000}, []uint64{0x2000})
	v := newValidator(img)

	res, err := v.Validate(context.Background(), img, candidates(t, img))
	test.DemandSuccess(t, err)
	test.ExpectSuccess(t, res.Found)
	test.ExpectEquality(t, res.Match, process.ProcessMemoryAddress(regionBase+0x2000))
	test.ExpectEquality(t, len(res.Reports[0].StaticMatches), 2)
	test.ExpectEquality(t, len(res.Reports[0].Advanced), 1)
}

func TestValidateAllFrozen(t *testing.T) {
	img := newImage(t, []uint64{0x1000}, nil)
	v := newValidator(img)

	res, err := v.Validate(context.Background(), img, candidates(t, img))
	test.DemandSuccess(t, err)
	test.ExpectFailure(t, res.Found)
	test.ExpectEquality(t, len(res.Matches), 0)
}

func TestValidateTieBreak(t *testing.T) {
	for _, tc := range []struct {
		policy TieBreak
		found  bool
		match  uint64
	}{
		{TieReject, false, 0},
		{TieLowest, true, regionBase},
		{TieHighest, true, regionBase + 0x2000},
	} {
		img := newImage(t, []uint64{0x0, 0x2000}, []uint64{0x0, 0x2000})
		v := newValidator(img)
		v.TieBreak = tc.policy

		res, err := v.Validate(context.Background(), img, candidates(t, img))
		test.DemandSuccess(t, err, tc.policy)
		test.ExpectSuccess(t, res.Ambiguous, tc.policy)
		test.ExpectEquality(t, len(res.Matches), 2, tc.policy)
		test.ExpectEquality(t, res.Found, tc.found, tc.policy)
		if tc.found {
			test.ExpectEquality(t, res.Match, process.ProcessMemoryAddress(tc.match), tc.policy)
		}
	}
}

func TestValidateSecondPassDropsUnstable(t *testing.T) {
	img := newImage(t, []uint64{0x0, 0x2000}, []uint64{0x0, 0x2000})
	v := newValidator(img)

	// the first window stops matching after the first delay
	calls := 0
	v.Sleep = func(ctx context.Context, d time.Duration) error {
		calls++
		img.Tick()
		if calls == 1 {
			test.DemandSuccess(t, img.Poke(regionBase+testFlag, []byte{1}))
		}
		return nil
	}

	res, err := v.Validate(context.Background(), img, candidates(t, img))
	test.DemandSuccess(t, err)
	test.ExpectSuccess(t, res.Found)
	test.ExpectEquality(t, res.Match, process.ProcessMemoryAddress(regionBase+0x2000))
	test.ExpectEquality(t, calls, 2)
}

func TestValidateNothing(t *testing.T) {
	img := newImage(t, nil, nil)
	v := newValidator(img)

	res, err := v.Validate(context.Background(), img, candidates(t, img))
	test.ExpectSuccess(t, err)
	test.ExpectFailure(t, res.Found)

	res, err = v.Validate(context.Background(), img, nil)
	test.ExpectSuccess(t, err)
	test.ExpectFailure(t, res.Found)
}

func TestValidateMaxScanBytes(t *testing.T) {
	img := newImage(t, []uint64{0x3000}, []uint64{0x3000})
	v := newValidator(img)
	v.MaxScanBytes = 0x2000

	res, err := v.Validate(context.Background(), img, candidates(t, img))
	test.DemandSuccess(t, err)
	test.ExpectFailure(t, res.Found)
	test.ExpectEquality(t, res.Reports[0].Scanned, uint(0x2000))
}

func TestValidateUnreadableRegion(t *testing.T) {
	img := newImage(t, []uint64{0x1000}, []uint64{0x1000})
	v := newValidator(img)

	ghost := memory_map.MemoryMapItem{Address: 0x10000, Size: 0x1000, Perms: "rw-p"}
	res, err := v.Validate(context.Background(), img, append([]memory_map.MemoryMapItem{ghost}, candidates(t, img)...))
	test.DemandSuccess(t, err)
	test.ExpectSuccess(t, res.Found)
	test.ExpectInequality(t, res.Reports[0].ReadError, "")
}

func TestValidateProcessGone(t *testing.T) {
	img := newImage(t, []uint64{0x1000}, []uint64{0x1000})
	v := newValidator(img)
	cands := candidates(t, img)
	img.Kill()

	_, err := v.Validate(context.Background(), img, cands)
	test.ExpectErrorIs(t, err, process.ErrProcessUnavailable)
}

func TestValidateCancelled(t *testing.T) {
	img := newImage(t, []uint64{0x1000}, []uint64{0x1000})
	v := NewValidator(testSignature())
	v.Signature.Frame.Delay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := v.Validate(ctx, img, candidates(t, img))
	test.ExpectErrorIs(t, err, context.Canceled)
}

func TestValidateSkipTemporal(t *testing.T) {
	img := newImage(t, []uint64{0x1000}, nil)
	v := NewValidator(testSignature())
	v.SkipTemporal = true
	v.Sleep = func(ctx context.Context, d time.Duration) error {
		t.Error("frame counter watched with SkipTemporal set")
		return nil
	}

	res, err := v.Validate(context.Background(), img, candidates(t, img))
	test.DemandSuccess(t, err)
	test.ExpectSuccess(t, res.Found)
	test.ExpectEquality(t, res.Match, process.ProcessMemoryAddress(regionBase+0x1000))
}
