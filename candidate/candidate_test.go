package candidate

import (
	"slices"
	"testing"

	"nesram/process/memory_map"
	"nesram/test"
)

const maps = `55d4c8a00000-55d4c8a21000 r--p 00000000 08:01 1312 /usr/games/mednafen
55d4c8a21000-55d4c8c00000 r-xp 00021000 08:01 1312 /usr/games/mednafen
55d4c8e00000-55d4c8e40000 rw-p 00200000 08:01 1312 /usr/games/mednafen
55d4c9000000-55d4c9400000 rw-p 00000000 00:00 0 [heap]
7f1a20000000-7f1a20021000 rw-p 00000000 00:00 0
7f1a30000000-7f1a30000400 rw-p 00000000 00:00 0
7f1a40000000-7f1a40100000 rw-s 00000000 00:05 77 /SYSV00000000 (deleted)
7f1a50000000-7f1a50100000 r--p 00000000 00:00 0
7f1a60000000-7f1a60100000 rw-p 00000000 00:00 0 [anon:emu]
7ffd1c000000-7ffd1c021000 rw-p 00000000 00:00 0 [stack]
7ffd1c100000-7ffd1c102000 r-xp 00000000 00:00 0 [vdso]
`

func addresses(items []memory_map.MemoryMapItem) []uint64 {
	var out []uint64
	for _, item := range items {
		out = append(out, item.Address)
	}
	return out
}

func TestDefaultFilter(t *testing.T) {
	got := addresses(Default().Collect(memory_map.Parse([]byte(maps))))
	want := []uint64{0x55d4c9000000, 0x7f1a20000000, 0x7f1a60000000}
	test.ExpectSuccess(t, slices.Equal(got, want), got)
}

func TestMaxSize(t *testing.T) {
	f := Default()
	f.MaxSize = 0x100000
	got := addresses(f.Collect(memory_map.Parse([]byte(maps))))
	want := []uint64{0x7f1a20000000, 0x7f1a60000000}
	test.ExpectSuccess(t, slices.Equal(got, want), got)
}

func TestReasons(t *testing.T) {
	f := Default()
	for item := range memory_map.Parse([]byte(maps)) {
		reason := f.Reason(item)
		switch item.Address {
		case 0x55d4c8e00000:
			test.ExpectEquality(t, reason, "not anonymous")
		case 0x7f1a30000000:
			test.ExpectEquality(t, reason, "too small")
		case 0x7f1a40000000:
			test.ExpectEquality(t, reason, "shared")
		case 0x7f1a50000000:
			test.ExpectEquality(t, reason, "not rw")
		case 0x7ffd1c000000:
			test.ExpectEquality(t, reason, "not anonymous")
		}
	}
}

func TestEmpty(t *testing.T) {
	got := Default().Collect(memory_map.Parse(nil))
	test.ExpectEquality(t, len(got), 0)
}
