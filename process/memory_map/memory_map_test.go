package memory_map_test

import (
	"slices"
	"testing"

	"nesram/process/memory_map"
	"nesram/test"
)

const maps = `55d0c8a4e000-55d0c8a6f000 rw-p 00000000 00:00 0                          [heap]
7f2a10000000-7f2a10021000 rw-p 00000000 00:00 0 
7f2a14000000-7f2a14200000 r-xp 00000000 08:01 1234567                    /usr/lib/libc.so.6
7f2a18000000-7f2a18001000 rw-s 00000000 00:05 42                         /dev/shm/buffer
7ffd3c000000-7ffd3c021000 rw-p 00000000 00:00 0                          [stack]
7f2a1c000000-7f2a1c010000 rw-p 00000000 00:00 0                          [anon:emulator]
not a maps line
`

func TestParse(t *testing.T) {
	items := slices.Collect(memory_map.Parse([]byte(maps)))
	test.DemandEquality(t, len(items), 6)

	heap := items[0]
	test.ExpectEquality(t, heap.Address, uint64(0x55d0c8a4e000))
	test.ExpectEquality(t, heap.Size, uint(0x21000))
	test.ExpectEquality(t, heap.Path, "[heap]")
	test.ExpectSuccess(t, heap.IsReadable())
	test.ExpectSuccess(t, heap.IsWritable())
	test.ExpectSuccess(t, heap.IsPrivate())
	test.ExpectFailure(t, heap.IsExecutable())
	test.ExpectSuccess(t, heap.IsAnonymous())

	anon := items[1]
	test.ExpectEquality(t, anon.Path, "")
	test.ExpectSuccess(t, anon.IsAnonymous())

	libc := items[2]
	test.ExpectEquality(t, libc.Inode, uint64(1234567))
	test.ExpectFailure(t, libc.IsAnonymous())
	test.ExpectSuccess(t, libc.IsExecutable())

	shm := items[3]
	test.ExpectFailure(t, shm.IsPrivate())
	test.ExpectFailure(t, shm.IsAnonymous())

	test.ExpectFailure(t, items[4].IsAnonymous(), "stack")
	test.ExpectSuccess(t, items[5].IsAnonymous(), "named anonymous")
}

func TestParseStopsEarly(t *testing.T) {
	n := 0
	for range memory_map.Parse([]byte(maps)) {
		n++
		if n == 2 {
			break
		}
	}
	test.ExpectEquality(t, n, 2)
}

func TestParseLinePathWithSpaces(t *testing.T) {
	item, ok := memory_map.ParseLine("7f0000000000-7f0000001000 rw-p 00000000 08:01 77 /tmp/a b (deleted)")
	test.DemandSuccess(t, ok)
	test.ExpectEquality(t, item.Path, "/tmp/a b (deleted)")
}

func TestRegionLookup(t *testing.T) {
	items := slices.Collect(memory_map.Parse([]byte(maps)))
	slices.SortFunc(items, func(a, b memory_map.MemoryMapItem) int {
		if a.Address < b.Address {
			return -1
		}
		return 1
	})

	r := memory_map.IsValidAddress2(0x7f2a10000800, items)
	test.DemandSuccess(t, r != nil)
	test.ExpectEquality(t, r.Address, uint64(0x7f2a10000000))

	test.ExpectFailure(t, memory_map.IsValidAddress2(0x1000, items) != nil)
	test.ExpectSuccess(t, memory_map.IsValidAddress(0x55d0c8a4e010, items))
	test.ExpectSuccess(t, r.Contains(0x7f2a10000000, 0x800))
	test.ExpectFailure(t, r.Contains(0x7f2a10020c00, 0x800))
}
