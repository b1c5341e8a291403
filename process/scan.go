package process

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// ParseAOB parses a pattern such as "d0 ?? d1,d2" into an AOB. "??" and "?"
// are wildcards.
func ParseAOB(s string) (AOB, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' '
	})

	var aob AOB
	for _, part := range parts {
		if part == "??" || part == "?" {
			aob.Pattern = append(aob.Pattern, 0)
			aob.Mask = append(aob.Mask, 0)
			continue
		}

		val, err := strconv.ParseUint(strings.TrimPrefix(part, "0x"), 16, 8)
		if err != nil {
			return AOB{}, fmt.Errorf("invalid hex byte: %s", part)
		}
		aob.Pattern = append(aob.Pattern, byte(val))
		aob.Mask = append(aob.Mask, 0xFF)
	}

	if len(aob.Pattern) == 0 {
		return AOB{}, fmt.Errorf("empty pattern")
	}

	return aob, nil
}

// Scan searches every readable region of proc for aob and returns the
// matching addresses, at most limit of them (0 for no limit). Regions larger
// than maxRegion bytes are skipped.
func Scan(proc Process, aob AOB, maxRegion ProcessMemorySize, limit int) ([]ProcessMemoryAddress, error) {
	if len(aob.Pattern) == 0 {
		return nil, fmt.Errorf("empty pattern")
	}

	// If no mask is provided, create a mask of all 0xFF (exact match)
	if len(aob.Mask) == 0 {
		aob.Mask = bytes.Repeat([]byte{0xFF}, len(aob.Pattern))
	} else if len(aob.Mask) != len(aob.Pattern) {
		return nil, fmt.Errorf("mask length (%d) doesn't match pattern length (%d)",
			len(aob.Mask), len(aob.Pattern))
	}

	memMap, err := proc.GetMemoryMap()
	if err != nil {
		return nil, fmt.Errorf("failed to get memory map: %w", err)
	}

	var results []ProcessMemoryAddress
	for _, region := range memMap {
		if !region.IsReadable() {
			continue
		}
		if maxRegion > 0 && ProcessMemorySize(region.Size) > maxRegion {
			continue
		}

		data, err := proc.ReadMemory(ProcessMemoryAddress(region.Address), ProcessMemorySize(region.Size))
		if err != nil {
			// unreadable guard pages and the like
			continue
		}

		for _, offset := range FindPatternMatches(data, aob.Pattern, aob.Mask) {
			results = append(results, ProcessMemoryAddress(region.Address+uint64(offset)))
			if limit > 0 && len(results) >= limit {
				return results, nil
			}
		}
	}

	return results, nil
}

// FindPatternMatches finds all occurrences of the pattern in the data
// Returns the offsets where matches were found
func FindPatternMatches(data, pattern, mask []byte) []uint {
	if len(pattern) == 0 || len(data) < len(pattern) {
		return nil
	}

	var matches []uint
	for i := 0; i <= len(data)-len(pattern); i++ {
		matched := true

		for j := 0; j < len(pattern); j++ {
			// mask byte 0 is a wildcard
			if mask[j] == 0 {
				continue
			}
			if data[i+j]&mask[j] != pattern[j]&mask[j] {
				matched = false
				break
			}
		}

		if matched {
			matches = append(matches, uint(i))
		}
	}

	return matches
}
