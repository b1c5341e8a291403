// Package signature recognises an emulator's RAM array inside a larger
// memory region: static byte checks over a candidate window, a frame counter
// that must advance between two reads, and a second pass to rule out
// windows that only matched by accident.
package signature

import "fmt"

// Check is one static predicate over a candidate window.
type Check interface {
	Name() string
	Match(window []byte) bool
}

// ByteEquals requires window[Offset] == Value.
type ByteEquals struct {
	Label  string
	Offset int
	Value  byte
}

func (c ByteEquals) Name() string {
	return fmt.Sprintf("%s ($%04X == %02X)", c.Label, c.Offset, c.Value)
}

func (c ByteEquals) Match(window []byte) bool {
	return c.Offset < len(window) && window[c.Offset] == c.Value
}

// ByteAtMost requires window[Offset] <= Max.
type ByteAtMost struct {
	Label  string
	Offset int
	Max    byte
}

func (c ByteAtMost) Name() string {
	return fmt.Sprintf("%s ($%04X <= %d)", c.Label, c.Offset, c.Max)
}

func (c ByteAtMost) Match(window []byte) bool {
	return c.Offset < len(window) && window[c.Offset] <= c.Max
}

// TileSet is a set of byte values.
type TileSet [256]bool

// NewTileSet builds a set from the given values.
func NewTileSet(values ...byte) *TileSet {
	var s TileSet
	for _, v := range values {
		s[v] = true
	}
	return &s
}

// AddRange adds every value in [lo, hi].
func (s *TileSet) AddRange(lo, hi byte) *TileSet {
	for v := int(lo); v <= int(hi); v++ {
		s[v] = true
	}
	return s
}

func (s *TileSet) Contains(v byte) bool {
	return s[v]
}

// TilesIn requires every byte of window[Offset:Offset+Length] to be in Set.
type TilesIn struct {
	Label  string
	Offset int
	Length int
	Set    *TileSet
}

func (c TilesIn) Name() string {
	return fmt.Sprintf("%s ($%04X-$%04X)", c.Label, c.Offset, c.Offset+c.Length-1)
}

func (c TilesIn) Match(window []byte) bool {
	if c.Offset+c.Length > len(window) {
		return false
	}
	for _, v := range window[c.Offset : c.Offset+c.Length] {
		if !c.Set[v] {
			return false
		}
	}
	return true
}
