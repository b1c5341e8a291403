package drmario

import "nesram/signature"

// Colour of a capsule half or virus.
type Colour uint8

const (
	Yellow Colour = iota
	Red
	Blue
)

func (c Colour) String() string {
	switch c {
	case Yellow:
		return "yellow"
	case Red:
		return "red"
	case Blue:
		return "blue"
	}
	return "unknown"
}

// Letter is the one character form used by the renderer.
func (c Colour) Letter() byte {
	switch c {
	case Yellow:
		return 'Y'
	case Red:
		return 'R'
	case Blue:
		return 'B'
	}
	return '?'
}

// Kind of playfield tile.
type Kind uint8

const (
	Empty Kind = iota
	Virus
	Linked // half of a capsule still joined to its other half
	Loose  // half whose partner has been cleared
	Unknown
)

func (k Kind) String() string {
	switch k {
	case Empty:
		return "empty"
	case Virus:
		return "virus"
	case Linked:
		return "linked"
	case Loose:
		return "loose"
	}
	return "unknown"
}

// Link says which half of a capsule a linked tile is.
type Link uint8

const (
	NoLink Link = iota
	Top
	Bottom
	Left
	Right
)

func (l Link) String() string {
	switch l {
	case Top:
		return "top"
	case Bottom:
		return "bottom"
	case Left:
		return "left"
	case Right:
		return "right"
	}
	return ""
}

const (
	TileEmpty     = 0xFF
	TileVirusBase = 0xD0
	TileLooseBase = 0x80
)

// Tile is a decoded playfield byte.
type Tile struct {
	Value  byte
	Kind   Kind
	Colour Colour
	Link   Link
}

// ClassifyTile decodes one playfield byte. Every value decodes; bytes the
// game never writes come back as Unknown.
func ClassifyTile(b byte) Tile {
	t := Tile{Value: b, Kind: Unknown}
	colour := b & 0x0F

	switch hi := b >> 4; {
	case b == TileEmpty:
		t.Kind = Empty
	case hi == 0xD && colour <= 2:
		t.Kind = Virus
		t.Colour = Colour(colour)
	case hi >= 0x4 && hi <= 0x7 && colour <= 2:
		t.Kind = Linked
		t.Colour = Colour(colour)
		t.Link = Link(hi - 0x4 + 1)
	case hi == 0x8 && colour <= 2:
		t.Kind = Loose
		t.Colour = Colour(colour)
	}

	return t
}

// Name is a short human readable form, e.g. "red virus" or "blue linked top".
func (t Tile) Name() string {
	switch t.Kind {
	case Empty, Unknown:
		return t.Kind.String()
	case Linked:
		return t.Colour.String() + " linked " + t.Link.String()
	}
	return t.Colour.String() + " " + t.Kind.String()
}

// Cell renders the tile as two characters.
func (t Tile) Cell() string {
	switch t.Kind {
	case Empty:
		return ". "
	case Virus:
		return string([]byte{t.Colour.Letter(), '*'})
	case Linked:
		return string([]byte{t.Colour.Letter(), '='})
	case Loose:
		return string([]byte{t.Colour.Letter(), 'o'})
	}
	return "??"
}

// ValidTiles is the set of bytes the game writes into a playfield.
func ValidTiles() *signature.TileSet {
	s := signature.NewTileSet(TileEmpty)
	for c := byte(0); c <= 2; c++ {
		s[TileVirusBase+c] = true
		s[TileLooseBase+c] = true
		for hi := byte(0x40); hi <= 0x70; hi += 0x10 {
			s[hi+c] = true
		}
	}
	return s
}
