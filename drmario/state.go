package drmario

import (
	"fmt"

	"nesram/pod"
)

// PlayerRAM is a player block. Offsets are relative to the block.
type PlayerRAM struct {
	LeftColour  Colour `pod:"at=0x01"`
	RightColour Colour `pod:"at=0x02"`
	X           uint8  `pod:"at=0x05"`
	Y           uint8  `pod:"at=0x06"`
	Speed       uint8  `pod:"at=0x0B"`
	DropTimer   uint8  `pod:"at=0x12"`
	Level       uint8  `pod:"at=0x16"`
	VirusCount  uint8  `pod:"at=0x24"`
}

// RAM is the part of work RAM the decoder looks at.
type RAM struct {
	Frame       uint8                `pod:"at=0x0043"`
	GameMode    uint8                `pod:"at=0x0046"`
	Orientation uint8                `pod:"at=0x00A5"`
	P1          PlayerRAM            `pod:"at=0x0300"`
	P2          PlayerRAM            `pod:"at=0x0380"`
	Playfield1  [PlayfieldSize]uint8 `pod:"at=0x0400"`
	Playfield2  [PlayfieldSize]uint8 `pod:"at=0x0500"`
	NumPlayers  uint8                `pod:"at=0x0727"`
	AntiPiracy  uint8                `pod:"at=0x0740"`
}

// DecodeRAM decodes the raw fields of a RAM snapshot.
func DecodeRAM(window []byte) (RAM, error) {
	var ram RAM
	if len(window) < RAMSize {
		return ram, fmt.Errorf("RAM snapshot is %d bytes, want %d", len(window), RAMSize)
	}
	if err := pod.Decode(window, 0, &ram); err != nil {
		return ram, err
	}
	return ram, nil
}

// Position is a playfield cell, column 0..7 left to right, row 0..15 top
// to bottom.
type Position struct {
	Col int `json:"col"`
	Row int `json:"row"`
}

type TileInfo struct {
	Position
	Value  byte   `json:"value"`
	Kind   string `json:"kind"`
	Colour string `json:"colour,omitempty"`
	Link   string `json:"link,omitempty"`
}

type CapsuleColours struct {
	Left      uint8  `json:"left"`
	LeftName  string `json:"left_name"`
	Right     uint8  `json:"right"`
	RightName string `json:"right_name"`
}

type PlayerState struct {
	Player     int                  `json:"player"`
	Capsule    CapsuleColours       `json:"capsule"`
	X          uint8                `json:"x"`
	Y          uint8                `json:"y"`
	Speed      uint8                `json:"speed"`
	DropTimer  uint8                `json:"drop_timer"`
	Level      uint8                `json:"level"`
	VirusCount uint8                `json:"virus_count"`
	Tiles      [Rows][Columns]uint8 `json:"tiles"`
	Playfield  [][]string           `json:"playfield"` // tile names, same shape as Tiles
	Viruses    []TileInfo           `json:"viruses"`
	Capsules   []TileInfo           `json:"capsules"`
	Unknown    []TileInfo           `json:"unknown,omitempty"`
}

type GameState struct {
	Frame       uint8          `json:"frame"`
	GameMode    uint8          `json:"game_mode"`
	Orientation uint8          `json:"orientation"`
	NumPlayers  uint8          `json:"num_players"`
	AntiPiracy  uint8          `json:"anti_piracy"`
	Players     [2]PlayerState `json:"players"`
}

// Decode turns a RAM snapshot into a GameState. It never fails on content:
// out of range colours are named "unknown" and unrecognised tiles are
// listed as such.
func Decode(window []byte) (GameState, error) {
	ram, err := DecodeRAM(window)
	if err != nil {
		return GameState{}, err
	}

	return GameState{
		Frame:       ram.Frame,
		GameMode:    ram.GameMode,
		Orientation: ram.Orientation,
		NumPlayers:  ram.NumPlayers,
		AntiPiracy:  ram.AntiPiracy,
		Players: [2]PlayerState{
			playerState(1, ram.P1, ram.Playfield1),
			playerState(2, ram.P2, ram.Playfield2),
		},
	}, nil
}

func playerState(player int, p PlayerRAM, field [PlayfieldSize]uint8) PlayerState {
	ps := PlayerState{
		Player: player,
		Capsule: CapsuleColours{
			Left:      uint8(p.LeftColour),
			LeftName:  p.LeftColour.String(),
			Right:     uint8(p.RightColour),
			RightName: p.RightColour.String(),
		},
		X:          p.X,
		Y:          p.Y,
		Speed:      p.Speed,
		DropTimer:  p.DropTimer,
		Level:      p.Level,
		VirusCount: p.VirusCount,
		Playfield:  make([][]string, Rows),
	}

	for row := 0; row < Rows; row++ {
		ps.Playfield[row] = make([]string, Columns)
		for col := 0; col < Columns; col++ {
			tile := ClassifyTile(field[row*Columns+col])
			ps.Tiles[row][col] = tile.Value
			ps.Playfield[row][col] = tile.Name()

			info := TileInfo{
				Position: Position{Col: col, Row: row},
				Value:    tile.Value,
				Kind:     tile.Kind.String(),
			}
			switch tile.Kind {
			case Virus:
				info.Colour = tile.Colour.String()
				ps.Viruses = append(ps.Viruses, info)
			case Linked, Loose:
				info.Colour = tile.Colour.String()
				info.Link = tile.Link.String()
				ps.Capsules = append(ps.Capsules, info)
			case Unknown:
				ps.Unknown = append(ps.Unknown, info)
			}
		}
	}

	return ps
}
