// Package drmario knows the layout of Dr. Mario's work RAM: where the
// game keeps its state, how playfield tiles are encoded, and what a live
// copy of that RAM looks like from outside the emulator.
package drmario

import (
	"time"

	"nesram/signature"
)

// RAMSize is the size of the NES work RAM.
const RAMSize = 0x800

const (
	AddrFrameCounter = 0x0043
	AddrGameMode     = 0x0046
	AddrOrientation  = 0x00A5
	AddrPlayerBlock1 = 0x0300
	AddrPlayerBlock2 = 0x0380
	AddrPlayfield1   = 0x0400
	AddrPlayfield2   = 0x0500
	AddrNumPlayers   = 0x0727
	AddrAntiPiracy   = 0x0740
)

// Offsets inside a player block.
const (
	OffLeftColour  = 0x01
	OffRightColour = 0x02
	OffX           = 0x05
	OffY           = 0x06
	OffSpeed       = 0x0B
	OffDropTimer   = 0x12
	OffLevel       = 0x16
	OffVirusCount  = 0x24
)

const (
	Columns       = 8
	Rows          = 16
	PlayfieldSize = Columns * Rows
)

// PlayfieldAddr returns the RAM address of player's playfield (1 or 2).
func PlayfieldAddr(player int) int {
	if player == 2 {
		return AddrPlayfield2
	}
	return AddrPlayfield1
}

// PlayerBlockAddr returns the RAM address of player's block (1 or 2).
func PlayerBlockAddr(player int) int {
	if player == 2 {
		return AddrPlayerBlock2
	}
	return AddrPlayerBlock1
}

// Defaults for the frame counter check. The game increments $0043 once
// per frame, so 50ms is about three frames.
const (
	DefaultFrameDelay    = 50 * time.Millisecond
	DefaultMaxFrameDelta = 128
)

// Signature returns the checks that identify a live copy of Dr. Mario's RAM.
// Cheap single byte checks go first so that most windows are rejected
// after one comparison.
func Signature() signature.Signature {
	return signature.Signature{
		Name: "drmario",
		Size: RAMSize,
		Static: []signature.Check{
			signature.ByteEquals{Label: "anti-piracy flag", Offset: AddrAntiPiracy, Value: 0},
			signature.ByteAtMost{Label: "P1 left colour", Offset: AddrPlayerBlock1 + OffLeftColour, Max: 2},
			signature.ByteAtMost{Label: "P1 right colour", Offset: AddrPlayerBlock1 + OffRightColour, Max: 2},
			signature.ByteAtMost{Label: "P2 left colour", Offset: AddrPlayerBlock2 + OffLeftColour, Max: 2},
			signature.ByteAtMost{Label: "P2 right colour", Offset: AddrPlayerBlock2 + OffRightColour, Max: 2},
			signature.TilesIn{Label: "P1 playfield", Offset: AddrPlayfield1, Length: PlayfieldSize, Set: ValidTiles()},
			signature.TilesIn{Label: "P2 playfield", Offset: AddrPlayfield2, Length: PlayfieldSize, Set: ValidTiles()},
		},
		Frame: signature.FrameAdvance{
			Offset:   AddrFrameCounter,
			Delay:    DefaultFrameDelay,
			MaxDelta: DefaultMaxFrameDelta,
		},
	}
}
