package drmario

import (
	"fmt"
	"strings"

	"nesram/coloransi"
)

var border = "+" + strings.Repeat("-", Columns*2) + "+"

// RenderPlayfield draws player's playfield from a RAM snapshot as text,
// two characters per cell. Only the bytes of that player's playfield are
// read.
func RenderPlayfield(window []byte, player int) (string, error) {
	if player != 1 && player != 2 {
		return "", fmt.Errorf("player must be 1 or 2, got %d", player)
	}
	addr := PlayfieldAddr(player)
	if len(window) < addr+PlayfieldSize {
		return "", fmt.Errorf("RAM snapshot is %d bytes, want %d", len(window), RAMSize)
	}
	return Render(window[addr:addr+PlayfieldSize], player, false)
}

// Render draws a 128 byte playfield. With colour set each cell is wrapped in
// the terminal colour of its tile.
func Render(field []byte, player int, colour bool) (string, error) {
	if len(field) < PlayfieldSize {
		return "", fmt.Errorf("playfield is %d bytes, want %d", len(field), PlayfieldSize)
	}

	var sb strings.Builder

	fmt.Fprintf(&sb, "P%d\n", player)
	sb.WriteString(border)
	sb.WriteByte('\n')

	for row := 0; row < Rows; row++ {
		sb.WriteByte('|')
		for col := 0; col < Columns; col++ {
			tile := ClassifyTile(field[row*Columns+col])
			cell := tile.Cell()
			if colour {
				cell = paint(tile, cell)
			}
			sb.WriteString(cell)
		}
		sb.WriteString("|\n")
	}

	sb.WriteString(border)
	sb.WriteByte('\n')
	return sb.String(), nil
}

func paint(tile Tile, cell string) string {
	switch tile.Kind {
	case Virus, Linked, Loose:
		switch tile.Colour {
		case Yellow:
			return coloransi.Foreground(coloransi.BrightYellow, cell)
		case Red:
			return coloransi.Foreground(coloransi.BrightRed, cell)
		case Blue:
			return coloransi.Foreground(coloransi.BrightBlue, cell)
		}
	case Unknown:
		return coloransi.Foreground(coloransi.ColorOrange, cell)
	case Empty:
		return coloransi.Foreground(coloransi.BrightBlack, cell)
	}
	return cell
}
