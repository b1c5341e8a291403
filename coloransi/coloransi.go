// Package coloransi wraps text in ANSI color sequences for terminal output
// (hex dumps, tables, playfields). Log prefixes use gologger's own package.
package coloransi

import (
	"fmt"
	"os"
	"strings"
)

// ColorCode represents ANSI color codes and RGB colors as a 32-bit integer.
// The lower 8 bits represent ANSI color codes, and the upper 24 bits represent RGB values.
type ColorCode uint32

// ANSI color codes
const (
	Black   ColorCode = 30
	Red     ColorCode = 31
	Green   ColorCode = 32
	Yellow  ColorCode = 33
	Blue    ColorCode = 34
	Magenta ColorCode = 35
	Cyan    ColorCode = 36
	White   ColorCode = 37

	// For bright colors, add 60
	BrightBlack  ColorCode = Black + 60
	BrightRed    ColorCode = Red + 60
	BrightGreen  ColorCode = Green + 60
	BrightYellow ColorCode = Yellow + 60
	BrightBlue   ColorCode = Blue + 60
	BrightWhite  ColorCode = White + 60

	// Default restores the terminal's own color
	Default ColorCode = 39

	BackgroundOffset ColorCode = 10

	RGBMask ColorCode = 0xFFFFFF00
)

func CreateRGB(r, g, b uint8) ColorCode {
	return ColorCode(uint32(r)<<24 | uint32(g)<<16 | uint32(b)<<8)
}

var (
	ColorOrange    = CreateRGB(255, 140, 0)
	ColorPurple    = CreateRGB(128, 0, 128)
	ColorTeal      = CreateRGB(0, 128, 128)
	ColorLimeGreen = CreateRGB(50, 205, 50)
)

// Enabled turns escape sequences on or off globally. It starts off when
// NO_COLOR is set.
var Enabled = os.Getenv("NO_COLOR") == ""

// IsRGB checks if the ColorCode represents an RGB color
func (c ColorCode) IsRGB() bool {
	return c&RGBMask != 0
}

func join(v []any) string {
	args := make([]string, len(v))
	for i, arg := range v {
		args[i] = fmt.Sprint(arg)
	}
	return strings.Join(args, " ")
}

// Color formats the given text with the specified foreground and background colors.
func Color(fg, bg ColorCode, v ...any) string {
	if !Enabled {
		return join(v)
	}
	return OneForeground(fg) + OneBackground(bg) + join(v) + Reset()
}

// Foreground formats the given text with the specified foreground color.
func Foreground(fg ColorCode, v ...any) string {
	if !Enabled {
		return join(v)
	}
	return OneForeground(fg) + join(v) + Reset()
}

// OneForeground returns the ANSI escape sequence for the given color code.
func OneForeground(code ColorCode) string {
	if code.IsRGB() {
		return fmt.Sprintf("\033[38;2;%d;%d;%dm", (code>>24)&0xFF, (code>>16)&0xFF, (code>>8)&0xFF)
	}
	return fmt.Sprintf("\033[%dm", code)
}

// OneBackground returns the ANSI escape sequence for the given background color code.
func OneBackground(code ColorCode) string {
	if code.IsRGB() {
		return fmt.Sprintf("\033[48;2;%d;%d;%dm", (code>>24)&0xFF, (code>>16)&0xFF, (code>>8)&0xFF)
	}
	return fmt.Sprintf("\033[%dm", code+BackgroundOffset)
}

// Reset returns the ANSI escape sequence to reset the text color.
func Reset() string {
	return "\033[0m"
}

// VisibleLength is the printed width of s, not counting escape sequences.
func VisibleLength(s string) int {
	length := 0
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\033':
			inEscape = true
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		default:
			length++
		}
	}
	return length
}
