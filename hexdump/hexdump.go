// Package hexdump renders bytes as an offset / hex / ASCII listing, with
// optional colors and a per-line annotation column.
package hexdump

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode"

	"nesram/coloransi"
)

// Options defines options for customizing the hexdump output
type Options struct {
	// BytesPerLine defines the number of bytes to display per line
	BytesPerLine int

	// GroupSize defines the grouping of bytes (usually 1, 2, 4, or 8)
	GroupSize int

	ShowASCII  bool
	ShowOffset bool

	// StartOffset is the offset printed for the first byte
	StartOffset uint64

	// OffsetWidth is the width of the offset column in hex digits
	OffsetWidth int

	// Color turns ANSI colors on; off gives plain text for logs and JSON
	Color bool

	OffsetColor       coloransi.ColorCode
	HexColor          coloransi.ColorCode
	ASCIIColor        coloransi.ColorCode
	NonPrintableColor coloransi.ColorCode
	ZeroColor         coloransi.ColorCode

	// HighlightPattern is a pattern to highlight in the dump
	HighlightPattern []byte
	HighlightColor   coloransi.ColorCode

	// MaxLines is the maximum number of lines to show (0 for no limit)
	MaxLines int

	// Annotate, if set, returns extra text for the end of each line
	Annotate func(offset uint64, line []byte) string
}

// DefaultOptions returns colored output with 16 bytes per line.
func DefaultOptions() Options {
	return Options{
		BytesPerLine:      16,
		GroupSize:         1,
		ShowASCII:         true,
		ShowOffset:        true,
		OffsetWidth:       4,
		Color:             true,
		OffsetColor:       coloransi.Cyan,
		HexColor:          coloransi.Green,
		ASCIIColor:        coloransi.White,
		NonPrintableColor: coloransi.BrightBlack,
		ZeroColor:         coloransi.BrightBlack,
		HighlightColor:    coloransi.Yellow,
	}
}

// PlainOptions returns DefaultOptions without colors.
func PlainOptions() Options {
	o := DefaultOptions()
	o.Color = false
	return o
}

// Dump creates a hex dump of the given data with specified options
func Dump(data []byte, options Options) string {
	var buffer bytes.Buffer
	DumpToWriter(&buffer, data, options)
	return buffer.String()
}

// DumpToWriter writes a hex dump of the given data to the specified writer
func DumpToWriter(writer io.Writer, data []byte, options Options) {
	if options.BytesPerLine <= 0 {
		options.BytesPerLine = 16
	}
	if options.GroupSize <= 0 {
		options.GroupSize = 1
	}
	if options.OffsetWidth <= 0 {
		options.OffsetWidth = 4
	}

	highlights := highlightMask(data, options.HighlightPattern)

	lineCount := 0
	for offset := 0; offset < len(data); offset += options.BytesPerLine {
		if options.MaxLines > 0 && lineCount >= options.MaxLines {
			fmt.Fprintf(writer, "... %d more bytes\n", len(data)-offset)
			break
		}

		end := min(offset+options.BytesPerLine, len(data))
		formatLine(writer, data[offset:end], highlights[offset:end], uint64(offset)+options.StartOffset, options)
		lineCount++
	}
}

// highlightMask marks every byte covered by an occurrence of pattern,
// including occurrences that span two lines.
func highlightMask(data, pattern []byte) []bool {
	mask := make([]bool, len(data))
	if len(pattern) == 0 {
		return mask
	}
	for i := 0; i+len(pattern) <= len(data); i++ {
		if bytes.Equal(data[i:i+len(pattern)], pattern) {
			for j := range pattern {
				mask[i+j] = true
			}
		}
	}
	return mask
}

func paint(options Options, color coloransi.ColorCode, s string) string {
	if !options.Color {
		return s
	}
	return coloransi.Foreground(color, s)
}

// formatLine formats a single line of the hex dump
func formatLine(writer io.Writer, data []byte, highlighted []bool, offset uint64, options Options) {
	if options.ShowOffset {
		offsetStr := fmt.Sprintf("%0*x", options.OffsetWidth, offset)
		fmt.Fprint(writer, paint(options, options.OffsetColor, offsetStr), "  ")
	}

	groups := formatHexValues(data, highlighted, options)

	// the mid-line divider only appears once a line reaches past the middle
	groupsPerLine := max(options.BytesPerLine/options.GroupSize, 1)
	leftGroups := min(groupsPerLine/2, len(groups))
	useSplit := options.BytesPerLine >= 8 && len(data) > options.BytesPerLine/2 && leftGroups > 0 && leftGroups < len(groups)

	if useSplit {
		fmt.Fprint(writer, strings.Join(groups[:leftGroups], " "), " | ", strings.Join(groups[leftGroups:], " "))
	} else {
		fmt.Fprint(writer, strings.Join(groups, " "))
	}

	// pad short lines so the ASCII column stays aligned
	if options.BytesPerLine > len(data) {
		fullGroups := (options.BytesPerLine + options.GroupSize - 1) / options.GroupSize
		curGroups := (len(data) + options.GroupSize - 1) / options.GroupSize
		missingBytes := options.BytesPerLine - len(data)
		deltaSpaces := (fullGroups - 1) - max(0, curGroups-1)

		pipeFull, pipeCur := 0, 0
		if options.BytesPerLine >= 8 && fullGroups > 1 {
			pipeFull = 2
		}
		if useSplit {
			pipeCur = 2
		}

		if padding := missingBytes*2 + deltaSpaces + (pipeFull - pipeCur); padding > 0 {
			fmt.Fprint(writer, strings.Repeat(" ", padding))
		}
	}

	if options.ShowASCII {
		fmt.Fprint(writer, " | ")
		formatASCII(writer, data, highlighted, options)
	}

	if options.Annotate != nil {
		if note := options.Annotate(offset, data); note != "" {
			fmt.Fprint(writer, " | ", note)
		}
	}

	fmt.Fprintln(writer)
}

// formatASCII formats the ASCII part of a hex dump line
func formatASCII(writer io.Writer, data []byte, highlighted []bool, options Options) {
	for i, b := range data {
		c := rune(b)
		switch {
		case highlighted[i]:
			if unicode.IsPrint(c) && b < 0x80 {
				fmt.Fprint(writer, paint(options, options.HighlightColor, string(c)))
			} else {
				fmt.Fprint(writer, paint(options, options.HighlightColor, "."))
			}
		case b == 0:
			fmt.Fprint(writer, paint(options, options.ZeroColor, "."))
		case b >= 0x80 || !unicode.IsPrint(c):
			fmt.Fprint(writer, paint(options, options.NonPrintableColor, "."))
		default:
			fmt.Fprint(writer, paint(options, options.ASCIIColor, string(c)))
		}
	}
}

// formatHexValues formats the hex values part of the line with proper grouping and highlighting
func formatHexValues(data []byte, highlighted []bool, options Options) []string {
	var result []string
	var group strings.Builder

	for i, b := range data {
		color := options.HexColor
		switch {
		case highlighted[i]:
			color = options.HighlightColor
		case b == 0:
			color = options.ZeroColor
		}
		group.WriteString(paint(options, color, fmt.Sprintf("%02x", b)))

		if (i+1)%options.GroupSize == 0 || i == len(data)-1 {
			result = append(result, group.String())
			group.Reset()
		}
	}

	return result
}

// DumpWithOffset is a plain dump whose offsets start at startOffset.
func DumpWithOffset(data []byte, startOffset uint64) string {
	options := PlainOptions()
	options.StartOffset = startOffset
	return Dump(data, options)
}
