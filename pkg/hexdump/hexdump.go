// Package hexdump renders byte slices as hexadecimal tables.
package hexdump

import (
	"fmt"
	"strings"
)

type Flag uint8

const (
	Multi   Flag = 1 << iota // 16 bytes per line
	LineNum                  // offset of the first byte on each line
	ColNum                   // column header and rulers
	ASCII                    // printable form at the end of each line
)

const (
	lineWidth = 16
	colHeader = "0  1  2  3  4  5  6  7  8  9  A  B  C  D  E  F  \n"
	ruler     = "------------------------------------------------------------------\n"
	lineGap   = "           "
	lineRuler = "-----------"
)

// Dump formats p according to flags. Without Multi everything goes on one
// line.
func Dump(p []byte, flags Flag) string {
	if len(p) == 0 {
		return ""
	}

	var sb strings.Builder
	if flags&ColNum != 0 {
		if flags&LineNum != 0 {
			sb.WriteString(lineGap)
		}
		sb.WriteString(colHeader)
		writeRuler(&sb, flags)
	}

	var asc []byte
	for i, b := range p {
		lineStart := i == 0 || (flags&Multi != 0 && i%lineWidth == 0)
		lineEnd := i == len(p)-1 || (flags&Multi != 0 && i%lineWidth == lineWidth-1)

		if flags&LineNum != 0 && lineStart {
			fmt.Fprintf(&sb, "%08Xh: ", i)
		}
		fmt.Fprintf(&sb, "%02X ", b)

		if flags&ASCII != 0 {
			asc = append(asc, printable(b))
			if lineEnd {
				if flags&Multi != 0 {
					// pad the short last line so the text column lines up
					sb.WriteString(strings.Repeat("   ", lineWidth-1-i%lineWidth))
				}
				sb.WriteByte(';')
				sb.Write(asc)
				asc = asc[:0]
			}
		}
		if lineEnd {
			sb.WriteByte('\n')
		}
	}

	if flags&ColNum != 0 {
		writeRuler(&sb, flags)
	}
	return sb.String()
}

func writeRuler(sb *strings.Builder, flags Flag) {
	if flags&LineNum != 0 {
		sb.WriteString(lineRuler)
	}
	sb.WriteString(ruler)
}

// printable keeps graphic ASCII and masks everything else, so control
// bytes never reach the terminal.
func printable(b byte) byte {
	if b < 0x21 || b > 0x7e {
		return '.'
	}
	return b
}
