package bc

import (
	"fmt"
	"strings"
)

// Format is a block-compressed texture format.
type Format uint8

const (
	FormatNone Format = iota
	BC1
	BC2
	BC3
	BC4
	BC5
	BC6H
	BC7
)

func (f Format) String() string {
	switch f {
	case BC1:
		return "BC1"
	case BC2:
		return "BC2"
	case BC3:
		return "BC3"
	case BC4:
		return "BC4"
	case BC5:
		return "BC5"
	case BC6H:
		return "BC6H"
	case BC7:
		return "BC7"
	}
	return fmt.Sprintf("Format(%d)", uint8(f))
}

// Valid reports whether f names a real format.
func (f Format) Valid() bool { return f >= BC1 && f <= BC7 }

// BlockSize returns the number of bytes one 4x4 block occupies.
func (f Format) BlockSize() int {
	switch f {
	case BC1, BC4:
		return 8
	case BC2, BC3, BC5, BC6H, BC7:
		return 16
	}
	return 0
}

// IsHDR reports whether f stores unbounded linear values.
func (f Format) IsHDR() bool { return f == BC6H }

// HasAlpha reports whether f stores an alpha channel.
func (f Format) HasAlpha() bool { return f == BC2 || f == BC3 || f == BC7 }

// Channels returns how many color channels f stores.
func (f Format) Channels() int {
	switch f {
	case BC4:
		return 1
	case BC5:
		return 2
	case BC1, BC6H:
		return 3
	}
	return 4
}

// Formats lists every supported format in order.
func Formats() []Format { return []Format{BC1, BC2, BC3, BC4, BC5, BC6H, BC7} }

// ParseFormat returns the format named s ("bc1" .. "bc7", "bc6h").
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats() {
		if strings.EqualFold(f.String(), s) {
			return f, nil
		}
	}
	return FormatNone, fmt.Errorf("bc: unknown format %q", s)
}

// PaddedSize rounds a dimension up to a whole number of blocks.
func PaddedSize(n int) int { return (n + 3) &^ 3 }

// BlockCount returns the number of blocks covering n pixels.
func BlockCount(n int) int { return (n + 3) / 4 }

// Iterations maps an encode quality in [0, 1] to the number of
// least-squares refinement rounds.
func Iterations(quality float32) int {
	q := min(max(quality, 0), 1)
	return int(q*3 + 0.5)
}
