package recfmt

import (
	"encoding/binary"
	"fmt"
)

var (
	// TextOffsets is the default index format: one decimal offset per line
	TextOffsets Encoding[int64] = Text[int64]{}
	// BinaryOffsets stores each offset as 8 little-endian bytes. Unlike
	// the native-order data format it is portable, and being fixed-width
	// it allows looking up an entry without scanning the ones before it.
	BinaryOffsets Encoding[int64] = Binary[int64]{Order: binary.LittleEndian}
)

// ParseOffsetFormat returns the index format named s ("text" or "binary")
func ParseOffsetFormat(s string) (Encoding[int64], error) {
	switch s {
	case "", "text", "txt":
		return TextOffsets, nil
	case "binary", "bin":
		return BinaryOffsets, nil
	}
	return nil, fmt.Errorf("unknown index format '%s', expected 'text' or 'binary'", s)
}
