package recfmt

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Binary is the fixed-width binary format. Each record is sizeof(V) bytes.
// A nil Order means binary.NativeEndian.
type Binary[V Number] struct {
	Order binary.ByteOrder
}

// ensure we implement desired interface
var _ Encoding[float64] = Binary[float64]{}

func (b Binary[V]) order() binary.ByteOrder {
	if b.Order == nil {
		return binary.NativeEndian
	}
	return b.Order
}

func (b Binary[V]) Width() int {
	return sizeOf[V]()
}

func (b Binary[V]) Name() string {
	name := "binary-" + typeName[V]()
	switch b.Order {
	case nil:
		return name
	case binary.LittleEndian:
		return name + "-le"
	case binary.BigEndian:
		return name + "-be"
	}
	return name + "-" + b.Order.String()
}

// bits returns the raw bit pattern of v, zero-extended to 64 bits
func bits[V Number](v V) uint64 {
	if isFloat[V]() {
		if sizeOf[V]() == 4 {
			return uint64(math.Float32bits(float32(v)))
		}
		return math.Float64bits(float64(v))
	}
	return uint64(v)
}

func fromBits[V Number](u uint64) V {
	if isFloat[V]() {
		if sizeOf[V]() == 4 {
			return V(math.Float32frombits(uint32(u)))
		}
		return V(math.Float64frombits(u))
	}
	// integer conversion truncates to the width of V and keeps the sign
	return V(u)
}

func (b Binary[V]) Append(dst []byte, v V) []byte {
	var buf [8]byte
	o := b.order()
	u := bits(v)
	switch b.Width() {
	case 1:
		buf[0] = byte(u)
	case 2:
		o.PutUint16(buf[:], uint16(u))
	case 4:
		o.PutUint32(buf[:], uint32(u))
	default:
		o.PutUint64(buf[:], u)
	}
	return append(dst, buf[:b.Width()]...)
}

func (b Binary[V]) Decode(r *bufio.Reader) (V, int, error) {
	var zero V
	var buf [8]byte
	w := b.Width()
	n, err := io.ReadFull(r, buf[:w])
	if err != nil {
		if err == io.EOF {
			return zero, 0, io.EOF
		}
		if err == io.ErrUnexpectedEOF {
			return zero, n, fmt.Errorf("%w: got %d of %d bytes", ErrTruncated, n, w)
		}
		return zero, n, err
	}
	o := b.order()
	var u uint64
	switch w {
	case 1:
		u = uint64(buf[0])
	case 2:
		u = uint64(o.Uint16(buf[:]))
	case 4:
		u = uint64(o.Uint32(buf[:]))
	default:
		u = o.Uint64(buf[:])
	}
	return fromBits[V](u), n, nil
}
