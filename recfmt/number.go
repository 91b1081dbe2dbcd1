package recfmt

import (
	"bufio"
	"errors"
	"fmt"
	"unsafe"
)

var (
	// ErrTruncated is returned when a record starts but the stream ends
	// before all of its bytes are available
	ErrTruncated = errors.New("truncated record")
	// ErrMalformed is returned when the bytes of a record do not parse
	ErrMalformed = errors.New("malformed record")
)

// Number is any fixed-width integer or floating point type
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr |
		~float32 | ~float64
}

// Encoding serializes values of type V, one record at a time.
type Encoding[V any] interface {
	// Append appends serialized v to dst and returns the extended slice
	Append(dst []byte, v V) []byte
	// Decode reads exactly one record from r. n is the number of bytes
	// consumed. err is io.EOF only if r had no more bytes at all.
	Decode(r *bufio.Reader) (v V, n int, err error)
	// Width is the size of every record in bytes, 0 if records vary in size
	Width() int
	// Name is a short, stable description used in logs and manifests
	Name() string
}

func sizeOf[V Number]() int {
	var v V
	return int(unsafe.Sizeof(v))
}

func isFloat[V Number]() bool {
	one := V(1)
	return one/V(2) != 0
}

func isSigned[V Number]() bool {
	var zero V
	return zero-1 < zero
}

// typeName returns e.g. "int8", "uint32", "float64" for the underlying kind of V
func typeName[V Number]() string {
	bits := sizeOf[V]() * 8
	switch {
	case isFloat[V]():
		return fmt.Sprintf("float%d", bits)
	case isSigned[V]():
		return fmt.Sprintf("int%d", bits)
	}
	return fmt.Sprintf("uint%d", bits)
}

// ParseFormat returns the encoding for V named by s: "binary" (native byte
// order) or "text"
func ParseFormat[V Number](s string) (Encoding[V], error) {
	switch s {
	case "binary", "bin":
		return Binary[V]{}, nil
	case "text", "txt":
		return Text[V]{}, nil
	}
	return nil, fmt.Errorf("unknown record format '%s', expected 'binary' or 'text'", s)
}
