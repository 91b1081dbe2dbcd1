package recfmt

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Text is the line format: one decimal value per line, '\n' terminated.
// Floats use the shortest representation that parses back to the same
// value. NaN payloads are not preserved, use Binary for bit-exact floats.
type Text[V Number] struct{}

var _ Encoding[int64] = Text[int64]{}

func (Text[V]) Width() int {
	return 0
}

func (Text[V]) Name() string {
	return "text-" + typeName[V]()
}

func (Text[V]) Append(dst []byte, v V) []byte {
	bitSize := sizeOf[V]() * 8
	switch {
	case isFloat[V]():
		dst = strconv.AppendFloat(dst, float64(v), 'g', -1, bitSize)
	case isSigned[V]():
		dst = strconv.AppendInt(dst, int64(v), 10)
	default:
		dst = strconv.AppendUint(dst, uint64(v), 10)
	}
	return append(dst, '\n')
}

// Decode reads one line. A last line without '\n' is reported as truncated
// rather than parsed: a partially written "123" would otherwise decode as 12.
func (Text[V]) Decode(r *bufio.Reader) (V, int, error) {
	var zero V
	line, err := r.ReadString('\n')
	n := len(line)
	if err != nil {
		if err == io.EOF {
			if n == 0 {
				return zero, 0, io.EOF
			}
			return zero, n, fmt.Errorf("%w: line '%s' has no newline", ErrTruncated, line)
		}
		return zero, n, err
	}
	v, err := parseNumber[V](strings.TrimSpace(line))
	if err != nil {
		return zero, n, err
	}
	return v, n, nil
}

func parseNumber[V Number](s string) (V, error) {
	var zero V
	if s == "" {
		return zero, fmt.Errorf("%w: empty line", ErrMalformed)
	}
	bitSize := sizeOf[V]() * 8
	switch {
	case isFloat[V]():
		f, err := strconv.ParseFloat(s, bitSize)
		if err != nil {
			return zero, fmt.Errorf("%w: '%s' is not a float%d", ErrMalformed, s, bitSize)
		}
		return V(f), nil
	case isSigned[V]():
		i, err := strconv.ParseInt(s, 10, bitSize)
		if err != nil {
			return zero, fmt.Errorf("%w: '%s' is not an int%d", ErrMalformed, s, bitSize)
		}
		return V(i), nil
	}
	u, err := strconv.ParseUint(s, 10, bitSize)
	if err != nil {
		return zero, fmt.Errorf("%w: '%s' is not a uint%d", ErrMalformed, s, bitSize)
	}
	return V(u), nil
}
