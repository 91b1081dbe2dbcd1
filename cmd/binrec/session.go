package main

import (
	"fmt"
	"io"
	"iter"
	"math"

	"github.com/kjk/binrec/recfmt"
	"github.com/kjk/binrec/recstore"
)

// session runs commands on a file pair of one record type
type session interface {
	// width of a record in bytes, 0 if variable
	width() int
	write(fo *recstore.FileOptions, gen string, count int) (int, error)
	read(fo *recstore.FileOptions, n int) (string, error)
	dump(fo *recstore.FileOptions, w io.Writer) (int, error)
	count(fo *recstore.FileOptions) (int, error)
	verify(fo *recstore.FileOptions) (int, error)
	reindex(fo *recstore.FileOptions) (int, error)
}

type typedSession[V recfmt.Number] struct {
	enc recfmt.Encoding[V]
}

func newTypedSession[V recfmt.Number](format string) (session, error) {
	enc, err := recfmt.ParseFormat[V](format)
	if err != nil {
		return nil, err
	}
	return &typedSession[V]{enc: enc}, nil
}

func newSession(typ string, format string) (session, error) {
	switch typ {
	case "int8":
		return newTypedSession[int8](format)
	case "int16":
		return newTypedSession[int16](format)
	case "int32":
		return newTypedSession[int32](format)
	case "int64", "int":
		return newTypedSession[int64](format)
	case "uint8", "byte":
		return newTypedSession[uint8](format)
	case "uint16":
		return newTypedSession[uint16](format)
	case "uint32":
		return newTypedSession[uint32](format)
	case "uint64":
		return newTypedSession[uint64](format)
	case "float32":
		return newTypedSession[float32](format)
	case "float64", "double":
		return newTypedSession[float64](format)
	}
	return nil, fmt.Errorf("unknown record type '%s'", typ)
}

func isFloat[V recfmt.Number]() bool {
	var v V = 1
	return v/2 != 0
}

// generate returns count values: "seq" is 0, 1, 2 ... and "sqrt" is
// sqrt(i)/i, which is NaN for i == 0
func generate[V recfmt.Number](gen string, count int) (iter.Seq[V], error) {
	switch gen {
	case "seq":
		return func(yield func(V) bool) {
			for i := range count {
				if !yield(V(i)) {
					return
				}
			}
		}, nil
	case "sqrt":
		if !isFloat[V]() {
			return nil, fmt.Errorf("gen 'sqrt' needs float32 or float64 type")
		}
		return func(yield func(V) bool) {
			for i := range count {
				f := float64(i)
				if !yield(V(math.Sqrt(f) / f)) {
					return
				}
			}
		}, nil
	}
	return nil, fmt.Errorf("unknown generator '%s', expected 'seq' or 'sqrt'", gen)
}

func (s *typedSession[V]) width() int {
	return s.enc.Width()
}

func (s *typedSession[V]) write(fo *recstore.FileOptions, gen string, count int) (int, error) {
	values, err := generate[V](gen, count)
	if err != nil {
		return 0, err
	}
	return recstore.WriteFiles(fo, s.enc, values)
}

func (s *typedSession[V]) read(fo *recstore.FileOptions, n int) (string, error) {
	v, err := recstore.ReadFileRecord(fo, s.enc, n)
	if err != nil {
		return "", err
	}
	return fmt.Sprint(v), nil
}

func (s *typedSession[V]) dump(fo *recstore.FileOptions, w io.Writer) (int, error) {
	r, err := recstore.Open(fo, s.enc)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	all, errFn := r.All()
	n := 0
	for i, v := range all {
		if _, err = fmt.Fprintf(w, "%d\t%v\n", i, v); err != nil {
			return n, err
		}
		n++
	}
	return n, errFn()
}

func (s *typedSession[V]) count(fo *recstore.FileOptions) (int, error) {
	r, err := recstore.Open(fo, s.enc)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	return r.Count()
}

func (s *typedSession[V]) verify(fo *recstore.FileOptions) (int, error) {
	return recstore.VerifyFiles(fo, s.enc)
}

func (s *typedSession[V]) reindex(fo *recstore.FileOptions) (int, error) {
	return recstore.RebuildIndex(fo, s.enc)
}
