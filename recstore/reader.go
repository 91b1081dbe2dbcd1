package recstore

import (
	"bufio"
	"fmt"
	"io"
	"iter"

	"github.com/kjk/binrec/recfmt"
)

// lookupOffset returns the data offset of record n. With a fixed-width
// index format and a seekable index it goes straight to entry n, otherwise
// it reads entries from the start of the index.
func lookupOffset(index io.Reader, idx recfmt.Encoding[int64], n int) (int64, error) {
	if n < 0 {
		return 0, newError("lookup", n, -1, ErrIndexOutOfRange, nil)
	}
	rs, seekable := index.(io.ReadSeeker)
	if w := idx.Width(); w > 0 && seekable {
		size, err := rs.Seek(0, io.SeekEnd)
		if err != nil {
			return 0, newError("seek index", n, -1, ErrRead, err)
		}
		// compared as a count so a huge n can't overflow the position
		if int64(n) >= size/int64(w) {
			return 0, newError("lookup", n, -1, ErrIndexOutOfRange, fmt.Errorf("index has %d entries", size/int64(w)))
		}
		if _, err = rs.Seek(int64(n)*int64(w), io.SeekStart); err != nil {
			return 0, newError("seek index", n, -1, ErrRead, err)
		}
		// bufio's minimum; we only need one entry
		off, _, err := idx.Decode(bufio.NewReaderSize(rs, 16))
		return checkEntry(n, off, err)
	}
	if seekable {
		if _, err := rs.Seek(0, io.SeekStart); err != nil {
			return 0, newError("seek index", n, -1, ErrRead, err)
		}
	}
	br := bufio.NewReader(index)
	for i := 0; ; i++ {
		off, _, err := idx.Decode(br)
		if err == io.EOF {
			return 0, newError("lookup", n, -1, ErrIndexOutOfRange, fmt.Errorf("index has %d entries", i))
		}
		if err != nil {
			return checkEntry(i, off, err)
		}
		if i == n {
			return checkEntry(n, off, nil)
		}
	}
}

func checkEntry(n int, off int64, err error) (int64, error) {
	if err == io.EOF {
		return 0, newError("lookup", n, -1, ErrIndexOutOfRange, nil)
	}
	if err != nil {
		return 0, newError("read index", n, -1, decodeKind(err), err)
	}
	if off < 0 {
		return 0, newError("read index", n, off, ErrDecode, fmt.Errorf("negative offset"))
	}
	return off, nil
}

// seekData positions data at off. A seekable source is checked against its
// size, anything else is read and discarded up to off.
func seekData(data io.Reader, n int, off int64) error {
	if s, ok := data.(io.Seeker); ok {
		size, err := s.Seek(0, io.SeekEnd)
		if err != nil {
			return newError("seek data", n, off, ErrRead, err)
		}
		if off > size {
			return newError("seek data", n, off, ErrSeek, fmt.Errorf("data has %d bytes", size))
		}
		if _, err = s.Seek(off, io.SeekStart); err != nil {
			return newError("seek data", n, off, ErrSeek, err)
		}
		return nil
	}
	skipped, err := io.CopyN(io.Discard, data, off)
	if err == io.EOF {
		return newError("seek data", n, off, ErrSeek, fmt.Errorf("data has %d bytes", skipped))
	}
	if err != nil {
		return newError("seek data", n, off, ErrRead, err)
	}
	return nil
}

func decodeRecord[V any](r *bufio.Reader, enc recfmt.Encoding[V], n int, off int64) (V, int, error) {
	v, size, err := enc.Decode(r)
	if err == io.EOF {
		return v, 0, newError("decode", n, off, ErrDecode, io.ErrUnexpectedEOF)
	}
	if err != nil {
		return v, size, newError("decode", n, off, decodeKind(err), err)
	}
	return v, size, nil
}

// ReadRecord returns record n (zero-based) from a file pair. Both sources
// must be positioned at their start (seekable ones are rewound).
func ReadRecord[V any](index, data io.Reader, enc recfmt.Encoding[V], n int, opts *Options) (V, error) {
	var zero V
	o := opts.withDefaults()
	off, err := lookupOffset(index, o.Index, n)
	if err != nil {
		return zero, err
	}
	if err = seekData(data, n, off); err != nil {
		return zero, err
	}
	v, _, err := decodeRecord(bufio.NewReader(data), enc, n, off)
	return v, err
}

// Count returns the number of records in an index. For a fixed-width index
// format and a seekable index it's computed from the size.
func Count(index io.Reader, idx recfmt.Encoding[int64]) (int, error) {
	if idx == nil {
		idx = recfmt.TextOffsets
	}
	if s, ok := index.(io.Seeker); ok {
		if w := int64(idx.Width()); w > 0 {
			size, err := s.Seek(0, io.SeekEnd)
			if err != nil {
				return 0, newError("count", -1, -1, ErrRead, err)
			}
			if _, err = s.Seek(0, io.SeekStart); err != nil {
				return 0, newError("count", -1, -1, ErrRead, err)
			}
			if size%w != 0 {
				return 0, newError("count", int(size/w), -1, ErrDecode, fmt.Errorf("index size %d is not a multiple of %d", size, w))
			}
			return int(size / w), nil
		}
		if _, err := s.Seek(0, io.SeekStart); err != nil {
			return 0, newError("count", -1, -1, ErrRead, err)
		}
	}
	br := bufio.NewReader(index)
	for n := 0; ; n++ {
		_, _, err := idx.Decode(br)
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return 0, newError("count", n, -1, decodeKind(err), err)
		}
	}
}

// walk decodes records in index order. Gaps between records are skipped,
// an offset going backwards is an error. fn returns false to stop.
func walk[V any](ir, dr *bufio.Reader, enc recfmt.Encoding[V], idx recfmt.Encoding[int64], fn func(n int, off int64, v V, size int) bool) error {
	var pos int64
	for n := 0; ; n++ {
		off, _, err := idx.Decode(ir)
		if err == io.EOF {
			return nil
		}
		if off, err = checkEntry(n, off, err); err != nil {
			return err
		}
		if off < pos {
			return newError("walk", n, off, ErrInconsistent, fmt.Errorf("offset is before the end of record %d (%d)", n-1, pos))
		}
		for pos < off {
			skip := min(off-pos, 1<<20)
			discarded, err := dr.Discard(int(skip))
			pos += int64(discarded)
			if err == io.EOF {
				return newError("walk", n, off, ErrSeek, fmt.Errorf("data has %d bytes", pos))
			}
			if err != nil {
				return newError("walk", n, off, ErrRead, err)
			}
		}
		if _, err := dr.Peek(1); err == io.EOF {
			return newError("walk", n, off, ErrInconsistent, fmt.Errorf("index entry past the end of data"))
		}
		v, size, err := decodeRecord(dr, enc, n, off)
		if err != nil {
			return err
		}
		pos += int64(size)
		if !fn(n, off, v, size) {
			return nil
		}
	}
}

// Records returns an iterator over all records, in index order. Call the
// returned error function after iteration to check for errors.
func Records[V any](index, data io.Reader, enc recfmt.Encoding[V], opts *Options) (iter.Seq2[int, V], func() error) {
	o := opts.withDefaults()
	var iterErr error
	seq := func(yield func(int, V) bool) {
		ir, dr := bufio.NewReader(index), bufio.NewReader(data)
		iterErr = walk(ir, dr, enc, o.Index, func(n int, _ int64, v V, _ int) bool {
			return yield(n, v)
		})
	}
	return seq, func() error { return iterErr }
}

// Offsets returns an iterator over the offsets in an index
func Offsets(index io.Reader, idx recfmt.Encoding[int64]) (iter.Seq2[int, int64], func() error) {
	if idx == nil {
		idx = recfmt.TextOffsets
	}
	var iterErr error
	seq := func(yield func(int, int64) bool) {
		br := bufio.NewReader(index)
		for n := 0; ; n++ {
			off, _, err := idx.Decode(br)
			if err == io.EOF {
				return
			}
			if off, iterErr = checkEntry(n, off, err); iterErr != nil {
				return
			}
			if !yield(n, off) {
				return
			}
		}
	}
	return seq, func() error { return iterErr }
}

// Reader reads records from a seekable file pair
type Reader[V any] struct {
	index io.ReadSeeker
	data  io.ReadSeeker
	enc   recfmt.Encoding[V]
	opts  Options
}

func NewReader[V any](index, data io.ReadSeeker, enc recfmt.Encoding[V], opts *Options) *Reader[V] {
	return &Reader[V]{
		index: index,
		data:  data,
		enc:   enc,
		opts:  opts.withDefaults(),
	}
}

// Record returns record n
func (r *Reader[V]) Record(n int) (V, error) {
	return ReadRecord(r.index, r.data, r.enc, n, &r.opts)
}

// Count returns the number of records in the index
func (r *Reader[V]) Count() (int, error) {
	return Count(r.index, r.opts.Index)
}

func (r *Reader[V]) rewind() error {
	for _, s := range []io.Seeker{r.index, r.data} {
		if _, err := s.Seek(0, io.SeekStart); err != nil {
			return newError("rewind", -1, -1, ErrRead, err)
		}
	}
	return nil
}

// All iterates over all records in index order
func (r *Reader[V]) All() (iter.Seq2[int, V], func() error) {
	if err := r.rewind(); err != nil {
		return func(func(int, V) bool) {}, func() error { return err }
	}
	return Records(r.index, r.data, r.enc, &r.opts)
}

// Offsets iterates over the index
func (r *Reader[V]) Offsets() (iter.Seq2[int, int64], func() error) {
	if err := r.rewind(); err != nil {
		return func(func(int, int64) bool) {}, func() error { return err }
	}
	return Offsets(r.index, r.opts.Index)
}
