package recstore

import (
	"bufio"
	"fmt"
	"io"

	"github.com/kjk/binrec/recfmt"
)

// Verify checks that index and data describe the same records: offsets
// start at 0, each offset is the end of the previous record and the data
// ends right after the last record. Returns the number of records.
func Verify[V any](index, data io.Reader, enc recfmt.Encoding[V], opts *Options) (int, error) {
	n, _, err := verify(index, data, enc, opts)
	return n, err
}

// verify is Verify that also returns the size of the data
func verify[V any](index, data io.Reader, enc recfmt.Encoding[V], opts *Options) (int, int64, error) {
	o := opts.withDefaults()
	ir, dr := bufio.NewReader(index), bufio.NewReader(data)
	var (
		n       int
		pos     int64
		diffErr error
	)
	err := walk(ir, dr, enc, o.Index, func(i int, off int64, _ V, size int) bool {
		if off != pos {
			diffErr = newError("verify", i, off, ErrInconsistent, fmt.Errorf("expected offset %d", pos))
			return false
		}
		pos += int64(size)
		n = i + 1
		return true
	})
	if err == nil {
		err = diffErr
	}
	if err != nil {
		return n, pos, err
	}
	extra, err := io.Copy(io.Discard, dr)
	if err != nil {
		return n, pos, newError("verify", n, pos, ErrRead, err)
	}
	if extra > 0 {
		return n, pos, newError("verify", n, pos, ErrInconsistent, fmt.Errorf("%d bytes of data after the last record", extra))
	}
	return n, pos, nil
}

// BuildIndex decodes data from the start and writes the offset of every
// record to index. Used to recreate a lost or damaged index. Offsets come
// from the bytes actually read so a text file with padded lines gets the
// right index. Returns the number of records.
func BuildIndex[V any](data io.Reader, index io.Writer, enc recfmt.Encoding[V], opts *Options) (int, error) {
	o := opts.withDefaults()
	br := bufio.NewReader(data)
	buf := make([]byte, 0, o.BufferSize)
	off := o.StartOffset
	n := 0
	flush := func() error {
		if err := writeAll(index, buf); err != nil {
			return newError("build index", n, off, ErrWrite, err)
		}
		buf = buf[:0]
		return nil
	}
	for ; ; n++ {
		_, size, err := enc.Decode(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			return n, newError("build index", n, off, decodeKind(err), err)
		}
		buf = o.Index.Append(buf, off)
		off += int64(size)
		if len(buf) >= o.BufferSize {
			if err = flush(); err != nil {
				return n, err
			}
		}
	}
	return n, flush()
}
