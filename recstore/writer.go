package recstore

import (
	"fmt"
	"io"
	"iter"
	"slices"

	"github.com/kjk/binrec/log"
	"github.com/kjk/binrec/recfmt"
)

// Writer appends records to a data sink and their offsets to an index sink
type Writer[V any] struct {
	data  io.Writer
	index io.Writer
	enc   recfmt.Encoding[V]
	opts  Options

	dataBuf  []byte
	indexBuf []byte
	// number of records in dataBuf
	pending int

	// logical end of the data sink, including buffered bytes
	offset  int64
	count   int
	flushes int

	// first error, sticky
	err    error
	closed bool
}

// NewWriter creates a writer. Nothing is written until the buffer fills up,
// Flush or Close.
func NewWriter[V any](data, index io.Writer, enc recfmt.Encoding[V], opts *Options) *Writer[V] {
	o := opts.withDefaults()
	return &Writer[V]{
		data:     data,
		index:    index,
		enc:      enc,
		opts:     o,
		dataBuf:  make([]byte, 0, o.BufferSize),
		indexBuf: make([]byte, 0, o.BufferSize),
		offset:   o.StartOffset,
	}
}

// Count returns the number of records appended, including buffered ones
func (w *Writer[V]) Count() int {
	return w.count
}

// Offset returns the offset the next record will get
func (w *Writer[V]) Offset() int64 {
	return w.offset
}

// Flushes returns how many times buffered records were written out
func (w *Writer[V]) Flushes() int {
	return w.flushes
}

// Err returns the first error encountered, if any
func (w *Writer[V]) Err() error {
	return w.err
}

func (w *Writer[V]) fail(err *RecordError) error {
	if w.err == nil {
		w.err = err
	}
	return w.err
}

// Append adds a record. The current offset goes to the index, then the
// encoded value to the data.
func (w *Writer[V]) Append(v V) error {
	if w.err != nil {
		return w.err
	}
	if w.closed {
		return newError("append", w.count, w.offset, ErrWrite, fmt.Errorf("writer is closed"))
	}
	w.indexBuf = w.opts.Index.Append(w.indexBuf, w.offset)
	n := len(w.dataBuf)
	w.dataBuf = w.enc.Append(w.dataBuf, v)
	w.offset += int64(len(w.dataBuf) - n)
	w.count++
	w.pending++

	full := len(w.dataBuf) >= w.opts.BufferSize || len(w.indexBuf) >= w.opts.BufferSize
	if full || (w.opts.FlushEvery > 0 && w.pending >= w.opts.FlushEvery) {
		return w.Flush()
	}
	return nil
}

func writeAll(w io.Writer, d []byte) error {
	if len(d) == 0 {
		return nil
	}
	n, err := w.Write(d)
	if err != nil {
		return err
	}
	if n != len(d) {
		return io.ErrShortWrite
	}
	return nil
}

type syncer interface {
	Sync() error
}

// Flush writes buffered records out. Data is written before the index so
// that a flushed index entry never points past flushed data.
func (w *Writer[V]) Flush() error {
	if w.err != nil {
		return w.err
	}
	if w.pending == 0 && len(w.dataBuf) == 0 && len(w.indexBuf) == 0 {
		return nil
	}
	first := w.count - w.pending
	if err := writeAll(w.data, w.dataBuf); err != nil {
		return w.fail(newError("flush data", first, w.offset-int64(len(w.dataBuf)), ErrWrite, err))
	}
	w.dataBuf = w.dataBuf[:0]
	if err := writeAll(w.index, w.indexBuf); err != nil {
		return w.fail(newError("flush index", first, -1, ErrWrite, err))
	}
	w.indexBuf = w.indexBuf[:0]
	w.pending = 0
	w.flushes++

	if w.opts.SyncWrite {
		for _, sink := range []io.Writer{w.data, w.index} {
			if s, ok := sink.(syncer); ok {
				if err := s.Sync(); err != nil {
					return w.fail(newError("sync", -1, -1, ErrWrite, err))
				}
			}
		}
	}
	return nil
}

// Close writes out the remaining buffered records. It must be called even
// when the last batch doesn't fill the buffer, otherwise the tail of the
// data is lost. It does not close the sinks. Calling it again is a no-op.
func (w *Writer[V]) Close() error {
	if w.closed {
		return w.err
	}
	w.closed = true
	if err := w.Flush(); err != nil {
		return err
	}
	log.Verbosef("recstore: wrote %d records (%s), %d bytes of data, %d flushes\n", w.count, w.enc.Name(), w.offset-w.opts.StartOffset, w.flushes)
	return nil
}

// WriteSeq writes all records from seq and closes the writer. It returns
// the number of records written. On error the sinks are inconsistent and
// the returned count only says how far it got.
func WriteSeq[V any](data, index io.Writer, enc recfmt.Encoding[V], seq iter.Seq[V], opts *Options) (int, error) {
	w := NewWriter(data, index, enc, opts)
	for v := range seq {
		if err := w.Append(v); err != nil {
			return w.Count(), err
		}
	}
	if err := w.Close(); err != nil {
		return w.Count(), err
	}
	return w.Count(), nil
}

// WriteRecords writes values as records, in order
func WriteRecords[V any](data, index io.Writer, enc recfmt.Encoding[V], values []V, opts *Options) (int, error) {
	return WriteSeq(data, index, enc, slices.Values(values), opts)
}
