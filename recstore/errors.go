package recstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kjk/binrec/recfmt"
)

var (
	// ErrOpen is returned when a data or index file can't be opened or created
	ErrOpen = errors.New("cannot open file")
	// ErrWrite is returned when writing to a sink fails or is short
	ErrWrite = errors.New("write failed")
	// ErrRead is returned when reading from a source fails
	ErrRead = errors.New("read failed")
	// ErrDecode is returned when bytes don't form a valid record or offset
	ErrDecode = errors.New("cannot decode record")
	// ErrIndexOutOfRange is returned when the index has no entry for a record number
	ErrIndexOutOfRange = errors.New("record number out of range")
	// ErrSeek is returned when an offset is past the end of the data
	ErrSeek = errors.New("offset past end of data")
	// ErrInconsistent is returned when index and data don't describe the same records
	ErrInconsistent = errors.New("index and data are inconsistent")
)

// RecordError describes a failure at a given record or byte position.
// errors.Is matches both Kind and Err.
type RecordError struct {
	Op string
	// Record is the record number, -1 if not known
	Record int
	// Offset is the byte offset in the data, -1 if not known
	Offset int64
	// Kind is one of the Err* values of this package
	Kind error
	// Err is the underlying cause, can be nil
	Err error
}

func (e *RecordError) Error() string {
	var sb strings.Builder
	sb.WriteString("recstore: ")
	sb.WriteString(e.Op)
	if e.Record >= 0 {
		fmt.Fprintf(&sb, " record %d", e.Record)
	}
	if e.Offset >= 0 {
		fmt.Fprintf(&sb, " at offset %d", e.Offset)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Kind.Error())
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *RecordError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(op string, record int, offset int64, kind error, err error) *RecordError {
	return &RecordError{
		Op:     op,
		Record: record,
		Offset: offset,
		Kind:   kind,
		Err:    err,
	}
}

// decodeKind maps an error from recfmt decoding to ErrDecode or ErrRead
func decodeKind(err error) error {
	if errors.Is(err, recfmt.ErrTruncated) || errors.Is(err, recfmt.ErrMalformed) {
		return ErrDecode
	}
	return ErrRead
}
