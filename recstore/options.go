package recstore

import (
	"github.com/kjk/binrec/recfmt"
)

// DefaultBufferSize is the default size of the in-memory write buffer
const DefaultBufferSize = 1024

// Options configures writing and reading. A nil *Options means defaults.
type Options struct {
	// BufferSize is the write buffer capacity in bytes. Buffered data is
	// written out when it reaches this size. Default: DefaultBufferSize.
	BufferSize int

	// FlushEvery, if > 0, also writes out the buffer every FlushEvery records
	FlushEvery int

	// Index is the format of the index file. Default: recfmt.TextOffsets.
	Index recfmt.Encoding[int64]

	// StartOffset is the current size of the data sink when appending to
	// an existing file pair. The first appended record gets this offset.
	StartOffset int64

	// if true, will call Sync() after every flush on sinks that have it.
	// Slow, only useful when the files must survive a crash mid-session.
	SyncWrite bool
}

func (o *Options) withDefaults() Options {
	var res Options
	if o != nil {
		res = *o
	}
	if res.BufferSize <= 0 {
		res.BufferSize = DefaultBufferSize
	}
	if res.FlushEvery < 0 {
		res.FlushEvery = 0
	}
	if res.Index == nil {
		res.Index = recfmt.TextOffsets
	}
	return res
}
