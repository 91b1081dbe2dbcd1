// Package recstore writes records to a data file while recording the start
// offset of every record in a separate index file, and reads record N back
// by looking up its offset in the index and seeking the data file.
//
// # Files
//
// The data file is the records back to back, in the format given by a
// [recfmt.Encoding]. There is no header and no record count.
//
// The index file has one offset per record, in write order. By default the
// offsets are decimal text, one per line ([recfmt.TextOffsets]):
//
//	0
//	2
//	4
//
// The i-th offset is where record i starts in the data file, so it equals
// the total size of records 0..i-1. Both files always hold the same number
// of records; [Verify] checks that.
//
// # Writing
//
//	n, err := recstore.WriteRecords(dataFile, indexFile, recfmt.Text[int]{}, []int{0, 1, 2}, nil)
//
// [Writer] buffers records in memory and writes them out when the buffer is
// full and, always, on Close. A write session that returns an error leaves
// the two sinks inconsistent and they must be discarded. [Create] writes
// through temporary files so a failed session leaves nothing behind.
//
// # Reading
//
//	v, err := recstore.ReadRecord(indexFile, dataFile, recfmt.Text[int]{}, 5, nil)
//
// Errors can be told apart with errors.Is: [ErrIndexOutOfRange], [ErrSeek],
// [ErrDecode], [ErrRead], [ErrWrite], [ErrOpen].
//
// Nothing here is safe for concurrent use. A file pair has a single writer
// and is not read while it's being written.
package recstore
