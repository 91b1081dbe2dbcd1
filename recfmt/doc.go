// Package recfmt defines how a single record is laid out in a data or
// index file.
//
// There are two formats:
//   - [Binary]: every record is exactly sizeof(V) bytes, no padding and no
//     separators. With the zero Order the bytes are in the machine's native
//     order, which makes the files non-portable between machines with a
//     different endianness. Floats are stored by their raw IEEE-754 bits so
//     NaN and Inf payloads survive a round trip unchanged.
//   - [Text]: one decimal value per line, terminated by '\n'.
//
// Index files are record files of int64 offsets, so the same two formats
// serve as index formats ([TextOffsets], [BinaryOffsets]).
//
//	var enc recfmt.Binary[float64]
//	d := enc.Append(nil, math.Sqrt(2))
//	v, n, err := enc.Decode(bufio.NewReader(bytes.NewReader(d)))
package recfmt
