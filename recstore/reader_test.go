package recstore

import (
	"bytes"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/kjk/binrec/recfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// onlyReader hides Seek so the reader has to scan and discard
type onlyReader struct {
	r io.Reader
}

func (r *onlyReader) Read(p []byte) (int, error) {
	return r.r.Read(p)
}

func sqrtValues(n int) []float64 {
	res := make([]float64, n)
	for i := range res {
		f := float64(i)
		// 0/0 is NaN for i == 0
		res[i] = math.Sqrt(f) / f
	}
	return res
}

func TestMillionDoubles(t *testing.T) {
	if testing.Short() {
		t.Skip("writes 8 MB")
	}
	enc := recfmt.Binary[float64]{}
	vals := sqrtValues(1_000_000)
	require.True(t, math.IsNaN(vals[0]))

	for _, idx := range []recfmt.Encoding[int64]{recfmt.TextOffsets, recfmt.BinaryOffsets} {
		opts := &Options{Index: idx}
		data, index := writePair(t, enc, vals, opts)
		assert.Equal(t, 8*len(vals), len(data))

		for _, n := range []int{0, 10, 999_999} {
			v, err := ReadRecord(bytes.NewReader(index), bytes.NewReader(data), enc, n, opts)
			require.NoError(t, err)
			assert.Equal(t, math.Float64bits(vals[n]), math.Float64bits(v), "record %d, index %s", n, idx.Name())
		}

		r := NewReader(bytes.NewReader(index), bytes.NewReader(data), enc, opts)
		all, errFn := r.All()
		mismatches := 0
		for i, v := range all {
			if math.Float64bits(v) != math.Float64bits(vals[i]) {
				mismatches++
			}
		}
		require.NoError(t, errFn())
		assert.Equal(t, 0, mismatches)
	}
}

func TestNaNPayloads(t *testing.T) {
	vals := []float64{
		math.Float64frombits(0x7ff8000000000001),
		math.Float64frombits(0xfff4000000000abc),
		math.Inf(1),
		math.Inf(-1),
		math.Copysign(0, -1),
	}
	enc := recfmt.Binary[float64]{}
	data, index := writePair(t, enc, vals, nil)
	for i, exp := range vals {
		v, err := ReadRecord(bytes.NewReader(index), bytes.NewReader(data), enc, i, nil)
		require.NoError(t, err)
		assert.Equal(t, math.Float64bits(exp), math.Float64bits(v))
	}
}

func TestReadOutOfRange(t *testing.T) {
	enc := recfmt.Text[int64]{}
	for _, idx := range []recfmt.Encoding[int64]{recfmt.TextOffsets, recfmt.BinaryOffsets} {
		opts := &Options{Index: idx}
		data, index := writePair(t, enc, intsUpTo(10), opts)
		for _, n := range []int{10, 11, 1000, -1, math.MaxInt / 8, math.MaxInt/8 + 1, math.MaxInt} {
			_, err := ReadRecord(bytes.NewReader(index), bytes.NewReader(data), enc, n, opts)
			assert.True(t, errors.Is(err, ErrIndexOutOfRange), "n: %d, index: %s, err: %v", n, idx.Name(), err)

			_, err = ReadRecord(&onlyReader{bytes.NewReader(index)}, &onlyReader{bytes.NewReader(data)}, enc, n, opts)
			assert.True(t, errors.Is(err, ErrIndexOutOfRange), "n: %d, index: %s, err: %v", n, idx.Name(), err)
		}
	}
}

func TestReadNonSeekable(t *testing.T) {
	enc := recfmt.Binary[int32]{}
	vals := []int32{5, -7, 1 << 20, 0}
	data, index := writePair(t, enc, vals, nil)
	for i, exp := range vals {
		v, err := ReadRecord(&onlyReader{bytes.NewReader(index)}, &onlyReader{bytes.NewReader(data)}, enc, i, nil)
		require.NoError(t, err)
		assert.Equal(t, exp, v)
	}
}

func checkTruncated[V comparable](t *testing.T, enc recfmt.Encoding[V], vals []V) {
	data, index := writePair(t, enc, vals, nil)
	cut := data[:len(data)/2]
	var off int
	for i, exp := range vals {
		size := len(enc.Append(nil, exp))
		for _, seekable := range []bool{true, false} {
			var dr io.Reader = bytes.NewReader(cut)
			if !seekable {
				dr = &onlyReader{dr}
			}
			v, err := ReadRecord(bytes.NewReader(index), dr, enc, i, nil)
			if off+size <= len(cut) {
				require.NoError(t, err)
				assert.Equal(t, exp, v)
				continue
			}
			require.Error(t, err, "record %d at %d returned %v", i, off, v)
			assert.True(t, errors.Is(err, ErrSeek) || errors.Is(err, ErrDecode), "record %d: %s", i, err)
		}
		off += size
	}
}

func TestTruncatedData(t *testing.T) {
	var vals32 []int32
	for i := range 127 {
		vals32 = append(vals32, int32(i))
	}
	checkTruncated(t, recfmt.Binary[int32]{}, vals32)
	// truncation in the middle of "123\n" must not read as 12
	checkTruncated(t, recfmt.Text[int64]{}, []int64{1, 22, 333, 4444, 55555, 123, 7, 88})
}

func TestReadCorruptIndex(t *testing.T) {
	data := []byte("1\n2\n")
	enc := recfmt.Text[int64]{}
	tests := []struct {
		index string
		n     int
		kind  error
	}{
		{"0\nabc\n", 1, ErrDecode},
		{"0\n2", 1, ErrDecode},
		{"0\n-2\n", 1, ErrDecode},
		{"0\n100\n", 1, ErrSeek},
		{"0\n1\n", 1, ErrDecode},
	}
	for _, tc := range tests {
		_, err := ReadRecord(bytes.NewReader([]byte(tc.index)), bytes.NewReader(data), enc, tc.n, nil)
		assert.True(t, errors.Is(err, tc.kind), "index: %q, err: %v", tc.index, err)
	}
}

func TestCount(t *testing.T) {
	enc := recfmt.Binary[int16]{}
	for _, idx := range []recfmt.Encoding[int64]{recfmt.TextOffsets, recfmt.BinaryOffsets} {
		_, index := writePair(t, enc, []int16{1, 2, 3, 4, 5}, &Options{Index: idx})
		n, err := Count(bytes.NewReader(index), idx)
		require.NoError(t, err)
		assert.Equal(t, 5, n)
		n, err = Count(&onlyReader{bytes.NewReader(index)}, idx)
		require.NoError(t, err)
		assert.Equal(t, 5, n)
	}

	_, err := Count(bytes.NewReader(make([]byte, 17)), recfmt.BinaryOffsets)
	assert.True(t, errors.Is(err, ErrDecode))
	_, err = Count(bytes.NewReader([]byte("0\nx\n")), nil)
	assert.True(t, errors.Is(err, ErrDecode))
}

func TestReader(t *testing.T) {
	enc := recfmt.Text[uint16]{}
	vals := []uint16{10, 200, 3000, 40000, 5}
	data, index := writePair(t, enc, vals, nil)
	r := NewReader(bytes.NewReader(index), bytes.NewReader(data), enc, nil)

	n, err := r.Count()
	require.NoError(t, err)
	assert.Equal(t, len(vals), n)

	// out of order, repeated
	for _, i := range []int{4, 0, 2, 2, 1, 3} {
		v, err := r.Record(i)
		require.NoError(t, err)
		assert.Equal(t, vals[i], v)
	}

	var got []uint16
	all, errFn := r.All()
	for _, v := range all {
		got = append(got, v)
	}
	require.NoError(t, errFn())
	assert.Equal(t, vals, got)

	// stopping early is fine
	all, errFn = r.All()
	for i := range all {
		if i == 1 {
			break
		}
	}
	require.NoError(t, errFn())

	var offsets []int64
	offs, errFn := r.Offsets()
	for _, off := range offs {
		offsets = append(offsets, off)
	}
	require.NoError(t, errFn())
	assert.Equal(t, []int64{0, 3, 7, 12, 18}, offsets)
}
