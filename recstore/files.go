package recstore

import (
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"time"

	"github.com/kjk/binrec/atomicfile"
	"github.com/kjk/binrec/log"
	"github.com/kjk/binrec/recfmt"
	"github.com/kjk/binrec/stream"
	"github.com/minio/sha256-simd"
)

// FileOptions configures a session over a data file and an index file.
// Files ending in .gz, .zst, .br or .s2 are compressed.
type FileOptions struct {
	Options

	DataPath  string
	IndexPath string

	// if true, appends to an existing pair of plain files instead of
	// replacing it. Appended records are visible as they're flushed.
	Append bool

	// if true, Close also writes <DataPath>.manifest.json. It is
	// published before the data and index.
	Manifest bool
}

// DefaultIndexPath returns the index path used when IndexPath is empty:
// data.bin => data.bin.idx, data.bin.gz => data.bin.idx.gz
func DefaultIndexPath(dataPath string) string {
	c := stream.CodecForPath(dataPath)
	if c == stream.None {
		return dataPath + ".idx"
	}
	ext := filepath.Ext(dataPath)
	return dataPath[:len(dataPath)-len(ext)] + ".idx" + ext
}

func (fo *FileOptions) paths() (string, string, error) {
	if fo == nil || fo.DataPath == "" {
		return "", "", newError("open", -1, -1, ErrOpen, errors.New("DataPath not set"))
	}
	indexPath := fo.IndexPath
	if indexPath == "" {
		indexPath = DefaultIndexPath(fo.DataPath)
	}
	return fo.DataPath, indexPath, nil
}

// sink is the destination file of one side of a write session
type sink interface {
	io.Writer
	// Close publishes the file
	Close() error
	Abort()
}

// appendFile is a sink for Append sessions. There is nothing to roll back.
type appendFile struct {
	*os.File
}

func (f appendFile) Abort() {
	_ = f.File.Close()
}

func createSink(path string, appendMode bool) (sink, error) {
	if !appendMode {
		f, err := atomicfile.New(path)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	return appendFile{f}, nil
}

// FileWriter is a write session over a file pair. Neither file is published
// unless Close succeeds.
type FileWriter[V any] struct {
	*Writer[V]

	dataPath  string
	indexPath string
	enc       recfmt.Encoding[V]
	opts      FileOptions

	dataSink  sink
	indexSink sink
	// compressors, write to the sinks
	dataZ  io.WriteCloser
	indexZ io.WriteCloser
	// sha256 of the data file as written, nil without a manifest
	dataHash hash.Hash

	// number of records in the pair before this session, for Append
	prevCount int
	started   time.Time
	finished  bool
	closeErr  error
}

// Create starts a write session. Unless fo.Append is set the files are
// written to temporary files and renamed into place by Close.
func Create[V any](fo *FileOptions, enc recfmt.Encoding[V]) (*FileWriter[V], error) {
	dataPath, indexPath, err := fo.paths()
	if err != nil {
		return nil, err
	}
	fw := &FileWriter[V]{
		dataPath:  dataPath,
		indexPath: indexPath,
		enc:       enc,
		opts:      *fo,
		started:   time.Now(),
	}
	opts := fo.Options.withDefaults()

	dataCodec := stream.CodecForPath(dataPath)
	indexCodec := stream.CodecForPath(indexPath)
	if fo.Append {
		if dataCodec != stream.None || indexCodec != stream.None {
			return nil, newError("open", -1, -1, ErrOpen, fmt.Errorf("can't append to compressed files '%s', '%s'", dataPath, indexPath))
		}
		if opts.StartOffset, fw.prevCount, err = appendState(dataPath, indexPath, opts.Index); err != nil {
			return nil, err
		}
	}

	if fw.dataSink, err = createSink(dataPath, fo.Append); err != nil {
		return nil, newError("create", -1, -1, ErrOpen, err)
	}
	if fw.indexSink, err = createSink(indexPath, fo.Append); err != nil {
		fw.dataSink.Abort()
		return nil, newError("create", -1, -1, ErrOpen, err)
	}
	var dataDst io.Writer = fw.dataSink
	if fo.Manifest {
		fw.dataHash = sha256.New()
		if fo.Append {
			if err = hashFile(fw.dataHash, dataPath); err != nil {
				fw.abortSinks()
				return nil, newError("open", -1, -1, ErrRead, err)
			}
		}
		dataDst = io.MultiWriter(fw.dataSink, fw.dataHash)
	}
	if fw.dataZ, err = stream.NewWriter(dataDst, dataCodec); err != nil {
		fw.abortSinks()
		return nil, newError("create", -1, -1, ErrOpen, err)
	}
	if fw.indexZ, err = stream.NewWriter(fw.indexSink, indexCodec); err != nil {
		fw.abortSinks()
		return nil, newError("create", -1, -1, ErrOpen, err)
	}
	fw.Writer = NewWriter(fw.dataZ, fw.indexZ, enc, &opts)
	log.Verbosef("recstore: writing '%s' (%s), index '%s' (%s)\n", dataPath, enc.Name(), indexPath, opts.Index.Name())
	return fw, nil
}

// appendState returns the size of the data and the number of index entries
// of an existing pair. Missing files count as empty.
func appendState(dataPath, indexPath string, idx recfmt.Encoding[int64]) (int64, int, error) {
	var size int64
	st, err := os.Stat(dataPath)
	if err == nil {
		size = st.Size()
	} else if !errors.Is(err, fs.ErrNotExist) {
		return 0, 0, newError("open", -1, -1, ErrOpen, err)
	}
	f, err := os.Open(indexPath)
	if errors.Is(err, fs.ErrNotExist) && size == 0 {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, newError("open", -1, -1, ErrOpen, err)
	}
	defer f.Close()
	n, err := Count(f, idx)
	if err != nil {
		return 0, 0, err
	}
	if (n == 0) != (size == 0) {
		return 0, 0, newError("open", n, size, ErrInconsistent, fmt.Errorf("'%s' has %d bytes, '%s' has %d entries", dataPath, size, indexPath, n))
	}
	return size, n, nil
}

func (fw *FileWriter[V]) abortSinks() {
	for _, z := range []io.WriteCloser{fw.dataZ, fw.indexZ} {
		if z != nil {
			_ = z.Close()
		}
	}
	fw.dataSink.Abort()
	fw.indexSink.Abort()
}

// Abort ends the session without publishing anything. In Append mode
// records already flushed stay in the files.
func (fw *FileWriter[V]) Abort() {
	if fw.finished {
		return
	}
	fw.finished = true
	fw.abortSinks()
	log.Verbosef("recstore: aborted writing '%s' after %d records\n", fw.dataPath, fw.Count())
}

// Close flushes buffered records, finishes compressed streams and publishes
// the manifest (if any), data and then index. On error nothing is
// published.
func (fw *FileWriter[V]) Close() error {
	if fw.finished {
		return fw.closeErr
	}
	if err := fw.close(); err != nil {
		fw.Abort()
		fw.closeErr = err
		return err
	}
	fw.finished = true
	_ = log.EventWithDuration("recstore.write", time.Since(fw.started), "data", fw.dataPath, "records", fw.Count(), "bytes", fw.Offset(), "flushes", fw.Flushes())
	return nil
}

func (fw *FileWriter[V]) manifest() *Manifest {
	m := &Manifest{
		Records:     fw.prevCount + fw.Count(),
		DataBytes:   fw.Offset(),
		DataFormat:  fw.enc.Name(),
		IndexFormat: fw.Writer.opts.Index.Name(),
		DataFile:    filepath.Base(fw.dataPath),
		IndexFile:   filepath.Base(fw.indexPath),
		DataSHA256:  hex.EncodeToString(fw.dataHash.Sum(nil)),
		CreatedMs:   time.Now().UnixMilli(),
	}
	if c := stream.CodecForPath(fw.dataPath); c != stream.None {
		m.Compression = c.String()
	}
	return m
}

func (fw *FileWriter[V]) close() error {
	if err := fw.Writer.Close(); err != nil {
		return err
	}
	if err := fw.dataZ.Close(); err != nil {
		return newError("close", -1, -1, ErrWrite, err)
	}
	if err := fw.indexZ.Close(); err != nil {
		return newError("close", -1, -1, ErrWrite, err)
	}
	manifestPublished := false
	if fw.opts.Manifest {
		mf, err := stageManifest(fw.dataPath, fw.manifest())
		if err == nil {
			err = mf.Close()
		}
		if err != nil {
			return newError("manifest", -1, -1, ErrWrite, err)
		}
		manifestPublished = true
	}
	// undoes what's been published when a later step fails
	unpublish := func(paths ...string) {
		if fw.opts.Append {
			return
		}
		if manifestPublished {
			_ = os.Remove(ManifestPath(fw.dataPath))
		}
		for _, p := range paths {
			_ = os.Remove(p)
		}
	}
	if err := fw.dataSink.Close(); err != nil {
		unpublish()
		return newError("close", -1, -1, ErrWrite, err)
	}
	if err := fw.indexSink.Close(); err != nil {
		// don't leave data without an index
		unpublish(fw.dataPath)
		return newError("close", -1, -1, ErrWrite, err)
	}
	return nil
}

// WriteFiles writes all values as a new (or appended) file pair
func WriteFiles[V any](fo *FileOptions, enc recfmt.Encoding[V], values iter.Seq[V]) (int, error) {
	fw, err := Create(fo, enc)
	if err != nil {
		return 0, err
	}
	for v := range values {
		if err = fw.Append(v); err != nil {
			fw.Abort()
			return fw.Count(), err
		}
	}
	if err = fw.Close(); err != nil {
		return fw.Count(), err
	}
	return fw.Count(), nil
}

// FileReader reads records from a file pair. Plain files are read with
// seeks, compressed ones are reopened and read from the start as needed.
type FileReader[V any] struct {
	dataPath  string
	indexPath string
	enc       recfmt.Encoding[V]
	opts      Options

	index io.ReadCloser
	data  io.ReadCloser
	// true if read from since opened
	indexUsed bool
	dataUsed  bool
}

// Open opens a file pair for reading
func Open[V any](fo *FileOptions, enc recfmt.Encoding[V]) (*FileReader[V], error) {
	dataPath, indexPath, err := fo.paths()
	if err != nil {
		return nil, err
	}
	r := &FileReader[V]{
		dataPath:  dataPath,
		indexPath: indexPath,
		enc:       enc,
		opts:      fo.Options.withDefaults(),
	}
	if r.index, err = stream.Open(indexPath); err != nil {
		return nil, newError("open", -1, -1, ErrOpen, err)
	}
	if r.data, err = stream.Open(dataPath); err != nil {
		r.index.Close()
		return nil, newError("open", -1, -1, ErrOpen, err)
	}
	return r, nil
}

// rewind returns a stream positioned at the start of path, reopening it if
// it can't seek and was already read from
func rewind(rc *io.ReadCloser, used *bool, path string) error {
	if s, ok := (*rc).(io.Seeker); ok {
		_, err := s.Seek(0, io.SeekStart)
		if err != nil {
			return newError("rewind", -1, -1, ErrRead, err)
		}
		return nil
	}
	if *used {
		(*rc).Close()
		f, err := stream.Open(path)
		if err != nil {
			*rc = io.NopCloser(eofReader{})
			return newError("reopen", -1, -1, ErrOpen, err)
		}
		*rc = f
	}
	*used = true
	return nil
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) {
	return 0, io.EOF
}

func (r *FileReader[V]) rewind() error {
	if err := rewind(&r.index, &r.indexUsed, r.indexPath); err != nil {
		return err
	}
	return rewind(&r.data, &r.dataUsed, r.dataPath)
}

// Record returns record n
func (r *FileReader[V]) Record(n int) (V, error) {
	if err := r.rewind(); err != nil {
		var zero V
		return zero, err
	}
	return ReadRecord(r.index, r.data, r.enc, n, &r.opts)
}

// Count returns the number of records in the index
func (r *FileReader[V]) Count() (int, error) {
	if err := rewind(&r.index, &r.indexUsed, r.indexPath); err != nil {
		return 0, err
	}
	return Count(r.index, r.opts.Index)
}

// All iterates over all records in index order
func (r *FileReader[V]) All() (iter.Seq2[int, V], func() error) {
	if err := r.rewind(); err != nil {
		return func(func(int, V) bool) {}, func() error { return err }
	}
	return Records(r.index, r.data, r.enc, &r.opts)
}

// Verify checks index and data against each other, see Verify
func (r *FileReader[V]) Verify() (int, error) {
	n, _, err := r.verify()
	return n, err
}

func (r *FileReader[V]) verify() (int, int64, error) {
	if err := r.rewind(); err != nil {
		return 0, 0, err
	}
	return verify(r.index, r.data, r.enc, &r.opts)
}

// Close closes both files
func (r *FileReader[V]) Close() error {
	err := r.index.Close()
	if err2 := r.data.Close(); err == nil {
		err = err2
	}
	return err
}

// ReadFileRecord opens a file pair, reads record n and closes the files
func ReadFileRecord[V any](fo *FileOptions, enc recfmt.Encoding[V], n int) (V, error) {
	r, err := Open(fo, enc)
	if err != nil {
		var zero V
		return zero, err
	}
	defer r.Close()
	return r.Record(n)
}

// VerifyFiles verifies a file pair and, if there is one, checks it against
// its manifest. With fo.Manifest set a missing manifest is an error.
func VerifyFiles[V any](fo *FileOptions, enc recfmt.Encoding[V]) (int, error) {
	r, err := Open(fo, enc)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	n, size, err := r.verify()
	if err != nil {
		return n, err
	}
	m, err := ReadManifest(r.dataPath)
	if errors.Is(err, fs.ErrNotExist) && !fo.Manifest {
		return n, nil
	}
	if err != nil {
		return n, newError("manifest", -1, -1, ErrOpen, err)
	}
	return n, m.check(r.dataPath, n, size)
}

// RebuildIndex recreates the index file of a pair from its data file. The
// old index is replaced only if all of the data decodes.
func RebuildIndex[V any](fo *FileOptions, enc recfmt.Encoding[V]) (int, error) {
	dataPath, indexPath, err := fo.paths()
	if err != nil {
		return 0, err
	}
	data, err := stream.Open(dataPath)
	if err != nil {
		return 0, newError("open", -1, -1, ErrOpen, err)
	}
	defer data.Close()
	f, err := atomicfile.New(indexPath)
	if err != nil {
		return 0, newError("create", -1, -1, ErrOpen, err)
	}
	// no-op after a successful Close
	defer f.Abort()
	w, err := stream.NewWriter(f, stream.CodecForPath(indexPath))
	if err != nil {
		return 0, newError("create", -1, -1, ErrOpen, err)
	}
	timeStart := time.Now()
	n, err := BuildIndex(data, w, enc, &fo.Options)
	if err != nil {
		_ = w.Close()
		return n, err
	}
	if err = w.Close(); err != nil {
		return n, newError("close", -1, -1, ErrWrite, err)
	}
	if err = f.Close(); err != nil {
		return n, newError("close", -1, -1, ErrWrite, err)
	}
	_ = log.EventWithDuration("recstore.reindex", time.Since(timeStart), "data", dataPath, "records", n)
	return n, nil
}
