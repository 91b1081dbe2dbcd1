// Package stream opens files as plain or compressed byte streams.
//
// Record writers and readers only see io.Writer / io.Reader, so a data or
// index file can be compressed without them knowing. The codec is picked by
// file extension. Plain files are returned as *os.File so callers can seek;
// compressed streams can't seek and must be read front to back.
package stream

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// Codec is a compression format
type Codec int

const (
	None Codec = iota
	Gzip
	Zstd
	Brotli
	S2
)

func (c Codec) String() string {
	switch c {
	case None:
		return "none"
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	case Brotli:
		return "brotli"
	case S2:
		return "s2"
	}
	return fmt.Sprintf("Codec(%d)", int(c))
}

// Ext returns the file extension for c, "" for None
func (c Codec) Ext() string {
	switch c {
	case Gzip:
		return ".gz"
	case Zstd:
		return ".zst"
	case Brotli:
		return ".br"
	case S2:
		return ".s2"
	}
	return ""
}

// CodecForPath picks the codec from the file extension
// TODO: could sniff magic bytes when opening instead of trusting the extension
func CodecForPath(path string) Codec {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		return Gzip
	case ".zst", ".zstd":
		return Zstd
	case ".br":
		return Brotli
	case ".s2":
		return S2
	}
	return None
}

// implements io.ReadCloser where Close goes to both the decompressor and
// the underlying file
type readCloser struct {
	r      io.Reader
	closeR func() error
	f      io.Closer
}

func (rc *readCloser) Read(p []byte) (int, error) {
	return rc.r.Read(p)
}

func (rc *readCloser) Close() error {
	var err error
	if rc.closeR != nil {
		err = rc.closeR()
	}
	if rc.f != nil {
		if err2 := rc.f.Close(); err == nil {
			err = err2
		}
	}
	return err
}

// NewReader returns a decompressing reader over r. Close releases the
// decompressor but not r.
func NewReader(r io.Reader, c Codec) (io.ReadCloser, error) {
	switch c {
	case None:
		return io.NopCloser(r), nil
	case Gzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zr, nil
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	case Brotli:
		return io.NopCloser(brotli.NewReader(r)), nil
	case S2:
		return io.NopCloser(s2.NewReader(r)), nil
	}
	return nil, fmt.Errorf("unsupported codec %s", c)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error {
	return nil
}

// NewWriter returns a compressing writer over w. Close flushes the
// compressor but doesn't close w.
func NewWriter(w io.Writer, c Codec) (io.WriteCloser, error) {
	switch c {
	case None:
		return nopWriteCloser{w}, nil
	case Gzip:
		return gzip.NewWriterLevel(w, gzip.DefaultCompression)
	case Zstd:
		// SpeedBestCompression is much slower and not much smaller on numeric data
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	case Brotli:
		return brotli.NewWriterLevel(w, brotli.DefaultCompression), nil
	case S2:
		return s2.NewWriter(w), nil
	}
	return nil, fmt.Errorf("unsupported codec %s", c)
}

// Open opens a file for reading, decompressing based on its extension.
// Uncompressed files are returned as *os.File.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	c := CodecForPath(path)
	if c == None {
		return f, nil
	}
	r, err := NewReader(f, c)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("opening %s stream '%s': %w", c, path, err)
	}
	return &readCloser{r: r, closeR: r.Close, f: f}, nil
}

type writeCloser struct {
	w io.WriteCloser
	f *os.File
}

func (wc *writeCloser) Write(p []byte) (int, error) {
	return wc.w.Write(p)
}

// Close closes the compressor first so its trailer reaches the file
func (wc *writeCloser) Close() error {
	err := wc.w.Close()
	if err2 := wc.f.Close(); err == nil {
		err = err2
	}
	return err
}

// Create creates (or truncates) a file for writing, compressing based on
// its extension. Uncompressed files are returned as *os.File.
func Create(path string) (io.WriteCloser, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	c := CodecForPath(path)
	if c == None {
		return f, nil
	}
	w, err := NewWriter(f, c)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return &writeCloser{w: w, f: f}, nil
}

// ReadFile reads the whole, decompressed content of path
func ReadFile(path string) ([]byte, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
