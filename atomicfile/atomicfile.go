package atomicfile

import (
	"errors"
	"io"
	"os"
	"path/filepath"
)

var (
	// ErrAborted is returned by calls made after Abort()
	ErrAborted = errors.New("atomicfile: aborted")

	_ io.WriteCloser = &File{}
	_ io.StringWriter = &File{}
)

// File is a file that is published at its destination path only on a
// successful Close
type File struct {
	dstPath string
	dir     string
	tmpPath string
	tmp     *os.File
	size    int64
	// first error, sticky
	err error
}

// New creates a temporary file next to path. The directory must exist.
func New(path string) (*File, error) {
	dir, name := filepath.Split(path)
	if name == "" {
		return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrInvalid}
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return nil, err
	}
	return &File{
		dstPath: path,
		dir:     dir,
		tmpPath: tmp.Name(),
		tmp:     tmp,
	}, nil
}

// Path returns the destination path
func (f *File) Path() string {
	return f.dstPath
}

// TempPath returns the path of the temporary file
func (f *File) TempPath() string {
	return f.tmpPath
}

// Size returns the number of bytes written so far
func (f *File) Size() int64 {
	return f.size
}

func (f *File) closed() bool {
	return f.tmp == nil
}

func (f *File) fail(err error) error {
	if err == nil {
		return nil
	}
	if f.err == nil {
		f.err = err
	}
	_ = f.Close()
	return err
}

func (f *File) Write(d []byte) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	if f.closed() {
		return 0, os.ErrClosed
	}
	n, err := f.tmp.Write(d)
	f.size += int64(n)
	return n, f.fail(err)
}

func (f *File) WriteString(s string) (int, error) {
	return f.Write([]byte(s))
}

func (f *File) Sync() error {
	if f.err != nil {
		return f.err
	}
	if f.closed() {
		return os.ErrClosed
	}
	return f.fail(f.tmp.Sync())
}

// Abort discards the temporary file. The destination is not created or
// changed. A no-op after Close, so it can be deferred.
func (f *File) Abort() {
	if f == nil || f.closed() {
		return
	}
	f.err = ErrAborted
	_ = f.Close()
}

// Close publishes the file. Calling it more than once returns the result
// of the first call.
func (f *File) Close() error {
	if f.closed() {
		return f.err
	}
	tmp := f.tmp
	f.tmp = nil

	// https://www.joeshaw.org/dont-defer-close-on-writable-files/
	errSync := tmp.Sync()
	errClose := tmp.Close()

	renamed := false
	defer func() {
		if !renamed {
			_ = os.Remove(f.tmpPath)
		}
	}()

	if f.err != nil {
		return f.err
	}
	err := errSync
	if err == nil {
		err = errClose
	}
	if err == nil {
		err = os.Rename(f.tmpPath, f.dstPath)
		renamed = err == nil
	}
	if renamed {
		// the rename itself must survive a crash; best effort
		if d, _ := os.Open(f.dir); d != nil {
			_ = d.Sync()
			_ = d.Close()
		}
	}
	f.err = err
	return err
}

// WriteFile writes d to path atomically
func WriteFile(path string, d []byte) error {
	f, err := New(path)
	if err != nil {
		return err
	}
	defer f.Abort()
	if _, err = f.Write(d); err != nil {
		return err
	}
	return f.Close()
}
