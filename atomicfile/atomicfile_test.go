package atomicfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func assertFileExists(t *testing.T, path string) {
	t.Helper()
	st, err := os.Stat(path)
	if err != nil {
		t.Fatalf("file '%s' doesn't exist, os.Stat() failed with '%s'", path, err)
	}
	if !st.Mode().IsRegular() {
		t.Fatalf("path '%s' exists but is not a file (mode: %d)", path, int(st.Mode()))
	}
}

func assertFileNotExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err == nil {
		t.Fatalf("file '%s' exists, expected to not exist", path)
	}
}

func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("error: %s", err)
	}
}

func assertFileContent(t *testing.T, path string, exp string) {
	t.Helper()
	d, err := os.ReadFile(path)
	assertNoError(t, err)
	if string(d) != exp {
		t.Fatalf("path: '%s', expected content: '%s', got: '%s'", path, exp, string(d))
	}
}

func TestWriteAndPublish(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "data.bin")
	f, err := New(dst)
	assertNoError(t, err)
	assertFileExists(t, f.TempPath())
	assertFileNotExists(t, dst)

	_, err = f.Write([]byte("foo"))
	assertNoError(t, err)
	_, err = f.WriteString("bar\n")
	assertNoError(t, err)
	if f.Size() != 7 {
		t.Fatalf("expected size 7, got %d", f.Size())
	}
	// not visible until Close
	assertFileNotExists(t, dst)

	assertNoError(t, f.Close())
	assertFileNotExists(t, f.TempPath())
	assertFileContent(t, dst, "foobar\n")

	// second Close is a no-op, Abort after Close too
	assertNoError(t, f.Close())
	f.Abort()
	assertFileContent(t, dst, "foobar\n")

	_, err = f.Write([]byte("x"))
	if !errors.Is(err, os.ErrClosed) {
		t.Fatalf("expected os.ErrClosed, got %v", err)
	}
}

func TestOverwrite(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "index.txt")
	assertNoError(t, os.WriteFile(dst, []byte("old"), 0644))
	assertNoError(t, WriteFile(dst, []byte("new")))
	assertFileContent(t, dst, "new")
}

func TestAbort(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "data.bin")
	assertNoError(t, os.WriteFile(dst, []byte("keep"), 0644))

	f, err := New(dst)
	assertNoError(t, err)
	_, err = f.Write([]byte("discard"))
	assertNoError(t, err)
	f.Abort()
	assertFileNotExists(t, f.TempPath())
	assertFileContent(t, dst, "keep")

	_, err = f.Write([]byte("more"))
	if err != ErrAborted {
		t.Fatalf("expected %v, got %v", ErrAborted, err)
	}
	if err = f.Close(); err != ErrAborted {
		t.Fatalf("expected %v, got %v", ErrAborted, err)
	}
}

func TestSimulatedWriteError(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "data.bin")
	f, err := New(dst)
	assertNoError(t, err)
	errSimulated := errors.New("simulated")
	f.err = errSimulated
	if err = f.Close(); err != errSimulated {
		t.Fatalf("expected %v, got %v", errSimulated, err)
	}
	assertFileNotExists(t, f.TempPath())
	assertFileNotExists(t, dst)
}

func abortOnPanic(f *File) {
	defer f.Abort()
	_, _ = f.Write([]byte("foo"))
	panic("simulating a crash")
}

func TestAbortOnPanic(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "data.bin")
	f, err := New(dst)
	assertNoError(t, err)
	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected to panic")
			}
		}()
		abortOnPanic(f)
	}()
	assertFileNotExists(t, f.TempPath())
	assertFileNotExists(t, dst)
}

func TestMissingDir(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "foo", "bar.txt")
	f, err := New(dst)
	if err == nil {
		t.Fatalf("expected an error")
	}
	if f != nil {
		t.Fatalf("expected f to be nil, got %v", f)
	}
	if _, err = New(t.TempDir() + string(filepath.Separator)); err == nil {
		t.Fatalf("expected an error for a path without a file name")
	}
}
