package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kjk/binrec/recfmt"
	"github.com/kjk/binrec/recstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err, "binrec %s: %s", strings.Join(args, " "), out)
	return out
}

func TestWriteRead(t *testing.T) {
	data := filepath.Join(t.TempDir(), "digits.txt")
	common := []string{"--data", data, "--data-format", "text"}

	out := mustRun(t, append([]string{"write", "--count", "10", "--manifest"}, common...)...)
	assert.Equal(t, "wrote 10 records to "+data+" (20B)\n", out)

	out = mustRun(t, append([]string{"read", "5", "0", "9"}, common...)...)
	assert.Equal(t, "5\n0\n9\n", out)

	out = mustRun(t, append([]string{"count"}, common...)...)
	assert.Equal(t, "10\n", out)

	out = mustRun(t, append([]string{"verify", "--manifest"}, common...)...)
	assert.Equal(t, "ok, 10 records\n", out)

	out = mustRun(t, append([]string{"dump"}, common...)...)
	assert.True(t, strings.HasPrefix(out, "0\t0\n1\t1\n"), "%s", out)

	_, err := run(t, append([]string{"read", "10"}, common...)...)
	assert.Error(t, err)
	_, err = run(t, append([]string{"read", "x"}, common...)...)
	assert.Error(t, err)
}

func TestWriteSqrtCompressed(t *testing.T) {
	data := filepath.Join(t.TempDir(), "sqrt.bin.zst")
	common := []string{"--data", data, "--type", "float64", "--index-format", "binary"}
	mustRun(t, append([]string{"write", "--count", "1000", "--gen", "sqrt", "--flush-every", "64"}, common...)...)

	out := mustRun(t, append([]string{"read", "0", "4"}, common...)...)
	assert.Equal(t, "NaN\n0.5\n", out)

	_, err := run(t, "write", "--gen", "sqrt", "--type", "int32", "--data", data)
	assert.Error(t, err)
}

func TestReindex(t *testing.T) {
	data := filepath.Join(t.TempDir(), "v.bin")
	common := []string{"--data", data, "--type", "uint16"}
	mustRun(t, append([]string{"write", "--count", "300"}, common...)...)
	require.NoError(t, os.Remove(data+".idx"))

	out := mustRun(t, append([]string{"reindex"}, common...)...)
	assert.Equal(t, "indexed 300 records\n", out)
	out = mustRun(t, append([]string{"read", "299"}, common...)...)
	assert.Equal(t, "299\n", out)
}

func TestSizes(t *testing.T) {
	out := mustRun(t, "sizes", "--dir", t.TempDir())
	assert.Contains(t, out, "508")
	assert.Contains(t, out, "INT32")
	assert.True(t, strings.HasSuffix(out, "ratio: 4.0\n"), "%s", out)
}

func TestEnvConfig(t *testing.T) {
	data := filepath.Join(t.TempDir(), "env.bin")
	t.Setenv("BINREC_TYPE", "int8")
	t.Setenv("BINREC_DATA", data)
	mustRun(t, "write", "--count", "5")

	st, err := os.Stat(data)
	require.NoError(t, err)
	assert.Equal(t, int64(5), st.Size())
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "cfg.txt")
	cfgPath := filepath.Join(dir, "binrec.yaml")
	cfg := "data: " + data + "\ndata-format: text\ntype: int32\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0644))

	mustRun(t, "write", "--config", cfgPath, "--count", "3")
	d, err := os.ReadFile(data)
	require.NoError(t, err)
	assert.Equal(t, "0\n1\n2\n", string(d))
}

func TestBadFlags(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, "write", "--type", "int128", "--data", filepath.Join(dir, "a"))
	assert.Error(t, err)
	_, err = run(t, "write", "--index-format", "xml", "--data", filepath.Join(dir, "b"))
	assert.Error(t, err)
	_, err = run(t, "push", "--data", filepath.Join(dir, "c"))
	assert.Error(t, err)
}

func TestNewSession(t *testing.T) {
	for _, typ := range []string{"int8", "int16", "int32", "int64", "uint8", "uint16", "uint32", "uint64", "float32", "float64"} {
		for _, format := range []string{"binary", "text"} {
			s, err := newSession(typ, format)
			require.NoError(t, err)
			assert.NotNil(t, s)
		}
	}
	_, err := newSession("int64", "csv")
	assert.Error(t, err)
}

func TestCheckSpace(t *testing.T) {
	fo := &recstore.FileOptions{
		DataPath: filepath.Join(t.TempDir(), "huge.bin"),
		Options:  recstore.Options{Index: recfmt.BinaryOffsets},
	}
	assert.NoError(t, checkSpace(fo, 8, 10))
	assert.Error(t, checkSpace(fo, 8, 1<<50))
	// variable width isn't checked
	assert.NoError(t, checkSpace(fo, 0, 1<<50))
}
