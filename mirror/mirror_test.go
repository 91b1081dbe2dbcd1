package mirror

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/kjk/binrec/recfmt"
	"github.com/kjk/binrec/recstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	var c *Config
	assert.Error(t, c.validate())

	c = &Config{Access: "a", Secret: "s", Bucket: "b"}
	assert.Error(t, c.validate())
	c.Endpoint = "localhost:9000"
	assert.NoError(t, c.validate())

	_, err := New(context.Background(), &Config{Bucket: "b"})
	require.Error(t, err)
}

func TestRemotePaths(t *testing.T) {
	fo := &recstore.FileOptions{DataPath: filepath.Join("out", "sqrt.bin.gz")}
	data, index := RemotePaths("backups/2026", fo)
	assert.Equal(t, "backups/2026/sqrt.bin.gz", data)
	assert.Equal(t, "backups/2026/sqrt.bin.idx.gz", index)

	fo.IndexPath = filepath.Join("idx", "offsets.txt")
	_, index = RemotePaths("", fo)
	assert.Equal(t, "offsets.txt", index)

	_, _, manifest := pairFiles(fo)
	assert.Equal(t, "sqrt.bin.gz.manifest.json", RemotePath("", manifest))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/octet-stream", contentType("data.bin"))
	assert.Equal(t, "application/json", contentType("data.bin.manifest.json"))
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var res []string
	for _, e := range entries {
		res = append(res, e.Name())
	}
	return res
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	d, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(d)
}

// writeTestPair writes 0..99 as int64 with a manifest
func writeTestPair(t *testing.T, dir string) *recstore.FileOptions {
	t.Helper()
	vals := make([]int64, 100)
	for i := range vals {
		vals[i] = int64(i)
	}
	fo := &recstore.FileOptions{
		DataPath: filepath.Join(dir, "data.bin"),
		Manifest: true,
	}
	_, err := recstore.WriteFiles(fo, recfmt.Binary[int64]{}, slices.Values(vals))
	require.NoError(t, err)
	return fo
}

func TestNewMissingBucket(t *testing.T) {
	fake := newFakeS3(t)
	cfg := fake.config()
	cfg.Bucket = "nope"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestUploadDownloadPair(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3(t)
	c, err := New(ctx, fake.config())
	require.NoError(t, err)

	fo := writeTestPair(t, t.TempDir())
	require.NoError(t, c.UploadPair(ctx, "backups", fo))
	// data before the index
	assert.Equal(t, []string{
		"/pairs/backups/data.bin",
		"/pairs/backups/data.bin.manifest.json",
		"/pairs/backups/data.bin.idx",
	}, fake.puts())
	assert.True(t, c.Exists(ctx, "backups/data.bin.idx"))
	assert.False(t, c.Exists(ctx, "backups/other.bin"))

	var names []string
	for obj := range c.ListObjects(ctx, "backups") {
		require.NoError(t, obj.Err)
		names = append(names, obj.Key)
	}
	slices.Sort(names)
	assert.Equal(t, []string{"backups/data.bin", "backups/data.bin.idx", "backups/data.bin.manifest.json"}, names)

	dstDir := filepath.Join(t.TempDir(), "restored")
	dst := &recstore.FileOptions{DataPath: filepath.Join(dstDir, "data.bin"), Manifest: true}
	require.NoError(t, c.DownloadPair(ctx, "backups", dst))
	assert.Equal(t, []string{"data.bin", "data.bin.idx", "data.bin.manifest.json"}, dirNames(t, dstDir))
	assert.Equal(t, readFile(t, fo.DataPath), readFile(t, dst.DataPath))

	n, err := recstore.VerifyFiles(dst, recfmt.Binary[int64]{})
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	v, err := recstore.ReadFileRecord(dst, recfmt.Binary[int64]{}, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	require.NoError(t, c.RemovePair(ctx, "backups", fo))
	assert.False(t, c.Exists(ctx, "backups/data.bin"))
	assert.False(t, c.Exists(ctx, "backups/data.bin.idx"))
	assert.False(t, c.Exists(ctx, "backups/data.bin.manifest.json"))
}

func TestFailedDownloadChangesNothing(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3(t)
	c, err := New(ctx, fake.config())
	require.NoError(t, err)
	fo := writeTestPair(t, t.TempDir())
	require.NoError(t, c.UploadPair(ctx, "", fo))

	dir := t.TempDir()
	dst := &recstore.FileOptions{DataPath: filepath.Join(dir, "data.bin")}
	require.NoError(t, os.WriteFile(dst.DataPath, []byte("old data"), 0644))
	require.NoError(t, os.WriteFile(dst.DataPath+".idx", []byte("old index"), 0644))

	// data is 800 bytes, the index and the manifest are smaller
	fake.setCutAfter(500)
	err = c.DownloadPair(ctx, "", dst)
	require.Error(t, err)
	assert.Equal(t, []string{"data.bin", "data.bin.idx"}, dirNames(t, dir))
	assert.Equal(t, "old data", readFile(t, dst.DataPath))
	assert.Equal(t, "old index", readFile(t, dst.DataPath+".idx"))

	err = c.DownloadFileAtomically(ctx, dst.DataPath, "data.bin")
	require.Error(t, err)
	assert.Equal(t, "old data", readFile(t, dst.DataPath))

	fake.setCutAfter(0)
	require.NoError(t, c.DownloadFileAtomically(ctx, dst.DataPath, "data.bin"))
	assert.Equal(t, readFile(t, fo.DataPath), readFile(t, dst.DataPath))

	err = c.DownloadFileAtomically(ctx, filepath.Join(dir, "missing.bin"), "missing.bin")
	require.Error(t, err)
	assert.Equal(t, []string{"data.bin", "data.bin.idx"}, dirNames(t, dir))
}
