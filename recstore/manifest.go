package recstore

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/kjk/binrec/atomicfile"
	"github.com/minio/sha256-simd"
	"github.com/tidwall/pretty"
)

// Manifest is an optional sidecar describing a file pair. Data and index
// files have no header so this is the only place the record count and
// formats are written down.
type Manifest struct {
	Records     int    `json:"records"`
	DataBytes   int64  `json:"data_bytes"`
	DataFormat  string `json:"data_format"`
	IndexFormat string `json:"index_format"`
	DataFile    string `json:"data_file"`
	IndexFile   string `json:"index_file"`
	Compression string `json:"compression,omitempty"`
	// sha256 of the data file as stored, i.e. after compression
	DataSHA256 string `json:"data_sha256,omitempty"`
	CreatedMs  int64  `json:"created_ms"`
}

// ManifestPath returns the manifest path for a data file
func ManifestPath(dataPath string) string {
	return dataPath + ".manifest.json"
}

func marshalManifest(m *Manifest) ([]byte, error) {
	d, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return pretty.Pretty(d), nil
}

// WriteManifest atomically writes m next to dataPath
func WriteManifest(dataPath string, m *Manifest) error {
	d, err := marshalManifest(m)
	if err != nil {
		return err
	}
	return atomicfile.WriteFile(ManifestPath(dataPath), d)
}

// stageManifest writes m to a temporary file. Close publishes it.
func stageManifest(dataPath string, m *Manifest) (*atomicfile.File, error) {
	d, err := marshalManifest(m)
	if err != nil {
		return nil, err
	}
	f, err := atomicfile.New(ManifestPath(dataPath))
	if err != nil {
		return nil, err
	}
	if _, err = f.Write(d); err != nil {
		f.Abort()
		return nil, err
	}
	return f, nil
}

// ReadManifest reads the manifest of dataPath. Returns an error wrapping
// os.ErrNotExist if there isn't one.
func ReadManifest(dataPath string) (*Manifest, error) {
	path := ManifestPath(dataPath)
	d, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err = json.Unmarshal(d, &m); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return &m, nil
}

// hashFile adds the content of path to h. A missing file is empty.
func hashFile(h hash.Hash, path string) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(h, f)
	return err
}

func fileSHA256(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	h := sha256.New()
	if err := hashFile(h, path); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// check compares a manifest with what was found in the files
func (m *Manifest) check(dataPath string, records int, dataBytes int64) error {
	if m.Records != records {
		return newError("manifest", records, -1, ErrInconsistent, fmt.Errorf("manifest says %d records", m.Records))
	}
	if m.DataBytes != dataBytes {
		return newError("manifest", -1, dataBytes, ErrInconsistent, fmt.Errorf("manifest says %d bytes of data", m.DataBytes))
	}
	if m.DataSHA256 == "" {
		return nil
	}
	sum, err := fileSHA256(dataPath)
	if err != nil {
		return newError("manifest", -1, -1, ErrRead, err)
	}
	if sum != m.DataSHA256 {
		return newError("manifest", -1, -1, ErrInconsistent, fmt.Errorf("sha256 of '%s' is %s, manifest says %s", filepath.Base(dataPath), sum, m.DataSHA256))
	}
	return nil
}
