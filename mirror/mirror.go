// Package mirror copies finished file pairs to and from S3-compatible
// storage (S3, R2, B2, minio).
package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/kjk/binrec/atomicfile"
	"github.com/kjk/binrec/log"
	"github.com/kjk/binrec/recstore"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Config struct {
	Access   string
	Secret   string
	Bucket   string
	Endpoint string
	Region   string
	// if true, uses http instead of https, for a local minio
	Insecure     bool
	RequestTrace io.Writer
}

func (c *Config) validate() error {
	if c == nil {
		return errors.New("must provide config")
	}
	if c.Access == "" || c.Secret == "" || c.Bucket == "" || c.Endpoint == "" {
		return errors.New("must provide Access, Secret, Bucket and Endpoint in config")
	}
	return nil
}

type Client struct {
	Client *minio.Client
	Bucket string
}

// New connects to the storage and checks that the bucket exists
func New(ctx context.Context, config *Config) (*Client, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	c := config
	mc, err := minio.New(c.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Access, c.Secret, ""),
		Region: c.Region,
		Secure: !c.Insecure,
	})
	if err != nil {
		return nil, err
	}
	if c.RequestTrace != nil {
		mc.TraceOn(c.RequestTrace)
	}
	found, err := mc.BucketExists(ctx, c.Bucket)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("bucket '%s' doesn't exist", c.Bucket)
	}
	return &Client{
		Client: mc,
		Bucket: c.Bucket,
	}, nil
}

// pairFiles returns local paths of data, index and manifest of a pair
func pairFiles(fo *recstore.FileOptions) (string, string, string) {
	indexPath := fo.IndexPath
	if indexPath == "" {
		indexPath = recstore.DefaultIndexPath(fo.DataPath)
	}
	return fo.DataPath, indexPath, recstore.ManifestPath(fo.DataPath)
}

// RemotePath returns the name of a local file under prefix
func RemotePath(prefix string, localPath string) string {
	return path.Join(prefix, filepath.Base(localPath))
}

// RemotePaths returns remote names of the data and index files
func RemotePaths(prefix string, fo *recstore.FileOptions) (string, string) {
	dataPath, indexPath, _ := pairFiles(fo)
	return RemotePath(prefix, dataPath), RemotePath(prefix, indexPath)
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func (c *Client) Exists(ctx context.Context, remotePath string) bool {
	_, err := c.Client.StatObject(ctx, c.Bucket, remotePath, minio.StatObjectOptions{})
	return err == nil
}

func (c *Client) UploadFile(ctx context.Context, remotePath string, path string) (minio.UploadInfo, error) {
	opts := minio.PutObjectOptions{
		ContentType: contentType(remotePath),
	}
	return c.Client.FPutObject(ctx, c.Bucket, remotePath, path, opts)
}

// UploadPair uploads data, manifest (if there is one) and index, in that
// order. A reader that sees the index can rely on the data being there.
func (c *Client) UploadPair(ctx context.Context, prefix string, fo *recstore.FileOptions) error {
	timeStart := time.Now()
	dataPath, indexPath, manifestPath := pairFiles(fo)
	files := []string{dataPath}
	if _, err := os.Stat(manifestPath); err == nil {
		files = append(files, manifestPath)
	}
	files = append(files, indexPath)

	var total int64
	for _, p := range files {
		remotePath := RemotePath(prefix, p)
		info, err := c.UploadFile(ctx, remotePath, p)
		if err != nil {
			return fmt.Errorf("upload of '%s' as '%s' failed with '%w'", p, remotePath, err)
		}
		total += info.Size
		log.Verbosef("mirror: uploaded '%s' as '%s' (%d bytes)\n", p, remotePath, info.Size)
	}
	_ = log.EventWithDuration("mirror.upload", time.Since(timeStart), "data", RemotePath(prefix, dataPath), "bytes", total)
	return nil
}

// download copies a remote file into a temporary file next to dstPath.
// Close publishes it.
func (c *Client) download(ctx context.Context, dstPath string, remotePath string) (*atomicfile.File, error) {
	obj, err := c.Client.GetObject(ctx, c.Bucket, remotePath, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	// ensure there's a dir for destination file
	err = os.MkdirAll(filepath.Dir(dstPath), 0755)
	if err != nil {
		return nil, err
	}
	f, err := atomicfile.New(dstPath)
	if err != nil {
		return nil, err
	}
	if _, err = io.Copy(f, obj); err != nil {
		f.Abort()
		return nil, fmt.Errorf("download of '%s' failed with '%w'", remotePath, err)
	}
	return f, nil
}

// DownloadFileAtomically downloads to dstPath. On error dstPath is not
// changed.
func (c *Client) DownloadFileAtomically(ctx context.Context, dstPath string, remotePath string) error {
	f, err := c.download(ctx, dstPath, remotePath)
	if err != nil {
		return err
	}
	return f.Close()
}

// DownloadPair downloads a pair uploaded with UploadPair to the paths in fo.
// Local files are replaced only after all of them are downloaded, the
// manifest (optional) first, then data, then index.
func (c *Client) DownloadPair(ctx context.Context, prefix string, fo *recstore.FileOptions) error {
	timeStart := time.Now()
	dataPath, indexPath, manifestPath := pairFiles(fo)
	var files []*atomicfile.File
	defer func() {
		// no-op for published files
		for _, f := range files {
			f.Abort()
		}
	}()

	remoteManifest := RemotePath(prefix, manifestPath)
	if c.Exists(ctx, remoteManifest) {
		f, err := c.download(ctx, manifestPath, remoteManifest)
		if err != nil {
			return err
		}
		files = append(files, f)
	}
	for _, p := range []string{dataPath, indexPath} {
		f, err := c.download(ctx, p, RemotePath(prefix, p))
		if err != nil {
			return err
		}
		files = append(files, f)
	}
	for _, f := range files {
		if err := f.Close(); err != nil {
			return err
		}
	}
	_ = log.EventWithDuration("mirror.download", time.Since(timeStart), "data", dataPath)
	return nil
}

func (c *Client) Remove(ctx context.Context, remotePath string) error {
	return c.Client.RemoveObject(ctx, c.Bucket, remotePath, minio.RemoveObjectOptions{})
}

// RemovePair removes a remote pair, index first
func (c *Client) RemovePair(ctx context.Context, prefix string, fo *recstore.FileOptions) error {
	dataPath, indexPath, manifestPath := pairFiles(fo)
	for _, p := range []string{indexPath, manifestPath, dataPath} {
		if err := c.Remove(ctx, RemotePath(prefix, p)); err != nil {
			return err
		}
	}
	return nil
}

// ListObjects lists remote files under prefix
func (c *Client) ListObjects(ctx context.Context, prefix string) <-chan minio.ObjectInfo {
	opts := minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}
	return c.Client.ListObjects(ctx, c.Bucket, opts)
}
