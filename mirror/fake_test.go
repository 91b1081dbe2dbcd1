package mirror

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
	"github.com/stretchr/testify/require"
)

const testBucket = "pairs"

// fakeS3 is an in-memory S3 server that records requests
type fakeS3 struct {
	*httptest.Server

	mu       sync.Mutex
	requests []string
	// if > 0, bodies of object downloads are cut after that many bytes
	cutAfter int
}

func newFakeS3(t *testing.T) *fakeS3 {
	backend := s3mem.New()
	require.NoError(t, backend.CreateBucket(testBucket))
	h := gofakes3.New(backend).Server()
	f := &fakeS3{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, r.Method+" "+r.URL.Path)
		cut := f.cutAfter
		f.mu.Unlock()
		if cut > 0 && r.Method == http.MethodGet && r.URL.RawQuery == "" {
			w = &cutWriter{ResponseWriter: w, left: cut}
		}
		h.ServeHTTP(w, r)
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeS3) config() *Config {
	return &Config{
		Access:   "access",
		Secret:   "secret",
		Bucket:   testBucket,
		Endpoint: strings.TrimPrefix(f.URL, "http://"),
		Region:   "us-east-1",
		Insecure: true,
	}
}

// puts returns paths of PUT requests, in order
func (f *fakeS3) puts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []string
	for _, r := range f.requests {
		if p, ok := strings.CutPrefix(r, http.MethodPut+" "); ok {
			res = append(res, p)
		}
	}
	return res
}

func (f *fakeS3) setCutAfter(n int) {
	f.mu.Lock()
	f.cutAfter = n
	f.mu.Unlock()
}

var errCut = errors.New("connection cut")

// cutWriter sends only the first left bytes of a response body
type cutWriter struct {
	http.ResponseWriter
	left int
}

func (w *cutWriter) Write(p []byte) (int, error) {
	if len(p) <= w.left {
		n, err := w.ResponseWriter.Write(p)
		w.left -= n
		return n, err
	}
	n, _ := w.ResponseWriter.Write(p[:w.left])
	w.left = 0
	return n, errCut
}
