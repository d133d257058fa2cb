package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockvault/internal/config"
)

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "blobs")
	s, err := NewLocalStore(root)
	require.NoError(t, err)

	ok, err := s.Exists(ctx, "a.bv")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Get(ctx, "a.bv")
	assert.ErrorIs(t, err, ErrBlobNotFound)

	require.NoError(t, s.Put(ctx, "a.bv", []byte("cipher")))
	ok, err = s.Exists(ctx, "a.bv")
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := s.Get(ctx, "a.bv")
	require.NoError(t, err)
	assert.Equal(t, []byte("cipher"), data)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")

	require.NoError(t, s.Delete(ctx, "a.bv"))
	require.NoError(t, s.Delete(ctx, "a.bv"))
	_, err = s.Get(ctx, "a.bv")
	assert.ErrorIs(t, err, ErrBlobNotFound)
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"", "../x.bv", "dir/x.bv", `..\x.bv`, "."} {
		assert.Error(t, s.Put(context.Background(), name, []byte("x")), name)
	}
}

func TestNewSelectsBackend(t *testing.T) {
	cfg := &config.Config{Storage: config.StorageConfig{Type: "local", Local: config.LocalConfig{RootPath: t.TempDir()}}}
	s, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, s)

	cfg.Storage.Type = "tape"
	_, err = New(context.Background(), cfg)
	assert.Error(t, err)
}

// fakeS3 answers just enough of the S3 API for the MinIO client.
func fakeS3(t *testing.T) *httptest.Server {
	objects := map[string][]byte{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/blobs")
		switch {
		case key == "" || key == "/":
			// bucket location / existence
			if r.URL.Query().Has("location") {
				w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><LocationConstraint xmlns="http://s3.amazonaws.com/doc/2006-03-01/">us-east-1</LocationConstraint>`))
				return
			}
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			objects[key] = body
			w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodHead || r.Method == http.MethodGet:
			data, ok := objects[key]
			if !ok {
				w.Header().Set("Content-Type", "application/xml")
				w.WriteHeader(http.StatusNotFound)
				if r.Method == http.MethodGet {
					w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`))
				}
				return
			}
			w.Header().Set("Content-Type", blobContentType)
			w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
			w.Header().Set("Last-Modified", "Mon, 02 Jan 2006 15:04:05 GMT")
			w.Write(data)
		case r.Method == http.MethodDelete:
			delete(objects, key)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotImplemented)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestMinIOStoreMissingObject(t *testing.T) {
	srv := fakeS3(t)
	s, err := NewMinIOStore(context.Background(), config.MinIOConfig{
		Endpoint:   strings.TrimPrefix(srv.URL, "http://"),
		AccessKey:  "access",
		SecretKey:  "secret",
		BucketName: "blobs",
	})
	require.NoError(t, err)

	ok, err := s.Exists(context.Background(), "nope.bv")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Error(t, s.Put(context.Background(), "../escape", []byte("x")))
}
