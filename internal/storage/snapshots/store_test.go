package snapshots

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/common"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
)

type upload struct {
	method      string
	path        string
	contentType string
	body        []byte
}

func newBucketServer(t *testing.T, status int) (*httptest.Server, *[]upload, *sync.Mutex) {
	t.Helper()
	var (
		mu      sync.Mutex
		uploads []upload
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		uploads = append(uploads, upload{r.Method, r.URL.Path, r.Header.Get("Content-Type"), body})
		mu.Unlock()
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, &uploads, &mu
}

func testConfig(endpoint string) common.SnapshotsConfig {
	return common.SnapshotsConfig{
		Enabled:         true,
		Bucket:          "scout",
		Region:          "auto",
		Endpoint:        endpoint,
		AccessKeyID:     "test",
		SecretAccessKey: "secret",
		Prefix:          "snapshots/",
		UsePathStyle:    true,
	}
}

func TestPutUploadsUnderPrefix(t *testing.T) {
	srv, uploads, mu := newBucketServer(t, http.StatusOK)
	store, err := NewS3Store(context.Background(), testConfig(srv.URL), arbor.NewLogger())
	require.NoError(t, err)

	key, err := store.Put(context.Background(), "jobs/job_1/20260101T000000Z.html", []byte("<html></html>"), "text/html; charset=utf-8")
	require.NoError(t, err)
	assert.Equal(t, "snapshots/jobs/job_1/20260101T000000Z.html", key)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, *uploads, 1)
	got := (*uploads)[0]
	assert.Equal(t, http.MethodPut, got.method)
	assert.Equal(t, "/scout/snapshots/jobs/job_1/20260101T000000Z.html", got.path)
	assert.Equal(t, "text/html; charset=utf-8", got.contentType)
}

func TestPutReportsStorageError(t *testing.T) {
	srv, _, _ := newBucketServer(t, http.StatusForbidden)
	store, err := NewS3Store(context.Background(), testConfig(srv.URL), arbor.NewLogger())
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "jobs/job_1/x.html", []byte("x"), "text/html")
	require.Error(t, err)
	assert.Equal(t, models.ErrorTypeStorage, models.ClassifyError(err))
}

func TestNewStoreDisabledIsNop(t *testing.T) {
	store, err := NewStore(context.Background(), common.SnapshotsConfig{}, arbor.NewLogger())
	require.NoError(t, err)
	assert.False(t, store.Enabled())

	_, err = NewStore(context.Background(), common.SnapshotsConfig{Enabled: true}, arbor.NewLogger())
	assert.True(t, models.IsValidationError(err))
}
