package blob

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nymtech/nym-sub006/internal/httpclient"
	"github.com/nymtech/nym-sub006/internal/infrastructure/monitoring"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestStageAndTake(t *testing.T) {
	s := NewStore(Config{Origin: "https://app.test"})

	ref, err := s.Stage(context.Background(), []byte("payload"), "image/png")
	require.NoError(t, err)

	assert.Equal(t, "blob:https://app.test/"+ref.ID, ref.Handle)
	assert.True(t, strings.HasPrefix(ref.ID, "blob_"))
	assert.Equal(t, int64(7), ref.Size)
	assert.Equal(t, "image/png", ref.Type)
	assert.Equal(t, 1, s.Len())

	data, typ, err := s.Take(ref.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
	assert.Equal(t, "image/png", typ)
	assert.Equal(t, 0, s.Len())

	_, _, err = s.Take(ref.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve(t *testing.T) {
	s := NewStore(Config{Origin: "https://app.test"})
	ref, err := s.Stage(context.Background(), []byte{1, 2, 3}, "")
	require.NoError(t, err)

	_, _, err = s.Resolve(context.Background(), "blob:https://other.test/"+ref.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = s.Resolve(context.Background(), "https://app.test/"+ref.ID)
	assert.ErrorIs(t, err, ErrBadHandle)

	data, _, err := s.Resolve(context.Background(), ref.Handle)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)
}

func TestParseHandle(t *testing.T) {
	tests := []struct {
		handle  string
		origin  string
		id      string
		wantErr bool
	}{
		{handle: "blob:https://app.test/blob_1", origin: "https://app.test", id: "blob_1"},
		{handle: "blob:null/blob_2", origin: "null", id: "blob_2"},
		{handle: "blob:https://app.test:8080/a/b", origin: "https://app.test:8080/a", id: "b"},
		{handle: "https://app.test/blob_1", wantErr: true},
		{handle: "blob:no-slash", wantErr: true},
		{handle: "blob:https://app.test/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.handle, func(t *testing.T) {
			origin, blobID, err := ParseHandle(tt.handle)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrBadHandle)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.origin, origin)
			assert.Equal(t, tt.id, blobID)
		})
	}
}

func TestExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	s := NewStore(Config{TTL: time.Minute}, WithClock(clock.Now), WithMetrics(metrics))

	stale, err := s.Stage(context.Background(), []byte("old"), "")
	require.NoError(t, err)
	clock.Advance(45 * time.Second)
	fresh, err := s.Stage(context.Background(), []byte("new"), "")
	require.NoError(t, err)
	expiredOnTake, err := s.Stage(context.Background(), []byte("late"), "")
	require.NoError(t, err)

	clock.Advance(30 * time.Second)
	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 2, s.Len())

	_, _, err = s.Take(stale.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	clock.Advance(time.Minute)
	_, _, err = s.Take(expiredOnTake.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.True(t, s.Release(fresh.ID))
	assert.False(t, s.Release(fresh.ID))

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.BlobsStaged))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.BlobsExpired))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.BlobsPending))
}

func TestRunStopsOnCancel(t *testing.T) {
	s := NewStore(Config{SweepInterval: time.Millisecond, TTL: time.Millisecond})
	_, err := s.Stage(context.Background(), []byte("x"), "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func newRouter(s *Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/blobs/:id", s.Handler())
	return r
}

func TestHandler(t *testing.T) {
	s := NewStore(Config{})
	router := newRouter(s)
	ref, err := s.Stage(context.Background(), []byte("small"), "text/plain")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/blobs/"+ref.ID, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	assert.Equal(t, "small", w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/blobs/"+ref.ID, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlerCompressesLargeBlobs(t *testing.T) {
	s := NewStore(Config{})
	router := newRouter(s)
	payload := bytes.Repeat([]byte("mixnet "), 1000)
	ref, err := s.Stage(context.Background(), payload, "text/plain")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/blobs/"+ref.ID, nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	assert.Less(t, w.Body.Len(), len(payload))

	zr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	got, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestHTTPResolver(t *testing.T) {
	s := NewStore(Config{Origin: "https://app.test"})
	srv := httptest.NewServer(newRouter(s))
	defer srv.Close()

	cfg := httpclient.DefaultConfig()
	cfg.MaxRetries = 0
	resolver := NewHTTPResolver(srv.URL+"/", httpclient.New(cfg))

	payload := bytes.Repeat([]byte{0xab}, 4096)
	ref, err := s.Stage(context.Background(), payload, "application/octet-stream")
	require.NoError(t, err)

	data, typ, err := resolver.Resolve(context.Background(), ref.Handle)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.Equal(t, "application/octet-stream", typ)

	_, _, err = resolver.Resolve(context.Background(), ref.Handle)
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = resolver.Resolve(context.Background(), "not-a-handle")
	assert.ErrorIs(t, err, ErrBadHandle)
}
