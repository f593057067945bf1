package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient() *Client {
	return New().WithRetry(2, time.Millisecond, 5*time.Millisecond)
}

func TestClient_RetryClasses(t *testing.T) {
	testCases := []struct {
		name      string
		status    int
		method    string
		marked    bool
		wantCalls int32
	}{
		{name: "get retries 5xx", status: http.StatusBadGateway, method: http.MethodGet, wantCalls: 3},
		{name: "get retries 429", status: http.StatusTooManyRequests, method: http.MethodGet, wantCalls: 3},
		{name: "get does not retry 4xx", status: http.StatusBadRequest, method: http.MethodGet, wantCalls: 1},
		{name: "post not retried unless marked", status: http.StatusServiceUnavailable, method: http.MethodPost, wantCalls: 1},
		{name: "marked post retried", status: http.StatusServiceUnavailable, method: http.MethodPost, marked: true, wantCalls: 3},
		{name: "marked patch keeps 4xx terminal", status: http.StatusNotFound, method: http.MethodPatch, marked: true, wantCalls: 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"message":"nope"}`))
			}))
			defer srv.Close()

			ctx := context.Background()
			if tc.marked {
				ctx = Idempotent(ctx)
			}
			_, err := newTestClient().Do(ctx, tc.method, srv.URL, map[string]string{"a": "b"})
			require.Error(t, err)
			assert.True(t, IsStatus(err, tc.status), "got %v", err)
			assert.Equal(t, tc.wantCalls, atomic.LoadInt32(&calls))
		})
	}
}

func TestClient_RecoversAfterTransientFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	body, err := newTestClient().Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_BearerAndBaseURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/users", r.URL.Path)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient().WithBaseURL(srv.URL).WithBearerToken("secret")
	_, err := c.Get(context.Background(), "/api/users")
	require.NoError(t, err)
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(context.Canceled))
	assert.True(t, Retryable(&StatusError{StatusCode: 503}))
	assert.False(t, Retryable(&StatusError{StatusCode: 409}))
	assert.True(t, Retryable(assert.AnError))
}

func TestClient_RetriesDroppedConnection(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			conn, _, err := w.(http.Hijacker).Hijack()
			require.NoError(t, err)
			_ = conn.Close()
			return
		}
		_, _ = w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	body, err := newTestClient().Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_NoRetryWithoutBudget(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New().WithRetry(0, time.Millisecond, time.Millisecond).Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusBadGateway))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
