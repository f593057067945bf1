package panel

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

func TestMarzban_TokenCachedAndRelativeLink(t *testing.T) {
	var logins int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/admin/token":
			atomic.AddInt32(&logins, 1)
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "admin", r.PostForm.Get("username"))
			_, _ = w.Write([]byte(`{"access_token":"jwt-1","token_type":"bearer"}`))
		case "/api/user/tg_1-a-xxxx":
			assert.Equal(t, "Bearer jwt-1", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"username":"tg_1-a-xxxx","status":"active","data_limit":1073741824,
				"used_traffic":1024,"expire":1767225600,"subscription_url":"/sub/abc"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewMarzbanClient(srv.URL, "admin", "secret", 5*time.Second)
	ctx := context.Background()

	acc, err := c.GetAccountByUsername(ctx, "tg_1-a-xxxx")
	require.NoError(t, err)
	assert.Equal(t, "tg_1-a-xxxx", acc.ID)
	assert.Equal(t, int64(1073741824), acc.TrafficLimitBytes)
	assert.Equal(t, int64(1024), acc.UsedTrafficBytes)
	assert.Equal(t, srv.URL+"/sub/abc", acc.SubscriptionURL)
	assert.Equal(t, int64(1767225600), acc.ExpireAt.Unix())

	link, err := c.GetSubscriptionLink(ctx, "tg_1-a-xxxx")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/sub/abc", link)

	assert.Equal(t, int32(1), atomic.LoadInt32(&logins))
}

func TestMarzban_MissingAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/admin/token" {
			_, _ = w.Write([]byte(`{"access_token":"jwt-1"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"User not found"}`))
	}))
	defer srv.Close()

	c := NewMarzbanClient(srv.URL, "admin", "secret", 5*time.Second)
	_, err := c.GetAccountByUsername(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrAccountNotFound)
	assert.NoError(t, c.DeleteAccount(context.Background(), "nobody"))
}
