package panel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vpnstore/internal/apperror"
)

func newRemnawaveServer(t *testing.T, handler http.HandlerFunc) *RemnawaveClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewRemnawaveClient(srv.URL, "token-1", 5*time.Second)
}

func TestRemnawave_CreateAccount(t *testing.T) {
	expire := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	c := newRemnawaveServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/users", r.URL.Path)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tg_1-home-abcd", body["username"])
		assert.Equal(t, "2026-05-01T00:00:00Z", body["expireAt"])
		assert.Equal(t, "ACTIVE", body["status"])
		assert.Equal(t, "NO_RESET", body["trafficLimitStrategy"])
		assert.Equal(t, float64(10737418240), body["trafficLimitBytes"])

		_, _ = w.Write([]byte(`{"response":{"uuid":"u-1","shortUuid":"s1","username":"tg_1-home-abcd","status":"ACTIVE",
			"subscriptionUrl":"https://sub/u-1","trafficLimitBytes":10737418240,"usedTrafficBytes":0,"expireAt":"2026-05-01T00:00:00Z"}}`))
	})

	acc, err := c.CreateAccount(context.Background(), CreateAccountRequest{
		Username:          "tg_1-home-abcd",
		TrafficLimitBytes: 10737418240,
		ExpireAt:          expire,
		TelegramID:        1,
	})
	require.NoError(t, err)
	assert.Equal(t, "u-1", acc.ID)
	assert.Equal(t, "s1", acc.ShortID)
	assert.Equal(t, "https://sub/u-1", acc.SubscriptionURL)
	assert.True(t, acc.Enabled)
	assert.True(t, acc.ExpireAt.Equal(expire))
}

func TestRemnawave_SchemaValidation(t *testing.T) {
	c := newRemnawaveServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":{"username":"x"}}`))
	})

	_, err := c.GetAccountByUsername(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, apperror.KindUpstream, apperror.KindOf(err))
}

func TestRemnawave_NotFound(t *testing.T) {
	c := newRemnawaveServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"User not found"}`))
	})

	_, err := c.GetAccountByUsername(context.Background(), "ghost")
	assert.True(t, errors.Is(err, ErrAccountNotFound))

	// deleting a missing account is not an error
	assert.NoError(t, c.DeleteAccount(context.Background(), "u-404"))
}

func TestRemnawave_UpdateResetAndLink(t *testing.T) {
	var paths []string
	c := newRemnawaveServer(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		switch r.URL.Path {
		case "/api/users":
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "DISABLED", body["status"])
			_, _ = w.Write([]byte(`{"response":{"uuid":"u-1","username":"n","status":"DISABLED","trafficLimitBytes":5,"userTraffic":{"usedTrafficBytes":3},"expireAt":"2026-01-01T00:00:00Z"}}`))
		case "/api/users/u-1/actions/reset-traffic":
			_, _ = w.Write([]byte(`{"response":{"uuid":"u-1","username":"n"}}`))
		case "/api/subscriptions/by-uuid/u-1":
			_, _ = w.Write([]byte(`{"response":{"isFound":true,"subscriptionUrl":"https://sub/new"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	ctx := context.Background()
	acc, err := c.UpdateAccount(ctx, UpdateAccountRequest{ID: "u-1", TrafficLimitBytes: 5, ExpireAt: time.Now(), Enabled: false})
	require.NoError(t, err)
	assert.False(t, acc.Enabled)
	assert.Equal(t, int64(3), acc.UsedTrafficBytes)

	require.NoError(t, c.ResetUsage(ctx, "u-1"))

	link, err := c.GetSubscriptionLink(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "https://sub/new", link)

	assert.Equal(t, []string{
		"PATCH /api/users",
		"POST /api/users/u-1/actions/reset-traffic",
		"GET /api/subscriptions/by-uuid/u-1",
	}, paths)
}
