package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBotAPI_SendMessage(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	}))
	defer srv.Close()

	api := NewBotAPIWithBaseURL(srv.URL, "TOKEN")
	err := api.SendMessage(context.Background(), 42, "<b>hi</b>", Row(InlineButton{Text: "ok", CallbackData: "x"}))
	require.NoError(t, err)

	assert.Equal(t, float64(42), got["chat_id"])
	assert.Equal(t, "HTML", got["parse_mode"])
	assert.NotNil(t, got["reply_markup"])
}

func TestBotAPI_ErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`))
	}))
	defer srv.Close()

	err := NewBotAPIWithBaseURL(srv.URL, "TOKEN").SendMessage(context.Background(), 1, "x", nil)
	require.Error(t, err)
	assert.True(t, IsBlocked(err))
}

func TestCheckTelegramIP(t *testing.T) {
	assert.True(t, CheckTelegramIP("149.154.167.99"))
	assert.True(t, CheckTelegramIP("91.108.6.10"))
	assert.False(t, CheckTelegramIP("91.108.9.10"))
	assert.False(t, CheckTelegramIP("10.0.0.1"))
	assert.False(t, CheckTelegramIP("garbage"))
}
