package notifier_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vpnstore/internal/models"
	"vpnstore/internal/notifier"
	"vpnstore/internal/orchestrator"
	"vpnstore/internal/panel"
	"vpnstore/internal/panel/paneltest"
	"vpnstore/internal/pkg/telegram"
	"vpnstore/internal/testutil"
)

type sent struct {
	Method string
	Params map[string]interface{}
}

type botServer struct {
	mu    sync.Mutex
	calls []sent
}

func (b *botServer) byMethod(method string) []sent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []sent
	for _, c := range b.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func newBot(t *testing.T) (*botServer, *telegram.BotAPI) {
	t.Helper()
	b := &botServer{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var params map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&params)
		b.mu.Lock()
		b.calls = append(b.calls, sent{Method: r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:], Params: params})
		b.mu.Unlock()
		if params["chat_id"] == float64(403) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	}))
	t.Cleanup(srv.Close)
	return b, telegram.NewBotAPIWithBaseURL(srv.URL, "TOKEN")
}

func TestPaymentCompletedRefreshesSubscriptionLink(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, 5001, 0)
	fake := paneltest.New()
	acc, err := fake.CreateAccount(ctx, panel.CreateAccountRequest{Username: "tg_5001-home-abcd"})
	require.NoError(t, err)
	fake.SetLink(acc.ID, "https://panel.test/rotated")

	svc := &models.Service{
		UserID: user.ID, Name: "home", RemoteUsername: acc.Username, RemoteID: acc.ID,
		SubscriptionURL: acc.SubscriptionURL, TrafficLimitBytes: models.GBToBytes(30),
		ExpireAt: time.Now().Add(30 * 24 * time.Hour), IsActive: true,
	}
	require.NoError(t, db.Create(svc).Error)

	bot, api := newBot(t)
	n := notifier.New(api, fake, db, []int64{1}, zap.NewNop())
	n.PaymentCompleted(ctx, &orchestrator.Fulfillment{
		Payment: &models.Payment{ID: 7, UserID: user.ID, Type: models.PaymentTypePurchase},
		Service: svc,
	})

	msgs := bot.byMethod("sendMessage")
	require.Len(t, msgs, 1)
	assert.Equal(t, float64(5001), msgs[0].Params["chat_id"])
	assert.Contains(t, msgs[0].Params["text"], "https://panel.test/rotated")

	var stored models.Service
	require.NoError(t, db.First(&stored, svc.ID).Error)
	assert.Equal(t, "https://panel.test/rotated", stored.SubscriptionURL)
}

func TestPaymentCompletedKeepsStoredLinkWhenPanelFails(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	fake := paneltest.New()
	fake.LinkErr = errors.New("panel down")

	bot, api := newBot(t)
	n := notifier.New(api, fake, db, nil, zap.NewNop())
	n.PaymentCompleted(ctx, &orchestrator.Fulfillment{
		Payment: &models.Payment{ID: 8, Type: models.PaymentTypePurchase, User: &models.User{TelegramID: 5002}},
		Service: &models.Service{Name: "home", RemoteID: "uuid-1", SubscriptionURL: "https://panel.test/old"},
	})

	msgs := bot.byMethod("sendMessage")
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Params["text"], "https://panel.test/old")
}

func TestPaymentCompletedMessages(t *testing.T) {
	tests := []struct {
		name string
		f    *orchestrator.Fulfillment
		want string
	}{
		{
			name: "wallet charge shows balance",
			f: &orchestrator.Fulfillment{
				Payment:    &models.Payment{Type: models.PaymentTypeWalletCharge, AmountTomans: 50000, User: &models.User{TelegramID: 9}},
				NewBalance: 120000,
			},
			want: "120,000 تومان",
		},
		{
			name: "renewal shows expiry",
			f: &orchestrator.Fulfillment{
				Payment: &models.Payment{Type: models.PaymentTypeRenewal, User: &models.User{TelegramID: 9}},
				Service: &models.Service{Name: "home", ExpireAt: time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)},
			},
			want: "2026-05-02",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bot, api := newBot(t)
			n := notifier.New(api, nil, testutil.NewDB(t), nil, zap.NewNop())
			n.PaymentCompleted(context.Background(), tt.f)

			msgs := bot.byMethod("sendMessage")
			require.Len(t, msgs, 1)
			assert.Contains(t, msgs[0].Params["text"], tt.want)
		})
	}
}

func TestDuplicateCompletionIsSilent(t *testing.T) {
	bot, api := newBot(t)
	n := notifier.New(api, nil, testutil.NewDB(t), []int64{1}, zap.NewNop())
	n.PaymentCompleted(context.Background(), &orchestrator.Fulfillment{
		Payment:   &models.Payment{Type: models.PaymentTypeWalletCharge, User: &models.User{TelegramID: 9}},
		Duplicate: true,
	})
	assert.Empty(t, bot.byMethod("sendMessage"))
}

func TestPaymentFailedAlertsUserAndAdmins(t *testing.T) {
	bot, api := newBot(t)
	n := notifier.New(api, nil, testutil.NewDB(t), []int64{100, 200}, zap.NewNop())
	n.PaymentFailed(context.Background(),
		&models.Payment{ID: 31, Type: models.PaymentTypePurchase, Gateway: models.GatewayHosted, User: &models.User{TelegramID: 9}},
		errors.New("create remote account: <timeout>"))

	msgs := bot.byMethod("sendMessage")
	require.Len(t, msgs, 3)
	assert.Equal(t, float64(9), msgs[0].Params["chat_id"])
	assert.NotContains(t, msgs[0].Params["text"], "timeout")
	assert.Contains(t, msgs[1].Params["text"], "&lt;timeout&gt;")
	assert.Equal(t, float64(200), msgs[2].Params["chat_id"])
}

func TestManualReceiptSubmittedSendsReviewButtons(t *testing.T) {
	bot, api := newBot(t)
	n := notifier.New(api, nil, testutil.NewDB(t), []int64{100, 403}, zap.NewNop())
	n.ManualReceiptSubmitted(context.Background(), &models.Payment{
		ID: 12, Type: models.PaymentTypeWalletCharge, AmountTomans: 100000,
		ManualReceiptFileID: "photo-1", User: &models.User{TelegramID: 9, Username: "alice"},
	})

	photos := bot.byMethod("sendPhoto")
	require.Len(t, photos, 2, "a blocked admin does not stop delivery to the others")
	assert.Equal(t, "photo-1", photos[0].Params["photo"])
	markup, err := json.Marshal(photos[0].Params["reply_markup"])
	require.NoError(t, err)
	assert.Contains(t, string(markup), "approve:12")
	assert.Contains(t, string(markup), "reject:12")
}

func TestPaymentRejectedIncludesNote(t *testing.T) {
	bot, api := newBot(t)
	n := notifier.New(api, nil, testutil.NewDB(t), nil, zap.NewNop())
	n.PaymentRejected(context.Background(), &models.Payment{ID: 4, ReviewNote: "مبلغ اشتباه", User: &models.User{TelegramID: 9}})

	msgs := bot.byMethod("sendMessage")
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Params["text"], "مبلغ اشتباه")
}
