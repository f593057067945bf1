package bot

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

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
	"gorm.io/gorm"

	"vpnstore/internal/apperror"
	"vpnstore/internal/config"
	"vpnstore/internal/middleware"
	"vpnstore/internal/models"
	"vpnstore/internal/orchestrator"
	"vpnstore/internal/testutil"
	"vpnstore/internal/wallet"
)

const adminID int64 = 999

type apiCall struct {
	method string
	params map[string]interface{}
}

// telegramServer answers every Bot API method with a message.
type telegramServer struct {
	mu    sync.Mutex
	calls []apiCall
}

func (s *telegramServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	params := map[string]interface{}{}
	_ = json.NewDecoder(r.Body).Decode(&params)
	s.mu.Lock()
	s.calls = append(s.calls, apiCall{method: r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:], params: params})
	s.mu.Unlock()
	_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":1,"type":"private"}}}`))
}

func (s *telegramServer) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, c := range s.calls {
		if c.method == "sendMessage" {
			text, _ := c.params["text"].(string)
			markup, _ := c.params["reply_markup"].(string)
			out = append(out, text+markup)
		}
	}
	return out
}

func (s *telegramServer) last() string {
	sent := s.sent()
	if len(sent) == 0 {
		return ""
	}
	return sent[len(sent)-1]
}

type fakePayments struct {
	charges   []models.PaymentGateway
	purchases []orchestrator.PurchaseInput
	receipts  []string
	approved  []uint
	rejected  []uint
	intent    *orchestrator.Intent
	manual    *models.Payment
	err       error
	reviewErr error
}

func (f *fakePayments) CreateWalletChargePayment(_ context.Context, _ int64, amount int64, gw models.PaymentGateway) (*orchestrator.Intent, error) {
	f.charges = append(f.charges, gw)
	if f.err != nil {
		return nil, f.err
	}
	return &orchestrator.Intent{Payment: &models.Payment{ID: 11, Gateway: gw, AmountTomans: amount}}, nil
}

func (f *fakePayments) CreatePurchasePayment(_ context.Context, in orchestrator.PurchaseInput) (*orchestrator.Intent, error) {
	f.purchases = append(f.purchases, in)
	return f.intent, f.err
}

func (f *fakePayments) CreateRenewPayment(context.Context, orchestrator.RenewInput) (*orchestrator.Intent, error) {
	return f.intent, f.err
}

func (f *fakePayments) CreateHostedOrder(_ context.Context, id uint) (*orchestrator.HostedOrder, error) {
	return &orchestrator.HostedOrder{PaymentID: id, Authority: "AUTH00000001", PayLink: "https://gateway.test/pay/AUTH00000001"}, nil
}

func (f *fakePayments) LatestManualPayment(context.Context, int64) (*models.Payment, error) {
	if f.manual == nil {
		return nil, apperror.ErrPaymentNotFound
	}
	return f.manual, nil
}

func (f *fakePayments) SubmitManualReceipt(_ context.Context, id uint, _ int64, fileID string) (*models.Payment, error) {
	f.receipts = append(f.receipts, fileID)
	p := *f.manual
	p.ManualReceiptFileID = fileID
	return &p, nil
}

func (f *fakePayments) ApproveManualPayment(_ context.Context, id uint, _ int64) (*orchestrator.Fulfillment, error) {
	f.approved = append(f.approved, id)
	if f.reviewErr != nil {
		return nil, f.reviewErr
	}
	return &orchestrator.Fulfillment{Payment: &models.Payment{ID: id}}, nil
}

func (f *fakePayments) RejectManualPayment(_ context.Context, id uint, _ int64, _ string) (*models.Payment, error) {
	f.rejected = append(f.rejected, id)
	return &models.Payment{ID: id}, nil
}

func (f *fakePayments) CancelPayment(_ context.Context, id uint, _ int64) (*models.Payment, error) {
	return &models.Payment{ID: id, Status: models.StatusCanceled}, nil
}

func (f *fakePayments) CreateTestSubscription(context.Context, int64) (*models.Service, error) {
	return &models.Service{Name: "test-0042", TrafficLimitBytes: models.GBToBytes(5), ExpireAt: time.Now().Add(24 * time.Hour),
		SubscriptionURL: "https://panel.test/sub/uuid-1"}, nil
}

type fakeNotify struct {
	completed []*orchestrator.Fulfillment
	failed    []*models.Payment
	rejected  int
	receipts  []*models.Payment
}

func (n *fakeNotify) PaymentCompleted(_ context.Context, f *orchestrator.Fulfillment) {
	n.completed = append(n.completed, f)
}
func (n *fakeNotify) PaymentFailed(_ context.Context, p *models.Payment, _ error) {
	n.failed = append(n.failed, p)
}
func (n *fakeNotify) PaymentRejected(context.Context, *models.Payment) { n.rejected++ }
func (n *fakeNotify) ManualReceiptSubmitted(_ context.Context, p *models.Payment) {
	n.receipts = append(n.receipts, p)
}

type fixture struct {
	db       *gorm.DB
	server   *telegramServer
	payments *fakePayments
	notify   *fakeNotify
	bot      *Bot
}

func newFixture(t *testing.T, limiter middleware.Limiter) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	f := &fixture{db: db, server: &telegramServer{}, payments: &fakePayments{}, notify: &fakeNotify{}}
	srv := httptest.NewServer(f.server)
	t.Cleanup(srv.Close)

	b, err := newBot(Deps{
		Config: &config.Config{
			Bot:     config.BotConfig{AdminIDs: []int64{adminID}},
			Payment: config.PaymentConfig{MinWalletChargeTomans: 10000, MaxWalletChargeTomans: 10000000},
		},
		DB:       db,
		Payments: f.payments,
		Notify:   f.notify,
		Ledger:   wallet.NewLedger(db, zap.NewNop()),
		Limiter:  limiter,
		Logger:   zap.NewNop(),
	}, tele.Settings{Token: "TEST", URL: srv.URL, Offline: true, Synchronous: true})
	require.NoError(t, err)
	f.bot = b
	return f
}

func (f *fixture) text(from int64, text string) {
	f.bot.tb.ProcessUpdate(tele.Update{ID: int(time.Now().UnixNano() % 1e9), Message: &tele.Message{
		ID:     1,
		Text:   text,
		Sender: &tele.User{ID: from, FirstName: "u"},
		Chat:   &tele.Chat{ID: from, Type: tele.ChatPrivate},
	}})
}

func (f *fixture) callback(from int64, data string) {
	f.bot.tb.ProcessUpdate(tele.Update{Callback: &tele.Callback{
		ID:     "cb",
		Data:   data,
		Sender: &tele.User{ID: from},
		Message: &tele.Message{
			ID:   5,
			Chat: &tele.Chat{ID: from, Type: tele.ChatPrivate},
		},
	}})
}

func TestStartCapturesReferralOnce(t *testing.T) {
	f := newFixture(t, nil)
	testutil.UpdateSettings(t, f.db, map[string]interface{}{"enable_referral_capture": true})
	referrer := testutil.CreateUser(t, f.db, 100, 0)
	other := testutil.CreateUser(t, f.db, 101, 0)

	f.text(200, "/start ref_100")
	f.text(200, "/start ref_101")

	var u models.User
	require.NoError(t, f.db.Where("telegram_id = ?", 200).First(&u).Error)
	require.NotNil(t, u.ReferredByID)
	assert.Equal(t, referrer.ID, *u.ReferredByID)
	assert.NotEqual(t, other.ID, *u.ReferredByID)
	assert.Contains(t, f.server.last(), "/plans")
}

func TestStartIgnoresReferralWhenDisabled(t *testing.T) {
	f := newFixture(t, nil)
	testutil.CreateUser(t, f.db, 100, 0)

	f.text(201, "/start ref_100")

	var u models.User
	require.NoError(t, f.db.Where("telegram_id = ?", 201).First(&u).Error)
	assert.Nil(t, u.ReferredByID)
}

func TestBannedUserIsRefused(t *testing.T) {
	f := newFixture(t, nil)
	u := testutil.CreateUser(t, f.db, 300, 0)
	require.NoError(t, f.db.Model(u).Update("is_banned", true).Error)

	f.text(300, "/charge 50000")

	assert.Contains(t, f.server.last(), apperror.ErrUserBanned.Message)
	assert.Empty(t, f.payments.charges)
}

func TestChargeThroughHostedGateway(t *testing.T) {
	f := newFixture(t, nil)

	f.text(400, "/charge ۵۰,۰۰۰")
	offer := f.server.last()
	assert.Contains(t, offer, "50,000")
	assert.Contains(t, offer, `gw|H`)
	assert.Contains(t, offer, `gw|M`)
	assert.NotContains(t, offer, `gw|W`, "the wallet cannot pay its own top-up")

	f.callback(400, "\fgw|H")
	require.Equal(t, []models.PaymentGateway{models.GatewayHosted}, f.payments.charges)
	assert.Contains(t, f.server.last(), "https://gateway.test/pay/AUTH00000001")

	f.callback(400, "\fgw|H")
	assert.Len(t, f.payments.charges, 1, "a checkout is consumed once")
}

func TestChargeOutOfRange(t *testing.T) {
	f := newFixture(t, nil)
	f.text(401, "/charge 500")
	assert.Contains(t, f.server.last(), "10,000")
	f.callback(401, "\fgw|H")
	assert.Empty(t, f.payments.charges)
}

func TestManualChargeShowsCard(t *testing.T) {
	f := newFixture(t, nil)
	f.text(402, "/charge 50000")
	f.callback(402, "\fgw|M")

	last := f.server.last()
	assert.Contains(t, last, "6037-0000-0000-0000")
	assert.Contains(t, last, "cancel|11")
}

func TestWalletPurchaseCompletesImmediately(t *testing.T) {
	f := newFixture(t, nil)
	done := &orchestrator.Fulfillment{Payment: &models.Payment{ID: 21, Gateway: models.GatewayWallet}}
	f.payments.intent = &orchestrator.Intent{Payment: done.Payment, Fulfillment: done}

	f.text(500, "/buy 3 myvpn SPRING")
	f.callback(500, "\fgw|W")

	require.Len(t, f.payments.purchases, 1)
	assert.Equal(t, orchestrator.PurchaseInput{
		TelegramID: 500, PlanID: 3, ServiceName: "myvpn", Gateway: models.GatewayWallet, PromoCode: "SPRING",
	}, f.payments.purchases[0])
	require.Len(t, f.notify.completed, 1)
	assert.Same(t, done, f.notify.completed[0])
}

func TestBuyRejectsBadName(t *testing.T) {
	f := newFixture(t, nil)
	f.text(501, "/buy 3 !!")
	assert.Contains(t, f.server.last(), apperror.ErrServiceNameInvalid.Message)
}

func TestPurchaseErrorIsShown(t *testing.T) {
	f := newFixture(t, nil)
	f.payments.err = apperror.ErrInsufficientFunds

	f.text(502, "/buy 3 myvpn")
	f.callback(502, "\fgw|W")

	assert.Contains(t, f.server.last(), apperror.ErrInsufficientFunds.Message)
	assert.Empty(t, f.notify.completed)
}

func TestReceiptPhoto(t *testing.T) {
	f := newFixture(t, nil)
	photo := func(from int64) {
		f.bot.tb.ProcessUpdate(tele.Update{Message: &tele.Message{
			ID:     2,
			Photo:  &tele.Photo{File: tele.File{FileID: "file-1"}},
			Sender: &tele.User{ID: from},
			Chat:   &tele.Chat{ID: from, Type: tele.ChatPrivate},
		}})
	}

	photo(600)
	assert.Empty(t, f.payments.receipts)

	f.payments.manual = &models.Payment{ID: 31, Gateway: models.GatewayManual, Status: models.StatusPending}
	photo(600)
	assert.Equal(t, []string{"file-1"}, f.payments.receipts)
	require.Len(t, f.notify.receipts, 1)
	assert.Equal(t, "file-1", f.notify.receipts[0].ManualReceiptFileID)
}

func TestAdminReviewButtons(t *testing.T) {
	f := newFixture(t, nil)

	f.callback(700, "approve:7")
	assert.Empty(t, f.payments.approved, "only admins may review")

	f.callback(adminID, "approve:7")
	f.callback(adminID, "reject:8")
	f.callback(adminID, "other:9")

	assert.Equal(t, []uint{7}, f.payments.approved)
	assert.Equal(t, []uint{8}, f.payments.rejected)
	assert.Len(t, f.notify.completed, 1)
	assert.Equal(t, 1, f.notify.rejected)
}

func TestAdminApprovalFailureReachesUser(t *testing.T) {
	f := newFixture(t, nil)
	f.payments.reviewErr = &orchestrator.FulfillmentError{
		Payment: &models.Payment{ID: 7, Status: models.StatusFailed},
		Err:     apperror.Upstream("PANEL_ERROR", errors.New("panel down")),
	}
	f.callback(adminID, "approve:7")
	require.Len(t, f.notify.failed, 1)
	assert.Equal(t, uint(7), f.notify.failed[0].ID)
	assert.Empty(t, f.notify.completed)

	// conflicts leave the user alone
	f.payments.reviewErr = apperror.ErrInvalidPaymentState
	f.callback(adminID, "approve:7")
	f.payments.reviewErr = apperror.ErrPaymentInProgress
	f.callback(adminID, "approve:7")
	assert.Len(t, f.notify.failed, 1)
}

func TestTrialCommand(t *testing.T) {
	f := newFixture(t, nil)
	f.text(800, "/test")
	assert.Contains(t, f.server.last(), "https://panel.test/sub/uuid-1")
}

func TestRateLimitDropsUpdates(t *testing.T) {
	f := newFixture(t, middleware.NewLimiter(nil, 1, time.Minute))
	f.text(900, "/help")
	f.text(900, "/help")
	assert.Len(t, f.server.sent(), 1)
}

func TestCheckoutsExpire(t *testing.T) {
	ctx := context.Background()
	s := newCheckouts(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.put(ctx, 1, checkout{kind: checkoutCharge, amount: 5}))
	co, ok, err := s.take(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(5), co.amount)

	_, ok, _ = s.take(ctx, 1)
	assert.False(t, ok, "a checkout is used once")

	require.NoError(t, s.put(ctx, 1, checkout{kind: checkoutCharge}))
	now = now.Add(2 * time.Minute)
	_, ok, err = s.take(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckoutStoreBackend(t *testing.T) {
	assert.IsType(t, &checkouts{}, newCheckoutStore(nil, time.Minute))

	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()
	assert.IsType(t, &redisCheckouts{}, newCheckoutStore(rdb, time.Minute))
}

func TestCheckoutRecordKeepsOrder(t *testing.T) {
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	in := checkout{kind: checkoutRenew, amount: 90000, serviceID: 7, promo: "OFF10", at: at}

	b, err := encodeCheckout(in)
	require.NoError(t, err)
	out, err := decodeCheckout(b)
	require.NoError(t, err)
	assert.Equal(t, checkoutRenew, out.kind)
	assert.Equal(t, uint(7), out.serviceID)
	assert.Equal(t, "OFF10", out.promo)
	assert.True(t, at.Equal(out.at))
	assert.Equal(t, "checkout:42", checkoutKey(42))
}

// sentTo returns the chat IDs that received text.
func (s *telegramServer) sentTo(text string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, c := range s.calls {
		if c.method == "sendMessage" && c.params["text"] == text {
			chat, _ := c.params["chat_id"].(string)
			out = append(out, chat)
		}
	}
	return out
}

func TestInviteLink(t *testing.T) {
	f := newFixture(t, nil)
	f.bot.cfg.Bot.Username = "@vpnstore_bot"
	testutil.UpdateSettings(t, f.db, map[string]interface{}{"enable_referral_capture": true})
	referrer := testutil.CreateUser(t, f.db, 100, 0)
	invited := testutil.CreateUser(t, f.db, 101, 0)
	require.NoError(t, f.db.Model(invited).Update("referred_by_id", referrer.ID).Error)

	f.text(100, "/invite")

	assert.Contains(t, f.server.last(), "https://t.me/vpnstore_bot?start=ref_100")
	assert.Contains(t, f.server.last(), "تعداد افراد دعوت‌شده: 1")
}

func TestInviteNeedsReferralsEnabled(t *testing.T) {
	f := newFixture(t, nil)
	f.bot.cfg.Bot.Username = "vpnstore_bot"

	f.text(100, "/invite")

	assert.Contains(t, f.server.last(), apperror.ErrFeatureDisabled.Message)
	assert.NotContains(t, f.server.last(), "t.me")
}

func TestStatsIsAdminOnly(t *testing.T) {
	f := newFixture(t, nil)
	testutil.CreateUser(t, f.db, 100, 0)
	banned := testutil.CreateUser(t, f.db, 101, 0)
	require.NoError(t, f.db.Model(banned).Update("is_banned", true).Error)

	f.text(100, "/stats")
	assert.Equal(t, helpText, f.server.last())

	f.text(adminID, "/stats")
	assert.Contains(t, f.server.last(), "کاربران: 3 (مسدود: 1)")
	assert.Contains(t, f.server.last(), "فروش کل: 0 تومان")
}

func TestBroadcastSkipsBannedUsers(t *testing.T) {
	f := newFixture(t, nil)
	f.bot.broadcastPause = 0
	testutil.CreateUser(t, f.db, 100, 0)
	banned := testutil.CreateUser(t, f.db, 101, 0)
	require.NoError(t, f.db.Model(banned).Update("is_banned", true).Error)
	testutil.CreateUser(t, f.db, 102, 0)

	f.text(adminID, "/broadcast سرویس‌ها به‌روز شدند")
	f.bot.wg.Wait()

	assert.ElementsMatch(t, []string{"100", "102", "999"}, f.server.sentTo("سرویس‌ها به‌روز شدند"))
	assert.Equal(t, []string{"999"}, f.server.sentTo("📣 ارسال همگانی انجام شد.\nموفق: 3 | ناموفق: 0"))
	assert.False(t, f.bot.broadcasting.Load())
}

func TestBroadcastGuards(t *testing.T) {
	f := newFixture(t, nil)
	testutil.CreateUser(t, f.db, 100, 0)

	f.text(100, "/broadcast hello")
	assert.Equal(t, helpText, f.server.last())

	f.text(adminID, "/broadcast")
	assert.Contains(t, f.server.last(), "/broadcast متن")

	f.text(adminID, "/broadcast "+strings.Repeat("x", broadcastMaxRunes+1))
	assert.Contains(t, f.server.last(), "حداکثر")

	f.bot.broadcasting.Store(true)
	f.text(adminID, "/broadcast hello")
	assert.Contains(t, f.server.last(), "در حال انجام")

	f.bot.wg.Wait()
	assert.Empty(t, f.server.sentTo("hello"))
}
