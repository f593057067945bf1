package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"vpnstore/internal/apperror"
	"vpnstore/internal/models"
	"vpnstore/internal/orchestrator"
	"vpnstore/internal/panel/paneltest"
	"vpnstore/internal/promo"
	"vpnstore/internal/repository"
	"vpnstore/internal/testutil"
	"vpnstore/internal/wallet"
)

type recordingNotifier struct {
	completed []*orchestrator.Fulfillment
	failed    []*models.Payment
	rejected  []*models.Payment
}

func (n *recordingNotifier) PaymentCompleted(_ context.Context, f *orchestrator.Fulfillment) {
	n.completed = append(n.completed, f)
}

func (n *recordingNotifier) PaymentFailed(_ context.Context, p *models.Payment, _ error) {
	n.failed = append(n.failed, p)
}

func (n *recordingNotifier) PaymentRejected(_ context.Context, p *models.Payment) {
	n.rejected = append(n.rejected, p)
}

type apiFixture struct {
	e      *echo.Echo
	db     *gorm.DB
	orch   *orchestrator.Orchestrator
	panel  *paneltest.Fake
	notify *recordingNotifier
}

type envelope struct {
	Status bool            `json:"status"`
	Msg    string          `json:"msg"`
	Obj    json.RawMessage `json:"obj"`
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	db := testutil.NewDB(t)
	log := zap.NewNop()
	ledger := wallet.NewLedger(db, log)
	promos := promo.NewResolver(db, log)
	panelFake := paneltest.New()
	orch := orchestrator.New(orchestrator.Deps{
		DB:     db,
		Ledger: ledger,
		Promos: promos,
		Panel:  panelFake,
		Config: orchestrator.Config{AppURL: "https://bot.test", MinWalletCharge: 10000, MaxWalletCharge: 10000000},
		Logger: log,
	})
	notify := &recordingNotifier{}

	deps := Deps{
		Payments: repository.NewPaymentRepository(db),
		Plans:    repository.NewPlanRepository(db),
		Users:    repository.NewUserRepository(db),
		Reviewer: orch,
		Notify:   notify,
		Promos:   promos,
		Ledger:   ledger,
		Logger:   log,
	}

	e := echo.New()
	g := e.Group("/api")
	payments := NewPaymentHandler(deps)
	g.GET("/payments", payments.List)
	g.GET("/payments/:id", payments.Get)
	g.POST("/payments/:id/approve", payments.Approve)
	g.POST("/payments/:id/reject", payments.Reject)
	g.POST("/payments/:id/fail", payments.Fail)
	plans := NewPlanHandler(deps)
	g.GET("/plans", plans.List)
	g.POST("/plans", plans.Create)
	g.PUT("/plans/:id", plans.Update)
	g.DELETE("/plans/:id", plans.Delete)
	promoHandler := NewPromoHandler(deps)
	g.GET("/promos", promoHandler.List)
	g.POST("/promos", promoHandler.Create)
	users := NewUserHandler(deps)
	g.GET("/users/:telegram_id", users.Get)
	g.POST("/users/:telegram_id/wallet", users.AdjustWallet)
	g.POST("/users/:telegram_id/ban", users.SetBanned)

	return &apiFixture{e: e, db: db, orch: orch, panel: panelFake, notify: notify}
}

func (f *apiFixture) do(t *testing.T, method, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func errorCode(t *testing.T, env envelope) string {
	t.Helper()
	var obj struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(env.Obj, &obj))
	return obj.Code
}

func TestPlanLifecycle(t *testing.T) {
	f := newAPIFixture(t)

	code, env := f.do(t, http.MethodPost, "/api/plans", `{"name":"Gold","traffic_gb":50,"duration_days":30,"price_tomans":200000}`)
	require.Equal(t, http.StatusOK, code)
	var plan models.Plan
	require.NoError(t, json.Unmarshal(env.Obj, &plan))
	assert.True(t, plan.IsActive)

	code, env = f.do(t, http.MethodPut, "/api/plans/"+itoa(plan.ID), `{"price_tomans":180000,"is_active":false}`)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Obj, &plan))
	assert.Equal(t, int64(180000), plan.PriceTomans)
	assert.False(t, plan.IsActive)

	code, env = f.do(t, http.MethodGet, "/api/plans?active=true", "")
	require.Equal(t, http.StatusOK, code)
	var active []models.Plan
	require.NoError(t, json.Unmarshal(env.Obj, &active))
	assert.Empty(t, active)

	code, _ = f.do(t, http.MethodDelete, "/api/plans/"+itoa(plan.ID), "")
	assert.Equal(t, http.StatusOK, code)

	code, _ = f.do(t, http.MethodDelete, "/api/plans/"+itoa(plan.ID), "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestPlanDeleteRefusedWhileReferenced(t *testing.T) {
	f := newAPIFixture(t)
	user := testutil.CreateUser(t, f.db, 6001, 0)
	plan := testutil.CreatePlan(t, f.db, "Silver", 20, 30, 90000)
	planID := plan.ID
	require.NoError(t, f.db.Create(&models.Payment{
		UserID: user.ID, Type: models.PaymentTypePurchase, Gateway: models.GatewayHosted,
		Status: models.StatusCanceled, AmountTomans: 90000, AmountRials: 900000, HashID: "purchase-x", PlanID: &planID,
	}).Error)

	code, env := f.do(t, http.MethodDelete, "/api/plans/"+itoa(plan.ID), "")
	assert.Equal(t, http.StatusConflict, code)
	assert.False(t, env.Status)
	assert.Equal(t, "PLAN_IN_USE", errorCode(t, env))
}

func TestPlanValidation(t *testing.T) {
	f := newAPIFixture(t)
	code, env := f.do(t, http.MethodPost, "/api/plans", `{"traffic_gb":0,"duration_days":30}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "PAYLOAD_INVALID", errorCode(t, env))

	code, _ = f.do(t, http.MethodPut, "/api/plans/abc", `{"price_tomans":1}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestManualPaymentReview(t *testing.T) {
	f := newAPIFixture(t)
	testutil.CreateUser(t, f.db, 6002, 0)
	ctx := context.Background()
	intent, err := f.orch.CreateWalletChargePayment(ctx, 6002, 70000, models.GatewayManual)
	require.NoError(t, err)
	id := itoa(intent.Payment.ID)

	code, env := f.do(t, http.MethodGet, "/api/payments?status=WAITING_REVIEW", "")
	require.Equal(t, http.StatusOK, code)
	var page models.PaginatedResponse
	require.NoError(t, json.Unmarshal(env.Obj, &page))
	assert.Equal(t, int64(1), page.Total)

	code, _ = f.do(t, http.MethodGet, "/api/payments?status=BOGUS", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodPost, "/api/payments/"+id+"/approve", `{}`)
	assert.Equal(t, http.StatusBadRequest, code, "admin_id is required")

	code, env = f.do(t, http.MethodPost, "/api/payments/"+id+"/approve", `{"admin_id":99}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Approved", env.Msg)
	require.Len(t, f.notify.completed, 1)
	assert.Equal(t, int64(70000), f.notify.completed[0].NewBalance)

	code, env = f.do(t, http.MethodPost, "/api/payments/"+id+"/approve", `{"admin_id":98}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Already approved", env.Msg)
	assert.Len(t, f.notify.completed, 1)

	code, env = f.do(t, http.MethodPost, "/api/payments/"+id+"/reject", `{"admin_id":99}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "PAYMENT_STATUS_INVALID", errorCode(t, env))
	assert.Empty(t, f.notify.rejected)

	code, _ = f.do(t, http.MethodGet, "/api/payments/999", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestApproveTellsUserWhenDeliveryFails(t *testing.T) {
	f := newAPIFixture(t)
	testutil.CreateUser(t, f.db, 6010, 0)
	plan := testutil.CreatePlan(t, f.db, "Silver", 30, 30, 90000)
	intent, err := f.orch.CreatePurchasePayment(context.Background(), orchestrator.PurchaseInput{
		TelegramID: 6010, PlanID: plan.ID, ServiceName: "office", Gateway: models.GatewayManual,
	})
	require.NoError(t, err)
	f.panel.CreateErr = apperror.Upstream("PANEL_ERROR", errors.New("panel down"))
	id := itoa(intent.Payment.ID)

	code, _ := f.do(t, http.MethodPost, "/api/payments/"+id+"/approve", `{"admin_id":99}`)
	assert.Equal(t, http.StatusBadGateway, code)
	require.Len(t, f.notify.failed, 1)
	assert.Equal(t, intent.Payment.ID, f.notify.failed[0].ID)
	assert.Equal(t, models.StatusFailed, f.notify.failed[0].Status)
	assert.Empty(t, f.notify.completed)

	// a second approval hits a closed payment and stays quiet
	code, _ = f.do(t, http.MethodPost, "/api/payments/"+id+"/approve", `{"admin_id":99}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Len(t, f.notify.failed, 1)
}

func TestRejectAndFailPayment(t *testing.T) {
	f := newAPIFixture(t)
	testutil.CreateUser(t, f.db, 6003, 0)
	ctx := context.Background()
	manual, err := f.orch.CreateWalletChargePayment(ctx, 6003, 70000, models.GatewayManual)
	require.NoError(t, err)
	hosted, err := f.orch.CreateWalletChargePayment(ctx, 6003, 70000, models.GatewayHosted)
	require.NoError(t, err)

	code, _ := f.do(t, http.MethodPost, "/api/payments/"+itoa(manual.Payment.ID)+"/reject", `{"admin_id":99,"note":"مبلغ اشتباه"}`)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, f.notify.rejected, 1)
	assert.Equal(t, "مبلغ اشتباه", f.notify.rejected[0].ReviewNote)

	code, env := f.do(t, http.MethodPost, "/api/payments/"+itoa(hosted.Payment.ID)+"/fail", `{"reason":"bank reversal"}`)
	require.Equal(t, http.StatusOK, code)
	var p models.Payment
	require.NoError(t, json.Unmarshal(env.Obj, &p))
	assert.Equal(t, models.StatusFailed, p.Status)
	assert.Equal(t, "bank reversal", p.ReviewNote)
}

func TestWalletAdjustment(t *testing.T) {
	f := newAPIFixture(t)
	testutil.CreateUser(t, f.db, 6004, 0)

	code, env := f.do(t, http.MethodPost, "/api/users/6004/wallet", `{"amount":5000}`)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"balance":5000}`, string(env.Obj))

	code, env = f.do(t, http.MethodPost, "/api/users/6004/wallet", `{"amount":-10000}`)
	assert.Equal(t, http.StatusPaymentRequired, code)
	assert.Equal(t, "INSUFFICIENT_WALLET", errorCode(t, env))

	code, env = f.do(t, http.MethodGet, "/api/users/6004", "")
	require.Equal(t, http.StatusOK, code)
	var detail struct {
		User   models.User                `json:"user"`
		Ledger []models.WalletTransaction `json:"ledger"`
	}
	require.NoError(t, json.Unmarshal(env.Obj, &detail))
	assert.Equal(t, int64(5000), detail.User.WalletBalance)
	require.Len(t, detail.Ledger, 1)
	assert.Equal(t, models.WalletTxAdminAdjust, detail.Ledger[0].Type)

	code, _ = f.do(t, http.MethodPost, "/api/users/7777/wallet", `{"amount":5000}`)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestBanUser(t *testing.T) {
	f := newAPIFixture(t)
	user := testutil.CreateUser(t, f.db, 6005, 0)

	code, _ := f.do(t, http.MethodPost, "/api/users/6005/ban", `{"banned":true}`)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, testutil.ReloadUser(t, f.db, user.ID).IsBanned)
}

func TestPromoCreation(t *testing.T) {
	f := newAPIFixture(t)

	code, env := f.do(t, http.MethodPost, "/api/promos", `{"code":" spring ","discount_percent":20,"uses_left":10}`)
	require.Equal(t, http.StatusOK, code)
	var p models.PromoCode
	require.NoError(t, json.Unmarshal(env.Obj, &p))
	assert.Equal(t, "SPRING", p.Code)

	code, env = f.do(t, http.MethodPost, "/api/promos", `{"code":"spring","discount_percent":10,"uses_left":1}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "PROMO_DUPLICATE", errorCode(t, env))

	code, _ = f.do(t, http.MethodPost, "/api/promos", `{"code":"X1","discount_percent":150,"uses_left":1}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = f.do(t, http.MethodGet, "/api/promos", "")
	require.Equal(t, http.StatusOK, code)
	var page models.PaginatedResponse
	require.NoError(t, json.Unmarshal(env.Obj, &page))
	assert.Equal(t, int64(1), page.Total)
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func TestSettingsUpdate(t *testing.T) {
	f := newAPIFixture(t)
	f.e.PUT("/api/settings", NewSettingsHandler(repository.NewSettingRepository(f.db), zap.NewNop()).Update)

	code, env := f.do(t, http.MethodPut, "/api/settings", `{"enable_renewals":false,"test_traffic_gb":2,"affiliate_reward_type":"PERCENT"}`)
	require.Equal(t, http.StatusOK, code)
	var s models.Setting
	require.NoError(t, json.Unmarshal(env.Obj, &s))
	assert.False(t, s.EnableRenewals)
	assert.True(t, s.EnableNewPurchases)
	assert.Equal(t, models.GBToBytes(2), s.TestTrafficBytes)
	assert.Equal(t, models.AffiliateRewardPercent, s.AffiliateRewardType)

	code, _ = f.do(t, http.MethodPut, "/api/settings", `{"affiliate_reward_type":"BOTH"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodPut, "/api/settings", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestStatsEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	h := NewStatsHandler(repository.NewStatsRepository(f.db), zap.NewNop())
	h.now = testutil.FixedClock(time.Now().Add(time.Hour))
	f.e.GET("/api/stats", h.Get)

	testutil.CreateUser(t, f.db, 6020, 0)
	ctx := context.Background()
	charged, err := f.orch.CreateWalletChargePayment(ctx, 6020, 70000, models.GatewayManual)
	require.NoError(t, err)
	_, err = f.orch.CreateWalletChargePayment(ctx, 6020, 40000, models.GatewayManual)
	require.NoError(t, err)
	_, err = f.orch.ApproveManualPayment(ctx, charged.Payment.ID, 99)
	require.NoError(t, err)

	code, env := f.do(t, http.MethodGet, "/api/stats?days=7", "")
	require.Equal(t, http.StatusOK, code)
	var st models.StoreStats
	require.NoError(t, json.Unmarshal(env.Obj, &st))
	assert.Equal(t, int64(1), st.Users)
	assert.Equal(t, int64(1), st.PendingReviews)
	assert.Equal(t, int64(70000), st.WalletCharges)
	assert.Zero(t, st.TotalSales)
	assert.WithinDuration(t, st.GeneratedAt.AddDate(0, 0, -7), st.Since, time.Second)

	code, _ = f.do(t, http.MethodGet, "/api/stats?days=400", "")
	assert.Equal(t, http.StatusBadRequest, code)
}
