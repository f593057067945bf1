// Package bot is the Telegram front-end of the store.
package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
	"gorm.io/gorm"

	"vpnstore/internal/apperror"
	"vpnstore/internal/config"
	"vpnstore/internal/middleware"
	"vpnstore/internal/models"
	"vpnstore/internal/orchestrator"
	"vpnstore/internal/pkg/utils"
	"vpnstore/internal/repository"
	"vpnstore/internal/wallet"
)

const (
	checkoutTTL    = 15 * time.Minute
	handlerTimeout = 60 * time.Second
	historyLimit   = 5

	ctxUser    = "user"
	ctxNewUser = "new_user"
)

// Payments is the part of the orchestrator the bot drives.
type Payments interface {
	CreateWalletChargePayment(ctx context.Context, telegramID int64, amountTomans int64, gateway models.PaymentGateway) (*orchestrator.Intent, error)
	CreatePurchasePayment(ctx context.Context, in orchestrator.PurchaseInput) (*orchestrator.Intent, error)
	CreateRenewPayment(ctx context.Context, in orchestrator.RenewInput) (*orchestrator.Intent, error)
	CreateHostedOrder(ctx context.Context, paymentID uint) (*orchestrator.HostedOrder, error)
	LatestManualPayment(ctx context.Context, telegramID int64) (*models.Payment, error)
	SubmitManualReceipt(ctx context.Context, paymentID uint, telegramID int64, fileID string) (*models.Payment, error)
	ApproveManualPayment(ctx context.Context, paymentID uint, adminTelegramID int64) (*orchestrator.Fulfillment, error)
	RejectManualPayment(ctx context.Context, paymentID uint, adminTelegramID int64, note string) (*models.Payment, error)
	CancelPayment(ctx context.Context, paymentID uint, telegramID int64) (*models.Payment, error)
	CreateTestSubscription(ctx context.Context, telegramID int64) (*models.Service, error)
}

// Notifications delivers payment outcomes to users and admins.
type Notifications interface {
	PaymentCompleted(ctx context.Context, f *orchestrator.Fulfillment)
	PaymentFailed(ctx context.Context, p *models.Payment, cause error)
	PaymentRejected(ctx context.Context, p *models.Payment)
	ManualReceiptSubmitted(ctx context.Context, p *models.Payment)
}

// Deps are the collaborators of a Bot.
type Deps struct {
	Config   *config.Config
	DB       *gorm.DB
	Payments Payments
	Notify   Notifications
	Ledger   *wallet.Ledger
	Limiter  middleware.Limiter
	// Redis is optional; without it open checkouts live in memory.
	Redis  *redis.Client
	Logger *zap.Logger
}

// Bot wraps the telebot instance and handlers.
type Bot struct {
	tb        *tele.Bot
	webhook   *tele.Webhook
	cfg       *config.Config
	users     *repository.UserRepository
	plans     *repository.PlanRepository
	services  *repository.ServiceRepository
	settings  *repository.SettingRepository
	payments  Payments
	notify    Notifications
	ledger    *wallet.Ledger
	limiter   middleware.Limiter
	checkouts checkoutStore
	stats     *repository.StatsRepository
	logger    *zap.Logger

	broadcasting   atomic.Bool
	broadcastPause time.Duration
	wg             sync.WaitGroup
	done           chan struct{}
	stopOnce       sync.Once
}

// New creates the bot. With BOT_WEBHOOK_URL set updates arrive through
// WebhookHandler, otherwise the bot long-polls.
func New(d Deps) (*Bot, error) {
	var poller tele.Poller = &tele.LongPoller{Timeout: 10 * time.Second}
	var webhook *tele.Webhook
	if url := strings.TrimSpace(d.Config.Bot.WebhookURL); url != "" {
		webhook = &tele.Webhook{
			// Empty Listen: the handler is mounted on Echo.
			Endpoint: &tele.WebhookEndpoint{PublicURL: url},
		}
		poller = webhook
	}
	b, err := newBot(d, tele.Settings{Token: d.Config.Bot.Token, Poller: poller})
	if err != nil {
		return nil, err
	}
	b.webhook = webhook
	return b, nil
}

func newBot(d Deps, pref tele.Settings) (*Bot, error) {
	pref.ParseMode = tele.ModeHTML
	pref.OnError = func(err error, c tele.Context) {
		fields := []zap.Field{zap.Error(err)}
		if c != nil && c.Sender() != nil {
			fields = append(fields, zap.Int64("telegram_id", c.Sender().ID))
		}
		d.Logger.Error("telebot error", fields...)
	}

	tb, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create telebot: %w", err)
	}
	if d.Limiter == nil {
		d.Limiter = middleware.NewLimiter(nil, 0, 0)
	}

	b := &Bot{
		tb:        tb,
		cfg:       d.Config,
		users:     repository.NewUserRepository(d.DB),
		plans:     repository.NewPlanRepository(d.DB),
		services:  repository.NewServiceRepository(d.DB),
		settings:  repository.NewSettingRepository(d.DB),
		payments:  d.Payments,
		notify:    d.Notify,
		ledger:    d.Ledger,
		limiter:   d.Limiter,
		checkouts: newCheckoutStore(d.Redis, checkoutTTL),
		stats:     repository.NewStatsRepository(d.DB),
		logger:    d.Logger,

		broadcastPause: time.Second,
		done:           make(chan struct{}),
	}
	b.registerHandlers()
	return b, nil
}

// WebhookHandler returns the handler to mount on Echo, or nil when polling.
func (b *Bot) WebhookHandler() http.Handler {
	if b.webhook == nil {
		return nil
	}
	return b.webhook
}

// Start blocks processing updates until Stop.
func (b *Bot) Start() {
	if b.webhook != nil {
		b.logger.Info("Starting Telegram bot", zap.String("mode", "webhook"))
	} else {
		if err := b.tb.RemoveWebhook(true); err != nil {
			b.logger.Warn("Failed to remove webhook before long polling", zap.Error(err))
		}
		b.logger.Info("Starting Telegram bot", zap.String("mode", "polling"))
	}
	b.tb.Start()
}

// Stop gracefully shuts down the bot and waits for a running broadcast to
// reach its next batch boundary.
func (b *Bot) Stop() {
	b.stopOnce.Do(func() { close(b.done) })
	b.tb.Stop()
	b.wg.Wait()
}

func (b *Bot) registerHandlers() {
	b.tb.Use(b.guard)

	b.tb.Handle("/start", b.handleStart)
	b.tb.Handle("/help", b.handleHelp)
	b.tb.Handle("/wallet", b.handleWallet)
	b.tb.Handle("/charge", b.handleCharge)
	b.tb.Handle("/plans", b.handlePlans)
	b.tb.Handle("/buy", b.handleBuy)
	b.tb.Handle("/renew", b.handleRenew)
	b.tb.Handle("/services", b.handleServices)
	b.tb.Handle("/test", b.handleTest)
	b.tb.Handle("/invite", b.handleInvite)
	b.tb.Handle("/stats", b.handleStats)
	b.tb.Handle("/broadcast", b.handleBroadcast)
	b.tb.Handle(tele.OnPhoto, b.handleReceipt)
	b.tb.Handle(tele.OnText, b.handleHelp)
	b.tb.Handle(&btnGateway, b.handleGateway)
	b.tb.Handle(&btnCancel, b.handleCancel)
	b.tb.Handle(tele.OnCallback, b.handleAdminCallback)
}

// guard loads the sender, refuses banned users and applies the rate limit.
func (b *Bot) guard(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		s := c.Sender()
		if s == nil || s.IsBot {
			return nil
		}
		ctx, cancel := b.ctx()
		defer cancel()

		if ok, err := b.limiter.Allow(ctx, s.ID, "update"); err != nil {
			b.logger.Warn("Rate limiter unavailable", zap.Error(err))
		} else if !ok {
			return nil
		}

		_, err := b.users.FindByTelegramID(ctx, s.ID)
		isNew := repository.IsNotFound(err)
		if err != nil && !isNew {
			return fmt.Errorf("load user %d: %w", s.ID, err)
		}
		user, err := b.users.Upsert(ctx, s.ID, s.Username, s.FirstName, s.LastName)
		if err != nil {
			return fmt.Errorf("upsert user %d: %w", s.ID, err)
		}
		if user.IsBanned && !b.cfg.Bot.IsAdmin(s.ID) {
			if c.Callback() != nil {
				return c.Respond(&tele.CallbackResponse{Text: apperror.ErrUserBanned.Message, ShowAlert: true})
			}
			return c.Send("⛔ " + apperror.ErrUserBanned.Message)
		}

		c.Set(ctxUser, user)
		c.Set(ctxNewUser, isNew)
		return next(c)
	}
}

func (b *Bot) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), handlerTimeout)
}

func currentUser(c tele.Context) *models.User {
	u, _ := c.Get(ctxUser).(*models.User)
	return u
}

// fail replies with a user-safe message; unexpected errors are logged.
func (b *Bot) fail(c tele.Context, err error) error {
	if apperror.HTTPStatus(err) >= http.StatusInternalServerError {
		b.logger.Error("Bot request failed", zap.Int64("telegram_id", c.Sender().ID), zap.Error(err))
	}
	return c.Send("❌ " + apperror.UserMessage(err))
}

// ── /start and help ───────────────────────────────────────────────────

func (b *Bot) handleStart(c tele.Context) error {
	user := currentUser(c)
	if isNew, _ := c.Get(ctxNewUser).(bool); isNew {
		b.captureReferral(c, user)
	}
	return b.handleHelp(c)
}

// captureReferral links a first-time user to the referrer named in a
// ref_<telegramID> start payload.
func (b *Bot) captureReferral(c tele.Context, user *models.User) {
	payload := strings.TrimSpace(c.Message().Payload)
	if !strings.HasPrefix(payload, "ref_") {
		return
	}
	ctx, cancel := b.ctx()
	defer cancel()

	setting, err := b.settings.Get(ctx)
	if err != nil || !setting.EnableReferralCapture {
		return
	}
	refTG, err := strconv.ParseInt(strings.TrimPrefix(payload, "ref_"), 10, 64)
	if err != nil || refTG == user.TelegramID {
		return
	}
	referrer, err := b.users.FindByTelegramID(ctx, refTG)
	if err != nil {
		b.logger.Debug("Referrer not found", zap.Int64("referrer", refTG))
		return
	}
	ok, err := b.users.SetReferrer(ctx, user.ID, referrer.ID)
	if err != nil {
		b.logger.Warn("Failed to record referrer", zap.Uint("user_id", user.ID), zap.Error(err))
		return
	}
	if ok {
		b.logger.Info("Referral captured", zap.Uint("user_id", user.ID), zap.Uint("referrer_id", referrer.ID))
	}
}

const helpText = `👋 به ربات فروش سرویس خوش آمدید.

/plans - لیست پلن‌ها
/buy شناسه_پلن نام_سرویس [کد_تخفیف] - خرید سرویس
/renew شناسه_سرویس [کد_تخفیف] - تمدید سرویس
/services - سرویس‌های من
/wallet - کیف پول
/charge مبلغ - شارژ کیف پول
/test - دریافت سرویس تست
/invite - لینک دعوت دوستان

برای ثبت رسید کارت به کارت، تصویر رسید را ارسال کنید.`

func (b *Bot) handleHelp(c tele.Context) error {
	return c.Send(helpText)
}

// ── Wallet ────────────────────────────────────────────────────────────

func (b *Bot) handleWallet(c tele.Context) error {
	user := currentUser(c)
	ctx, cancel := b.ctx()
	defer cancel()

	history, err := b.ledger.History(ctx, user.ID, historyLimit)
	if err != nil {
		return b.fail(c, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "💰 موجودی کیف پول: %s", utils.FormatTomans(user.WalletBalance))
	if len(history) > 0 {
		sb.WriteString("\n\nآخرین تراکنش‌ها:")
		for _, tx := range history {
			sign := "+"
			amount := tx.Amount
			if amount < 0 {
				sign, amount = "-", -amount
			}
			fmt.Fprintf(&sb, "\n%s%s | %s | %s", sign, utils.FormatTomans(amount),
				html.EscapeString(tx.Description), tx.CreatedAt.Format("2006-01-02"))
		}
	}
	return c.Send(sb.String())
}

func (b *Bot) handleCharge(c tele.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Send(fmt.Sprintf("مبلغ شارژ را به تومان وارد کنید. مثال:\n/charge %d", b.cfg.Payment.MinWalletChargeTomans))
	}
	amount, err := utils.ParseAmount(args[0])
	if err != nil || amount <= 0 {
		return b.fail(c, apperror.ErrInvalidAmount)
	}
	lo, hi := b.cfg.Payment.MinWalletChargeTomans, b.cfg.Payment.MaxWalletChargeTomans
	if amount < lo || amount > hi {
		return b.fail(c, apperror.ErrWalletRange.WithMessage(fmt.Sprintf("مبلغ شارژ باید بین %s و %s تومان باشد",
			utils.FormatNumber(lo), utils.FormatNumber(hi))))
	}
	return b.offerGateways(c, checkout{kind: checkoutCharge, amount: amount},
		fmt.Sprintf("شارژ کیف پول به مبلغ %s", utils.FormatTomans(amount)))
}

// ── Catalogue and services ────────────────────────────────────────────

func (b *Bot) handlePlans(c tele.Context) error {
	ctx, cancel := b.ctx()
	defer cancel()
	plans, err := b.plans.FindAll(ctx, true)
	if err != nil {
		return b.fail(c, err)
	}
	if len(plans) == 0 {
		return c.Send("در حال حاضر پلنی برای فروش وجود ندارد.")
	}
	var sb strings.Builder
	sb.WriteString("🛍 پلن‌ها:\n")
	for _, p := range plans {
		fmt.Fprintf(&sb, "\n<b>%d</b>. %s | %d گیگ | %d روز | %s",
			p.ID, html.EscapeString(p.Name), p.TrafficGB, p.DurationDays, utils.FormatTomans(p.PriceTomans))
	}
	sb.WriteString("\n\nبرای خرید: /buy شناسه_پلن نام_سرویس")
	return c.Send(sb.String())
}

func (b *Bot) handleBuy(c tele.Context) error {
	args := c.Args()
	if len(args) < 2 || len(args) > 3 {
		return c.Send("استفاده: /buy شناسه_پلن نام_سرویس [کد_تخفیف]")
	}
	planID, ok := utils.ParseUint(args[0])
	if !ok {
		return b.fail(c, apperror.ErrPlanNotAvailable)
	}
	if !utils.ValidServiceName(args[1]) {
		return b.fail(c, apperror.ErrServiceNameInvalid)
	}
	co := checkout{kind: checkoutPurchase, planID: planID, name: args[1]}
	if len(args) == 3 {
		co.promo = args[2]
	}
	return b.offerGateways(c, co, fmt.Sprintf("خرید سرویس %s", html.EscapeString(co.name)))
}

func (b *Bot) handleRenew(c tele.Context) error {
	args := c.Args()
	if len(args) < 1 || len(args) > 2 {
		return c.Send("استفاده: /renew شناسه_سرویس [کد_تخفیف]")
	}
	serviceID, ok := utils.ParseUint(args[0])
	if !ok {
		return b.fail(c, apperror.ErrServiceNotFound)
	}
	co := checkout{kind: checkoutRenew, serviceID: serviceID}
	if len(args) == 2 {
		co.promo = args[1]
	}
	return b.offerGateways(c, co, fmt.Sprintf("تمدید سرویس شماره %d", serviceID))
}

func (b *Bot) handleServices(c tele.Context) error {
	user := currentUser(c)
	ctx, cancel := b.ctx()
	defer cancel()
	services, err := b.services.FindByUserID(ctx, user.ID)
	if err != nil {
		return b.fail(c, err)
	}
	if len(services) == 0 {
		return c.Send("شما هنوز سرویسی ندارید. برای مشاهده پلن‌ها /plans را بزنید.")
	}
	now := time.Now()
	var sb strings.Builder
	sb.WriteString("📦 سرویس‌های شما:")
	for _, s := range services {
		state := "فعال"
		if !s.IsActive || s.ExpireAt.Before(now) {
			state = "غیرفعال"
		}
		fmt.Fprintf(&sb, "\n\n<b>%d</b>. %s (%s)\n🌐 باقی‌مانده: %s از %s\n🗓 %d روز",
			s.ID, html.EscapeString(s.Name), state,
			utils.FormatBytes(s.RemainingBytes()), utils.FormatBytes(s.TrafficLimitBytes),
			max(s.DaysLeft(now), 0))
		if s.SubscriptionURL != "" {
			fmt.Fprintf(&sb, "\n<code>%s</code>", html.EscapeString(s.SubscriptionURL))
		}
	}
	return c.Send(sb.String())
}

func (b *Bot) handleTest(c tele.Context) error {
	ctx, cancel := b.ctx()
	defer cancel()
	svc, err := b.payments.CreateTestSubscription(ctx, c.Sender().ID)
	if err != nil {
		return b.fail(c, err)
	}
	text := fmt.Sprintf("🎁 سرویس تست شما ساخته شد.\n\n🔮 نام سرویس: %s\n🌐 حجم: %s\n🗓 انقضا: %s",
		html.EscapeString(svc.Name), utils.FormatBytes(svc.TrafficLimitBytes), svc.ExpireAt.Format("2006-01-02 15:04"))
	if svc.SubscriptionURL != "" {
		text += fmt.Sprintf("\n🔗 لینک اشتراک:\n<code>%s</code>", html.EscapeString(svc.SubscriptionURL))
	}
	return c.Send(text)
}

// ── Checkout ──────────────────────────────────────────────────────────

func (b *Bot) offerGateways(c tele.Context, co checkout, title string) error {
	ctx, cancel := b.ctx()
	defer cancel()
	setting, err := b.settings.Get(ctx)
	if err != nil {
		return b.fail(c, err)
	}
	markup := gatewayKeyboard(setting, co.kind)
	if markup == nil {
		return b.fail(c, apperror.ErrGatewayDisabled)
	}
	if err := b.checkouts.put(ctx, c.Sender().ID, co); err != nil {
		return b.fail(c, fmt.Errorf("store checkout: %w", err))
	}
	return c.Send(title+"\n\nروش پرداخت را انتخاب کنید:", markup)
}

func (b *Bot) handleGateway(c tele.Context) error {
	gateway, ok := gatewayFromCode(c.Data())
	if !ok {
		return c.Respond()
	}
	ctx, cancel := b.ctx()
	defer cancel()

	co, ok, err := b.checkouts.take(ctx, c.Sender().ID)
	if err != nil {
		b.logger.Error("Failed to load checkout", zap.Int64("telegram_id", c.Sender().ID), zap.Error(err))
	}
	if !ok {
		return c.Respond(&tele.CallbackResponse{Text: "این سفارش منقضی شده است. دوباره تلاش کنید.", ShowAlert: true})
	}
	_ = c.Respond()
	if c.Message() != nil {
		if _, err := b.tb.EditReplyMarkup(c.Message(), nil); err != nil {
			b.logger.Debug("Failed to clear gateway keyboard", zap.Error(err))
		}
	}

	tg := c.Sender().ID

	var intent *orchestrator.Intent
	switch co.kind {
	case checkoutCharge:
		intent, err = b.payments.CreateWalletChargePayment(ctx, tg, co.amount, gateway)
	case checkoutPurchase:
		intent, err = b.payments.CreatePurchasePayment(ctx, orchestrator.PurchaseInput{
			TelegramID: tg, PlanID: co.planID, ServiceName: co.name, Gateway: gateway, PromoCode: co.promo,
		})
	case checkoutRenew:
		intent, err = b.payments.CreateRenewPayment(ctx, orchestrator.RenewInput{
			TelegramID: tg, ServiceID: co.serviceID, Gateway: gateway, PromoCode: co.promo,
		})
	}
	if err != nil {
		return b.fail(c, err)
	}

	if intent.Fulfillment != nil {
		b.notify.PaymentCompleted(ctx, intent.Fulfillment)
		return nil
	}

	p := intent.Payment
	switch p.Gateway {
	case models.GatewayHosted:
		order, err := b.payments.CreateHostedOrder(ctx, p.ID)
		if err != nil {
			return b.fail(c, err)
		}
		return c.Send(fmt.Sprintf("🧾 پرداخت شماره %d\n💵 مبلغ: %s\n\nبرای پرداخت روی دکمه زیر بزنید.",
			p.ID, utils.FormatTomans(p.AmountTomans)), payLinkKeyboard(order.PayLink))
	case models.GatewayManual:
		setting, err := b.settings.Get(ctx)
		if err != nil {
			return b.fail(c, err)
		}
		card := setting.ManualCardNumber
		if card == "" {
			card = b.cfg.Payment.ManualCardNumber
		}
		return c.Send(fmt.Sprintf("🧾 پرداخت شماره %d\n💵 مبلغ: %s\n\nمبلغ را به کارت زیر واریز کنید و تصویر رسید را همین‌جا ارسال کنید:\n<code>%s</code>",
			p.ID, utils.FormatTomans(p.AmountTomans), html.EscapeString(card)), cancelKeyboard(p.ID))
	}
	return nil
}

func (b *Bot) handleCancel(c tele.Context) error {
	id, ok := utils.ParseUint(c.Data())
	if !ok {
		return c.Respond()
	}
	ctx, cancel := b.ctx()
	defer cancel()
	if _, err := b.payments.CancelPayment(ctx, id, c.Sender().ID); err != nil {
		return c.Respond(&tele.CallbackResponse{Text: apperror.UserMessage(err), ShowAlert: true})
	}
	_ = c.Respond(&tele.CallbackResponse{Text: "پرداخت لغو شد"})
	return c.Edit("❌ پرداخت شماره " + strconv.FormatUint(uint64(id), 10) + " لغو شد.")
}

// ── Manual receipts ───────────────────────────────────────────────────

func (b *Bot) handleReceipt(c tele.Context) error {
	photo := c.Message().Photo
	if photo == nil || photo.FileID == "" {
		return nil
	}
	ctx, cancel := b.ctx()
	defer cancel()
	tg := c.Sender().ID

	p, err := b.payments.LatestManualPayment(ctx, tg)
	if errors.Is(err, apperror.ErrPaymentNotFound) {
		return c.Send("پرداخت کارت به کارت در انتظاری برای شما وجود ندارد.")
	}
	if err != nil {
		return b.fail(c, err)
	}
	p, err = b.payments.SubmitManualReceipt(ctx, p.ID, tg, photo.FileID)
	if err != nil {
		return b.fail(c, err)
	}
	b.notify.ManualReceiptSubmitted(ctx, p)
	return c.Send(fmt.Sprintf("✅ رسید پرداخت شماره %d دریافت شد و پس از بررسی نتیجه اعلام می‌شود.", p.ID))
}

// ── Admin review buttons ──────────────────────────────────────────────

// handleAdminCallback serves the approve:<id> and reject:<id> buttons
// attached to receipt notifications.
func (b *Bot) handleAdminCallback(c tele.Context) error {
	action, rawID, found := strings.Cut(strings.TrimSpace(c.Callback().Data), ":")
	if !found || (action != "approve" && action != "reject") {
		return c.Respond()
	}
	admin := c.Sender().ID
	if !b.cfg.Bot.IsAdmin(admin) {
		return c.Respond(&tele.CallbackResponse{Text: "⛔", ShowAlert: true})
	}
	id, ok := utils.ParseUint(rawID)
	if !ok {
		return c.Respond()
	}

	ctx, cancel := b.ctx()
	defer cancel()

	var answer string
	switch action {
	case "approve":
		f, err := b.payments.ApproveManualPayment(ctx, id, admin)
		if err != nil {
			b.logger.Warn("Manual approval failed", zap.Uint("payment_id", id), zap.Int64("admin_id", admin), zap.Error(err))
			if failed, ok := orchestrator.FailedFulfillment(err); ok {
				b.notify.PaymentFailed(ctx, failed, err)
			}
			return c.Respond(&tele.CallbackResponse{Text: apperror.UserMessage(err), ShowAlert: true})
		}
		if f.Duplicate {
			answer = "این پرداخت قبلا تایید شده است"
		} else {
			b.notify.PaymentCompleted(ctx, f)
			answer = "✅ تایید شد"
		}
	case "reject":
		p, err := b.payments.RejectManualPayment(ctx, id, admin, "")
		if err != nil {
			return c.Respond(&tele.CallbackResponse{Text: apperror.UserMessage(err), ShowAlert: true})
		}
		b.notify.PaymentRejected(ctx, p)
		answer = "❌ رد شد"
	}

	b.logger.Info("Manual payment reviewed", zap.String("action", action), zap.Uint("payment_id", id), zap.Int64("admin_id", admin))
	if c.Message() != nil {
		if _, err := b.tb.EditReplyMarkup(c.Message(), nil); err != nil {
			b.logger.Debug("Failed to clear review keyboard", zap.Error(err))
		}
	}
	return c.Respond(&tele.CallbackResponse{Text: answer})
}
