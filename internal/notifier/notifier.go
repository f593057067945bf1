// Package notifier tells users and admins about payment outcomes over the Bot API.
// Delivery is best-effort: failures are logged and never change payment state.
package notifier

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"vpnstore/internal/models"
	"vpnstore/internal/orchestrator"
	"vpnstore/internal/panel"
	"vpnstore/internal/pkg/telegram"
	"vpnstore/internal/pkg/utils"
	"vpnstore/internal/repository"
)

const sendTimeout = 20 * time.Second

// Sender is the subset of the Bot API the notifier uses.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string, markup *telegram.InlineKeyboard) error
	SendPhoto(ctx context.Context, chatID int64, fileID, caption string, markup *telegram.InlineKeyboard) error
}

type Notifier struct {
	sender   Sender
	panel    panel.PanelClient
	users    *repository.UserRepository
	services *repository.ServiceRepository
	adminIDs []int64
	log      *zap.Logger
	now      func() time.Time
}

func New(sender Sender, panelClient panel.PanelClient, db *gorm.DB, adminIDs []int64, log *zap.Logger) *Notifier {
	return &Notifier{
		sender:   sender,
		panel:    panelClient,
		users:    repository.NewUserRepository(db),
		services: repository.NewServiceRepository(db),
		adminIDs: adminIDs,
		log:      log,
		now:      time.Now,
	}
}

// SetClock replaces the time source.
func (n *Notifier) SetClock(now func() time.Time) {
	n.now = now
}

// PaymentCompleted delivers what the user paid for. Duplicate completions are ignored.
func (n *Notifier) PaymentCompleted(ctx context.Context, f *orchestrator.Fulfillment) {
	if f == nil || f.Duplicate || f.Payment == nil {
		return
	}
	p := f.Payment
	chatID, ok := n.chatID(ctx, p)
	if !ok {
		return
	}

	switch p.Type {
	case models.PaymentTypeWalletCharge:
		n.send(ctx, chatID, fmt.Sprintf(
			"✅ کیف پول شما به مبلغ %s شارژ شد.\nموجودی فعلی: %s",
			utils.FormatTomans(p.AmountTomans), utils.FormatTomans(f.NewBalance)), nil)
	case models.PaymentTypePurchase:
		if f.Service == nil {
			n.send(ctx, chatID, "✅ پرداخت شما تایید شد. برای دریافت لینک از بخش «سرویس‌های من» استفاده کنید.", nil)
			return
		}
		svc := n.refreshLink(ctx, f.Service)
		n.send(ctx, chatID, "✅ سرویس شما با موفقیت خریداری شد.\n\n"+n.serviceDetails(svc), nil)
	case models.PaymentTypeRenewal:
		if f.Service == nil {
			n.send(ctx, chatID, "✅ سرویس شما تمدید شد.", nil)
			return
		}
		n.send(ctx, chatID, fmt.Sprintf(
			"✅ سرویس %s تمدید شد.\n🗓 تاریخ انقضا: %s\n🌐 حجم: %s",
			html.EscapeString(f.Service.Name),
			f.Service.ExpireAt.Format("2006-01-02"),
			utils.FormatBytes(f.Service.TrafficLimitBytes)), nil)
	}
}

// PaymentFailed tells the user the gateway step succeeded but delivery did not,
// and gives admins the details needed to follow up.
func (n *Notifier) PaymentFailed(ctx context.Context, p *models.Payment, cause error) {
	if p == nil {
		return
	}
	if chatID, ok := n.chatID(ctx, p); ok {
		n.send(ctx, chatID,
			"⚠️ پرداخت شما دریافت شد اما تکمیل آن با خطا مواجه شد. پشتیبانی در حال بررسی است و نیازی به پرداخت مجدد نیست.", nil)
	}

	reason := "unknown"
	if cause != nil {
		reason = cause.Error()
	}
	n.Admins(ctx, fmt.Sprintf(
		"🚨 تکمیل پرداخت ناموفق\nشناسه پرداخت: %d\nنوع: %s\nدرگاه: %s\nمبلغ: %s\nخطا: <code>%s</code>",
		p.ID, p.Type, p.Gateway, utils.FormatTomans(p.AmountTomans), html.EscapeString(truncate(reason, 500))), nil)
}

// PaymentDeclined reports a payment the hosted gateway did not confirm.
func (n *Notifier) PaymentDeclined(ctx context.Context, p *models.Payment, reason string) {
	if p == nil {
		return
	}
	chatID, ok := n.chatID(ctx, p)
	if !ok {
		return
	}
	n.send(ctx, chatID, "❌ پرداخت شما ناموفق بود. در صورت کسر وجه با پشتیبانی تماس بگیرید.", nil)
	n.Admins(ctx, fmt.Sprintf("پرداخت ناموفق درگاه: %d | کاربر: %d | %s", p.ID, chatID, html.EscapeString(reason)), nil)
}

// PaymentRejected tells the user an admin declined their receipt.
func (n *Notifier) PaymentRejected(ctx context.Context, p *models.Payment) {
	if p == nil {
		return
	}
	chatID, ok := n.chatID(ctx, p)
	if !ok {
		return
	}
	text := fmt.Sprintf("❌ رسید پرداخت شماره %d رد شد.", p.ID)
	if note := strings.TrimSpace(p.ReviewNote); note != "" {
		text += "\nدلیل: " + html.EscapeString(note)
	}
	n.send(ctx, chatID, text, nil)
}

// ManualReceiptSubmitted forwards a receipt to every admin with review buttons.
func (n *Notifier) ManualReceiptSubmitted(ctx context.Context, p *models.Payment) {
	if p == nil {
		return
	}
	who := "-"
	if p.User != nil {
		who = fmt.Sprintf("%d", p.User.TelegramID)
		if p.User.Username != "" {
			who += " (@" + html.EscapeString(p.User.Username) + ")"
		}
	}
	caption := fmt.Sprintf(
		"🧾 رسید جدید\nشناسه پرداخت: %d\nکاربر: %s\nنوع: %s\nمبلغ: %s",
		p.ID, who, p.Type, utils.FormatTomans(p.AmountTomans))
	markup := telegram.Row(
		telegram.InlineButton{Text: "✅ تایید", CallbackData: fmt.Sprintf("approve:%d", p.ID)},
		telegram.InlineButton{Text: "❌ رد", CallbackData: fmt.Sprintf("reject:%d", p.ID)},
	)

	for _, adminID := range n.adminIDs {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
		var err error
		if p.ManualReceiptFileID != "" {
			err = n.sender.SendPhoto(sendCtx, adminID, p.ManualReceiptFileID, caption, markup)
		} else {
			err = n.sender.SendMessage(sendCtx, adminID, caption, markup)
		}
		cancel()
		if err != nil {
			n.log.Warn("Failed to forward receipt to admin",
				zap.Uint("payment_id", p.ID), zap.Int64("admin_id", adminID), zap.Error(err))
		}
	}
}

// LowResource warns the owner of a service that is close to running out.
func (n *Notifier) LowResource(ctx context.Context, telegramID int64, svc *models.Service, gbLeft float64, daysLeft int) {
	if daysLeft < 0 {
		daysLeft = 0
	}
	n.send(ctx, telegramID, fmt.Sprintf(
		"⏳ از سرویس شما با نام %s فقط %d گیگابایت / %d روز باقی مانده است.\nبرای تمدید از بخش «سرویس‌های من» اقدام کنید.",
		html.EscapeString(svc.Name), int(gbLeft), daysLeft), nil)
}

// Admins sends text to every configured admin.
func (n *Notifier) Admins(ctx context.Context, text string, markup *telegram.InlineKeyboard) {
	for _, id := range n.adminIDs {
		n.send(ctx, id, text, markup)
	}
}

func (n *Notifier) send(ctx context.Context, chatID int64, text string, markup *telegram.InlineKeyboard) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()

	if err := n.sender.SendMessage(ctx, chatID, text, markup); err != nil {
		if telegram.IsBlocked(err) {
			n.log.Info("Chat unreachable", zap.Int64("chat_id", chatID))
			return
		}
		n.log.Warn("Failed to send notification", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (n *Notifier) chatID(ctx context.Context, p *models.Payment) (int64, bool) {
	if p.User != nil {
		return p.User.TelegramID, true
	}
	u, err := n.users.FindByID(ctx, p.UserID)
	if err != nil {
		n.log.Warn("Notification recipient not found", zap.Uint("payment_id", p.ID), zap.Error(err))
		return 0, false
	}
	p.User = u
	return u.TelegramID, true
}

// refreshLink asks the panel for the current subscription URL and stores it when it changed.
func (n *Notifier) refreshLink(ctx context.Context, svc *models.Service) *models.Service {
	if n.panel == nil || svc.RemoteID == "" {
		return svc
	}
	link, err := n.panel.GetSubscriptionLink(ctx, svc.RemoteID)
	if err != nil {
		n.log.Warn("Subscription link refresh failed", zap.Uint("service_id", svc.ID), zap.Error(err))
		return svc
	}
	link = strings.TrimSpace(link)
	if link == "" || link == svc.SubscriptionURL {
		return svc
	}
	if err := n.services.Update(ctx, svc.ID, map[string]interface{}{"subscription_url": link}); err != nil {
		n.log.Warn("Failed to store subscription link", zap.Uint("service_id", svc.ID), zap.Error(err))
	}
	svc.SubscriptionURL = link
	return svc
}

func (n *Notifier) serviceDetails(svc *models.Service) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔮 نام سرویس: %s\n", html.EscapeString(svc.Name))
	if svc.SubscriptionURL != "" {
		fmt.Fprintf(&b, "🔗 لینک اشتراک:\n<code>%s</code>\n", html.EscapeString(svc.SubscriptionURL))
	} else {
		b.WriteString("🔗 لینک اشتراک فعلا در دسترس نیست. از بخش «سرویس‌های من» دوباره بررسی کنید.\n")
	}
	fmt.Fprintf(&b, "🌐 حجم: %s\n", utils.FormatBytes(svc.TrafficLimitBytes))
	fmt.Fprintf(&b, "🗓 زمان باقی‌مانده: %d روز", max(svc.DaysLeft(n.now()), 0))
	return b.String()
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "…"
}
