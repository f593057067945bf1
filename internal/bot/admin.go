package bot

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"

	"vpnstore/internal/apperror"
	"vpnstore/internal/pkg/utils"
)

const (
	statsWindowDays   = 30
	broadcastBatch    = 20
	broadcastMaxRunes = 4000
)

// ── Referral invite ───────────────────────────────────────────────────

func (b *Bot) handleInvite(c tele.Context) error {
	user := currentUser(c)
	ctx, cancel := b.ctx()
	defer cancel()

	setting, err := b.settings.Get(ctx)
	if err != nil {
		return b.fail(c, err)
	}
	if !setting.EnableReferralCapture {
		return b.fail(c, apperror.ErrFeatureDisabled)
	}
	username := b.botUsername()
	if username == "" {
		b.logger.Warn("Invite link requested but the bot username is unknown")
		return b.fail(c, apperror.ErrFeatureDisabled)
	}
	referrals, err := b.users.CountReferrals(ctx, user.ID)
	if err != nil {
		return b.fail(c, err)
	}
	return c.Send(fmt.Sprintf("🎁 لینک دعوت شما:\n%s\n\nتعداد افراد دعوت‌شده: %d",
		inviteLink(username, user.TelegramID), referrals), tele.NoPreview)
}

func (b *Bot) botUsername() string {
	if u := strings.TrimPrefix(strings.TrimSpace(b.cfg.Bot.Username), "@"); u != "" {
		return u
	}
	if b.tb.Me != nil {
		return b.tb.Me.Username
	}
	return ""
}

func inviteLink(username string, telegramID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=ref_%d", username, telegramID)
}

// ── Admin: stats and broadcast ────────────────────────────────────────

func (b *Bot) handleStats(c tele.Context) error {
	if !b.cfg.Bot.IsAdmin(c.Sender().ID) {
		return b.handleHelp(c)
	}
	ctx, cancel := b.ctx()
	defer cancel()

	now := time.Now()
	s, err := b.stats.Collect(ctx, now.AddDate(0, 0, -statsWindowDays), now)
	if err != nil {
		return b.fail(c, err)
	}
	var sb strings.Builder
	sb.WriteString("📊 آمار فروشگاه\n\n")
	fmt.Fprintf(&sb, "👥 کاربران: %d (مسدود: %d)\n", s.Users, s.BannedUsers)
	fmt.Fprintf(&sb, "📦 سرویس‌ها: %d (فعال: %d)\n", s.Services, s.ActiveServices)
	fmt.Fprintf(&sb, "🧾 رسیدهای در انتظار بررسی: %d\n", s.PendingReviews)
	fmt.Fprintf(&sb, "💵 فروش کل: %s\n", utils.FormatTomans(s.TotalSales))
	fmt.Fprintf(&sb, "📈 فروش %d روز اخیر: %s\n", statsWindowDays, utils.FormatTomans(s.RecentSales))
	fmt.Fprintf(&sb, "💰 شارژ کیف پول: %s", utils.FormatTomans(s.WalletCharges))
	return c.Send(sb.String())
}

func (b *Bot) handleBroadcast(c tele.Context) error {
	admin := c.Sender().ID
	if !b.cfg.Bot.IsAdmin(admin) {
		return b.handleHelp(c)
	}
	text := strings.TrimSpace(c.Message().Payload)
	if text == "" {
		return c.Send("متن پیام را بعد از دستور بنویسید:\n/broadcast متن")
	}
	if utf8.RuneCountInString(text) > broadcastMaxRunes {
		return c.Send(fmt.Sprintf("❌ متن پیام حداکثر %d کاراکتر است.", broadcastMaxRunes))
	}
	if !b.broadcasting.CompareAndSwap(false, true) {
		return c.Send("⏳ یک ارسال همگانی در حال انجام است.")
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer b.broadcasting.Store(false)
		b.broadcast(admin, text)
	}()
	return c.Send("📣 ارسال همگانی شروع شد.")
}

// broadcast sends text to every non-banned user in batches and reports the
// totals to the admin who started it. Stop interrupts it between batches.
func (b *Bot) broadcast(admin int64, text string) {
	var sent, failed int
	var afterID uint
	for {
		ctx, cancel := b.ctx()
		users, err := b.users.FindBroadcastTargets(ctx, afterID, broadcastBatch)
		cancel()
		if err != nil {
			b.logger.Error("Broadcast stopped: failed to load users", zap.Uint("after_id", afterID), zap.Error(err))
			break
		}
		if len(users) == 0 {
			break
		}
		for _, u := range users {
			if _, err := b.tb.Send(tele.ChatID(u.TelegramID), text); err != nil {
				failed++
				b.logger.Debug("Broadcast delivery failed", zap.Int64("telegram_id", u.TelegramID), zap.Error(err))
				continue
			}
			sent++
		}
		afterID = users[len(users)-1].ID

		select {
		case <-b.done:
			b.logger.Warn("Broadcast interrupted by shutdown", zap.Int("sent", sent), zap.Int("failed", failed))
			return
		case <-time.After(b.broadcastPause):
		}
	}

	b.logger.Info("Broadcast finished", zap.Int64("admin", admin), zap.Int("sent", sent), zap.Int("failed", failed))
	summary := fmt.Sprintf("📣 ارسال همگانی انجام شد.\nموفق: %d | ناموفق: %d", sent, failed)
	if _, err := b.tb.Send(tele.ChatID(admin), summary); err != nil {
		b.logger.Warn("Failed to send broadcast summary", zap.Int64("admin", admin), zap.Error(err))
	}
}
