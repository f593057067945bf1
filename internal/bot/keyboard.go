package bot

import (
	"strconv"

	tele "gopkg.in/telebot.v3"

	"vpnstore/internal/models"
)

// Buttons with a Unique are routed by telebot to their own handler.
var (
	btnGateway = tele.Btn{Unique: "gw"}
	btnCancel  = tele.Btn{Unique: "cancel"}
)

var gatewayCodes = map[models.PaymentGateway]string{
	models.GatewayWallet: "W",
	models.GatewayHosted: "H",
	models.GatewayManual: "M",
}

func gatewayFromCode(code string) (models.PaymentGateway, bool) {
	for gw, c := range gatewayCodes {
		if c == code {
			return gw, true
		}
	}
	return "", false
}

// gatewayKeyboard offers the payment methods enabled in settings.
// Wallet top-ups cannot be paid from the wallet.
func gatewayKeyboard(setting *models.Setting, kind checkoutKind) *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	var rows []tele.Row
	if kind != checkoutCharge {
		rows = append(rows, menu.Row(menu.Data("💰 پرداخت از کیف پول", btnGateway.Unique, gatewayCodes[models.GatewayWallet])))
	}
	if setting.EnableHostedPayment {
		rows = append(rows, menu.Row(menu.Data("💳 پرداخت آنلاین", btnGateway.Unique, gatewayCodes[models.GatewayHosted])))
	}
	if setting.EnableManualPayment {
		rows = append(rows, menu.Row(menu.Data("🏦 کارت به کارت", btnGateway.Unique, gatewayCodes[models.GatewayManual])))
	}
	if len(rows) == 0 {
		return nil
	}
	menu.Inline(rows...)
	return menu
}

func payLinkKeyboard(link string) *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	menu.Inline(menu.Row(menu.URL("🔗 پرداخت", link)))
	return menu
}

func cancelKeyboard(paymentID uint) *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	menu.Inline(menu.Row(menu.Data("❌ لغو پرداخت", btnCancel.Unique, strconv.FormatUint(uint64(paymentID), 10))))
	return menu
}
