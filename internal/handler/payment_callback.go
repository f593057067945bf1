package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"vpnstore/internal/models"
	"vpnstore/internal/orchestrator"
	"vpnstore/internal/pkg/utils"
)

const maxCallbackBody = 64 << 10

// CallbackProcessor settles hosted gateway callbacks.
type CallbackProcessor interface {
	HandleHostedCallback(ctx context.Context, authority string, status int) (*orchestrator.CallbackResult, error)
	PaymentByAuthority(ctx context.Context, authority string) (*models.Payment, error)
}

// CallbackNotifier receives the user-visible consequences of a callback.
type CallbackNotifier interface {
	PaymentCompleted(ctx context.Context, f *orchestrator.Fulfillment)
	PaymentFailed(ctx context.Context, p *models.Payment, cause error)
	PaymentDeclined(ctx context.Context, p *models.Payment, reason string)
}

// PaymentCallbackHandler handles hosted gateway callbacks.
type PaymentCallbackHandler struct {
	payments CallbackProcessor
	notify   CallbackNotifier
	logger   *zap.Logger
}

// NewPaymentCallbackHandler creates a new payment callback handler.
func NewPaymentCallbackHandler(payments CallbackProcessor, notify CallbackNotifier, logger *zap.Logger) *PaymentCallbackHandler {
	return &PaymentCallbackHandler{
		payments: payments,
		notify:   notify,
		logger:   logger,
	}
}

// CallbackResponse is the body of every webhook reply.
type CallbackResponse struct {
	OK     bool   `json:"ok"`
	Status string `json:"status"`
}

// ── Tetra98 webhook ──────────────────────────────────────────────────

// Tetra98Callback always answers 200 so the gateway stops redelivering;
// the outcome is carried in the body.
func (h *PaymentCallbackHandler) Tetra98Callback(c echo.Context) error {
	authority, status, err := readCallback(c.Request())
	if err != nil {
		h.logger.Warn("Unreadable gateway callback", zap.Error(err))
		return c.JSON(http.StatusOK, CallbackResponse{Status: string(orchestrator.OutcomeInvalidAuthority)})
	}

	ctx := c.Request().Context()
	res, err := h.payments.HandleHostedCallback(ctx, authority, status)
	if res == nil {
		res = &orchestrator.CallbackResult{Outcome: orchestrator.OutcomeError}
	}

	fields := []zap.Field{
		zap.String("authority", authority),
		zap.Int("status", status),
		zap.String("outcome", string(res.Outcome)),
	}
	if res.Payment != nil {
		fields = append(fields, zap.Uint("payment_id", res.Payment.ID))
	}

	switch res.Outcome {
	case orchestrator.OutcomeSuccess:
		h.logger.Info("Hosted payment completed", fields...)
		h.notify.PaymentCompleted(ctx, res.Fulfillment)
	case orchestrator.OutcomeFailed, orchestrator.OutcomeVerifyFailed:
		h.logger.Info("Hosted payment declined", fields...)
		if res.Changed {
			h.notify.PaymentDeclined(ctx, res.Payment, string(res.Outcome))
		}
	case orchestrator.OutcomeNotFound:
		h.logger.Warn("Callback for unknown authority", fields...)
	case orchestrator.OutcomePaidAfterClose:
		h.logger.Error("Gateway confirmed a closed payment", append(fields, zap.Error(err))...)
		if res.Changed {
			h.notify.PaymentFailed(ctx, res.Payment, err)
		}
	case orchestrator.OutcomeError:
		h.logger.Error("Hosted callback failed", append(fields, zap.Error(err))...)
		if res.Changed {
			h.notify.PaymentFailed(ctx, res.Payment, err)
		}
	default:
		h.logger.Info("Hosted callback handled", fields...)
	}

	return c.JSON(http.StatusOK, CallbackResponse{OK: res.Outcome.OK(), Status: string(res.Outcome)})
}

// Tetra98Return renders the page the payer's browser lands on after the gateway.
// It only reads state; settlement happens in the webhook.
func (h *PaymentCallbackHandler) Tetra98Return(c echo.Context) error {
	authority := strings.TrimSpace(firstNonEmpty(c.QueryParam("authority"), c.QueryParam("Authority")))
	if !orchestrator.ValidAuthority(authority) {
		return h.renderPaymentResult(c, "خطا", "پارامترهای نامعتبر", 0, 0)
	}

	p, err := h.payments.PaymentByAuthority(c.Request().Context(), authority)
	if err != nil {
		return h.renderPaymentResult(c, "خطا", "تراکنش یافت نشد", 0, 0)
	}

	switch p.Status {
	case models.StatusSuccess:
		return h.renderPaymentResult(c, "پرداخت موفق", "از انجام تراکنش متشکریم! نتیجه در ربات برای شما ارسال شد.", p.ID, p.AmountTomans)
	case models.StatusFailed, models.StatusCanceled:
		return h.renderPaymentResult(c, "پرداخت ناموفق", "در صورت کسر وجه با پشتیبانی تماس بگیرید.", p.ID, p.AmountTomans)
	default:
		return h.renderPaymentResult(c, "در حال بررسی", "پرداخت شما در حال بررسی است. نتیجه در ربات اعلام می‌شود.", p.ID, p.AmountTomans)
	}
}

// ── Helpers ──────────────────────────────────────────────────────────

// readCallback accepts JSON or form bodies with lower or capitalized keys.
func readCallback(r *http.Request) (string, int, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		return "", 0, fmt.Errorf("read body: %w", err)
	}

	values := map[string]string{}
	if strings.HasPrefix(r.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		var raw map[string]interface{}
		if err := json.Unmarshal(body, &raw); err != nil {
			return "", 0, fmt.Errorf("decode json: %w", err)
		}
		for k, v := range raw {
			switch t := v.(type) {
			case string:
				values[k] = t
			case float64:
				values[k] = strconv.FormatFloat(t, 'f', -1, 64)
			}
		}
	} else {
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return "", 0, fmt.Errorf("decode form: %w", err)
		}
		for k := range form {
			values[k] = form.Get(k)
		}
	}
	for k, v := range r.URL.Query() {
		if _, ok := values[k]; !ok && len(v) > 0 {
			values[k] = v[0]
		}
	}

	authority := strings.TrimSpace(firstNonEmpty(values["authority"], values["Authority"]))
	status, err := strconv.Atoi(strings.TrimSpace(firstNonEmpty(values["status"], values["Status"])))
	if err != nil {
		// a missing or garbled status is treated as a declined payment
		status = -1
	}
	return authority, status, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

var resultPage = template.Must(template.New("payment").Parse(`<!DOCTYPE html>
<html dir="rtl">
<head>
    <meta charset="UTF-8">
    <title>نتیجه پرداخت</title>
    <style>
        body { font-family: Tahoma, sans-serif; background: #f2f2f2; margin: 0; padding: 20px; display: flex; justify-content: center; align-items: center; min-height: 100vh; }
        .box { background: #fff; border-radius: 8px; box-shadow: 0 2px 10px rgba(0,0,0,0.1); padding: 40px; text-align: center; max-width: 400px; width: 100%; }
        h1 { color: #333; margin-bottom: 20px; }
        p { color: #666; margin-bottom: 10px; }
    </style>
</head>
<body>
    <div class="box">
        <h1>{{.Title}}</h1>
        {{if .PaymentID}}<p>شماره پرداخت: <span>{{.PaymentID}}</span></p>{{end}}
        {{if .Amount}}<p>مبلغ: <span>{{.Amount}}</span></p>{{end}}
        <p>{{.Message}}</p>
    </div>
</body>
</html>`))

func (h *PaymentCallbackHandler) renderPaymentResult(c echo.Context, title, message string, paymentID uint, amount int64) error {
	data := map[string]interface{}{
		"Title":     title,
		"Message":   message,
		"PaymentID": paymentID,
		"Amount":    "",
	}
	if amount > 0 {
		data["Amount"] = utils.FormatTomans(amount)
	}

	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(http.StatusOK)
	return resultPage.Execute(c.Response().Writer, data)
}
