package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"vpnstore/internal/apperror"
	"vpnstore/internal/metrics"
	"vpnstore/internal/pkg/httpclient"
)

// StatusOK is the provider code for a successful order or verification.
const StatusOK = 100

// Tetra98Gateway implements the Gateway interface for Tetra98.
type Tetra98Gateway struct {
	apiKey string
	client *httpclient.Client
}

func NewTetra98Gateway(baseURL, apiKey string, timeout time.Duration) *Tetra98Gateway {
	return &Tetra98Gateway{
		apiKey: apiKey,
		client: httpclient.New().WithTimeout(timeout).WithBaseURL(baseURL),
	}
}

func (g *Tetra98Gateway) Name() string {
	return "tetra98"
}

// tetraResponse tolerates both casings the provider has used and numeric or
// string status codes.
type tetraResponse struct {
	Status    flexInt `json:"status"`
	StatusAlt flexInt `json:"Status"`
	Authority string  `json:"authority"`
	AuthAlt   string  `json:"Authority"`
	RefID     string  `json:"RefID"`
	RefIDAlt  string  `json:"ref_id"`
}

func (r *tetraResponse) status() int {
	if r.Status.set {
		return r.Status.v
	}
	return r.StatusAlt.v
}

func (r *tetraResponse) authority() string {
	if r.Authority != "" {
		return strings.TrimSpace(r.Authority)
	}
	return strings.TrimSpace(r.AuthAlt)
}

func (r *tetraResponse) refID() string {
	if r.RefID != "" {
		return r.RefID
	}
	return r.RefIDAlt
}

type flexInt struct {
	v   int
	set bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("status %q: %w", s, err)
	}
	f.v, f.set = int(v), true
	return nil
}

func (g *Tetra98Gateway) CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error) {
	body := map[string]interface{}{
		"ApiKey":      g.apiKey,
		"Hash_id":     req.HashID,
		"Amount":      req.AmountRials,
		"CallbackURL": req.CallbackURL,
	}

	resp, err := g.client.Post(ctx, "/api/create_order", body)
	var result tetraResponse
	if err == nil {
		err = json.Unmarshal(resp, &result)
	}
	if err == nil && (result.status() != StatusOK || result.authority() == "") {
		err = fmt.Errorf("tetra98 create order: status %d", result.status())
	}
	metrics.ObserveGateway(g.Name(), "create", err)
	if err != nil {
		return nil, apperror.Upstream("GATEWAY_CREATE_FAILED", err).WithMessage("خطا در ایجاد سفارش پرداخت")
	}

	authority := result.authority()
	return &PaymentResult{
		Authority:  authority,
		PaymentURL: g.PaymentLink(authority),
	}, nil
}

func (g *Tetra98Gateway) VerifyPayment(ctx context.Context, authority string) (*VerifyResult, error) {
	body := map[string]interface{}{
		"ApiKey":    g.apiKey,
		"authority": authority,
	}

	// Verification has no side effect at the provider, so it may be retried.
	resp, err := g.client.Post(httpclient.Idempotent(ctx), "/api/verify", body)
	var result tetraResponse
	if err == nil {
		err = json.Unmarshal(resp, &result)
	}
	metrics.ObserveGateway(g.Name(), "verify", err)
	if err != nil {
		return nil, apperror.Upstream("GATEWAY_VERIFY_FAILED", err)
	}

	status := result.status()
	return &VerifyResult{
		Verified: status == StatusOK,
		Status:   status,
		RefID:    result.refID(),
	}, nil
}

func (g *Tetra98Gateway) PaymentLink(authority string) string {
	return "https://t.me/Tetra98_bot?start=pay_" + authority
}
