package panel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"

	"vpnstore/internal/apperror"
	"vpnstore/internal/metrics"
	"vpnstore/internal/pkg/httpclient"
)

const (
	remnaStatusActive   = "ACTIVE"
	remnaStatusDisabled = "DISABLED"
)

var validate = validator.New()

// RemnawaveClient implements PanelClient for Remnawave panels.
// Every response is wrapped in {"response": ...}.
type RemnawaveClient struct {
	client *httpclient.Client
}

// NewRemnawaveClient creates a new Remnawave panel client.
func NewRemnawaveClient(baseURL, token string, timeout time.Duration) *RemnawaveClient {
	return &RemnawaveClient{
		client: httpclient.New().
			WithTimeout(timeout).
			WithBaseURL(baseURL).
			WithBearerToken(token),
	}
}

func (r *RemnawaveClient) PanelType() string {
	return "remnawave"
}

// Newer panel versions report usage under userTraffic.
type remnaTraffic struct {
	UsedTrafficBytes int64 `json:"usedTrafficBytes"`
}

type remnaUser struct {
	UUID              string        `json:"uuid" validate:"required"`
	ShortUUID         string        `json:"shortUuid"`
	Username          string        `json:"username" validate:"required"`
	Status            string        `json:"status"`
	SubscriptionURL   string        `json:"subscriptionUrl"`
	TrafficLimitBytes int64         `json:"trafficLimitBytes" validate:"gte=0"`
	UsedTrafficBytes  int64         `json:"usedTrafficBytes"`
	UserTraffic       *remnaTraffic `json:"userTraffic,omitempty"`
	ExpireAt          time.Time     `json:"expireAt"`
}

func (u *remnaUser) account() *Account {
	used := u.UsedTrafficBytes
	if u.UserTraffic != nil && u.UserTraffic.UsedTrafficBytes > used {
		used = u.UserTraffic.UsedTrafficBytes
	}
	return &Account{
		ID:                u.UUID,
		ShortID:           u.ShortUUID,
		Username:          u.Username,
		SubscriptionURL:   u.SubscriptionURL,
		TrafficLimitBytes: u.TrafficLimitBytes,
		UsedTrafficBytes:  used,
		ExpireAt:          u.ExpireAt,
		Enabled:           u.Status == remnaStatusActive,
	}
}

type remnaSubscription struct {
	IsFound         bool   `json:"isFound"`
	SubscriptionURL string `json:"subscriptionUrl" validate:"required_if=IsFound true"`
}

type remnaEnvelope[T any] struct {
	Response *T `json:"response"`
}

// decode unwraps the envelope and validates the payload schema.
func decode[T any](op string, body []byte) (*T, error) {
	var env remnaEnvelope[T]
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("remnawave %s: decode: %w", op, err)
	}
	if env.Response == nil {
		return nil, fmt.Errorf("remnawave %s: empty response", op)
	}
	if err := validate.Struct(env.Response); err != nil {
		return nil, fmt.Errorf("remnawave %s: invalid response: %w", op, err)
	}
	return env.Response, nil
}

// result counts the call and maps transport errors.
func (r *RemnawaveClient) result(op string, err error) error {
	metrics.ObserveGateway("remnawave", op, err)
	if err == nil {
		return nil
	}
	if httpclient.IsStatus(err, http.StatusNotFound) {
		return ErrAccountNotFound
	}
	return apperror.Upstream("PANEL_ERROR", err)
}

func (r *RemnawaveClient) CreateAccount(ctx context.Context, req CreateAccountRequest) (*Account, error) {
	body := map[string]interface{}{
		"username":             req.Username,
		"trafficLimitBytes":    req.TrafficLimitBytes,
		"expireAt":             req.ExpireAt.UTC().Format(time.RFC3339),
		"telegramId":           req.TelegramID,
		"status":               remnaStatusActive,
		"trafficLimitStrategy": "NO_RESET",
	}
	if req.Group != "" {
		body["activeInternalSquads"] = []string{req.Group}
	}

	// Create is not retried: a lost response would leave a second account behind.
	resp, err := r.client.Post(ctx, "/api/users", body)
	var user *remnaUser
	if err == nil {
		user, err = decode[remnaUser]("create", resp)
	}
	if err := r.result("create", err); err != nil {
		return nil, err
	}
	return user.account(), nil
}

func (r *RemnawaveClient) UpdateAccount(ctx context.Context, req UpdateAccountRequest) (*Account, error) {
	status := remnaStatusActive
	if !req.Enabled {
		status = remnaStatusDisabled
	}
	body := map[string]interface{}{
		"uuid":              req.ID,
		"trafficLimitBytes": req.TrafficLimitBytes,
		"expireAt":          req.ExpireAt.UTC().Format(time.RFC3339),
		"status":            status,
	}

	resp, err := r.client.Patch(httpclient.Idempotent(ctx), "/api/users", body)
	var user *remnaUser
	if err == nil {
		user, err = decode[remnaUser]("update", resp)
	}
	if err := r.result("update", err); err != nil {
		return nil, err
	}
	return user.account(), nil
}

func (r *RemnawaveClient) ResetUsage(ctx context.Context, id string) error {
	_, err := r.client.Post(httpclient.Idempotent(ctx), "/api/users/"+url.PathEscape(id)+"/actions/reset-traffic", nil)
	return r.result("reset", err)
}

func (r *RemnawaveClient) DeleteAccount(ctx context.Context, id string) error {
	_, err := r.client.Delete(ctx, "/api/users/"+url.PathEscape(id))
	if err := r.result("delete", err); err != nil && err != ErrAccountNotFound {
		return err
	}
	return nil
}

func (r *RemnawaveClient) GetAccountByUsername(ctx context.Context, username string) (*Account, error) {
	resp, err := r.client.Get(ctx, "/api/users/by-username/"+url.PathEscape(username))
	var user *remnaUser
	if err == nil {
		user, err = decode[remnaUser]("get", resp)
	}
	if err := r.result("get", err); err != nil {
		return nil, err
	}
	return user.account(), nil
}

func (r *RemnawaveClient) GetSubscriptionLink(ctx context.Context, id string) (string, error) {
	resp, err := r.client.Get(ctx, "/api/subscriptions/by-uuid/"+url.PathEscape(id))
	var sub *remnaSubscription
	if err == nil {
		sub, err = decode[remnaSubscription]("subscription", resp)
	}
	if err := r.result("subscription", err); err != nil {
		return "", err
	}
	if !sub.IsFound {
		return "", ErrAccountNotFound
	}
	return sub.SubscriptionURL, nil
}
