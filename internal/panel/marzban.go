package panel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"vpnstore/internal/apperror"
	"vpnstore/internal/metrics"
	"vpnstore/internal/pkg/httpclient"
)

const marzbanTokenTTL = 50 * time.Minute

// MarzbanClient implements PanelClient for Marzban panels.
// Marzban addresses accounts by username, so Account.ID is the username.
type MarzbanClient struct {
	baseURL  string
	username string
	password string
	protocol string
	client   *httpclient.Client

	mu        sync.Mutex
	token     string
	tokenTime time.Time
}

// NewMarzbanClient creates a new Marzban panel client.
func NewMarzbanClient(baseURL, username, password string, timeout time.Duration) *MarzbanClient {
	return &MarzbanClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		protocol: "vless",
		client:   httpclient.New().WithTimeout(timeout).WithBaseURL(baseURL),
	}
}

func (m *MarzbanClient) PanelType() string {
	return "marzban"
}

// authenticate obtains a bearer token, reusing a cached one while fresh.
func (m *MarzbanClient) authenticate(ctx context.Context) (context.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token == "" || time.Since(m.tokenTime) > marzbanTokenTTL {
		resp, err := m.client.PostForm(ctx, "/api/admin/token", map[string]string{
			"username": m.username,
			"password": m.password,
		})
		var result struct {
			AccessToken string `json:"access_token" validate:"required"`
		}
		if err == nil {
			err = json.Unmarshal(resp, &result)
		}
		if err == nil && validate.Struct(result) != nil {
			err = fmt.Errorf("no access_token in response")
		}
		metrics.ObserveGateway("marzban", "auth", err)
		if err != nil {
			return nil, apperror.Upstream("PANEL_ERROR", fmt.Errorf("marzban auth failed: %w", err))
		}
		m.token = result.AccessToken
		m.tokenTime = time.Now()
	}
	return httpclient.WithAuthToken(ctx, m.token), nil
}

func (m *MarzbanClient) invalidate() {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
}

func (m *MarzbanClient) result(op string, err error) error {
	metrics.ObserveGateway("marzban", op, err)
	if err == nil {
		return nil
	}
	if httpclient.IsStatus(err, http.StatusUnauthorized) {
		m.invalidate()
	}
	if httpclient.IsStatus(err, http.StatusNotFound) {
		return ErrAccountNotFound
	}
	return apperror.Upstream("PANEL_ERROR", err)
}

type marzbanUser struct {
	Username        string `json:"username" validate:"required"`
	Status          string `json:"status"`
	DataLimit       *int64 `json:"data_limit"`
	UsedTraffic     int64  `json:"used_traffic"`
	Expire          *int64 `json:"expire"`
	SubscriptionURL string `json:"subscription_url"`
}

func (m *MarzbanClient) account(u *marzbanUser) *Account {
	acc := &Account{
		ID:               u.Username,
		Username:         u.Username,
		UsedTrafficBytes: u.UsedTraffic,
		Enabled:          u.Status == "active",
		SubscriptionURL:  u.SubscriptionURL,
	}
	if u.DataLimit != nil {
		acc.TrafficLimitBytes = *u.DataLimit
	}
	if u.Expire != nil && *u.Expire > 0 {
		acc.ExpireAt = time.Unix(*u.Expire, 0).UTC()
	}
	// Panels without XRAY_SUBSCRIPTION_URL_PREFIX return a relative path.
	if strings.HasPrefix(acc.SubscriptionURL, "/") {
		acc.SubscriptionURL = m.baseURL + acc.SubscriptionURL
	}
	return acc
}

func decodeMarzban(op string, body []byte) (*marzbanUser, error) {
	var u marzbanUser
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("marzban %s: decode: %w", op, err)
	}
	if err := validate.Struct(u); err != nil {
		return nil, fmt.Errorf("marzban %s: invalid response: %w", op, err)
	}
	return &u, nil
}

func (m *MarzbanClient) CreateAccount(ctx context.Context, req CreateAccountRequest) (*Account, error) {
	ctx, err := m.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	protocol := m.protocol
	if req.Group != "" {
		protocol = req.Group
	}
	body := map[string]interface{}{
		"username":   req.Username,
		"status":     "active",
		"data_limit": req.TrafficLimitBytes,
		"expire":     req.ExpireAt.Unix(),
		"note":       fmt.Sprintf("telegram:%d", req.TelegramID),
		"proxies":    map[string]interface{}{protocol: map[string]interface{}{}},
	}
	body["data_limit_reset_strategy"] = "no_reset"

	resp, err := m.client.Post(ctx, "/api/user", body)
	var user *marzbanUser
	if err == nil {
		user, err = decodeMarzban("create", resp)
	}
	if err := m.result("create", err); err != nil {
		return nil, err
	}
	return m.account(user), nil
}

func (m *MarzbanClient) UpdateAccount(ctx context.Context, req UpdateAccountRequest) (*Account, error) {
	ctx, err := m.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	status := "active"
	if !req.Enabled {
		status = "disabled"
	}
	body := map[string]interface{}{
		"status":     status,
		"data_limit": req.TrafficLimitBytes,
		"expire":     req.ExpireAt.Unix(),
	}

	resp, err := m.client.Put(ctx, "/api/user/"+url.PathEscape(req.ID), body)
	var user *marzbanUser
	if err == nil {
		user, err = decodeMarzban("update", resp)
	}
	if err := m.result("update", err); err != nil {
		return nil, err
	}
	return m.account(user), nil
}

func (m *MarzbanClient) ResetUsage(ctx context.Context, id string) error {
	ctx, err := m.authenticate(ctx)
	if err != nil {
		return err
	}
	_, err = m.client.Post(httpclient.Idempotent(ctx), "/api/user/"+url.PathEscape(id)+"/reset", nil)
	return m.result("reset", err)
}

func (m *MarzbanClient) DeleteAccount(ctx context.Context, id string) error {
	ctx, err := m.authenticate(ctx)
	if err != nil {
		return err
	}
	_, err = m.client.Delete(ctx, "/api/user/"+url.PathEscape(id))
	if err := m.result("delete", err); err != nil && err != ErrAccountNotFound {
		return err
	}
	return nil
}

func (m *MarzbanClient) GetAccountByUsername(ctx context.Context, username string) (*Account, error) {
	ctx, err := m.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := m.client.Get(ctx, "/api/user/"+url.PathEscape(username))
	var user *marzbanUser
	if err == nil {
		user, err = decodeMarzban("get", resp)
	}
	if err := m.result("get", err); err != nil {
		return nil, err
	}
	return m.account(user), nil
}

func (m *MarzbanClient) GetSubscriptionLink(ctx context.Context, id string) (string, error) {
	acc, err := m.GetAccountByUsername(ctx, id)
	if err != nil {
		return "", err
	}
	return acc.SubscriptionURL, nil
}
