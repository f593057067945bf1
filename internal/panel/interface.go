package panel

import (
	"context"
	"errors"
	"time"
)

// ErrAccountNotFound is returned when the panel has no account for the id or username.
var ErrAccountNotFound = errors.New("panel account not found")

// Account is a subscription account on a VPN panel.
type Account struct {
	ID                string    `json:"id"`
	ShortID           string    `json:"short_id,omitempty"`
	Username          string    `json:"username"`
	SubscriptionURL   string    `json:"subscription_url,omitempty"`
	TrafficLimitBytes int64     `json:"traffic_limit_bytes"`
	UsedTrafficBytes  int64     `json:"used_traffic_bytes"`
	ExpireAt          time.Time `json:"expire_at"`
	Enabled           bool      `json:"enabled"`
}

// CreateAccountRequest contains params for creating an account on a panel.
type CreateAccountRequest struct {
	Username          string
	TrafficLimitBytes int64
	ExpireAt          time.Time
	TelegramID        int64
	// Group is the panel-side squad/inbound group; empty means the panel default.
	Group string
}

// UpdateAccountRequest replaces limit, expiry and enabled state of an account.
type UpdateAccountRequest struct {
	ID                string
	TrafficLimitBytes int64
	ExpireAt          time.Time
	Enabled           bool
}

// PanelClient defines the operations the store needs from a VPN panel.
// Each panel type (Remnawave, Marzban) implements this interface.
type PanelClient interface {
	// CreateAccount creates a new active account.
	CreateAccount(ctx context.Context, req CreateAccountRequest) (*Account, error)

	// UpdateAccount sets limit, expiry and status.
	UpdateAccount(ctx context.Context, req UpdateAccountRequest) (*Account, error)

	// ResetUsage zeroes the used traffic counter.
	ResetUsage(ctx context.Context, id string) error

	// DeleteAccount removes an account. Deleting a missing account is not an error.
	DeleteAccount(ctx context.Context, id string) error

	// GetAccountByUsername returns usage, limits and expiry.
	GetAccountByUsername(ctx context.Context, username string) (*Account, error)

	// GetSubscriptionLink returns the current subscription URL.
	GetSubscriptionLink(ctx context.Context, id string) (string, error)

	// PanelType returns the panel type identifier.
	PanelType() string
}
