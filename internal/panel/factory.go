package panel

import (
	"fmt"

	"vpnstore/internal/config"
)

// NewPanelClient creates a PanelClient based on the configured panel type.
func NewPanelClient(cfg *config.PanelConfig) (PanelClient, error) {
	switch cfg.Type {
	case "remnawave", "":
		return NewRemnawaveClient(cfg.URL, cfg.Token, cfg.Timeout), nil
	case "marzban":
		return NewMarzbanClient(cfg.URL, cfg.Username, cfg.Password, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unsupported panel type: %s", cfg.Type)
	}
}
