package api

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"vpnstore/internal/models"
	"vpnstore/internal/repository"
)

const defaultStatsDays = 30

// StatsHandler serves the admin overview.
type StatsHandler struct {
	stats  *repository.StatsRepository
	logger *zap.Logger
	now    func() time.Time
}

func NewStatsHandler(stats *repository.StatsRepository, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{stats: stats, logger: logger, now: time.Now}
}

// Get handles GET /api/stats. days selects the window of RecentSales.
func (h *StatsHandler) Get(c echo.Context) error {
	var req models.StatsRequest
	if err := bind(c, &req); err != nil {
		return failure(c, h.logger, err)
	}
	days := req.Days
	if days == 0 {
		days = defaultStatsDays
	}

	now := h.now()
	st, err := h.stats.Collect(c.Request().Context(), now.AddDate(0, 0, -days), now)
	if err != nil {
		return failure(c, h.logger, err)
	}
	return successResponse(c, "Successful", st)
}
