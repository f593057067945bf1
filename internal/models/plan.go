package models

import "time"

// Plan maps to the `plans` table.
type Plan struct {
	ID           uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name         string    `gorm:"column:name;size:191;not null;uniqueIndex:idx_plan_catalog" json:"name"`
	TrafficGB    int       `gorm:"column:traffic_gb;not null;uniqueIndex:idx_plan_catalog" json:"traffic_gb"`
	DurationDays int       `gorm:"column:duration_days;not null;uniqueIndex:idx_plan_catalog" json:"duration_days"`
	PriceTomans  int64     `gorm:"column:price_tomans;not null" json:"price_tomans"`
	PanelGroup   string    `gorm:"column:panel_group;size:255" json:"panel_group"`
	IsActive     bool      `gorm:"column:is_active;not null" json:"is_active"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Plan) TableName() string {
	return "plans"
}

// TrafficBytes converts the plan quota to bytes.
func (p *Plan) TrafficBytes() int64 {
	return GBToBytes(p.TrafficGB)
}

// Duration returns the plan validity period.
func (p *Plan) Duration() time.Duration {
	return time.Duration(p.DurationDays) * 24 * time.Hour
}

const bytesPerGB int64 = 1024 * 1024 * 1024

func GBToBytes(gb int) int64 {
	return int64(gb) * bytesPerGB
}

func BytesToGB(b int64) float64 {
	if b <= 0 {
		return 0
	}
	return float64(b) / float64(bytesPerGB)
}
