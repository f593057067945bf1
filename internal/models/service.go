package models

import "time"

// Service maps to the `services` table: one provisioned subscription on the remote panel.
// PlanID is nil for trial services.
type Service struct {
	ID                 uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID             uint      `gorm:"column:user_id;not null;uniqueIndex:idx_service_user_name" json:"user_id"`
	PlanID             *uint     `gorm:"column:plan_id;index" json:"plan_id"`
	Name               string    `gorm:"column:name;size:64;not null;uniqueIndex:idx_service_user_name" json:"name"`
	RemoteUsername     string    `gorm:"column:remote_username;size:191;uniqueIndex;not null" json:"remote_username"`
	RemoteID           string    `gorm:"column:remote_id;size:191;index" json:"remote_id"`
	ShortID            string    `gorm:"column:short_id;size:191" json:"short_id"`
	SubscriptionURL    string    `gorm:"column:subscription_url;type:text" json:"subscription_url"`
	TrafficLimitBytes  int64     `gorm:"column:traffic_limit_bytes;not null;default:0" json:"traffic_limit_bytes"`
	LastKnownUsedBytes int64     `gorm:"column:last_known_used_bytes;not null;default:0" json:"last_known_used_bytes"`
	ExpireAt           time.Time `gorm:"column:expire_at;index" json:"expire_at"`
	IsActive           bool      `gorm:"column:is_active;not null" json:"is_active"`
	IsTest             bool      `gorm:"column:is_test;not null;default:false" json:"is_test"`
	CreatedAt          time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt          time.Time `gorm:"column:updated_at" json:"updated_at"`

	Plan *Plan `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
}

func (Service) TableName() string {
	return "services"
}

// RemainingBytes is the unused traffic according to the last sync.
func (s *Service) RemainingBytes() int64 {
	if s.TrafficLimitBytes <= s.LastKnownUsedBytes {
		return 0
	}
	return s.TrafficLimitBytes - s.LastKnownUsedBytes
}

// DaysLeft rounds the time until expiry up to whole days.
func (s *Service) DaysLeft(now time.Time) int {
	diff := s.ExpireAt.Sub(now)
	days := int(diff / (24 * time.Hour))
	if diff%(24*time.Hour) > 0 {
		days++
	}
	return days
}
