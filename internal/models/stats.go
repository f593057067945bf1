package models

import "time"

// StoreStats is the admin overview of users, services and sales.
type StoreStats struct {
	Users          int64     `json:"users"`
	BannedUsers    int64     `json:"banned_users"`
	Services       int64     `json:"services"`
	ActiveServices int64     `json:"active_services"`
	PendingReviews int64     `json:"pending_reviews"`
	TotalSales     int64     `json:"total_sales_tomans"`
	RecentSales    int64     `json:"recent_sales_tomans"`
	WalletCharges  int64     `json:"wallet_charges_tomans"`
	Since          time.Time `json:"since"`
	GeneratedAt    time.Time `json:"generated_at"`
}
