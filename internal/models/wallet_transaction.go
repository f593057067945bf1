package models

import "time"

type WalletTransactionType string

const (
	WalletTxCharge          WalletTransactionType = "CHARGE"
	WalletTxPurchase        WalletTransactionType = "PURCHASE"
	WalletTxAdminAdjust     WalletTransactionType = "ADMIN_ADJUST"
	WalletTxAffiliateReward WalletTransactionType = "AFFILIATE_REWARD"
	WalletTxRefund          WalletTransactionType = "REFUND"
)

// WalletTransaction maps to the append-only `wallet_transactions` ledger.
type WalletTransaction struct {
	ID           uint                  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID       uint                  `gorm:"column:user_id;not null;index" json:"user_id"`
	PaymentID    *uint                 `gorm:"column:payment_id;index" json:"payment_id"`
	Amount       int64                 `gorm:"column:amount;not null" json:"amount"`
	BalanceAfter int64                 `gorm:"column:balance_after;not null" json:"balance_after"`
	Type         WalletTransactionType `gorm:"column:type;size:32;not null" json:"type"`
	Description  string                `gorm:"column:description;size:500" json:"description"`
	CreatedAt    time.Time             `gorm:"column:created_at" json:"created_at"`
}

func (WalletTransaction) TableName() string {
	return "wallet_transactions"
}
