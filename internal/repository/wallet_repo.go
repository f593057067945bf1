package repository

import (
	"context"

	"gorm.io/gorm"

	"vpnstore/internal/models"
)

// WalletTransactionRepository appends to and reads the wallet ledger.
// Ledger rows are never updated or deleted.
type WalletTransactionRepository struct {
	db *gorm.DB
}

func NewWalletTransactionRepository(db *gorm.DB) *WalletTransactionRepository {
	return &WalletTransactionRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *WalletTransactionRepository) WithTx(tx *gorm.DB) *WalletTransactionRepository {
	return &WalletTransactionRepository{db: tx}
}

// Append inserts a ledger row.
func (r *WalletTransactionRepository) Append(ctx context.Context, row *models.WalletTransaction) error {
	return r.db.WithContext(ctx).Create(row).Error
}

// FindByUserID returns the latest ledger rows of a user.
func (r *WalletTransactionRepository) FindByUserID(ctx context.Context, userID uint, limit int) ([]models.WalletTransaction, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []models.WalletTransaction
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// FindByPaymentID returns ledger rows linked to a payment.
func (r *WalletTransactionRepository) FindByPaymentID(ctx context.Context, paymentID uint) ([]models.WalletTransaction, error) {
	var rows []models.WalletTransaction
	err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).Order("id ASC").Find(&rows).Error
	return rows, err
}

// CountByUserID counts ledger rows of a user.
func (r *WalletTransactionRepository) CountByUserID(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.WalletTransaction{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}
