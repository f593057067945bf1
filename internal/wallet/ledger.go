// Package wallet keeps user balances and their append-only transaction log.
package wallet

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"vpnstore/internal/apperror"
	"vpnstore/internal/metrics"
	"vpnstore/internal/models"
	"vpnstore/internal/repository"
)

// Entry describes one balance change. Amount is always positive; the
// direction comes from the method used.
type Entry struct {
	UserID      uint
	Amount      int64
	Type        models.WalletTransactionType
	Description string
	PaymentID   *uint
}

// Ledger applies balance changes. Every change updates the balance and
// appends exactly one ledger row inside the same transaction.
type Ledger struct {
	db    *gorm.DB
	users *repository.UserRepository
	txs   *repository.WalletTransactionRepository
	log   *zap.Logger
}

func NewLedger(db *gorm.DB, log *zap.Logger) *Ledger {
	return &Ledger{
		db:    db,
		users: repository.NewUserRepository(db),
		txs:   repository.NewWalletTransactionRepository(db),
		log:   log,
	}
}

// Credit adds e.Amount to the balance and returns the new balance.
func (l *Ledger) Credit(ctx context.Context, e Entry) (int64, error) {
	return l.run(ctx, e, 1)
}

// Debit subtracts e.Amount from the balance and returns the new balance.
// It fails with apperror.ErrInsufficientFunds instead of going negative.
func (l *Ledger) Debit(ctx context.Context, e Entry) (int64, error) {
	return l.run(ctx, e, -1)
}

// CreditTx is Credit for callers that already hold a transaction.
func (l *Ledger) CreditTx(ctx context.Context, tx *gorm.DB, e Entry) (int64, error) {
	if e.Amount <= 0 {
		return 0, apperror.ErrInvalidAmount
	}
	return l.apply(ctx, tx, e, e.Amount)
}

// DebitTx is Debit for callers that already hold a transaction.
func (l *Ledger) DebitTx(ctx context.Context, tx *gorm.DB, e Entry) (int64, error) {
	if e.Amount <= 0 {
		return 0, apperror.ErrInvalidAmount
	}
	return l.apply(ctx, tx, e, -e.Amount)
}

// Adjust applies an admin correction; positive amounts credit, negative debit.
func (l *Ledger) Adjust(ctx context.Context, userID uint, amount int64, description string) (int64, error) {
	e := Entry{UserID: userID, Type: models.WalletTxAdminAdjust, Description: description}
	if amount < 0 {
		e.Amount = -amount
		return l.Debit(ctx, e)
	}
	e.Amount = amount
	return l.Credit(ctx, e)
}

// Balance returns the current balance.
func (l *Ledger) Balance(ctx context.Context, userID uint) (int64, error) {
	balance, err := l.users.Balance(ctx, userID)
	if repository.IsNotFound(err) {
		return 0, apperror.ErrUserNotFound
	}
	return balance, err
}

// History returns the latest ledger rows of a user.
func (l *Ledger) History(ctx context.Context, userID uint, limit int) ([]models.WalletTransaction, error) {
	return l.txs.FindByUserID(ctx, userID, limit)
}

func (l *Ledger) run(ctx context.Context, e Entry, sign int64) (int64, error) {
	if e.Amount <= 0 {
		return 0, apperror.ErrInvalidAmount
	}
	var balance int64
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		balance, err = l.apply(ctx, tx, e, sign*e.Amount)
		return err
	})
	if err != nil {
		return 0, err
	}
	l.log.Info("Wallet updated",
		zap.Uint("user_id", e.UserID),
		zap.Int64("delta", sign*e.Amount),
		zap.Int64("balance", balance),
		zap.String("type", string(e.Type)),
	)
	return balance, nil
}

// apply performs the guarded balance update, reads the result back and
// appends the ledger row. The guard makes the database reject negative
// balances, so concurrent debits cannot overdraw.
func (l *Ledger) apply(ctx context.Context, tx *gorm.DB, e Entry, delta int64) (int64, error) {
	users := l.users.WithTx(tx)

	ok, err := users.AddBalance(ctx, e.UserID, delta)
	if err != nil {
		return 0, fmt.Errorf("update balance: %w", err)
	}
	if !ok {
		exists, err := users.Exists(ctx, e.UserID)
		if err != nil {
			return 0, fmt.Errorf("check user: %w", err)
		}
		if !exists {
			return 0, apperror.ErrUserNotFound
		}
		return 0, apperror.ErrInsufficientFunds
	}

	balance, err := users.Balance(ctx, e.UserID)
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}

	row := &models.WalletTransaction{
		UserID:       e.UserID,
		PaymentID:    e.PaymentID,
		Amount:       delta,
		BalanceAfter: balance,
		Type:         e.Type,
		Description:  e.Description,
	}
	if err := l.txs.WithTx(tx).Append(ctx, row); err != nil {
		return 0, fmt.Errorf("append ledger row: %w", err)
	}
	metrics.IncWalletMovement(string(e.Type))
	return balance, nil
}
