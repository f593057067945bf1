// Package testutil holds shared fixtures for package tests.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vpnstore/internal/bootstrap"
	"vpnstore/internal/models"
)

// NewDB opens a migrated SQLite database private to the test.
// A single connection makes every transaction serialize, like row locks would.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=foreign_keys(0)", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, bootstrap.MigrateAndSeed(db, "6037-0000-0000-0000", "@support"))
	return db
}

// CreateUser inserts a user with the given wallet balance.
func CreateUser(t *testing.T, db *gorm.DB, telegramID, balance int64) *models.User {
	t.Helper()
	u := &models.User{TelegramID: telegramID, WalletBalance: balance}
	require.NoError(t, db.Create(u).Error)
	return u
}

// CreatePlan inserts an active plan.
func CreatePlan(t *testing.T, db *gorm.DB, name string, trafficGB, days int, price int64) *models.Plan {
	t.Helper()
	p := &models.Plan{Name: name, TrafficGB: trafficGB, DurationDays: days, PriceTomans: price, IsActive: true}
	require.NoError(t, db.Create(p).Error)
	return p
}

// CreatePromo inserts an active promo code.
func CreatePromo(t *testing.T, db *gorm.DB, code string, percent int, fixed int64, uses int) *models.PromoCode {
	t.Helper()
	p := &models.PromoCode{Code: code, DiscountPercent: percent, FixedTomans: fixed, UsesLeft: uses, IsActive: true}
	require.NoError(t, db.Create(p).Error)
	return p
}

// UpdateSettings overwrites settings columns.
func UpdateSettings(t *testing.T, db *gorm.DB, updates map[string]interface{}) {
	t.Helper()
	require.NoError(t, db.Model(&models.Setting{}).Where("id = ?", models.SettingID).Updates(updates).Error)
}

// ReloadPayment reads a payment fresh from the database.
func ReloadPayment(t *testing.T, db *gorm.DB, id uint) *models.Payment {
	t.Helper()
	var p models.Payment
	require.NoError(t, db.WithContext(context.Background()).First(&p, id).Error)
	return &p
}

// ReloadUser reads a user fresh from the database.
func ReloadUser(t *testing.T, db *gorm.DB, id uint) *models.User {
	t.Helper()
	var u models.User
	require.NoError(t, db.First(&u, id).Error)
	return &u
}

// FixedClock returns a clock function pinned to ts.
func FixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}
