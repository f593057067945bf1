package bootstrap

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vpnstore/internal/models"
)

// MigrateAndSeed ensures required tables exist and inserts baseline rows for singleton tables.
func MigrateAndSeed(db *gorm.DB, manualCardNumber, supportHandle string) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}
	if err := seedDefaults(db, manualCardNumber, supportHandle); err != nil {
		return fmt.Errorf("seed defaults failed: %w", err)
	}
	return nil
}

func AllModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Plan{},
		&models.Service{},
		&models.Payment{},
		&models.PromoCode{},
		&models.PromoUsage{},
		&models.WalletTransaction{},
		&models.Setting{},
	}
}

func seedDefaults(db *gorm.DB, manualCardNumber, supportHandle string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		row := models.DefaultSetting()
		row.ManualCardNumber = manualCardNumber
		row.SupportHandle = supportHandle
		// An existing row keeps whatever the admin configured.
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	})
}
