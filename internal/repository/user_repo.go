package repository

import (
	"context"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vpnstore/internal/models"
)

// UserRepository handles all user database operations.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *UserRepository) WithTx(tx *gorm.DB) *UserRepository {
	return &UserRepository{db: tx}
}

// FindAll returns users with pagination and optional search.
func (r *UserRepository) FindAll(ctx context.Context, limit, page int, query string) ([]models.User, int64, error) {
	var users []models.User
	var total int64

	db := r.db.WithContext(ctx).Model(&models.User{})
	if query != "" {
		search := "%" + query + "%"
		if tgID, err := strconv.ParseInt(query, 10, 64); err == nil {
			db = db.Where("telegram_id = ? OR username LIKE ?", tgID, search)
		} else {
			db = db.Where("username LIKE ? OR first_name LIKE ?", search, search)
		}
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	db, _, _ = paginate(db, limit, page)
	if err := db.Order("id DESC").Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// FindByID finds a user by primary key.
func (r *UserRepository) FindByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByTelegramID finds a user by Telegram chat ID.
func (r *UserRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindOrCreate returns the user for telegramID, inserting a blank row on first contact.
func (r *UserRepository) FindOrCreate(ctx context.Context, telegramID int64) (*models.User, error) {
	row := models.User{TelegramID: telegramID}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "telegram_id"}}, DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return nil, err
	}
	return r.FindByTelegramID(ctx, telegramID)
}

// Upsert inserts the user or refreshes its profile fields.
func (r *UserRepository) Upsert(ctx context.Context, telegramID int64, username, firstName, lastName string) (*models.User, error) {
	row := models.User{
		TelegramID: telegramID,
		Username:   username,
		FirstName:  firstName,
		LastName:   lastName,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "telegram_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"username", "first_name", "last_name", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return nil, err
	}
	return r.FindByTelegramID(ctx, telegramID)
}

// Update updates user fields.
func (r *UserRepository) Update(ctx context.Context, id uint, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(updates).Error
}

// SetBanned blocks or unblocks a user.
func (r *UserRepository) SetBanned(ctx context.Context, id uint, banned bool) error {
	return r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("is_banned", banned).Error
}

// AddBalance applies delta only if the resulting balance stays non-negative.
// It reports false when the guard rejected the update or the user does not exist.
func (r *UserRepository) AddBalance(ctx context.Context, id uint, delta int64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND wallet_balance + ? >= 0", id, delta).
		Update("wallet_balance", gorm.Expr("wallet_balance + ?", delta))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Balance returns the current wallet balance.
func (r *UserRepository) Balance(ctx context.Context, id uint) (int64, error) {
	var user models.User
	err := r.db.WithContext(ctx).Select("wallet_balance").Where("id = ?", id).First(&user).Error
	return user.WalletBalance, err
}

// Exists checks whether a user with the given ID exists.
func (r *UserRepository) Exists(ctx context.Context, id uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// SetReferrer records who referred the user. The link is written only once.
func (r *UserRepository) SetReferrer(ctx context.Context, id, referrerID uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND referred_by_id IS NULL AND id <> ?", id, referrerID).
		Update("referred_by_id", referrerID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReserveTrial flips used_test_subscription from false to true.
func (r *UserRepository) ReserveTrial(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND used_test_subscription = ?", id, false).
		Update("used_test_subscription", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReleaseTrial undoes ReserveTrial after a failed provisioning.
func (r *UserRepository) ReleaseTrial(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update("used_test_subscription", false).Error
}

// MarkAffiliateRewarded flips affiliate_reward_processed once and stamps the first purchase.
func (r *UserRepository) MarkAffiliateRewarded(ctx context.Context, id uint, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND affiliate_reward_processed = ?", id, false).
		Updates(map[string]interface{}{
			"affiliate_reward_processed": true,
			"first_purchase_at":          at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CountReferrals counts users referred by id.
func (r *UserRepository) CountReferrals(ctx context.Context, id uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("referred_by_id = ?", id).Count(&count).Error
	return count, err
}

// FindBroadcastTargets returns up to limit non-banned users with an ID above
// afterID, in ID order.
func (r *UserRepository) FindBroadcastTargets(ctx context.Context, afterID uint, limit int) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).
		Where("id > ? AND is_banned = ?", afterID, false).
		Order("id ASC").
		Limit(limit).
		Find(&users).Error
	return users, err
}
