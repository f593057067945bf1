package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"vpnstore/internal/models"
)

// PaymentRepository handles payment database operations.
// Status changes go exclusively through conditional updates.
type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *PaymentRepository) WithTx(tx *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: tx}
}

// PaymentFilter narrows FindAll.
type PaymentFilter struct {
	Status models.PaymentStatus
	Type   models.PaymentType
	UserID uint
}

// FindAll returns payments with pagination and filters.
func (r *PaymentRepository) FindAll(ctx context.Context, limit, page int, f PaymentFilter) ([]models.Payment, int64, error) {
	var payments []models.Payment
	var total int64

	db := r.db.WithContext(ctx).Model(&models.Payment{})
	if f.Status != "" {
		db = db.Where("status = ?", string(f.Status))
	}
	if f.Type != "" {
		db = db.Where("type = ?", string(f.Type))
	}
	if f.UserID != 0 {
		db = db.Where("user_id = ?", f.UserID)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	db, _, _ = paginate(db, limit, page)
	if err := db.Order("id DESC").Find(&payments).Error; err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

// FindByID returns a payment by ID.
func (r *PaymentRepository) FindByID(ctx context.Context, id uint) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindByIDWithUser returns a payment with its owner preloaded.
func (r *PaymentRepository) FindByIDWithUser(ctx context.Context, id uint) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Preload("User").Where("id = ?", id).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindByAuthority returns a payment by hosted gateway correlation token.
func (r *PaymentRepository) FindByAuthority(ctx context.Context, authority string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Preload("User").Where("authority = ?", authority).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindLatestManual returns the newest manual payment of the user still accepting a receipt.
func (r *PaymentRepository) FindLatestManual(ctx context.Context, userID uint) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND gateway = ? AND status IN ?", userID, string(models.GatewayManual),
			statusStrings([]models.PaymentStatus{models.StatusPending, models.StatusWaitingReview})).
		Order("id DESC").
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindStale returns payments of the given gateways still in one of statuses and created
// before cutoff, in id order starting after afterID.
func (r *PaymentRepository) FindStale(ctx context.Context, statuses []models.PaymentStatus, gateways []models.PaymentGateway, cutoff time.Time, afterID uint, limit int) ([]models.Payment, error) {
	gws := make([]string, len(gateways))
	for i, g := range gateways {
		gws[i] = string(g)
	}
	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Where("id > ? AND status IN ? AND gateway IN ? AND created_at < ?", afterID, statusStrings(statuses), gws, cutoff).
		Order("id ASC").
		Limit(limit).
		Find(&payments).Error
	return payments, err
}

// Create inserts a new payment.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

// TransitionStatus moves the payment to `to` only if its current status is in `from`.
// It reports whether this call performed the transition.
func (r *PaymentRepository) TransitionStatus(ctx context.Context, id uint, from []models.PaymentStatus, to models.PaymentStatus, extra map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": string(to)}
	for k, v := range extra {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status IN ?", id, statusStrings(from)).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SetAuthority stores the gateway token unless one was already stored.
func (r *PaymentRepository) SetAuthority(ctx context.Context, id uint, authority string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND authority IS NULL AND status = ?", id, string(models.StatusPending)).
		Update("authority", authority)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// AttachReceipt stores the receipt reference and moves the payment to WAITING_REVIEW.
func (r *PaymentRepository) AttachReceipt(ctx context.Context, id uint, fileID string) (bool, error) {
	return r.TransitionStatus(ctx, id,
		[]models.PaymentStatus{models.StatusPending, models.StatusWaitingReview},
		models.StatusWaitingReview,
		map[string]interface{}{"manual_receipt_file_id": fileID})
}

// SetReviewer records the admin who reviewed a manual payment.
func (r *PaymentRepository) SetReviewer(ctx context.Context, id uint, adminID int64) error {
	return r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ?", id).
		Update("reviewed_by_admin_id", adminID).Error
}

// CountByPlan counts payments referencing a plan.
func (r *PaymentRepository) CountByPlan(ctx context.Context, planID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Payment{}).Where("plan_id = ?", planID).Count(&count).Error
	return count, err
}

// SumSucceeded returns the total of successful payments completed since the
// given time. A zero since covers all time; types narrows the payment types.
func (r *PaymentRepository) SumSucceeded(ctx context.Context, since time.Time, types ...models.PaymentType) (int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("status = ?", string(models.StatusSuccess))
	if !since.IsZero() {
		q = q.Where("completed_at >= ?", since)
	}
	if len(types) > 0 {
		names := make([]string, len(types))
		for i, t := range types {
			names[i] = string(t)
		}
		q = q.Where("type IN ?", names)
	}
	var sum int64
	err := q.Select("COALESCE(SUM(amount_tomans), 0)").Scan(&sum).Error
	return sum, err
}

// CountByStatus counts payments in the given status.
func (r *PaymentRepository) CountByStatus(ctx context.Context, status models.PaymentStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Payment{}).Where("status = ?", string(status)).Count(&count).Error
	return count, err
}

// FlagPaidAfterClose marks a closed payment that the gateway later confirmed as paid.
// It reports whether this call set the flag, so the follow-up is raised once.
func (r *PaymentRepository) FlagPaidAfterClose(ctx context.Context, id uint, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status IN ? AND paid_after_close_at IS NULL",
			id, statusStrings([]models.PaymentStatus{models.StatusFailed, models.StatusCanceled})).
		Update("paid_after_close_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CancelUnattended cancels an open manual payment that never received a receipt.
func (r *PaymentRepository) CancelUnattended(ctx context.Context, id uint, note string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status IN ? AND (manual_receipt_file_id IS NULL OR manual_receipt_file_id = '')",
			id, statusStrings([]models.PaymentStatus{models.StatusPending, models.StatusWaitingReview})).
		Updates(map[string]interface{}{"status": string(models.StatusCanceled), "review_note": note})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
