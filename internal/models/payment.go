package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type PaymentType string

const (
	PaymentTypePurchase     PaymentType = "PURCHASE"
	PaymentTypeRenewal      PaymentType = "RENEWAL"
	PaymentTypeWalletCharge PaymentType = "WALLET_CHARGE"
)

type PaymentGateway string

const (
	GatewayWallet PaymentGateway = "WALLET"
	GatewayHosted PaymentGateway = "HOSTED"
	GatewayManual PaymentGateway = "MANUAL"
)

// Valid reports whether g is a known gateway.
func (g PaymentGateway) Valid() bool {
	switch g {
	case GatewayWallet, GatewayHosted, GatewayManual:
		return true
	}
	return false
}

type PaymentStatus string

const (
	StatusPending       PaymentStatus = "PENDING"
	StatusWaitingReview PaymentStatus = "WAITING_REVIEW"
	StatusProcessing    PaymentStatus = "PROCESSING"
	StatusSuccess       PaymentStatus = "SUCCESS"
	StatusFailed        PaymentStatus = "FAILED"
	StatusCanceled      PaymentStatus = "CANCELED"
)

// Terminal reports whether no further transition may leave s.
func (s PaymentStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCanceled
}

// Payment maps to the `payments` table.
// After creation the status column is only changed through conditional updates.
type Payment struct {
	ID                  uint           `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID              uint           `gorm:"column:user_id;not null;index" json:"user_id"`
	Type                PaymentType    `gorm:"column:type;size:32;not null" json:"type"`
	Gateway             PaymentGateway `gorm:"column:gateway;size:32;not null" json:"gateway"`
	Status              PaymentStatus  `gorm:"column:status;size:32;not null;index" json:"status"`
	AmountTomans        int64          `gorm:"column:amount_tomans;not null" json:"amount_tomans"`
	AmountRials         int64          `gorm:"column:amount_rials;not null" json:"amount_rials"`
	HashID              string         `gorm:"column:hash_id;size:128;uniqueIndex;not null" json:"hash_id"`
	PlanID              *uint          `gorm:"column:plan_id;index" json:"plan_id"`
	TargetServiceID     *uint          `gorm:"column:target_service_id;index" json:"target_service_id"`
	PromoCodeID         *uint          `gorm:"column:promo_code_id;index" json:"promo_code_id"`
	Details             DetailsColumn  `gorm:"column:details;type:text" json:"details"`
	Authority           *string        `gorm:"column:authority;size:64;uniqueIndex" json:"authority"`
	ManualReceiptFileID string         `gorm:"column:manual_receipt_file_id;size:255" json:"manual_receipt_file_id"`
	ReviewedByAdminID   *int64         `gorm:"column:reviewed_by_admin_id" json:"reviewed_by_admin_id"`
	ReviewNote          string         `gorm:"column:review_note;type:text" json:"review_note"`
	Description         string         `gorm:"column:description;size:500" json:"description"`
	CompletedAt         *time.Time     `gorm:"column:completed_at" json:"completed_at"`
	PaidAfterCloseAt    *time.Time     `gorm:"column:paid_after_close_at" json:"paid_after_close_at"`
	CreatedAt           time.Time      `gorm:"column:created_at;index" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"column:updated_at" json:"updated_at"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (Payment) TableName() string {
	return "payments"
}

// PaymentDetails carries the type-specific fulfillment parameters of a payment.
type PaymentDetails interface {
	PaymentType() PaymentType
}

type PurchaseDetails struct {
	ServiceName string `json:"service_name"`
}

func (PurchaseDetails) PaymentType() PaymentType { return PaymentTypePurchase }

type RenewalDetails struct {
	ServiceName string `json:"service_name"`
}

func (RenewalDetails) PaymentType() PaymentType { return PaymentTypeRenewal }

type ChargeDetails struct{}

func (ChargeDetails) PaymentType() PaymentType { return PaymentTypeWalletCharge }

// DetailsColumn stores PaymentDetails as a tagged JSON document.
type DetailsColumn struct {
	PaymentDetails
}

func NewDetails(d PaymentDetails) DetailsColumn {
	return DetailsColumn{PaymentDetails: d}
}

type detailsEnvelope struct {
	Kind PaymentType     `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Purchase returns the purchase details, if any.
func (c DetailsColumn) Purchase() (PurchaseDetails, bool) {
	d, ok := c.PaymentDetails.(PurchaseDetails)
	return d, ok
}

// Renewal returns the renewal details, if any.
func (c DetailsColumn) Renewal() (RenewalDetails, bool) {
	d, ok := c.PaymentDetails.(RenewalDetails)
	return d, ok
}

func (c DetailsColumn) MarshalJSON() ([]byte, error) {
	if c.PaymentDetails == nil {
		return []byte("null"), nil
	}
	data, err := json.Marshal(c.PaymentDetails)
	if err != nil {
		return nil, err
	}
	return json.Marshal(detailsEnvelope{Kind: c.PaymentType(), Data: data})
}

func (c *DetailsColumn) UnmarshalJSON(b []byte) error {
	if string(b) == "null" || len(b) == 0 {
		c.PaymentDetails = nil
		return nil
	}
	var env detailsEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	switch env.Kind {
	case PaymentTypePurchase:
		var d PurchaseDetails
		if err := unmarshalData(env.Data, &d); err != nil {
			return err
		}
		c.PaymentDetails = d
	case PaymentTypeRenewal:
		var d RenewalDetails
		if err := unmarshalData(env.Data, &d); err != nil {
			return err
		}
		c.PaymentDetails = d
	case PaymentTypeWalletCharge:
		c.PaymentDetails = ChargeDetails{}
	default:
		return fmt.Errorf("unknown payment details kind %q", env.Kind)
	}
	return nil
}

func unmarshalData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// Value implements driver.Valuer.
func (c DetailsColumn) Value() (driver.Value, error) {
	if c.PaymentDetails == nil {
		return nil, nil
	}
	b, err := c.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (c *DetailsColumn) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		c.PaymentDetails = nil
		return nil
	case []byte:
		return c.UnmarshalJSON(v)
	case string:
		return c.UnmarshalJSON([]byte(v))
	default:
		return errors.New("unsupported payment details column type")
	}
}
