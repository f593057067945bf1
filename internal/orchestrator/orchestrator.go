// Package orchestrator drives payments from creation to fulfillment.
//
// Payment status only changes through conditional updates (see
// repository.PaymentRepository.TransitionStatus). Whoever wins the
// PENDING/WAITING_REVIEW -> PROCESSING transition owns fulfillment, which makes
// ProcessSuccessfulPayment safe to call from webhooks, admin buttons and the
// wallet flow at the same time.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"vpnstore/internal/apperror"
	"vpnstore/internal/metrics"
	"vpnstore/internal/models"
	"vpnstore/internal/panel"
	"vpnstore/internal/payment"
	"vpnstore/internal/pkg/utils"
	"vpnstore/internal/promo"
	"vpnstore/internal/repository"
	"vpnstore/internal/wallet"
)

// Config holds the orchestrator limits and the public URL used for callbacks.
type Config struct {
	AppURL          string
	MinWalletCharge int64
	MaxWalletCharge int64
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	DB      *gorm.DB
	Ledger  *wallet.Ledger
	Promos  *promo.Resolver
	Panel   panel.PanelClient
	Gateway payment.Gateway
	Config  Config
	Logger  *zap.Logger
}

type Orchestrator struct {
	db       *gorm.DB
	users    *repository.UserRepository
	payments *repository.PaymentRepository
	services *repository.ServiceRepository
	plans    *repository.PlanRepository
	settings *repository.SettingRepository
	ledger   *wallet.Ledger
	promos   *promo.Resolver
	panel    panel.PanelClient
	gateway  payment.Gateway
	cfg      Config
	log      *zap.Logger
	now      func() time.Time
	adapters map[models.PaymentGateway]gatewayAdapter
}

func New(d Deps) *Orchestrator {
	o := &Orchestrator{
		db:       d.DB,
		users:    repository.NewUserRepository(d.DB),
		payments: repository.NewPaymentRepository(d.DB),
		services: repository.NewServiceRepository(d.DB),
		plans:    repository.NewPlanRepository(d.DB),
		settings: repository.NewSettingRepository(d.DB),
		ledger:   d.Ledger,
		promos:   d.Promos,
		panel:    d.Panel,
		gateway:  d.Gateway,
		cfg:      d.Config,
		log:      d.Logger,
		now:      time.Now,
	}
	o.adapters = map[models.PaymentGateway]gatewayAdapter{
		models.GatewayWallet: walletAdapter{o: o},
		models.GatewayHosted: hostedAdapter{},
		models.GatewayManual: manualAdapter{},
	}
	return o
}

// SetClock replaces the time source.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// Fulfillment is what a completed payment delivered.
type Fulfillment struct {
	Payment *models.Payment
	// Service is the created or renewed service for PURCHASE and RENEWAL.
	Service *models.Service
	// NewBalance is the wallet balance after a WALLET_CHARGE.
	NewBalance int64
	// Duplicate is set when the payment had already been completed by an earlier call.
	Duplicate bool
}

// Intent is a freshly created payment. Fulfillment is set when the payment
// completed during creation (wallet payments and zero-amount payments).
type Intent struct {
	Payment     *models.Payment
	Fulfillment *Fulfillment
}

// PurchaseInput describes a new service purchase.
type PurchaseInput struct {
	TelegramID  int64
	PlanID      uint
	ServiceName string
	Gateway     models.PaymentGateway
	PromoCode   string
}

// RenewInput describes the renewal of an existing service.
type RenewInput struct {
	TelegramID int64
	ServiceID  uint
	Gateway    models.PaymentGateway
	PromoCode  string
}

// CreateWalletChargePayment opens a payment that tops up the wallet.
// Charges cannot be paid from the wallet itself.
func (o *Orchestrator) CreateWalletChargePayment(ctx context.Context, telegramID int64, amountTomans int64, gateway models.PaymentGateway) (*Intent, error) {
	if amountTomans <= 0 {
		return nil, apperror.ErrInvalidAmount
	}
	if amountTomans < o.cfg.MinWalletCharge || amountTomans > o.cfg.MaxWalletCharge {
		return nil, apperror.ErrWalletRange.WithMessage(fmt.Sprintf("مبلغ شارژ باید بین %s و %s تومان باشد",
			utils.FormatNumber(o.cfg.MinWalletCharge), utils.FormatNumber(o.cfg.MaxWalletCharge)))
	}
	if gateway == models.GatewayWallet {
		return nil, apperror.ErrGatewayInvalid
	}

	setting, err := o.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if err := checkGateway(setting, gateway); err != nil {
		return nil, err
	}
	user, err := o.user(ctx, telegramID)
	if err != nil {
		return nil, err
	}

	return o.open(ctx, draft{
		user:        user,
		kind:        models.PaymentTypeWalletCharge,
		gateway:     gateway,
		amount:      amountTomans,
		details:     models.ChargeDetails{},
		description: "شارژ کیف پول",
		hashPrefix:  "wallet",
	})
}

// CreatePurchasePayment opens a payment for a new service on a plan.
func (o *Orchestrator) CreatePurchasePayment(ctx context.Context, in PurchaseInput) (*Intent, error) {
	setting, err := o.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if !setting.EnableNewPurchases {
		return nil, apperror.ErrFeatureDisabled.WithMessage("فروش سرویس جدید موقتا غیرفعال است")
	}
	if err := checkGateway(setting, in.Gateway); err != nil {
		return nil, err
	}
	if err := checkPromo(setting, in.PromoCode); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.ServiceName)
	if !utils.ValidServiceName(name) {
		return nil, apperror.ErrServiceNameInvalid
	}

	user, err := o.user(ctx, in.TelegramID)
	if err != nil {
		return nil, err
	}

	plan, err := o.plans.FindByID(ctx, in.PlanID)
	if repository.IsNotFound(err) || (err == nil && !plan.IsActive) {
		return nil, apperror.ErrPlanNotAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("find plan: %w", err)
	}

	exists, err := o.services.NameExists(ctx, user.ID, name)
	if err != nil {
		return nil, fmt.Errorf("check service name: %w", err)
	}
	if exists {
		return nil, apperror.ErrServiceNameDuplicate
	}

	discount, err := o.promos.ComputeDiscount(ctx, plan.PriceTomans, in.PromoCode)
	if err != nil {
		return nil, err
	}
	if in.Gateway == models.GatewayWallet && user.WalletBalance < discount.FinalAmount {
		return nil, apperror.ErrInsufficientFunds
	}

	planID := plan.ID
	return o.open(ctx, draft{
		user:        user,
		kind:        models.PaymentTypePurchase,
		gateway:     in.Gateway,
		amount:      discount.FinalAmount,
		planID:      &planID,
		promoID:     discount.PromoCodeID,
		details:     models.PurchaseDetails{ServiceName: name},
		description: "خرید پلن " + plan.Name,
		hashPrefix:  "purchase",
	})
}

// CreateRenewPayment opens a payment that extends one of the user's services
// by the duration of its plan.
func (o *Orchestrator) CreateRenewPayment(ctx context.Context, in RenewInput) (*Intent, error) {
	setting, err := o.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if !setting.EnableRenewals {
		return nil, apperror.ErrFeatureDisabled.WithMessage("تمدید سرویس موقتا غیرفعال است")
	}
	if err := checkGateway(setting, in.Gateway); err != nil {
		return nil, err
	}
	if err := checkPromo(setting, in.PromoCode); err != nil {
		return nil, err
	}

	user, err := o.user(ctx, in.TelegramID)
	if err != nil {
		return nil, err
	}

	service, err := o.services.FindByIDForUser(ctx, in.ServiceID, user.ID)
	if repository.IsNotFound(err) || (err == nil && service.Plan == nil) {
		return nil, apperror.ErrServiceNotFound.WithMessage("سرویس برای تمدید پیدا نشد")
	}
	if err != nil {
		return nil, fmt.Errorf("find service: %w", err)
	}

	discount, err := o.promos.ComputeDiscount(ctx, service.Plan.PriceTomans, in.PromoCode)
	if err != nil {
		return nil, err
	}
	if in.Gateway == models.GatewayWallet && user.WalletBalance < discount.FinalAmount {
		return nil, apperror.ErrInsufficientFunds
	}

	planID, serviceID := service.Plan.ID, service.ID
	return o.open(ctx, draft{
		user:            user,
		kind:            models.PaymentTypeRenewal,
		gateway:         in.Gateway,
		amount:          discount.FinalAmount,
		planID:          &planID,
		targetServiceID: &serviceID,
		promoID:         discount.PromoCodeID,
		details:         models.RenewalDetails{ServiceName: service.Name},
		description:     "تمدید سرویس " + service.Name,
		hashPrefix:      "renew",
	})
}

type draft struct {
	user            *models.User
	kind            models.PaymentType
	gateway         models.PaymentGateway
	amount          int64
	planID          *uint
	targetServiceID *uint
	promoID         *uint
	details         models.PaymentDetails
	description     string
	hashPrefix      string
}

// open persists the payment and hands it to the gateway adapter.
// A zero amount (a 100% promo) skips the gateway and completes at once.
func (o *Orchestrator) open(ctx context.Context, d draft) (*Intent, error) {
	adapter, ok := o.adapters[d.gateway]
	if !ok {
		return nil, apperror.ErrGatewayInvalid
	}

	status := adapter.initialStatus()
	if d.amount == 0 {
		status = models.StatusPending
	}
	p := &models.Payment{
		UserID:          d.user.ID,
		Type:            d.kind,
		Gateway:         d.gateway,
		Status:          status,
		AmountTomans:    d.amount,
		AmountRials:     d.amount * 10,
		HashID:          utils.GenerateHashID(d.hashPrefix, d.user.TelegramID, o.now()),
		PlanID:          d.planID,
		TargetServiceID: d.targetServiceID,
		PromoCodeID:     d.promoID,
		Details:         models.NewDetails(d.details),
		Description:     d.description,
	}
	if err := o.payments.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	metrics.IncPaymentCreated(string(p.Type), string(p.Gateway))
	o.log.Info("Payment created",
		zap.Uint("payment_id", p.ID),
		zap.Int64("telegram_id", d.user.TelegramID),
		zap.String("type", string(p.Type)),
		zap.String("gateway", string(p.Gateway)),
		zap.Int64("amount", p.AmountTomans),
	)
	p.User = d.user

	var (
		f   *Fulfillment
		err error
	)
	if d.amount == 0 {
		f, err = o.ProcessSuccessfulPayment(ctx, p.ID)
	} else {
		f, err = adapter.afterCreate(ctx, p)
	}
	if err != nil {
		return nil, err
	}
	if f != nil {
		p = f.Payment
	}
	return &Intent{Payment: p, Fulfillment: f}, nil
}

// user loads or registers the Telegram user and refuses banned ones.
func (o *Orchestrator) user(ctx context.Context, telegramID int64) (*models.User, error) {
	user, err := o.users.FindOrCreate(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if user.IsBanned {
		return nil, apperror.ErrUserBanned
	}
	return user, nil
}

// owned loads a payment and checks it belongs to the Telegram user.
func (o *Orchestrator) owned(ctx context.Context, paymentID uint, telegramID int64) (*models.Payment, error) {
	p, err := o.payments.FindByIDWithUser(ctx, paymentID)
	if repository.IsNotFound(err) || (err == nil && (p.User == nil || p.User.TelegramID != telegramID)) {
		return nil, apperror.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find payment: %w", err)
	}
	return p, nil
}

func checkGateway(s *models.Setting, g models.PaymentGateway) error {
	if !g.Valid() {
		return apperror.ErrGatewayInvalid
	}
	switch g {
	case models.GatewayHosted:
		if !s.EnableHostedPayment {
			return apperror.ErrGatewayDisabled
		}
	case models.GatewayManual:
		if !s.EnableManualPayment {
			return apperror.ErrGatewayDisabled
		}
	}
	return nil
}

func checkPromo(s *models.Setting, code string) error {
	if promo.Normalize(code) != "" && !s.EnablePromos {
		return apperror.ErrPromoDisabled
	}
	return nil
}
