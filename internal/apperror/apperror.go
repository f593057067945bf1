// Package apperror defines the typed errors shared by the payment core and its callers.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindValidation Kind = iota + 1
	KindStateConflict
	KindInsufficientFunds
	KindNotFound
	KindUpstream
	KindIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindStateConflict:
		return "state_conflict"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream"
	case KindIntegrity:
		return "integrity"
	}
	return "unknown"
}

// Error is a classified failure. Message is safe to show to end users.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

// WithMessage returns a copy of e with a different user-facing message.
func (e *Error) WithMessage(msg string) *Error {
	cp := *e
	cp.Message = msg
	return &cp
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Upstream wraps a remote collaborator failure.
func Upstream(code string, cause error) *Error {
	return &Error{Kind: KindUpstream, Code: code, Message: "ارتباط با سرویس خارجی ناموفق بود", Err: cause}
}

var (
	ErrInvalidAmount        = New(KindValidation, "INVALID_AMOUNT", "مبلغ نامعتبر است")
	ErrWalletRange          = New(KindValidation, "INVALID_WALLET_RANGE", "مبلغ شارژ خارج از بازه مجاز است")
	ErrServiceNameInvalid   = New(KindValidation, "SERVICE_NAME_INVALID", "نام سرویس نامعتبر است")
	ErrPlanNotAvailable     = New(KindValidation, "PLAN_NOT_AVAILABLE", "پلن انتخابی نامعتبر است")
	ErrGatewayInvalid       = New(KindValidation, "PAYMENT_GATEWAY_INVALID", "روش پرداخت نامعتبر است")
	ErrGatewayDisabled      = New(KindValidation, "PAYMENT_GATEWAY_DISABLED", "این روش پرداخت در حال حاضر غیرفعال است")
	ErrPayloadInvalid       = New(KindValidation, "PAYLOAD_INVALID", "اطلاعات پرداخت ناقص است")
	ErrAuthorityInvalid     = New(KindValidation, "AUTHORITY_INVALID", "شناسه پرداخت نامعتبر است")
	ErrPromoInvalid         = New(KindStateConflict, "PROMO_INVALID", "کد تخفیف معتبر نیست")
	ErrPromoExpired         = New(KindStateConflict, "PROMO_EXPIRED", "کد تخفیف منقضی شده است")
	ErrPromoDisabled        = New(KindValidation, "PROMO_DISABLED", "استفاده از کد تخفیف غیرفعال است")
	ErrPromoDuplicate       = New(KindStateConflict, "PROMO_DUPLICATE", "این کد تخفیف قبلا ثبت شده است")
	ErrFeatureDisabled      = New(KindStateConflict, "FEATURE_DISABLED", "این بخش در حال حاضر غیرفعال است")
	ErrTestDisabled         = New(KindStateConflict, "TEST_DISABLED", "در حال حاضر سرویس تست ارائه نمی‌شود")
	ErrTestAlreadyUsed      = New(KindStateConflict, "TEST_ALREADY_USED", "سرویس تست قبلا برای شما فعال شده است")
	ErrServiceNameDuplicate = New(KindStateConflict, "SERVICE_NAME_DUPLICATE", "سرویسی با این نام قبلا ثبت شده است")
	ErrPaymentInProgress    = New(KindStateConflict, "PAYMENT_PROCESSING", "پرداخت در حال پردازش است")
	ErrInvalidPaymentState  = New(KindStateConflict, "PAYMENT_STATUS_INVALID", "این پرداخت قابل تکمیل نیست")
	ErrPaidAfterClose       = New(KindStateConflict, "PAYMENT_PAID_AFTER_CLOSE", "وجه پس از بسته شدن سفارش دریافت شد")
	ErrPlanInUse            = New(KindStateConflict, "PLAN_IN_USE", "این پلن در حال استفاده است و قابل حذف نیست")
	ErrUserBanned           = New(KindStateConflict, "USER_BANNED", "دسترسی شما مسدود شده است")
	ErrInsufficientFunds    = New(KindInsufficientFunds, "INSUFFICIENT_WALLET", "موجودی کیف پول کافی نیست")
	ErrPaymentNotFound      = New(KindNotFound, "PAYMENT_NOT_FOUND", "پرداخت پیدا نشد")
	ErrUserNotFound         = New(KindNotFound, "USER_NOT_FOUND", "کاربر پیدا نشد")
	ErrPlanNotFound         = New(KindNotFound, "PLAN_NOT_FOUND", "پلن پیدا نشد")
	ErrServiceNotFound      = New(KindNotFound, "SERVICE_NOT_FOUND", "سرویس پیدا نشد")
	ErrPromoNotFound        = New(KindNotFound, "PROMO_NOT_FOUND", "کد تخفیف پیدا نشد")
	ErrCompensationFailed   = New(KindIntegrity, "COMPENSATION_FAILED", "ناهماهنگی در ایجاد سرویس رخ داد")
)

// GenericMessage is shown when an error carries no user-facing text.
const GenericMessage = "خطایی رخ داد. لطفا دوباره تلاش کنید"

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Code returns the code of the first *Error in err's chain, or "".
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns text safe to show to the end user.
// Upstream and integrity failures never leak their details.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return GenericMessage
}

// HTTPStatus maps an error to the status code used by the admin API.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindStateConflict:
		return http.StatusConflict
	case KindInsufficientFunds:
		return http.StatusPaymentRequired
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstream:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
