package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tunevault/tunevault/pkg/db/pagination"
	"gorm.io/gorm"
)

var (
	ErrNotFound        = errors.New("payment_not_found")
	ErrTrackNotFound   = errors.New("track_not_found")
	ErrTrackNotForSale = errors.New("track_not_for_sale")
	ErrAmountMismatch  = errors.New("amount_mismatch")
	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrPhoneRequired   = errors.New("phone_number_required")
	ErrStatusConflict  = errors.New("settlement_status_conflict")
	ErrGatewayRejected = errors.New("gateway_rejected")
)

// Status is the settlement state of a track purchase. Completed, failed and
// refunded are terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusRefunded
}

// Payment is one track purchase. ExternalReferenceID is the merchant reference
// sent to the gateway and the key every settlement callback carries back.
type Payment struct {
	ID       snowflake.ID `json:"id" gorm:"primaryKey"`
	TrackID  snowflake.ID `json:"track_id" gorm:"not null;index:idx_payments_track_buyer"`
	BuyerID  snowflake.ID `json:"buyer_id" gorm:"not null;index:idx_payments_track_buyer"`
	SellerID snowflake.ID `json:"seller_id" gorm:"not null;index"`

	Amount   int64  `json:"amount" gorm:"not null"`
	Currency string `json:"currency" gorm:"type:text;not null;default:'RWF'"`
	Status   Status `json:"status" gorm:"type:text;not null;default:'pending';index"`

	ExternalReferenceID  string `json:"external_reference_id" gorm:"type:text;not null;uniqueIndex"`
	GatewayTransactionID string `json:"gateway_transaction_id" gorm:"type:text;not null;default:''"`
	PaymentMethod        string `json:"payment_method" gorm:"type:text;not null;default:'mobile_money'"`

	BuyerPhoneNumber  string `json:"buyer_phone_number" gorm:"type:text;not null"`
	SellerPhoneNumber string `json:"seller_phone_number" gorm:"type:text;not null;default:''"`

	FailureReason   string     `json:"failure_reason" gorm:"type:text;not null;default:''"`
	TransactionDate time.Time  `json:"transaction_date" gorm:"not null"`
	CompletedDate   *time.Time `json:"completed_date"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Payment) TableName() string { return "payments" }

type InitiatePurchaseRequest struct {
	BuyerID     snowflake.ID
	TrackID     snowflake.ID
	Amount      int64
	PhoneNumber string
	Email       string
}

type InitiatePurchaseResponse struct {
	PaymentID   snowflake.ID `json:"payment_id"`
	OrderID     string       `json:"order_id"`
	RedirectURL string       `json:"redirect_url"`
	Status      Status       `json:"status"`
}

// SettlementNotice is a normalized gateway callback. Status carries the mapped
// terminal state; RawCode preserves whatever the gateway actually sent.
type SettlementNotice struct {
	Reference            string
	Status               Status
	GatewayTransactionID string
	RawCode              string
}

type StatusResponse struct {
	OrderID       string     `json:"order_id"`
	Status        Status     `json:"status"`
	Amount        int64      `json:"amount"`
	Currency      string     `json:"currency"`
	DownloadLink  string     `json:"download_link,omitempty"`
	CompletedDate *time.Time `json:"completed_date,omitempty"`
}

type ListRequest struct {
	BuyerID   snowflake.ID
	Status    Status
	PageToken string
	PageSize  int
}

type ListResponse struct {
	pagination.PageInfo
	Records []Payment `json:"records"`
}

type SellerEarnings struct {
	TotalEarnings  int64     `json:"total_earnings"`
	TotalSales     int64     `json:"total_sales"`
	RecentPayments []Payment `json:"recent_payments"`
}

type Service interface {
	InitiatePurchase(ctx context.Context, req InitiatePurchaseRequest) (InitiatePurchaseResponse, error)
	HandleSettlement(ctx context.Context, notice SettlementNotice) (Payment, error)
	GetPaymentStatus(ctx context.Context, reference string, buyerID snowflake.ID) (StatusResponse, error)
	ListPurchases(ctx context.Context, req ListRequest) (ListResponse, error)
	SellerEarnings(ctx context.Context, sellerID snowflake.ID) (SellerEarnings, error)
}

// EarningsSource is the slice of the payment ledger the withdrawal balance
// reads. Callers pass their own transaction handle so the sum and the
// subsequent write share one snapshot.
type EarningsSource interface {
	CompletedTotal(ctx context.Context, db *gorm.DB, sellerID snowflake.ID) (int64, error)
}

type Repository interface {
	EarningsSource

	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByReference(ctx context.Context, db *gorm.DB, reference string) (*Payment, error)
	FindByReferenceAndBuyer(ctx context.Context, db *gorm.DB, reference string, buyerID snowflake.ID) (*Payment, error)

	// MarkSubmitted stores the gateway tracking id issued at order submission.
	MarkSubmitted(ctx context.Context, db *gorm.DB, id snowflake.ID, gatewayTxnID string, now time.Time) error
	// MarkFailed force-fails a payment regardless of its current status. Used
	// when the gateway rejects the order before any settlement can arrive.
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, now time.Time) error

	// Transition moves a pending payment to a terminal status. Returns false
	// when the payment was no longer pending at execution time.
	Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, to Status, gatewayTxnID, failureReason string, now time.Time) (bool, error)

	ListByBuyer(ctx context.Context, db *gorm.DB, req ListRequest) ([]*Payment, error)
	CompletedCount(ctx context.Context, db *gorm.DB, sellerID snowflake.ID) (int64, error)
	RecentCompleted(ctx context.Context, db *gorm.DB, sellerID snowflake.ID, limit int) ([]Payment, error)
}
