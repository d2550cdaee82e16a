package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/tunevault/tunevault/internal/payment/domain"
	"github.com/tunevault/tunevault/pkg/db/pagination"
	"gorm.io/gorm"
)

var (
	ErrNotFound          = errors.New("withdrawal_not_found")
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrMobileRequired    = errors.New("mobile_number_required")
	ErrBelowMinimum      = errors.New("below_minimum_withdrawal")
	ErrReasonRequired    = errors.New("reject_reason_required")
	ErrInvalidTransition = errors.New("invalid_transition")

	// ErrBalanceBusy means another request holds the artist's balance lock;
	// the caller can retry once that check finishes.
	ErrBalanceBusy = errors.New("balance_check_in_progress")
)

// InsufficientBalanceError reports a withdrawal request beyond the artist's
// available balance, carrying the figures the caller shows back.
type InsufficientBalanceError struct {
	AvailableBalance int64
	TotalEarnings    int64
	TotalWithdrawn   int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %d of %d earned (%d withdrawn)",
		e.AvailableBalance, e.TotalEarnings, e.TotalWithdrawn)
}

// Status is the withdrawal request state. Cancelled stays in the enum for API
// compatibility; no transition produces it.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusPaid},
}

// CanTransition reports whether from → to is a legal withdrawal transition.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Withdrawal is an artist's request to pay out track-sale earnings. A request
// reserves its amount from the moment it is created; rejection releases it.
type Withdrawal struct {
	ID       snowflake.ID `json:"id" gorm:"primaryKey"`
	ArtistID snowflake.ID `json:"artist_id" gorm:"not null;index:idx_withdrawals_artist_status"`
	Amount   int64        `json:"amount" gorm:"not null"`
	Currency string       `json:"currency" gorm:"type:text;not null;default:'RWF'"`

	MobileNumber string `json:"mobile_number" gorm:"type:text;not null"`
	Status       Status `json:"status" gorm:"type:text;not null;default:'pending';index:idx_withdrawals_artist_status"`

	RequestDate  time.Time  `json:"request_date" gorm:"not null;index"`
	ApprovalDate *time.Time `json:"approval_date"`
	PaymentDate  *time.Time `json:"payment_date"`

	ApprovedBy           *snowflake.ID `json:"approved_by"`
	RejectReason         string        `json:"reject_reason" gorm:"type:text;not null;default:''"`
	TransactionReference string        `json:"transaction_reference" gorm:"type:text;not null;default:''"`
	Notes                string        `json:"notes" gorm:"type:text;not null;default:''"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Withdrawal) TableName() string { return "withdrawals" }

type RequestWithdrawalRequest struct {
	ArtistID     snowflake.ID
	Amount       int64
	MobileNumber string
}

type RequestWithdrawalResponse struct {
	Withdrawal       Withdrawal `json:"withdrawal"`
	AvailableBalance int64      `json:"available_balance"`
}

type ApproveRequest struct {
	ID      snowflake.ID
	AdminID snowflake.ID
	Notes   string
}

type RejectRequest struct {
	ID           snowflake.ID
	AdminID      snowflake.ID
	RejectReason string
}

type MarkPaidRequest struct {
	ID                   snowflake.ID
	TransactionReference string
}

type EarningsTotals struct {
	TotalEarnings         int64 `json:"total_earnings"`
	TotalWithdrawn        int64 `json:"total_withdrawn"`
	AvailableBalance      int64 `json:"available_balance"`
	CompletedTransactions int64 `json:"completed_transactions"`
}

// ArtistEarnings is the artist-facing earnings view: totals, recent sales and
// the full withdrawal history.
type ArtistEarnings struct {
	Earnings           EarningsTotals          `json:"earnings"`
	RecentTransactions []paymentdomain.Payment `json:"recent_transactions"`
	WithdrawalHistory  []Withdrawal            `json:"withdrawal_history"`
	PendingWithdrawals []Withdrawal            `json:"pending_withdrawals"`
}

type ListRequest struct {
	Status    Status
	PageToken string
	PageSize  int
}

// AmountSummary sums withdrawal amounts per status for the admin list view.
type AmountSummary struct {
	TotalRequested int64 `json:"total_requested"`
	TotalApproved  int64 `json:"total_approved"`
	TotalPaid      int64 `json:"total_paid"`
	TotalRejected  int64 `json:"total_rejected"`
}

type ListResponse struct {
	pagination.PageInfo
	Records []Withdrawal  `json:"records"`
	Summary AmountSummary `json:"summary"`
}

type ArtistRanking struct {
	ArtistID      snowflake.ID `json:"artist_id"`
	TotalEarnings int64        `json:"total_earnings"`
	TotalSales    int64        `json:"total_sales"`
}

type StatusCounts struct {
	TotalRequests int64 `json:"total_requests"`
	Pending       int64 `json:"pending"`
	Approved      int64 `json:"approved"`
	Paid          int64 `json:"paid"`
	Rejected      int64 `json:"rejected"`
}

type DashboardSummary struct {
	TotalPlatformEarnings int64 `json:"total_platform_earnings"`
	TotalWithdrawn        int64 `json:"total_withdrawn"`
	TotalApprovedPending  int64 `json:"total_approved_pending"`
	TotalPendingRequests  int64 `json:"total_pending_requests"`
	RemainingBalance      int64 `json:"remaining_balance"`
	TotalArtists          int64 `json:"total_artists"`
	TotalTransactions     int64 `json:"total_transactions"`
}

type Dashboard struct {
	Summary         DashboardSummary `json:"summary"`
	TopArtists      []ArtistRanking  `json:"top_artists"`
	ArtistEarnings  []ArtistRanking  `json:"all_artist_earnings"`
	WithdrawalStats StatusCounts     `json:"withdrawal_stats"`
}

type Service interface {
	Request(ctx context.Context, req RequestWithdrawalRequest) (RequestWithdrawalResponse, error)
	Approve(ctx context.Context, req ApproveRequest) (Withdrawal, error)
	Reject(ctx context.Context, req RejectRequest) (Withdrawal, error)
	MarkPaid(ctx context.Context, req MarkPaidRequest) (Withdrawal, error)
	ArtistEarnings(ctx context.Context, artistID snowflake.ID) (ArtistEarnings, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Dashboard(ctx context.Context) (Dashboard, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, withdrawal *Withdrawal) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Withdrawal, error)
	Save(ctx context.Context, db *gorm.DB, withdrawal *Withdrawal) error

	// WithdrawnTotal sums approved and paid withdrawals for one artist.
	WithdrawnTotal(ctx context.Context, db *gorm.DB, artistID snowflake.ID) (int64, error)
	// ReservedTotal additionally counts pending requests. The request-time
	// balance check uses this so an open request already holds its amount.
	ReservedTotal(ctx context.Context, db *gorm.DB, artistID snowflake.ID) (int64, error)
	ListByArtist(ctx context.Context, db *gorm.DB, artistID snowflake.ID) ([]Withdrawal, error)

	List(ctx context.Context, db *gorm.DB, req ListRequest) ([]*Withdrawal, error)
	AmountSummary(ctx context.Context, db *gorm.DB, status Status) (AmountSummary, error)
	StatusCounts(ctx context.Context, db *gorm.DB) (StatusCounts, error)
	// SumByStatus totals withdrawal amounts across all artists per status.
	SumByStatus(ctx context.Context, db *gorm.DB, status Status) (int64, error)

	// PlatformCompletedTotals sums all completed track sales platform-wide.
	PlatformCompletedTotals(ctx context.Context, db *gorm.DB) (total int64, count int64, err error)
	// ArtistRanking groups completed sales per seller, highest earners first.
	ArtistRanking(ctx context.Context, db *gorm.DB) ([]ArtistRanking, error)
}
