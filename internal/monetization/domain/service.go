package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tunevault/tunevault/pkg/db/pagination"
)

var (
	ErrAlreadyApplied      = errors.New("already_applied")
	ErrNotFound            = errors.New("monetization_not_found")
	ErrInvalidTransition   = errors.New("invalid_transition")
	ErrNotApproved         = errors.New("not_approved")
	ErrEligibilityNotMet   = errors.New("eligibility_not_met")
	ErrReasonRequired      = errors.New("rejection_reason_required")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrBelowMinimumPayout  = errors.New("below_minimum_payout")
	ErrPayoutNotFound      = errors.New("payout_not_found")
	ErrPayoutAlreadyFinal  = errors.New("payout_already_final")
	ErrInvalidPayoutStatus = errors.New("invalid_payout_status")
)

// InsufficientEarningsError reports a payout request beyond pending earnings.
type InsufficientEarningsError struct {
	Available float64
}

func (e *InsufficientEarningsError) Error() string {
	return fmt.Sprintf("insufficient pending earnings: available %.2f", e.Available)
}

// Requirements is the eligibility snapshot returned to creators.
type Requirements struct {
	FollowersRequired int  `json:"followers_required"`
	TracksRequired    int  `json:"tracks_required"`
	CurrentFollowers  int  `json:"current_followers"`
	CurrentTracks     int  `json:"current_tracks"`
	RequirementsMet   bool `json:"requirements_met"`
}

type EarningsSummary struct {
	TotalEarnings      float64 `json:"total_earnings"`
	PendingEarnings    float64 `json:"pending_earnings"`
	PaidEarnings       float64 `json:"paid_earnings"`
	EarningsRate       float64 `json:"earnings_rate"`
	PlatformCommission float64 `json:"platform_commission"`
}

type StatusResponse struct {
	Status          Status           `json:"status"`
	Requirements    Requirements     `json:"requirements"`
	Earnings        *EarningsSummary `json:"earnings,omitempty"`
	ApplicationDate *time.Time       `json:"application_date,omitempty"`
	ApprovalDate    *time.Time       `json:"approval_date,omitempty"`
	RejectionReason string           `json:"rejection_reason,omitempty"`
}

type ApplyResponse struct {
	Account      Account      `json:"application"`
	Requirements Requirements `json:"requirements"`
}

type ApproveRequest struct {
	ID                 snowflake.ID
	EarningsRate       *float64
	PlatformCommission *float64
	AdminNotes         string
}

type RejectRequest struct {
	ID              snowflake.ID
	RejectionReason string
	AdminNotes      string
}

type SuspendRequest struct {
	ID         snowflake.ID
	AdminNotes string
}

type UpdateConfigRequest struct {
	ID                 snowflake.ID
	EarningsRate       *float64
	PlatformCommission *float64
	AdminNotes         *string
}

type RequestPayoutRequest struct {
	CreatorID     snowflake.ID
	Amount        float64
	PaymentMethod string
}

type ProcessPayoutRequest struct {
	AccountID snowflake.ID
	PayoutID  string
	Status    PayoutStatus // processed or failed
	Reference string
}

type TrackEarnings struct {
	TrackID    snowflake.ID `json:"track_id"`
	TrackTitle string       `json:"track_title"`
	Plays      int64        `json:"plays"`
	Earnings   float64      `json:"earnings"`
}

type ReportSummary struct {
	TotalEarnings   float64 `json:"total_earnings"`
	PendingEarnings float64 `json:"pending_earnings"`
	PaidEarnings    float64 `json:"paid_earnings"`
	TotalPlays      int64   `json:"total_plays"`
	TotalTracks     int     `json:"total_tracks"`
}

type EarningsReport struct {
	Summary            ReportSummary   `json:"summary"`
	TrackEarnings      []TrackEarnings `json:"track_earnings"`
	PayoutHistory      []PayoutRecord  `json:"payout_history"`
	EarningsRate       float64         `json:"earnings_rate"`
	PlatformCommission float64         `json:"platform_commission"`
}

type ListRequest struct {
	Status    Status
	PageToken string
	PageSize  int
}

type ListResponse struct {
	pagination.PageInfo
	Records []Account `json:"records"`
}

type Service interface {
	Apply(ctx context.Context, creatorID snowflake.ID) (ApplyResponse, error)
	CheckStatus(ctx context.Context, creatorID snowflake.ID) (StatusResponse, error)
	Approve(ctx context.Context, req ApproveRequest) (Account, error)
	Reject(ctx context.Context, req RejectRequest) (Account, error)
	Suspend(ctx context.Context, req SuspendRequest) (Account, error)
	UpdateEarningsConfig(ctx context.Context, req UpdateConfigRequest) (Account, error)
	AccrueEarnings(ctx context.Context, creatorID snowflake.ID, playCount int64) error
	RequestPayout(ctx context.Context, req RequestPayoutRequest) (PayoutRecord, error)
	ProcessPayout(ctx context.Context, req ProcessPayoutRequest) (PayoutRecord, error)
	Report(ctx context.Context, creatorID snowflake.ID, from, to *time.Time) (EarningsReport, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	PendingApplications(ctx context.Context) ([]Account, error)
}
