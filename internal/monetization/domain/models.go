package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status is the monetization application state. NotApplied is a projection
// for creators without a record; it is never persisted.
type Status string

const (
	StatusNotApplied Status = "not_applied"
	StatusPending    Status = "pending"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
	StatusSuspended  Status = "suspended"
)

var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusSuspended},
}

// CanTransition reports whether from → to is a legal application transition.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PayoutStatus tracks a streaming-earnings payout record.
type PayoutStatus string

const (
	PayoutPending   PayoutStatus = "pending"
	PayoutProcessed PayoutStatus = "processed"
	PayoutFailed    PayoutStatus = "failed"
)

// PayoutRecord is one entry of the account's append-only payout log.
type PayoutRecord struct {
	ID            string       `json:"id"`
	Amount        float64      `json:"amount"`
	Date          time.Time    `json:"date"`
	Status        PayoutStatus `json:"status"`
	PaymentMethod string       `json:"payment_method"`
	Reference     string       `json:"reference"`
}

// Account is a creator's monetization record, unique per creator.
type Account struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	CreatorID snowflake.ID `json:"creator_id" gorm:"not null;uniqueIndex"`
	Status    Status       `json:"status" gorm:"type:text;not null;default:'pending';index"`

	FollowersCount  int  `json:"followers_count" gorm:"not null;default:0"`
	TracksCount     int  `json:"tracks_count" gorm:"not null;default:0"`
	RequirementsMet bool `json:"requirements_met" gorm:"not null;default:false"`

	// EarningsRate is money per 1000 qualifying plays; PlatformCommission is
	// the percentage the platform keeps.
	EarningsRate       float64 `json:"earnings_rate" gorm:"not null;default:1"`
	PlatformCommission float64 `json:"platform_commission" gorm:"not null;default:20"`

	// TotalEarnings == PendingEarnings + PaidEarnings after every mutation.
	TotalEarnings   float64 `json:"total_earnings" gorm:"not null;default:0"`
	PendingEarnings float64 `json:"pending_earnings" gorm:"not null;default:0"`
	PaidEarnings    float64 `json:"paid_earnings" gorm:"not null;default:0"`

	PayoutHistory datatypes.JSON `json:"payout_history" gorm:"type:jsonb"`

	AdminNotes      string `json:"admin_notes" gorm:"type:text;not null;default:''"`
	RejectionReason string `json:"rejection_reason" gorm:"type:text;not null;default:''"`

	ApplicationDate time.Time  `json:"application_date" gorm:"not null"`
	ApprovalDate    *time.Time `json:"approval_date"`
	LastPayoutDate  *time.Time `json:"last_payout_date"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Account) TableName() string { return "monetization_accounts" }
