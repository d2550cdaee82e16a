package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tunevault/tunevault/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	Status Status
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, account *Account) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Account, error)
	FindByCreator(ctx context.Context, db *gorm.DB, creatorID snowflake.ID) (*Account, error)
	Save(ctx context.Context, db *gorm.DB, account *Account) error
	UpdateSnapshot(ctx context.Context, db *gorm.DB, id snowflake.ID, followers, tracks int, met bool, now time.Time) error

	// AddEarnings atomically applies pending += delta, total += delta for the
	// creator's approved account. Returns false when no approved account matched.
	AddEarnings(ctx context.Context, db *gorm.DB, creatorID snowflake.ID, delta float64, now time.Time) (bool, error)

	// MovePendingToPaid conditionally shifts amount out of pending earnings.
	// Returns false when pending_earnings < amount at execution time.
	MovePendingToPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, amount float64, now time.Time) (bool, error)
	// MovePaidToPending is the failed-payout reversal of MovePendingToPaid.
	MovePaidToPending(ctx context.Context, db *gorm.DB, id snowflake.ID, amount float64, now time.Time) error
	UpdatePayoutHistory(ctx context.Context, db *gorm.DB, id snowflake.ID, history []PayoutRecord, now time.Time) error

	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Pagination) ([]*Account, error)
	ListPending(ctx context.Context, db *gorm.DB) ([]*Account, error)
}
