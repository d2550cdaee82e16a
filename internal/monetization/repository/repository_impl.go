package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tunevault/tunevault/internal/monetization/domain"
	"github.com/tunevault/tunevault/pkg/db/pagination"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, account *domain.Account) error {
	return db.WithContext(ctx).Create(account).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Account, error) {
	var item domain.Account
	err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByCreator(ctx context.Context, db *gorm.DB, creatorID snowflake.ID) (*domain.Account, error) {
	var item domain.Account
	err := db.WithContext(ctx).Where("creator_id = ?", creatorID).Limit(1).Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) Save(ctx context.Context, db *gorm.DB, account *domain.Account) error {
	return db.WithContext(ctx).Save(account).Error
}

func (r *repo) UpdateSnapshot(ctx context.Context, db *gorm.DB, id snowflake.ID, followers, tracks int, met bool, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE monetization_accounts
		 SET followers_count = ?, tracks_count = ?, requirements_met = ?, updated_at = ?
		 WHERE id = ?`,
		followers,
		tracks,
		met,
		now,
		id,
	).Error
}

func (r *repo) AddEarnings(ctx context.Context, db *gorm.DB, creatorID snowflake.ID, delta float64, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE monetization_accounts
		 SET pending_earnings = pending_earnings + ?,
		     total_earnings = total_earnings + ?,
		     updated_at = ?
		 WHERE creator_id = ? AND status = ?`,
		delta,
		delta,
		now,
		creatorID,
		domain.StatusApproved,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MovePendingToPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, amount float64, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE monetization_accounts
		 SET pending_earnings = pending_earnings - ?,
		     paid_earnings = paid_earnings + ?,
		     last_payout_date = ?,
		     updated_at = ?
		 WHERE id = ? AND status = ? AND pending_earnings >= ?`,
		amount,
		amount,
		now,
		now,
		id,
		domain.StatusApproved,
		amount,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MovePaidToPending(ctx context.Context, db *gorm.DB, id snowflake.ID, amount float64, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE monetization_accounts
		 SET pending_earnings = pending_earnings + ?,
		     paid_earnings = paid_earnings - ?,
		     updated_at = ?
		 WHERE id = ?`,
		amount,
		amount,
		now,
		id,
	).Error
}

func (r *repo) UpdatePayoutHistory(ctx context.Context, db *gorm.DB, id snowflake.ID, history []domain.PayoutRecord, now time.Time) error {
	raw, err := json.Marshal(history)
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Exec(
		`UPDATE monetization_accounts
		 SET payout_history = ?, updated_at = ?
		 WHERE id = ?`,
		datatypes.JSON(raw),
		now,
		id,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter, page pagination.Pagination) ([]*domain.Account, error) {
	query := db.WithContext(ctx).Model(&domain.Account{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, err
		}
		createdAt, err := time.Parse(time.RFC3339, cursor.CreatedAt)
		if err != nil {
			return nil, err
		}
		query = query.Where("created_at < ?", createdAt)
	}

	limit := page.PageSize
	if limit <= 0 {
		limit = 20
	}

	var items []*domain.Account
	if err := query.Order("created_at DESC").Limit(limit + 1).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListPending(ctx context.Context, db *gorm.DB) ([]*domain.Account, error) {
	var items []*domain.Account
	err := db.WithContext(ctx).
		Where("status = ?", domain.StatusPending).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
