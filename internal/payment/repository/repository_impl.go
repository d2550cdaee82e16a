package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tunevault/tunevault/internal/payment/domain"
	"github.com/tunevault/tunevault/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Create(payment).Error
}

func (r *repo) FindByReference(ctx context.Context, db *gorm.DB, reference string) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).Where("external_reference_id = ?", reference).Limit(1).Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByReferenceAndBuyer(ctx context.Context, db *gorm.DB, reference string, buyerID snowflake.ID) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).
		Where("external_reference_id = ? AND buyer_id = ?", reference, buyerID).
		Limit(1).
		Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) MarkSubmitted(ctx context.Context, db *gorm.DB, id snowflake.ID, gatewayTxnID string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET gateway_transaction_id = ?, updated_at = ?
		 WHERE id = ?`,
		gatewayTxnID,
		now,
		id,
	).Error
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, failure_reason = ?, updated_at = ?
		 WHERE id = ?`,
		domain.StatusFailed,
		reason,
		now,
		id,
	).Error
}

func (r *repo) Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, to domain.Status, gatewayTxnID, failureReason string, now time.Time) (bool, error) {
	var completedDate any
	if to == domain.StatusCompleted {
		completedDate = now
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?,
		     gateway_transaction_id = CASE WHEN ? != '' THEN ? ELSE gateway_transaction_id END,
		     failure_reason = ?,
		     completed_date = ?,
		     updated_at = ?
		 WHERE id = ? AND status = ?`,
		to,
		gatewayTxnID,
		gatewayTxnID,
		failureReason,
		completedDate,
		now,
		id,
		domain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListByBuyer(ctx context.Context, db *gorm.DB, req domain.ListRequest) ([]*domain.Payment, error) {
	query := db.WithContext(ctx).Model(&domain.Payment{}).Where("buyer_id = ?", req.BuyerID)
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return nil, err
		}
		createdAt, err := time.Parse(time.RFC3339, cursor.CreatedAt)
		if err != nil {
			return nil, err
		}
		query = query.Where("created_at < ?", createdAt)
	}

	limit := req.PageSize
	if limit <= 0 {
		limit = 20
	}

	var items []*domain.Payment
	if err := query.Order("created_at DESC").Limit(limit + 1).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CompletedTotal(ctx context.Context, db *gorm.DB, sellerID snowflake.ID) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0)
		 FROM payments
		 WHERE seller_id = ? AND status = ?`,
		sellerID,
		domain.StatusCompleted,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repo) CompletedCount(ctx context.Context, db *gorm.DB, sellerID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*)
		 FROM payments
		 WHERE seller_id = ? AND status = ?`,
		sellerID,
		domain.StatusCompleted,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) RecentCompleted(ctx context.Context, db *gorm.DB, sellerID snowflake.ID, limit int) ([]domain.Payment, error) {
	if limit <= 0 {
		limit = 10
	}
	var items []domain.Payment
	err := db.WithContext(ctx).
		Where("seller_id = ? AND status = ?", sellerID, domain.StatusCompleted).
		Order("created_at DESC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
