package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/tunevault/tunevault/internal/payment/domain"
	"github.com/tunevault/tunevault/internal/withdrawal/domain"
	"github.com/tunevault/tunevault/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, withdrawal *domain.Withdrawal) error {
	return db.WithContext(ctx).Create(withdrawal).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Withdrawal, error) {
	var item domain.Withdrawal
	err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) Save(ctx context.Context, db *gorm.DB, withdrawal *domain.Withdrawal) error {
	return db.WithContext(ctx).Save(withdrawal).Error
}

func (r *repo) WithdrawnTotal(ctx context.Context, db *gorm.DB, artistID snowflake.ID) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0)
		 FROM withdrawals
		 WHERE artist_id = ? AND status IN (?, ?)`,
		artistID,
		domain.StatusApproved,
		domain.StatusPaid,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repo) ReservedTotal(ctx context.Context, db *gorm.DB, artistID snowflake.ID) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0)
		 FROM withdrawals
		 WHERE artist_id = ? AND status IN (?, ?, ?)`,
		artistID,
		domain.StatusPending,
		domain.StatusApproved,
		domain.StatusPaid,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repo) ListByArtist(ctx context.Context, db *gorm.DB, artistID snowflake.ID) ([]domain.Withdrawal, error) {
	var items []domain.Withdrawal
	err := db.WithContext(ctx).
		Where("artist_id = ?", artistID).
		Order("request_date DESC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, req domain.ListRequest) ([]*domain.Withdrawal, error) {
	query := db.WithContext(ctx).Model(&domain.Withdrawal{})
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return nil, err
		}
		requestDate, err := time.Parse(time.RFC3339, cursor.CreatedAt)
		if err != nil {
			return nil, err
		}
		query = query.Where("request_date < ?", requestDate)
	}

	limit := req.PageSize
	if limit <= 0 {
		limit = 20
	}

	var items []*domain.Withdrawal
	if err := query.Order("request_date DESC").Limit(limit + 1).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) AmountSummary(ctx context.Context, db *gorm.DB, status domain.Status) (domain.AmountSummary, error) {
	query := db.WithContext(ctx)
	where := ""
	args := []any{
		domain.StatusPending, domain.StatusApproved, domain.StatusPaid, domain.StatusRejected,
	}
	if status != "" {
		where = "WHERE status = ?"
		args = append(args, status)
	}

	var summary domain.AmountSummary
	err := query.Raw(
		`SELECT
			COALESCE(SUM(CASE WHEN status = ? THEN amount ELSE 0 END), 0) AS total_requested,
			COALESCE(SUM(CASE WHEN status = ? THEN amount ELSE 0 END), 0) AS total_approved,
			COALESCE(SUM(CASE WHEN status = ? THEN amount ELSE 0 END), 0) AS total_paid,
			COALESCE(SUM(CASE WHEN status = ? THEN amount ELSE 0 END), 0) AS total_rejected
		 FROM withdrawals `+where,
		args...,
	).Scan(&summary).Error
	if err != nil {
		return domain.AmountSummary{}, err
	}
	return summary, nil
}

func (r *repo) StatusCounts(ctx context.Context, db *gorm.DB) (domain.StatusCounts, error) {
	var counts domain.StatusCounts
	err := db.WithContext(ctx).Raw(
		`SELECT
			COUNT(*) AS total_requests,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS pending,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS approved,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS paid,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS rejected
		 FROM withdrawals`,
		domain.StatusPending,
		domain.StatusApproved,
		domain.StatusPaid,
		domain.StatusRejected,
	).Scan(&counts).Error
	if err != nil {
		return domain.StatusCounts{}, err
	}
	return counts, nil
}

func (r *repo) PlatformCompletedTotals(ctx context.Context, db *gorm.DB) (int64, int64, error) {
	var row struct {
		Total int64
		Count int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count
		 FROM payments
		 WHERE status = ?`,
		paymentdomain.StatusCompleted,
	).Scan(&row).Error
	if err != nil {
		return 0, 0, err
	}
	return row.Total, row.Count, nil
}

func (r *repo) ArtistRanking(ctx context.Context, db *gorm.DB) ([]domain.ArtistRanking, error) {
	var items []domain.ArtistRanking
	err := db.WithContext(ctx).Raw(
		`SELECT seller_id AS artist_id,
			COALESCE(SUM(amount), 0) AS total_earnings,
			COUNT(*) AS total_sales
		 FROM payments
		 WHERE status = ?
		 GROUP BY seller_id
		 ORDER BY total_earnings DESC`,
		paymentdomain.StatusCompleted,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) SumByStatus(ctx context.Context, db *gorm.DB, status domain.Status) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0)
		 FROM withdrawals
		 WHERE status = ?`,
		status,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}
