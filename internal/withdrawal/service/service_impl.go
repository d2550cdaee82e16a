package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tunevault/tunevault/internal/cache"
	"github.com/tunevault/tunevault/internal/clock"
	"github.com/tunevault/tunevault/internal/config"
	"github.com/tunevault/tunevault/internal/locks"
	"github.com/tunevault/tunevault/internal/observability/metrics"
	paymentdomain "github.com/tunevault/tunevault/internal/payment/domain"
	"github.com/tunevault/tunevault/internal/withdrawal/domain"
	"github.com/tunevault/tunevault/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// balanceLocker is the cross-instance lock surface Request needs; *locks.Locker
// satisfies it, including its nil form for single-node deployments.
type balanceLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

const (
	balanceLockTTL    = 10 * time.Second
	dashboardCacheTTL = 30 * time.Second
	dashboardCacheKey = "withdrawals"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	Earnings   paymentdomain.EarningsSource
	Payout     *config.PayoutConfigHolder
	Keyed      *locks.KeyedMutex
	Locker     *locks.Locker    `optional:"true"`
	ObsMetrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	earnings   paymentdomain.EarningsSource
	payout     *config.PayoutConfigHolder
	keyed      *locks.KeyedMutex
	locker     balanceLocker
	obsMetrics *metrics.Metrics
	dashboards cache.Cache[string, domain.Dashboard]
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("withdrawal.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		earnings:   p.Earnings,
		payout:     p.Payout,
		keyed:      p.Keyed,
		locker:     p.Locker,
		obsMetrics: p.ObsMetrics,
		dashboards: cache.NewTTLCache[string, domain.Dashboard](),
	}
}

// Request creates a pending withdrawal after a balance check. The check and
// the insert run under a per-artist lock so two concurrent requests cannot
// both spend the same balance.
func (s *Service) Request(ctx context.Context, req domain.RequestWithdrawalRequest) (domain.RequestWithdrawalResponse, error) {
	if req.Amount <= 0 {
		return domain.RequestWithdrawalResponse{}, domain.ErrInvalidAmount
	}
	mobile := strings.TrimSpace(req.MobileNumber)
	if mobile == "" {
		return domain.RequestWithdrawalResponse{}, domain.ErrMobileRequired
	}
	policy := s.payout.Get()
	if req.Amount < policy.MinWithdrawal {
		return domain.RequestWithdrawalResponse{}, domain.ErrBelowMinimum
	}

	lockKey := "withdrawal:artist:" + req.ArtistID.String()
	s.keyed.Lock(lockKey)
	defer s.keyed.Unlock(lockKey)

	token, acquired, err := s.locker.TryLock(ctx, lockKey, balanceLockTTL)
	if err != nil {
		return domain.RequestWithdrawalResponse{}, err
	}
	if !acquired {
		return domain.RequestWithdrawalResponse{}, domain.ErrBalanceBusy
	}
	defer func() {
		if err := s.locker.Release(ctx, lockKey, token); err != nil {
			s.log.Warn("release balance lock", zap.Error(err))
		}
	}()

	var resp domain.RequestWithdrawalResponse
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		totalEarnings, err := s.earnings.CompletedTotal(ctx, tx, req.ArtistID)
		if err != nil {
			return err
		}
		// Pending requests already hold their amount, so an open request
		// cannot be doubled up against the same balance.
		totalWithdrawn, err := s.repo.ReservedTotal(ctx, tx, req.ArtistID)
		if err != nil {
			return err
		}
		available := totalEarnings - totalWithdrawn
		if req.Amount > available {
			return &domain.InsufficientBalanceError{
				AvailableBalance: available,
				TotalEarnings:    totalEarnings,
				TotalWithdrawn:   totalWithdrawn,
			}
		}

		now := s.clock.Now()
		withdrawal := domain.Withdrawal{
			ID:           s.genID.Generate(),
			ArtistID:     req.ArtistID,
			Amount:       req.Amount,
			Currency:     policy.Currency,
			MobileNumber: mobile,
			Status:       domain.StatusPending,
			RequestDate:  now,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.repo.Insert(ctx, tx, &withdrawal); err != nil {
			return err
		}

		resp = domain.RequestWithdrawalResponse{
			Withdrawal:       withdrawal,
			AvailableBalance: available - req.Amount,
		}
		return nil
	})
	if err != nil {
		if s.obsMetrics != nil {
			s.obsMetrics.WithdrawalRequests.WithLabelValues("rejected").Inc()
		}
		return domain.RequestWithdrawalResponse{}, err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.WithdrawalRequests.WithLabelValues("accepted").Inc()
	}
	s.log.Info("withdrawal requested",
		zap.String("artist_id", req.ArtistID.String()),
		zap.Int64("amount", req.Amount),
	)
	return resp, nil
}

func (s *Service) Approve(ctx context.Context, req domain.ApproveRequest) (domain.Withdrawal, error) {
	withdrawal, err := s.repo.FindByID(ctx, s.db, req.ID)
	if err != nil {
		return domain.Withdrawal{}, err
	}
	if withdrawal == nil {
		return domain.Withdrawal{}, domain.ErrNotFound
	}
	if !domain.CanTransition(withdrawal.Status, domain.StatusApproved) {
		return domain.Withdrawal{}, domain.ErrInvalidTransition
	}

	now := s.clock.Now()
	adminID := req.AdminID
	withdrawal.Status = domain.StatusApproved
	withdrawal.ApprovalDate = &now
	withdrawal.ApprovedBy = &adminID
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		withdrawal.Notes = notes
	}
	withdrawal.UpdatedAt = now

	if err := s.repo.Save(ctx, s.db, withdrawal); err != nil {
		return domain.Withdrawal{}, err
	}
	s.dashboards.Delete(dashboardCacheKey)
	if s.obsMetrics != nil {
		s.obsMetrics.WithdrawalDecisions.WithLabelValues("approved").Inc()
	}
	return *withdrawal, nil
}

func (s *Service) Reject(ctx context.Context, req domain.RejectRequest) (domain.Withdrawal, error) {
	reason := strings.TrimSpace(req.RejectReason)
	if reason == "" {
		return domain.Withdrawal{}, domain.ErrReasonRequired
	}

	withdrawal, err := s.repo.FindByID(ctx, s.db, req.ID)
	if err != nil {
		return domain.Withdrawal{}, err
	}
	if withdrawal == nil {
		return domain.Withdrawal{}, domain.ErrNotFound
	}
	if !domain.CanTransition(withdrawal.Status, domain.StatusRejected) {
		return domain.Withdrawal{}, domain.ErrInvalidTransition
	}

	now := s.clock.Now()
	adminID := req.AdminID
	withdrawal.Status = domain.StatusRejected
	withdrawal.ApprovalDate = &now
	withdrawal.ApprovedBy = &adminID
	withdrawal.RejectReason = reason
	withdrawal.UpdatedAt = now

	if err := s.repo.Save(ctx, s.db, withdrawal); err != nil {
		return domain.Withdrawal{}, err
	}
	s.dashboards.Delete(dashboardCacheKey)
	if s.obsMetrics != nil {
		s.obsMetrics.WithdrawalDecisions.WithLabelValues("rejected").Inc()
	}
	return *withdrawal, nil
}

func (s *Service) MarkPaid(ctx context.Context, req domain.MarkPaidRequest) (domain.Withdrawal, error) {
	withdrawal, err := s.repo.FindByID(ctx, s.db, req.ID)
	if err != nil {
		return domain.Withdrawal{}, err
	}
	if withdrawal == nil {
		return domain.Withdrawal{}, domain.ErrNotFound
	}
	if !domain.CanTransition(withdrawal.Status, domain.StatusPaid) {
		return domain.Withdrawal{}, domain.ErrInvalidTransition
	}

	now := s.clock.Now()
	withdrawal.Status = domain.StatusPaid
	withdrawal.PaymentDate = &now
	if ref := strings.TrimSpace(req.TransactionReference); ref != "" {
		withdrawal.TransactionReference = ref
	}
	withdrawal.UpdatedAt = now

	if err := s.repo.Save(ctx, s.db, withdrawal); err != nil {
		return domain.Withdrawal{}, err
	}
	s.dashboards.Delete(dashboardCacheKey)
	if s.obsMetrics != nil {
		s.obsMetrics.WithdrawalDecisions.WithLabelValues("paid").Inc()
	}
	return *withdrawal, nil
}

func (s *Service) ArtistEarnings(ctx context.Context, artistID snowflake.ID) (domain.ArtistEarnings, error) {
	totalEarnings, err := s.earnings.CompletedTotal(ctx, s.db, artistID)
	if err != nil {
		return domain.ArtistEarnings{}, err
	}
	totalWithdrawn, err := s.repo.WithdrawnTotal(ctx, s.db, artistID)
	if err != nil {
		return domain.ArtistEarnings{}, err
	}
	history, err := s.repo.ListByArtist(ctx, s.db, artistID)
	if err != nil {
		return domain.ArtistEarnings{}, err
	}

	var recent []paymentdomain.Payment
	var completedCount int64
	err = s.db.WithContext(ctx).
		Where("seller_id = ? AND status = ?", artistID, paymentdomain.StatusCompleted).
		Order("completed_date DESC").
		Limit(10).
		Find(&recent).Error
	if err != nil {
		return domain.ArtistEarnings{}, err
	}
	err = s.db.WithContext(ctx).
		Model(&paymentdomain.Payment{}).
		Where("seller_id = ? AND status = ?", artistID, paymentdomain.StatusCompleted).
		Count(&completedCount).Error
	if err != nil {
		return domain.ArtistEarnings{}, err
	}

	pending := make([]domain.Withdrawal, 0, len(history))
	for _, w := range history {
		if w.Status == domain.StatusPending {
			pending = append(pending, w)
		}
	}

	return domain.ArtistEarnings{
		Earnings: domain.EarningsTotals{
			TotalEarnings:         totalEarnings,
			TotalWithdrawn:        totalWithdrawn,
			AvailableBalance:      totalEarnings - totalWithdrawn,
			CompletedTransactions: completedCount,
		},
		RecentTransactions: recent,
		WithdrawalHistory:  history,
		PendingWithdrawals: pending,
	}, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	req.PageSize = pageSize

	items, err := s.repo.List(ctx, s.db, req)
	if err != nil {
		return domain.ListResponse{}, err
	}
	summary, err := s.repo.AmountSummary(ctx, s.db, req.Status)
	if err != nil {
		return domain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(w *domain.Withdrawal) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        w.ID.String(),
			CreatedAt: w.RequestDate.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	records := make([]domain.Withdrawal, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		records = append(records, *item)
	}

	return domain.ListResponse{PageInfo: *pageInfo, Records: records, Summary: summary}, nil
}

// Dashboard aggregates six platform-wide queries, so results are cached
// briefly. Admin status transitions drop the cached copy.
func (s *Service) Dashboard(ctx context.Context) (domain.Dashboard, error) {
	if cached, ok := s.dashboards.Get(dashboardCacheKey); ok {
		return cached, nil
	}

	totalEarnings, totalTransactions, err := s.repo.PlatformCompletedTotals(ctx, s.db)
	if err != nil {
		return domain.Dashboard{}, err
	}
	ranking, err := s.repo.ArtistRanking(ctx, s.db)
	if err != nil {
		return domain.Dashboard{}, err
	}
	counts, err := s.repo.StatusCounts(ctx, s.db)
	if err != nil {
		return domain.Dashboard{}, err
	}
	totalPaid, err := s.repo.SumByStatus(ctx, s.db, domain.StatusPaid)
	if err != nil {
		return domain.Dashboard{}, err
	}
	totalApproved, err := s.repo.SumByStatus(ctx, s.db, domain.StatusApproved)
	if err != nil {
		return domain.Dashboard{}, err
	}
	totalPending, err := s.repo.SumByStatus(ctx, s.db, domain.StatusPending)
	if err != nil {
		return domain.Dashboard{}, err
	}

	top := ranking
	if len(top) > 10 {
		top = top[:10]
	}

	dashboard := domain.Dashboard{
		Summary: domain.DashboardSummary{
			TotalPlatformEarnings: totalEarnings,
			TotalWithdrawn:        totalPaid,
			TotalApprovedPending:  totalApproved,
			TotalPendingRequests:  totalPending,
			RemainingBalance:      totalEarnings - totalPaid - totalApproved,
			TotalArtists:          int64(len(ranking)),
			TotalTransactions:     totalTransactions,
		},
		TopArtists:      top,
		ArtistEarnings:  ranking,
		WithdrawalStats: counts,
	}
	s.dashboards.Set(dashboardCacheKey, dashboard, dashboardCacheTTL)
	return dashboard, nil
}
