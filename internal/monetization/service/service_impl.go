package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/tunevault/tunevault/internal/clock"
	"github.com/tunevault/tunevault/internal/config"
	"github.com/tunevault/tunevault/internal/creatorstats"
	"github.com/tunevault/tunevault/internal/earnings"
	"github.com/tunevault/tunevault/internal/monetization/domain"
	obsmetrics "github.com/tunevault/tunevault/internal/observability/metrics"
	"github.com/tunevault/tunevault/pkg/db"
	"github.com/tunevault/tunevault/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	Stats      creatorstats.Source
	Payout     *config.PayoutConfigHolder
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	stats      creatorstats.Source
	payout     *config.PayoutConfigHolder
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("monetization.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		stats:      p.Stats,
		payout:     p.Payout,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Apply(ctx context.Context, creatorID snowflake.ID) (domain.ApplyResponse, error) {
	if creatorID == 0 {
		return domain.ApplyResponse{}, domain.ErrNotFound
	}

	existing, err := s.repo.FindByCreator(ctx, s.db, creatorID)
	if err != nil {
		return domain.ApplyResponse{}, err
	}
	if existing != nil {
		return domain.ApplyResponse{}, domain.ErrAlreadyApplied
	}

	followers, tracks, err := s.stats.CreatorCounts(ctx, creatorID)
	if err != nil {
		return domain.ApplyResponse{}, err
	}

	policy := s.payout.Get()
	requirements := s.requirements(policy, followers, tracks)
	if policy.EnforceEligibility && !requirements.RequirementsMet {
		return domain.ApplyResponse{}, domain.ErrEligibilityNotMet
	}

	now := s.clock.Now()
	account := domain.Account{
		ID:                 s.genID.Generate(),
		CreatorID:          creatorID,
		Status:             domain.StatusPending,
		FollowersCount:     followers,
		TracksCount:        tracks,
		RequirementsMet:    requirements.RequirementsMet,
		EarningsRate:       policy.DefaultRate,
		PlatformCommission: policy.DefaultCommission,
		PayoutHistory:      []byte("[]"),
		ApplicationDate:    now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.repo.Insert(ctx, s.db, &account); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.ApplyResponse{}, domain.ErrAlreadyApplied
		}
		return domain.ApplyResponse{}, err
	}

	s.log.Info("monetization application created",
		zap.String("creator_id", creatorID.String()),
		zap.Bool("requirements_met", requirements.RequirementsMet),
	)

	return domain.ApplyResponse{Account: account, Requirements: requirements}, nil
}

func (s *Service) CheckStatus(ctx context.Context, creatorID snowflake.ID) (domain.StatusResponse, error) {
	followers, tracks, err := s.stats.CreatorCounts(ctx, creatorID)
	if err != nil {
		return domain.StatusResponse{}, err
	}

	policy := s.payout.Get()
	requirements := s.requirements(policy, followers, tracks)

	account, err := s.repo.FindByCreator(ctx, s.db, creatorID)
	if err != nil {
		return domain.StatusResponse{}, err
	}
	if account == nil {
		return domain.StatusResponse{
			Status:       domain.StatusNotApplied,
			Requirements: requirements,
		}, nil
	}

	// Refresh the stored eligibility snapshot on every status read.
	if err := s.repo.UpdateSnapshot(ctx, s.db, account.ID, followers, tracks, requirements.RequirementsMet, s.clock.Now()); err != nil {
		return domain.StatusResponse{}, err
	}

	applicationDate := account.ApplicationDate
	return domain.StatusResponse{
		Status:       account.Status,
		Requirements: requirements,
		Earnings: &domain.EarningsSummary{
			TotalEarnings:      earnings.Round2(account.TotalEarnings),
			PendingEarnings:    earnings.Round2(account.PendingEarnings),
			PaidEarnings:       earnings.Round2(account.PaidEarnings),
			EarningsRate:       account.EarningsRate,
			PlatformCommission: account.PlatformCommission,
		},
		ApplicationDate: &applicationDate,
		ApprovalDate:    account.ApprovalDate,
		RejectionReason: account.RejectionReason,
	}, nil
}

func (s *Service) Approve(ctx context.Context, req domain.ApproveRequest) (domain.Account, error) {
	account, err := s.repo.FindByID(ctx, s.db, req.ID)
	if err != nil {
		return domain.Account{}, err
	}
	if account == nil {
		return domain.Account{}, domain.ErrNotFound
	}
	if !domain.CanTransition(account.Status, domain.StatusApproved) {
		return domain.Account{}, domain.ErrInvalidTransition
	}

	policy := s.payout.Get()
	rate := policy.DefaultRate
	if req.EarningsRate != nil {
		rate = *req.EarningsRate
	}
	commission := policy.DefaultCommission
	if req.PlatformCommission != nil {
		commission = *req.PlatformCommission
	}
	if err := validateSplit(rate, commission); err != nil {
		return domain.Account{}, err
	}

	now := s.clock.Now()
	account.Status = domain.StatusApproved
	account.EarningsRate = rate
	account.PlatformCommission = commission
	account.AdminNotes = strings.TrimSpace(req.AdminNotes)
	account.ApprovalDate = &now
	account.UpdatedAt = now

	if err := s.repo.Save(ctx, s.db, account); err != nil {
		return domain.Account{}, err
	}
	return *account, nil
}

func (s *Service) Reject(ctx context.Context, req domain.RejectRequest) (domain.Account, error) {
	reason := strings.TrimSpace(req.RejectionReason)
	if reason == "" {
		return domain.Account{}, domain.ErrReasonRequired
	}

	account, err := s.repo.FindByID(ctx, s.db, req.ID)
	if err != nil {
		return domain.Account{}, err
	}
	if account == nil {
		return domain.Account{}, domain.ErrNotFound
	}
	if !domain.CanTransition(account.Status, domain.StatusRejected) {
		return domain.Account{}, domain.ErrInvalidTransition
	}

	account.Status = domain.StatusRejected
	account.RejectionReason = reason
	account.AdminNotes = strings.TrimSpace(req.AdminNotes)
	account.UpdatedAt = s.clock.Now()

	if err := s.repo.Save(ctx, s.db, account); err != nil {
		return domain.Account{}, err
	}
	return *account, nil
}

func (s *Service) Suspend(ctx context.Context, req domain.SuspendRequest) (domain.Account, error) {
	account, err := s.repo.FindByID(ctx, s.db, req.ID)
	if err != nil {
		return domain.Account{}, err
	}
	if account == nil {
		return domain.Account{}, domain.ErrNotFound
	}
	if !domain.CanTransition(account.Status, domain.StatusSuspended) {
		return domain.Account{}, domain.ErrInvalidTransition
	}

	account.Status = domain.StatusSuspended
	if notes := strings.TrimSpace(req.AdminNotes); notes != "" {
		account.AdminNotes = notes
	}
	account.UpdatedAt = s.clock.Now()

	if err := s.repo.Save(ctx, s.db, account); err != nil {
		return domain.Account{}, err
	}
	return *account, nil
}

func (s *Service) UpdateEarningsConfig(ctx context.Context, req domain.UpdateConfigRequest) (domain.Account, error) {
	account, err := s.repo.FindByID(ctx, s.db, req.ID)
	if err != nil {
		return domain.Account{}, err
	}
	if account == nil {
		return domain.Account{}, domain.ErrNotFound
	}
	if account.Status != domain.StatusApproved {
		return domain.Account{}, domain.ErrNotApproved
	}

	rate := account.EarningsRate
	if req.EarningsRate != nil {
		rate = *req.EarningsRate
	}
	commission := account.PlatformCommission
	if req.PlatformCommission != nil {
		commission = *req.PlatformCommission
	}
	if err := validateSplit(rate, commission); err != nil {
		return domain.Account{}, err
	}

	account.EarningsRate = rate
	account.PlatformCommission = commission
	if req.AdminNotes != nil {
		account.AdminNotes = strings.TrimSpace(*req.AdminNotes)
	}
	account.UpdatedAt = s.clock.Now()

	if err := s.repo.Save(ctx, s.db, account); err != nil {
		return domain.Account{}, err
	}
	return *account, nil
}

// AccrueEarnings credits the creator's share for playCount streams. Creators
// without an approved account accrue nothing; that is not an error.
func (s *Service) AccrueEarnings(ctx context.Context, creatorID snowflake.ID, playCount int64) error {
	if playCount < 0 {
		return earnings.ErrInvalidPlayCount
	}
	if playCount == 0 {
		return nil
	}

	account, err := s.repo.FindByCreator(ctx, s.db, creatorID)
	if err != nil {
		return err
	}
	if account == nil || account.Status != domain.StatusApproved {
		return nil
	}

	delta, err := earnings.CreatorShare(playCount, account.EarningsRate, account.PlatformCommission)
	if err != nil {
		return err
	}
	if delta == 0 {
		return nil
	}

	applied, err := s.repo.AddEarnings(ctx, s.db, creatorID, delta, s.clock.Now())
	if err != nil {
		return err
	}
	if !applied {
		// Account left approved between the read and the increment; the play
		// event is dropped, matching the unapproved no-op.
		return nil
	}

	if s.obsMetrics != nil {
		s.obsMetrics.EarningsAccruals.Inc()
		s.obsMetrics.EarningsAccrued.Add(delta)
	}
	return nil
}

func (s *Service) RequestPayout(ctx context.Context, req domain.RequestPayoutRequest) (domain.PayoutRecord, error) {
	if req.Amount <= 0 {
		return domain.PayoutRecord{}, domain.ErrInvalidAmount
	}
	policy := s.payout.Get()
	if req.Amount < float64(policy.MinWithdrawal) {
		return domain.PayoutRecord{}, domain.ErrBelowMinimumPayout
	}

	var record domain.PayoutRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.repo.FindByCreator(ctx, tx, req.CreatorID)
		if err != nil {
			return err
		}
		if account == nil || account.Status != domain.StatusApproved {
			return domain.ErrNotApproved
		}
		if req.Amount > account.PendingEarnings {
			return &domain.InsufficientEarningsError{Available: earnings.Round2(account.PendingEarnings)}
		}

		now := s.clock.Now()
		moved, err := s.repo.MovePendingToPaid(ctx, tx, account.ID, req.Amount, now)
		if err != nil {
			return err
		}
		if !moved {
			return &domain.InsufficientEarningsError{Available: earnings.Round2(account.PendingEarnings)}
		}

		history, err := decodeHistory(account.PayoutHistory)
		if err != nil {
			return err
		}
		record = domain.PayoutRecord{
			ID:            uuid.NewString(),
			Amount:        req.Amount,
			Date:          now,
			Status:        domain.PayoutPending,
			PaymentMethod: strings.TrimSpace(req.PaymentMethod),
			Reference:     fmt.Sprintf("PAYOUT_%d_%s", now.UnixMilli(), account.ID.String()),
		}
		history = append(history, record)

		return s.repo.UpdatePayoutHistory(ctx, tx, account.ID, history, now)
	})
	if err != nil {
		if s.obsMetrics != nil {
			s.obsMetrics.PayoutRequests.WithLabelValues("rejected").Inc()
		}
		return domain.PayoutRecord{}, err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.PayoutRequests.WithLabelValues("accepted").Inc()
	}
	return record, nil
}

func (s *Service) ProcessPayout(ctx context.Context, req domain.ProcessPayoutRequest) (domain.PayoutRecord, error) {
	if req.Status != domain.PayoutProcessed && req.Status != domain.PayoutFailed {
		return domain.PayoutRecord{}, domain.ErrInvalidPayoutStatus
	}

	var record domain.PayoutRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.repo.FindByID(ctx, tx, req.AccountID)
		if err != nil {
			return err
		}
		if account == nil {
			return domain.ErrNotFound
		}

		history, err := decodeHistory(account.PayoutHistory)
		if err != nil {
			return err
		}

		idx := -1
		for i := range history {
			if history[i].ID == req.PayoutID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return domain.ErrPayoutNotFound
		}
		if history[idx].Status != domain.PayoutPending {
			return domain.ErrPayoutAlreadyFinal
		}

		now := s.clock.Now()
		history[idx].Status = req.Status
		if ref := strings.TrimSpace(req.Reference); ref != "" {
			history[idx].Reference = ref
		}

		// A failed payout returns the money to pending earnings.
		if req.Status == domain.PayoutFailed {
			if err := s.repo.MovePaidToPending(ctx, tx, account.ID, history[idx].Amount, now); err != nil {
				return err
			}
		}

		record = history[idx]
		return s.repo.UpdatePayoutHistory(ctx, tx, account.ID, history, now)
	})
	if err != nil {
		return domain.PayoutRecord{}, err
	}
	return record, nil
}

func (s *Service) Report(ctx context.Context, creatorID snowflake.ID, from, to *time.Time) (domain.EarningsReport, error) {
	account, err := s.repo.FindByCreator(ctx, s.db, creatorID)
	if err != nil {
		return domain.EarningsReport{}, err
	}
	if account == nil {
		return domain.EarningsReport{}, domain.ErrNotFound
	}

	tracks, err := s.stats.CreatorTracks(ctx, creatorID)
	if err != nil {
		return domain.EarningsReport{}, err
	}

	trackEarnings := make([]domain.TrackEarnings, 0, len(tracks))
	var totalPlays int64
	for _, track := range tracks {
		share, err := earnings.CreatorShare(track.Plays, account.EarningsRate, account.PlatformCommission)
		if err != nil {
			return domain.EarningsReport{}, err
		}
		totalPlays += track.Plays
		trackEarnings = append(trackEarnings, domain.TrackEarnings{
			TrackID:    track.ID,
			TrackTitle: track.Title,
			Plays:      track.Plays,
			Earnings:   earnings.Round2(share),
		})
	}

	history, err := decodeHistory(account.PayoutHistory)
	if err != nil {
		return domain.EarningsReport{}, err
	}
	if from != nil || to != nil {
		filtered := make([]domain.PayoutRecord, 0, len(history))
		for _, payout := range history {
			if from != nil && payout.Date.Before(*from) {
				continue
			}
			if to != nil && payout.Date.After(*to) {
				continue
			}
			filtered = append(filtered, payout)
		}
		history = filtered
	}

	return domain.EarningsReport{
		Summary: domain.ReportSummary{
			TotalEarnings:   earnings.Round2(account.TotalEarnings),
			PendingEarnings: earnings.Round2(account.PendingEarnings),
			PaidEarnings:    earnings.Round2(account.PaidEarnings),
			TotalPlays:      totalPlays,
			TotalTracks:     len(tracks),
		},
		TrackEarnings:      trackEarnings,
		PayoutHistory:      history,
		EarningsRate:       account.EarningsRate,
		PlatformCommission: account.PlatformCommission,
	}, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	items, err := s.repo.List(ctx, s.db, domain.ListFilter{Status: req.Status}, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  pageSize,
	})
	if err != nil {
		return domain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(account *domain.Account) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        account.ID.String(),
			CreatedAt: account.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	records := make([]domain.Account, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		records = append(records, *item)
	}

	return domain.ListResponse{PageInfo: *pageInfo, Records: records}, nil
}

func (s *Service) PendingApplications(ctx context.Context) ([]domain.Account, error) {
	items, err := s.repo.ListPending(ctx, s.db)
	if err != nil {
		return nil, err
	}
	records := make([]domain.Account, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		records = append(records, *item)
	}
	return records, nil
}

func (s *Service) requirements(policy config.PayoutConfig, followers, tracks int) domain.Requirements {
	return domain.Requirements{
		FollowersRequired: policy.FollowerThreshold,
		TracksRequired:    policy.TrackThreshold,
		CurrentFollowers:  followers,
		CurrentTracks:     tracks,
		RequirementsMet:   followers >= policy.FollowerThreshold && tracks >= policy.TrackThreshold,
	}
}

func validateSplit(rate, commission float64) error {
	if rate < 0 {
		return earnings.ErrInvalidRate
	}
	if commission < 0 || commission > 100 {
		return earnings.ErrInvalidCommission
	}
	return nil
}

func decodeHistory(raw []byte) ([]domain.PayoutRecord, error) {
	if len(raw) == 0 {
		return []domain.PayoutRecord{}, nil
	}
	var history []domain.PayoutRecord
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil, err
	}
	return history, nil
}
