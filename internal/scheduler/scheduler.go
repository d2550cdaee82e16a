// Package scheduler runs the periodic background jobs of the earnings ledger.
// Today that is one job: refreshing the follower and track snapshots of
// pending monetization applications so admins review current numbers.
package scheduler

import (
	"context"
	"time"

	"github.com/tunevault/tunevault/internal/clock"
	"github.com/tunevault/tunevault/internal/config"
	"github.com/tunevault/tunevault/internal/creatorstats"
	"github.com/tunevault/tunevault/internal/locks"
	monetizationdomain "github.com/tunevault/tunevault/internal/monetization/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const jobLockTTL = 2 * time.Minute

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Cfg    config.Config
	Clock  clock.Clock
	Repo   monetizationdomain.Repository
	Stats  creatorstats.Source
	Payout *config.PayoutConfigHolder
	Locker *locks.Locker `optional:"true"`
}

type Scheduler struct {
	db     *gorm.DB
	log    *zap.Logger
	clock  clock.Clock
	repo   monetizationdomain.Repository
	stats  creatorstats.Source
	payout *config.PayoutConfigHolder
	locker *locks.Locker

	interval time.Duration
}

func New(p Params) *Scheduler {
	interval := time.Duration(p.Cfg.SchedulerIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		db:       p.DB,
		log:      p.Log.Named("scheduler"),
		clock:    p.Clock,
		repo:     p.Repo,
		stats:    p.Stats,
		payout:   p.Payout,
		locker:   p.Locker,
		interval: interval,
	}
}

// RunOnce executes every job a single time.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.RefreshEligibilityJob(ctx)
}

// RunForever ticks jobs until the context is cancelled.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.log.Warn("scheduler run failed", zap.Error(err))
			}
		}
	}
}

// RefreshEligibilityJob re-reads follower and track counts for every pending
// application and stores the fresh snapshot. Only one instance runs the job
// at a time when a distributed lock is configured.
func (s *Scheduler) RefreshEligibilityJob(ctx context.Context) error {
	token, acquired, err := s.tryLock(ctx, "scheduler:job:refresh_eligibility")
	if err != nil {
		return err
	}
	if !acquired {
		s.log.Debug("eligibility refresh already running elsewhere")
		return nil
	}
	defer s.unlock(ctx, "scheduler:job:refresh_eligibility", token)

	accounts, err := s.repo.ListPending(ctx, s.db)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		return nil
	}

	policy := s.payout.Get()
	now := s.clock.Now()
	refreshed := 0
	for _, account := range accounts {
		followers, tracks, err := s.stats.CreatorCounts(ctx, account.CreatorID)
		if err != nil {
			s.log.Warn("creator counts lookup failed",
				zap.String("creator_id", account.CreatorID.String()),
				zap.Error(err),
			)
			continue
		}
		if followers == account.FollowersCount && tracks == account.TracksCount {
			continue
		}

		met := followers >= policy.FollowerThreshold && tracks >= policy.TrackThreshold
		if err := s.repo.UpdateSnapshot(ctx, s.db, account.ID, followers, tracks, met, now); err != nil {
			s.log.Warn("snapshot update failed",
				zap.String("account_id", account.ID.String()),
				zap.Error(err),
			)
			continue
		}
		refreshed++
	}

	if refreshed > 0 {
		s.log.Info("eligibility snapshots refreshed",
			zap.Int("pending", len(accounts)),
			zap.Int("refreshed", refreshed),
		)
	}
	return nil
}

func (s *Scheduler) tryLock(ctx context.Context, key string) (string, bool, error) {
	if s.locker == nil {
		return "", true, nil
	}
	return s.locker.TryLock(ctx, key, jobLockTTL)
}

func (s *Scheduler) unlock(ctx context.Context, key, token string) {
	if s.locker == nil || token == "" {
		return
	}
	if err := s.locker.Release(ctx, key, token); err != nil {
		s.log.Warn("job lock release failed", zap.String("key", key), zap.Error(err))
	}
}
