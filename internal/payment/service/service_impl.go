package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tunevault/tunevault/internal/clock"
	"github.com/tunevault/tunevault/internal/config"
	"github.com/tunevault/tunevault/internal/creatorstats"
	"github.com/tunevault/tunevault/internal/observability/metrics"
	"github.com/tunevault/tunevault/internal/payment/domain"
	"github.com/tunevault/tunevault/internal/payment/gateway"
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
	Gateway    gateway.Gateway
	Cfg        config.Config
	Payout     *config.PayoutConfigHolder
	ObsMetrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	stats      creatorstats.Source
	gateway    gateway.Gateway
	cfg        config.Config
	payout     *config.PayoutConfigHolder
	obsMetrics *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		stats:      p.Stats,
		gateway:    p.Gateway,
		cfg:        p.Cfg,
		payout:     p.Payout,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) InitiatePurchase(ctx context.Context, req domain.InitiatePurchaseRequest) (domain.InitiatePurchaseResponse, error) {
	if req.Amount <= 0 {
		return domain.InitiatePurchaseResponse{}, domain.ErrInvalidAmount
	}
	phone := strings.TrimSpace(req.PhoneNumber)
	if phone == "" {
		return domain.InitiatePurchaseResponse{}, domain.ErrPhoneRequired
	}

	track, err := s.stats.TrackByID(ctx, req.TrackID)
	if err != nil {
		return domain.InitiatePurchaseResponse{}, err
	}
	if track == nil {
		return domain.InitiatePurchaseResponse{}, domain.ErrTrackNotFound
	}
	if !track.ForSale {
		return domain.InitiatePurchaseResponse{}, domain.ErrTrackNotForSale
	}
	if track.Price != req.Amount {
		return domain.InitiatePurchaseResponse{}, domain.ErrAmountMismatch
	}

	sellerPhone, err := s.stats.CreatorMobile(ctx, track.CreatorID)
	if err != nil {
		return domain.InitiatePurchaseResponse{}, err
	}

	now := s.clock.Now()
	currency := s.payout.Get().Currency
	reference := fmt.Sprintf("ORDER_%d_%s", now.UnixMilli(), s.genID.Generate().String())
	payment := domain.Payment{
		ID:                  s.genID.Generate(),
		TrackID:             track.ID,
		BuyerID:             req.BuyerID,
		SellerID:            track.CreatorID,
		Amount:              req.Amount,
		Currency:            currency,
		Status:              domain.StatusPending,
		ExternalReferenceID: reference,
		BuyerPhoneNumber:    phone,
		SellerPhoneNumber:   sellerPhone,
		TransactionDate:     now,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.repo.Insert(ctx, s.db, &payment); err != nil {
		return domain.InitiatePurchaseResponse{}, err
	}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		email = fmt.Sprintf("%s@%s.invalid", req.BuyerID.String(), s.cfg.AppName)
	}

	order := gateway.Order{
		ID:            reference,
		Currency:      currency,
		Amount:        req.Amount,
		Description:   "Payment for track: " + track.Title,
		CallbackURL:   s.cfg.Gateway.CallbackURL,
		PaymentOption: "MOBILE_MONEY",
		Billing: gateway.BillingParty{
			Email:       email,
			PhoneNumber: phone,
			CountryCode: "RW",
			FirstName:   s.cfg.AppName,
			LastName:    "User",
		},
	}

	resp, err := s.gateway.SubmitOrder(ctx, order)
	if err != nil {
		reason := "gateway order submission failed"
		if errors.Is(err, domain.ErrGatewayRejected) {
			reason = "gateway rejected order"
		}
		if markErr := s.repo.MarkFailed(ctx, s.db, payment.ID, reason, s.clock.Now()); markErr != nil {
			s.log.Error("mark payment failed", zap.Error(markErr),
				zap.String("reference", reference))
		}
		s.log.Warn("purchase initiation failed",
			zap.String("reference", reference),
			zap.Error(err),
		)
		return domain.InitiatePurchaseResponse{}, err
	}

	if resp.OrderTrackingID != "" {
		if err := s.repo.MarkSubmitted(ctx, s.db, payment.ID, resp.OrderTrackingID, s.clock.Now()); err != nil {
			return domain.InitiatePurchaseResponse{}, err
		}
	}

	s.log.Info("purchase initiated",
		zap.String("reference", reference),
		zap.String("track_id", track.ID.String()),
		zap.Int64("amount", req.Amount),
	)

	return domain.InitiatePurchaseResponse{
		PaymentID:   payment.ID,
		OrderID:     reference,
		RedirectURL: resp.RedirectURL,
		Status:      domain.StatusPending,
	}, nil
}

// HandleSettlement applies a gateway callback exactly once. Redeliveries of
// the same terminal status are no-ops; a different terminal status after
// settlement is a conflict and leaves the record untouched.
func (s *Service) HandleSettlement(ctx context.Context, notice domain.SettlementNotice) (domain.Payment, error) {
	reference := strings.TrimSpace(notice.Reference)
	if reference == "" {
		return domain.Payment{}, domain.ErrNotFound
	}
	if !notice.Status.Terminal() {
		return domain.Payment{}, domain.ErrStatusConflict
	}

	payment, err := s.repo.FindByReference(ctx, s.db, reference)
	if err != nil {
		return domain.Payment{}, err
	}
	if payment == nil {
		return domain.Payment{}, domain.ErrNotFound
	}
	if payment.Status == notice.Status {
		return *payment, nil
	}
	if payment.Status != domain.StatusPending {
		return domain.Payment{}, domain.ErrStatusConflict
	}

	failureReason := ""
	if notice.Status == domain.StatusFailed {
		failureReason = fmt.Sprintf("gateway reported %s", strings.ToLower(strings.TrimSpace(notice.RawCode)))
	}

	moved, err := s.repo.Transition(ctx, s.db, payment.ID, notice.Status, notice.GatewayTransactionID, failureReason, s.clock.Now())
	if err != nil {
		return domain.Payment{}, err
	}
	if !moved {
		// Lost the race with another callback; reload and re-judge.
		current, err := s.repo.FindByReference(ctx, s.db, reference)
		if err != nil {
			return domain.Payment{}, err
		}
		if current == nil {
			return domain.Payment{}, domain.ErrNotFound
		}
		if current.Status == notice.Status {
			return *current, nil
		}
		return domain.Payment{}, domain.ErrStatusConflict
	}

	if s.obsMetrics != nil {
		s.obsMetrics.SettlementCallbacks.WithLabelValues(string(notice.Status)).Inc()
	}
	s.log.Info("payment settled",
		zap.String("reference", reference),
		zap.String("status", string(notice.Status)),
	)

	settled, err := s.repo.FindByReference(ctx, s.db, reference)
	if err != nil {
		return domain.Payment{}, err
	}
	if settled == nil {
		return domain.Payment{}, domain.ErrNotFound
	}
	return *settled, nil
}

func (s *Service) GetPaymentStatus(ctx context.Context, reference string, buyerID snowflake.ID) (domain.StatusResponse, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return domain.StatusResponse{}, domain.ErrNotFound
	}

	payment, err := s.repo.FindByReferenceAndBuyer(ctx, s.db, reference, buyerID)
	if err != nil {
		return domain.StatusResponse{}, err
	}
	if payment == nil {
		return domain.StatusResponse{}, domain.ErrNotFound
	}

	resp := domain.StatusResponse{
		OrderID:       payment.ExternalReferenceID,
		Status:        payment.Status,
		Amount:        payment.Amount,
		Currency:      payment.Currency,
		CompletedDate: payment.CompletedDate,
	}
	if payment.Status == domain.StatusCompleted {
		track, err := s.stats.TrackByID(ctx, payment.TrackID)
		if err != nil {
			return domain.StatusResponse{}, err
		}
		if track != nil {
			resp.DownloadLink = track.AudioURL
		}
	}
	return resp, nil
}

func (s *Service) ListPurchases(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	req.PageSize = pageSize

	items, err := s.repo.ListByBuyer(ctx, s.db, req)
	if err != nil {
		return domain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(payment *domain.Payment) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        payment.ID.String(),
			CreatedAt: payment.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	records := make([]domain.Payment, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		records = append(records, *item)
	}
	return domain.ListResponse{PageInfo: *pageInfo, Records: records}, nil
}

func (s *Service) SellerEarnings(ctx context.Context, sellerID snowflake.ID) (domain.SellerEarnings, error) {
	total, err := s.repo.CompletedTotal(ctx, s.db, sellerID)
	if err != nil {
		return domain.SellerEarnings{}, err
	}
	count, err := s.repo.CompletedCount(ctx, s.db, sellerID)
	if err != nil {
		return domain.SellerEarnings{}, err
	}
	recent, err := s.repo.RecentCompleted(ctx, s.db, sellerID, 10)
	if err != nil {
		return domain.SellerEarnings{}, err
	}
	return domain.SellerEarnings{
		TotalEarnings:  total,
		TotalSales:     count,
		RecentPayments: recent,
	}, nil
}
