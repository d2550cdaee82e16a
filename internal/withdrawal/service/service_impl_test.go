package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/tunevault/tunevault/internal/clock"
	"github.com/tunevault/tunevault/internal/config"
	"github.com/tunevault/tunevault/internal/locks"
	paymentdomain "github.com/tunevault/tunevault/internal/payment/domain"
	paymentrepo "github.com/tunevault/tunevault/internal/payment/repository"
	"github.com/tunevault/tunevault/internal/withdrawal/domain"
	"github.com/tunevault/tunevault/internal/withdrawal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(3)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

func setupWithdrawalService(t *testing.T, node *snowflake.Node) (domain.Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error

	if err := db.AutoMigrate(&domain.Withdrawal{}, &paymentdomain.Payment{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	service := NewService(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fake,
		Repo:     repository.Provide(),
		Earnings: paymentrepo.Provide(),
		Payout:   config.NewStaticPayoutConfigHolder(config.DefaultPayoutConfig()),
		Keyed:    locks.NewKeyedMutex(),
	})

	return service, db, fake
}

func seedCompletedSale(t *testing.T, db *gorm.DB, node *snowflake.Node, sellerID snowflake.ID, amount int64) {
	t.Helper()

	now := time.Now().UTC()
	payment := paymentdomain.Payment{
		ID:                  node.Generate(),
		TrackID:             node.Generate(),
		BuyerID:             node.Generate(),
		SellerID:            sellerID,
		Amount:              amount,
		Currency:            "RWF",
		Status:              paymentdomain.StatusCompleted,
		ExternalReferenceID: fmt.Sprintf("ORDER_%s", node.Generate()),
		BuyerPhoneNumber:    "+250780000002",
		TransactionDate:     now,
		CompletedDate:       &now,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := db.Create(&payment).Error; err != nil {
		t.Fatalf("seed payment: %v", err)
	}
}

func requestWithdrawal(t *testing.T, service domain.Service, artistID snowflake.ID, amount int64) domain.Withdrawal {
	t.Helper()

	resp, err := service.Request(context.Background(), domain.RequestWithdrawalRequest{
		ArtistID:     artistID,
		Amount:       amount,
		MobileNumber: "+250780000001",
	})
	if err != nil {
		t.Fatalf("request withdrawal: %v", err)
	}
	return resp.Withdrawal
}

func TestRequestWithdrawal(t *testing.T) {
	node := mustNode(t)
	service, db, _ := setupWithdrawalService(t, node)

	artistID := node.Generate()
	seedCompletedSale(t, db, node, artistID, 3000)
	seedCompletedSale(t, db, node, artistID, 2000)

	resp, err := service.Request(context.Background(), domain.RequestWithdrawalRequest{
		ArtistID:     artistID,
		Amount:       1500,
		MobileNumber: "+250780000001",
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.Withdrawal.Status != domain.StatusPending {
		t.Fatalf("expected pending withdrawal, got %s", resp.Withdrawal.Status)
	}
	if resp.AvailableBalance != 3500 {
		t.Fatalf("expected remaining balance 3500, got %d", resp.AvailableBalance)
	}
}

func TestRequestWithdrawalValidation(t *testing.T) {
	node := mustNode(t)
	service, db, _ := setupWithdrawalService(t, node)

	artistID := node.Generate()
	seedCompletedSale(t, db, node, artistID, 5000)

	if _, err := service.Request(context.Background(), domain.RequestWithdrawalRequest{
		ArtistID: artistID, Amount: 0, MobileNumber: "+250780000001",
	}); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}

	if _, err := service.Request(context.Background(), domain.RequestWithdrawalRequest{
		ArtistID: artistID, Amount: 100,
	}); !errors.Is(err, domain.ErrMobileRequired) {
		t.Fatalf("expected ErrMobileRequired, got %v", err)
	}

	if _, err := service.Request(context.Background(), domain.RequestWithdrawalRequest{
		ArtistID: artistID, Amount: 5, MobileNumber: "+250780000001",
	}); !errors.Is(err, domain.ErrBelowMinimum) {
		t.Fatalf("expected ErrBelowMinimum, got %v", err)
	}
}

func TestRequestWithdrawalInsufficientBalance(t *testing.T) {
	node := mustNode(t)
	service, db, _ := setupWithdrawalService(t, node)

	artistID := node.Generate()
	seedCompletedSale(t, db, node, artistID, 2000)
	requestWithdrawal(t, service, artistID, 1500)

	// The pending request reserves its amount, so only 500 is left.
	var insufficient *domain.InsufficientBalanceError
	_, err := service.Request(context.Background(), domain.RequestWithdrawalRequest{
		ArtistID:     artistID,
		Amount:       1000,
		MobileNumber: "+250780000001",
	})
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientBalanceError, got %v", err)
	}
	if insufficient.AvailableBalance != 500 || insufficient.TotalEarnings != 2000 || insufficient.TotalWithdrawn != 1500 {
		t.Fatalf("unexpected balance figures: %+v", insufficient)
	}

	var count int64
	if err := db.Model(&domain.Withdrawal{}).Where("artist_id = ?", artistID).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("rejected request must not create a record, got %d rows", count)
	}
}

type heldLocker struct{}

func (heldLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	return "", false, nil
}

func (heldLocker) Release(ctx context.Context, key, token string) error { return nil }

func TestRequestWithdrawalBalanceLockHeld(t *testing.T) {
	node := mustNode(t)
	service, db, _ := setupWithdrawalService(t, node)

	artistID := node.Generate()
	seedCompletedSale(t, db, node, artistID, 2000)

	service.(*Service).locker = heldLocker{}

	_, err := service.Request(context.Background(), domain.RequestWithdrawalRequest{
		ArtistID:     artistID,
		Amount:       1000,
		MobileNumber: "+250780000001",
	})
	if !errors.Is(err, domain.ErrBalanceBusy) {
		t.Fatalf("expected ErrBalanceBusy, got %v", err)
	}

	var count int64
	if err := db.Model(&domain.Withdrawal{}).Where("artist_id = ?", artistID).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("contended request must not create a record, got %d rows", count)
	}
}

func TestConcurrentWithdrawalRequests(t *testing.T) {
	node := mustNode(t)
	service, db, _ := setupWithdrawalService(t, node)

	artistID := node.Generate()
	seedCompletedSale(t, db, node, artistID, 100)

	// Two concurrent 60 requests against 100 of balance: exactly one wins.
	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = service.Request(context.Background(), domain.RequestWithdrawalRequest{
				ArtistID:     artistID,
				Amount:       60,
				MobileNumber: "+250780000001",
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		var insufficient *domain.InsufficientBalanceError
		if !errors.As(err, &insufficient) {
			t.Fatalf("unexpected error: %v", err)
		}
		if insufficient.AvailableBalance != 40 {
			t.Fatalf("expected 40 left after the winning request, got %d", insufficient.AvailableBalance)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one successful request, got %d", succeeded)
	}

	var total int64
	if err := db.Raw(
		`SELECT COALESCE(SUM(amount), 0) FROM withdrawals WHERE artist_id = ?`,
		artistID,
	).Scan(&total).Error; err != nil {
		t.Fatalf("sum: %v", err)
	}
	if total != 60 {
		t.Fatalf("expected one 60 reservation, got %d", total)
	}
}

func TestWithdrawalTransitions(t *testing.T) {
	node := mustNode(t)
	service, db, _ := setupWithdrawalService(t, node)

	artistID := node.Generate()
	adminID := node.Generate()
	seedCompletedSale(t, db, node, artistID, 5000)

	withdrawal := requestWithdrawal(t, service, artistID, 1000)

	if _, err := service.MarkPaid(context.Background(), domain.MarkPaidRequest{ID: withdrawal.ID}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("pending cannot go straight to paid, got %v", err)
	}
	if _, err := service.Reject(context.Background(), domain.RejectRequest{ID: withdrawal.ID, AdminID: adminID}); !errors.Is(err, domain.ErrReasonRequired) {
		t.Fatalf("expected ErrReasonRequired, got %v", err)
	}

	approved, err := service.Approve(context.Background(), domain.ApproveRequest{ID: withdrawal.ID, AdminID: adminID, Notes: "mobile money"})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != domain.StatusApproved || approved.ApprovalDate == nil || approved.ApprovedBy == nil {
		t.Fatalf("unexpected approved record: %+v", approved)
	}
	if *approved.ApprovedBy != adminID {
		t.Fatalf("expected approver %s, got %s", adminID, *approved.ApprovedBy)
	}

	if _, err := service.Approve(context.Background(), domain.ApproveRequest{ID: withdrawal.ID, AdminID: adminID}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("approve twice must fail, got %v", err)
	}
	if _, err := service.Reject(context.Background(), domain.RejectRequest{ID: withdrawal.ID, AdminID: adminID, RejectReason: "late"}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("reject after approve must fail, got %v", err)
	}

	paid, err := service.MarkPaid(context.Background(), domain.MarkPaidRequest{ID: withdrawal.ID, TransactionReference: "MTN-777"})
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if paid.Status != domain.StatusPaid || paid.PaymentDate == nil || paid.TransactionReference != "MTN-777" {
		t.Fatalf("unexpected paid record: %+v", paid)
	}
	if _, err := service.MarkPaid(context.Background(), domain.MarkPaidRequest{ID: withdrawal.ID}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("paid is terminal, got %v", err)
	}

	if _, err := service.Approve(context.Background(), domain.ApproveRequest{ID: node.Generate(), AdminID: adminID}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestArtistEarnings(t *testing.T) {
	node := mustNode(t)
	service, db, _ := setupWithdrawalService(t, node)

	artistID := node.Generate()
	seedCompletedSale(t, db, node, artistID, 3000)
	seedCompletedSale(t, db, node, artistID, 2000)

	first := requestWithdrawal(t, service, artistID, 1000)
	if _, err := service.Approve(context.Background(), domain.ApproveRequest{ID: first.ID, AdminID: node.Generate()}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	requestWithdrawal(t, service, artistID, 500)

	earnings, err := service.ArtistEarnings(context.Background(), artistID)
	if err != nil {
		t.Fatalf("artist earnings: %v", err)
	}
	if earnings.Earnings.TotalEarnings != 5000 {
		t.Fatalf("expected earnings 5000, got %d", earnings.Earnings.TotalEarnings)
	}
	if earnings.Earnings.TotalWithdrawn != 1000 {
		t.Fatalf("pending requests must not count as withdrawn, got %d", earnings.Earnings.TotalWithdrawn)
	}
	if earnings.Earnings.AvailableBalance != 4000 {
		t.Fatalf("expected balance 4000, got %d", earnings.Earnings.AvailableBalance)
	}
	if earnings.Earnings.CompletedTransactions != 2 {
		t.Fatalf("expected 2 completed sales, got %d", earnings.Earnings.CompletedTransactions)
	}
	if len(earnings.WithdrawalHistory) != 2 || len(earnings.PendingWithdrawals) != 1 {
		t.Fatalf("unexpected history lengths: history=%d pending=%d",
			len(earnings.WithdrawalHistory), len(earnings.PendingWithdrawals))
	}
	if len(earnings.RecentTransactions) != 2 {
		t.Fatalf("expected 2 recent transactions, got %d", len(earnings.RecentTransactions))
	}
}

func TestListWithSummary(t *testing.T) {
	node := mustNode(t)
	service, db, fake := setupWithdrawalService(t, node)

	artistID := node.Generate()
	seedCompletedSale(t, db, node, artistID, 10000)
	adminID := node.Generate()

	first := requestWithdrawal(t, service, artistID, 1000)
	fake.Advance(time.Minute)
	second := requestWithdrawal(t, service, artistID, 2000)
	fake.Advance(time.Minute)
	third := requestWithdrawal(t, service, artistID, 3000)
	fake.Advance(time.Minute)
	fourth := requestWithdrawal(t, service, artistID, 500)

	if _, err := service.Approve(context.Background(), domain.ApproveRequest{ID: first.ID, AdminID: adminID}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := service.MarkPaid(context.Background(), domain.MarkPaidRequest{ID: first.ID}); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if _, err := service.Approve(context.Background(), domain.ApproveRequest{ID: second.ID, AdminID: adminID}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := service.Reject(context.Background(), domain.RejectRequest{ID: third.ID, AdminID: adminID, RejectReason: "suspicious"}); err != nil {
		t.Fatalf("reject: %v", err)
	}
	_ = fourth

	listed, err := service.List(context.Background(), domain.ListRequest{PageSize: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed.Records) != 4 {
		t.Fatalf("expected 4 withdrawals, got %d", len(listed.Records))
	}
	if listed.Records[0].ID != fourth.ID {
		t.Fatalf("expected newest first, got %s", listed.Records[0].ID)
	}
	summary := listed.Summary
	if summary.TotalRequested != 500 || summary.TotalApproved != 2000 || summary.TotalPaid != 1000 || summary.TotalRejected != 3000 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	page, err := service.List(context.Background(), domain.ListRequest{PageSize: 2})
	if err != nil {
		t.Fatalf("list paged: %v", err)
	}
	if len(page.Records) != 2 || !page.HasMore {
		t.Fatalf("expected 2 records with more pages, got %d (has_more=%v)", len(page.Records), page.HasMore)
	}
}

func TestDashboard(t *testing.T) {
	node := mustNode(t)
	service, db, _ := setupWithdrawalService(t, node)

	alice := node.Generate()
	bob := node.Generate()
	seedCompletedSale(t, db, node, alice, 6000)
	seedCompletedSale(t, db, node, alice, 1000)
	seedCompletedSale(t, db, node, bob, 4000)

	adminID := node.Generate()
	paidOut := requestWithdrawal(t, service, alice, 2000)
	if _, err := service.Approve(context.Background(), domain.ApproveRequest{ID: paidOut.ID, AdminID: adminID}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := service.MarkPaid(context.Background(), domain.MarkPaidRequest{ID: paidOut.ID}); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	approved := requestWithdrawal(t, service, bob, 1000)
	if _, err := service.Approve(context.Background(), domain.ApproveRequest{ID: approved.ID, AdminID: adminID}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	requestWithdrawal(t, service, bob, 500)

	dashboard, err := service.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}

	summary := dashboard.Summary
	if summary.TotalPlatformEarnings != 11000 || summary.TotalTransactions != 3 {
		t.Fatalf("unexpected platform totals: %+v", summary)
	}
	if summary.TotalWithdrawn != 2000 || summary.TotalApprovedPending != 1000 || summary.TotalPendingRequests != 500 {
		t.Fatalf("unexpected withdrawal totals: %+v", summary)
	}
	if summary.RemainingBalance != 8000 {
		t.Fatalf("expected remaining 8000, got %d", summary.RemainingBalance)
	}
	if summary.TotalArtists != 2 {
		t.Fatalf("expected 2 artists, got %d", summary.TotalArtists)
	}

	if len(dashboard.TopArtists) != 2 || dashboard.TopArtists[0].ArtistID != alice {
		t.Fatalf("expected alice ranked first, got %+v", dashboard.TopArtists)
	}
	if dashboard.TopArtists[0].TotalEarnings != 7000 || dashboard.TopArtists[0].TotalSales != 2 {
		t.Fatalf("unexpected top artist figures: %+v", dashboard.TopArtists[0])
	}

	stats := dashboard.WithdrawalStats
	if stats.TotalRequests != 3 || stats.Pending != 1 || stats.Approved != 1 || stats.Paid != 1 || stats.Rejected != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
