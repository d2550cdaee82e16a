package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/tunevault/tunevault/internal/clock"
	"github.com/tunevault/tunevault/internal/config"
	"github.com/tunevault/tunevault/internal/creatorstats"
	"github.com/tunevault/tunevault/internal/payment/domain"
	"github.com/tunevault/tunevault/internal/payment/gateway"
	"github.com/tunevault/tunevault/internal/payment/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type gatewayStub struct {
	calls     int
	lastOrder gateway.Order
	response  *gateway.OrderResponse
	err       error
}

func (g *gatewayStub) SubmitOrder(ctx context.Context, order gateway.Order) (*gateway.OrderResponse, error) {
	g.calls++
	g.lastOrder = order
	if g.err != nil {
		return nil, g.err
	}
	return g.response, nil
}

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(2)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

func setupPaymentService(t *testing.T, node *snowflake.Node, gw gateway.Gateway) (domain.Service, *gorm.DB) {
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

	if err := db.AutoMigrate(&domain.Payment{}, &creatorstats.CreatorProfile{}, &creatorstats.Track{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	service := NewService(Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
		Repo:    repository.Provide(),
		Stats:   creatorstats.NewStore(db),
		Gateway: gw,
		Cfg:     config.Config{AppName: "tunevault"},
		Payout:  config.NewStaticPayoutConfigHolder(config.DefaultPayoutConfig()),
	})

	return service, db
}

func seedPaidTrack(t *testing.T, db *gorm.DB, node *snowflake.Node, price int64) creatorstats.Track {
	t.Helper()

	creatorID := node.Generate()
	profile := creatorstats.CreatorProfile{
		CreatorID:    creatorID,
		MobileNumber: "+250780000001",
		UpdatedAt:    time.Now().UTC(),
	}
	if err := db.Create(&profile).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	track := creatorstats.Track{
		ID:        node.Generate(),
		CreatorID: creatorID,
		Title:     "Night Drive",
		ForSale:   true,
		Price:     price,
		AudioURL:  "https://cdn.example.com/audio/night-drive.mp3",
		CreatedAt: time.Now().UTC(),
	}
	if err := db.Create(&track).Error; err != nil {
		t.Fatalf("seed track: %v", err)
	}
	return track
}

func initiatePurchase(t *testing.T, service domain.Service, track creatorstats.Track, buyerID snowflake.ID) domain.InitiatePurchaseResponse {
	t.Helper()

	resp, err := service.InitiatePurchase(context.Background(), domain.InitiatePurchaseRequest{
		BuyerID:     buyerID,
		TrackID:     track.ID,
		Amount:      track.Price,
		PhoneNumber: "+250780000002",
	})
	if err != nil {
		t.Fatalf("initiate purchase: %v", err)
	}
	return resp
}

func TestInitiatePurchase(t *testing.T) {
	node := mustNode(t)
	gw := &gatewayStub{response: &gateway.OrderResponse{
		OrderTrackingID: "PSP-TRACK-1",
		RedirectURL:     "https://pay.example.com/checkout/abc",
	}}
	service, db := setupPaymentService(t, node, gw)

	track := seedPaidTrack(t, db, node, 2500)
	buyerID := node.Generate()

	resp := initiatePurchase(t, service, track, buyerID)
	if resp.RedirectURL != "https://pay.example.com/checkout/abc" {
		t.Fatalf("expected redirect url, got %q", resp.RedirectURL)
	}
	if resp.Status != domain.StatusPending {
		t.Fatalf("expected pending, got %s", resp.Status)
	}
	if gw.calls != 1 {
		t.Fatalf("expected 1 gateway call, got %d", gw.calls)
	}
	if gw.lastOrder.Amount != 2500 || gw.lastOrder.ID != resp.OrderID {
		t.Fatalf("unexpected order sent to gateway: %+v", gw.lastOrder)
	}

	var payment domain.Payment
	if err := db.Where("external_reference_id = ?", resp.OrderID).First(&payment).Error; err != nil {
		t.Fatalf("load payment: %v", err)
	}
	if payment.SellerID != track.CreatorID || payment.SellerPhoneNumber != "+250780000001" {
		t.Fatalf("unexpected seller fields: %+v", payment)
	}
	if payment.GatewayTransactionID != "PSP-TRACK-1" {
		t.Fatalf("expected tracking id stored, got %q", payment.GatewayTransactionID)
	}
}

func TestInitiatePurchaseValidation(t *testing.T) {
	node := mustNode(t)
	service, db := setupPaymentService(t, node, &gatewayStub{})

	track := seedPaidTrack(t, db, node, 2500)
	buyerID := node.Generate()

	if _, err := service.InitiatePurchase(context.Background(), domain.InitiatePurchaseRequest{
		BuyerID: buyerID, TrackID: track.ID, Amount: 2500,
	}); !errors.Is(err, domain.ErrPhoneRequired) {
		t.Fatalf("expected ErrPhoneRequired, got %v", err)
	}

	if _, err := service.InitiatePurchase(context.Background(), domain.InitiatePurchaseRequest{
		BuyerID: buyerID, TrackID: track.ID, Amount: 1000, PhoneNumber: "+250780000002",
	}); !errors.Is(err, domain.ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got %v", err)
	}

	if _, err := service.InitiatePurchase(context.Background(), domain.InitiatePurchaseRequest{
		BuyerID: buyerID, TrackID: node.Generate(), Amount: 2500, PhoneNumber: "+250780000002",
	}); !errors.Is(err, domain.ErrTrackNotFound) {
		t.Fatalf("expected ErrTrackNotFound, got %v", err)
	}

	free := creatorstats.Track{
		ID:        node.Generate(),
		CreatorID: track.CreatorID,
		Title:     "Free Loop",
		CreatedAt: time.Now().UTC(),
	}
	if err := db.Create(&free).Error; err != nil {
		t.Fatalf("seed free track: %v", err)
	}
	if _, err := service.InitiatePurchase(context.Background(), domain.InitiatePurchaseRequest{
		BuyerID: buyerID, TrackID: free.ID, Amount: 2500, PhoneNumber: "+250780000002",
	}); !errors.Is(err, domain.ErrTrackNotForSale) {
		t.Fatalf("expected ErrTrackNotForSale, got %v", err)
	}
}

func TestInitiatePurchaseGatewayRejection(t *testing.T) {
	node := mustNode(t)
	gw := &gatewayStub{err: domain.ErrGatewayRejected}
	service, db := setupPaymentService(t, node, gw)

	track := seedPaidTrack(t, db, node, 2500)
	buyerID := node.Generate()

	_, err := service.InitiatePurchase(context.Background(), domain.InitiatePurchaseRequest{
		BuyerID:     buyerID,
		TrackID:     track.ID,
		Amount:      2500,
		PhoneNumber: "+250780000002",
	})
	if !errors.Is(err, domain.ErrGatewayRejected) {
		t.Fatalf("expected ErrGatewayRejected, got %v", err)
	}

	var payment domain.Payment
	if err := db.Where("buyer_id = ?", buyerID).First(&payment).Error; err != nil {
		t.Fatalf("load payment: %v", err)
	}
	if payment.Status != domain.StatusFailed || payment.FailureReason == "" {
		t.Fatalf("expected failed payment with reason, got %+v", payment)
	}
}

func TestHandleSettlementIdempotent(t *testing.T) {
	node := mustNode(t)
	gw := &gatewayStub{response: &gateway.OrderResponse{RedirectURL: "https://pay.example.com/x"}}
	service, db := setupPaymentService(t, node, gw)

	track := seedPaidTrack(t, db, node, 2500)
	buyerID := node.Generate()
	resp := initiatePurchase(t, service, track, buyerID)

	status, known := gateway.MapStatusCode("COMPLETED")
	if !known || status != domain.StatusCompleted {
		t.Fatalf("COMPLETED must map to completed")
	}

	first, err := service.HandleSettlement(context.Background(), domain.SettlementNotice{
		Reference:            resp.OrderID,
		Status:               status,
		GatewayTransactionID: "PSP-TXN-9",
		RawCode:              "COMPLETED",
	})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if first.Status != domain.StatusCompleted || first.CompletedDate == nil {
		t.Fatalf("expected completed with date, got %+v", first)
	}
	if first.GatewayTransactionID != "PSP-TXN-9" {
		t.Fatalf("expected txn id stored, got %q", first.GatewayTransactionID)
	}

	// Redelivery of the same status is a no-op.
	second, err := service.HandleSettlement(context.Background(), domain.SettlementNotice{
		Reference: resp.OrderID,
		Status:    domain.StatusCompleted,
		RawCode:   "COMPLETED",
	})
	if err != nil {
		t.Fatalf("settle repeat: %v", err)
	}
	if second.ID != first.ID || second.Status != domain.StatusCompleted {
		t.Fatalf("expected idempotent repeat, got %+v", second)
	}

	var count int64
	if err := db.Model(&domain.Payment{}).Where("external_reference_id = ?", resp.OrderID).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected single payment row, got %d", count)
	}
}

func TestHandleSettlementConflict(t *testing.T) {
	node := mustNode(t)
	gw := &gatewayStub{response: &gateway.OrderResponse{RedirectURL: "https://pay.example.com/x"}}
	service, db := setupPaymentService(t, node, gw)

	track := seedPaidTrack(t, db, node, 2500)
	buyerID := node.Generate()
	resp := initiatePurchase(t, service, track, buyerID)

	if _, err := service.HandleSettlement(context.Background(), domain.SettlementNotice{
		Reference: resp.OrderID,
		Status:    domain.StatusCompleted,
		RawCode:   "COMPLETED",
	}); err != nil {
		t.Fatalf("settle: %v", err)
	}

	if _, err := service.HandleSettlement(context.Background(), domain.SettlementNotice{
		Reference: resp.OrderID,
		Status:    domain.StatusFailed,
		RawCode:   "FAILED",
	}); !errors.Is(err, domain.ErrStatusConflict) {
		t.Fatalf("expected ErrStatusConflict, got %v", err)
	}

	var payment domain.Payment
	if err := db.Where("external_reference_id = ?", resp.OrderID).First(&payment).Error; err != nil {
		t.Fatalf("load payment: %v", err)
	}
	if payment.Status != domain.StatusCompleted || payment.FailureReason != "" {
		t.Fatalf("conflicting callback must not touch the record, got %+v", payment)
	}
}

func TestHandleSettlementUnknownReference(t *testing.T) {
	node := mustNode(t)
	service, _ := setupPaymentService(t, node, &gatewayStub{})

	if _, err := service.HandleSettlement(context.Background(), domain.SettlementNotice{
		Reference: "ORDER_missing",
		Status:    domain.StatusCompleted,
		RawCode:   "COMPLETED",
	}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHandleSettlementUnknownCode(t *testing.T) {
	node := mustNode(t)
	gw := &gatewayStub{response: &gateway.OrderResponse{RedirectURL: "https://pay.example.com/x"}}
	service, db := setupPaymentService(t, node, gw)

	track := seedPaidTrack(t, db, node, 2500)
	buyerID := node.Generate()
	resp := initiatePurchase(t, service, track, buyerID)

	status, known := gateway.MapStatusCode("SOMETHING_NEW")
	if known || status != domain.StatusFailed {
		t.Fatalf("unknown codes must map to failed, got %s (known=%v)", status, known)
	}

	settled, err := service.HandleSettlement(context.Background(), domain.SettlementNotice{
		Reference: resp.OrderID,
		Status:    status,
		RawCode:   "SOMETHING_NEW",
	})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if settled.Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", settled.Status)
	}
	if settled.FailureReason != "gateway reported something_new" {
		t.Fatalf("raw code must be preserved, got %q", settled.FailureReason)
	}

	var payment domain.Payment
	if err := db.Where("external_reference_id = ?", resp.OrderID).First(&payment).Error; err != nil {
		t.Fatalf("load payment: %v", err)
	}
	if payment.FailureReason != "gateway reported something_new" {
		t.Fatalf("unexpected stored reason %q", payment.FailureReason)
	}
}

func TestGetPaymentStatus(t *testing.T) {
	node := mustNode(t)
	gw := &gatewayStub{response: &gateway.OrderResponse{RedirectURL: "https://pay.example.com/x"}}
	service, db := setupPaymentService(t, node, gw)

	track := seedPaidTrack(t, db, node, 2500)
	buyerID := node.Generate()
	resp := initiatePurchase(t, service, track, buyerID)

	status, err := service.GetPaymentStatus(context.Background(), resp.OrderID, buyerID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Status != domain.StatusPending || status.DownloadLink != "" {
		t.Fatalf("pending purchase must not expose the download link, got %+v", status)
	}

	// Another buyer cannot read the order.
	if _, err := service.GetPaymentStatus(context.Background(), resp.OrderID, node.Generate()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign buyer, got %v", err)
	}

	if _, err := service.HandleSettlement(context.Background(), domain.SettlementNotice{
		Reference: resp.OrderID,
		Status:    domain.StatusCompleted,
		RawCode:   "COMPLETED",
	}); err != nil {
		t.Fatalf("settle: %v", err)
	}

	status, err = service.GetPaymentStatus(context.Background(), resp.OrderID, buyerID)
	if err != nil {
		t.Fatalf("status after settle: %v", err)
	}
	if status.Status != domain.StatusCompleted || status.CompletedDate == nil {
		t.Fatalf("expected completed status with date, got %+v", status)
	}
	if status.DownloadLink != "https://cdn.example.com/audio/night-drive.mp3" {
		t.Fatalf("expected download link after completion, got %q", status.DownloadLink)
	}
}

func TestSellerEarnings(t *testing.T) {
	node := mustNode(t)
	gw := &gatewayStub{response: &gateway.OrderResponse{RedirectURL: "https://pay.example.com/x"}}
	service, db := setupPaymentService(t, node, gw)

	track := seedPaidTrack(t, db, node, 2500)

	for i := 0; i < 3; i++ {
		buyerID := node.Generate()
		resp := initiatePurchase(t, service, track, buyerID)
		if _, err := service.HandleSettlement(context.Background(), domain.SettlementNotice{
			Reference: resp.OrderID,
			Status:    domain.StatusCompleted,
			RawCode:   "COMPLETED",
		}); err != nil {
			t.Fatalf("settle %d: %v", i, err)
		}
	}

	// A pending purchase must not count.
	pending := initiatePurchase(t, service, track, node.Generate())
	_ = pending

	earnings, err := service.SellerEarnings(context.Background(), track.CreatorID)
	if err != nil {
		t.Fatalf("seller earnings: %v", err)
	}
	if earnings.TotalEarnings != 7500 || earnings.TotalSales != 3 {
		t.Fatalf("expected 7500 across 3 sales, got %d across %d", earnings.TotalEarnings, earnings.TotalSales)
	}
	if len(earnings.RecentPayments) != 3 {
		t.Fatalf("expected 3 recent payments, got %d", len(earnings.RecentPayments))
	}
}
