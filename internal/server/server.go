package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tunevault/tunevault/internal/config"
	"github.com/tunevault/tunevault/internal/creatorstats"
	monetizationdomain "github.com/tunevault/tunevault/internal/monetization/domain"
	obsmetrics "github.com/tunevault/tunevault/internal/observability/metrics"
	obstracing "github.com/tunevault/tunevault/internal/observability/tracing"
	paymentdomain "github.com/tunevault/tunevault/internal/payment/domain"
	"github.com/tunevault/tunevault/internal/ratelimit"
	withdrawaldomain "github.com/tunevault/tunevault/internal/withdrawal/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger) *gin.Engine {
	return NewEngine(log)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	genID           *snowflake.Node
	stats           creatorstats.Source
	monetizationSvc monetizationdomain.Service
	paymentSvc      paymentdomain.Service
	withdrawalSvc   withdrawaldomain.Service
	playLimiter     *ratelimit.PlayIngestLimiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	GenID           *snowflake.Node
	Stats           creatorstats.Source
	MonetizationSvc monetizationdomain.Service
	PaymentSvc      paymentdomain.Service
	WithdrawalSvc   withdrawaldomain.Service
	PlayLimiter     *ratelimit.PlayIngestLimiter `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics          `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		genID:           p.GenID,
		stats:           p.Stats,
		monetizationSvc: p.MonetizationSvc,
		paymentSvc:      p.PaymentSvc,
		withdrawalSvc:   p.WithdrawalSvc,
		playLimiter:     p.PlayLimiter,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Settlement callbacks --------
	// The gateway calls these; they carry no user credentials.
	api.POST("/payments/webhooks/:provider", s.HandleSettlementWebhook)
	api.GET("/payment-callback", s.HandleSettlementCallback)

	authed := api.Group("", s.AuthRequired())

	// -------- Monetization (creator) --------
	authed.POST("/monetization/apply", s.ApplyForMonetization)
	authed.GET("/monetization/status", s.GetMonetizationStatus)
	authed.GET("/monetization/earnings", s.GetEarningsReport)
	authed.POST("/monetization/payouts", s.RequestEarningsPayout)

	// -------- Play ingest --------
	authed.POST("/plays", s.PlayIngestRateLimit(), s.IngestPlays)

	// -------- Track purchases --------
	authed.POST("/payments", s.InitiatePurchase)
	authed.GET("/payments", s.ListPurchases)
	authed.GET("/payments/:orderId/status", s.GetPaymentStatus)
	authed.GET("/sales/earnings", s.GetSellerEarnings)

	// -------- Withdrawals (artist) --------
	authed.POST("/withdrawals", s.RequestWithdrawal)
	authed.GET("/withdrawals/earnings", s.GetArtistEarnings)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/admin")

	admin.Use(s.AuthRequired())
	admin.Use(s.RequireRole(roleAdmin))

	admin.GET("/monetization", s.ListMonetizationAccounts)
	admin.GET("/monetization/pending", s.ListPendingApplications)
	admin.PUT("/monetization/:id/approve", s.ApproveMonetization)
	admin.PUT("/monetization/:id/reject", s.RejectMonetization)
	admin.PUT("/monetization/:id/suspend", s.SuspendMonetization)
	admin.PUT("/monetization/:id/rate", s.UpdateEarningsConfig)
	admin.PUT("/monetization/:id/payouts/:payoutId", s.ProcessEarningsPayout)

	admin.GET("/withdrawals", s.ListWithdrawals)
	admin.PUT("/withdrawals/:id/approve", s.ApproveWithdrawal)
	admin.PUT("/withdrawals/:id/reject", s.RejectWithdrawal)
	admin.PUT("/withdrawals/:id/paid", s.MarkWithdrawalPaid)
	admin.GET("/withdrawals/dashboard", s.GetWithdrawalDashboard)
}
