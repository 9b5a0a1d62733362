package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/classfund/classfund/internal/audit"
	auditdomain "github.com/classfund/classfund/internal/audit/domain"
	"github.com/classfund/classfund/internal/auth"
	authdomain "github.com/classfund/classfund/internal/auth/domain"
	"github.com/classfund/classfund/internal/auth/session"
	"github.com/classfund/classfund/internal/campaign"
	campaigndomain "github.com/classfund/classfund/internal/campaign/domain"
	"github.com/classfund/classfund/internal/config"
	"github.com/classfund/classfund/internal/donation"
	donationdomain "github.com/classfund/classfund/internal/donation/domain"
	"github.com/classfund/classfund/internal/ledger"
	ledgerdomain "github.com/classfund/classfund/internal/ledger/domain"
	"github.com/classfund/classfund/internal/observability"
	obsmiddleware "github.com/classfund/classfund/internal/observability/logger"
	obsmetrics "github.com/classfund/classfund/internal/observability/metrics"
	obstracing "github.com/classfund/classfund/internal/observability/tracing"
	"github.com/classfund/classfund/internal/payment"
	paymentdomain "github.com/classfund/classfund/internal/payment/domain"
	"github.com/classfund/classfund/internal/ratelimit"
)

var Module = fx.Module("http.server",
	config.Module,
	fx.Provide(registerGin),
	audit.Module,
	auth.Module,
	session.Module,
	ledger.Module,
	campaign.Module,
	donation.Module,
	payment.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine) {
	srv := &http.Server{
		Addr:    ":8080",
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
	engine      *gin.Engine
	log         *zap.Logger
	authsvc     authdomain.Service
	sessions    *session.Manager
	auditSvc    auditdomain.Service
	campaignSvc campaigndomain.Service
	donationSvc donationdomain.Service
	ledgerSvc   ledgerdomain.Service
	webhookSvc  paymentdomain.Service
	limiter     *ratelimit.PublicLimiter
	obsMetrics  *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Log         *zap.Logger
	Authsvc     authdomain.Service
	Sessions    *session.Manager
	AuditSvc    auditdomain.Service
	CampaignSvc campaigndomain.Service
	DonationSvc donationdomain.Service
	LedgerSvc   ledgerdomain.Service
	WebhookSvc  paymentdomain.Service
	Limiter     *ratelimit.PublicLimiter `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics      `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		log:         p.Log.Named("http.server"),
		authsvc:     p.Authsvc,
		sessions:    p.Sessions,
		auditSvc:    p.AuditSvc,
		campaignSvc: p.CampaignSvc,
		donationSvc: p.DonationSvc,
		ledgerSvc:   p.LedgerSvc,
		webhookSvc:  p.WebhookSvc,
		limiter:     p.Limiter,
		obsMetrics:  p.ObsMetrics,
	}

	svc.registerAuthRoutes()
	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth")

	auth.POST("/register", s.Register)
	auth.POST("/login", s.Login)
	auth.POST("/logout", s.Logout)
	auth.GET("/me", s.Me)
	auth.POST("/change-password", s.AuthRequired(), s.ChangePassword)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Campaigns --------
	api.GET("/campaigns", s.ListCampaigns)
	api.GET("/campaigns/:id", s.GetCampaignByID)
	api.GET("/campaigns/:id/donations", s.ListCampaignDonations)
	api.POST("/campaigns", s.AuthRequired(), s.CreateCampaign)
	api.PATCH("/campaigns/:id", s.AuthRequired(), s.UpdateCampaign)
	api.POST("/campaigns/:id/publish", s.AuthRequired(), s.PublishCampaign)
	api.POST("/campaigns/:id/close", s.AuthRequired(), s.CloseCampaign)
	api.GET("/campaigns/:id/balances", s.AuthRequired(), s.GetCampaignBalances)

	// -------- Donations --------
	// Creation stays open so anonymous donors can give. Refunds go
	// through the service-side organizer/admin check.
	api.POST("/donations", s.OptionalAuth(), s.DonationRateLimit(), s.CreateDonation)
	api.GET("/donations/:id", s.GetDonationByID)
	api.POST("/donations/:id/confirm", s.ConfirmDonation)
	api.POST("/donations/:id/refund", s.AuthRequired(), s.RefundDonation)

	// -------- Payment Webhooks --------
	api.POST("/payments/webhooks/:provider", s.WebhookRateLimit(), s.HandlePaymentWebhook)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")

	admin.Use(s.AuthRequired())

	admin.GET("/audit-logs", s.RequireRole(authdomain.RoleAdmin), s.ListAuditLogs)
}
