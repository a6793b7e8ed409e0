package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pledgekit/fundway/internal/config"
	"github.com/pledgekit/fundway/internal/observability"
	obslogger "github.com/pledgekit/fundway/internal/observability/logger"
	obsmetrics "github.com/pledgekit/fundway/internal/observability/metrics"
	obstracing "github.com/pledgekit/fundway/internal/observability/tracing"
	paymentdomain "github.com/pledgekit/fundway/internal/payment/domain"
	"github.com/pledgekit/fundway/internal/payment/webhook"
	pledgedomain "github.com/pledgekit/fundway/internal/pledge/domain"
	totalsdomain "github.com/pledgekit/fundway/internal/totals/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
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
	engine     *gin.Engine
	cfg        config.Config
	pledgeSvc  pledgedomain.Service
	paymentSvc paymentdomain.Service
	webhookSvc *webhook.Service
	totalsSvc  totalsdomain.Service
	obsMetrics *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	PledgeSvc  pledgedomain.Service
	PaymentSvc paymentdomain.Service
	WebhookSvc *webhook.Service
	TotalsSvc  totalsdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		pledgeSvc:  p.PledgeSvc,
		paymentSvc: p.PaymentSvc,
		webhookSvc: p.WebhookSvc,
		totalsSvc:  p.TotalsSvc,
		obsMetrics: p.ObsMetrics,
	}

	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Pledges --------
	api.POST("/pledges", s.CreatePledge)
	api.GET("/pledges/:id", s.GetPledge)

	// -------- Payments --------
	api.POST("/payments/intents", s.CreatePaymentIntent)
	api.GET("/payments/:reference", s.GetPayment)
	api.GET("/payments/:reference/transitions", s.ListPaymentTransitions)
	api.POST("/payments/:reference/refund", s.RefundPayment)

	// -------- Campaign aggregates --------
	api.GET("/campaigns/:id/pledges", s.ListCampaignPledges)
	api.GET("/campaigns/:id/totals", s.GetCampaignTotals)
	api.DELETE("/campaigns/:id/totals/cache", s.InvalidateCampaignTotals)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/payment", s.HandlePaymentWebhook)
}
