package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/smallbiznis/renderway/internal/cache"
	catalogdomain "github.com/smallbiznis/renderway/internal/catalog/domain"
	"github.com/smallbiznis/renderway/internal/config"
	customerdomain "github.com/smallbiznis/renderway/internal/customer/domain"
	generationdomain "github.com/smallbiznis/renderway/internal/generation/domain"
	ledgerdomain "github.com/smallbiznis/renderway/internal/ledger/domain"
	"github.com/smallbiznis/renderway/internal/observability"
	obsmiddleware "github.com/smallbiznis/renderway/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/renderway/internal/observability/metrics"
	obstracing "github.com/smallbiznis/renderway/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/renderway/internal/payment/domain"
	"github.com/smallbiznis/renderway/internal/ratelimit"
	spenddomain "github.com/smallbiznis/renderway/internal/spend/domain"
	subscriptiondomain "github.com/smallbiznis/renderway/internal/subscription/domain"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(func(*Server) {}),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
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
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	genID           *snowflake.Node
	customerSvc     customerdomain.Service
	catalogSvc      catalogdomain.Service
	ledgerSvc       ledgerdomain.Service
	subscriptionSvc subscriptiondomain.Service
	paymentSvc      paymentdomain.Service
	spendSvc        spenddomain.Service
	generationSvc   generationdomain.Service
	balanceCache    cache.BalanceCache
	generateLimiter *ratelimit.GenerateLimiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	GenID           *snowflake.Node
	CustomerSvc     customerdomain.Service
	CatalogSvc      catalogdomain.Service
	LedgerSvc       ledgerdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	PaymentSvc      paymentdomain.Service
	SpendSvc        spenddomain.Service
	GenerationSvc   generationdomain.Service
	BalanceCache    cache.BalanceCache
	GenerateLimiter *ratelimit.GenerateLimiter `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics        `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		genID:           p.GenID,
		customerSvc:     p.CustomerSvc,
		catalogSvc:      p.CatalogSvc,
		ledgerSvc:       p.LedgerSvc,
		subscriptionSvc: p.SubscriptionSvc,
		paymentSvc:      p.PaymentSvc,
		spendSvc:        p.SpendSvc,
		generationSvc:   p.GenerationSvc,
		balanceCache:    p.BalanceCache,
		generateLimiter: p.GenerateLimiter,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerWebhookRoutes()
	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/:provider", s.HandlePaymentWebhook)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.POST("/customers", s.CreateCustomer)
	api.GET("/customers/:id/balance", s.GetBalance)
	api.GET("/customers/:id/entries", s.ListLedgerEntries)
	api.GET("/customers/:id/subscription", s.GetSubscription)

	api.GET("/catalog/plans", s.ListPlans)
	api.GET("/catalog/topups", s.ListTopupPacks)

	api.POST("/generations", s.CreateGeneration)
}

// classifyErrorForLog maps handler errors to stable log labels.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= http.StatusInternalServerError:
		return "server_error", payload.Type
	case status >= http.StatusBadRequest:
		return "client_error", payload.Type
	default:
		return "", ""
	}
}
