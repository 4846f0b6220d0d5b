package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-idempotent-giftflow/internal/app"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/checkout"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/config"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/handlers"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/logger"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/processor"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/webhooks"
)

func setupRouter(a *app.App, cfg handlers.HandlerConfig, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logger.GinMiddleware(log))

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})))
	handlers.RegisterRoutes(r, cfg)

	return r
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}
	if err := cfg.Validate(); err != nil {
		panic(err.Error())
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	if err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to build components", zap.Error(err))
	}

	stripe, err := processor.NewStripe(processor.Config{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		IsTestMode:    cfg.Stripe.IsTestMode,
	}, log.Named("stripe"))
	if err != nil {
		log.Fatal("invalid stripe configuration", zap.Error(err))
	}

	issuer := checkout.NewIssuer(checkout.Config{
		MinAmount: cfg.Checkout.MinAmount,
		Currency:  cfg.Checkout.Currency,
		BaseURL:   cfg.Checkout.BaseURL,
	}, a.Directory, stripe, log.Named("checkout"))

	service := webhooks.NewService(
		webhooks.NewVerifier(cfg.Stripe.WebhookSecret),
		webhooks.NewRouter(a.Reconciler, log.Named("router")),
		a.Events,
		a.Metrics,
		log.Named("webhooks"),
	)

	r := setupRouter(a, handlers.HandlerConfig{
		Issuer:    issuer,
		Webhooks:  service,
		Directory: a.Directory,
		Gifts:     a.Ledger,
		Metrics:   a.Metrics,
		Logger:    log,
	}, log)

	log.Info("starting giftflow api",
		zap.String("env", cfg.App.Env),
		zap.String("store", cfg.Store.Driver),
		zap.Bool("run_local", cfg.App.RunLocal))

	if cfg.App.RunLocal {
		serveLocal(r, ":"+cfg.App.Port, log)
		return
	}

	adapter := ginadapter.New(r)
	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}

// serveLocal runs a plain HTTP server until SIGINT or SIGTERM.
func serveLocal(r *gin.Engine, addr string, log *zap.Logger) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("running local server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed to run local server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down local server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
}
