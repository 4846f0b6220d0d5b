package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-idempotent-giftflow/internal/app"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/config"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/logger"
)

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

	ctx := context.Background()
	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to build components", zap.Error(err))
	}
	p := NewProcessor(a.Reconciler, log.Named("worker"))

	// If RUN_LOCAL is set, handle a single message from LOCAL_SQS_BODY and exit.
	if cfg.App.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			log.Fatal("LOCAL_SQS_BODY is required when running locally")
		}
		resp, _ := p.Handle(ctx, events.SQSEvent{
			Records: []events.SQSMessage{{MessageId: "local-1", Body: body}},
		})
		if len(resp.BatchItemFailures) > 0 {
			log.Fatal("local message failed")
		}
		return
	}

	lambda.Start(p.Handle)
}
