// Package app builds the components shared by the API and the worker from
// configuration.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-idempotent-giftflow/internal/aws"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/backlog"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/config"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/docstore"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/gifts"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/idempotency"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/metrics"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/pages"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/webhooks"
)

// DemoSlug is the gift page seeded into the in-memory store.
const DemoSlug = "demo"

// App holds the wired components.
type App struct {
	Registry   *prometheus.Registry
	Metrics    metrics.Recorder
	Store      docstore.Store
	Ledger     *gifts.Ledger
	Directory  *pages.Directory
	Backlog    *backlog.Queue
	Reconciler *webhooks.Reconciler
	// Events is nil with the memory driver.
	Events webhooks.EventLog
}

// Collections maps every collection name to its table.
func Collections(cfg config.StoreConfig) map[string]docstore.Collection {
	colls := pages.Collections(cfg.SlugIndexTable, cfg.ChildrenTable, cfg.GiftPagesTable)
	colls[gifts.Collection] = gifts.CollectionFor(cfg.GiftsTable)
	return colls
}

// Build wires the store, ledger, backlog and metrics. The memory driver
// needs no AWS access and starts with a demo gift page.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	a := &App{Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorders := metrics.Fanout{metrics.NewPrometheus(a.Registry)}

	var clients *aws.Clients
	switch cfg.Store.Driver {
	case config.DriverMemory:
		a.Store = docstore.NewMemoryStore(Collections(cfg.Store))
	default:
		var err error
		clients, err = aws.NewClients(ctx, aws.Options{Region: cfg.AWS.Region, Endpoint: cfg.AWS.Endpoint})
		if err != nil {
			return nil, fmt.Errorf("init aws clients: %w", err)
		}
		a.Store = docstore.NewDynamoStore(clients.DynamoDB, Collections(cfg.Store))
		a.Events = idempotency.NewStore(clients.DynamoDB, cfg.Store.EventsTable, cfg.Events.TTL)
		if cfg.Metrics.CloudWatchEnabled {
			recorders = append(recorders, metrics.NewCloudWatch(clients.CloudWatch, cfg.Metrics.Namespace, log))
		}
	}
	a.Metrics = recorders

	var sqsClient aws.SQSAPI
	if clients != nil {
		sqsClient = clients.SQS
	}
	a.Backlog = backlog.New(
		aws.NewPublisher(sqsClient, cfg.Queues.RetryURL),
		aws.NewPublisher(sqsClient, cfg.Queues.DeadLetterURL),
		backlog.Config{RetryDelay: cfg.Backlog.RetryDelay, MaxAttempts: cfg.Backlog.MaxAttempts},
		log.Named("backlog"),
	)

	a.Ledger = gifts.NewLedger(a.Store, log.Named("ledger"))
	a.Directory = pages.NewDirectory(a.Store)
	a.Reconciler = webhooks.NewReconciler(a.Ledger, a.Backlog, a.Metrics, log.Named("reconcile"), cfg.Checkout.Currency)

	if cfg.Store.Driver == config.DriverMemory {
		if err := a.Directory.Register(ctx, DemoSlug,
			pages.Child{ID: "demo-child", FirstName: "Demo"},
			pages.GiftPage{Title: "Demo's RESP", Description: "A sample gift page", GoalAmount: 100000, Theme: "default", IsPublic: true},
		); err != nil {
			return nil, fmt.Errorf("seed demo page: %w", err)
		}
		log.Info("seeded in-memory store", zap.String("slug", DemoSlug))
	}

	return a, nil
}
