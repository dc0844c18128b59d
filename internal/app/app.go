package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"robline/internal/config"
	"robline/internal/db"
	"robline/internal/docstore"
	"robline/internal/engine"
	"robline/internal/events"
	"robline/internal/logging"
	"robline/internal/metrics"
	"robline/internal/migrate"
	"robline/internal/repo"
)

// App is a fully wired engine plus the resources behind it.
type App struct {
	Engine  engine.Engine
	Config  *config.Config
	Metrics *metrics.Metrics
	Log     *zap.SugaredLogger

	kafka *kgo.Client
}

// Options control wiring that does not live in robline.yml.
type Options struct {
	Workspace string
	Now       func() time.Time
}

// Open builds the store, document store and notification fan-out from cfg.
func Open(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger, opts Options) (*App, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logging.Nop()
	}
	store, err := openStore(ctx, cfg, opts.Workspace, now)
	if err != nil {
		return nil, err
	}
	docs, err := docstore.Open(ctx, docstoreConfig(cfg, opts.Workspace))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open document store: %w", err)
	}
	a := &App{Config: cfg, Metrics: metrics.New(), Log: log}
	dispatcher, err := a.dispatcher(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	eng := engine.New(store, docs)
	eng.Notifier = dispatcher
	eng.Metrics = a.Metrics
	eng.Log = log
	eng.Now = now
	a.Engine = eng
	log.Infow("robline ready", "store", cfg.Store.Driver, "documents", docs.Driver(), "subscribers", len(dispatcher.Subscribers))
	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config, workspace string, now func() time.Time) (repo.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return repo.NewMemory(now), nil
	case "sqlite", "":
		conn, err := db.Open(db.Config{Workspace: workspace})
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		if err := migrate.Migrate(ctx, conn); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return repo.NewSQLite(conn, now), nil
	}
	return nil, fmt.Errorf("unknown store driver %s", cfg.Store.Driver)
}

func docstoreConfig(cfg *config.Config, workspace string) docstore.Config {
	root := cfg.Documents.Root
	if root != "" && !filepath.IsAbs(root) && workspace != "" {
		root = filepath.Join(workspace, root)
	}
	return docstore.Config{
		Driver: docstore.Driver(cfg.Documents.Driver),
		FSRoot: root,
		S3: docstore.S3Config{
			Bucket:    cfg.Documents.S3.Bucket,
			Region:    cfg.Documents.S3.Region,
			Endpoint:  cfg.Documents.S3.Endpoint,
			PathStyle: cfg.Documents.S3.PathStyle,
		},
	}
}

func (a *App) dispatcher(cfg *config.Config) (events.Dispatcher, error) {
	d := events.Dispatcher{Log: a.Log}
	for _, w := range cfg.Notifications.Webhooks {
		d.Subscribers = append(d.Subscribers, events.Webhook{
			URL:     w.URL,
			Secret:  w.Secret,
			Filter:  events.NewFilter(w.Events),
			Timeout: w.Timeout,
		})
	}
	if k := cfg.Notifications.Kafka; k.Enabled() {
		client, err := events.NewKafkaClient(k.Brokers, k.ClientID)
		if err != nil {
			return events.Dispatcher{}, fmt.Errorf("kafka client: %w", err)
		}
		a.kafka = client
		d.Subscribers = append(d.Subscribers, events.KafkaPublisher{
			Topic:    k.Topic,
			Producer: client,
			Filter:   events.NewFilter(k.Events),
		})
	}
	return d, nil
}

func (a *App) Close() error {
	a.Engine.Flush()
	if a.kafka != nil {
		a.kafka.Close()
	}
	err := a.Engine.Store.Close()
	// stderr sync fails on some terminals
	_ = a.Log.Sync()
	return err
}
