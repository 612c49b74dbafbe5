package di

import (
	"context"
	"fmt"
	"time"

	"MetaGate/internal/domain/repository"
	"MetaGate/internal/handler/api"
	internalrepo "MetaGate/internal/repository"
	"MetaGate/internal/scheduler"
	"MetaGate/internal/service/cache"
	"MetaGate/internal/service/ratelimit"
	"MetaGate/internal/services/classifier"
	"MetaGate/internal/usecase"
	pkgch "MetaGate/pkg/clickhouse"
	"MetaGate/pkg/config"
	xhttp "MetaGate/pkg/http"
	pkgkafka "MetaGate/pkg/kafka"
	"MetaGate/pkg/logger"
	"MetaGate/pkg/metrics"
	"MetaGate/pkg/server"
)

// Optional infrastructure providers return nil when the component is not
// configured; consumers treat nil as "disabled".

func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(logger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient connects when ClickHouse is the data source or a
// signal sink, and creates the signal table.
func ProvideClickHouseClient(ctx context.Context, cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Data.Source != "clickhouse" && !cfg.Storage.ClickHouseSignal {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	if cfg.Storage.ClickHouseSignal {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := client.InitSchema(ctx, internalrepo.SignalsSchema(cfg.Storage.SignalsTable)); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("clickhouse schema: %w", err)
		}
	}
	return client, nil
}

func ProvideDatasetSource(cfg *config.Config, ch *pkgch.Client, l *logger.Logger) (repository.DatasetSource, error) {
	switch cfg.Data.Source {
	case "clickhouse":
		if ch == nil {
			return nil, fmt.Errorf("clickhouse source requires a clickhouse client")
		}
		src := internalrepo.NewCHDatasetSource(ch, internalrepo.Tables{
			Signals: cfg.Data.Tables.Signals,
			Prices:  cfg.Data.Tables.Prices,
			Metrics: cfg.Data.Tables.Metrics,
		})
		src.SetLogger(l)
		return src, nil
	default:
		return internalrepo.NewCSVSource(cfg.Data.CSV.Signals, cfg.Data.CSV.Prices, cfg.Data.CSV.Metrics), nil
	}
}

// ProvideRegistry registers the built-in models and, with a model server URL,
// the remote ones.
func ProvideRegistry(ctx context.Context, cfg *config.Config, l *logger.Logger) *classifier.Registry {
	r := classifier.NewRegistry(classifier.Options{
		LearningRate: cfg.Model.LearningRate,
		Epochs:       cfg.Model.Epochs,
		L2:           cfg.Model.L2,
	}, l)
	classifier.RegisterRemote(ctx, r, classifier.RemoteConfig{
		URL:     cfg.Model.Remote.URL,
		Timeout: cfg.Model.Remote.Timeout,
		Models:  cfg.Model.Remote.Models,
		Retries: cfg.Model.Remote.Retries,
	})
	return r
}

func ProvideReportStore(cfg *config.Config) (*internalrepo.SQLiteReportStore, error) {
	store, err := internalrepo.NewSQLiteReportStore(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("report store: %w", err)
	}
	return store, nil
}

// ProvideCache uses Redis when enabled and reachable, else an in-process cache.
func ProvideCache(ctx context.Context, cfg *config.Config, l *logger.Logger) cache.Store {
	if !cfg.Redis.Enabled {
		return cache.NewTTLCache()
	}
	rc := cache.NewRedisCache(cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rc.Ping(ctx); err != nil {
		l.Warn("redis unavailable, using in-memory cache", logger.String("addr", cfg.Redis.Addr), logger.Error(err))
		_ = rc.Close()
		return cache.NewTTLCache()
	}
	return rc
}

func ProvideReportCache(c cache.Store, cfg *config.Config) repository.ReportCache {
	return internalrepo.NewReportCache(c, cfg.Redis.TTL)
}

// ProvideKafkaProducer creates a producer keyed by asset.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithBatch(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideSignalSink fans gated decisions out to Kafka and ClickHouse.
func ProvideSignalSink(cfg *config.Config, producer *pkgkafka.Producer, ch *pkgch.Client) repository.SignalSink {
	var sinks internalrepo.MultiSink
	if producer != nil {
		sinks = append(sinks, internalrepo.NewKafkaSignalPublisher(producer, cfg.Kafka.SignalsTopic))
	}
	if ch != nil && cfg.Storage.ClickHouseSignal {
		sinks = append(sinks, internalrepo.NewCHSignalSink(ch.DB(), cfg.Storage.SignalsTable))
	}
	if len(sinks) == 0 {
		return nil
	}
	return sinks
}

func ProvidePipeline(
	cfg *config.Config,
	source repository.DatasetSource,
	registry *classifier.Registry,
	store *internalrepo.SQLiteReportStore,
	rc repository.ReportCache,
	sink repository.SignalSink,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.Pipeline {
	return usecase.NewPipeline(usecase.NewPipelineConfig(cfg), source, registry, store, rc, sink, m, l)
}

// ProvideRunsHandler builds the HTTP API with health checks for every
// configured dependency.
func ProvideRunsHandler(l *logger.Logger, p *usecase.Pipeline, store *internalrepo.SQLiteReportStore, c cache.Store, ch *pkgch.Client) *api.RunsHandler {
	h := api.NewRunsHandler(l, p, ratelimit.New())
	h.AddHealthCheck("sqlite", store.Ping)
	if rc, ok := c.(*cache.RedisCache); ok {
		h.AddHealthCheck("redis", rc.Ping)
	}
	if ch != nil {
		h.AddHealthCheck("clickhouse", ch.Health)
	}
	return h
}

func ProvideHTTPServer(cfg *config.Config, l *logger.Logger, h *api.RunsHandler) *xhttp.Server {
	return xhttp.NewServer([]xhttp.Handler{h},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS),
		xhttp.WithLogger(l),
	)
}

// ProvideKafkaConsumer creates the run-request consumer when Kafka is enabled.
func ProvideKafkaConsumer(cfg *config.Config, l *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || cfg.Kafka.RequestsTopic == "" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

func ProvideRunRequestHandler(cfg *config.Config, p *usecase.Pipeline, m repository.Metrics, l *logger.Logger) pkgkafka.MessageHandler {
	if !cfg.Kafka.Enabled {
		return nil
	}
	return usecase.NewRunRequestHandler(cfg.Kafka.RequestsTopic, p, m, l)
}

// ProvideScheduler returns nil without a cron spec.
func ProvideScheduler(ctx context.Context, cfg *config.Config, p *usecase.Pipeline, c cache.Store, m repository.Metrics, l *logger.Logger) *scheduler.Scheduler {
	if cfg.Schedule.Cron == "" {
		return nil
	}
	return scheduler.New(ctx, p, c, cfg.Schedule.Timeout, m, l)
}

// ProvideApp creates the application and registers resources to close.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	p *usecase.Pipeline,
	srv *xhttp.Server,
	consumer *pkgkafka.Consumer,
	runHandler pkgkafka.MessageHandler,
	sched *scheduler.Scheduler,
	store *internalrepo.SQLiteReportStore,
	c cache.Store,
	sink repository.SignalSink,
	ch *pkgch.Client,
) *server.App {
	app := server.New(cfg, l, p, srv, consumer, runHandler, sched)
	if ch != nil {
		app.OnClose("clickhouse", ch)
	}
	app.OnClose("report_store", store)
	if rc, ok := c.(*cache.RedisCache); ok {
		app.OnClose("redis", rc)
	}
	if sink != nil {
		app.OnClose("signal_sink", sink)
	}
	return app
}
