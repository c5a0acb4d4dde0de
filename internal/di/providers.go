package di

import (
	"context"
	"fmt"
	"time"

	"QuantWatch/internal/domain/models"
	domrepo "QuantWatch/internal/domain/repository"
	"QuantWatch/internal/handler/api"
	"QuantWatch/internal/handler/ws"
	mid "QuantWatch/internal/middleware"
	internalrepo "QuantWatch/internal/repository"
	"QuantWatch/internal/service/alerting"
	"QuantWatch/internal/service/binance"
	"QuantWatch/internal/service/bus"
	"QuantWatch/internal/service/finnhub"
	"QuantWatch/internal/service/ratelimit"
	"QuantWatch/internal/service/series"
	"QuantWatch/internal/service/simulator"
	"QuantWatch/internal/service/source"
	"QuantWatch/internal/usecase"
	"QuantWatch/pkg/cache"
	pkgch "QuantWatch/pkg/clickhouse"
	"QuantWatch/pkg/config"
	xhttp "QuantWatch/pkg/http"
	pkgkafka "QuantWatch/pkg/kafka"
	applogger "QuantWatch/pkg/logger"
	"QuantWatch/pkg/metrics"
	"QuantWatch/pkg/queue"
	"QuantWatch/pkg/retry"
	"QuantWatch/pkg/server"
)

const (
	layeredMemorySize = 10000
	memoryCleanup     = 30 * time.Second
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: cfg.Log.TimeFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

// ProvideRedisCache connects to Redis when enabled.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.MinIdle, cfg.Redis.PoolTimeout),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideCache returns a memory-fronted Redis cache, or memory only.
func ProvideCache(cfg *config.Config, rc *cache.RedisCache) cache.Service {
	if rc == nil {
		return cache.NewMemoryCache(cache.WithMemoryCleanup(memoryCleanup))
	}
	return cache.NewLayeredCache(rc,
		cache.WithLayeredMemorySize(layeredMemorySize),
		cache.WithLayeredL1TTL(cfg.Source.Cache.TTL),
	)
}

// ProvideClickHouseClient creates a ClickHouse client when enabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(cfg.ClickHouse)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideAlertStore creates the alert archive and its table.
func ProvideAlertStore(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) (*internalrepo.CHAlertStore, error) {
	if ch == nil {
		return nil, nil
	}
	store := internalrepo.NewCHAlertStore(ch, cfg.ClickHouse.Table)
	store.SetLogger(l)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx, cfg.ClickHouse.TTLDays); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvideKafkaProducer creates a Kafka producer when enabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	p := cfg.Kafka.Producer
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(p.Compression),
		pkgkafka.WithRequiredAcks(p.RequiredAcks),
		pkgkafka.WithBatchSize(p.BatchSize),
		pkgkafka.WithBatchBytes(p.BatchBytes),
		pkgkafka.WithBatchTimeout(p.Linger),
		pkgkafka.WithTimeouts(p.WriteTimeout, p.ReadTimeout),
		pkgkafka.WithMaxAttempts(p.MaxAttempts),
		pkgkafka.WithAsync(p.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithAutoCreateTopics(p.AutoCreate),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaConsumer creates the symbol command consumer when enabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || cfg.Kafka.CommandsTopic == "" {
		return nil, nil
	}
	c := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(c.GroupID),
		pkgkafka.WithConsumerAutoOffsetReset(c.OffsetReset),
		pkgkafka.WithConsumerWorkers(c.Workers),
		pkgkafka.WithConsumerBufferSize(c.BufferSize),
		pkgkafka.WithConsumerRetry(c.RetryMax, c.BackoffMin, c.BackoffMax),
		pkgkafka.WithConsumerDLQ(c.DLQTopic),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(
		pkgkafka.TraceHook(),
		pkgkafka.MaxSizeHook(c.MaxBytes),
		pkgkafka.LogHook(l),
	))
	return consumer, nil
}

// ProvideFinnhubStream creates the Finnhub trade stream in live mode.
func ProvideFinnhubStream(cfg *config.Config, l *applogger.Logger) *finnhub.Stream {
	fh := cfg.Source.Finnhub
	if cfg.Source.Type != "live" || !fh.Stream || fh.APIKey == "" {
		return nil
	}
	return finnhub.NewStream(fh.APIKey, fh.StreamURL, fh.PingInterval, nil, l)
}

// ProvideSource builds the source adapter chain: providers routed by market
// class, each behind validation, throttling and the quote cache.
func ProvideSource(cfg *config.Config, c cache.Service, stream *finnhub.Stream, m *metrics.Recorder) domrepo.SourceAdapter {
	common := []mid.PipelineOption{mid.WithPipelineMetrics(m)}
	if cfg.Source.Cache.Enabled {
		common = append(common, mid.WithQuoteCache(c, cfg.Source.Cache.TTL))
	}

	if cfg.Source.Type != "live" {
		sc := cfg.Source.Simulator
		sopts := []simulator.Option{
			simulator.WithFailureRate(sc.FailureRate),
			simulator.WithLatency(sc.Latency),
		}
		if sc.Seed != 0 {
			sopts = append(sopts, simulator.WithSeed(sc.Seed))
		}
		return mid.NewSourcePipeline(simulator.New(sopts...), common...)
	}

	timeout := xhttp.WithTimeout(cfg.Source.HTTPTimeout)
	limiter := ratelimit.New()

	fcfg := cfg.Source.Finnhub
	var fopts []finnhub.Option
	if stream != nil {
		fopts = append(fopts, finnhub.WithStream(stream))
	}
	fh := mid.NewSourcePipeline(finnhub.New(finnhub.NewAPI(fcfg.BaseURL, fcfg.APIKey, timeout), fopts...),
		withLimit(common, limiter, fcfg.Burst, fcfg.PerSecond)...)

	bcfg := cfg.Source.Binance
	bn := mid.NewSourcePipeline(binance.New(binance.NewAPI(bcfg.BaseURL, timeout)),
		withLimit(common, limiter, bcfg.Burst, bcfg.PerSecond)...)

	return source.NewRouter().
		Route(models.ClassStock, fh).
		Route(models.ClassIndex, fh).
		Route(models.ClassCrypto, bn)
}

func withLimit(common []mid.PipelineOption, l *ratelimit.Limiter, burst, perSec float64) []mid.PipelineOption {
	opts := make([]mid.PipelineOption, 0, len(common)+1)
	opts = append(opts, common...)
	return append(opts, mid.WithRateLimit(l, burst, perSec))
}

// ProvideSeriesStore sizes one ring per enabled tier.
func ProvideSeriesStore(cfg *config.Config) *series.Store {
	var opts []series.Option
	for name, t := range cfg.Monitor.Tiers.ByName() {
		if t.Enabled && t.Capacity > 0 {
			opts = append(opts, series.WithCapacity(models.Tier(name), t.Capacity))
		}
	}
	return series.New(opts...)
}

// ProvideBus creates the fan-out bus.
func ProvideBus(cfg *config.Config, l *applogger.Logger, m *metrics.Recorder) *bus.Bus {
	return bus.New(
		bus.WithQueueSize(cfg.Monitor.Bus.QueueSize),
		bus.WithDeliverTimeout(cfg.Monitor.Bus.DeliverTimeout),
		bus.WithLogger(l),
		bus.WithMetrics(m),
	)
}

// ProvideDispatcher creates the alert classifier, history and dispatcher.
func ProvideDispatcher(cfg *config.Config, b *bus.Bus, l *applogger.Logger, m *metrics.Recorder) *alerting.Dispatcher {
	classifier := alerting.NewClassifier(
		alerting.WithCooldown(cfg.Monitor.Alerts.Cooldown),
		alerting.WithSeverityPolicy(cfg.Monitor.Severity),
	)
	return alerting.NewDispatcher(classifier, alerting.NewHistory(cfg.Monitor.Alerts.RecentSize), b,
		alerting.WithLogger(l),
		alerting.WithMetrics(m),
	)
}

// ProvideSnapshotStore caches the latest update per series when enabled.
func ProvideSnapshotStore(cfg *config.Config, c cache.Service) *internalrepo.SnapshotStore {
	if !cfg.Snapshot.Enabled {
		return nil
	}
	return internalrepo.NewSnapshotStore(c, cfg.Snapshot.TTL)
}

// ProvideMonitor creates the engine facade.
func ProvideMonitor(
	cfg *config.Config,
	src domrepo.SourceAdapter,
	store *series.Store,
	dispatcher *alerting.Dispatcher,
	b *bus.Bus,
	l *applogger.Logger,
	m *metrics.Recorder,
	stream *finnhub.Stream,
	snapshots *internalrepo.SnapshotStore,
) *usecase.Monitor {
	periods := make(map[models.Tier]time.Duration, len(models.AllTiers))
	for name, t := range cfg.Monitor.Tiers.ByName() {
		if t.Enabled {
			periods[models.Tier(name)] = t.Period
		}
	}

	hooks := []usecase.SymbolHook{m}
	if stream != nil {
		hooks = append(hooks, stream)
	}
	if snapshots != nil {
		hooks = append(hooks, snapshots)
	}

	f := cfg.Monitor.Fetch
	return usecase.NewMonitor(src, store, dispatcher, b, usecase.MonitorConfig{
		Periods:      periods,
		Thresholds:   cfg.Monitor.Thresholds,
		ActiveWindow: cfg.Monitor.Alerts.ActiveWindow,
		Workers:      cfg.Monitor.Workers,
		FetchTimeout: f.Timeout,
		MaxRetries:   f.MaxRetries,
		Backoff:      retry.New(f.BackoffMin, f.BackoffMax, f.Jitter),
	},
		usecase.WithMonitorLogger(l),
		usecase.WithMonitorMetrics(m),
		usecase.WithSymbolHooks(hooks...),
	)
}

// ProvideHub creates the WebSocket push hub when enabled.
func ProvideHub(cfg *config.Config, monitor *usecase.Monitor, l *applogger.Logger) *ws.Hub {
	if !cfg.WebSocket.Enabled {
		return nil
	}
	return ws.NewHub(
		ws.WithSummary(monitor.Summary, cfg.WebSocket.SummaryInterval),
		ws.WithSendBuffer(cfg.WebSocket.SendBuffer),
		ws.WithHubLogger(l),
		ws.WithAllowedOrigins(cfg.WebSocket.AllowedOrigins),
	)
}

// ProvideQueue creates the alert notification queue when enabled.
func ProvideQueue(cfg *config.Config, rc *cache.RedisCache, l *applogger.Logger) *queue.RedisQueue {
	if !cfg.Notify.Enabled || rc == nil {
		return nil
	}
	n := cfg.Notify
	q := queue.NewRedisQueue(l, &queue.QueueConfig{
		Workers:    n.Workers,
		RetryLimit: n.RetryLimit,
		RetryDelay: n.RetryDelay,
		RetryMax:   n.RetryMax,
	}, rc.Client(), queue.WithKeyPrefix(cfg.Redis.Prefix+":notify"))

	jopts := []internalrepo.NotifyJobOption{internalrepo.WithNotifyLogger(l)}
	if n.WebhookURL != "" {
		jopts = append(jopts, internalrepo.WithWebhook(
			internalrepo.NewWebhookClient(n.WebhookURL, n.Headers, xhttp.WithTimeout(cfg.Source.HTTPTimeout))))
	}
	q.RegisterJob(internalrepo.NewAlertNotifyJob(jopts...))
	return q
}

// ProvideMonitorHandler creates the REST handler.
func ProvideMonitorHandler(
	l *applogger.Logger,
	monitor *usecase.Monitor,
	archive *internalrepo.CHAlertStore,
	snapshots *internalrepo.SnapshotStore,
) *api.MonitorHandler {
	var opts []api.MonitorHandlerOption
	if archive != nil {
		opts = append(opts, api.WithArchive(archive))
	}
	if snapshots != nil {
		opts = append(opts, api.WithSnapshots(snapshots))
	}
	return api.NewMonitorHandler(l, monitor, opts...)
}

// ProvideSymbolCommandHandler creates the Kafka handler for symbol commands.
func ProvideSymbolCommandHandler(cfg *config.Config, monitor *usecase.Monitor, m *metrics.Recorder, l *applogger.Logger) *usecase.SymbolCommandHandler {
	return usecase.NewSymbolCommandHandler(cfg.Kafka.CommandsTopic, monitor, m, l)
}

// ProvideApp subscribes the fan-out consumers and creates the application.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	monitor *usecase.Monitor,
	b *bus.Bus,
	c cache.Service,
	stream *finnhub.Stream,
	hub *ws.Hub,
	handler *api.MonitorHandler,
	archive *internalrepo.CHAlertStore,
	snapshots *internalrepo.SnapshotStore,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
	consumer *pkgkafka.Consumer,
	commands *usecase.SymbolCommandHandler,
	q *queue.RedisQueue,
) (*server.App, error) {
	var subs []domrepo.Subscriber
	handlers := []xhttp.Handler{handler}
	if hub != nil {
		subs = append(subs, hub)
		handlers = append(handlers, hub)
	}
	if archive != nil {
		subs = append(subs, archive)
	}
	if snapshots != nil {
		subs = append(subs, snapshots)
	}
	if producer != nil {
		subs = append(subs, internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.AlertsTopic, cfg.Kafka.UpdatesTopic))
		if cfg.Log.Ship.Enabled {
			l.AttachCollector(&applogger.CollectorConfig{
				Interval:  cfg.Log.Ship.Interval,
				MaxUnique: cfg.Log.Ship.MaxUnique,
				Topic:     cfg.Log.Ship.Topic,
				Publisher: internalrepo.NewKafkaLogPublisher(producer),
			})
		}
	}
	if q != nil {
		subs = append(subs, internalrepo.NewQueueNotifier(q, models.Severity(cfg.Notify.MinSeverity)))
	}
	for _, s := range subs {
		if err := b.Subscribe(s); err != nil {
			return nil, fmt.Errorf("subscribe %s: %w", s.Name(), err)
		}
	}

	deps := server.Deps{
		Logger:     l,
		Monitor:    monitor,
		Bus:        b,
		Cache:      c,
		Hub:        hub,
		Handlers:   handlers,
		ClickHouse: chClient,
		Producer:   producer,
		Queue:      q,
	}
	if stream != nil {
		deps.Stream = stream
	}
	if consumer != nil {
		deps.Consumer = consumer
		deps.Commands = commands
	}
	return server.New(cfg, deps), nil
}
