package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"QuantWatch/internal/handler/ws"
	"QuantWatch/internal/service/bus"
	"QuantWatch/internal/service/finnhub"
	"QuantWatch/internal/usecase"
	"QuantWatch/pkg/cache"
	pkgch "QuantWatch/pkg/clickhouse"
	"QuantWatch/pkg/config"
	xhttp "QuantWatch/pkg/http"
	pkgkafka "QuantWatch/pkg/kafka"
	applogger "QuantWatch/pkg/logger"
	"QuantWatch/pkg/queue"
)

// Deps are the components App drives. Optional ones may be nil.
type Deps struct {
	Logger     *applogger.Logger
	Monitor    *usecase.Monitor
	Bus        *bus.Bus
	Cache      cache.Service
	Stream     *finnhub.Stream
	Hub        *ws.Hub
	Handlers   []xhttp.Handler
	Consumer   *pkgkafka.Consumer
	Commands   pkgkafka.MessageHandler
	Producer   *pkgkafka.Producer
	Queue      *queue.RedisQueue
	ClickHouse *pkgch.Client
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	deps       Deps
	log        *applogger.Logger
	httpServer *xhttp.Server
	cancel     context.CancelFunc
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, deps Deps) *App {
	l := deps.Logger
	if l == nil {
		l = applogger.Nop()
	}
	return &App{cfg: cfg, deps: deps, log: l}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		a.shutdown()
		return err
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	a.shutdown()
	return nil
}

// Start seeds the watch list and launches every background component.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)
	d := a.deps

	for _, raw := range a.cfg.Monitor.Symbols.All() {
		if _, err := d.Monitor.AddSymbol(raw, nil); err != nil {
			a.log.Warn("startup symbol skipped", applogger.String("symbol", raw), applogger.Error(err))
		}
	}

	if d.Stream != nil {
		go d.Stream.Run(ctx)
		a.log.Info("finnhub stream started")
	}
	if d.Hub != nil {
		go d.Hub.Run(ctx)
	}
	if d.Queue != nil {
		if err := d.Queue.Start(); err != nil {
			a.log.Error("notify queue start error", applogger.Error(err))
			return err
		}
	}
	if d.Consumer != nil && d.Commands != nil {
		d.Consumer.RegisterHandler(d.Commands)
		if err := d.Consumer.Start(); err != nil {
			a.log.Error("kafka consumer error", applogger.Error(err))
			return err
		}
		a.log.Info("symbol commands consumed", applogger.String("topic", d.Commands.Topic()))
	}

	if a.cfg.Monitor.AutoStart {
		if err := d.Monitor.Start(ctx); err != nil {
			return err
		}
	}

	a.httpServer = xhttp.NewServer(d.Handlers,
		xhttp.WithHost(a.cfg.Server.Host),
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(a.cfg.Server.CORS, a.cfg.WebSocket.AllowedOrigins...),
		xhttp.WithSlowRequest(a.cfg.Server.SlowRequest),
		xhttp.WithServerLogger(a.log),
	)
	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	a.log.Info("quantwatch started",
		applogger.String("env", a.cfg.Environment),
		applogger.String("source", a.cfg.Source.Type),
		applogger.Int("symbols", len(d.Monitor.Symbols())),
		applogger.Bool("running", d.Monitor.Running()),
	)
	return nil
}

// shutdown stops producers of work before their consumers: HTTP, then the
// engine, then the bus and its subscribers, then infrastructure clients.
func (a *App) shutdown() {
	a.log.Info("shutting down...")
	start := time.Now()
	d := a.deps

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}

	if d.Consumer != nil {
		if err := d.Consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	d.Monitor.Stop()
	if err := d.Monitor.Scheduler().Drain(ctx); err != nil {
		a.log.Warn("in-flight fetches not drained", applogger.Error(err))
	}

	// stream, hub and summary ticker exit on cancel
	if a.cancel != nil {
		a.cancel()
	}

	d.Bus.Close()

	if d.Queue != nil {
		if err := d.Queue.Stop(ctx); err != nil {
			a.log.Warn("notify queue stop error", applogger.Error(err))
		}
	}

	a.log.DetachCollector()

	if d.Producer != nil {
		if err := d.Producer.Close(); err != nil {
			a.log.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	if d.ClickHouse != nil {
		if err := d.ClickHouse.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if d.Cache != nil {
		if err := d.Cache.Close(); err != nil {
			a.log.Warn("cache close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete", applogger.Duration("took", time.Since(start)))
}
