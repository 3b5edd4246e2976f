package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/sync/errgroup"

	"github.com/levelbot/levelbot/internal/api"
	"github.com/levelbot/levelbot/internal/bot"
	"github.com/levelbot/levelbot/internal/config"
	"github.com/levelbot/levelbot/internal/events/kafka"
	"github.com/levelbot/levelbot/internal/identity"
	interfaces "github.com/levelbot/levelbot/internal/interfaces"
	"github.com/levelbot/levelbot/internal/leaderboard"
	"github.com/levelbot/levelbot/internal/ledger"
	"github.com/levelbot/levelbot/internal/metrics"
	"github.com/levelbot/levelbot/internal/models"
	"github.com/levelbot/levelbot/internal/progression"
	"github.com/levelbot/levelbot/internal/ratelimit"
	"github.com/levelbot/levelbot/internal/storage"
	boltstore "github.com/levelbot/levelbot/internal/storage/bolt"
	"github.com/levelbot/levelbot/internal/storage/file"
	"github.com/levelbot/levelbot/internal/storage/memory"
	"github.com/levelbot/levelbot/internal/storage/postgres"
	"github.com/levelbot/levelbot/internal/voice"
)

const shutdownTimeout = 10 * time.Second

// OpenStore opens the table backend named by cfg.Driver.
func OpenStore(ctx context.Context, cfg config.StorageConfig) (interfaces.TableStore, error) {
	switch cfg.Driver {
	case "file":
		return file.NewFileTableStore(cfg.Dir)
	case "memory":
		return memory.NewMemoryTableStore(), nil
	case "bolt":
		return boltstore.NewBoltTableStore(cfg.BoltPath, &bolt.Options{Timeout: time.Second})
	case "postgres":
		return postgres.Open(ctx, cfg.PostgresDSN)
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

// App is the fully wired bot.
type App struct {
	Config    *config.Config
	Log       *logrus.Logger
	Store     interfaces.TableStore
	Bot       *bot.Bot
	Directory *identity.Directory
	Handler   http.Handler

	limiter   *ratelimit.Limiter
	publisher *kafka.Publisher
	consumer  *kafka.Consumer
}

func New(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*App, error) {
	store, err := OpenStore(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Driver, err)
	}
	m := metrics.Bot()

	progTable := storage.NewTable[models.ProgressionRecord](storage.ProgressionTable, store, log, m)
	voiceTable := storage.NewTable[models.VoiceRecord](storage.VoiceTable, store, log, m)
	ledgerTable := storage.NewTable[models.LedgerAccount](storage.LedgerTable, store, log, m)

	limiter := ratelimit.NewLimiter(cfg.Progression.RateLimit, cfg.Progression.RateWindow)
	engine := progression.NewEngine(progTable, limiter, progression.Options{
		BaseXP:     cfg.Progression.BaseXP,
		Jitter:     cfg.Progression.Jitter,
		MinXP:      cfg.Progression.MinXP,
		XPPerLevel: cfg.Progression.XPPerLevel,
	}, log, m)

	directory := identity.NewDirectory(identity.Options{
		APIBase:           cfg.Identity.APIBase,
		Token:             cfg.Identity.Token,
		CacheTTL:          cfg.Identity.CacheTTL,
		RequestsPerSecond: cfg.Identity.RequestsPerSecond,
	}, log)

	a := &App{
		Config:    cfg,
		Log:       log,
		Store:     store,
		Directory: directory,
		limiter:   limiter,
	}

	deps := bot.Deps{
		Progression: engine,
		Voice:       voice.NewTracker(voiceTable, log, m),
		Ledger:      ledger.NewLedger(ledgerTable, cfg.Economy.BegMax, log, m),
		Boards:      leaderboard.NewBuilder(directory, cfg.Leaderboard.PageSize, log, m),
		Directory:   directory,
	}
	if cfg.Kafka.Enabled() {
		a.publisher = kafka.NewPublisher(cfg.Kafka.Brokers)
		deps.Publisher = a.publisher
	}

	a.Bot = bot.New(deps, bot.Options{
		CommandPrefix:  cfg.Bot.CommandPrefix,
		ChannelID:      cfg.Bot.ChannelID,
		LevelUpTopic:   cfg.Kafka.LevelUpTopic,
		BegCooldown:    cfg.Economy.BegCooldown,
		SessionTimeout: cfg.Leaderboard.SessionTimeout,
	}, log)

	if cfg.Kafka.Enabled() {
		a.consumer = kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic, cfg.Kafka.GroupID, a.Bot, log)
	}
	a.Handler = api.NewRouter(a.Bot, log)

	log.WithFields(logrus.Fields{
		"storage": cfg.Storage.Driver,
		"kafka":   cfg.Kafka.Enabled(),
		"channel": cfg.Bot.ChannelID,
	}).Info("levelbot initialised")
	return a, nil
}

// Run serves HTTP, consumes chat events and runs the background sweepers
// until ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:              a.Config.HTTP.Addr,
		Handler:           a.Handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		a.Log.WithField("addr", srv.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if a.consumer != nil {
		g.Go(func() error {
			a.Log.WithField("topic", a.Config.Kafka.EventsTopic).Info("consuming chat events")
			return a.consumer.Run(ctx)
		})
	}

	g.Go(func() error {
		a.Bot.Pages().Run(ctx)
		return nil
	})
	g.Go(func() error {
		a.sweepRateWindows(ctx)
		return nil
	})

	return g.Wait()
}

// sweepRateWindows drops rate-limit windows nobody has touched for two
// windows, along with expired command cooldowns.
func (a *App) sweepRateWindows(ctx context.Context) {
	window := a.Config.Progression.RateWindow
	ticker := time.NewTicker(window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := a.limiter.Cleanup(now, 2*window); n > 0 {
				a.Log.WithField("count", n).Debug("dropped idle rate windows")
			}
			if n := a.Bot.SweepCooldowns(now); n > 0 {
				a.Log.WithField("count", n).Debug("dropped expired cooldowns")
			}
		}
	}
}

// Close flushes running voice sessions and releases every backend.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.Bot.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush voice sessions: %w", err))
	}
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close consumer: %w", err))
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if err := a.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close storage: %w", err))
	}
	return errors.Join(errs...)
}
