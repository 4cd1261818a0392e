package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"holder-rewards/internal/alerting"
	"holder-rewards/internal/config"
	"holder-rewards/internal/ledger"
	"holder-rewards/internal/loyalty"
	"holder-rewards/internal/oracle"
	"holder-rewards/internal/scheduler"
	"holder-rewards/internal/server"
	"holder-rewards/internal/service"
	"holder-rewards/internal/storage"
	"holder-rewards/internal/vault"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, errors.New("database.dsn not configured")
	}

	if a.Config.Database.Migrate {
		if err := storage.Migrate(a.Config.Database); err != nil {
			return nil, nil, err
		}
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newLedger() *ledger.Client {
	return ledger.NewClient(ledger.Options{
		RPCURL:       a.Config.Solana.RPCURL,
		Commitment:   a.Config.Solana.Commitment,
		Timeout:      a.Config.Solana.RequestTimeout,
		RateLimitRPS: a.Config.Solana.RateLimitRPS,
	}, a.Logger)
}

func (a *App) newVault() *vault.Client {
	return vault.NewClient(vault.Options{
		BaseURL:   a.Config.Vault.BaseURL,
		APIKey:    a.Config.Vault.APIKey,
		Timeout:   a.Config.Vault.RequestTimeout,
		UserAgent: a.Config.Vault.UserAgent,
	}, a.Logger)
}

func (a *App) newOracle() oracle.PriceSource {
	cfg := a.Config.Oracle
	if cfg.BaseURL == "" && cfg.FallbackPriceUSD <= 0 {
		return nil
	}
	return oracle.NewClient(oracle.Options{
		BaseURL:     cfg.BaseURL,
		Symbol:      cfg.PriceSymbol,
		FallbackUSD: decimal.NewFromFloat(cfg.FallbackPriceUSD),
		Timeout:     cfg.RequestTimeout,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) newService(store *storage.Store) *service.Service {
	feeVault := a.newVault()
	return service.New(a.Config, service.Deps{
		Settings:      store,
		Claims:        store,
		Snapshots:     store,
		Distributions: store,
		Payouts:       store,
		Locker:        store,
		Ledger:        a.newLedger(),
		FeeSource:     feeVault,
		Transfers:     feeVault,
		Evaluator:     loyalty.NewEvaluator(store, a.Logger),
		Oracle:        a.newOracle(),
		Notifier:      a.newNotifier(),
	}, a.Logger)
}

// Run executes the long-running claim daemon: the claim scheduler plus the
// admin HTTP API, until interrupted.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := a.newService(store)
	sched := scheduler.New(scheduler.Options{
		PollInterval: a.Config.Scheduler.PollInterval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, svc, store, a.Logger)

	group, ctx := errgroup.WithContext(ctx)

	if a.Config.Scheduler.AutoStart {
		if err := sched.Start(ctx); err != nil {
			return err
		}
	} else {
		a.Logger.Info().Msg("scheduler.auto_start disabled; waiting for api start")
	}
	group.Go(func() error {
		<-ctx.Done()
		sched.Stop()
		return nil
	})

	if a.Config.Server.Enabled {
		srv := server.New(a.Config.Server, store, svc, sched, a.Logger)
		group.Go(srv.Start)
		group.Go(func() error {
			<-ctx.Done()
			grace := a.Config.Server.ShutdownGrace
			if grace <= 0 {
				grace = 10 * time.Second
			}
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), grace)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	a.Logger.Info().Msg("holder rewards daemon started")
	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("daemon terminated with error")
		return err
	}

	a.Logger.Info().Msg("holder rewards daemon stopped")
	return nil
}

// ExportOptions hold parameters for exporting claim history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// SettingsUpdate carries partial settings changes; nil fields keep the
// stored value.
type SettingsUpdate struct {
	Enabled                *bool
	ClaimIntervalMinutes   *int
	DistributionPercentage *decimal.Decimal
	MinClaimAmount         *decimal.Decimal
	FeeSourceAccount       *string
	TokenMintAddress       *string
	SellThresholdPercent   *decimal.Decimal
}
