package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"

	"stockeye-telegram-bot/config"
	"stockeye-telegram-bot/internal/bus"
	"stockeye-telegram-bot/internal/dart"
	"stockeye-telegram-bot/internal/database"
	"stockeye-telegram-bot/internal/evaluator"
	"stockeye-telegram-bot/internal/ingestor"
	"stockeye-telegram-bot/internal/metrics"
	"stockeye-telegram-bot/internal/push"
	"stockeye-telegram-bot/internal/scheduler"
	"stockeye-telegram-bot/internal/server"
	"stockeye-telegram-bot/internal/telegram"
	"stockeye-telegram-bot/lib/translation"
)

const shutdownGrace = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	setupLogging(cfg)
	translation.Configure("locales", "ko")

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Fatalf("Invalid timezone %q: %v", cfg.Timezone, err)
	}

	store, err := database.Open(cfg.DBURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.LoadFromStore(ctx, store)

	var notificationBus bus.Bus
	if cfg.RedisURL != "" {
		notificationBus, err = bus.NewRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
	} else {
		log.Warn("REDIS_URL not set, using in-process notification bus")
		notificationBus = bus.NewMemory()
	}
	defer notificationBus.Close()

	bot, err := telegram.NewBot(telegram.BotConfig{
		Token: cfg.TelegramBotToken,
		Debug: cfg.Debug,
	})
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}

	dartClient := dart.NewClient(cfg.DisclosureAPIKey)
	eval := evaluator.New(store, notificationBus, cfg.BusTTL)
	ingest := ingestor.New(store, notificationBus, dartClient, 0, cfg.BusTTL)
	worker := push.New(notificationBus, store, bot, time.Second)

	sched := scheduler.New(loc)
	sched.SetNotifier(func(chatID int64, jobID, body string) {
		if err := notificationBus.Publish(context.Background(), bus.Key(chatID, jobID), body, cfg.BusTTL); err != nil {
			log.Errorf("failed to publish completion message for %s: %v", jobID, err)
		}
	})
	registerJobs(sched, cfg, store, dartClient, eval, ingest)

	go worker.Run(ctx)
	sched.Start()

	httpServer := &http.Server{
		Addr: fmt.Sprintf("%s:%d", cfg.APIHost, cfg.MetricsPort),
		Handler: server.NewRouter(server.Dependencies{
			Scheduler:   sched,
			AdminChatID: cfg.AdminChatID,
		}),
	}
	go func() {
		log.Infof("admin and metrics endpoint listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start admin server: %v", err)
		}
	}()

	go persistMetricsLoop(ctx, store)

	<-ctx.Done()
	log.Info("shutting down...")

	sched.Stop(shutdownGrace)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorf("admin server shutdown: %v", err)
	}

	metrics.SaveToStore(shutdownCtx, store)
	log.Info("shutdown complete")
}

func setupLogging(cfg config.Config) {
	log.SetLevel(log.InfoLevel)
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	log.Debug("starting stock alert service...")
}

func mustRegister(sched *scheduler.Scheduler, id, spec, description string, fn scheduler.JobFunc) {
	if err := sched.Register(id, spec, description, fn); err != nil {
		log.Fatalf("Failed to register job %s: %v", id, err)
	}
}

func registerJobs(sched *scheduler.Scheduler, cfg config.Config, store *database.Store, dartClient *dart.Client, eval *evaluator.Evaluator, ingest *ingestor.Ingestor) {
	evalSpec := fmt.Sprintf("@every %dm", int(cfg.AlertEval.Minutes()))
	mustRegister(sched, "alert-evaluate", evalSpec,
		"evaluate active price alerts against latest closes",
		func(ctx context.Context, _ scheduler.Params) (string, error) {
			return "", eval.Tick(ctx)
		})

	ingestSpec := fmt.Sprintf("@every %dm", int(cfg.DisclosurePoll.Minutes()))
	mustRegister(sched, "disclosure-ingest", ingestSpec,
		"poll the disclosure source for watched issuers",
		func(ctx context.Context, _ scheduler.Params) (string, error) {
			return "", ingest.Tick(ctx)
		})

	mustRegister(sched, "stock-catalogue-refresh", "0 8 * * *",
		"refresh issuer codes from the corporate identifier source",
		func(ctx context.Context, _ scheduler.Params) (string, error) {
			codes, err := dartClient.DownloadCorpCodes(ctx)
			if err != nil {
				return "", err
			}
			bySymbol := make(map[string]string, len(codes))
			for _, c := range codes {
				bySymbol[c.StockCode] = c.CorpCode
			}
			updated, err := store.UpdateStockCorpCodes(ctx, bySymbol)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s건 갱신", humanize.Comma(int64(updated))), nil
		})

	// Manual-only slot. OHLCV ingestion lives in an external collaborator;
	// the trigger surface still exposes the job so admins get a clear
	// completion message instead of a silent 404.
	mustRegister(sched, "market-data-refresh", "",
		"refresh daily prices for a date range (external price feed)",
		func(_ context.Context, p scheduler.Params) (string, error) {
			return "", fmt.Errorf("price feed not configured (requested %s..%s %s)",
				p.StartDate, p.EndDate, p.Symbol)
		})
}

func persistMetricsLoop(ctx context.Context, store *database.Store) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.SaveToStore(ctx, store)
		}
	}
}
