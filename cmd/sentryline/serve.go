package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sentryline/config"
	"sentryline/internal/ack"
	"sentryline/internal/analytics"
	"sentryline/internal/api"
	"sentryline/internal/hub"
	"sentryline/internal/ingest"
	inputredis "sentryline/internal/input/redis"
	"sentryline/internal/logger"
	"sentryline/internal/metrics"
	"sentryline/internal/mirror"
	"sentryline/internal/output/notifyjson"
	"sentryline/internal/pipeline"
	"sentryline/internal/rules"
	"sentryline/internal/store"
	"sentryline/internal/syncstate"
	"sentryline/internal/zones"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()
	sl := cfg.Sentryline

	logger.Infof("Sentryline starting")
	if configPath != "" {
		logger.Infof("Config loaded from: %s", configPath)
	}

	db, err := openStore(sl.Store)
	if err != nil {
		return err
	}
	defer db.Close()

	var m *metrics.Metrics
	if sl.Metrics.Enabled {
		m = metrics.New()
	}

	hubCfg := hub.Config{
		HeartbeatInterval: sl.Hub.HeartbeatInterval,
		BufferSize:        sl.Hub.BufferSize,
		HealthCheck: func() bool {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return db.Ping(ctx) == nil
		},
		Observer: m,
	}
	if sl.Hub.Journal.Enabled {
		w, err := notifyjson.NewWriter(sl.Hub.Journal.File.Path)
		if err != nil {
			return fmt.Errorf("failed to create notification journal: %w", err)
		}
		hubCfg.Journal = w
		logger.Infof("Notification journal: %s", sl.Hub.Journal.File.Path)
	}
	h := hub.New(hubCfg)
	h.Start()
	defer h.Stop()

	ledger := openLedger(sl.SyncState)
	if ledger != nil {
		defer ledger.Close()
	}
	syncer, err := newSyncer(sl.Mirror, db, ledger, m)
	if err != nil {
		return err
	}

	registry := zones.NewRegistry(db, syncer, h)
	defer registry.Flush()

	engine, err := loadRules(sl.Rules)
	if err != nil {
		return err
	}

	agg := analytics.NewAggregator(db)
	ingestor := ingest.NewService(db, h, agg, ingest.Config{
		Rules:       engine,
		StatsWindow: sl.Analytics.StatsWindow,
		Observer:    m,
	})

	serverCfg := api.Config{
		Mode:            sl.Server.Mode,
		Ingestor:        ingestor,
		Queries:         db,
		Responder:       ack.NewManager(db, h),
		Zones:           registry,
		Resyncer:        syncer,
		Analytics:       agg,
		Hub:             h,
		DefaultCellSize: sl.Analytics.HeatmapCellSize,
	}
	if ledger != nil {
		serverCfg.Ledger = ledger
	}
	if m != nil {
		serverCfg.Metrics = m.Handler()
		serverCfg.MetricsPath = sl.Metrics.Path
	}
	srv := &http.Server{
		Addr:         sl.Server.Addr,
		Handler:      api.NewServer(serverCfg).Handler(),
		ReadTimeout:  sl.Server.ReadTimeout,
		WriteTimeout: sl.Server.WriteTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var intake *pipeline.IntakePipeline
	if sl.Intake.Enabled {
		consumer, err := inputredis.NewConsumer(inputredis.Config{
			Addr:         sl.Intake.Redis.Addr,
			Password:     sl.Intake.Redis.Password,
			DB:           sl.Intake.Redis.DB,
			Key:          sl.Intake.Redis.Key,
			BlockTimeout: sl.Intake.Redis.BlockTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to create Redis consumer: %w", err)
		}
		if err := consumer.Ping(ctx); err != nil {
			logger.Warnf("Redis intake not reachable yet: %v", err)
		}
		intake = pipeline.NewIntakePipeline(consumer, ingestor, sl.Intake.Workers)
		go func() {
			if err := intake.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Errorf("Intake pipeline error: %v", err)
			}
		}()
		logger.Infof("Redis intake: %s key=%s workers=%d", sl.Intake.Redis.Addr, sl.Intake.Redis.Key, sl.Intake.Workers)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP server listening on %s", sl.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Infof("Received %s, shutting down", sig)
	case err := <-errCh:
		logger.Errorf("HTTP server failed: %v", err)
		return err
	}

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), sl.Server.ShutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Error shutting down HTTP server: %v", err)
	}
	if intake != nil {
		if err := intake.Close(); err != nil {
			logger.Errorf("Error closing intake pipeline: %v", err)
		}
	}

	logger.Infof("Sentryline stopped")
	return nil
}

func runResync(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()
	sl := cfg.Sentryline

	if strings.TrimSpace(sl.Mirror.URL) == "" {
		return fmt.Errorf("mirror url is not configured; set sentryline.mirror.url or PERCEPTION_URL")
	}

	db, err := openStore(sl.Store)
	if err != nil {
		return err
	}
	defer db.Close()

	ledger := openLedger(sl.SyncState)
	if ledger != nil {
		defer ledger.Close()
	}
	syncer, err := newSyncer(sl.Mirror, db, ledger, nil)
	if err != nil {
		return err
	}

	res, err := syncer.Resync(cmd.Context())
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	if len(res.Failed) > 0 {
		return fmt.Errorf("%d of %d zones failed to sync", len(res.Failed), len(res.Failed)+len(res.Succeeded))
	}
	return nil
}

func openStore(cfg config.StoreConfig) (*store.Store, error) {
	db, err := store.Open(store.Config{
		Driver:       cfg.Driver,
		DSN:          cfg.DSN,
		MaxOpenConns: cfg.MaxOpenConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	logger.Infof("Store: %s", cfg.Driver)
	return db, nil
}

// openLedger returns nil when the ledger is disabled or unreachable.
func openLedger(cfg config.SyncStateConfig) *syncstate.RedisStore {
	if !cfg.Enabled {
		return nil
	}
	ledger, err := syncstate.NewRedisStore(syncstate.RedisConfig{
		Addr:      cfg.Redis.Addr,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		KeyPrefix: cfg.Redis.KeyPrefix,
	})
	if err != nil {
		logger.Warnf("Sync-state ledger disabled: %v", err)
		return nil
	}
	logger.Infof("Sync-state ledger: %s prefix=%s", cfg.Redis.Addr, cfg.Redis.KeyPrefix)
	return ledger
}

func newSyncer(cfg config.MirrorConfig, db *store.Store, ledger *syncstate.RedisStore, m *metrics.Metrics) (*mirror.Syncer, error) {
	var client mirror.Client
	if strings.TrimSpace(cfg.URL) == "" {
		logger.Warnf("Mirror url is empty; zone changes stay local")
	} else {
		c, err := mirror.NewHTTPClient(mirror.Config{
			URL:     cfg.URL,
			Timeout: cfg.Timeout,
			Headers: cfg.Headers,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create mirror client: %w", err)
		}
		client = c
		logger.Infof("Zone mirror: %s timeout=%s", cfg.URL, cfg.Timeout)
	}

	syncCfg := mirror.SyncerConfig{Timeout: cfg.Timeout}
	if ledger != nil {
		syncCfg.Recorder = ledger
	}
	if m != nil {
		syncCfg.Observer = m
	}
	return mirror.NewSyncer(client, db, syncCfg), nil
}

func loadRules(cfg config.RulesConfig) (rules.Engine, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if strings.TrimSpace(cfg.Path) == "" {
		logger.Warnf("Rules enabled but rules.path is empty; alert tagging disabled")
		return nil, nil
	}
	tagger, report, err := rules.LoadSigmaTagger(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load Sigma rules from %s: %w", cfg.Path, err)
	}
	logger.Infof("Sigma rules loaded: loaded=%d files=%d invalid=%d foreign_source=%d unsupported=%d",
		report.Loaded,
		report.Files,
		report.Count(rules.SkipInvalid),
		report.Count(rules.SkipForeignSource),
		report.Count(rules.SkipUnsupported),
	)
	if report.Loaded == 0 {
		logger.Warnf("No compatible Sigma rules loaded; alert tagging is effectively disabled")
	}
	return tagger, nil
}
