package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auditchain/internal/anchoring"
	"auditchain/internal/auth"
	"auditchain/internal/config"
	"auditchain/internal/contentstore"
	"auditchain/internal/health"
	"auditchain/internal/httpapi"
	"auditchain/internal/journal"
	"auditchain/internal/ledger"
	"auditchain/pkg/logger"
	"auditchain/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
)

const uploadCapTTL = 2 * time.Minute

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Error(".env load failed", "err", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	store, err := newStore(cfg)
	if err != nil {
		log.Error("content store init failed", "err", err)
		os.Exit(1)
	}
	led, err := newLedger(cfg)
	if err != nil {
		log.Error("ledger init failed", "err", err)
		os.Exit(1)
	}
	log.Info("backends configured", "store", store.Name(), "ledger", led.Name())

	var attempts journal.Repository = journal.NewMemoryRepo()
	if cfg.HasDB() {
		db, err := openJournalDB(rootCtx, cfg)
		if err != nil {
			log.Error("postgres init failed", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		repo := journal.NewPostgresRepo(db)
		if err := repo.EnsureSchema(rootCtx); err != nil {
			log.Error("journal schema failed", "err", err)
			os.Exit(1)
		}
		attempts = repo
	}

	var limiter httpapi.Limiter
	if cfg.HasRedis() {
		rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		limiter, err = newUploadCap(rdb, cfg.App.UploadConcurrencyLimit)
		if err != nil {
			log.Error("upload cap init failed", "err", err)
			os.Exit(1)
		}
	}

	h := httpapi.Handlers{
		Anchor:         anchoring.NewOrchestrator(store, led, attempts),
		Status:         anchoring.NewStatusUpdater(led),
		Ledger:         led,
		Prober:         health.NewProber(store, led),
		MaxUploadBytes: cfg.App.MaxUploadBytes,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	registerRoutes(r, h, auth.RequireAccessToken(authManager), httpapi.UploadCap(limiter))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		// Uploads wait on the store (30s) then the ledger (10s).
		WriteTimeout: cfg.Store.Timeout + cfg.Ledger.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}

func newStore(cfg config.Config) (contentstore.Store, error) {
	if cfg.Store.Backend == config.BackendMemory {
		return contentstore.NewMemoryStore(cfg.Store.GatewayURL), nil
	}
	return contentstore.NewPinataClient(cfg.Store, &http.Client{})
}

func newLedger(cfg config.Config) (ledger.Ledger, error) {
	if cfg.Ledger.Backend == config.BackendMemory {
		return ledger.NewMemoryLedger(), nil
	}
	return ledger.NewFireFlyClient(cfg.Ledger, &http.Client{})
}

func openJournalDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	return utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
}

func newUploadCap(rdb *redis.Client, limit int) (httpapi.Limiter, error) {
	return utils.NewConcurrencyCap(rdb, "auditchain:upload:", limit, uploadCapTTL)
}
