package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/nurpe/marketplace-ledger/internal/auth"
	"github.com/nurpe/marketplace-ledger/internal/cache"
	"github.com/nurpe/marketplace-ledger/internal/config"
	"github.com/nurpe/marketplace-ledger/internal/db"
	"github.com/nurpe/marketplace-ledger/internal/excel"
	httphandler "github.com/nurpe/marketplace-ledger/internal/http"
	"github.com/nurpe/marketplace-ledger/internal/http/middleware"
	"github.com/nurpe/marketplace-ledger/internal/logger"
	"github.com/nurpe/marketplace-ledger/internal/pdf"
	"github.com/nurpe/marketplace-ledger/internal/repository"
	"github.com/nurpe/marketplace-ledger/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Environment)

	database, err := db.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}

	reportCache, closeCache := newReportCache(cfg, log)
	defer closeCache()

	profileRepo := repository.NewProfileRepository(database)
	ledgerRepo := repository.NewLedgerRepository(database)
	contractRepo := repository.NewContractRepository(database)
	reportRepo := repository.NewReportRepository(database)

	ledgerService := service.NewLedgerService(ledgerRepo, reportCache, cfg.Ledger.DepositCapRatio, log)
	contractService := service.NewContractService(contractRepo, pdf.NewGenerator())
	reportService := service.NewReportService(reportRepo, reportCache, excel.NewGenerator(), log)

	var resolver auth.Resolver
	switch cfg.Auth.Mode {
	case config.AuthModeJWT:
		resolver = auth.NewJWTResolver(cfg.Auth.AccessSecret, profileRepo)
	default:
		resolver = auth.NewHeaderResolver(profileRepo)
	}

	handler := httphandler.NewHandler(ledgerService, contractService, reportService, log)
	identity := middleware.Identity(resolver, log)
	router := httphandler.NewRouter(handler, identity, cfg.Environment, cfg.HTTP.AllowedOrigins, log)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	if err := serve(addr, router, log); err != nil {
		log.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}

func newReportCache(cfg *config.Config, log zerolog.Logger) (service.ReportCache, func()) {
	if cfg.Redis.Addr == "" {
		log.Info().Msg("report cache disabled")
		return cache.Noop{}, func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable, report cache disabled")
		_ = client.Close()
		return cache.Noop{}, func() {}
	}

	log.Info().Str("addr", cfg.Redis.Addr).Dur("ttl", cfg.Redis.ReportCacheTTL).Msg("report cache enabled")
	return cache.NewRedisReportCache(client, cfg.Redis.ReportCacheTTL), func() { _ = client.Close() }
}

func serve(addr string, router *gin.Engine, log zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("starting ledger service")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
