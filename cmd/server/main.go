package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Kkocaoglan/IncomeExpense-sub000/internal/audit"
	"github.com/Kkocaoglan/IncomeExpense-sub000/internal/breaker"
	"github.com/Kkocaoglan/IncomeExpense-sub000/internal/config"
	"github.com/Kkocaoglan/IncomeExpense-sub000/internal/httpapi"
	"github.com/Kkocaoglan/IncomeExpense-sub000/internal/ocr"
	"github.com/Kkocaoglan/IncomeExpense-sub000/internal/store"
	"github.com/Kkocaoglan/IncomeExpense-sub000/internal/trust"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("server: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	pg, err := store.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pg.Close()

	if err := store.Migrate(pg.DB(), cfg.MigrationsURL); err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer rdb.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return err
	}

	engine, err := trust.New(cfg.Trust, pg, rdb, audit.NewJSONWriterSink(os.Stdout))
	if err != nil {
		return err
	}
	defer engine.Close()

	var ocrClient *ocr.Client
	if cfg.OCRBaseURL != "" {
		ocrClient = ocr.NewClient(ocr.Config{
			BaseURL: cfg.OCRBaseURL,
			APIKey:  cfg.OCRAPIKey,
			Timeout: 10 * time.Second,
			Breaker: breaker.DefaultConfig(),
		})
	}

	api := httpapi.NewServer(engine, rdb, ocrClient, cfg.Trust.Tokens.RefreshTTL)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("server: listening on %s", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-stop:
		log.Printf("server: received %s, shutting down", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}
