package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pharmastore/backend/internal/audit"
	"pharmastore/backend/internal/cloudsync"
	"pharmastore/backend/internal/config"
	"pharmastore/backend/internal/httpapi"
	"pharmastore/backend/internal/inventory"
	"pharmastore/backend/internal/ledger"
	"pharmastore/backend/internal/storage"
	"pharmastore/backend/internal/users"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 2)

	var store storage.Store
	switch {
	case cfg.DatabaseURL != "":
		pg, err := storage.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		store = pg
		closers = append(closers, pg.Close)
		log.Println("storage: postgres")
	case cfg.DataFile != "":
		f, err := storage.NewFile(cfg.DataFile)
		if err != nil {
			log.Fatalf("cannot open data file %s: %v", cfg.DataFile, err)
		}
		store = f
		log.Printf("storage: file (%s)", cfg.DataFile)
	default:
		store = storage.NewMemory()
		log.Println("storage: in-memory (data is lost on exit; set DATA_FILE or DATABASE_URL)")
	}

	inv, err := inventory.New(ctx, store)
	if err != nil {
		log.Fatalf("inventory: %v", err)
	}
	led, err := ledger.New(ctx, store, inv)
	if err != nil {
		log.Fatalf("ledger: %v", err)
	}
	usr, err := users.New(ctx, store)
	if err != nil {
		log.Fatalf("users: %v", err)
	}
	trail, err := audit.New(ctx, store)
	if err != nil {
		log.Fatalf("audit: %v", err)
	}

	var remote cloudsync.Remote
	if cfg.RedisAddr != "" {
		redisRemote := cloudsync.NewRedisRemote(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisRemote.Ping(ctx); err != nil {
			log.Printf("remote store unreachable at startup (%v); sync will retry on schedule", err)
		}
		remote = redisRemote
		closers = append(closers, redisRemote.Close)
		log.Println("remote store: redis")
	} else {
		log.Println("remote store: none (cloud sync not configured)")
	}

	collections := cloudsync.DefaultCollections(inv, led, usr, trail)
	syncer := cloudsync.New(ctx, remote, store, collections, time.Duration(cfg.SyncIntervalMinutes)*time.Minute)

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	if remote != nil {
		go syncer.Run(runCtx)
		if cfg.SyncRealtime {
			if err := syncer.StartSubscriptions(runCtx); err != nil {
				log.Printf("realtime sync unavailable: %v", err)
			}
		}
	}

	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, usr)
	api := httpapi.New(inv, led, usr, trail, syncer, store, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("pharmastore backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	stop()
	syncer.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
