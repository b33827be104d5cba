// Sweeper periodically deletes sessions whose deadline passed more than
// SESSION_RETENTION ago, together with their consumed-fetch records. Expiry
// itself needs no writes (reads coerce to the expired state); the sweeper
// only reclaims storage.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"attex-trustcore/internal/config"
	"attex-trustcore/internal/db"
	"attex-trustcore/internal/session/repository"
	teleotel "attex-trustcore/internal/telemetry/otel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("sweeper: DATABASE_URL is required")
	}

	sqlDB, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer sqlDB.Close()

	providers, err := teleotel.NewProviders(context.Background(), cfg.OTLPEndpoint, "attex-trustcore-sweeper", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	repo := repository.NewPostgresRepository(sqlDB)
	retention := cfg.SessionRetention()
	interval := cfg.SweepInterval()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("sweeper: shutting down...")
		cancel()
	}()

	log.Printf("sweeper: deleting sessions expired for more than %s every %s", retention, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		sweepCtx, sweepCancel := context.WithTimeout(ctx, time.Minute)
		n, err := repo.DeleteExpired(sweepCtx, retention)
		sweepCancel()
		if err != nil {
			log.Printf("sweeper: sweep failed: %v", err)
		} else if n > 0 {
			log.Printf("sweeper: removed %d expired sessions", n)
		}

		select {
		case <-ctx.Done():
			log.Println("sweeper: stopped")
			return
		case <-ticker.C:
		}
	}
}
