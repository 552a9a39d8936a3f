package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/nbeldi/medossier/internal/config"
	"github.com/nbeldi/medossier/internal/db"
	"github.com/nbeldi/medossier/internal/server"
	"github.com/nbeldi/medossier/internal/services"
	"github.com/nbeldi/medossier/internal/storage"
)

var (
	migrateOnlyFlag = flag.Bool("migrate-only", false, "Run DB migrations and exit")
	seedOnlyFlag    = flag.Bool("seed-only", false, "Run DB seed and exit")
)

func main() {
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()

	dbConn, err := db.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if *migrateOnlyFlag {
		if err := runMigrations(cfg, dbConn); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Migrations completed successfully")
		return
	}
	if *seedOnlyFlag {
		if err := db.Seed(dbConn); err != nil {
			log.Fatalf("Seeding failed: %v", err)
		}
		log.Println("Seeding completed successfully")
		return
	}

	if err := runMigrations(cfg, dbConn); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	if cfg.App.Seed {
		if err := db.Seed(dbConn); err != nil {
			log.Fatalf("Seeding failed: %v", err)
		}
	}

	store, err := storage.NewDiskStore(cfg.Files.Dir)
	if err != nil {
		log.Fatalf("Failed to open attachment store: %v", err)
	}

	var assigner services.ControllerAssigner = services.FirstAvailableAssigner{}
	if cfg.App.Assigner == "round_robin" {
		assigner = services.NewRoundRobinAssigner()
	}

	handler := server.New(server.Deps{DB: dbConn, Assigner: assigner, Store: store})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s (dev=%v)", cfg.Server.Port, cfg.App.Dev)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
	log.Println("Server stopped gracefully")
}

// runMigrations runs versioned SQL migrations when MIGRATIONS=1,
// AutoMigrate otherwise.
func runMigrations(cfg *config.Config, conn *gorm.DB) error {
	if cfg.App.Migrations {
		return db.MigrateSQL(cfg.Database.URL())
	}
	return db.Migrate(conn)
}
