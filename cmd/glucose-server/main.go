package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/glucose.report/internal/api"
	"github.com/banshee-data/glucose.report/internal/config"
	"github.com/banshee-data/glucose.report/internal/db"
	"github.com/banshee-data/glucose.report/internal/fsutil"
	"github.com/banshee-data/glucose.report/internal/model"
	"github.com/banshee-data/glucose.report/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to a JSON or YAML tuning file (empty uses built-in defaults)")
	envPath     = flag.String("env", ".env", "Optional .env file with GLUCOSE_* overrides")
	listen      = flag.String("listen", "", "Listen address (overrides config)")
	dbPath      = flag.String("db", "", "SQLite database path (overrides config)")
	modelDir    = flag.String("models", "", "Directory holding trained model artifacts (overrides config)")
	noDB        = flag.Bool("no-db", false, "Serve predictions only, without the event store")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println("glucose-server", version.String())
		return
	}

	cfg, err := config.Resolve(*configPath, *envPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	overrides(cfg)

	svc := model.NewService(cfg.Params(), cfg.Limits(), cfg.GetHorizons())
	loaded := svc.LoadDir(fsutil.OSFileSystem{}, cfg.GetModelDir())
	log.Printf("loaded %d of %d models from %s", loaded, len(svc.Predictors()), cfg.GetModelDir())

	var store *db.DB
	if !*noDB {
		store, err = db.NewDB(cfg.GetDBPath())
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer store.Close()
	}

	mux, err := newMux(svc, store, cfg.GetUnits())
	if err != nil {
		log.Fatalf("failed to mount routes: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              cfg.GetListen(),
		Handler:           api.LoggingMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}

// overrides applies command-line flags on top of file and environment
// settings.
func overrides(cfg *config.Config) {
	if *listen != "" {
		cfg.Listen = listen
	}
	if *dbPath != "" {
		cfg.DBPath = dbPath
	}
	if *modelDir != "" {
		cfg.ModelDir = modelDir
	}
}

// newMux mounts the API and, when a store is present, the /debug/ admin
// routes.
func newMux(svc *model.Service, store *db.DB, units string) (*http.ServeMux, error) {
	mux := api.NewServer(svc, store, units).ServeMux()
	if store != nil {
		if err := store.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	}
	return mux, nil
}
