package main

import (
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/kioku-app/kioku/internal/config"
	"github.com/kioku-app/kioku/internal/fsrs"
	"github.com/kioku-app/kioku/internal/storage"
	"github.com/kioku-app/kioku/internal/study"
	syncer "github.com/kioku-app/kioku/internal/sync"
	"github.com/kioku-app/kioku/internal/web"
)

func main() {
	flags := pflag.NewFlagSet("kioku", pflag.ExitOnError)
	configPath := flags.String("config", "", "Path to the YAML config file")
	flags.String("db", "kioku.db", "Path to the SQLite database file")
	flags.String("addr", "localhost:8484", "HTTP listen address")
	addSource := flags.String("add-source", "", "Register a card source (local path or git URL) and exit")
	addUser := flags.String("add-user", "", "Register a user and exit")
	runSync := flags.Bool("sync", false, "Reconcile all card sources and exit")
	flags.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath, flags)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := storage.Open(cfg.DB)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DB)

	registerSources(db, cfg.Sources)

	switch {
	case *addSource != "":
		registerSources(db, []string{*addSource})
		return
	case *addUser != "":
		if existing, err := db.FindUserByName(*addUser); err != nil {
			log.Fatalf("Failed to look up user %s: %v", *addUser, err)
		} else if existing != nil {
			slog.Info("user already exists", "name", *addUser, "id", existing.ID)
			return
		}
		id, err := db.InsertUser(*addUser, time.Now())
		if err != nil {
			log.Fatalf("Failed to add user %s: %v", *addUser, err)
		}
		slog.Info("user added", "name", *addUser, "id", id)
		return
	case *runSync:
		if err := syncer.Run(db); err != nil {
			log.Fatalf("Sync failed: %v", err)
		}
		return
	}

	model, err := fsrs.New(fsrs.Config{
		DesiredRetention: cfg.Scheduler.DesiredRetention,
		MaximumInterval:  cfg.Scheduler.MaximumInterval,
		LearningSteps:    cfg.Scheduler.LearningSteps,
		RelearningSteps:  cfg.Scheduler.RelearningSteps,
	})
	if err != nil {
		log.Fatalf("Invalid scheduler configuration: %v", err)
	}

	service := study.NewService(db, db, model)
	selector := study.NewSelector(db)
	server := web.NewServer(db, service, selector)

	slog.Info("listening", "addr", cfg.Addr)
	log.Fatal(http.ListenAndServe(cfg.Addr, server))
}

// registerSources inserts any sources not yet known to the database.
func registerSources(db *storage.DB, paths []string) {
	for _, path := range paths {
		existing, err := db.FindSourceByPath(path)
		if err != nil {
			log.Fatalf("Failed to look up source %s: %v", path, err)
		}
		if existing != nil {
			continue
		}
		sourceType := syncer.SourceType(path)
		id, err := db.InsertSource(path, sourceType)
		if err != nil {
			log.Fatalf("Failed to add source %s: %v", path, err)
		}
		slog.Info("source added", "path", path, "type", sourceType, "id", id)
	}
}
