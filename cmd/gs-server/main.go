package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gameshelf/internal/davfs"
	"gameshelf/internal/library"
	"gameshelf/internal/server"
	"gameshelf/internal/shared"
	"gameshelf/internal/titledb"
)

func main() {
	configPath := flag.String("config", "./gameshelf.json", "path to server config json")
	noScan := flag.Bool("no-scan", false, "skip the startup library scan")
	flag.Parse()

	cfg, err := shared.LoadServerConfig(*configPath)
	if errors.Is(err, os.ErrNotExist) {
		log.Printf("config %s not found, writing defaults", *configPath)
		cfg = shared.DefaultServerConfig()
		if err := shared.SaveServerConfig(*configPath, cfg); err != nil {
			log.Printf("could not write default config: %v", err)
		}
	} else if err != nil {
		log.Fatalf("failed to load config %s: %v", *configPath, err)
	}

	// Env overrides win over the file
	if v := os.Getenv("GS_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("GS_ROM_DIR"); v != "" {
		cfg.RomDirs = filepath.SplitList(v)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	// Ensure DB directory exists
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "." && dbDir != "" {
		if err := os.MkdirAll(dbDir, 0o700); err != nil {
			log.Fatalf("failed to create db dir %s: %v", dbDir, err)
		}
	}

	db, err := library.OpenDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open db %s: %v", cfg.DBPath, err)
	}
	defer db.Close()

	if err := library.RunMigrations(db); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}
	store := library.NewSQLiteStore(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !*noScan {
		res, err := library.Scan(ctx, store, cfg.RomDirs)
		if err != nil {
			log.Fatalf("initial scan failed: %v", err)
		}
		log.Printf("startup scan: %d titles, %d updates, %d skipped, %d pruned", res.Titles, res.Updates, res.Skipped, res.Pruned)
	}

	api := &server.API{
		Library:  store,
		Scanner:  store,
		Queue:    store,
		Metadata: store,
		RomDirs:  cfg.RomDirs,
		StateDir: cfg.StateDir,
		UserName: cfg.UserName,
	}
	if cfg.TitleDB.URL != "" {
		api.TitleDB = titledb.New(titledb.Config{
			URL:      cfg.TitleDB.URL,
			DeviceID: cfg.TitleDB.DeviceID,
			Firmware: cfg.TitleDB.Firmware,
			Timeout:  time.Duration(cfg.TitleDB.TimeoutSeconds) * time.Second,
		})
	}

	if cfg.DAVListen != "" {
		dav := &http.Server{Addr: cfg.DAVListen, Handler: davfs.Handler(cfg.RomDirs)}
		go func() {
			log.Printf("webdav listening on %s", cfg.DAVListen)
			if err := dav.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("webdav: %v", err)
			}
		}()
		defer dav.Close()
	}

	srv := &server.Server{
		Addr:        cfg.Addr(),
		API:         api,
		MaxConns:    cfg.MaxConns,
		IdleTimeout: cfg.IdleTimeout(),
	}
	log.Printf("gs-server %s listening on %s", server.Version, srv.Addr)
	log.Printf("db: %s", cfg.DBPath)
	log.Printf("roms: %v", cfg.RomDirs)

	if err := srv.ListenAndServe(ctx); err != nil {
		log.Fatalf("serve: %v", err)
	}
	log.Printf("gs-server stopped")
}
