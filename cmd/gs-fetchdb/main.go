package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"gameshelf/internal/library"
	"gameshelf/internal/shared"
	"gameshelf/internal/titledb"
)

func main() {
	configPath := flag.String("config", "./gameshelf.json", "path to server config json")
	url := flag.String("url", "", "titledb feed url (overrides config)")
	flag.Parse()

	cfg, err := shared.LoadServerConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if *url != "" {
		cfg.TitleDB.URL = *url
	}
	if cfg.TitleDB.URL == "" {
		log.Fatal("no titledb url: set titledb.url in the config or pass -url")
	}

	db, err := library.OpenDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open db %s: %v", cfg.DBPath, err)
	}
	defer db.Close()
	if err := library.RunMigrations(db); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c := titledb.New(titledb.Config{
		URL:      cfg.TitleDB.URL,
		DeviceID: cfg.TitleDB.DeviceID,
		Firmware: cfg.TitleDB.Firmware,
		Timeout:  time.Duration(cfg.TitleDB.TimeoutSeconds) * time.Second,
	})
	n, err := c.Refresh(ctx, library.NewSQLiteStore(db))
	if err != nil {
		log.Fatalf("refresh failed: %v", err)
	}
	log.Printf("gs-fetchdb: updated %d rows from %s", n, cfg.TitleDB.URL)
}
