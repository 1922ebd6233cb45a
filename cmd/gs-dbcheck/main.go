package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"gameshelf/internal/library"
)

func main() {
	dbPath := flag.String("db", os.Getenv("GS_DB_PATH"), "catalog database (default $GS_DB_PATH or ./data/gameshelf.db)")
	flag.Parse()
	if *dbPath == "" {
		*dbPath = "./data/gameshelf.db"
	}
	if _, err := os.Stat(*dbPath); err != nil {
		log.Fatalf("dbcheck: %v", err)
	}

	db, err := library.OpenDB(*dbPath)
	if err != nil {
		log.Fatalf("dbcheck: open %s: %v", *dbPath, err)
	}
	defer db.Close()

	applied, err := library.AppliedMigrations(db)
	if err != nil {
		log.Fatalf("dbcheck: no schema in %s (start gs-server once): %v", *dbPath, err)
	}
	fmt.Printf("catalog %s\n", *dbPath)
	fmt.Println("schema:")
	for _, name := range applied {
		fmt.Println("  ", name)
	}

	ctx := context.Background()
	store := library.NewSQLiteStore(db)
	titles, updates, jobs, err := store.Counts(ctx)
	if err != nil {
		log.Fatalf("dbcheck: counts: %v", err)
	}
	items, err := store.Items(ctx)
	if err != nil {
		log.Fatalf("dbcheck: items: %v", err)
	}
	onDisk := 0
	for i := range items {
		if items[i].Downloaded() {
			onDisk++
		}
	}
	fmt.Printf("titles:  %d (%d with a file on disk)\n", titles, onDisk)
	fmt.Printf("updates: %d\n", updates)
	fmt.Printf("queued:  %d\n", jobs)
}
