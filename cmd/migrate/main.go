package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"arlens/internal/repository/sqlite"
)

func main() {
	dbPath := flag.String("db", "data/history.db", "History database path")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: migrate [-db path] up|down|version\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		command = "up"
	}

	// Ensure database directory exists
	if err := os.MkdirAll(filepath.Dir(*dbPath), 0755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	db, err := sqlite.Open(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	switch command {
	case "up":
		if err := db.MigrateUp(); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		fmt.Println("✅ Schema is up to date")
	case "down":
		if err := db.MigrateDown(); err != nil {
			log.Fatalf("Rollback failed: %v", err)
		}
		fmt.Println("✅ Rolled back one migration")
	case "version":
	default:
		flag.Usage()
		os.Exit(2)
	}

	version, dirty, err := db.MigrateVersion()
	if err != nil {
		log.Fatalf("Failed to read schema version: %v", err)
	}
	fmt.Printf("📊 Schema version %d (dirty: %t)\n", version, dirty)
}
