package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"slotbook/internal/catalog"
	"slotbook/internal/database"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		seedPath = flag.String("catalog", "configs/catalog.yaml", "path to catalog.yaml")
		dbPath   = flag.String("db", "./data/slotbook.db", "path to sqlite db")
	)
	flag.Parse()

	seed, err := catalog.LoadFile(*seedPath)
	if err != nil {
		return err
	}
	if len(seed.Companies) == 0 {
		return fmt.Errorf("no companies in %s", *seedPath)
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := catalog.Apply(ctx, db, seed, &logger); err != nil {
		return err
	}

	services, windows := 0, 0
	for _, c := range seed.Companies {
		services += len(c.Services)
		windows += len(c.Windows)
	}
	fmt.Printf("Catalog applied: companies=%d services=%d windows=%d\n", len(seed.Companies), services, windows)
	return nil
}
