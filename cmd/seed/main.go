package main

import (
	"flag"
	"os"

	"github.com/oggyb/event-network/internal/config"
	"github.com/oggyb/event-network/internal/db"
	"github.com/oggyb/event-network/internal/logger"
)

func main() {
	attendees := flag.Int("attendees", 40, "number of demo profiles to create")
	flag.Parse()

	// Load configuration
	cfg := config.New()
	logger.InitFromConfig(cfg)
	log := logger.Named("seed")

	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}

	if err := db.SeedDemoData(database, *attendees, log); err != nil {
		log.Error("failed to seed", "err", err)
		os.Exit(1)
	}

	log.Info("seeding completed", "attendees", *attendees)
}
