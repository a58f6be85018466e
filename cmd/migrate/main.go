package main

import (
	"flag"

	"github.com/stakevault/backend/internal/config"
	"github.com/stakevault/backend/internal/database"
	"github.com/stakevault/backend/internal/database/migrations"
	"github.com/stakevault/backend/internal/logger"
)

func main() {
	rollback := flag.Bool("rollback", false, "roll back the most recent migration")
	flag.Parse()

	cfg := config.LoadConfig()
	log := logger.New(cfg.LogLevel, cfg.Environment)

	db, err := database.InitDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer database.Close(db)

	if *rollback {
		if err := migrations.RollbackLast(db); err != nil {
			log.Fatal().Err(err).Msg("Rollback failed")
		}
		log.Info().Msg("Rolled back last migration")
		return
	}

	if err := migrations.RunMigrations(db); err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}
	log.Info().Int("count", len(migrations.All())).Msg("Migrations applied")
}
