package main

import (
	"context"
	"os"

	"github.com/Charlsz/localmarket/internal/config"
	"github.com/Charlsz/localmarket/internal/database"
	"github.com/Charlsz/localmarket/migrations"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if len(os.Args) < 2 {
		logger.Fatal("Usage: go run scripts/run_migrations.go [up|down]")
	}

	direction := os.Args[1]
	if direction != migrations.Up && direction != migrations.Down {
		logger.Fatal("Direction must be 'up' or 'down'", zap.String("direction", direction))
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Load config", zap.Error(err))
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		logger.Fatal("Connect to database", zap.Error(err))
	}
	defer db.Close()

	applied, err := migrations.Apply(context.Background(), db, direction)
	if err != nil {
		logger.Fatal("Run migrations", zap.Error(err))
	}

	for _, name := range applied {
		logger.Info("Ran migration", zap.String("file", name))
	}
	logger.Info("Migrations complete", zap.Int("count", len(applied)), zap.String("direction", direction))
}
