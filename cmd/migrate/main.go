package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"

	"github.com/beopar/beopar/internal/app"
)

const usage = "Usage: migrate [up|down|steps N|version]"

func main() {
	_ = godotenv.Load()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	m, err := migrate.New("file://migrations", cfg.PGDSN)
	if err != nil {
		logger.Error("create migrate instance", slog.Any("error", err))
		os.Exit(1)
	}
	defer m.Close()

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	switch cmd := os.Args[1]; cmd {
	case "up":
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			logger.Error("migration up", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("migrations applied")

	case "down":
		if err := m.Down(); err != nil && err != migrate.ErrNoChange {
			logger.Error("migration down", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("migrations reverted")

	case "steps":
		if len(os.Args) < 3 {
			logger.Error("steps requires a number argument")
			os.Exit(1)
		}
		n, err := strconv.Atoi(os.Args[2])
		if err != nil {
			logger.Error("invalid steps argument", slog.Any("error", err))
			os.Exit(1)
		}
		if err := m.Steps(n); err != nil && err != migrate.ErrNoChange {
			logger.Error("migration steps", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("applied migration steps", slog.Int("steps", n))

	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			logger.Error("read version", slog.Any("error", err))
			os.Exit(1)
		}
		fmt.Printf("version: %d, dirty: %v\n", version, dirty)

	default:
		fmt.Printf("unknown command: %s\n", cmd)
		fmt.Println(usage)
		os.Exit(1)
	}
}
