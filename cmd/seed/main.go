package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"ms-sales/internal/config"
	"ms-sales/internal/database/migrations"
	"ms-sales/internal/logger"
)

func main() {
	down := flag.Bool("down", false, "roll back every migration instead of applying them")
	to := flag.Uint("to", 0, "migrate to this exact version")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()

	appLog, err := logger.New(logger.Options{Prefix: "seed"})
	if err != nil {
		log.Fatalf("❌ Failed to create logger: %v", err)
	}
	defer appLog.Close()

	connector := pgdriver.NewConnector(pgdriver.WithDSN(cfg.Database.PostgresDSN()))
	sqldb := sql.OpenDB(connector)
	defer sqldb.Close()

	if err := sqldb.PingContext(context.Background()); err != nil {
		log.Fatalf("❌ Failed to connect to Postgres: %v", err)
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())

	runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{AutoMigrate: true, SeedData: true}, appLog)
	defer runner.Close()

	switch {
	case *down:
		err = runner.MigrateDown()
	case *to > 0:
		err = runner.MigrateTo(*to)
	default:
		err = runner.RunMigrations()
	}
	if err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}
	appLog.Info("MIGRATE", fmt.Sprintf("✅ Done (down=%t, to=%d)", *down, *to))
}
