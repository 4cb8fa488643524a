package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/ignite/creator-waitlist/internal/config"
	"github.com/ignite/creator-waitlist/internal/migrations"
	"github.com/ignite/creator-waitlist/internal/pkg/logger"
	"github.com/ignite/creator-waitlist/internal/repository/sqlite"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: migrate [-config path] [up|version]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	command := "up"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	log := logger.Component("migrate")

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	var driverName, dsn, dialect string
	switch cfg.Database.Driver {
	case "postgres":
		driverName, dsn, dialect = "postgres", cfg.Database.URL, migrations.Postgres
	case "sqlite":
		driverName, dsn, dialect = "sqlite", sqlite.DSN(cfg.Database.SQLitePath), migrations.SQLite
	default:
		log.Error("driver has no SQL migrations", "driver", cfg.Database.Driver)
		os.Exit(1)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		log.Error("connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch command {
	case "up":
		if err := migrations.Up(ctx, db, dialect); err != nil {
			log.Error("migrate up failed", "err", err)
			os.Exit(1)
		}
		fallthrough
	case "version":
		v, err := migrations.Version(ctx, db, dialect)
		if err != nil {
			log.Error("read version failed", "err", err)
			os.Exit(1)
		}
		log.Info("schema version", "driver", cfg.Database.Driver, "version", v)
	default:
		flag.Usage()
		os.Exit(2)
	}
}
