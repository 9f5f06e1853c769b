package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/trustlend-backend/pkg/config"
	"github.com/angelmondragon/trustlend-backend/pkg/db"
	"github.com/angelmondragon/trustlend-backend/pkg/logger"
	"github.com/angelmondragon/trustlend-backend/pkg/migrate"
)

type options struct {
	dir         string
	name        string
	version     string
	email       string
	displayName string
}

// session is what online commands receive once the database is reachable.
type session struct {
	cfg   *config.Config
	opts  options
	db    *db.Client
	sqlDB *sql.DB
}

// offline commands only touch the migrations directory.
var offline = map[string]func(options) error{
	"create": func(o options) error {
		if o.name == "" {
			return errors.New("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(o.dir, o.name)
		if err != nil {
			return err
		}
		fmt.Println("created migration:", path)
		return nil
	},
	"validate": func(o options) error {
		if err := migrate.ValidateDir(o.dir); err != nil {
			return err
		}
		fmt.Println("migration validation passed")
		return nil
	},
}

var online = map[string]func(context.Context, session) error{
	"up":     gooseCommand("up"),
	"down":   gooseCommand("down"),
	"redo":   gooseCommand("redo"),
	"status": gooseCommand("status"),
	"version": func(ctx context.Context, s session) error {
		if s.opts.version == "" {
			return errors.New("missing -version for version command")
		}
		return migrate.MigrateToVersion(ctx, s.sqlDB, s.opts.dir, s.opts.version)
	},
	"seed-admin": func(ctx context.Context, s session) error {
		user, created, err := seedAdmin(ctx, s.db.DB(), s.cfg, adminSeed{
			Email:       s.opts.email,
			Password:    os.Getenv("TRUSTLEND_ADMIN_PASSWORD"),
			DisplayName: s.opts.displayName,
		})
		if err != nil {
			return err
		}
		if created {
			fmt.Println("created admin:", user.ID)
		} else {
			fmt.Println("admin already exists:", user.ID)
		}
		return nil
	},
}

func gooseCommand(name string) func(context.Context, session) error {
	return func(ctx context.Context, s session) error {
		return migrate.Run(ctx, s.sqlDB, s.opts.dir, name)
	}
}

func commandNames() string {
	names := make([]string, 0, len(offline)+len(online))
	for name := range offline {
		names = append(names, name)
	}
	for name := range online {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}

func main() {
	_ = godotenv.Load()

	var opts options
	cmd := flag.String("cmd", "up", "migration command: "+commandNames())
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&opts.name, "name", "", "migration name (create)")
	flag.StringVar(&opts.version, "version", "", "target version YYYYMMDDHHMMSS (version)")
	flag.StringVar(&opts.email, "email", "", "admin email (seed-admin)")
	flag.StringVar(&opts.displayName, "display-name", "", "admin display name (seed-admin)")
	flag.Parse()

	if err := run(*cmd, opts); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s: %v\n", *cmd, err)
		os.Exit(1)
	}
}

func run(cmd string, opts options) error {
	if fn, ok := offline[cmd]; ok {
		return fn(opts)
	}
	fn, ok := online[cmd]
	if !ok {
		return fmt.Errorf("unknown -cmd value (want %s)", commandNames())
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": cmd,
		"dir": opts.dir,
	})

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "migrate.db_unavailable", err)
		return err
	}
	defer client.Close()

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extract sql.DB: %w", err)
	}

	logg.Info(ctx, "migrate.start")
	if err := fn(ctx, session{cfg: cfg, opts: opts, db: client, sqlDB: sqlDB}); err != nil {
		logg.Error(ctx, "migrate.failed", err)
		return err
	}
	logg.Info(ctx, "migrate.done")
	return nil
}
