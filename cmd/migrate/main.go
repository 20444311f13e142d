package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/mtarikucar/kds-sub004/pkg/config"
	"github.com/mtarikucar/kds-sub004/pkg/db"
	"github.com/mtarikucar/kds-sub004/pkg/logger"
	"github.com/mtarikucar/kds-sub004/pkg/migrate"
)


func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|up-by-one|down|redo|status|version|create|validate")
	dir := flag.String("dir", "", "migrations directory; empty uses the embedded set ("+migrate.DefaultDir+" for create/validate)")
	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	ctx := logg.WithFields(context.Background(), map[string]any{"cmd": *cmd, "dir": *dir})

	// file-only commands run without config or a database
	fileDir := *dir
	if fileDir == "" {
		fileDir = migrate.DefaultDir
	}
	switch *cmd {
	case "create":
		if *name == "" {
			fail(ctx, logg, "missing -name for create", nil)
		}
		path, err := migrate.CreateSQLMigration(fileDir, *name)
		if err != nil {
			fail(ctx, logg, "failed to create migration", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.ValidateDir(fileDir); err != nil {
			fail(ctx, logg, "migration validation failed", err)
		}
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fail(ctx, logg, "failed to load config", err)
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": *cmd, "dir": *dir})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		fail(ctx, logg, "failed to bootstrap database", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		fail(ctx, logg, "failed to open sql handle", err)
	}

	source, err := migrate.Source(*dir)
	if err != nil {
		fail(ctx, logg, "failed to open migrations", err)
	}
	runner, err := migrate.NewRunner(sqlDB, source)
	if err != nil {
		fail(ctx, logg, "failed to prepare migrations", err)
	}

	var applied []migrate.Applied
	switch *cmd {
	case "status":
		pending, err := runner.Pending(ctx)
		if err != nil {
			fail(ctx, logg, "failed to read migration status", err)
		}
		logg.Info(logg.WithFields(ctx, map[string]any{"pending": pending}), "migration status")
		return
	case "version":
		if *version == "" {
			fail(ctx, logg, "missing -version for version command", nil)
		}
		applied, err = runner.To(ctx, *version)
	default:
		applied, err = runner.Apply(ctx, *cmd)
	}
	for _, a := range applied {
		logg.Info(logg.WithFields(ctx, map[string]any{"version": a.Version, "file": a.Path, "direction": a.Direction}), "migration applied")
	}
	if err != nil {
		fail(ctx, logg, "migration failed", err)
	}
	logg.Info(ctx, "migration complete")
}

func fail(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if err == nil {
		err = errors.New(msg)
	}
	logg.Error(ctx, msg, err)
	os.Exit(1)
}
