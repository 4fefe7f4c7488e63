package main

import (
	"fmt"

	"github.com/richardliu001/identity-service/internal/config"
	"github.com/richardliu001/identity-service/internal/eventstore"
	"github.com/richardliu001/identity-service/internal/logger"
	"github.com/richardliu001/identity-service/internal/materializer"
	"github.com/richardliu001/identity-service/internal/normalizer"
	"github.com/richardliu001/identity-service/internal/repo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newRootCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:          "idctl",
		Short:        "Identity document maintenance tools",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", config.Path(), "Path to the yaml configuration")
	open := func() (*app, error) { return openApp(configPath) }
	cmd.AddCommand(newRebuildCmd(open), newNormalizeCmd(open), newMaterializeCmd(open), newVerifyCmd(open))
	return cmd
}

// app holds the document pipeline stages, without queue or broker.
type app struct {
	store *eventstore.Store
	docs  repo.RepositoryInterface
	norm  *normalizer.Normalizer
	mat   *materializer.Materializer
	log   *zap.SugaredLogger
	close func()
}

func newApp(db *gorm.DB, log *zap.SugaredLogger) *app {
	docs := repo.NewRepository(db, log)
	store := eventstore.New(db, log)
	return &app{
		store: store,
		docs:  docs,
		norm:  normalizer.New(store, docs, log),
		mat:   materializer.New(docs, log),
		log:   log,
		close: func() {},
	}
}

func openApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.NewLogger("idctl")
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	db, err := repo.OpenPostgres(cfg.Postgres.DSN)
	if err != nil {
		return nil, err
	}
	if err := repo.Migrate(db); err != nil {
		return nil, err
	}
	a := newApp(db, log)
	if err := a.mat.Validate(); err != nil {
		return nil, err
	}
	a.close = func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		_ = log.Sync()
	}
	return a, nil
}
