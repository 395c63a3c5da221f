package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bod9dzys/BasicWFMbb/config"
	"github.com/bod9dzys/BasicWFMbb/pkg/database"
	applogger "github.com/bod9dzys/BasicWFMbb/pkg/logger"
)

type globalOptions struct {
	ConfigPath string
}

func newRootCmd() *cobra.Command {
	var g globalOptions

	cmd := &cobra.Command{
		Use:           "wfmctl",
		Short:         "Schedule import, conversion and maintenance tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&g.ConfigPath, "config", os.Getenv("WFM_CONFIG"), "config file (default ./config/config.yaml)")

	cmd.AddCommand(newImportCmd(&g))
	cmd.AddCommand(newConvertCmd())
	cmd.AddCommand(newMigrateCmd(&g))
	cmd.AddCommand(newTokenCmd(&g))
	return cmd
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// env is what the database-backed commands share.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB
}

func (e *env) Close() {
	if sqlDB, err := e.db.DB(); err == nil {
		sqlDB.Close()
	}
	e.logger.Sync()
}

func loadConfigOnly(g *globalOptions) (*config.Config, error) {
	return config.Load(g.ConfigPath)
}

func openEnv(g *globalOptions) (*env, error) {
	cfg, err := loadConfigOnly(g)
	if err != nil {
		return nil, err
	}
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		return nil, err
	}
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return &env{cfg: cfg, logger: logger, db: db}, nil
}
