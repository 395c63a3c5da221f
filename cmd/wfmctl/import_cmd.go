package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bod9dzys/BasicWFMbb/internal/repository"
	"github.com/bod9dzys/BasicWFMbb/internal/service"
	"github.com/bod9dzys/BasicWFMbb/internal/sheet"
	"github.com/bod9dzys/BasicWFMbb/pkg/redis"
)

type importOptions struct {
	Format      string
	Delimiter   string
	Sheet       string
	BatchSize   int
	Timezone    string
	DryRun      bool
	ResolveOnly bool
}

func newImportCmd(g *globalOptions) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a schedule file and print the run report as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			formatName := opts.Format
			if formatName == "" {
				formatName = path
			}
			format, err := sheet.ParseFormat(formatName)
			if err != nil {
				return err
			}

			e, err := openEnv(g)
			if err != nil {
				return err
			}
			defer e.Close()

			var locker service.RunLocker
			if e.cfg.Redis.Addr != "" {
				rdb, err := redis.NewClient(&e.cfg.Redis, e.logger)
				if err != nil {
					e.logger.Warn("redis unavailable, importing without the run lock", zap.Error(err))
				} else {
					defer rdb.Close()
					locker = rdb
				}
			}

			importSvc := service.NewImportService(repository.NewRepository(e.db), &e.cfg.Import, locker, nil, e.logger.Named("import"))

			runOpts := importSvc.DefaultOptions()
			if opts.BatchSize > 0 {
				runOpts.BatchSize = opts.BatchSize
			}
			if opts.Timezone != "" {
				loc, err := time.LoadLocation(opts.Timezone)
				if err != nil {
					return fmt.Errorf("--tz: %w", err)
				}
				runOpts.Location = loc
			}
			runOpts.DryRun = opts.DryRun
			if opts.ResolveOnly {
				runOpts.CreateMissing = false
			}

			src := sheet.Options{Sheet: opts.Sheet}
			if opts.Delimiter != "" {
				if utf8.RuneCountInString(opts.Delimiter) != 1 {
					return errors.New("--delimiter must be a single character")
				}
				src.Delimiter, _ = utf8.DecodeRuneInString(opts.Delimiter)
			}

			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			report, runErr := importSvc.Import(cmd.Context(), format, f, src, runOpts)
			if report != nil {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&opts.Format, "format", "", "csv, xlsx or grid (default: from the file extension)")
	cmd.Flags().StringVar(&opts.Delimiter, "delimiter", "", "CSV delimiter (default ';')")
	cmd.Flags().StringVar(&opts.Sheet, "sheet", "", "worksheet name (default: first sheet)")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", 0, "rows per transaction (default from config)")
	cmd.Flags().StringVar(&opts.Timezone, "tz", "", "IANA zone of naive timestamps (default from config)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "validate and report without writing")
	cmd.Flags().BoolVar(&opts.ResolveOnly, "resolve-only", false, "do not create identities for unknown names")
	return cmd
}
