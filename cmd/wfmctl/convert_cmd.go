package main

import (
	"errors"
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bod9dzys/BasicWFMbb/internal/model"
	"github.com/bod9dzys/BasicWFMbb/internal/normalize"
	"github.com/bod9dzys/BasicWFMbb/internal/sheet"
)

type convertOptions struct {
	From             string
	To               string
	Delimiter        string
	Sheet            string
	DefaultDirection string
}

func newConvertCmd() *cobra.Command {
	var opts convertOptions

	cmd := &cobra.Command{
		Use:   "convert <in> <out>",
		Short: "Rewrite a schedule (grid or flat) as a flat CSV or XLSX file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			inFormat, err := sheet.ParseFormat(firstNonEmpty(opts.From, args[0]))
			if err != nil {
				return err
			}
			outFormat, err := sheet.ParseFormat(firstNonEmpty(opts.To, args[1]))
			if err != nil {
				return err
			}
			dir := model.Direction(opts.DefaultDirection)
			if !dir.Valid() {
				return fmt.Errorf("--default-direction %q is not a known direction", opts.DefaultDirection)
			}

			var delimiter rune
			if opts.Delimiter != "" {
				if utf8.RuneCountInString(opts.Delimiter) != 1 {
					return errors.New("--delimiter must be a single character")
				}
				delimiter, _ = utf8.DecodeRuneInString(opts.Delimiter)
			}

			logger, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			defer logger.Sync()

			in, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer in.Close()

			src, err := sheet.Open(inFormat, in, sheet.Options{Delimiter: delimiter, Sheet: opts.Sheet})
			if err != nil {
				return err
			}

			out, err := os.Create(args[1])
			if err != nil {
				return err
			}
			defer out.Close()

			dst, err := sheet.NewWriter(outFormat, out, delimiter)
			if err != nil {
				return err
			}

			stats, err := sheet.Convert(src, dst, normalize.NewVocabulary(dir, logger), logger)
			if closeErr := dst.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "written=%d skipped=%d\n", stats.Written, stats.Skipped)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.From, "from", "", "input format (default: from the extension)")
	cmd.Flags().StringVar(&opts.To, "to", "", "output format csv or xlsx (default: from the extension)")
	cmd.Flags().StringVar(&opts.Delimiter, "delimiter", "", "CSV delimiter for input and output (default ';')")
	cmd.Flags().StringVar(&opts.Sheet, "sheet", "", "input worksheet name")
	cmd.Flags().StringVar(&opts.DefaultDirection, "default-direction", string(model.DirectionCalls), "direction for unrecognised labels")
	return cmd
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
