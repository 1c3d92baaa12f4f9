package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cognicore/lexmatch/internal/catalogfile"
	"github.com/cognicore/lexmatch/pkg/lexmatch"
	"github.com/cognicore/lexmatch/pkg/lexmatch/store/sqlite"
)

func newImportCmd(opts *rootOptions) *cobra.Command {
	var rowsPath, productsPath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load JSONL catalog exports into the local SQLite store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if rowsPath == "" && productsPath == "" {
				return errors.New("nothing to import: pass --rows and/or --products")
			}
			ctx := cmd.Context()
			env, err := loadEnvironment()
			if err != nil {
				return err
			}
			db, err := sqlite.OpenSQLite(ctx, env.SQLitePath)
			if err != nil {
				return err
			}
			defer db.Close()

			if rowsPath != "" {
				rows, err := catalogfile.LoadRows(rowsPath, opts.logger)
				if err != nil {
					return err
				}
				if err := db.UpsertRows(ctx, rows); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d rows\n", len(rows))
			}
			if productsPath != "" {
				products, err := catalogfile.LoadProducts(productsPath, opts.logger)
				if err != nil {
					return err
				}
				if err := db.UpsertProducts(ctx, products); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d products\n", len(products))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&rowsPath, "rows", "", "dictionary rows (JSONL)")
	cmd.Flags().StringVar(&productsPath, "products", "", "products (JSONL)")
	return cmd
}

func newBuildCmd(opts *rootOptions) *cobra.Command {
	var category int64
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Rebuild a category index and store it as an artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			engine, b, err := openEngine(ctx, opts)
			if err != nil {
				return err
			}
			defer b.Close()

			report, err := engine.Refresh(ctx, category)
			if err != nil {
				return err
			}
			snap := engine.Snapshot(category)
			fmt.Fprintf(cmd.OutOrStdout(), "category %d: %d rows, %d indexed, %d skipped (version %s)\n",
				snap.CategoryID, report.Rows, report.Indexed, len(report.Skipped), snap.Version)
			for _, s := range report.Skipped {
				opts.logger.Info("skipped row", zap.Int64("id", s.ID), zap.String("reason", s.Reason))
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&category, "category", 0, "category id (0 uses the configured default)")
	return cmd
}

func newLookupCmd(opts *rootOptions) *cobra.Command {
	var req lexmatch.LookupRequest
	cmd := &cobra.Command{
		Use:   "lookup [sentence]",
		Short: "Match a sentence against the dictionary",
		Long: `Match a sentence against the dictionary and print the result as JSON.
Without arguments, one sentence is read per line from stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			engine, b, err := openEngine(ctx, opts)
			if err != nil {
				return err
			}
			defer b.Close()

			if err := engine.EnsureFresh(ctx, req.CategoryID); err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			if len(args) > 0 {
				return lookupOne(ctx, engine, enc, req, strings.Join(args, " "))
			}
			return lookupLines(ctx, engine, enc, req, cmd.InOrStdin())
		},
	}
	f := cmd.Flags()
	f.Int64Var(&req.CategoryID, "category", 0, "category id (0 uses the configured default)")
	f.Int64Var(&req.SourceID, "source", 0, "requesting source id")
	f.BoolVar(&req.SingleBrand, "single-brand", false, "stop matching brands after the first")
	f.BoolVar(&req.DisallowBrand, "disallow-brand", false, "never match brands")
	f.BoolVar(&req.AllowFuzzy, "fuzzy", false, "allow approximate word matches")
	f.BoolVar(&req.Human, "human", false, "apply the stricter brand rules for typed input")
	f.BoolVar(&req.CheckProducts, "products", false, "look up products of matched brands")
	f.StringSliceVar(&req.OrderedCodes, "prefer-codes", nil, "attribute codes to prefer on exact ties, best first")
	f.StringSliceVar(&req.AllowedCodes, "codes", nil, "restrict matches to these attribute codes")
	return cmd
}

func lookupOne(ctx context.Context, engine *lexmatch.Engine, enc *json.Encoder, req lexmatch.LookupRequest, sentence string) error {
	req.Sentence = sentence
	res, err := engine.Lookup(ctx, req)
	if err != nil {
		return err
	}
	return enc.Encode(res)
}

func lookupLines(ctx context.Context, engine *lexmatch.Engine, enc *json.Encoder, req lexmatch.LookupRequest, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := lookupOne(ctx, engine, enc, req, line); err != nil {
			return errors.Wrapf(err, "lookup %q", line)
		}
	}
	return scanner.Err()
}

func newInvalidateCmd(opts *rootOptions) *cobra.Command {
	var category int64
	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Delete the stored index artifact of a category",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			engine, b, err := openEngine(ctx, opts)
			if err != nil {
				return err
			}
			defer b.Close()

			if err := engine.Invalidate(ctx, category); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "invalidated")
			return nil
		},
	}
	cmd.Flags().Int64Var(&category, "category", 0, "category id (0 uses the configured default)")
	return cmd
}
