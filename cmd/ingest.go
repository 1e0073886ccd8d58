package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/viktsys/tt2ingest/source"
	"github.com/viktsys/tt2ingest/universe"
)

var (
	ingestAll     bool
	ingestScope   string
	ingestSymbols string
)

var ingestCMD = &cobra.Command{
	Use:   "ingest [kind...]",
	Short: "Fetch one or more entity kinds and merge them into the database",
	Long: `Fetch the named entity kinds (sp500, ipos, spacs, listings, movers,
daily_metrics, analyst_scores, insider_trades, earnings) or all of them with
--all. Per-subject kinds act on --scope (e.g. top_10_sp500) or on an explicit
--symbols list.`,
	Example: `  tt2ingest ingest --all
  tt2ingest ingest sp500 daily_metrics --scope top_10_sp500
  tt2ingest ingest analyst_scores --symbols AAPL,MSFT`,
	RunE: func(cmd *cobra.Command, args []string) error {
		kinds, err := parseKinds(args, ingestAll)
		if err != nil {
			return err
		}

		scope, err := universe.ParseScope(ingestScope)
		if err != nil {
			return err
		}
		if ingestSymbols != "" {
			scope = source.Scope{Symbols: universe.Symbols(ingestSymbols)}
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		log.Info("starting ingestion",
			zap.Any("kinds", kinds),
			zap.Stringer("scope", scope),
			zap.Int("workers", cfg.Ingest.WorkerCount))

		summary := newPipeline(store).Run(ctx, kinds, scope)
		fmt.Fprint(cmd.OutOrStdout(), summary.String())
		fmt.Fprintln(cmd.OutOrStdout(), "Data ingestion completed.")
		return nil
	},
}

func init() {
	ingestCMD.Flags().BoolVar(&ingestAll, "all", false, "run every kind in dependency order")
	ingestCMD.Flags().StringVar(&ingestScope, "scope", "", "subject scope: <source>, top_<n>_<source> (default: sp500)")
	ingestCMD.Flags().StringVar(&ingestSymbols, "symbols", "", "comma-separated symbols, overrides --scope")
}
