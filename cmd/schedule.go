package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/viktsys/tt2ingest/scheduler"
	"github.com/viktsys/tt2ingest/source"
)

var scheduleCMD = &cobra.Command{
	Use:   "schedule",
	Short: "Run the ingestion on the configured cron schedule",
	Long: `Run the configured kinds (cron.kinds) on the cron.schedule expression,
a six-field spec with seconds first, until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		kinds, err := parseKinds(cfg.Cron.Kinds, false)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		pipeline := newPipeline(store)
		runner := scheduler.New(log, ctx)
		id, err := runner.Add(cfg.Cron.Schedule, func(ctx context.Context) {
			summary := pipeline.Run(ctx, kinds, source.Scope{})
			log.Info("scheduled ingestion finished", zap.Bool("failed", summary.Failed()))
			fmt.Fprint(cmd.OutOrStdout(), summary.String())
		})
		if err != nil {
			return err
		}

		runner.Start()
		log.Info("waiting for schedule",
			zap.String("schedule", cfg.Cron.Schedule),
			zap.String("next", runner.Next(id)))
		<-ctx.Done()
		runner.Stop()
		return nil
	},
}
