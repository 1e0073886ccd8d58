package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/viktsys/tt2ingest/config"
	"github.com/viktsys/tt2ingest/logger"
)

var (
	configPath string
	cfg        config.Config
	log        *zap.Logger
)

var rootCMD = &cobra.Command{
	Use:   "tt2ingest",
	Short: "Market reference and time-series data ingestion tool",
	Long: `A CLI application for ingesting market data: index constituents, listings,
movers, daily prices with derived indicators, analyst consensus, insider
trades and the earnings calendar. Data is merged into a relational store and
served through a read-only REST API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		log, err = logger.New(cfg.Log)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func Execute() {
	err := rootCMD.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCMD.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCMD.AddCommand(ingestCMD, migrateCMD, serverCMD, scheduleCMD)
}
