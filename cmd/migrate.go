package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var migrateCMD = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(context.Background())
		if err != nil {
			return err
		}
		defer store.Close()

		log.Info("database schema is up to date")
		return nil
	},
}
