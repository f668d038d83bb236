package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(resetCmd)
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the task queue and agent logs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadAndValidateConfig(configPath)
		if err != nil {
			return err
		}

		db, q, _, err := openRuntime(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := q.Clear(); err != nil {
			return fmt.Errorf("clearing queue: %w", err)
		}
		fmt.Println("queue cleared")
		return nil
	},
}
