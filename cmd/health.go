package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// healthCmd represents the health command.
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the database and the embedding backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd.Context())
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer func() { _ = eng.Close() }()

		report, err := eng.Health(cmd.Context())
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}

		fmt.Printf("database   %s (%d nodes, %d edges)\n",
			acceptedStyle.Render("ok"), report.Stats.Nodes, report.Stats.Edges)

		switch {
		case report.EmbeddingDisabled:
			fmt.Printf("embedding  %s\n", dimStyle.Render("disabled (tag-only linking)"))
		case report.EmbeddingErr != nil:
			fmt.Printf("embedding  %s %s: %v\n",
				rejectedStyle.Render("failed"), report.Provider, report.EmbeddingErr)
			return fmt.Errorf("embedding backend unavailable")
		default:
			fmt.Printf("embedding  %s %s/%s (%d-dimensional vectors)\n",
				acceptedStyle.Render("ok"), report.Provider, report.Model, report.Dimensions)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
