package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// statsCmd represents the stats command.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show graph statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close() }()

		stats, err := eng.Stats()
		if err != nil {
			return err
		}
		fmt.Printf("nodes      %d\n", stats.Nodes)
		fmt.Printf("edges      %d\n", stats.Edges)
		fmt.Printf("suggested  %d\n", stats.Suggested)
		fmt.Printf("documents  %d\n", stats.Documents)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
