package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resweepForce bool

// resweepCmd represents the resweep command.
var resweepCmd = &cobra.Command{
	Use:   "resweep",
	Short: "Re-run link suggestion for the whole graph",
	Long: `Resweep re-scores every live node against its candidate pool, useful
after changing linking weights or switching embedding models. Progress
is checkpointed, so an interrupted resweep resumes where it stopped.
Rejected pairs stay rejected unless --force revives them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close() }()

		res, err := eng.ResweepAutoLinks(cmd.Context(), resweepForce)
		if err != nil {
			if res.NodesSwept > 0 {
				fmt.Printf("interrupted after %d node(s); run again to resume\n", res.NodesSwept)
			}
			return err
		}
		if res.Resumed {
			fmt.Println(dimStyle.Render("resumed from previous checkpoint"))
		}
		fmt.Printf("swept %d node(s), %d suggestion(s) written\n", res.NodesSwept, res.Suggested)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resweepCmd)
	resweepCmd.Flags().BoolVar(&resweepForce, "force", false, "re-suggest pairs that were previously rejected")
}
