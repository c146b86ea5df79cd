package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grovegraph/grove/internal/graph"
)

var searchLimit int

// searchCmd represents the search command.
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the graph with tag filters and similarity phrases",
	Long: `Search combines boolean tag filters with semantic phrases. Tag terms
filter, quoted phrases and bare words rank by embedding similarity.
Precedence is NOT over AND over OR; adjacency means AND.

Examples:
  grove search 'tag:ml'
  grove search 'tag:ml AND "vector databases"'
  grove search '(tag:go OR tag:rust) AND NOT tag:draft'
  grove search 'tag:project -tag:archived "deployment pipeline"'`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 20, "maximum results")
}

func runSearch(cmd *cobra.Command, args []string) error {
	eng, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	results, err := eng.Search(cmd.Context(), args[0], searchLimit)
	if err != nil {
		var parseErr *graph.QueryParseError
		if errors.As(err, &parseErr) {
			fmt.Println(rejectedStyle.Render(args[0]))
			if parseErr.Pos <= len(args[0]) {
				fmt.Printf("%*s\n", parseErr.Pos+1, "^")
			}
		}
		return err
	}
	if len(results) == 0 {
		fmt.Println(dimStyle.Render("no matches"))
		return nil
	}
	for _, r := range results {
		fmt.Printf("%.3f  %s\n", r.Score, renderNodeLine(r.Node))
	}
	return nil
}
