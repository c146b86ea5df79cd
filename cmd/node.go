package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grovegraph/grove/internal/engine"
	"github.com/grovegraph/grove/internal/graph"
)

// nodeCmd groups node operations.
var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Inspect and edit graph nodes",
}

var nodeListLimit int

var nodeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List nodes, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close() }()

		nodes, err := eng.ListNodes(graph.Pagination{Limit: nodeListLimit})
		if err != nil {
			return err
		}
		for _, n := range nodes {
			fmt.Println(renderNodeLine(n))
		}
		return nil
	},
}

var nodeShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a node with its connections",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close() }()

		conns, err := eng.GetNodeConnections(args[0])
		if err != nil {
			return err
		}
		n := conns.Node
		fmt.Println(renderNodeLine(n))
		fmt.Printf("version %d, updated %s\n", n.Version, n.UpdatedAt.Format("2006-01-02 15:04"))
		if n.Body != "" {
			fmt.Println()
			fmt.Println(n.Body)
		}
		if len(conns.Accepted) > 0 {
			fmt.Println()
			fmt.Println(acceptedStyle.Render("accepted links:"))
			for _, c := range conns.Accepted {
				fmt.Printf("  %s  %.3f  %s\n", idStyle.Render(shortID(c.Edge.ID)), c.Edge.Score, c.Neighbor.Title)
			}
		}
		if len(conns.Suggested) > 0 {
			fmt.Println()
			fmt.Println(suggestedStyle.Render("suggested links:"))
			for _, c := range conns.Suggested {
				fmt.Printf("  %s  %.3f  %s\n", idStyle.Render(shortID(c.Edge.ID)), c.Edge.Score, c.Neighbor.Title)
			}
		}
		return nil
	},
}

var (
	editVersion int64
	editTitle   string
	editBody    string
	editTags    []string
)

var nodeEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit a node under optimistic concurrency",
	Long: `Edit applies changes guarded by the node version you last read.
If someone edited the node since, the command fails and prints the
current state so you can merge and retry with the new version.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close() }()

		in := engine.EditInput{Version: editVersion}
		if cmd.Flags().Changed("title") {
			in.Title = &editTitle
		}
		if cmd.Flags().Changed("body") {
			in.Body = &editBody
		}
		if cmd.Flags().Changed("tags") {
			in.Tags = editTags
		}

		res, err := eng.EditNode(cmd.Context(), args[0], in)
		if err != nil {
			var conflict *graph.EditConflictError
			if errors.As(err, &conflict) {
				fmt.Println(rejectedStyle.Render("edit conflict: node changed since you read it"))
				fmt.Println(renderNodeLine(conflict.Current))
				fmt.Printf("current version is %d; retry with --version %d\n", conflict.Current.Version, conflict.Current.Version)
			}
			return err
		}
		fmt.Println(renderNodeLine(res.Node))
		fmt.Printf("now at version %d\n", res.Node.Version)
		for _, e := range res.Suggested {
			fmt.Println("  " + renderEdgeLine(e))
		}
		return nil
	},
}

var nodeDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Tombstone a node and clear its pending suggestions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close() }()
		if err := eng.DeleteNode(args[0]); err != nil {
			return err
		}
		fmt.Println("node deleted")
		return nil
	},
}

var nodePurgeCmd = &cobra.Command{
	Use:   "purge <id>",
	Short: "Hard-delete a node and its edges (audit events remain)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close() }()
		if err := eng.PurgeNode(args[0]); err != nil {
			return err
		}
		fmt.Println("node purged")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(nodeCmd)
	nodeCmd.AddCommand(nodeListCmd, nodeShowCmd, nodeEditCmd, nodeDeleteCmd, nodePurgeCmd)

	nodeListCmd.Flags().IntVar(&nodeListLimit, "limit", 50, "maximum nodes to list")
	nodeEditCmd.Flags().Int64Var(&editVersion, "version", 0, "version the edit is based on (required)")
	nodeEditCmd.Flags().StringVar(&editTitle, "title", "", "new title")
	nodeEditCmd.Flags().StringVar(&editBody, "body", "", "new body")
	nodeEditCmd.Flags().StringSliceVar(&editTags, "tags", nil, "replacement tags")
	_ = nodeEditCmd.MarkFlagRequired("version")
}
