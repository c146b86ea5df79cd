package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grovegraph/grove/internal/graph"
)

// edgesCmd groups link moderation operations.
var edgesCmd = &cobra.Command{
	Use:   "edges",
	Short: "Review and moderate link suggestions",
}

var (
	edgesNode     string
	edgesState    string
	edgesLimit    int
	rejectReason  string
	promoteScore  float64
	sweepBelow    float64
	promoteNodeID string
	sweepNodeID   string
)

var edgesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List edges, best score first",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close() }()

		filter := graph.EdgeFilter{NodeID: edgesNode}
		if edgesState != "" {
			filter.State = graph.EdgeState(edgesState)
		} else {
			filter.State = graph.EdgeSuggested
		}
		edges, err := eng.Store().ListEdges(filter, graph.Pagination{Limit: edgesLimit})
		if err != nil {
			return err
		}
		if len(edges) == 0 {
			fmt.Println(dimStyle.Render("no edges"))
			return nil
		}
		for _, e := range edges {
			fmt.Println(renderEdgeLine(e))
		}
		return nil
	},
}

var edgesAcceptCmd = &cobra.Command{
	Use:   "accept <edge-id>",
	Short: "Accept a suggested link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close() }()

		edge, err := eng.AcceptEdge(args[0], actor)
		if err != nil {
			return err
		}
		fmt.Println(renderEdgeLine(edge))
		return nil
	},
}

var edgesRejectCmd = &cobra.Command{
	Use:   "reject <edge-id>",
	Short: "Reject a suggested link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close() }()

		edge, err := eng.RejectEdge(args[0], actor, rejectReason)
		if err != nil {
			return err
		}
		fmt.Println(renderEdgeLine(edge))
		return nil
	},
}

var edgesUndoCmd = &cobra.Command{
	Use:   "undo <edge-id>",
	Short: "Undo the latest accept or reject on an edge",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close() }()

		edge, err := eng.UndoEdge(args[0], actor)
		if err != nil {
			return err
		}
		fmt.Println(renderEdgeLine(edge))
		return nil
	},
}

var edgesHistoryCmd = &cobra.Command{
	Use:   "history <edge-id>",
	Short: "Show the audit trail of an edge",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close() }()

		events, err := eng.EdgeHistory(args[0])
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Println(dimStyle.Render("no history"))
			return nil
		}
		for _, ev := range events {
			line := fmt.Sprintf("%s  %s -> %s  by %s",
				ev.CreatedAt.Format("2006-01-02 15:04:05"),
				stateStyle(ev.FromState).Render(string(ev.FromState)),
				stateStyle(ev.ToState).Render(string(ev.ToState)),
				ev.Actor)
			if ev.Reason != "" {
				line += dimStyle.Render("  (" + ev.Reason + ")")
			}
			fmt.Println(line)
		}
		return nil
	},
}

var edgesPromoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Accept all suggestions matching a filter in one batch",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close() }()

		n, err := eng.PromoteEdges(graph.EdgeFilter{NodeID: promoteNodeID, MinScore: promoteScore}, actor)
		if err != nil {
			return err
		}
		fmt.Printf("accepted %d edge(s)\n", n)
		return nil
	},
}

var edgesSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Reject all suggestions matching a filter in one batch",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close() }()

		n, err := eng.SweepEdges(graph.EdgeFilter{NodeID: sweepNodeID, MaxScore: sweepBelow}, actor)
		if err != nil {
			return err
		}
		fmt.Printf("rejected %d edge(s)\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(edgesCmd)
	edgesCmd.AddCommand(edgesListCmd, edgesAcceptCmd, edgesRejectCmd, edgesUndoCmd,
		edgesHistoryCmd, edgesPromoteCmd, edgesSweepCmd)

	edgesListCmd.Flags().StringVar(&edgesNode, "node", "", "only edges touching this node")
	edgesListCmd.Flags().StringVar(&edgesState, "state", "", "filter by state (suggested, accepted, rejected); default suggested")
	edgesListCmd.Flags().IntVar(&edgesLimit, "limit", 50, "maximum edges to list")

	edgesRejectCmd.Flags().StringVar(&rejectReason, "reason", "", "why the link is wrong")

	edgesPromoteCmd.Flags().StringVar(&promoteNodeID, "node", "", "only suggestions touching this node")
	edgesPromoteCmd.Flags().Float64Var(&promoteScore, "min-score", 0, "only suggestions at or above this score")

	edgesSweepCmd.Flags().StringVar(&sweepNodeID, "node", "", "only suggestions touching this node")
	edgesSweepCmd.Flags().Float64Var(&sweepBelow, "below", 0, "only suggestions under this score")
}
