package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/grovegraph/grove/internal/graph"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	tagStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	acceptedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	suggestedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	rejectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

func stateStyle(s graph.EdgeState) lipgloss.Style {
	switch s {
	case graph.EdgeAccepted:
		return acceptedStyle
	case graph.EdgeRejected:
		return rejectedStyle
	default:
		return suggestedStyle
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func renderTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = tagStyle.Render("#" + t)
	}
	return strings.Join(parts, " ")
}

func renderNodeLine(n *graph.Node) string {
	line := fmt.Sprintf("%s  %s", idStyle.Render(shortID(n.ID)), titleStyle.Render(n.Title))
	if tags := renderTags(n.Tags); tags != "" {
		line += "  " + tags
	}
	return line
}

func renderEdgeLine(e *graph.Edge) string {
	return fmt.Sprintf("%s  %s  %.3f  %s ~ %s  %s",
		idStyle.Render(shortID(e.ID)),
		stateStyle(e.State).Render(string(e.State)),
		e.Score,
		shortID(e.SourceID), shortID(e.TargetID),
		dimStyle.Render(fmt.Sprintf("sem %.2f tag %.2f rec %.2f",
			e.Breakdown.Semantic, e.Breakdown.Tag, e.Breakdown.Recency)),
	)
}
