package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/grovegraph/grove/internal/engine"
)

var (
	captureBody  string
	captureTags  []string
	captureStdin bool
)

// captureCmd represents the capture command.
var captureCmd = &cobra.Command{
	Use:   "capture <title>",
	Short: "Capture a note as a graph node",
	Long: `Capture stores a note, derives tags (explicit #hashtags in the text win,
otherwise frequency-ranked keywords), embeds it with the configured
provider and immediately suggests links to related notes.

Examples:
  grove capture "Vector databases" --body "Comparing pgvector and qdrant. #database"
  cat note.md | grove capture "Reading notes" --stdin
  grove capture "Sprint retro" --tags team,process`,
	Args: cobra.ExactArgs(1),
	RunE: runCapture,
}

func init() {
	rootCmd.AddCommand(captureCmd)
	captureCmd.Flags().StringVarP(&captureBody, "body", "b", "", "note body")
	captureCmd.Flags().StringSliceVarP(&captureTags, "tags", "t", nil, "explicit tags (skips auto-extraction)")
	captureCmd.Flags().BoolVar(&captureStdin, "stdin", false, "read the body from stdin")
}

func runCapture(cmd *cobra.Command, args []string) error {
	body := captureBody
	if captureStdin {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		body = string(data)
	}

	eng, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	res, err := eng.CaptureNode(cmd.Context(), engine.CaptureInput{
		Title:    strings.TrimSpace(args[0]),
		Body:     body,
		Tags:     captureTags,
		AuthorID: actor,
	})
	if err != nil {
		return err
	}

	fmt.Println(renderNodeLine(res.Node))
	if res.Degraded {
		fmt.Println(dimStyle.Render("embedding provider unavailable; linked by tags only"))
	}
	if len(res.Suggested) == 0 {
		fmt.Println(dimStyle.Render("no link suggestions"))
		return nil
	}
	fmt.Printf("%d link suggestion(s):\n", len(res.Suggested))
	for _, e := range res.Suggested {
		fmt.Println("  " + renderEdgeLine(e))
	}
	return nil
}
