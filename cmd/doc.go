package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/grovegraph/grove/internal/graph"
)

// docCmd groups document ingestion operations.
var docCmd = &cobra.Command{
	Use:   "doc",
	Short: "Ingest long documents as chunked nodes",
}

var docFile string

func readDocBody() ([]byte, error) {
	var body []byte
	var err error
	if docFile != "" {
		body, err = os.ReadFile(docFile)
	} else {
		body, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return body, nil
}

func printDocResult(doc *graph.Document, chunkCount int, degraded bool) {
	fmt.Printf("%s  %s  version %d  %d chunk(s)\n",
		idStyle.Render(shortID(doc.ID)),
		titleStyle.Render(doc.Title),
		doc.Version,
		chunkCount)
	if degraded {
		fmt.Println(dimStyle.Render("embedding provider unavailable; linked by tags only"))
	}
}

var docAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Capture a document, one node per paragraph",
	Long: `Add splits a document into paragraph chunks. Each chunk becomes a
regular node that is tagged, embedded and swept for link suggestions,
so long texts weave into the graph at paragraph granularity.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := readDocBody()
		if err != nil {
			return err
		}

		eng, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close() }()

		res, err := eng.CaptureDocument(cmd.Context(), args[0], string(body))
		if err != nil {
			return err
		}
		printDocResult(res.Document, len(res.Nodes), res.Degraded)
		return nil
	},
}

var docUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Re-capture a document, replacing its chunks wholesale",
	Long: `Update tombstones the document's existing chunk nodes and re-chunks
the new body from scratch, so moving a paragraph never leaves a stale
node behind. The document's version is bumped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := readDocBody()
		if err != nil {
			return err
		}

		eng, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close() }()

		res, err := eng.RecaptureDocument(cmd.Context(), args[0], string(body))
		if err != nil {
			return err
		}
		printDocResult(res.Document, len(res.Nodes), res.Degraded)
		return nil
	},
}

var docShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a document and its chunk nodes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close() }()

		doc, nodes, err := eng.GetDocument(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s  version %d\n", idStyle.Render(shortID(doc.ID)), titleStyle.Render(doc.Title), doc.Version)
		for _, n := range nodes {
			fmt.Println("  " + renderNodeLine(n))
		}
		return nil
	},
}

var docListLimit int

var docListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents, newest update first",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close() }()

		docs, err := eng.ListDocuments(graph.Pagination{Limit: docListLimit})
		if err != nil {
			return err
		}
		for _, doc := range docs {
			fmt.Printf("%s  %s  version %d\n", idStyle.Render(shortID(doc.ID)), titleStyle.Render(doc.Title), doc.Version)
		}
		return nil
	},
}

var docDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a document and tombstone its chunk nodes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close() }()

		if err := eng.DeleteDocument(args[0]); err != nil {
			return err
		}
		fmt.Println("deleted", shortID(args[0]))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(docCmd)
	docCmd.AddCommand(docAddCmd, docUpdateCmd, docShowCmd, docListCmd, docDeleteCmd)
	docAddCmd.Flags().StringVarP(&docFile, "file", "f", "", "read the document from a file instead of stdin")
	docUpdateCmd.Flags().StringVarP(&docFile, "file", "f", "", "read the document from a file instead of stdin")
	docListCmd.Flags().IntVar(&docListLimit, "limit", 20, "maximum documents to list")
}
