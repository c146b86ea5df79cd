package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/grovegraph/grove/internal/engine"
)

// watchCmd represents the watch command.
var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Watch an inbox directory and capture dropped notes",
	Long: `Watch captures every markdown or text file dropped into the inbox
directory. The filename (without extension) becomes the title, the
content the body. Processed files are renamed with a .captured suffix
so they are never ingested twice.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	inbox := args[0]
	info, err := os.Stat(inbox)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("inbox %s is not a directory", inbox)
	}

	eng, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()
	if err := watcher.Add(inbox); err != nil {
		return fmt.Errorf("watch %s: %w", inbox, err)
	}

	// Pick up anything already waiting before the watch started.
	entries, err := os.ReadDir(inbox)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			captureInboxFile(cmd.Context(), eng, filepath.Join(inbox, entry.Name()))
		}
	}

	fmt.Printf("watching %s (ctrl-c to stop)\n", inbox)
	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			// Editors fire several events while writing; give the file
			// a moment to settle before reading it.
			time.Sleep(200 * time.Millisecond)
			captureInboxFile(cmd.Context(), eng, event.Name)
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintln(os.Stderr, "watch error:", watchErr)
		}
	}
}

func captureInboxFile(ctx context.Context, eng *engine.Engine, path string) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".md" && ext != ".txt" {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	body := strings.TrimSpace(string(data))
	if body == "" {
		return
	}
	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	res, err := eng.CaptureNode(ctx, engine.CaptureInput{Title: title, Body: body, AuthorID: actor})
	if err != nil {
		fmt.Fprintf(os.Stderr, "capture %s: %v\n", path, err)
		return
	}
	if err := os.Rename(path, path+".captured"); err != nil {
		fmt.Fprintf(os.Stderr, "rename %s: %v\n", path, err)
	}
	fmt.Println(renderNodeLine(res.Node))
	for _, e := range res.Suggested {
		fmt.Println("  " + renderEdgeLine(e))
	}
}
