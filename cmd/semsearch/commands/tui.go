package commands

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"semsearch/internal/tui"
)

// NewTUICmd creates the tui command.
func NewTUICmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tui [files...]",
		Short: "Open the interactive search UI",
		Long: `Open the interactive search UI.

Type a query and press Enter to rank the collection by similarity. Tab
switches to the add-document editor. Any .txt files given as arguments are
chunked and added first, and their summary is shown above the results.

Logs go to log.file, or to semsearch.log in the user config directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, opts, args)
		},
	}
}

func runTUI(cmd *cobra.Command, opts *rootOptions, files []string) error {
	ctx := commandContext(cmd)
	a, err := newApp(ctx, opts, true)
	if err != nil {
		return err
	}
	defer a.Close()

	spec := a.svc.Collection()
	summary := fmt.Sprintf("Collection %s, %d dimensions, %s embedder on %s store.",
		spec.Name, spec.Dimension, a.cfg.Embedder.Type, a.cfg.VectorStore.Type)
	if len(files) > 0 {
		s, err := a.svc.IngestFiles(ctx, files)
		if err != nil {
			return fmt.Errorf("ingest failed: %w", err)
		}
		if s != "" {
			summary = s
		}
	}

	m := tui.New(ctx, a.svc, summary, a.cfg.Search.TopK)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return err
	}
	return nil
}
