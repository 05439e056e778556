package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

type addOptions struct {
	files []string
}

// NewAddCmd creates the add command.
func NewAddCmd(opts *rootOptions) *cobra.Command {
	ao := &addOptions{}
	cmd := &cobra.Command{
		Use:   "add [text...]",
		Short: "Add documents to the collection",
		Long: `Add documents to the collection. Each argument is one document. With
--file, .txt files are split into sentence chunks and each chunk is added.
With neither, one document is read from stdin.

Only persistent stores (sqlite, qdrant) keep documents between runs.

Examples:
  semsearch add "Dutch people enjoy cheese." "Spain is known for paella."
  semsearch add --file notes.txt --file 'docs/*.txt'
  echo "Belgium makes waffles." | semsearch add`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd, opts, ao, args)
		},
	}

	cmd.Flags().StringArrayVar(&ao.files, "file", nil, "text file or glob to chunk and add (repeatable)")
	return cmd
}

func runAdd(cmd *cobra.Command, opts *rootOptions, ao *addOptions, args []string) error {
	texts := args
	if len(texts) == 0 && len(ao.files) == 0 {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		texts = []string{string(data)}
	}

	ctx := commandContext(cmd)
	a, err := newApp(ctx, opts, false)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	if len(ao.files) > 0 {
		summary, err := a.svc.IngestFiles(ctx, ao.files)
		if err != nil {
			return err
		}
		if summary != "" {
			fmt.Fprintf(out, "Summary:\n%s\n", summary)
		}
	}
	if len(texts) > 0 {
		report, err := a.svc.AddDocuments(ctx, texts)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Added %d document(s)\n", len(report.IDs))
		for _, id := range report.IDs {
			fmt.Fprintf(out, "  %s\n", id)
		}
		if report.Blank > 0 {
			fmt.Fprintf(out, "Skipped %d blank input(s)\n", report.Blank)
		}
		if report.Duplicates > 0 {
			fmt.Fprintf(out, "Skipped %d duplicate(s)\n", report.Duplicates)
		}
	}

	n, err := a.svc.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Collection %s now holds %d document(s)\n", a.svc.Collection().Name, n)
	return nil
}
