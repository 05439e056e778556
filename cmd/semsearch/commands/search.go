package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"semsearch/internal/domain"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

type searchOptions struct {
	topK   int
	format string
}

// NewSearchCmd creates the search command.
func NewSearchCmd(opts *rootOptions) *cobra.Command {
	so := &searchOptions{}
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Rank stored documents by similarity to a query",
		Long: `Embed the query and print the closest documents, best match first,
with their cosine similarity.

Examples:
  semsearch search "who likes bread"
  semsearch search --top-k 3 "italian food"
  semsearch search --format json "germany"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, opts, so, strings.Join(args, " "))
		},
	}

	cmd.Flags().IntVarP(&so.topK, "top-k", "k", 0, "number of results (default: search.top_k from config)")
	cmd.Flags().StringVarP(&so.format, "format", "f", formatTable, "output format: table or json")
	return cmd
}

func runSearch(cmd *cobra.Command, opts *rootOptions, so *searchOptions, query string) error {
	if so.format != formatTable && so.format != formatJSON {
		return fmt.Errorf("%w: unknown format %q", domain.ErrInvalidInput, so.format)
	}
	if so.topK < 0 {
		return fmt.Errorf("%w: --top-k must be positive, got %d", domain.ErrInvalidInput, so.topK)
	}

	ctx := commandContext(cmd)
	a, err := newApp(ctx, opts, false)
	if err != nil {
		return err
	}
	defer a.Close()

	k := so.topK
	if k == 0 {
		k = a.cfg.Search.TopK
	}
	results, err := a.svc.Search(ctx, query, k)
	if err != nil {
		return err
	}
	return writeResults(cmd.OutOrStdout(), query, results, so.format)
}

type searchOutput struct {
	Query   string                `json:"query"`
	Results []domain.SearchResult `json:"results"`
}

func writeResults(w io.Writer, query string, results []domain.SearchResult, format string) error {
	if format == formatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(searchOutput{Query: query, Results: results})
	}

	if len(results) == 0 {
		_, err := fmt.Fprintln(w, "No matches.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tSIMILARITY\tTEXT\tID")
	for i, r := range results {
		fmt.Fprintf(tw, "%d\t%.4f\t%s\t%s\n", i+1, r.Score, truncate(r.Text, 60), r.ID)
	}
	return tw.Flush()
}

// truncate shortens s to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
