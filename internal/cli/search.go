package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harun/recall/pkg/memory"
	"github.com/spf13/cobra"
)

var (
	searchLimit    int
	searchMinScore float64
	searchJSON     bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search memory files",
	Long: `Run a hybrid vector and keyword search over the indexed memory files.
The index is synced first when it has pending changes.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "maximum number of results (default from config)")
	searchCmd.Flags().Float64Var(&searchMinScore, "min-score", 0, "minimum relevance score in [0, 1] (default from config)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "print results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	s, err := openSession(false)
	if err != nil {
		return err
	}
	defer s.Close()

	params := memory.MemorySearchParams{
		Query:      strings.Join(args, " "),
		MaxResults: searchLimit,
	}
	if cmd.Flags().Changed("min-score") {
		params.MinScore = &searchMinScore
	}
	result, err := memory.MemorySearch(commandContext(cmd), s.manager, params)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if searchJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if result.Count == 0 {
		fmt.Fprintln(w, "No results.")
		return nil
	}
	for i, r := range result.Results {
		fmt.Fprintf(w, "%d. %s:%d-%d  score=%.3f", i+1, r.Path, r.StartLine, r.EndLine, r.Score)
		if r.VectorScore != nil {
			fmt.Fprintf(w, "  vector=%.3f", *r.VectorScore)
		}
		if r.KeywordScore != nil {
			fmt.Fprintf(w, "  keyword=%.3f", *r.KeywordScore)
		}
		fmt.Fprintln(w)
		for _, line := range strings.Split(r.Snippet, "\n") {
			fmt.Fprintf(w, "   %s\n", line)
		}
	}
	return nil
}
