package cli

import (
	"encoding/json"
	"fmt"

	"github.com/harun/recall/pkg/memory"
	"github.com/spf13/cobra"
)

var (
	syncForce bool
	syncJSON  bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Bring the index up to date with the workspace",
	Long: `Scan the workspace for changed memory files and index them.
With --force every document is re-chunked and re-embedded into a staged
index that replaces the live one only when the whole run succeeds.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncForce, "force", false, "reindex every document")
	syncCmd.Flags().BoolVar(&syncJSON, "json", false, "print the sync outcome as JSON")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	s, err := openSession(false)
	if err != nil {
		return err
	}
	defer s.Close()

	out, err := s.manager.Sync(commandContext(cmd), memory.SyncRequest{
		Reason: memory.ReasonManual,
		Force:  syncForce,
	})
	if out == nil {
		return err
	}

	w := cmd.OutOrStdout()
	if syncJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(out); encErr != nil {
			return encErr
		}
		return err
	}

	fmt.Fprintf(w, "Status: %s\n", out.Status)
	if out.FullReindex {
		fmt.Fprintln(w, "Full reindex: yes")
	}
	fmt.Fprintf(w, "Added: %d  Modified: %d  Removed: %d  Unchanged: %d\n", out.Added, out.Modified, out.Removed, out.Unchanged)
	fmt.Fprintf(w, "Chunks written: %d (embedded %d, cached %d)\n", out.ChunksWritten, out.EmbeddedChunks, out.CachedEmbeddings)
	for _, sk := range out.Skipped {
		fmt.Fprintf(w, "Skipped: %s (%s)\n", sk.Path, sk.Reason)
	}
	for _, f := range out.Failed {
		fmt.Fprintf(w, "Failed: %s (%s)\n", f.Path, f.Error)
	}
	fmt.Fprintf(w, "Duration: %s\n", formatDuration(out.Duration))
	return err
}
