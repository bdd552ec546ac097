package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index status",
	Long:  `Show the memory index status and whether a recall watcher is running.`,
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print status as JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	s, err := openSession(false)
	if err != nil {
		return err
	}
	defer s.Close()

	st := s.manager.Status()
	w := cmd.OutOrStdout()

	if statusJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	fmt.Fprintf(w, "Workspace: %s\n", st.WorkspacePath)
	fmt.Fprintf(w, "Index: %s\n", st.DBPath)
	fmt.Fprintf(w, "Files: %d\n", st.TotalFiles)
	fmt.Fprintf(w, "Chunks: %d (%d text-only)\n", st.TotalChunks, st.TextOnlyChunks)
	provider := fmt.Sprintf("%s/%s", st.Provider, st.Model)
	if st.ProviderDegraded {
		provider += " (degraded)"
	}
	fmt.Fprintf(w, "Provider: %s\n", provider)
	if st.VectorEnabled {
		ext := st.VectorExtension
		if ext == "" {
			ext = "unavailable"
		}
		fmt.Fprintf(w, "Vectors: enabled (sqlite-vec %s)\n", ext)
	} else {
		fmt.Fprintln(w, "Vectors: disabled")
	}
	fmt.Fprintf(w, "Embedding cache: %d entries\n", st.EmbeddingCacheEntries)
	if st.LastSyncTime != nil {
		fmt.Fprintf(w, "Last sync: %s ago (%s)\n", formatDuration(time.Since(*st.LastSyncTime)), st.LastState)
	} else {
		fmt.Fprintln(w, "Last sync: never")
	}

	pidFile := getPIDFilePath(s.cfg.DataDir)
	if !isRunning(pidFile) {
		fmt.Fprintln(w, "Watcher: stopped")
		return nil
	}
	pid, _ := readPID(pidFile)
	if info, err := os.Stat(pidFile); err == nil {
		fmt.Fprintf(w, "Watcher: running (PID %d, up %s)\n", pid, formatDuration(time.Since(info.ModTime())))
	} else {
		fmt.Fprintf(w, "Watcher: running (PID %d)\n", pid)
	}
	return nil
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
