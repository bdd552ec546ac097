package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/harun/recall/internal/observability"
	"github.com/harun/recall/pkg/memory"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:     "start",
	Aliases: []string{"watch"},
	Short:   "Keep the index in sync in the foreground",
	Long: `Watch the workspace and keep the memory index in sync until interrupted.
File changes are debounced into background syncs, the optional interval
trigger runs on its schedule, and metrics.listen serves Prometheus metrics.
Stop it with Ctrl-C or "recall stop".`,
	Args: cobra.NoArgs,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	s, err := openSession(true)
	if err != nil {
		return err
	}
	defer s.Close()

	pidFile := getPIDFilePath(s.cfg.DataDir)
	if isRunning(pidFile) {
		return fmt.Errorf("recall is already running (PID file: %s)", pidFile)
	}
	if err := os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	defer os.Remove(pidFile)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zl := s.log.GetZerolog()
	if addr := s.cfg.Metrics.Listen; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.MetricsHandler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zl.Error().Err(err).Str("addr", addr).Msg("Metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	if _, err := s.manager.Sync(commandContext(cmd), memory.SyncRequest{Reason: memory.ReasonManual}); err != nil {
		zl.Warn().Err(err).Msg("Initial memory sync failed")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (PID %d)\n", s.cfg.WorkspacePath, os.Getpid())
	<-ctx.Done()
	zl.Info().Msg("Shutting down")
	return nil
}

func getPIDFilePath(dataDir string) string {
	if dataDir == "" {
		return filepath.Join(os.TempDir(), "recall.pid")
	}
	return filepath.Join(dataDir, "recall.pid")
}

func readPID(pidFile string) (int, error) {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return 0, err
	}
	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return 0, fmt.Errorf("invalid PID file: %w", err)
	}
	return pid, nil
}

func isRunning(pidFile string) bool {
	pid, err := readPID(pidFile)
	if err != nil || pid <= 0 {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix, FindProcess always succeeds, so probe with signal 0
	return process.Signal(syscall.Signal(0)) == nil
}
