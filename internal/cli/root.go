package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/harun/recall/internal/config"
	"github.com/harun/recall/internal/logger"
	"github.com/harun/recall/internal/observability"
	"github.com/harun/recall/internal/tracing"
	"github.com/harun/recall/pkg/memory"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	cfgFile   string
	logLevel  string
	workspace string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "recall",
	Short: "Recall - hybrid search over agent memory files",
	Long: `Recall indexes an agent workspace's MEMORY.md and memory/*.md files
into a local SQLite index and answers hybrid vector and keyword queries
against it.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.recall/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (default is the configured workspace_path or the current directory)")

	// Version template
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

// loadConfig loads the config file and applies the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if workspace != "" {
		cfg.WorkspacePath = workspace
	}
	if cfg.WorkspacePath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		cfg.WorkspacePath = cwd
	}
	abs, err := filepath.Abs(cfg.WorkspacePath)
	if err != nil {
		return nil, err
	}
	cfg.WorkspacePath = abs
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// session bundles what a command needs to talk to the index.
type session struct {
	cfg     *config.Config
	log     *logger.Logger
	manager *memory.Manager
}

// openSession loads the config and opens a manager. One-shot commands run
// without background triggers; long-running ones pass background=true.
func openSession(background bool) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    true,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := tracing.InitOpenTelemetry(tracing.Config{
		ServiceName:    "recall",
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRatio:    cfg.Tracing.SampleRatio,
	}); err != nil {
		zl := log.GetZerolog()
		zl.Warn().Err(err).Msg("Tracing disabled")
	}

	if cfg.Logging.AuditFile != "" {
		if err := observability.InitAuditLogger(cfg.Logging.AuditFile); err != nil {
			log.Close()
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
	}

	memCfg := cfg.MemoryConfig(log.GetZerolog())
	if !background {
		memCfg.Sync.Watch = false
		memCfg.Sync.IntervalMinutes = 0
	}

	manager, err := memory.NewManager(memCfg)
	if err != nil {
		observability.SetAuditWriter(io.Discard)
		log.Close()
		return nil, err
	}
	return &session{cfg: cfg, log: log, manager: manager}, nil
}

func (s *session) Close() error {
	err := s.manager.Close()
	observability.SetAuditWriter(io.Discard)
	if cerr := s.log.Close(); err == nil {
		err = cerr
	}
	return err
}

// commandContext carries a fresh trace ID for one CLI invocation.
func commandContext(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return tracing.WithSessionKey(tracing.NewRequestContext(ctx), "cli")
}
