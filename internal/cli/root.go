package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dl-alexandre/syncapp/internal/config"
	"github.com/dl-alexandre/syncapp/internal/logging"
	"github.com/dl-alexandre/syncapp/internal/types"
	"github.com/dl-alexandre/syncapp/internal/utils"
	"github.com/dl-alexandre/syncapp/pkg/version"
)

var (
	globalFlags types.GlobalFlags
	logger      logging.Logger = logging.NewNoOpLogger()
	appConfig   *config.Config
	traceID     string
)

var rootCmd = &cobra.Command{
	Use:   "syncapp",
	Short: "Keep files in sync across local disks, S3, GCS, Google Drive and SSH hosts",
	Long: `syncapp indexes file trees on several storage backends into a local cache,
compares pairs of trees and copies whatever differs.

Locations are URLs: file:///path, s3://bucket/prefix, gs://bucket/prefix,
gdrive://account/path and ssh://user@host:port/path.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if globalFlags.Config != "" {
			if err := os.Setenv(config.EnvPrefix+"CONFIG_DIR", globalFlags.Config); err != nil {
				return err
			}
		}
		cfg, err := config.Load()
		if err != nil {
			return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeConfigError, err.Error()).Build(), err)
		}
		appConfig = cfg

		if err := validateGlobalFlags(cfg); err != nil {
			return err
		}

		traceID = uuid.New().String()
		logger, err = logging.NewLogger(logConfig(cfg))
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = logger.WithTraceID(traceID)
		cmd.SetContext(logging.ContextWithTraceID(commandContext(cmd), traceID))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	RunE: func(cmd *cobra.Command, args []string) error {
		return outputWriter(cmd).WriteSuccess("version", version.Get())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalFlags.Config, "config-dir", "", "Directory holding config.json or config.yaml")
	rootCmd.PersistentFlags().StringVar((*string)(&globalFlags.OutputFormat), "output", "", "Output format (text, json, table)")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.JSON, "json", false, "Output in JSON format (alias for --output json)")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Quiet, "quiet", "q", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.Debug, "debug", false, "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&globalFlags.LogFile, "log-file", "", "Path to log file")
	rootCmd.PersistentFlags().IntVar(&globalFlags.Workers, "workers", 0, "Concurrent backend operations (default from config)")

	rootCmd.AddCommand(versionCmd)
}

func validateGlobalFlags(cfg *config.Config) error {
	if globalFlags.JSON {
		globalFlags.OutputFormat = types.OutputFormatJSON
	}
	if globalFlags.OutputFormat == "" {
		globalFlags.OutputFormat = cfg.DefaultOutputFormat
	}
	switch globalFlags.OutputFormat {
	case types.OutputFormatJSON, types.OutputFormatTable, types.OutputFormatText:
	default:
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("invalid output format: %s", globalFlags.OutputFormat)).Build())
	}
	if globalFlags.Workers < 0 {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("workers must be positive, got %d", globalFlags.Workers)).Build())
	}
	return nil
}

func logConfig(cfg *config.Config) logging.LogConfig {
	lc := logging.DefaultLogConfig()
	lc.EnableColor = cfg.Color
	lc.OutputFile = cfg.LogFile
	if globalFlags.LogFile != "" {
		lc.OutputFile = globalFlags.LogFile
	}

	lc.Level = logging.ParseLevel(cfg.LogLevel)
	if globalFlags.Verbose {
		lc.Level = logging.DEBUG
	}
	if globalFlags.Debug {
		lc.EnableDebug = true
	}
	if globalFlags.Quiet {
		lc.EnableConsole = false
	}
	// JSON consumers read stdout only; keep stderr quiet unless asked
	if globalFlags.OutputFormat == types.OutputFormatJSON && !globalFlags.Verbose && !globalFlags.Debug {
		lc.EnableConsole = false
	}
	return lc
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func workers() int {
	if globalFlags.Workers > 0 {
		return globalFlags.Workers
	}
	return appConfig.Workers
}

// Execute runs the root command and returns the process exit code
func Execute() int {
	cmd, err := rootCmd.ExecuteC()
	defer func() { _ = logger.Close() }()
	if err == nil {
		return utils.ExitSuccess
	}

	cliErr := utils.AsCLIError(err)
	if globalFlags.OutputFormat == types.OutputFormatJSON {
		_ = NewOutputWriter(globalFlags.OutputFormat, globalFlags.Quiet, globalFlags.Verbose).
			WriteError(cmd.CommandPath(), cliErr)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return utils.GetExitCode(cliErr.Code)
}
