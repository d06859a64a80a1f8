package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dl-alexandre/syncapp/internal/config"
	"github.com/dl-alexandre/syncapp/internal/types"
	"github.com/dl-alexandre/syncapp/internal/utils"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long:  "Commands for managing syncapp configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the effective configuration after defaults, file and environment are applied",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Run 'config set --help' to see available keys",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

var configResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset configuration to defaults",
	RunE:  runConfigReset,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	RunE:  runConfigPath,
}

type configSetter func(cfg *config.Config, value string) error

func intSetter(dst func(*config.Config) *int) configSetter {
	return func(cfg *config.Config, value string) error {
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%q is not an integer", value)
		}
		*dst(cfg) = n
		return nil
	}
}

func stringSetter(dst func(*config.Config) *string) configSetter {
	return func(cfg *config.Config, value string) error {
		*dst(cfg) = value
		return nil
	}
}

func boolSetter(dst func(*config.Config) *bool) configSetter {
	return func(cfg *config.Config, value string) error {
		*dst(cfg) = parseBool(value)
		return nil
	}
}

var configSetters = map[string]configSetter{
	"databasepath":      stringSetter(func(c *config.Config) *string { return &c.DatabasePath }),
	"gdrivesecretfile":  stringSetter(func(c *config.Config) *string { return &c.GDriveSecretFile }),
	"gdrivetokenpath":   stringSetter(func(c *config.Config) *string { return &c.GDriveTokenPath }),
	"awsregion":         stringSetter(func(c *config.Config) *string { return &c.AWSRegion }),
	"s3endpoint":        stringSetter(func(c *config.Config) *string { return &c.S3Endpoint }),
	"gcsendpoint":       stringSetter(func(c *config.Config) *string { return &c.GCSEndpoint }),
	"maxkeys":           intSetter(func(c *config.Config) *int { return &c.MaxKeys }),
	"pagesize":          intSetter(func(c *config.Config) *int { return &c.PageSize }),
	"maxretries":        intSetter(func(c *config.Config) *int { return &c.MaxRetries }),
	"retrybasedelayms":  intSetter(func(c *config.Config) *int { return &c.RetryBaseDelayMs }),
	"retryceilingunits": intSetter(func(c *config.Config) *int { return &c.RetryCeilingUnits }),
	"workers":           intSetter(func(c *config.Config) *int { return &c.Workers }),
	"sshcommand":        stringSetter(func(c *config.Config) *string { return &c.SSHCommand }),
	"scpcommand":        stringSetter(func(c *config.Config) *string { return &c.SCPCommand }),
	"remotecommand":     stringSetter(func(c *config.Config) *string { return &c.RemoteCommand }),
	"sshcompress":       boolSetter(func(c *config.Config) *bool { return &c.SSHCompress }),
	"loglevel":          stringSetter(func(c *config.Config) *string { return &c.LogLevel }),
	"logfile":           stringSetter(func(c *config.Config) *string { return &c.LogFile }),
	"color":             boolSetter(func(c *config.Config) *bool { return &c.Color }),
	"defaultoutputformat": func(c *config.Config, value string) error {
		c.DefaultOutputFormat = types.OutputFormat(value)
		return nil
	},
}

func configKeys() []string {
	keys := make([]string, 0, len(configSetters))
	for k := range configSetters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func init() {
	configSetCmd.Long += "\n\nKeys: " + strings.Join(configKeys(), ", ")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configResetCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func invalidConfig(msg string) error {
	return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, msg).Build())
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	return outputWriter(cmd).WriteSuccess("config.show", appConfig)
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	out := outputWriter(cmd)
	key, value := args[0], args[1]

	set, ok := configSetters[strings.ToLower(key)]
	if !ok {
		return invalidConfig(fmt.Sprintf("Unknown configuration key: %s", key))
	}

	cfg, err := config.Load()
	if err != nil {
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeConfigError, err.Error()).Build(), err)
	}
	if err := set(cfg, value); err != nil {
		return invalidConfig(fmt.Sprintf("%s: %v", key, err))
	}
	if err := cfg.Validate(); err != nil {
		return invalidConfig(err.Error())
	}
	if err := cfg.Save(); err != nil {
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeConfigError,
			fmt.Sprintf("Failed to save configuration: %v", err)).Build(), err)
	}

	out.Log("Configuration updated: %s = %s", key, value)
	return out.WriteSuccess("config.set", map[string]interface{}{
		"key":   key,
		"value": value,
	})
}

func runConfigReset(cmd *cobra.Command, args []string) error {
	out := outputWriter(cmd)

	cfg := config.DefaultConfig()
	if err := cfg.Save(); err != nil {
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeConfigError,
			fmt.Sprintf("Failed to reset configuration: %v", err)).Build(), err)
	}

	out.Log("Configuration reset to defaults")
	return out.WriteSuccess("config.reset", cfg)
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	path, err := config.GetConfigPath()
	if err != nil {
		return err
	}
	return outputWriter(cmd).WriteSuccess("config.path", map[string]interface{}{"path": path})
}

// parseBool parses a boolean value from a string
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
