package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dl-alexandre/syncapp/internal/utils"
)

var blacklistCmd = &cobra.Command{
	Use:   "blacklist",
	Short: "Manage URLs excluded from indexing",
	Long: `Blacklisted URLs are skipped while indexing, counting and serializing.
An entry excludes every object whose URL contains it, so a trailing slash
(file:///data/tmp/) excludes a whole subtree.`,
}

var blacklistAddCmd = &cobra.Command{
	Use:   "add <url...>",
	Short: "Exclude URLs",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runBlacklistAdd,
}

var blacklistListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List excluded URLs",
	RunE:    runBlacklistList,
}

var blacklistRemoveCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"remove"},
	Short:   "Remove an exclusion by id",
	Args:    cobra.ExactArgs(1),
	RunE:    runBlacklistRemove,
}

func init() {
	blacklistCmd.AddCommand(blacklistAddCmd)
	blacklistCmd.AddCommand(blacklistListCmd)
	blacklistCmd.AddCommand(blacklistRemoveCmd)
	rootCmd.AddCommand(blacklistCmd)
}

func outputWriter(cmd *cobra.Command) *OutputWriter {
	return NewOutputWriter(globalFlags.OutputFormat, globalFlags.Quiet, globalFlags.Verbose).
		WithWriters(cmd.OutOrStdout(), cmd.ErrOrStderr())
}

func runBlacklistAdd(cmd *cobra.Command, args []string) error {
	e, err := openEngine(io.Discard)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	if err := e.AddBlacklist(commandContext(cmd), args); err != nil {
		return err
	}
	out := outputWriter(cmd)
	out.Log("Excluded %d URL(s)", len(args))
	return out.WriteSuccess("blacklist.add", map[string]interface{}{"added": args})
}

func runBlacklistList(cmd *cobra.Command, args []string) error {
	e, err := openEngine(io.Discard)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	entries, err := e.Blacklist(commandContext(cmd))
	if err != nil {
		return err
	}
	return outputWriter(cmd).WriteSuccess("blacklist.ls", blacklistList(entries))
}

func runBlacklistRemove(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("invalid blacklist id %q", args[0])).Build())
	}
	e, err := openEngine(io.Discard)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	if err := e.DeleteBlacklist(commandContext(cmd), id); err != nil {
		return err
	}
	return outputWriter(cmd).WriteSuccess("blacklist.rm", map[string]interface{}{"removed": id})
}
