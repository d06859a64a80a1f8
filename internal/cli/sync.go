package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	syncengine "github.com/dl-alexandre/syncapp/internal/sync"
	"github.com/dl-alexandre/syncapp/internal/sync/executor"
	"github.com/dl-alexandre/syncapp/internal/types"
)

type actionCommand struct {
	action  syncengine.Action
	use     string
	short   string
	long    string
	aliases []string
}

var actionCommands = []actionCommand{
	{
		action: syncengine.ActionIndex,
		use:    "index [url...]",
		short:  "List URLs into the metadata cache",
		long:   "Lists every URL, or every configured URL when none are given, and refreshes the cached metadata.",
	},
	{
		action: syncengine.ActionSync,
		use:    "sync [src dst]...",
		short:  "Compare URL pairs and queue the differences",
		long: `Indexes URLs two at a time and queues a transfer for every object that
differs between the members of a pair. Without URLs the queue is cleared
and every configured pair is compared. The resulting queue is printed.`,
	},
	{
		action:  syncengine.ActionProcess,
		use:     "proc",
		short:   "Execute every queued transfer",
		aliases: []string{"process"},
	},
	{
		action:  syncengine.ActionCopy,
		use:     "cp <src> <dst>",
		short:   "Copy one object",
		aliases: []string{"copy"},
	},
	{
		action:  syncengine.ActionList,
		use:     "ls <url...>",
		short:   "Print the objects below each URL",
		aliases: []string{"list"},
	},
	{
		action:  syncengine.ActionDelete,
		use:     "rm [url...]",
		short:   "Delete objects",
		long:    "Deletes the objects behind the given URLs, or every object referenced by the sync queue when none are given.",
		aliases: []string{"delete"},
	},
	{
		action:  syncengine.ActionMove,
		use:     "mv <src> <dst>",
		short:   "Move an object within one backend",
		aliases: []string{"move"},
	},
	{
		action: syncengine.ActionCount,
		use:    "count <url...>",
		short:  "Count the objects below each URL",
	},
	{
		action:  syncengine.ActionSerialize,
		use:     "ser <url...>",
		short:   "Write the listing of each URL as newline-delimited JSON",
		aliases: []string{"serialize"},
	},
	{
		action:  syncengine.ActionAddConfig,
		use:     "add <src> <dst>",
		short:   "Remember a sync pair",
		aliases: []string{"add-config", "add_config"},
	},
	{
		action:  syncengine.ActionRemoveConfig,
		use:     "rm-config <src> <dst>",
		short:   "Forget a sync pair",
		aliases: []string{"remove-config", "remove_config"},
	},
	{
		action:  syncengine.ActionShowConfig,
		use:     "show-config",
		short:   "Print the configured sync pairs",
		aliases: []string{"show_config"},
	},
	{
		action:  syncengine.ActionShowCache,
		use:     "show",
		short:   "Print the sync queue",
		aliases: []string{"show-cache", "show_cache"},
	},
	{
		action: syncengine.ActionWatch,
		use:    "watch [url...]",
		short:  "Re-index local trees as they change",
		long:   "Watches file:// URLs, or every configured file:// URL when none are given, and re-indexes a tree shortly after it changes.",
	},
}

func init() {
	for _, ac := range actionCommands {
		rootCmd.AddCommand(newActionCmd(ac))
	}
}

func newActionCmd(ac actionCommand) *cobra.Command {
	action := ac.action
	cmd := &cobra.Command{
		Use:     ac.use,
		Short:   ac.short,
		Long:    ac.long,
		Aliases: ac.aliases,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, action, args)
		},
	}
	cmd.Flags().StringArrayP("url", "u", nil, "URL argument (repeatable, merged with positional URLs)")

	switch action {
	case syncengine.ActionSerialize:
		cmd.Flags().StringP("file", "f", "", "Write to this file instead of stdout")
		cmd.Flags().Bool("compress", false, "Gzip the output")
	case syncengine.ActionWatch:
		cmd.Flags().Duration("debounce", syncengine.DefaultDebounce, "Quiet period before a changed tree is re-indexed")
	}
	return cmd
}

// streams writes its own output format regardless of --output
func streams(action syncengine.Action) bool {
	switch action {
	case syncengine.ActionSerialize, syncengine.ActionList, syncengine.ActionWatch:
		return true
	}
	return false
}

func buildRequest(cmd *cobra.Command, action syncengine.Action, args []string) syncengine.Request {
	flagURLs, _ := cmd.Flags().GetStringArray("url")
	req := syncengine.Request{
		Action: action,
		URLs:   append(append([]string{}, flagURLs...), args...),
	}
	switch action {
	case syncengine.ActionSerialize:
		req.File, _ = cmd.Flags().GetString("file")
		req.Compress, _ = cmd.Flags().GetBool("compress")
	case syncengine.ActionWatch:
		req.Debounce, _ = cmd.Flags().GetDuration("debounce")
	}
	return req
}

func runAction(cmd *cobra.Command, action syncengine.Action, args []string) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := buildRequest(cmd, action, args)
	text := globalFlags.OutputFormat == types.OutputFormatText || streams(action)

	var sink io.Writer = io.Discard
	if text {
		sink = cmd.OutOrStdout()
	}
	e, err := openEngine(sink)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	if text {
		return e.Run(ctx, req)
	}

	data, err := structured(ctx, e, req)
	if err != nil {
		return err
	}
	return outputWriter(cmd).WriteSuccess(cmd.CommandPath(), data)
}

// structured runs req and returns its result as a value for the JSON and
// table renderers
func structured(ctx context.Context, e *syncengine.Engine, req syncengine.Request) (interface{}, error) {
	urls, err := syncengine.CanonicalURLs(req.URLs)
	if err != nil {
		return nil, err
	}

	switch req.Action {
	case syncengine.ActionIndex:
		adapters, err := e.Index(ctx, urls)
		indexed := 0
		for _, a := range adapters {
			if a != nil {
				indexed++
			}
		}
		return map[string]interface{}{"indexed": indexed, "requested": len(adapters)}, err
	case syncengine.ActionSync:
		pairs, err := e.Sync(ctx, urls)
		return newPairList(pairs), err
	case syncengine.ActionProcess:
		summary, err := e.Process(ctx)
		return summaryView(summary), err
	case syncengine.ActionDelete:
		summary, err := e.Delete(ctx, urls)
		return summaryView(summary), err
	case syncengine.ActionCount:
		results, err := e.Count(ctx, urls)
		return countList(results), err
	case syncengine.ActionCopy:
		if err := e.Copy(ctx, urls); err != nil {
			return nil, err
		}
		return map[string]interface{}{"src": urls[0], "dst": urls[1], "status": "copied"}, nil
	case syncengine.ActionMove:
		if err := e.Move(ctx, urls); err != nil {
			return nil, err
		}
		return map[string]interface{}{"src": urls[0], "dst": urls[1], "status": "moved"}, nil
	case syncengine.ActionAddConfig:
		if err := e.AddConfig(ctx, urls); err != nil {
			return nil, err
		}
		return map[string]interface{}{"src": urls[0], "dst": urls[1], "status": "added"}, nil
	case syncengine.ActionRemoveConfig:
		if err := e.RemoveConfig(ctx, urls); err != nil {
			return nil, err
		}
		return map[string]interface{}{"src": urls[0], "dst": urls[1], "status": "removed"}, nil
	case syncengine.ActionShowConfig:
		configs, err := e.Configs(ctx)
		return configList(configs), err
	case syncengine.ActionShowCache:
		entries, err := e.Queue(ctx)
		return queueList(entries), err
	}
	return nil, e.Run(ctx, req)
}

func summaryView(s executor.Summary) map[string]interface{} {
	return map[string]interface{}{
		"total":     s.Total,
		"succeeded": s.Succeeded,
		"failed":    s.Failed,
	}
}
