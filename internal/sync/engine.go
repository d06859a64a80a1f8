package sync

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dl-alexandre/syncapp/internal/backend"
	"github.com/dl-alexandre/syncapp/internal/fileinfo"
	"github.com/dl-alexandre/syncapp/internal/logging"
	"github.com/dl-alexandre/syncapp/internal/sync/diff"
	"github.com/dl-alexandre/syncapp/internal/sync/exclude"
	"github.com/dl-alexandre/syncapp/internal/sync/executor"
	"github.com/dl-alexandre/syncapp/internal/sync/index"
	"github.com/dl-alexandre/syncapp/internal/utils"
)

// Action names one orchestrated operation
type Action string

const (
	ActionIndex        Action = "index"
	ActionSync         Action = "sync"
	ActionProcess      Action = "proc"
	ActionCopy         Action = "cp"
	ActionList         Action = "ls"
	ActionDelete       Action = "rm"
	ActionMove         Action = "mv"
	ActionCount        Action = "count"
	ActionSerialize    Action = "ser"
	ActionAddConfig    Action = "add"
	ActionRemoveConfig Action = "rm-config"
	ActionShowConfig   Action = "show-config"
	ActionShowCache    Action = "show"
	ActionWatch        Action = "watch"
)

var actionAliases = map[string]Action{
	"process":       ActionProcess,
	"copy":          ActionCopy,
	"list":          ActionList,
	"delete":        ActionDelete,
	"move":          ActionMove,
	"serialize":     ActionSerialize,
	"add_config":    ActionAddConfig,
	"remove_config": ActionRemoveConfig,
	"show_config":   ActionShowConfig,
	"show_cache":    ActionShowCache,
}

// ParseAction accepts the short action names and their long aliases
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionIndex, ActionSync, ActionProcess, ActionCopy, ActionList, ActionDelete, ActionMove,
		ActionCount, ActionSerialize, ActionAddConfig, ActionRemoveConfig, ActionShowConfig, ActionShowCache, ActionWatch:
		return a, nil
	}
	if a, ok := actionAliases[s]; ok {
		return a, nil
	}
	return "", invalidArgument(fmt.Sprintf("unknown action %q", s))
}

// AdapterSource builds the adapter owning a URL
type AdapterSource interface {
	FromURL(ctx context.Context, rawURL string) (backend.Adapter, error)
}

type Options struct {
	Workers int
	// Out receives the plain-text results of list-like actions
	Out io.Writer
}

// Request is one dispatched action with its arguments
type Request struct {
	Action   Action
	URLs     []string
	File     string
	Compress bool
	Debounce time.Duration
}

type Engine struct {
	db      *index.DB
	source  AdapterSource
	workers int
	out     io.Writer
	logger  logging.Logger

	// watchReady is called once every watched tree is registered
	watchReady func()
}

func NewEngine(db *index.DB, source AdapterSource, opts Options, logger logging.Logger) *Engine {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Engine{
		db:      db,
		source:  source,
		workers: workers,
		out:     out,
		logger:  logging.OrNoOp(logger),
	}
}

func (e *Engine) Close() error {
	if e == nil || e.db == nil {
		return nil
	}
	return e.db.Close()
}

// Run dispatches req to the matching action
func (e *Engine) Run(ctx context.Context, req Request) error {
	urls, err := CanonicalURLs(req.URLs)
	if err != nil {
		return err
	}
	e.logger.Debug("Dispatching action", logging.F("action", string(req.Action)), logging.F("urls", urls))

	switch req.Action {
	case ActionIndex:
		_, err := e.Index(ctx, urls)
		return err
	case ActionSync:
		_, err := e.Sync(ctx, urls)
		return err
	case ActionProcess:
		_, err := e.Process(ctx)
		return err
	case ActionCopy:
		return e.Copy(ctx, urls)
	case ActionList:
		return e.List(ctx, urls)
	case ActionDelete:
		_, err := e.Delete(ctx, urls)
		return err
	case ActionMove:
		return e.Move(ctx, urls)
	case ActionCount:
		_, err := e.Count(ctx, urls)
		return err
	case ActionSerialize:
		return e.SerializeTo(ctx, urls, req.File, req.Compress)
	case ActionAddConfig:
		return e.AddConfig(ctx, urls)
	case ActionRemoveConfig:
		return e.RemoveConfig(ctx, urls)
	case ActionShowConfig:
		return e.ShowConfig(ctx)
	case ActionShowCache:
		return e.ShowCache(ctx)
	case ActionWatch:
		return e.Watch(ctx, urls, req.Debounce)
	}
	return invalidArgument(fmt.Sprintf("unknown action %q", req.Action))
}

func CanonicalURLs(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		u, err := fileinfo.Canonical(r)
		if err != nil {
			return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidURL, err.Error()).
				WithContext("url", r).
				Build(), err)
		}
		out = append(out, u)
	}
	return out, nil
}

func invalidArgument(msg string) error {
	return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, msg).Build())
}

func (e *Engine) executorOptions() executor.Options {
	return executor.Options{Concurrency: e.workers}
}

// batchError reports a fan-out in which some items failed. A fan-out in
// which every item failed surfaces the first error unchanged.
func batchError(action Action, summary executor.Summary, first error) error {
	if first == nil {
		return nil
	}
	if summary.Failed >= summary.Total {
		return first
	}
	return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeBatchPartialFailure,
		fmt.Sprintf("%s: %d of %d failed: %v", action, summary.Failed, summary.Total, first)).
		WithContext("succeeded", summary.Succeeded).
		WithContext("failed", summary.Failed).
		Build(), first)
}

func (e *Engine) configURLs(ctx context.Context) ([]string, error) {
	configs, err := e.db.ListSyncConfigs(ctx)
	if err != nil {
		return nil, err
	}
	urls := make([]string, 0, 2*len(configs))
	for _, c := range configs {
		urls = append(urls, c.SrcURL, c.DstURL)
	}
	return urls, nil
}

func (e *Engine) blacklist(ctx context.Context) (*exclude.Matcher, error) {
	entries, err := e.db.ListBlacklist(ctx)
	if err != nil {
		return nil, err
	}
	urls := make([]string, 0, len(entries))
	for _, b := range entries {
		urls = append(urls, b.URL)
	}
	return exclude.New(urls), nil
}

// indexURL lists one URL, drops blacklisted objects and merges the result
// into the metadata cache
func (e *Engine) indexURL(ctx context.Context, rawURL string, bl *exclude.Matcher) (backend.Adapter, error) {
	a, err := e.source.FromURL(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	files, err := a.FillFileList(ctx)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", rawURL, err)
	}
	files = bl.Filter(files)

	list := a.List()
	list.WithList(files)
	n, err := e.db.CacheFileList(ctx, list.ServiceType(), list.Session(), list.Files())
	if err != nil {
		return nil, fmt.Errorf("cache %s: %w", rawURL, err)
	}
	e.logger.Info("Indexed",
		logging.F("url", rawURL),
		logging.F("files", list.Len()),
		logging.F("written", n),
	)
	return a, nil
}

// Index lists every URL, or every configured URL when none are given, and
// refreshes the metadata cache. Adapters are returned in input order; a
// failed URL leaves a nil slot.
func (e *Engine) Index(ctx context.Context, urls []string) ([]backend.Adapter, error) {
	if len(urls) == 0 {
		var err error
		if urls, err = e.configURLs(ctx); err != nil {
			return nil, err
		}
	}
	bl, err := e.blacklist(ctx)
	if err != nil {
		return nil, err
	}
	adapters, summary, err := executor.Map(ctx, urls, e.executorOptions(),
		func(ctx context.Context, u string) (backend.Adapter, error) {
			a, err := e.indexURL(ctx, u, bl)
			if err != nil {
				e.logger.Error("Index failed", logging.F("url", u), logging.Err(err))
			}
			return a, err
		})
	return adapters, batchError(ActionIndex, summary, err)
}

// Sync indexes URLs two at a time and queues every divergence between the
// members of each pair. Without URLs the queue is cleared and every
// configured pair is resynced.
func (e *Engine) Sync(ctx context.Context, urls []string) ([]diff.Pair, error) {
	if len(urls) == 0 {
		n, err := e.db.ClearSyncQueue(ctx)
		if err != nil {
			return nil, err
		}
		e.logger.Debug("Cleared sync queue", logging.F("entries", n))
		if urls, err = e.configURLs(ctx); err != nil {
			return nil, err
		}
	}
	if len(urls)%2 != 0 {
		e.logger.Warn("Ignoring unpaired URL", logging.F("url", urls[len(urls)-1]))
	}

	adapters, indexErr := e.Index(ctx, urls)
	if adapters == nil && indexErr != nil {
		return nil, indexErr
	}

	var pairs []diff.Pair
	var firstErr error
	for i := 0; i+1 < len(adapters); i += 2 {
		a, b := adapters[i], adapters[i+1]
		if a == nil || b == nil {
			continue
		}
		found, err := diff.Reconcile(ctx, a, b, e.db, e.logger)
		if err != nil {
			e.logger.Error("Reconcile failed",
				logging.F("a", urls[i]), logging.F("b", urls[i+1]), logging.Err(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		pairs = append(pairs, found...)
		for _, u := range urls[i : i+2] {
			if err := e.db.TouchSyncConfig(ctx, u); err != nil {
				return pairs, err
			}
		}
	}

	if err := e.ShowCache(ctx); err != nil {
		return pairs, err
	}
	if indexErr != nil {
		return pairs, indexErr
	}
	return pairs, firstErr
}

// resolve returns the cached description of rawURL, or what the URL alone
// reveals when it has never been indexed
func (e *Engine) resolve(ctx context.Context, rawURL string) (*fileinfo.FileInfo, error) {
	fi, ok, err := e.db.GetByURL(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if ok {
		return fi, nil
	}
	fi, err = fileinfo.FromURL(rawURL)
	if err != nil {
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidURL, err.Error()).
			WithContext("url", rawURL).
			Build(), err)
	}
	return fi, nil
}

// transfer copies src to dst with the adapter of the remote side
func (e *Engine) transfer(ctx context.Context, src, dst *fileinfo.FileInfo) error {
	owner := dst.URL
	if dst.ServiceType == fileinfo.ServiceLocal {
		owner = src.URL
	}
	a, err := e.source.FromURL(ctx, owner)
	if err != nil {
		return err
	}
	if err := backend.CopyObject(ctx, a, src, dst); err != nil {
		return err
	}
	return a.Cleanup()
}

// Process executes every queued transfer. An entry leaves the queue only
// once its copy succeeded, so failures are retried by the next pass.
func (e *Engine) Process(ctx context.Context) (executor.Summary, error) {
	entries, err := e.db.ListSyncQueue(ctx)
	if err != nil {
		return executor.Summary{}, err
	}
	summary, err := executor.Run(ctx, entries, e.executorOptions(), func(ctx context.Context, entry index.SyncQueueEntry) error {
		src, err := e.resolve(ctx, entry.SrcURL)
		if err != nil {
			return err
		}
		dst, err := e.resolve(ctx, entry.DstURL)
		if err != nil {
			return err
		}
		if err := e.transfer(ctx, src, dst); err != nil {
			e.logger.Error("Transfer failed",
				logging.F("src", entry.SrcURL), logging.F("dst", entry.DstURL), logging.Err(err))
			return fmt.Errorf("copy %s -> %s: %w", entry.SrcURL, entry.DstURL, err)
		}
		e.logger.Info("Transferred", logging.F("src", entry.SrcURL), logging.F("dst", entry.DstURL))
		return e.db.DeleteSyncEntry(ctx, entry.ID)
	})
	e.logger.Info("Processed sync queue",
		logging.F("total", summary.Total),
		logging.F("succeeded", summary.Succeeded),
		logging.F("failed", summary.Failed),
	)
	return summary, batchError(ActionProcess, summary, err)
}

// Delete removes the objects behind urls, or every object referenced by
// the queue when no URL is given. The cache is left untouched.
func (e *Engine) Delete(ctx context.Context, urls []string) (executor.Summary, error) {
	if len(urls) == 0 {
		entries, err := e.db.ListSyncQueue(ctx)
		if err != nil {
			return executor.Summary{}, err
		}
		seen := map[string]bool{}
		for _, entry := range entries {
			for _, u := range []string{entry.SrcURL, entry.DstURL} {
				if !seen[u] {
					seen[u] = true
					urls = append(urls, u)
				}
			}
		}
	}

	groups := fileinfo.GroupURLs(urls)
	var ordered []string
	for _, scheme := range fileinfo.SortedSchemes(groups) {
		ordered = append(ordered, groups[scheme]...)
	}
	summary, err := executor.Run(ctx, ordered, e.executorOptions(), func(ctx context.Context, u string) error {
		fi, err := e.resolve(ctx, u)
		if err != nil {
			return err
		}
		a, err := e.source.FromURL(ctx, u)
		if err != nil {
			return err
		}
		if err := a.Delete(ctx, fi); err != nil {
			return fmt.Errorf("delete %s: %w", u, err)
		}
		e.logger.Info("Deleted", logging.F("url", u))
		return nil
	})
	return summary, batchError(ActionDelete, summary, err)
}
