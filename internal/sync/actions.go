package sync

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/pgzip"

	"github.com/dl-alexandre/syncapp/internal/fileinfo"
	"github.com/dl-alexandre/syncapp/internal/logging"
	"github.com/dl-alexandre/syncapp/internal/sync/executor"
	"github.com/dl-alexandre/syncapp/internal/sync/index"
	"github.com/dl-alexandre/syncapp/internal/utils"
)

func needURLs(urls []string, n int, exact bool) error {
	switch {
	case exact && len(urls) != n:
		return invalidArgument(fmt.Sprintf("need exactly %d URLs, got %d", n, len(urls)))
	case len(urls) < n && n == 1:
		return invalidArgument("need at least 1 URL")
	case len(urls) < n:
		return invalidArgument(fmt.Sprintf("need %d URLs, got %d", n, len(urls)))
	}
	return nil
}

// Copy transfers urls[0] to urls[1]
func (e *Engine) Copy(ctx context.Context, urls []string) error {
	if err := needURLs(urls, 2, false); err != nil {
		return err
	}
	src, err := e.resolve(ctx, urls[0])
	if err != nil {
		return err
	}
	dst, err := e.resolve(ctx, urls[1])
	if err != nil {
		return err
	}
	return e.transfer(ctx, src, dst)
}

// List prints the contents of each URL, grouped by scheme
func (e *Engine) List(ctx context.Context, urls []string) error {
	if err := needURLs(urls, 1, false); err != nil {
		return err
	}
	groups := fileinfo.GroupURLs(urls)
	for _, scheme := range fileinfo.SortedSchemes(groups) {
		for _, u := range groups[scheme] {
			a, err := e.source.FromURL(ctx, u)
			if err != nil {
				return err
			}
			if err := a.PrintList(ctx, e.out); err != nil {
				return fmt.Errorf("list %s: %w", u, err)
			}
		}
	}
	return nil
}

// Move renames urls[0] to urls[1] within one backend
func (e *Engine) Move(ctx context.Context, urls []string) error {
	if err := needURLs(urls, 2, true); err != nil {
		return err
	}
	src, err := e.resolve(ctx, urls[0])
	if err != nil {
		return err
	}
	dst, err := e.resolve(ctx, urls[1])
	if err != nil {
		return err
	}
	if src.ServiceType != dst.ServiceType {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeServiceTypeMismatch,
			"can only move within a service type").
			WithContext("src", string(src.ServiceType)).
			WithContext("dst", string(dst.ServiceType)).
			Build())
	}
	a, err := e.source.FromURL(ctx, urls[0])
	if err != nil {
		return err
	}
	return a.MoveFile(ctx, src, dst)
}

// CountResult is the number of objects listed below URL
type CountResult struct {
	URL   string `json:"url"`
	Count int    `json:"count"`
}

// Count lists every URL and prints url<TAB>n for each
func (e *Engine) Count(ctx context.Context, urls []string) ([]CountResult, error) {
	if err := needURLs(urls, 1, false); err != nil {
		return nil, err
	}
	bl, err := e.blacklist(ctx)
	if err != nil {
		return nil, err
	}
	results, summary, err := executor.Map(ctx, urls, e.executorOptions(),
		func(ctx context.Context, u string) (CountResult, error) {
			a, err := e.source.FromURL(ctx, u)
			if err != nil {
				return CountResult{}, err
			}
			files, err := a.FillFileList(ctx)
			if err != nil {
				return CountResult{}, fmt.Errorf("list %s: %w", u, err)
			}
			a.List().WithList(bl.Filter(files))
			return CountResult{URL: u, Count: a.List().Len()}, nil
		})
	if err != nil {
		return results, batchError(ActionCount, summary, err)
	}
	for _, r := range results {
		if _, err := fmt.Fprintf(e.out, "%s\t%d\n", r.URL, r.Count); err != nil {
			return results, err
		}
	}
	return results, nil
}

// Serialize lists every URL and writes the observed objects to w as
// newline-delimited JSON, gzip-compressed when compress is set
func (e *Engine) Serialize(ctx context.Context, urls []string, w io.Writer, compress bool) (err error) {
	if err := needURLs(urls, 1, false); err != nil {
		return err
	}
	bl, err := e.blacklist(ctx)
	if err != nil {
		return err
	}
	lists, summary, err := executor.Map(ctx, urls, e.executorOptions(),
		func(ctx context.Context, u string) ([]*fileinfo.FileInfo, error) {
			a, err := e.source.FromURL(ctx, u)
			if err != nil {
				return nil, err
			}
			files, err := a.FillFileList(ctx)
			if err != nil {
				return nil, fmt.Errorf("list %s: %w", u, err)
			}
			a.List().WithList(bl.Filter(files))
			return a.List().Files(), nil
		})
	if err != nil {
		return batchError(ActionSerialize, summary, err)
	}

	if compress {
		zw, zerr := pgzip.NewWriterLevel(w, pgzip.BestSpeed)
		if zerr != nil {
			return zerr
		}
		defer func() {
			if closeErr := zw.Close(); closeErr != nil && err == nil {
				err = closeErr
			}
		}()
		w = zw
	}
	for _, files := range lists {
		if err := fileinfo.WriteNDJSON(w, files); err != nil {
			return err
		}
	}
	return nil
}

// SerializeTo serializes to path, or to the engine output when path is empty
func (e *Engine) SerializeTo(ctx context.Context, urls []string, path string, compress bool) (err error) {
	if path == "" {
		return e.Serialize(ctx, urls, e.out, compress)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return e.Serialize(ctx, urls, f, compress)
}

// AddConfig records urls[0] and urls[1] as a sync pair
func (e *Engine) AddConfig(ctx context.Context, urls []string) error {
	if err := needURLs(urls, 2, true); err != nil {
		return err
	}
	if err := e.db.AddSyncConfig(ctx, urls[0], urls[1]); err != nil {
		return err
	}
	e.logger.Info("Added sync pair", logging.F("src", urls[0]), logging.F("dst", urls[1]))
	return nil
}

// RemoveConfig forgets the pair urls[0] urls[1]
func (e *Engine) RemoveConfig(ctx context.Context, urls []string) error {
	if err := needURLs(urls, 2, true); err != nil {
		return err
	}
	configs, err := e.db.ListSyncConfigs(ctx)
	if err != nil {
		return err
	}
	for _, c := range configs {
		if c.SrcURL != urls[0] || c.DstURL != urls[1] {
			continue
		}
		if err := e.db.DeleteSyncConfig(ctx, c.ID); err != nil {
			return err
		}
		e.logger.Info("Removed sync pair", logging.F("src", urls[0]), logging.F("dst", urls[1]))
		return nil
	}
	return invalidArgument(fmt.Sprintf("no sync pair %s %s", urls[0], urls[1]))
}

func (e *Engine) Configs(ctx context.Context) ([]index.SyncConfig, error) {
	return e.db.ListSyncConfigs(ctx)
}

// ShowConfig prints every configured pair as "src dst"
func (e *Engine) ShowConfig(ctx context.Context) error {
	configs, err := e.db.ListSyncConfigs(ctx)
	if err != nil {
		return err
	}
	for _, c := range configs {
		if _, err := fmt.Fprintf(e.out, "%s %s\n", c.SrcURL, c.DstURL); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) Queue(ctx context.Context) ([]index.SyncQueueEntry, error) {
	return e.db.ListSyncQueue(ctx)
}

// ShowCache prints every queued transfer as "src dst"
func (e *Engine) ShowCache(ctx context.Context) error {
	entries, err := e.db.ListSyncQueue(ctx)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if _, err := fmt.Fprintf(e.out, "%s %s\n", entry.SrcURL, entry.DstURL); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) AddBlacklist(ctx context.Context, urls []string) error {
	if err := needURLs(urls, 1, false); err != nil {
		return err
	}
	for _, u := range urls {
		if err := e.db.AddBlacklist(ctx, u); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) Blacklist(ctx context.Context) ([]index.BlacklistEntry, error) {
	return e.db.ListBlacklist(ctx)
}

func (e *Engine) DeleteBlacklist(ctx context.Context, id int64) error {
	return e.db.DeleteBlacklist(ctx, id)
}
