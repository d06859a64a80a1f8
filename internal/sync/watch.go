package sync

import (
	"context"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dl-alexandre/syncapp/internal/fileinfo"
	"github.com/dl-alexandre/syncapp/internal/logging"
)

const DefaultDebounce = 2 * time.Second

type watchRoot struct {
	url  string
	path string
}

// Watch re-indexes local URLs whenever their trees change. Bursts of
// events are collapsed into one index per URL after debounce of quiet.
// Without URLs every configured file:// URL is watched. Watch returns
// when ctx is cancelled.
func (e *Engine) Watch(ctx context.Context, urls []string, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if len(urls) == 0 {
		configured, err := e.configURLs(ctx)
		if err != nil {
			return err
		}
		for _, u := range configured {
			if fileinfo.Scheme(u) == fileinfo.ServiceLocal.Scheme() {
				urls = append(urls, u)
			}
		}
	}
	if len(urls) == 0 {
		return invalidArgument("no local URL to watch")
	}

	roots := make([]watchRoot, 0, len(urls))
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme != fileinfo.ServiceLocal.Scheme() {
			return invalidArgument("can only watch file:// URLs, got " + raw)
		}
		roots = append(roots, watchRoot{url: raw, path: filepath.Clean(filepath.FromSlash(u.Path))})
	}
	// longest first so nested roots claim their own events
	sort.Slice(roots, func(i, j int) bool { return len(roots[i].path) > len(roots[j].path) })

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	for _, r := range roots {
		if err := addTree(w, r.path); err != nil {
			return err
		}
	}
	if _, err := e.Index(ctx, urls); err != nil {
		e.logger.Warn("Initial index failed", logging.Err(err))
	}
	e.logger.Info("Watching", logging.F("urls", urls), logging.F("debounce", debounce.String()))
	if e.watchReady != nil {
		e.watchReady()
	}

	dirty := map[string]bool{}
	var flush <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			e.logger.Warn("Watch error", logging.Err(err))
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			root, found := owner(roots, ev.Name)
			if !found {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := addTree(w, ev.Name); err != nil {
						e.logger.Warn("Cannot watch directory", logging.F("path", ev.Name), logging.Err(err))
					}
				}
			}
			e.logger.Debug("Change", logging.F("path", ev.Name), logging.F("op", ev.Op.String()))
			dirty[root.url] = true
			flush = time.After(debounce)
		case <-flush:
			flush = nil
			changed := make([]string, 0, len(dirty))
			for u := range dirty {
				changed = append(changed, u)
			}
			dirty = map[string]bool{}
			sort.Strings(changed)
			if _, err := e.Index(ctx, changed); err != nil {
				e.logger.Error("Re-index failed", logging.F("urls", changed), logging.Err(err))
			}
		}
	}
}

func owner(roots []watchRoot, p string) (watchRoot, bool) {
	for _, r := range roots {
		if p == r.path || strings.HasPrefix(p, r.path+string(filepath.Separator)) {
			return r, true
		}
	}
	return watchRoot{}, false
}

// addTree registers root and every directory below it
func addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(p)
		}
		return nil
	})
}
