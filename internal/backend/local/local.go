// Package local implements the backend for file:// URLs.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"

	"github.com/dl-alexandre/syncapp/internal/backend"
	"github.com/dl-alexandre/syncapp/internal/fileinfo"
	"github.com/dl-alexandre/syncapp/internal/logging"
	"github.com/dl-alexandre/syncapp/internal/sync/scanner"
)

// Adapter lists and copies files below one local directory
type Adapter struct {
	list    *backend.FileList
	store   backend.Store
	workers int
	logger  logging.Logger
}

// New builds an adapter rooted at the path of a file:// URL. The session
// of a local listing is its base directory.
func New(rawURL string, store backend.Store, workers int, logger logging.Logger) (*Adapter, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if u.Scheme != "file" {
		return nil, fmt.Errorf("%w: %s", fileinfo.ErrWrongScheme, u.Scheme)
	}
	base := filepath.Clean(filepath.FromSlash(u.Path))
	return &Adapter{
		list:    backend.NewFileList(scanner.LocalURL(base), base, fileinfo.ServiceLocal, base),
		store:   store,
		workers: workers,
		logger:  logging.OrNoOp(logger).With(logging.F("backend", "local"), logging.F("session", base)),
	}, nil
}

func (a *Adapter) List() *backend.FileList { return a.list }

// FillFileList walks the base directory. Checksums of files whose size and
// mtime match the cache are reused.
func (a *Adapter) FillFileList(ctx context.Context) ([]*fileinfo.FileInfo, error) {
	prev := map[string]*fileinfo.FileInfo{}
	if a.store != nil {
		cached, err := a.store.LoadFiles(ctx, fileinfo.ServiceLocal, a.list.Session())
		if err != nil {
			return nil, err
		}
		for _, f := range cached {
			prev[f.URL] = f
		}
	}

	files, stats, err := scanner.ScanLocal(ctx, a.list.BasePath(), prev, scanner.LocalOptions{
		Session: a.list.Session(),
		Workers: a.workers,
	})
	if err != nil {
		return nil, err
	}
	a.logger.Debug("Local scan finished",
		logging.F("files", stats.Files),
		logging.F("hashed", stats.Hashed),
		logging.F("reused", stats.Reused),
	)
	return files, nil
}

// PrintList writes the immediate children of the base directory
func (a *Adapter) PrintList(ctx context.Context, w io.Writer) error {
	entries, err := os.ReadDir(a.list.BasePath())
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, filepath.Join(a.list.BasePath(), e.Name()))
	}
	sort.Strings(names)
	for _, n := range names {
		if _, err := fmt.Fprintln(w, n); err != nil {
			return err
		}
	}
	return nil
}

// CopyFrom copies between two local paths
func (a *Adapter) CopyFrom(ctx context.Context, src, dst *fileinfo.FileInfo) error {
	if err := backend.CheckTypes(src, dst, fileinfo.ServiceLocal, fileinfo.ServiceLocal); err != nil {
		return err
	}
	return CopyFile(src.Filepath, dst.Filepath)
}

func (a *Adapter) CopyTo(ctx context.Context, src, dst *fileinfo.FileInfo) error {
	return a.CopyFrom(ctx, src, dst)
}

// MoveFile renames within the local filesystem, falling back to copy and
// remove across devices
func (a *Adapter) MoveFile(ctx context.Context, src, dst *fileinfo.FileInfo) error {
	if !backend.SameBackend(fileinfo.ServiceLocal, src, dst) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dst.Filepath), 0755); err != nil {
		return err
	}
	if err := os.Rename(src.Filepath, dst.Filepath); err == nil {
		return nil
	}
	if err := CopyFile(src.Filepath, dst.Filepath); err != nil {
		return err
	}
	return os.Remove(src.Filepath)
}

// Delete removes a file; a file that is already gone is not an error
func (a *Adapter) Delete(ctx context.Context, f *fileinfo.FileInfo) error {
	if f.ServiceType != fileinfo.ServiceLocal {
		return fmt.Errorf("%w: cannot delete %s object from local backend", backend.ErrServiceTypeMismatch, f.ServiceType)
	}
	err := os.Remove(f.Filepath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (a *Adapter) Cleanup() error { return nil }

// CopyFile copies src to dst, creating dst's parent directories
func CopyFile(src, dst string) (err error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	_, err = io.Copy(out, in)
	return err
}

var _ backend.Adapter = (*Adapter)(nil)
