// Package gdrive implements the backend for gdrive://account/path URLs.
//
// Drive addresses objects by id inside a folder graph, so every path based
// operation goes through a directory map built from a folder listing or
// loaded from the directory cache. Listings are incremental once a start
// page token has been promoted: only the change feed since that token is
// pulled and merged into the cached listing.
package gdrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"sync"

	"google.golang.org/api/drive/v3"

	"github.com/dl-alexandre/syncapp/internal/api"
	"github.com/dl-alexandre/syncapp/internal/backend"
	"github.com/dl-alexandre/syncapp/internal/changes"
	"github.com/dl-alexandre/syncapp/internal/fileinfo"
	"github.com/dl-alexandre/syncapp/internal/files"
	"github.com/dl-alexandre/syncapp/internal/logging"
	"github.com/dl-alexandre/syncapp/internal/sync/dirmap"
	"github.com/dl-alexandre/syncapp/internal/sync/scanner"
	"github.com/dl-alexandre/syncapp/internal/types"
	"github.com/dl-alexandre/syncapp/internal/utils"
)

// ErrNoParent is returned when the folder a path would live in does not exist
var ErrNoParent = errors.New("parent folder not found")

// Options tune listings and locate the change feed cursor
type Options struct {
	PageSize int
	MaxKeys  int
	// TokenDir holds <session>_start_page_token files
	TokenDir string
}

type Adapter struct {
	list   *backend.FileList
	files  *files.Manager
	feed   *changes.Feed
	cursor *changes.Cursor
	store  backend.Store
	client *api.Client
	logger logging.Logger

	mu   sync.Mutex
	dirs *dirmap.Map
}

// New builds an adapter for a gdrive:// URL. The session is the account,
// user@domain.
func New(rawURL string, svc *drive.Service, store backend.Store, opts Options, client *api.Client, logger logging.Logger) (*Adapter, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if u.Scheme != "gdrive" {
		return nil, fmt.Errorf("%w: %s", fileinfo.ErrWrongScheme, u.Scheme)
	}
	session, err := fileinfo.ParseSession(fileinfo.GDriveSession(u))
	if err != nil {
		return nil, err
	}
	if opts.TokenDir == "" {
		return nil, errors.New("gdrive: token directory not configured")
	}
	if client == nil {
		client = api.NewClient("drive", api.DefaultRetryPolicy(), logger)
	}
	return &Adapter{
		list:   backend.NewFileList(u.String(), strings.TrimPrefix(u.Path, "/"), fileinfo.ServiceGDrive, session),
		files:  files.NewManager(svc, client, opts.PageSize, opts.MaxKeys),
		feed:   changes.NewFeed(svc, client, opts.PageSize),
		cursor: changes.NewCursor(opts.TokenDir, session),
		store:  store,
		client: client,
		logger: logging.OrNoOp(logger).With(logging.F("backend", "gdrive"), logging.F("session", session)),
	}, nil
}

func (a *Adapter) List() *backend.FileList { return a.list }

// Cursor exposes the change feed cursor of this session
func (a *Adapter) Cursor() *changes.Cursor { return a.cursor }

func (a *Adapter) request(rt types.RequestType, rawURL string) *types.RequestContext {
	reqCtx := a.client.NewRequestContext(a.list.Session(), rt)
	reqCtx.URL = rawURL
	return reqCtx
}

func (a *Adapter) lookup(ctx context.Context, id string) (*drive.File, error) {
	return a.files.Get(ctx, a.request(types.RequestTypeGet, ""), id)
}

// directories returns the folder map. With useCache an already built or
// cached map is reused; otherwise all folders are listed and the cache is
// replaced.
func (a *Adapter) directories(ctx context.Context, useCache bool) (*dirmap.Map, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := string(fileinfo.ServiceGDrive)
	if useCache {
		if a.dirs != nil {
			return a.dirs, nil
		}
		if a.store != nil {
			rows, err := a.store.LoadDirectories(ctx, st, a.list.Session())
			if err != nil {
				return nil, err
			}
			if len(rows) > 0 {
				a.dirs = dirmap.FromRows(rows)
				return a.dirs, nil
			}
		}
	}

	folders, err := a.files.ListAll(ctx, a.request(types.RequestTypeList, a.list.BaseURL()), files.ListOptions{Folders: true})
	if err != nil {
		return nil, err
	}
	m, err := dirmap.Build(ctx, folders, a.lookup)
	if err != nil {
		return nil, err
	}
	if a.store != nil {
		if err := a.store.ReplaceDirectories(ctx, st, a.list.Session(), m.Rows()); err != nil {
			return nil, err
		}
	}
	a.logger.Debug("Directory map built", logging.F("folders", m.Len()), logging.F("root", m.Root()))
	a.dirs = m
	return m, nil
}

func (a *Adapter) describe(ctx context.Context, dirs *dirmap.Map, f *drive.File) (*fileinfo.FileInfo, bool) {
	if utils.IsUnexportableMimeType(f.MimeType) {
		return nil, false
	}
	info, err := scanner.DescribeDrive(ctx, f, dirs, a.list.Session(), a.lookup)
	if err != nil {
		a.logger.Warn("Skipping object", logging.F("id", f.Id), logging.Err(err))
		return nil, false
	}
	return info, true
}

// FillFileList lists the account. With a promoted start page token only
// the changes since it are applied to the cached listing; a failing change
// feed falls back to a full listing. The new token is staged and becomes
// current on Cleanup. A failed listing drops any staged token so a later
// Cleanup cannot skip changes nobody listed.
func (a *Adapter) FillFileList(ctx context.Context) (files []*fileinfo.FileInfo, err error) {
	defer func() {
		if err == nil {
			return
		}
		if derr := a.cursor.Discard(); derr != nil {
			a.logger.Warn("Failed to discard staged start page token", logging.Err(derr))
		}
	}()

	dirs, err := a.directories(ctx, false)
	if err != nil {
		return nil, err
	}
	reqCtx := a.request(types.RequestTypeChanges, a.list.BaseURL())
	newToken, err := a.feed.StartPageToken(ctx, reqCtx)
	if err != nil {
		return nil, err
	}
	token, err := a.cursor.Read()
	if err != nil {
		return nil, err
	}

	var listed []*fileinfo.FileInfo
	if token != "" {
		listed, err = a.applyChanges(ctx, dirs, reqCtx, token)
		if err != nil {
			a.logger.Warn("Change feed failed, falling back to a full listing", logging.Err(err))
			token = ""
		}
	}
	if token == "" {
		if listed, err = a.fullListing(ctx, dirs); err != nil {
			return nil, err
		}
	}

	prefix := strings.TrimRight(a.list.BaseURL(), "/") + "/"
	out := make([]*fileinfo.FileInfo, 0, len(listed))
	for _, f := range listed {
		if strings.HasPrefix(f.URL, prefix) {
			out = append(out, f)
		}
	}

	if err := a.cursor.Stage(newToken); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Adapter) applyChanges(ctx context.Context, dirs *dirmap.Map, reqCtx *types.RequestContext, token string) ([]*fileinfo.FileInfo, error) {
	var prev []*fileinfo.FileInfo
	if a.store != nil {
		var err error
		if prev, err = a.store.LoadFiles(ctx, fileinfo.ServiceGDrive, a.list.Session()); err != nil {
			return nil, err
		}
	}
	delta, err := a.feed.Since(ctx, reqCtx, token)
	if err != nil {
		return nil, err
	}
	updated := make([]*fileinfo.FileInfo, 0, len(delta.Updated))
	for _, f := range delta.Updated {
		if info, ok := a.describe(ctx, dirs, f); ok {
			updated = append(updated, info)
		}
	}
	a.logger.Debug("Change feed applied",
		logging.F("cached", len(prev)),
		logging.F("removed", len(delta.Removed)),
		logging.F("updated", len(updated)),
	)
	return scanner.MergeByServiceID(prev, delta.Removed, updated), nil
}

func (a *Adapter) fullListing(ctx context.Context, dirs *dirmap.Map) ([]*fileinfo.FileInfo, error) {
	if a.store != nil {
		if _, err := a.store.ClearFileList(ctx, fileinfo.ServiceGDrive, a.list.Session()); err != nil {
			return nil, err
		}
	}
	var out []*fileinfo.FileInfo
	err := a.files.List(ctx, a.request(types.RequestTypeList, a.list.BaseURL()), files.ListOptions{}, func(f *drive.File) error {
		if info, ok := a.describe(ctx, dirs, f); ok {
			out = append(out, info)
		}
		return nil
	})
	return out, err
}

// PrintList writes the URLs of the files directly inside the base folder,
// or inside the Drive root when the base does not name a folder
func (a *Adapter) PrintList(ctx context.Context, w io.Writer) error {
	dirs, err := a.directories(ctx, false)
	if err != nil {
		return err
	}
	var opts files.ListOptions
	if id, complete, err := dirs.Resolve(a.list.BaseURL()); err == nil && complete && id != "" {
		opts.Parents = []string{id}
	} else if dirs.Root() != "" {
		opts.Parents = []string{dirs.Root()}
	}
	return a.files.List(ctx, a.request(types.RequestTypeList, a.list.BaseURL()), opts, func(f *drive.File) error {
		info, ok := a.describe(ctx, dirs, f)
		if !ok {
			return nil
		}
		_, err := fmt.Fprintln(w, info.URL)
		return err
	})
}

// parentFolder resolves the folder a gdrive URL's leaf would be placed in
func (a *Adapter) parentFolder(dirs *dirmap.Map, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	u.Path = path.Dir(u.Path)
	id, complete, err := dirs.Resolve(u.String())
	if err != nil {
		return "", err
	}
	if !complete {
		return "", fmt.Errorf("%w: %s", ErrNoParent, u.String())
	}
	if id == "" {
		id = dirs.Root()
	}
	if id == "" {
		return "", fmt.Errorf("%w: %s", ErrNoParent, u.String())
	}
	return id, nil
}

// CopyFrom downloads a Drive object, exporting Workspace documents. Objects
// with no downloadable form are dropped from the cache instead.
func (a *Adapter) CopyFrom(ctx context.Context, src, dst *fileinfo.FileInfo) error {
	if err := backend.CheckTypes(src, dst, fileinfo.ServiceGDrive, fileinfo.ServiceLocal); err != nil {
		return err
	}
	if _, err := a.directories(ctx, true); err != nil {
		return err
	}
	reqCtx := a.request(types.RequestTypeDownload, src.URL)
	gfile, err := a.files.Get(ctx, reqCtx, src.ServiceID)
	if err != nil {
		return err
	}
	if utils.IsUnexportableMimeType(gfile.MimeType) {
		a.logger.Info("Unexportable object removed from cache",
			logging.F("id", gfile.Id),
			logging.F("mimeType", gfile.MimeType),
		)
		if a.store == nil {
			return nil
		}
		_, err := a.store.RemoveByServiceID(ctx, fileinfo.ServiceGDrive, a.list.Session(), gfile.Id)
		return err
	}
	return a.files.Download(ctx, reqCtx, gfile, dst.Filepath)
}

// CopyTo uploads a local file into the folder named by dst's path. The
// folder must already exist.
func (a *Adapter) CopyTo(ctx context.Context, src, dst *fileinfo.FileInfo) error {
	if err := backend.CheckTypes(src, dst, fileinfo.ServiceLocal, fileinfo.ServiceGDrive); err != nil {
		return err
	}
	dirs, err := a.directories(ctx, true)
	if err != nil {
		return err
	}
	parent, err := a.parentFolder(dirs, dst.URL)
	if err != nil {
		return err
	}
	_, err = a.files.Upload(ctx, a.request(types.RequestTypeUpload, dst.URL), src.Filepath, parent)
	return err
}

// MoveFile reparents and renames a Drive object
func (a *Adapter) MoveFile(ctx context.Context, src, dst *fileinfo.FileInfo) error {
	if !backend.SameBackend(fileinfo.ServiceGDrive, src, dst) {
		return nil
	}
	dirs, err := a.directories(ctx, true)
	if err != nil {
		return err
	}
	parent, err := a.parentFolder(dirs, dst.URL)
	if err != nil {
		return err
	}
	return a.files.Move(ctx, a.request(types.RequestTypeMutation, dst.URL), src.ServiceID, parent, dst.Filename)
}

func (a *Adapter) Delete(ctx context.Context, f *fileinfo.FileInfo) error {
	if f.ServiceType != fileinfo.ServiceGDrive {
		return fmt.Errorf("%w: cannot delete %s object from gdrive backend", backend.ErrServiceTypeMismatch, f.ServiceType)
	}
	return a.files.Delete(ctx, a.request(types.RequestTypeMutation, f.URL), f.ServiceID)
}

// Cleanup promotes the token staged by the last listing
func (a *Adapter) Cleanup() error {
	return a.cursor.Promote()
}

var _ backend.Adapter = (*Adapter)(nil)
