// Package files wraps the Drive file operations the sync engine needs.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dl-alexandre/syncapp/internal/api"
	"github.com/dl-alexandre/syncapp/internal/types"
	"github.com/dl-alexandre/syncapp/internal/utils"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

// ErrUnexportable is returned for Drive objects that have no downloadable form
var ErrUnexportable = errors.New("file type cannot be exported from drive")

const listFields = "nextPageToken,files(id,name,size,mimeType,owners(me),parents,trashed," +
	"modifiedTime,md5Checksum,sha1Checksum,fileExtension)"

const getFields = "id,name,parents,mimeType,size,modifiedTime,md5Checksum,webViewLink"

// Manager handles file operations of one Drive account
type Manager struct {
	svc      *drive.Service
	client   *api.Client
	pageSize int64
	maxKeys  int
}

// NewManager creates a new file manager. maxKeys caps listings, 0 means no cap.
func NewManager(svc *drive.Service, client *api.Client, pageSize, maxKeys int) *Manager {
	if pageSize <= 0 || pageSize > utils.DefaultPageSize {
		pageSize = utils.DefaultPageSize
	}
	return &Manager{svc: svc, client: client, pageSize: int64(pageSize), maxKeys: maxKeys}
}

// ListOptions selects what List walks
type ListOptions struct {
	Folders bool
	Parents []string
}

func (o ListOptions) query() string {
	var q []string
	if o.Folders {
		q = append(q, fmt.Sprintf("mimeType = '%s'", utils.MimeTypeFolder))
	} else {
		q = append(q, fmt.Sprintf("mimeType != '%s'", utils.MimeTypeFolder))
	}
	if len(o.Parents) > 0 {
		parts := make([]string, len(o.Parents))
		for i, p := range o.Parents {
			parts[i] = fmt.Sprintf("'%s' in parents", escapeQuery(p))
		}
		q = append(q, "("+strings.Join(parts, " or ")+")")
	}
	q = append(q, "trashed = false")
	return strings.Join(q, " and ")
}

// List pages through files matching opts, calling fn for each.
// File listings stop after maxKeys objects, folder listings are never capped.
func (m *Manager) List(ctx context.Context, reqCtx *types.RequestContext, opts ListOptions, fn func(*drive.File) error) error {
	call := m.svc.Files.List().
		Q(opts.query()).
		Spaces("drive").
		Corpora("user").
		PageSize(m.pageSize).
		Fields(googleapi.Field(listFields)).
		Context(ctx)

	seen := 0
	for {
		list, err := api.ExecuteWithRetry(ctx, m.client, reqCtx, func() (*drive.FileList, error) {
			return call.Do()
		})
		if err != nil {
			return err
		}
		for _, f := range list.Files {
			if m.maxKeys > 0 && !opts.Folders && seen >= m.maxKeys {
				return nil
			}
			if err := fn(f); err != nil {
				return err
			}
			seen++
		}
		if list.NextPageToken == "" {
			return nil
		}
		call = call.PageToken(list.NextPageToken)
	}
}

// ListAll collects every file List visits
func (m *Manager) ListAll(ctx context.Context, reqCtx *types.RequestContext, opts ListOptions) ([]*drive.File, error) {
	var all []*drive.File
	err := m.List(ctx, reqCtx, opts, func(f *drive.File) error {
		all = append(all, f)
		return nil
	})
	return all, err
}

// Get fetches the metadata of one object
func (m *Manager) Get(ctx context.Context, reqCtx *types.RequestContext, fileID string) (*drive.File, error) {
	reqCtx.ObjectIDs = append(reqCtx.ObjectIDs, fileID)
	return api.ExecuteWithRetry(ctx, m.client, reqCtx, func() (*drive.File, error) {
		return m.svc.Files.Get(fileID).Fields(googleapi.Field(getFields)).Context(ctx).Do()
	})
}

// Download writes the content of file to localPath. Workspace documents are
// exported to their mapped format; unexportable types fail with ErrUnexportable.
func (m *Manager) Download(ctx context.Context, reqCtx *types.RequestContext, file *drive.File, localPath string) error {
	if utils.IsUnexportableMimeType(file.MimeType) {
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeUnexportable,
			fmt.Sprintf("%s has type %s which cannot be exported", file.Name, file.MimeType)).
			WithContext("fileId", file.Id).
			WithContext("webViewLink", file.WebViewLink).
			Build(), ErrUnexportable)
	}
	reqCtx.ObjectIDs = append(reqCtx.ObjectIDs, file.Id)

	return m.client.Do(ctx, reqCtx, func() error {
		var body io.ReadCloser
		if exportType, ok := utils.ExportMimeType(file.MimeType); ok {
			resp, err := m.svc.Files.Export(file.Id, exportType).Context(ctx).Download()
			if err != nil {
				return err
			}
			body = resp.Body
		} else {
			resp, err := m.svc.Files.Get(file.Id).Context(ctx).Download()
			if err != nil {
				return err
			}
			body = resp.Body
		}
		defer body.Close()
		return writeFile(localPath, body)
	})
}

func writeFile(localPath string, r io.Reader) (err error) {
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return err
	}
	out, err := os.Create(localPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	_, err = io.Copy(out, r)
	return err
}

// Upload stores a local file under parentID
func (m *Manager) Upload(ctx context.Context, reqCtx *types.RequestContext, localPath, parentID string) (*drive.File, error) {
	reqCtx.ObjectIDs = append(reqCtx.ObjectIDs, parentID)
	return api.ExecuteWithRetry(ctx, m.client, reqCtx, func() (*drive.File, error) {
		f, err := os.Open(localPath)
		if err != nil {
			return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
				fmt.Sprintf("Failed to open file: %s", err)).Build())
		}
		defer f.Close()
		metadata := &drive.File{Name: filepath.Base(localPath), Parents: []string{parentID}}
		return m.svc.Files.Create(metadata).
			Media(f, googleapi.ContentType(utils.MimeTypeOctetStream), googleapi.ChunkSize(utils.UploadChunkSize)).
			Fields(googleapi.Field(getFields)).
			Context(ctx).
			Do()
	})
}

// Move renames fileID to newName and reparents it under parentID
func (m *Manager) Move(ctx context.Context, reqCtx *types.RequestContext, fileID, parentID, newName string) error {
	current, err := m.Get(ctx, reqCtx, fileID)
	if err != nil {
		return err
	}
	remove := "root"
	if len(current.Parents) > 0 {
		remove = strings.Join(current.Parents, ",")
	}
	_, err = api.ExecuteWithRetry(ctx, m.client, reqCtx, func() (*drive.File, error) {
		return m.svc.Files.Update(fileID, &drive.File{Name: newName}).
			AddParents(parentID).
			RemoveParents(remove).
			Context(ctx).
			Do()
	})
	return err
}

// Delete removes fileID permanently
func (m *Manager) Delete(ctx context.Context, reqCtx *types.RequestContext, fileID string) error {
	reqCtx.ObjectIDs = append(reqCtx.ObjectIDs, fileID)
	return m.client.Do(ctx, reqCtx, func() error {
		return m.svc.Files.Delete(fileID).Context(ctx).Do()
	})
}

// ExportName returns the local name of a Drive object, with the extension of
// its export format appended for Workspace documents
func ExportName(f *drive.File) string {
	exportType, ok := utils.ExportMimeType(f.MimeType)
	if !ok {
		return f.Name
	}
	ext, ok := utils.ExportExtensions[exportType]
	if !ok || strings.HasSuffix(f.Name, "."+ext) {
		return f.Name
	}
	return f.Name + "." + ext
}

func escapeQuery(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), `'`, `\'`)
}
