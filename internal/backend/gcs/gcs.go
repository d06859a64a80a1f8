// Package gcs implements the backend for gs://bucket/prefix URLs on the
// Cloud Storage JSON API.
package gcs

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	storage "google.golang.org/api/storage/v1"

	"github.com/dl-alexandre/syncapp/internal/api"
	"github.com/dl-alexandre/syncapp/internal/backend"
	"github.com/dl-alexandre/syncapp/internal/fileinfo"
	"github.com/dl-alexandre/syncapp/internal/logging"
	"github.com/dl-alexandre/syncapp/internal/sync/scanner"
	"github.com/dl-alexandre/syncapp/internal/types"
	"github.com/dl-alexandre/syncapp/internal/utils"
)

// Options tune listings
type Options struct {
	MaxKeys  int
	PageSize int
}

type Adapter struct {
	list   *backend.FileList
	bucket string
	prefix string
	svc    *storage.Service
	client *api.Client
	opts   Options
	logger logging.Logger
}

// New builds an adapter for a gs:// URL. The session is the bucket name.
func New(rawURL string, svc *storage.Service, opts Options, client *api.Client, logger logging.Logger) (*Adapter, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if u.Scheme != "gs" {
		return nil, fmt.Errorf("%w: %s", fileinfo.ErrWrongScheme, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("no bucket in %q", rawURL)
	}
	if opts.PageSize <= 0 {
		opts.PageSize = utils.DefaultPageSize
	}
	if client == nil {
		client = api.NewClient("gcs", api.DefaultRetryPolicy(), logger)
	}
	prefix := strings.TrimPrefix(u.Path, "/")
	return &Adapter{
		list:   backend.NewFileList(u.String(), prefix, fileinfo.ServiceGCS, u.Host),
		bucket: u.Host,
		prefix: prefix,
		svc:    svc,
		client: client,
		opts:   opts,
		logger: logging.OrNoOp(logger).With(logging.F("backend", "gcs"), logging.F("bucket", u.Host)),
	}, nil
}

func (a *Adapter) List() *backend.FileList { return a.list }

func (a *Adapter) FillFileList(ctx context.Context) ([]*fileinfo.FileInfo, error) {
	var files []*fileinfo.FileInfo
	err := a.walk(ctx, func(obj *storage.Object) error {
		f, err := Describe(a.bucket, obj)
		if err != nil {
			a.logger.Warn("Skipping object", logging.F("name", obj.Name), logging.Err(err))
			return nil
		}
		files = append(files, f)
		return nil
	})
	if err != nil {
		return nil, err
	}
	a.logger.Debug("GCS listing finished", logging.F("objects", len(files)))
	return files, nil
}

func (a *Adapter) PrintList(ctx context.Context, w io.Writer) error {
	return a.walk(ctx, func(obj *storage.Object) error {
		_, err := fmt.Fprintln(w, fileinfo.BucketURL(fileinfo.ServiceGCS, a.bucket, obj.Name))
		return err
	})
}

func (a *Adapter) walk(ctx context.Context, fn func(*storage.Object) error) error {
	reqCtx := a.client.NewRequestContext(a.bucket, types.RequestTypeList)
	reqCtx.URL = a.list.BaseURL()

	seen := 0
	pageToken := ""
	for {
		call := a.svc.Objects.List(a.bucket).
			MaxResults(int64(a.opts.PageSize)).
			Fields("nextPageToken", "items(name,md5Hash,size,updated)")
		if a.prefix != "" {
			call = call.Prefix(a.prefix)
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		page, err := api.ExecuteWithRetry(ctx, a.client, reqCtx, func() (*storage.Objects, error) {
			return call.Context(ctx).Do()
		})
		if err != nil {
			return err
		}
		for _, obj := range page.Items {
			if a.opts.MaxKeys > 0 && seen >= a.opts.MaxKeys {
				return nil
			}
			if err := fn(obj); err != nil {
				return err
			}
			seen++
		}
		if page.NextPageToken == "" {
			return nil
		}
		pageToken = page.NextPageToken
	}
}

// Describe converts a listed object. The JSON API reports md5Hash as base64
// of the raw digest.
func Describe(bucket string, obj *storage.Object) (*fileinfo.FileInfo, error) {
	name := path.Base(obj.Name)
	if obj.Name == "" || strings.HasSuffix(obj.Name, "/") || name == "." {
		return nil, fileinfo.ErrNoFilename
	}
	updated, err := time.Parse(time.RFC3339, obj.Updated)
	if err != nil {
		return nil, fmt.Errorf("object %q updated time: %w", obj.Name, err)
	}
	return &fileinfo.FileInfo{
		Filename: name,
		Filepath: obj.Name,
		URL:      fileinfo.BucketURL(fileinfo.ServiceGCS, bucket, obj.Name),
		MD5:      decodeMD5(obj.Md5Hash),
		Stat: &fileinfo.FileStat{
			MTime: updated.Unix(),
			Size:  int64(obj.Size),
		},
		ServiceID:      bucket,
		ServiceType:    fileinfo.ServiceGCS,
		ServiceSession: bucket,
	}, nil
}

func decodeMD5(b64 string) string {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil || len(raw) != 16 {
		return ""
	}
	return hex.EncodeToString(raw)
}

func location(f *fileinfo.FileInfo) (string, string, error) {
	u, err := url.Parse(f.URL)
	if err != nil {
		return "", "", fmt.Errorf("parse url %q: %w", f.URL, err)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("no bucket in %q", f.URL)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

func (a *Adapter) CopyFrom(ctx context.Context, src, dst *fileinfo.FileInfo) error {
	if err := backend.CheckTypes(src, dst, fileinfo.ServiceGCS, fileinfo.ServiceLocal); err != nil {
		return err
	}
	bucket, name, err := location(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst.Filepath), 0755); err != nil {
		return err
	}
	if err := os.Remove(dst.Filepath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	reqCtx := a.client.NewRequestContext(bucket, types.RequestTypeDownload)
	reqCtx.URL = src.URL
	_, err = api.ExecuteWithRetry(ctx, a.client, reqCtx, func() (int64, error) {
		resp, err := a.svc.Objects.Get(bucket, name).Context(ctx).Download()
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()
		out, err := os.Create(dst.Filepath)
		if err != nil {
			return 0, err
		}
		n, err := io.Copy(out, resp.Body)
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		return n, err
	})
	if err != nil {
		return err
	}

	if src.MD5 != "" {
		md5, _, err := scanner.HashFile(dst.Filepath)
		if err != nil {
			return err
		}
		if md5 != src.MD5 {
			a.logger.Info("Downloaded checksum differs",
				logging.F("src", src.URL),
				logging.F("dst", dst.URL),
			)
		}
	}
	return nil
}

func (a *Adapter) CopyTo(ctx context.Context, src, dst *fileinfo.FileInfo) error {
	if err := backend.CheckTypes(src, dst, fileinfo.ServiceLocal, fileinfo.ServiceGCS); err != nil {
		return err
	}
	bucket, name, err := location(dst)
	if err != nil {
		return err
	}
	if _, err := os.Stat(src.Filepath); err != nil {
		return fmt.Errorf("upload source: %w", err)
	}

	reqCtx := a.client.NewRequestContext(bucket, types.RequestTypeUpload)
	reqCtx.URL = dst.URL
	_, err = api.ExecuteWithRetry(ctx, a.client, reqCtx, func() (*storage.Object, error) {
		in, err := os.Open(src.Filepath)
		if err != nil {
			return nil, err
		}
		defer in.Close()
		return a.svc.Objects.Insert(bucket, &storage.Object{Name: name}).
			Media(in, googleapi.ChunkSize(utils.UploadChunkSize)).
			Context(ctx).
			Do()
	})
	return err
}

// MoveFile copies server side and removes the source once the copy
// reports an etag
func (a *Adapter) MoveFile(ctx context.Context, src, dst *fileinfo.FileInfo) error {
	if !backend.SameBackend(fileinfo.ServiceGCS, src, dst) {
		return nil
	}
	srcBucket, srcName, err := location(src)
	if err != nil {
		return err
	}
	dstBucket, dstName, err := location(dst)
	if err != nil {
		return err
	}

	reqCtx := a.client.NewRequestContext(dstBucket, types.RequestTypeMutation)
	reqCtx.URL = dst.URL
	obj, err := api.ExecuteWithRetry(ctx, a.client, reqCtx, func() (*storage.Object, error) {
		return a.svc.Objects.Copy(srcBucket, srcName, dstBucket, dstName, &storage.Object{}).Context(ctx).Do()
	})
	if err != nil {
		return err
	}
	if obj.Etag == "" {
		a.logger.Warn("Copy returned no etag, keeping source", logging.F("src", src.URL))
		return nil
	}
	return a.deleteObject(ctx, srcBucket, srcName, src.URL)
}

func (a *Adapter) Delete(ctx context.Context, f *fileinfo.FileInfo) error {
	if f.ServiceType != fileinfo.ServiceGCS {
		return fmt.Errorf("%w: cannot delete %s object from gcs backend", backend.ErrServiceTypeMismatch, f.ServiceType)
	}
	bucket, name, err := location(f)
	if err != nil {
		return err
	}
	return a.deleteObject(ctx, bucket, name, f.URL)
}

func (a *Adapter) deleteObject(ctx context.Context, bucket, name, rawURL string) error {
	reqCtx := a.client.NewRequestContext(bucket, types.RequestTypeMutation)
	reqCtx.URL = rawURL
	_, err := api.ExecuteWithRetry(ctx, a.client, reqCtx, func() (struct{}, error) {
		return struct{}{}, a.svc.Objects.Delete(bucket, name).Context(ctx).Do()
	})
	return err
}

func (a *Adapter) Cleanup() error { return nil }

var _ backend.Adapter = (*Adapter)(nil)
