// Package s3 implements the backend for s3://bucket/prefix URLs.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/dl-alexandre/syncapp/internal/api"
	"github.com/dl-alexandre/syncapp/internal/backend"
	"github.com/dl-alexandre/syncapp/internal/fileinfo"
	"github.com/dl-alexandre/syncapp/internal/logging"
	"github.com/dl-alexandre/syncapp/internal/sync/scanner"
	"github.com/dl-alexandre/syncapp/internal/types"
	"github.com/dl-alexandre/syncapp/internal/utils"
)

// API is the part of *s3.Client the adapter calls
type API interface {
	manager.UploadAPIClient
	manager.DownloadAPIClient
	s3.ListObjectsV2APIClient
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Options tune listings
type Options struct {
	// MaxKeys caps the objects returned by one listing; 0 means unlimited
	MaxKeys  int
	PageSize int
}

// NewAPI builds an S3 client from the default AWS credential chain.
// A non-empty endpoint switches to path-style addressing against it.
func NewAPI(ctx context.Context, region, endpoint string) (*s3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Adapter lists and transfers objects under one bucket prefix
type Adapter struct {
	list       *backend.FileList
	bucket     string
	prefix     string
	svc        API
	uploader   *manager.Uploader
	downloader *manager.Downloader
	client     *api.Client
	opts       Options
	logger     logging.Logger
}

// New builds an adapter for an s3:// URL. The session is the bucket name.
func New(rawURL string, svc API, opts Options, client *api.Client, logger logging.Logger) (*Adapter, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if u.Scheme != "s3" {
		return nil, fmt.Errorf("%w: %s", fileinfo.ErrWrongScheme, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("no bucket in %q", rawURL)
	}
	if opts.PageSize <= 0 {
		opts.PageSize = utils.DefaultPageSize
	}
	if client == nil {
		client = api.NewClient("s3", api.DefaultRetryPolicy(), logger)
	}
	prefix := strings.TrimPrefix(u.Path, "/")
	return &Adapter{
		list:   backend.NewFileList(u.String(), prefix, fileinfo.ServiceS3, u.Host),
		bucket: u.Host,
		prefix: prefix,
		svc:    svc,
		uploader: manager.NewUploader(svc, func(up *manager.Uploader) {
			up.PartSize = utils.S3PartSize
		}),
		downloader: manager.NewDownloader(svc, func(d *manager.Downloader) {
			d.PartSize = utils.S3PartSize
		}),
		client: client,
		opts:   opts,
		logger: logging.OrNoOp(logger).With(logging.F("backend", "s3"), logging.F("bucket", u.Host)),
	}, nil
}

func (a *Adapter) List() *backend.FileList { return a.list }

// FillFileList lists every object under the prefix, up to MaxKeys
func (a *Adapter) FillFileList(ctx context.Context) ([]*fileinfo.FileInfo, error) {
	var files []*fileinfo.FileInfo
	err := a.walk(ctx, func(obj s3types.Object) error {
		f, err := Describe(a.bucket, obj)
		if err != nil {
			a.logger.Warn("Skipping object", logging.F("key", aws.ToString(obj.Key)), logging.Err(err))
			return nil
		}
		files = append(files, f)
		return nil
	})
	if err != nil {
		return nil, err
	}
	a.logger.Debug("S3 listing finished", logging.F("objects", len(files)))
	return files, nil
}

// PrintList writes the URL of every object under the prefix
func (a *Adapter) PrintList(ctx context.Context, w io.Writer) error {
	return a.walk(ctx, func(obj s3types.Object) error {
		_, err := fmt.Fprintln(w, fileinfo.BucketURL(fileinfo.ServiceS3, a.bucket, aws.ToString(obj.Key)))
		return err
	})
}

func (a *Adapter) walk(ctx context.Context, fn func(s3types.Object) error) error {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(a.bucket),
		MaxKeys: aws.Int32(int32(a.opts.PageSize)),
	}
	if a.prefix != "" {
		input.Prefix = aws.String(a.prefix)
	}
	p := s3.NewListObjectsV2Paginator(a.svc, input)
	reqCtx := a.client.NewRequestContext(a.bucket, types.RequestTypeList)
	reqCtx.URL = a.list.BaseURL()

	seen := 0
	for p.HasMorePages() {
		page, err := api.ExecuteWithRetry(ctx, a.client, reqCtx, func() (*s3.ListObjectsV2Output, error) {
			return p.NextPage(ctx)
		})
		if err != nil {
			return err
		}
		for _, obj := range page.Contents {
			if a.opts.MaxKeys > 0 && seen >= a.opts.MaxKeys {
				return nil
			}
			if err := fn(obj); err != nil {
				return err
			}
			seen++
		}
	}
	return nil
}

// Describe converts a listed object. Multipart ETags are not md5 digests
// and are dropped.
func Describe(bucket string, obj s3types.Object) (*fileinfo.FileInfo, error) {
	key := aws.ToString(obj.Key)
	name := path.Base(key)
	if key == "" || strings.HasSuffix(key, "/") || name == "." {
		return nil, fileinfo.ErrNoFilename
	}
	if obj.LastModified == nil {
		return nil, fmt.Errorf("object %q has no last modified time", key)
	}
	md5, _ := fileinfo.ParseMD5(aws.ToString(obj.ETag))
	return &fileinfo.FileInfo{
		Filename: name,
		Filepath: key,
		URL:      fileinfo.BucketURL(fileinfo.ServiceS3, bucket, key),
		MD5:      md5,
		Stat: &fileinfo.FileStat{
			MTime: obj.LastModified.Unix(),
			Size:  aws.ToInt64(obj.Size),
		},
		ServiceID:      bucket,
		ServiceType:    fileinfo.ServiceS3,
		ServiceSession: bucket,
	}, nil
}

// location splits an object URL into bucket and key
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

// CopyFrom downloads src over the local file dst
func (a *Adapter) CopyFrom(ctx context.Context, src, dst *fileinfo.FileInfo) error {
	if err := backend.CheckTypes(src, dst, fileinfo.ServiceS3, fileinfo.ServiceLocal); err != nil {
		return err
	}
	bucket, key, err := location(src)
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
		out, err := os.Create(dst.Filepath)
		if err != nil {
			return 0, err
		}
		n, err := a.downloader.Download(ctx, out, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
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
			a.logger.Info("Downloaded checksum differs, multipart upload?",
				logging.F("src", src.URL),
				logging.F("dst", dst.URL),
			)
		}
	}
	return nil
}

// CopyTo uploads the local file src to dst
func (a *Adapter) CopyTo(ctx context.Context, src, dst *fileinfo.FileInfo) error {
	if err := backend.CheckTypes(src, dst, fileinfo.ServiceLocal, fileinfo.ServiceS3); err != nil {
		return err
	}
	bucket, key, err := location(dst)
	if err != nil {
		return err
	}
	if _, err := os.Stat(src.Filepath); err != nil {
		return fmt.Errorf("upload source: %w", err)
	}

	reqCtx := a.client.NewRequestContext(bucket, types.RequestTypeUpload)
	reqCtx.URL = dst.URL
	_, err = api.ExecuteWithRetry(ctx, a.client, reqCtx, func() (*manager.UploadOutput, error) {
		in, err := os.Open(src.Filepath)
		if err != nil {
			return nil, err
		}
		defer in.Close()
		return a.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
			Body:   in,
		})
	})
	return err
}

// MoveFile copies src to dst server side and deletes src once the copy
// reports an ETag
func (a *Adapter) MoveFile(ctx context.Context, src, dst *fileinfo.FileInfo) error {
	if !backend.SameBackend(fileinfo.ServiceS3, src, dst) {
		return nil
	}
	srcBucket, srcKey, err := location(src)
	if err != nil {
		return err
	}
	dstBucket, dstKey, err := location(dst)
	if err != nil {
		return err
	}

	copySource := (&url.URL{Path: srcBucket + "/" + srcKey}).EscapedPath()
	reqCtx := a.client.NewRequestContext(dstBucket, types.RequestTypeMutation)
	reqCtx.URL = dst.URL
	out, err := api.ExecuteWithRetry(ctx, a.client, reqCtx, func() (*s3.CopyObjectOutput, error) {
		return a.svc.CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:     aws.String(dstBucket),
			Key:        aws.String(dstKey),
			CopySource: aws.String(copySource),
		})
	})
	if err != nil {
		return err
	}
	if out.CopyObjectResult == nil || out.CopyObjectResult.ETag == nil {
		a.logger.Warn("Copy returned no ETag, keeping source", logging.F("src", src.URL))
		return nil
	}
	return a.deleteKey(ctx, srcBucket, srcKey, src.URL)
}

func (a *Adapter) Delete(ctx context.Context, f *fileinfo.FileInfo) error {
	if f.ServiceType != fileinfo.ServiceS3 {
		return fmt.Errorf("%w: cannot delete %s object from s3 backend", backend.ErrServiceTypeMismatch, f.ServiceType)
	}
	bucket, key, err := location(f)
	if err != nil {
		return err
	}
	return a.deleteKey(ctx, bucket, key, f.URL)
}

func (a *Adapter) deleteKey(ctx context.Context, bucket, key, rawURL string) error {
	reqCtx := a.client.NewRequestContext(bucket, types.RequestTypeMutation)
	reqCtx.URL = rawURL
	_, err := api.ExecuteWithRetry(ctx, a.client, reqCtx, func() (*s3.DeleteObjectOutput, error) {
		return a.svc.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
	})
	return err
}

func (a *Adapter) Cleanup() error { return nil }

var _ backend.Adapter = (*Adapter)(nil)
