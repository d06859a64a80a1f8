// Package factory selects and builds a backend adapter for a URL.
package factory

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"golang.org/x/sync/singleflight"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"

	"github.com/dl-alexandre/syncapp/internal/api"
	"github.com/dl-alexandre/syncapp/internal/auth"
	"github.com/dl-alexandre/syncapp/internal/backend"
	"github.com/dl-alexandre/syncapp/internal/backend/gcs"
	"github.com/dl-alexandre/syncapp/internal/backend/gdrive"
	"github.com/dl-alexandre/syncapp/internal/backend/local"
	s3backend "github.com/dl-alexandre/syncapp/internal/backend/s3"
	"github.com/dl-alexandre/syncapp/internal/backend/ssh"
	"github.com/dl-alexandre/syncapp/internal/config"
	"github.com/dl-alexandre/syncapp/internal/fileinfo"
	"github.com/dl-alexandre/syncapp/internal/logging"
	"github.com/dl-alexandre/syncapp/internal/utils"
	"github.com/dl-alexandre/syncapp/pkg/version"
)

// Services supplies provider clients. Nil members make URLs of that scheme
// unusable.
type Services struct {
	S3      func(ctx context.Context) (s3backend.API, error)
	Storage func(ctx context.Context) (*storage.Service, error)
	Drive   func(ctx context.Context, session string) (*drive.Service, error)
	Runner  ssh.Runner
}

// DefaultServices wires the AWS credential chain, Google application default
// credentials for GCS and stored OAuth tokens for Drive. The token manager
// is only requested once a gdrive:// URL is used.
func DefaultServices(cfg *config.Config, manager func() (*auth.Manager, error)) Services {
	ua := option.WithUserAgent(version.UserAgent())
	gcs := auth.NewServiceFactory(nil, cfg.GCSEndpoint, ua)
	return Services{
		S3: func(ctx context.Context) (s3backend.API, error) {
			return s3backend.NewAPI(ctx, cfg.AWSRegion, cfg.S3Endpoint)
		},
		Storage: gcs.Storage,
		Drive: func(ctx context.Context, session string) (*drive.Service, error) {
			mgr, err := manager()
			if err != nil {
				return nil, err
			}
			return auth.NewServiceFactory(mgr, cfg.GCSEndpoint, ua).Drive(ctx, session)
		},
		Runner: ssh.ExecRunner{},
	}
}

// RetryPolicy derives the provider retry policy from configuration
func RetryPolicy(cfg *config.Config) api.RetryPolicy {
	return api.RetryPolicy{
		BaseDelay:  cfg.GetRetryBaseDelay(),
		MaxGrowth:  utils.DefaultRetryGrowthLimit,
		Ceiling:    float64(cfg.RetryCeilingUnits),
		MaxRetries: cfg.MaxRetries,
	}
}

// Factory builds adapters and memoizes the provider clients behind them.
// The SSH host lock registry is shared by every adapter it creates.
type Factory struct {
	cfg      *config.Config
	store    backend.Store
	services Services
	policy   api.RetryPolicy
	locks    *backend.HostLocks
	logger   logging.Logger

	mu        sync.Mutex
	clients   map[string]*api.Client
	providers providers
}

// providers memoizes provider clients by key. Concurrent first requests for
// one key share a single construction.
type providers struct {
	group singleflight.Group
	mu    sync.Mutex
	built map[string]interface{}
}

func (p *providers) lookup(key string) (interface{}, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.built[key]
	return v, ok
}

func (p *providers) get(key string, build func() (interface{}, error)) (interface{}, error) {
	if v, ok := p.lookup(key); ok {
		return v, nil
	}
	v, err, _ := p.group.Do(key, func() (interface{}, error) {
		if v, ok := p.lookup(key); ok {
			return v, nil
		}
		v, err := build()
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		if p.built == nil {
			p.built = make(map[string]interface{})
		}
		p.built[key] = v
		p.mu.Unlock()
		return v, nil
	})
	return v, err
}

func New(cfg *config.Config, store backend.Store, services Services, logger logging.Logger) *Factory {
	return &Factory{
		cfg:      cfg,
		store:    store,
		services: services,
		policy:   RetryPolicy(cfg),
		locks:    backend.NewHostLocks(),
		logger:   logging.OrNoOp(logger),
		clients:  make(map[string]*api.Client),
	}
}

// WithRetryPolicy replaces the policy used for adapters built afterwards
func (f *Factory) WithRetryPolicy(p api.RetryPolicy) *Factory {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.policy = p
	f.clients = make(map[string]*api.Client)
	return f
}

func (f *Factory) client(service string) *api.Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.clients[service]; ok {
		return c
	}
	c := api.NewClient(service, f.policy, f.logger)
	f.clients[service] = c
	return c
}

func invalidURL(rawURL, msg string) error {
	return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidURL, msg).
		WithContext("url", rawURL).
		Build())
}

// FromURL returns the adapter owning rawURL, chosen by scheme
func (f *Factory) FromURL(ctx context.Context, rawURL string) (backend.Adapter, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, invalidURL(rawURL, fmt.Sprintf("cannot parse %q: %v", rawURL, err))
	}
	st, err := fileinfo.ServiceForScheme(u.Scheme)
	if err != nil {
		return nil, invalidURL(rawURL, err.Error())
	}

	switch st {
	case fileinfo.ServiceLocal:
		return local.New(rawURL, f.store, f.cfg.Workers, f.logger)
	case fileinfo.ServiceS3:
		svc, err := f.s3(ctx)
		if err != nil {
			return nil, err
		}
		return s3backend.New(rawURL, svc, s3backend.Options{MaxKeys: f.cfg.MaxKeys, PageSize: f.cfg.PageSize},
			f.client("s3"), f.logger)
	case fileinfo.ServiceGCS:
		svc, err := f.storage(ctx)
		if err != nil {
			return nil, err
		}
		return gcs.New(rawURL, svc, gcs.Options{MaxKeys: f.cfg.MaxKeys, PageSize: f.cfg.PageSize},
			f.client("gcs"), f.logger)
	case fileinfo.ServiceGDrive:
		svc, err := f.drive(ctx, fileinfo.GDriveSession(u))
		if err != nil {
			return nil, err
		}
		return gdrive.New(rawURL, svc, f.store, gdrive.Options{
			PageSize: f.cfg.PageSize,
			MaxKeys:  f.cfg.MaxKeys,
			TokenDir: f.cfg.GDriveTokenPath,
		}, f.client("drive"), f.logger)
	case fileinfo.ServiceSSH:
		return ssh.New(rawURL, f.services.Runner, f.locks, ssh.Options{
			SSHCommand:    f.cfg.SSHCommand,
			SCPCommand:    f.cfg.SCPCommand,
			RemoteCommand: f.cfg.RemoteCommand,
			Compress:      f.cfg.SSHCompress,
		}, f.client("ssh"), f.logger)
	}
	return nil, invalidURL(rawURL, fmt.Sprintf("no backend for %s URLs", st))
}

func unavailable(st fileinfo.ServiceType) error {
	return utils.NewAppError(utils.NewCLIError(utils.ErrCodeConfigError,
		fmt.Sprintf("%s backend is not configured", st)).Build())
}

func (f *Factory) s3(ctx context.Context) (s3backend.API, error) {
	if f.services.S3 == nil {
		return nil, unavailable(fileinfo.ServiceS3)
	}
	v, err := f.providers.get("s3", func() (interface{}, error) {
		return f.services.S3(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(s3backend.API), nil
}

func (f *Factory) storage(ctx context.Context) (*storage.Service, error) {
	if f.services.Storage == nil {
		return nil, unavailable(fileinfo.ServiceGCS)
	}
	v, err := f.providers.get("gcs", func() (interface{}, error) {
		return f.services.Storage(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*storage.Service), nil
}

func (f *Factory) drive(ctx context.Context, session string) (*drive.Service, error) {
	if f.services.Drive == nil {
		return nil, unavailable(fileinfo.ServiceGDrive)
	}
	v, err := f.providers.get("gdrive:"+session, func() (interface{}, error) {
		return f.services.Drive(ctx, session)
	})
	if err != nil {
		return nil, err
	}
	return v.(*drive.Service), nil
}
