package auth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"

	"github.com/dl-alexandre/syncapp/internal/utils"
)

// ServiceFactory builds authorized Google API clients
type ServiceFactory struct {
	manager     *Manager
	gcsEndpoint string
	extra       []option.ClientOption
}

// NewServiceFactory returns a factory. A non-empty gcsEndpoint points the
// storage client at an emulator without credentials.
func NewServiceFactory(manager *Manager, gcsEndpoint string, extra ...option.ClientOption) *ServiceFactory {
	return &ServiceFactory{manager: manager, gcsEndpoint: gcsEndpoint, extra: extra}
}

// Drive returns a Drive client acting as the account named by session
func (f *ServiceFactory) Drive(ctx context.Context, session string) (*drive.Service, error) {
	if f.manager == nil {
		return nil, fmt.Errorf("no auth manager configured")
	}
	client, err := f.manager.HTTPClient(ctx, session)
	if err != nil {
		return nil, err
	}
	opts := append([]option.ClientOption{option.WithHTTPClient(client)}, f.extra...)
	return drive.NewService(ctx, opts...)
}

// Storage returns a Cloud Storage client using application default credentials
func (f *ServiceFactory) Storage(ctx context.Context) (*storage.Service, error) {
	if f.gcsEndpoint != "" {
		opts := append([]option.ClientOption{option.WithEndpoint(f.gcsEndpoint), option.WithoutAuthentication()}, f.extra...)
		return storage.NewService(ctx, opts...)
	}
	client, err := google.DefaultClient(ctx, utils.ScopeStorageFullAccess)
	if err != nil {
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeAuthRequired,
			"No Google application default credentials found for gs:// URLs").Build(), err)
	}
	opts := append([]option.ClientOption{option.WithHTTPClient(client)}, f.extra...)
	return storage.NewService(ctx, opts...)
}
