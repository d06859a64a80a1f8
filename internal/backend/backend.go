// Package backend defines the contract every storage adapter implements and
// the file list state shared by all of them.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dl-alexandre/syncapp/internal/fileinfo"
	"github.com/dl-alexandre/syncapp/internal/sync/index"
)

var (
	// ErrServiceTypeMismatch is returned when a transfer is handed objects of the wrong backends
	ErrServiceTypeMismatch = errors.New("service type mismatch")
	// ErrRemoteToRemote is returned when neither side of a copy is local
	ErrRemoteToRemote = errors.New("remote to remote copy is not supported")
)

// Adapter lists and transfers objects on one backend.
//
// CopyFrom moves an object of this backend to the local filesystem and
// CopyTo moves a local file onto this backend. MoveFile is a silent no-op
// when either object belongs to another backend.
type Adapter interface {
	List() *FileList
	FillFileList(ctx context.Context) ([]*fileinfo.FileInfo, error)
	PrintList(ctx context.Context, w io.Writer) error
	CopyFrom(ctx context.Context, src, dst *fileinfo.FileInfo) error
	CopyTo(ctx context.Context, src, dst *fileinfo.FileInfo) error
	MoveFile(ctx context.Context, src, dst *fileinfo.FileInfo) error
	Delete(ctx context.Context, f *fileinfo.FileInfo) error
	// Cleanup runs after a reconciliation pass found nothing to do
	Cleanup() error
}

// Store is the slice of the index database adapters rely on
type Store interface {
	LoadFiles(ctx context.Context, st fileinfo.ServiceType, session string) ([]*fileinfo.FileInfo, error)
	ClearFileList(ctx context.Context, st fileinfo.ServiceType, session string) (int64, error)
	RemoveByServiceID(ctx context.Context, st fileinfo.ServiceType, session, serviceID string) (int64, error)
	ReplaceDirectories(ctx context.Context, serviceType, session string, dirs []index.DirectoryRow) error
	LoadDirectories(ctx context.Context, serviceType, session string) ([]index.DirectoryRow, error)
}

// CheckTypes fails unless src and dst are of the expected service types
func CheckTypes(src, dst *fileinfo.FileInfo, wantSrc, wantDst fileinfo.ServiceType) error {
	if src.ServiceType != wantSrc || dst.ServiceType != wantDst {
		return fmt.Errorf("%w: %s -> %s (want %s -> %s)", ErrServiceTypeMismatch,
			src.ServiceType, dst.ServiceType, wantSrc, wantDst)
	}
	return nil
}

// SameBackend reports whether a move between src and dst is meaningful for adapter type st
func SameBackend(st fileinfo.ServiceType, src, dst *fileinfo.FileInfo) bool {
	return src.ServiceType == dst.ServiceType && src.ServiceType == st
}

// CopyObject dispatches a transfer to the adapter owning the non-local side
func CopyObject(ctx context.Context, a Adapter, src, dst *fileinfo.FileInfo) error {
	switch {
	case dst.ServiceType == fileinfo.ServiceLocal:
		return a.CopyFrom(ctx, src, dst)
	case src.ServiceType == fileinfo.ServiceLocal:
		return a.CopyTo(ctx, src, dst)
	default:
		return fmt.Errorf("%w: %s -> %s", ErrRemoteToRemote, src.URL, dst.URL)
	}
}
