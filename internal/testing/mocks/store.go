// Package mocks provides in-memory stand-ins for the provider APIs and the
// index database.
package mocks

import (
	"context"
	"sync"

	"github.com/dl-alexandre/syncapp/internal/fileinfo"
	"github.com/dl-alexandre/syncapp/internal/sync/index"
)

type partition struct {
	st      fileinfo.ServiceType
	session string
}

// Store is an in-memory backend.Store
type Store struct {
	mu    sync.Mutex
	files map[partition][]*fileinfo.FileInfo
	dirs  map[string][]index.DirectoryRow

	Removed []string
}

func NewStore() *Store {
	return &Store{
		files: map[partition][]*fileinfo.FileInfo{},
		dirs:  map[string][]index.DirectoryRow{},
	}
}

// Seed replaces the cached listing of a partition
func (s *Store) Seed(st fileinfo.ServiceType, session string, files []*fileinfo.FileInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[partition{st, session}] = files
}

func (s *Store) LoadFiles(ctx context.Context, st fileinfo.ServiceType, session string) ([]*fileinfo.FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.files[partition{st, session}]
	out := make([]*fileinfo.FileInfo, 0, len(src))
	for _, f := range src {
		out = append(out, f.Clone())
	}
	return out, nil
}

func (s *Store) ClearFileList(ctx context.Context, st fileinfo.ServiceType, session string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.files[partition{st, session}])
	delete(s.files, partition{st, session})
	return int64(n), nil
}

func (s *Store) RemoveByServiceID(ctx context.Context, st fileinfo.ServiceType, session, serviceID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := partition{st, session}
	var kept []*fileinfo.FileInfo
	var n int64
	for _, f := range s.files[key] {
		if f.ServiceID == serviceID {
			n++
			continue
		}
		kept = append(kept, f)
	}
	s.files[key] = kept
	s.Removed = append(s.Removed, serviceID)
	return n, nil
}

func (s *Store) ReplaceDirectories(ctx context.Context, serviceType, session string, dirs []index.DirectoryRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirs[serviceType+"|"+session] = append([]index.DirectoryRow(nil), dirs...)
	return nil
}

func (s *Store) LoadDirectories(ctx context.Context, serviceType, session string) ([]index.DirectoryRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]index.DirectoryRow(nil), s.dirs[serviceType+"|"+session]...), nil
}
