package backend

import (
	"sort"
	"sync"

	"github.com/dl-alexandre/syncapp/internal/fileinfo"
)

// FileList is the identity of a listing root plus the last observed
// objects under it, keyed by path relative to BasePath
type FileList struct {
	mu          sync.RWMutex
	baseURL     string
	basePath    string
	serviceType fileinfo.ServiceType
	session     string
	files       map[string]*fileinfo.FileInfo
}

func NewFileList(baseURL, basePath string, st fileinfo.ServiceType, session string) *FileList {
	return &FileList{
		baseURL:     baseURL,
		basePath:    basePath,
		serviceType: st,
		session:     session,
		files:       map[string]*fileinfo.FileInfo{},
	}
}

func (l *FileList) BaseURL() string                   { return l.baseURL }
func (l *FileList) BasePath() string                  { return l.basePath }
func (l *FileList) ServiceType() fileinfo.ServiceType { return l.serviceType }
func (l *FileList) Session() string                   { return l.session }

// WithList replaces the observed objects. Every object is stamped with
// this list's session.
func (l *FileList) WithList(files []*fileinfo.FileInfo) {
	m := make(map[string]*fileinfo.FileInfo, len(files))
	for _, f := range files {
		key := fileinfo.RemoveBasePath(f.Filepath, l.basePath)
		if f.ServiceSession != l.session {
			f = f.Clone()
			f.ServiceSession = l.session
		}
		m[key] = f
	}
	l.mu.Lock()
	l.files = m
	l.mu.Unlock()
}

// Get returns the object stored under a relative key
func (l *FileList) Get(key string) (*fileinfo.FileInfo, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	f, ok := l.files[key]
	return f, ok
}

// Keys returns the relative keys in sorted order
func (l *FileList) Keys() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	keys := make([]string, 0, len(l.files))
	for k := range l.files {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Files returns the observed objects sorted by key
func (l *FileList) Files() []*fileinfo.FileInfo {
	keys := l.Keys()
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*fileinfo.FileInfo, 0, len(keys))
	for _, k := range keys {
		out = append(out, l.files[k])
	}
	return out
}

func (l *FileList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.files)
}
