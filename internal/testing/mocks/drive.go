package mocks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const folderMime = "application/vnd.google-apps.folder"

// DriveServer is an in-memory Drive v3 endpoint backed by httptest.
// It understands the subset of the API the sync code calls.
type DriveServer struct {
	mu         sync.Mutex
	srv        *httptest.Server
	files      map[string]*drive.File
	content    map[string][]byte
	changes    []*drive.Change
	startToken string
	failStatus int
	nextID     int
	PageSize   int

	Deleted  []string
	Exported []string
	Requests []string
}

// NewDriveServer starts a fake Drive server closed with the test
func NewDriveServer(t *testing.T) *DriveServer {
	t.Helper()
	d := &DriveServer{
		files:      map[string]*drive.File{},
		content:    map[string][]byte{},
		startToken: "1",
		PageSize:   2,
	}
	d.srv = httptest.NewServer(http.HandlerFunc(d.handle))
	t.Cleanup(d.srv.Close)
	return d
}

// Service returns a drive client pointed at the fake server
func (d *DriveServer) Service(t *testing.T) *drive.Service {
	t.Helper()
	svc, err := drive.NewService(context.Background(),
		option.WithEndpoint(d.srv.URL+"/"),
		option.WithHTTPClient(d.srv.Client()),
		option.WithoutAuthentication(),
	)
	if err != nil {
		t.Fatalf("drive.NewService: %v", err)
	}
	return svc
}

// AddFolder registers a folder owned by the test user
func (d *DriveServer) AddFolder(id, name, parent string) *drive.File {
	f := &drive.File{Id: id, Name: name, MimeType: folderMime, Owners: []*drive.User{{Me: true}}}
	if parent != "" {
		f.Parents = []string{parent}
	}
	d.put(f, nil)
	return f
}

// AddFile registers a file with content
func (d *DriveServer) AddFile(id, name, parent, mimeType, md5 string, body []byte) *drive.File {
	f := &drive.File{
		Id:           id,
		Name:         name,
		MimeType:     mimeType,
		Md5Checksum:  md5,
		Size:         int64(len(body)),
		ModifiedTime: "2024-01-02T03:04:05.000Z",
		Parents:      []string{parent},
		Owners:       []*drive.User{{Me: true}},
	}
	d.put(f, body)
	return f
}

func (d *DriveServer) put(f *drive.File, body []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.files[f.Id] = f
	if body != nil {
		d.content[f.Id] = body
	}
}

// File returns the stored object
func (d *DriveServer) File(id string) (*drive.File, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.files[id]
	return f, ok
}

// Content returns the stored bytes of an object
func (d *DriveServer) Content(id string) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.content[id]
}

// SetStartPageToken sets the token returned by changes/startPageToken
func (d *DriveServer) SetStartPageToken(token string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.startToken = token
}

// AddChange appends to the change feed. A nil file records a removal.
func (d *DriveServer) AddChange(fileID string, f *drive.File) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.changes = append(d.changes, &drive.Change{FileId: fileID, File: f, Removed: f == nil})
}

// FailChanges makes changes.list answer with status until reset with 0
func (d *DriveServer) FailChanges(status int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failStatus = status
}

func (d *DriveServer) handle(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	d.Requests = append(d.Requests, r.Method+" "+r.URL.Path)
	d.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/")
	switch {
	case path == "changes/startPageToken":
		d.writeJSON(w, &drive.StartPageToken{StartPageToken: d.startToken})
	case path == "changes":
		d.listChanges(w, r)
	case path == "files" && r.Method == http.MethodGet:
		d.listFiles(w, r)
	case (path == "files" || path == "upload/drive/v3/files") && r.Method == http.MethodPost:
		d.create(w, r)
	case strings.HasSuffix(path, "/export"):
		id := strings.TrimSuffix(strings.TrimPrefix(path, "files/"), "/export")
		d.mu.Lock()
		d.Exported = append(d.Exported, id)
		d.mu.Unlock()
		d.download(w, id)
	case strings.HasPrefix(path, "files/"):
		id := strings.TrimPrefix(path, "files/")
		switch r.Method {
		case http.MethodGet:
			if r.URL.Query().Get("alt") == "media" {
				d.download(w, id)
				return
			}
			d.get(w, id)
		case http.MethodPatch:
			d.update(w, r, id)
		case http.MethodDelete:
			d.delete(w, id)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	default:
		http.NotFound(w, r)
	}
}

func (d *DriveServer) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter, id string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	fmt.Fprintf(w, `{"error":{"code":404,"message":"File not found: %s","errors":[{"reason":"notFound"}]}}`, id)
}

func (d *DriveServer) listFiles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	folders := strings.Contains(q, "mimeType = '"+folderMime+"'")
	var parents []string
	for _, part := range strings.Split(q, "'") {
		if _, ok := d.File(part); ok && strings.Contains(q, "'"+part+"' in parents") {
			parents = append(parents, part)
		}
	}

	d.mu.Lock()
	ids := make([]string, 0, len(d.files))
	for id, f := range d.files {
		if (f.MimeType == folderMime) != folders || f.Trashed {
			continue
		}
		if len(parents) > 0 && !hasAnyParent(f, parents) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	start := 0
	if tok := r.URL.Query().Get("pageToken"); tok != "" {
		fmt.Sscanf(tok, "%d", &start)
	}
	end := start + d.PageSize
	if end > len(ids) {
		end = len(ids)
	}
	list := &drive.FileList{}
	for _, id := range ids[start:end] {
		list.Files = append(list.Files, d.files[id])
	}
	if end < len(ids) {
		list.NextPageToken = fmt.Sprintf("%d", end)
	}
	d.mu.Unlock()
	d.writeJSON(w, list)
}

func hasAnyParent(f *drive.File, parents []string) bool {
	for _, p := range f.Parents {
		for _, want := range parents {
			if p == want {
				return true
			}
		}
	}
	return false
}

func (d *DriveServer) listChanges(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	if status := d.failStatus; status != 0 {
		d.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"error":{"code":%d,"message":"invalid page token","errors":[{"reason":"badRequest"}]}}`, status)
		return
	}
	list := &drive.ChangeList{Changes: d.changes, NewStartPageToken: d.startToken}
	d.mu.Unlock()
	d.writeJSON(w, list)
}

func (d *DriveServer) get(w http.ResponseWriter, id string) {
	f, ok := d.File(id)
	if !ok {
		notFound(w, id)
		return
	}
	d.writeJSON(w, f)
}

func (d *DriveServer) download(w http.ResponseWriter, id string) {
	if _, ok := d.File(id); !ok {
		notFound(w, id)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(d.Content(id))
}

func (d *DriveServer) create(w http.ResponseWriter, r *http.Request) {
	meta := &drive.File{}
	body := readUpload(r, meta)

	d.mu.Lock()
	d.nextID++
	meta.Id = fmt.Sprintf("new-%d", d.nextID)
	meta.Owners = []*drive.User{{Me: true}}
	meta.Size = int64(len(body))
	d.mu.Unlock()
	d.put(meta, body)
	d.writeJSON(w, meta)
}

func (d *DriveServer) update(w http.ResponseWriter, r *http.Request, id string) {
	f, ok := d.File(id)
	if !ok {
		notFound(w, id)
		return
	}
	patch := &drive.File{}
	_ = json.NewDecoder(r.Body).Decode(patch)

	d.mu.Lock()
	if patch.Name != "" {
		f.Name = patch.Name
	}
	if remove := r.URL.Query().Get("removeParents"); remove != "" {
		var kept []string
		for _, p := range f.Parents {
			if !strings.Contains(","+remove+",", ","+p+",") {
				kept = append(kept, p)
			}
		}
		f.Parents = kept
	}
	if add := r.URL.Query().Get("addParents"); add != "" {
		f.Parents = append(f.Parents, strings.Split(add, ",")...)
	}
	d.mu.Unlock()
	d.writeJSON(w, f)
}

func (d *DriveServer) delete(w http.ResponseWriter, id string) {
	d.mu.Lock()
	_, ok := d.files[id]
	if ok {
		delete(d.files, id)
		delete(d.content, id)
		d.Deleted = append(d.Deleted, id)
	}
	d.mu.Unlock()
	if !ok {
		notFound(w, id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
