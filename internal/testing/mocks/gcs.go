package mocks

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"
)

// GCSServer is an in-memory Cloud Storage JSON API endpoint for one or
// more buckets
type GCSServer struct {
	mu       sync.Mutex
	srv      *httptest.Server
	objects  map[string]*storage.Object
	content  map[string][]byte
	PageSize int

	Requests []string
}

// NewGCSServer starts a fake storage server closed with the test
func NewGCSServer(t *testing.T) *GCSServer {
	t.Helper()
	g := &GCSServer{
		objects:  map[string]*storage.Object{},
		content:  map[string][]byte{},
		PageSize: 2,
	}
	g.srv = httptest.NewServer(http.HandlerFunc(g.handle))
	t.Cleanup(g.srv.Close)
	return g
}

// Service returns a storage client pointed at the fake server
func (g *GCSServer) Service(t *testing.T) *storage.Service {
	t.Helper()
	svc, err := storage.NewService(context.Background(),
		option.WithEndpoint(g.Endpoint()),
		option.WithHTTPClient(g.srv.Client()),
		option.WithoutAuthentication(),
	)
	if err != nil {
		t.Fatalf("storage.NewService: %v", err)
	}
	return svc
}

// Endpoint is the JSON API base URL of the server
func (g *GCSServer) Endpoint() string {
	return g.srv.URL + "/storage/v1/"
}

func objectKey(bucket, name string) string {
	return bucket + "/" + name
}

// Put stores an object with content
func (g *GCSServer) Put(bucket, name string, body []byte) *storage.Object {
	sum := md5.Sum(body)
	obj := &storage.Object{
		Bucket:  bucket,
		Name:    name,
		Md5Hash: base64.StdEncoding.EncodeToString(sum[:]),
		Size:    uint64(len(body)),
		Updated: "2024-01-02T03:04:05.000Z",
		Etag:    fmt.Sprintf("etag-%x", sum[:4]),
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.objects[objectKey(bucket, name)] = obj
	g.content[objectKey(bucket, name)] = body
	return obj
}

// Content returns the stored bytes of an object and whether it exists
func (g *GCSServer) Content(bucket, name string) ([]byte, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.content[objectKey(bucket, name)]
	return b, ok
}

// splitPath unescapes each segment of the request path so that object
// names containing slashes survive
func splitPath(r *http.Request) []string {
	raw := strings.Trim(r.URL.EscapedPath(), "/")
	parts := strings.Split(raw, "/")
	for i, p := range parts {
		if s, err := url.PathUnescape(p); err == nil {
			parts[i] = s
		}
	}
	return parts
}

func (g *GCSServer) handle(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	g.Requests = append(g.Requests, r.Method+" "+r.URL.Path)
	g.mu.Unlock()

	parts := splitPath(r)
	upload := len(parts) > 0 && parts[0] == "upload"
	if upload {
		parts = parts[1:]
	}
	// storage v1 b {bucket} o [{object} [copyTo b {bucket} o {object}]]
	if len(parts) < 5 || parts[0] != "storage" || parts[2] != "b" || parts[4] != "o" {
		http.NotFound(w, r)
		return
	}
	bucket := parts[3]
	rest := parts[5:]

	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		g.list(w, r, bucket)
	case len(rest) == 0 && r.Method == http.MethodPost && upload:
		g.insert(w, r, bucket)
	case len(rest) == 5 && rest[1] == "copyTo" && r.Method == http.MethodPost:
		g.copy(w, bucket, rest[0], rest[3], rest[4])
	case len(rest) == 1 && r.Method == http.MethodGet:
		if r.URL.Query().Get("alt") == "media" {
			g.download(w, bucket, rest[0])
			return
		}
		g.get(w, bucket, rest[0])
	case len(rest) == 1 && r.Method == http.MethodDelete:
		g.delete(w, bucket, rest[0])
	default:
		http.NotFound(w, r)
	}
}

func (g *GCSServer) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func gcsNotFound(w http.ResponseWriter, name string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	fmt.Fprintf(w, `{"error":{"code":404,"message":"No such object: %s","errors":[{"reason":"notFound"}]}}`, name)
}

func (g *GCSServer) list(w http.ResponseWriter, r *http.Request, bucket string) {
	prefix := r.URL.Query().Get("prefix")
	g.mu.Lock()
	var names []string
	for _, obj := range g.objects {
		if obj.Bucket == bucket && strings.HasPrefix(obj.Name, prefix) {
			names = append(names, obj.Name)
		}
	}
	sort.Strings(names)

	pageSize := g.PageSize
	if n := r.URL.Query().Get("maxResults"); n != "" {
		var max int
		if _, err := fmt.Sscanf(n, "%d", &max); err == nil && max > 0 && max < pageSize {
			pageSize = max
		}
	}
	start := 0
	if tok := r.URL.Query().Get("pageToken"); tok != "" {
		fmt.Sscanf(tok, "%d", &start)
	}
	end := start + pageSize
	if end > len(names) {
		end = len(names)
	}
	out := &storage.Objects{}
	for _, name := range names[start:end] {
		out.Items = append(out.Items, g.objects[objectKey(bucket, name)])
	}
	if end < len(names) {
		out.NextPageToken = fmt.Sprintf("%d", end)
	}
	g.mu.Unlock()
	g.writeJSON(w, out)
}

func (g *GCSServer) get(w http.ResponseWriter, bucket, name string) {
	g.mu.Lock()
	obj, ok := g.objects[objectKey(bucket, name)]
	g.mu.Unlock()
	if !ok {
		gcsNotFound(w, name)
		return
	}
	g.writeJSON(w, obj)
}

func (g *GCSServer) download(w http.ResponseWriter, bucket, name string) {
	body, ok := g.Content(bucket, name)
	if !ok {
		gcsNotFound(w, name)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(body)
}

func (g *GCSServer) insert(w http.ResponseWriter, r *http.Request, bucket string) {
	meta := &storage.Object{}
	body := readUpload(r, meta)
	name := meta.Name
	if name == "" {
		name = r.URL.Query().Get("name")
	}
	g.writeJSON(w, g.Put(bucket, name, body))
}

func (g *GCSServer) copy(w http.ResponseWriter, srcBucket, srcName, dstBucket, dstName string) {
	body, ok := g.Content(srcBucket, srcName)
	if !ok {
		gcsNotFound(w, srcName)
		return
	}
	g.writeJSON(w, g.Put(dstBucket, dstName, body))
}

func (g *GCSServer) delete(w http.ResponseWriter, bucket, name string) {
	g.mu.Lock()
	_, ok := g.objects[objectKey(bucket, name)]
	delete(g.objects, objectKey(bucket, name))
	delete(g.content, objectKey(bucket, name))
	g.mu.Unlock()
	if !ok {
		gcsNotFound(w, name)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
