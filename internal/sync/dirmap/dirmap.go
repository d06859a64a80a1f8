// Package dirmap resolves Drive's folder graph into slash separated paths.
package dirmap

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"github.com/dl-alexandre/syncapp/internal/sync/index"
	"github.com/dl-alexandre/syncapp/internal/utils"
	"google.golang.org/api/drive/v3"
)

// maxDepth bounds parent chain walks against cycles in malformed graphs
const maxDepth = 256

// DirectoryInfo is one folder node
type DirectoryInfo struct {
	ID       string
	Name     string
	ParentID string
}

// Lookup fetches a single object's metadata when the map has no entry for it
type Lookup func(ctx context.Context, id string) (*drive.File, error)

// Map is the id -> folder index of one Drive plus its root folder id
type Map struct {
	dirs   map[string]DirectoryInfo
	byName map[string][]DirectoryInfo
	root   string
}

// New builds a Map from already resolved folders
func New(dirs []DirectoryInfo, root string) *Map {
	m := &Map{dirs: make(map[string]DirectoryInfo, len(dirs)), root: root}
	for _, d := range dirs {
		m.dirs[d.ID] = d
	}
	m.reindex()
	return m
}

// Build turns a folder listing into a Map. Folders not owned by the
// authenticated user are skipped. Parents referenced but absent from the
// listing are fetched one by one through lookup.
func Build(ctx context.Context, folders []*drive.File, lookup Lookup) (*Map, error) {
	m := &Map{dirs: make(map[string]DirectoryInfo, len(folders))}
	for _, f := range folders {
		if !ownedByMe(f) || f.Id == "" || f.Name == "" {
			continue
		}
		m.add(f)
	}

	var missing []string
	for _, d := range m.dirs {
		if d.ParentID == "" {
			continue
		}
		if _, ok := m.dirs[d.ParentID]; !ok {
			missing = append(missing, d.ParentID)
		}
	}
	sort.Strings(missing)
	for _, id := range missing {
		if _, ok := m.dirs[id]; ok || lookup == nil {
			continue
		}
		f, err := lookup(ctx, id)
		if err != nil {
			return nil, err
		}
		if f == nil || f.Id == "" || f.Name == "" {
			continue
		}
		m.add(f)
	}
	m.reindex()
	return m, nil
}

func (m *Map) add(f *drive.File) {
	d := DirectoryInfo{ID: f.Id, Name: f.Name}
	if len(f.Parents) > 0 {
		d.ParentID = f.Parents[0]
	} else if m.root == "" && f.Name != utils.PseudoRootFolderName {
		m.root = f.Id
	}
	if _, ok := m.dirs[d.ID]; !ok {
		m.dirs[d.ID] = d
	}
}

func (m *Map) reindex() {
	m.byName = make(map[string][]DirectoryInfo, len(m.dirs))
	ids := make([]string, 0, len(m.dirs))
	for id := range m.dirs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		d := m.dirs[id]
		m.byName[d.Name] = append(m.byName[d.Name], d)
	}
}

func ownedByMe(f *drive.File) bool {
	return len(f.Owners) > 0 && f.Owners[0].Me
}

// Root returns the id of the Drive root folder, if one was seen
func (m *Map) Root() string { return m.root }

func (m *Map) Len() int { return len(m.dirs) }

func (m *Map) Get(id string) (DirectoryInfo, bool) {
	d, ok := m.dirs[id]
	return d, ok
}

// Named returns every folder called name
func (m *Map) Named(name string) []DirectoryInfo {
	return m.byName[name]
}

// ExportPath returns the path of f as segments from the top folder down.
// Every folder segment carries a trailing slash, the leaf does not.
func (m *Map) ExportPath(ctx context.Context, f *drive.File, lookup Lookup) []string {
	path := []string{f.Name}
	pid := firstParent(f.Parents)
	for depth := 0; pid != "" && depth < maxDepth; depth++ {
		if d, ok := m.dirs[pid]; ok {
			path = append(path, d.Name+"/")
			pid = d.ParentID
			continue
		}
		if lookup == nil {
			break
		}
		parent, err := lookup(ctx, pid)
		if err != nil || parent == nil {
			break
		}
		pid = firstParent(parent.Parents)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// Resolve walks the path of a gdrive URL top down against the folder
// names. It returns the id of the deepest matching folder and whether every
// segment matched. Same named siblings are told apart by the parent
// resolved for the previous segment.
func (m *Map) Resolve(rawURL string) (string, bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false, err
	}
	previous := ""
	for _, seg := range strings.Split(strings.TrimPrefix(u.Path, "/"), "/") {
		if seg == "" {
			continue
		}
		match := ""
		for _, candidate := range m.byName[seg] {
			if previous == "" {
				match = candidate.ID
				break
			}
			if candidate.ParentID == previous {
				match = candidate.ID
			}
		}
		if match == "" {
			return previous, false, nil
		}
		previous = match
	}
	return previous, true, nil
}

// ParentID returns the deepest existing folder on the path of a file URL.
// It is empty when the first segment is unknown or when every segment,
// leaf included, names a folder.
func (m *Map) ParentID(rawURL string) (string, error) {
	id, complete, err := m.Resolve(rawURL)
	if err != nil || complete {
		return "", err
	}
	return id, nil
}

// Rows renders the map for the directory cache
func (m *Map) Rows() []index.DirectoryRow {
	ids := make([]string, 0, len(m.dirs))
	for id := range m.dirs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	rows := make([]index.DirectoryRow, 0, len(ids))
	for _, id := range ids {
		d := m.dirs[id]
		rows = append(rows, index.DirectoryRow{
			DirectoryID:   d.ID,
			DirectoryName: d.Name,
			ParentID:      d.ParentID,
			IsRoot:        d.ID == m.root,
		})
	}
	return rows
}

// FromRows rebuilds a map from the directory cache
func FromRows(rows []index.DirectoryRow) *Map {
	dirs := make([]DirectoryInfo, 0, len(rows))
	root := ""
	for _, r := range rows {
		dirs = append(dirs, DirectoryInfo{ID: r.DirectoryID, Name: r.DirectoryName, ParentID: r.ParentID})
		if r.IsRoot {
			root = r.DirectoryID
		}
	}
	return New(dirs, root)
}

func firstParent(parents []string) string {
	if len(parents) == 0 {
		return ""
	}
	return parents[0]
}
