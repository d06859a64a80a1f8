package scanner

import (
	"context"
	"strings"
	"time"

	"github.com/dl-alexandre/syncapp/internal/fileinfo"
	"github.com/dl-alexandre/syncapp/internal/files"
	"github.com/dl-alexandre/syncapp/internal/sync/dirmap"
	"google.golang.org/api/drive/v3"
)

// DescribeDrive builds the description of a Drive object, placing it at
// the path its folder chain resolves to
func DescribeDrive(ctx context.Context, f *drive.File, dirs *dirmap.Map, session string, lookup dirmap.Lookup) (*fileinfo.FileInfo, error) {
	segments := dirs.ExportPath(ctx, f, lookup)
	name := files.ExportName(f)
	segments[len(segments)-1] = name
	p := strings.Join(segments, "")

	u, err := fileinfo.GDriveURL(session, p)
	if err != nil {
		return nil, err
	}
	info := &fileinfo.FileInfo{
		Filename:       name,
		Filepath:       p,
		URL:            u,
		ServiceID:      f.Id,
		ServiceType:    fileinfo.ServiceGDrive,
		ServiceSession: session,
	}
	info.MD5, _ = fileinfo.ParseMD5(f.Md5Checksum)
	info.SHA1, _ = fileinfo.ParseSHA1(f.Sha1Checksum)
	if mtime, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
		info.Stat = &fileinfo.FileStat{MTime: mtime.Unix(), Size: f.Size}
	}
	return info, nil
}

// MergeByServiceID applies a change feed to a previous listing: objects
// named in removed are dropped and updated objects replace any previous
// entry with the same provider id
func MergeByServiceID(prev []*fileinfo.FileInfo, removed []string, updated []*fileinfo.FileInfo) []*fileinfo.FileInfo {
	byID := make(map[string]*fileinfo.FileInfo, len(prev)+len(updated))
	order := make([]string, 0, len(prev)+len(updated))
	for _, f := range prev {
		if _, ok := byID[f.ServiceID]; !ok {
			order = append(order, f.ServiceID)
		}
		byID[f.ServiceID] = f
	}
	for _, id := range removed {
		delete(byID, id)
	}
	for _, f := range updated {
		if _, ok := byID[f.ServiceID]; !ok {
			order = append(order, f.ServiceID)
		}
		byID[f.ServiceID] = f
	}

	out := make([]*fileinfo.FileInfo, 0, len(byID))
	seen := make(map[string]bool, len(byID))
	for _, id := range order {
		f, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, f)
	}
	return out
}
