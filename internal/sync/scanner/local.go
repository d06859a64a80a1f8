package scanner

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"

	"github.com/dl-alexandre/syncapp/internal/fileinfo"
	"github.com/dl-alexandre/syncapp/internal/sync/executor"
)

// LocalOptions controls a filesystem scan
type LocalOptions struct {
	Session string
	Workers int
	// CrossDevices allows descending into other mounted filesystems
	CrossDevices bool
}

// LocalStats reports how much hashing a scan needed
type LocalStats struct {
	Files  int
	Hashed int
	Reused int
}

type localCandidate struct {
	path string
	info fs.FileInfo
	prev *fileinfo.FileInfo
}

// ScanLocal walks root and describes every regular file below it.
// prev maps file URLs to their last known description; a file whose size
// and mtime are unchanged keeps its previous checksums instead of being rehashed.
func ScanLocal(ctx context.Context, root string, prev map[string]*fileinfo.FileInfo, opts LocalOptions) ([]*fileinfo.FileInfo, LocalStats, error) {
	var stats LocalStats
	rootInfo, err := os.Stat(root)
	if err != nil {
		return nil, stats, err
	}
	rootDev, haveDev := deviceOf(rootInfo)

	var candidates []localCandidate
	err = filepath.WalkDir(root, func(current string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if d.IsDir() {
			if current != root && haveDev && !opts.CrossDevices {
				if dev, ok := deviceOf(info); ok && dev != rootDev {
					return filepath.SkipDir
				}
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		abs, err := filepath.Abs(current)
		if err != nil {
			return err
		}
		c := localCandidate{path: abs, info: info}
		if p, ok := prev[LocalURL(abs)]; ok && unchanged(p, info) {
			c.prev = p
		}
		candidates = append(candidates, c)
		return nil
	})
	if err != nil {
		return nil, stats, err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	files, _, err := executor.Map(ctx, candidates, executor.Options{Concurrency: workers, FailFast: true},
		func(ctx context.Context, c localCandidate) (*fileinfo.FileInfo, error) {
			if c.prev != nil {
				f := c.prev.Clone()
				f.ServiceID = opts.Session
				f.ServiceSession = opts.Session
				return f, nil
			}
			return DescribeLocal(c.path, c.info, opts.Session)
		})
	if err != nil {
		return nil, stats, err
	}

	for _, c := range candidates {
		if c.prev != nil {
			stats.Reused++
		} else {
			stats.Hashed++
		}
	}
	stats.Files = len(files)
	sort.Slice(files, func(i, j int) bool { return files[i].Filepath < files[j].Filepath })
	return files, stats, nil
}

// DescribeLocal hashes one file and builds its description
func DescribeLocal(path string, info fs.FileInfo, session string) (*fileinfo.FileInfo, error) {
	md5sum, sha1sum, err := HashFile(path)
	if err != nil {
		return nil, err
	}
	return &fileinfo.FileInfo{
		Filename:       filepath.Base(path),
		Filepath:       path,
		URL:            LocalURL(path),
		MD5:            md5sum,
		SHA1:           sha1sum,
		Stat:           &fileinfo.FileStat{MTime: info.ModTime().Unix(), Size: info.Size()},
		ServiceID:      session,
		ServiceType:    fileinfo.ServiceLocal,
		ServiceSession: session,
	}, nil
}

// LocalURL renders an absolute path as a file:// URL
func LocalURL(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}

// HashFile returns the md5 and sha1 of a file's contents from a single read
func HashFile(path string) (md5sum, sha1sum string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	hm := md5.New()
	hs := sha1.New()
	if _, err := io.Copy(io.MultiWriter(hm, hs), f); err != nil {
		return "", "", err
	}
	return hex.EncodeToString(hm.Sum(nil)), hex.EncodeToString(hs.Sum(nil)), nil
}

func unchanged(prev *fileinfo.FileInfo, info fs.FileInfo) bool {
	if prev.Stat == nil || prev.MD5 == "" {
		return false
	}
	return prev.Stat.Size == info.Size() && prev.Stat.MTime == info.ModTime().Unix()
}
