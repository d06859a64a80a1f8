// Package diff compares two file lists and records the transfers needed to
// make them converge.
package diff

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/dl-alexandre/syncapp/internal/backend"
	"github.com/dl-alexandre/syncapp/internal/fileinfo"
	"github.com/dl-alexandre/syncapp/internal/logging"
)

// Pair is one pending transfer from Src to Dst
type Pair struct {
	Src *fileinfo.FileInfo
	Dst *fileinfo.FileInfo
}

// Queue persists pending transfers
type Queue interface {
	EnqueueSync(ctx context.Context, srcURL, dstURL string) error
}

// CompareObjects reports whether a should be copied over b.
//
// A checksum match always wins. Without checksums on both sides the pair
// is an export and a size difference alone does not force a copy. A newer
// mtime on a forces a copy.
func CompareObjects(a, b *fileinfo.FileInfo) bool {
	if a.Filename != b.Filename {
		return false
	}

	sumA, sumB := a.MD5, b.MD5
	if a.ServiceType == fileinfo.ServiceOneDrive || b.ServiceType == fileinfo.ServiceOneDrive {
		sumA, sumB = a.SHA1, b.SHA1
	}
	isExport := sumA == "" || sumB == ""
	update := !isExport

	if a.Stat != nil && b.Stat != nil {
		if a.Stat.MTime > b.Stat.MTime {
			update = true
		}
		if a.Stat.Size != b.Stat.Size && !isExport {
			update = true
		}
	}
	if !isExport && sumA == sumB {
		return false
	}
	return update
}

// CompareLists returns the transfers converging a and b. Keys present on
// both sides are compared with CompareObjects. Keys missing from one side
// are copied across to the same relative location under the other base.
func CompareLists(a, b *backend.FileList) ([]Pair, error) {
	var pairs []Pair
	for _, key := range a.Keys() {
		fa, _ := a.Get(key)
		if fb, ok := b.Get(key); ok {
			if CompareObjects(fa, fb) {
				pairs = append(pairs, Pair{Src: fa, Dst: fb})
			}
			continue
		}
		dst, err := rebase(key, fa, a, b)
		if err != nil {
			return nil, err
		}
		if dst != nil {
			pairs = append(pairs, Pair{Src: fa, Dst: dst})
		}
	}
	for _, key := range b.Keys() {
		if _, ok := a.Get(key); ok {
			continue
		}
		fb, _ := b.Get(key)
		dst, err := rebase(key, fb, b, a)
		if err != nil {
			return nil, err
		}
		if dst != nil {
			pairs = append(pairs, Pair{Src: fb, Dst: dst})
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].Src.URL != pairs[j].Src.URL {
			return pairs[i].Src.URL < pairs[j].Src.URL
		}
		return pairs[i].Dst.URL < pairs[j].Dst.URL
	})
	return pairs, nil
}

// rebase synthesizes the location f would have under to. It returns nil
// when f does not live under from's base, since its URL cannot be rebased.
func rebase(key string, f *fileinfo.FileInfo, from, to *backend.FileList) (*fileinfo.FileInfo, error) {
	if !strings.HasPrefix(f.URL, strings.TrimRight(from.BaseURL(), "/")+"/") {
		return nil, nil
	}
	u, err := fileinfo.ReplaceBaseURL(f.URL, from.BaseURL(), to.BaseURL())
	if err != nil {
		return nil, err
	}
	return &fileinfo.FileInfo{
		Filename:       path.Base(key),
		Filepath:       fileinfo.ReplaceBasePath(f.Filepath, from.BasePath(), to.BasePath()),
		URL:            u,
		ServiceType:    to.ServiceType(),
		ServiceSession: to.Session(),
	}, nil
}

// Reconcile compares the lists of a and b. With nothing to do both
// adapters are cleaned up; otherwise every pair is queued and cleanup is
// skipped so the next pass sees the same divergence. It returns the pairs
// queued.
func Reconcile(ctx context.Context, a, b backend.Adapter, q Queue, logger logging.Logger) ([]Pair, error) {
	logger = logging.OrNoOp(logger)
	pairs, err := CompareLists(a.List(), b.List())
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		logger.Info("Lists in sync",
			logging.F("a", a.List().BaseURL()),
			logging.F("b", b.List().BaseURL()),
		)
		if err := a.Cleanup(); err != nil {
			return nil, fmt.Errorf("cleanup %s: %w", a.List().BaseURL(), err)
		}
		if err := b.Cleanup(); err != nil {
			return nil, fmt.Errorf("cleanup %s: %w", b.List().BaseURL(), err)
		}
		return nil, nil
	}
	for _, p := range pairs {
		logger.Debug("Queueing transfer", logging.F("src", p.Src.URL), logging.F("dst", p.Dst.URL))
		if err := q.EnqueueSync(ctx, p.Src.URL, p.Dst.URL); err != nil {
			return nil, err
		}
	}
	return pairs, nil
}
