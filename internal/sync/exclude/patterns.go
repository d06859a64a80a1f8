// Package exclude filters listings against the configured URL blacklist.
package exclude

import (
	"strings"

	"github.com/dl-alexandre/syncapp/internal/fileinfo"
)

// Matcher holds blacklist URL substrings
type Matcher struct {
	entries []string
}

func New(entries []string) *Matcher {
	m := &Matcher{}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		m.entries = append(m.entries, e)
	}
	return m
}

// Len returns the number of active entries
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// IsExcluded reports whether url contains any blacklist entry
func (m *Matcher) IsExcluded(url string) bool {
	if m == nil {
		return false
	}
	for _, e := range m.entries {
		if strings.Contains(url, e) {
			return true
		}
	}
	return false
}

// Filter drops blacklisted entries from a listing
func (m *Matcher) Filter(files []*fileinfo.FileInfo) []*fileinfo.FileInfo {
	if m.Len() == 0 {
		return files
	}
	out := make([]*fileinfo.FileInfo, 0, len(files))
	for _, f := range files {
		if m.IsExcluded(f.URL) {
			continue
		}
		out = append(out, f)
	}
	return out
}
