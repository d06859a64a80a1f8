package fileinfo

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// RemoveBaseURL strips base (with a trailing slash) from the front of u
func RemoveBaseURL(u, base string) string {
	prefix := strings.TrimRight(base, "/") + "/"
	return strings.Replace(u, prefix, "", 1)
}

// ReplaceBaseURL moves u from under base0 to under base1
func ReplaceBaseURL(u, base0, base1 string) (string, error) {
	out := strings.TrimRight(base1, "/") + "/" + RemoveBaseURL(u, base0)
	if _, err := url.Parse(out); err != nil {
		return "", fmt.Errorf("rebase %q onto %q: %w", u, base1, err)
	}
	return out, nil
}

// RemoveBasePath strips base (with a trailing slash) from the front of p.
// An empty base is a bucket root whose keys carry no leading slash.
func RemoveBasePath(p, base string) string {
	base = strings.TrimRight(base, "/")
	if base == "" {
		return strings.TrimPrefix(p, "/")
	}
	return strings.Replace(p, base+"/", "", 1)
}

// ReplaceBasePath moves p from under base0 to under base1
func ReplaceBasePath(p, base0, base1 string) string {
	rel := RemoveBasePath(p, base0)
	base1 = strings.TrimRight(base1, "/")
	if base1 == "" {
		return rel
	}
	return base1 + "/" + rel
}

// Scheme returns the scheme of u, or "" if it does not parse
func Scheme(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return ""
	}
	return parsed.Scheme
}

// GroupURLs buckets urls by scheme, keeping input order within each group
func GroupURLs(urls []string) map[string][]string {
	groups := make(map[string][]string)
	for _, u := range urls {
		s := Scheme(u)
		groups[s] = append(groups[s], u)
	}
	return groups
}

// SortedSchemes returns the keys of a GroupURLs result in stable order
func SortedSchemes(groups map[string][]string) []string {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Canonical re-renders raw with net/url escaping so that prefix arithmetic
// on listed URLs and configured base URLs agree
func Canonical(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", raw, err)
	}
	if _, err := ServiceForScheme(u.Scheme); err != nil {
		return "", err
	}
	return u.String(), nil
}
