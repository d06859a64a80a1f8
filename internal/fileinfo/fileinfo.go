// Package fileinfo holds the backend-agnostic description of a stored object
// and the URL arithmetic used to line objects up across backends.
package fileinfo

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrUnknownScheme is returned for URLs no backend handles
	ErrUnknownScheme = errors.New("unknown url scheme")
	// ErrWrongScheme is returned when a URL is handed to the wrong constructor
	ErrWrongScheme = errors.New("wrong url scheme")
	// ErrNoFilename is returned when a URL or path has no leaf name
	ErrNoFilename = errors.New("no filename")
)

// FileStat is the modification time (unix seconds) and size of an object
type FileStat struct {
	MTime int64 `json:"st_mtime"`
	Size  int64 `json:"st_size"`
}

// FileInfo describes one object as observed on a backend.
// Values are treated as immutable once built; copy before modifying.
type FileInfo struct {
	Filename       string      `json:"filename"`
	Filepath       string      `json:"filepath,omitempty"`
	URL            string      `json:"urlname"`
	MD5            string      `json:"md5sum,omitempty"`
	SHA1           string      `json:"sha1sum,omitempty"`
	Stat           *FileStat   `json:"filestat,omitempty"`
	ServiceID      string      `json:"serviceid"`
	ServiceType    ServiceType `json:"servicetype"`
	ServiceSession string      `json:"servicesession"`
}

// Key is the identity of a cached object
type Key struct {
	Filename       string
	Filepath       string
	URL            string
	ServiceID      string
	ServiceSession string
}

// Key returns the cache identity of f
func (f *FileInfo) Key() Key {
	return Key{
		Filename:       f.Filename,
		Filepath:       f.Filepath,
		URL:            f.URL,
		ServiceID:      f.ServiceID,
		ServiceSession: f.ServiceSession,
	}
}

// Clone returns a deep copy of f
func (f *FileInfo) Clone() *FileInfo {
	cp := *f
	if f.Stat != nil {
		st := *f.Stat
		cp.Stat = &st
	}
	return &cp
}

// ParseMD5 returns the lowercased checksum if s is 32 hex characters
func ParseMD5(s string) (string, bool) {
	return parseHexDigest(s, 32)
}

// ParseSHA1 returns the lowercased checksum if s is 40 hex characters
func ParseSHA1(s string) (string, bool) {
	return parseHexDigest(s, 40)
}

func parseHexDigest(s string, n int) (string, bool) {
	s = strings.ToLower(strings.Trim(s, `" `))
	if len(s) != n {
		return "", false
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", false
	}
	return s, true
}

// Normalize drops malformed checksums so they read as absent
func (f *FileInfo) Normalize() {
	if f.MD5 != "" {
		f.MD5, _ = ParseMD5(f.MD5)
	}
	if f.SHA1 != "" {
		f.SHA1, _ = ParseSHA1(f.SHA1)
	}
}

// Validate checks the invariants every listed object must satisfy
func (f *FileInfo) Validate() error {
	if f.Filename == "" {
		return ErrNoFilename
	}
	if f.MD5 != "" {
		if _, ok := ParseMD5(f.MD5); !ok {
			return fmt.Errorf("invalid md5sum %q", f.MD5)
		}
	}
	if f.SHA1 != "" {
		if _, ok := ParseSHA1(f.SHA1); !ok {
			return fmt.Errorf("invalid sha1sum %q", f.SHA1)
		}
	}
	if f.URL != "" {
		u, err := url.Parse(f.URL)
		if err != nil {
			return fmt.Errorf("invalid url %q: %w", f.URL, err)
		}
		st, err := ServiceForScheme(u.Scheme)
		if err != nil {
			return err
		}
		if st != f.ServiceType {
			return fmt.Errorf("url %q does not match service type %s", f.URL, f.ServiceType)
		}
	}
	return nil
}

// ParseSession validates a service session name
func ParseSession(s string) (string, error) {
	if s == "" {
		return "", errors.New("session name must not be empty")
	}
	return s, nil
}

func (f *FileInfo) String() string {
	return fmt.Sprintf("%s (%s)", f.URL, f.ServiceType)
}
