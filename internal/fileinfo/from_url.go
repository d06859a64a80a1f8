package fileinfo

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// FromURL builds a FileInfo carrying only what the URL itself reveals.
// Checksums and stat are left empty.
func FromURL(raw string) (*FileInfo, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", raw, err)
	}
	st, err := ServiceForScheme(u.Scheme)
	if err != nil {
		return nil, err
	}
	switch st {
	case ServiceLocal:
		return fromLocalURL(u)
	case ServiceS3, ServiceGCS:
		return fromBucketURL(u, st)
	case ServiceGDrive:
		return fromGDriveURL(u)
	case ServiceSSH:
		return fromSSHURL(u)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, u.Scheme)
}

func leafName(p string) (string, error) {
	p = strings.TrimRight(p, "/")
	if p == "" {
		return "", ErrNoFilename
	}
	name := path.Base(p)
	if name == "." || name == "/" {
		return "", ErrNoFilename
	}
	return name, nil
}

func fromLocalURL(u *url.URL) (*FileInfo, error) {
	if u.Scheme != "file" {
		return nil, ErrWrongScheme
	}
	name, err := leafName(u.Path)
	if err != nil {
		return nil, err
	}
	return &FileInfo{
		Filename:    name,
		Filepath:    u.Path,
		URL:         u.String(),
		ServiceType: ServiceLocal,
	}, nil
}

// fromBucketURL handles s3:// and gs:// where host is the bucket and path the key
func fromBucketURL(u *url.URL, st ServiceType) (*FileInfo, error) {
	bucket := u.Host
	if bucket == "" {
		return nil, fmt.Errorf("no bucket in %q", u.String())
	}
	key := strings.TrimPrefix(u.Path, "/")
	name, err := leafName(key)
	if err != nil {
		return nil, err
	}
	return &FileInfo{
		Filename:       name,
		Filepath:       key,
		URL:            BucketURL(st, bucket, key),
		ServiceID:      bucket,
		ServiceType:    st,
		ServiceSession: bucket,
	}, nil
}

// BucketURL renders the canonical URL of an object in a bucket
func BucketURL(st ServiceType, bucket, key string) string {
	u := url.URL{Scheme: st.Scheme(), Host: bucket, Path: "/" + strings.TrimPrefix(key, "/")}
	return u.String()
}

func fromGDriveURL(u *url.URL) (*FileInfo, error) {
	name, err := leafName(u.Path)
	if err != nil {
		return nil, err
	}
	session, err := ParseSession(GDriveSession(u))
	if err != nil {
		return nil, err
	}
	return &FileInfo{
		Filename:       name,
		Filepath:       u.Path,
		URL:            u.String(),
		ServiceID:      name,
		ServiceType:    ServiceGDrive,
		ServiceSession: session,
	}, nil
}

// GDriveSession returns the account part of a gdrive:// URL, user@domain
func GDriveSession(u *url.URL) string {
	if u.User != nil {
		return u.User.String() + "@" + u.Host
	}
	return u.Host
}

func fromSSHURL(u *url.URL) (*FileInfo, error) {
	name, err := leafName(u.Path)
	if err != nil {
		return nil, err
	}
	return &FileInfo{
		Filename:    name,
		Filepath:    u.Path,
		URL:         u.String(),
		ServiceType: ServiceSSH,
	}, nil
}

// GDriveURL renders the URL of a Drive path within an account session
func GDriveURL(session, p string) (string, error) {
	u, err := url.Parse("gdrive://" + session)
	if err != nil {
		return "", fmt.Errorf("parse session %q: %w", session, err)
	}
	u.Path = "/" + strings.TrimPrefix(p, "/")
	return u.String(), nil
}
