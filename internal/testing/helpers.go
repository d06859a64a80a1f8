// Package testing holds helpers shared by the package tests.
package testing

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dl-alexandre/syncapp/internal/fileinfo"
	"github.com/dl-alexandre/syncapp/internal/types"
)

// TestContext creates a standard test context
func TestContext() context.Context {
	return context.Background()
}

// TestRequestContext creates a standard request context for testing
func TestRequestContext() *types.RequestContext {
	return &types.RequestContext{
		Service:     "test",
		Session:     "test-session",
		RequestType: types.RequestTypeList,
		TraceID:     "test-trace-id",
	}
}

// WriteFile creates dir/rel with body, making parents as needed, and returns its path
func WriteFile(t *testing.T, dir, rel, body string) string {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte(body), 0644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

// RemoteFile builds a listed object of a bucket backend
func RemoteFile(st fileinfo.ServiceType, bucket, key, md5 string, mtime, size int64) *fileinfo.FileInfo {
	return &fileinfo.FileInfo{
		Filename:       filepath.Base(key),
		Filepath:       key,
		URL:            fileinfo.BucketURL(st, bucket, key),
		MD5:            md5,
		Stat:           &fileinfo.FileStat{MTime: mtime, Size: size},
		ServiceID:      bucket,
		ServiceType:    st,
		ServiceSession: bucket,
	}
}

// AssertNoError is a helper to fail the test if error is not nil
func AssertNoError(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	if err == nil {
		return
	}
	if len(msgAndArgs) > 0 {
		t.Fatalf("%v: %v", msgAndArgs[0], err)
	}
	t.Fatalf("unexpected error: %v", err)
}

// AssertError is a helper to fail the test if error is nil
func AssertError(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	if err != nil {
		return
	}
	if len(msgAndArgs) > 0 {
		t.Fatalf("%v: expected error but got nil", msgAndArgs[0])
	}
	t.Fatal("expected error but got nil")
}

// AssertEqual is a helper to fail the test if two values are not equal
func AssertEqual(t *testing.T, got, want interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	if got == want {
		return
	}
	if len(msgAndArgs) > 0 {
		t.Fatalf("%v: got %v, want %v", msgAndArgs[0], got, want)
	}
	t.Fatalf("got %v, want %v", got, want)
}
