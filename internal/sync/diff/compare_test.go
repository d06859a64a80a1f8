package diff

import (
	"context"
	"errors"
	"io"
	"path"
	"testing"

	"github.com/dl-alexandre/syncapp/internal/backend"
	"github.com/dl-alexandre/syncapp/internal/fileinfo"
	tu "github.com/dl-alexandre/syncapp/internal/testing"
)

const (
	localBase = "/home/u/setup_files/build/sync_app"
	syncMD5   = "6f90ebdaabef92a9f76be131037f593b"
)

func localFile(rel, md5 string, mtime, size int64) *fileinfo.FileInfo {
	p := localBase + "/" + rel
	return &fileinfo.FileInfo{
		Filename:       path.Base(rel),
		Filepath:       p,
		URL:            "file://" + p,
		MD5:            md5,
		Stat:           &fileinfo.FileStat{MTime: mtime, Size: size},
		ServiceType:    fileinfo.ServiceLocal,
		ServiceSession: "local",
	}
}

func localList(files ...*fileinfo.FileInfo) *backend.FileList {
	l := backend.NewFileList("file://"+localBase, localBase, fileinfo.ServiceLocal, "local")
	l.WithList(files)
	return l
}

func s3List(files ...*fileinfo.FileInfo) *backend.FileList {
	l := backend.NewFileList("s3://test_bucket", "", fileinfo.ServiceS3, "test_bucket")
	l.WithList(files)
	return l
}

func TestCompareObjects(t *testing.T) {
	stat := func(mtime, size int64) *fileinfo.FileStat { return &fileinfo.FileStat{MTime: mtime, Size: size} }
	tests := []struct {
		name string
		a, b *fileinfo.FileInfo
		want bool
	}{
		{
			name: "different filenames are not comparable",
			a:    &fileinfo.FileInfo{Filename: "a", MD5: syncMD5},
			b:    &fileinfo.FileInfo{Filename: "b", MD5: "00000000000000000000000000000000"},
			want: false,
		},
		{
			name: "matching md5 wins over newer mtime",
			a:    &fileinfo.FileInfo{Filename: "a", MD5: syncMD5, Stat: stat(200, 5)},
			b:    &fileinfo.FileInfo{Filename: "a", MD5: syncMD5, Stat: stat(100, 9)},
			want: false,
		},
		{
			name: "differing md5 needs update",
			a:    &fileinfo.FileInfo{Filename: "a", MD5: syncMD5, Stat: stat(100, 5)},
			b:    &fileinfo.FileInfo{Filename: "a", MD5: "00000000000000000000000000000000", Stat: stat(100, 5)},
			want: true,
		},
		{
			name: "export size mismatch alone does not copy",
			a:    &fileinfo.FileInfo{Filename: "a", Stat: stat(100, 5)},
			b:    &fileinfo.FileInfo{Filename: "a", MD5: syncMD5, Stat: stat(100, 9)},
			want: false,
		},
		{
			name: "export with newer source copies",
			a:    &fileinfo.FileInfo{Filename: "a", Stat: stat(200, 5)},
			b:    &fileinfo.FileInfo{Filename: "a", MD5: syncMD5, Stat: stat(100, 5)},
			want: true,
		},
		{
			name: "export with older source stays",
			a:    &fileinfo.FileInfo{Filename: "a", Stat: stat(100, 5)},
			b:    &fileinfo.FileInfo{Filename: "a", Stat: stat(200, 5)},
			want: false,
		},
		{
			name: "onedrive compares sha1",
			a:    &fileinfo.FileInfo{Filename: "a", MD5: syncMD5, SHA1: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", ServiceType: fileinfo.ServiceOneDrive},
			b:    &fileinfo.FileInfo{Filename: "a", MD5: syncMD5, SHA1: "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"},
			want: true,
		},
		{
			name: "checksums without stat",
			a:    &fileinfo.FileInfo{Filename: "a", MD5: syncMD5},
			b:    &fileinfo.FileInfo{Filename: "a", MD5: "00000000000000000000000000000000"},
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CompareObjects(tt.a, tt.b); got != tt.want {
				t.Errorf("CompareObjects() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompareListsLocalOnlyGoesToS3(t *testing.T) {
	a := localList(localFile("src/file_sync.rs", syncMD5, 1700000000, 1024))
	b := s3List()

	pairs, err := CompareLists(a, b)
	tu.AssertNoError(t, err)
	if len(pairs) != 1 {
		t.Fatalf("got %d pairs", len(pairs))
	}
	dst := pairs[0].Dst
	tu.AssertEqual(t, dst.URL, "s3://test_bucket/src/file_sync.rs")
	tu.AssertEqual(t, dst.Filepath, "src/file_sync.rs")
	tu.AssertEqual(t, dst.Filename, "file_sync.rs")
	tu.AssertEqual(t, dst.ServiceType, fileinfo.ServiceS3)
	tu.AssertEqual(t, dst.ServiceSession, "test_bucket")
	tu.AssertEqual(t, pairs[0].Src.MD5, syncMD5)
}

func TestCompareListsIsSymmetric(t *testing.T) {
	remote := tu.RemoteFile(fileinfo.ServiceS3, "test_bucket", "docs/readme.md", syncMD5, 1700000000, 10)
	a := localList()
	b := s3List(remote)

	pairs, err := CompareLists(a, b)
	tu.AssertNoError(t, err)
	if len(pairs) != 1 {
		t.Fatalf("got %d pairs", len(pairs))
	}
	tu.AssertEqual(t, pairs[0].Src.URL, remote.URL)
	tu.AssertEqual(t, pairs[0].Dst.URL, "file://"+localBase+"/docs/readme.md")
	tu.AssertEqual(t, pairs[0].Dst.Filepath, localBase+"/docs/readme.md")
	tu.AssertEqual(t, pairs[0].Dst.ServiceType, fileinfo.ServiceLocal)
}

func TestCompareListsCommonKeys(t *testing.T) {
	same := localFile("same.txt", syncMD5, 100, 3)
	changed := localFile("changed.txt", syncMD5, 200, 3)
	a := localList(same, changed)
	b := s3List(
		tu.RemoteFile(fileinfo.ServiceS3, "test_bucket", "same.txt", syncMD5, 50, 3),
		tu.RemoteFile(fileinfo.ServiceS3, "test_bucket", "changed.txt", "00000000000000000000000000000000", 100, 3),
	)

	pairs, err := CompareLists(a, b)
	tu.AssertNoError(t, err)
	if len(pairs) != 1 || pairs[0].Src != changed {
		t.Fatalf("pairs = %+v", pairs)
	}
	tu.AssertEqual(t, pairs[0].Dst.URL, "s3://test_bucket/changed.txt")
}

func TestCompareListsSkipsOutsideBase(t *testing.T) {
	a := backend.NewFileList("file:///data", "/data", fileinfo.ServiceLocal, "local")
	a.WithList([]*fileinfo.FileInfo{{
		Filename: "x", Filepath: "/data/x", URL: "gdrive://user@gmail.com/x",
		ServiceType: fileinfo.ServiceLocal,
	}})
	b := s3List()

	pairs, err := CompareLists(a, b)
	tu.AssertNoError(t, err)
	if len(pairs) != 0 {
		t.Errorf("pairs = %+v", pairs)
	}
}

type fakeAdapter struct {
	list     *backend.FileList
	cleanups int
}

func (f *fakeAdapter) List() *backend.FileList { return f.list }
func (f *fakeAdapter) FillFileList(context.Context) ([]*fileinfo.FileInfo, error) {
	return f.list.Files(), nil
}
func (f *fakeAdapter) PrintList(context.Context, io.Writer) error { return nil }
func (f *fakeAdapter) CopyFrom(context.Context, *fileinfo.FileInfo, *fileinfo.FileInfo) error {
	return nil
}
func (f *fakeAdapter) CopyTo(context.Context, *fileinfo.FileInfo, *fileinfo.FileInfo) error {
	return nil
}
func (f *fakeAdapter) MoveFile(context.Context, *fileinfo.FileInfo, *fileinfo.FileInfo) error {
	return nil
}
func (f *fakeAdapter) Delete(context.Context, *fileinfo.FileInfo) error { return nil }
func (f *fakeAdapter) Cleanup() error {
	f.cleanups++
	return nil
}

type fakeQueue struct {
	entries [][2]string
	err     error
}

func (q *fakeQueue) EnqueueSync(_ context.Context, src, dst string) error {
	if q.err != nil {
		return q.err
	}
	q.entries = append(q.entries, [2]string{src, dst})
	return nil
}

func TestReconcile(t *testing.T) {
	t.Run("in sync cleans up both sides", func(t *testing.T) {
		a := &fakeAdapter{list: localList(localFile("a.txt", syncMD5, 100, 3))}
		b := &fakeAdapter{list: s3List(tu.RemoteFile(fileinfo.ServiceS3, "test_bucket", "a.txt", syncMD5, 100, 3))}
		q := &fakeQueue{}

		pairs, err := Reconcile(tu.TestContext(), a, b, q, nil)
		tu.AssertNoError(t, err)
		if len(pairs) != 0 || len(q.entries) != 0 {
			t.Errorf("pairs = %v, queue = %v", pairs, q.entries)
		}
		if a.cleanups != 1 || b.cleanups != 1 {
			t.Errorf("cleanups = %d, %d", a.cleanups, b.cleanups)
		}
	})

	t.Run("divergence is queued without cleanup", func(t *testing.T) {
		a := &fakeAdapter{list: localList(localFile("src/file_sync.rs", syncMD5, 100, 3))}
		b := &fakeAdapter{list: s3List()}
		q := &fakeQueue{}

		pairs, err := Reconcile(tu.TestContext(), a, b, q, nil)
		tu.AssertNoError(t, err)
		if len(pairs) != 1 {
			t.Fatalf("pairs = %v", pairs)
		}
		want := [2]string{"file://" + localBase + "/src/file_sync.rs", "s3://test_bucket/src/file_sync.rs"}
		if len(q.entries) != 1 || q.entries[0] != want {
			t.Errorf("queue = %v", q.entries)
		}
		if a.cleanups != 0 || b.cleanups != 0 {
			t.Error("cleanup ran despite pending transfers")
		}
	})

	t.Run("queue failure surfaces", func(t *testing.T) {
		boom := errors.New("disk full")
		a := &fakeAdapter{list: localList(localFile("x", syncMD5, 100, 3))}
		b := &fakeAdapter{list: s3List()}
		if _, err := Reconcile(tu.TestContext(), a, b, &fakeQueue{err: boom}, nil); !errors.Is(err, boom) {
			t.Errorf("error = %v", err)
		}
	})
}
