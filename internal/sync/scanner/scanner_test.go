package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dl-alexandre/syncapp/internal/fileinfo"
	"github.com/dl-alexandre/syncapp/internal/sync/dirmap"
	tu "github.com/dl-alexandre/syncapp/internal/testing"
	"google.golang.org/api/drive/v3"
)

func TestHashFile(t *testing.T) {
	p := tu.WriteFile(t, t.TempDir(), "hello.txt", "hello")
	md5sum, sha1sum, err := HashFile(p)
	tu.AssertNoError(t, err)
	tu.AssertEqual(t, md5sum, "5d41402abc4b2a76b9719d911017c592")
	tu.AssertEqual(t, sha1sum, "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d")
}

func TestScanLocal(t *testing.T) {
	root := t.TempDir()
	a := tu.WriteFile(t, root, "a.txt", "hello")
	tu.WriteFile(t, root, "sub/b.txt", "world")
	if err := os.Symlink(a, filepath.Join(root, "link.txt")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	files, stats, err := ScanLocal(context.Background(), root, nil, LocalOptions{Session: root, Workers: 2})
	tu.AssertNoError(t, err)
	tu.AssertEqual(t, len(files), 2, "regular files only")
	tu.AssertEqual(t, stats.Hashed, 2)

	first := files[0]
	tu.AssertEqual(t, first.Filename, "a.txt")
	tu.AssertEqual(t, first.URL, LocalURL(a))
	tu.AssertEqual(t, first.MD5, "5d41402abc4b2a76b9719d911017c592")
	tu.AssertEqual(t, first.ServiceType, fileinfo.ServiceLocal)
	tu.AssertEqual(t, first.ServiceSession, root)
	tu.AssertEqual(t, first.Stat.Size, int64(5))
}

func TestScanLocalReusesUnchangedHashes(t *testing.T) {
	root := t.TempDir()
	a := tu.WriteFile(t, root, "a.txt", "hello")
	b := tu.WriteFile(t, root, "b.txt", "world")
	ai, _ := os.Stat(a)
	bi, _ := os.Stat(b)

	prev := map[string]*fileinfo.FileInfo{
		LocalURL(a): {
			Filename: "a.txt", Filepath: a, URL: LocalURL(a),
			MD5:         "00000000000000000000000000000000",
			Stat:        &fileinfo.FileStat{MTime: ai.ModTime().Unix(), Size: ai.Size()},
			ServiceType: fileinfo.ServiceLocal,
		},
		LocalURL(b): {
			Filename: "b.txt", Filepath: b, URL: LocalURL(b),
			MD5:         "00000000000000000000000000000000",
			Stat:        &fileinfo.FileStat{MTime: bi.ModTime().Unix() - 10, Size: bi.Size()},
			ServiceType: fileinfo.ServiceLocal,
		},
	}

	files, stats, err := ScanLocal(context.Background(), root, prev, LocalOptions{Session: root})
	tu.AssertNoError(t, err)
	tu.AssertEqual(t, stats.Reused, 1)
	tu.AssertEqual(t, stats.Hashed, 1)
	tu.AssertEqual(t, files[0].MD5, "00000000000000000000000000000000", "unchanged file keeps cached hash")
	if files[1].MD5 == "00000000000000000000000000000000" {
		t.Error("file with a different mtime should be rehashed")
	}
}

func TestScanLocalCancelled(t *testing.T) {
	root := t.TempDir()
	tu.WriteFile(t, root, "a.txt", "x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := ScanLocal(ctx, root, nil, LocalOptions{}); err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestDescribeDrive(t *testing.T) {
	dirs := dirmap.New([]dirmap.DirectoryInfo{
		{ID: "root", Name: "My Drive"},
		{ID: "docs", Name: "docs", ParentID: "root"},
	}, "root")

	f := &drive.File{
		Id:           "abc",
		Name:         "notes",
		MimeType:     "application/vnd.google-apps.document",
		Parents:      []string{"docs"},
		ModifiedTime: "2024-01-02T03:04:05.000Z",
	}
	info, err := DescribeDrive(context.Background(), f, dirs, "user@gmail.com", nil)
	tu.AssertNoError(t, err)
	tu.AssertEqual(t, info.Filename, "notes.odt")
	tu.AssertEqual(t, info.Filepath, "My Drive/docs/notes.odt")
	tu.AssertEqual(t, info.URL, "gdrive://user@gmail.com/My%20Drive/docs/notes.odt")
	tu.AssertEqual(t, info.ServiceID, "abc")
	tu.AssertEqual(t, info.MD5, "", "exported documents carry no checksum")
	want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).Unix()
	tu.AssertEqual(t, info.Stat.MTime, want)
}

func TestMergeByServiceID(t *testing.T) {
	prev := make([]*fileinfo.FileInfo, 0, 100)
	for i := 0; i < 100; i++ {
		prev = append(prev, &fileinfo.FileInfo{
			Filename:  fmt.Sprintf("f%03d", i),
			ServiceID: fmt.Sprintf("id%03d", i),
			MD5:       "00000000000000000000000000000000",
		})
	}
	updated := []*fileinfo.FileInfo{
		{Filename: "f010", ServiceID: "id010", MD5: "11111111111111111111111111111111"},
		{Filename: "f020", ServiceID: "id020", MD5: "22222222222222222222222222222222"},
	}

	merged := MergeByServiceID(prev, []string{"id050"}, updated)
	tu.AssertEqual(t, len(merged), 100, "100 - 1 removed + 2 updated in place")

	byID := map[string]*fileinfo.FileInfo{}
	for _, f := range merged {
		byID[f.ServiceID] = f
	}
	if _, ok := byID["id050"]; ok {
		t.Error("removed id still present")
	}
	tu.AssertEqual(t, byID["id010"].MD5, "11111111111111111111111111111111")
	tu.AssertEqual(t, byID["id020"].MD5, "22222222222222222222222222222222")

	added := MergeByServiceID(prev, nil, []*fileinfo.FileInfo{{ServiceID: "new"}})
	tu.AssertEqual(t, len(added), 101)
}
