package files

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dl-alexandre/syncapp/internal/api"
	tu "github.com/dl-alexandre/syncapp/internal/testing"
	"github.com/dl-alexandre/syncapp/internal/testing/mocks"
	"github.com/dl-alexandre/syncapp/internal/utils"
	"google.golang.org/api/drive/v3"
)

func newManager(t *testing.T, srv *mocks.DriveServer, maxKeys int) *Manager {
	t.Helper()
	return NewManager(srv.Service(t), api.NewClient("drive", api.NoRetry(), nil), 100, maxKeys)
}

func TestListOptionsQuery(t *testing.T) {
	tests := []struct {
		name string
		opts ListOptions
		want string
	}{
		{"files", ListOptions{}, "mimeType != 'application/vnd.google-apps.folder' and trashed = false"},
		{"folders", ListOptions{Folders: true}, "mimeType = 'application/vnd.google-apps.folder' and trashed = false"},
		{
			"parents",
			ListOptions{Parents: []string{"a", "b'c"}},
			`mimeType != 'application/vnd.google-apps.folder' and ('a' in parents or 'b\'c' in parents) and trashed = false`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opts.query(); got != tt.want {
				t.Errorf("query() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestListPagingAndMaxKeys(t *testing.T) {
	srv := mocks.NewDriveServer(t)
	srv.AddFolder("root", "My Drive", "")
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		srv.AddFile(id, id+".txt", "root", "text/plain", "", []byte(id))
	}

	all, err := newManager(t, srv, 0).ListAll(tu.TestContext(), tu.TestRequestContext(), ListOptions{})
	tu.AssertNoError(t, err)
	tu.AssertEqual(t, len(all), 5, "all pages")

	capped, err := newManager(t, srv, 3).ListAll(tu.TestContext(), tu.TestRequestContext(), ListOptions{})
	tu.AssertNoError(t, err)
	tu.AssertEqual(t, len(capped), 3, "max keys")

	folders, err := newManager(t, srv, 0).ListAll(tu.TestContext(), tu.TestRequestContext(), ListOptions{Folders: true})
	tu.AssertNoError(t, err)
	tu.AssertEqual(t, len(folders), 1, "folders")
}

func TestDownloadAndExport(t *testing.T) {
	srv := mocks.NewDriveServer(t)
	blob := srv.AddFile("blob", "a.bin", "root", "application/octet-stream", "", []byte("payload"))
	doc := srv.AddFile("doc", "notes", "root", utils.MimeTypeDocument, "", []byte("odt bytes"))
	form := srv.AddFile("form", "survey", "root", utils.MimeTypeForm, "", nil)
	m := newManager(t, srv, 0)
	dir := t.TempDir()

	target := filepath.Join(dir, "sub", "a.bin")
	tu.AssertNoError(t, m.Download(tu.TestContext(), tu.TestRequestContext(), blob, target))
	got, err := os.ReadFile(target)
	tu.AssertNoError(t, err)
	tu.AssertEqual(t, string(got), "payload")

	tu.AssertNoError(t, m.Download(tu.TestContext(), tu.TestRequestContext(), doc, filepath.Join(dir, "notes.odt")))
	if len(srv.Exported) != 1 || srv.Exported[0] != "doc" {
		t.Errorf("Exported = %v, want [doc]", srv.Exported)
	}

	err = m.Download(tu.TestContext(), tu.TestRequestContext(), form, filepath.Join(dir, "survey"))
	if !errors.Is(err, ErrUnexportable) {
		t.Errorf("Download(form) = %v, want ErrUnexportable", err)
	}
	if code := utils.AsCLIError(err).Code; code != utils.ErrCodeUnexportable {
		t.Errorf("error code = %s", code)
	}
}

func TestUploadMoveDelete(t *testing.T) {
	srv := mocks.NewDriveServer(t)
	srv.AddFolder("root", "My Drive", "")
	srv.AddFolder("other", "other", "root")
	m := newManager(t, srv, 0)
	ctx := tu.TestContext()

	local := tu.WriteFile(t, t.TempDir(), "up.txt", "hello")
	created, err := m.Upload(ctx, tu.TestRequestContext(), local, "root")
	tu.AssertNoError(t, err)
	tu.AssertEqual(t, created.Name, "up.txt")
	tu.AssertEqual(t, string(srv.Content(created.Id)), "hello")

	tu.AssertNoError(t, m.Move(ctx, tu.TestRequestContext(), created.Id, "other", "renamed.txt"))
	moved, _ := srv.File(created.Id)
	tu.AssertEqual(t, moved.Name, "renamed.txt")
	if len(moved.Parents) != 1 || moved.Parents[0] != "other" {
		t.Errorf("Parents = %v, want [other]", moved.Parents)
	}

	tu.AssertNoError(t, m.Delete(ctx, tu.TestRequestContext(), created.Id))
	if _, ok := srv.File(created.Id); ok {
		t.Error("file still present after delete")
	}

	err = m.Delete(ctx, tu.TestRequestContext(), "missing")
	if code := utils.AsCLIError(err).Code; code != utils.ErrCodeFileNotFound {
		t.Errorf("Delete(missing) code = %s, want FILE_NOT_FOUND", code)
	}
}

func TestExportName(t *testing.T) {
	tests := []struct {
		name string
		file *drive.File
		want string
	}{
		{"plain", &drive.File{Name: "a.txt", MimeType: "text/plain"}, "a.txt"},
		{"document", &drive.File{Name: "notes", MimeType: utils.MimeTypeDocument}, "notes.odt"},
		{"spreadsheet", &drive.File{Name: "budget", MimeType: utils.MimeTypeSpreadsheet}, "budget.xlsx"},
		{"already suffixed", &drive.File{Name: "deck.pdf", MimeType: utils.MimeTypePresentation}, "deck.pdf"},
		{"site", &drive.File{Name: "site", MimeType: utils.MimeTypeSite}, "site"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExportName(tt.file); got != tt.want {
				t.Errorf("ExportName = %q, want %q", got, tt.want)
			}
		})
	}
}
