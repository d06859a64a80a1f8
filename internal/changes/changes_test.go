package changes

import (
	"os"
	"testing"

	"github.com/dl-alexandre/syncapp/internal/api"
	tu "github.com/dl-alexandre/syncapp/internal/testing"
	"github.com/dl-alexandre/syncapp/internal/testing/mocks"
)

func TestCursorStageAndPromote(t *testing.T) {
	dir := t.TempDir()
	c := NewCursor(dir, "user@gmail.com")

	tok, err := c.Read()
	tu.AssertNoError(t, err)
	tu.AssertEqual(t, tok, "", "fresh cursor")

	tu.AssertNoError(t, c.Stage("42"))
	tok, err = c.Read()
	tu.AssertNoError(t, err)
	tu.AssertEqual(t, tok, "", "staged token must not be visible before promote")

	tu.AssertNoError(t, c.Promote())
	tok, err = c.Read()
	tu.AssertNoError(t, err)
	tu.AssertEqual(t, tok, "42")

	if _, err := os.Stat(c.StagedPath()); !os.IsNotExist(err) {
		t.Errorf("staged file should be gone after promote, stat err = %v", err)
	}
	tu.AssertNoError(t, c.Promote(), "promote with nothing staged")
}

func TestCursorDiscard(t *testing.T) {
	c := NewCursor(t.TempDir(), "s")
	tu.AssertNoError(t, c.Stage("1"))
	tu.AssertNoError(t, c.Promote())
	tu.AssertNoError(t, c.Stage("2"))
	tu.AssertNoError(t, c.Discard())
	tok, err := c.Read()
	tu.AssertNoError(t, err)
	tu.AssertEqual(t, tok, "1")
	tu.AssertError(t, c.Stage(""))
}

func TestFeedSince(t *testing.T) {
	srv := mocks.NewDriveServer(t)
	srv.SetStartPageToken("77")
	updated := srv.AddFile("f1", "a.txt", "root", "text/plain", "", []byte("x"))
	srv.AddChange("f1", updated)
	srv.AddChange("gone", nil)
	srv.AddChange("dir", srv.AddFolder("dir", "dir", "root"))

	feed := NewFeed(srv.Service(t), api.NewClient("drive", api.NoRetry(), nil), 10)
	ctx := tu.TestContext()
	reqCtx := tu.TestRequestContext()

	tok, err := feed.StartPageToken(ctx, reqCtx)
	tu.AssertNoError(t, err)
	tu.AssertEqual(t, tok, "77")

	delta, err := feed.Since(ctx, reqCtx, "70")
	tu.AssertNoError(t, err)
	if len(delta.Removed) != 1 || delta.Removed[0] != "gone" {
		t.Errorf("Removed = %v, want [gone]", delta.Removed)
	}
	if len(delta.Updated) != 1 || delta.Updated[0].Id != "f1" {
		t.Errorf("Updated = %v, want [f1]", delta.Updated)
	}
}
