package changes

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// stagedSuffix marks a token that has been fetched but whose changes are
// not yet reconciled
const stagedSuffix = ".new"

// Cursor is the on-disk start page token of one Drive session.
//
// A token is first written to a staged sibling file and only becomes the
// canonical token after Promote. A crash between the two leaves the old
// token in place so the next run sees the same changes again.
type Cursor struct {
	path string
}

// NewCursor returns the cursor stored at <dir>/<session>_start_page_token
func NewCursor(dir, session string) *Cursor {
	return &Cursor{path: filepath.Join(dir, session+"_start_page_token")}
}

func (c *Cursor) Path() string { return c.path }

// StagedPath is where Stage writes before Promote renames
func (c *Cursor) StagedPath() string { return c.path + stagedSuffix }

// Read returns the canonical token, or "" when none has been stored
func (c *Cursor) Read() (string, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read start page token: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Stage writes token next to the canonical file
func (c *Cursor) Stage(token string) error {
	if token == "" {
		return errors.New("refusing to stage an empty start page token")
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(c.path), filepath.Base(c.path)+".tmp*")
	if err != nil {
		return err
	}
	if _, err := tmp.WriteString(token + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), c.StagedPath())
}

// Promote replaces the canonical token with the staged one.
// It is a no-op when nothing is staged.
func (c *Cursor) Promote() error {
	err := os.Rename(c.StagedPath(), c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Discard drops a staged token without promoting it
func (c *Cursor) Discard() error {
	err := os.Remove(c.StagedPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
