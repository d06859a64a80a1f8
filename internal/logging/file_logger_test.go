package logging

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func openFileLogger(t *testing.T, level LogLevel) (*FileLogger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logs", "syncapp.log")
	l, err := NewFileLogger(FileLoggerConfig{FilePath: path, Level: level})
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l, path
}

// readEntries closes l and decodes every JSON line written to path
func readEntries(t *testing.T, l *FileLogger, path string) []LogEntry {
	t.Helper()
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var entries []LogEntry
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var e LogEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("decode %q: %v", sc.Text(), err)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestNewFileLoggerCreatesFile(t *testing.T) {
	_, path := openFileLogger(t, INFO)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("log file not created: %v", err)
	}
}

func TestNewFileLoggerBadPath(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileLogger(FileLoggerConfig{FilePath: filepath.Join(blocker, "x.log")}); err == nil {
		t.Fatal("expected an error when the log directory is a file")
	}
}

func TestFileLoggerLevels(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  []string
	}{
		{DEBUG, []string{"DEBUG", "INFO", "WARN", "ERROR"}},
		{INFO, []string{"INFO", "WARN", "ERROR"}},
		{ERROR, []string{"ERROR"}},
	}
	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			l, path := openFileLogger(t, tt.level)
			l.Debug("queued", F("src", "file:///a/x"))
			l.Info("copied", F("bytes", 12))
			l.Warn("retrying")
			l.Error("gave up", F("fatal", true))

			entries := readEntries(t, l, path)
			if len(entries) != len(tt.want) {
				t.Fatalf("got %d entries, want %d", len(entries), len(tt.want))
			}
			for i, e := range entries {
				if e.Level != tt.want[i] {
					t.Errorf("entry %d level = %s, want %s", i, e.Level, tt.want[i])
				}
				if e.Timestamp.IsZero() {
					t.Errorf("entry %d has no timestamp", i)
				}
			}
		})
	}
}

func TestFileLoggerSetLevel(t *testing.T) {
	l, path := openFileLogger(t, ERROR)
	l.Info("dropped")
	l.SetLevel(DEBUG)
	l.Debug("kept")

	entries := readEntries(t, l, path)
	if len(entries) != 1 || entries[0].Message != "kept" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestFileLoggerTraceAndFields(t *testing.T) {
	l, path := openFileLogger(t, DEBUG)

	l.WithTraceID("trace-1").Info("indexed")
	l.WithContext(ContextWithTraceID(context.Background(), "trace-2")).Info("synced")
	l.WithContext(context.Background()).Info("untraced")
	l.With(F("backend", "gdrive")).Info("listing", F("count", 2))

	entries := readEntries(t, l, path)
	if len(entries) != 4 {
		t.Fatalf("got %d entries", len(entries))
	}
	if entries[0].TraceID != "trace-1" || entries[1].TraceID != "trace-2" || entries[2].TraceID != "" {
		t.Errorf("trace IDs = %q %q %q", entries[0].TraceID, entries[1].TraceID, entries[2].TraceID)
	}
	f := entries[3].Fields
	if f["backend"] != "gdrive" || f["count"] != float64(2) {
		t.Errorf("fields = %v", f)
	}
}

func TestFileLoggerRotate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "syncapp.log")
	l, err := NewFileLogger(FileLoggerConfig{FilePath: path, Level: INFO, MaxFileSize: 1, MaxBackups: 2, RotateEnabled: true})
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	defer l.Close()

	l.Info("before rotation")
	if err := l.Rotate(); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	l.Info("after rotation")

	files, err := filepath.Glob(filepath.Join(filepath.Dir(path), "syncapp*.log"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) < 2 {
		t.Errorf("expected a backup next to the live log, found %v", files)
	}
}
