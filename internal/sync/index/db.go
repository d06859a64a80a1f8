package index

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/dl-alexandre/syncapp/internal/logging"
	_ "modernc.org/sqlite"
)

// DB is the row store behind the metadata cache, directory cache, sync
// queue, configured pairs and blacklist
type DB struct {
	db     *sql.DB
	logger logging.Logger
	now    func() time.Time
}

func Open(path string, logger logging.Logger) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	instance := &DB{db: db, logger: logging.OrNoOp(logger), now: time.Now}
	if err := instance.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return instance, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *DB) Migrate(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, schemaSQL)
	return err
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS file_info_cache (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	filename TEXT NOT NULL,
	filepath TEXT NOT NULL,
	urlname TEXT NOT NULL,
	md5sum TEXT,
	sha1sum TEXT,
	filestat_st_mtime INTEGER,
	filestat_st_size INTEGER,
	serviceid TEXT NOT NULL,
	servicetype TEXT NOT NULL,
	servicesession TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	deleted_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_file_info_session ON file_info_cache(servicetype, servicesession, deleted_at);
CREATE INDEX IF NOT EXISTS idx_file_info_url ON file_info_cache(urlname);
CREATE INDEX IF NOT EXISTS idx_file_info_serviceid ON file_info_cache(serviceid);

CREATE TABLE IF NOT EXISTS directory_info_cache (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	directory_id TEXT NOT NULL,
	directory_name TEXT NOT NULL,
	parent_id TEXT,
	is_root INTEGER NOT NULL DEFAULT 0,
	servicetype TEXT NOT NULL,
	servicesession TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_directory_session ON directory_info_cache(servicetype, servicesession);

CREATE TABLE IF NOT EXISTS file_sync_cache (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	src_url TEXT NOT NULL,
	dst_url TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	UNIQUE (src_url, dst_url)
);

CREATE TABLE IF NOT EXISTS file_sync_config (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	src_url TEXT NOT NULL,
	dst_url TEXT NOT NULL,
	last_run INTEGER,
	UNIQUE (src_url, dst_url)
);

CREATE TABLE IF NOT EXISTS file_sync_blacklist (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	blacklist_url TEXT NOT NULL UNIQUE
);
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
