package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dl-alexandre/syncapp/internal/fileinfo"
	"github.com/dl-alexandre/syncapp/internal/logging"
	"github.com/dl-alexandre/syncapp/internal/utils"
)

// DeletedRetention is how long a soft-deleted row is kept before
// CacheFileList purges it
const DeletedRetention = 30 * 24 * time.Hour

const fileInfoColumns = `filename, filepath, urlname, md5sum, sha1sum, filestat_st_mtime, filestat_st_size,
	serviceid, servicetype, servicesession`

// CachedFileInfo is a file_info_cache row
type CachedFileInfo struct {
	ID int64
	*fileinfo.FileInfo
}

// LoadFileList returns the live cache rows of one service session
func (d *DB) LoadFileList(ctx context.Context, st fileinfo.ServiceType, session string) (rows []CachedFileInfo, err error) {
	q, err := d.db.QueryContext(ctx, `
		SELECT id, `+fileInfoColumns+`
		FROM file_info_cache
		WHERE servicetype = ? AND servicesession = ? AND deleted_at IS NULL
	`, string(st), session)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := q.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for q.Next() {
		row, err := scanFileInfo(q)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	if err := q.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

// LoadFiles is LoadFileList without row ids
func (d *DB) LoadFiles(ctx context.Context, st fileinfo.ServiceType, session string) ([]*fileinfo.FileInfo, error) {
	rows, err := d.LoadFileList(ctx, st, session)
	if err != nil {
		return nil, err
	}
	files := make([]*fileinfo.FileInfo, 0, len(rows))
	for _, r := range rows {
		files = append(files, r.FileInfo)
	}
	return files, nil
}

// GetByURL returns the live cache row for url, if any
func (d *DB) GetByURL(ctx context.Context, url string) (*fileinfo.FileInfo, bool, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, `+fileInfoColumns+`
		FROM file_info_cache
		WHERE urlname = ? AND deleted_at IS NULL
		ORDER BY id DESC LIMIT 1
	`, url)
	cached, err := scanFileInfo(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return cached.FileInfo, true, nil
}

// CacheFileList merges the current observation of one session into the cache.
// Rows missing from files are soft-deleted and rows soft-deleted longer than
// DeletedRetention ago are purged. Changed rows are updated and new rows are
// inserted in batches. It returns the number inserted.
func (d *DB) CacheFileList(ctx context.Context, st fileinfo.ServiceType, session string, files []*fileinfo.FileInfo) (int, error) {
	current, err := d.LoadFileList(ctx, st, session)
	if err != nil {
		return 0, err
	}
	cached := make(map[fileinfo.Key]CachedFileInfo, len(current))
	for _, c := range current {
		cached[c.Key()] = c
	}

	observed := make(map[fileinfo.Key]*fileinfo.FileInfo, len(files))
	for _, f := range files {
		if f.ServiceType != st || f.ServiceSession != session {
			continue
		}
		observed[f.Key()] = f
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	now := d.now().Unix()
	res, err := tx.ExecContext(ctx, `
		DELETE FROM file_info_cache
		WHERE servicetype = ? AND servicesession = ? AND deleted_at IS NOT NULL AND deleted_at < ?
	`, string(st), session, d.now().Add(-DeletedRetention).Unix())
	if err != nil {
		return 0, fmt.Errorf("purge deleted rows: %w", err)
	}
	purged, _ := res.RowsAffected()

	removed := 0
	for key, c := range cached {
		if _, ok := observed[key]; ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, `UPDATE file_info_cache SET deleted_at = ? WHERE id = ?`, now, c.ID); err != nil {
			return 0, fmt.Errorf("remove %s: %w", c.URL, err)
		}
		removed++
	}

	updated := 0
	var inserts []*fileinfo.FileInfo
	for key, f := range observed {
		c, ok := cached[key]
		if !ok {
			inserts = append(inserts, f)
			continue
		}
		if !changed(c.FileInfo, f) {
			continue
		}
		mtime, size := statColumns(f)
		if _, err := tx.ExecContext(ctx, `
			UPDATE file_info_cache
			SET md5sum = ?, sha1sum = ?, filestat_st_mtime = ?, filestat_st_size = ?
			WHERE id = ?
		`, nullString(f.MD5), nullString(f.SHA1), mtime, size, c.ID); err != nil {
			return 0, fmt.Errorf("update %s: %w", f.URL, err)
		}
		updated++
	}

	inserted := 0
	for start := 0; start < len(inserts); start += utils.DefaultBatchSize {
		end := start + utils.DefaultBatchSize
		if end > len(inserts) {
			end = len(inserts)
		}
		n, err := insertBatch(ctx, tx, inserts[start:end], now)
		if err != nil {
			return 0, err
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	d.logger.Debug("File list cached",
		logging.F("servicetype", st),
		logging.F("session", session),
		logging.F("removed", removed),
		logging.F("purged", purged),
		logging.F("updated", updated),
		logging.F("inserted", inserted),
	)
	return inserted, nil
}

func changed(a, b *fileinfo.FileInfo) bool {
	if a.MD5 != b.MD5 || a.SHA1 != b.SHA1 {
		return true
	}
	if (a.Stat == nil) != (b.Stat == nil) {
		return true
	}
	return a.Stat != nil && *a.Stat != *b.Stat
}

func insertBatch(ctx context.Context, tx *sql.Tx, files []*fileinfo.FileInfo, now int64) (int, error) {
	if len(files) == 0 {
		return 0, nil
	}
	placeholders := make([]string, 0, len(files))
	args := make([]interface{}, 0, len(files)*11)
	for _, f := range files {
		placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		mtime, size := statColumns(f)
		args = append(args, f.Filename, f.Filepath, f.URL, nullString(f.MD5), nullString(f.SHA1), mtime, size,
			f.ServiceID, string(f.ServiceType), f.ServiceSession, now)
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO file_info_cache (`+fileInfoColumns+`, created_at)
		VALUES `+strings.Join(placeholders, ", "), args...)
	if err != nil {
		return 0, fmt.Errorf("insert batch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return len(files), nil
	}
	return int(n), nil
}

func statColumns(f *fileinfo.FileInfo) (sql.NullInt64, sql.NullInt64) {
	if f.Stat == nil {
		return sql.NullInt64{}, sql.NullInt64{}
	}
	return sql.NullInt64{Int64: f.Stat.MTime, Valid: true}, sql.NullInt64{Int64: f.Stat.Size, Valid: true}
}

// ClearFileList drops every cache row of one session
func (d *DB) ClearFileList(ctx context.Context, st fileinfo.ServiceType, session string) (int64, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM file_info_cache WHERE servicetype = ? AND servicesession = ?`, string(st), session)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RemoveByServiceID soft-deletes the rows carrying a provider id
func (d *DB) RemoveByServiceID(ctx context.Context, st fileinfo.ServiceType, session, serviceID string) (int64, error) {
	res, err := d.db.ExecContext(ctx, `
		UPDATE file_info_cache SET deleted_at = ?
		WHERE servicetype = ? AND servicesession = ? AND serviceid = ? AND deleted_at IS NULL
	`, d.now().Unix(), string(st), session, serviceID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanFileInfo(s rowScanner) (CachedFileInfo, error) {
	var (
		row        CachedFileInfo
		f          fileinfo.FileInfo
		md5, sha1  sql.NullString
		mtime, sz  sql.NullInt64
		serviceTyp string
	)
	if err := s.Scan(&row.ID, &f.Filename, &f.Filepath, &f.URL, &md5, &sha1, &mtime, &sz,
		&f.ServiceID, &serviceTyp, &f.ServiceSession); err != nil {
		return CachedFileInfo{}, err
	}
	f.MD5 = md5.String
	f.SHA1 = sha1.String
	if mtime.Valid && sz.Valid {
		f.Stat = &fileinfo.FileStat{MTime: mtime.Int64, Size: sz.Int64}
	}
	f.ServiceType = fileinfo.ServiceType(serviceTyp)
	f.Normalize()
	row.FileInfo = &f
	return row, nil
}
