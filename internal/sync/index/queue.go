package index

import (
	"context"
	"time"

	"github.com/dl-alexandre/syncapp/internal/logging"
)

// EnqueueSync records a pending copy. Re-detecting the same pair is a no-op.
func (d *DB) EnqueueSync(ctx context.Context, srcURL, dstURL string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO file_sync_cache (src_url, dst_url, created_at) VALUES (?, ?, ?)
		ON CONFLICT(src_url, dst_url) DO NOTHING
	`, srcURL, dstURL, d.now().Unix())
	if err == nil {
		d.logger.Debug("Sync queued", logging.F("src", srcURL), logging.F("dst", dstURL))
	}
	return err
}

// ListSyncQueue returns every pending copy in insertion order
func (d *DB) ListSyncQueue(ctx context.Context) (entries []SyncQueueEntry, err error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, src_url, dst_url, created_at FROM file_sync_cache ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for rows.Next() {
		var e SyncQueueEntry
		var created int64
		if err := rows.Scan(&e.ID, &e.SrcURL, &e.DstURL, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = time.Unix(created, 0).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteSyncEntry removes one pending copy
func (d *DB) DeleteSyncEntry(ctx context.Context, id int64) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM file_sync_cache WHERE id = ?`, id)
	return err
}

// ClearSyncQueue removes every pending copy
func (d *DB) ClearSyncQueue(ctx context.Context) (int64, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM file_sync_cache`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
