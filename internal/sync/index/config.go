package index

import (
	"context"
	"database/sql"
	"time"
)

// AddSyncConfig declares a pair to keep in sync. Adding an existing pair is a no-op.
func (d *DB) AddSyncConfig(ctx context.Context, srcURL, dstURL string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO file_sync_config (src_url, dst_url) VALUES (?, ?)
		ON CONFLICT(src_url, dst_url) DO NOTHING
	`, srcURL, dstURL)
	return err
}

func (d *DB) ListSyncConfigs(ctx context.Context) (configs []SyncConfig, err error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, src_url, dst_url, last_run FROM file_sync_config ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for rows.Next() {
		var cfg SyncConfig
		var lastRun sql.NullInt64
		if err := rows.Scan(&cfg.ID, &cfg.SrcURL, &cfg.DstURL, &lastRun); err != nil {
			return nil, err
		}
		if lastRun.Valid {
			t := time.Unix(lastRun.Int64, 0).UTC()
			cfg.LastRun = &t
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// TouchSyncConfig sets last_run on every pair involving url
func (d *DB) TouchSyncConfig(ctx context.Context, url string) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE file_sync_config SET last_run = ? WHERE src_url = ? OR dst_url = ?
	`, d.now().Unix(), url, url)
	return err
}

func (d *DB) DeleteSyncConfig(ctx context.Context, id int64) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM file_sync_config WHERE id = ?`, id)
	return err
}
