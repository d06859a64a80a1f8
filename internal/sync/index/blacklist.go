package index

import "context"

func (d *DB) AddBlacklist(ctx context.Context, url string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO file_sync_blacklist (blacklist_url) VALUES (?)
		ON CONFLICT(blacklist_url) DO NOTHING
	`, url)
	return err
}

func (d *DB) ListBlacklist(ctx context.Context) (entries []BlacklistEntry, err error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, blacklist_url FROM file_sync_blacklist ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for rows.Next() {
		var e BlacklistEntry
		if err := rows.Scan(&e.ID, &e.URL); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (d *DB) DeleteBlacklist(ctx context.Context, id int64) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM file_sync_blacklist WHERE id = ?`, id)
	return err
}
