package index

import (
	"context"
	"database/sql"
)

// ReplaceDirectories swaps the stored folder graph of one session
func (d *DB) ReplaceDirectories(ctx context.Context, serviceType, session string, dirs []DirectoryRow) (err error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM directory_info_cache WHERE servicetype = ? AND servicesession = ?`, serviceType, session); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO directory_info_cache (directory_id, directory_name, parent_id, is_root, servicetype, servicesession)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := stmt.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for _, dir := range dirs {
		if _, err = stmt.ExecContext(ctx, dir.DirectoryID, dir.DirectoryName, nullString(dir.ParentID), boolToInt(dir.IsRoot), serviceType, session); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LoadDirectories returns the stored folder graph of one session
func (d *DB) LoadDirectories(ctx context.Context, serviceType, session string) (dirs []DirectoryRow, err error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT directory_id, directory_name, parent_id, is_root, servicetype, servicesession
		FROM directory_info_cache WHERE servicetype = ? AND servicesession = ?
	`, serviceType, session)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for rows.Next() {
		var dir DirectoryRow
		var parent sql.NullString
		var isRoot int
		if err := rows.Scan(&dir.DirectoryID, &dir.DirectoryName, &parent, &isRoot, &dir.ServiceType, &dir.Session); err != nil {
			return nil, err
		}
		dir.ParentID = parent.String
		dir.IsRoot = isRoot != 0
		dirs = append(dirs, dir)
	}
	return dirs, rows.Err()
}
