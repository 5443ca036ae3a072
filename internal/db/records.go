package db

import (
	"context"
	"database/sql"
	"errors"
)

// Record is a stored document in a collection
type Record struct {
	Collection string
	ID         string
	Revision   int64
	Payload    []byte
}

// PutRecord creates or replaces a record. The revision is taken from a
// store-wide counter inside the write transaction, so the last write to
// arrive always carries the highest revision.
func (db *DB) PutRecord(ctx context.Context, collection, id string, payload []byte) (*Record, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var revision int64
	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(revision), 0) + 1 FROM records").Scan(&revision); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (collection, id, revision, payload) VALUES (?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			revision = excluded.revision,
			payload = excluded.payload,
			updated_at = CURRENT_TIMESTAMP
	`, collection, id, revision, payload)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &Record{Collection: collection, ID: id, Revision: revision, Payload: payload}, nil
}

// GetRecord retrieves a record by collection and ID
func (db *DB) GetRecord(ctx context.Context, collection, id string) (*Record, error) {
	r := &Record{}
	err := db.QueryRowContext(ctx, `
		SELECT collection, id, revision, payload
		FROM records WHERE collection = ? AND id = ?
	`, collection, id).Scan(&r.Collection, &r.ID, &r.Revision, &r.Payload)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListRecords returns every record in a collection, oldest revision first
func (db *DB) ListRecords(ctx context.Context, collection string) ([]Record, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT collection, id, revision, payload
		FROM records
		WHERE collection = ?
		ORDER BY revision ASC
	`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Collection, &r.ID, &r.Revision, &r.Payload); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// RecordCount returns the number of records in a collection
func (db *DB) RecordCount(ctx context.Context, collection string) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records WHERE collection = ?", collection).Scan(&count)
	return count, err
}

// IsNotFound reports whether err means the record does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
