package accessory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Repository persists accessory records.
type Repository interface {
	// List returns every record in insertion order.
	List(ctx context.Context) ([]Record, error)

	// Create inserts a record. Returns ErrConflict if the ID exists.
	Create(ctx context.Context, rec *Record) error

	// Update replaces a record. Returns ErrNotFound if the ID is unknown.
	Update(ctx context.Context, rec *Record) error

	// Delete removes a record. Returns ErrNotFound if the ID is unknown.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository on the accessories table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// List returns every record ordered by insertion position.
func (r *SQLiteRepository) List(ctx context.Context) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, name, context, created_at, updated_at
		FROM accessories
		ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("querying accessories: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating accessories: %w", err)
	}
	return records, nil
}

// Create inserts rec at the end of the ordering.
func (r *SQLiteRepository) Create(ctx context.Context, rec *Record) error {
	ctxJSON, err := json.Marshal(rec.Context)
	if err != nil {
		return fmt.Errorf("marshalling context: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO accessories (id, kind, name, address, context, position, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM accessories), ?, ?)`,
		rec.ID,
		string(rec.Kind),
		rec.Name,
		rec.Address(),
		string(ctxJSON),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrConflict
		}
		return fmt.Errorf("inserting accessory: %w", err)
	}
	return nil
}

// Update replaces the mutable columns of rec.
func (r *SQLiteRepository) Update(ctx context.Context, rec *Record) error {
	ctxJSON, err := json.Marshal(rec.Context)
	if err != nil {
		return fmt.Errorf("marshalling context: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE accessories SET kind = ?, name = ?, address = ?, context = ?, updated_at = ?
		WHERE id = ?`,
		string(rec.Kind),
		rec.Name,
		rec.Address(),
		string(ctxJSON),
		rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("updating accessory: %w", err)
	}
	return requireOneRow(result)
}

// Delete removes the record with the given ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM accessories WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting accessory: %w", err)
	}
	return requireOneRow(result)
}

func requireOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRecord(rows *sql.Rows) (*Record, error) {
	var (
		rec                  Record
		kind, ctxJSON        string
		createdAt, updatedAt string
	)
	if err := rows.Scan(&rec.ID, &kind, &rec.Name, &ctxJSON, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("scanning accessory: %w", err)
	}
	rec.Kind = Kind(kind)

	if err := json.Unmarshal([]byte(ctxJSON), &rec.Context); err != nil {
		return nil, fmt.Errorf("unmarshalling context of %s: %w", rec.ID, err)
	}

	var err error
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at of %s: %w", rec.ID, err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at of %s: %w", rec.ID, err)
	}
	return &rec, nil
}

// isUniqueConstraintError reports a PRIMARY KEY or UNIQUE violation.
func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		se.ExtendedCode == sqlite3.ErrConstraintUnique
}
