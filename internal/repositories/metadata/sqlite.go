package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/dmitrijs2005/gophvault/internal/dbx"
)

const (
	queryGet  = `SELECT value FROM vault_meta WHERE name = ?`
	queryList = `SELECT name, value FROM vault_meta`
	queryDel  = `DELETE FROM vault_meta WHERE name = ?`
	queryPut  = `INSERT INTO vault_meta (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value`
)

// SQLiteRepository implements Repository on the vault_meta table.
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository binds the repository to db, which may be a *sql.Tx.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, name string) ([]byte, error) {
	var value []byte
	switch err := r.db.QueryRowContext(ctx, queryGet, name).Scan(&value); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("vault_meta get %q: %w", name, err)
	}
	return value, nil
}

// Put writes values in name order. It is not atomic on its own; wrap it in
// dbx.WithTx when the pairs must land together.
func (r *SQLiteRepository) Put(ctx context.Context, values map[string][]byte) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if values[name] == nil {
			return fmt.Errorf("vault_meta put %q: nil value", name)
		}
		if _, err := r.db.ExecContext(ctx, queryPut, name, values[name]); err != nil {
			return fmt.Errorf("vault_meta put %q: %w", name, err)
		}
	}
	return nil
}

// List returns every row keyed by name.
func (r *SQLiteRepository) List(ctx context.Context) (map[string][]byte, error) {
	rows, err := r.db.QueryContext(ctx, queryList)
	if err != nil {
		return nil, fmt.Errorf("vault_meta list: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var name string
		var value []byte
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("vault_meta scan: %w", err)
		}
		out[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vault_meta rows: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, names ...string) error {
	for _, name := range names {
		if _, err := r.db.ExecContext(ctx, queryDel, name); err != nil {
			return fmt.Errorf("vault_meta delete %q: %w", name, err)
		}
	}
	return nil
}
