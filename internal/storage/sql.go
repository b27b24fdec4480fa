package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/eugenenazirov/stock-packs/internal/inventory"
)

// Dialect selects the SQL flavour spoken by SQLStorage.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

const defaultPollInterval = 2 * time.Second

const schema = `
CREATE TABLE IF NOT EXISTS inventory_records (
	id           TEXT PRIMARY KEY,
	size         TEXT NOT NULL,
	color        TEXT NOT NULL,
	quantity     INTEGER NOT NULL CHECK (quantity >= 0),
	category     TEXT NOT NULL,
	collar_style TEXT NOT NULL DEFAULT 'Redondo'
)`

const selectColumns = `id, size, color, quantity, category, collar_style`

// SQLStorage stores records in a relational database through database/sql.
// SQLite goes through modernc.org/sqlite, Postgres through pgx.
type SQLStorage struct {
	db           *sql.DB
	dialect      Dialect
	pollInterval time.Duration
}

var (
	_ Storage = (*SQLStorage)(nil)
	_ Watcher = (*SQLStorage)(nil)
)

// OpenSQLite opens (or creates) the SQLite database at path.
func OpenSQLite(ctx context.Context, path string, pollInterval time.Duration) (*SQLStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// A single connection keeps :memory: databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	return newSQLStorage(ctx, db, DialectSQLite, pollInterval)
}

// OpenPostgres connects to Postgres using a pgx connection string.
func OpenPostgres(ctx context.Context, dsn string, pollInterval time.Duration) (*SQLStorage, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("database URL is required for the postgres backend")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	return newSQLStorage(ctx, db, DialectPostgres, pollInterval)
}

func newSQLStorage(ctx context.Context, db *sql.DB, dialect Dialect, pollInterval time.Duration) (*SQLStorage, error) {
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &SQLStorage{db: db, dialect: dialect, pollInterval: pollInterval}, nil
}

// rebind rewrites ? placeholders into $n for Postgres.
func (s *SQLStorage) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (inventory.Record, error) {
	var rec inventory.Record
	err := row.Scan(&rec.ID, &rec.Size, &rec.Color, &rec.Quantity, &rec.Category, &rec.CollarStyle)
	return rec, err
}

func (s *SQLStorage) List(ctx context.Context) ([]inventory.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM inventory_records`)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	records := []inventory.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}

	inventory.Sort(records)
	return records, nil
}

func (s *SQLStorage) Get(ctx context.Context, id string) (inventory.Record, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+selectColumns+` FROM inventory_records WHERE id = ?`), id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return inventory.Record{}, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, nil
}

func (s *SQLStorage) Create(ctx context.Context, rec inventory.Record) (inventory.Record, error) {
	if err := rec.Validate(); err != nil {
		return inventory.Record{}, err
	}
	if strings.TrimSpace(rec.ID) == "" {
		rec.ID = newID()
	}

	query := s.rebind(`INSERT INTO inventory_records (` + selectColumns + `) VALUES (?, ?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, rec.ID, rec.Size, rec.Color, rec.Quantity, rec.Category, rec.CollarStyle); err != nil {
		return inventory.Record{}, fmt.Errorf("failed to insert record: %w", err)
	}
	return rec, nil
}

func (s *SQLStorage) Update(ctx context.Context, rec inventory.Record) (inventory.Record, error) {
	if err := rec.Validate(); err != nil {
		return inventory.Record{}, err
	}

	query := s.rebind(`UPDATE inventory_records
		SET size = ?, color = ?, quantity = ?, category = ?, collar_style = ?
		WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query, rec.Size, rec.Color, rec.Quantity, rec.Category, rec.CollarStyle, rec.ID)
	if err != nil {
		return inventory.Record{}, fmt.Errorf("failed to update record: %w", err)
	}
	if err := expectRow(res, rec.ID); err != nil {
		return inventory.Record{}, err
	}
	return rec, nil
}

func (s *SQLStorage) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM inventory_records WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return expectRow(res, id)
}

func (s *SQLStorage) SetQuantity(ctx context.Context, id string, quantity int) error {
	return setQuantity(ctx, s.db, s.rebind, id, quantity)
}

// SetQuantities applies all updates inside one transaction.
func (s *SQLStorage) SetQuantities(ctx context.Context, updates []inventory.QuantityUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	for _, u := range updates {
		if err := setQuantity(ctx, tx, s.rebind, u.ID, u.Quantity); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit quantities: %w", err)
	}
	return nil
}

// AdjustQuantity applies delta in a single statement, clamping at zero.
func (s *SQLStorage) AdjustQuantity(ctx context.Context, id string, delta int) (inventory.Record, error) {
	query := s.rebind(`UPDATE inventory_records
		SET quantity = CASE WHEN quantity + ? < 0 THEN 0 ELSE quantity + ? END
		WHERE id = ?
		RETURNING ` + selectColumns)
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, delta, delta, id))
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return inventory.Record{}, fmt.Errorf("failed to adjust quantity: %w", err)
	}
	return rec, nil
}

func (s *SQLStorage) Close() error {
	return s.db.Close()
}

// Watch polls the table and publishes every read; the feed cache drops
// snapshots that did not change.
func (s *SQLStorage) Watch(ctx context.Context, publish func([]inventory.Record)) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		records, err := s.List(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		publish(records)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func setQuantity(ctx context.Context, db execer, rebind func(string) string, id string, quantity int) error {
	if quantity < 0 {
		return ErrNegativeQuantity
	}
	res, err := db.ExecContext(ctx, rebind(`UPDATE inventory_records SET quantity = ? WHERE id = ?`), quantity, id)
	if err != nil {
		return fmt.Errorf("failed to set quantity: %w", err)
	}
	return expectRow(res, id)
}

func expectRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
