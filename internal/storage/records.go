package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// RecordsTable is the only table structured queries may read.
const RecordsTable = "universities"

// ErrInvalidRecord is returned for records missing a university or program.
var ErrInvalidRecord = errors.New("invalid record")

func (r Record) validate() error {
	if strings.TrimSpace(r.University) == "" {
		return fmt.Errorf("%w: university is required", ErrInvalidRecord)
	}
	if strings.TrimSpace(r.Program) == "" {
		return fmt.Errorf("%w: program is required", ErrInvalidRecord)
	}
	if r.Tuition < 0 {
		return fmt.Errorf("%w: tuition must not be negative", ErrInvalidRecord)
	}
	return nil
}

// InsertRecord appends one row to the universities table.
func (s *Store) InsertRecord(ctx context.Context, r Record) error {
	_, err := s.InsertRecords(ctx, []Record{r})
	return err
}

// InsertRecords appends rows in a single transaction and returns how many
// were written. Nothing is written if any record is invalid.
func (s *Store) InsertRecords(ctx context.Context, records []Record) (int, error) {
	for i, r := range records {
		if err := r.validate(); err != nil {
			return 0, fmt.Errorf("record %d: %w", i+1, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning insert transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO universities (university, program, tuition, location, visa_service)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			strings.TrimSpace(r.University), strings.TrimSpace(r.Program), r.Tuition,
			strings.TrimSpace(r.Location), strings.TrimSpace(r.VisaService),
		); err != nil {
			return 0, fmt.Errorf("inserting record for %s: %w", r.University, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing records: %w", err)
	}
	return len(records), nil
}

// CountRecords returns the number of rows in the universities table.
func (s *Store) CountRecords(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM universities`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return n, nil
}

// QueryReadOnly runs stmt on a connection switched to query_only mode, so
// any statement that would write fails inside SQLite. Callers still have to
// validate stmt; this is the second line of defence.
func (s *Store) QueryReadOnly(ctx context.Context, stmt string) (Table, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return Table{}, fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		return Table{}, fmt.Errorf("enabling query_only: %w", err)
	}
	// The connection goes back to the pool; writers share it.
	defer func() {
		if err := restoreWritable(context.Background(), conn); err != nil {
			slog.Error("connection left read-only, discarded", "error", err)
		}
	}()

	rows, err := conn.QueryContext(ctx, stmt)
	if err != nil {
		return Table{}, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Table{}, fmt.Errorf("reading columns: %w", err)
	}

	t := Table{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Table{}, fmt.Errorf("scanning row: %w", err)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		t.Rows = append(t.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return Table{}, fmt.Errorf("iterating rows: %w", err)
	}
	return t, nil
}

// restoreWritable turns query_only off again. When that fails the connection
// is marked bad so the pool closes it instead of handing a read-only
// connection to the next writer.
func restoreWritable(ctx context.Context, conn *sql.Conn) error {
	_, err := conn.ExecContext(ctx, "PRAGMA query_only = OFF")
	if err == nil {
		return nil
	}
	conn.Raw(func(any) error { return driver.ErrBadConn })
	return fmt.Errorf("disabling query_only: %w", err)
}
