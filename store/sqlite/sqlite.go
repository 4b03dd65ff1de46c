/*
Package sqlite provides a SQLite-backed implementation of timeoff.Store.

PURPOSE:
  Default durable store for the leave engine. One file holds the intern
  roster, one ledger row per intern and category, and every application.

KEY TABLES:
  interns:            Roster entries keyed by chat handle
  leave_accounts:     (handle, category) -> entitlement, taken, balance
  leave_applications: Applications and their resolution

LEDGER UPDATES:
  Balances never travel through the application as absolute values. The
  ledger issues relative updates:
    UPDATE leave_accounts SET balance = ROUND(balance + ?, 1) ...
    UPDATE leave_accounts SET taken = MAX(0, ROUND(taken + ?, 1)) ...
  so concurrent approvals against the same intern cannot lose a debit.

CONDITIONAL TRANSITIONS:
  SetApplicationStatus is
    UPDATE leave_applications SET status = ? ... WHERE id = ? AND status = ?
  Zero affected rows means someone else resolved the application first;
  the store reports a ConflictError with the status it found.

CONCURRENCY:
  Uses sync.Mutex for thread-safety and a single pooled connection, so
  ":memory:" databases behave like files and WithTx is serialized against
  every other call. Transaction-scoped stores query the *sql.Tx directly
  and never take the mutex again.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). The Postgres store uses versioned goose
  migrations instead.
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/timeoff"
)

// Store implements timeoff.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection; used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS interns (
		handle TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		supervisor_email TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- One row per (intern, category). balance + taken = entitlement holds
	-- up to the clamp on taken.
	CREATE TABLE IF NOT EXISTS leave_accounts (
		handle TEXT NOT NULL REFERENCES interns(handle) ON DELETE CASCADE,
		category TEXT NOT NULL,
		entitlement REAL NOT NULL DEFAULT 0,
		taken REAL NOT NULL DEFAULT 0 CHECK (taken >= 0),
		balance REAL NOT NULL DEFAULT 0,
		PRIMARY KEY (handle, category)
	);

	CREATE TABLE IF NOT EXISTS leave_applications (
		id TEXT PRIMARY KEY,
		handle TEXT NOT NULL REFERENCES interns(handle) ON DELETE CASCADE,
		intern_name TEXT NOT NULL,
		chat_id TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		day_portion TEXT NOT NULL,
		duration REAL NOT NULL,
		status TEXT NOT NULL,
		submitted_at TEXT NOT NULL,
		decided_at TEXT,
		remarks TEXT NOT NULL DEFAULT '',
		balance_at_submission REAL
	);

	-- Upcoming approved leave per intern (cancel flow)
	CREATE INDEX IF NOT EXISTS idx_applications_handle_status_start
		ON leave_applications(handle, status, start_date);

	-- Pending scan on startup
	CREATE INDEX IF NOT EXISTS idx_applications_status_submitted
		ON leave_applications(status, submitted_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// INTERN ROSTER
// =============================================================================

func (s *Store) CreateIntern(ctx context.Context, intern *timeoff.Intern) error {
	return s.WithTx(ctx, func(tx timeoff.Store) error {
		return tx.CreateIntern(ctx, intern)
	})
}

func (s *Store) GetInternByHandle(ctx context.Context, handle string) (*timeoff.Intern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return getIntern(ctx, s.db, handle)
}

func (s *Store) DeleteIntern(ctx context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteIntern(ctx, s.db, handle)
}

func createIntern(ctx context.Context, q querier, intern *timeoff.Intern) error {
	createdAt := intern.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO interns (handle, name, supervisor_email, start_date, end_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, intern.Handle, intern.Name, intern.SupervisorEmail,
		intern.StartDate.String(), intern.EndDate.String(), createdAt.Format(time.RFC3339Nano))
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("intern %s: %w", intern.Handle, generic.ErrDuplicate)
		}
		return generic.Storage("insert intern", err)
	}

	for _, c := range timeoff.Categories {
		a := intern.Account(c)
		_, err := q.ExecContext(ctx, `
			INSERT INTO leave_accounts (handle, category, entitlement, taken, balance)
			VALUES (?, ?, ?, ?, ?)
		`, intern.Handle, string(c), a.Entitlement.InexactFloat64(), a.Taken.InexactFloat64(), a.Balance.InexactFloat64())
		if err != nil {
			return generic.Storage("insert leave account", err)
		}
	}
	return nil
}

func getIntern(ctx context.Context, q querier, handle string) (*timeoff.Intern, error) {
	var (
		intern              timeoff.Intern
		start, end, created string
	)
	err := q.QueryRowContext(ctx, `
		SELECT handle, name, supervisor_email, start_date, end_date, created_at
		FROM interns WHERE handle = ?
	`, handle).Scan(&intern.Handle, &intern.Name, &intern.SupervisorEmail, &start, &end, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("intern %s: %w", handle, generic.ErrNotFound)
	}
	if err != nil {
		return nil, generic.Storage("get intern", err)
	}

	if intern.StartDate, err = generic.ParseDate(start); err != nil {
		return nil, generic.Storage("parse intern start date", err)
	}
	if intern.EndDate, err = generic.ParseDate(end); err != nil {
		return nil, generic.Storage("parse intern end date", err)
	}
	intern.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)

	rows, err := q.QueryContext(ctx, `
		SELECT category, entitlement, taken, balance
		FROM leave_accounts WHERE handle = ?
	`, handle)
	if err != nil {
		return nil, generic.Storage("get leave accounts", err)
	}
	defer rows.Close()

	intern.Accounts = make(map[timeoff.Category]generic.Account, len(timeoff.Categories))
	for rows.Next() {
		var (
			category                string
			entitlement, taken, bal float64
		)
		if err := rows.Scan(&category, &entitlement, &taken, &bal); err != nil {
			return nil, generic.Storage("scan leave account", err)
		}
		intern.Accounts[timeoff.Category(category)] = generic.Account{
			Entitlement: generic.NewDays(entitlement),
			Taken:       generic.NewDays(taken),
			Balance:     generic.NewDays(bal),
		}
	}
	if err := rows.Err(); err != nil {
		return nil, generic.Storage("iterate leave accounts", err)
	}
	return &intern, nil
}

func deleteIntern(ctx context.Context, q querier, handle string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM interns WHERE handle = ?`, handle)
	if err != nil {
		return generic.Storage("delete intern", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("intern %s: %w", handle, generic.ErrNotFound)
	}
	return nil
}

// =============================================================================
// LEDGER
// =============================================================================

func (s *Store) AdjustBalance(ctx context.Context, handle string, c timeoff.Category, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return adjustBalance(ctx, s.db, handle, c, delta)
}

func (s *Store) AdjustTaken(ctx context.Context, handle string, c timeoff.Category, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return adjustTaken(ctx, s.db, handle, c, delta)
}

func adjustBalance(ctx context.Context, q querier, handle string, c timeoff.Category, delta decimal.Decimal) error {
	res, err := q.ExecContext(ctx, `
		UPDATE leave_accounts SET balance = ROUND(balance + ?, 1)
		WHERE handle = ? AND category = ?
	`, delta.InexactFloat64(), handle, string(c))
	if err != nil {
		return generic.Storage("adjust balance", err)
	}
	return requireRow(res, handle, c)
}

func adjustTaken(ctx context.Context, q querier, handle string, c timeoff.Category, delta decimal.Decimal) error {
	res, err := q.ExecContext(ctx, `
		UPDATE leave_accounts SET taken = MAX(0, ROUND(taken + ?, 1))
		WHERE handle = ? AND category = ?
	`, delta.InexactFloat64(), handle, string(c))
	if err != nil {
		return generic.Storage("adjust taken", err)
	}
	return requireRow(res, handle, c)
}

func requireRow(res sql.Result, handle string, c timeoff.Category) error {
	n, err := res.RowsAffected()
	if err != nil {
		return generic.Storage("rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("%s account of %s: %w", c, handle, generic.ErrNotFound)
	}
	return nil
}

// =============================================================================
// APPLICATIONS
// =============================================================================

const applicationColumns = `
	id, handle, intern_name, chat_id, category, start_date, end_date, day_portion,
	duration, status, submitted_at, decided_at, remarks, balance_at_submission`

func (s *Store) CreateApplication(ctx context.Context, app *timeoff.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createApplication(ctx, s.db, app)
}

func (s *Store) GetApplication(ctx context.Context, id string) (*timeoff.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return getApplication(ctx, s.db, id)
}

func (s *Store) SetApplicationStatus(ctx context.Context, id string, expected, next timeoff.Status, update timeoff.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setApplicationStatus(ctx, s.db, id, expected, next, update)
}

func (s *Store) ListUpcomingApprovedByHandle(ctx context.Context, handle string, from generic.Date) ([]*timeoff.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return listUpcoming(ctx, s.db, handle, from)
}

func (s *Store) ListPendingApplications(ctx context.Context) ([]*timeoff.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return listPending(ctx, s.db)
}

func createApplication(ctx context.Context, q querier, app *timeoff.Application) error {
	var snapshot sql.NullFloat64
	if app.BalanceAtSubmission != nil {
		snapshot = sql.NullFloat64{Float64: app.BalanceAtSubmission.InexactFloat64(), Valid: true}
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO leave_applications (`+applicationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		app.ID, app.InternHandle, app.InternName, app.ChatID, string(app.Category),
		app.Start.String(), app.End.String(), string(app.Portion),
		app.Duration.InexactFloat64(), string(app.Status),
		app.SubmittedAt.UTC().Format(time.RFC3339Nano), formatTime(app.DecidedAt),
		app.Remarks, snapshot,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("application %s: %w", app.ID, generic.ErrDuplicate)
		}
		if isForeignKeyError(err) {
			return fmt.Errorf("intern %s: %w", app.InternHandle, generic.ErrNotFound)
		}
		return generic.Storage("insert application", err)
	}
	return nil
}

func getApplication(ctx context.Context, q querier, id string) (*timeoff.Application, error) {
	row := q.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM leave_applications WHERE id = ?`, id)
	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("application %s: %w", id, generic.ErrNotFound)
	}
	if err != nil {
		return nil, generic.Storage("get application", err)
	}
	return app, nil
}

func setApplicationStatus(ctx context.Context, q querier, id string, expected, next timeoff.Status, update timeoff.StatusUpdate) error {
	sets := []string{"status = ?"}
	args := []any{string(next)}
	if update.DecidedAt != nil {
		sets = append(sets, "decided_at = ?")
		args = append(args, formatTime(update.DecidedAt))
	}
	if update.Remarks != nil {
		sets = append(sets, "remarks = ?")
		args = append(args, *update.Remarks)
	}
	args = append(args, id, string(expected))

	res, err := q.ExecContext(ctx,
		`UPDATE leave_applications SET `+strings.Join(sets, ", ")+` WHERE id = ? AND status = ?`,
		args...)
	if err != nil {
		return generic.Storage("update application status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return generic.Storage("rows affected", err)
	}
	if n == 1 {
		return nil
	}

	// nothing updated: tell missing apart from already resolved
	var current string
	err = q.QueryRowContext(ctx, `SELECT status FROM leave_applications WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("application %s: %w", id, generic.ErrNotFound)
	}
	if err != nil {
		return generic.Storage("read application status", err)
	}
	return &generic.ConflictError{ID: id, Status: current}
}

func listUpcoming(ctx context.Context, q querier, handle string, from generic.Date) ([]*timeoff.Application, error) {
	return queryApplications(ctx, q, `
		SELECT `+applicationColumns+` FROM leave_applications
		WHERE handle = ? AND status IN (?, ?) AND start_date >= ?
		ORDER BY start_date, id
	`, handle, string(timeoff.StatusApproved), string(timeoff.StatusAutoApproved), from.String())
}

func listPending(ctx context.Context, q querier) ([]*timeoff.Application, error) {
	return queryApplications(ctx, q, `
		SELECT `+applicationColumns+` FROM leave_applications
		WHERE status = ?
		ORDER BY submitted_at, id
	`, string(timeoff.StatusPending))
}

func queryApplications(ctx context.Context, q querier, query string, args ...any) ([]*timeoff.Application, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, generic.Storage("query applications", err)
	}
	defer rows.Close()

	var apps []*timeoff.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, generic.Storage("scan application", err)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, generic.Storage("iterate applications", err)
	}
	return apps, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanApplication(row scanner) (*timeoff.Application, error) {
	var (
		app                       timeoff.Application
		category, portion, status string
		start, end, submitted     string
		decided                   sql.NullString
		duration                  float64
		snapshot                  sql.NullFloat64
	)
	err := row.Scan(&app.ID, &app.InternHandle, &app.InternName, &app.ChatID, &category,
		&start, &end, &portion, &duration, &status, &submitted, &decided, &app.Remarks, &snapshot)
	if err != nil {
		return nil, err
	}

	app.Category = timeoff.Category(category)
	app.Portion = timeoff.DayPortion(portion)
	app.Status = timeoff.Status(status)
	app.Duration = generic.NewDays(duration)
	if app.Start, err = generic.ParseDate(start); err != nil {
		return nil, err
	}
	if app.End, err = generic.ParseDate(end); err != nil {
		return nil, err
	}
	if app.SubmittedAt, err = time.Parse(time.RFC3339Nano, submitted); err != nil {
		return nil, err
	}
	if decided.Valid {
		t, err := time.Parse(time.RFC3339Nano, decided.String)
		if err != nil {
			return nil, err
		}
		app.DecidedAt = &t
	}
	if snapshot.Valid {
		b := generic.NewDays(snapshot.Float64)
		app.BalanceAtSubmission = &b
	}
	return &app, nil
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store timeoff.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return generic.Storage("begin transaction", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return generic.Storage("commit transaction", err)
	}
	return nil
}

// txStore runs every call on the open transaction. The parent mutex is
// already held by WithTx.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) CreateIntern(ctx context.Context, intern *timeoff.Intern) error {
	return createIntern(ctx, ts.tx, intern)
}

func (ts *txStore) GetInternByHandle(ctx context.Context, handle string) (*timeoff.Intern, error) {
	return getIntern(ctx, ts.tx, handle)
}

func (ts *txStore) DeleteIntern(ctx context.Context, handle string) error {
	return deleteIntern(ctx, ts.tx, handle)
}

func (ts *txStore) AdjustBalance(ctx context.Context, handle string, c timeoff.Category, delta decimal.Decimal) error {
	return adjustBalance(ctx, ts.tx, handle, c, delta)
}

func (ts *txStore) AdjustTaken(ctx context.Context, handle string, c timeoff.Category, delta decimal.Decimal) error {
	return adjustTaken(ctx, ts.tx, handle, c, delta)
}

func (ts *txStore) CreateApplication(ctx context.Context, app *timeoff.Application) error {
	return createApplication(ctx, ts.tx, app)
}

func (ts *txStore) GetApplication(ctx context.Context, id string) (*timeoff.Application, error) {
	return getApplication(ctx, ts.tx, id)
}

func (ts *txStore) SetApplicationStatus(ctx context.Context, id string, expected, next timeoff.Status, update timeoff.StatusUpdate) error {
	return setApplicationStatus(ctx, ts.tx, id, expected, next, update)
}

func (ts *txStore) ListUpcomingApprovedByHandle(ctx context.Context, handle string, from generic.Date) ([]*timeoff.Application, error) {
	return listUpcoming(ctx, ts.tx, handle, from)
}

func (ts *txStore) ListPendingApplications(ctx context.Context) ([]*timeoff.Application, error) {
	return listPending(ctx, ts.tx)
}

func (ts *txStore) WithTx(_ context.Context, fn func(timeoff.Store) error) error {
	return fn(ts)
}

// =============================================================================
// ADMIN
// =============================================================================

// Reset clears all data. Used by tests and the local seed command.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"leave_applications", "leave_accounts", "interns"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return generic.Storage("reset "+table, err)
		}
	}
	return nil
}

// Helper functions

func formatTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY"))
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
