/*
Package postgres provides a PostgreSQL implementation of timeoff.Store on pgx.

PURPOSE:
  Multi-process deployment of the leave engine. Unlike the SQLite store
  there is no process mutex: database row locks do the serializing.

LOCKING:
  - SetApplicationStatus is a conditional UPDATE. A second resolver blocks
    on the row lock, re-evaluates "status = expected" after the first commits,
    and sees zero rows.
  - Inside WithTx, GetInternByHandle reads leave_accounts FOR UPDATE, so the
    balance check and the debit that follows it see the same row.

NUMERICS:
  Day counts are NUMERIC(5,1) and cross the wire as text, so no value is
  ever routed through float64.

MIGRATIONS:
  Versioned goose migrations embedded from migrations/. Run with Migrate or
  the `migrate` command.
*/
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/timeoff"
)

//go:embed migrations/*.sql
var migrations embed.FS

// MigrationsTable is the goose version table.
const MigrationsTable = "schema_migrations"

// Store implements timeoff.Store on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Connect opens a pool for dsn.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1
	return pgxpool.NewWithConfig(ctx, poolCfg)
}

// New connects to dsn and returns a store. It does not migrate.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewFromPool wraps an existing pool.
func NewFromPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate applies the embedded migrations up to the latest version.
func (s *Store) Migrate(ctx context.Context) error {
	return Migrate(ctx, s.pool, false)
}

// Migrate runs goose against pool. With rollback set it undoes the latest
// version instead.
func Migrate(ctx context.Context, pool *pgxpool.Pool, rollback bool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations)
	goose.SetTableName(MigrationsTable)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}

	if rollback {
		if err := goose.DownContext(ctx, db, "migrations"); err != nil {
			return fmt.Errorf("goose down: %w", err)
		}
		return nil
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// =============================================================================
// STORE
// =============================================================================

func (s *Store) CreateIntern(ctx context.Context, intern *timeoff.Intern) error {
	return s.WithTx(ctx, func(tx timeoff.Store) error {
		return tx.CreateIntern(ctx, intern)
	})
}

func (s *Store) GetInternByHandle(ctx context.Context, handle string) (*timeoff.Intern, error) {
	return getIntern(ctx, s.pool, handle, false)
}

func (s *Store) DeleteIntern(ctx context.Context, handle string) error {
	return deleteIntern(ctx, s.pool, handle)
}

func (s *Store) AdjustBalance(ctx context.Context, handle string, c timeoff.Category, delta decimal.Decimal) error {
	return adjustBalance(ctx, s.pool, handle, c, delta)
}

func (s *Store) AdjustTaken(ctx context.Context, handle string, c timeoff.Category, delta decimal.Decimal) error {
	return adjustTaken(ctx, s.pool, handle, c, delta)
}

func (s *Store) CreateApplication(ctx context.Context, app *timeoff.Application) error {
	return createApplication(ctx, s.pool, app)
}

func (s *Store) GetApplication(ctx context.Context, id string) (*timeoff.Application, error) {
	return getApplication(ctx, s.pool, id)
}

func (s *Store) SetApplicationStatus(ctx context.Context, id string, expected, next timeoff.Status, update timeoff.StatusUpdate) error {
	return setApplicationStatus(ctx, s.pool, id, expected, next, update)
}

func (s *Store) ListUpcomingApprovedByHandle(ctx context.Context, handle string, from generic.Date) ([]*timeoff.Application, error) {
	return listUpcoming(ctx, s.pool, handle, from)
}

func (s *Store) ListPendingApplications(ctx context.Context) ([]*timeoff.Application, error) {
	return listPending(ctx, s.pool)
}

// WithTx executes fn inside a READ COMMITTED transaction.
func (s *Store) WithTx(ctx context.Context, fn func(timeoff.Store) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return generic.Storage("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return generic.Storage("commit transaction", err)
	}
	return nil
}

// Reset clears all data. Used by tests.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE leave_applications, leave_accounts, interns`)
	return generic.Storage("reset", err)
}

type txStore struct {
	tx pgx.Tx
}

func (t *txStore) CreateIntern(ctx context.Context, intern *timeoff.Intern) error {
	return createIntern(ctx, t.tx, intern)
}

// GetInternByHandle locks the intern's account rows until commit.
func (t *txStore) GetInternByHandle(ctx context.Context, handle string) (*timeoff.Intern, error) {
	return getIntern(ctx, t.tx, handle, true)
}

func (t *txStore) DeleteIntern(ctx context.Context, handle string) error {
	return deleteIntern(ctx, t.tx, handle)
}

func (t *txStore) AdjustBalance(ctx context.Context, handle string, c timeoff.Category, delta decimal.Decimal) error {
	return adjustBalance(ctx, t.tx, handle, c, delta)
}

func (t *txStore) AdjustTaken(ctx context.Context, handle string, c timeoff.Category, delta decimal.Decimal) error {
	return adjustTaken(ctx, t.tx, handle, c, delta)
}

func (t *txStore) CreateApplication(ctx context.Context, app *timeoff.Application) error {
	return createApplication(ctx, t.tx, app)
}

func (t *txStore) GetApplication(ctx context.Context, id string) (*timeoff.Application, error) {
	return getApplication(ctx, t.tx, id)
}

func (t *txStore) SetApplicationStatus(ctx context.Context, id string, expected, next timeoff.Status, update timeoff.StatusUpdate) error {
	return setApplicationStatus(ctx, t.tx, id, expected, next, update)
}

func (t *txStore) ListUpcomingApprovedByHandle(ctx context.Context, handle string, from generic.Date) ([]*timeoff.Application, error) {
	return listUpcoming(ctx, t.tx, handle, from)
}

func (t *txStore) ListPendingApplications(ctx context.Context) ([]*timeoff.Application, error) {
	return listPending(ctx, t.tx)
}

func (t *txStore) WithTx(_ context.Context, fn func(timeoff.Store) error) error {
	return fn(t)
}

// =============================================================================
// QUERIES
// =============================================================================

func createIntern(ctx context.Context, q querier, intern *timeoff.Intern) error {
	createdAt := intern.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := q.Exec(ctx, `
		INSERT INTO interns (handle, name, supervisor_email, start_date, end_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, intern.Handle, intern.Name, intern.SupervisorEmail, intern.StartDate.Time, intern.EndDate.Time, createdAt)
	if err != nil {
		if pgCode(err) == "23505" {
			return fmt.Errorf("intern %s: %w", intern.Handle, generic.ErrDuplicate)
		}
		return generic.Storage("insert intern", err)
	}

	for _, c := range timeoff.Categories {
		a := intern.Account(c)
		_, err := q.Exec(ctx, `
			INSERT INTO leave_accounts (handle, category, entitlement, taken, balance)
			VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric)
		`, intern.Handle, string(c), a.Entitlement.String(), a.Taken.String(), a.Balance.String())
		if err != nil {
			return generic.Storage("insert leave account", err)
		}
	}
	return nil
}

func getIntern(ctx context.Context, q querier, handle string, forUpdate bool) (*timeoff.Intern, error) {
	var intern timeoff.Intern
	var start, end time.Time
	err := q.QueryRow(ctx, `
		SELECT handle, name, supervisor_email, start_date, end_date, created_at
		FROM interns WHERE handle = $1
	`, handle).Scan(&intern.Handle, &intern.Name, &intern.SupervisorEmail, &start, &end, &intern.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("intern %s: %w", handle, generic.ErrNotFound)
	}
	if err != nil {
		return nil, generic.Storage("get intern", err)
	}
	intern.StartDate = generic.DateOf(start)
	intern.EndDate = generic.DateOf(end)

	query := `
		SELECT category, entitlement::text, taken::text, balance::text
		FROM leave_accounts WHERE handle = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rows, err := q.Query(ctx, query, handle)
	if err != nil {
		return nil, generic.Storage("get leave accounts", err)
	}
	defer rows.Close()

	intern.Accounts = make(map[timeoff.Category]generic.Account, len(timeoff.Categories))
	for rows.Next() {
		var category, entitlement, taken, balance string
		if err := rows.Scan(&category, &entitlement, &taken, &balance); err != nil {
			return nil, generic.Storage("scan leave account", err)
		}
		intern.Accounts[timeoff.Category(category)] = generic.Account{
			Entitlement: generic.MustParseDays(entitlement),
			Taken:       generic.MustParseDays(taken),
			Balance:     generic.MustParseDays(balance),
		}
	}
	if err := rows.Err(); err != nil {
		return nil, generic.Storage("iterate leave accounts", err)
	}
	return &intern, nil
}

func deleteIntern(ctx context.Context, q querier, handle string) error {
	tag, err := q.Exec(ctx, `DELETE FROM interns WHERE handle = $1`, handle)
	if err != nil {
		return generic.Storage("delete intern", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("intern %s: %w", handle, generic.ErrNotFound)
	}
	return nil
}

func adjustBalance(ctx context.Context, q querier, handle string, c timeoff.Category, delta decimal.Decimal) error {
	tag, err := q.Exec(ctx, `
		UPDATE leave_accounts SET balance = balance + $1::numeric
		WHERE handle = $2 AND category = $3
	`, delta.String(), handle, string(c))
	if err != nil {
		return generic.Storage("adjust balance", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s account of %s: %w", c, handle, generic.ErrNotFound)
	}
	return nil
}

func adjustTaken(ctx context.Context, q querier, handle string, c timeoff.Category, delta decimal.Decimal) error {
	tag, err := q.Exec(ctx, `
		UPDATE leave_accounts SET taken = GREATEST(0, taken + $1::numeric)
		WHERE handle = $2 AND category = $3
	`, delta.String(), handle, string(c))
	if err != nil {
		return generic.Storage("adjust taken", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s account of %s: %w", c, handle, generic.ErrNotFound)
	}
	return nil
}

const applicationColumns = `
	id, handle, intern_name, chat_id, category, start_date, end_date, day_portion,
	duration::text, status, submitted_at, decided_at, remarks, balance_at_submission::text`

func createApplication(ctx context.Context, q querier, app *timeoff.Application) error {
	var snapshot *string
	if app.BalanceAtSubmission != nil {
		s := app.BalanceAtSubmission.String()
		snapshot = &s
	}
	_, err := q.Exec(ctx, `
		INSERT INTO leave_applications (id, handle, intern_name, chat_id, category, start_date, end_date,
			day_portion, duration, status, submitted_at, decided_at, remarks, balance_at_submission)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10, $11, $12, $13, $14::numeric)
	`,
		app.ID, app.InternHandle, app.InternName, app.ChatID, string(app.Category),
		app.Start.Time, app.End.Time, string(app.Portion), app.Duration.String(), string(app.Status),
		app.SubmittedAt, app.DecidedAt, app.Remarks, snapshot,
	)
	if err != nil {
		switch pgCode(err) {
		case "23505":
			return fmt.Errorf("application %s: %w", app.ID, generic.ErrDuplicate)
		case "23503":
			return fmt.Errorf("intern %s: %w", app.InternHandle, generic.ErrNotFound)
		}
		return generic.Storage("insert application", err)
	}
	return nil
}

func getApplication(ctx context.Context, q querier, id string) (*timeoff.Application, error) {
	app, err := scanApplication(q.QueryRow(ctx, `SELECT `+applicationColumns+` FROM leave_applications WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("application %s: %w", id, generic.ErrNotFound)
	}
	if err != nil {
		return nil, generic.Storage("get application", err)
	}
	return app, nil
}

func setApplicationStatus(ctx context.Context, q querier, id string, expected, next timeoff.Status, update timeoff.StatusUpdate) error {
	sets := []string{"status = $1"}
	args := []any{string(next)}
	if update.DecidedAt != nil {
		args = append(args, *update.DecidedAt)
		sets = append(sets, fmt.Sprintf("decided_at = $%d", len(args)))
	}
	if update.Remarks != nil {
		args = append(args, *update.Remarks)
		sets = append(sets, fmt.Sprintf("remarks = $%d", len(args)))
	}
	args = append(args, id, string(expected))

	query := fmt.Sprintf(`UPDATE leave_applications SET %s WHERE id = $%d AND status = $%d`,
		strings.Join(sets, ", "), len(args)-1, len(args))
	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return generic.Storage("update application status", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var current string
	err = q.QueryRow(ctx, `SELECT status FROM leave_applications WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
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
		WHERE handle = $1 AND status IN ($2, $3) AND start_date >= $4
		ORDER BY start_date, id
	`, handle, string(timeoff.StatusApproved), string(timeoff.StatusAutoApproved), from.Time)
}

func listPending(ctx context.Context, q querier) ([]*timeoff.Application, error) {
	return queryApplications(ctx, q, `
		SELECT `+applicationColumns+` FROM leave_applications
		WHERE status = $1
		ORDER BY submitted_at, id
	`, string(timeoff.StatusPending))
}

func queryApplications(ctx context.Context, q querier, query string, args ...any) ([]*timeoff.Application, error) {
	rows, err := q.Query(ctx, query, args...)
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

func scanApplication(row pgx.Row) (*timeoff.Application, error) {
	var (
		app                       timeoff.Application
		category, portion, status string
		start, end                time.Time
		duration                  string
		snapshot                  *string
	)
	err := row.Scan(&app.ID, &app.InternHandle, &app.InternName, &app.ChatID, &category,
		&start, &end, &portion, &duration, &status, &app.SubmittedAt, &app.DecidedAt, &app.Remarks, &snapshot)
	if err != nil {
		return nil, err
	}
	app.Category = timeoff.Category(category)
	app.Portion = timeoff.DayPortion(portion)
	app.Status = timeoff.Status(status)
	app.Start = generic.DateOf(start)
	app.End = generic.DateOf(end)
	app.Duration = generic.MustParseDays(duration)
	if snapshot != nil {
		b := generic.MustParseDays(*snapshot)
		app.BalanceAtSubmission = &b
	}
	return &app, nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
