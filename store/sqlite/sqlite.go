/*
Package sqlite provides a SQLite-backed implementation of leave.TxStore.

PURPOSE:
  Persists employees and leave requests. Schema is versioned with
  golang-migrate; the SQL files are embedded in the migrations package and
  applied on New().

KEY TABLES:
  employees:      one row per employee, unique email
  leave_requests: one row per request; seq orders rows that share a
                  created_at timestamp

INDEXES:
  - idx_employees_email: email uniqueness (ErrEmailTaken)
  - idx_leave_requests_employee_status: overlap and approved-day sum
  - idx_leave_requests_created: newest-first listing

TRANSITIONS:
  Status changes are compare-and-set:

    UPDATE leave_requests SET status = ?, ... WHERE id = ? AND status = ?

  Zero affected rows means another writer got there first and the call
  returns leave.ErrConcurrentModification.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, and the pool is pinned to a single
  connection so ":memory:" databases are shared across calls. WithTx holds
  the write lock for the whole callback.

DATES:
  Calendar dates are TEXT "YYYY-MM-DD" so range comparisons are plain
  string comparisons. Timestamps use a fixed-width UTC layout for the same
  reason.

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := leave.New(store)

SEE ALSO:
  - leave/store.go: Interface definitions
  - leave/store/memory.go: In-memory implementation for testing
  - store/sqlite/migrations: Embedded schema
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

	"github.com/mattn/go-sqlite3"

	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/sqlite/migrations"
)

// timestampLayout is fixed width so lexical order equals time order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements leave.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// OpenDB opens the database without touching the schema.
// Use ":memory:" for an in-memory database.
func OpenDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// New opens the database at dbPath and migrates it to the latest schema.
func New(dbPath string) (*Store, error) {
	db, err := OpenDB(dbPath)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// leave.Store
// =============================================================================

func (s *Store) CreateEmployee(ctx context.Context, e *leave.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return queries{s.db}.CreateEmployee(ctx, e)
}

func (s *Store) GetEmployee(ctx context.Context, id leave.EmployeeID) (*leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queries{s.db}.GetEmployee(ctx, id)
}

func (s *Store) EmailExists(ctx context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queries{s.db}.EmailExists(ctx, email)
}

func (s *Store) CreateRequest(ctx context.Context, r *leave.LeaveRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return queries{s.db}.CreateRequest(ctx, r)
}

func (s *Store) GetRequest(ctx context.Context, id leave.RequestID) (*leave.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queries{s.db}.GetRequest(ctx, id)
}

func (s *Store) TransitionRequest(ctx context.Context, r *leave.LeaveRequest, from leave.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return queries{s.db}.TransitionRequest(ctx, r, from)
}

func (s *Store) HasOverlap(ctx context.Context, employeeID leave.EmployeeID, statuses []leave.Status, start, end time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queries{s.db}.HasOverlap(ctx, employeeID, statuses, start, end)
}

func (s *Store) SumApprovedDays(ctx context.Context, employeeID leave.EmployeeID, from, to time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queries{s.db}.SumApprovedDays(ctx, employeeID, from, to)
}

func (s *Store) ListRequests(ctx context.Context, f leave.RequestFilter) ([]leave.LeaveRequest, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queries{s.db}.ListRequests(ctx, f)
}

// =============================================================================
// TRANSACTION SUPPORT
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store leave.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(queries{sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// =============================================================================
// QUERIES - shared by the store and its transactions, no locking
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	q querier
}

func (x queries) CreateEmployee(ctx context.Context, e *leave.Employee) error {
	_, err := x.q.ExecContext(ctx, `
		INSERT INTO employees
		(id, name, email, department, joining_date, is_hr, annual_allocation, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Name, e.Email, e.Department,
		leave.FormatDate(e.JoiningDate),
		e.HR,
		e.AnnualAllocation,
		formatTimestamp(e.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return leave.ErrEmailTaken
		}
		return fmt.Errorf("failed to insert employee: %w", err)
	}
	return nil
}

// GetEmployee retrieves an employee by ID.
func (x queries) GetEmployee(ctx context.Context, id leave.EmployeeID) (*leave.Employee, error) {
	var e leave.Employee
	var joining, created string

	err := x.q.QueryRowContext(ctx, `
		SELECT id, name, email, department, joining_date, is_hr, annual_allocation, created_at
		FROM employees WHERE id = ?`, id,
	).Scan(&e.ID, &e.Name, &e.Email, &e.Department, &joining, &e.HR, &e.AnnualAllocation, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get employee: %w", err)
	}

	if e.JoiningDate, err = leave.ParseDate(joining); err != nil {
		return nil, fmt.Errorf("corrupt joining_date for employee %s: %w", id, err)
	}
	if e.CreatedAt, err = parseTimestamp(created); err != nil {
		return nil, fmt.Errorf("corrupt created_at for employee %s: %w", id, err)
	}
	return &e, nil
}

func (x queries) EmailExists(ctx context.Context, email string) (bool, error) {
	var n int
	err := x.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM employees WHERE email = ?", email).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return n > 0, nil
}

func (x queries) CreateRequest(ctx context.Context, r *leave.LeaveRequest) error {
	_, err := x.q.ExecContext(ctx, `
		INSERT INTO leave_requests
		(id, employee_id, leave_type, status, start_date, end_date, days, reason,
		 approver_id, decision_note, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.EmployeeID, r.Type, r.Status,
		leave.FormatDate(r.StartDate),
		leave.FormatDate(r.EndDate),
		r.Days,
		r.Reason,
		nullEmployeeID(r.ApproverID),
		nullStringPtr(r.DecisionNote),
		formatTimestamp(r.CreatedAt),
		formatTimestamp(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert leave request: %w", err)
	}
	return nil
}

const requestColumns = `id, employee_id, leave_type, status, start_date, end_date, days, reason,
	approver_id, decision_note, created_at, updated_at`

func (x queries) GetRequest(ctx context.Context, id leave.RequestID) (*leave.LeaveRequest, error) {
	row := x.q.QueryRowContext(ctx, "SELECT "+requestColumns+" FROM leave_requests WHERE id = ?", id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get leave request: %w", err)
	}
	return r, nil
}

func (x queries) TransitionRequest(ctx context.Context, r *leave.LeaveRequest, from leave.Status) error {
	res, err := x.q.ExecContext(ctx, `
		UPDATE leave_requests
		SET status = ?, approver_id = ?, decision_note = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		r.Status,
		nullEmployeeID(r.ApproverID),
		nullStringPtr(r.DecisionNote),
		formatTimestamp(r.UpdatedAt),
		r.ID, from,
	)
	if err != nil {
		return fmt.Errorf("failed to update leave request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return leave.ErrConcurrentModification
	}
	return nil
}

func (x queries) HasOverlap(ctx context.Context, employeeID leave.EmployeeID, statuses []leave.Status, start, end time.Time) (bool, error) {
	if len(statuses) == 0 {
		return false, nil
	}
	args := []any{employeeID, leave.FormatDate(start), leave.FormatDate(end)}
	for _, st := range statuses {
		args = append(args, st)
	}

	var n int
	err := x.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM leave_requests
		WHERE employee_id = ? AND end_date >= ? AND start_date <= ?
		  AND status IN (`+placeholders(len(statuses))+`)`, args...,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check overlap: %w", err)
	}
	return n > 0, nil
}

func (x queries) SumApprovedDays(ctx context.Context, employeeID leave.EmployeeID, from, to time.Time) (int, error) {
	var total int
	err := x.q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(days), 0) FROM leave_requests
		WHERE employee_id = ? AND status = ? AND start_date >= ? AND start_date <= ?`,
		employeeID, leave.StatusApproved, leave.FormatDate(from), leave.FormatDate(to),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum approved days: %w", err)
	}
	return total, nil
}

func (x queries) ListRequests(ctx context.Context, f leave.RequestFilter) ([]leave.LeaveRequest, int, error) {
	var where []string
	var args []any
	if f.Status != nil {
		where = append(where, "status = ?")
		args = append(args, *f.Status)
	}
	if f.EmployeeID != nil {
		where = append(where, "employee_id = ?")
		args = append(args, *f.EmployeeID)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := x.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM leave_requests"+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count leave requests: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}
	rows, err := x.q.QueryContext(ctx,
		"SELECT "+requestColumns+" FROM leave_requests"+clause+
			" ORDER BY created_at DESC, seq ASC LIMIT ? OFFSET ?",
		append(args, limit, f.Offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list leave requests: %w", err)
	}
	defer rows.Close()

	result := []leave.LeaveRequest{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan leave request: %w", err)
		}
		result = append(result, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate leave requests: %w", err)
	}
	return result, total, nil
}

// =============================================================================
// HELPERS
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(sc scanner) (*leave.LeaveRequest, error) {
	var r leave.LeaveRequest
	var start, end, created, updated string
	var approver, note sql.NullString

	if err := sc.Scan(&r.ID, &r.EmployeeID, &r.Type, &r.Status, &start, &end, &r.Days, &r.Reason,
		&approver, &note, &created, &updated); err != nil {
		return nil, err
	}

	var err error
	if r.StartDate, err = leave.ParseDate(start); err != nil {
		return nil, fmt.Errorf("corrupt start_date on %s: %w", r.ID, err)
	}
	if r.EndDate, err = leave.ParseDate(end); err != nil {
		return nil, fmt.Errorf("corrupt end_date on %s: %w", r.ID, err)
	}
	if approver.Valid {
		id := leave.EmployeeID(approver.String)
		r.ApproverID = &id
	}
	if note.Valid {
		n := note.String
		r.DecisionNote = &n
	}
	if r.CreatedAt, err = parseTimestamp(created); err != nil {
		return nil, fmt.Errorf("corrupt created_at on %s: %w", r.ID, err)
	}
	if r.UpdatedAt, err = parseTimestamp(updated); err != nil {
		return nil, fmt.Errorf("corrupt updated_at on %s: %w", r.ID, err)
	}
	return &r, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// parseTimestamp also accepts RFC 3339 for rows written by hand.
func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, s)
	if err == nil {
		return t, nil
	}
	if t, err2 := time.Parse(time.RFC3339Nano, s); err2 == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
}

func nullEmployeeID(id *leave.EmployeeID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*id), Valid: true}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

var (
	_ leave.TxStore = (*Store)(nil)
	_ leave.Store   = queries{}
)
