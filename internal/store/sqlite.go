package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"remindflow/internal/domain"
)

// EnsureSchema creates tables if they don't exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS tasks (
  id TEXT PRIMARY KEY,
  owner_id TEXT NOT NULL,
  title TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  deadline DATETIME NOT NULL,
  status TEXT NOT NULL CHECK(status IN ('pending','in_progress','completed','overdue')) DEFAULT 'pending',
  reminder_method TEXT CHECK(reminder_method IN ('email','messaging','both')),
  reminder_days_before INTEGER NOT NULL DEFAULT 0,
  target_contact TEXT NOT NULL DEFAULT '',
  trigger_handle_id TEXT,
  reminder_sent_at DATETIME,
  reminder_rev INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_tasks_owner ON tasks(owner_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_tasks_overdue ON tasks(status, deadline);
`
	_, err := db.Exec(schema)
	return err
}

type Repository interface {
	Create(ctx context.Context, t domain.Task) (domain.Task, error)
	Get(ctx context.Context, id, ownerID string) (domain.Task, error)
	List(ctx context.Context, ownerID string, limit int) ([]domain.Task, error)
	Update(ctx context.Context, t domain.Task) (domain.Task, error)
	Delete(ctx context.Context, id, ownerID string) (domain.Task, error)

	// SetTriggerHandle persists the scheduler handle (or nil) for the task,
	// but only while reminder_rev still equals rev; a stale rev yields
	// domain.ErrSuperseded.
	SetTriggerHandle(ctx context.Context, taskID string, handle *string, rev int64) error
	ReminderSent(ctx context.Context, taskID string) (bool, error)
	MarkReminderSent(ctx context.Context, taskID string, at time.Time) error
	MarkOverdue(ctx context.Context, now time.Time) (int, error)
}

type sqliteRepo struct{ db *sql.DB }

func NewSQLiteRepo(db *sql.DB) Repository { return &sqliteRepo{db: db} }

const taskColumns = `id,owner_id,title,description,deadline,status,reminder_method,reminder_days_before,target_contact,trigger_handle_id,reminder_sent_at,reminder_rev,created_at,updated_at`

func (r *sqliteRepo) Create(ctx context.Context, t domain.Task) (domain.Task, error) {
	if t.ID == "" {
		t.ID = "tsk_" + uuid.NewString()
	}
	if t.Status == "" {
		t.Status = domain.StatusPending
	}
	t.ReminderRev = 1
	var method *string
	if t.ReminderMethod != nil {
		m := string(*t.ReminderMethod)
		method = &m
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO tasks (id,owner_id,title,description,deadline,status,reminder_method,reminder_days_before,target_contact,trigger_handle_id,reminder_sent_at,reminder_rev,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,NULL,NULL,1,CURRENT_TIMESTAMP,CURRENT_TIMESTAMP)
`, t.ID, t.OwnerID, t.Title, t.Description, t.Deadline, t.Status, method, t.ReminderDaysBefore, t.TargetContact)
	if err != nil {
		return domain.Task{}, err
	}
	return r.Get(ctx, t.ID, t.OwnerID)
}

func (r *sqliteRepo) Get(ctx context.Context, id, ownerID string) (domain.Task, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+taskColumns+` FROM tasks WHERE id=? AND owner_id=?`, id, ownerID)
	return scanTask(row)
}

func (r *sqliteRepo) List(ctx context.Context, ownerID string, limit int) ([]domain.Task, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+taskColumns+` FROM tasks WHERE owner_id=? ORDER BY created_at DESC LIMIT ?`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Update rewrites the mutable fields and bumps reminder_rev so in-flight
// reconciler runs for the previous state cannot clobber the handle.
func (r *sqliteRepo) Update(ctx context.Context, t domain.Task) (domain.Task, error) {
	var method *string
	if t.ReminderMethod != nil {
		m := string(*t.ReminderMethod)
		method = &m
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE tasks SET title=?,description=?,deadline=?,status=?,reminder_method=?,reminder_days_before=?,target_contact=?,
  reminder_rev=reminder_rev+1, updated_at=CURRENT_TIMESTAMP
WHERE id=? AND owner_id=?`,
		t.Title, t.Description, t.Deadline, t.Status, method, t.ReminderDaysBefore, t.TargetContact, t.ID, t.OwnerID)
	if err != nil {
		return domain.Task{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Task{}, domain.ErrNotFound
	}
	return r.Get(ctx, t.ID, t.OwnerID)
}

func (r *sqliteRepo) Delete(ctx context.Context, id, ownerID string) (domain.Task, error) {
	t, err := r.Get(ctx, id, ownerID)
	if err != nil {
		return domain.Task{}, err
	}
	_, err = r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id=? AND owner_id=?`, id, ownerID)
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (r *sqliteRepo) SetTriggerHandle(ctx context.Context, taskID string, handle *string, rev int64) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE tasks SET trigger_handle_id=?, updated_at=CURRENT_TIMESTAMP
WHERE id=? AND reminder_rev=?`, handle, taskID, rev)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Either the task is gone or a newer mutation bumped the rev.
		return domain.ErrSuperseded
	}
	return nil
}

func (r *sqliteRepo) ReminderSent(ctx context.Context, taskID string) (bool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT reminder_sent_at IS NOT NULL FROM tasks WHERE id=?`, taskID)
	var sent bool
	if err := row.Scan(&sent); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, domain.ErrNotFound
		}
		return false, err
	}
	return sent, nil
}

func (r *sqliteRepo) MarkReminderSent(ctx context.Context, taskID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE tasks SET reminder_sent_at=?, updated_at=CURRENT_TIMESTAMP
WHERE id=? AND reminder_sent_at IS NULL`, at, taskID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAlreadySent
	}
	return nil
}

func (r *sqliteRepo) MarkOverdue(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE tasks SET status='overdue', updated_at=CURRENT_TIMESTAMP
WHERE status IN ('pending','in_progress') AND deadline < ?`, now)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

type rowScanner interface{ Scan(dest ...any) error }

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var method, handle sql.NullString
	var sentAt sql.NullTime
	err := row.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Description, &t.Deadline, &t.Status,
		&method, &t.ReminderDaysBefore, &t.TargetContact, &handle, &sentAt, &t.ReminderRev,
		&t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Task{}, err
	}
	if method.Valid {
		m := domain.Method(method.String)
		t.ReminderMethod = &m
	}
	if handle.Valid {
		h := handle.String
		t.TriggerHandleID = &h
	}
	if sentAt.Valid {
		ts := sentAt.Time
		t.ReminderSentAt = &ts
	}
	return t, nil
}
