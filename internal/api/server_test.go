package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"remindflow/internal/contact"
	"remindflow/internal/domain"
	"remindflow/internal/notify"
	"remindflow/internal/reminder"
	"remindflow/internal/store"
	"remindflow/internal/timing"
)

type fakeGateway struct {
	mu        sync.Mutex
	scheduled []time.Time
	cancelled []string
	n         int
}

func (f *fakeGateway) Schedule(ctx context.Context, p domain.JobPayload, fireAt time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	f.scheduled = append(f.scheduled, fireAt)
	return fmt.Sprintf("job_%d", f.n), nil
}

func (f *fakeGateway) Cancel(ctx context.Context, handle string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, handle)
	return true, nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeSender) Send(ctx context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to)
	return nil
}

type env struct {
	srv       http.Handler
	repo      store.Repository
	gw        *fakeGateway
	email     *fakeSender
	messaging *fakeSender
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := sql.Open("sqlite", "file:api_"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, store.EnsureSchema(db))

	repo := store.NewSQLiteRepo(db)
	gw := &fakeGateway{}
	calc := timing.NewCalculator(nil)
	orch := reminder.NewOrchestrator(repo, gw, contact.NewResolver("62"), calc, time.Second)

	email, messaging := &fakeSender{}, &fakeSender{}
	worker := notify.NewWorker(email, messaging, repo, notify.NewRenderer(timing.DefaultLocation))

	return &env{
		srv:       NewServer(repo, orch, worker),
		repo:      repo,
		gw:        gw,
		email:     email,
		messaging: messaging,
	}
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-User-ID", "usr_1")
	w := httptest.NewRecorder()
	e.srv.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(v))
}

func reminderCreate(deadline time.Time, daysBefore int) map[string]any {
	return map[string]any{
		"title":                "ship the report",
		"deadline":             deadline,
		"show_reminder":        true,
		"remind_method":        "email",
		"contact":              "a@b.com",
		"reminder_days_before": daysBefore,
	}
}

func TestCreateSchedulesReminder(t *testing.T) {
	e := newEnv(t)
	deadline := time.Now().AddDate(0, 0, 10)

	w := e.do(t, http.MethodPost, "/api/tasks", reminderCreate(deadline, 3))
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		ID       string `json:"id"`
		Reminder *struct {
			Action    string     `json:"action"`
			Scheduled bool       `json:"scheduled"`
			FireAt    *time.Time `json:"fire_at"`
		} `json:"reminder"`
	}
	decode(t, w, &resp)
	require.NotNil(t, resp.Reminder)
	assert.Equal(t, "activated", resp.Reminder.Action)
	assert.True(t, resp.Reminder.Scheduled)
	require.NotNil(t, resp.Reminder.FireAt)

	stored, err := e.repo.Get(context.Background(), resp.ID, "usr_1")
	require.NoError(t, err)
	require.NotNil(t, stored.TriggerHandleID)
	assert.Equal(t, "job_1", *stored.TriggerHandleID)
}

func TestUpdateReschedules(t *testing.T) {
	e := newEnv(t)
	deadline := time.Now().AddDate(0, 0, 10)

	w := e.do(t, http.MethodPost, "/api/tasks", reminderCreate(deadline, 3))
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		ID string `json:"id"`
	}
	decode(t, w, &created)

	w = e.do(t, http.MethodPut, "/api/tasks/"+created.ID, reminderCreate(deadline, 5))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, []string{"job_1"}, e.gw.cancelled)
	require.Len(t, e.gw.scheduled, 2)

	stored, err := e.repo.Get(context.Background(), created.ID, "usr_1")
	require.NoError(t, err)
	require.NotNil(t, stored.TriggerHandleID)
	assert.Equal(t, "job_2", *stored.TriggerHandleID)
}

func TestCreateCollapsedReminder(t *testing.T) {
	e := newEnv(t)
	deadline := time.Now().Add(time.Hour)

	w := e.do(t, http.MethodPost, "/api/tasks", reminderCreate(deadline, 2))
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Reminder *struct {
			Scheduled           bool       `json:"scheduled"`
			CollapsedToDeadline bool       `json:"collapsed_to_deadline"`
			FireAt              *time.Time `json:"fire_at"`
		} `json:"reminder"`
	}
	decode(t, w, &resp)
	require.NotNil(t, resp.Reminder)
	assert.True(t, resp.Reminder.Scheduled)
	assert.True(t, resp.Reminder.CollapsedToDeadline)
	require.NotNil(t, resp.Reminder.FireAt)
	assert.WithinDuration(t, deadline, *resp.Reminder.FireAt, time.Second)
}

func TestCreateBothMethodResolvesContacts(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodPost, "/api/tasks", map[string]any{
		"title":                "ship the report",
		"deadline":             time.Now().AddDate(0, 0, 10),
		"show_reminder":        true,
		"remind_method":        "both",
		"contact":              "a@b.com|0812345678",
		"reminder_days_before": 3,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, e.gw.scheduled, 1)
}

func TestValidationErrors(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/api/tasks", map[string]any{
		"title":                "",
		"deadline":             time.Now().Add(-time.Hour),
		"show_reminder":        true,
		"remind_method":        "pigeon",
		"reminder_days_before": 500,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp struct {
		Errors map[string]string `json:"errors"`
	}
	decode(t, w, &resp)
	assert.Contains(t, resp.Errors, "title")
	assert.Contains(t, resp.Errors, "deadline")
	assert.Contains(t, resp.Errors, "remind_method")
	assert.Contains(t, resp.Errors, "reminder_days_before")
	assert.Empty(t, e.gw.scheduled)
}

func TestMutationSucceedsWhenContactInvalid(t *testing.T) {
	e := newEnv(t)
	// A bad contact degrades the reminder setup but the create still lands.
	w := e.do(t, http.MethodPost, "/api/tasks", map[string]any{
		"title":                "ship the report",
		"deadline":             time.Now().AddDate(0, 0, 10),
		"show_reminder":        true,
		"remind_method":        "email",
		"contact":              "not-an-email",
		"reminder_days_before": 3,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		ID       string `json:"id"`
		Reminder *struct {
			Scheduled bool   `json:"scheduled"`
			Skipped   string `json:"skipped"`
		} `json:"reminder"`
	}
	decode(t, w, &resp)
	require.NotNil(t, resp.Reminder)
	assert.False(t, resp.Reminder.Scheduled)
	assert.Equal(t, "contact_invalid", resp.Reminder.Skipped)

	stored, err := e.repo.Get(context.Background(), resp.ID, "usr_1")
	require.NoError(t, err)
	assert.Nil(t, stored.TriggerHandleID)
}

func TestDeleteCancelsHandle(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodPost, "/api/tasks", reminderCreate(time.Now().AddDate(0, 0, 10), 3))
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		ID string `json:"id"`
	}
	decode(t, w, &created)

	w = e.do(t, http.MethodDelete, "/api/tasks/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"job_1"}, e.gw.cancelled)

	_, err := e.repo.Get(context.Background(), created.ID, "usr_1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFireJobDelivers(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodPost, "/api/tasks", reminderCreate(time.Now().AddDate(0, 0, 10), 3))
	var created struct {
		ID string `json:"id"`
	}
	decode(t, w, &created)

	w = e.do(t, http.MethodPost, "/internal/jobs/fire", domain.JobPayload{
		TaskID:         created.ID,
		Title:          "ship the report",
		Deadline:       time.Now().AddDate(0, 0, 10),
		RecipientEmail: "a@b.com",
		DisplayName:    "Ana",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"a@b.com"}, e.email.sent)

	stored, err := e.repo.Get(context.Background(), created.ID, "usr_1")
	require.NoError(t, err)
	assert.NotNil(t, stored.ReminderSentAt)
}

func TestFireJobAllChannelsFailed(t *testing.T) {
	e := newEnv(t)
	e.email.err = errors.New("smtp down")

	w := e.do(t, http.MethodPost, "/api/tasks", reminderCreate(time.Now().AddDate(0, 0, 10), 3))
	var created struct {
		ID string `json:"id"`
	}
	decode(t, w, &created)

	w = e.do(t, http.MethodPost, "/internal/jobs/fire", domain.JobPayload{
		TaskID:         created.ID,
		Title:          "ship the report",
		Deadline:       time.Now().AddDate(0, 0, 10),
		RecipientEmail: "a@b.com",
	})
	require.Equal(t, http.StatusInternalServerError, w.Code)

	stored, err := e.repo.Get(context.Background(), created.ID, "usr_1")
	require.NoError(t, err)
	assert.Nil(t, stored.ReminderSentAt)
}

func TestMissingUserHeader(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	w := httptest.NewRecorder()
	e.srv.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
