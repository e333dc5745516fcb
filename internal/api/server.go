package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"remindflow/internal/contact"
	"remindflow/internal/domain"
	"remindflow/internal/notify"
	"remindflow/internal/reminder"
	"remindflow/internal/store"
)

type Server struct {
	r      *chi.Mux
	repo   store.Repository
	orch   *reminder.Orchestrator
	worker *notify.Worker
}

func NewServer(repo store.Repository, orch *reminder.Orchestrator, worker *notify.Worker) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	s := &Server{r: r, repo: repo, orch: orch, worker: worker}

	r.Get("/health", s.health)
	r.Get("/metrics", s.metrics)
	r.Post("/api/tasks", s.createTask)
	r.Get("/api/tasks", s.listTasks)
	r.Get("/api/tasks/{id}", s.getTask)
	r.Put("/api/tasks/{id}", s.updateTask)
	r.Delete("/api/tasks/{id}", s.deleteTask)

	// Invoked by the external scheduler when a job fires.
	r.Post("/internal/jobs/fire", s.fireJob)

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("content-type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("remindflow_up 1\n"))
}

type profileReq struct {
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	DisplayName string `json:"display_name"`
}

type taskReq struct {
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	Deadline           time.Time  `json:"deadline"`
	Status             string     `json:"status"`
	ShowReminder       bool       `json:"show_reminder"`
	RemindMethod       string     `json:"remind_method"`
	Contact            string     `json:"contact"`
	ContactEmail       string     `json:"contact_email"`
	ContactPhone       string     `json:"contact_phone"`
	ReminderDaysBefore int        `json:"reminder_days_before"`
	Profile            profileReq `json:"profile"`
}

type reminderResp struct {
	Action              string     `json:"action"`
	Scheduled           bool       `json:"scheduled"`
	CollapsedToDeadline bool       `json:"collapsed_to_deadline,omitempty"`
	FireAt              *time.Time `json:"fire_at,omitempty"`
	Skipped             string     `json:"skipped,omitempty"`
}

type taskResp struct {
	ID                 string        `json:"id"`
	Title              string        `json:"title"`
	Description        string        `json:"description,omitempty"`
	Deadline           time.Time     `json:"deadline"`
	Status             string        `json:"status"`
	RemindMethod       string        `json:"remind_method,omitempty"`
	ReminderDaysBefore int           `json:"reminder_days_before,omitempty"`
	ReminderSentAt     *time.Time    `json:"reminder_sent_at,omitempty"`
	Reminder           *reminderResp `json:"reminder,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

func toResp(t domain.Task, out *reminder.Outcome) taskResp {
	resp := taskResp{
		ID:             t.ID,
		Title:          t.Title,
		Description:    t.Description,
		Deadline:       t.Deadline,
		Status:         t.Status,
		ReminderSentAt: t.ReminderSentAt,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
	if t.ReminderMethod != nil {
		resp.RemindMethod = string(*t.ReminderMethod)
		resp.ReminderDaysBefore = t.ReminderDaysBefore
	}
	if out != nil {
		resp.Reminder = &reminderResp{
			Action:              out.Action.String(),
			Scheduled:           out.Scheduled,
			CollapsedToDeadline: out.Collapsed,
			FireAt:              out.FireAt,
			Skipped:             out.Skipped,
		}
	}
	return resp
}

// validate checks the mutation input and builds the task fields it
// describes. Only these errors are fatal to the request; every later
// reminder-engine failure degrades instead.
func validate(req taskReq, now time.Time) (domain.Task, map[string]string) {
	errs := map[string]string{}
	if req.Title == "" {
		errs["title"] = "title is required"
	}
	if req.Deadline.IsZero() {
		errs["deadline"] = "deadline is required"
	} else if !req.Deadline.After(now) {
		errs["deadline"] = "deadline must be in the future"
	}

	status := req.Status
	if status == "" {
		status = domain.StatusPending
	}
	switch status {
	case domain.StatusPending, domain.StatusInProgress, domain.StatusCompleted, domain.StatusOverdue:
	default:
		errs["status"] = "unknown status"
	}

	t := domain.Task{
		Title:       req.Title,
		Description: req.Description,
		Deadline:    req.Deadline,
		Status:      status,
	}

	if req.ShowReminder {
		method, err := domain.ParseMethod(req.RemindMethod)
		if err != nil {
			errs["remind_method"] = "remind_method must be email, messaging, or both"
		} else {
			t.ReminderMethod = &method
			if method == domain.MethodBoth {
				t.TargetContact = contact.JoinBoth(req.ContactEmail, req.ContactPhone)
				if req.Contact != "" && req.ContactEmail == "" && req.ContactPhone == "" {
					t.TargetContact = req.Contact
				}
			} else {
				t.TargetContact = req.Contact
			}
		}
		if req.ReminderDaysBefore < 0 || req.ReminderDaysBefore > 365 {
			errs["reminder_days_before"] = "reminder_days_before must be between 0 and 365"
		}
		t.ReminderDaysBefore = req.ReminderDaysBefore
	}

	if len(errs) > 0 {
		return domain.Task{}, errs
	}
	return t, nil
}

func ownerID(r *http.Request) string { return r.Header.Get("X-User-ID") }

func profileOf(req taskReq) domain.Profile {
	return domain.Profile{
		Email:       req.Profile.Email,
		Phone:       req.Profile.Phone,
		DisplayName: req.Profile.DisplayName,
	}
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if owner == "" {
		http.Error(w, "X-User-ID header is required", http.StatusUnauthorized)
		return
	}
	var req taskReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	task, errs := validate(req, time.Now())
	if errs != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": errs})
		return
	}
	task.OwnerID = owner

	created, err := s.repo.Create(r.Context(), task)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := s.orch.Reconcile(r.Context(), created, domain.ReminderConfig{}, profileOf(req))
	writeJSON(w, http.StatusCreated, toResp(created, &out))
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if owner == "" {
		http.Error(w, "X-User-ID header is required", http.StatusUnauthorized)
		return
	}
	tasks, err := s.repo.List(r.Context(), owner, 50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	resp := make([]taskResp, 0, len(tasks))
	for _, t := range tasks {
		resp = append(resp, toResp(t, nil))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if owner == "" {
		http.Error(w, "X-User-ID header is required", http.StatusUnauthorized)
		return
	}
	t, err := s.repo.Get(r.Context(), chi.URLParam(r, "id"), owner)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toResp(t, nil))
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if owner == "" {
		http.Error(w, "X-User-ID header is required", http.StatusUnauthorized)
		return
	}
	id := chi.URLParam(r, "id")

	existing, err := s.repo.Get(r.Context(), id, owner)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	var req taskReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	task, errs := validate(req, time.Now())
	if errs != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": errs})
		return
	}
	task.ID = id
	task.OwnerID = owner

	updated, err := s.repo.Update(r.Context(), task)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := s.orch.Reconcile(r.Context(), updated, existing.ReminderConfig(), profileOf(req))
	writeJSON(w, http.StatusOK, toResp(updated, &out))
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if owner == "" {
		http.Error(w, "X-User-ID header is required", http.StatusUnauthorized)
		return
	}
	t, err := s.repo.Delete(r.Context(), chi.URLParam(r, "id"), owner)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.orch.HandleDelete(r.Context(), t)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) fireJob(w http.ResponseWriter, r *http.Request) {
	var p domain.JobPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if p.TaskID == "" {
		http.Error(w, "task_id is required", http.StatusBadRequest)
		return
	}

	res := s.worker.Deliver(r.Context(), p)
	code := http.StatusOK
	if res.AllFailed() {
		// Every attempted channel failed; let the scheduler's retry policy
		// take over.
		code = http.StatusInternalServerError
	}
	writeJSON(w, code, map[string]any{"task_id": p.TaskID, "result": res})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
