package reminder

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"remindflow/internal/contact"
	"remindflow/internal/domain"
	"remindflow/internal/schedgw"
	"remindflow/internal/timing"
)

// Skip reasons reported when a mutation succeeds but no job was scheduled.
const (
	SkipWindowPassed     = "window_passed"
	SkipContactInvalid   = "contact_invalid"
	SkipSchedulingFailed = "scheduling_failed"
)

// HandleStore is the slice of the task repository the orchestrator writes.
type HandleStore interface {
	SetTriggerHandle(ctx context.Context, taskID string, handle *string, rev int64) error
}

// Outcome summarizes one reconciliation run for the mutation's response.
type Outcome struct {
	Action    Action
	Scheduled bool
	Collapsed bool
	FireAt    *time.Time
	HandleID  *string
	Skipped   string
}

// Orchestrator drives the reminder state transition for every task
// create, update, and delete.
type Orchestrator struct {
	store    HandleStore
	gateway  schedgw.Gateway
	contacts *contact.Resolver
	calc     *timing.Calculator
	timeout  time.Duration
	now      func() time.Time
}

func NewOrchestrator(store HandleStore, gw schedgw.Gateway, contacts *contact.Resolver, calc *timing.Calculator, timeout time.Duration) *Orchestrator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Orchestrator{
		store:    store,
		gateway:  gw,
		contacts: contacts,
		calc:     calc,
		timeout:  timeout,
		now:      time.Now,
	}
}

// Reconcile runs after the task row has been written. task is the post-write
// snapshot (new configuration, bumped rev, still-old handle); old is the
// configuration before the write. Every failure here degrades: the task
// mutation already succeeded and must stay successful.
func (o *Orchestrator) Reconcile(ctx context.Context, task domain.Task, old domain.ReminderConfig, profile domain.Profile) Outcome {
	newCfg := task.ReminderConfig()
	action := Diff(old, newCfg)
	out := Outcome{Action: action}

	if action == NoChange {
		return out
	}

	// Cancelling the stale job and building the new spec are independent
	// network paths; dispatch the cancel now and join before persisting.
	var cancelDone chan struct{}
	if action.NeedsCancel() && task.TriggerHandleID != nil {
		cancelDone = make(chan struct{})
		go o.cancel(*task.TriggerHandleID, task.ID, cancelDone)
	}

	if action.NeedsSchedule() {
		o.schedule(ctx, task, newCfg, profile, &out)
	}

	if cancelDone != nil {
		select {
		case <-cancelDone:
		case <-time.After(o.timeout):
			log.Warn().Str("task_id", task.ID).Msg("cancel of stale job timed out")
		}
	}

	o.persist(ctx, task, &out)
	return out
}

func (o *Orchestrator) schedule(ctx context.Context, task domain.Task, cfg domain.ReminderConfig, profile domain.Profile, out *Outcome) {
	sched, err := o.calc.Compute(cfg.Deadline, cfg.DaysBefore, o.now())
	if err != nil {
		if !errors.Is(err, domain.ErrWindowPassed) {
			log.Error().Err(err).Str("task_id", task.ID).Msg("fire time computation failed")
		}
		out.Skipped = SkipWindowPassed
		return
	}

	recipients, err := o.contacts.Resolve(cfg.Method, cfg.Contact, profile)
	if err != nil {
		log.Warn().Err(err).Str("task_id", task.ID).Msg("reminder recipients unresolvable")
		out.Skipped = SkipContactInvalid
		return
	}

	spec := domain.ReminderSpec{
		FireAt: sched.FireAt,
		Payload: domain.JobPayload{
			TaskID:         task.ID,
			Title:          task.Title,
			Description:    task.Description,
			Deadline:       task.Deadline,
			RecipientEmail: recipients.Email,
			RecipientPhone: recipients.Phone,
			DisplayName:    displayName(profile, task.OwnerID),
		},
	}

	sctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	handle, err := o.gateway.Schedule(sctx, spec.Payload, spec.FireAt)
	if err != nil {
		log.Error().Err(err).Str("task_id", task.ID).Time("fire_at", spec.FireAt).Msg("schedule call failed")
		out.Skipped = SkipSchedulingFailed
		return
	}

	out.Scheduled = true
	out.Collapsed = sched.Collapsed
	out.FireAt = &spec.FireAt
	out.HandleID = &handle
	log.Info().Str("task_id", task.ID).Str("handle_id", handle).
		Time("fire_at", spec.FireAt).Bool("collapsed", sched.Collapsed).Msg("reminder scheduled")
}

// persist writes the new handle (or nil) conditioned on the rev this run
// reconciled. Losing the race to a newer mutation means our result is
// stale: drop it and undo any job we just created.
func (o *Orchestrator) persist(ctx context.Context, task domain.Task, out *Outcome) {
	err := o.store.SetTriggerHandle(ctx, task.ID, out.HandleID, task.ReminderRev)
	if err == nil {
		return
	}
	if errors.Is(err, domain.ErrSuperseded) {
		log.Warn().Str("task_id", task.ID).Int64("rev", task.ReminderRev).Msg("handle write superseded by newer mutation")
		if out.HandleID != nil {
			done := make(chan struct{})
			go o.cancel(*out.HandleID, task.ID, done)
			<-done
		}
		out.Scheduled = false
		out.HandleID = nil
		return
	}
	log.Error().Err(err).Str("task_id", task.ID).Msg("persisting trigger handle failed")
}

// HandleDelete cancels any outstanding job for a task that was just
// removed. Best-effort: the deletion already succeeded.
func (o *Orchestrator) HandleDelete(ctx context.Context, task domain.Task) {
	if task.TriggerHandleID == nil {
		return
	}
	done := make(chan struct{})
	go o.cancel(*task.TriggerHandleID, task.ID, done)
	select {
	case <-done:
	case <-time.After(o.timeout):
		log.Warn().Str("task_id", task.ID).Msg("cancel on delete timed out")
	}
}

// cancel runs detached from the request context: a caller hanging up must
// not abort the cleanup of a job we own.
func (o *Orchestrator) cancel(handle, taskID string, done chan<- struct{}) {
	defer close(done)
	cctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()
	ok, err := o.gateway.Cancel(cctx, handle)
	if err != nil {
		log.Warn().Err(err).Str("task_id", taskID).Str("handle_id", handle).Msg("cancel call failed")
		return
	}
	log.Debug().Str("task_id", taskID).Str("handle_id", handle).Bool("stopped", ok).Msg("stale job cancel attempted")
}

func displayName(profile domain.Profile, ownerID string) string {
	if profile.DisplayName != "" {
		return profile.DisplayName
	}
	return ownerID
}
