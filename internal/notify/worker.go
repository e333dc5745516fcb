package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"remindflow/internal/domain"
	"remindflow/internal/retry"
)

// Sender delivers one rendered message on one channel.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SentMarks is the slice of the task repository the worker touches.
type SentMarks interface {
	ReminderSent(ctx context.Context, taskID string) (bool, error)
	MarkReminderSent(ctx context.Context, taskID string, at time.Time) error
}

type ChannelStatus string

const (
	StatusSent    ChannelStatus = "sent"
	StatusFailed  ChannelStatus = "failed"
	StatusSkipped ChannelStatus = "skipped"
)

type ChannelResult struct {
	Status ChannelStatus `json:"status"`
	Error  string        `json:"error,omitempty"`
}

// Result is the per-channel outcome of one delivery job.
type Result struct {
	Email     ChannelResult `json:"email"`
	Messaging ChannelResult `json:"messaging"`
}

func (r Result) AnySuccess() bool {
	return r.Email.Status == StatusSent || r.Messaging.Status == StatusSent
}

// AllFailed reports that every attempted channel failed and none succeeded.
func (r Result) AllFailed() bool {
	return !r.AnySuccess() &&
		(r.Email.Status == StatusFailed || r.Messaging.Status == StatusFailed)
}

// Worker is the job body the external scheduler invokes at fire time.
type Worker struct {
	email       Sender
	messaging   Sender
	marks       SentMarks
	renderer    *Renderer
	attempts    int
	backoff     time.Duration
	markTimeout time.Duration
	now         func() time.Time
}

func NewWorker(email, messaging Sender, marks SentMarks, renderer *Renderer) *Worker {
	return &Worker{
		email:       email,
		messaging:   messaging,
		marks:       marks,
		renderer:    renderer,
		attempts:    3,
		backoff:     time.Second,
		markTimeout: 3 * time.Second,
		now:         time.Now,
	}
}

// Deliver sends the reminder on every channel that has a recipient. The
// channels run concurrently and fail independently; one success is enough
// to mark the task reminded. A task already marked is not re-sent, so a
// scheduler retry after partial success stays a no-op.
func (w *Worker) Deliver(ctx context.Context, p domain.JobPayload) Result {
	var res Result
	res.Email = ChannelResult{Status: StatusSkipped}
	res.Messaging = ChannelResult{Status: StatusSkipped}

	if sent, err := w.marks.ReminderSent(ctx, p.TaskID); err != nil {
		log.Warn().Err(err).Str("task_id", p.TaskID).Msg("sent-marker lookup failed, delivering anyway")
	} else if sent {
		log.Info().Str("task_id", p.TaskID).Msg("reminder already sent, skipping delivery")
		return res
	}

	var wg sync.WaitGroup
	if p.RecipientEmail != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			subject, body := w.renderer.Email(p)
			res.Email = w.send(ctx, w.email, p.RecipientEmail, subject, body)
		}()
	}
	if p.RecipientPhone != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body := w.renderer.Message(p)
			res.Messaging = w.send(ctx, w.messaging, p.RecipientPhone, "", body)
		}()
	}
	wg.Wait()

	log.Info().Str("task_id", p.TaskID).
		Str("email", string(res.Email.Status)).
		Str("messaging", string(res.Messaging.Status)).
		Msg("reminder delivery finished")

	if res.AnySuccess() {
		mctx, cancel := context.WithTimeout(ctx, w.markTimeout)
		defer cancel()
		if err := w.marks.MarkReminderSent(mctx, p.TaskID, w.now()); err != nil {
			log.Warn().Err(err).Str("task_id", p.TaskID).Msg("marking reminder sent failed")
		}
	}
	return res
}

func (w *Worker) send(ctx context.Context, s Sender, to, subject, body string) ChannelResult {
	err := retry.Do(ctx, w.attempts, w.backoff, func(ctx context.Context) error {
		return s.Send(ctx, to, subject, body)
	})
	if err != nil {
		log.Warn().Err(err).Str("to", to).Msg("channel send failed")
		return ChannelResult{Status: StatusFailed, Error: err.Error()}
	}
	return ChannelResult{Status: StatusSent}
}
