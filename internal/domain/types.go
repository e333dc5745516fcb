package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Task statuses. The reminder engine never mutates status except for the
// overdue sweep.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusOverdue    = "overdue"
)

// Method is the reminder delivery channel selection.
type Method string

const (
	MethodEmail     Method = "email"
	MethodMessaging Method = "messaging"
	MethodBoth      Method = "both"
)

func ParseMethod(s string) (Method, error) {
	switch Method(strings.TrimSpace(strings.ToLower(s))) {
	case MethodEmail:
		return MethodEmail, nil
	case MethodMessaging:
		return MethodMessaging, nil
	case MethodBoth:
		return MethodBoth, nil
	}
	return "", fmt.Errorf("unknown reminder method %q", s)
}

type Task struct {
	ID                 string
	OwnerID            string
	Title              string
	Description        string
	Deadline           time.Time
	Status             string
	ReminderMethod     *Method
	ReminderDaysBefore int
	TargetContact      string
	TriggerHandleID    *string
	ReminderSentAt     *time.Time
	ReminderRev        int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ReminderConfig is the slice of task state the reconciler compares.
type ReminderConfig struct {
	Active     bool
	Method     Method
	Contact    string
	DaysBefore int
	Deadline   time.Time
}

func (t Task) ReminderConfig() ReminderConfig {
	if t.ReminderMethod == nil {
		return ReminderConfig{}
	}
	return ReminderConfig{
		Active:     true,
		Method:     *t.ReminderMethod,
		Contact:    t.TargetContact,
		DaysBefore: t.ReminderDaysBefore,
		Deadline:   t.Deadline,
	}
}

// Profile is the owner's stored contact info, used as fallback when the
// task-level contact is blank.
type Profile struct {
	Email       string
	Phone       string
	DisplayName string
}

type Recipients struct {
	Email string
	Phone string
}

// JobPayload is what the external scheduler stores and posts back at fire
// time. It is self-contained so a fired job can render and send even if the
// task row changed after scheduling.
type JobPayload struct {
	TaskID         string    `json:"task_id"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	Deadline       time.Time `json:"deadline"`
	RecipientEmail string    `json:"recipient_email,omitempty"`
	RecipientPhone string    `json:"recipient_phone,omitempty"`
	DisplayName    string    `json:"display_name"`
}

// ReminderSpec is the fully resolved schedule request, built fresh on every
// (re)schedule and never persisted.
type ReminderSpec struct {
	FireAt  time.Time
	Payload JobPayload
}

var (
	ErrNotFound         = errors.New("task not found")
	ErrContactInvalid   = errors.New("contact invalid for reminder method")
	ErrWindowPassed     = errors.New("reminder window passed")
	ErrSchedulingFailed = errors.New("scheduling failed")
	ErrSuperseded       = errors.New("reminder state superseded by newer mutation")
	ErrAlreadySent      = errors.New("reminder already sent")
)
