package reminder

import (
	"strings"

	"remindflow/internal/contact"
	"remindflow/internal/domain"
)

// Action is the reconciliation decision for one task mutation.
type Action int

const (
	NoChange Action = iota
	Activated
	Deactivated
	Reconfigured
)

func (a Action) String() string {
	switch a {
	case Activated:
		return "activated"
	case Deactivated:
		return "deactivated"
	case Reconfigured:
		return "reconfigured"
	}
	return "no_change"
}

// NeedsCancel reports whether the old scheduled job must be cancelled.
func (a Action) NeedsCancel() bool { return a == Deactivated || a == Reconfigured }

// NeedsSchedule reports whether a new job must be scheduled.
func (a Action) NeedsSchedule() bool { return a == Activated || a == Reconfigured }

// Diff compares the prior and new reminder configuration of a task.
// Contact comparison runs on normalized parts and deadline comparison on
// instants, so formatting noise never forces a reschedule.
func Diff(old, new domain.ReminderConfig) Action {
	switch {
	case !old.Active && !new.Active:
		return NoChange
	case old.Active && !new.Active:
		return Deactivated
	case !old.Active && new.Active:
		return Activated
	}
	if old.Method != new.Method ||
		normalizeContact(old.Contact) != normalizeContact(new.Contact) ||
		old.DaysBefore != new.DaysBefore ||
		!old.Deadline.Equal(new.Deadline) {
		return Reconfigured
	}
	return NoChange
}

func normalizeContact(c string) string {
	parts := strings.Split(c, contact.Separator)
	for i, p := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return strings.Join(parts, contact.Separator)
}
