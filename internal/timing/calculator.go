package timing

import (
	"fmt"
	"time"

	"remindflow/internal/domain"
)

// DefaultLocation is the civil timezone all fire-time arithmetic uses
// (UTC+7, western Indonesia). A fixed zone avoids a tzdata dependency.
var DefaultLocation = time.FixedZone("WIB", 7*60*60)

// Schedule is the outcome of fire-time computation. Collapsed is set when
// the requested offset already passed and the fire time was substituted
// with the deadline itself.
type Schedule struct {
	FireAt    time.Time
	Collapsed bool
}

// Location builds the fixed civil zone for a whole-hour UTC offset.
func Location(offsetHours int) *time.Location {
	if offsetHours == 7 {
		return DefaultLocation
	}
	return time.FixedZone(fmt.Sprintf("UTC%+d", offsetHours), offsetHours*60*60)
}

type Calculator struct {
	loc *time.Location
}

func NewCalculator(loc *time.Location) *Calculator {
	if loc == nil {
		loc = DefaultLocation
	}
	return &Calculator{loc: loc}
}

// Compute derives the absolute fire time: deadline minus daysBefore civil
// days. A fire time already in the past collapses to the deadline as long
// as the deadline itself is still ahead; a past deadline is refused with
// domain.ErrWindowPassed.
func (c *Calculator) Compute(deadline time.Time, daysBefore int, now time.Time) (Schedule, error) {
	if !deadline.After(now) {
		return Schedule{}, domain.ErrWindowPassed
	}
	fireAt := deadline.In(c.loc).AddDate(0, 0, -daysBefore)
	if fireAt.After(now) {
		return Schedule{FireAt: fireAt}, nil
	}
	return Schedule{FireAt: deadline.In(c.loc), Collapsed: true}, nil
}

func (c *Calculator) Location() *time.Location { return c.loc }
