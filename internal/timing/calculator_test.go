package timing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindflow/internal/domain"
)

func TestComputeExactOffset(t *testing.T) {
	c := NewCalculator(nil)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, DefaultLocation)
	deadline := now.AddDate(0, 0, 10)

	sched, err := c.Compute(deadline, 3, now)
	require.NoError(t, err)
	assert.False(t, sched.Collapsed)
	assert.True(t, sched.FireAt.Equal(deadline.AddDate(0, 0, -3)))
}

func TestComputeZeroDaysFiresAtDeadline(t *testing.T) {
	c := NewCalculator(nil)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, DefaultLocation)
	deadline := now.Add(time.Hour)

	sched, err := c.Compute(deadline, 0, now)
	require.NoError(t, err)
	assert.False(t, sched.Collapsed)
	assert.True(t, sched.FireAt.Equal(deadline))
}

func TestComputeCollapsesToDeadline(t *testing.T) {
	c := NewCalculator(nil)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, DefaultLocation)
	deadline := now.Add(time.Hour) // daysBefore=2 lands in the past

	sched, err := c.Compute(deadline, 2, now)
	require.NoError(t, err)
	assert.True(t, sched.Collapsed)
	assert.True(t, sched.FireAt.Equal(deadline))
}

func TestComputeRefusesPastDeadline(t *testing.T) {
	c := NewCalculator(nil)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, DefaultLocation)

	_, err := c.Compute(now.Add(-time.Minute), 0, now)
	assert.ErrorIs(t, err, domain.ErrWindowPassed)

	_, err = c.Compute(now, 0, now)
	assert.ErrorIs(t, err, domain.ErrWindowPassed)
}

func TestComputeUsesCivilDays(t *testing.T) {
	// Deadline expressed in UTC still subtracts whole civil days in the
	// fixed zone, not 24h blocks across a zone conversion.
	c := NewCalculator(nil)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	deadline := time.Date(2026, 3, 10, 18, 30, 0, 0, time.UTC)

	sched, err := c.Compute(deadline, 5, now)
	require.NoError(t, err)
	want := deadline.In(DefaultLocation).AddDate(0, 0, -5)
	assert.True(t, sched.FireAt.Equal(want))
	assert.Equal(t, "WIB", sched.FireAt.Location().String())
}

func TestLocation(t *testing.T) {
	assert.Equal(t, DefaultLocation, Location(7))
	loc := Location(9)
	assert.Equal(t, "UTC+9", loc.String())
}
