package sweep

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// OverdueMarker is the slice of the task repository the sweep touches.
type OverdueMarker interface {
	MarkOverdue(ctx context.Context, now time.Time) (int, error)
}

// Service periodically flips past-deadline pending tasks to overdue.
type Service struct {
	store OverdueMarker
	cron  *cron.Cron
	spec  string
}

func NewService(store OverdueMarker, spec string) *Service {
	if spec == "" {
		spec = "@every 1m"
	}
	return &Service{store: store, cron: cron.New(), spec: spec}
}

// ValidateSpec checks a sweep cadence expression.
func ValidateSpec(spec string) error {
	_, err := cron.ParseStandard(spec)
	return err
}

// Run blocks until ctx is done, sweeping on the configured cadence.
func (s *Service) Run(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.pass() }); err != nil {
		return err
	}
	s.cron.Start()
	log.Info().Str("spec", s.spec).Msg("overdue sweep started")

	<-ctx.Done()
	stopped := s.cron.Stop()
	<-stopped.Done()
	return nil
}

func (s *Service) pass() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	n, err := s.store.MarkOverdue(ctx, time.Now())
	if err != nil {
		log.Error().Err(err).Msg("overdue sweep failed")
		return
	}
	if n > 0 {
		log.Info().Int("marked", n).Msg("tasks marked overdue")
	}
}
