// Package schedule emits synthetic events on cron schedules.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/dukex/automata/pkg/protocol"
	"github.com/robfig/cron/v3"
)

// Schedule emits Identifier with Payload every time Cron fires.
type Schedule struct {
	Identifier string         `json:"identifier"        yaml:"identifier"`
	Cron       string         `json:"cron"              yaml:"cron"`
	Payload    map[string]any `json:"payload,omitempty" yaml:"payload,omitempty"`
}

func (s Schedule) Validate() error {
	if s.Identifier == "" {
		return errors.New("schedule identifier is required")
	}

	if s.Cron == "" {
		return fmt.Errorf("schedule %s: cron expression is required", s.Identifier)
	}

	_, err := cron.ParseStandard(s.Cron)
	if err != nil {
		return fmt.Errorf("schedule %s: invalid cron expression: %w", s.Identifier, err)
	}

	return nil
}

// ParseSchedules reads "identifier=cron" pairs separated by ";".
func ParseSchedules(value string) ([]Schedule, error) {
	var schedules []Schedule

	for _, entry := range strings.Split(value, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		identifier, expr, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("invalid schedule %q: expected identifier=cron", entry)
		}

		schedule := Schedule{Identifier: strings.TrimSpace(identifier), Cron: strings.TrimSpace(expr)}

		err := schedule.Validate()
		if err != nil {
			return nil, err
		}

		schedules = append(schedules, schedule)
	}

	return schedules, nil
}

// Source is a protocol.EventSource driven by robfig/cron.
type Source struct {
	schedules []Schedule
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	cron     *cron.Cron
	ctx      context.Context
	callback protocol.EventCallback
}

func NewSource(schedules []Schedule, logger *slog.Logger) (*Source, error) {
	for _, schedule := range schedules {
		err := schedule.Validate()
		if err != nil {
			return nil, err
		}
	}

	return &Source{
		schedules: schedules,
		logger:    logger.With("module", "schedule_source"),
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *Source) Start(ctx context.Context, callback protocol.EventCallback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return errors.New("schedule source already started")
	}

	cronLog := cronLogger{logger: s.logger}
	s.cron = cron.New(cron.WithLogger(cronLog), cron.WithChain(
		cron.SkipIfStillRunning(cronLog),
		cron.Recover(cronLog),
	))
	s.ctx = ctx
	s.callback = callback

	for _, schedule := range s.schedules {
		entryID, err := s.cron.AddFunc(schedule.Cron, func() { s.fire(schedule) })
		if err != nil {
			s.cron = nil

			return fmt.Errorf("failed to add cron job for %s: %w", schedule.Identifier, err)
		}

		s.logger.InfoContext(ctx, "Scheduled event", "identifier", schedule.Identifier, "cron", schedule.Cron, "entry", entryID)
	}

	s.cron.Start()

	return nil
}

func (s *Source) fire(schedule Schedule) {
	payload := make(map[string]any, len(schedule.Payload)+1)
	maps.Copy(payload, schedule.Payload)
	payload["scheduled_at"] = s.now().Format(time.RFC3339)

	err := s.callback(s.ctx, schedule.Identifier, payload)
	if err != nil {
		s.logger.ErrorContext(s.ctx, "Failed to emit scheduled event", "identifier", schedule.Identifier, "error", err)
	}
}

// Stop waits for running jobs to return or ctx to end.
func (s *Source) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
