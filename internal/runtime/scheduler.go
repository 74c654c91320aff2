package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tjfontaine/callscope/internal/core/domain"
	"github.com/tjfontaine/callscope/internal/record"
)

// scheduler opens recording windows on a cron schedule so a long-running
// process gets periodic samples without operator involvement.
type scheduler struct {
	cron     *cron.Cron
	recorder *record.Recorder
	flush    func(context.Context, *domain.Recording)
	window   time.Duration
	app      string
	now      func() time.Time
	logger   *slog.Logger
	ctx      context.Context
}

type schedulerConfig struct {
	recorder *record.Recorder
	flush    func(context.Context, *domain.Recording)
	spec     string
	window   time.Duration
	app      string
	now      func() time.Time
	logger   *slog.Logger
	ctx      context.Context
}

func newScheduler(cfg schedulerConfig) (*scheduler, error) {
	s := &scheduler{
		cron:     cron.New(),
		recorder: cfg.recorder,
		flush:    cfg.flush,
		window:   cfg.window,
		app:      cfg.app,
		now:      cfg.now,
		logger:   cfg.logger,
		ctx:      cfg.ctx,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.ctx == nil {
		s.ctx = context.Background()
	}

	if _, err := s.cron.AddFunc(cfg.spec, s.capture); err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", cfg.spec, err)
	}
	return s, nil
}

func (s *scheduler) start() {
	s.cron.Start()
	s.logger.Info("capture scheduler started", slog.Duration("window", s.window))
}

// stop halts the schedule and waits for a window already in progress.
func (s *scheduler) stop() {
	<-s.cron.Stop().Done()
}

// capture runs one scheduled recording window. Operator-initiated sessions
// win: an active session skips the tick, and a session that replaced ours
// mid-window is left alone.
func (s *scheduler) capture() {
	if s.recorder.Active() {
		s.logger.Info("skipping scheduled capture, a session is already active")
		return
	}

	hostname, _ := os.Hostname()
	meta := domain.Metadata{
		Name:         "scheduled-" + s.now().UTC().Format("20060102-150405"),
		App:          s.app,
		RecorderName: "capture schedule",
		RecorderType: domain.RecorderTypeScheduled,
		Hostname:     hostname,
	}
	if err := s.recorder.Start(meta); err != nil {
		// Lost the start race to an operator.
		s.logger.Info("skipping scheduled capture", slog.String("reason", err.Error()))
		return
	}
	sessionID := s.recorder.SessionID()

	timer := time.NewTimer(s.window)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-s.ctx.Done():
	}

	if s.recorder.SessionID() != sessionID {
		s.logger.Warn("scheduled session replaced during window",
			slog.String("session_id", sessionID))
		return
	}

	rec, err := s.recorder.Stop()
	if err != nil {
		s.logger.Warn("failed to stop scheduled session", slog.String("error", err.Error()))
		return
	}

	s.flush(s.ctx, rec)
	s.logger.Info("scheduled capture complete",
		slog.String("recording_id", rec.ID),
		slog.String("name", rec.Metadata.Name),
		slog.Int("events", len(rec.Events)))
}
