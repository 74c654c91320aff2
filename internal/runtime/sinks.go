package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/tjfontaine/callscope/internal/appmap"
	"github.com/tjfontaine/callscope/internal/core/domain"
	"github.com/tjfontaine/callscope/internal/core/ports"
	"github.com/tjfontaine/callscope/internal/storage"
	"github.com/tjfontaine/callscope/internal/telemetry"
	"github.com/tjfontaine/callscope/internal/upload"
)

// storeSink persists finished recordings into the configured store. The
// store's lifecycle belongs to the Tracer; Close here is a no-op.
type storeSink struct {
	store   storage.RecordingStore
	backend string
}

func (s *storeSink) Flush(ctx context.Context, rec *domain.Recording) error {
	if err := s.store.SaveRecording(ctx, rec); err != nil {
		return fmt.Errorf("save recording: %w", err)
	}
	telemetry.RecordingSaved(s.backend)
	return nil
}

func (s *storeSink) Name() string { return "store/" + s.backend }
func (s *storeSink) Close() error { return nil }

// writerSink drops one AppMap file per recording into the output directory.
type writerSink struct {
	writer *appmap.Writer
}

func (s *writerSink) Flush(ctx context.Context, rec *domain.Recording) error {
	if _, err := s.writer.Write(rec); err != nil {
		return err
	}
	telemetry.RecordingSaved("appmap_file")
	return nil
}

func (s *writerSink) Name() string { return "appmap-file" }
func (s *writerSink) Close() error { return nil }

// uploadSink pushes recordings to the remote collector.
type uploadSink struct {
	client *upload.Client
}

func (s *uploadSink) Flush(ctx context.Context, rec *domain.Recording) error {
	_, err := s.client.Upload(ctx, rec)
	return err
}

func (s *uploadSink) Name() string { return "upload" }
func (s *uploadSink) Close() error { return nil }

// multiSink fans a recording out to every configured sink. A failing sink
// does not stop the others; the errors are joined.
type multiSink struct {
	sinks []ports.Sink
}

func (m *multiSink) Flush(ctx context.Context, rec *domain.Recording) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Flush(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m *multiSink) Name() string { return "multi" }

func (m *multiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
