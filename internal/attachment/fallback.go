package attachment

import (
	"context"
	"fmt"
	"log/slog"
)

// FallbackSink saves to primary and retries on secondary when primary fails.
type FallbackSink struct {
	primary   Sink
	secondary Sink
	logger    *slog.Logger
	recorder  Recorder
}

// NewFallbackSink constructs a FallbackSink. recorder may be nil.
func NewFallbackSink(primary, secondary Sink, logger *slog.Logger, recorder Recorder) *FallbackSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackSink{primary: primary, secondary: secondary, logger: logger, recorder: recorder}
}

// Name implements Sink.
func (s *FallbackSink) Name() string {
	return s.primary.Name() + "+" + s.secondary.Name()
}

// Save implements Sink.
func (s *FallbackSink) Save(ctx context.Context, folder string, up Upload) (string, error) {
	ref, err := s.primary.Save(ctx, folder, up)
	s.observe(s.primary.Name(), err)
	if err == nil {
		return ref, nil
	}
	s.logger.Warn("attachment primary sink failed, using fallback",
		slog.String("sink", s.primary.Name()),
		slog.String("file", up.Filename),
		slog.Any("error", err))
	ref, ferr := s.secondary.Save(ctx, folder, up)
	s.observe(s.secondary.Name(), ferr)
	if ferr != nil {
		return "", fmt.Errorf("attachment: primary: %v; fallback: %w", err, ferr)
	}
	return ref, nil
}

func (s *FallbackSink) observe(name string, err error) {
	if s.recorder != nil {
		s.recorder.ObserveAttachment(name, err)
	}
}

type observedSink struct {
	Sink
	recorder Recorder
}

func (s observedSink) Save(ctx context.Context, folder string, up Upload) (string, error) {
	ref, err := s.Sink.Save(ctx, folder, up)
	s.recorder.ObserveAttachment(s.Sink.Name(), err)
	return ref, err
}

// Options selects and configures the sink returned by FromConfig.
type Options struct {
	Driver     string
	Dir        string
	PublicBase string
	OSS        OSSOptions
}

// FromConfig returns OSS with a disk fallback when OSS is selected and configured,
// and the disk sink otherwise. The disk sink is always returned for static serving.
func FromConfig(opts Options, logger *slog.Logger, recorder Recorder) (Sink, *DiskSink, error) {
	disk := NewDiskSink(opts.Dir, opts.PublicBase)
	if opts.Driver != "oss" || !opts.OSS.Configured() {
		if opts.Driver == "oss" && logger != nil {
			logger.Warn("oss attachment driver selected without credentials, storing on disk")
		}
		if recorder == nil {
			return disk, disk, nil
		}
		return observedSink{Sink: disk, recorder: recorder}, disk, nil
	}
	primary, err := NewOSSSink(opts.OSS)
	if err != nil {
		return nil, nil, err
	}
	return NewFallbackSink(primary, disk, logger, recorder), disk, nil
}
