package sunvox

import (
	"time"

	"go.uber.org/zap"
)

// settings collects everything configurable about a bridge instance. The
// zero values are filled in by newSettings; every knob has an Option.
type settings struct {
	rate       int
	channels   int
	frames     int
	maxFrames  int
	format     Format
	extraFlags InitFlag
	logger     *zap.Logger
	timeout    time.Duration
	library    string
}

// Option configures a Process or one of the buffered layers on top of it.
type Option func(*settings)

func newSettings(opts []Option) *settings {
	s := &settings{
		rate:     44100,
		channels: 2,
		format:   FormatFloat32,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.frames == 0 {
		s.frames = s.rate / 60
	}
	if s.maxFrames == 0 {
		// Headroom for variable tick sizes in shared-memory mode.
		s.maxFrames = s.frames + s.frames/2
	}
	if s.maxFrames < s.frames {
		s.maxFrames = s.frames
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	return s
}

// WithSampleRate sets the engine sample rate in Hz. The minimum the engine
// accepts is 44100.
func WithSampleRate(rate int) Option {
	return func(s *settings) { s.rate = rate }
}

// WithChannels sets the number of interleaved audio channels.
func WithChannels(channels int) Option {
	return func(s *settings) { s.channels = channels }
}

// WithFormat selects the sample format exchanged with the engine.
func WithFormat(format Format) Option {
	return func(s *settings) { s.format = format }
}

// WithFrames sets the number of frames rendered per fill. Defaults to one
// sixtieth of the sample rate.
func WithFrames(frames int) Option {
	return func(s *settings) { s.frames = frames }
}

// WithMaxFrames caps variable-size fills in shared-memory mode; requests
// beyond it are clamped. Defaults to 1.5x the per-fill frame count.
func WithMaxFrames(frames int) Option {
	return func(s *settings) { s.maxFrames = frames }
}

// WithExtraFlags ORs additional engine init flags into the ones the
// buffered layers set themselves.
func WithExtraFlags(flags InitFlag) Option {
	return func(s *settings) { s.extraFlags = flags }
}

// WithLogger attaches a logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithCallTimeout bounds how long a caller waits for the worker's response.
// Zero, the default, waits forever, matching the engine's own blocking
// behavior. When a call times out the bridge is left desynchronized, so the
// Process is marked broken and every later call fails with ErrWorkerTimeout.
func WithCallTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithLibraryPath tells the spawned worker which SunVox library file to
// load, overriding environment-based discovery.
func WithLibraryPath(path string) Option {
	return func(s *settings) { s.library = path }
}
