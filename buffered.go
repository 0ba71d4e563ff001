package sunvox

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// ErrBufferNotReady is returned by fill operations before the audio buffer
// is set up or after the worker has been killed.
var ErrBufferNotReady = errors.New("sunvox: audio buffer not ready")

type bufferState int

const (
	bufferCreated bufferState = iota
	bufferReady
	bufferKilled
)

// initEngine performs the user-audio-callback engine init shared by both
// buffered modes. The engine renders only when asked, one tick per fill.
func initEngine(p *Process, s *settings) error {
	flags := SV_INIT_FLAG_USER_AUDIO_CALLBACK | SV_INIT_FLAG_ONE_THREAD |
		SV_INIT_FLAG_NO_DEBUG_OUTPUT | s.format.initFlag() | s.extraFlags

	ret, err := p.Init("", s.rate, s.channels, flags)
	if err != nil {
		return err
	}
	if ret < 0 {
		return fmt.Errorf("sunvox: engine init returned %d", ret)
	}

	return nil
}

// BufferedProcess drives a worker in copy mode: every FillBuffer ships the
// optional input bytes to the worker, the worker renders one tick into its
// scratch buffer and ships the raw output bytes back. Simple and portable;
// the payload crosses the channel twice per tick.
type BufferedProcess struct {
	*Process
	log      *zap.Logger
	frames   int
	channels int
	format   Format

	mu    sync.Mutex
	state bufferState
}

// NewBufferedProcess spawns a worker and sets it up for copy-mode audio.
func NewBufferedProcess(opts ...Option) (*BufferedProcess, error) {
	s := newSettings(opts)

	p, err := NewProcess(opts...)
	if err != nil {
		return nil, err
	}

	b, err := setupBuffered(p, s)
	if err != nil {
		p.Kill()

		return nil, err
	}

	return b, nil
}

// ConnectBuffered sets up copy-mode audio over an existing connection whose
// far side is running Serve.
func ConnectBuffered(conn io.ReadWriteCloser, opts ...Option) (*BufferedProcess, error) {
	s := newSettings(opts)

	return setupBuffered(Connect(conn, opts...), s)
}

func setupBuffered(p *Process, s *settings) (*BufferedProcess, error) {
	b := &BufferedProcess{
		Process:  p,
		log:      s.logger,
		frames:   s.frames,
		channels: s.channels,
		format:   s.format,
	}

	if err := initEngine(p, s); err != nil {
		return nil, err
	}

	v, err := p.call(OpInitBuffer, IntValue(int64(s.frames)))
	if err != nil {
		return nil, err
	}
	if !v.Bool {
		return nil, errors.New("sunvox: worker rejected buffer setup")
	}

	b.state = bufferReady

	return b, nil
}

// BufferSize reports the byte length of one rendered tick.
func (b *BufferedProcess) BufferSize() int {
	return b.frames * b.channels * b.format.Bytes()
}

// FillBuffer renders one tick. input carries interleaved samples for the
// engine's input modules and may be nil when there is no capture source.
//
// A malformed worker reply does not fail the audio path: FillBuffer logs a
// warning and returns a zero-filled buffer of the expected size with a nil
// error, so a glitch costs one silent tick instead of a torn-down stream.
func (b *BufferedProcess) FillBuffer(input []byte) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != bufferReady {
		return nil, ErrBufferNotReady
	}

	want := b.BufferSize()

	v, err := b.call(OpFillBuffer, BytesValue(input))
	if err != nil {
		return nil, err
	}

	if v.Kind != KindBytes || len(v.Bytes) != want {
		b.log.Warn("malformed audio payload from worker, substituting silence",
			zap.Int("got", len(v.Bytes)),
			zap.Int("want", want))

		return make([]byte, want), nil
	}

	return v.Bytes, nil
}

// FillInt16 is FillBuffer for FormatInt16 streams, in samples.
func (b *BufferedProcess) FillInt16(input []int16) ([]int16, error) {
	out, err := b.FillBuffer(int16sToBytes(input))
	if err != nil {
		return nil, err
	}

	return bytesToInt16s(out), nil
}

// FillFloat32 is FillBuffer for FormatFloat32 streams, in samples.
func (b *BufferedProcess) FillFloat32(input []float32) ([]float32, error) {
	out, err := b.FillBuffer(float32sToBytes(input))
	if err != nil {
		return nil, err
	}

	return bytesToFloat32s(out), nil
}

// Kill stops the worker; fills after Kill return ErrBufferNotReady.
func (b *BufferedProcess) Kill() error {
	b.mu.Lock()
	b.state = bufferKilled
	b.mu.Unlock()

	return b.Process.Kill()
}

// ShmBufferedProcess drives a worker in shared-memory mode: input and output
// samples live in two file-backed regions mapped on both sides, and only
// (has input, frame count) crosses the channel per tick. The regions are
// sized for maxFrames so the tick size can vary without remapping.
type ShmBufferedProcess struct {
	*Process
	log       *zap.Logger
	in        *shmRegion
	out       *shmRegion
	frames    int
	maxFrames int
	channels  int
	format    Format

	mu    sync.Mutex
	state bufferState
}

// NewShmBufferedProcess spawns a worker and sets it up for shared-memory
// audio.
func NewShmBufferedProcess(opts ...Option) (*ShmBufferedProcess, error) {
	s := newSettings(opts)

	p, err := NewProcess(opts...)
	if err != nil {
		return nil, err
	}

	b, err := setupShmBuffered(p, s)
	if err != nil {
		p.Kill()

		return nil, err
	}

	return b, nil
}

// ConnectShmBuffered sets up shared-memory audio over an existing connection
// whose far side is running Serve. Both sides must share a filesystem.
func ConnectShmBuffered(conn io.ReadWriteCloser, opts ...Option) (*ShmBufferedProcess, error) {
	s := newSettings(opts)

	b, err := setupShmBuffered(Connect(conn, opts...), s)
	if err != nil {
		return nil, err
	}

	return b, nil
}

func setupShmBuffered(p *Process, s *settings) (*ShmBufferedProcess, error) {
	b := &ShmBufferedProcess{
		Process:   p,
		log:       s.logger,
		frames:    s.frames,
		maxFrames: s.maxFrames,
		channels:  s.channels,
		format:    s.format,
	}

	size := s.maxFrames * s.channels * s.format.Bytes()

	var err error
	if b.in, err = createShmRegion(size); err != nil {
		return nil, err
	}
	if b.out, err = createShmRegion(size); err != nil {
		b.in.Close()

		return nil, err
	}

	if err := initEngine(p, s); err != nil {
		b.release()

		return nil, err
	}

	// Paths travel over the channel exactly once; after this only tick
	// parameters do.
	v, err := p.call(OpInitShmBuffer,
		IntValue(int64(s.frames)), IntValue(int64(s.maxFrames)),
		StringValue(b.in.Path()), StringValue(b.out.Path()))
	if err != nil {
		b.release()

		return nil, err
	}
	if !v.Bool {
		b.release()

		return nil, errors.New("sunvox: worker rejected shared buffer setup")
	}

	b.state = bufferReady

	return b, nil
}

func (b *ShmBufferedProcess) release() {
	if b.in != nil {
		_ = b.in.Close()
	}
	if b.out != nil {
		_ = b.out.Close()
	}
}

// MaxFrames reports the region capacity in frames per tick.
func (b *ShmBufferedProcess) MaxFrames() int { return b.maxFrames }

// FillBuffer renders one tick of frames frames (the configured default when
// frames <= 0, clamped to MaxFrames). input, when non-nil, is copied into
// the input region first. The returned slice aliases the output region and
// is valid until the next fill; callers keeping it longer must copy.
func (b *ShmBufferedProcess) FillBuffer(input []byte, frames int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != bufferReady {
		return nil, ErrBufferNotReady
	}

	if frames <= 0 {
		frames = b.frames
	}
	if frames > b.maxFrames {
		frames = b.maxFrames
	}

	width := b.channels * b.format.Bytes()
	if input != nil {
		if len(input) > b.maxFrames*width {
			input = input[:b.maxFrames*width]
		}
		copy(b.in.data, input)
	}

	v, err := b.call(OpFillShmBuffer, BoolValue(input != nil), IntValue(int64(frames)))
	if err != nil {
		return nil, err
	}
	if !v.Bool {
		return nil, errors.New("sunvox: worker rejected fill")
	}

	return b.out.data[:frames*width], nil
}

// Kill stops the worker and tears the shared regions down. Teardown runs
// exactly once and is independent of engine deinit.
func (b *ShmBufferedProcess) Kill() error {
	b.mu.Lock()
	if b.state == bufferKilled {
		b.mu.Unlock()

		return nil
	}
	b.state = bufferKilled
	b.mu.Unlock()

	err := b.Process.Kill()
	b.release()

	return err
}
