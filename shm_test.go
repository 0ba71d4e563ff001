package sunvox_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metrasynth/sunvox-go"
)

func startShmBuffered(t *testing.T, opts ...sunvox.Option) (*sunvox.ShmBufferedProcess, *stubEngine) {
	t.Helper()

	client, server := net.Pipe()
	eng := newStubEngine()

	go sunvox.Serve(server, eng, opts...)

	b, err := sunvox.ConnectShmBuffered(client, opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		b.Kill()
		client.Close()
		server.Close()
	})

	return b, eng
}

func TestShmFill(t *testing.T) {
	t.Parallel()

	const frames = 256
	b, eng := startShmBuffered(t, sunvox.WithFrames(frames))

	out, err := b.FillBuffer(nil, 0)
	require.NoError(t, err)
	require.Len(t, out, frames*2*4)

	for i, v := range out[:128] {
		require.Equal(t, byte(i%251), v, "rendered byte %d", i)
	}
	assert.Equal(t, 1, eng.fillCalls)
}

func TestShmFillWithInput(t *testing.T) {
	t.Parallel()

	const frames = 64
	b, _ := startShmBuffered(t, sunvox.WithFrames(frames))

	input := make([]byte, frames*2*4)
	for i := range input {
		input[i] = 0x33
	}

	out, err := b.FillBuffer(input, frames)
	require.NoError(t, err)
	assert.Equal(t, input, out, "input crosses through the shared regions")
}

// The per-tick frame count can vary, but never beyond the mapped capacity.
func TestShmFrameClamping(t *testing.T) {
	t.Parallel()

	b, _ := startShmBuffered(t,
		sunvox.WithFrames(100),
		sunvox.WithMaxFrames(150))

	assert.Equal(t, 150, b.MaxFrames())

	out, err := b.FillBuffer(nil, 64)
	require.NoError(t, err)
	assert.Len(t, out, 64*2*4)

	out, err = b.FillBuffer(nil, 0)
	require.NoError(t, err)
	assert.Len(t, out, 100*2*4, "zero frames means the configured default")

	out, err = b.FillBuffer(nil, 10000)
	require.NoError(t, err)
	assert.Len(t, out, 150*2*4, "oversized requests clamp to the region capacity")
}

func TestShmFillAfterKill(t *testing.T) {
	t.Parallel()

	b, _ := startShmBuffered(t, sunvox.WithFrames(64))

	require.NoError(t, b.Kill())
	require.NoError(t, b.Kill(), "kill is idempotent")

	_, err := b.FillBuffer(nil, 0)
	assert.ErrorIs(t, err, sunvox.ErrBufferNotReady)
}
