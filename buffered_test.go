package sunvox_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/metrasynth/sunvox-go"
)

func startBuffered(t *testing.T, opts ...sunvox.Option) (*sunvox.BufferedProcess, *stubEngine) {
	t.Helper()

	client, server := net.Pipe()
	eng := newStubEngine()

	go sunvox.Serve(server, eng, opts...)

	b, err := sunvox.ConnectBuffered(client, opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		b.Kill()
		client.Close()
		server.Close()
	})

	return b, eng
}

func TestBufferedFill(t *testing.T) {
	t.Parallel()

	b, eng, frames := startBufferedDefault(t)

	assert.Equal(t, 1, eng.initCalls)
	assert.NotZero(t, eng.initFlags&sunvox.SV_INIT_FLAG_USER_AUDIO_CALLBACK)
	assert.NotZero(t, eng.initFlags&sunvox.SV_INIT_FLAG_ONE_THREAD)

	out, err := b.FillBuffer(nil)
	require.NoError(t, err)
	require.Len(t, out, frames*2*4)

	for i, v := range out[:256] {
		require.Equal(t, byte(i%251), v, "rendered byte %d", i)
	}
	assert.Equal(t, 1, eng.fillCalls)
}

func startBufferedDefault(t *testing.T) (*sunvox.BufferedProcess, *stubEngine, int) {
	t.Helper()

	const frames = 256
	b, eng := startBuffered(t, sunvox.WithFrames(frames))

	return b, eng, frames
}

func TestBufferedFillWithInput(t *testing.T) {
	t.Parallel()

	b, _, frames := startBufferedDefault(t)

	input := make([]byte, frames*2*4)
	for i := range input {
		input[i] = 0x42
	}

	out, err := b.FillBuffer(input)
	require.NoError(t, err)
	require.Len(t, out, len(input))
	assert.Equal(t, input, out, "stub echoes input through the render path")
}

func TestBufferedFillInt16(t *testing.T) {
	t.Parallel()

	const frames = 64
	b, _ := startBuffered(t,
		sunvox.WithFrames(frames),
		sunvox.WithFormat(sunvox.FormatInt16))

	out, err := b.FillInt16(nil)
	require.NoError(t, err)
	assert.Len(t, out, frames*2)
}

func TestBufferedFillAfterKill(t *testing.T) {
	t.Parallel()

	b, _, _ := startBufferedDefault(t)

	require.NoError(t, b.Kill())

	_, err := b.FillBuffer(nil)
	assert.ErrorIs(t, err, sunvox.ErrBufferNotReady)
}

// A worker reply of the wrong shape must not kill the audio path. The
// supervisor substitutes one tick of silence and logs a warning.
func TestBufferedMalformedPayload(t *testing.T) {
	t.Parallel()

	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})

	// A raw responder standing in for a worker that answers the fill op
	// with a truncated payload.
	ch := sunvox.NewChannel(server)
	go func() {
		for {
			req, err := ch.ReceiveRequest()
			if err != nil {
				return
			}

			var val sunvox.Value
			switch req.Op {
			case sunvox.OpInit:
				val = sunvox.IntValue(0)
			case sunvox.OpInitBuffer:
				val = sunvox.BoolValue(true)
			case sunvox.OpFillBuffer:
				val = sunvox.BytesValue([]byte{1, 2, 3})
			default:
				val = sunvox.IntValue(0)
			}

			if err := ch.SendResponse(sunvox.Response{Val: val}); err != nil {
				return
			}
		}
	}()

	core, logs := observer.New(zap.WarnLevel)

	const frames = 128
	b, err := sunvox.ConnectBuffered(client,
		sunvox.WithFrames(frames),
		sunvox.WithLogger(zap.New(core)))
	require.NoError(t, err)

	out, err := b.FillBuffer(nil)
	require.NoError(t, err, "degraded fill must not error")
	require.Len(t, out, frames*2*4, "silence still has the expected size")
	for _, v := range out {
		require.Zero(t, v)
	}

	assert.Equal(t, 1, logs.FilterMessage("malformed audio payload from worker, substituting silence").Len())
}

// Full offline render flow against the stub: init, load a project into a
// slot, play, pull a run of ticks, then tear everything down.
func TestOfflineRenderFlow(t *testing.T) {
	t.Parallel()

	b, eng, frames := startBufferedDefault(t)

	slot, err := sunvox.NewSlot(b.Process)
	require.NoError(t, err)

	project := []byte("SVOXfake project")
	ret, err := slot.LoadFromMemory(project)
	require.NoError(t, err)
	require.Zero(t, ret)

	_, err = slot.PlayFromBeginning()
	require.NoError(t, err)

	const ticks = 4
	for i := 0; i < ticks; i++ {
		out, err := b.FillBuffer(nil)
		require.NoError(t, err, "tick %d", i)
		require.Len(t, out, frames*2*4, "tick %d", i)
	}

	_, err = slot.Stop()
	require.NoError(t, err)
	require.NoError(t, slot.Close())

	_, err = b.Deinit()
	require.NoError(t, err)
	require.NoError(t, b.Kill())

	require.Len(t, eng.loadMemory, 1)
	assert.Equal(t, project, eng.loadMemory[0])
	assert.Equal(t, 1, eng.playCalls[0])
	assert.Equal(t, ticks, eng.fillCalls)
	assert.Equal(t, 1, eng.deinitCalls)
}
