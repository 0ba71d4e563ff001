package sunvox_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metrasynth/sunvox-go"
)

func TestValueConstructors(t *testing.T) {
	t.Parallel()

	assert.Equal(t, sunvox.KindNil, sunvox.NilValue().Kind)
	assert.Equal(t, sunvox.KindBool, sunvox.BoolValue(true).Kind)
	assert.Equal(t, sunvox.KindInt, sunvox.IntValue(42).Kind)
	assert.Equal(t, sunvox.KindString, sunvox.StringValue("x").Kind)
	assert.Equal(t, sunvox.KindBytes, sunvox.BytesValue([]byte{1}).Kind)

	// An absent optional buffer travels as nil, not as empty bytes.
	assert.Equal(t, sunvox.KindNil, sunvox.BytesValue(nil).Kind)
}

func TestChannelRoundtrip(t *testing.T) {
	t.Parallel()

	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})

	a := sunvox.NewChannel(client)
	b := sunvox.NewChannel(server)

	sent := sunvox.Request{
		Op: sunvox.OpLoadFromMemory,
		Args: []sunvox.Value{
			sunvox.IntValue(3),
			sunvox.BytesValue([]byte{0xDE, 0xAD, 0xBE, 0xEF}),
		},
	}

	go func() {
		req, err := b.ReceiveRequest()
		if err != nil {
			return
		}
		b.SendResponse(sunvox.Response{Val: sunvox.IntValue(int64(len(req.Args)))})
	}()

	require.NoError(t, a.SendRequest(sent))

	resp, err := a.ReceiveResponse()
	require.NoError(t, err)
	assert.Equal(t, int64(2), resp.Val.Int)
}

func TestChannelPreservesPayloads(t *testing.T) {
	t.Parallel()

	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})

	a := sunvox.NewChannel(client)
	b := sunvox.NewChannel(server)

	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = byte(i * 7)
	}

	received := make(chan sunvox.Request, 1)
	go func() {
		req, err := b.ReceiveRequest()
		if err != nil {
			close(received)
			return
		}
		received <- req
		b.SendResponse(sunvox.Response{Val: sunvox.BoolValue(true)})
	}()

	require.NoError(t, a.SendRequest(sunvox.Request{
		Op:   sunvox.OpLoadFromMemory,
		Args: []sunvox.Value{sunvox.IntValue(0), sunvox.BytesValue(payload)},
	}))

	_, err := a.ReceiveResponse()
	require.NoError(t, err)

	req, ok := <-received
	require.True(t, ok)
	require.Len(t, req.Args, 2)
	assert.Equal(t, payload, req.Args[1].Bytes)
}
