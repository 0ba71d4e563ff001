package sunvox

import (
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"math"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindString
	KindBytes
)

// Value is the single unit of data carried by the bridge protocol: one
// positional argument of a request, or the result of a response. It is a
// closed sum rather than an interface so the wire format stays explicit.
type Value struct {
	Kind  Kind
	Bool  bool
	Int   int64
	Str   string
	Bytes []byte
}

// NilValue returns the empty Value.
func NilValue() Value { return Value{Kind: KindNil} }

// IntValue wraps an integer as a Value.
func IntValue(v int64) Value { return Value{Kind: KindInt, Int: v} }

// BoolValue wraps a boolean as a Value.
func BoolValue(v bool) Value { return Value{Kind: KindBool, Bool: v} }

// StringValue wraps a string as a Value.
func StringValue(v string) Value { return Value{Kind: KindString, Str: v} }

// BytesValue wraps a byte slice as a Value. A nil slice becomes the nil
// Value, which the table treats as an absent optional bytes argument.
func BytesValue(v []byte) Value {
	if v == nil {
		return NilValue()
	}

	return Value{Kind: KindBytes, Bytes: v}
}

// Request is one operation invocation traveling from supervisor to worker.
type Request struct {
	Op   Op
	Args []Value
}

// Response is the single result traveling back from worker to supervisor.
// The protocol has no separate error channel: engine status codes are
// ordinary integer results, and a worker-side fault tears the bridge down.
type Response struct {
	Val Value
}

// Channel is one endpoint of the duplex message link between a Process and
// its worker. It is message-oriented and strictly half-duplex: the protocol
// admits at most one outstanding request, enforced by the supervisor's call
// lock, so Channel itself carries no synchronization.
type Channel struct {
	conn io.ReadWriteCloser
	enc  *gob.Encoder
	dec  *gob.Decoder
}

// NewChannel wraps a duplex byte stream as a bridge endpoint.
func NewChannel(conn io.ReadWriteCloser) *Channel {
	return &Channel{
		conn: conn,
		enc:  gob.NewEncoder(conn),
		dec:  gob.NewDecoder(conn),
	}
}

// SendRequest enqueues exactly one request.
func (c *Channel) SendRequest(req Request) error {
	if err := c.enc.Encode(req); err != nil {
		return fmt.Errorf("send %s request: %w", req.Op, err)
	}

	return nil
}

// ReceiveRequest blocks until the paired endpoint sends a request.
func (c *Channel) ReceiveRequest() (Request, error) {
	var req Request
	if err := c.dec.Decode(&req); err != nil {
		return Request{}, fmt.Errorf("receive request: %w", err)
	}

	return req, nil
}

// SendResponse enqueues exactly one response.
func (c *Channel) SendResponse(resp Response) error {
	if err := c.enc.Encode(resp); err != nil {
		return fmt.Errorf("send response: %w", err)
	}

	return nil
}

// ReceiveResponse blocks until the paired endpoint sends a response. There is
// no timeout at this layer; a hung worker blocks the caller until the Process
// deadline, if one was configured, gives up on the whole bridge.
func (c *Channel) ReceiveResponse() (Response, error) {
	var resp Response
	if err := c.dec.Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("receive response: %w", err)
	}

	return resp, nil
}

// Close closes the underlying stream.
func (c *Channel) Close() error {
	return c.conn.Close()
}

// checkArgs validates a request's argument list against the call table.
// A nil Value is accepted where bytes are expected, marking an absent
// optional buffer.
func checkArgs(op Op, args []Value) error {
	d, ok := CallTable[op]
	if !ok {
		return fmt.Errorf("unknown operation %d", int(op))
	}

	if len(args) != len(d.Args) {
		return fmt.Errorf("%s: got %d arguments, want %d", d.Name, len(args), len(d.Args))
	}

	for i, want := range d.Args {
		got := args[i].Kind
		if got == want {
			continue
		}
		if want == KindBytes && got == KindNil {
			continue
		}

		return fmt.Errorf("%s: argument %d has kind %d, want %d", d.Name, i, got, want)
	}

	return nil
}

// Slice payload codecs for the bulk query operations. Values cross the wire
// in the engine's native little-endian layout.

func uint32sToBytes(v []uint32) []byte {
	if len(v) == 0 {
		return nil
	}

	out := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(out[i*4:], x)
	}

	return out
}

func bytesToUint32s(raw []byte) []uint32 {
	out := make([]uint32, len(raw)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}

	return out
}

func int32sToBytes(v []int32) []byte {
	if len(v) == 0 {
		return nil
	}

	out := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(out[i*4:], uint32(x))
	}

	return out
}

func bytesToInt32s(raw []byte) []int32 {
	out := make([]int32, len(raw)/4)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(raw[i*4:]))
	}

	return out
}

func int16sToBytes(v []int16) []byte {
	if len(v) == 0 {
		return nil
	}

	out := make([]byte, len(v)*2)
	for i, x := range v {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(x))
	}

	return out
}

func bytesToInt16s(raw []byte) []int16 {
	out := make([]int16, len(raw)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}

	return out
}

func float32sToBytes(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}

	out := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(x))
	}

	return out
}

func bytesToFloat32s(raw []byte) []float32 {
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}

	return out
}
