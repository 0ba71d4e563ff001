package sunvox_test

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metrasynth/sunvox-go"
)

// The engine reads pattern events as packed 8-byte records; the struct
// layout is part of the wire contract with the native side.
func TestNoteLayout(t *testing.T) {
	t.Parallel()

	var n sunvox.Note

	require.Equal(t, uintptr(8), unsafe.Sizeof(n))
	assert.Equal(t, uintptr(0), unsafe.Offsetof(n.NN))
	assert.Equal(t, uintptr(1), unsafe.Offsetof(n.VV))
	assert.Equal(t, uintptr(2), unsafe.Offsetof(n.MM))
	assert.Equal(t, uintptr(4), unsafe.Offsetof(n.Ctl))
	assert.Equal(t, uintptr(6), unsafe.Offsetof(n.CtlVal))
}

func TestPackModuleXY(t *testing.T) {
	t.Parallel()

	cases := []struct{ x, y int }{
		{0, 0},
		{512, 512},
		{1023, 1},
		{-100, -200},
	}

	for _, tc := range cases {
		packed := sunvox.PackModuleXY(tc.x, tc.y)
		x, y := sunvox.UnpackModuleXY(packed)
		assert.Equal(t, tc.x, x, "x roundtrip for (%d, %d)", tc.x, tc.y)
		assert.Equal(t, tc.y, y, "y roundtrip for (%d, %d)", tc.x, tc.y)
	}
}

func TestUnpackModuleFinetune(t *testing.T) {
	t.Parallel()

	finetune, relative := sunvox.UnpackModuleFinetune(0)
	assert.Equal(t, 0, finetune)
	assert.Equal(t, 0, relative)

	// Both halves are signed 16-bit values.
	packed := uint32(0xFF38)<<16 | 0x0100
	finetune, relative = sunvox.UnpackModuleFinetune(packed)
	assert.Equal(t, 0x0100, finetune)
	assert.Equal(t, -200, relative)
}

func TestPitchFrequencyConversion(t *testing.T) {
	t.Parallel()

	// Pitch 30720 is the engine's reference point, C0 at 16.3339 Hz.
	assert.InDelta(t, 16.3339, sunvox.PitchToFrequency(30720), 0.0001)

	// One octave is 3072 pitch units down.
	assert.InDelta(t, 32.6678, sunvox.PitchToFrequency(30720-3072), 0.0001)

	for _, pitch := range []int{30720, 27648, 24576, 15360} {
		back := sunvox.FrequencyToPitch(sunvox.PitchToFrequency(pitch))
		assert.InDelta(t, pitch, back, 1, "pitch %d should survive the roundtrip", pitch)
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 2, sunvox.FormatInt16.Bytes())
	assert.Equal(t, 4, sunvox.FormatFloat32.Bytes())
	assert.Equal(t, "int16", sunvox.FormatInt16.String())
	assert.Equal(t, "float32", sunvox.FormatFloat32.String())
}
