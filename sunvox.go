// Package sunvox provides a Go interface to the SunVox modular synthesizer
// library. The pre-built SunVox engine keeps process-global state and supports
// only a fixed number of song slots, so this package runs the engine inside a
// dedicated worker process and bridges every call over a message channel. A
// host program may create several independent Process instances, each backed
// by its own worker and its own copy of the engine state.
package sunvox

// MaxSlots is the number of engine slots a single worker process supports.
// It mirrors the limit built into the SunVox library itself.
const MaxSlots = 4

// InitFlag defines flags for engine initialization.
// These values correspond to the SV_INIT_FLAG_* constants in sunvox.h.
type InitFlag uint32

const (
	// SV_INIT_FLAG_NO_DEBUG_OUTPUT suppresses the engine's debug log.
	SV_INIT_FLAG_NO_DEBUG_OUTPUT InitFlag = 1 << 0
	// SV_INIT_FLAG_USER_AUDIO_CALLBACK disables the engine's own sound card
	// interaction; audio is pulled through the audio callback entry points.
	SV_INIT_FLAG_USER_AUDIO_CALLBACK InitFlag = 1 << 1
	// SV_INIT_FLAG_AUDIO_INT16 selects 16-bit signed integer samples.
	SV_INIT_FLAG_AUDIO_INT16 InitFlag = 1 << 2
	// SV_INIT_FLAG_AUDIO_FLOAT32 selects 32-bit floating point samples.
	SV_INIT_FLAG_AUDIO_FLOAT32 InitFlag = 1 << 3
	// SV_INIT_FLAG_ONE_THREAD keeps the audio callback and song modification
	// functions on a single thread.
	SV_INIT_FLAG_ONE_THREAD InitFlag = 1 << 4
)

// ModuleFlag describes bits returned by the module flags query.
// These values correspond to the SV_MODULE_* constants.
type ModuleFlag uint32

const (
	SV_MODULE_FLAG_EXISTS ModuleFlag = 1 << 0
	SV_MODULE_FLAG_EFFECT ModuleFlag = 1 << 1

	SV_MODULE_INPUTS_OFF  = 16
	SV_MODULE_INPUTS_MASK = ModuleFlag(255 << SV_MODULE_INPUTS_OFF)

	SV_MODULE_OUTPUTS_OFF  = 16 + 8
	SV_MODULE_OUTPUTS_MASK = ModuleFlag(255 << SV_MODULE_OUTPUTS_OFF)
)

// TimeMapFlag selects what the time map query writes per line.
type TimeMapFlag int

const (
	// SV_TIME_MAP_SPEED: dest[X] = BPM | (TPL << 16) at the beginning of line X.
	SV_TIME_MAP_SPEED TimeMapFlag = 0
	// SV_TIME_MAP_FRAMECNT: dest[X] = frame counter at the beginning of line X.
	SV_TIME_MAP_FRAMECNT TimeMapFlag = 1
)

// NOTECMD values occupy the note field of an event alongside regular pitches.
// 0 is an empty cell, 1..127 are note numbers and 128 and above are commands.
const (
	NOTECMD_EMPTY         = 0
	NOTECMD_NOTE_OFF      = 128
	NOTECMD_ALL_NOTES_OFF = 129 // notes of all synths off
	NOTECMD_CLEAN_SYNTHS  = 130 // stop and clean all synths
	NOTECMD_STOP          = 131
	NOTECMD_PLAY          = 132
	NOTECMD_SET_PITCH     = 133
	NOTECMD_PREV_TRACK    = 134
)

// Format defines the sample format of the audio exchanged with the engine.
type Format int

const (
	// FormatInt16 selects interleaved 16-bit signed integer samples.
	FormatInt16 Format = iota
	// FormatFloat32 selects interleaved 32-bit floating point samples.
	FormatFloat32
)

// Bytes returns the size of a single sample in bytes.
func (f Format) Bytes() int {
	if f == FormatInt16 {
		return 2
	}

	return 4
}

// initFlag returns the engine init flag selecting this sample format.
func (f Format) initFlag() InitFlag {
	if f == FormatInt16 {
		return SV_INIT_FLAG_AUDIO_INT16
	}

	return SV_INIT_FLAG_AUDIO_FLOAT32
}

// inputType returns the audio_callback2 input type code for this format.
func (f Format) inputType() int {
	if f == FormatInt16 {
		return 0
	}

	return 1
}

// String returns a human-readable name for the format.
func (f Format) String() string {
	if f == FormatInt16 {
		return "int16"
	}

	return "float32"
}
