package sunvox

import (
	"math"
	"unsafe"
)

// Note is one pattern cell, laid out exactly as the engine's sunvox_note
// structure. The engine reads and writes pattern buffers as arrays of this
// record, so the field widths and ordering must not change.
type Note struct {
	// NN: 0 - nothing; 1..127 - note number; 128 - note off;
	// 129 and above - see the NOTECMD constants.
	NN uint8
	// VV: velocity 1..129; 0 - default.
	VV uint8
	// MM: 0 - nothing; 1..255 - module number + 1.
	MM uint8
	// Reserved padding byte inside the native structure.
	Reserved uint8
	// Ctl: 0xCCEE. CC - controller number (1..255). EE - standard effect.
	Ctl uint16
	// CtlVal: 0xXXYY - value of the controller or effect.
	CtlVal uint16
}

// noteSize is the byte size of the native sunvox_note structure.
const noteSize = 8

// Layout guard: the record must stay byte-compatible with the engine ABI.
var _ [noteSize]byte = [unsafe.Sizeof(Note{})]byte{}

// UnpackModuleXY splits a packed module position, as returned by the module
// XY query, into signed x and y coordinates. The normal working area is
// 0x0..1024x1024 with the center at 512x512.
func UnpackModuleXY(xy uint32) (x, y int) {
	x = int(xy & 0xFFFF)
	if x&0x8000 != 0 {
		x -= 0x10000
	}

	y = int((xy >> 16) & 0xFFFF)
	if y&0x8000 != 0 {
		y -= 0x10000
	}

	return x, y
}

// PackModuleXY packs signed x and y coordinates into the representation used
// by the module position operations.
func PackModuleXY(x, y int) uint32 {
	return uint32(x&0xFFFF) | uint32(y&0xFFFF)<<16
}

// UnpackModuleFinetune splits a packed finetune value, as returned by the
// module finetune query, into the finetune and the relative note.
func UnpackModuleFinetune(packed uint32) (finetune, relativeNote int) {
	finetune = int(packed & 0xFFFF)
	if finetune&0x8000 != 0 {
		finetune -= 0x10000
	}

	relativeNote = int((packed >> 16) & 0xFFFF)
	if relativeNote&0x8000 != 0 {
		relativeNote -= 0x10000
	}

	return finetune, relativeNote
}

// PitchToFrequency converts an engine pitch value (as used by the
// NOTECMD_SET_PITCH command) to a frequency in Hz.
func PitchToFrequency(pitch int) float64 {
	return math.Pow(2, (30720.0-float64(pitch))/3072.0) * 16.3339
}

// FrequencyToPitch converts a frequency in Hz to an engine pitch value.
func FrequencyToPitch(freq float64) int {
	return int(30720 - math.Log2(freq/16.3339)*3072)
}

// notesToBytes reinterprets a Note slice as its raw byte representation.
// The result is a copy and safe to retain.
func notesToBytes(notes []Note) []byte {
	if len(notes) == 0 {
		return nil
	}

	raw := unsafe.Slice((*byte)(unsafe.Pointer(&notes[0])), len(notes)*noteSize)
	out := make([]byte, len(raw))
	copy(out, raw)

	return out
}

// bytesToNotes reinterprets raw pattern bytes as a Note slice.
// Trailing bytes that do not form a whole record are dropped.
func bytesToNotes(raw []byte) []Note {
	n := len(raw) / noteSize
	if n == 0 {
		return nil
	}

	notes := make([]Note, n)
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&notes[0])), n*noteSize), raw)

	return notes
}
