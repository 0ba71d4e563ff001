package sunvox

import (
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
)

// workerEnv marks a process as a spawned bridge worker. The value is set by
// the supervisor; host binaries never set it themselves.
const workerEnv = "SUNVOX_WORKER"

// worker owns the one live engine binding inside the spawned process, plus
// the audio buffer state for the buffered layers. It runs single-threaded:
// the engine is invoked strictly one call at a time, which is what its
// non-reentrancy rules require.
type worker struct {
	ch     *Channel
	engine Engine
	log    *zap.Logger

	// Captured from the init request; the fill handlers need them to size
	// buffers and to describe input samples to the engine.
	channels int
	format   Format

	// Native lock depth per slot, tracked as lock/unlock requests pass
	// through. Used only to flag structural calls issued unlocked.
	lockDepth map[int]int

	// Copy-mode scratch buffer.
	buf    []byte
	frames int

	// Shared-memory mode state.
	shmIn     *shmRegion
	shmOut    *shmRegion
	shmFrames int
	shmMax    int
}

// handler executes one operation against the worker. A returned error is a
// contract violation and tears the worker down; engine status codes are
// ordinary results.
type handler func(w *worker, req Request) (Value, error)

// handlers is the worker-side dispatch table. Serve checks it against
// CallTable once at startup, so a table/dispatcher mismatch surfaces
// immediately instead of at the first failed call.
var handlers map[Op]handler

func init() {
	handlers = map[Op]handler{
		OpInit: func(w *worker, req Request) (Value, error) {
			w.channels = aInt(req, 2)
			flags := InitFlag(aInt(req, 3))
			if flags&SV_INIT_FLAG_AUDIO_INT16 != 0 {
				w.format = FormatInt16
			} else {
				w.format = FormatFloat32
			}

			return IntValue(int64(w.engine.Init(aStr(req, 0), aInt(req, 1), w.channels, flags))), nil
		},
		OpDeinit:        eng0(Engine.Deinit),
		OpGetSampleRate: eng0(Engine.SampleRate),
		OpUpdateInput:   eng0(Engine.UpdateInput),

		OpOpenSlot:  eng1(Engine.OpenSlot),
		OpCloseSlot: eng1(Engine.CloseSlot),
		OpLockSlot: func(w *worker, req Request) (Value, error) {
			slot := aInt(req, 0)
			ret := w.engine.LockSlot(slot)
			w.lockDepth[slot]++

			return IntValue(int64(ret)), nil
		},
		OpUnlockSlot: func(w *worker, req Request) (Value, error) {
			slot := aInt(req, 0)
			ret := w.engine.UnlockSlot(slot)
			if w.lockDepth[slot] > 0 {
				w.lockDepth[slot]--
			}

			return IntValue(int64(ret)), nil
		},

		OpLoad: func(w *worker, req Request) (Value, error) {
			return IntValue(int64(w.engine.Load(aInt(req, 0), aStr(req, 1)))), nil
		},
		OpLoadFromMemory: func(w *worker, req Request) (Value, error) {
			return IntValue(int64(w.engine.LoadFromMemory(aInt(req, 0), aBytes(req, 1)))), nil
		},
		OpSave: func(w *worker, req Request) (Value, error) {
			return IntValue(int64(w.engine.Save(aInt(req, 0), aStr(req, 1)))), nil
		},

		OpPlay:              eng1(Engine.Play),
		OpPlayFromBeginning: eng1(Engine.PlayFromBeginning),
		OpStop:              eng1(Engine.Stop),
		OpPause:             eng1(Engine.Pause),
		OpResume:            eng1(Engine.Resume),
		OpSyncResume:        eng1(Engine.SyncResume),
		OpSetAutostop:       eng2(Engine.SetAutostop),
		OpGetAutostop:       eng1(Engine.Autostop),
		OpEndOfSong:         eng1(Engine.EndOfSong),
		OpRewind:            eng2(Engine.Rewind),
		OpVolume:            eng2(Engine.Volume),

		OpSetEventTime: func(w *worker, req Request) (Value, error) {
			return IntValue(int64(w.engine.SetEventTime(aInt(req, 0), aInt(req, 1), uint32(aInt(req, 2))))), nil
		},
		OpSendEvent: func(w *worker, req Request) (Value, error) {
			return IntValue(int64(w.engine.SendEvent(aInt(req, 0), aInt(req, 1), aInt(req, 2),
				aInt(req, 3), aInt(req, 4), aInt(req, 5), aInt(req, 6)))), nil
		},

		OpGetCurrentLine:        eng1(Engine.CurrentLine),
		OpGetCurrentLine2:       eng1(Engine.CurrentLine2),
		OpGetCurrentSignalLevel: eng2(Engine.CurrentSignalLevel),

		OpGetSongName: func(w *worker, req Request) (Value, error) {
			return StringValue(w.engine.SongName(aInt(req, 0))), nil
		},
		OpGetSongBPM: eng1(Engine.SongBPM),
		OpGetSongTPL: eng1(Engine.SongTPL),
		OpGetSongLengthFrames: func(w *worker, req Request) (Value, error) {
			return IntValue(int64(w.engine.SongLengthFrames(aInt(req, 0)))), nil
		},
		OpGetSongLengthLines: func(w *worker, req Request) (Value, error) {
			return IntValue(int64(w.engine.SongLengthLines(aInt(req, 0)))), nil
		},
		OpGetTimeMap: func(w *worker, req Request) (Value, error) {
			m := w.engine.TimeMap(aInt(req, 0), aInt(req, 1), aInt(req, 2), TimeMapFlag(aInt(req, 3)))

			return BytesValue(uint32sToBytes(m)), nil
		},

		OpNewModule: func(w *worker, req Request) (Value, error) {
			return IntValue(int64(w.engine.NewModule(aInt(req, 0), aStr(req, 1), aStr(req, 2),
				aInt(req, 3), aInt(req, 4), aInt(req, 5)))), nil
		},
		OpRemoveModule:     eng2(Engine.RemoveModule),
		OpConnectModule:    eng3(Engine.ConnectModule),
		OpDisconnectModule: eng3(Engine.DisconnectModule),

		OpLoadModule: func(w *worker, req Request) (Value, error) {
			return IntValue(int64(w.engine.LoadModule(aInt(req, 0), aStr(req, 1),
				aInt(req, 2), aInt(req, 3), aInt(req, 4)))), nil
		},
		OpLoadModuleFromMemory: func(w *worker, req Request) (Value, error) {
			return IntValue(int64(w.engine.LoadModuleFromMemory(aInt(req, 0), aBytes(req, 1),
				aInt(req, 2), aInt(req, 3), aInt(req, 4)))), nil
		},
		OpSamplerLoad: func(w *worker, req Request) (Value, error) {
			return IntValue(int64(w.engine.SamplerLoad(aInt(req, 0), aInt(req, 1), aStr(req, 2), aInt(req, 3)))), nil
		},
		OpSamplerLoadFromMemory: func(w *worker, req Request) (Value, error) {
			return IntValue(int64(w.engine.SamplerLoadFromMemory(aInt(req, 0), aInt(req, 1),
				aBytes(req, 2), aInt(req, 3)))), nil
		},

		OpGetNumberOfModules: eng1(Engine.NumberOfModules),
		OpFindModule: func(w *worker, req Request) (Value, error) {
			return IntValue(int64(w.engine.FindModule(aInt(req, 0), aStr(req, 1)))), nil
		},
		OpGetModuleFlags: func(w *worker, req Request) (Value, error) {
			return IntValue(int64(w.engine.ModuleFlags(aInt(req, 0), aInt(req, 1)))), nil
		},
		OpGetModuleInputs: func(w *worker, req Request) (Value, error) {
			return BytesValue(int32sToBytes(w.engine.ModuleInputs(aInt(req, 0), aInt(req, 1)))), nil
		},
		OpGetModuleOutputs: func(w *worker, req Request) (Value, error) {
			return BytesValue(int32sToBytes(w.engine.ModuleOutputs(aInt(req, 0), aInt(req, 1)))), nil
		},
		OpGetModuleName: func(w *worker, req Request) (Value, error) {
			return StringValue(w.engine.ModuleName(aInt(req, 0), aInt(req, 1))), nil
		},
		OpGetModuleXY: func(w *worker, req Request) (Value, error) {
			return IntValue(int64(w.engine.ModuleXY(aInt(req, 0), aInt(req, 1)))), nil
		},
		OpGetModuleColor: eng2(Engine.ModuleColor),
		OpGetModuleFinetune: func(w *worker, req Request) (Value, error) {
			return IntValue(int64(w.engine.ModuleFinetune(aInt(req, 0), aInt(req, 1)))), nil
		},
		OpGetModuleScope: func(w *worker, req Request) (Value, error) {
			s := w.engine.ModuleScope(aInt(req, 0), aInt(req, 1), aInt(req, 2), aInt(req, 3))

			return BytesValue(int16sToBytes(s)), nil
		},
		OpGetNumberOfModuleCtls: eng2(Engine.NumberOfModuleCtls),
		OpGetModuleCtlName: func(w *worker, req Request) (Value, error) {
			return StringValue(w.engine.ModuleCtlName(aInt(req, 0), aInt(req, 1), aInt(req, 2))), nil
		},
		OpGetModuleCtlValue: eng4(Engine.ModuleCtlValue),
		OpSetModuleXY:       eng4(Engine.SetModuleXY),
		OpSetModuleColor:    eng3(Engine.SetModuleColor),
		OpSetModuleName: func(w *worker, req Request) (Value, error) {
			return IntValue(int64(w.engine.SetModuleName(aInt(req, 0), aInt(req, 1), aStr(req, 2)))), nil
		},

		OpGetNumberOfPatterns: eng1(Engine.NumberOfPatterns),
		OpFindPattern: func(w *worker, req Request) (Value, error) {
			return IntValue(int64(w.engine.FindPattern(aInt(req, 0), aStr(req, 1)))), nil
		},
		OpGetPatternX:      eng2(Engine.PatternX),
		OpGetPatternY:      eng2(Engine.PatternY),
		OpGetPatternTracks: eng2(Engine.PatternTracks),
		OpGetPatternLines:  eng2(Engine.PatternLines),
		OpGetPatternName: func(w *worker, req Request) (Value, error) {
			return StringValue(w.engine.PatternName(aInt(req, 0), aInt(req, 1))), nil
		},
		OpGetPatternData: func(w *worker, req Request) (Value, error) {
			return BytesValue(notesToBytes(w.engine.PatternData(aInt(req, 0), aInt(req, 1)))), nil
		},
		OpSetPatternEvent: func(w *worker, req Request) (Value, error) {
			return IntValue(int64(w.engine.SetPatternEvent(aInt(req, 0), aInt(req, 1), aInt(req, 2),
				aInt(req, 3), aInt(req, 4), aInt(req, 5), aInt(req, 6), aInt(req, 7), aInt(req, 8)))), nil
		},
		OpGetPatternEvent: func(w *worker, req Request) (Value, error) {
			return IntValue(int64(w.engine.PatternEvent(aInt(req, 0), aInt(req, 1), aInt(req, 2),
				aInt(req, 3), aInt(req, 4)))), nil
		},
		OpPatternMute: eng3(Engine.PatternMute),

		OpGetTicks: func(w *worker, req Request) (Value, error) {
			return IntValue(int64(w.engine.Ticks())), nil
		},
		OpGetTicksPerSecond: func(w *worker, req Request) (Value, error) {
			return IntValue(int64(w.engine.TicksPerSecond())), nil
		},
		OpGetLog: func(w *worker, req Request) (Value, error) {
			return StringValue(w.engine.Log(aInt(req, 0))), nil
		},

		OpInitBuffer:    (*worker).initBuffer,
		OpFillBuffer:    (*worker).fillBuffer,
		OpInitShmBuffer: (*worker).initShmBuffer,
		OpFillShmBuffer: (*worker).fillShmBuffer,
	}
}

// eng0..eng4 adapt plain integer engine methods into handlers; they cover
// the bulk of the call table.
func eng0(fn func(Engine) int) handler {
	return func(w *worker, req Request) (Value, error) {
		return IntValue(int64(fn(w.engine))), nil
	}
}

func eng1(fn func(Engine, int) int) handler {
	return func(w *worker, req Request) (Value, error) {
		return IntValue(int64(fn(w.engine, aInt(req, 0)))), nil
	}
}

func eng2(fn func(Engine, int, int) int) handler {
	return func(w *worker, req Request) (Value, error) {
		return IntValue(int64(fn(w.engine, aInt(req, 0), aInt(req, 1)))), nil
	}
}

func eng3(fn func(Engine, int, int, int) int) handler {
	return func(w *worker, req Request) (Value, error) {
		return IntValue(int64(fn(w.engine, aInt(req, 0), aInt(req, 1), aInt(req, 2)))), nil
	}
}

func eng4(fn func(Engine, int, int, int, int) int) handler {
	return func(w *worker, req Request) (Value, error) {
		return IntValue(int64(fn(w.engine, aInt(req, 0), aInt(req, 1), aInt(req, 2), aInt(req, 3)))), nil
	}
}

// Argument accessors. Kinds were validated against the call table before
// dispatch, so these are plain reads.
func aInt(req Request, i int) int      { return int(req.Args[i].Int) }
func aStr(req Request, i int) string   { return req.Args[i].Str }
func aBool(req Request, i int) bool    { return req.Args[i].Bool }
func aBytes(req Request, i int) []byte { return req.Args[i].Bytes }

func (w *worker) initBuffer(req Request) (Value, error) {
	w.frames = aInt(req, 0)
	w.buf = make([]byte, w.frames*w.channels*w.format.Bytes())

	return BoolValue(true), nil
}

func (w *worker) fillBuffer(req Request) (Value, error) {
	if w.buf == nil {
		return Value{}, errors.New("fill_buffer before init_buffer")
	}

	input := aBytes(req, 0)
	if input == nil {
		w.engine.AudioCallback(w.buf, w.frames, 0, w.engine.Ticks())
	} else {
		w.engine.AudioCallback2(w.buf, w.frames, 0, w.engine.Ticks(),
			w.format.inputType(), w.channels, input)
	}

	return BytesValue(w.buf), nil
}

func (w *worker) initShmBuffer(req Request) (Value, error) {
	w.shmFrames = aInt(req, 0)
	w.shmMax = aInt(req, 1)

	size := w.shmMax * w.channels * w.format.Bytes()

	var err error
	if w.shmIn, err = openShmRegion(aStr(req, 2), size); err != nil {
		return Value{}, fmt.Errorf("map input region: %w", err)
	}
	if w.shmOut, err = openShmRegion(aStr(req, 3), size); err != nil {
		return Value{}, fmt.Errorf("map output region: %w", err)
	}

	return BoolValue(true), nil
}

func (w *worker) fillShmBuffer(req Request) (Value, error) {
	if w.shmOut == nil {
		return Value{}, errors.New("fill_shm_buffer before init_shm_buffer")
	}

	frames := aInt(req, 1)
	if frames <= 0 {
		frames = w.shmFrames
	}
	if frames > w.shmMax {
		frames = w.shmMax
	}

	out := w.shmOut.data[:frames*w.channels*w.format.Bytes()]
	if aBool(req, 0) {
		in := w.shmIn.data[:frames*w.channels*w.format.Bytes()]
		w.engine.AudioCallback2(out, frames, 0, w.engine.Ticks(),
			w.format.inputType(), w.channels, in)
	} else {
		w.engine.AudioCallback(out, frames, 0, w.engine.Ticks())
	}

	return BoolValue(true), nil
}

// release drops the worker's shared-memory mappings, best-effort. The
// supervisor owns the backing files.
func (w *worker) release() {
	if w.shmIn != nil {
		_ = w.shmIn.Close()
		w.shmIn = nil
	}
	if w.shmOut != nil {
		_ = w.shmOut.Close()
		w.shmOut = nil
	}
}

// Serve runs the worker loop over conn, dispatching requests against engine
// until the kill operation arrives or the channel breaks. It is the
// worker-side mirror of Connect: the spawned worker process uses it over the
// inherited pipe pair, and tests use it over an in-memory conn.
//
// Any dispatch failure is a defect in the bridge, not a recoverable
// condition: the protocol has no error channel, so Serve tears down instead
// of guessing at a response.
func Serve(conn io.ReadWriteCloser, engine Engine, opts ...Option) error {
	s := newSettings(opts)

	w := &worker{
		ch:        NewChannel(conn),
		engine:    engine,
		log:       s.logger,
		channels:  s.channels,
		format:    s.format,
		lockDepth: make(map[int]int),
	}
	defer w.release()

	// A handler missing for a declared op (or vice versa) is a build
	// defect; fail before touching the engine.
	if err := checkHandlers(); err != nil {
		return err
	}

	for {
		req, err := w.ch.ReceiveRequest()
		if err != nil {
			return err
		}

		if req.Op == OpKill {
			// Fire-and-forget by contract: no response is written.
			return nil
		}

		if err := checkArgs(req.Op, req.Args); err != nil {
			return fmt.Errorf("dispatch: %w", err)
		}

		d := CallTable[req.Op]
		if d.NeedsLock && w.lockDepth[aInt(req, 0)] == 0 {
			w.log.Warn("structural operation issued without engine lock",
				zap.String("op", d.Name),
				zap.Int("slot", aInt(req, 0)))
		}

		val, err := handlers[req.Op](w, req)
		if err != nil {
			return fmt.Errorf("%s: %w", d.Name, err)
		}

		if err := w.ch.SendResponse(Response{Val: val}); err != nil {
			return err
		}
	}
}

// checkHandlers verifies the dispatch table covers the call table exactly.
func checkHandlers() error {
	for op, d := range CallTable {
		if op == OpKill {
			continue
		}
		if _, ok := handlers[op]; !ok {
			return fmt.Errorf("no handler for operation %s", d.Name)
		}
	}

	for op := range handlers {
		if _, ok := CallTable[op]; !ok {
			return fmt.Errorf("handler for undeclared operation %d", int(op))
		}
	}

	return nil
}

// RunWorker is the entry point hook for the worker half of the bridge. Host
// binaries must call it at the very top of main: in a process spawned by
// NewProcess it loads the SunVox library, serves the bridge until killed and
// exits; in any other process it returns immediately. Spawning re-executes
// the host binary rather than forking it, so the engine's process-global
// state always starts fresh.
func RunWorker() {
	if os.Getenv(workerEnv) == "" {
		return
	}

	logger, err := zap.NewProduction()
	if err != nil {
		logger = zap.NewNop()
	}
	defer func() { _ = logger.Sync() }()

	conn := &pipeConn{
		r: os.NewFile(3, "bridge-recv"),
		w: os.NewFile(4, "bridge-send"),
	}
	if conn.r == nil || conn.w == nil {
		logger.Fatal("bridge worker started without pipe pair")
	}

	dll, err := LoadDLL("")
	if err != nil {
		logger.Fatal("bridge worker failed to load engine", zap.Error(err))
	}

	if err := Serve(conn, dll, WithLogger(logger)); err != nil {
		logger.Fatal("bridge worker failed", zap.Error(err))
	}

	os.Exit(0)
}
