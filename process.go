package sunvox

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrWorkerKilled is returned by calls made after Kill.
	ErrWorkerKilled = errors.New("sunvox: worker killed")

	// ErrWorkerTimeout is returned when a call exceeds the configured
	// timeout. The worker's reply can no longer be matched to a request
	// after that, so the process is marked broken and every later call
	// fails fast with this error too.
	ErrWorkerTimeout = errors.New("sunvox: worker call timed out")
)

// pipeConn is a duplex connection built from an inherited pipe pair.
type pipeConn struct {
	r *os.File
	w *os.File
}

func (c *pipeConn) Read(p []byte) (int, error)  { return c.r.Read(p) }
func (c *pipeConn) Write(p []byte) (int, error) { return c.w.Write(p) }

func (c *pipeConn) Close() error {
	werr := c.w.Close()
	rerr := c.r.Close()
	if werr != nil {
		return werr
	}

	return rerr
}

// Process supervises one worker holding a live engine, forwarding every
// engine operation over the bridge channel. The protocol is strictly
// turn-based: one request, one response, under one mutex. There are no
// request ids because there is never more than one call in flight.
//
// A Process is safe for concurrent use; calls serialize.
type Process struct {
	mu      sync.Mutex
	ch      *Channel
	cmd     *exec.Cmd
	log     *zap.Logger
	timeout time.Duration
	killed  bool
	broken  bool

	// Slot registry. Guarded by its own mutex so releasing a number never
	// contends with an in-flight call.
	slotMu sync.Mutex
	slots  [MaxSlots]bool
}

// NewProcess spawns a worker and returns the supervising endpoint. The
// worker is this same executable run again with the worker marker set, so
// the engine's process-global state starts from scratch; RunWorker picks it
// up at the top of main. The pipe pair rides on descriptors 3 and 4.
func NewProcess(opts ...Option) (*Process, error) {
	s := newSettings(opts)

	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}

	// Supervisor writes childR, reads childW.
	childR, parentW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create pipe: %w", err)
	}
	parentR, childW, err := os.Pipe()
	if err != nil {
		childR.Close()
		parentW.Close()

		return nil, fmt.Errorf("create pipe: %w", err)
	}

	cmd := exec.Command(exe)
	cmd.Env = append(os.Environ(), workerEnv+"=1")
	if s.library != "" {
		cmd.Env = append(cmd.Env, EnvLibraryPath+"="+s.library)
	}
	cmd.ExtraFiles = []*os.File{childR, childW}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		childR.Close()
		childW.Close()
		parentR.Close()
		parentW.Close()

		return nil, fmt.Errorf("spawn worker: %w", err)
	}

	// The worker holds its own copies now.
	childR.Close()
	childW.Close()

	p := connect(&pipeConn{r: parentR, w: parentW}, s)
	p.cmd = cmd

	p.log.Debug("worker spawned", zap.Int("pid", cmd.Process.Pid))

	return p, nil
}

// Connect builds a Process over an existing connection whose far side is
// running Serve. It is the non-spawning constructor, used by tests and by
// callers with their own transport.
func Connect(conn io.ReadWriteCloser, opts ...Option) *Process {
	return connect(conn, newSettings(opts))
}

func connect(conn io.ReadWriteCloser, s *settings) *Process {
	return &Process{
		ch:      NewChannel(conn),
		log:     s.logger,
		timeout: s.timeout,
	}
}

// call performs one request/response exchange. The mutex spans both
// directions; that is the whole concurrency story of the bridge.
func (p *Process) call(op Op, args ...Value) (Value, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.killed {
		return Value{}, ErrWorkerKilled
	}
	if p.broken {
		return Value{}, ErrWorkerTimeout
	}
	if err := checkArgs(op, args); err != nil {
		return Value{}, err
	}

	if p.timeout <= 0 {
		return p.exchange(op, args)
	}

	type result struct {
		val Value
		err error
	}
	done := make(chan result, 1)
	go func() {
		val, err := p.exchange(op, args)
		done <- result{val, err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-time.After(p.timeout):
		// The exchange goroutine may still complete; its reply belongs
		// to nothing now, so the channel cannot be reused.
		p.broken = true
		p.log.Error("worker call timed out", zap.Stringer("op", op))

		return Value{}, ErrWorkerTimeout
	}
}

func (p *Process) exchange(op Op, args []Value) (Value, error) {
	if err := p.ch.SendRequest(Request{Op: op, Args: args}); err != nil {
		return Value{}, fmt.Errorf("%s: %w", op, err)
	}

	resp, err := p.ch.ReceiveResponse()
	if err != nil {
		return Value{}, fmt.Errorf("%s: %w", op, err)
	}

	return resp.Val, nil
}

func (p *Process) callInt(op Op, args ...Value) (int, error) {
	v, err := p.call(op, args...)
	if err != nil {
		return 0, err
	}

	return int(v.Int), nil
}

func (p *Process) callStr(op Op, args ...Value) (string, error) {
	v, err := p.call(op, args...)
	if err != nil {
		return "", err
	}

	return v.Str, nil
}

func (p *Process) callBytes(op Op, args ...Value) ([]byte, error) {
	v, err := p.call(op, args...)
	if err != nil {
		return nil, err
	}

	return v.Bytes, nil
}

// Kill stops the worker. The stop operation is fire-and-forget: the worker
// writes no response for it, which is safe because the turn-based protocol
// guarantees every earlier call has already been answered. The channel is
// closed afterwards; subsequent calls return ErrWorkerKilled. Kill is
// idempotent.
func (p *Process) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.killed {
		return nil
	}
	p.killed = true

	err := p.ch.SendRequest(Request{Op: OpKill})
	if cerr := p.ch.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("kill worker: %w", err)
	}

	return nil
}

// Wait joins the worker OS process. Callers that need a clean shutdown call
// Kill and then Wait. It is a no-op for a Process built with Connect.
func (p *Process) Wait() error {
	if p.cmd == nil {
		return nil
	}

	return p.cmd.Wait()
}

// Engine forwarding. One method per call-table operation, same shape as the
// Engine interface plus the transport error. Engine status codes pass
// through uninterpreted.

func (p *Process) Init(config string, rate, channels int, flags InitFlag) (int, error) {
	return p.callInt(OpInit, StringValue(config), IntValue(int64(rate)),
		IntValue(int64(channels)), IntValue(int64(flags)))
}

func (p *Process) Deinit() (int, error)     { return p.callInt(OpDeinit) }
func (p *Process) SampleRate() (int, error) { return p.callInt(OpGetSampleRate) }
func (p *Process) UpdateInput() (int, error) {
	return p.callInt(OpUpdateInput)
}

func (p *Process) OpenSlot(slot int) (int, error) {
	return p.callInt(OpOpenSlot, IntValue(int64(slot)))
}

func (p *Process) CloseSlot(slot int) (int, error) {
	return p.callInt(OpCloseSlot, IntValue(int64(slot)))
}

func (p *Process) LockSlot(slot int) (int, error) {
	return p.callInt(OpLockSlot, IntValue(int64(slot)))
}

func (p *Process) UnlockSlot(slot int) (int, error) {
	return p.callInt(OpUnlockSlot, IntValue(int64(slot)))
}

func (p *Process) Load(slot int, name string) (int, error) {
	return p.callInt(OpLoad, IntValue(int64(slot)), StringValue(name))
}

func (p *Process) LoadFromMemory(slot int, data []byte) (int, error) {
	return p.callInt(OpLoadFromMemory, IntValue(int64(slot)), BytesValue(data))
}

func (p *Process) Save(slot int, name string) (int, error) {
	return p.callInt(OpSave, IntValue(int64(slot)), StringValue(name))
}

func (p *Process) Play(slot int) (int, error) {
	return p.callInt(OpPlay, IntValue(int64(slot)))
}

func (p *Process) PlayFromBeginning(slot int) (int, error) {
	return p.callInt(OpPlayFromBeginning, IntValue(int64(slot)))
}

func (p *Process) Stop(slot int) (int, error) {
	return p.callInt(OpStop, IntValue(int64(slot)))
}

func (p *Process) Pause(slot int) (int, error) {
	return p.callInt(OpPause, IntValue(int64(slot)))
}

func (p *Process) Resume(slot int) (int, error) {
	return p.callInt(OpResume, IntValue(int64(slot)))
}

func (p *Process) SyncResume(slot int) (int, error) {
	return p.callInt(OpSyncResume, IntValue(int64(slot)))
}

func (p *Process) SetAutostop(slot, autostop int) (int, error) {
	return p.callInt(OpSetAutostop, IntValue(int64(slot)), IntValue(int64(autostop)))
}

func (p *Process) Autostop(slot int) (int, error) {
	return p.callInt(OpGetAutostop, IntValue(int64(slot)))
}

func (p *Process) EndOfSong(slot int) (int, error) {
	return p.callInt(OpEndOfSong, IntValue(int64(slot)))
}

func (p *Process) Rewind(slot, line int) (int, error) {
	return p.callInt(OpRewind, IntValue(int64(slot)), IntValue(int64(line)))
}

func (p *Process) Volume(slot, vol int) (int, error) {
	return p.callInt(OpVolume, IntValue(int64(slot)), IntValue(int64(vol)))
}

func (p *Process) SetEventTime(slot, set int, t uint32) (int, error) {
	return p.callInt(OpSetEventTime, IntValue(int64(slot)), IntValue(int64(set)), IntValue(int64(t)))
}

func (p *Process) SendEvent(slot, track, note, vel, module, ctl, ctlVal int) (int, error) {
	return p.callInt(OpSendEvent, IntValue(int64(slot)), IntValue(int64(track)),
		IntValue(int64(note)), IntValue(int64(vel)), IntValue(int64(module)),
		IntValue(int64(ctl)), IntValue(int64(ctlVal)))
}

func (p *Process) CurrentLine(slot int) (int, error) {
	return p.callInt(OpGetCurrentLine, IntValue(int64(slot)))
}

func (p *Process) CurrentLine2(slot int) (int, error) {
	return p.callInt(OpGetCurrentLine2, IntValue(int64(slot)))
}

func (p *Process) CurrentSignalLevel(slot, channel int) (int, error) {
	return p.callInt(OpGetCurrentSignalLevel, IntValue(int64(slot)), IntValue(int64(channel)))
}

func (p *Process) SongName(slot int) (string, error) {
	return p.callStr(OpGetSongName, IntValue(int64(slot)))
}

func (p *Process) SongBPM(slot int) (int, error) {
	return p.callInt(OpGetSongBPM, IntValue(int64(slot)))
}

func (p *Process) SongTPL(slot int) (int, error) {
	return p.callInt(OpGetSongTPL, IntValue(int64(slot)))
}

func (p *Process) SongLengthFrames(slot int) (uint32, error) {
	n, err := p.callInt(OpGetSongLengthFrames, IntValue(int64(slot)))

	return uint32(n), err
}

func (p *Process) SongLengthLines(slot int) (uint32, error) {
	n, err := p.callInt(OpGetSongLengthLines, IntValue(int64(slot)))

	return uint32(n), err
}

func (p *Process) TimeMap(slot, startLine, count int, flags TimeMapFlag) ([]uint32, error) {
	raw, err := p.callBytes(OpGetTimeMap, IntValue(int64(slot)), IntValue(int64(startLine)),
		IntValue(int64(count)), IntValue(int64(flags)))
	if err != nil {
		return nil, err
	}

	return bytesToUint32s(raw), nil
}

func (p *Process) NewModule(slot int, moduleType, name string, x, y, z int) (int, error) {
	return p.callInt(OpNewModule, IntValue(int64(slot)), StringValue(moduleType),
		StringValue(name), IntValue(int64(x)), IntValue(int64(y)), IntValue(int64(z)))
}

func (p *Process) RemoveModule(slot, module int) (int, error) {
	return p.callInt(OpRemoveModule, IntValue(int64(slot)), IntValue(int64(module)))
}

func (p *Process) ConnectModule(slot, source, destination int) (int, error) {
	return p.callInt(OpConnectModule, IntValue(int64(slot)),
		IntValue(int64(source)), IntValue(int64(destination)))
}

func (p *Process) DisconnectModule(slot, source, destination int) (int, error) {
	return p.callInt(OpDisconnectModule, IntValue(int64(slot)),
		IntValue(int64(source)), IntValue(int64(destination)))
}

func (p *Process) LoadModule(slot int, name string, x, y, z int) (int, error) {
	return p.callInt(OpLoadModule, IntValue(int64(slot)), StringValue(name),
		IntValue(int64(x)), IntValue(int64(y)), IntValue(int64(z)))
}

func (p *Process) LoadModuleFromMemory(slot int, data []byte, x, y, z int) (int, error) {
	return p.callInt(OpLoadModuleFromMemory, IntValue(int64(slot)), BytesValue(data),
		IntValue(int64(x)), IntValue(int64(y)), IntValue(int64(z)))
}

func (p *Process) SamplerLoad(slot, sampler int, name string, sampleSlot int) (int, error) {
	return p.callInt(OpSamplerLoad, IntValue(int64(slot)), IntValue(int64(sampler)),
		StringValue(name), IntValue(int64(sampleSlot)))
}

func (p *Process) SamplerLoadFromMemory(slot, sampler int, data []byte, sampleSlot int) (int, error) {
	return p.callInt(OpSamplerLoadFromMemory, IntValue(int64(slot)), IntValue(int64(sampler)),
		BytesValue(data), IntValue(int64(sampleSlot)))
}

func (p *Process) NumberOfModules(slot int) (int, error) {
	return p.callInt(OpGetNumberOfModules, IntValue(int64(slot)))
}

func (p *Process) FindModule(slot int, name string) (int, error) {
	return p.callInt(OpFindModule, IntValue(int64(slot)), StringValue(name))
}

func (p *Process) ModuleFlags(slot, module int) (ModuleFlag, error) {
	n, err := p.callInt(OpGetModuleFlags, IntValue(int64(slot)), IntValue(int64(module)))

	return ModuleFlag(n), err
}

func (p *Process) ModuleInputs(slot, module int) ([]int32, error) {
	raw, err := p.callBytes(OpGetModuleInputs, IntValue(int64(slot)), IntValue(int64(module)))
	if err != nil {
		return nil, err
	}

	return bytesToInt32s(raw), nil
}

func (p *Process) ModuleOutputs(slot, module int) ([]int32, error) {
	raw, err := p.callBytes(OpGetModuleOutputs, IntValue(int64(slot)), IntValue(int64(module)))
	if err != nil {
		return nil, err
	}

	return bytesToInt32s(raw), nil
}

func (p *Process) ModuleName(slot, module int) (string, error) {
	return p.callStr(OpGetModuleName, IntValue(int64(slot)), IntValue(int64(module)))
}

func (p *Process) ModuleXY(slot, module int) (uint32, error) {
	n, err := p.callInt(OpGetModuleXY, IntValue(int64(slot)), IntValue(int64(module)))

	return uint32(n), err
}

func (p *Process) ModuleColor(slot, module int) (int, error) {
	return p.callInt(OpGetModuleColor, IntValue(int64(slot)), IntValue(int64(module)))
}

func (p *Process) ModuleFinetune(slot, module int) (uint32, error) {
	n, err := p.callInt(OpGetModuleFinetune, IntValue(int64(slot)), IntValue(int64(module)))

	return uint32(n), err
}

func (p *Process) ModuleScope(slot, module, channel, samples int) ([]int16, error) {
	raw, err := p.callBytes(OpGetModuleScope, IntValue(int64(slot)), IntValue(int64(module)),
		IntValue(int64(channel)), IntValue(int64(samples)))
	if err != nil {
		return nil, err
	}

	return bytesToInt16s(raw), nil
}

func (p *Process) NumberOfModuleCtls(slot, module int) (int, error) {
	return p.callInt(OpGetNumberOfModuleCtls, IntValue(int64(slot)), IntValue(int64(module)))
}

func (p *Process) ModuleCtlName(slot, module, ctl int) (string, error) {
	return p.callStr(OpGetModuleCtlName, IntValue(int64(slot)), IntValue(int64(module)),
		IntValue(int64(ctl)))
}

func (p *Process) ModuleCtlValue(slot, module, ctl, scaled int) (int, error) {
	return p.callInt(OpGetModuleCtlValue, IntValue(int64(slot)), IntValue(int64(module)),
		IntValue(int64(ctl)), IntValue(int64(scaled)))
}

func (p *Process) SetModuleXY(slot, module, x, y int) (int, error) {
	return p.callInt(OpSetModuleXY, IntValue(int64(slot)), IntValue(int64(module)),
		IntValue(int64(x)), IntValue(int64(y)))
}

func (p *Process) SetModuleColor(slot, module, color int) (int, error) {
	return p.callInt(OpSetModuleColor, IntValue(int64(slot)), IntValue(int64(module)),
		IntValue(int64(color)))
}

func (p *Process) SetModuleName(slot, module int, name string) (int, error) {
	return p.callInt(OpSetModuleName, IntValue(int64(slot)), IntValue(int64(module)),
		StringValue(name))
}

func (p *Process) NumberOfPatterns(slot int) (int, error) {
	return p.callInt(OpGetNumberOfPatterns, IntValue(int64(slot)))
}

func (p *Process) FindPattern(slot int, name string) (int, error) {
	return p.callInt(OpFindPattern, IntValue(int64(slot)), StringValue(name))
}

func (p *Process) PatternX(slot, pattern int) (int, error) {
	return p.callInt(OpGetPatternX, IntValue(int64(slot)), IntValue(int64(pattern)))
}

func (p *Process) PatternY(slot, pattern int) (int, error) {
	return p.callInt(OpGetPatternY, IntValue(int64(slot)), IntValue(int64(pattern)))
}

func (p *Process) PatternTracks(slot, pattern int) (int, error) {
	return p.callInt(OpGetPatternTracks, IntValue(int64(slot)), IntValue(int64(pattern)))
}

func (p *Process) PatternLines(slot, pattern int) (int, error) {
	return p.callInt(OpGetPatternLines, IntValue(int64(slot)), IntValue(int64(pattern)))
}

func (p *Process) PatternName(slot, pattern int) (string, error) {
	return p.callStr(OpGetPatternName, IntValue(int64(slot)), IntValue(int64(pattern)))
}

func (p *Process) PatternData(slot, pattern int) ([]Note, error) {
	raw, err := p.callBytes(OpGetPatternData, IntValue(int64(slot)), IntValue(int64(pattern)))
	if err != nil {
		return nil, err
	}

	return bytesToNotes(raw), nil
}

func (p *Process) SetPatternEvent(slot, pattern, track, line, nn, vv, mm, ccee, xxyy int) (int, error) {
	return p.callInt(OpSetPatternEvent, IntValue(int64(slot)), IntValue(int64(pattern)),
		IntValue(int64(track)), IntValue(int64(line)), IntValue(int64(nn)),
		IntValue(int64(vv)), IntValue(int64(mm)), IntValue(int64(ccee)), IntValue(int64(xxyy)))
}

func (p *Process) PatternEvent(slot, pattern, track, line, column int) (int, error) {
	return p.callInt(OpGetPatternEvent, IntValue(int64(slot)), IntValue(int64(pattern)),
		IntValue(int64(track)), IntValue(int64(line)), IntValue(int64(column)))
}

func (p *Process) PatternMute(slot, pattern, mute int) (int, error) {
	return p.callInt(OpPatternMute, IntValue(int64(slot)), IntValue(int64(pattern)),
		IntValue(int64(mute)))
}

func (p *Process) Ticks() (uint32, error) {
	n, err := p.callInt(OpGetTicks)

	return uint32(n), err
}

func (p *Process) TicksPerSecond() (uint32, error) {
	n, err := p.callInt(OpGetTicksPerSecond)

	return uint32(n), err
}

func (p *Process) Log(size int) (string, error) {
	return p.callStr(OpGetLog, IntValue(int64(size)))
}
