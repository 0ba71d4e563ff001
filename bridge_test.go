package sunvox_test

import (
	"net"
	"sync"
	"testing"

	"github.com/metrasynth/sunvox-go"
)

// stubEngine stands in for the native library so the whole bridge protocol
// can run in-process over a net.Pipe. It records call counts for the
// operations the tests assert on and returns fixed values elsewhere.
type stubEngine struct {
	mu sync.Mutex

	initCalls   int
	deinitCalls int
	initRate    int
	initFlags   sunvox.InitFlag

	openSlots  map[int]int
	closeSlots map[int]int
	lockCalls  map[int]int
	unlock     map[int]int

	loadNames  []string
	loadMemory [][]byte

	newModuleCalls int
	playCalls      map[int]int

	fillCalls int
}

func newStubEngine() *stubEngine {
	return &stubEngine{
		openSlots:  make(map[int]int),
		closeSlots: make(map[int]int),
		lockCalls:  make(map[int]int),
		unlock:     make(map[int]int),
		playCalls:  make(map[int]int),
	}
}

func (e *stubEngine) Init(config string, rate, channels int, flags sunvox.InitFlag) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.initCalls++
	e.initRate = rate
	e.initFlags = flags

	return rate
}

func (e *stubEngine) Deinit() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deinitCalls++

	return 0
}

func (e *stubEngine) SampleRate() int { return 44100 }
func (e *stubEngine) UpdateInput() int {
	return 0
}

func (e *stubEngine) AudioCallback(buf []byte, frames, latency int, outTime uint32) int {
	e.mu.Lock()
	e.fillCalls++
	e.mu.Unlock()

	for i := range buf {
		buf[i] = byte(i % 251)
	}

	return 1
}

func (e *stubEngine) AudioCallback2(buf []byte, frames, latency int, outTime uint32, inType, inChannels int, inBuf []byte) int {
	e.mu.Lock()
	e.fillCalls++
	e.mu.Unlock()

	// Echo the input so tests can verify it crossed the bridge.
	n := copy(buf, inBuf)
	for i := n; i < len(buf); i++ {
		buf[i] = byte(i % 251)
	}

	return 1
}

func (e *stubEngine) OpenSlot(slot int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.openSlots[slot]++

	return 0
}

func (e *stubEngine) CloseSlot(slot int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeSlots[slot]++

	return 0
}

func (e *stubEngine) LockSlot(slot int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lockCalls[slot]++

	return 0
}

func (e *stubEngine) UnlockSlot(slot int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unlock[slot]++

	return 0
}

func (e *stubEngine) Load(slot int, name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loadNames = append(e.loadNames, name)

	return 0
}

func (e *stubEngine) LoadFromMemory(slot int, data []byte) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	e.loadMemory = append(e.loadMemory, cp)

	return 0
}

func (e *stubEngine) Save(slot int, name string) int { return 0 }

func (e *stubEngine) Play(slot int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playCalls[slot]++

	return 0
}

func (e *stubEngine) PlayFromBeginning(slot int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playCalls[slot]++

	return 0
}

func (e *stubEngine) Stop(slot int) int { return 0 }
func (e *stubEngine) Pause(slot int) int { return 0 }
func (e *stubEngine) Resume(slot int) int { return 0 }
func (e *stubEngine) SyncResume(slot int) int { return 0 }
func (e *stubEngine) SetAutostop(slot, autostop int) int { return 0 }
func (e *stubEngine) Autostop(slot int) int { return 1 }
func (e *stubEngine) EndOfSong(slot int) int { return 1 }
func (e *stubEngine) Rewind(slot, line int) int { return 0 }
func (e *stubEngine) Volume(slot, vol int) int { return 256 }

func (e *stubEngine) SetEventTime(slot, set int, t uint32) int { return 0 }
func (e *stubEngine) SendEvent(slot, track, note, vel, module, ctl, ctlVal int) int {
	return 0
}

func (e *stubEngine) CurrentLine(slot int) int { return 4 }
func (e *stubEngine) CurrentLine2(slot int) int { return 132 }
func (e *stubEngine) CurrentSignalLevel(slot, channel int) int { return 100 }

func (e *stubEngine) SongName(slot int) string { return "test song" }
func (e *stubEngine) SongBPM(slot int) int { return 125 }
func (e *stubEngine) SongTPL(slot int) int { return 6 }
func (e *stubEngine) SongLengthFrames(slot int) uint32 { return 441000 }
func (e *stubEngine) SongLengthLines(slot int) uint32 { return 256 }

func (e *stubEngine) TimeMap(slot, startLine, count int, flags sunvox.TimeMapFlag) []uint32 {
	m := make([]uint32, count)
	for i := range m {
		m[i] = uint32(startLine+i) * 100
	}

	return m
}

func (e *stubEngine) NewModule(slot int, moduleType, name string, x, y, z int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.newModuleCalls++

	return 7
}

func (e *stubEngine) RemoveModule(slot, module int) int { return 0 }
func (e *stubEngine) ConnectModule(slot, source, destination int) int { return 0 }
func (e *stubEngine) DisconnectModule(slot, source, destination int) int { return 0 }

func (e *stubEngine) LoadModule(slot int, name string, x, y, z int) int { return 8 }
func (e *stubEngine) LoadModuleFromMemory(slot int, data []byte, x, y, z int) int {
	return 9
}
func (e *stubEngine) SamplerLoad(slot, sampler int, name string, sampleSlot int) int { return 0 }
func (e *stubEngine) SamplerLoadFromMemory(slot, sampler int, data []byte, sampleSlot int) int {
	return 0
}

func (e *stubEngine) NumberOfModules(slot int) int { return 3 }
func (e *stubEngine) FindModule(slot int, name string) int { return 2 }
func (e *stubEngine) ModuleFlags(slot, module int) sunvox.ModuleFlag {
	return sunvox.SV_MODULE_FLAG_EXISTS
}

func (e *stubEngine) ModuleInputs(slot, module int) []int32 { return []int32{0, 1} }
func (e *stubEngine) ModuleOutputs(slot, module int) []int32 { return []int32{2} }
func (e *stubEngine) ModuleName(slot, module int) string { return "Output" }
func (e *stubEngine) ModuleXY(slot, module int) uint32 {
	return sunvox.PackModuleXY(512, 512)
}
func (e *stubEngine) ModuleColor(slot, module int) int { return 0xAABBCC }
func (e *stubEngine) ModuleFinetune(slot, module int) uint32 { return 0 }

func (e *stubEngine) ModuleScope(slot, module, channel, samples int) []int16 {
	s := make([]int16, samples)
	for i := range s {
		s[i] = int16(i)
	}

	return s
}

func (e *stubEngine) NumberOfModuleCtls(slot, module int) int { return 2 }
func (e *stubEngine) ModuleCtlName(slot, module, ctl int) string { return "Volume" }
func (e *stubEngine) ModuleCtlValue(slot, module, ctl, scaled int) int { return 80 }
func (e *stubEngine) SetModuleXY(slot, module, x, y int) int { return 0 }
func (e *stubEngine) SetModuleColor(slot, module, color int) int { return 0 }
func (e *stubEngine) SetModuleName(slot, module int, name string) int {
	return 0
}

func (e *stubEngine) NumberOfPatterns(slot int) int { return 1 }
func (e *stubEngine) FindPattern(slot int, name string) int { return 0 }
func (e *stubEngine) PatternX(slot, pattern int) int { return 0 }
func (e *stubEngine) PatternY(slot, pattern int) int { return 0 }
func (e *stubEngine) PatternTracks(slot, pattern int) int { return 4 }
func (e *stubEngine) PatternLines(slot, pattern int) int { return 32 }
func (e *stubEngine) PatternName(slot, pattern int) string { return "pat" }

func (e *stubEngine) PatternData(slot, pattern int) []sunvox.Note {
	notes := make([]sunvox.Note, 4*32)
	notes[0] = sunvox.Note{NN: 60, VV: 129, MM: 8, Ctl: 0x0200, CtlVal: 0x4000}

	return notes
}

func (e *stubEngine) SetPatternEvent(slot, pattern, track, line, nn, vv, mm, ccee, xxyy int) int {
	return 0
}

func (e *stubEngine) PatternEvent(slot, pattern, track, line, column int) int { return 60 }
func (e *stubEngine) PatternMute(slot, pattern, mute int) int { return 0 }

func (e *stubEngine) Ticks() uint32 { return 123456 }
func (e *stubEngine) TicksPerSecond() uint32 { return 1000 }
func (e *stubEngine) Log(size int) string { return "engine log" }

var _ sunvox.Engine = (*stubEngine)(nil)

// startBridge wires a supervisor to a stub worker over an in-memory pipe.
// The serve error is collected so tests can assert on how the loop ended.
func startBridge(t *testing.T, opts ...sunvox.Option) (*sunvox.Process, *stubEngine, chan error) {
	t.Helper()

	client, server := net.Pipe()
	eng := newStubEngine()

	done := make(chan error, 1)
	go func() {
		done <- sunvox.Serve(server, eng, opts...)
	}()

	p := sunvox.Connect(client, opts...)

	t.Cleanup(func() {
		p.Kill()
		client.Close()
		server.Close()
	})

	return p, eng, done
}
