package sunvox

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNoSlotsAvailable is returned by NewSlot when all engine slots of
	// the worker are in use.
	ErrNoSlotsAvailable = errors.New("sunvox: no slots available")

	// ErrSlotClosed is returned by operations on a closed Slot.
	ErrSlotClosed = errors.New("sunvox: slot closed")
)

// acquireSlot reserves the lowest free slot number of the worker.
func (p *Process) acquireSlot() (int, error) {
	p.slotMu.Lock()
	defer p.slotMu.Unlock()

	for i := range p.slots {
		if !p.slots[i] {
			p.slots[i] = true

			return i, nil
		}
	}

	return 0, ErrNoSlotsAvailable
}

// releaseSlot returns a slot number to the registry. Releasing a number
// that is already free is a no-op.
func (p *Process) releaseSlot(n int) {
	p.slotMu.Lock()
	defer p.slotMu.Unlock()

	if n >= 0 && n < len(p.slots) {
		p.slots[n] = false
	}
}

// Slot is one of the worker's engine slots: an independent project with its
// own playback state. At most MaxSlots slots exist per worker; NewSlot hands
// out the lowest free number and Close returns it.
//
// Lock and Unlock count nested acquisitions so the native engine lock is
// taken exactly once per critical section. Structural mutations (adding,
// removing or rewiring modules, muting patterns) take the lock themselves;
// callers batching several of them can hold one outer Lock instead.
type Slot struct {
	p *Process

	mu     sync.Mutex
	number int
	locks  int
	closed bool
}

// NewSlot reserves a slot number and opens it in the worker.
func NewSlot(p *Process) (*Slot, error) {
	n, err := p.acquireSlot()
	if err != nil {
		return nil, err
	}

	ret, err := p.OpenSlot(n)
	if err != nil {
		p.releaseSlot(n)

		return nil, err
	}
	if ret < 0 {
		p.releaseSlot(n)

		return nil, fmt.Errorf("sunvox: open slot %d: engine returned %d", n, ret)
	}

	return &Slot{p: p, number: n}, nil
}

// Number reports the engine slot index this Slot occupies.
func (s *Slot) Number() int { return s.number }

// Close closes the engine slot and releases its number. The number is
// released even when the engine-side close fails, so a wedged worker cannot
// leak slot capacity. Close is idempotent.
func (s *Slot) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	_, err := s.p.CloseSlot(s.number)
	s.p.releaseSlot(s.number)

	return err
}

func (s *Slot) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSlotClosed
	}

	return nil
}

// Lock acquires the engine lock for this slot. Nested calls only bump a
// counter; the native lock is taken on the first acquisition.
func (s *Slot) Lock() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSlotClosed
	}

	if s.locks == 0 {
		if _, err := s.p.LockSlot(s.number); err != nil {
			return err
		}
	}
	s.locks++

	return nil
}

// Unlock releases one Lock acquisition, dropping the native lock when the
// count reaches zero. Unlock without a matching Lock is a no-op.
func (s *Slot) Unlock() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSlotClosed
	}

	if s.locks == 0 {
		return nil
	}
	s.locks--
	if s.locks == 0 {
		if _, err := s.p.UnlockSlot(s.number); err != nil {
			return err
		}
	}

	return nil
}

// locked runs fn under the slot lock.
func (s *Slot) locked(fn func() (int, error)) (int, error) {
	if err := s.Lock(); err != nil {
		return 0, err
	}

	ret, err := fn()

	if uerr := s.Unlock(); err == nil {
		err = uerr
	}

	return ret, err
}

// Load loads a project file into the slot.
func (s *Slot) Load(name string) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.Load(s.number, name)
}

// LoadFromMemory loads a project from an in-memory image.
func (s *Slot) LoadFromMemory(data []byte) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.LoadFromMemory(s.number, data)
}

// Save writes the slot's project to a file on the worker's filesystem.
func (s *Slot) Save(name string) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.Save(s.number, name)
}

func (s *Slot) Play() (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.Play(s.number)
}

func (s *Slot) PlayFromBeginning() (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.PlayFromBeginning(s.number)
}

func (s *Slot) Stop() (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.Stop(s.number)
}

func (s *Slot) Pause() (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.Pause(s.number)
}

func (s *Slot) Resume() (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.Resume(s.number)
}

func (s *Slot) SyncResume() (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.SyncResume(s.number)
}

func (s *Slot) SetAutostop(autostop int) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.SetAutostop(s.number, autostop)
}

func (s *Slot) Autostop() (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.Autostop(s.number)
}

func (s *Slot) EndOfSong() (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.EndOfSong(s.number)
}

func (s *Slot) Rewind(line int) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.Rewind(s.number, line)
}

func (s *Slot) Volume(vol int) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.Volume(s.number, vol)
}

func (s *Slot) SetEventTime(set int, t uint32) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.SetEventTime(s.number, set, t)
}

func (s *Slot) SendEvent(track, note, vel, module, ctl, ctlVal int) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.SendEvent(s.number, track, note, vel, module, ctl, ctlVal)
}

func (s *Slot) CurrentLine() (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.CurrentLine(s.number)
}

func (s *Slot) CurrentLine2() (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.CurrentLine2(s.number)
}

func (s *Slot) CurrentSignalLevel(channel int) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.CurrentSignalLevel(s.number, channel)
}

func (s *Slot) SongName() (string, error) {
	if err := s.check(); err != nil {
		return "", err
	}

	return s.p.SongName(s.number)
}

func (s *Slot) SongBPM() (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.SongBPM(s.number)
}

func (s *Slot) SongTPL() (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.SongTPL(s.number)
}

func (s *Slot) SongLengthFrames() (uint32, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.SongLengthFrames(s.number)
}

func (s *Slot) SongLengthLines() (uint32, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.SongLengthLines(s.number)
}

func (s *Slot) TimeMap(startLine, count int, flags TimeMapFlag) ([]uint32, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	return s.p.TimeMap(s.number, startLine, count, flags)
}

// NewModule creates a module in the slot's project. The operation mutates
// project structure, so it runs under the slot lock.
func (s *Slot) NewModule(moduleType, name string, x, y, z int) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.locked(func() (int, error) {
		return s.p.NewModule(s.number, moduleType, name, x, y, z)
	})
}

func (s *Slot) RemoveModule(module int) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.locked(func() (int, error) {
		return s.p.RemoveModule(s.number, module)
	})
}

func (s *Slot) ConnectModule(source, destination int) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.locked(func() (int, error) {
		return s.p.ConnectModule(s.number, source, destination)
	})
}

func (s *Slot) DisconnectModule(source, destination int) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.locked(func() (int, error) {
		return s.p.DisconnectModule(s.number, source, destination)
	})
}

func (s *Slot) LoadModule(name string, x, y, z int) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.LoadModule(s.number, name, x, y, z)
}

func (s *Slot) LoadModuleFromMemory(data []byte, x, y, z int) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.LoadModuleFromMemory(s.number, data, x, y, z)
}

func (s *Slot) SamplerLoad(sampler int, name string, sampleSlot int) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.SamplerLoad(s.number, sampler, name, sampleSlot)
}

func (s *Slot) SamplerLoadFromMemory(sampler int, data []byte, sampleSlot int) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.SamplerLoadFromMemory(s.number, sampler, data, sampleSlot)
}

func (s *Slot) NumberOfModules() (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.NumberOfModules(s.number)
}

func (s *Slot) FindModule(name string) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.FindModule(s.number, name)
}

func (s *Slot) ModuleFlags(module int) (ModuleFlag, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.ModuleFlags(s.number, module)
}

func (s *Slot) ModuleInputs(module int) ([]int32, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	return s.p.ModuleInputs(s.number, module)
}

func (s *Slot) ModuleOutputs(module int) ([]int32, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	return s.p.ModuleOutputs(s.number, module)
}

func (s *Slot) ModuleName(module int) (string, error) {
	if err := s.check(); err != nil {
		return "", err
	}

	return s.p.ModuleName(s.number, module)
}

func (s *Slot) ModuleXY(module int) (int, int, error) {
	if err := s.check(); err != nil {
		return 0, 0, err
	}

	packed, err := s.p.ModuleXY(s.number, module)
	if err != nil {
		return 0, 0, err
	}

	x, y := UnpackModuleXY(packed)

	return x, y, nil
}

func (s *Slot) ModuleColor(module int) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.ModuleColor(s.number, module)
}

func (s *Slot) ModuleFinetune(module int) (int, int, error) {
	if err := s.check(); err != nil {
		return 0, 0, err
	}

	packed, err := s.p.ModuleFinetune(s.number, module)
	if err != nil {
		return 0, 0, err
	}

	finetune, relative := UnpackModuleFinetune(packed)

	return finetune, relative, nil
}

func (s *Slot) ModuleScope(module, channel, samples int) ([]int16, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	return s.p.ModuleScope(s.number, module, channel, samples)
}

func (s *Slot) NumberOfModuleCtls(module int) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.NumberOfModuleCtls(s.number, module)
}

func (s *Slot) ModuleCtlName(module, ctl int) (string, error) {
	if err := s.check(); err != nil {
		return "", err
	}

	return s.p.ModuleCtlName(s.number, module, ctl)
}

func (s *Slot) ModuleCtlValue(module, ctl, scaled int) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.ModuleCtlValue(s.number, module, ctl, scaled)
}

func (s *Slot) SetModuleXY(module, x, y int) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.SetModuleXY(s.number, module, x, y)
}

func (s *Slot) SetModuleColor(module, color int) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.SetModuleColor(s.number, module, color)
}

func (s *Slot) SetModuleName(module int, name string) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.SetModuleName(s.number, module, name)
}

func (s *Slot) NumberOfPatterns() (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.NumberOfPatterns(s.number)
}

func (s *Slot) FindPattern(name string) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.FindPattern(s.number, name)
}

func (s *Slot) PatternX(pattern int) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.PatternX(s.number, pattern)
}

func (s *Slot) PatternY(pattern int) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.PatternY(s.number, pattern)
}

func (s *Slot) PatternTracks(pattern int) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.PatternTracks(s.number, pattern)
}

func (s *Slot) PatternLines(pattern int) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.PatternLines(s.number, pattern)
}

func (s *Slot) PatternName(pattern int) (string, error) {
	if err := s.check(); err != nil {
		return "", err
	}

	return s.p.PatternName(s.number, pattern)
}

func (s *Slot) PatternData(pattern int) ([]Note, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	return s.p.PatternData(s.number, pattern)
}

func (s *Slot) SetPatternEvent(pattern, track, line, nn, vv, mm, ccee, xxyy int) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.SetPatternEvent(s.number, pattern, track, line, nn, vv, mm, ccee, xxyy)
}

func (s *Slot) PatternEvent(pattern, track, line, column int) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.p.PatternEvent(s.number, pattern, track, line, column)
}

// PatternMute mutes or unmutes a pattern. Like the module graph mutations
// it requires the engine lock and takes it itself.
func (s *Slot) PatternMute(pattern, mute int) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	return s.locked(func() (int, error) {
		return s.p.PatternMute(s.number, pattern, mute)
	})
}
