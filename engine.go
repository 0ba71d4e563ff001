package sunvox

// Engine is the full native call surface of the SunVox library, one method
// per entry point. The production implementation is DLL, which binds the
// pre-built shared library inside the worker process; tests substitute their
// own implementations.
//
// Every method mirrors the native calling convention: status and results are
// small integers whose meaning is owned by the engine and passed through
// uninterpreted. Methods returning slices materialize engine-owned pointers
// into Go memory so that results can cross the process boundary.
type Engine interface {
	// Init performs global sound system init. config is an option string in
	// "name=value|name=value" form, empty for automatic configuration.
	// Returns the engine version or a negative error code.
	Init(config string, rate, channels int, flags InitFlag) int
	// Deinit performs global sound system deinit.
	Deinit() int
	// SampleRate returns the current sampling rate, which may differ from
	// the rate requested in Init.
	SampleRate() int
	// UpdateInput handles input ON/OFF requests for the sound card input
	// ports. Main thread only, with the sound stream unlocked.
	UpdateInput() int

	// AudioCallback renders the next frames from the Output module into buf.
	// Requires SV_INIT_FLAG_USER_AUDIO_CALLBACK.
	AudioCallback(buf []byte, frames, latency int, outTime uint32) int
	// AudioCallback2 sends input to the Input module and renders the
	// filtered result, otherwise like AudioCallback. inType is 0 for int16
	// input samples, 1 for float32.
	AudioCallback2(buf []byte, frames, latency int, outTime uint32, inType, inChannels int, inBuf []byte) int

	OpenSlot(slot int) int
	CloseSlot(slot int) int
	// LockSlot acquires the engine's internal structural lock for the slot.
	// Operations whose call table entry has NeedsLock set must only be
	// invoked between LockSlot and UnlockSlot.
	LockSlot(slot int) int
	UnlockSlot(slot int) int

	// Load loads a SunVox project from a file.
	Load(slot int, name string) int
	// LoadFromMemory loads a SunVox project from a memory block.
	LoadFromMemory(slot int, data []byte) int
	// Save saves the project to a file.
	Save(slot int, name string) int

	Play(slot int) int
	PlayFromBeginning(slot int) int
	// Stop stops playback; a second call resets all engine activity and
	// switches the slot to standby.
	Stop(slot int) int
	Pause(slot int) int
	Resume(slot int) int
	// SyncResume waits for sync (pattern effect 0x33 on any slot) and then
	// resumes the audio stream.
	SyncResume(slot int) int
	// SetAutostop controls end-of-song behavior: 0 loops forever, 1 stops.
	SetAutostop(slot, autostop int) int
	Autostop(slot int) int
	// EndOfSong returns 0 while the song is playing, 1 when stopped.
	EndOfSong(slot int) int
	Rewind(slot, line int) int
	// Volume sets slot volume from 0 to 256 (100%); negative values are
	// ignored. Returns the previous volume.
	Volume(slot, vol int) int

	// SetEventTime pins (set=1) or resets (set=0) the engine timestamp used
	// for subsequent SendEvent calls.
	SetEventTime(slot, set int, t uint32) int
	// SendEvent sends a note on/off or controller change. module is 0 for
	// none, otherwise module number + 1. ctl is 0xCCEE.
	SendEvent(slot, track, note, vel, module, ctl, ctlVal int) int

	CurrentLine(slot int) int
	// CurrentLine2 returns the current line in fixed point 27.5 format.
	CurrentLine2(slot int) int
	// CurrentSignalLevel returns 0..255 for the given output channel.
	CurrentSignalLevel(slot, channel int) int

	SongName(slot int) string
	SongBPM(slot int) int
	SongTPL(slot int) int
	SongLengthFrames(slot int) uint32
	SongLengthLines(slot int) uint32
	// TimeMap reads count per-line values starting at startLine; flags
	// selects speed or frame counter values.
	TimeMap(slot, startLine, count int, flags TimeMapFlag) []uint32

	// NewModule creates a module. Structural lock required.
	NewModule(slot int, moduleType, name string, x, y, z int) int
	// RemoveModule removes a module. Structural lock required.
	RemoveModule(slot, module int) int
	// ConnectModule connects source to destination. Structural lock required.
	ConnectModule(slot, source, destination int) int
	// DisconnectModule disconnects source from destination. Structural lock
	// required.
	DisconnectModule(slot, source, destination int) int

	// LoadModule loads a module or sample file (sunsynth, xi, wav, aiff).
	// Returns the new module number or a negative error code.
	LoadModule(slot int, name string, x, y, z int) int
	LoadModuleFromMemory(slot int, data []byte, x, y, z int) int
	// SamplerLoad loads a sample into an existing Sampler; sampleSlot -1
	// replaces the whole sampler.
	SamplerLoad(slot, sampler int, name string, sampleSlot int) int
	SamplerLoadFromMemory(slot, sampler int, data []byte, sampleSlot int) int

	// NumberOfModules returns the number of module slots, not the number of
	// live modules; use ModuleFlags and SV_MODULE_FLAG_EXISTS to probe.
	NumberOfModules(slot int) int
	// FindModule returns the module number or -1 if not found.
	FindModule(slot int, name string) int
	ModuleFlags(slot, module int) ModuleFlag
	// ModuleInputs returns the input link array; empty links hold -1.
	ModuleInputs(slot, module int) []int32
	// ModuleOutputs returns the output link array; empty links hold -1.
	ModuleOutputs(slot, module int) []int32
	ModuleName(slot, module int) string
	// ModuleXY returns packed coordinates; see UnpackModuleXY.
	ModuleXY(slot, module int) uint32
	// ModuleColor returns the color as 0xBBGGRR.
	ModuleColor(slot, module int) int
	// ModuleFinetune returns the packed finetune and relative note; see
	// UnpackModuleFinetune.
	ModuleFinetune(slot, module int) uint32
	// ModuleScope reads up to samples oscilloscope values for one channel;
	// the returned slice holds what the engine actually produced.
	ModuleScope(slot, module, channel, samples int) []int16
	NumberOfModuleCtls(slot, module int) int
	ModuleCtlName(slot, module, ctl int) string
	ModuleCtlValue(slot, module, ctl, scaled int) int
	SetModuleXY(slot, module, x, y int) int
	SetModuleColor(slot, module, color int) int
	SetModuleName(slot, module int, name string) int

	// NumberOfPatterns returns the number of pattern slots, not the number
	// of live patterns; a slot with PatternLines > 0 holds a pattern.
	NumberOfPatterns(slot int) int
	// FindPattern returns the pattern number or -1 if not found.
	FindPattern(slot int, name string) int
	PatternX(slot, pattern int) int
	PatternY(slot, pattern int) int
	PatternTracks(slot, pattern int) int
	PatternLines(slot, pattern int) int
	PatternName(slot, pattern int) string
	// PatternData returns the full cell buffer, lines x tracks records in
	// line-major order.
	PatternData(slot, pattern int) []Note
	// SetPatternEvent writes one cell; negative field values are skipped.
	SetPatternEvent(slot, pattern, track, line, nn, vv, mm, ccee, xxyy int) int
	// PatternEvent reads one field of one cell; column 0..4 selects
	// NN, VV, MM, CCEE or XXYY.
	PatternEvent(slot, pattern, track, line, column int) int
	// PatternMute mutes (1) or unmutes (0) a pattern and returns the
	// previous state. Structural lock required.
	PatternMute(slot, pattern, mute int) int

	// Ticks returns the engine tick counter (engine time space, wraps at
	// 0xFFFFFFFF).
	Ticks() uint32
	TicksPerSecond() uint32
	// Log returns up to size bytes of the most recent engine log output.
	Log(size int) string
}
