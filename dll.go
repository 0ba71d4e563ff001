package sunvox

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"unsafe"

	"github.com/ebitengine/purego"
)

// Environment variables controlling which engine image gets loaded.
const (
	// EnvLibraryPath points at the shared library file itself.
	EnvLibraryPath = "SUNVOX_DLL_PATH"
	// EnvLibraryBase points at a directory laid out like the official
	// SunVox developer distribution; the platform-specific library is
	// resolved beneath it.
	EnvLibraryBase = "SUNVOX_DLL_BASE"
)

// DLL binds the pre-built SunVox shared library through its C calling
// convention. The engine keeps process-global state: load it at most once
// per process, which is exactly what the worker process does.
type DLL struct {
	handle uintptr

	svInit                  func(config unsafe.Pointer, rate, channels int32, flags uint32) int32
	svDeinit                func() int32
	svGetSampleRate         func() int32
	svUpdateInput           func() int32
	svAudioCallback         func(buf unsafe.Pointer, frames, latency int32, outTime uint32) int32
	svAudioCallback2        func(buf unsafe.Pointer, frames, latency int32, outTime uint32, inType, inChannels int32, inBuf unsafe.Pointer) int32
	svOpenSlot              func(slot int32) int32
	svCloseSlot             func(slot int32) int32
	svLockSlot              func(slot int32) int32
	svUnlockSlot            func(slot int32) int32
	svLoad                  func(slot int32, name string) int32
	svLoadFromMemory        func(slot int32, data unsafe.Pointer, size uint32) int32
	svSave                  func(slot int32, name string) int32
	svPlay                  func(slot int32) int32
	svPlayFromBeginning     func(slot int32) int32
	svStop                  func(slot int32) int32
	svPause                 func(slot int32) int32
	svResume                func(slot int32) int32
	svSyncResume            func(slot int32) int32
	svSetAutostop           func(slot, autostop int32) int32
	svGetAutostop           func(slot int32) int32
	svEndOfSong             func(slot int32) int32
	svRewind                func(slot, line int32) int32
	svVolume                func(slot, vol int32) int32
	svSetEventT             func(slot, set int32, t uint32) int32
	svSendEvent             func(slot, track, note, vel, module, ctl, ctlVal int32) int32
	svGetCurrentLine        func(slot int32) int32
	svGetCurrentLine2       func(slot int32) int32
	svGetCurrentSignalLevel func(slot, channel int32) int32
	svGetSongName           func(slot int32) string
	svGetSongBPM            func(slot int32) int32
	svGetSongTPL            func(slot int32) int32
	svGetSongLengthFrames   func(slot int32) uint32
	svGetSongLengthLines    func(slot int32) uint32
	svGetTimeMap            func(slot, startLine, count int32, dest unsafe.Pointer, flags int32) int32
	svNewModule             func(slot int32, moduleType, name string, x, y, z int32) int32
	svRemoveModule          func(slot, module int32) int32
	svConnectModule         func(slot, source, destination int32) int32
	svDisconnectModule      func(slot, source, destination int32) int32
	svLoadModule            func(slot int32, name string, x, y, z int32) int32
	svLoadModuleFromMemory  func(slot int32, data unsafe.Pointer, size uint32, x, y, z int32) int32
	svSamplerLoad           func(slot, sampler int32, name string, sampleSlot int32) int32
	svSamplerLoadFromMem    func(slot, sampler int32, data unsafe.Pointer, size uint32, sampleSlot int32) int32
	svGetNumberOfModules    func(slot int32) int32
	svFindModule            func(slot int32, name string) int32
	svGetModuleFlags        func(slot, module int32) uint32
	svGetModuleInputs       func(slot, module int32) uintptr
	svGetModuleOutputs      func(slot, module int32) uintptr
	svGetModuleName         func(slot, module int32) string
	svGetModuleXY           func(slot, module int32) uint32
	svGetModuleColor        func(slot, module int32) int32
	svGetModuleFinetune     func(slot, module int32) uint32
	svGetModuleScope2       func(slot, module, channel int32, dest unsafe.Pointer, samples uint32) uint32
	svGetNumberOfModuleCtls func(slot, module int32) int32
	svGetModuleCtlName      func(slot, module, ctl int32) string
	svGetModuleCtlValue     func(slot, module, ctl, scaled int32) int32
	svSetModuleXY           func(slot, module, x, y int32) int32
	svSetModuleColor        func(slot, module, color int32) int32
	svSetModuleName         func(slot, module int32, name string) int32
	svGetNumberOfPatterns   func(slot int32) int32
	svFindPattern           func(slot int32, name string) int32
	svGetPatternX           func(slot, pattern int32) int32
	svGetPatternY           func(slot, pattern int32) int32
	svGetPatternTracks      func(slot, pattern int32) int32
	svGetPatternLines       func(slot, pattern int32) int32
	svGetPatternName        func(slot, pattern int32) string
	svGetPatternData        func(slot, pattern int32) uintptr
	svSetPatternEvent       func(slot, pattern, track, line, nn, vv, mm, ccee, xxyy int32) int32
	svGetPatternEvent       func(slot, pattern, track, line, column int32) int32
	svPatternMute           func(slot, pattern, mute int32) int32
	svGetTicks              func() uint32
	svGetTicksPerSecond     func() uint32
	svGetLog                func(size int32) string
}

// LibraryPath resolves the SunVox shared library for the current platform.
// SUNVOX_DLL_PATH wins outright; SUNVOX_DLL_BASE is searched using the
// layout of the official library distribution; otherwise the plain library
// name is returned and left to the dynamic loader's search path.
func LibraryPath() (string, error) {
	if p := os.Getenv(EnvLibraryPath); p != "" {
		return p, nil
	}

	name := "sunvox.so"
	if runtime.GOOS == "darwin" {
		name = "sunvox.dylib"
	}

	base := os.Getenv(EnvLibraryBase)
	if base == "" {
		return name, nil
	}

	rel, ok := map[string]string{
		"linux/amd64":  "linux/lib_x86_64",
		"linux/386":    "linux/lib_x86",
		"linux/arm":    "linux/lib_arm_armhf_raspberry_pi",
		"linux/arm64":  "linux/lib_arm64",
		"darwin/amd64": "osx/lib_x86_64",
		"darwin/arm64": "osx/lib_arm64",
	}[runtime.GOOS+"/"+runtime.GOARCH]
	if !ok {
		return "", fmt.Errorf("no SunVox library known for %s/%s under %s", runtime.GOOS, runtime.GOARCH, base)
	}

	return filepath.Join(base, rel, name), nil
}

// LoadDLL loads the SunVox shared library from path and registers every
// entry point. An empty path uses LibraryPath resolution.
func LoadDLL(path string) (*DLL, error) {
	if path == "" {
		var err error
		path, err = LibraryPath()
		if err != nil {
			return nil, err
		}
	}

	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("failed to load SunVox library %s: %w", path, err)
	}

	d := &DLL{handle: handle}

	for _, reg := range []struct {
		fptr any
		name string
	}{
		{&d.svInit, "sv_init"},
		{&d.svDeinit, "sv_deinit"},
		{&d.svGetSampleRate, "sv_get_sample_rate"},
		{&d.svUpdateInput, "sv_update_input"},
		{&d.svAudioCallback, "sv_audio_callback"},
		{&d.svAudioCallback2, "sv_audio_callback2"},
		{&d.svOpenSlot, "sv_open_slot"},
		{&d.svCloseSlot, "sv_close_slot"},
		{&d.svLockSlot, "sv_lock_slot"},
		{&d.svUnlockSlot, "sv_unlock_slot"},
		{&d.svLoad, "sv_load"},
		{&d.svLoadFromMemory, "sv_load_from_memory"},
		{&d.svSave, "sv_save"},
		{&d.svPlay, "sv_play"},
		{&d.svPlayFromBeginning, "sv_play_from_beginning"},
		{&d.svStop, "sv_stop"},
		{&d.svPause, "sv_pause"},
		{&d.svResume, "sv_resume"},
		{&d.svSyncResume, "sv_sync_resume"},
		{&d.svSetAutostop, "sv_set_autostop"},
		{&d.svGetAutostop, "sv_get_autostop"},
		{&d.svEndOfSong, "sv_end_of_song"},
		{&d.svRewind, "sv_rewind"},
		{&d.svVolume, "sv_volume"},
		{&d.svSetEventT, "sv_set_event_t"},
		{&d.svSendEvent, "sv_send_event"},
		{&d.svGetCurrentLine, "sv_get_current_line"},
		{&d.svGetCurrentLine2, "sv_get_current_line2"},
		{&d.svGetCurrentSignalLevel, "sv_get_current_signal_level"},
		{&d.svGetSongName, "sv_get_song_name"},
		{&d.svGetSongBPM, "sv_get_song_bpm"},
		{&d.svGetSongTPL, "sv_get_song_tpl"},
		{&d.svGetSongLengthFrames, "sv_get_song_length_frames"},
		{&d.svGetSongLengthLines, "sv_get_song_length_lines"},
		{&d.svGetTimeMap, "sv_get_time_map"},
		{&d.svNewModule, "sv_new_module"},
		{&d.svRemoveModule, "sv_remove_module"},
		{&d.svConnectModule, "sv_connect_module"},
		{&d.svDisconnectModule, "sv_disconnect_module"},
		{&d.svLoadModule, "sv_load_module"},
		{&d.svLoadModuleFromMemory, "sv_load_module_from_memory"},
		{&d.svSamplerLoad, "sv_sampler_load"},
		{&d.svSamplerLoadFromMem, "sv_sampler_load_from_memory"},
		{&d.svGetNumberOfModules, "sv_get_number_of_modules"},
		{&d.svFindModule, "sv_find_module"},
		{&d.svGetModuleFlags, "sv_get_module_flags"},
		{&d.svGetModuleInputs, "sv_get_module_inputs"},
		{&d.svGetModuleOutputs, "sv_get_module_outputs"},
		{&d.svGetModuleName, "sv_get_module_name"},
		{&d.svGetModuleXY, "sv_get_module_xy"},
		{&d.svGetModuleColor, "sv_get_module_color"},
		{&d.svGetModuleFinetune, "sv_get_module_finetune"},
		{&d.svGetModuleScope2, "sv_get_module_scope2"},
		{&d.svGetNumberOfModuleCtls, "sv_get_number_of_module_ctls"},
		{&d.svGetModuleCtlName, "sv_get_module_ctl_name"},
		{&d.svGetModuleCtlValue, "sv_get_module_ctl_value"},
		{&d.svSetModuleXY, "sv_set_module_xy"},
		{&d.svSetModuleColor, "sv_set_module_color"},
		{&d.svSetModuleName, "sv_set_module_name"},
		{&d.svGetNumberOfPatterns, "sv_get_number_of_patterns"},
		{&d.svFindPattern, "sv_find_pattern"},
		{&d.svGetPatternX, "sv_get_pattern_x"},
		{&d.svGetPatternY, "sv_get_pattern_y"},
		{&d.svGetPatternTracks, "sv_get_pattern_tracks"},
		{&d.svGetPatternLines, "sv_get_pattern_lines"},
		{&d.svGetPatternName, "sv_get_pattern_name"},
		{&d.svGetPatternData, "sv_get_pattern_data"},
		{&d.svSetPatternEvent, "sv_set_pattern_event"},
		{&d.svGetPatternEvent, "sv_get_pattern_event"},
		{&d.svPatternMute, "sv_pattern_mute"},
		{&d.svGetTicks, "sv_get_ticks"},
		{&d.svGetTicksPerSecond, "sv_get_ticks_per_second"},
		{&d.svGetLog, "sv_get_log"},
	} {
		purego.RegisterLibFunc(reg.fptr, handle, reg.name)
	}

	return d, nil
}

// bufPtr returns the address of a byte slice's backing array, or nil for an
// empty slice.
func bufPtr(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}

	return unsafe.Pointer(&b[0])
}

func (d *DLL) Init(config string, rate, channels int, flags InitFlag) int {
	// The engine distinguishes NULL (automatic configuration) from an
	// option string, so an empty config must become a nil pointer.
	var cfg unsafe.Pointer
	if config != "" {
		raw := append([]byte(config), 0)
		cfg = unsafe.Pointer(&raw[0])
	}

	return int(d.svInit(cfg, int32(rate), int32(channels), uint32(flags)))
}

func (d *DLL) Deinit() int { return int(d.svDeinit()) }
func (d *DLL) SampleRate() int { return int(d.svGetSampleRate()) }
func (d *DLL) UpdateInput() int { return int(d.svUpdateInput()) }

func (d *DLL) AudioCallback(buf []byte, frames, latency int, outTime uint32) int {
	return int(d.svAudioCallback(bufPtr(buf), int32(frames), int32(latency), outTime))
}

func (d *DLL) AudioCallback2(buf []byte, frames, latency int, outTime uint32, inType, inChannels int, inBuf []byte) int {
	return int(d.svAudioCallback2(bufPtr(buf), int32(frames), int32(latency), outTime,
		int32(inType), int32(inChannels), bufPtr(inBuf)))
}

func (d *DLL) OpenSlot(slot int) int { return int(d.svOpenSlot(int32(slot))) }
func (d *DLL) CloseSlot(slot int) int { return int(d.svCloseSlot(int32(slot))) }
func (d *DLL) LockSlot(slot int) int { return int(d.svLockSlot(int32(slot))) }
func (d *DLL) UnlockSlot(slot int) int { return int(d.svUnlockSlot(int32(slot))) }

func (d *DLL) Load(slot int, name string) int { return int(d.svLoad(int32(slot), name)) }

func (d *DLL) LoadFromMemory(slot int, data []byte) int {
	return int(d.svLoadFromMemory(int32(slot), bufPtr(data), uint32(len(data))))
}

func (d *DLL) Save(slot int, name string) int { return int(d.svSave(int32(slot), name)) }

func (d *DLL) Play(slot int) int { return int(d.svPlay(int32(slot))) }
func (d *DLL) PlayFromBeginning(slot int) int { return int(d.svPlayFromBeginning(int32(slot))) }
func (d *DLL) Stop(slot int) int { return int(d.svStop(int32(slot))) }
func (d *DLL) Pause(slot int) int { return int(d.svPause(int32(slot))) }
func (d *DLL) Resume(slot int) int { return int(d.svResume(int32(slot))) }
func (d *DLL) SyncResume(slot int) int { return int(d.svSyncResume(int32(slot))) }

func (d *DLL) SetAutostop(slot, autostop int) int {
	return int(d.svSetAutostop(int32(slot), int32(autostop)))
}

func (d *DLL) Autostop(slot int) int { return int(d.svGetAutostop(int32(slot))) }
func (d *DLL) EndOfSong(slot int) int { return int(d.svEndOfSong(int32(slot))) }

func (d *DLL) Rewind(slot, line int) int { return int(d.svRewind(int32(slot), int32(line))) }
func (d *DLL) Volume(slot, vol int) int { return int(d.svVolume(int32(slot), int32(vol))) }

func (d *DLL) SetEventTime(slot, set int, t uint32) int {
	return int(d.svSetEventT(int32(slot), int32(set), t))
}

func (d *DLL) SendEvent(slot, track, note, vel, module, ctl, ctlVal int) int {
	return int(d.svSendEvent(int32(slot), int32(track), int32(note), int32(vel),
		int32(module), int32(ctl), int32(ctlVal)))
}

func (d *DLL) CurrentLine(slot int) int { return int(d.svGetCurrentLine(int32(slot))) }
func (d *DLL) CurrentLine2(slot int) int { return int(d.svGetCurrentLine2(int32(slot))) }

func (d *DLL) CurrentSignalLevel(slot, channel int) int {
	return int(d.svGetCurrentSignalLevel(int32(slot), int32(channel)))
}

func (d *DLL) SongName(slot int) string { return d.svGetSongName(int32(slot)) }
func (d *DLL) SongBPM(slot int) int { return int(d.svGetSongBPM(int32(slot))) }
func (d *DLL) SongTPL(slot int) int { return int(d.svGetSongTPL(int32(slot))) }
func (d *DLL) SongLengthFrames(slot int) uint32 { return d.svGetSongLengthFrames(int32(slot)) }
func (d *DLL) SongLengthLines(slot int) uint32 { return d.svGetSongLengthLines(int32(slot)) }

func (d *DLL) TimeMap(slot, startLine, count int, flags TimeMapFlag) []uint32 {
	if count <= 0 {
		return nil
	}

	dest := make([]uint32, count)
	if d.svGetTimeMap(int32(slot), int32(startLine), int32(count), unsafe.Pointer(&dest[0]), int32(flags)) < 0 {
		return nil
	}

	return dest
}

func (d *DLL) NewModule(slot int, moduleType, name string, x, y, z int) int {
	return int(d.svNewModule(int32(slot), moduleType, name, int32(x), int32(y), int32(z)))
}

func (d *DLL) RemoveModule(slot, module int) int {
	return int(d.svRemoveModule(int32(slot), int32(module)))
}

func (d *DLL) ConnectModule(slot, source, destination int) int {
	return int(d.svConnectModule(int32(slot), int32(source), int32(destination)))
}

func (d *DLL) DisconnectModule(slot, source, destination int) int {
	return int(d.svDisconnectModule(int32(slot), int32(source), int32(destination)))
}

func (d *DLL) LoadModule(slot int, name string, x, y, z int) int {
	return int(d.svLoadModule(int32(slot), name, int32(x), int32(y), int32(z)))
}

func (d *DLL) LoadModuleFromMemory(slot int, data []byte, x, y, z int) int {
	return int(d.svLoadModuleFromMemory(int32(slot), bufPtr(data), uint32(len(data)),
		int32(x), int32(y), int32(z)))
}

func (d *DLL) SamplerLoad(slot, sampler int, name string, sampleSlot int) int {
	return int(d.svSamplerLoad(int32(slot), int32(sampler), name, int32(sampleSlot)))
}

func (d *DLL) SamplerLoadFromMemory(slot, sampler int, data []byte, sampleSlot int) int {
	return int(d.svSamplerLoadFromMem(int32(slot), int32(sampler), bufPtr(data), uint32(len(data)),
		int32(sampleSlot)))
}

func (d *DLL) NumberOfModules(slot int) int { return int(d.svGetNumberOfModules(int32(slot))) }

func (d *DLL) FindModule(slot int, name string) int {
	return int(d.svFindModule(int32(slot), name))
}

func (d *DLL) ModuleFlags(slot, module int) ModuleFlag {
	return ModuleFlag(d.svGetModuleFlags(int32(slot), int32(module)))
}

// moduleLinks copies an engine-owned int array into Go memory. count comes
// from the module flags field for the corresponding direction.
func moduleLinks(ptr uintptr, count int) []int32 {
	if ptr == 0 || count <= 0 {
		return nil
	}

	links := make([]int32, count)
	copy(links, unsafe.Slice((*int32)(unsafe.Pointer(ptr)), count))

	return links
}

func (d *DLL) ModuleInputs(slot, module int) []int32 {
	flags := ModuleFlag(d.svGetModuleFlags(int32(slot), int32(module)))
	count := int((flags & SV_MODULE_INPUTS_MASK) >> SV_MODULE_INPUTS_OFF)

	return moduleLinks(d.svGetModuleInputs(int32(slot), int32(module)), count)
}

func (d *DLL) ModuleOutputs(slot, module int) []int32 {
	flags := ModuleFlag(d.svGetModuleFlags(int32(slot), int32(module)))
	count := int((flags & SV_MODULE_OUTPUTS_MASK) >> SV_MODULE_OUTPUTS_OFF)

	return moduleLinks(d.svGetModuleOutputs(int32(slot), int32(module)), count)
}

func (d *DLL) ModuleName(slot, module int) string {
	return d.svGetModuleName(int32(slot), int32(module))
}

func (d *DLL) ModuleXY(slot, module int) uint32 {
	return d.svGetModuleXY(int32(slot), int32(module))
}

func (d *DLL) ModuleColor(slot, module int) int {
	return int(d.svGetModuleColor(int32(slot), int32(module)))
}

func (d *DLL) ModuleFinetune(slot, module int) uint32 {
	return d.svGetModuleFinetune(int32(slot), int32(module))
}

func (d *DLL) ModuleScope(slot, module, channel, samples int) []int16 {
	if samples <= 0 {
		return nil
	}

	dest := make([]int16, samples)
	got := d.svGetModuleScope2(int32(slot), int32(module), int32(channel),
		unsafe.Pointer(&dest[0]), uint32(samples))

	return dest[:got]
}

func (d *DLL) NumberOfModuleCtls(slot, module int) int {
	return int(d.svGetNumberOfModuleCtls(int32(slot), int32(module)))
}

func (d *DLL) ModuleCtlName(slot, module, ctl int) string {
	return d.svGetModuleCtlName(int32(slot), int32(module), int32(ctl))
}

func (d *DLL) ModuleCtlValue(slot, module, ctl, scaled int) int {
	return int(d.svGetModuleCtlValue(int32(slot), int32(module), int32(ctl), int32(scaled)))
}

func (d *DLL) SetModuleXY(slot, module, x, y int) int {
	return int(d.svSetModuleXY(int32(slot), int32(module), int32(x), int32(y)))
}

func (d *DLL) SetModuleColor(slot, module, color int) int {
	return int(d.svSetModuleColor(int32(slot), int32(module), int32(color)))
}

func (d *DLL) SetModuleName(slot, module int, name string) int {
	return int(d.svSetModuleName(int32(slot), int32(module), name))
}

func (d *DLL) NumberOfPatterns(slot int) int { return int(d.svGetNumberOfPatterns(int32(slot))) }

func (d *DLL) FindPattern(slot int, name string) int {
	return int(d.svFindPattern(int32(slot), name))
}

func (d *DLL) PatternX(slot, pattern int) int { return int(d.svGetPatternX(int32(slot), int32(pattern))) }
func (d *DLL) PatternY(slot, pattern int) int { return int(d.svGetPatternY(int32(slot), int32(pattern))) }

func (d *DLL) PatternTracks(slot, pattern int) int {
	return int(d.svGetPatternTracks(int32(slot), int32(pattern)))
}

func (d *DLL) PatternLines(slot, pattern int) int {
	return int(d.svGetPatternLines(int32(slot), int32(pattern)))
}

func (d *DLL) PatternName(slot, pattern int) string {
	return d.svGetPatternName(int32(slot), int32(pattern))
}

func (d *DLL) PatternData(slot, pattern int) []Note {
	tracks := int(d.svGetPatternTracks(int32(slot), int32(pattern)))
	lines := int(d.svGetPatternLines(int32(slot), int32(pattern)))
	ptr := d.svGetPatternData(int32(slot), int32(pattern))
	if ptr == 0 || tracks <= 0 || lines <= 0 {
		return nil
	}

	cells := unsafe.Slice((*Note)(unsafe.Pointer(ptr)), tracks*lines)
	out := make([]Note, len(cells))
	copy(out, cells)

	return out
}

func (d *DLL) SetPatternEvent(slot, pattern, track, line, nn, vv, mm, ccee, xxyy int) int {
	return int(d.svSetPatternEvent(int32(slot), int32(pattern), int32(track), int32(line),
		int32(nn), int32(vv), int32(mm), int32(ccee), int32(xxyy)))
}

func (d *DLL) PatternEvent(slot, pattern, track, line, column int) int {
	return int(d.svGetPatternEvent(int32(slot), int32(pattern), int32(track), int32(line), int32(column)))
}

func (d *DLL) PatternMute(slot, pattern, mute int) int {
	return int(d.svPatternMute(int32(slot), int32(pattern), int32(mute)))
}

func (d *DLL) Ticks() uint32 { return d.svGetTicks() }
func (d *DLL) TicksPerSecond() uint32 { return d.svGetTicksPerSecond() }
func (d *DLL) Log(size int) string { return d.svGetLog(int32(size)) }

// Interface guard.
var _ Engine = (*DLL)(nil)
