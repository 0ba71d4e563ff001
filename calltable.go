package sunvox

// Op identifies one operation that can travel across the bridge between a
// Process and its worker. The set is closed: both the supervisor-side
// forwarding methods and the worker-side dispatch table are built from
// CallTable, so a mismatch is caught at startup rather than at the first
// failed call.
type Op int

const (
	OpInit Op = iota
	OpDeinit
	OpGetSampleRate
	OpUpdateInput
	OpOpenSlot
	OpCloseSlot
	OpLockSlot
	OpUnlockSlot
	OpLoad
	OpLoadFromMemory
	OpSave
	OpPlay
	OpPlayFromBeginning
	OpStop
	OpPause
	OpResume
	OpSyncResume
	OpSetAutostop
	OpGetAutostop
	OpEndOfSong
	OpRewind
	OpVolume
	OpSetEventTime
	OpSendEvent
	OpGetCurrentLine
	OpGetCurrentLine2
	OpGetCurrentSignalLevel
	OpGetSongName
	OpGetSongBPM
	OpGetSongTPL
	OpGetSongLengthFrames
	OpGetSongLengthLines
	OpGetTimeMap
	OpNewModule
	OpRemoveModule
	OpConnectModule
	OpDisconnectModule
	OpLoadModule
	OpLoadModuleFromMemory
	OpSamplerLoad
	OpSamplerLoadFromMemory
	OpGetNumberOfModules
	OpFindModule
	OpGetModuleFlags
	OpGetModuleInputs
	OpGetModuleOutputs
	OpGetModuleName
	OpGetModuleXY
	OpGetModuleColor
	OpGetModuleFinetune
	OpGetModuleScope
	OpGetNumberOfModuleCtls
	OpGetModuleCtlName
	OpGetModuleCtlValue
	OpSetModuleXY
	OpSetModuleColor
	OpSetModuleName
	OpGetNumberOfPatterns
	OpFindPattern
	OpGetPatternX
	OpGetPatternY
	OpGetPatternTracks
	OpGetPatternLines
	OpGetPatternName
	OpGetPatternData
	OpSetPatternEvent
	OpGetPatternEvent
	OpPatternMute
	OpGetTicks
	OpGetTicksPerSecond
	OpGetLog

	// Bridge-level operations, handled by the worker itself rather than
	// forwarded to a single engine entry point.
	OpInitBuffer
	OpFillBuffer
	OpInitShmBuffer
	OpFillShmBuffer
	OpKill

	opCount
)

// Descriptor describes the wire contract of one operation: its name, the
// kinds of its positional arguments, the kind of its single result, whether
// the engine's structural lock must be held around it, and whether it is a
// bridge-level operation owned by the worker.
type Descriptor struct {
	Name      string
	Args      []Kind
	Ret       Kind
	NeedsLock bool
	Bridge    bool
}

// CallTable is the static registry of every bridge operation. It is the
// single source of truth for the supervisor's forwarding methods and the
// worker's dispatcher.
var CallTable = map[Op]Descriptor{
	OpInit:          {Name: "init", Args: []Kind{KindString, KindInt, KindInt, KindInt}, Ret: KindInt},
	OpDeinit:        {Name: "deinit", Ret: KindInt},
	OpGetSampleRate: {Name: "get_sample_rate", Ret: KindInt},
	OpUpdateInput:   {Name: "update_input", Ret: KindInt},

	OpOpenSlot:   {Name: "open_slot", Args: []Kind{KindInt}, Ret: KindInt},
	OpCloseSlot:  {Name: "close_slot", Args: []Kind{KindInt}, Ret: KindInt},
	OpLockSlot:   {Name: "lock_slot", Args: []Kind{KindInt}, Ret: KindInt},
	OpUnlockSlot: {Name: "unlock_slot", Args: []Kind{KindInt}, Ret: KindInt},

	OpLoad:           {Name: "load", Args: []Kind{KindInt, KindString}, Ret: KindInt},
	OpLoadFromMemory: {Name: "load_from_memory", Args: []Kind{KindInt, KindBytes}, Ret: KindInt},
	OpSave:           {Name: "save", Args: []Kind{KindInt, KindString}, Ret: KindInt},

	OpPlay:              {Name: "play", Args: []Kind{KindInt}, Ret: KindInt},
	OpPlayFromBeginning: {Name: "play_from_beginning", Args: []Kind{KindInt}, Ret: KindInt},
	OpStop:              {Name: "stop", Args: []Kind{KindInt}, Ret: KindInt},
	OpPause:             {Name: "pause", Args: []Kind{KindInt}, Ret: KindInt},
	OpResume:            {Name: "resume", Args: []Kind{KindInt}, Ret: KindInt},
	OpSyncResume:        {Name: "sync_resume", Args: []Kind{KindInt}, Ret: KindInt},
	OpSetAutostop:       {Name: "set_autostop", Args: []Kind{KindInt, KindInt}, Ret: KindInt},
	OpGetAutostop:       {Name: "get_autostop", Args: []Kind{KindInt}, Ret: KindInt},
	OpEndOfSong:         {Name: "end_of_song", Args: []Kind{KindInt}, Ret: KindInt},
	OpRewind:            {Name: "rewind", Args: []Kind{KindInt, KindInt}, Ret: KindInt},
	OpVolume:            {Name: "volume", Args: []Kind{KindInt, KindInt}, Ret: KindInt},

	OpSetEventTime: {Name: "set_event_t", Args: []Kind{KindInt, KindInt, KindInt}, Ret: KindInt},
	OpSendEvent:    {Name: "send_event", Args: []Kind{KindInt, KindInt, KindInt, KindInt, KindInt, KindInt, KindInt}, Ret: KindInt},

	OpGetCurrentLine:        {Name: "get_current_line", Args: []Kind{KindInt}, Ret: KindInt},
	OpGetCurrentLine2:       {Name: "get_current_line2", Args: []Kind{KindInt}, Ret: KindInt},
	OpGetCurrentSignalLevel: {Name: "get_current_signal_level", Args: []Kind{KindInt, KindInt}, Ret: KindInt},

	OpGetSongName:         {Name: "get_song_name", Args: []Kind{KindInt}, Ret: KindString},
	OpGetSongBPM:          {Name: "get_song_bpm", Args: []Kind{KindInt}, Ret: KindInt},
	OpGetSongTPL:          {Name: "get_song_tpl", Args: []Kind{KindInt}, Ret: KindInt},
	OpGetSongLengthFrames: {Name: "get_song_length_frames", Args: []Kind{KindInt}, Ret: KindInt},
	OpGetSongLengthLines:  {Name: "get_song_length_lines", Args: []Kind{KindInt}, Ret: KindInt},
	OpGetTimeMap:          {Name: "get_time_map", Args: []Kind{KindInt, KindInt, KindInt, KindInt}, Ret: KindBytes},

	OpNewModule:        {Name: "new_module", Args: []Kind{KindInt, KindString, KindString, KindInt, KindInt, KindInt}, Ret: KindInt, NeedsLock: true},
	OpRemoveModule:     {Name: "remove_module", Args: []Kind{KindInt, KindInt}, Ret: KindInt, NeedsLock: true},
	OpConnectModule:    {Name: "connect_module", Args: []Kind{KindInt, KindInt, KindInt}, Ret: KindInt, NeedsLock: true},
	OpDisconnectModule: {Name: "disconnect_module", Args: []Kind{KindInt, KindInt, KindInt}, Ret: KindInt, NeedsLock: true},

	OpLoadModule:            {Name: "load_module", Args: []Kind{KindInt, KindString, KindInt, KindInt, KindInt}, Ret: KindInt},
	OpLoadModuleFromMemory:  {Name: "load_module_from_memory", Args: []Kind{KindInt, KindBytes, KindInt, KindInt, KindInt}, Ret: KindInt},
	OpSamplerLoad:           {Name: "sampler_load", Args: []Kind{KindInt, KindInt, KindString, KindInt}, Ret: KindInt},
	OpSamplerLoadFromMemory: {Name: "sampler_load_from_memory", Args: []Kind{KindInt, KindInt, KindBytes, KindInt}, Ret: KindInt},

	OpGetNumberOfModules: {Name: "get_number_of_modules", Args: []Kind{KindInt}, Ret: KindInt},
	OpFindModule:         {Name: "find_module", Args: []Kind{KindInt, KindString}, Ret: KindInt},
	OpGetModuleFlags:     {Name: "get_module_flags", Args: []Kind{KindInt, KindInt}, Ret: KindInt},
	OpGetModuleInputs:    {Name: "get_module_inputs", Args: []Kind{KindInt, KindInt}, Ret: KindBytes},
	OpGetModuleOutputs:   {Name: "get_module_outputs", Args: []Kind{KindInt, KindInt}, Ret: KindBytes},
	OpGetModuleName:      {Name: "get_module_name", Args: []Kind{KindInt, KindInt}, Ret: KindString},
	OpGetModuleXY:        {Name: "get_module_xy", Args: []Kind{KindInt, KindInt}, Ret: KindInt},
	OpGetModuleColor:     {Name: "get_module_color", Args: []Kind{KindInt, KindInt}, Ret: KindInt},
	OpGetModuleFinetune:  {Name: "get_module_finetune", Args: []Kind{KindInt, KindInt}, Ret: KindInt},
	OpGetModuleScope:     {Name: "get_module_scope2", Args: []Kind{KindInt, KindInt, KindInt, KindInt}, Ret: KindBytes},

	OpGetNumberOfModuleCtls: {Name: "get_number_of_module_ctls", Args: []Kind{KindInt, KindInt}, Ret: KindInt},
	OpGetModuleCtlName:      {Name: "get_module_ctl_name", Args: []Kind{KindInt, KindInt, KindInt}, Ret: KindString},
	OpGetModuleCtlValue:     {Name: "get_module_ctl_value", Args: []Kind{KindInt, KindInt, KindInt, KindInt}, Ret: KindInt},

	OpSetModuleXY:    {Name: "set_module_xy", Args: []Kind{KindInt, KindInt, KindInt, KindInt}, Ret: KindInt},
	OpSetModuleColor: {Name: "set_module_color", Args: []Kind{KindInt, KindInt, KindInt}, Ret: KindInt},
	OpSetModuleName:  {Name: "set_module_name", Args: []Kind{KindInt, KindInt, KindString}, Ret: KindInt},

	OpGetNumberOfPatterns: {Name: "get_number_of_patterns", Args: []Kind{KindInt}, Ret: KindInt},
	OpFindPattern:         {Name: "find_pattern", Args: []Kind{KindInt, KindString}, Ret: KindInt},
	OpGetPatternX:         {Name: "get_pattern_x", Args: []Kind{KindInt, KindInt}, Ret: KindInt},
	OpGetPatternY:         {Name: "get_pattern_y", Args: []Kind{KindInt, KindInt}, Ret: KindInt},
	OpGetPatternTracks:    {Name: "get_pattern_tracks", Args: []Kind{KindInt, KindInt}, Ret: KindInt},
	OpGetPatternLines:     {Name: "get_pattern_lines", Args: []Kind{KindInt, KindInt}, Ret: KindInt},
	OpGetPatternName:      {Name: "get_pattern_name", Args: []Kind{KindInt, KindInt}, Ret: KindString},
	OpGetPatternData:      {Name: "get_pattern_data", Args: []Kind{KindInt, KindInt}, Ret: KindBytes},
	OpSetPatternEvent:     {Name: "set_pattern_event", Args: []Kind{KindInt, KindInt, KindInt, KindInt, KindInt, KindInt, KindInt, KindInt, KindInt}, Ret: KindInt},
	OpGetPatternEvent:     {Name: "get_pattern_event", Args: []Kind{KindInt, KindInt, KindInt, KindInt, KindInt}, Ret: KindInt},
	OpPatternMute:         {Name: "pattern_mute", Args: []Kind{KindInt, KindInt, KindInt}, Ret: KindInt, NeedsLock: true},

	OpGetTicks:          {Name: "get_ticks", Ret: KindInt},
	OpGetTicksPerSecond: {Name: "get_ticks_per_second", Ret: KindInt},
	OpGetLog:            {Name: "get_log", Args: []Kind{KindInt}, Ret: KindString},

	// The audio pull entry points (sv_audio_callback, sv_audio_callback2)
	// cross the bridge as the buffer operations below: raw engine pointers
	// cannot travel between processes, so the worker owns the destination
	// buffer and the wire carries either the filled bytes (copy mode) or a
	// fill signal (shared-memory mode).
	OpInitBuffer:    {Name: "init_buffer", Args: []Kind{KindInt}, Ret: KindBool, Bridge: true},
	OpFillBuffer:    {Name: "fill_buffer", Args: []Kind{KindBytes}, Ret: KindBytes, Bridge: true},
	OpInitShmBuffer: {Name: "init_shm_buffer", Args: []Kind{KindInt, KindInt, KindString, KindString}, Ret: KindBool, Bridge: true},
	OpFillShmBuffer: {Name: "fill_shm_buffer", Args: []Kind{KindBool, KindInt}, Ret: KindBool, Bridge: true},
	OpKill:          {Name: "kill", Ret: KindNil, Bridge: true},
}

// String returns the wire name of the operation.
func (op Op) String() string {
	if d, ok := CallTable[op]; ok {
		return d.Name
	}

	return "unknown"
}
