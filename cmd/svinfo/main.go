package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/metrasynth/sunvox-go"
)

func main() {
	sunvox.RunWorker()

	var (
		rate    int
		dllPath string
		modules bool
	)

	flag.IntVar(&rate, "rate", 44100, "The sample rate used for frame counts")
	flag.StringVar(&dllPath, "dll", "", "Path to the SunVox library (default: auto-detect)")
	flag.BoolVar(&modules, "modules", false, "List the project's modules and patterns")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <sunvox-project>\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "\nOptions:")
		fmt.Fprintln(os.Stderr, "  --rate      Sample rate used for frame counts")
		fmt.Fprintln(os.Stderr, "  --dll       Path to the SunVox library")
		fmt.Fprintln(os.Stderr, "  --modules   List the project's modules and patterns")
	}

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	projectPath := flag.Arg(0)

	opts := []sunvox.Option{sunvox.WithSampleRate(rate)}
	if dllPath != "" {
		opts = append(opts, sunvox.WithLibraryPath(dllPath))
	}

	proc, err := sunvox.NewProcess(opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting engine worker: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		proc.Deinit()
		proc.Kill()
		proc.Wait()
	}()

	// Offline init: no audio device is touched, the engine only renders on
	// demand and this tool never asks it to.
	flags := sunvox.SV_INIT_FLAG_USER_AUDIO_CALLBACK | sunvox.SV_INIT_FLAG_ONE_THREAD |
		sunvox.SV_INIT_FLAG_NO_DEBUG_OUTPUT | sunvox.SV_INIT_FLAG_AUDIO_INT16
	if ret, err := proc.Init("", rate, 2, flags); err != nil || ret < 0 {
		fmt.Fprintf(os.Stderr, "Error initializing engine: %v (engine %d)\n", err, ret)
		os.Exit(1)
	}

	slot, err := sunvox.NewSlot(proc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening slot: %v\n", err)
		os.Exit(1)
	}
	defer slot.Close()

	if ret, err := slot.Load(projectPath); err != nil || ret < 0 {
		fmt.Fprintf(os.Stderr, "Error loading project %s: %v (engine %d)\n", projectPath, err, ret)
		os.Exit(1)
	}

	name, _ := slot.SongName()
	bpm, _ := slot.SongBPM()
	tpl, _ := slot.SongTPL()
	lengthFrames, _ := slot.SongLengthFrames()
	lengthLines, _ := slot.SongLengthLines()
	moduleCount, _ := slot.NumberOfModules()
	patternCount, _ := slot.NumberOfPatterns()

	duration := time.Duration(float64(lengthFrames) / float64(rate) * float64(time.Second))

	fmt.Printf("Filename:           %s\n", projectPath)
	fmt.Printf("Song name:          %s\n", name)
	fmt.Printf("BPM:                %d\n", bpm)
	fmt.Printf("Ticks per line:     %d\n", tpl)
	fmt.Printf("Length:             %d frames, %d lines\n", lengthFrames, lengthLines)
	fmt.Printf("Duration:           %s (at %d Hz)\n", formatDuration(duration), rate)
	fmt.Printf("Modules:            %d\n", moduleCount)
	fmt.Printf("Patterns:           %d\n", patternCount)

	if !modules {
		return
	}

	fmt.Println("\nModules:")
	// Module indexes are sparse; flags tell which ones exist.
	for i := 0; i < moduleCount; i++ {
		mflags, err := slot.ModuleFlags(i)
		if err != nil || mflags&sunvox.SV_MODULE_FLAG_EXISTS == 0 {
			continue
		}

		mname, _ := slot.ModuleName(i)
		x, y, _ := slot.ModuleXY(i)
		ctls, _ := slot.NumberOfModuleCtls(i)

		fmt.Printf("  %3d  %-24s at (%d, %d), %d controllers\n", i, mname, x, y, ctls)
	}

	fmt.Println("\nPatterns:")
	for i := 0; i < patternCount; i++ {
		tracks, err := slot.PatternTracks(i)
		if err != nil || tracks == 0 {
			continue
		}

		pname, _ := slot.PatternName(i)
		lines, _ := slot.PatternLines(i)
		px, _ := slot.PatternX(i)
		py, _ := slot.PatternY(i)

		fmt.Printf("  %3d  %-24s %d tracks x %d lines at (%d, %d)\n", i, pname, tracks, lines, px, py)
	}
}

// formatDuration formats a time.Duration into HH:MM:SS.ms.
func formatDuration(d time.Duration) string {
	millis := d.Nanoseconds() % 1e9 / 1e6

	seconds := int(d.Seconds()) % 60
	minutes := int(d.Minutes()) % 60
	hours := int(d.Hours())

	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, seconds, millis)
}
