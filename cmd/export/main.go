package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/metrasynth/sunvox-go"
)

func main() {
	// Must run before anything else: in a spawned engine worker this call
	// never returns.
	sunvox.RunWorker()

	var (
		rate     int
		channels int
		frames   int
		shm      bool
		dllPath  string
		outPath  string
	)

	flag.IntVar(&rate, "rate", 44100, "The output sample rate in Hz")
	flag.IntVar(&channels, "channels", 2, "The number of output channels")
	flag.IntVar(&frames, "frames", 1024, "The number of frames rendered per tick")
	flag.BoolVar(&shm, "shm", false, "Use shared-memory audio buffers instead of copy mode")
	flag.StringVar(&dllPath, "dll", "", "Path to the SunVox library (default: auto-detect)")
	flag.StringVar(&outPath, "o", "out.wav", "The output WAV file")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <sunvox-project>\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "\nOptions:")
		for _, name := range []string{"rate", "channels", "frames", "shm", "dll", "o"} {
			f := flag.Lookup(name)
			if f != nil {
				fmt.Fprintf(os.Stderr, "  --%s\n    \t%v (default %q)\n", f.Name, f.Usage, f.DefValue)
			}
		}
	}

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	projectPath := flag.Arg(0)

	opts := []sunvox.Option{
		sunvox.WithSampleRate(rate),
		sunvox.WithChannels(channels),
		sunvox.WithFrames(frames),
		sunvox.WithFormat(sunvox.FormatInt16),
	}
	if dllPath != "" {
		opts = append(opts, sunvox.WithLibraryPath(dllPath))
	}

	fill, proc, stop, err := startRenderer(shm, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting engine worker: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		proc.Deinit()
		stop()
		proc.Wait()
	}()

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
	totalFrames, err := slot.SongLengthFrames()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading song length: %v\n", err)
		os.Exit(1)
	}
	if totalFrames == 0 {
		fmt.Fprintln(os.Stderr, "Project has no length, nothing to export")
		os.Exit(1)
	}

	outFile, err := os.Create(outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output file: %v\n", err)
		os.Exit(1)
	}
	defer outFile.Close()

	encoder := wav.NewEncoder(outFile, rate, 16, channels, 1)

	fmt.Printf("Exporting project:  %s\n", projectPath)
	fmt.Printf("Song name:          %s\n", name)
	fmt.Printf("Output:             %s (%d Hz, %d channels, 16-bit)\n", outPath, rate, channels)
	fmt.Printf("Length:             %d frames\n", totalFrames)
	fmt.Printf("Mode:               %s\n", map[bool]string{false: "copy", true: "shared memory"}[shm])

	if _, err := slot.PlayFromBeginning(); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting playback: %v\n", err)
		os.Exit(1)
	}

	startTime := time.Now()

	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: channels, SampleRate: rate},
	}

	rendered := uint32(0)
	for rendered < totalFrames {
		samples, err := fill()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error rendering audio: %v\n", err)
			os.Exit(1)
		}

		// Trim the final tick to the song length.
		remaining := int(totalFrames-rendered) * channels
		if len(samples) > remaining {
			samples = samples[:remaining]
		}

		buf.Data = buf.Data[:0]
		for _, s := range samples {
			buf.Data = append(buf.Data, int(s))
		}

		if err := encoder.Write(buf); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing WAV data: %v\n", err)
			os.Exit(1)
		}

		rendered += uint32(len(samples) / channels)
	}

	slot.Stop()

	if err := encoder.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error finalizing WAV file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Export finished in %v. (%d frames rendered)\n", time.Since(startTime), rendered)
}

// startRenderer spawns the worker in the requested mode and returns a fill
// function producing one tick of int16 samples, the underlying process, and
// a stop function that shuts the mode-specific layer down.
func startRenderer(shm bool, opts []sunvox.Option) (func() ([]int16, error), *sunvox.Process, func(), error) {
	if shm {
		b, err := sunvox.NewShmBufferedProcess(opts...)
		if err != nil {
			return nil, nil, nil, err
		}

		fill := func() ([]int16, error) {
			raw, err := b.FillBuffer(nil, 0)
			if err != nil {
				return nil, err
			}

			return bytesToInt16(raw), nil
		}

		return fill, b.Process, func() { b.Kill() }, nil
	}

	b, err := sunvox.NewBufferedProcess(opts...)
	if err != nil {
		return nil, nil, nil, err
	}

	fill := func() ([]int16, error) { return b.FillInt16(nil) }

	return fill, b.Process, func() { b.Kill() }, nil
}

func bytesToInt16(raw []byte) []int16 {
	out := make([]int16, len(raw)/2)
	for i := range out {
		out[i] = int16(uint16(raw[i*2]) | uint16(raw[i*2+1])<<8)
	}

	return out
}
