package main

import (
	"crypto/rand"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rx3lixir/voicecards/internal/audio"
)

func main() {
	duration := flag.Duration("duration", 5*time.Second, "Length of the generated wav clip")
	sampleRate := flag.Int("rate", audio.DefaultSampleRate, "Sample rate in Hz")
	size := flag.Int("size", 0, "Write this many random bytes instead of a wav clip")
	output := flag.String("output", "test_audio.wav", "Output file path")
	flag.Parse()

	var data []byte

	if *size > 0 {
		fmt.Printf("Generating random test file: %s (%d bytes)\n", *output, *size)

		// Random data simulates an opaque compressed clip
		data = make([]byte, *size)
		if _, err := rand.Read(data); err != nil {
			fmt.Fprintf(os.Stderr, "Error generating random data: %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Printf("Generating test wav clip: %s (%s at %d Hz)\n", *output, *duration, *sampleRate)
		data = audio.EncodeWAV(*duration, *sampleRate)
	}

	// Write to file
	if err := os.WriteFile(*output, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Test file created successfully\n")
	fmt.Printf("  File: %s\n", *output)
	fmt.Printf("  Size: %d bytes\n", len(data))

	if d, err := audio.WAVDuration(data); err == nil {
		fmt.Printf("  Duration: %s\n", d)
	}
}
