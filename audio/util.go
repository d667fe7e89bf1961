package audio

import (
	"fmt"
	"time"
)

// ChunkSize returns the number of bytes covering d of interleaved audio.
func ChunkSize(sampleRate int, d time.Duration, bytesPerSample int, channels int) int {
	frames := int(float64(sampleRate) * d.Seconds())
	return frames * bytesPerSample * channels
}

// Duration is the playback length of n bytes of mono PCM16 at sampleRate.
func Duration(n int, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(n/2) * time.Second / time.Duration(sampleRate)
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
