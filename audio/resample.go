package audio

import (
	"bytes"
	"encoding/binary"

	"github.com/faiface/beep"
)

// pcmStreamer exposes mono PCM16 as a beep stereo streamer.
type pcmStreamer struct {
	data []int16
	pos  int
}

func newPCMStreamer(b []byte) *pcmStreamer {
	return &pcmStreamer{data: BytesToPCM16(b)}
}

func (s *pcmStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		if s.pos >= len(s.data) {
			return i, i > 0
		}
		val := float64(s.data[s.pos]) / 32768.0
		samples[i][0] = val
		samples[i][1] = val
		s.pos++
	}
	return len(samples), true
}

func (s *pcmStreamer) Err() error { return nil }

// ResamplePCM converts mono PCM16 from one sample rate to another.
func ResamplePCM(pcm []byte, fromRate, toRate int) ([]byte, error) {
	if fromRate == toRate || len(pcm) < 2 {
		return append([]byte(nil), pcm...), nil
	}

	resampler := beep.Resample(3, beep.SampleRate(fromRate), beep.SampleRate(toRate), newPCMStreamer(pcm))

	buf := new(bytes.Buffer)
	buf.Grow(len(pcm) * toRate / fromRate)
	frame := make([][2]float64, 1024)

	for {
		n, ok := resampler.Stream(frame)
		for i := 0; i < n; i++ {
			mono := (frame[i][0] + frame[i][1]) / 2.0
			if err := binary.Write(buf, binary.LittleEndian, int16(clip(mono)*32767)); err != nil {
				return nil, err
			}
		}
		if !ok {
			break
		}
	}

	return buf.Bytes(), nil
}
