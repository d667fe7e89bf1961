package realtime

import (
	"io"
	"log/slog"
	"time"

	"github.com/codewandler/realtime-go/audio"
	"github.com/smallnest/ringbuffer"
)

// Playback buffers assistant audio, resampled to the consumer's rate, and
// hands it out in fixed latency chunks. Reads block until a chunk is full.
type Playback struct {
	buf    *ringbuffer.RingBuffer
	reader *audio.FixedChunkReader
	rate   int
	logger *slog.Logger
}

func newPlayback(sampleRate int, latency time.Duration, logger *slog.Logger) *Playback {
	if latency <= 0 {
		latency = 200 * time.Millisecond
	}
	size := audio.ChunkSize(sampleRate, 60*time.Second, 2, 1) * 2
	buf := ringbuffer.New(size).SetBlocking(true)

	return &Playback{
		buf:    buf,
		reader: audio.NewLatencyChunkReader(buf, sampleRate, latency),
		rate:   sampleRate,
		logger: logger,
	}
}

func (p *Playback) write(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	pcm, err := audio.ResamplePCM(chunk, ServiceSampleRate, p.rate)
	if err != nil {
		p.logger.Error("failed to resample audio", slog.Any("err", err))
		return
	}
	// never block the receive loop on a slow consumer
	if free := p.buf.Free(); free < len(pcm) {
		p.logger.Warn("playback buffer full, dropping audio", slog.Int("len", len(pcm)), slog.Int("free", free))
		return
	}
	if _, err := p.buf.Write(pcm); err != nil {
		p.logger.Error("failed to write to playback buffer", slog.Any("err", err))
	}
}

// Read fills p with the next chunk. p must hold at least ChunkSize bytes.
func (p *Playback) Read(b []byte) (int, error) {
	return p.reader.Read(b)
}

func (p *Playback) ChunkSize() int {
	return p.reader.ChunkSize()
}

func (p *Playback) SampleRate() int {
	return p.rate
}

// Buffered is the number of bytes waiting to be read.
func (p *Playback) Buffered() int {
	return p.buf.Length()
}

// Clear drops buffered audio, e.g. when the user barges in.
func (p *Playback) Clear() {
	p.buf.Reset()
}

// Close ends the stream; readers get io.EOF once the buffer is drained.
func (p *Playback) Close() error {
	p.buf.CloseWriter()
	return nil
}

var _ io.ReadCloser = (*Playback)(nil)
