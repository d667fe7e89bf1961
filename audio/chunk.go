package audio

import (
	"fmt"
	"io"
	"time"
)

// FixedChunkReader re-slices an underlying stream into chunks of a fixed size.
// Only the final chunk before EOF may be shorter.
type FixedChunkReader struct {
	r         io.Reader
	buf       []byte
	chunkSize int
	eof       bool
}

func NewFixedChunkReader(r io.Reader, chunkSize int) *FixedChunkReader {
	return &FixedChunkReader{
		r:         r,
		chunkSize: chunkSize,
		buf:       make([]byte, 0, chunkSize*2),
	}
}

// NewLatencyChunkReader returns a reader emitting chunks that cover latency of
// mono PCM16 at sampleRate.
func NewLatencyChunkReader(r io.Reader, sampleRate int, latency time.Duration) *FixedChunkReader {
	return NewFixedChunkReader(r, ChunkSize(sampleRate, latency, 2, 1))
}

func (f *FixedChunkReader) ChunkSize() int { return f.chunkSize }

func (f *FixedChunkReader) Read(p []byte) (int, error) {
	if len(p) < f.chunkSize {
		return 0, fmt.Errorf("buffer passed to Read must be at least %d bytes", f.chunkSize)
	}

	// fill until a full chunk is available or the source is drained
	for len(f.buf) < f.chunkSize && !f.eof {
		tmp := make([]byte, f.chunkSize)
		n, err := f.r.Read(tmp)
		if n > 0 {
			f.buf = append(f.buf, tmp[:n]...)
		}
		if err == io.EOF {
			f.eof = true
			break
		}
		if err != nil {
			return 0, err
		}
	}

	if len(f.buf) == 0 && f.eof {
		return 0, io.EOF
	}

	n := min(f.chunkSize, len(f.buf))
	copy(p, f.buf[:n])
	f.buf = f.buf[n:]

	return n, nil
}
