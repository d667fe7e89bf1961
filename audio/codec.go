// Package audio converts between float samples, PCM16 samples and the base64
// payloads carried by the realtime protocol.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"log/slog"
)

// FloatToPCM16 clips every sample to [-1, 1] and scales it to a signed 16 bit
// value in the range ±32767.
func FloatToPCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = int16(clip(float64(s)) * 32767)
	}
	return out
}

func float64ToPCM16(samples []float64) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = int16(clip(s) * 32767)
	}
	return out
}

func clip(f float64) float64 {
	switch {
	case f > 1:
		return 1
	case f < -1:
		return -1
	default:
		return f
	}
}

// ToPCM16 normalizes sample input to PCM16. Float input is converted,
// []int16 passes through unchanged. ok is false for anything else.
func ToPCM16(data any) (samples []int16, ok bool) {
	switch x := data.(type) {
	case []float32:
		return FloatToPCM16(x), true
	case []float64:
		return float64ToPCM16(x), true
	case []int16:
		return x, true
	}
	return nil, false
}

// PCM16ToBytes packs samples as little-endian 16 bit PCM.
func PCM16ToBytes(samples []int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return b
}

// BytesToPCM16 unpacks little-endian 16 bit PCM. A trailing odd byte is dropped.
func BytesToPCM16(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

// ToBytes returns the raw PCM16 byte representation of data. Float and int16
// samples are packed, byte input is copied.
func ToBytes(data any) ([]byte, bool) {
	if samples, ok := ToPCM16(data); ok {
		return PCM16ToBytes(samples), true
	}
	switch x := data.(type) {
	case []byte:
		return append([]byte(nil), x...), true
	case interface{ Bytes() []byte }:
		return append([]byte(nil), x.Bytes()...), true
	}
	return nil, false
}

// DecodeBase64 decodes an audio payload. Malformed input is logged and yields
// an empty slice.
func DecodeBase64(s string) []byte {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		slog.Error("failed to decode base64 audio", slog.Any("err", err))
		return []byte{}
	}
	return b
}

// EncodeBase64 encodes float samples, PCM16 samples or raw bytes as base64.
// Unsupported input is logged and yields "".
func EncodeBase64(data any) string {
	b, ok := ToBytes(data)
	if !ok {
		slog.Error("unsupported audio type", slog.String("type", typeName(data)))
		return ""
	}
	return base64.StdEncoding.EncodeToString(b)
}
