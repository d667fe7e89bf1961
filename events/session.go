package events

import (
	"encoding/json"

	"github.com/codewandler/realtime-go/tool"
)

// Session is the server's view of the session as sent with session.created.
type Session struct {
	ID                string         `json:"id,omitempty"`
	Object            string         `json:"object,omitempty"`
	Model             string         `json:"model,omitempty"`
	ExpiresAt         int64          `json:"expires_at,omitempty"`
	Modalities        []string       `json:"modalities,omitempty"`
	Instructions      string         `json:"instructions,omitempty"`
	Voice             string         `json:"voice,omitempty"`
	InputAudioFormat  string         `json:"input_audio_format,omitempty"`
	OutputAudioFormat string         `json:"output_audio_format,omitempty"`
	TurnDetection     *TurnDetection `json:"turn_detection,omitempty"`
	Temperature       float64        `json:"temperature,omitempty"`
}

// SessionConfig is the client-owned session configuration published with
// session.update.
type SessionConfig struct {
	Modalities              []string          `json:"modalities,omitempty"`
	Instructions            string            `json:"instructions,omitempty"`
	Voice                   string            `json:"voice,omitempty"`
	InputAudioFormat        AudioFormat       `json:"input_audio_format,omitempty"`
	OutputAudioFormat       AudioFormat       `json:"output_audio_format,omitempty"`
	InputAudioTranscription *Transcription    `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetection    `json:"turn_detection,omitempty"`
	Temperature             float64           `json:"temperature,omitempty"`
	MaxResponseOutputTokens int               `json:"max_response_output_tokens,omitempty"`
	Speed                   float64           `json:"speed,omitempty"`
	ToolChoice              tool.Choice       `json:"tool_choice,omitempty"`
	Tools                   []tool.Definition `json:"tools,omitempty"`

	// DisableTurnDetection sends turn_detection as null, which switches
	// server side VAD off. TurnDetection is ignored while it is set.
	DisableTurnDetection bool `json:"-"`
}

func (s SessionConfig) MarshalJSON() ([]byte, error) {
	type plain SessionConfig
	if !s.DisableTurnDetection {
		return json.Marshal(plain(s))
	}
	return json.Marshal(struct {
		plain
		TurnDetection *TurnDetection `json:"turn_detection"`
	}{plain: plain(s)})
}

type Transcription struct {
	Model string `json:"model"`
}

// TurnDetection holds the VAD configuration.
type TurnDetection struct {
	Type              string  `json:"type,omitempty"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
	CreateResponse    bool    `json:"create_response,omitempty"`
	InterruptResponse bool    `json:"interrupt_response,omitempty"`
}

// Merge returns s with every non-zero field of patch applied.
func (s SessionConfig) Merge(patch SessionConfig) SessionConfig {
	if patch.Modalities != nil {
		s.Modalities = append([]string(nil), patch.Modalities...)
	}
	if patch.Instructions != "" {
		s.Instructions = patch.Instructions
	}
	if patch.Voice != "" {
		s.Voice = patch.Voice
	}
	if patch.InputAudioFormat != "" {
		s.InputAudioFormat = patch.InputAudioFormat
	}
	if patch.OutputAudioFormat != "" {
		s.OutputAudioFormat = patch.OutputAudioFormat
	}
	if patch.InputAudioTranscription != nil {
		t := *patch.InputAudioTranscription
		s.InputAudioTranscription = &t
	}
	switch {
	case patch.DisableTurnDetection:
		s.TurnDetection = nil
		s.DisableTurnDetection = true
	case patch.TurnDetection != nil:
		td := *patch.TurnDetection
		s.TurnDetection = &td
		s.DisableTurnDetection = false
	}
	if patch.Temperature != 0 {
		s.Temperature = patch.Temperature
	}
	if patch.MaxResponseOutputTokens != 0 {
		s.MaxResponseOutputTokens = patch.MaxResponseOutputTokens
	}
	if patch.Speed != 0 {
		s.Speed = patch.Speed
	}
	if patch.ToolChoice != "" {
		s.ToolChoice = patch.ToolChoice
	}
	if patch.Tools != nil {
		s.Tools = append([]tool.Definition(nil), patch.Tools...)
	}
	return s
}
