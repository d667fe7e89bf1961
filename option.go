package realtime

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/codewandler/realtime-go/config"
	"github.com/codewandler/realtime-go/events"
	"github.com/codewandler/realtime-go/tool"
)

const (
	ApiKeyEnvVarNameShort = "OPENAI_KEY"
	ApiKeyEnvVarNameLong  = "OPENAI_API_KEY"

	defaultBaseURL        = "wss://api.openai.com/v1/realtime"
	defaultSessionTimeout = 10 * time.Second
	defaultDialTimeout    = 10 * time.Second
	defaultCloseTimeout   = 5 * time.Second
)

type clientConfig struct {
	model           string
	apiKey          string
	url             string
	headers         http.Header
	session         events.SessionConfig
	sessionTimeout  time.Duration
	dialTimeout     time.Duration
	logger          *slog.Logger
	services        *Services
	tools           []tool.Tool
	playbackRate    int
	playbackLatency time.Duration
	repairArguments bool
}

func (c *clientConfig) validate() error {
	if c.headers == nil && c.apiKey == "" {
		return fmt.Errorf("missing api key")
	}
	return nil
}

func (c *clientConfig) endpoint() string {
	if c.url != "" {
		return c.url
	}
	return defaultBaseURL + "?" + url.Values{"model": {c.model}}.Encode()
}

func (c *clientConfig) handshakeHeaders() http.Header {
	if c.headers != nil {
		return c.headers.Clone()
	}
	h := http.Header{}
	h.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	h.Set("OpenAI-Beta", "realtime=v1")
	return h
}

type ClientOption func(*clientConfig)

// WithTools registers tools when the client is built. Invalid or duplicate
// tools make New panic.
func WithTools(tools ...tool.Tool) ClientOption {
	return func(config *clientConfig) {
		config.tools = append(config.tools, tools...)
	}
}

func WithVoice(voice string) ClientOption {
	return func(config *clientConfig) {
		config.session.Voice = voice
	}
}

func WithSpeed(speed float64) ClientOption {
	return func(config *clientConfig) {
		config.session.Speed = speed
	}
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(o *clientConfig) {
		o.logger = logger
	}
}

func WithDefaultLogger() ClientOption {
	return WithLogger(slog.Default())
}

func WithTemperature(temperature float64) ClientOption {
	return func(o *clientConfig) {
		o.session.Temperature = temperature
	}
}

func WithModel(model string) ClientOption {
	return func(o *clientConfig) {
		o.model = model
	}
}

func WithKey(apiKey string) ClientOption {
	return func(o *clientConfig) {
		o.apiKey = apiKey
	}
}

func WithEnvKey(vars ...string) ClientOption {
	return func(o *clientConfig) {
		for _, envVarName := range vars {
			if k := os.Getenv(envVarName); k != "" {
				o.apiKey = k
				return
			}
		}
	}
}

// WithURL overrides the websocket endpoint, including its query.
func WithURL(u string) ClientOption {
	return func(o *clientConfig) {
		o.url = u
	}
}

// WithHeaders replaces the handshake headers. No bearer token is added.
func WithHeaders(h http.Header) ClientOption {
	return func(o *clientConfig) {
		o.headers = h.Clone()
	}
}

func WithInstruction(instruction string) ClientOption {
	return func(o *clientConfig) {
		o.session.Instructions = instruction
	}
}

func WithModalities(modalities ...string) ClientOption {
	return func(o *clientConfig) {
		o.session.Modalities = modalities
	}
}

// WithTurnDetection sets the VAD configuration. nil turns VAD off.
func WithTurnDetection(td *events.TurnDetection) ClientOption {
	return func(o *clientConfig) {
		o.session.TurnDetection = td
		o.session.DisableTurnDetection = td == nil
	}
}

// WithSession merges session into the initial session configuration.
func WithSession(session events.SessionConfig) ClientOption {
	return func(o *clientConfig) {
		o.session = o.session.Merge(session)
	}
}

func WithSessionTimeout(d time.Duration) ClientOption {
	return func(o *clientConfig) {
		o.sessionTimeout = d
	}
}

func WithDialTimeout(d time.Duration) ClientOption {
	return func(o *clientConfig) {
		o.dialTimeout = d
	}
}

// WithServices shares metrics and retry state between clients.
func WithServices(s *Services) ClientOption {
	return func(o *clientConfig) {
		o.services = s
	}
}

// WithPlayback buffers assistant audio for a local consumer playing at
// sampleRate, read in chunks covering latency.
func WithPlayback(sampleRate int, latency time.Duration) ClientOption {
	return func(o *clientConfig) {
		o.playbackRate = sampleRate
		o.playbackLatency = latency
	}
}

// WithArgumentRepair tries to repair malformed tool call arguments before
// reporting them as invalid.
func WithArgumentRepair() ClientOption {
	return func(o *clientConfig) {
		o.repairArguments = true
	}
}

// WithConfig applies a loaded configuration: endpoint, credentials, timeouts,
// retry policy and the initial session.
func WithConfig(cfg *config.Config) ClientOption {
	return func(o *clientConfig) {
		o.url = cfg.URL()
		o.headers = cfg.Headers()
		o.model = cfg.Model
		o.apiKey = cfg.APIKey
		o.session = o.session.Merge(cfg.Session)
		if cfg.SessionTimeout > 0 {
			o.sessionTimeout = cfg.SessionTimeout
		}
		if o.services == nil {
			o.services = NewServices(cfg.MaxRetries, cfg.RetryDelay, o.logger)
		}
	}
}

func WithOptions(opts ...ClientOption) ClientOption {
	return func(o *clientConfig) {
		for _, opt := range opts {
			opt(o)
		}
	}
}

func withDefaults() ClientOption {
	return WithOptions(
		WithLogger(slog.New(slog.DiscardHandler)),
		WithModel("gpt-4o-realtime-preview-2025-06-03"),
		WithSessionTimeout(defaultSessionTimeout),
		WithDialTimeout(defaultDialTimeout),
		WithSession(events.SessionConfig{
			Modalities:              []string{"text", "audio"},
			Instructions:            config.DefaultInstructions,
			Voice:                   "alloy",
			InputAudioFormat:        events.AudioFormatPCM16,
			OutputAudioFormat:       events.AudioFormatPCM16,
			InputAudioTranscription: &events.Transcription{Model: "whisper-1"},
			TurnDetection: &events.TurnDetection{
				Type:              "server_vad",
				Threshold:         0.5,
				PrefixPaddingMs:   300,
				SilenceDurationMs: 500,
			},
			Temperature:             0.7,
			MaxResponseOutputTokens: 4096,
			ToolChoice:              tool.ChoiceAuto,
		}),
		WithEnvKey(ApiKeyEnvVarNameShort, ApiKeyEnvVarNameLong),
	)
}
