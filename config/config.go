// Package config loads connection settings and the initial session
// configuration from an optional config file and the environment.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/codewandler/realtime-go/events"
	"github.com/codewandler/realtime-go/tool"
	"github.com/spf13/viper"
)

const DefaultInstructions = "You are a helpful AI assistant with voice capabilities."

const (
	keyAPIKey            = "openai.api_key"
	keyAzureEnabled      = "azure.enabled"
	keyAzureEndpoint     = "azure.endpoint"
	keyAzureAPIKey       = "azure.api_key"
	keyAzureDeployment   = "azure.deployment"
	keyAzureAPIVersion   = "azure.api_version"
	keyModel             = "connection.model"
	keyBaseURL           = "connection.base_url"
	keySessionTimeout    = "connection.session_timeout"
	keyMaxRetries        = "connection.max_retries"
	keyRetryDelay        = "connection.retry_delay"
	keyInstructionsFile  = "session.instructions_file"
	keyModalities        = "session.modalities"
	keyVoice             = "session.voice"
	keyInputFormat       = "session.input_audio_format"
	keyOutputFormat      = "session.output_audio_format"
	keyTranscribeModel   = "session.transcription_model"
	keyVADType           = "session.turn_detection.type"
	keyVADThreshold      = "session.turn_detection.threshold"
	keyVADPrefixPadding  = "session.turn_detection.prefix_padding_ms"
	keyVADSilence        = "session.turn_detection.silence_duration_ms"
	keyToolChoice        = "session.tool_choice"
	keyTemperature       = "session.temperature"
	keyMaxOutputTokens   = "session.max_response_output_tokens"
	defaultBaseURL       = "wss://api.openai.com/v1/realtime"
	defaultModel         = "gpt-4o-realtime-preview-2024-10-01"
	defaultAzureVersion  = "2024-10-01-preview"
	defaultAzureDeploy   = "gpt-4o-mini-realtime-preview"
	defaultSessionWait   = 10 * time.Second
	defaultRetryDelay    = time.Second
	defaultMaxRetries    = 3
	defaultInstructionsF = "realtime_instructions.txt"
)

type Azure struct {
	Endpoint   string
	APIKey     string
	Deployment string
	APIVersion string
}

type Config struct {
	APIKey         string
	UseAzure       bool
	Azure          Azure
	Model          string
	BaseURL        string
	SessionTimeout time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
	Session        events.SessionConfig
}

// Load reads the configuration. configFile may be empty; a missing file is
// not an error. Environment variables override file values.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v)
	bindEnv(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	cfg := &Config{
		APIKey:   v.GetString(keyAPIKey),
		UseAzure: v.GetBool(keyAzureEnabled),
		Azure: Azure{
			Endpoint:   v.GetString(keyAzureEndpoint),
			APIKey:     v.GetString(keyAzureAPIKey),
			Deployment: v.GetString(keyAzureDeployment),
			APIVersion: v.GetString(keyAzureAPIVersion),
		},
		Model:          v.GetString(keyModel),
		BaseURL:        v.GetString(keyBaseURL),
		SessionTimeout: v.GetDuration(keySessionTimeout),
		MaxRetries:     v.GetInt(keyMaxRetries),
		RetryDelay:     v.GetDuration(keyRetryDelay),
		Session: events.SessionConfig{
			Modalities:        v.GetStringSlice(keyModalities),
			Instructions:      LoadInstructions(v.GetString(keyInstructionsFile)),
			Voice:             v.GetString(keyVoice),
			InputAudioFormat:  events.AudioFormat(v.GetString(keyInputFormat)),
			OutputAudioFormat: events.AudioFormat(v.GetString(keyOutputFormat)),
			TurnDetection: &events.TurnDetection{
				Type:              v.GetString(keyVADType),
				Threshold:         v.GetFloat64(keyVADThreshold),
				PrefixPaddingMs:   v.GetInt(keyVADPrefixPadding),
				SilenceDurationMs: v.GetInt(keyVADSilence),
			},
			ToolChoice:              tool.Choice(v.GetString(keyToolChoice)),
			Temperature:             v.GetFloat64(keyTemperature),
			MaxResponseOutputTokens: v.GetInt(keyMaxOutputTokens),
		},
	}
	if m := v.GetString(keyTranscribeModel); m != "" {
		cfg.Session.InputAudioTranscription = &events.Transcription{Model: m}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
		if cfg.UseAzure && cfg.Azure.Endpoint != "" {
			host := strings.TrimSuffix(strings.TrimPrefix(cfg.Azure.Endpoint, "https://"), "/")
			cfg.BaseURL = fmt.Sprintf("wss://%s/openai/realtime", host)
		}
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(keyAzureAPIVersion, defaultAzureVersion)
	v.SetDefault(keyAzureDeployment, defaultAzureDeploy)
	v.SetDefault(keyModel, defaultModel)
	v.SetDefault(keySessionTimeout, defaultSessionWait)
	v.SetDefault(keyMaxRetries, defaultMaxRetries)
	v.SetDefault(keyRetryDelay, defaultRetryDelay)
	v.SetDefault(keyInstructionsFile, defaultInstructionsF)
	v.SetDefault(keyModalities, []string{"text", "audio"})
	v.SetDefault(keyVoice, "alloy")
	v.SetDefault(keyInputFormat, string(events.AudioFormatPCM16))
	v.SetDefault(keyOutputFormat, string(events.AudioFormatPCM16))
	v.SetDefault(keyTranscribeModel, "whisper-1")
	v.SetDefault(keyVADType, "server_vad")
	v.SetDefault(keyVADThreshold, 0.5)
	v.SetDefault(keyVADPrefixPadding, 300)
	v.SetDefault(keyVADSilence, 500)
	v.SetDefault(keyToolChoice, string(tool.ChoiceAuto))
	v.SetDefault(keyTemperature, 0.7)
	v.SetDefault(keyMaxOutputTokens, 4096)
}

func bindEnv(v *viper.Viper) {
	_ = v.BindEnv(keyAPIKey, "OPENAI_API_KEY", "OPENAI_KEY")
	_ = v.BindEnv(keyAzureEnabled, "USE_AZURE")
	_ = v.BindEnv(keyAzureEndpoint, "AZURE_OPENAI_URL", "AZURE_OPENAI_ENDPOINT")
	_ = v.BindEnv(keyAzureAPIKey, "AZURE_OPENAI_API_KEY")
	_ = v.BindEnv(keyAzureDeployment, "OPENAI_DEPLOYMENT_NAME_REALTIME", "AZURE_OPENAI_DEPLOYMENT")
	_ = v.BindEnv(keyAzureAPIVersion, "AZURE_API_VERSION")
	_ = v.BindEnv(keyModel, "OPENAI_REALTIME_MODEL")
	_ = v.BindEnv(keyInstructionsFile, "REALTIME_INSTRUCTIONS_FILE")
}

// LoadInstructions reads the instruction text from path. Any failure falls
// back to DefaultInstructions.
func LoadInstructions(path string) string {
	if path == "" {
		return DefaultInstructions
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultInstructions
	}
	if s := strings.TrimSpace(string(data)); s != "" {
		return s
	}
	return DefaultInstructions
}

// Validate reports whether the credentials for the selected backend are set.
func (c *Config) Validate() error {
	if c.UseAzure {
		if c.Azure.Endpoint == "" || c.Azure.APIKey == "" || c.Azure.Deployment == "" {
			return errors.New("azure endpoint, api key and deployment are required")
		}
		return nil
	}
	if c.APIKey == "" {
		return errors.New("missing api key")
	}
	return nil
}

// URL is the websocket endpoint for the configured backend.
func (c *Config) URL() string {
	q := url.Values{}
	if c.UseAzure {
		q.Set("api-version", c.Azure.APIVersion)
		q.Set("deployment", c.Azure.Deployment)
	} else {
		q.Set("model", c.Model)
	}
	return c.BaseURL + "?" + q.Encode()
}

// Headers are the handshake headers for the configured backend.
func (c *Config) Headers() http.Header {
	h := http.Header{}
	if c.UseAzure {
		h.Set("api-key", c.Azure.APIKey)
		return h
	}
	h.Set("Authorization", "Bearer "+c.APIKey)
	h.Set("OpenAI-Beta", "realtime=v1")
	return h
}
