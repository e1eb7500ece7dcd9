package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the voice client.
type Config struct {
	// Backend endpoints
	ServerURL string `envconfig:"SERVER_URL" default:"ws://localhost:8000/ws/chat"` // Streaming session endpoint
	TTSURL    string `envconfig:"TTS_URL" default:"http://localhost:8000/api/tts"`  // On-demand synthesis endpoint

	// Reconnect configuration (linear backoff, capped)
	ReconnectBaseMs int `envconfig:"RECONNECT_BASE_MS" default:"500"`
	ReconnectCapMs  int `envconfig:"RECONNECT_CAP_MS" default:"5000"`

	// Microphone capture configuration
	CaptureSampleRate int    `envconfig:"CAPTURE_SAMPLE_RATE" default:"16000"` // Hz, s16le mono
	CaptureChunkMs    int    `envconfig:"CAPTURE_CHUNK_MS" default:"100"`      // Slice interval per chunk
	CaptureCommand    string `envconfig:"CAPTURE_COMMAND" default:"ffmpeg"`
	CaptureFormat     string `envconfig:"CAPTURE_FORMAT" default:"pulse"` // ffmpeg input format (pulse, alsa, avfoundation)
	CaptureDevice     string `envconfig:"CAPTURE_DEVICE" default:"default"`

	// Silence detection configuration
	SilenceThreshold float64 `envconfig:"SILENCE_THRESHOLD" default:"500.0"` // RMS energy floor for voice activity
	SilenceHoldMs    int     `envconfig:"SILENCE_HOLD_MS" default:"1500"`    // Continuous silence before auto-stop
	SilencePollMs    int     `envconfig:"SILENCE_POLL_MS" default:"100"`

	// Playback configuration
	PlaybackSampleRate int    `envconfig:"PLAYBACK_SAMPLE_RATE" default:"24000"` // Hz, synthesized audio
	PlaybackCommand    string `envconfig:"PLAYBACK_COMMAND" default:"ffplay"`

	// Session configuration
	TranscriptTimeoutMs int `envconfig:"TRANSCRIPT_TIMEOUT_MS" default:"10000"` // Wait for a final transcript per segment

	// TTS client resilience
	TTSRetryMaxAttempts    int `envconfig:"TTS_RETRY_MAX_ATTEMPTS" default:"3"`
	TTSRetryInitialBackoff int `envconfig:"TTS_RETRY_INITIAL_BACKOFF" default:"100"` // milliseconds
	TTSBreakerMaxFailures  int `envconfig:"TTS_BREAKER_MAX_FAILURES" default:"5"`
	TTSBreakerResetTimeout int `envconfig:"TTS_BREAKER_RESET_TIMEOUT" default:"30"` // seconds

	// Observability
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`   // debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"` // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
	DebugPort      string `envconfig:"DEBUG_PORT" default:"9090"` // /health and /metrics
}

// Load reads configuration from environment variables.
// It first attempts to load from a .env file if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load a .env file.
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("SERVER_URL is required")
	}
	if cfg.CaptureSampleRate <= 0 {
		return nil, fmt.Errorf("CAPTURE_SAMPLE_RATE must be positive")
	}
	if cfg.SilenceHoldMs <= 0 {
		return nil, fmt.Errorf("SILENCE_HOLD_MS must be positive")
	}

	return &cfg, nil
}

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
