package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Generator connection
	APIKey   string
	LyriaURL string
	Model    string

	// Server
	Port int

	// Playback
	BufferTime       time.Duration // lookahead before the first buffer plays
	ThrottleInterval time.Duration // minimum spacing of control messages
	GainRamp         time.Duration // master gain ramp on pause/resume
	ResetDelay       time.Duration // pause before auto-resume after reset
	LocalPlayback    bool          // open the local sound device
	PresetsDB        string        // leveldb directory for user prompts

	// Agent
	AgentEnabled    bool
	AgentInterval   time.Duration
	AgentSeed       int64
	AgentSensorFile string // empty uses synthetic readings
	AgentStartMood  string
	DwellMin        int // min seconds per mood
	DwellMax        int // max seconds per mood

	// Prompt refinement (at most one is used, Gemini first)
	OllamaURL        string
	OllamaModel      string
	GeminiAgentModel string

	// Logging and reporting
	LogLevel  string
	LogFile   string
	SentryDSN string
	Env       string
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		APIKey:   envStr("GEMINI_API_KEY", ""),
		LyriaURL: envStr("LYRIA_URL", "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateMusic"),
		Model:    envStr("LYRIA_MODEL", "models/lyria-realtime-exp"),

		Port: envInt("RADIO_PORT", 8080),

		BufferTime:       envDuration("RADIO_BUFFER_TIME_MS", 2*time.Second),
		ThrottleInterval: envDuration("RADIO_THROTTLE_MS", 200*time.Millisecond),
		GainRamp:         envDuration("RADIO_GAIN_RAMP_MS", 100*time.Millisecond),
		ResetDelay:       envDuration("RADIO_RESET_DELAY_MS", 100*time.Millisecond),
		LocalPlayback:    envBool("RADIO_LOCAL_PLAYBACK", true),
		PresetsDB:        envStr("RADIO_PRESETS_DB", "data/prompts"),

		AgentEnabled:    envBool("AGENT_ENABLED", true),
		AgentInterval:   envDuration("AGENT_INTERVAL_MS", 5*time.Second),
		AgentSeed:       int64(envInt("AGENT_SEED", 0)),
		AgentSensorFile: envStr("AGENT_SENSOR_FILE", ""),
		AgentStartMood:  envStr("AGENT_START_MOOD", "ambient"),
		DwellMin:        envInt("AGENT_DWELL_MIN", 60),
		DwellMax:        envInt("AGENT_DWELL_MAX", 180),

		OllamaURL:        envStr("OLLAMA_URL", ""),
		OllamaModel:      envStr("OLLAMA_MODEL", "qwen3:4b"),
		GeminiAgentModel: envStr("GEMINI_AGENT_MODEL", ""),

		LogLevel:  envStr("BIORADIO_LOG_LEVEL", "info"),
		LogFile:   envStr("BIORADIO_LOG_FILE", ""),
		SentryDSN: envStr("SENTRY_DSN", ""),
		Env:       envStr("BIORADIO_ENV", "development"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return fallback
}

// envDuration reads a millisecond count.
func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return fallback
}
