package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr  string
	LogLevel  string
	SentryDSN string

	// Optional telemetry database
	DatabaseURL string

	// JWT Authentication (empty disables auth)
	JWTSecret string

	// ElevenLabs (cloud primary)
	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string
	ElevenLabsModelID string
	TTSStability      float64 // 0.0-1.0
	TTSSimilarity     float64 // 0.0-1.0
	TTSSpeed          float64 // 0.5-2.0, 0 = default

	// CosyVoice gateway (self-hosted, websocket)
	CosyVoiceURL         string
	CosyVoiceAPIKey      string
	CosyVoiceVoiceIndex  int
	CosyVoiceTemperature float64
	CosyVoiceTopP        float64
	CosyVoiceSteps       int

	// GLM speech gateway (cloud secondary, websocket)
	GLMTTSURL    string
	GLMTTSAPIKey string
	GLMTTSVoice  string
	GLMTTSModel  string
	GLMTTSSpeed  float64

	// Chatterbox server (self-hosted, single-shot)
	ChatterboxURL     string
	ChatterboxVoiceID string
	ChatterboxPreset  string // "narration" or "expressive"

	// Piper (on-device)
	PiperBinary      string
	PiperModel       string
	PiperInitTimeout time.Duration

	// Pronunciation overrides applied before synthesis
	Pronunciations map[string]string
}

func LoadConfigFromEnv() Config {
	piperInitTimeout, err := time.ParseDuration(getenv("PIPER_INIT_TIMEOUT", "10s"))
	if err != nil {
		piperInitTimeout = 10 * time.Second
	}

	return Config{
		HTTPAddr:  getenv("HTTP_ADDR", ":8080"),
		LogLevel:  getenv("LOG_LEVEL", "info"),
		SentryDSN: getenv("SENTRY_DSN", ""),

		DatabaseURL: getenv("DATABASE_URL", ""),

		JWTSecret: os.Getenv("JWT_SECRET"), // No fallback - empty disables auth

		ElevenLabsAPIKey:  getenv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID: getenv("ELEVENLABS_VOICE_ID", ""),
		ElevenLabsModelID: getenv("ELEVENLABS_MODEL_ID", ""),
		TTSStability:      getenvFloat("TTS_STABILITY", 0.5),
		TTSSimilarity:     getenvFloat("TTS_SIMILARITY", 0.75),
		TTSSpeed:          getenvFloat("TTS_SPEED", 0),

		CosyVoiceURL:         getenv("COSYVOICE_URL", ""),
		CosyVoiceAPIKey:      getenv("COSYVOICE_API_KEY", ""),
		CosyVoiceVoiceIndex:  getenvInt("COSYVOICE_VOICE_INDEX", 0),
		CosyVoiceTemperature: getenvFloat("COSYVOICE_TEMPERATURE", 0.8),
		CosyVoiceTopP:        getenvFloat("COSYVOICE_TOP_P", 0.9),
		CosyVoiceSteps:       getenvInt("COSYVOICE_STEPS", 10),

		GLMTTSURL:    getenv("GLMTTS_URL", ""),
		GLMTTSAPIKey: getenv("GLMTTS_API_KEY", ""),
		GLMTTSVoice:  getenv("GLMTTS_VOICE", "female-warm"),
		GLMTTSModel:  getenv("GLMTTS_MODEL", "glm-tts-flash"),
		GLMTTSSpeed:  getenvFloat("GLMTTS_SPEED", 0),

		ChatterboxURL:     getenv("CHATTERBOX_URL", ""),
		ChatterboxVoiceID: getenv("CHATTERBOX_VOICE_ID", ""),
		ChatterboxPreset:  getenv("CHATTERBOX_PRESET", "narration"),

		PiperBinary:      getenv("PIPER_BINARY", ""),
		PiperModel:       getenv("PIPER_MODEL", ""),
		PiperInitTimeout: piperInitTimeout,

		Pronunciations: parsePronunciations(os.Getenv("PRONUNCIATIONS")),
	}
}

// parsePronunciations parses "written=spoken" pairs separated by
// commas, e.g. "SQL=sequel,kube=koob".
func parsePronunciations(s string) map[string]string {
	if s == "" {
		return nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || k == "" {
			continue
		}
		out[k] = v
	}
	return out
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
