package app

import (
	"reflect"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	// Clear anything the ambient environment might carry.
	for _, k := range []string{
		"HTTP_ADDR", "LOG_LEVEL", "JWT_SECRET",
		"TTS_STABILITY", "TTS_SIMILARITY",
		"COSYVOICE_TEMPERATURE", "COSYVOICE_TOP_P", "COSYVOICE_STEPS",
		"GLMTTS_VOICE", "GLMTTS_MODEL", "CHATTERBOX_PRESET", "PIPER_INIT_TIMEOUT",
	} {
		t.Setenv(k, "")
	}

	cfg := LoadConfigFromEnv()

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.TTSStability != 0.5 || cfg.TTSSimilarity != 0.75 {
		t.Errorf("voice defaults = %v/%v, want 0.5/0.75", cfg.TTSStability, cfg.TTSSimilarity)
	}
	if cfg.CosyVoiceTemperature != 0.8 || cfg.CosyVoiceTopP != 0.9 || cfg.CosyVoiceSteps != 10 {
		t.Errorf("cosyvoice defaults = %v/%v/%d", cfg.CosyVoiceTemperature, cfg.CosyVoiceTopP, cfg.CosyVoiceSteps)
	}
	if cfg.GLMTTSVoice != "female-warm" || cfg.GLMTTSModel != "glm-tts-flash" {
		t.Errorf("glm defaults = %q/%q", cfg.GLMTTSVoice, cfg.GLMTTSModel)
	}
	if cfg.ChatterboxPreset != "narration" {
		t.Errorf("ChatterboxPreset = %q, want narration", cfg.ChatterboxPreset)
	}
	if cfg.PiperInitTimeout != 10*time.Second {
		t.Errorf("PiperInitTimeout = %v, want 10s", cfg.PiperInitTimeout)
	}
	if cfg.JWTSecret != "" {
		t.Errorf("JWTSecret = %q, want empty (auth disabled)", cfg.JWTSecret)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("ELEVENLABS_API_KEY", "el-key")
	t.Setenv("TTS_SPEED", "1.1")
	t.Setenv("COSYVOICE_URL", "ws://gpu-box:9880/v1/tts/stream")
	t.Setenv("COSYVOICE_VOICE_INDEX", "3")
	t.Setenv("PIPER_INIT_TIMEOUT", "2s")
	t.Setenv("JWT_SECRET", "shh")

	cfg := LoadConfigFromEnv()

	if cfg.HTTPAddr != ":9000" {
		t.Errorf("HTTPAddr = %q, want :9000", cfg.HTTPAddr)
	}
	if cfg.ElevenLabsAPIKey != "el-key" {
		t.Errorf("ElevenLabsAPIKey = %q", cfg.ElevenLabsAPIKey)
	}
	if cfg.TTSSpeed != 1.1 {
		t.Errorf("TTSSpeed = %v, want 1.1", cfg.TTSSpeed)
	}
	if cfg.CosyVoiceURL != "ws://gpu-box:9880/v1/tts/stream" || cfg.CosyVoiceVoiceIndex != 3 {
		t.Errorf("cosyvoice = %q index %d", cfg.CosyVoiceURL, cfg.CosyVoiceVoiceIndex)
	}
	if cfg.PiperInitTimeout != 2*time.Second {
		t.Errorf("PiperInitTimeout = %v, want 2s", cfg.PiperInitTimeout)
	}
	if cfg.JWTSecret != "shh" {
		t.Errorf("JWTSecret = %q, want shh", cfg.JWTSecret)
	}
}

func TestLoadConfigIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("TTS_STABILITY", "very stable")
	t.Setenv("COSYVOICE_STEPS", "ten")
	t.Setenv("PIPER_INIT_TIMEOUT", "soon")

	cfg := LoadConfigFromEnv()

	if cfg.TTSStability != 0.5 {
		t.Errorf("TTSStability = %v, want default 0.5", cfg.TTSStability)
	}
	if cfg.CosyVoiceSteps != 10 {
		t.Errorf("CosyVoiceSteps = %d, want default 10", cfg.CosyVoiceSteps)
	}
	if cfg.PiperInitTimeout != 10*time.Second {
		t.Errorf("PiperInitTimeout = %v, want default 10s", cfg.PiperInitTimeout)
	}
}

func TestParsePronunciations(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want map[string]string
	}{
		{"empty", "", nil},
		{"single pair", "SQL=sequel", map[string]string{"SQL": "sequel"}},
		{"multiple pairs", "SQL=sequel, k8s=kubernetes", map[string]string{"SQL": "sequel", "k8s": "kubernetes"}},
		{"skips malformed", "SQL=sequel,broken,=novalue", map[string]string{"SQL": "sequel"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parsePronunciations(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parsePronunciations(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
