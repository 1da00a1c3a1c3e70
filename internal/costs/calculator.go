// Package costs provides cost estimation for synthesis usage.
package costs

import (
	"os"
	"strconv"
)

// Pricing constants (in cents per unit for precision).
// These are based on 2026 market rates and can be overridden via environment variables.
var (
	// ElevenLabsCentsPerThousandChars is the cost per 1K characters for ElevenLabs TTS.
	// Default: $0.18/1K chars = 18 cents/1K chars
	ElevenLabsCentsPerThousandChars = getEnvFloat("COST_ELEVENLABS_CENTS_PER_1K_CHARS", 18.0)

	// GLMCentsPerThousandChars is the cost per 1K characters for the GLM speech gateway.
	// Default: $0.05/1K chars = 5 cents/1K chars
	GLMCentsPerThousandChars = getEnvFloat("COST_GLMTTS_CENTS_PER_1K_CHARS", 5.0)

	// SelfHostedCentsPerThousandChars is the amortized GPU cost per 1K characters
	// for self-hosted backends (CosyVoice, Chatterbox). Default: 0.5 cents/1K chars
	SelfHostedCentsPerThousandChars = getEnvFloat("COST_SELFHOSTED_CENTS_PER_1K_CHARS", 0.5)
)

// RatePerThousandChars returns the billing rate for a provider in cents
// per 1K characters. On-device synthesis is free.
func RatePerThousandChars(provider string) float64 {
	switch provider {
	case "elevenlabs":
		return ElevenLabsCentsPerThousandChars
	case "glmtts":
		return GLMCentsPerThousandChars
	case "cosyvoice", "chatterbox":
		return SelfHostedCentsPerThousandChars
	default:
		return 0
	}
}

// EstimateCents computes the cost of synthesizing the given number of
// characters with the given provider, rounded to the nearest cent.
func EstimateCents(provider string, characters int) int {
	cents := (float64(characters) / 1000.0) * RatePerThousandChars(provider)
	return roundToInt(cents)
}

// roundToInt rounds a float to the nearest integer.
func roundToInt(f float64) int {
	if f < 0 {
		return int(f - 0.5)
	}
	return int(f + 0.5)
}

// getEnvFloat returns an environment variable as float64, or the default if not set.
func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
