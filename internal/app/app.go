package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lukasbauer/aloud/internal/health"
	"github.com/lukasbauer/aloud/internal/httpapi"
	"github.com/lukasbauer/aloud/internal/telemetry"
	"github.com/lukasbauer/aloud/internal/textnorm"
	"github.com/lukasbauer/aloud/internal/tts"
)

type App struct {
	cfg        Config
	logger     *log.Logger
	db         *pgxpool.Pool
	events     *telemetry.Log
	speech     *tts.Router
	norm       *textnorm.Normalizer
	httpClient *http.Client
}

func New(cfg Config, logger *log.Logger) (*App, error) {
	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var err error
		db, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}

	// Shared HTTP client with connection pooling. Keeps TCP connections
	// alive to reduce latency for repeated synthesis calls.
	httpClient := &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	a := &App{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		events:     telemetry.New(db),
		speech:     tts.NewRouter(logger),
		norm:       textnorm.New(cfg.Pronunciations),
		httpClient: httpClient,
	}

	if err := a.registerProviders(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// registerProviders builds each configured adapter, wraps it in a
// health monitor, and registers it at its documented priority. At least
// the on-device slot is always filled; the stub keeps the router's
// contract uniform until the native engine lands.
func (a *App) registerProviders() error {
	// On-device: piper when configured, otherwise the stub.
	if a.cfg.PiperBinary != "" && a.cfg.PiperModel != "" {
		piper, err := tts.NewPiper(tts.PiperConfig{
			BinaryPath:  a.cfg.PiperBinary,
			ModelPath:   a.cfg.PiperModel,
			InitTimeout: a.cfg.PiperInitTimeout,
			Recorder:    a.events,
		})
		if err != nil {
			return err
		}
		if err := a.speech.Register(tts.Registration{
			Provider: piper,
			Priority: tts.PriorityOnDevice,
			Health:   health.New(health.Config{}),
			OnDevice: true,
		}); err != nil {
			return err
		}
	} else {
		if err := a.speech.Register(tts.Registration{
			Provider: tts.NewNativeStub(),
			Priority: tts.PriorityOnDevice,
			OnDevice: true,
		}); err != nil {
			return err
		}
	}

	if a.cfg.CosyVoiceURL != "" {
		cosy, err := tts.NewCosyVoice(tts.CosyVoiceConfig{
			URL:    a.cfg.CosyVoiceURL,
			APIKey: a.cfg.CosyVoiceAPIKey,
			Settings: tts.CosyVoiceSettings{
				VoiceIndex:       a.cfg.CosyVoiceVoiceIndex,
				Temperature:      a.cfg.CosyVoiceTemperature,
				TopP:             a.cfg.CosyVoiceTopP,
				ConsistencySteps: a.cfg.CosyVoiceSteps,
			},
			Recorder: a.events,
		})
		if err != nil {
			return err
		}
		monitor := health.New(health.Config{Probe: tcpProbeForURL(a.cfg.CosyVoiceURL)})
		if err := a.speech.Register(tts.Registration{
			Provider: cosy,
			Priority: tts.PrioritySelfHosted,
			Health:   monitor,
		}); err != nil {
			return err
		}
	}

	if a.cfg.ChatterboxURL != "" {
		settings, err := chatterboxPreset(a.cfg.ChatterboxPreset)
		if err != nil {
			return err
		}
		settings.VoiceID = a.cfg.ChatterboxVoiceID
		chatterbox, err := tts.NewChatterbox(tts.ChatterboxConfig{
			URL:        a.cfg.ChatterboxURL,
			Settings:   settings,
			HTTPClient: a.httpClient,
		})
		if err != nil {
			return err
		}
		monitor := health.New(health.Config{
			Probe: health.HTTPProbe(a.httpClient, healthURLFor(a.cfg.ChatterboxURL)),
		})
		if err := a.speech.Register(tts.Registration{
			Provider: chatterbox,
			Priority: tts.PrioritySelfHosted,
			Health:   monitor,
		}); err != nil {
			return err
		}
	}

	if a.cfg.ElevenLabsAPIKey != "" {
		eleven, err := tts.NewElevenLabs(tts.ElevenLabsConfig{
			APIKey:  a.cfg.ElevenLabsAPIKey,
			VoiceID: a.cfg.ElevenLabsVoiceID,
			ModelID: a.cfg.ElevenLabsModelID,
			Settings: tts.ElevenLabsSettings{
				Stability:  a.cfg.TTSStability,
				Similarity: a.cfg.TTSSimilarity,
				Speed:      a.cfg.TTSSpeed,
			},
			HTTPClient: a.httpClient,
			Recorder:   a.events,
		})
		if err != nil {
			return err
		}
		if err := a.speech.Register(tts.Registration{
			Provider:           eleven,
			Priority:           tts.PriorityCloudPrimary,
			Health:             health.New(health.Config{}),
			RequiresCredential: true,
		}); err != nil {
			return err
		}
	}

	if a.cfg.GLMTTSURL != "" {
		glm, err := tts.NewGLMTTS(tts.GLMTTSConfig{
			URL:      a.cfg.GLMTTSURL,
			APIKey:   a.cfg.GLMTTSAPIKey,
			Voice:    a.cfg.GLMTTSVoice,
			Model:    a.cfg.GLMTTSModel,
			Speed:    a.cfg.GLMTTSSpeed,
			Recorder: a.events,
		})
		if err != nil {
			return err
		}
		if err := a.speech.Register(tts.Registration{
			Provider:           glm,
			Priority:           tts.PriorityCloudSecondary,
			Health:             health.New(health.Config{}),
			RequiresCredential: a.cfg.GLMTTSAPIKey != "",
		}); err != nil {
			return err
		}
	}

	return nil
}

// chatterboxPreset resolves the configured preset name.
func chatterboxPreset(name string) (tts.ChatterboxSettings, error) {
	switch name {
	case "", "narration":
		return tts.ChatterboxNarration, nil
	case "expressive":
		return tts.ChatterboxExpressive, nil
	default:
		return tts.ChatterboxSettings{}, fmt.Errorf("unknown chatterbox preset %q", name)
	}
}

// tcpProbeForURL derives a TCP reachability probe from a ws:// or
// http:// endpoint.
func tcpProbeForURL(raw string) health.Probe {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil
	}
	host := u.Host
	if u.Port() == "" {
		switch u.Scheme {
		case "wss", "https":
			host = net.JoinHostPort(u.Hostname(), "443")
		default:
			host = net.JoinHostPort(u.Hostname(), "80")
		}
	}
	return health.TCPProbe(host)
}

// healthURLFor points at the conventional /health endpoint next to a
// synthesis endpoint.
func healthURLFor(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Path = "/health"
	u.RawQuery = ""
	return u.String()
}

func (a *App) Router() http.Handler {
	return httpapi.NewRouter(httpapi.RouterConfig{
		JWTSecret: a.cfg.JWTSecret,
	}, a.logger, a.speech, a.norm, a.events)
}

// Speech exposes the provider router for direct embedding.
func (a *App) Speech() *tts.Router { return a.speech }

func (a *App) Close() error {
	a.speech.Shutdown()
	if a.db != nil {
		a.db.Close()
	}
	return nil
}
