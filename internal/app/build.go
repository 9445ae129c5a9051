// Package app assembles the worker from configuration.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/svaddadi/roomagent/internal/agent"
	"github.com/svaddadi/roomagent/internal/audit"
	"github.com/svaddadi/roomagent/internal/backend"
	"github.com/svaddadi/roomagent/internal/brain"
	"github.com/svaddadi/roomagent/internal/config"
	"github.com/svaddadi/roomagent/internal/httpapi"
	"github.com/svaddadi/roomagent/internal/observability"
	"github.com/svaddadi/roomagent/internal/room"
	"github.com/svaddadi/roomagent/internal/router"
	"github.com/svaddadi/roomagent/internal/session"
	"github.com/svaddadi/roomagent/internal/token"
	"github.com/svaddadi/roomagent/internal/tools"
	"github.com/svaddadi/roomagent/internal/voice"
)

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Sessions     *session.Manager
	Orchestrator *agent.Orchestrator
	Metrics      *observability.Metrics

	// Cleanup releases external resources on shutdown.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	auditStore, err := audit.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("audit store init failed: %w", err)
	}

	registry, err := tools.NewDefaultRegistry(backend.New(cfg.BackendTimeout), tools.BackendConfig{
		BaseURL:     cfg.BackendBaseURL,
		BearerToken: cfg.BackendBearerToken,
	})
	if err != nil {
		_ = auditStore.Close()
		return nil, fmt.Errorf("tool registry init failed: %w", err)
	}

	adapter, err := brain.NewAdapter(brain.Config{
		Mode:    cfg.BrainMode,
		HTTPURL: cfg.BrainHTTPURL,
		APIKey:  cfg.BrainAPIKey,
		Model:   cfg.BrainModel,
	})
	if err != nil {
		_ = auditStore.Close()
		return nil, fmt.Errorf("brain adapter init failed: %w", err)
	}

	sttProvider, ttsProvider, err := resolveVoiceProviders(cfg)
	if err != nil {
		_ = auditStore.Close()
		return nil, err
	}

	dialer, joinToken, err := resolveRoomTransport(cfg)
	if err != nil {
		_ = auditStore.Close()
		return nil, err
	}

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(_ *session.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	orchestrator := agent.NewOrchestrator(agent.Options{
		Sessions:           sessions,
		Dialer:             dialer,
		Brain:              adapter,
		Registry:           registry,
		STT:                sttProvider,
		TTS:                ttsProvider,
		Metrics:            metrics,
		RoomName:           cfg.RoomName,
		JoinToken:          joinToken,
		Policy:             router.Policy{},
		Greeting:           cfg.GreetingInstruction,
		AuthToken:          cfg.BackendAuthToken,
		Voice:              voice.TTSSettings{Voice: cfg.VoicePreset},
		MaxToolDepth:       cfg.MaxToolDepth,
		ConnectMaxAttempts: cfg.ConnectMaxAttempts,
		ConnectBackoffBase: cfg.ConnectBackoffBase,
		ConnectBackoffCap:  cfg.ConnectBackoffCap,
	})

	// Every dispatch feeds metrics and the audit trail. Only correlation
	// metadata is recorded.
	registry.Observe(func(r tools.Report) {
		metrics.ToolCalls.WithLabelValues(r.Tool, r.Outcome).Inc()
		metrics.ObserveBackendLatency(r.Elapsed)
		if err := auditStore.SaveInvocation(ctx, audit.Record{
			RefCode:   r.RefCode,
			SessionID: orchestrator.SessionID(),
			Tool:      r.Tool,
			Outcome:   r.Outcome,
			Elapsed:   r.Elapsed,
			CreatedAt: r.At,
		}); err != nil {
			// The conversation must not stall on audit problems.
			metrics.SessionEvents.WithLabelValues("audit_error").Inc()
		}
	})

	api := httpapi.New(cfg, sessions, auditStore, orchestrator.SessionID)

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Sessions:     sessions,
		Orchestrator: orchestrator,
		Metrics:      metrics,
		Cleanup:      auditStore.Close,
	}, nil
}

func resolveVoiceProviders(cfg config.Config) (voice.STTProvider, voice.TTSProvider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.VoiceProvider)) {
	case "", "auto", "mock":
		p := voice.NewMockProvider()
		return p, p, nil
	default:
		return nil, nil, fmt.Errorf("unsupported voice provider %q", cfg.VoiceProvider)
	}
}

func resolveRoomTransport(cfg config.Config) (room.Dialer, string, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.ConnectionMode)) {
	case "remote":
		joinToken, err := token.Issue(cfg.AgentIdentity, cfg.AgentName, cfg.RoomName,
			token.Grants{RoomJoin: true}, cfg.RoomAPIKey, cfg.RoomAPISecret, cfg.TokenTTL)
		if err != nil {
			return nil, "", fmt.Errorf("issue agent join token: %w", err)
		}
		return room.NewWSDialer(cfg.RoomServiceURL), joinToken, nil
	case "mock":
		return room.NewScriptedDialer(0, nil), "mock-join", nil
	default:
		return nil, "", fmt.Errorf("unsupported connection mode %q", cfg.ConnectionMode)
	}
}
