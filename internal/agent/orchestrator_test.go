package agent

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/svaddadi/roomagent/internal/backend"
	"github.com/svaddadi/roomagent/internal/brain"
	"github.com/svaddadi/roomagent/internal/observability"
	"github.com/svaddadi/roomagent/internal/room"
	"github.com/svaddadi/roomagent/internal/session"
	"github.com/svaddadi/roomagent/internal/tools"
	"github.com/svaddadi/roomagent/internal/voice"
)

// Prometheus instruments register globally, so tests share one set.
var testMetrics = observability.NewMetrics("agenttest")

type scriptedBrain struct {
	mu       sync.Mutex
	results  []brain.TurnResult
	requests []brain.TurnRequest
}

func (b *scriptedBrain) CompleteTurn(_ context.Context, req brain.TurnRequest) (brain.TurnResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, req)
	if len(b.results) == 0 {
		return brain.TurnResult{Text: "done"}, nil
	}
	next := b.results[0]
	b.results = b.results[1:]
	return next, nil
}

func (b *scriptedBrain) recorded() []brain.TurnRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]brain.TurnRequest, len(b.requests))
	copy(out, b.requests)
	return out
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func pcmFrame(amplitude int16) []byte {
	buf := make([]byte, 320)
	for i := 0; i < len(buf); i += 2 {
		binary.LittleEndian.PutUint16(buf[i:], uint16(amplitude))
	}
	return buf
}

// pushUtterance injects one spoken utterance: voiced frames followed by
// enough silence to close it.
func pushUtterance(h *room.MockHandle) {
	for i := 0; i < 3; i++ {
		h.PushAudio(room.Frame{PCM16: pcmFrame(2000), SampleRate: 16000})
	}
	for i := 0; i < 8; i++ {
		h.PushAudio(room.Frame{PCM16: pcmFrame(0), SampleRate: 16000})
	}
}

// spokenText decodes everything the agent has played into the room. The
// mock TTS encodes text bytes as PCM, so this is the spoken transcript.
func spokenText(h *room.MockHandle) string {
	var b strings.Builder
	for _, f := range h.Written() {
		b.Write(f.PCM16)
		b.WriteString(" ")
	}
	return b.String()
}

func newTestRegistry(t *testing.T, baseURL string, timeout time.Duration) *tools.Registry {
	t.Helper()
	reg, err := tools.NewDefaultRegistry(backend.New(timeout), tools.BackendConfig{
		BaseURL:     baseURL,
		BearerToken: "test-bearer",
	})
	if err != nil {
		t.Fatalf("NewDefaultRegistry() error = %v", err)
	}
	return reg
}

func TestRunGeneralLookupTurn(t *testing.T) {
	var backendMu sync.Mutex
	var backendPaths []string
	var backendBodies []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		backendMu.Lock()
		backendPaths = append(backendPaths, r.URL.Path)
		backendBodies = append(backendBodies, body)
		backendMu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":"Paris is the capital of France."}`))
	}))
	defer srv.Close()

	adapter := &scriptedBrain{results: []brain.TurnResult{
		{Text: "Hi there! How can I help?"},
		{ToolCalls: []brain.ToolCall{{
			ID:        "call-1",
			Name:      tools.GeneralLookupName,
			Arguments: map[string]any{"prompt": "capital of France"},
		}}},
		{Text: "The capital of France is Paris."},
	}}

	dialer := room.NewScriptedDialer(0, nil)
	provider := voice.NewMockProvider()
	provider.QueueTranscript("what is the capital of france")
	sessions := session.NewManager(time.Minute)

	orch := NewOrchestrator(Options{
		Sessions:  sessions,
		Dialer:    dialer,
		Brain:     adapter,
		Registry:  newTestRegistry(t, srv.URL, 2*time.Second),
		STT:       provider,
		TTS:       provider,
		Metrics:   testMetrics,
		RoomName:  "lobby",
		JoinToken: "signed-token",
		AuthToken: "session-auth",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- orch.Run(ctx) }()

	handle := dialer.Handle()
	waitFor(t, 2*time.Second, "greeting", func() bool {
		return strings.Contains(spokenText(handle), "Hi there")
	})

	pushUtterance(handle)
	waitFor(t, 2*time.Second, "final reply", func() bool {
		return strings.Contains(spokenText(handle), "Paris")
	})

	spoken := spokenText(handle)
	if strings.Contains(spoken, tools.GeneralLookupName) || strings.Contains(strings.ToLower(spoken), "general lookup") {
		t.Fatalf("spoken output leaks tool name: %q", spoken)
	}

	backendMu.Lock()
	paths, bodies := backendPaths, backendBodies
	backendMu.Unlock()
	if len(paths) != 1 || paths[0] != "/voice/rag" {
		t.Fatalf("backend paths = %v, want one /voice/rag call", paths)
	}
	if bodies[0]["prompt"] != "capital of France" {
		t.Fatalf("backend prompt = %v", bodies[0]["prompt"])
	}
	if ref, _ := bodies[0]["app_ref_code"].(string); ref == "" {
		t.Fatalf("backend call has no ref code: %v", bodies[0])
	}

	reqs := adapter.recorded()
	if len(reqs) != 3 {
		t.Fatalf("brain turns = %d, want 3", len(reqs))
	}
	last := reqs[2].Messages[len(reqs[2].Messages)-1]
	if last.Role != "tool" || last.ToolName != tools.GeneralLookupName {
		t.Fatalf("last message before final reply = %+v, want tool result", last)
	}
	if !strings.Contains(last.Content, "Paris") {
		t.Fatalf("tool result content = %q, want backend payload", last.Content)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestRunClientDataTimeoutDeflects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte(`{"response":"too late"}`))
	}))
	defer srv.Close()

	adapter := &scriptedBrain{results: []brain.TurnResult{
		{Text: "Hello!"},
		{ToolCalls: []brain.ToolCall{{
			ID:        "call-1",
			Name:      tools.ClientDataName,
			Arguments: map[string]any{"prompt": "current balance"},
		}}},
		{Text: "I'm sorry, I couldn't get that right now. Anything else?"},
	}}

	dialer := room.NewScriptedDialer(0, nil)
	provider := voice.NewMockProvider()
	provider.QueueTranscript("what is my balance")
	sessions := session.NewManager(time.Minute)

	orch := NewOrchestrator(Options{
		Sessions:  sessions,
		Dialer:    dialer,
		Brain:     adapter,
		Registry:  newTestRegistry(t, srv.URL, 30*time.Millisecond),
		STT:       provider,
		TTS:       provider,
		Metrics:   testMetrics,
		RoomName:  "lobby",
		JoinToken: "signed-token",
		AuthToken: "session-auth",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- orch.Run(ctx) }()

	handle := dialer.Handle()
	waitFor(t, 2*time.Second, "greeting", func() bool {
		return strings.Contains(spokenText(handle), "Hello")
	})

	pushUtterance(handle)
	waitFor(t, 2*time.Second, "deflection reply", func() bool {
		return strings.Contains(spokenText(handle), "sorry")
	})

	spoken := spokenText(handle)
	if strings.Contains(spoken, "context deadline exceeded") || strings.Contains(spoken, tools.ClientDataName) {
		t.Fatalf("spoken output leaks internals: %q", spoken)
	}

	// The failure reached the model as a tool-result error, not the user.
	reqs := adapter.recorded()
	if len(reqs) != 3 {
		t.Fatalf("brain turns = %d, want 3", len(reqs))
	}
	last := reqs[2].Messages[len(reqs[2].Messages)-1]
	if last.Role != "tool" || !strings.Contains(last.Content, "error") {
		t.Fatalf("tool failure message = %+v, want error payload", last)
	}

	// The session survives the failed tool and is listening again.
	waitFor(t, 2*time.Second, "session back to listening", func() bool {
		s, err := sessions.Get(orch.SessionID())
		return err == nil && s.State == session.StateListening
	})

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestRunRetriesJoinThenGreets(t *testing.T) {
	adapter := &scriptedBrain{results: []brain.TurnResult{{Text: "Welcome back!"}}}
	dialer := room.NewScriptedDialer(2, errors.New("room service unavailable"))
	provider := voice.NewMockProvider()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	orch := NewOrchestrator(Options{
		Sessions:           session.NewManager(time.Minute),
		Dialer:             dialer,
		Brain:              adapter,
		Registry:           newTestRegistry(t, srv.URL, time.Second),
		STT:                provider,
		TTS:                provider,
		Metrics:            testMetrics,
		RoomName:           "lobby",
		JoinToken:          "signed-token",
		ConnectMaxAttempts: 3,
		ConnectBackoffBase: time.Millisecond,
		ConnectBackoffCap:  2 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- orch.Run(ctx) }()

	handle := dialer.Handle()
	waitFor(t, 2*time.Second, "greeting after retries", func() bool {
		return strings.Contains(spokenText(handle), "Welcome back")
	})
	if got := dialer.Attempts(); got != 3 {
		t.Fatalf("join attempts = %d, want 3", got)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

type lockedBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (w *lockedBuffer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.b.Write(p)
}

func (w *lockedBuffer) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.b.String()
}

func TestDispatchRedactsBackendFailureInLogs(t *testing.T) {
	const leaked = "Bearer sk_live_0123456789abcdef"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("upstream rejected " + leaked))
	}))
	defer srv.Close()

	orch := NewOrchestrator(Options{
		Registry:  newTestRegistry(t, srv.URL, time.Second),
		AuthToken: "session-auth",
	})

	buf := &lockedBuffer{}
	log.SetOutput(buf)
	defer log.SetOutput(os.Stderr)

	msg := orch.dispatch(context.Background(), "sess-1", brain.ToolCall{
		ID:        "call-1",
		Name:      tools.GeneralLookupName,
		Arguments: map[string]any{"prompt": "x"},
	})
	if msg.Role != "tool" || !strings.Contains(msg.Content, "error") {
		t.Fatalf("dispatch message = %+v, want tool error payload", msg)
	}

	logs := buf.String()
	if strings.Contains(logs, "sk_live_0123456789abcdef") {
		t.Fatalf("log output leaks credential: %q", logs)
	}
	if !strings.Contains(logs, "[REDACTED") {
		t.Fatalf("log output not redacted: %q", logs)
	}
}

type countingTTSStream struct {
	voice.TTSStream
	mu     sync.Mutex
	closes int
}

func (s *countingTTSStream) CloseInput(ctx context.Context) error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	return s.TTSStream.CloseInput(ctx)
}

func (s *countingTTSStream) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

func TestSpeakFinalizesUtterance(t *testing.T) {
	provider := voice.NewMockProvider()
	stream, err := provider.StartStream(context.Background(), voice.TTSSettings{})
	if err != nil {
		t.Fatalf("StartStream() error = %v", err)
	}
	cs := &countingTTSStream{TTSStream: stream}

	orch := NewOrchestrator(Options{})
	orch.speak(context.Background(), "sess-1", cs, "hello there")

	if cs.closeCount() != 1 {
		t.Fatalf("CloseInput calls = %d, want 1", cs.closeCount())
	}
	ev := <-stream.Events()
	if ev.Type != voice.TTSEventAudio {
		t.Fatalf("first event = %s, want audio", ev.Type)
	}
	ev = <-stream.Events()
	if ev.Type != voice.TTSEventFinal {
		t.Fatalf("second event = %s, want final", ev.Type)
	}
}

func TestTrimHistoryCutsAtTurnBoundaries(t *testing.T) {
	var history []brain.Message
	appendTurn := func(toolRounds int) {
		history = append(history, brain.Message{Role: "user", Content: "q"})
		for i := 0; i < toolRounds; i++ {
			history = append(history,
				brain.Message{Role: "assistant", ToolCalls: []brain.ToolCall{{ID: "c", Name: tools.GeneralLookupName}}},
				brain.Message{Role: "tool", ToolCallID: "c", ToolName: tools.GeneralLookupName, Content: `{}`},
			)
		}
		history = append(history, brain.Message{Role: "assistant", Content: "a"})
	}
	appendTurn(0)
	appendTurn(2)
	for i := 0; i < 5; i++ {
		appendTurn(1)
	}

	// A plain tail slice would start the history on this tool message.
	if got := history[len(history)-historyLimit].Role; got != "tool" {
		t.Fatalf("fixture drifted: naive cut lands on %q, want tool", got)
	}

	trimmed := trimHistory(history)
	if len(trimmed) > historyLimit {
		t.Fatalf("len(trimmed) = %d, want <= %d", len(trimmed), historyLimit)
	}
	if trimmed[0].Role != "user" {
		t.Fatalf("trimmed history starts with %q, want user", trimmed[0].Role)
	}
	for i, m := range trimmed {
		if m.Role != "tool" {
			continue
		}
		if i == 0 || len(trimmed[i-1].ToolCalls) == 0 {
			t.Fatalf("tool message at %d orphaned from its tool_calls message", i)
		}
	}
}

func TestRunJoinExhaustionIsFatal(t *testing.T) {
	adapter := &scriptedBrain{}
	dialer := room.NewScriptedDialer(10, errors.New("room service unavailable"))
	provider := voice.NewMockProvider()
	sessions := session.NewManager(time.Minute)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	orch := NewOrchestrator(Options{
		Sessions:           sessions,
		Dialer:             dialer,
		Brain:              adapter,
		Registry:           newTestRegistry(t, srv.URL, time.Second),
		STT:                provider,
		TTS:                provider,
		Metrics:            testMetrics,
		RoomName:           "lobby",
		JoinToken:          "signed-token",
		ConnectMaxAttempts: 3,
		ConnectBackoffBase: time.Millisecond,
		ConnectBackoffCap:  2 * time.Millisecond,
	})

	err := orch.Run(context.Background())
	var connectErr *room.ConnectError
	if !errors.As(err, &connectErr) {
		t.Fatalf("Run() error = %v, want *room.ConnectError", err)
	}
	if connectErr.Attempts != 3 {
		t.Fatalf("Attempts = %d, want 3", connectErr.Attempts)
	}
	if sessions.ActiveCount() != 0 {
		t.Fatalf("ActiveCount() = %d, want 0 after fatal join", sessions.ActiveCount())
	}
	if len(adapter.recorded()) != 0 {
		t.Fatalf("no greeting should run after fatal join, saw %d brain turns", len(adapter.recorded()))
	}
}
