// Package agent runs the conversational session: it joins the room, greets
// the user and drives the listen → reason → (dispatch)* → respond loop until
// the room goes away or the worker shuts down.
package agent

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/svaddadi/roomagent/internal/brain"
	"github.com/svaddadi/roomagent/internal/observability"
	"github.com/svaddadi/roomagent/internal/policy"
	"github.com/svaddadi/roomagent/internal/reliability"
	"github.com/svaddadi/roomagent/internal/room"
	"github.com/svaddadi/roomagent/internal/router"
	"github.com/svaddadi/roomagent/internal/session"
	"github.com/svaddadi/roomagent/internal/tools"
	"github.com/svaddadi/roomagent/internal/voice"
)

const (
	defaultMaxToolDepth       = 4
	defaultConnectMaxAttempts = 3
	defaultConnectBackoffBase = 500 * time.Millisecond
	defaultConnectBackoffCap  = 8 * time.Second
	// historyLimit bounds in-memory conversation context per session.
	// Nothing conversational is persisted beyond it.
	historyLimit = 24

	fallbackReply    = "Sorry, could you say that again?"
	deflectionReply  = "I'm sorry, I couldn't look that up just now. Is there anything else I can help with?"
	fallbackGreeting = "Hello! How can I help you today?"
)

// Options wires an Orchestrator. Sessions, Dialer, Brain, Registry, STT, TTS
// and Metrics are required.
type Options struct {
	Sessions *session.Manager
	Dialer   room.Dialer
	Brain    brain.Adapter
	Registry *tools.Registry
	STT      voice.STTProvider
	TTS      voice.TTSProvider
	Metrics  *observability.Metrics

	RoomName  string
	JoinToken string

	Policy   router.Policy
	Greeting string
	// AuthToken authorizes client-data lookups for this session's user.
	// It is forwarded per tool call and never enters the conversation.
	AuthToken string
	Voice     voice.TTSSettings

	MaxToolDepth       int
	ConnectMaxAttempts int
	ConnectBackoffBase time.Duration
	ConnectBackoffCap  time.Duration
}

type Orchestrator struct {
	opts Options

	mu        sync.Mutex
	sessionID string
}

func NewOrchestrator(opts Options) *Orchestrator {
	if opts.MaxToolDepth <= 0 {
		opts.MaxToolDepth = defaultMaxToolDepth
	}
	if opts.ConnectMaxAttempts <= 0 {
		opts.ConnectMaxAttempts = defaultConnectMaxAttempts
	}
	if opts.ConnectBackoffBase <= 0 {
		opts.ConnectBackoffBase = defaultConnectBackoffBase
	}
	if opts.ConnectBackoffCap <= 0 {
		opts.ConnectBackoffCap = defaultConnectBackoffCap
	}
	if strings.TrimSpace(opts.Greeting) == "" {
		opts.Greeting = "Greet the user and ask how you can help today."
	}
	return &Orchestrator{opts: opts}
}

// SessionID returns the id of the running session, or "" before the room
// join has succeeded.
func (o *Orchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessionID
}

// Run joins the room and drives the session until the context is canceled
// or the room connection ends. A failed join is fatal: no session is created
// and no greeting is spoken.
func (o *Orchestrator) Run(ctx context.Context) error {
	handle, err := o.connect(ctx)
	if err != nil {
		return err
	}
	defer handle.Close()

	sess := o.opts.Sessions.Create(o.opts.RoomName)
	o.mu.Lock()
	o.sessionID = sess.ID
	o.mu.Unlock()

	o.opts.Metrics.ActiveSessions.Inc()
	defer o.opts.Metrics.ActiveSessions.Dec()
	defer func() {
		if _, err := o.opts.Sessions.End(sess.ID); err == nil {
			o.opts.Metrics.SessionEvents.WithLabelValues("ended").Inc()
		}
	}()

	if err := o.opts.Sessions.Advance(sess.ID, session.StateConnected); err != nil {
		return err
	}
	o.opts.Metrics.SessionEvents.WithLabelValues("connected").Inc()
	log.Printf("session %s: joined room %s", sess.ID, o.opts.RoomName)

	sttSess, sttEvents, err := o.opts.STT.StartSession(ctx, sess.ID)
	if err != nil {
		return err
	}
	defer sttSess.Close()

	ttsStream, err := o.opts.TTS.StartStream(ctx, o.opts.Voice)
	if err != nil {
		return err
	}
	defer ttsStream.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go o.pumpOutbound(runCtx, ttsStream, handle)
	go o.pumpInbound(runCtx, handle, sttSess)

	if err := o.opts.Sessions.Advance(sess.ID, session.StateGreeting); err != nil {
		return err
	}
	o.greet(runCtx, sess.ID, ttsStream)
	if err := o.opts.Sessions.Advance(sess.ID, session.StateListening); err != nil {
		return err
	}

	var history []brain.Message
	for {
		select {
		case <-runCtx.Done():
			return nil
		case ev, ok := <-sttEvents:
			if !ok {
				log.Printf("session %s: audio feed ended", sess.ID)
				return nil
			}
			switch ev.Type {
			case voice.STTEventCommitted:
				text := strings.TrimSpace(ev.Text)
				if text == "" {
					continue
				}
				history = o.handleTurn(runCtx, sess.ID, history, text, ttsStream)
			case voice.STTEventError:
				log.Printf("session %s: transcription error %s: %s", sess.ID, ev.Code, ev.Detail)
			}
		}
	}
}

func (o *Orchestrator) connect(ctx context.Context) (room.Handle, error) {
	var lastErr error
	attempts := 0
	for attempts < o.opts.ConnectMaxAttempts {
		if attempts > 0 {
			wait := reliability.ExponentialBackoff(attempts-1, o.opts.ConnectBackoffBase, o.opts.ConnectBackoffCap)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		attempts++

		handle, err := o.opts.Dialer.Connect(ctx, o.opts.RoomName, o.opts.JoinToken)
		if err == nil {
			o.opts.Metrics.ConnectAttempts.WithLabelValues("ok").Inc()
			return handle, nil
		}
		o.opts.Metrics.ConnectAttempts.WithLabelValues("failure").Inc()
		lastErr = err
		if !reliability.IsRetryableConnectError(err) {
			break
		}
		log.Printf("room %s: join attempt %d/%d failed: %s", o.opts.RoomName, attempts, o.opts.ConnectMaxAttempts, redactForLog(err.Error()))
	}
	return nil, &room.ConnectError{Room: o.opts.RoomName, Attempts: attempts, Cause: lastErr}
}

// pumpInbound forwards room audio through the voice-activity gate into the
// transcription session. When the room feed closes it flushes any open
// utterance and closes the STT session, which ends the main loop.
func (o *Orchestrator) pumpInbound(ctx context.Context, handle room.Handle, sttSess voice.STTSession) {
	gate := voice.NewGate(sttSess)
	sampleRate := 16000
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-handle.AudioIn():
			if !ok {
				if err := gate.Flush(ctx, sampleRate); err != nil {
					log.Printf("flush on room close: %v", err)
				}
				sttSess.Close()
				return
			}
			if f.SampleRate > 0 {
				sampleRate = f.SampleRate
			}
			if err := gate.Feed(ctx, f.PCM16, sampleRate); err != nil {
				log.Printf("feed audio: %v", err)
			}
		}
	}
}

// pumpOutbound plays rendered speech into the room.
func (o *Orchestrator) pumpOutbound(ctx context.Context, tts voice.TTSStream, handle room.Handle) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-tts.Events():
			if !ok {
				return
			}
			if ev.Type != voice.TTSEventAudio {
				if ev.Type == voice.TTSEventError {
					log.Printf("tts error %s: %s", ev.Code, ev.Detail)
				}
				continue
			}
			if err := handle.WriteAudio(ctx, room.Frame{PCM16: ev.PCM16, SampleRate: ev.SampleRate}); err != nil {
				log.Printf("write audio: %v", err)
				return
			}
		}
	}
}

func (o *Orchestrator) greet(ctx context.Context, sessionID string, tts voice.TTSStream) {
	result, err := o.opts.Brain.CompleteTurn(ctx, brain.TurnRequest{
		SessionID:    sessionID,
		TurnID:       uuid.NewString(),
		Instructions: o.opts.Policy.Instructions(o.opts.Registry),
		Messages:     []brain.Message{{Role: "user", Content: o.opts.Greeting}},
	})
	text := strings.TrimSpace(result.Text)
	if err != nil || text == "" {
		if err != nil {
			log.Printf("session %s: greeting generation failed: %v", sessionID, err)
		}
		text = fallbackGreeting
	}
	shaped := policy.ShapeOutbound(text, o.toolNames())
	if shaped == "" {
		shaped = fallbackGreeting
	}
	o.speak(ctx, sessionID, tts, shaped)
	o.opts.Metrics.SessionEvents.WithLabelValues("greeted").Inc()
}

// handleTurn runs one conversational turn: reasoning, bounded tool dispatch,
// then a spoken reply. It always brings the session back to listening.
func (o *Orchestrator) handleTurn(ctx context.Context, sessionID string, history []brain.Message, utterance string, tts voice.TTSStream) []brain.Message {
	started := time.Now()
	turnID := uuid.NewString()
	if err := o.opts.Sessions.Advance(sessionID, session.StateReasoning); err != nil {
		log.Printf("session %s: %v", sessionID, err)
		return history
	}
	if err := o.opts.Sessions.StartTurn(sessionID, turnID); err != nil {
		log.Printf("session %s: %v", sessionID, err)
	}
	o.opts.Metrics.SessionEvents.WithLabelValues("turn").Inc()

	history = append(history, brain.Message{Role: "user", Content: utterance})
	instructions := o.opts.Policy.Instructions(o.opts.Registry)
	menu := router.Menu(o.opts.Registry)

	var reply string
	for depth := 0; depth < o.opts.MaxToolDepth; depth++ {
		result, err := o.opts.Brain.CompleteTurn(ctx, brain.TurnRequest{
			SessionID:    sessionID,
			TurnID:       turnID,
			Instructions: instructions,
			Tools:        menu,
			Messages:     history,
		})
		if err != nil {
			log.Printf("session %s turn %s: reasoning failed: %s", sessionID, turnID, redactForLog(err.Error()))
			reply = deflectionReply
			break
		}

		call, ok := router.SelectCall(result)
		if !ok {
			reply = strings.TrimSpace(result.Text)
			break
		}

		if err := o.opts.Sessions.Advance(sessionID, session.StateToolDispatch); err != nil {
			log.Printf("session %s: %v", sessionID, err)
		}
		history = append(history,
			brain.Message{Role: "assistant", Content: result.Text, ToolCalls: []brain.ToolCall{call}},
			o.dispatch(ctx, sessionID, call),
		)
		if err := o.opts.Sessions.Advance(sessionID, session.StateReasoning); err != nil {
			log.Printf("session %s: %v", sessionID, err)
		}
	}
	if reply == "" {
		// Depth exhausted, reasoning failed, or the model returned nothing
		// speakable.
		reply = fallbackReply
	}

	if err := o.opts.Sessions.Advance(sessionID, session.StateResponding); err != nil {
		log.Printf("session %s: %v", sessionID, err)
	}
	shaped := policy.ShapeOutbound(reply, o.toolNames())
	if shaped == "" {
		shaped = fallbackReply
	}
	o.speak(ctx, sessionID, tts, shaped)
	o.opts.Metrics.ObserveTurnLatency(time.Since(started))

	history = append(history, brain.Message{Role: "assistant", Content: shaped})
	history = trimHistory(history)
	if err := o.opts.Sessions.Advance(sessionID, session.StateListening); err != nil {
		log.Printf("session %s: %v", sessionID, err)
	}
	return history
}

// dispatch runs one tool call and folds the result, success or failure, into
// a tool message for the next reasoning pass. Failures never abort the turn.
func (o *Orchestrator) dispatch(ctx context.Context, sessionID string, call brain.ToolCall) brain.Message {
	outcome, err := o.opts.Registry.Dispatch(ctx, call.Name, call.Arguments, tools.CallContext{
		AuthToken: o.opts.AuthToken,
	})

	var body map[string]any
	switch {
	case err != nil:
		log.Printf("session %s: tool %s rejected: %s", sessionID, call.Name, redactForLog(err.Error()))
		body = map[string]any{"error": err.Error()}
	case outcome.Failed():
		// A failed backend call can echo request headers or a provider
		// error page; scrub credential-shaped text before logging.
		log.Printf("session %s: tool %s ref %s failed: %s", sessionID, call.Name, outcome.RefCode, redactForLog(outcome.Failure))
		body = map[string]any{"error": outcome.Failure}
	default:
		body = outcome.Payload
	}

	content, merr := json.Marshal(body)
	if merr != nil {
		content = []byte(`{"error":"tool result could not be encoded"}`)
	}
	return brain.Message{
		Role:       "tool",
		Content:    string(content),
		ToolCallID: call.ID,
		ToolName:   call.Name,
	}
}

func (o *Orchestrator) speak(ctx context.Context, sessionID string, tts voice.TTSStream, text string) {
	if err := tts.SendText(ctx, text, true); err != nil {
		log.Printf("session %s: speech render failed: %v", sessionID, err)
		return
	}
	// Mark the end of the utterance so the stream emits its final event.
	if err := tts.CloseInput(ctx); err != nil {
		log.Printf("session %s: speech finalize failed: %v", sessionID, err)
	}
}

// trimHistory bounds the conversation context, cutting only at turn
// boundaries: a cut inside a turn would orphan a tool result from the
// assistant message that requested it, which chat endpoints reject.
func trimHistory(history []brain.Message) []brain.Message {
	if len(history) <= historyLimit {
		return history
	}
	cut := len(history) - historyLimit
	for cut < len(history) && history[cut].Role != "user" {
		cut++
	}
	return history[cut:]
}

func redactForLog(s string) string {
	out, _ := policy.RedactSecrets(s)
	return out
}

func (o *Orchestrator) toolNames() []string {
	descriptors := o.opts.Registry.List()
	names := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		names = append(names, d.Name)
	}
	return names
}
