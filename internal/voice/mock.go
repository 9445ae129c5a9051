package voice

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MockProvider is the local fallback STT/TTS provider used in tests and
// mock voice mode. Voiced chunks become a canned transcript; TTS encodes
// the text bytes as fake PCM.
type MockProvider struct {
	mu          sync.Mutex
	transcripts []string
}

func NewMockProvider() *MockProvider { return &MockProvider{} }

// QueueTranscript sets the transcripts emitted on subsequent commits.
func (p *MockProvider) QueueTranscript(texts ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transcripts = append(p.transcripts, texts...)
}

func (p *MockProvider) nextTranscript() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.transcripts) == 0 {
		return "simulated voice input"
	}
	next := p.transcripts[0]
	p.transcripts = p.transcripts[1:]
	return next
}

func (p *MockProvider) StartSession(_ context.Context, _ string) (STTSession, <-chan STTEvent, error) {
	events := make(chan STTEvent, 64)
	s := &mockSTTSession{provider: p, events: events}
	return s, events, nil
}

func (p *MockProvider) StartStream(_ context.Context, _ TTSSettings) (TTSStream, error) {
	events := make(chan TTSEvent, 128)
	return &mockTTSStream{events: events}, nil
}

type mockSTTSession struct {
	mu       sync.Mutex
	provider *MockProvider
	events   chan STTEvent
	sawAudio bool
	closed   bool
}

func (s *mockSTTSession) SendAudioChunk(_ context.Context, pcm16 []byte, _ int, commit bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if len(pcm16) > 0 {
		s.sawAudio = true
		s.events <- STTEvent{Type: STTEventPartial, Text: "...", Confidence: 0.5, Timestamp: time.Now().UnixMilli()}
	}
	if commit && s.sawAudio {
		s.sawAudio = false
		s.events <- STTEvent{
			Type:       STTEventCommitted,
			Text:       s.provider.nextTranscript(),
			Confidence: 0.7,
			Timestamp:  time.Now().UnixMilli(),
		}
	}
	return nil
}

func (s *mockSTTSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.events)
	return nil
}

type mockTTSStream struct {
	mu     sync.Mutex
	events chan TTSEvent
	closed bool
}

func (s *mockTTSStream) SendText(_ context.Context, text string, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	s.events <- TTSEvent{Type: TTSEventAudio, PCM16: []byte(text), SampleRate: 16000}
	return nil
}

func (s *mockTTSStream) CloseInput(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.events <- TTSEvent{Type: TTSEventFinal}
	return nil
}

func (s *mockTTSStream) Events() <-chan TTSEvent { return s.events }

func (s *mockTTSStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.events)
	return nil
}
