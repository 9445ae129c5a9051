package voice

import "context"

type STTEventType string

const (
	STTEventPartial   STTEventType = "partial"
	STTEventCommitted STTEventType = "committed"
	STTEventError     STTEventType = "error"
)

type STTEvent struct {
	Type       STTEventType
	Text       string
	Confidence float64
	Code       string
	Detail     string
	Retryable  bool
	Timestamp  int64
}

// STTSession is a lazy, restartable transcription stream. Committed events
// carry finalized utterances.
type STTSession interface {
	SendAudioChunk(ctx context.Context, pcm16 []byte, sampleRate int, commit bool) error
	Close() error
}

type STTProvider interface {
	StartSession(ctx context.Context, sessionID string) (STTSession, <-chan STTEvent, error)
}

type TTSEventType string

const (
	TTSEventAudio TTSEventType = "audio"
	TTSEventFinal TTSEventType = "final"
	TTSEventError TTSEventType = "error"
)

type TTSEvent struct {
	Type       TTSEventType
	PCM16      []byte
	SampleRate int
	Code       string
	Detail     string
	Retryable  bool
}

type TTSSettings struct {
	Voice string
	Speed float64
}

// TTSStream renders text into audio events.
type TTSStream interface {
	SendText(ctx context.Context, text string, flush bool) error
	CloseInput(ctx context.Context) error
	Events() <-chan TTSEvent
	Close() error
}

type TTSProvider interface {
	StartStream(ctx context.Context, settings TTSSettings) (TTSStream, error)
}
