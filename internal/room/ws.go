package room

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/svaddadi/roomagent/internal/backend"
)

// MessageType identifies room websocket payload variants.
type MessageType string

const (
	TypeJoin       MessageType = "join"
	TypeAudioFrame MessageType = "audio_frame"
	TypeLeave      MessageType = "leave"
)

type joinMessage struct {
	Type MessageType `json:"type"`
	Room string      `json:"room"`
}

type audioFrameMessage struct {
	Type        MessageType `json:"type"`
	PCM16Base64 string      `json:"pcm16_base64"`
	SampleRate  int         `json:"sample_rate"`
	TSMs        int64       `json:"ts_ms"`
}

// WSDialer joins rooms over the room service's websocket endpoint,
// authenticating with a signed join token.
type WSDialer struct {
	serviceURL string
}

func NewWSDialer(serviceURL string) *WSDialer {
	return &WSDialer{serviceURL: strings.TrimSpace(serviceURL)}
}

func (d *WSDialer) Connect(ctx context.Context, roomName, token string) (Handle, error) {
	u, err := url.Parse(strings.TrimRight(d.serviceURL, "/") + "/rtc")
	if err != nil {
		return nil, &ConnectError{Room: roomName, Attempts: 1, Cause: err}
	}
	q := u.Query()
	q.Set("room", roomName)
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		cause := fmt.Errorf("dial room websocket: %w", err)
		if resp != nil {
			// A rejected handshake carries the service's HTTP status; keep
			// it typed so retry classification can tell 503 from 401.
			cause = fmt.Errorf("dial room websocket: %w", &backend.StatusError{
				StatusCode: resp.StatusCode,
				Body:       http.StatusText(resp.StatusCode),
			})
		}
		return nil, &ConnectError{Room: roomName, Attempts: 1, Cause: cause}
	}

	if err := conn.WriteJSON(joinMessage{Type: TypeJoin, Room: roomName}); err != nil {
		_ = conn.Close()
		return nil, &ConnectError{Room: roomName, Attempts: 1, Cause: fmt.Errorf("send join: %w", err)}
	}

	h := &wsHandle{
		conn:   conn,
		frames: make(chan Frame, 256),
	}
	go h.readLoop()
	return h, nil
}

type wsHandle struct {
	conn   *websocket.Conn
	frames chan Frame

	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
}

func (h *wsHandle) AudioIn() <-chan Frame { return h.frames }

func (h *wsHandle) WriteAudio(ctx context.Context, f Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := audioFrameMessage{
		Type:        TypeAudioFrame,
		PCM16Base64: base64.StdEncoding.EncodeToString(f.PCM16),
		SampleRate:  f.SampleRate,
		TSMs:        time.Now().UnixMilli(),
	}
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if err := h.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write audio frame: %w", err)
	}
	return nil
}

func (h *wsHandle) readLoop() {
	defer h.closeFrames()
	for {
		_, raw, err := h.conn.ReadMessage()
		if err != nil {
			return
		}
		var envelope struct {
			Type MessageType `json:"type"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			continue
		}
		switch envelope.Type {
		case TypeAudioFrame:
			var msg audioFrameMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				continue
			}
			pcm, err := base64.StdEncoding.DecodeString(msg.PCM16Base64)
			if err != nil || len(pcm) == 0 {
				continue
			}
			rate := msg.SampleRate
			if rate <= 0 {
				rate = 16000
			}
			select {
			case h.frames <- Frame{PCM16: pcm, SampleRate: rate}:
			default:
				// Drop when the consumer falls behind; realtime audio must
				// not back up the socket.
			}
		case TypeLeave:
			return
		}
	}
}

func (h *wsHandle) closeFrames() {
	h.closeMu.Lock()
	defer h.closeMu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.frames)
}

func (h *wsHandle) Close() error {
	h.writeMu.Lock()
	_ = h.conn.WriteJSON(joinMessage{Type: TypeLeave})
	h.writeMu.Unlock()
	return h.conn.Close()
}
