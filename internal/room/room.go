// Package room is the boundary to the real-time media room service.
package room

import (
	"context"
	"fmt"
)

// Frame is one chunk of room audio.
type Frame struct {
	PCM16      []byte
	SampleRate int
}

// Handle is a live connection to one joined room.
type Handle interface {
	// AudioIn delivers inbound participant audio. The channel closes when
	// the room connection ends.
	AudioIn() <-chan Frame
	// WriteAudio emits one outbound audio frame to the room.
	WriteAudio(ctx context.Context, f Frame) error
	Close() error
}

// Dialer joins rooms. Credentials are signed join tokens, never raw secrets.
type Dialer interface {
	Connect(ctx context.Context, roomName, token string) (Handle, error)
}

// ConnectError reports a failed room join.
type ConnectError struct {
	Room     string
	Attempts int
	Cause    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("room: join %s failed after %d attempt(s): %v", e.Room, e.Attempts, e.Cause)
}

func (e *ConnectError) Unwrap() error { return e.Cause }
