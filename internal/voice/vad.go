package voice

import (
	"context"
	"encoding/binary"
)

const (
	// defaultEnergyThreshold is the mean absolute PCM16 amplitude above
	// which a frame counts as voiced.
	defaultEnergyThreshold = 500
	// defaultHangoverFrames is how many trailing silent frames close an
	// utterance and trigger a commit.
	defaultHangoverFrames = 8
)

// Gate is an energy-based voice-activity gate between the room audio feed
// and the STT session: voiced spans are forwarded, trailing silence commits
// the utterance. It decouples audio capture from the rest of the pipeline,
// so capture keeps running while a previous turn is still rendering.
type Gate struct {
	stt             STTSession
	energyThreshold int
	hangoverFrames  int

	inSpeech     bool
	silentFrames int
}

func NewGate(stt STTSession) *Gate {
	return &Gate{
		stt:             stt,
		energyThreshold: defaultEnergyThreshold,
		hangoverFrames:  defaultHangoverFrames,
	}
}

// Feed processes one inbound audio frame.
func (g *Gate) Feed(ctx context.Context, pcm16 []byte, sampleRate int) error {
	voiced := meanAbsAmplitude(pcm16) >= g.energyThreshold

	switch {
	case voiced:
		g.inSpeech = true
		g.silentFrames = 0
		return g.stt.SendAudioChunk(ctx, pcm16, sampleRate, false)
	case g.inSpeech:
		g.silentFrames++
		if g.silentFrames >= g.hangoverFrames {
			g.inSpeech = false
			g.silentFrames = 0
			// Trailing silence ends the utterance; ask STT to finalize.
			return g.stt.SendAudioChunk(ctx, nil, sampleRate, true)
		}
		return g.stt.SendAudioChunk(ctx, pcm16, sampleRate, false)
	default:
		// Silence outside speech is not forwarded.
		return nil
	}
}

// Flush force-commits any open utterance, e.g. on stream end.
func (g *Gate) Flush(ctx context.Context, sampleRate int) error {
	if !g.inSpeech {
		return nil
	}
	g.inSpeech = false
	g.silentFrames = 0
	return g.stt.SendAudioChunk(ctx, nil, sampleRate, true)
}

func meanAbsAmplitude(pcm16 []byte) int {
	if len(pcm16) < 2 {
		return 0
	}
	var sum int64
	samples := len(pcm16) / 2
	for i := 0; i < samples; i++ {
		// Widen before negating: -int16(-32768) overflows back to -32768.
		v := int(int16(binary.LittleEndian.Uint16(pcm16[2*i:])))
		if v < 0 {
			v = -v
		}
		sum += int64(v)
	}
	return int(sum / int64(samples))
}
