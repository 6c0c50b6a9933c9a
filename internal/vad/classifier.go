package vad

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/hackers365/go-webrtcvad"
)

// Classifier labels one chunk of 16-bit PCM as speech or non-speech.
type Classifier interface {
	IsSpeech(pcm []int16, sampleRate int) (bool, error)
}

const (
	FrameDuration = 20 // ms, one of the 10/20/30 ms webrtc accepts
	MaxLevel      = 3
)

var ErrEmptyChunk = errors.New("vad: empty chunk")

// WebRTC classifies with the WebRTC voice activity detector. A chunk is
// speech when at least half of its 20 ms frames are voiced. The detector
// keeps state between calls, so one WebRTC serves one recording.
type WebRTC struct {
	mu    sync.Mutex
	inst  *webrtcvad.VAD
	level int

	process func(rate int, frame []byte) (bool, error)
	buf     []byte
}

// New builds a detector for aggressiveness 0 (least) to 3 (most). An error
// means voice activity detection is unavailable.
func New(level int) (*WebRTC, error) {
	if level < 0 || level > MaxLevel {
		return nil, fmt.Errorf("vad: aggressiveness must be 0..%d, got %d", MaxLevel, level)
	}

	inst, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("vad: %w", err)
	}
	if err := inst.SetMode(level); err != nil {
		webrtcvad.Free(inst)
		return nil, fmt.Errorf("vad: set mode %d: %w", level, err)
	}

	return &WebRTC{inst: inst, level: level, process: inst.Process}, nil
}

func (w *WebRTC) Level() int { return w.level }

func (w *WebRTC) IsSpeech(pcm []int16, sampleRate int) (bool, error) {
	if !ValidRate(sampleRate) {
		return false, fmt.Errorf("vad: unsupported sample rate %d", sampleRate)
	}
	if len(pcm) == 0 {
		return false, ErrEmptyChunk
	}

	frame := sampleRate * FrameDuration / 1000
	if len(pcm) < frame {
		return false, fmt.Errorf("vad: chunk of %d samples is shorter than one %dms frame", len(pcm), FrameDuration)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.process == nil {
		return false, errors.New("vad: closed")
	}

	if cap(w.buf) < frame*2 {
		w.buf = make([]byte, frame*2)
	}
	b := w.buf[:frame*2]

	var frames, voiced int
	for off := 0; off+frame <= len(pcm); off += frame {
		for i, s := range pcm[off : off+frame] {
			binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
		}
		active, err := w.process(sampleRate, b)
		if err != nil {
			return false, fmt.Errorf("vad: frame %d: %w", frames, err)
		}
		frames++
		if active {
			voiced++
		}
	}

	return voiced*2 >= frames, nil
}

// Close releases the detector. Later IsSpeech calls fail.
func (w *WebRTC) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.inst != nil {
		webrtcvad.Free(w.inst)
		w.inst = nil
	}
	w.process = nil
	return nil
}

func ValidRate(sampleRate int) bool {
	switch sampleRate {
	case 8000, 16000, 32000, 48000:
		return true
	}
	return false
}
