package audio

import (
	"context"
	"time"
)

// DefaultSampleRate is the capture rate of the microphone path.
const DefaultSampleRate = 16000

// Buffer is mono float32 audio in [-1, 1].
type Buffer struct {
	Samples    []float32
	SampleRate int
}

func (b Buffer) Len() int { return len(b.Samples) }

func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(b.Samples)) / float64(b.SampleRate) * float64(time.Second))
}

// Source is the default input device.
type Source interface {
	// Capture blocks until n samples have been read.
	Capture(ctx context.Context, n int) ([]float32, error)
	// Stream starts delivering chunk-sized sample slices to deliver from the
	// device thread. deliver must not retain the slice.
	Stream(chunk int, deliver func([]float32)) (Stream, error)
}

type Stream interface {
	Close() error
}
