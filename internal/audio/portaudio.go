package audio

import (
	"context"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// PortAudio reads the default input device.
type PortAudio struct {
	rate int
}

func NewPortAudio(rate int) *PortAudio {
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	return &PortAudio{rate: rate}
}

func (p *PortAudio) Init() error {
	return portaudio.Initialize()
}

func (p *PortAudio) Close() {
	portaudio.Terminate()
}

func (p *PortAudio) Capture(ctx context.Context, n int) ([]float32, error) {
	const frameSize = 1024

	buf := make([]float32, frameSize)

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(p.rate), len(buf), buf)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("start input: %w", err)
	}
	defer stream.Stop()

	out := make([]float32, 0, n)
	for len(out) < n {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := stream.Read(); err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}

		want := n - len(out)
		if want > len(buf) {
			want = len(buf)
		}
		out = append(out, buf[:want]...)
	}

	return out, nil
}

func (p *PortAudio) Stream(chunk int, deliver func([]float32)) (Stream, error) {
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(p.rate), chunk, func(in []float32) {
		deliver(in)
	})
	if err != nil {
		return nil, fmt.Errorf("open input stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start input stream: %w", err)
	}

	return &paStream{stream: stream}, nil
}

type paStream struct {
	stream *portaudio.Stream
}

func (s *paStream) Close() error {
	stopErr := s.stream.Stop()
	if err := s.stream.Close(); err != nil {
		return err
	}
	return stopErr
}
