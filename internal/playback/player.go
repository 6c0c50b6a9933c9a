package playback

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
)

const outputRate = beep.SampleRate(44100)

// Player plays audio files on the default output device. The speaker is
// initialized once, on first use.
type Player struct {
	mu    sync.Mutex
	ready bool
}

func NewPlayer() *Player { return &Player{} }

// Init opens the output device. Safe to call repeatedly.
func (p *Player) Init() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ready {
		return nil
	}
	if err := speaker.Init(outputRate, outputRate.N(time.Second/10)); err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}
	p.ready = true
	return nil
}

// PlayMP3 blocks until the file has been played or ctx is done.
func (p *Player) PlayMP3(ctx context.Context, path string) error {
	if err := p.Init(); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("decode mp3: %w", err)
	}
	defer streamer.Close()

	var s beep.Streamer = streamer
	if format.SampleRate != outputRate {
		s = beep.Resample(4, format.SampleRate, outputRate, streamer)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(s, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}

// Cue plays a short tone that tells the user the microphone is open.
func (p *Player) Cue(ctx context.Context) error {
	if err := p.Init(); err != nil {
		return err
	}

	const (
		freq = 880.0
		amp  = 0.2
	)
	var pos int
	tone := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for i := range samples {
			v := amp * math.Sin(2*math.Pi*freq*float64(pos)/float64(outputRate))
			samples[i][0], samples[i][1] = v, v
			pos++
		}
		return len(samples), true
	})

	done := make(chan struct{})
	speaker.Play(beep.Seq(beep.Take(outputRate.N(150*time.Millisecond), tone), beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}
