package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"jarvis/internal/metrics"
	"jarvis/internal/vad"
	"jarvis/pkg/audioconv"
)

type Options struct {
	SampleRate  int
	UseVAD      bool
	VADLevel    int           // classifier aggressiveness, 0..3
	Chunk       time.Duration // classification window
	SilenceTail time.Duration // continuous silence that ends a recording
}

func DefaultOptions() Options {
	return Options{
		SampleRate:  DefaultSampleRate,
		UseVAD:      true,
		VADLevel:    2,
		Chunk:       100 * time.Millisecond,
		SilenceTail: 2 * time.Second,
	}
}

// Recorder captures microphone audio, either for a fixed time or until the
// speaker goes quiet.
type Recorder struct {
	src     Source
	opt     Options
	metrics *metrics.Metrics

	// NewClassifier builds the VAD for one recording.
	NewClassifier func(level int) (vad.Classifier, error)
}

func NewRecorder(src Source, opt Options, m *metrics.Metrics) *Recorder {
	def := DefaultOptions()
	if opt.SampleRate <= 0 {
		opt.SampleRate = def.SampleRate
	}
	if opt.Chunk <= 0 {
		opt.Chunk = def.Chunk
	}
	if opt.SilenceTail <= 0 {
		opt.SilenceTail = def.SilenceTail
	}

	return &Recorder{
		src:     src,
		opt:     opt,
		metrics: m,
		NewClassifier: func(level int) (vad.Classifier, error) {
			v, err := vad.New(level)
			if err != nil {
				return nil, err
			}
			return v, nil
		},
	}
}

func (r *Recorder) SampleRate() int { return r.opt.SampleRate }

func (r *Recorder) samples(d time.Duration) int {
	return int(math.Round(d.Seconds() * float64(r.opt.SampleRate)))
}

// RecordFixed blocks until d worth of audio has been captured.
func (r *Recorder) RecordFixed(ctx context.Context, d time.Duration) (Buffer, error) {
	buf, err := r.recordFixed(ctx, d)
	if err != nil {
		return Buffer{}, err
	}
	r.metrics.Recorded("fixed", buf.Duration().Seconds())
	return buf, nil
}

func (r *Recorder) recordFixed(ctx context.Context, d time.Duration) (Buffer, error) {
	if d <= 0 {
		return Buffer{}, fmt.Errorf("record duration must be positive, got %s", d)
	}

	pcm, err := r.src.Capture(ctx, r.samples(d))
	if err != nil {
		return Buffer{}, err
	}

	return Buffer{Samples: pcm, SampleRate: r.opt.SampleRate}, nil
}

// vadState lives for one RecordWithVAD call.
type vadState struct {
	silence    int
	frames     int
	maxSilence int
	maxFrames  int
}

// observe records one classified chunk and reports whether the silence tail
// has been reached.
func (s *vadState) observe(speech bool) bool {
	if speech {
		s.silence = 0
		return false
	}
	s.silence++
	return s.silence >= s.maxSilence
}

// RecordWithVAD records until SilenceTail of continuous non-speech or until
// maxDuration, whichever comes first. Classifier failures on a chunk leave
// the silence count untouched.
func (r *Recorder) RecordWithVAD(ctx context.Context, maxDuration time.Duration) (Buffer, error) {
	if maxDuration <= 0 {
		maxDuration = 10 * time.Second
	}

	if !r.opt.UseVAD {
		return r.RecordFixed(ctx, maxDuration)
	}

	cls, err := r.NewClassifier(r.opt.VADLevel)
	if err != nil {
		slog.Warn("Voice activity detection unavailable, falling back to timed recording",
			"seconds", maxDuration.Seconds(), "err", err)
		buf, err := r.recordFixed(ctx, maxDuration)
		if err != nil {
			return Buffer{}, err
		}
		r.metrics.Recorded("fallback", buf.Duration().Seconds())
		return buf, nil
	}
	if c, ok := cls.(io.Closer); ok {
		defer c.Close()
	}

	rate := r.opt.SampleRate
	chunkSize := r.samples(r.opt.Chunk)
	maxSamples := r.samples(maxDuration)

	st := vadState{
		maxSilence: max(1, int(math.Round(float64(r.opt.SilenceTail)/float64(r.opt.Chunk)))),
		maxFrames:  max(1, int(math.Round(float64(maxDuration)/float64(r.opt.Chunk)))),
	}

	chunks := make(chan []float32, st.maxFrames+1)
	stream, err := r.src.Stream(chunkSize, func(in []float32) {
		c := append([]float32(nil), in...)
		select {
		case chunks <- c:
		default:
		}
	})
	if err != nil {
		return Buffer{}, err
	}
	defer stream.Close()

	// a stalled device must not outlive the recording bound
	guard := time.NewTimer(maxDuration + 2*r.opt.Chunk)
	defer guard.Stop()

	slog.Debug("Recording with VAD", "chunk", chunkSize, "max_frames", st.maxFrames, "max_silence", st.maxSilence)

	out := make([]float32, 0, maxSamples)
	stop := "max_duration"

loop:
	for st.frames < st.maxFrames {
		select {
		case <-ctx.Done():
			return Buffer{}, ctx.Err()

		case <-guard.C:
			break loop

		case c := <-chunks:
			st.frames++
			out = append(out, c...)

			speech, err := cls.IsSpeech(audioconv.Float32ToInt16(c), rate)
			if err != nil {
				r.metrics.Inconclusive()
				if !errors.Is(err, vad.ErrEmptyChunk) {
					slog.Debug("VAD inconclusive", "frame", st.frames, "err", err)
				}
				continue
			}

			if st.observe(speech) {
				stop = "silence"
				slog.Debug("Silence detected, stopping", "frames", st.frames)
				break loop
			}
		}
	}

	if len(out) > maxSamples {
		out = out[:maxSamples]
	}

	buf := Buffer{Samples: out, SampleRate: rate}
	r.metrics.Recorded(stop, buf.Duration().Seconds())

	return buf, nil
}
