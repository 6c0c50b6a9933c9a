package audio

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jarvis/internal/vad"
)

// fakeSource replays a script of chunks from its own goroutine, like a
// device callback thread.
type fakeSource struct {
	script func(i int) ([]float32, bool)

	mu       sync.Mutex
	captured int
	opened   int
	closed   int
	err      error
}

func (f *fakeSource) Capture(_ context.Context, n int) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	f.captured += n
	f.mu.Unlock()
	return make([]float32, n), nil
}

func (f *fakeSource) Stream(chunk int, deliver func([]float32)) (Stream, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	f.opened++
	f.mu.Unlock()

	s := &fakeStream{done: make(chan struct{}), src: f}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		buf := make([]float32, chunk)
		for i := 0; ; i++ {
			select {
			case <-s.done:
				return
			default:
			}
			c, ok := f.script(i)
			if !ok {
				<-s.done
				return
			}
			copy(buf, c)
			deliver(buf)
		}
	}()
	return s, nil
}

type fakeStream struct {
	done chan struct{}
	wg   sync.WaitGroup
	src  *fakeSource
}

func (s *fakeStream) Close() error {
	close(s.done)
	s.wg.Wait()
	s.src.mu.Lock()
	s.src.closed++
	s.src.mu.Unlock()
	return nil
}

func speechChunk() []float32 {
	c := make([]float32, 1600)
	for i := range c {
		c[i] = float32(0.3 * math.Sin(2*math.Pi*300*float64(i)/16000))
	}
	return c
}

func silentChunk() []float32 { return make([]float32, 1600) }

// loudClassifier calls a chunk speech when any sample is loud. Unlike webrtc
// it has no hangover, so chunk counts are exact.
type loudClassifier struct{ closed *int }

func (c loudClassifier) IsSpeech(pcm []int16, _ int) (bool, error) {
	for _, s := range pcm {
		if s > 1000 || s < -1000 {
			return true, nil
		}
	}
	return false, nil
}

func (c loudClassifier) Close() error {
	if c.closed != nil {
		*c.closed++
	}
	return nil
}

func withLoudClassifier(rec *Recorder) *int {
	closed := new(int)
	rec.NewClassifier = func(int) (vad.Classifier, error) { return loudClassifier{closed: closed}, nil }
	return closed
}

type failingClassifier struct{}

func (failingClassifier) IsSpeech([]int16, int) (bool, error) {
	return false, errors.New("boom")
}

func TestRecordFixedLength(t *testing.T) {
	src := &fakeSource{}
	rec := NewRecorder(src, DefaultOptions(), nil)

	for _, d := range []time.Duration{time.Second, 1500 * time.Millisecond, 333 * time.Millisecond} {
		buf, err := rec.RecordFixed(context.Background(), d)
		require.NoError(t, err)
		assert.Equal(t, DefaultSampleRate, buf.SampleRate)
		assert.InDelta(t, d.Seconds()*DefaultSampleRate, float64(buf.Len()), 1)
	}
}

func TestRecordFixedRejectsNonPositive(t *testing.T) {
	rec := NewRecorder(&fakeSource{}, DefaultOptions(), nil)
	_, err := rec.RecordFixed(context.Background(), 0)
	assert.Error(t, err)
}

func TestRecordFixedPropagatesDeviceError(t *testing.T) {
	rec := NewRecorder(&fakeSource{err: errors.New("no device")}, DefaultOptions(), nil)
	_, err := rec.RecordFixed(context.Background(), time.Second)
	assert.ErrorContains(t, err, "no device")
}

func TestRecordWithVADStopsAfterSilenceTail(t *testing.T) {
	src := &fakeSource{script: func(i int) ([]float32, bool) {
		switch {
		case i < 10:
			return speechChunk(), true
		case i < 35:
			return silentChunk(), true
		}
		return nil, false
	}}
	rec := NewRecorder(src, DefaultOptions(), nil)
	closed := withLoudClassifier(rec)

	buf, err := rec.RecordWithVAD(context.Background(), 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 30*1600, buf.Len())
	assert.InDelta(t, 3.0, buf.Duration().Seconds(), 0.01)
	assert.Equal(t, 1, src.closed)
	assert.Equal(t, 1, *closed)
}

func TestRecordWithVADWebRTCStopsNearThreeSeconds(t *testing.T) {
	src := &fakeSource{script: func(i int) ([]float32, bool) {
		switch {
		case i < 10:
			return speechChunk(), true
		case i < 40:
			return silentChunk(), true
		}
		return nil, false
	}}
	rec := NewRecorder(src, DefaultOptions(), nil)

	buf, err := rec.RecordWithVAD(context.Background(), 10*time.Second)
	require.NoError(t, err)
	// webrtc holds speech for a few frames after it ends
	assert.InDelta(t, 3.0, buf.Duration().Seconds(), 0.25)
	assert.Equal(t, 1, src.closed)
}

func TestRecordWithVADNeverExceedsMaxDuration(t *testing.T) {
	src := &fakeSource{script: func(int) ([]float32, bool) { return speechChunk(), true }}
	rec := NewRecorder(src, DefaultOptions(), nil)

	buf, err := rec.RecordWithVAD(context.Background(), 250*time.Millisecond)
	require.NoError(t, err)
	assert.LessOrEqual(t, buf.Len(), 4000)
	assert.Equal(t, DefaultSampleRate, buf.SampleRate)
}

func TestRecordWithVADClassifierErrorsAreInconclusive(t *testing.T) {
	src := &fakeSource{script: func(int) ([]float32, bool) { return silentChunk(), true }}
	rec := NewRecorder(src, DefaultOptions(), nil)
	rec.NewClassifier = func(int) (vad.Classifier, error) { return failingClassifier{}, nil }

	buf, err := rec.RecordWithVAD(context.Background(), time.Second)
	require.NoError(t, err)
	// silence never counted, so the recording runs to its bound
	assert.Equal(t, 16000, buf.Len())
}

func TestRecordWithVADFallsBackWhenClassifierUnavailable(t *testing.T) {
	src := &fakeSource{}
	rec := NewRecorder(src, DefaultOptions(), nil)
	rec.NewClassifier = func(int) (vad.Classifier, error) { return nil, errors.New("not installed") }

	buf, err := rec.RecordWithVAD(context.Background(), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 32000, buf.Len())
	assert.Zero(t, src.opened)
}

func TestRecordWithVADDisabledDelegates(t *testing.T) {
	src := &fakeSource{}
	opt := DefaultOptions()
	opt.UseVAD = false
	rec := NewRecorder(src, opt, nil)

	buf, err := rec.RecordWithVAD(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 16000, buf.Len())
	assert.Zero(t, src.opened)
}

func TestRecordWithVADEmptyWhenNothingArrives(t *testing.T) {
	src := &fakeSource{script: func(int) ([]float32, bool) { return nil, false }}
	rec := NewRecorder(src, DefaultOptions(), nil)

	buf, err := rec.RecordWithVAD(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	assert.Zero(t, buf.Len())
	assert.Equal(t, 1, src.closed)
}

func TestRecordWithVADClosesStreamOnCancel(t *testing.T) {
	src := &fakeSource{script: func(int) ([]float32, bool) { return nil, false }}
	rec := NewRecorder(src, DefaultOptions(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := rec.RecordWithVAD(ctx, 5*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, src.closed)
}

func TestRecordWithVADTunableTail(t *testing.T) {
	src := &fakeSource{script: func(i int) ([]float32, bool) {
		if i < 5 {
			return speechChunk(), true
		}
		return silentChunk(), true
	}}
	opt := DefaultOptions()
	opt.SilenceTail = 500 * time.Millisecond
	rec := NewRecorder(src, opt, nil)
	withLoudClassifier(rec)

	buf, err := rec.RecordWithVAD(context.Background(), 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 10*1600, buf.Len())
}
