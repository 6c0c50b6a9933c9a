package audioconv

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResampleLinearLength(t *testing.T) {
	cases := []struct {
		n, in, out int
	}{
		{16000, 16000, 8000},
		{44100, 44100, 16000},
		{1001, 48000, 16000},
		{3, 8000, 16000},
		{7, 22050, 16000},
	}
	for _, c := range cases {
		in := make([]float32, c.n)
		got := ResampleLinear(in, c.in, c.out)
		want := int(math.Round(float64(c.n) * float64(c.out) / float64(c.in)))
		assert.Len(t, got, want, "%d samples %d->%d", c.n, c.in, c.out)
	}
}

func TestResampleLinearSameRateIsIdentity(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3}
	assert.Equal(t, in, ResampleLinear(in, 16000, 16000))
	assert.Empty(t, ResampleLinear(nil, 8000, 16000))
}

func TestResampleLinearInterpolates(t *testing.T) {
	out := ResampleLinear([]float32{0, 1}, 1, 2)
	require.Len(t, out, 4)
	assert.InDelta(t, 0.0, out[0], 1e-6)
	assert.InDelta(t, 0.5, out[1], 1e-6)
	assert.InDelta(t, 1.0, out[2], 1e-6)
	assert.InDelta(t, 1.0, out[3], 1e-6)
}

func TestFloat32ToInt16Clips(t *testing.T) {
	out := Float32ToInt16([]float32{0, 1, -1, 2, -3})
	assert.Equal(t, []int16{0, math.MaxInt16, -math.MaxInt16, math.MaxInt16, -math.MaxInt16}, out)
}

func TestDownmixAverages(t *testing.T) {
	out := Downmix([]float32{1, 0, 0.5, 0.5}, 2)
	assert.Equal(t, []float32{0.5, 0.5}, out)
}

func TestWriteWAVDecodesBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	in := make([]float32, 1600)
	for i := range in {
		in[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/TargetRate))
	}
	require.NoError(t, WriteWAV(f, in, TargetRate))
	require.NoError(t, f.Close())

	out, err := ConvertFileToPCM16k(context.Background(), path, Options{})
	require.NoError(t, err)
	require.Len(t, out, len(in))
	for i := range in {
		assert.InDelta(t, in[i], out[i], 1e-3)
	}
}

func TestWriteWAVRejectsBadRate(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "x.wav"))
	require.NoError(t, err)
	defer f.Close()

	assert.Error(t, WriteWAV(f, []float32{0}, 0))
}

func TestConvertRejectsUnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	_, err := ConvertFileToPCM16k(context.Background(), path, Options{})
	assert.ErrorContains(t, err, "unsupported format")
}
