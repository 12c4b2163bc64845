package audiofmt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localmind-ai/ondevice-sdk/internal/aierr"
)

func sineWave(n, sampleRate int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i%100) / 100.0 * 2.0 - 1.0
	}
	return out
}

func TestToWAVFromWAV_RoundTrips(t *testing.T) {
	orig := Data{Samples: sineWave(1600, 16000), SampleRate: 16000, Channels: 1}

	encoded, err := ToWAV(orig, 16)
	require.NoError(t, err)
	assert.NotEmpty(t, encoded)

	decoded, err := FromWAV(encoded)
	require.NoError(t, err)
	assert.Equal(t, orig.SampleRate, decoded.SampleRate)
	assert.Equal(t, orig.Channels, decoded.Channels)
	require.Len(t, decoded.Samples, len(orig.Samples))

	for i := range orig.Samples {
		assert.InDelta(t, float64(orig.Samples[i]), float64(decoded.Samples[i]), 1e-4)
	}
}

func TestToWAV_RejectsEmptySamples(t *testing.T) {
	_, err := ToWAV(Data{SampleRate: 16000, Channels: 1}, 16)
	assert.Equal(t, aierr.InvalidInputAudioFormat, aierr.CodeOf(err))
}

func TestToWAV_RejectsUnsupportedBitDepth(t *testing.T) {
	_, err := ToWAV(Data{Samples: []float32{0.1}, SampleRate: 16000, Channels: 1}, 12)
	assert.Equal(t, aierr.InvalidInputParameterValue, aierr.CodeOf(err))
}

func TestFromWAV_RejectsEmptyBuffer(t *testing.T) {
	_, err := FromWAV(nil)
	assert.Equal(t, aierr.InvalidInputAudioFormat, aierr.CodeOf(err))
}

func TestFromWAV_RejectsGarbage(t *testing.T) {
	_, err := FromWAV([]byte("not a wav file at all"))
	assert.Equal(t, aierr.InvalidInputAudioFormat, aierr.CodeOf(err))
}

func TestResample_NoOpWhenRateUnchanged(t *testing.T) {
	d := Data{Samples: []float32{0.1, 0.2, 0.3}, SampleRate: 16000, Channels: 1}
	out := Resample(d, 16000)
	assert.Equal(t, d.Samples, out.Samples)
}

func TestResample_UpsampleProducesMoreSamples(t *testing.T) {
	d := Data{Samples: []float32{0, 1, 0, -1}, SampleRate: 8000, Channels: 1}
	out := Resample(d, 16000)
	assert.Len(t, out.Samples, 8)
	assert.Equal(t, 16000, out.SampleRate)
}

func TestResample_DownsampleProducesFewerSamples(t *testing.T) {
	d := Data{Samples: make([]float32, 16000), SampleRate: 16000, Channels: 1}
	out := Resample(d, 8000)
	assert.Len(t, out.Samples, 8000)
}

func TestNormalizePeak_ScalesDownOverUnityPeak(t *testing.T) {
	d := Data{Samples: []float32{0.5, -2.0, 1.0}, SampleRate: 16000, Channels: 1}
	out := NormalizePeak(d)
	assert.InDelta(t, 1.0, out.Samples[1], 1e-6)
	assert.InDelta(t, 0.25, out.Samples[0], 1e-6)
}

func TestNormalizePeak_LeavesInRangeAudioUnchanged(t *testing.T) {
	d := Data{Samples: []float32{0.5, -0.3, 0.1}, SampleRate: 16000, Channels: 1}
	out := NormalizePeak(d)
	assert.Equal(t, d.Samples, out.Samples)
}

func TestNormalizePeak_SilenceStaysSilent(t *testing.T) {
	d := Data{Samples: []float32{0, 0, 0}, SampleRate: 16000, Channels: 1}
	out := NormalizePeak(d)
	assert.Equal(t, d.Samples, out.Samples)
}

func TestData_IsEndOfStream(t *testing.T) {
	assert.True(t, Data{}.IsEndOfStream())
	assert.False(t, Data{Samples: []float32{0.1}}.IsEndOfStream())
}
