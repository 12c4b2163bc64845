// Package audiofmt implements the AudioData model, the canonical WAV codec,
// and linear-interpolation resampling (spec.md §4.12's WAV codec and
// resample operations, shared by C13/C14). WAV encode/decode is grounded
// on the go-audio/wav + go-audio/audio usage in the whisper.cpp Go
// bindings' benchmark harness (other_examples/..._benchmark_test.go.go),
// which drives the same NewEncoder(io.WriteSeeker, rate, bitDepth, chans, 1)
// + audio.IntBuffer shape used here.
package audiofmt

import (
	"bytes"
	"errors"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/localmind-ai/ondevice-sdk/internal/aierr"
)

// Data is the SDK's PCM audio model: mono float32 samples normalized to
// [-1.0, 1.0] (spec.md §3 AudioData).
type Data struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// IsEndOfStream reports whether d represents the end-of-stream sentinel
// (empty samples), which is otherwise the only case sample_rate/count may
// be non-positive.
func (d Data) IsEndOfStream() bool {
	return len(d.Samples) == 0
}

// memWriteSeeker adapts a growable byte buffer to io.WriteSeeker, since
// go-audio/wav.Encoder requires a seekable sink (it rewrites the RIFF/data
// size fields on Close) but this SDK's public surface wants a []byte.
type memWriteSeeker struct {
	buf []byte
	pos int64
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[m.pos:end], p)
	m.pos = end
	return len(p), nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = m.pos + offset
	case io.SeekEnd:
		newPos = int64(len(m.buf)) + offset
	default:
		return 0, errors.New("audiofmt: invalid seek whence")
	}
	if newPos < 0 {
		return 0, errors.New("audiofmt: negative seek position")
	}
	m.pos = newPos
	return newPos, nil
}

func clampSample(v float32) float32 {
	if v > 1.0 {
		return 1.0
	}
	if v < -1.0 {
		return -1.0
	}
	return v
}

// ToWAV encodes d as a canonical RIFF/WAVE mono PCM buffer at bitsPerSample
// (8, 16, 24, or 32). Out-of-range samples are clamped before encoding.
func ToWAV(d Data, bitsPerSample int) ([]byte, error) {
	if len(d.Samples) == 0 {
		return nil, aierr.New(aierr.InvalidInputAudioFormat, "cannot encode empty audio to WAV", "")
	}
	switch bitsPerSample {
	case 8, 16, 24, 32:
	default:
		return nil, aierr.New(aierr.InvalidInputParameterValue, "unsupported WAV bit depth", "must be one of 8,16,24,32")
	}

	channels := d.Channels
	if channels <= 0 {
		channels = 1
	}

	sink := &memWriteSeeker{}
	enc := wav.NewEncoder(sink, d.SampleRate, bitsPerSample, channels, 1)

	maxVal := float64(int64(1)<<(bitsPerSample-1)) - 1
	ints := make([]int, len(d.Samples))
	for i, s := range d.Samples {
		v := math.Round(float64(clampSample(s)) * maxVal)
		if v > maxVal {
			v = maxVal
		} else if v < -maxVal-1 {
			v = -maxVal - 1
		}
		ints[i] = int(v)
	}

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: d.SampleRate},
		SourceBitDepth: bitsPerSample,
		Data:           ints,
	}
	if err := enc.Write(buf); err != nil {
		return nil, aierr.New(aierr.Unknown, "failed writing WAV samples", err.Error())
	}
	if err := enc.Close(); err != nil {
		return nil, aierr.New(aierr.Unknown, "failed finalizing WAV encoder", err.Error())
	}
	return sink.buf, nil
}

// FromWAV parses a RIFF/WAVE PCM buffer into Data, normalizing samples back
// to [-1.0, 1.0].
func FromWAV(data []byte) (Data, error) {
	if len(data) == 0 {
		return Data{}, aierr.New(aierr.InvalidInputAudioFormat, "cannot decode empty WAV buffer", "")
	}
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Data{}, aierr.New(aierr.InvalidInputAudioFormat, "not a valid RIFF/WAVE PCM file", "")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Data{}, aierr.New(aierr.InvalidInputAudioFormat, "failed decoding WAV PCM data", err.Error())
	}

	bitDepth := int(dec.BitDepth)
	maxVal := float64(int64(1)<<(bitDepth-1)) - 1

	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(float64(v) / maxVal)
	}

	return Data{
		Samples:    samples,
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
	}, nil
}

// Resample changes d's sample rate via linear interpolation; a no-op when
// targetRate equals d.SampleRate.
func Resample(d Data, targetRate int) Data {
	if targetRate <= 0 || targetRate == d.SampleRate || len(d.Samples) == 0 {
		out := d
		out.SampleRate = targetRate
		return out
	}

	ratio := float64(targetRate) / float64(d.SampleRate)
	outLen := int(math.Round(float64(len(d.Samples)) * ratio))
	if outLen < 1 {
		outLen = 1
	}
	out := make([]float32, outLen)
	for i := 0; i < outLen; i++ {
		srcPos := float64(i) / ratio
		idx := int(math.Floor(srcPos))
		frac := srcPos - float64(idx)
		if idx >= len(d.Samples)-1 {
			out[i] = d.Samples[len(d.Samples)-1]
			continue
		}
		out[i] = d.Samples[idx]*float32(1-frac) + d.Samples[idx+1]*float32(frac)
	}
	return Data{Samples: out, SampleRate: targetRate, Channels: d.Channels}
}

// NormalizePeak scales samples so the maximum absolute value is 1.0, unless
// already at or below that peak.
func NormalizePeak(d Data) Data {
	var peak float32
	for _, s := range d.Samples {
		abs := s
		if abs < 0 {
			abs = -abs
		}
		if abs > peak {
			peak = abs
		}
	}
	if peak <= 1.0 || peak == 0 {
		return d
	}
	out := make([]float32, len(d.Samples))
	for i, s := range d.Samples {
		out[i] = s / peak
	}
	return Data{Samples: out, SampleRate: d.SampleRate, Channels: d.Channels}
}
