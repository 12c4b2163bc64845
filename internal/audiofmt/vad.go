package audiofmt

import (
	"math"

	"github.com/localmind-ai/ondevice-sdk/internal/aierr"
)

// Segment is a time-ordered, non-overlapping span of detected voice activity.
type Segment struct {
	StartTime float64
	EndTime   float64
}

const vadFrameSeconds = 0.02

// DetectVoiceActivity returns time-ordered, non-overlapping segments where
// frame energy exceeds threshold (spec.md §4.12).
func DetectVoiceActivity(d Data, threshold float64) ([]Segment, error) {
	if threshold < 0 || threshold > 1 {
		return nil, aierr.New(aierr.InvalidInputParameterValue, "VAD threshold must be within [0,1]", "")
	}
	if len(d.Samples) == 0 || d.SampleRate <= 0 {
		return nil, aierr.New(aierr.InvalidInputAudioFormat, "cannot run VAD on empty or malformed audio", "")
	}

	frameSize := int(float64(d.SampleRate) * vadFrameSeconds)
	if frameSize < 1 {
		frameSize = 1
	}

	var segments []Segment
	var active bool
	var segStart float64

	for start := 0; start < len(d.Samples); start += frameSize {
		end := start + frameSize
		if end > len(d.Samples) {
			end = len(d.Samples)
		}
		energy := rmsEnergy(d.Samples[start:end])
		t := float64(start) / float64(d.SampleRate)

		if energy > float32(threshold) {
			if !active {
				active = true
				segStart = t
			}
		} else if active {
			active = false
			segments = append(segments, Segment{StartTime: segStart, EndTime: t})
		}
	}
	if active {
		segments = append(segments, Segment{StartTime: segStart, EndTime: float64(len(d.Samples)) / float64(d.SampleRate)})
	}
	return segments, nil
}

func rmsEnergy(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	mean := sum / float64(len(samples))
	return float32(math.Sqrt(mean))
}
