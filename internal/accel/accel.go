// Package accel implements the hardware-acceleration selector (spec.md
// §4.8, C9): a fixed accelerator enum, preference-ordered selection with
// CPU fallback, and per-platform option structs.
package accel

import "github.com/localmind-ai/ondevice-sdk/internal/aierr"

// Kind enumerates the fixed set of accelerator backends the SDK recognizes.
type Kind string

const (
	CPU    Kind = "CPU"
	Metal  Kind = "Metal"
	CoreML Kind = "CoreML"
	NNAPI  Kind = "NNAPI"
	Vulkan Kind = "Vulkan"
	OpenCL Kind = "OpenCL"
	CUDA   Kind = "CUDA"
	WebGPU Kind = "WebGPU"
)

// Availability reports whether a given accelerator kind is usable on the
// current device.
type Availability struct {
	Kind      Kind
	Available bool
}

// Detector reports the availability of every accelerator kind. CPU is
// always available; the rest are supplied by the platform-specific bridge
// this SDK core treats as an external collaborator (spec.md §1).
type Detector struct {
	available map[Kind]bool
}

// NewDetector builds a detector. extra marks additional kinds (beyond CPU)
// as available, supplied by the platform bridge at SDK init time.
func NewDetector(extra ...Kind) *Detector {
	d := &Detector{available: map[Kind]bool{CPU: true}}
	for _, k := range extra {
		d.available[k] = true
	}
	return d
}

// List returns the availability of every recognized accelerator kind, in
// the canonical enum order.
func (d *Detector) List() []Availability {
	order := []Kind{CPU, Metal, CoreML, NNAPI, Vulkan, OpenCL, CUDA, WebGPU}
	out := make([]Availability, 0, len(order))
	for _, k := range order {
		out = append(out, Availability{Kind: k, Available: d.available[k]})
	}
	return out
}

// IsAvailable reports whether kind is usable on this device.
func (d *Detector) IsAvailable(kind Kind) bool {
	return d.available[kind]
}

// AppleOptions configures Metal/CoreML backend initialization.
type AppleOptions struct {
	UseANE      bool // Apple Neural Engine, CoreML-only
	MetalDevice string
}

// AndroidOptions configures NNAPI backend initialization.
type AndroidOptions struct {
	AllowFP16            bool
	NNAPIAcceleratorName string
}

// Config describes the caller's accelerator preferences for one engine load.
type Config struct {
	PreferredAccelerators []Kind
	FallbackToCPU         bool
	Apple                 AppleOptions
	Android               AndroidOptions
}

// LLMDefaultPreferences returns the default ordered preference list for
// llama-class backends: Metal first on Apple platforms, NNAPI first on
// Android, else CPU only.
func LLMDefaultPreferences(platform string) []Kind {
	switch platform {
	case "ios", "macos", "darwin":
		return []Kind{Metal, CPU}
	case "android":
		return []Kind{NNAPI, CPU}
	default:
		return []Kind{CPU}
	}
}

// STTDefaultPreferences returns the default ordered preference list for
// whisper-class backends: CoreML first on Apple platforms, NNAPI first on
// Android, else CPU only.
func STTDefaultPreferences(platform string) []Kind {
	switch platform {
	case "ios", "macos", "darwin":
		return []Kind{CoreML, Metal, CPU}
	case "android":
		return []Kind{NNAPI, CPU}
	default:
		return []Kind{CPU}
	}
}

// Select iterates cfg.PreferredAccelerators in order and returns the first
// one the detector reports available. If none match and
// cfg.FallbackToCPU is set, returns CPU. Otherwise returns
// InferenceHardwareAccelerationFailure.
func Select(d *Detector, cfg Config) (Kind, error) {
	for _, pref := range cfg.PreferredAccelerators {
		if d.IsAvailable(pref) {
			return pref, nil
		}
	}
	if cfg.FallbackToCPU {
		return CPU, nil
	}
	return "", aierr.New(
		aierr.InferenceHardwareAccelerationFailure,
		"no preferred accelerator is available and CPU fallback is disabled",
		"",
	).WithRecovery("enable fallback_to_cpu or add CPU to preferred_accelerators")
}
