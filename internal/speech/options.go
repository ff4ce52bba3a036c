package speech

// VoiceOptions configure one utterance.
type VoiceOptions struct {
	Voice  string  `json:"voice,omitempty"`
	Rate   float64 `json:"rate,omitempty"`
	Pitch  float64 `json:"pitch,omitempty"`
	Volume float64 `json:"volume,omitempty"`
}

// Normalized fills zero values with defaults and clamps every field to
// the range engines accept.
func (o VoiceOptions) Normalized() VoiceOptions {
	return VoiceOptions{
		Voice:  o.Voice,
		Rate:   clamp(orDefault(o.Rate, 1), 0.1, 10),
		Pitch:  clamp(orDefault(o.Pitch, 1), 0, 2),
		Volume: clamp(orDefault(o.Volume, 1), 0, 1),
	}
}

// Merge returns o with any non-zero field of override applied.
func (o VoiceOptions) Merge(override VoiceOptions) VoiceOptions {
	if override.Voice != "" {
		o.Voice = override.Voice
	}
	if override.Rate != 0 {
		o.Rate = override.Rate
	}
	if override.Pitch != 0 {
		o.Pitch = override.Pitch
	}
	if override.Volume != 0 {
		o.Volume = override.Volume
	}
	return o
}

// CaptureOptions configure speech recognition.
type CaptureOptions struct {
	Language       string `json:"language"`
	Continuous     bool   `json:"continuous"`
	InterimResults bool   `json:"interimResults"`
}

// DefaultCaptureOptions returns continuous en-US recognition with interim
// results.
func DefaultCaptureOptions() CaptureOptions {
	return CaptureOptions{Language: "en-US", Continuous: true, InterimResults: true}
}

func orDefault(v, def float64) float64 {
	if v == 0 || v != v {
		return def
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}
