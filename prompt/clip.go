package prompt

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/bosley/snipe/audio"
	"github.com/youpy/go-wav"
)

var ErrUnsupportedClip = errors.New("unsupported prompt encoding")

// Clip is a decoded prompt: interleaved int16 samples.
type Clip struct {
	Format  audio.Format
	Samples []int16
}

func (c *Clip) Duration() time.Duration {
	frames := len(c.Samples) / int(c.Format.Channels)
	return time.Duration(frames) * time.Second / time.Duration(c.Format.SampleRate)
}

// WithGain returns a copy scaled by gain and clipped to the int16 range.
func (c *Clip) WithGain(gain float64) *Clip {
	return &Clip{Format: c.Format, Samples: ApplyGain(c.Samples, gain)}
}

// Decode parses a 16-bit PCM WAV file. Malformed input is an error, never a
// panic.
func Decode(data []byte) (clip *Clip, err error) {
	defer func() {
		if r := recover(); r != nil {
			clip, err = nil, fmt.Errorf("%w: %v", ErrUnsupportedClip, r)
		}
	}()

	reader := wav.NewReader(bytes.NewReader(data))

	format, err := reader.Format()
	if err != nil {
		return nil, fmt.Errorf("failed to read WAV format: %w", err)
	}
	if format.AudioFormat != wav.AudioFormatPCM || format.BitsPerSample != 16 {
		return nil, fmt.Errorf("%w: format=%d bits=%d", ErrUnsupportedClip, format.AudioFormat, format.BitsPerSample)
	}
	if format.NumChannels == 0 || format.SampleRate == 0 {
		return nil, fmt.Errorf("%w: empty format", ErrUnsupportedClip)
	}

	clip = &Clip{
		Format: audio.Format{
			SampleRate:    format.SampleRate,
			Channels:      format.NumChannels,
			BitsPerSample: format.BitsPerSample,
		},
	}
	for {
		samples, readErr := reader.ReadSamples(4096)
		for _, s := range samples {
			for ch := uint(0); ch < uint(format.NumChannels); ch++ {
				clip.Samples = append(clip.Samples, int16(reader.IntValue(s, ch)))
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("failed to read WAV samples: %w", readErr)
		}
	}
	return clip, nil
}

// ApplyGain scales samples, clipping instead of wrapping.
func ApplyGain(samples []int16, gain float64) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = scale(int(s), gain)
	}
	return out
}

func scale(sample int, gain float64) int16 {
	v := math.Round(float64(sample) * gain)
	switch {
	case v > math.MaxInt16:
		v = math.MaxInt16
	case v < math.MinInt16:
		v = math.MinInt16
	}
	return int16(v)
}
