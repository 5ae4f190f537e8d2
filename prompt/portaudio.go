package prompt

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/bosley/snipe/audio"
	"github.com/gordonklaus/portaudio"
	"github.com/youpy/go-wav"
)

const framesPerBuffer = 1024

// SharedOutput keeps one PortAudio output stream open for every prompt of a
// session. Clips must match its format; anything else goes to the fallback.
type SharedOutput struct {
	format audio.Format

	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []int16
}

func NewSharedOutput(format audio.Format) *SharedOutput {
	return &SharedOutput{format: format}
}

// Unlock opens the stream and writes one silent buffer.
func (o *SharedOutput) Unlock() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stream != nil {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	o.buf = make([]int16, framesPerBuffer*int(o.format.Channels))
	stream, err := portaudio.OpenDefaultStream(0, int(o.format.Channels), float64(o.format.SampleRate), framesPerBuffer, &o.buf)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("failed to open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("failed to start output stream: %w", err)
	}
	for i := range o.buf {
		o.buf[i] = 0
	}
	if err := stream.Write(); err != nil {
		slog.Debug("Silent unlock write failed", "error", err)
	}
	o.stream = stream
	return nil
}

func (o *SharedOutput) Play(ctx context.Context, clip *Clip) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stream == nil {
		return ErrLocked
	}
	if clip.Format != o.format {
		return fmt.Errorf("%w: clip is %dHz/%dch, output is %dHz/%dch", ErrUnsupportedClip,
			clip.Format.SampleRate, clip.Format.Channels, o.format.SampleRate, o.format.Channels)
	}

	for offset := 0; offset < len(clip.Samples); offset += len(o.buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(o.buf, clip.Samples[offset:])
		for i := n; i < len(o.buf); i++ {
			o.buf[i] = 0
		}
		if err := o.stream.Write(); err != nil {
			return fmt.Errorf("failed to write prompt audio: %w", err)
		}
	}
	return nil
}

// Close releases the stream. The output can be unlocked again afterwards.
func (o *SharedOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stream == nil {
		return nil
	}
	defer portaudio.Terminate()
	if err := o.stream.Stop(); err != nil {
		slog.Error("Failed to stop output stream", "error", err)
	}
	err := o.stream.Close()
	o.stream = nil
	return err
}

// OneShotOutput opens a stream at the file's own format for each playback.
type OneShotOutput struct{}

func (OneShotOutput) PlayOnce(ctx context.Context, data []byte, gain float64) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	reader := wav.NewReader(bytes.NewReader(data))
	format, err := reader.Format()
	if err != nil {
		return fmt.Errorf("failed to read WAV format: %w", err)
	}

	done := make(chan struct{})
	var doneOnce sync.Once
	finish := func() { doneOnce.Do(func() { close(done) }) }

	stream, err := portaudio.OpenDefaultStream(
		0,
		int(format.NumChannels),
		float64(format.SampleRate),
		framesPerBuffer,
		func(out []int16) {
			frames := uint32(len(out) / int(format.NumChannels))
			samples, err := reader.ReadSamples(frames)
			if err != nil && err != io.EOF {
				slog.Error("Error reading from WAV data", "error", err)
			}

			i := 0
			for _, s := range samples {
				for ch := uint(0); ch < uint(format.NumChannels) && i < len(out); ch++ {
					out[i] = scale(reader.IntValue(s, ch), gain)
					i++
				}
			}
			// Fill remaining buffer with silence if needed
			for ; i < len(out); i++ {
				out[i] = 0
			}
			if err != nil {
				finish()
			}
		},
	)
	if err != nil {
		return fmt.Errorf("failed to open audio stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start audio stream: %w", err)
	}

	select {
	case <-done:
	case <-ctx.Done():
	}
	return stream.Stop()
}
