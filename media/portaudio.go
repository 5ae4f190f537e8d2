package media

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bosley/snipe/audio"
	"github.com/google/uuid"
	"github.com/gordonklaus/portaudio"
)

const framesPerBuffer = 1024

// PortAudioBackend captures microphone input through PortAudio. The host has
// no camera backend, so video constraints are accepted and recorded as an
// audio-only stream.
type PortAudioBackend struct {
	// DeviceID selects an input device by index; 0 uses the default device.
	DeviceID int
}

func (b *PortAudioBackend) Open(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	device, err := b.inputDevice()
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	if c.Audio.EchoCancellation != nil || c.Audio.NoiseSuppression != nil || c.Audio.AutoGainControl != nil {
		slog.Debug("PortAudio input is unprocessed, processing constraints already satisfied",
			"deviceName", device.Name)
	}

	format := audio.DefaultFormat
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: int(format.Channels),
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(format.SampleRate),
		FramesPerBuffer: framesPerBuffer,
	}

	s := &paStream{
		id:          uuid.NewString(),
		format:      format,
		deviceName:  device.Name,
		subscribers: make(map[int]func([]int16)),
	}

	stream, err := portaudio.OpenStream(params, s.dispatch)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start audio stream: %w", err)
	}
	s.stream = stream

	slog.Info("Using audio device",
		"deviceName", device.Name,
		"sampleRate", format.SampleRate,
		"inputChannels", device.MaxInputChannels)

	return s, nil
}

func (b *PortAudioBackend) inputDevice() (*portaudio.DeviceInfo, error) {
	if b.DeviceID <= 0 {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get audio devices: %w", err)
	}
	if b.DeviceID >= len(devices) {
		return nil, fmt.Errorf("%w: device %d does not exist", ErrNoDevice, b.DeviceID)
	}
	device := devices[b.DeviceID]
	if device.MaxInputChannels == 0 {
		return nil, fmt.Errorf("%w: device %d (%s) has no inputs", ErrNoDevice, b.DeviceID, device.Name)
	}
	return device, nil
}

type paStream struct {
	id         string
	format     audio.Format
	deviceName string
	stream     *portaudio.Stream

	mu          sync.Mutex
	nextSub     int
	subscribers map[int]func([]int16)
	stopOnce    sync.Once
}

func (s *paStream) ID() string           { return s.id }
func (s *paStream) Format() audio.Format { return s.format }

func (s *paStream) Tracks() []Track {
	return []Track{paTrack{s}}
}

func (s *paStream) Subscribe(fn func([]int16)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

// dispatch runs on the PortAudio callback thread; the buffer is reused by
// PortAudio so each subscriber gets its own copy.
func (s *paStream) dispatch(in []int16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, fn := range s.subscribers {
		chunk := make([]int16, len(in))
		copy(chunk, in)
		fn(chunk)
	}
}

func (s *paStream) stop() {
	s.stopOnce.Do(func() {
		if err := s.stream.Stop(); err != nil {
			slog.Error("Failed to stop audio stream", "error", err)
		}
		if err := s.stream.Close(); err != nil {
			slog.Error("Failed to close audio stream", "error", err)
		}
		portaudio.Terminate()
	})
}

type paTrack struct{ s *paStream }

func (t paTrack) Kind() TrackKind { return KindAudio }
func (t paTrack) Label() string   { return t.s.deviceName }
func (t paTrack) Stop()           { t.s.stop() }
