package snipecli

import (
	"context"
	"fmt"
	"os"

	"github.com/gordonklaus/portaudio"

	"github.com/bosley/snipe/prompt"
)

// Device is an input device and the ID that selects it with -device.
type Device struct {
	ID   int
	Info portaudio.DeviceInfo
}

func ListAudioDevices() ([]Device, error) {
	err := portaudio.Initialize()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	// Filter to only input devices
	inputDevices := make([]Device, 0)
	for i, device := range devices {
		if device.MaxInputChannels > 0 {
			inputDevices = append(inputDevices, Device{ID: i, Info: *device})
		}
	}

	return inputDevices, nil
}

// PlayAudioFile plays a WAV file (a recorded answer or a generated prompt)
// to the end.
func PlayAudioFile(ctx context.Context, filename string, gain float64) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to open audio file: %w", err)
	}
	return prompt.OneShotOutput{}.PlayOnce(ctx, data, gain)
}
