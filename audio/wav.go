package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

const (
	CaptureSampleRate = 44100 // Rate microphone audio is captured at
	whisperSampleRate = 16000 // Rate required by Whisper
	headerSize        = 44
)

// Format describes interleaved little-endian PCM.
type Format struct {
	SampleRate    uint32
	Channels      uint16
	BitsPerSample uint16
}

// DefaultFormat is mono int16 at the capture rate.
var DefaultFormat = Format{
	SampleRate:    CaptureSampleRate,
	Channels:      1,
	BitsPerSample: 16,
}

func (f Format) BytesPerSecond() int {
	return int(f.SampleRate) * int(f.Channels) * int(f.BitsPerSample) / 8
}

func (f Format) blockAlign() uint16 {
	return f.Channels * f.BitsPerSample / 8
}

type WavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

func WriteWavHeader(w io.Writer, f Format, dataSize uint32) error {
	header := WavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     dataSize + 36,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   f.Channels,
		SampleRate:    f.SampleRate,
		ByteRate:      uint32(f.BytesPerSecond()),
		BlockAlign:    f.blockAlign(),
		BitsPerSample: f.BitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	return binary.Write(w, binary.LittleEndian, header)
}

// UpdateWavHeader patches the size fields of a header written with a
// placeholder size once the final data length is known.
func UpdateWavHeader(file io.WriteSeeker, dataSize uint32) error {
	// ChunkSize (file size - 8)
	if _, err := file.Seek(4, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to ChunkSize: %w", err)
	}
	if err := binary.Write(file, binary.LittleEndian, uint32(dataSize+36)); err != nil {
		return fmt.Errorf("failed to write ChunkSize: %w", err)
	}

	if _, err := file.Seek(40, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to Subchunk2Size: %w", err)
	}
	if err := binary.Write(file, binary.LittleEndian, dataSize); err != nil {
		return fmt.Errorf("failed to write Subchunk2Size: %w", err)
	}

	_, err := file.Seek(0, io.SeekEnd)
	return err
}

// EncodeWAV wraps raw PCM in a complete WAV container.
func EncodeWAV(pcm []byte, f Format) []byte {
	var buf bytes.Buffer
	buf.Grow(headerSize + len(pcm))
	// bytes.Buffer writes never fail
	_ = WriteWavHeader(&buf, f, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

// SamplesToBytes converts int16 samples into little-endian PCM bytes.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// ResampleForWhisper writes a 16kHz mono copy of the WAV file next to it and
// returns its path. The input is left in place.
func ResampleForWhisper(inputPath string) (string, error) {
	base := strings.TrimSuffix(inputPath, ".wav")
	outputPath := base + "_whisper.wav"

	cmd := exec.Command("ffmpeg",
		"-i", inputPath,
		"-ar", fmt.Sprintf("%d", whisperSampleRate),
		"-ac", "1",
		"-y", // Overwrite output file
		outputPath)

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to resample audio: %w", err)
	}

	return outputPath, nil
}
