package recording

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ProbeEncoders lists the encoders the ffmpeg binary was built with.
func ProbeEncoders(ctx context.Context, ffmpeg string) (map[string]bool, error) {
	out, err := exec.CommandContext(ctx, ffmpeg, "-hide_banner", "-encoders").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list ffmpeg encoders: %w", err)
	}
	return parseEncoders(out), nil
}

// parseEncoders reads `ffmpeg -encoders` output. Entries follow the dashed
// separator as "<flags> <name> <description>".
func parseEncoders(out []byte) map[string]bool {
	encoders := make(map[string]bool)
	inList := false

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !inList {
			inList = strings.HasPrefix(line, "------")
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		encoders[fields[1]] = true
	}
	return encoders
}

var transcodeArgs = map[string][]string{
	TypeAudioMP4:  {"-vn", "-c:a", "aac", "-b:a", "128k", "-f", "mp4"},
	TypeAudioOpus: {"-vn", "-c:a", "libopus", "-b:a", "96k", "-f", "webm"},
}

// Transcode converts a WAV file into mimeType and returns the encoded bytes.
func Transcode(ffmpeg, inputPath, mimeType string) ([]byte, error) {
	args, ok := transcodeArgs[mimeType]
	if !ok {
		return nil, fmt.Errorf("%w: cannot transcode to %s", ErrNoSupportedType, mimeType)
	}

	outputPath := strings.TrimSuffix(inputPath, ".wav") + Extension(mimeType)
	defer os.Remove(outputPath)

	cmdArgs := append([]string{"-hide_banner", "-loglevel", "error", "-i", inputPath}, args...)
	cmdArgs = append(cmdArgs, "-y", outputPath)

	var stderr bytes.Buffer
	cmd := exec.Command(ffmpeg, cmdArgs...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("failed to transcode segment to %s: %w: %s", mimeType, err, strings.TrimSpace(stderr.String()))
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcoded segment: %w", err)
	}
	return data, nil
}
