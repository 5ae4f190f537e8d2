package recording

import "strings"

const (
	TypeMP4       = "video/mp4"
	TypeWebMVP9   = "video/webm;codecs=vp9,opus"
	TypeWebMVP8   = "video/webm;codecs=vp8,opus"
	TypeWebM      = "video/webm"
	TypeAudioMP4  = "audio/mp4"
	TypeAudioOpus = "audio/webm;codecs=opus"
	TypeWAV       = "audio/wav"
)

// Preference is tried in order; the first supported type wins.
var Preference = []string{
	TypeMP4,
	TypeWebMVP9,
	TypeWebMVP8,
	TypeWebM,
	TypeAudioMP4,
	TypeAudioOpus,
	TypeWAV,
}

// Capabilities answers whether the platform can record a MIME type.
type Capabilities interface {
	IsTypeSupported(mimeType string) bool
}

// Negotiate returns the most preferred type the platform supports.
func Negotiate(c Capabilities) (string, error) {
	for _, mimeType := range Preference {
		if c.IsTypeSupported(mimeType) {
			return mimeType, nil
		}
	}
	return "", ErrNoSupportedType
}

// Extension maps a recording type onto a file extension.
func Extension(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	switch strings.TrimSpace(base) {
	case "video/mp4", "audio/mp4":
		return ".mp4"
	case "video/webm", "audio/webm":
		return ".webm"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	}
	return ".bin"
}

// MimeTypeFor is the inverse of Extension for files already on disk.
func MimeTypeFor(fileName string) string {
	switch {
	case strings.HasSuffix(fileName, ".mp4"):
		return TypeMP4
	case strings.HasSuffix(fileName, ".webm"):
		return TypeWebM
	case strings.HasSuffix(fileName, ".wav"):
		return TypeWAV
	}
	return "application/octet-stream"
}
