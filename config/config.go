// Package config loads runtime settings from the environment and an optional
// .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Upload server
	Token       string
	UploadAddr  string
	CertFile    string
	KeyFile     string
	ServerCert  string
	InsecureTLS bool

	// Artifact sink: local, remote or s3
	Sink          string
	RecordingsDir string
	S3Bucket      string
	S3Region      string

	// Prompts
	ElevenLabsAPIKey string
	ElevenLabsModel  string
	PromptCacheDir   string
	PromptGain       float64

	// Session
	SettleDelay time.Duration
	DeviceID    int

	// Review service
	HTTPAddr     string
	Workers      int
	WhisperPath  string
	WhisperModel string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	return &Config{
		Token:            getEnvOrDefault("SNIPE_TOKEN", ""),
		UploadAddr:       getEnvOrDefault("SNIPE_UPLOAD_ADDR", "localhost:8443"),
		CertFile:         getEnvOrDefault("SNIPE_CERT", ""),
		KeyFile:          getEnvOrDefault("SNIPE_KEY", ""),
		ServerCert:       getEnvOrDefault("SNIPE_SERVER_CERT", ""),
		InsecureTLS:      getEnvAsBoolOrDefault("SNIPE_INSECURE", false),
		Sink:             strings.ToLower(getEnvOrDefault("SNIPE_SINK", "local")),
		RecordingsDir:    getEnvOrDefault("SNIPE_RECORDINGS_DIR", "recordings"),
		S3Bucket:         getEnvOrDefault("SNIPE_S3_BUCKET", ""),
		S3Region:         getEnvOrDefault("SNIPE_S3_REGION", "us-east-1"),
		ElevenLabsAPIKey: getEnvOrDefault("ELEVENLABS_API_KEY", ""),
		ElevenLabsModel:  getEnvOrDefault("ELEVENLABS_MODEL", "eleven_multilingual_v2"),
		PromptCacheDir:   getEnvOrDefault("SNIPE_PROMPT_CACHE", "prompts"),
		PromptGain:       getEnvAsFloatOrDefault("SNIPE_PROMPT_GAIN", 2.5),
		SettleDelay:      getEnvAsDurationOrDefault("SNIPE_SETTLE_DELAY", 500*time.Millisecond),
		DeviceID:         getEnvAsIntOrDefault("SNIPE_DEVICE", 0),
		HTTPAddr:         getEnvOrDefault("SNIPE_HTTP_ADDR", "localhost:8080"),
		Workers:          getEnvAsIntOrDefault("SNIPE_WORKERS", 4),
		WhisperPath:      getEnvOrDefault("SNIPE_WHISPER", ""),
		WhisperModel:     getEnvOrDefault("SNIPE_WHISPER_MODEL", ""),
	}
}

// Validate checks the settings the selected sink needs.
func (c *Config) Validate() error {
	switch c.Sink {
	case "local":
	case "remote":
		if c.Token == "" {
			return fmt.Errorf("SNIPE_TOKEN is required for the remote sink")
		}
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("SNIPE_S3_BUCKET is required for the s3 sink")
		}
	default:
		return fmt.Errorf("unknown sink %q", c.Sink)
	}
	if c.PromptGain <= 0 {
		return fmt.Errorf("SNIPE_PROMPT_GAIN must be positive, got %v", c.PromptGain)
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsFloatOrDefault(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
