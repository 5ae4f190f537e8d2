package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	for _, key := range []string{"SNIPE_SINK", "SNIPE_PROMPT_GAIN", "SNIPE_SETTLE_DELAY", "SNIPE_WORKERS"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "local", cfg.Sink)
	assert.Equal(t, 2.5, cfg.PromptGain)
	assert.Equal(t, 500*time.Millisecond, cfg.SettleDelay)
	assert.Equal(t, 4, cfg.Workers)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SNIPE_SINK", "S3")
	t.Setenv("SNIPE_S3_BUCKET", "answers")
	t.Setenv("SNIPE_PROMPT_GAIN", "3")
	t.Setenv("SNIPE_SETTLE_DELAY", "750ms")
	t.Setenv("SNIPE_INSECURE", "true")
	t.Setenv("SNIPE_WORKERS", "not-a-number")
	t.Setenv("SNIPE_SERVER_CERT", "server.pem")

	cfg := Load()
	assert.Equal(t, "s3", cfg.Sink)
	assert.Equal(t, "answers", cfg.S3Bucket)
	assert.Equal(t, 3.0, cfg.PromptGain)
	assert.Equal(t, 750*time.Millisecond, cfg.SettleDelay)
	assert.True(t, cfg.InsecureTLS)
	assert.Equal(t, "server.pem", cfg.ServerCert)
	assert.Equal(t, 4, cfg.Workers, "bad values fall back to the default")
	assert.NoError(t, cfg.Validate())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("SNIPE_TOKEN", "")
	os.Unsetenv("SNIPE_TOKEN")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SNIPE_TOKEN=from-dotenv\n"), 0644))

	cfg := Load()
	assert.Equal(t, "from-dotenv", cfg.Token)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"local", Config{Sink: "local", PromptGain: 1}, false},
		{"remote without token", Config{Sink: "remote", PromptGain: 1}, true},
		{"remote", Config{Sink: "remote", Token: "t", PromptGain: 1}, false},
		{"s3 without bucket", Config{Sink: "s3", PromptGain: 1}, true},
		{"unknown sink", Config{Sink: "ftp", PromptGain: 1}, true},
		{"zero gain", Config{Sink: "local"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
