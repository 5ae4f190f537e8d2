package snipecli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/bosley/snipe/audio"
	"github.com/bosley/snipe/config"
	"github.com/bosley/snipe/countdown"
	"github.com/bosley/snipe/interview"
	"github.com/bosley/snipe/media"
	"github.com/bosley/snipe/prompt"
	"github.com/bosley/snipe/recording"
	"github.com/bosley/snipe/session"
	"github.com/bosley/snipe/sink"
)

const fetchTimeout = 10 * time.Second

// Launch records the session described by sessionFile from the terminal.
func Launch(ctx context.Context, cfg *config.Config, sessionFile string) error {
	slog.Debug("Starting session host",
		"sessionFile", sessionFile,
		"sink", cfg.Sink,
		"deviceID", cfg.DeviceID)

	sessionConfig, err := interview.Load(sessionFile)
	if err != nil {
		return err
	}
	if err := sessionConfig.Launchable(); err != nil {
		return err
	}

	out, err := sink.FromConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to create sink: %w", err)
	}
	if closer, ok := out.(io.Closer); ok {
		defer closer.Close()
	}

	acquirer := media.NewAcquirer(&media.PortAudioBackend{DeviceID: cfg.DeviceID}, media.DetectPlatform())
	defer acquirer.Release()

	shared := prompt.NewSharedOutput(audio.DefaultFormat)
	defer shared.Close()
	player := prompt.NewPlayer(prompt.NewHTTPFetcher(fetchTimeout), shared, prompt.OneShotOutput{})
	preload(ctx, player, sessionConfig)

	engine := recording.NewEngine(recording.NewHost(ctx, ""))

	host := NewHost(acquirer, player, os.Stdin, os.Stdout)
	orchestrator := session.New(sessionConfig, acquirer, player, countdown.New(), engine, out,
		session.WithSettleDelay(cfg.SettleDelay),
		session.WithPromptGain(cfg.PromptGain),
		session.WithProgressHook(host.OnProgress))

	err = host.Run(ctx, orchestrator)
	slog.Debug("Session host exiting")
	return err
}

// preload warms the prompt cache. Prompts that fail here are retried, and
// then skipped, at play time.
func preload(ctx context.Context, player *prompt.Player, cfg *interview.SessionConfig) {
	if ref, ok := cfg.OpeningPrompt(); ok {
		if err := player.Preload(ctx, ref); err != nil {
			slog.Warn("Failed to preload opening prompt", "error", err)
		}
	}
	for i, q := range cfg.Questions {
		if q.PromptAudio.Empty() {
			continue
		}
		if err := player.Preload(ctx, *q.PromptAudio); err != nil {
			slog.Warn("Failed to preload question prompt", "questionIndex", i, "error", err)
		}
	}
}
