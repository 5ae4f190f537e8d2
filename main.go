package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	snipecli "github.com/bosley/snipe/client"
	"github.com/bosley/snipe/config"
	"github.com/bosley/snipe/interview"
	"github.com/bosley/snipe/review"
	snipeserv "github.com/bosley/snipe/server"
	"github.com/bosley/snipe/tts"
)

const shutdownTimeout = 5 * time.Second

func main() {
	verbose := flag.Bool("v", false, "Enable debug logging")
	sessionFile := flag.String("session", "", "Record the interview described by this YAML file")
	serve := flag.Bool("serve", false, "Run the upload server and review service")
	generate := flag.String("generate-prompts", "", "Synthesize missing prompt audio for this session file")
	playFile := flag.String("play", "", "Play audio file")
	listDevices := flag.Bool("list-devices", false, "List available audio input devices")
	deviceID := flag.Int("device", -1, "Audio input device ID to use (overrides SNIPE_DEVICE)")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg := config.Load()
	if *deviceID >= 0 {
		cfg.DeviceID = *deviceID
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Debug("Received shutdown signal")
		cancel()
	}()

	switch {
	case *playFile != "":
		if err := snipecli.PlayAudioFile(ctx, *playFile, 1); err != nil {
			slog.Error("Failed to play audio file", "error", err)
			os.Exit(1)
		}

	case *listDevices:
		devices, err := snipecli.ListAudioDevices()
		if err != nil {
			slog.Error("Failed to list audio devices", "error", err)
			os.Exit(1)
		}

		fmt.Println("Available audio input devices:")
		for _, device := range devices {
			fmt.Printf("[%d] %s\n", device.ID, device.Info.Name)
			fmt.Printf("    Max Input Channels: %d\n", device.Info.MaxInputChannels)
			fmt.Printf("    Default Sample Rate: %f\n", device.Info.DefaultSampleRate)
			fmt.Println()
		}

	case *generate != "":
		if err := generatePrompts(ctx, cfg, *generate); err != nil {
			slog.Error("Failed to generate prompts", "error", err)
			os.Exit(1)
		}

	case *serve:
		if err := runServer(ctx, cfg); err != nil {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}

	case *sessionFile != "":
		if err := cfg.Validate(); err != nil {
			slog.Error("Invalid configuration", "error", err)
			os.Exit(1)
		}
		if err := snipecli.Launch(ctx, cfg, *sessionFile); err != nil {
			slog.Error("Session failed", "error", err)
			os.Exit(1)
		}

	default:
		flag.Usage()
		os.Exit(1)
	}

	slog.Debug("Program exiting")
}

func generatePrompts(ctx context.Context, cfg *config.Config, sessionFile string) error {
	if cfg.ElevenLabsAPIKey == "" {
		return fmt.Errorf("ELEVENLABS_API_KEY environment variable is not set")
	}

	sessionConfig, err := interview.Load(sessionFile)
	if err != nil {
		return err
	}

	generator := tts.NewGenerator(tts.NewClient(cfg.ElevenLabsAPIKey, cfg.ElevenLabsModel), cfg.PromptCacheDir)
	created, err := generator.GeneratePrompts(ctx, sessionConfig)
	if err != nil {
		return err
	}

	if err := interview.Save(sessionFile, sessionConfig); err != nil {
		return err
	}
	slog.Info("Prompt audio ready", "sessionFile", sessionFile, "created", created)
	return nil
}

func runServer(ctx context.Context, cfg *config.Config) error {
	if cfg.Token == "" {
		return fmt.Errorf("SNIPE_TOKEN environment variable is not set")
	}
	if cfg.CertFile == "" || cfg.KeyFile == "" {
		return fmt.Errorf("SNIPE_CERT and SNIPE_KEY must be set when running in server mode")
	}

	clients := snipeserv.NewClientList()

	reviewService, err := review.New(review.Config{
		CertFile:      cfg.CertFile,
		KeyFile:       cfg.KeyFile,
		RecordingsDir: cfg.RecordingsDir,
		HTTPAddr:      cfg.HTTPAddr,
		WhisperPath:   cfg.WhisperPath,
		WhisperModel:  cfg.WhisperModel,
		Workers:       cfg.Workers,
	}, clients)
	if err != nil {
		return fmt.Errorf("failed to initialize review service: %w", err)
	}

	// Start the review service in its own goroutine
	go func() {
		if err := reviewService.Start(ctx); err != nil {
			slog.Error("Review service failed", "error", err)
		}
	}()

	defer func() {
		stopCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stop()
		if err := reviewService.Stop(stopCtx); err != nil {
			slog.Error("Failed to stop review service", "error", err)
		}
	}()

	server := snipeserv.New(cfg.Token, cfg.RecordingsDir, clients)
	return server.Launch(ctx, cfg.UploadAddr, cfg.CertFile, cfg.KeyFile)
}
