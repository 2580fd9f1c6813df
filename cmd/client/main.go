package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voicechat/internal/config"
	"github.com/lexiqai/voicechat/internal/device"
	"github.com/lexiqai/voicechat/internal/monitor"
	"github.com/lexiqai/voicechat/internal/observability"
	"github.com/lexiqai/voicechat/internal/orchestrator"
	"github.com/lexiqai/voicechat/internal/pipeline"
	"github.com/lexiqai/voicechat/internal/statefeed"
)

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger().With().
		Str("session_id", observability.NewCorrelationID()).
		Logger()

	logger.Info().
		Str("pipeline_url", cfg.PipelineURL).
		Int("sample_rate", cfg.SampleRate).
		Bool("tts_enabled", cfg.TTSEnabled).
		Str("input_wav", cfg.InputWAV).
		Msg("Voice client starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var src monitor.Source
	if cfg.InputWAV != "" {
		src = device.NewFileSource(device.FileConfig{
			Path:            cfg.InputWAV,
			SampleRate:      cfg.SampleRate,
			FrameSize:       cfg.FrameSize,
			Realtime:        true,
			TrailingSilence: time.Second,
		}, logger)
	} else {
		src = device.NewMicrophone(cfg.SampleRate, cfg.FrameSize, logger)
	}

	mon := monitor.New(src, monitor.Config{
		SampleRate:      cfg.SampleRate,
		FrameSize:       cfg.FrameSize,
		EnergyThreshold: cfg.VADEnergyThreshold,
		SilenceFrames:   cfg.VADSilenceFrames,
		PrefixFrames:    cfg.VADPrefixFrames,
	}, logger)
	defer mon.Close()

	orch := orchestrator.New(
		mon,
		pipeline.NewClient(cfg.PipelineURL, cfg.RequestTimeout, logger),
		device.NewSpeaker(logger),
		orchestrator.Options{
			SampleRate:           cfg.SampleRate,
			TTSEnabled:           cfg.TTSEnabled,
			SkipAudio:            cfg.SkipAudio,
			RequestTimeout:       cfg.RequestTimeout,
			FailsafeTimeout:      cfg.FailsafeTimeout,
			MutedDisplayDuration: cfg.MutedDisplayDuration,
		},
		logger,
	)

	// A failed init is remembered by the monitor and surfaces on the first
	// toggle, so the client keeps running for the state feed.
	if err := mon.Init(ctx, orch); err != nil {
		logger.Error().Err(err).Msg("Voice monitor unavailable")
	}

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := orch.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("Conversation loop failed")
		}
	}()

	var feedServer *http.Server
	if cfg.StateFeedAddr != "" {
		feedServer = &http.Server{
			Addr:    cfg.StateFeedAddr,
			Handler: statefeed.NewServer(statefeed.New(orch, logger), logger),
		}
		go func() {
			logger.Info().Str("addr", cfg.StateFeedAddr).Msg("State feed listening")
			if err := feedServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("State feed failed")
			}
		}()
	}

	go printConversation(ctx, orch, logger)

	if cfg.InputWAV != "" {
		orch.ToggleListening()
	}
	fmt.Fprintln(os.Stderr, "Commands: l = toggle listening, m = toggle mute, c = clear, q = quit")
	go readCommands(os.Stdin, orch, stop)

	<-ctx.Done()
	logger.Info().Msg("Shutting down voice client...")

	if feedServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := feedServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("State feed forced to shutdown")
		}
	}
	<-runDone
	logger.Info().Msg("Voice client exited")
}

// readCommands maps single letter lines on r to conversation controls.
func readCommands(r io.Reader, orch *orchestrator.Orchestrator, quit func()) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "l":
			orch.ToggleListening()
		case "m":
			orch.ToggleMute()
		case "c":
			orch.ClearConversation()
		case "q":
			quit()
			return
		}
	}
}

// printConversation logs state changes and each completed exchange.
func printConversation(ctx context.Context, orch *orchestrator.Orchestrator, logger zerolog.Logger) {
	updates, unsubscribe := orch.Subscribe()
	defer unsubscribe()

	var (
		last    orchestrator.State = -1
		shown   int
		lastErr string
	)
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-updates:
			if snap.State != last {
				logger.Info().Stringer("state", snap.State).Bool("muted", snap.Muted).Msg("Conversation state")
				last = snap.State
			}
			if len(snap.History) < shown {
				shown = 0
			}
			for _, msg := range snap.History[shown:] {
				logger.Info().Str("role", string(msg.Role)).Str("content", msg.Content).Msg("Message")
			}
			shown = len(snap.History)
			if snap.Error != "" && snap.Error != lastErr {
				logger.Warn().Str("error", snap.Error).Msg("Conversation error")
			}
			lastErr = snap.Error
		}
	}
}
