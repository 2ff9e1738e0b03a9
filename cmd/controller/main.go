package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/KimuSoft/twitch-point-timer/internal/controller"
	"github.com/KimuSoft/twitch-point-timer/internal/countdown"
	"github.com/KimuSoft/twitch-point-timer/internal/platform/config"
	"github.com/KimuSoft/twitch-point-timer/internal/platform/logging"
	"github.com/KimuSoft/twitch-point-timer/internal/viewer"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/jonboulle/clockwork"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadController()
	if err != nil {
		return err
	}

	// The TUI owns stdout.
	logger := logging.Discard()
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
		logger = logging.New(f, "debug", "text")
	}
	slog.SetDefault(logger)

	client, err := viewer.NewClient(cfg.ServerURL, cfg.ChannelKey, viewer.WithLogger(logger))
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop := countdown.NewLoop(clockwork.NewRealClock(), countdown.WithProjection(countdown.ProjectAll))
	go loop.Run(ctx)

	model := controller.NewModel(client, viewer.NewAPI(cfg.ServerURL), loop, cfg.ChannelKey)
	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("controller exited: %w", err)
	}
	return nil
}
