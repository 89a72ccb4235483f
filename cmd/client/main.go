package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mama165/sdk-go/logs"

	"github.com/Tyrowin/chatrelay/internal/client"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := client.LoadConfig()
	if err != nil {
		return err
	}

	url := flag.String("url", cfg.URL, "relay WebSocket URL")
	name := flag.String("name", cfg.Name, "display name (prompted when empty)")
	history := flag.Bool("history", false, "print the relay history as a table and exit")
	noColour := flag.Bool("no-colour", !cfg.Colours, "disable ANSI colours")
	flag.Parse()

	cfg.URL, cfg.Name, cfg.Colours = *url, *name, !*noColour
	log := logs.GetLoggerFromString(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *history {
		historyURL, err := client.HistoryURL(cfg.URL)
		if err != nil {
			return err
		}
		envelopes, err := client.FetchHistory(ctx, &http.Client{Timeout: 10 * time.Second}, historyURL)
		if err != nil {
			return err
		}
		client.Renderer{Colours: cfg.Colours}.Table(os.Stdout, envelopes)
		return nil
	}

	session := client.NewSession(cfg, log)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sessionDone := make(chan error, 1)
	go func() { sessionDone <- session.Run(ctx) }()

	model := client.NewModel(session, client.Renderer{Colours: cfg.Colours}, cfg.Name)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = program.Run()

	cancel()
	if sessionErr := <-sessionDone; sessionErr != nil {
		log.Warn("Session ended with error", "error", sessionErr)
	}
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}
