package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mama165/sdk-go/logs"

	"github.com/Tyrowin/chatrelay/internal/hub"
	"github.com/Tyrowin/chatrelay/internal/server"
)

const (
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	if code, err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(code)
	}
}

// run wires the relay together and blocks until SIGINT or SIGTERM.
func run() (int, error) {
	cfg, err := server.LoadConfig()
	if err != nil {
		return exitConfig, err
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)

	h := hub.New(cfg.HubCapacity)
	history := server.NewMemoryHistory(cfg.HistoryLimit)
	relay := server.New(cfg, h, history, log)

	listener, err := server.Listen(cfg.Addr())
	if err != nil {
		return exitRuntime, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, cfg, relay, listener, log); err != nil {
		return exitRuntime, err
	}
	log.Info("Relay stopped", "messages_recorded", history.Appended())
	return 0, nil
}
