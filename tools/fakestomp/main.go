// Package main implements fakestomp, a local STOMP 1.2 broker for exercising
// the game-event client end to end. Settings come from .env and FAKESTOMP_*
// variables; flags override them.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Thejuampi/stomp-client-go/internal/config"
	"github.com/Thejuampi/stomp-client-go/internal/fakebroker"
)

type options struct {
	envFile  string
	broker   config.Broker
	logLevel slog.Level
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	flags := flag.NewFlagSet("fakestomp", flag.ContinueOnError)
	flags.SetOutput(stderr)

	envFile := flags.String("env", "", "path of the .env file (default .env)")
	addr := flags.String("addr", "", "TCP listen address (overrides "+config.EnvBrokerAddr+")")
	wsAddr := flags.String("ws", "", "WebSocket listen address, served at "+fakebroker.WebSocketPath)
	adminAddr := flags.String("admin", "", "admin API and /metrics listen address")
	users := flags.String("users", "", "preloaded accounts as 'user:pass,user2:pass2'")
	level := flags.String("log-level", "", "debug, info, warn or error")
	if err := flags.Parse(args); err != nil {
		return options{}, err
	}

	settings, err := config.Load(*envFile)
	if err != nil {
		return options{}, err
	}
	parsed := options{envFile: *envFile, broker: settings.Broker, logLevel: settings.LogLevel}

	if *addr != "" {
		parsed.broker.Addr = *addr
	}
	if *wsAddr != "" {
		parsed.broker.WSAddr = *wsAddr
	}
	if *adminAddr != "" {
		parsed.broker.AdminAddr = *adminAddr
	}
	if *users != "" {
		accounts, err := config.ParseUsers(*users)
		if err != nil {
			return options{}, err
		}
		parsed.broker.Users = accounts
	}
	if *level != "" {
		if parsed.logLevel, err = config.ParseLevel(*level); err != nil {
			return options{}, err
		}
	}
	return parsed, nil
}

func run(ctx context.Context, args []string, stderr io.Writer) error {
	parsed, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: parsed.logLevel}))
	broker := fakebroker.New(
		fakebroker.WithLogger(logger),
		fakebroker.WithUsers(parsed.broker.Users),
	)
	logger.Info("fakestomp starting", "users", len(parsed.broker.Users))
	return broker.ListenAndServe(ctx, parsed.broker)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stderr); err != nil && err != flag.ErrHelp {
		fmt.Fprintf(os.Stderr, "fakestomp: %v\n", err)
		os.Exit(1)
	}
}
