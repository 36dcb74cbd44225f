// Package main implements stompclient, the interactive game-event client.
// Commands are read line by line from stdin:
//
//	login {host:port} {username} {password}
//	join {game_name}
//	exit {game_name}
//	report {file}
//	summary {game_name} {user} {file}
//	logout
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Thejuampi/stomp-client-go/internal/config"
	"github.com/Thejuampi/stomp-client-go/stomp"
)

var (
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F")).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FD787"))
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0A0A0")).Italic(true)
)

type flagValues struct {
	envFile      string
	host         string
	transport    string
	loginTimeout time.Duration
	logLevel     string
	metricsAddr  string
	summaryDir   string
}

func newRootCommand(stdin io.Reader, stdout io.Writer, stderr io.Writer) *cobra.Command {
	values := &flagValues{}
	command := &cobra.Command{
		Use:   "stompclient",
		Short: "Interactive client for game-event channels on a STOMP 1.2 broker",
		Long: `stompclient reads commands from stdin, one per line:

  login {host:port} {username} {password}
  join {game_name}
  exit {game_name}
  report {file}
  summary {game_name} {user} {file}
  logout

Settings are read from .env and STOMP_* variables; flags override them.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, values)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, stdin, stdout, stderr)
		},
	}

	bindFlags(command, values)
	return command
}

func bindFlags(command *cobra.Command, values *flagValues) {
	flags := command.Flags()
	flags.StringVar(&values.envFile, "env", "", "path of the .env file (default .env)")
	flags.StringVar(&values.host, "host", "", "default broker address for 'login -'")
	flags.StringVar(&values.transport, "transport", "", "tcp or ws")
	flags.DurationVar(&values.loginTimeout, "login-timeout", 0, "bound on waiting for CONNECTED and logout receipts (0 waits forever)")
	flags.StringVar(&values.logLevel, "log-level", "", "debug, info, warn or error")
	flags.StringVar(&values.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	flags.StringVar(&values.summaryDir, "summary-dir", "", "directory for relative summary paths")
}

// resolveConfig loads .env and the environment, then applies the flags the user set.
func resolveConfig(cmd *cobra.Command, values *flagValues) (config.Config, error) {
	cfg, err := config.Load(values.envFile)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = values.host
	}
	if flags.Changed("transport") {
		switch strings.ToLower(values.transport) {
		case config.TransportTCP:
			cfg.Transport = config.TransportTCP
		case config.TransportWebSocket, "websocket":
			cfg.Transport = config.TransportWebSocket
		default:
			return config.Config{}, fmt.Errorf("unknown transport %q", values.transport)
		}
	}
	if flags.Changed("login-timeout") {
		cfg.LoginTimeout = values.loginTimeout
	}
	if flags.Changed("log-level") {
		if cfg.LogLevel, err = config.ParseLevel(values.logLevel); err != nil {
			return config.Config{}, err
		}
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = values.metricsAddr
	}
	if flags.Changed("summary-dir") {
		cfg.SummaryDir = values.summaryDir
	}
	return cfg, nil
}

// printer serializes styled status lines from the input loop and the receive goroutine.
type printer struct {
	lock   sync.Mutex
	writer io.Writer
}

func (printer *printer) print(line string) {
	printer.lock.Lock()
	defer printer.lock.Unlock()
	fmt.Fprintln(printer.writer, styleLine(line))
}

func styleLine(line string) string {
	switch {
	case strings.HasPrefix(line, "Error"),
		strings.HasPrefix(line, "Could not"),
		strings.HasPrefix(line, "Unknown command"),
		strings.HasPrefix(line, "Usage"),
		strings.HasPrefix(line, "Invalid"),
		strings.Contains(line, "timed out"),
		strings.HasPrefix(line, "must login"),
		strings.HasPrefix(line, "Disconnected"):
		return errorStyle.Render(line)
	case strings.HasPrefix(line, "Login successful"),
		strings.HasPrefix(line, "Joined channel"),
		strings.HasPrefix(line, "Exited channel"),
		strings.HasPrefix(line, "Logged out"),
		strings.HasPrefix(line, "Reported"),
		strings.HasPrefix(line, "Summary of"):
		return successStyle.Render(line)
	default:
		return noticeStyle.Render(line)
	}
}

// expandLogin fills in the configured host for "login - user pass" and maps
// the address to the configured transport.
func expandLogin(line string, cfg config.Config) string {
	fields := strings.Fields(line)
	if len(fields) != 4 || fields[0] != "login" {
		return line
	}
	if fields[1] == "-" {
		fields[1] = cfg.Host
	}
	fields[1] = cfg.WithScheme(fields[1])
	return strings.Join(fields, " ")
}

func run(ctx context.Context, cfg config.Config, stdin io.Reader, stdout io.Writer, stderr io.Writer) error {
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	out := &printer{writer: stdout}
	client := stomp.NewClient(
		stomp.WithOutput(out.print),
		stomp.WithLogger(logger),
		stomp.WithMetrics(stomp.NewMetrics(registry, "stompclient")),
		stomp.WithLoginTimeout(cfg.LoginTimeout),
		stomp.WithSummaryDir(cfg.SummaryDir),
	)
	defer client.Close()

	group, groupCtx := errgroup.WithContext(ctx)
	inputDone := make(chan struct{})

	if cfg.MetricsAddr != "" {
		server := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		group.Go(func() error {
			logger.Info("metrics listening", "addr", cfg.MetricsAddr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		group.Go(func() error {
			select {
			case <-groupCtx.Done():
			case <-inputDone:
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	group.Go(func() error {
		defer close(inputDone)
		return readCommands(groupCtx, client, cfg, stdin, logger)
	})
	err := group.Wait()
	logger.Info("session ended", "games", client.Store().Games())
	return err
}

// readCommands runs each stdin line through the client until EOF or ctx ends.
// Command failures are already reported on the output and do not stop the loop.
func readCommands(ctx context.Context, client *stomp.Client, cfg config.Config, stdin io.Reader, logger *slog.Logger) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, open := <-lines:
			if !open {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if err := client.ProcessInput(ctx, expandLogin(line, cfg)); err != nil {
				logger.Debug("command failed", "line", line, "err", err)
			}
		}
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := newRootCommand(os.Stdin, os.Stdout, os.Stderr)
	if err := command.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "stompclient: %v\n", err)
		os.Exit(1)
	}
}
