package stomp

import (
	"context"
	"strings"
)

type commandSpec struct {
	args  int
	usage string
	run   func(ctx context.Context, args []string) error
}

func (client *Client) commandTable() map[string]commandSpec {
	return map[string]commandSpec{
		"login": {
			args:  3,
			usage: "login {host:port} {username} {password}",
			run: func(ctx context.Context, args []string) error {
				return client.Login(ctx, args[0], args[1], args[2])
			},
		},
		"join": {
			args:  1,
			usage: "join {game_name}",
			run: func(_ context.Context, args []string) error {
				return client.Join(args[0])
			},
		},
		"exit": {
			args:  1,
			usage: "exit {game_name}",
			run: func(_ context.Context, args []string) error {
				return client.Exit(args[0])
			},
		},
		"report": {
			args:  1,
			usage: "report {file}",
			run: func(_ context.Context, args []string) error {
				return client.Report(args[0])
			},
		},
		"summary": {
			args:  3,
			usage: "summary {game_name} {user} {file}",
			run: func(_ context.Context, args []string) error {
				return client.Summary(args[0], args[1], args[2])
			},
		},
		"logout": {
			args:  0,
			usage: "logout",
			run: func(ctx context.Context, _ []string) error {
				return client.Logout(ctx)
			},
		},
	}
}

// ProcessInput runs one command line. Status lines go to the output sink;
// the returned error repeats them for programmatic callers.
func (client *Client) ProcessInput(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	spec, known := client.commands[fields[0]]
	if !known {
		client.print("Unknown command: %s", fields[0])
		return NewError(UnknownCommandError, fields[0])
	}
	if len(fields)-1 != spec.args {
		client.print("Usage: %s", spec.usage)
		return NewError(InvalidArgumentError, "usage: "+spec.usage)
	}
	return spec.run(ctx, fields[1:])
}
