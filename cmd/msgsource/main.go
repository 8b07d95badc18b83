package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/luxfi/msgsource/pkg/config"
	"github.com/luxfi/msgsource/pkg/console"
	"github.com/luxfi/msgsource/pkg/logger"
	"github.com/luxfi/msgsource/pkg/msgsource"
	"github.com/luxfi/msgsource/pkg/transport"
)

const Version = "0.1.0"

func main() {
	app := &cli.Command{
		Name:    "msgsource",
		Usage:   "Request/reply text messaging over tcp, ipc, inproc, websocket or NATS",
		Version: Version,
		Commands: []*cli.Command{
			{
				Name:  "server",
				Usage: "Bind a reply socket and answer requests from the console",
				Flags: append(commonFlags(),
					&cli.BoolFlag{
						Name:  "echo",
						Usage: "Answer every request with its own text",
					},
				),
				Action: runServer,
			},
			{
				Name:  "client",
				Usage: "Connect a request socket and send console lines",
				Flags: append(commonFlags(),
					&cli.DurationFlag{
						Name:    "timeout",
						Aliases: []string{"t"},
						Usage:   "Abandon a request whose reply takes longer (0 waits forever)",
					},
				),
				Action: runClient,
			},
			{
				Name:  "schemes",
				Usage: "List supported address schemes",
				Action: func(ctx context.Context, c *cli.Command) error {
					fmt.Println(strings.Join(transport.Schemes(), "\n"))
					return nil
				},
			},
			{
				Name:  "version",
				Usage: "Display version information",
				Action: func(ctx context.Context, c *cli.Command) error {
					fmt.Printf("msgsource version %s\n", Version)
					return nil
				},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := app.Run(ctx, os.Args)
	stop()
	if err != nil {
		logger.Fatal("msgsource exited", err)
	}
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "address",
			Aliases: []string{"a"},
			Usage:   "Socket address, e.g. tcp://*:5555 or nats://localhost:4222/subject",
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to a msgsource.yaml config file",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level (trace, debug, info, warn, error)",
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "Enable debug logging",
		},
		&cli.BoolFlag{
			Name:  "no-color",
			Usage: "Disable colored output",
		},
		&cli.BoolFlag{
			Name:    "prompt-credentials",
			Aliases: []string{"p"},
			Usage:   "Prompt for the NATS password",
		},
	}
}

func runServer(ctx context.Context, c *cli.Command) error {
	cfg, err := setup(c)
	if err != nil {
		return err
	}

	address := cfg.Server.Address
	if c.IsSet("address") {
		address = c.String("address")
	}
	echo := cfg.Server.Echo || c.Bool("echo")

	sender, err := msgsource.NewSender(address, &msgsource.Options{Transport: cfg.TransportOptions()})
	if err != nil {
		return err
	}
	defer sender.Close()

	logger.Info("Starting message server", "address", address, "echo", echo)
	err = console.RunServer(ctx, sender, newConsole(c, "reply> "), console.ServerOptions{
		Address: address,
		Echo:    echo,
	})
	if err != nil {
		logger.Error("Server loop failed", err, "address", address)
	}
	return err
}

func runClient(ctx context.Context, c *cli.Command) error {
	cfg, err := setup(c)
	if err != nil {
		return err
	}

	address := cfg.Client.Address
	if c.IsSet("address") {
		address = c.String("address")
	}
	timeout := cfg.Client.ReceiveTimeout
	if c.IsSet("timeout") {
		timeout = c.Duration("timeout")
	}

	client, err := msgsource.NewClient(address, &msgsource.Options{Transport: cfg.TransportOptions()})
	if err != nil {
		return err
	}
	defer client.Close()

	logger.Info("Starting message client", "address", address, "timeout", timeout)
	err = console.RunClient(ctx, client, newConsole(c, "> "), console.ClientOptions{
		Address:        address,
		ReceiveTimeout: timeout,
	})
	if err != nil {
		logger.Error("Client loop failed", err, "address", address)
	}
	return err
}

// setup loads configuration and initializes logging. CLI flags take
// precedence over the config file and environment.
func setup(c *cli.Command) (*config.Config, error) {
	if err := config.InitViperConfig(c.String("config")); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger.Init(cfg.Environment, c.Bool("debug"))
	level := cfg.LogLevel
	if c.IsSet("log-level") {
		level = c.String("log-level")
	}
	if level != "" && !c.Bool("debug") {
		if err := logger.SetLevel(level); err != nil {
			return nil, err
		}
	}

	if c.Bool("no-color") {
		color.NoColor = true
	}

	if c.Bool("prompt-credentials") {
		password, err := promptForPassword("Enter NATS password: ")
		if err != nil {
			return nil, fmt.Errorf("failed to read NATS password: %w", err)
		}
		cfg.NATS.Password = password
	}
	return cfg, nil
}

// newConsole shows the prompt only when an operator is typing
func newConsole(c *cli.Command, prompt string) *console.Console {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		prompt = ""
	}
	return console.New(os.Stdin, os.Stdout, console.Options{
		Prompt:  prompt,
		NoColor: c.Bool("no-color"),
	})
}

func promptForPassword(prompt string) (string, error) {
	if !term.IsTerminal(syscall.Stdin) {
		return "", errors.New("stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	pass, err := term.ReadPassword(syscall.Stdin)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(pass)), nil
}
