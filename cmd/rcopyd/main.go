package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"avaneesh/rcopy-go/pkg/config"
	"avaneesh/rcopy-go/pkg/frame"
	"avaneesh/rcopy-go/pkg/rcopy"
)

type flags struct {
	configPath string
	listen     string
	transport  string
	maxFrame   int
	root       string
	journal    string
	maxRetries int
	logLevel   string
	noColor    bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "rcopyd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "rcopyd [plain|parity|hamming]",
		Short: "Serve one file transfer session over a bit-error-prone link",
		Long: "rcopyd answers ls, cd, cp, sn and exit commands from one peer. Without a mode\n" +
			"argument frames are sent unprotected; parity detects single-bit errors and asks\n" +
			"for retransmission; hamming corrects single-bit errors in place.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(cmd, f, args)
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.configPath, "config", "", "TOML or YAML configuration file")
	fs.StringVar(&f.listen, "listen", config.DefaultAddress, "address to bind")
	fs.StringVar(&f.transport, "transport", config.DefaultTransport, "transport: udp, tcp or quic")
	fs.IntVar(&f.maxFrame, "max-frame", frame.DefaultMaxSize, "largest frame on the wire in bytes")
	fs.StringVar(&f.root, "root", "", "start directory; paths outside it are refused")
	fs.StringVar(&f.journal, "journal", "", "SQLite file recording every command")
	fs.IntVar(&f.maxRetries, "max-retries", 0, "bound for the retransmission loops (0 = unbounded)")
	fs.StringVar(&f.logLevel, "log-level", config.DefaultLogLevel, "debug, info, warn or error")
	fs.BoolVar(&f.noColor, "no-color", false, "disable colored log output")
	return cmd
}

// buildConfig layers defaults, the config file, flags and the mode argument
func buildConfig(cmd *cobra.Command, f flags, args []string) (config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	changed := cmd.Flags().Changed
	if changed("listen") {
		cfg.Listen = f.listen
	}
	if changed("transport") {
		cfg.Transport = f.transport
	}
	if changed("max-frame") {
		cfg.MaxFrame = f.maxFrame
	}
	if changed("root") {
		cfg.Root = f.root
	}
	if changed("journal") {
		cfg.Journal = f.journal
	}
	if changed("max-retries") {
		cfg.MaxRetries = f.maxRetries
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if changed("no-color") {
		cfg.Log.NoColor = f.noColor
	}
	if len(args) == 1 {
		cfg.Mode = args[0]
	}

	return cfg, cfg.Validate()
}

func serve(cfg config.Config) error {
	rcopy.ConfigureLogging(cfg.Log.Level, cfg.Log.NoColor)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := rcopy.NewServer(cfg)
	if err != nil {
		return err
	}
	defer srv.Close()

	return srv.Serve(ctx)
}
