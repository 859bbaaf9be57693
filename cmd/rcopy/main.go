package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"avaneesh/rcopy-go/pkg/config"
	"avaneesh/rcopy-go/pkg/frame"
	"avaneesh/rcopy-go/pkg/rcopy"
)

type flags struct {
	configPath string
	remote     string
	transport  string
	mode       string
	maxFrame   int
	maxRetries int
	logLevel   string
	dir        string
}

func main() {
	if err := newRootCommand(os.Stdin, os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "rcopy: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(in io.Reader, out io.Writer) *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:           "rcopy",
		Short:         "Client for rcopyd",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "TOML or YAML configuration file")
	pf.StringVar(&f.remote, "remote", config.DefaultAddress, "server address")
	pf.StringVar(&f.transport, "transport", config.DefaultTransport, "transport: udp, tcp or quic")
	pf.StringVar(&f.mode, "mode", "plain", "plain, parity or hamming; must match the server")
	pf.IntVar(&f.maxFrame, "max-frame", frame.DefaultMaxSize, "largest frame on the wire in bytes")
	pf.IntVar(&f.maxRetries, "max-retries", 0, "bound for the retransmission loops (0 = unbounded)")
	pf.StringVar(&f.logLevel, "log-level", "warn", "debug, info, warn or error")
	pf.StringVarP(&f.dir, "dir", "C", "", "remote directory to change to first")

	root.AddCommand(
		&cobra.Command{
			Use:   "ls [dir]",
			Short: "List a remote directory",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				dir := "."
				if len(args) == 1 {
					dir = args[0]
				}
				return run(cmd, f, func(ctx context.Context, conn *rcopy.Conn) error {
					return list(ctx, conn, dir, out)
				})
			},
		},
		&cobra.Command{
			Use:   "get <remote> [local]",
			Short: "Copy a remote file here",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				local := filepath.Base(args[0])
				if len(args) == 2 {
					local = args[1]
				}
				return run(cmd, f, func(ctx context.Context, conn *rcopy.Conn) error {
					return get(ctx, conn, args[0], local, out)
				})
			},
		},
		&cobra.Command{
			Use:   "put <local> [name]",
			Short: "Send a file; the server stores it as new_<name>",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				name := filepath.Base(args[0])
				if len(args) == 2 {
					name = args[1]
				}
				return run(cmd, f, func(ctx context.Context, conn *rcopy.Conn) error {
					return put(ctx, conn, args[0], name, out)
				})
			},
		},
		&cobra.Command{
			Use:   "shell",
			Short: "Read ls, cd, cp and sn commands from standard input",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd, f, func(ctx context.Context, conn *rcopy.Conn) error {
					return shell(ctx, conn, in, out)
				})
			},
		},
	)
	return root
}

func buildConfig(cmd *cobra.Command, f *flags) (config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	changed := cmd.Flags().Changed
	if changed("remote") {
		cfg.Remote = f.remote
	}
	if changed("transport") {
		cfg.Transport = f.transport
	}
	if changed("mode") {
		cfg.Mode = f.mode
	}
	if changed("max-frame") {
		cfg.MaxFrame = f.maxFrame
	}
	if changed("max-retries") {
		cfg.MaxRetries = f.maxRetries
	}
	if changed("log-level") || f.configPath == "" {
		cfg.Log.Level = f.logLevel
	}
	return cfg, cfg.Validate()
}

// run opens a session, changes to --dir, runs fn and always sends exit
func run(cmd *cobra.Command, f *flags, fn func(context.Context, *rcopy.Conn) error) error {
	cfg, err := buildConfig(cmd, f)
	if err != nil {
		return err
	}
	rcopy.ConfigureLogging(cfg.Log.Level, cfg.Log.NoColor)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := rcopy.Dial(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	if f.dir != "" {
		if err := conn.Chdir(ctx, f.dir); err != nil {
			return err
		}
	}
	runErr := fn(ctx, conn)
	if ctx.Err() != nil {
		return runErr
	}
	if err := conn.Exit(ctx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func list(ctx context.Context, conn *rcopy.Conn, dir string, out io.Writer) error {
	names, err := conn.List(ctx, dir)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(out, name)
	}
	return nil
}

func get(ctx context.Context, conn *rcopy.Conn, remote, local string, out io.Writer) error {
	file, err := os.Create(local)
	if err != nil {
		return err
	}
	n, err := conn.Pull(ctx, remote, file)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s -> %s (%d bytes)\n", remote, local, n)
	return nil
}

func put(ctx context.Context, conn *rcopy.Conn, local, name string, out io.Writer) error {
	file, err := os.Open(local)
	if err != nil {
		return err
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return err
	}
	if err := conn.Push(ctx, name, file, info.Size()); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s -> new_%s (%d bytes)\n", local, name, info.Size())
	return nil
}

// shell executes one command per input line until exit or end of input.
// A local file error is reported and the shell continues.
func shell(ctx context.Context, conn *rcopy.Conn, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		command, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)

		var err error
		switch command {
		case "ls":
			err = list(ctx, conn, arg, out)
		case "cd":
			err = conn.Chdir(ctx, arg)
		case "cp":
			err = get(ctx, conn, arg, filepath.Base(arg), out)
		case "sn":
			err = put(ctx, conn, arg, filepath.Base(arg), out)
		case "exit":
			return nil
		default:
			fmt.Fprintf(out, "unknown command %q\n", command)
			continue
		}
		if err != nil {
			if !recoverable(err) {
				return err
			}
			fmt.Fprintf(out, "%s: %v\n", command, err)
		}
	}
	return scanner.Err()
}

// recoverable reports whether the session is still in step after err
func recoverable(err error) bool {
	var pathErr *fs.PathError
	return errors.As(err, &pathErr)
}
