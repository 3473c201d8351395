package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/felixgeelhaar/rpcengine/engine"
	"github.com/felixgeelhaar/rpcengine/transport"
)

// envPrefix prefixes the environment variable that overrides each flag.
// --batch-limit is read from RPCPIPE_BATCH_LIMIT.
const envPrefix = "RPCPIPE_"

// rootFlags holds all flags for the root command.
type rootFlags struct {
	envFile      string
	logLevel     string
	logFormat    string
	rate         int
	burst        int
	timeout      time.Duration
	maxSize      int64
	batchLimit   int
	drainTimeout time.Duration
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "rpcpipe",
		Short: "Serve a demo JSON-RPC engine over stdin and stdout",
		Long: `Serve a demo JSON-RPC engine over stdin and stdout.

Methods:
  ping    returns "pong"
  echo    returns its params
  sleep   waits for params.ms milliseconds, bounded by --timeout
  notify  pushes params back to the caller as a "notify" notification

Every flag can also be set through an environment variable named
RPCPIPE_<FLAG>, for example RPCPIPE_LOG_LEVEL=debug. Variables are also read
from --env-file, or from .env when that exists. Flags given on the command
line take precedence.`,
		Example: `  # Answer a single request
  echo '{"jsonrpc":"2.0","id":1,"method":"ping"}' | rpcpipe

  # Rate limit to 10 requests per second with JSON logs
  rpcpipe --rate 10 --burst 20 --log-format json`,
		Version:       fmt.Sprintf("%s (%s)", Version, Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnvFile(f.envFile); err != nil {
				return err
			}
			return applyEnv(cmd.Flags(), os.LookupEnv)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), f, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.envFile, "env-file", "", "Load environment variables from this file")
	fl.StringVar(&f.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fl.StringVar(&f.logFormat, "log-format", "text", "Log format (text, json)")
	fl.IntVar(&f.rate, "rate", 0, "Requests per second allowed (0 = unlimited)")
	fl.IntVar(&f.burst, "burst", 0, "Requests allowed above the rate in a burst (default: rate)")
	fl.DurationVar(&f.timeout, "timeout", 30*time.Second, "Longest a method may take (0 = unbounded)")
	fl.Int64Var(&f.maxSize, "max-size", 1024*1024, "Largest params accepted in bytes (0 = unbounded)")
	fl.IntVar(&f.batchLimit, "batch-limit", 0, "Batch elements handled at once (0 = unbounded)")
	fl.DurationVar(&f.drainTimeout, "drain-timeout", 30*time.Second, "Longest to wait for in-flight requests at exit")

	return cmd
}

// loadEnvFile loads path into the environment without overriding variables
// that are already set. With no path, .env is loaded if it exists.
func loadEnvFile(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load env file: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// applyEnv sets every flag not given on the command line from its
// environment variable, if that is set.
func applyEnv(fl *pflag.FlagSet, lookup func(string) (string, bool)) error {
	var errs []error
	fl.VisitAll(func(flag *pflag.Flag) {
		if flag.Changed {
			return
		}
		name := envPrefix + strings.ToUpper(strings.ReplaceAll(flag.Name, "-", "_"))
		v, ok := lookup(name)
		if !ok {
			return
		}
		if err := fl.Set(flag.Name, v); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", name, err))
		}
	})
	return errors.Join(errs...)
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

func run(ctx context.Context, f *rootFlags, in io.Reader, out, errOut io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sl, err := newLogger(errOut, f.logLevel, f.logFormat)
	if err != nil {
		return err
	}
	logger := engine.NewSlogLogger(sl)

	e := newDemoEngine(f, logger)
	defer e.Destroy()

	tr := transport.NewStdio(
		transport.WithStdin(in),
		transport.WithStdout(out),
		transport.WithStdioLogger(logger),
		transport.WithShutdownConfig(transport.ShutdownConfig{
			Timeout: f.drainTimeout,
			OnShutdownComplete: func(err error) {
				if err == nil {
					logger.Debug("drained")
				}
			},
		}),
	)

	logger.Info("serving", engine.F("addr", tr.Addr()), engine.F("version", Version))
	if err := tr.Serve(ctx, e); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
