// biskit-worker is the worker daemon for the biskit distribution
// engine. It listens for a coordinator over WebSocket and runs the
// given command once per work item, piping the item payload to stdin
// and collecting stdout as the result.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ostrokach/biskit/slave"
	"github.com/ostrokach/biskit/transport/ws"
	"github.com/ostrokach/biskit/wire"
)

var (
	addr        string
	codecName   string
	itemTimeout time.Duration
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "biskit-worker [flags] -- command [args...]",
	Short: "Worker daemon for the biskit work distribution engine",
	Long: `biskit-worker serves one coordinator connection per WebSocket client.
For every work item in a dispatched chunk it runs the given command with
the item payload on stdin and reports the command's stdout as the item
result. The item identifier and the run's initialization payload are
exposed to the command as BISKIT_ITEM_ID and BISKIT_INIT.`,
	Example: `  # Process each item with a script
  biskit-worker --addr :9000 -- ./process-item.sh

  # JSON framing and a per-item time limit
  biskit-worker --codec json --item-timeout 30s -- ./process-item.sh`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDaemon,
}

func init() {
	rootCmd.Flags().StringVar(&addr, "addr", ":9000", "listen address")
	rootCmd.Flags().StringVar(&codecName, "codec", wire.CodecNameMsgpack, "frame codec (msgpack or json)")
	rootCmd.Flags().DurationVar(&itemTimeout, "item-timeout", 0, "per-item command time limit (0 = unbounded)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

func runDaemon(cmd *cobra.Command, args []string) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q", logLevel)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	switch codecName {
	case wire.CodecNameJSON, wire.CodecNameMsgpack:
	default:
		return fmt.Errorf("unknown codec %q", codecName)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	daemon := ws.NewDaemon(slave.ExecWorkFunc(args, itemTimeout),
		ws.WithDaemonLogger(logger),
		ws.WithDaemonCodec(codecName),
	)

	logger.Info("worker daemon starting",
		slog.String("addr", addr),
		slog.String("codec", codecName),
		slog.String("command", args[0]),
	)
	return daemon.ListenAndServe(ctx, addr)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
