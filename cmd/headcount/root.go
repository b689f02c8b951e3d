package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openfluke/headcount/config"
	"github.com/openfluke/headcount/dispatch"
	"github.com/openfluke/headcount/logging"
)

// app carries state shared by every subcommand.
type app struct {
	v          *viper.Viper
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.NewViper()}
	root := &cobra.Command{
		Use:           "headcount",
		Short:         "Count heads in billions of random coin flips",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "YAML configuration file")
	pf.StringVar(&a.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	pf.StringVar(&a.logFormat, "log-format", "text", "log format: text or json")

	pf.Uint64("small-threshold", 0, "flip count below which the CPU path runs inline")
	pf.Uint64("large-threshold", 0, "flip count at which the device path is tried")
	pf.Int("workers", 0, "CPU workers (0 = available parallelism)")
	pf.Int("lanes", 0, "generator lanes, 4 or 8 (0 = detect)")
	pf.Bool("pin-workers", false, "bind each worker to its own CPU")
	pf.String("backend", "", "device backend: auto, webgpu, emulated, none")
	pf.String("adapter", "", "prefer the adapter whose name or vendor contains this")

	for key, flag := range map[string]string{
		"small_threshold": "small-threshold",
		"large_threshold": "large-threshold",
		"workers":         "workers",
		"lanes":           "lanes",
		"pin_workers":     "pin-workers",
		"device.backend":  "backend",
		"device.adapter":  "adapter",
	} {
		_ = a.v.BindPFlag(key, pf.Lookup(flag))
	}

	root.AddCommand(
		newFlipCmd(a),
		newProfileCmd(a),
		newDetectCmd(a),
		newConfigCmd(a),
	)
	return root
}

// loadConfig layers defaults, the config file, HEADCOUNT_* variables and
// flags, in increasing precedence.
func (a *app) loadConfig() (config.Config, error) {
	return config.LoadFrom(a.v, a.configPath)
}

func (a *app) logger() (*logging.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(a.logLevel)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	switch a.logFormat {
	case "text":
		return logging.NewTextLogger(level), nil
	case "json":
		return logging.NewJSONLogger(level), nil
	}
	return nil, fmt.Errorf("unknown log format %q", a.logFormat)
}

func (a *app) dispatcher() (*dispatch.Dispatcher, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := a.logger()
	if err != nil {
		return nil, err
	}
	return dispatch.New(cfg, dispatch.WithLogger(log))
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// parseCount accepts plain integers with optional underscores or 0x
// prefixes, and scientific notation such as 1e12.
func parseCount(s string) (uint64, error) {
	if n, err := strconv.ParseUint(s, 0, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || f >= 1<<64 || f != math.Trunc(f) {
		return 0, fmt.Errorf("invalid flip count %q", s)
	}
	return uint64(f), nil
}
