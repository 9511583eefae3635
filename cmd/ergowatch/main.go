package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mdobak/go-xerrors"

	"github.com/ayusman/ergowatch/internal/config"
	"github.com/ayusman/ergowatch/internal/store"
)

const usage = `ergowatch - posture monitor

Usage:
  ergowatch <command> [flags]

Commands:
  detect     live detection with the bad-posture alarm
  capture    record a labeled training session and merge it into the datasets
  merge      merge a session file into the datasets
  label      label the unlabeled dataset from session time ranges
  train      train a posture model from the labeled dataset
  log        export the bad-posture log (log export -out FILE)
  runs       list recent detection and capture runs
  sessions   list recorded capture sessions

Run 'ergowatch <command> -h' for command flags.
`

// errUsage reports bad command line arguments.
var errUsage = errors.New("usage")

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "detect":
		err = runDetect(ctx, args)
	case "capture":
		err = runCapture(ctx, args)
	case "merge":
		err = runMerge(args)
	case "label":
		err = runLabel(args)
	case "train":
		err = runTrain(args)
	case "log":
		err = runLog(args)
	case "runs":
		err = runRuns(args)
	case "sessions":
		err = runSessions(args)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		slog.Error("command failed", "command", cmd, slog.Any("error", xerrors.New(err)))
		os.Exit(1)
	}
}

// common holds the flags every command accepts.
type common struct {
	configPath string
	dataRoot   string
	debug      bool
	logJSON    bool
}

func newFlagSet(name string) (*flag.FlagSet, *common) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	c := &common{}
	fs.StringVar(&c.configPath, "config", config.DefaultPath, "Path to configuration file")
	fs.StringVar(&c.dataRoot, "root", "", "Data root directory (overrides config)")
	fs.BoolVar(&c.debug, "debug", false, "Enable debug logging")
	fs.BoolVar(&c.logJSON, "log-json", false, "Log as JSON")
	return fs, c
}

// setup configures logging and loads the configuration. It must run after
// the flag set is parsed.
func (c *common) setup() (*config.Config, error) {
	level := slog.LevelInfo
	if c.debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if c.logJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))

	cfg, err := config.LoadOrDefault(c.configPath)
	if err != nil {
		return nil, err
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if c.dataRoot != "" {
		cfg.DataRoot = c.dataRoot
	}

	slog.Debug("configuration loaded", "config", c.configPath, "data_root", cfg.DataRoot)
	return cfg, nil
}

// openStore opens the history database, or returns nil when it is disabled.
func openStore(cfg *config.Config, paths config.Paths) (*store.Store, error) {
	if !cfg.Store.Enabled {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(paths.Database), 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	st, err := store.New(paths.Database)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

func closeStore(st *store.Store) {
	if st == nil {
		return
	}
	if err := st.Close(); err != nil {
		slog.Warn("error closing store", "error", err)
	}
}
