package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nesram/config"
	"nesram/engine"
	"nesram/process"
	"nesram/process_blob"
)

type options struct {
	cfg        config.Config
	configPath string
	dumpDir    string
	asJSON     bool
	timeout    time.Duration
}

func newFlagSet(o *options) *flag.FlagSet {
	fs := flag.NewFlagSet("nesram", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", o.configPath, "JSON config file")
	fs.StringVar(&o.dumpDir, "dump", o.dumpDir, "Run against a saved dump directory instead of a live process")
	fs.BoolVar(&o.asJSON, "json", o.asJSON, "Print results as JSON")
	fs.DurationVar(&o.timeout, "timeout", o.timeout, "Give up on a command after this long (0 for no limit)")
	o.cfg.RegisterFlags(fs)

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: nesram [flags] <command> [args]\n\nCommands:\n")
		for _, c := range commands {
			fmt.Fprintf(fs.Output(), "  %-22s %s\n", c.usage, c.help)
		}
		fmt.Fprintf(fs.Output(), "\nFlags:\n")
		fs.PrintDefaults()
	}
	return fs
}

// parseArgs parses flags over the defaults, or over the config file when
// -config is given, so flags always win over the file.
func parseArgs(args []string) (*options, []string, error) {
	o := &options{cfg: config.Default()}
	fs := newFlagSet(o)
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	if o.configPath != "" {
		cfg, err := config.Load(o.configPath)
		if err != nil {
			return nil, nil, err
		}
		o = &options{cfg: cfg, configPath: o.configPath}
		fs = newFlagSet(o)
		if err := fs.Parse(args); err != nil {
			return nil, nil, err
		}
	}

	if err := o.cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return nil, nil, errors.New("no command given")
	}
	return o, fs.Args(), nil
}

// newEngine wires the engine to a live emulator, or to a saved dump.
func newEngine(o *options) (*engine.Engine, error) {
	v, err := o.cfg.Validator()
	if err != nil {
		return nil, err
	}
	opts := o.cfg.EngineOptions()

	var locator process.Locator
	if o.dumpDir != "" {
		img, err := process_blob.Load(o.dumpDir)
		if err != nil {
			return nil, err
		}
		locator = process_blob.NewImageLocator(img)
		v.SkipTemporal = true
		opts.Frozen = true
	} else {
		locator, err = liveLocator(o.cfg)
		if err != nil {
			return nil, err
		}
	}

	return engine.New(locator, v, opts), nil
}

func run(args []string) error {
	o, rest, err := parseArgs(args)
	if err != nil {
		return err
	}

	name := rest[0]
	cmd, ok := lookup(name)
	if !ok {
		return fmt.Errorf("unknown command '%s'", name)
	}

	eng, err := newEngine(o)
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	return cmd.run(ctx, &cli{eng: eng, opts: o, out: os.Stdout}, rest[1:])
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		kind := engine.ErrorKind(err)
		if errors.Is(err, config.ErrInvalidConfig) || errors.Is(err, errUsage) || kind == engine.KindInternal {
			fmt.Fprintln(os.Stderr, "Error:", err)
		} else {
			fmt.Fprintf(os.Stderr, "Error (%s): %v\n", kind, err)
		}
		os.Exit(1)
	}
}

var errUsage = errors.New("usage")

func usageError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}
