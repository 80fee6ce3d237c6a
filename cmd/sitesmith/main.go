// Package main is the entry point for the sitesmith asset pipeline.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/dshills/sitesmith/internal/config"
	"github.com/dshills/sitesmith/internal/logging"
	"github.com/dshills/sitesmith/internal/pipeline"
	"github.com/dshills/sitesmith/internal/tui"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// globalOptions are the flags accepted before the command name.
type globalOptions struct {
	configPath  string
	root        string
	logLevel    string
	showVersion bool
}

// env carries the process streams so commands can be tested.
type env struct {
	stdout io.Writer
	stderr io.Writer
	lookup func(string) (string, bool)
}

func main() {
	ctx, stop := signalContext()
	defer stop()
	os.Exit(run(ctx, os.Args[1:], env{stdout: os.Stdout, stderr: os.Stderr, lookup: os.LookupEnv}))
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(signals)
		cancel()
	}
}

func run(ctx context.Context, args []string, e env) int {
	var opts globalOptions
	fs := flag.NewFlagSet("sitesmith", flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	fs.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	fs.StringVar(&opts.configPath, "c", "", "Path to configuration file (shorthand)")
	fs.StringVar(&opts.root, "root", ".", "Project directory")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.BoolVar(&opts.showVersion, "version", false, "Show version information")
	fs.BoolVar(&opts.showVersion, "v", false, "Show version information (shorthand)")
	fs.Usage = func() { usage(e.stderr, fs) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if opts.showVersion {
		printVersion(e.stdout)
		return 0
	}

	rest := fs.Args()
	if len(rest) == 0 {
		usage(e.stderr, fs)
		return 2
	}
	cmd, cmdArgs := rest[0], rest[1:]

	switch cmd {
	case "build":
		return runBuild(ctx, opts, cmdArgs, e)
	case "dev":
		return runDev(ctx, opts, cmdArgs, e)
	case "clean":
		return runClean(opts, cmdArgs, e)
	case "tasks":
		return runTasks(opts, cmdArgs, e)
	case "version":
		printVersion(e.stdout)
		return 0
	case "help":
		usage(e.stdout, fs)
		return 0
	default:
		fmt.Fprintf(e.stderr, "Error: unknown command %q\n\n", cmd)
		usage(e.stderr, fs)
		return 2
	}
}

func usage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintf(w, "sitesmith - static site asset pipeline\n\n")
	fmt.Fprintf(w, "Usage: sitesmith [options] <command> [command options]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	fmt.Fprintf(w, "  build     Run every task once, in build order\n")
	fmt.Fprintf(w, "  dev       Build, then serve with live reload and rebuild on change\n")
	fmt.Fprintf(w, "  clean     Remove the output directory\n")
	fmt.Fprintf(w, "  tasks     List configured tasks\n")
	fmt.Fprintf(w, "  version   Show version information\n\n")
	fmt.Fprintf(w, "Options:\n")
	fs.SetOutput(w)
	fs.PrintDefaults()
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "sitesmith %s\n", version)
	fmt.Fprintf(w, "Commit: %s\n", commit)
	fmt.Fprintf(w, "Built: %s\n", date)
}

// loadConfig applies defaults, the config file, the environment and the
// -log-level flag, in that order.
func loadConfig(opts globalOptions, e env) (*config.Config, logging.Level, error) {
	cfg, err := config.Load(config.LoadOptions{
		Root:      opts.root,
		File:      opts.configPath,
		LookupEnv: e.lookup,
	})
	if err != nil {
		return nil, 0, err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	level, err := cfg.Level()
	if err != nil {
		return nil, 0, err
	}
	return cfg, level, nil
}

func newPipeline(opts globalOptions, e env) (*pipeline.Pipeline, *config.Config, *logging.Logger, error) {
	cfg, level, err := loadConfig(opts, e)
	if err != nil {
		return nil, nil, nil, err
	}
	log := logging.New(logging.Config{Level: level, Output: e.stderr, Prefix: "sitesmith"})
	if cfg.Source != "" {
		log.Debug("loaded %s", cfg.Source)
	}
	p, err := pipeline.New(cfg, opts.root, log)
	if err != nil {
		return nil, nil, nil, err
	}
	return p, cfg, log, nil
}

func noArgs(name string, args []string, e env) bool {
	if len(args) == 0 {
		return true
	}
	fmt.Fprintf(e.stderr, "Error: %s takes no arguments, got %q\n", name, strings.Join(args, " "))
	return false
}

func runBuild(ctx context.Context, opts globalOptions, args []string, e env) int {
	if !noArgs("build", args, e) {
		return 2
	}
	p, _, _, err := newPipeline(opts, e)
	if err != nil {
		fmt.Fprintf(e.stderr, "Error: %v\n", err)
		return 1
	}
	report := p.Build(ctx)
	fmt.Fprint(e.stdout, tui.RenderReport(report))
	if !report.OK() {
		return 1
	}
	return 0
}

func runClean(opts globalOptions, args []string, e env) int {
	if !noArgs("clean", args, e) {
		return 2
	}
	p, _, _, err := newPipeline(opts, e)
	if err != nil {
		fmt.Fprintf(e.stderr, "Error: %v\n", err)
		return 1
	}
	if err := p.Clean(); err != nil {
		fmt.Fprintf(e.stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(e.stdout, "removed %s\n", p.OutDir())
	return 0
}

func runTasks(opts globalOptions, args []string, e env) int {
	if !noArgs("tasks", args, e) {
		return 2
	}
	p, cfg, _, err := newPipeline(opts, e)
	if err != nil {
		fmt.Fprintf(e.stderr, "Error: %v\n", err)
		return 1
	}

	order := make(map[string]int)
	for i, name := range cfg.BuildOrder() {
		order[name] = i + 1
	}

	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tTRANSFORM\tORDER\tSOURCES\tDEST\tWATCH")
	for _, name := range p.Registry().Names() {
		d, err := p.Registry().Resolve(name)
		if err != nil {
			continue
		}
		step := "-"
		if n, ok := order[name]; ok {
			step = fmt.Sprint(n)
		}
		dest := d.Dest
		if rel, err := filepath.Rel(p.Root(), d.Dest); err == nil {
			dest = filepath.ToSlash(rel)
		}
		kind := ""
		if tc, ok := cfg.Task(name); ok {
			kind = tc.Transform
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			name,
			kind,
			step,
			strings.Join(d.Sources.Patterns(), " "),
			dest,
			strings.Join(d.Watch.Patterns(), " "),
		)
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(e.stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
