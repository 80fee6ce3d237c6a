package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dshills/sitesmith/internal/config"
	"github.com/dshills/sitesmith/internal/devserver"
	"github.com/dshills/sitesmith/internal/livereload"
	"github.com/dshills/sitesmith/internal/logging"
	"github.com/dshills/sitesmith/internal/pipeline"
	"github.com/dshills/sitesmith/internal/tui"
	"github.com/dshills/sitesmith/internal/watcher"
)

const (
	stateDir        = ".sitesmith"
	logFileName     = "sitesmith.log"
	shutdownTimeout = 5 * time.Second
)

type devOptions struct {
	tui  bool
	host string
	port int
}

func parseDevFlags(args []string, e env) (devOptions, map[string]bool, error) {
	var opts devOptions
	fs := flag.NewFlagSet("sitesmith dev", flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	fs.BoolVar(&opts.tui, "tui", false, "Show the interactive dashboard")
	fs.StringVar(&opts.host, "host", "", "Dev server host")
	fs.IntVar(&opts.port, "port", 0, "Dev server port")
	if err := fs.Parse(args); err != nil {
		return opts, nil, err
	}
	if fs.NArg() > 0 {
		return opts, nil, fmt.Errorf("dev takes no arguments, got %v", fs.Args())
	}
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return opts, set, nil
}

// applyDevFlags overrides the server settings with explicitly set flags.
func applyDevFlags(cfg *config.Config, opts devOptions, set map[string]bool) error {
	if set["host"] {
		cfg.Server.Host = opts.host
	}
	if set["port"] {
		if opts.port < 0 || opts.port > 65535 {
			return fmt.Errorf("port %d out of range", opts.port)
		}
		cfg.Server.Port = opts.port
	}
	return nil
}

func runDev(ctx context.Context, gopts globalOptions, args []string, e env) int {
	opts, set, err := parseDevFlags(args, e)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(e.stderr, "Error: %v\n", err)
		return 2
	}

	cfg, level, err := loadConfig(gopts, e)
	if err != nil {
		fmt.Fprintf(e.stderr, "Error: %v\n", err)
		return 1
	}
	if err := applyDevFlags(cfg, opts, set); err != nil {
		fmt.Fprintf(e.stderr, "Error: %v\n", err)
		return 2
	}
	debounce, err := cfg.DebounceDuration()
	if err != nil {
		fmt.Fprintf(e.stderr, "Error: %v\n", err)
		return 1
	}

	// The dashboard owns the terminal, so logs go to a file instead.
	log := logging.New(logging.Config{Level: level, Output: e.stderr, Prefix: "sitesmith"})
	if opts.tui {
		fileLog, closer, err := logging.OpenFile(filepath.Join(gopts.root, stateDir), logFileName, level)
		if err != nil {
			fmt.Fprintf(e.stderr, "Error: %v\n", err)
			return 1
		}
		defer closer.Close()
		log = fileLog
	}

	p, err := pipeline.New(cfg, gopts.root, log)
	if err != nil {
		fmt.Fprintf(e.stderr, "Error: %v\n", err)
		return 1
	}

	report := p.Build(ctx)
	fmt.Fprint(e.stdout, tui.RenderReport(report))
	if !report.OK() {
		return 1
	}
	if ctx.Err() != nil {
		return 0
	}

	hub := livereload.NewHub(livereload.WithLogger(log))
	p.Runner().OnSuccess(pipeline.ReloadHook(hub, p.OutDir()))

	srv := devserver.New(devserver.Config{
		Dir:  p.OutDir(),
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}, hub, log)
	if err := srv.Start(); err != nil {
		fmt.Fprintf(e.stderr, "Error: %v\n", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Warn("server shutdown: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	coordConfig := watcher.CoordinatorConfig{
		Root:     p.Root(),
		Debounce: debounce,
		Ignore:   p.WatchIgnore(),
		Logger:   log,
	}

	var program *tea.Program
	if opts.tui {
		reloads, unsubscribe := hub.Subscribe()
		defer unsubscribe()

		program = tea.NewProgram(tui.NewDashboard(tui.DashboardConfig{
			URL:     srv.URL(),
			Tasks:   p.Registry().Names(),
			Initial: report,
			Reloads: reloads,
			OnQuit:  cancel,
		}), tea.WithAltScreen(), tea.WithContext(ctx))

		bridge := tui.NewBridge(program.Send)
		p.Runner().AddListener(bridge)
		coordConfig.OnRun = bridge.OnRun
		coordConfig.OnError = bridge.OnError
	} else {
		fmt.Fprintf(e.stdout, "serving %s at %s (ctrl+c to stop)\n", p.OutDir(), srv.URL())
	}

	coord := watcher.NewCoordinator(p.Runner(), p.Bindings(), coordConfig)
	if err := coord.Start(ctx); err != nil {
		fmt.Fprintf(e.stderr, "Error: %v\n", err)
		return 1
	}
	defer func() {
		if err := coord.Stop(); err != nil {
			log.Warn("stop watcher: %v", err)
		}
	}()

	if program != nil {
		_, err := program.Run()
		if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			fmt.Fprintf(e.stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	<-ctx.Done()
	log.Info("shutting down")
	return 0
}
