// Package main provides the shotscript CLI: open a URL in a pooled headless
// browser, optionally run an untrusted script against it, and save exactly
// one capture.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/entrhq/shotscript/pkg/browser"
	"github.com/entrhq/shotscript/pkg/config"
	"github.com/entrhq/shotscript/pkg/gate"
	"github.com/entrhq/shotscript/pkg/logging"
	"github.com/entrhq/shotscript/pkg/metrics"
	"github.com/entrhq/shotscript/pkg/sandbox"
	"github.com/entrhq/shotscript/pkg/security/urlguard"
	"github.com/entrhq/shotscript/pkg/security/workspace"
	capturetools "github.com/entrhq/shotscript/pkg/tools/capture"
)

const version = "0.1.0"

// CLIConfig holds command-line configuration
type CLIConfig struct {
	URL         string
	ScriptFile  string
	Kind        string
	OutputPath  string
	ConfigFile  string
	Width       int
	Height      int
	FullPage    bool
	Selector    string
	Clean       bool
	ImageType   string
	WaitUntil   string
	MetricsAddr string
	Timeout     time.Duration
	ShowVersion bool
}

func main() {
	cli := parseFlags()

	if cli.ShowVersion {
		fmt.Printf("shotscript v%s\n", version)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nShutting down...")
		cancel()
	}()

	if err := run(ctx, cli); err != nil {
		cancel()
		log.Printf("Capture failed: %v", err)
		os.Exit(1)
	}
	cancel()
}

// parseFlags parses command line flags
func parseFlags() *CLIConfig {
	cli := &CLIConfig{}

	flag.StringVar(&cli.URL, "url", "", "URL to capture (required)")
	flag.StringVar(&cli.ScriptFile, "script", "", "Script file to run against the page, or - for stdin")
	flag.StringVar(&cli.Kind, "kind", "image", "Capture kind: image or markup")
	flag.StringVar(&cli.OutputPath, "output", "", "Workspace path to save the capture to")
	flag.StringVar(&cli.ConfigFile, "config", "", "Path to configuration file (YAML)")
	flag.IntVar(&cli.Width, "width", 0, "Viewport width (default from config)")
	flag.IntVar(&cli.Height, "height", 0, "Viewport height (default from config)")
	flag.BoolVar(&cli.FullPage, "full-page", false, "Capture the full scrollable page")
	flag.StringVar(&cli.Selector, "selector", "", "Capture only the first element matching this selector")
	flag.BoolVar(&cli.Clean, "clean", false, "Strip scripts and styles from markup captures")
	flag.StringVar(&cli.ImageType, "type", "", "Image encoding: png or jpeg")
	flag.StringVar(&cli.WaitUntil, "wait-until", "", "Navigation wait state: load, domcontentloaded, networkidle or commit")
	flag.StringVar(&cli.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	flag.DurationVar(&cli.Timeout, "timeout", 2*time.Minute, "Overall timeout including browser launch")
	flag.BoolVar(&cli.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "shotscript - scripted browser captures\n\n")
		fmt.Fprintf(os.Stderr, "Usage: shotscript -url URL [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Screenshot a page\n")
		fmt.Fprintf(os.Stderr, "  shotscript -url https://example.com -output example.png\n\n")
		fmt.Fprintf(os.Stderr, "  # Run a script, then snapshot the result\n")
		fmt.Fprintf(os.Stderr, "  shotscript -url https://example.com -kind markup -script login.js -output page.html\n\n")
	}

	flag.Parse()
	return cli
}

// run wires the browser stack, executes one capture and prints the result.
func run(ctx context.Context, cli *CLIConfig) error {
	cfg, err := loadConfig(cli.ConfigFile)
	if err != nil {
		return err
	}

	logging.SetDefaultLevel(cfg.LogLevel())
	logger, logErr := logging.NewLogger("shotscript")
	if logErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: logging to stderr: %v\n", logErr)
	}
	defer logger.Close()

	var script string
	if cli.ScriptFile != "" {
		if script, err = readScript(cli.ScriptFile); err != nil {
			return err
		}
	}

	call, err := buildCall(cli, cfg, script)
	if err != nil {
		return err
	}

	if cli.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cli.Timeout)
		defer cancel()
	}

	m := metrics.New()
	if cli.MetricsAddr != "" {
		stop := serveMetrics(cli.MetricsAddr, m, logger)
		defer stop()
	}

	launcher := browser.NewPlaywrightLauncher(browser.PlaywrightOptions{
		Browser:  cfg.Browser.Engine,
		Headless: cfg.Browser.Headless,
		Channel:  cfg.Browser.Channel,
		Args:     cfg.Browser.Args,
		Install:  cfg.Browser.Install,
	})
	defer func() {
		if err := launcher.Stop(); err != nil {
			logger.Warnf("failed to stop playwright: %v", err)
		}
	}()

	sessions := browser.NewManager(launcher, logger.With("browser"), m)
	defer func() {
		if err := sessions.Shutdown(); err != nil {
			logger.Warnf("browser shutdown: %v", err)
		}
	}()

	factory := browser.NewFactory(gate.New(cfg.Browser.Concurrency), sessions, logger.With("context"), m)
	factory.SetDefaultTimeout(cfg.Browser.DefaultTimeoutMS)

	urls, err := urlguard.New(urlguard.Config{
		AllowedSchemes:       cfg.Capture.AllowedSchemes,
		BlockedHosts:         cfg.Capture.BlockedHosts,
		AllowedHosts:         cfg.Capture.AllowedHosts,
		BlockPrivateNetworks: cfg.Capture.BlockPrivateNetworks,
	})
	if err != nil {
		return fmt.Errorf("failed to create URL guard: %w", err)
	}

	ws, err := workspace.NewGuard(cfg.Workspace.Dir)
	if err != nil {
		return fmt.Errorf("failed to open workspace: %w", err)
	}

	registry, err := capturetools.NewRegistry(capturetools.Config{
		Factory:             factory,
		Runner:              sandbox.New(sandbox.WithLogger(logger.With("sandbox")), sandbox.WithMetrics(m)),
		URLs:                urls,
		Workspace:           ws,
		Metrics:             m,
		Logger:              logger.With("tools"),
		PreviewMaxDimension: cfg.Capture.PreviewMaxDimension,
	})
	if err != nil {
		return fmt.Errorf("failed to create capture tools: %w", err)
	}
	set, err := registry.Set()
	if err != nil {
		return err
	}

	logger.Infof("capturing %s as %s", cli.URL, call.ToolName)
	out, _, err := set.Execute(ctx, call)
	if err != nil {
		return err
	}

	fmt.Println(out)
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func readScript(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = readAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read script: %w", err)
	}
	return string(data), nil
}

// serveMetrics exposes m on addr until the returned stop is called.
func serveMetrics(addr string, m *metrics.Metrics, logger *logging.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("metrics server: %v", err)
		}
	}()
	logger.Infof("serving metrics on %s/metrics", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
