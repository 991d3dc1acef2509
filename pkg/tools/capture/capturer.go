package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/entrhq/shotscript/pkg/browser"
	artifact "github.com/entrhq/shotscript/pkg/capture"
	"github.com/entrhq/shotscript/pkg/logging"
	"github.com/entrhq/shotscript/pkg/metrics"
	"github.com/entrhq/shotscript/pkg/sandbox"
	"github.com/entrhq/shotscript/pkg/security/urlguard"
	"github.com/entrhq/shotscript/pkg/security/workspace"
)

// request is one validated capture job.
type request struct {
	url        string
	script     string
	waitUntil  string
	outputPath string
	kind       artifact.Kind
	context    browser.ContextOptions
	image      artifact.ImageOptions
	markup     artifact.MarkupOptions
}

// captured is a finished job.
type captured struct {
	result  *artifact.Result
	pageURL string
	title   string
	savedTo string
	elapsed time.Duration
}

// capturer runs capture jobs shared by both tools.
type capturer struct {
	factory    *browser.Factory
	runner     *sandbox.Runner
	urls       *urlguard.Guard
	workspace  *workspace.Guard
	metrics    *metrics.Metrics
	logger     *logging.Logger
	previewMax int
}

func viewportArgs(width, height int, scale float64) (browser.ContextOptions, error) {
	if (width == 0) != (height == 0) {
		return browser.ContextOptions{}, fmt.Errorf("width and height must be set together")
	}
	if scale < 0 {
		return browser.ContextOptions{}, fmt.Errorf("scale_factor cannot be negative")
	}
	return browser.ContextOptions{
		Viewport:          browser.Viewport{Width: width, Height: height},
		DeviceScaleFactor: scale,
	}, nil
}

func waitState(s string) (string, error) {
	if s == "" {
		return "load", nil
	}
	if !browser.ValidLoadStates[s] {
		return "", fmt.Errorf("invalid wait_until value: %s (must be 'load', 'domcontentloaded', 'networkidle', or 'commit')", s)
	}
	return s, nil
}

// run validates the target and destination, opens an isolated context,
// navigates and produces the artifact. The context is always closed before
// run returns.
func (c *capturer) run(ctx context.Context, req request) (*captured, error) {
	target, err := c.urls.Validate(ctx, req.url)
	if err != nil {
		return nil, err
	}

	var dest string
	if req.outputPath != "" {
		if c.workspace == nil {
			return nil, fmt.Errorf("output_path requires a workspace directory")
		}
		if dest, err = c.workspace.OutputPath(req.outputPath, req.kind); err != nil {
			return nil, err
		}
	}

	if req.script == "" && req.kind == artifact.KindImage {
		// fail before taking a permit
		if req.image, err = browser.NormalizeImageOptions(req.image); err != nil {
			return nil, err
		}
	}

	// scripts navigate too; every frame navigation faces the same guard
	allowed := func(u string) error {
		_, err := c.urls.Validate(ctx, u)
		return err
	}
	req.context.NavigationFilter = allowed

	start := time.Now()
	bctx, err := c.factory.CreateContext(ctx, req.context)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := bctx.Close(); cerr != nil {
			c.logger.Warnf("%v", cerr)
		}
	}()

	page, err := bctx.NewPage()
	if err != nil {
		return nil, err
	}
	page = browser.GuardNavigation(page, allowed)

	if err := page.Goto(target.String(), browser.NavigateOptions{WaitUntil: req.waitUntil}); err != nil {
		return nil, fmt.Errorf("navigation failed: %w", err)
	}

	res, err := c.produce(ctx, page, req)
	if err != nil {
		return nil, err
	}

	out := &captured{result: res, pageURL: page.URL(), elapsed: time.Since(start)}
	if title, err := page.Title(); err == nil {
		out.title = title
	}

	if dest != "" {
		if err := os.WriteFile(dest, payload(res), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write capture: %w", err)
		}
		out.savedTo = dest
		if rel, err := c.workspace.Relative(dest); err == nil {
			out.savedTo = rel
		}
	}

	c.logger.Infof("captured %s of %s (%d bytes)", res.Kind, out.pageURL, res.Size())
	return out, nil
}

// produce runs the caller script when one is given, else captures directly.
func (c *capturer) produce(ctx context.Context, page browser.Page, req request) (*artifact.Result, error) {
	if req.script != "" {
		return c.runner.Run(ctx, req.script, page, req.kind)
	}

	var res *artifact.Result
	switch req.kind {
	case artifact.KindImage:
		shot, err := browser.CaptureImage(page, req.image)
		if err != nil {
			return nil, fmt.Errorf("screenshot failed: %w", err)
		}
		res = artifact.NewImageResult(shot)
	case artifact.KindMarkup:
		markup, err := browser.CaptureMarkup(page, req.markup)
		if err != nil {
			return nil, fmt.Errorf("snapshot failed: %w", err)
		}
		res = artifact.NewMarkupResult(markup)
	default:
		return nil, fmt.Errorf("unknown capture kind: %s", req.kind)
	}

	c.metrics.RecordCapture(string(res.Kind))
	return res, nil
}

func payload(res *artifact.Result) []byte {
	if res.Screenshot != nil {
		return res.Screenshot.Data
	}
	if res.Markup != nil {
		return []byte(res.Markup.Content)
	}
	return nil
}

// failure reports a classified script error with its kind in the message
// and metadata; other errors pass through.
func failure(err error) (string, map[string]interface{}, error) {
	var cerr *artifact.Error
	if errors.As(err, &cerr) {
		return "", map[string]interface{}{"error_kind": string(cerr.Kind)},
			fmt.Errorf("script %s: %w", cerr.Kind, err)
	}
	return "", nil, err
}

// metadata builds the fields common to both tools.
func (out *captured) metadata() map[string]interface{} {
	res := out.result
	meta := map[string]interface{}{
		"kind":        string(res.Kind),
		"url":         out.pageURL,
		"bytes":       res.Size(),
		"mime_type":   DetectMIME(payload(res)),
		"duration_ms": out.elapsed.Milliseconds(),
	}
	if out.title != "" {
		meta["title"] = out.title
	}
	if out.savedTo != "" {
		meta["output_path"] = out.savedTo
	}
	return meta
}
