package main

import (
	"encoding/xml"
	"fmt"
	"io"

	artifact "github.com/entrhq/shotscript/pkg/capture"
	"github.com/entrhq/shotscript/pkg/config"
	"github.com/entrhq/shotscript/pkg/tools"
	capturetools "github.com/entrhq/shotscript/pkg/tools/capture"
)

// maxScriptSize caps scripts read from stdin.
const maxScriptSize = 1 << 20

func readAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxScriptSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxScriptSize {
		return nil, fmt.Errorf("script exceeds %d bytes", maxScriptSize)
	}
	return data, nil
}

// buildCall turns flags into a tool call. Viewport flags left at zero take
// the configured default viewport.
func buildCall(cli *CLIConfig, cfg *config.Config, script string) (*tools.ToolCall, error) {
	if cli.URL == "" {
		return nil, fmt.Errorf("-url is required")
	}

	kind, ok := artifact.ParseKind(cli.Kind)
	if !ok {
		return nil, fmt.Errorf("invalid kind: %s (must be 'image' or 'markup')", cli.Kind)
	}

	width, height := cli.Width, cli.Height
	if width == 0 && height == 0 {
		vp := cfg.Viewport()
		width, height = vp.Width, vp.Height
	}

	var (
		name string
		args interface{}
	)
	switch kind {
	case artifact.KindImage:
		name = "browser_screenshot"
		args = capturetools.ScreenshotInput{
			URL:        cli.URL,
			Script:     script,
			Width:      width,
			Height:     height,
			FullPage:   cli.FullPage,
			Type:       cli.ImageType,
			Selector:   cli.Selector,
			WaitUntil:  cli.WaitUntil,
			OutputPath: cli.OutputPath,
		}
	case artifact.KindMarkup:
		name = "browser_snapshot"
		args = capturetools.SnapshotInput{
			URL:        cli.URL,
			Script:     script,
			Width:      width,
			Height:     height,
			Selector:   cli.Selector,
			Clean:      cli.Clean,
			WaitUntil:  cli.WaitUntil,
			OutputPath: cli.OutputPath,
		}
	}

	data, err := xml.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode arguments: %w", err)
	}

	var call tools.ToolCall
	call.ToolName = name
	if err := xml.Unmarshal(data, &call.Arguments); err != nil {
		return nil, fmt.Errorf("failed to encode arguments: %w", err)
	}
	return &call, nil
}
