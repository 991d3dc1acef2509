package capture

import (
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strings"

	artifact "github.com/entrhq/shotscript/pkg/capture"
	"github.com/entrhq/shotscript/pkg/tools"
)

// ScreenshotTool captures a page image, optionally after running a script.
type ScreenshotTool struct {
	capturer *capturer
}

// Name returns the tool name.
func (t *ScreenshotTool) Name() string {
	return "browser_screenshot"
}

// Description returns the tool description.
func (t *ScreenshotTool) Description() string {
	return "Open a URL in an isolated browser context and capture a screenshot. " +
		"Provide a script to drive the page first; the script ends by calling captureImage(options), " +
		"and the capture options below are ignored in that case."
}

// Schema returns the tool's JSON schema.
func (t *ScreenshotTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "URL to open (must include protocol, e.g., https://example.com)",
			},
			"script": map[string]interface{}{
				"type":        "string",
				"description": "Optional async script driving 'page'; must call captureImage() exactly once",
			},
			"width": map[string]interface{}{
				"type":        "integer",
				"description": "Viewport width in pixels (default 1920)",
			},
			"height": map[string]interface{}{
				"type":        "integer",
				"description": "Viewport height in pixels (default 1080)",
			},
			"scale_factor": map[string]interface{}{
				"type":        "number",
				"description": "Device pixel ratio, e.g. 2 for retina captures",
			},
			"full_page": map[string]interface{}{
				"type":        "boolean",
				"description": "Capture the full scrollable page instead of the viewport",
			},
			"type": map[string]interface{}{
				"type":        "string",
				"description": "Image encoding: 'png' (default) or 'jpeg'",
			},
			"quality": map[string]interface{}{
				"type":        "integer",
				"description": "JPEG quality 0-100",
			},
			"selector": map[string]interface{}{
				"type":        "string",
				"description": "Capture only the first element matching this selector",
			},
			"wait_until": map[string]interface{}{
				"type":        "string",
				"description": "When navigation is complete: 'load' (default), 'domcontentloaded', 'networkidle', or 'commit'",
			},
			"output_path": map[string]interface{}{
				"type":        "string",
				"description": "Optional workspace path to save the image (.png, .jpg or .jpeg)",
			},
		},
		[]string{"url"},
	)
}

// ScreenshotInput represents the screenshot parameters.
type ScreenshotInput struct {
	XMLName     xml.Name `xml:"arguments"`
	URL         string   `xml:"url"`
	Script      string   `xml:"script"`
	Width       int      `xml:"width"`
	Height      int      `xml:"height"`
	ScaleFactor float64  `xml:"scale_factor"`
	FullPage    bool     `xml:"full_page"`
	Type        string   `xml:"type"`
	Quality     int      `xml:"quality"`
	Selector    string   `xml:"selector"`
	WaitUntil   string   `xml:"wait_until"`
	OutputPath  string   `xml:"output_path"`
}

// Execute captures the screenshot.
func (t *ScreenshotTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input ScreenshotInput
	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid parameters: %w", err)
	}

	req, err := input.request()
	if err != nil {
		return "", nil, err
	}

	out, err := t.capturer.run(ctx, req)
	if err != nil {
		return failure(err)
	}
	if out.result.Kind != artifact.KindImage {
		return "", nil, fmt.Errorf("expected image capture, got %s", out.result.Kind)
	}

	meta := out.metadata()
	shot := out.result.Screenshot
	meta["image_type"] = string(shot.Options.Type)

	preview, err := MakePreview(shot.Data, t.capturer.previewMax)
	if err != nil {
		t.capturer.logger.Warnf("preview failed: %v", err)
	} else {
		meta["width"] = preview.SourceWidth
		meta["height"] = preview.SourceHeight
		meta["preview_base64"] = base64.StdEncoding.EncodeToString(preview.Data)
		meta["preview_mime_type"] = preview.MimeType
	}

	var b strings.Builder
	b.WriteString("Screenshot captured\n\nDetails:\n")
	fmt.Fprintf(&b, "- URL: %s\n", out.pageURL)
	if out.title != "" {
		fmt.Fprintf(&b, "- Title: %s\n", out.title)
	}
	fmt.Fprintf(&b, "- Type: %s\n", shot.Options.Type)
	if preview != nil {
		fmt.Fprintf(&b, "- Dimensions: %dx%d\n", preview.SourceWidth, preview.SourceHeight)
	}
	fmt.Fprintf(&b, "- Size: %d bytes\n", len(shot.Data))
	if out.savedTo != "" {
		fmt.Fprintf(&b, "- Saved to: %s\n", out.savedTo)
	}

	return strings.TrimRight(b.String(), "\n"), meta, nil
}

func (in ScreenshotInput) request() (request, error) {
	if strings.TrimSpace(in.URL) == "" {
		return request{}, fmt.Errorf("URL is required")
	}
	opts, err := viewportArgs(in.Width, in.Height, in.ScaleFactor)
	if err != nil {
		return request{}, err
	}
	wait, err := waitState(in.WaitUntil)
	if err != nil {
		return request{}, err
	}

	return request{
		url:        in.URL,
		script:     strings.TrimSpace(in.Script),
		waitUntil:  wait,
		outputPath: in.OutputPath,
		kind:       artifact.KindImage,
		context:    opts,
		image: artifact.ImageOptions{
			Type:     artifact.ImageType(in.Type),
			Quality:  in.Quality,
			FullPage: in.FullPage,
			Selector: in.Selector,
		},
	}, nil
}
