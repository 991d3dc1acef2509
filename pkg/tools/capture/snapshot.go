package capture

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	artifact "github.com/entrhq/shotscript/pkg/capture"
	"github.com/entrhq/shotscript/pkg/tools"
)

// maxInlineMarkup caps markup returned in the response body when it is not
// saved to a file.
const maxInlineMarkup = 100000

// SnapshotTool captures page markup, optionally after running a script.
type SnapshotTool struct {
	capturer *capturer
}

// Name returns the tool name.
func (t *SnapshotTool) Name() string {
	return "browser_snapshot"
}

// Description returns the tool description.
func (t *SnapshotTool) Description() string {
	return "Open a URL in an isolated browser context and capture its DOM as HTML. " +
		"Provide a script to drive the page first; the script ends by calling captureMarkup(options)."
}

// Schema returns the tool's JSON schema.
func (t *SnapshotTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "URL to open (must include protocol, e.g., https://example.com)",
			},
			"script": map[string]interface{}{
				"type":        "string",
				"description": "Optional async script driving 'page'; must call captureMarkup() exactly once",
			},
			"width": map[string]interface{}{
				"type":        "integer",
				"description": "Viewport width in pixels (default 1920)",
			},
			"height": map[string]interface{}{
				"type":        "integer",
				"description": "Viewport height in pixels (default 1080)",
			},
			"selector": map[string]interface{}{
				"type":        "string",
				"description": "Snapshot only the outer HTML of the first element matching this selector",
			},
			"clean": map[string]interface{}{
				"type":        "boolean",
				"description": "Strip scripts, styles and non-semantic attributes",
			},
			"wait_until": map[string]interface{}{
				"type":        "string",
				"description": "When navigation is complete: 'load' (default), 'domcontentloaded', 'networkidle', or 'commit'",
			},
			"output_path": map[string]interface{}{
				"type":        "string",
				"description": "Optional workspace path to save the markup (.html or .htm)",
			},
		},
		[]string{"url"},
	)
}

// SnapshotInput represents the snapshot parameters.
type SnapshotInput struct {
	XMLName    xml.Name `xml:"arguments"`
	URL        string   `xml:"url"`
	Script     string   `xml:"script"`
	Width      int      `xml:"width"`
	Height     int      `xml:"height"`
	Selector   string   `xml:"selector"`
	Clean      bool     `xml:"clean"`
	WaitUntil  string   `xml:"wait_until"`
	OutputPath string   `xml:"output_path"`
}

// Execute captures the snapshot.
func (t *SnapshotTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input SnapshotInput
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
	if out.result.Kind != artifact.KindMarkup {
		return "", nil, fmt.Errorf("expected markup capture, got %s", out.result.Kind)
	}

	markup := out.result.Markup
	meta := out.metadata()
	if markup.Selector != "" {
		meta["selector"] = markup.Selector
	}

	var b strings.Builder
	b.WriteString("Snapshot captured\n\nDetails:\n")
	fmt.Fprintf(&b, "- URL: %s\n", out.pageURL)
	if out.title != "" {
		fmt.Fprintf(&b, "- Title: %s\n", out.title)
	}
	fmt.Fprintf(&b, "- Size: %d bytes\n", len(markup.Content))

	if out.savedTo != "" {
		fmt.Fprintf(&b, "- Saved to: %s", out.savedTo)
		return b.String(), meta, nil
	}

	content := markup.Content
	if len(content) > maxInlineMarkup {
		content = content[:maxInlineMarkup] + "\n... (truncated)"
		meta["truncated"] = true
	}
	fmt.Fprintf(&b, "\n```html\n%s\n```", content)
	return b.String(), meta, nil
}

func (in SnapshotInput) request() (request, error) {
	if strings.TrimSpace(in.URL) == "" {
		return request{}, fmt.Errorf("URL is required")
	}
	opts, err := viewportArgs(in.Width, in.Height, 0)
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
		kind:       artifact.KindMarkup,
		context:    opts,
		markup: artifact.MarkupOptions{
			Selector: in.Selector,
			Clean:    in.Clean,
		},
	}, nil
}
