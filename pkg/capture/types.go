// Package capture defines the artifacts a browser run can produce and the
// classified failures a script run can end with.
package capture

import "time"

// Kind identifies which artifact a capture produces.
type Kind string

const (
	// KindImage is a rendered screenshot of the page or an element
	KindImage Kind = "image"

	// KindMarkup is a DOM snapshot of the page or an element
	KindMarkup Kind = "markup"
)

// Fixed time budgets for script execution.
const (
	// ScriptTimeout is the hard wall-clock deadline for one script run
	ScriptTimeout = 60000 * time.Millisecond

	// MaxWait is the ceiling applied to every wait or sleep requested by a script
	MaxWait = 30000 * time.Millisecond
)

// ImageType is the encoding of a screenshot.
type ImageType string

const (
	ImagePNG  ImageType = "png"
	ImageJPEG ImageType = "jpeg"
)

// Clip is a rectangular region of the page in CSS pixels.
type Clip struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ImageOptions configures a screenshot capture.
type ImageOptions struct {
	// Type is the image encoding (defaults to png)
	Type ImageType `json:"type,omitempty"`

	// Quality is the JPEG quality in [0, 100]; ignored for png
	Quality int `json:"quality,omitempty"`

	// FullPage captures the full scrollable page instead of the viewport
	FullPage bool `json:"fullPage,omitempty"`

	// OmitBackground makes the default white background transparent (png only)
	OmitBackground bool `json:"omitBackground,omitempty"`

	// Selector limits the capture to the first matching element
	Selector string `json:"selector,omitempty"`

	// Clip limits the capture to a page region
	Clip *Clip `json:"clip,omitempty"`
}

// MarkupOptions configures a DOM snapshot capture.
type MarkupOptions struct {
	// Selector limits the snapshot to the outer HTML of the first matching element
	Selector string `json:"selector,omitempty"`

	// Clean strips scripts, styles and non-semantic attributes from the snapshot
	Clean bool `json:"clean,omitempty"`
}

// Screenshot is an encoded image capture.
type Screenshot struct {
	Data    []byte
	Options ImageOptions
}

// Markup is a DOM snapshot capture.
type Markup struct {
	Content  string
	Selector string
}

// Result is the single payload a run produces. Exactly one of Screenshot or
// Markup is set, as indicated by Kind.
type Result struct {
	Kind       Kind
	Screenshot *Screenshot
	Markup     *Markup
}

// NewImageResult wraps a screenshot as a Result.
func NewImageResult(s *Screenshot) *Result {
	return &Result{Kind: KindImage, Screenshot: s}
}

// NewMarkupResult wraps a DOM snapshot as a Result.
func NewMarkupResult(m *Markup) *Result {
	return &Result{Kind: KindMarkup, Markup: m}
}

// Size returns the payload size in bytes.
func (r *Result) Size() int {
	switch {
	case r == nil:
		return 0
	case r.Screenshot != nil:
		return len(r.Screenshot.Data)
	case r.Markup != nil:
		return len(r.Markup.Content)
	}
	return 0
}

// ParseKind converts a user-supplied kind name into a Kind.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "image", "screenshot":
		return KindImage, true
	case "markup", "html", "snapshot":
		return KindMarkup, true
	}
	return "", false
}
