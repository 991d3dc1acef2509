package browser

import (
	"fmt"
	"strings"

	"github.com/entrhq/shotscript/pkg/capture"
)

// NormalizeImageOptions applies defaults to screenshot options and rejects
// encodings the engine cannot produce. "jpg" is accepted as an alias for
// jpeg; quality is dropped for png since the engine refuses it there.
func NormalizeImageOptions(opts capture.ImageOptions) (capture.ImageOptions, error) {
	switch strings.ToLower(string(opts.Type)) {
	case "", "png":
		opts.Type = capture.ImagePNG
	case "jpeg", "jpg":
		opts.Type = capture.ImageJPEG
	default:
		return opts, fmt.Errorf("unsupported image type %q (must be 'png' or 'jpeg')", opts.Type)
	}

	if opts.Type == capture.ImagePNG {
		opts.Quality = 0
	} else if opts.Quality < 0 || opts.Quality > 100 {
		return opts, fmt.Errorf("image quality %d out of range [0, 100]", opts.Quality)
	}

	if opts.Clip != nil && (opts.Clip.Width <= 0 || opts.Clip.Height <= 0) {
		return opts, fmt.Errorf("clip region must have positive width and height")
	}
	if opts.Selector != "" && (opts.Clip != nil || opts.FullPage) {
		return opts, fmt.Errorf("selector cannot be combined with clip or fullPage")
	}
	return opts, nil
}

// CaptureImage takes a screenshot of the page, or of the first element
// matching opts.Selector. Engine errors are returned unwrapped so their
// message reaches the caller unchanged.
func CaptureImage(page Page, opts capture.ImageOptions) (*capture.Screenshot, error) {
	opts, err := NormalizeImageOptions(opts)
	if err != nil {
		return nil, err
	}

	var data []byte
	if opts.Selector != "" {
		data, err = page.Locator(opts.Selector).First().Screenshot(opts)
	} else {
		data, err = page.Screenshot(opts)
	}
	if err != nil {
		return nil, err
	}

	return &capture.Screenshot{Data: data, Options: opts}, nil
}

// CaptureMarkup snapshots the page HTML, or the outer HTML of the first
// element matching opts.Selector, optionally cleaned of scripts and noise.
func CaptureMarkup(page Page, opts capture.MarkupOptions) (*capture.Markup, error) {
	var (
		content string
		err     error
	)
	if opts.Selector != "" {
		content, err = page.Locator(opts.Selector).First().OuterHTML(ActionOptions{})
	} else {
		content, err = page.Content()
	}
	if err != nil {
		return nil, err
	}

	if opts.Clean {
		cleaned, err := CleanHTML(content, 0)
		if err != nil {
			return nil, err
		}
		content = cleaned.HTML
	}

	return &capture.Markup{Content: content, Selector: opts.Selector}, nil
}
