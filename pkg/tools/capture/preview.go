package capture

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
)

// DefaultPreviewDimension bounds the longest preview side when none is configured.
const DefaultPreviewDimension = 512

const previewQuality = 75

// Preview is a downscaled copy of a screenshot, small enough to inline in a
// tool response.
type Preview struct {
	Data     []byte
	MimeType string
	Width    int
	Height   int

	// SourceWidth and SourceHeight are the dimensions of the full capture
	SourceWidth  int
	SourceHeight int
}

// DetectMIME returns the MIME type from magic bytes.
func DetectMIME(data []byte) string {
	return mimetype.Detect(data).String()
}

// MakePreview fits data within maxDimension on both sides, keeping the
// aspect ratio and the source encoding. Images already small enough are
// re-encoded unchanged in size.
func MakePreview(data []byte, maxDimension int) (*Preview, error) {
	mime := mimetype.Detect(data)

	var format imaging.Format
	switch {
	case mime.Is("image/png"):
		format = imaging.PNG
	case mime.Is("image/jpeg"):
		format = imaging.JPEG
	default:
		return nil, fmt.Errorf("unsupported preview type: %s", mime.String())
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	p := &Preview{
		MimeType:     mime.String(),
		SourceWidth:  bounds.Dx(),
		SourceHeight: bounds.Dy(),
	}

	if maxDimension > 0 && (bounds.Dx() > maxDimension || bounds.Dy() > maxDimension) {
		img = imaging.Fit(img, maxDimension, maxDimension, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, imaging.JPEGQuality(previewQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}

	p.Data = buf.Bytes()
	p.Width = img.Bounds().Dx()
	p.Height = img.Bounds().Dy()
	return p, nil
}
