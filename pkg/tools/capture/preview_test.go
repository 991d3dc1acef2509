package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/shotscript/pkg/browser/browsertest"
	artifact "github.com/entrhq/shotscript/pkg/capture"
)

func TestMakePreview(t *testing.T) {
	tests := []struct {
		name       string
		data       []byte
		max        int
		wantMIME   string
		wantWidth  int
		wantHeight int
	}{
		{"png downscaled", browsertest.Image(artifact.ImagePNG, 200, 100), 50, "image/png", 50, 25},
		{"jpeg downscaled", browsertest.Image(artifact.ImageJPEG, 100, 400), 100, "image/jpeg", 25, 100},
		{"already small", browsertest.Image(artifact.ImagePNG, 30, 20), 50, "image/png", 30, 20},
		{"no limit", browsertest.Image(artifact.ImagePNG, 300, 200), 0, "image/png", 300, 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := MakePreview(tt.data, tt.max)
			require.NoError(t, err)

			assert.Equal(t, tt.wantMIME, p.MimeType)
			assert.Equal(t, tt.wantMIME, DetectMIME(p.Data))
			assert.Equal(t, tt.wantWidth, p.Width)
			assert.Equal(t, tt.wantHeight, p.Height)
		})
	}
}

func TestMakePreview_KeepsSourceDimensions(t *testing.T) {
	p, err := MakePreview(browsertest.Image(artifact.ImagePNG, 640, 480), 64)
	require.NoError(t, err)
	assert.Equal(t, 640, p.SourceWidth)
	assert.Equal(t, 480, p.SourceHeight)
	assert.Equal(t, 64, p.Width)
	assert.Equal(t, 48, p.Height)
}

func TestMakePreview_RejectsNonImages(t *testing.T) {
	_, err := MakePreview([]byte("<html><body>not an image</body></html>"), 64)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported preview type")
}

func TestMakePreview_RejectsCorruptImage(t *testing.T) {
	data := browsertest.Image(artifact.ImagePNG, 10, 10)
	_, err := MakePreview(data[:len(data)/2], 64)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode image")
}
