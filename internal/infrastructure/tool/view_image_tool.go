package tool

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	domaintool "github.com/codex-go/codex/internal/domain/tool"
	"go.uber.org/zap"
)

// maxImageWidth/maxImageHeight bound the encoded image sent to the model
// (spec 4.C: "resized so that max dimension <= (2048, 768)").
const (
	maxImageWidth  = 2048
	maxImageHeight = 768
)

var supportedImageMIME = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// ViewImageTool materializes a local image file as base64-encoded PNG input
// for the model. Grounded on haasonsaas-nexus's internal/media/processor.go,
// which reads local attachments directly via os.ReadFile and resizes with
// golang.org/x/image/draw rather than shelling out.
type ViewImageTool struct {
	logger *zap.Logger
}

func NewViewImageTool(logger *zap.Logger) *ViewImageTool {
	return &ViewImageTool{logger: logger}
}

func (t *ViewImageTool) Name() string         { return "view_image" }
func (t *ViewImageTool) Kind() domaintool.Kind { return domaintool.KindRead }
func (t *ViewImageTool) Description() string {
	return `Attach a local image file to the conversation so the model can see it. Provide an absolute path to an image file (png, jpeg, gif, or webp).`
}

func (t *ViewImageTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Absolute path to the local image file",
			},
		},
		"required": []string{"path"},
	}
}

func (t *ViewImageTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return &domaintool.Result{Success: false, Error: "path is required"}, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return &domaintool.Result{Success: false, Error: fmt.Sprintf("Codex could not read the local image at %s: %s", path, err)}, nil
	}
	if info.IsDir() {
		return &domaintool.Result{Success: true, Output: fmt.Sprintf("image path `%s` is not a file", path)}, nil
	}

	mimeType := mimeFromExt(filepath.Ext(path))
	if !supportedImageMIME[mimeType] {
		return &domaintool.Result{
			Success: true,
			Output:  fmt.Sprintf("Codex could not read the local image at %s: unsupported MIME type `%s`", path, mimeType),
		}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return &domaintool.Result{Success: false, Error: fmt.Sprintf("Codex could not read the local image at %s: %s", path, err)}, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return &domaintool.Result{Success: false, Error: fmt.Sprintf("Codex could not read the local image at %s: %s", path, err)}, nil
	}

	img = resizeWithinBounds(img, maxImageWidth, maxImageHeight)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return &domaintool.Result{Success: false, Error: fmt.Sprintf("encode image: %s", err)}, nil
	}
	encoded := base64.StdEncoding.EncodeToString(buf.Bytes())

	t.logger.Info("view_image attached image", zap.String("path", path), zap.Int("bytes", buf.Len()))

	return &domaintool.Result{
		Success: true,
		Output:  fmt.Sprintf("attached image %s", path),
		Metadata: map[string]interface{}{
			"input_image":    true,
			"image_data":     encoded,
			"image_mimetype": "image/png",
		},
	}, nil
}

// resizeWithinBounds scales img down (never up) so both dimensions fit
// within maxW x maxH, preserving aspect ratio.
func resizeWithinBounds(img image.Image, maxW, maxH int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxW && h <= maxH {
		return img
	}

	scale := float64(maxW) / float64(w)
	if hScale := float64(maxH) / float64(h); hScale < scale {
		scale = hScale
	}
	newW := int(float64(w) * scale)
	newH := int(float64(h) * scale)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

func mimeFromExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
