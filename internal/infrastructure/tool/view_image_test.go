package tool

import (
	"image"
	"testing"
)

func TestResizeWithinBounds_NoOpWhenAlreadySmall(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 50))
	out := resizeWithinBounds(img, maxImageWidth, maxImageHeight)
	if out.Bounds().Dx() != 100 || out.Bounds().Dy() != 50 {
		t.Errorf("expected unchanged dimensions, got %dx%d", out.Bounds().Dx(), out.Bounds().Dy())
	}
}

func TestResizeWithinBounds_ScalesDownPreservingAspect(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4096, 1536))
	out := resizeWithinBounds(img, maxImageWidth, maxImageHeight)
	if out.Bounds().Dx() > maxImageWidth || out.Bounds().Dy() > maxImageHeight {
		t.Fatalf("expected bounds within %dx%d, got %dx%d", maxImageWidth, maxImageHeight, out.Bounds().Dx(), out.Bounds().Dy())
	}
	wantW, wantH := maxImageWidth, maxImageHeight
	if out.Bounds().Dx() != wantW || out.Bounds().Dy() != wantH {
		t.Errorf("expected exact %dx%d for this 8:3 source, got %dx%d", wantW, wantH, out.Bounds().Dx(), out.Bounds().Dy())
	}
}

func TestMimeFromExt(t *testing.T) {
	cases := map[string]string{
		".png":  "image/png",
		".JPG":  "image/jpeg",
		".gif":  "image/gif",
		".webp": "image/webp",
		".bmp":  "application/octet-stream",
	}
	for ext, want := range cases {
		if got := mimeFromExt(ext); got != want {
			t.Errorf("mimeFromExt(%q) = %q, want %q", ext, got, want)
		}
	}
}
