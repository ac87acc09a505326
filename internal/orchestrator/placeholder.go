package orchestrator

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	"github.com/chiclooc-rgb/card-news-generator/internal/genai"
	"github.com/chiclooc-rgb/card-news-generator/internal/plan"
)

// placeholderSize returns the fallback image dimensions for an aspect ratio.
func placeholderSize(ratio string) (int, int) {
	switch ratio {
	case "1:1":
		return 400, 400
	case "9:16":
		return 360, 640
	default:
		return 400, 500
	}
}

func gradientStops(pt plan.PageType) (color.RGBA, color.RGBA) {
	switch pt {
	case plan.PageCover:
		return color.RGBA{0x2D, 0x1B, 0x4E, 0xFF}, color.RGBA{0x4A, 0x2D, 0x7A, 0xFF}
	case plan.PageOutro:
		return color.RGBA{0x4A, 0x2D, 0x7A, 0xFF}, color.RGBA{0x7C, 0x3A, 0xED, 0xFF}
	default:
		return color.RGBA{0xF7, 0xF8, 0xFA, 0xFF}, color.RGBA{0xE5, 0xE8, 0xEB, 0xFF}
	}
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*t + 0.5)
}

// Placeholder renders the local fallback image for a page as a PNG data URI:
// a diagonal gradient coloured by page type, sized by aspect ratio.
func Placeholder(pt plan.PageType, aspectRatio string) (string, error) {
	w, h := placeholderSize(aspectRatio)
	from, to := gradientStops(pt)

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	denom := float64(w*w + h*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// Projection of (x, y) onto the top-left to bottom-right diagonal.
			t := float64(x*w+y*h) / denom
			img.SetRGBA(x, y, color.RGBA{
				R: lerp(from.R, to.R, t),
				G: lerp(from.G, to.G, t),
				B: lerp(from.B, to.B, t),
				A: 0xFF,
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return genai.EncodeDataURI("image/png", buf.Bytes()), nil
}
