package imagefetch

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"math"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"go.klb.dev/clipdrag/internal/progress"
)

// prepared is an image ready for the clipboard.
type prepared struct {
	PNG            []byte
	Format         string
	SrcW, SrcH     int
	OutW, OutH     int
	DownscaledFrom string
}

// prepare decodes b, downscales it to the clipboard limits and encodes it
// as PNG.
func prepare(b []byte, cfg Config) (*prepared, error) {
	hdr, format, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return nil, progress.Wrap(progress.CodeFormatInvalid, err, "unsupported image format")
	}
	if px := int64(hdr.Width) * int64(hdr.Height); px > cfg.MaxDecodedPixels {
		return nil, progress.Errorf(progress.CodeResourceLimit, "image has %d pixels (limit %d)", px, cfg.MaxDecodedPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, progress.Wrap(progress.CodeDecodeFailed, err, "decode "+format)
	}

	src := img.Bounds()
	out := &prepared{Format: format, SrcW: src.Dx(), SrcH: src.Dy(), OutW: src.Dx(), OutH: src.Dy()}
	if w, h, ok := fitWithin(src.Dx(), src.Dy(), cfg.MaxDimension, cfg.TargetPixels); ok {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, src, draw.Over, nil)
		img = dst
		out.OutW, out.OutH = w, h
		out.DownscaledFrom = fmt.Sprintf("%dx%d", src.Dx(), src.Dy())
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, progress.Wrap(progress.CodeDecodeFailed, err, "encode png")
	}
	out.PNG = buf.Bytes()
	return out, nil
}

// fitWithin returns the size w x h must be scaled to so that neither side
// exceeds maxDim and the area does not exceed targetPixels. ok is false
// when no scaling is needed.
func fitWithin(w, h, maxDim int, targetPixels int64) (int, int, bool) {
	if w <= 0 || h <= 0 {
		return w, h, false
	}
	area := int64(w) * int64(h)
	if w <= maxDim && h <= maxDim && area <= targetPixels {
		return w, h, false
	}
	scale := math.Min(float64(maxDim)/float64(w), float64(maxDim)/float64(h))
	scale = math.Min(scale, math.Sqrt(float64(targetPixels)/float64(area)))
	scale = math.Min(scale, 1)
	tw := max(int(math.Floor(float64(w)*scale)), 1)
	th := max(int(math.Floor(float64(h)*scale)), 1)
	return tw, th, true
}
