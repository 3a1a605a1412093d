package storage

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	xdraw "golang.org/x/image/draw"
)

// NormalizeOptions bounds the output of normalizeImage.
type NormalizeOptions struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
}

func (o NormalizeOptions) withDefaults() NormalizeOptions {
	if o.MaxWidth <= 0 {
		o.MaxWidth = 1920
	}
	if o.MaxHeight <= 0 {
		o.MaxHeight = 1080
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = 90
	}
	return o
}

// resizeToFit scales img to fit within maxW×maxH while preserving aspect ratio.
// If the image already fits, it is returned unchanged (no enlargement).
func resizeToFit(img image.Image, maxW, maxH int) image.Image {
	bounds := img.Bounds()
	origW, origH := bounds.Dx(), bounds.Dy()
	if origW <= maxW && origH <= maxH {
		return img
	}

	scale := float64(maxW) / float64(origW)
	if s := float64(maxH) / float64(origH); s < scale {
		scale = s
	}
	newW := max(int(float64(origW)*scale), 1)
	newH := max(int(float64(origH)*scale), 1)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, xdraw.Over, nil)
	return dst
}

// flatten composites img over an opaque white canvas anchored at (0,0).
func flatten(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, xdraw.Src)
	xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Over)
	return dst
}

// normalizeImage decodes data, shrinks it to the configured box and
// re-encodes it as JPEG. Re-encoding drops EXIF and any other metadata.
func normalizeImage(data []byte, opts NormalizeOptions) ([]byte, image.Point, error) {
	opts = opts.withDefaults()

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, image.Point{}, fmt.Errorf("decode: %w", err)
	}

	out := flatten(resizeToFit(img, opts.MaxWidth, opts.MaxHeight))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, image.Point{}, fmt.Errorf("encode: %w", err)
	}
	return buf.Bytes(), out.Bounds().Size(), nil
}
