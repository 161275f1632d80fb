// Package mask combines per-object selection masks into a single mask
// image used as an area-of-effect input for edit operations.
package mask

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"

	_ "image/jpeg"

	"github.com/sirupsen/logrus"
	xdraw "golang.org/x/image/draw"

	"pixelstack/core"
)

// Source is one selection mask: a detected object's name and its mask
// image. Sources are transient session state and are never persisted in
// history.
type Source struct {
	Name  string        `json:"name"`
	Image core.ImageRef `json:"maskImage"`
}

// Combine unions an ordered collection of masks into one image: a black
// canvas sized to the first successfully decoded mask, with every valid
// mask blended additively onto it. Masks that fail to decode are dropped
// with a warning and compositing proceeds; if no valid mask remains the
// result is nil ("no mask"), not an empty image.
//
// The combination must always be recomputed from scratch when the
// selection set changes: removing one of several overlapping masks cannot
// be expressed as subtracting its pixels from a previous composite.
func Combine(sources []Source) image.Image {
	var canvas *image.RGBA

	for _, src := range sources {
		img, err := Decode(src.Image)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"mask": src.Name,
			}).WithError(err).Warn("Dropping mask that failed to decode")
			continue
		}

		if canvas == nil {
			b := img.Bounds()
			canvas = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
			draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
		}

		addLighter(canvas, fit(img, canvas.Bounds()))
	}

	if canvas == nil {
		return nil
	}
	return canvas
}

// fit scales a mask to the canvas bounds when its size differs.
func fit(img image.Image, bounds image.Rectangle) image.Image {
	if img.Bounds().Dx() == bounds.Dx() && img.Bounds().Dy() == bounds.Dy() {
		return img
	}
	scaled := image.NewRGBA(bounds)
	xdraw.BiLinear.Scale(scaled, bounds, img, img.Bounds(), xdraw.Over, nil)
	return scaled
}

// addLighter blends src onto dst with the additive "lighter" operator:
// per-channel sum, clamped at white. The union of two overlapping masks is
// therefore the same as either one alone over the overlap.
func addLighter(dst *image.RGBA, src image.Image) {
	b := dst.Bounds()
	sb := src.Bounds()
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			sr, sg, sbl, sa := src.At(sb.Min.X+x, sb.Min.Y+y).RGBA()
			dr, dg, db, da := dst.At(b.Min.X+x, b.Min.Y+y).RGBA()

			dst.Set(b.Min.X+x, b.Min.Y+y, color.RGBA{
				R: clamp8(dr + sr),
				G: clamp8(dg + sg),
				B: clamp8(db + sbl),
				A: clamp8(da + sa),
			})
		}
	}
}

func clamp8(v uint32) uint8 {
	// RGBA() returns 16-bit channels.
	if v > 0xffff {
		v = 0xffff
	}
	return uint8(v >> 8)
}

// Decode turns an image reference into pixels. Data URIs and bare base64
// payloads are supported; anything else, or a zero-sized image, is a
// decode failure.
func Decode(ref core.ImageRef) (image.Image, error) {
	payload := string(ref)
	if idx := strings.Index(payload, ";base64,"); idx >= 0 {
		payload = payload[idx+len(";base64,"):]
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decoding mask payload: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding mask image: %w", err)
	}
	if img.Bounds().Dx() == 0 || img.Bounds().Dy() == 0 {
		return nil, fmt.Errorf("mask image has zero size")
	}
	return img, nil
}

// EncodeRef encodes a combined mask as a PNG data URI so it can travel to
// the render collaborator as an opaque image reference.
func EncodeRef(img image.Image) (core.ImageRef, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encoding mask: %w", err)
	}
	return core.ImageRef("data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())), nil
}
