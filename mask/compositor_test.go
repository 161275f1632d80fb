package mask

import (
	"image"
	"image/color"
	"testing"

	"pixelstack/core"
)

// maskRef builds a black canvas of the given size with a white rectangle
// and encodes it as a data URI.
func maskRef(t *testing.T, w, h int, white image.Rectangle) core.ImageRef {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{A: 0xff}
			if image.Pt(x, y).In(white) {
				c = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
			}
			img.Set(x, y, c)
		}
	}
	ref, err := EncodeRef(img)
	if err != nil {
		t.Fatal(err)
	}
	return ref
}

func isWhite(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r == 0xffff && g == 0xffff && b == 0xffff
}

func TestCombine_Union(t *testing.T) {
	left := maskRef(t, 8, 8, image.Rect(0, 0, 4, 8))
	right := maskRef(t, 8, 8, image.Rect(4, 0, 8, 8))

	got := Combine([]Source{
		{Name: "left", Image: left},
		{Name: "right", Image: right},
	})
	if got == nil {
		t.Fatal("expected a combined mask")
	}
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			if !isWhite(got.At(x, y)) {
				t.Fatalf("pixel (%d,%d) not white in the union of two halves", x, y)
			}
		}
	}
}

func TestCombine_OverlapClampsAtWhite(t *testing.T) {
	full := maskRef(t, 4, 4, image.Rect(0, 0, 4, 4))

	got := Combine([]Source{
		{Name: "a", Image: full},
		{Name: "b", Image: full},
	})
	if got == nil {
		t.Fatal("expected a combined mask")
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			if !isWhite(got.At(x, y)) {
				t.Fatalf("pixel (%d,%d) overflowed instead of clamping", x, y)
			}
		}
	}
}

// Removing one of two fully overlapping masks must reproduce the
// remaining mask exactly, which only works because Combine recomputes
// from scratch instead of subtracting pixels.
func TestCombine_RecomputesAfterRemoval(t *testing.T) {
	a := Source{Name: "a", Image: maskRef(t, 8, 8, image.Rect(1, 1, 7, 7))}
	b := Source{Name: "b", Image: maskRef(t, 8, 8, image.Rect(1, 1, 7, 7))}

	both := Combine([]Source{a, b})
	only := Combine([]Source{a})
	if both == nil || only == nil {
		t.Fatal("expected combined masks")
	}

	want, err := Decode(a.Image)
	if err != nil {
		t.Fatal(err)
	}
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			if isWhite(only.At(x, y)) != isWhite(want.At(x, y)) {
				t.Fatalf("pixel (%d,%d) differs from the surviving mask", x, y)
			}
		}
	}
}

func TestCombine_DropsUndecodableMask(t *testing.T) {
	good := maskRef(t, 4, 4, image.Rect(0, 0, 4, 4))

	got := Combine([]Source{
		{Name: "broken", Image: "data:image/png;base64,not-base64!"},
		{Name: "good", Image: good},
	})
	if got == nil {
		t.Fatal("a single bad mask must not sink the whole combination")
	}
	if !isWhite(got.At(2, 2)) {
		t.Error("surviving mask missing from the composite")
	}
}

func TestCombine_NoValidMasksIsNil(t *testing.T) {
	if got := Combine(nil); got != nil {
		t.Errorf("Combine(nil) = %v, want nil", got)
	}
	got := Combine([]Source{{Name: "broken", Image: "garbage"}})
	if got != nil {
		t.Errorf("all-invalid selection = %v, want nil", got)
	}
}

func TestCombine_ScalesMismatchedSizes(t *testing.T) {
	big := maskRef(t, 8, 8, image.Rect(0, 0, 8, 8))
	small := maskRef(t, 4, 4, image.Rect(0, 0, 4, 4))

	got := Combine([]Source{
		{Name: "big", Image: big},
		{Name: "small", Image: small},
	})
	if got == nil {
		t.Fatal("expected a combined mask")
	}
	b := got.Bounds()
	if b.Dx() != 8 || b.Dy() != 8 {
		t.Errorf("canvas is %dx%d, want the first mask's 8x8", b.Dx(), b.Dy())
	}
}

func TestDecode_RoundTrip(t *testing.T) {
	ref := maskRef(t, 4, 4, image.Rect(0, 0, 2, 2))

	img, err := Decode(ref)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 4 || img.Bounds().Dy() != 4 {
		t.Errorf("decoded bounds = %v", img.Bounds())
	}
	if !isWhite(img.At(1, 1)) || isWhite(img.At(3, 3)) {
		t.Error("decoded pixels do not match the encoded mask")
	}
}

func TestDecode_RejectsGarbage(t *testing.T) {
	for _, ref := range []core.ImageRef{"", "!!!", "data:image/png;base64,QUJD"} {
		if _, err := Decode(ref); err == nil {
			t.Errorf("Decode(%q) succeeded, want error", ref)
		}
	}
}
