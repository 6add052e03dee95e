package trapdoc

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func renderPreview(t *testing.T, img *Image, opts *PreviewOptions) *image.NRGBA {
	t.Helper()

	target := filepath.Join(t.TempDir(), "preview.png")
	if err := img.WritePreview(target, opts); err != nil {
		t.Fatalf("Rendering the preview failed: %v", err)
	}
	f, err := os.Open(target)
	if err != nil {
		t.Fatalf("Opening the preview failed: %v", err)
	}
	defer f.Close()

	decoded, err := png.Decode(f)
	if err != nil {
		t.Fatalf("Decoding the preview failed: %v", err)
	}
	return imgToNRGBA(decoded)
}

func TestPreview_ScaledRasterWithAnnotations(t *testing.T) {
	img := makeTestImage(t, 20, 10)
	img.SetAnnotations([]*Annotation{
		NewAnnotation(Contour{{5, 5}, {15, 5}, {10, 9}}, "#00ff00"),
	})

	out := renderPreview(t, img, &PreviewOptions{Scale: 2})
	if b := out.Bounds(); b.Dx() != 40 || b.Dy() != 20 {
		t.Fatalf("Preview size expected to be 40x20. Got %dx%d", b.Dx(), b.Dy())
	}

	// The contour vertices land at the scaled coordinates.
	green := color.NRGBA{G: 0xff, A: 0xff}
	if got := out.NRGBAAt(10, 10); got != green {
		t.Errorf("Stroke color at the scaled vertex expected to be %v. Got %v", green, got)
	}
	if got := out.NRGBAAt(38, 2); got == green {
		t.Errorf("The photo outside the stroke expected to stay uncovered")
	}
}

func TestPreview_TimestampChangesOutput(t *testing.T) {
	img := makeTestImage(t, 64, 48)

	plain := renderPreview(t, img, nil)
	stamped := renderPreview(t, img, &PreviewOptions{Timestamp: true})

	if bytes.Equal(plain.Pix, stamped.Pix) {
		t.Errorf("The timestamp caption expected to alter the rendered pixels")
	}
}

func TestPreview_BlendModeApplies(t *testing.T) {
	img := makeTestImage(t, 20, 10)
	img.SetAnnotations([]*Annotation{
		NewAnnotation(Contour{{5, 5}, {15, 5}, {10, 9}}, "#00ff00"),
	})

	plain := renderPreview(t, img, nil)
	blended := renderPreview(t, img, &PreviewOptions{Blend: "multiply"})

	if bytes.Equal(plain.Pix, blended.Pix) {
		t.Errorf("The blend mode expected to alter the flattened pixels")
	}

	target := filepath.Join(t.TempDir(), "preview.png")
	err := img.WritePreview(target, &PreviewOptions{Blend: "nope"})
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Errorf("An unknown blend mode expected to return a ValidationError. Got %v", err)
	}
}

func TestPreview_CollapsingScaleRejected(t *testing.T) {
	img := makeTestImage(t, 20, 10)

	target := filepath.Join(t.TempDir(), "preview.png")
	err := img.WritePreview(target, &PreviewOptions{Scale: 0.001})
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Errorf("A collapsing scale expected to return a ValidationError. Got %v", err)
	}
}

func TestPreview_UnparsableColorFallsBack(t *testing.T) {
	img := makeTestImage(t, 20, 10)
	img.SetAnnotations([]*Annotation{
		NewAnnotation(Contour{{5, 5}, {15, 5}, {10, 9}}, "electric-mauve"),
	})

	out := renderPreview(t, img, nil)
	if got := out.NRGBAAt(5, 5); got != annotationRed {
		t.Errorf("Unparsable colors expected to fall back to %v. Got %v", annotationRed, got)
	}
}

func TestFlatten_ParseHexColor(t *testing.T) {
	cases := []struct {
		in       string
		expected color.NRGBA
		ok       bool
	}{
		{"#ff0000", color.NRGBA{R: 0xff, A: 0xff}, true},
		{"#0f0", color.NRGBA{G: 0xff, A: 0xff}, true},
		{" #336699 ", color.NRGBA{R: 0x33, G: 0x66, B: 0x99, A: 0xff}, true},
		{"red", color.NRGBA{}, false},
		{"#12345", color.NRGBA{}, false},
		{"#zzzzzz", color.NRGBA{}, false},
	}
	for _, tc := range cases {
		got, err := parseHexColor(tc.in)
		if tc.ok && err != nil {
			t.Errorf("Parsing %q failed: %v", tc.in, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("Parsing %q expected to fail", tc.in)
		}
		if got != tc.expected {
			t.Errorf("Color for %q expected to be %v. Got %v", tc.in, tc.expected, got)
		}
	}
}

func TestFlatten_TimestampUsesCaptureTime(t *testing.T) {
	captured := time.Date(2020, 6, 20, 21, 33, 24, 0, time.UTC)
	photo := makeTestPhoto(t, 320, 64)

	// The caption has to fit, otherwise the differing digits clip away.
	img, err := NewBufferImage(photo, "5c173ff2", captured)
	if err != nil {
		t.Fatalf("Creating the fixture image failed: %v", err)
	}
	other, err := NewBufferImage(photo, "5c173ff2", captured.Add(time.Hour))
	if err != nil {
		t.Fatalf("Creating the fixture image failed: %v", err)
	}

	a := renderPreview(t, img, &PreviewOptions{Timestamp: true})
	b := renderPreview(t, other, &PreviewOptions{Timestamp: true})
	if bytes.Equal(a.Pix, b.Pix) {
		t.Errorf("Different capture times expected to render different captions")
	}
}
