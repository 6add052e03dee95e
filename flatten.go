package trapdoc

import (
	"encoding/xml"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/trapdoc/trapdoc/imop"
)

// annotationRed is the fallback stroke color for annotations whose declared
// color cannot be parsed.
var annotationRed = color.NRGBA{R: 0xff, A: 0xff}

// PreviewOptions controls how WritePreview flattens the image. A nil options
// value renders at the true pixel size with plain alpha composition and no
// caption.
type PreviewOptions struct {
	// Scale resizes the output relative to the true pixel size. Zero or a
	// negative value keeps the original size.
	Scale float64

	// Timestamp stamps the capture time into the bottom left corner.
	Timestamp bool

	// Blend names an optional blend mode applied when the annotation
	// overlay is flattened onto the photo. Empty means plain source-over.
	Blend string
}

// WritePreview flattens the photo and its annotation overlay into a plain
// raster file at target. The annotations travel through a temporary overlay
// document and come back through the same path codec containers use, so the
// preview shows exactly what a container round trip preserves. The output
// format follows the target extension and the file is published atomically.
func (img *Image) WritePreview(target string, opts *PreviewOptions) error {
	if opts == nil {
		opts = &PreviewOptions{}
	}
	scale := opts.Scale
	if scale <= 0 {
		scale = 1
	}

	pix, err := img.Read()
	if err != nil {
		return err
	}
	trueW, trueH := pix.Bounds().Dx(), pix.Bounds().Dy()
	outW := int(math.Round(float64(trueW) * scale))
	outH := int(math.Round(float64(trueH) * scale))
	if outW < 1 || outH < 1 {
		return validationErrorf("preview scale %g collapses the image", opts.Scale)
	}

	var blend *imop.Blend
	if opts.Blend != "" {
		blend = imop.NewBlend()
		if err := blend.Set(opts.Blend); err != nil {
			return validationErrorf("%v", err)
		}
	}

	annotations, err := img.overlayRoundTrip(trueW, trueH)
	if err != nil {
		return err
	}

	base := pix
	if outW != trueW || outH != trueH {
		base = imaging.Resize(pix, outW, outH, imaging.Lanczos)
	}

	overlay := renderOverlay(annotations, scale, outW, outH)
	bmp := imop.NewBitmap(base.Bounds())
	op := imop.InitOp()
	op.Draw(bmp, overlay, base, blend)
	out := bmp.Img

	if opts.Timestamp {
		stamp := img.identity.CaptureTime.Format("2006-01-02 15:04:05")
		if err := drawTimestamp(out, stamp, scale); err != nil {
			return err
		}
	}

	ext := filepath.Ext(target)
	return writeFileAtomic(target, func(w io.Writer) error {
		return encodePhoto(w, out, ext)
	})
}

// overlayRoundTrip writes the annotations into a bitmap free, metadata free
// overlay document and reads them straight back, so the flattened polygons
// always pass through the same writer and parser the containers use. The
// temporary document is removed on every exit path.
func (img *Image) overlayRoundTrip(width, height int) ([]*Annotation, error) {
	tmp, err := os.CreateTemp("", "overlay-*.svg")
	if err != nil {
		return nil, ioError("create", "overlay document", err)
	}
	defer os.Remove(tmp.Name())

	err = writeOverlayDoc(tmp, img.annotations, width, height)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}

	f, err := os.Open(tmp.Name())
	if err != nil {
		return nil, ioError("open", tmp.Name(), err)
	}
	defer f.Close()
	return readOverlayDoc(f, width, height)
}

// writeOverlayDoc serializes the annotation paths into a document declaring
// the true pixel size and carrying neither raster payload nor metadata.
func writeOverlayDoc(w io.Writer, annotations []*Annotation, width, height int) error {
	_, err := fmt.Fprintf(w,
		`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" w="%d" h="%d">`,
		width, height, width, height)
	if err != nil {
		return err
	}
	for _, a := range annotations {
		style, d, err := a.PathElement(IdentityScale)
		if err != nil {
			return err
		}
		if _, err = fmt.Fprintf(w, `<path style="%s" d="%s"/>`, escapeXML(style), escapeXML(d)); err != nil {
			return err
		}
	}
	_, err = io.WriteString(w, "</svg>")
	return err
}

// readOverlayDoc parses the overlay paths back into pixel space contours.
// Degenerate polygons drop out here the same way they would on a container
// decode.
func readOverlayDoc(r io.Reader, width, height int) ([]*Annotation, error) {
	dec := xml.NewDecoder(r)

	var (
		sawRoot      bool
		declW, declH int
		annotations  []*Annotation
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, formatErrorf("malformed overlay document: %v", err)
		}
		el, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if !sawRoot {
			sawRoot = true
			if declW, declH, err = declaredDims(el.Attr, "root element"); err != nil {
				return nil, err
			}
			continue
		}
		if el.Name.Local != "path" {
			continue
		}
		got, _, err := PathToAnnotations(
			attrByLocal(el.Attr, "style"),
			attrByLocal(el.Attr, "d"),
			NewScale(declW, declH, width, height),
		)
		if err != nil {
			return nil, err
		}
		annotations = append(annotations, got...)
	}
	return annotations, nil
}

// renderOverlay rasterizes the annotation contours into a transparent layer
// matching the output size.
func renderOverlay(annotations []*Annotation, scale float64, w, h int) *image.NRGBA {
	overlay := image.NewNRGBA(image.Rect(0, 0, w, h))
	for _, a := range annotations {
		col, err := parseHexColor(a.Color)
		if err != nil {
			col = annotationRed
		}
		strokeContour(overlay, a.Contour, col, scale)
	}
	return overlay
}

// strokeContour draws a closed polygon outline. Every edge is rasterized as
// a quad of the stroke width and every vertex is patched with a square, so
// the joins stay solid at any angle.
func strokeContour(dst *image.NRGBA, contour Contour, col color.NRGBA, scale float64) {
	if len(contour) == 0 {
		return
	}
	half := float32(math.Max(1, math.Round(defaultStrokeWidth*scale)) / 2)

	r := vector.NewRasterizer(dst.Bounds().Dx(), dst.Bounds().Dy())
	n := len(contour)
	for i := 0; i < n; i++ {
		px := float32(float64(contour[i].X) * scale)
		py := float32(float64(contour[i].Y) * scale)
		qx := float32(float64(contour[(i+1)%n].X) * scale)
		qy := float32(float64(contour[(i+1)%n].Y) * scale)

		dx, dy := qx-px, qy-py
		length := float32(math.Hypot(float64(dx), float64(dy)))
		if length == 0 {
			continue
		}
		// The edge quads have to share the orientation of the vertex
		// squares below, otherwise the accumulated winding cancels where
		// they overlap.
		nx := dy / length * half
		ny := -dx / length * half

		r.MoveTo(px+nx, py+ny)
		r.LineTo(qx+nx, qy+ny)
		r.LineTo(qx-nx, qy-ny)
		r.LineTo(px-nx, py-ny)
		r.ClosePath()
	}
	for _, p := range contour {
		x := float32(float64(p.X) * scale)
		y := float32(float64(p.Y) * scale)

		r.MoveTo(x-half, y-half)
		r.LineTo(x+half, y-half)
		r.LineTo(x+half, y+half)
		r.LineTo(x-half, y+half)
		r.ClosePath()
	}
	r.Draw(dst, dst.Bounds(), image.NewUniform(col), image.Point{})
}

// parseHexColor decodes a #rgb or #rrggbb color reference.
func parseHexColor(s string) (color.NRGBA, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "#") {
		return color.NRGBA{}, formatErrorf("invalid color reference %q", s)
	}
	hex := s[1:]
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.NRGBA{}, formatErrorf("invalid color reference %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, formatErrorf("invalid color reference %q", s)
	}
	return color.NRGBA{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
		A: 0xff,
	}, nil
}

// drawTimestamp stamps the capture time into the bottom left corner, white
// over a one pixel shadow so it stays readable on any backdrop.
func drawTimestamp(dst *image.NRGBA, stamp string, scale float64) error {
	fnt, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return err
	}
	size := math.Max(12, 26*scale)
	face, err := opentype.NewFace(fnt, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return err
	}
	defer face.Close()

	margin := int(math.Round(size / 2))
	dot := fixed.P(margin, dst.Bounds().Dy()-margin)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.NRGBA{A: 0xff}),
		Face: face,
		Dot:  dot.Add(fixed.P(1, 1)),
	}
	d.DrawString(stamp)

	d.Src = image.NewUniform(color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff})
	d.Dot = dot
	d.DrawString(stamp)
	return nil
}
