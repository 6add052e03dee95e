package imop

import (
	"fmt"
	"image"
	"image/color"

	"github.com/trapdoc/trapdoc/utils"
)

const (
	Clear   = "clear"
	Copy    = "copy"
	Dst     = "dst"
	SrcOver = "src_over"
	DstOver = "dst_over"
	SrcIn   = "src_in"
	DstIn   = "dst_in"
	SrcOut  = "src_out"
	DstOut  = "dst_out"
	SrcAtop = "src_atop"
	DstAtop = "dst_atop"
	Xor     = "xor"
)

// Bitmap is the destination buffer of a composition.
type Bitmap struct {
	Img *image.NRGBA
}

// Composite holds the currently active composition operation.
type Composite struct {
	current string
	ops     []string
}

func NewBitmap(rect image.Rectangle) *Bitmap {
	return &Bitmap{
		Img: image.NewNRGBA(rect),
	}
}

// InitOp returns a new composition with source-over as the active operation.
func InitOp() *Composite {
	return &Composite{
		current: SrcOver,
		ops: []string{
			Clear,
			Copy,
			Dst,
			SrcOver,
			DstOver,
			SrcIn,
			DstIn,
			SrcOut,
			DstOut,
			SrcAtop,
			DstAtop,
			Xor,
		},
	}
}

// Set activates one of the supported composition operations.
func (op *Composite) Set(cop string) error {
	if !utils.Contains(op.ops, cop) {
		return fmt.Errorf("unsupported composite operation: %q", cop)
	}
	op.current = cop
	return nil
}

// Get returns the currently active composition operation.
func (op *Composite) Get() string {
	return op.current
}

// Draw composes the source with the backdrop into the bitmap using the
// active Porter-Duff operation. When blend holds an active mode the source
// color is first mixed with the backdrop color, so the graphic element keeps
// its shape but picks up the backdrop tones.
func (op *Composite) Draw(bitmap *Bitmap, src, backdrop *image.NRGBA, blend *Blend) {
	dx, dy := src.Bounds().Dx(), src.Bounds().Dy()

	for x := 0; x < dx; x++ {
		for y := 0; y < dy; y++ {
			c1 := src.NRGBAAt(x, y)
			c2 := backdrop.NRGBAAt(x, y)

			rsn := float64(c1.R) / 255
			gsn := float64(c1.G) / 255
			bsn := float64(c1.B) / 255
			asn := float64(c1.A) / 255

			rbn := float64(c2.R) / 255
			gbn := float64(c2.G) / 255
			bbn := float64(c2.B) / 255
			abn := float64(c2.A) / 255

			// The blending step replaces the source color with a mix of
			// the source and the backdrop, weighted by the backdrop alpha.
			// A fully transparent backdrop leaves the source untouched.
			if blend != nil && blend.Get() != "" {
				rsn = (1-abn)*rsn + abn*blend.apply(rsn, rbn)
				gsn = (1-abn)*gsn + abn*blend.apply(gsn, gbn)
				bsn = (1-abn)*bsn + abn*blend.apply(bsn, bbn)
			}

			// The fractional terms of the alpha composition formula,
			// co = as*Fa*Cs + ab*Fb*Cb.
			var fa, fb float64
			switch op.current {
			case Clear:
				fa, fb = 0, 0
			case Copy:
				fa, fb = 1, 0
			case Dst:
				fa, fb = 0, 1
			case SrcOver:
				fa, fb = 1, 1-asn
			case DstOver:
				fa, fb = 1-abn, 1
			case SrcIn:
				fa, fb = abn, 0
			case DstIn:
				fa, fb = 0, asn
			case SrcOut:
				fa, fb = 1-abn, 0
			case DstOut:
				fa, fb = 0, 1-asn
			case SrcAtop:
				fa, fb = abn, 1-asn
			case DstAtop:
				fa, fb = 1-abn, asn
			case Xor:
				fa, fb = 1-abn, 1-asn
			}

			rn := asn*fa*rsn + abn*fb*rbn
			gn := asn*fa*gsn + abn*fb*gbn
			bn := asn*fa*bsn + abn*fb*bbn
			an := asn*fa + abn*fb

			if an > 0 {
				rn /= an
				gn /= an
				bn /= an
			}

			bitmap.Img.Set(x, y, color.NRGBA{
				R: uint8(rn * 255),
				G: uint8(gn * 255),
				B: uint8(bn * 255),
				A: uint8(an * 255),
			})
		}
	}
}
