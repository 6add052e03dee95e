package imop

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlend_Basic(t *testing.T) {
	assert := assert.New(t)

	blend := NewBlend()
	assert.Empty(blend.Get())

	err := blend.Set("blend_mode_not_supported")
	assert.Error(err)
	assert.Empty(blend.Get())

	assert.NoError(blend.Set(Darken))
	assert.Equal(Darken, blend.Get())

	assert.NoError(blend.Set(Lighten))
	assert.Equal(Lighten, blend.Get())
}

func TestBlend_Modes(t *testing.T) {
	assert := assert.New(t)

	op := InitOp()
	blend := NewBlend()

	pinkFront := color.NRGBA{R: 214, G: 20, B: 65, A: 255}
	orangeBack := color.NRGBA{R: 250, G: 121, B: 17, A: 255}

	rect := image.Rect(0, 0, 1, 1)
	source := image.NewNRGBA(rect)
	backdrop := image.NewNRGBA(rect)
	draw.Draw(source, rect, &image.Uniform{pinkFront}, image.Point{}, draw.Src)
	draw.Draw(backdrop, rect, &image.Uniform{orangeBack}, image.Point{}, draw.Src)

	testCases := []struct {
		mode     string
		expected []uint8
	}{
		{Darken, []uint8{214, 20, 17, 255}},
		{Lighten, []uint8{250, 121, 65, 255}},
		{Multiply, []uint8{209, 9, 4, 255}},
		{Screen, []uint8{254, 131, 77, 255}},
		{Overlay, []uint8{253, 18, 8, 255}},
	}

	for _, tc := range testCases {
		t.Run(tc.mode, func(t *testing.T) {
			assert.NoError(blend.Set(tc.mode))

			bmp := NewBitmap(rect)
			op.Draw(bmp, source, backdrop, blend)

			assert.EqualValues(tc.expected, bmp.Img.Pix)
		})
	}
}

func TestBlend_TransparentBackdropKeepsSource(t *testing.T) {
	assert := assert.New(t)

	op := InitOp()
	blend := NewBlend()
	assert.NoError(blend.Set(Multiply))

	red := color.NRGBA{R: 214, G: 20, B: 65, A: 255}

	rect := image.Rect(0, 0, 1, 1)
	bmp := NewBitmap(rect)
	source := image.NewNRGBA(rect)
	backdrop := image.NewNRGBA(rect)
	draw.Draw(source, rect, &image.Uniform{red}, image.Point{}, draw.Src)

	// With nothing underneath, blending must not alter the source color.
	op.Draw(bmp, source, backdrop, blend)

	assert.EqualValues(red, bmp.Img.NRGBAAt(0, 0))
}
