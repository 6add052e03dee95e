// Package imop implements the Porter-Duff composition operations
// used for mixing a graphic element with its backdrop.
// Porter and Duff presented in their paper 12 different composition
// operations, but the image/draw core package implements only the
// source-over-destination and source. This package is aimed to overcome
// the missing composite operations.
//
// It is used to flatten the annotation overlay onto the photo when a
// container document is rendered into a plain raster preview, either with
// plain alpha composition or with one of the separable blend modes.
package imop

import (
	"fmt"

	"github.com/trapdoc/trapdoc/utils"
)

const (
	Darken   = "darken"
	Lighten  = "lighten"
	Multiply = "multiply"
	Screen   = "screen"
	Overlay  = "overlay"
)

// Blend holds the currently active blend mode.
type Blend struct {
	mode  string
	modes []string
}

// NewBlend initializes a new Blend.
func NewBlend() *Blend {
	return &Blend{
		modes: []string{Darken, Lighten, Multiply, Screen, Overlay},
	}
}

// Set activates one of the supported blend modes.
func (o *Blend) Set(mode string) error {
	if !utils.Contains(o.modes, mode) {
		return fmt.Errorf("unsupported blend mode: %q", mode)
	}
	o.mode = mode
	return nil
}

// Get returns the currently active blend mode.
func (o *Blend) Get() string {
	return o.mode
}

// apply mixes a source and a backdrop channel with the active mode. The
// channels are normalized to the [0, 1] interval.
func (o *Blend) apply(cs, cb float64) float64 {
	switch o.mode {
	case Darken:
		return utils.Min(cs, cb)
	case Lighten:
		return utils.Max(cs, cb)
	case Multiply:
		return cs * cb
	case Screen:
		return 1 - (1-cs)*(1-cb)
	case Overlay:
		if cb <= 0.5 {
			return 2 * cs * cb
		}
		return 1 - 2*(1-cs)*(1-cb)
	}
	return cs
}
