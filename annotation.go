package trapdoc

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// defaultStrokeWidth is the stroke width written on annotation path elements.
const defaultStrokeWidth = 2

// Annotation is one polygon traced over a photo, usually by a detector run.
// The contour lives in the pixel space of the decoded photo; the color is
// the stroke the polygon is drawn with. The owner field is a lookup handle
// to the owning image, the image keeps the owning list.
type Annotation struct {
	Contour Contour
	Color   string

	owner string
}

// NewAnnotation wraps a contour and its stroke color into an annotation.
func NewAnnotation(contour Contour, color string) *Annotation {
	return &Annotation{Contour: contour, Color: color}
}

// Owner returns the identity key of the image the annotation is attached to,
// or an empty string when it is not attached yet.
func (a *Annotation) Owner() string {
	return a.owner
}

// Clone returns a deep copy of the annotation.
func (a *Annotation) Clone() *Annotation {
	return &Annotation{Contour: a.Contour.Clone(), Color: a.Color, owner: a.owner}
}

// PathElement renders the annotation as a closed path element at the given
// document scale. Serializing an empty contour is an error so that a broken
// annotation aborts the container write before anything is published.
func (a *Annotation) PathElement(scale Scale) (style, d string, err error) {
	if len(a.Contour) == 0 {
		return "", "", validationErrorf("cannot serialize an annotation with an empty contour")
	}

	var b strings.Builder
	for i, pt := range a.Contour {
		if i == 0 {
			b.WriteString("M ")
		} else {
			b.WriteString(" L ")
		}
		b.WriteString(formatCoord(float64(pt.X) * scale.X))
		b.WriteByte(',')
		b.WriteString(formatCoord(float64(pt.Y) * scale.Y))
	}
	b.WriteString(" Z")

	style = fmt.Sprintf("fill:none;stroke:%s;stroke-width:%d", a.Color, defaultStrokeWidth)
	return style, b.String(), nil
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// PathToAnnotations decodes a path element back into annotations: the path
// data is reduced to contours, each surviving contour is wrapped with the
// stroke color found in the style attribute.
func PathToAnnotations(style, d string, scale Scale) ([]*Annotation, []Warning, error) {
	props, err := parseStyle(style)
	if err != nil {
		return nil, nil, err
	}
	stroke, ok := props["stroke"]
	if !ok {
		return nil, nil, formatErrorf("path element style %q carries no stroke", style)
	}

	contours, warnings, err := ExtractContours(d, scale)
	if err != nil {
		return nil, warnings, err
	}

	out := make([]*Annotation, 0, len(contours))
	for _, c := range contours {
		out = append(out, NewAnnotation(c, stroke))
	}
	return out, warnings, nil
}

// parseStyle splits a style attribute of the form k1:v1;k2:v2 into a map.
func parseStyle(style string) (map[string]string, error) {
	props := make(map[string]string)
	for _, decl := range strings.Split(style, ";") {
		decl = strings.TrimSpace(decl)
		if decl == "" {
			continue
		}
		k, v, found := strings.Cut(decl, ":")
		if !found {
			return nil, formatErrorf("malformed style declaration %q", decl)
		}
		props[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return props, nil
}

// annotationJSON is the sidecar wire form of one annotation.
type annotationJSON struct {
	Contour [][2]int `json:"contour"`
	Color   string   `json:"color"`
}

// MarshalJSON encodes the annotation in the sidecar form, the contour as a
// plain list of [x, y] pairs with no scale correction.
func (a *Annotation) MarshalJSON() ([]byte, error) {
	wire := annotationJSON{
		Contour: make([][2]int, len(a.Contour)),
		Color:   a.Color,
	}
	for i, pt := range a.Contour {
		wire.Contour[i] = [2]int{pt.X, pt.Y}
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes the sidecar form of one annotation.
func (a *Annotation) UnmarshalJSON(data []byte) error {
	var wire annotationJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return &FormatError{Reason: "malformed annotation document", Err: err}
	}
	a.Contour = make(Contour, len(wire.Contour))
	for i, pt := range wire.Contour {
		a.Contour[i] = Point{X: pt[0], Y: pt[1]}
	}
	a.Color = wire.Color
	return nil
}

// Sidecar is the plain JSON annotation document stored next to a photo when
// annotations travel outside a container: the tagged metadata subset plus
// the annotation list.
type Sidecar struct {
	Metadata    Metadata      `json:"metadata"`
	Annotations []*Annotation `json:"annotations"`
}

// DecodeSidecar parses a sidecar document. Metadata keys are tolerated
// missing on read and default to an empty map.
func DecodeSidecar(data []byte) (*Sidecar, error) {
	var sc Sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, &FormatError{Reason: "malformed annotation sidecar", Err: err}
	}
	if sc.Metadata == nil {
		sc.Metadata = Metadata{}
	}
	return &sc, nil
}

// Encode renders the sidecar document as JSON.
func (sc *Sidecar) Encode() ([]byte, error) {
	return json.Marshal(sc)
}
