package trapdoc

import (
	"math"
	"strconv"
)

// continuityTol is the maximum distance, in document units, between the end
// of a segment and the start of the next one within a single sub-path.
// Gaps up to the tolerance are treated as numerical noise left behind by
// editing tools, anything larger is a broken document.
const continuityTol = 1e-3

// Point is one integer pixel coordinate of a contour.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Contour is an ordered sequence of points outlining one polygon annotation
// in the pixel space of the decoded photo.
type Contour []Point

// Clone returns a copy of the contour.
func (c Contour) Clone() Contour {
	out := make(Contour, len(c))
	copy(out, c)
	return out
}

// Scale holds the per axis ratio between the declared size of the embedded
// bitmap and its true pixel size. Document coordinates divided by the ratio
// yield pixel coordinates.
type Scale struct {
	X float64
	Y float64
}

// IdentityScale is the scale of a document whose declared bitmap size equals
// the true pixel size.
var IdentityScale = Scale{X: 1, Y: 1}

// NewScale computes the scale correction ratios from the declared and the
// true pixel dimensions of the embedded bitmap.
func NewScale(declWidth, declHeight, trueWidth, trueHeight int) Scale {
	return Scale{
		X: float64(declWidth) / float64(trueWidth),
		Y: float64(declHeight) / float64(trueHeight),
	}
}

type vec struct {
	x, y float64
}

func dist(a, b vec) float64 {
	return math.Hypot(a.x-b.x, a.y-b.y)
}

// pathSegment is one line or curve reduced to its anchor points. Curves are
// treated as polylines through their endpoints, matching the convention of
// the writer which samples polygons the same way.
type pathSegment struct {
	from, to vec
}

// subPath is a run of connected segments. A sub-path is closed when it was
// terminated by a closepath command.
type subPath struct {
	segs   []pathSegment
	closed bool
}

// ExtractContours parses a path data string and converts every sub-path into
// an integer pixel contour. The steps are: split the path into sub-paths,
// sample the segment anchor points, verify adjacent segments stay within the
// continuity tolerance, divide each coordinate by the per axis scale ratio
// and round to the nearest integer. Sub-paths reduced to two or fewer points
// are dropped with a warning instead of failing the decode.
func ExtractContours(d string, scale Scale) ([]Contour, []Warning, error) {
	if !(scale.X > 0) || !(scale.Y > 0) {
		return nil, nil, validationErrorf("scale ratios must be positive, got (%g, %g)", scale.X, scale.Y)
	}

	subPaths, err := parsePathData(d)
	if err != nil {
		return nil, nil, err
	}

	var (
		out      []Contour
		warnings []Warning
	)
	for _, sp := range subPaths {
		if len(sp.segs) == 0 {
			continue
		}

		for i := 1; i < len(sp.segs); i++ {
			if gap := dist(sp.segs[i-1].to, sp.segs[i].from); gap > continuityTol {
				return nil, nil, formatErrorf("discontinuous path: %g gap between segments", gap)
			}
		}

		anchors := make([]vec, 0, len(sp.segs)+1)
		for _, seg := range sp.segs {
			anchors = append(anchors, seg.from)
		}
		if !sp.closed {
			anchors = append(anchors, sp.segs[len(sp.segs)-1].to)
		}

		contour := make(Contour, len(anchors))
		for i, a := range anchors {
			contour[i] = Point{
				X: int(math.Round(a.x / scale.X)),
				Y: int(math.Round(a.y / scale.Y)),
			}
		}

		if len(contour) <= 2 {
			warnings = append(warnings, warnf("dropped polygon with only %d points", len(contour)))
			continue
		}
		out = append(out, contour)
	}
	return out, warnings, nil
}

// parsePathData reduces a path data string to sub-paths of anchor segments.
// The accepted vocabulary is the one the writer produces: absolute and
// relative moveto, lineto, cubic curves and closepath, with implicit command
// repetition and comma or whitespace separators. A moveto after a closepath
// starts a new sub-path; a moveto interrupting an open sub-path is absorbed
// when the jump stays within the continuity tolerance and is a broken
// document otherwise.
func parsePathData(d string) ([]subPath, error) {
	var (
		r        = pathReader{src: d}
		subPaths []subPath
		pen      vec
		start    vec
		havePen  bool
		cmd      byte
	)

	current := func() *subPath {
		return &subPaths[len(subPaths)-1]
	}

	moveTo := func(pt vec) error {
		switch {
		case len(subPaths) == 0 || current().closed:
			subPaths = append(subPaths, subPath{})
		case len(current().segs) == 0:
			// Relocating the pen before anything was drawn.
		default:
			if gap := dist(pen, pt); gap > continuityTol {
				return formatErrorf("discontinuous path: %g gap at moveto", gap)
			}
			// Sub-tolerance jump: numerical noise, the sub-path continues.
			pen = pt
			return nil
		}
		start = pt
		pen = pt
		return nil
	}

	lineTo := func(pt vec) {
		sp := current()
		sp.segs = append(sp.segs, pathSegment{from: pen, to: pt})
		pen = pt
	}

	for {
		if r.eof() {
			return subPaths, nil
		}

		if c, ok := r.command(); ok {
			switch c {
			case 'M', 'm', 'L', 'l', 'C', 'c', 'Z', 'z':
				cmd = c
			default:
				return nil, formatErrorf("unsupported path command %q", c)
			}
		} else {
			switch cmd {
			case 0:
				return nil, formatErrorf("path data must start with a command")
			case 'Z', 'z':
				return nil, formatErrorf("expected a command after closepath")
			case 'M':
				cmd = 'L' // implicit lineto after a moveto
			case 'm':
				cmd = 'l'
			}
		}

		switch cmd {
		case 'M', 'm':
			x, y, err := r.pair()
			if err != nil {
				return nil, err
			}
			pt := vec{x, y}
			if cmd == 'm' && havePen {
				pt = vec{pen.x + x, pen.y + y}
			}
			if err := moveTo(pt); err != nil {
				return nil, err
			}
			havePen = true

		case 'L', 'l':
			if !havePen {
				return nil, formatErrorf("path data must start with a moveto")
			}
			x, y, err := r.pair()
			if err != nil {
				return nil, err
			}
			pt := vec{x, y}
			if cmd == 'l' {
				pt = vec{pen.x + x, pen.y + y}
			}
			lineTo(pt)

		case 'C', 'c':
			if !havePen {
				return nil, formatErrorf("path data must start with a moveto")
			}
			// Two control point pairs followed by the endpoint; only the
			// endpoint matters for anchor sampling.
			var coords [6]float64
			for i := 0; i < 6; i += 2 {
				x, y, err := r.pair()
				if err != nil {
					return nil, err
				}
				coords[i], coords[i+1] = x, y
			}
			pt := vec{coords[4], coords[5]}
			if cmd == 'c' {
				pt = vec{pen.x + coords[4], pen.y + coords[5]}
			}
			lineTo(pt)

		case 'Z', 'z':
			if len(subPaths) == 0 {
				return nil, formatErrorf("closepath before any moveto")
			}
			sp := current()
			if len(sp.segs) > 0 && pen != start {
				sp.segs = append(sp.segs, pathSegment{from: pen, to: start})
			}
			sp.closed = true
			pen = start
		}
	}
}

// pathReader scans command letters and float coordinates out of a path data
// string, skipping comma and whitespace separators.
type pathReader struct {
	src string
	pos int
}

func (r *pathReader) skipSep() {
	for r.pos < len(r.src) {
		switch r.src[r.pos] {
		case ' ', '\t', '\n', '\r', ',':
			r.pos++
		default:
			return
		}
	}
}

func (r *pathReader) eof() bool {
	r.skipSep()
	return r.pos >= len(r.src)
}

// command consumes the next command letter, if any.
func (r *pathReader) command() (byte, bool) {
	r.skipSep()
	if r.pos >= len(r.src) {
		return 0, false
	}
	c := r.src[r.pos]
	if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') {
		r.pos++
		return c, true
	}
	return 0, false
}

// pair consumes two coordinates.
func (r *pathReader) pair() (float64, float64, error) {
	x, err := r.number()
	if err != nil {
		return 0, 0, err
	}
	y, err := r.number()
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

func (r *pathReader) number() (float64, error) {
	r.skipSep()
	start := r.pos

	if r.pos < len(r.src) && (r.src[r.pos] == '-' || r.src[r.pos] == '+') {
		r.pos++
	}
	digits := false
	for r.pos < len(r.src) && isDigit(r.src[r.pos]) {
		r.pos++
		digits = true
	}
	if r.pos < len(r.src) && r.src[r.pos] == '.' {
		r.pos++
		for r.pos < len(r.src) && isDigit(r.src[r.pos]) {
			r.pos++
			digits = true
		}
	}
	if !digits {
		if start >= len(r.src) {
			return 0, formatErrorf("unexpected end of path data")
		}
		return 0, formatErrorf("invalid coordinate at offset %d in path data", start)
	}
	if r.pos < len(r.src) && (r.src[r.pos] == 'e' || r.src[r.pos] == 'E') {
		mark := r.pos
		r.pos++
		if r.pos < len(r.src) && (r.src[r.pos] == '-' || r.src[r.pos] == '+') {
			r.pos++
		}
		expDigits := false
		for r.pos < len(r.src) && isDigit(r.src[r.pos]) {
			r.pos++
			expDigits = true
		}
		if !expDigits {
			r.pos = mark // a bare e is the start of something else
		}
	}

	f, err := strconv.ParseFloat(r.src[start:r.pos], 64)
	if err != nil {
		return 0, formatErrorf("invalid coordinate %q in path data", r.src[start:r.pos])
	}
	return f, nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
