package trapdoc

import (
	"bufio"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ContainerOptions controls how WriteContainer lays out the document. A nil
// options value embeds the photo, includes the metadata and declares the
// true pixel size.
type ContainerOptions struct {
	// EmbedBitmap inlines the photo payload as a base64 data URI. When
	// false the raster element links the photo by file name instead, which
	// produces a document OpenContainer cannot read back.
	EmbedBitmap bool

	// IncludeMetadata writes the metadata literal into the document.
	IncludeMetadata bool

	// DeclaredWidth and DeclaredHeight override the document coordinate
	// space. Zero means declare the true pixel size.
	DeclaredWidth  int
	DeclaredHeight int
}

func defaultContainerOptions() *ContainerOptions {
	return &ContainerOptions{EmbedBitmap: true, IncludeMetadata: true}
}

// OpenContainer reads a container document back into an image: the embedded
// photo, the metadata and the annotations, with every contour rescaled from
// document coordinates to true pixel coordinates. Recoverable oddities, such
// as absent metadata or degenerate polygons, come back as warnings; anything
// that breaks the format contract is an error.
func OpenContainer(path string) (*Image, []Warning, error) {
	id, err := ParseFilename(filepath.Base(path))
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, ioError("open", path, err)
	}
	defer f.Close()

	doc, err := parseContainer(f)
	if err != nil {
		return nil, nil, err
	}

	payload, err := decodeDataURI(doc.href)
	if err != nil {
		return nil, nil, err
	}
	pix, _, err := decodePhoto(payload)
	if err != nil {
		return nil, nil, err
	}
	trueW := pix.Bounds().Dx()
	trueH := pix.Bounds().Dy()
	if doc.declaredW <= 0 || doc.declaredH <= 0 {
		return nil, nil, formatErrorf("non-positive declared dimensions %dx%d", doc.declaredW, doc.declaredH)
	}
	scale := NewScale(doc.declaredW, doc.declaredH, trueW, trueH)

	var warnings []Warning

	metadata := Metadata{}
	if doc.metaLiteral == "" {
		warnings = append(warnings, warnf("container carries no metadata"))
	} else {
		metadata, err = DecodeMetadata(doc.metaLiteral)
		if err != nil {
			return nil, nil, err
		}
	}

	var annotations []*Annotation
	for _, p := range doc.paths {
		got, w, err := PathToAnnotations(p.style, p.d, scale)
		if err != nil {
			return nil, nil, err
		}
		warnings = append(warnings, w...)
		annotations = append(annotations, got...)
	}

	img := &Image{
		identity: id,
		path:     path,
		metadata: metadata,
		store:    containerBacking{data: payload},
		cached:   pix,
		shape:    pix.Bounds().Size(),
	}
	img.SetAnnotations(annotations)
	return img, warnings, nil
}

// WriteContainer serializes the image into a container document at target.
// The write is atomic: the document is assembled in a temporary file next to
// the target and renamed over it only once complete, so a failure part way
// through leaves any existing target untouched.
func (img *Image) WriteContainer(target string, opts *ContainerOptions) error {
	if opts == nil {
		opts = defaultContainerOptions()
	}
	shape, err := img.Shape()
	if err != nil {
		return err
	}
	declW, declH := opts.DeclaredWidth, opts.DeclaredHeight
	if declW <= 0 {
		declW = shape.X
	}
	if declH <= 0 {
		declH = shape.Y
	}
	scale := NewScale(declW, declH, shape.X, shape.Y)

	var payload []byte
	if opts.EmbedBitmap {
		if payload, err = img.PhotoBytes(); err != nil {
			return err
		}
	}

	return writeFileAtomic(target, func(w io.Writer) error {
		return img.writeContainerDoc(w, opts, scale, declW, declH, payload)
	})
}

func (img *Image) writeContainerDoc(w io.Writer, opts *ContainerOptions, scale Scale, declW, declH int, payload []byte) error {
	_, err := fmt.Fprintf(w,
		`<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" width="%d" height="%d">`,
		declW, declH)
	if err != nil {
		return err
	}
	// The metadata literal rides on the raster element itself, in its desc
	// attribute, where the readers of the acquisition ecosystem look for it.
	desc := ""
	if opts.IncludeMetadata {
		desc = fmt.Sprintf(` desc="%s"`, escapeXML(EncodeMetadata(img.metadata)))
	}
	if opts.EmbedBitmap {
		if _, err = fmt.Fprintf(w, `<image%s width="%d" height="%d" x="0" y="0" xlink:href="data:%s;base64,`,
			desc, declW, declH, sniffMIME(payload)); err != nil {
			return err
		}
		enc := base64.NewEncoder(base64.StdEncoding, w)
		if _, err = enc.Write(payload); err != nil {
			return err
		}
		if err = enc.Close(); err != nil {
			return err
		}
		if _, err = io.WriteString(w, "\"/>"); err != nil {
			return err
		}
	} else {
		if _, err = fmt.Fprintf(w, `<image%s width="%d" height="%d" x="0" y="0" xlink:href="%s"/>`,
			desc, declW, declH, escapeXML(img.Filename())); err != nil {
			return err
		}
	}
	for _, a := range img.annotations {
		style, d, err := a.PathElement(scale)
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

// WriteSidecar serializes the annotations and the tagged metadata subset
// into a plain JSON document at target, atomically.
func (img *Image) WriteSidecar(target string) error {
	data, err := img.Sidecar().Encode()
	if err != nil {
		return err
	}
	return writeFileAtomic(target, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// pathAttrs is one path element of the document, as found.
type pathAttrs struct {
	style string
	d     string
}

// containerDoc is the raw shape of a parsed document, before any payload or
// metadata decoding.
type containerDoc struct {
	declaredW int
	declaredH int
	href      string
	// metaLiteral is the metadata literal, empty when the document carries
	// none in the desc attribute of the raster element, a description
	// element or the legacy attribute form.
	metaLiteral string
	paths       []pathAttrs
}

// parseContainer walks the XML token stream and collects the raster element,
// the metadata literal and every path element, in document order. Exactly
// one raster element must be present, and it has to state the declared size
// the scale correction runs on. The root carries the overall document size
// only; external resizers are known to rewrite it independently.
func parseContainer(r io.Reader) (*containerDoc, error) {
	dec := xml.NewDecoder(r)
	doc := &containerDoc{}

	var (
		sawRoot    bool
		rasters    int
		rasterDesc string
		desc       string
		sawDesc    bool
		legacy     string
		sawLegacy  bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, formatErrorf("malformed container document: %v", err)
		}
		el, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if !sawRoot {
			sawRoot = true
			continue
		}
		switch el.Name.Local {
		case "image":
			rasters++
			if rasters > 1 {
				break
			}
			doc.href = attrByLocal(el.Attr, "href")
			w, h, err := declaredDims(el.Attr, "embedded raster element")
			if err != nil {
				return nil, err
			}
			doc.declaredW, doc.declaredH = w, h
			rasterDesc = strings.TrimSpace(attrByLocal(el.Attr, "desc"))
		case "desc":
			if sawDesc {
				break
			}
			var text string
			if err := dec.DecodeElement(&text, &el); err != nil {
				return nil, formatErrorf("malformed container document: %v", err)
			}
			desc = strings.TrimSpace(text)
			sawDesc = true
		case "trapdoc":
			if !sawLegacy {
				legacy = attrByLocal(el.Attr, "metadata")
				sawLegacy = true
			}
		case "path":
			doc.paths = append(doc.paths, pathAttrs{
				style: attrByLocal(el.Attr, "style"),
				d:     attrByLocal(el.Attr, "d"),
			})
		}
	}
	if !sawRoot {
		return nil, formatErrorf("container document has no root element")
	}
	if rasters != 1 {
		return nil, formatErrorf("expected exactly one embedded raster element, found %d", rasters)
	}
	// The desc attribute of the raster element is the primary metadata
	// channel. When it is absent or empty, documents from older writers may
	// still carry a description element or the legacy attribute form.
	doc.metaLiteral = rasterDesc
	if doc.metaLiteral == "" {
		doc.metaLiteral = desc
	}
	if doc.metaLiteral == "" {
		doc.metaLiteral = legacy
	}
	return doc, nil
}

// declaredDims resolves the declared size stated by an element, preferring
// the short w/h attributes over width/height.
func declaredDims(attrs []xml.Attr, node string) (int, int, error) {
	w := attrByLocal(attrs, "w")
	if w == "" {
		w = attrByLocal(attrs, "width")
	}
	h := attrByLocal(attrs, "h")
	if h == "" {
		h = attrByLocal(attrs, "height")
	}
	if w == "" || h == "" {
		return 0, 0, formatErrorf("%s does not declare its dimensions", node)
	}
	wf, err := strconv.ParseFloat(strings.TrimSpace(w), 64)
	if err != nil {
		return 0, 0, formatErrorf("invalid declared width %q", w)
	}
	hf, err := strconv.ParseFloat(strings.TrimSpace(h), 64)
	if err != nil {
		return 0, 0, formatErrorf("invalid declared height %q", h)
	}
	return int(wf), int(hf), nil
}

func attrByLocal(attrs []xml.Attr, local string) string {
	for _, a := range attrs {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// decodeDataURI recovers the payload bytes from a base64 data URI raster
// reference.
func decodeDataURI(href string) ([]byte, error) {
	_, b64, found := strings.Cut(href, ",")
	if !found {
		return nil, formatErrorf("embedded raster reference is not a data URI")
	}
	payload, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, formatErrorf("could not decode the embedded raster payload: %v", err)
	}
	return payload, nil
}

// escapeXML escapes a string for use in element text or a quoted attribute.
func escapeXML(s string) string {
	var sb strings.Builder
	if err := xml.EscapeText(&sb, []byte(s)); err != nil {
		return s
	}
	return sb.String()
}

// writeFileAtomic publishes a file by writing it to a temporary sibling and
// renaming it over the target once complete. On any failure the temporary
// file is removed and an existing target is left untouched.
func writeFileAtomic(target string, write func(w io.Writer) error) error {
	dir := filepath.Dir(target)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*")
	if err != nil {
		return ioError("create", target, err)
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	if err := write(bw); err != nil {
		tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return ioError("write", target, err)
	}
	if err := tmp.Close(); err != nil {
		return ioError("close", target, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return ioError("rename", target, err)
	}
	return nil
}
