package trapdoc

import (
	"image"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/trapdoc/trapdoc/utils"
)

// backing supplies the two primitives an image variant has to provide: the
// canonical encoded payload bytes and the decoded pixels. Everything else,
// identity, metadata, annotations, hashing and caching, is uniform across
// variants and lives on Image itself.
type backing interface {
	payload() ([]byte, error)
	pixels() (*image.NRGBA, error)
}

// fileBacking reads an encoded photo straight from disk.
type fileBacking struct {
	path string
}

func (b fileBacking) payload() ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		return nil, ioError("read", b.path, err)
	}
	return data, nil
}

func (b fileBacking) pixels() (*image.NRGBA, error) {
	data, err := b.payload()
	if err != nil {
		return nil, err
	}
	img, _, err := decodePhoto(data)
	return img, err
}

// bufferBacking holds an encoded photo in memory.
type bufferBacking struct {
	data []byte
}

func (b bufferBacking) payload() ([]byte, error) {
	return b.data, nil
}

func (b bufferBacking) pixels() (*image.NRGBA, error) {
	img, _, err := decodePhoto(b.data)
	return img, err
}

// arrayBacking holds decoded pixels; the canonical payload is their JPEG
// encoding.
type arrayBacking struct {
	img *image.NRGBA
}

func (b arrayBacking) payload() ([]byte, error) {
	return encodeJPEG(b.img)
}

func (b arrayBacking) pixels() (*image.NRGBA, error) {
	return b.img, nil
}

// containerBacking holds the payload recovered from a container document.
type containerBacking struct {
	data []byte
}

func (b containerBacking) payload() ([]byte, error) {
	return b.data, nil
}

func (b containerBacking) pixels() (*image.NRGBA, error) {
	img, _, err := decodePhoto(b.data)
	return img, err
}

// Image is one camera-trap shot: an immutable identity, a photo payload
// behind one of the backing variants, the acquisition metadata and the
// ordered annotation list the image owns.
type Image struct {
	identity Identity
	path     string
	store    backing

	md5         string
	metadata    Metadata
	annotations []*Annotation
	cached      *image.NRGBA
	shape       image.Point
}

// OpenImage loads a file backed photo. The identity is derived from the
// file name, which must follow the <device>.<timestamp>.<ext> convention.
func OpenImage(path string) (*Image, error) {
	id, err := ParseFilename(filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, ioError("open", path, err)
	}
	return &Image{
		identity: id,
		path:     path,
		metadata: Metadata{},
		store:    fileBacking{path: path},
	}, nil
}

// NewArrayImage wraps already decoded pixels, as produced by an acquisition
// pipeline that never touched disk.
func NewArrayImage(src image.Image, device string, captureTime time.Time) (*Image, error) {
	if !isDeviceID(device) {
		return nil, validationErrorf("invalid device id %q, 8 hex digits expected", device)
	}
	return &Image{
		identity: Identity{Device: device, CaptureTime: captureTime, Ext: "jpg"},
		metadata: Metadata{},
		store:    arrayBacking{img: imgToNRGBA(src)},
	}, nil
}

// NewBufferImage wraps an encoded photo held in memory.
func NewBufferImage(data []byte, device string, captureTime time.Time) (*Image, error) {
	if !isDeviceID(device) {
		return nil, validationErrorf("invalid device id %q, 8 hex digits expected", device)
	}
	return &Image{
		identity: Identity{Device: device, CaptureTime: captureTime, Ext: extFromPayload(data)},
		metadata: Metadata{},
		store:    bufferBacking{data: data},
	}, nil
}

// OpenAnnotatedImage loads a photo whose annotations travel in a plain JSON
// sidecar document instead of a container.
func OpenAnnotatedImage(path string, sidecar []byte) (*Image, error) {
	img, err := OpenImage(path)
	if err != nil {
		return nil, err
	}
	sc, err := DecodeSidecar(sidecar)
	if err != nil {
		return nil, err
	}
	for k, v := range sc.Metadata {
		img.metadata[k] = v
	}
	img.SetAnnotations(sc.Annotations)
	return img, nil
}

// OpenAnnotatedImageFile is OpenAnnotatedImage with the sidecar read from a
// file next to the photo.
func OpenAnnotatedImageFile(path, sidecarPath string) (*Image, error) {
	data, err := os.ReadFile(sidecarPath)
	if err != nil {
		return nil, ioError("read", sidecarPath, err)
	}
	return OpenAnnotatedImage(path, data)
}

// Identity returns the filename derived identity of the image.
func (img *Image) Identity() Identity {
	return img.identity
}

// Device returns the 8 digit hex id of the capture device.
func (img *Image) Device() string {
	return img.identity.Device
}

// CaptureTime returns the capture time of the photo.
func (img *Image) CaptureTime() time.Time {
	return img.identity.CaptureTime
}

// Filename returns the canonical file name of the image, synthesized from
// the identity for variants that never lived on disk.
func (img *Image) Filename() string {
	return img.identity.Filename()
}

// Path returns the on disk location of the image, empty for the in-memory
// variants.
func (img *Image) Path() string {
	return img.path
}

// Read decodes the photo payload. The decoded pixels are cached on the
// image until InvalidateCache is called.
func (img *Image) Read() (*image.NRGBA, error) {
	if img.cached != nil {
		return img.cached, nil
	}
	pix, err := img.store.pixels()
	if err != nil {
		return nil, err
	}
	img.cached = pix
	img.shape = image.Point{X: pix.Bounds().Dx(), Y: pix.Bounds().Dy()}
	return pix, nil
}

// InvalidateCache drops the cached pixels; the next Read decodes again.
func (img *Image) InvalidateCache() {
	img.cached = nil
}

// Shape returns the pixel dimensions of the photo, decoding it on first use.
func (img *Image) Shape() (image.Point, error) {
	if img.shape == (image.Point{}) {
		if _, err := img.Read(); err != nil {
			return image.Point{}, err
		}
	}
	return img.shape, nil
}

// PhotoBytes returns the canonical encoded payload of the photo.
func (img *Image) PhotoBytes() ([]byte, error) {
	return img.store.payload()
}

// ExtractPhoto writes the raw photo payload to the target path, atomically.
func (img *Image) ExtractPhoto(target string) error {
	data, err := img.store.payload()
	if err != nil {
		return err
	}
	return writeFileAtomic(target, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// MD5 returns the hex digest of the canonical payload bytes, lazily computed
// and cached.
func (img *Image) MD5() (string, error) {
	if img.md5 == "" {
		data, err := img.store.payload()
		if err != nil {
			return "", err
		}
		img.md5 = utils.BytesMD5(data)
	}
	return img.md5, nil
}

// Metadata returns the metadata map owned by the image.
func (img *Image) Metadata() Metadata {
	return img.metadata
}

// SetMetadata replaces the metadata map.
func (img *Image) SetMetadata(m Metadata) {
	if m == nil {
		m = Metadata{}
	}
	img.metadata = m
}

// Annotations returns the annotation list owned by the image.
func (img *Image) Annotations() []*Annotation {
	return img.annotations
}

// SetAnnotations replaces the annotation list and stamps every annotation
// with the identity key of the image.
func (img *Image) SetAnnotations(annotations []*Annotation) {
	key := img.identity.Key()
	for _, a := range annotations {
		a.owner = key
	}
	img.annotations = annotations
}

// TagDetectorRun stamps the metadata with the identity fields, the payload
// hash and the name and version of the detector that produced the current
// annotations. The call is idempotent and always recomputes the hash instead
// of trusting a stale value.
func (img *Image) TagDetectorRun(name, version string) error {
	img.md5 = ""
	hash, err := img.MD5()
	if err != nil {
		return err
	}
	img.metadata["md5"] = hash
	img.metadata["device"] = img.identity.Device
	img.metadata["datetime"] = img.identity.TimeString()
	img.metadata["filename"] = img.identity.Filename()
	img.metadata["algo_name"] = name
	img.metadata["algo_version"] = version
	return nil
}

// Sidecar assembles the plain JSON annotation document of the image. The
// metadata subset requires all tagged keys; when any is missing the sidecar
// carries an empty map, mirroring the tolerant read side.
func (img *Image) Sidecar() *Sidecar {
	meta := Metadata{}
	complete := true
	for _, k := range requiredSidecarKeys {
		v, ok := img.metadata[k]
		if !ok {
			complete = false
			break
		}
		meta[k] = v
	}
	if !complete {
		meta = Metadata{}
	}
	return &Sidecar{Metadata: meta, Annotations: img.annotations}
}

// Clone returns a deep copy of the image: metadata, annotations and cached
// pixels are all independent of the original.
func (img *Image) Clone() *Image {
	out := &Image{
		identity: img.identity,
		path:     img.path,
		store:    img.store,
		md5:      img.md5,
		metadata: img.metadata.Clone(),
		cached:   cloneNRGBA(img.cached),
		shape:    img.shape,
	}
	if ab, ok := img.store.(arrayBacking); ok {
		out.store = arrayBacking{img: cloneNRGBA(ab.img)}
	}
	out.annotations = make([]*Annotation, len(img.annotations))
	for i, a := range img.annotations {
		out.annotations[i] = a.Clone()
	}
	return out
}

// extFromPayload sniffs the payload MIME type and maps it to the canonical
// file extension, defaulting to jpg.
func extFromPayload(data []byte) string {
	switch sniffMIME(data) {
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/bmp":
		return "bmp"
	default:
		return "jpg"
	}
}
