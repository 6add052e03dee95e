package trapdoc

import (
	"fmt"

	pigo "github.com/esimov/pigo/core"

	"github.com/trapdoc/trapdoc/utils"
)

// detectionColor marks detector produced annotations.
const detectionColor = "#ff0000"

// Detector locates targets on a photo with a pigo cascade classifier and
// turns every clustered detection into a square contour annotation.
type Detector struct {
	classifier *pigo.Pigo
	name       string
	version    string

	// MinSize and MaxSize bound the detection window in pixels. A zero
	// MaxSize means the larger image dimension.
	MinSize int
	MaxSize int

	// Quality drops detections scoring below it after clustering.
	Quality float32

	// Angle is the cascade rotation angle.
	Angle float64
}

// NewDetector unpacks a binary cascade classifier. Name and version identify
// the detector run when an image is tagged with its results.
func NewDetector(cascade []byte, name, version string) (*Detector, error) {
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("error unpacking the cascade file: %v", err)
	}
	return &Detector{
		classifier: classifier,
		name:       name,
		version:    version,
		MinSize:    20,
		Quality:    5.0,
	}, nil
}

// Name returns the detector name recorded in the image metadata.
func (d *Detector) Name() string {
	return d.name
}

// Version returns the detector version recorded in the image metadata.
func (d *Detector) Version() string {
	return d.version
}

// Detect runs the cascade over the photo and returns one square annotation
// per clustered detection above the quality threshold.
func (d *Detector) Detect(img *Image) ([]*Annotation, error) {
	pix, err := img.Read()
	if err != nil {
		return nil, err
	}
	dx, dy := pix.Bounds().Max.X, pix.Bounds().Max.Y

	// Transform the image to a grayscale pixel array.
	pixels := rgbToGrayscale(pix)

	maxSize := d.MaxSize
	if maxSize <= 0 {
		maxSize = utils.Max(dx, dy)
	}
	cParams := pigo.CascadeParams{
		MinSize:     d.MinSize,
		MaxSize:     maxSize,
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,

		ImageParams: pigo.ImageParams{
			Pixels: pixels,
			Rows:   dy,
			Cols:   dx,
			Dim:    dx,
		},
	}

	// Run the classifier over the obtained leaf nodes and return the
	// detection results. The result contains quadruplets representing
	// the row, column, scale and detection score.
	dets := d.classifier.RunCascade(cParams, d.Angle)

	// Calculate the intersection over union (IoU) of two clusters.
	dets = d.classifier.ClusterDetections(dets, 0.2)

	var annotations []*Annotation
	for _, det := range dets {
		if det.Q < d.Quality {
			continue
		}
		annotations = append(annotations, NewAnnotation(squareContour(det.Col, det.Row, det.Scale), detectionColor))
	}
	return annotations, nil
}

// Run detects, attaches the resulting annotations to the image and tags the
// image metadata with the detector identity.
func (d *Detector) Run(img *Image) error {
	annotations, err := d.Detect(img)
	if err != nil {
		return err
	}
	img.SetAnnotations(annotations)
	return img.TagDetectorRun(d.name, d.version)
}

// squareContour builds the four corner contour of a centered detection box.
func squareContour(col, row, scale int) Contour {
	half := scale / 2
	return Contour{
		{X: col - half, Y: row - half},
		{X: col + half, Y: row - half},
		{X: col + half, Y: row + half},
		{X: col - half, Y: row + half},
	}
}
