package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/trapdoc/trapdoc"
	"github.com/trapdoc/trapdoc/utils"
)

const HelpBanner = `
┌┬┐┬─┐┌─┐┌─┐┌┬┐┌─┐┌─┐
 │ ├┬┘├─┤├─┘ │││ ││
 ┴ ┴└─┴ ┴┴  ─┴┘└─┘└─┘

Camera trap image container codec.
    Version: %s

`

// pipeName is the file name that indicates stdin/stdout is being used.
const pipeName = "-"

// Version indicates the current build version.
var Version string

var (
	// Flags
	source      = flag.String("in", pipeName, "Source image, directory or URL")
	destination = flag.String("out", pipeName, "Destination file or directory")
	scale       = flag.Float64("scale", 1.0, "Preview scale factor")
	timestamp   = flag.Bool("time", false, "Stamp the capture time onto rendered previews")
	blend       = flag.String("blend", "", "Blend mode applied when flattening previews")
	embed       = flag.Bool("embed", true, "Embed the photo payload into containers")
	metadata    = flag.Bool("meta", true, "Include the metadata literal into containers")
	declWidth   = flag.Int("width", 0, "Declared container width (0 keeps the true width)")
	declHeight  = flag.Int("height", 0, "Declared container height (0 keeps the true height)")
	extract     = flag.Bool("extract", false, "Recover the embedded photo instead of rendering a preview")
	sidecar     = flag.Bool("sidecar", false, "Write a JSON annotation document next to rendered previews")
	previewFmt  = flag.String("format", "png", "Preview format (png, jpg, bmp, webp)")
	cascade     = flag.String("cc", "", "Cascade classifier used to annotate packed photos")
	algoName    = flag.String("algo", "pigo", "Detector name recorded in the image metadata")
	algoVersion = flag.String("algover", "1.0", "Detector version recorded in the image metadata")
	quality     = flag.Float64("quality", 5.0, "Minimum detection quality")
	workers     = flag.Int("conc", runtime.NumCPU(), "Number of files to process concurrently")
)

func main() {
	log.SetFlags(0)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, HelpBanner, Version)
		flag.PrintDefaults()
	}
	flag.Parse()

	proc := &trapdoc.Processor{
		Scale:          *scale,
		Timestamp:      *timestamp,
		Blend:          *blend,
		Embed:          *embed,
		Metadata:       *metadata,
		DeclaredWidth:  *declWidth,
		DeclaredHeight: *declHeight,
		Extract:        *extract,
		Sidecar:        *sidecar,
		PreviewExt:     *previewFmt,
	}

	if len(*cascade) > 0 {
		data, err := os.ReadFile(*cascade)
		if err != nil {
			log.Fatalf(
				utils.DecorateText("Unable to read the cascade classifier: %v", utils.ErrorMessage),
				utils.DecorateText(err.Error(), utils.DefaultMessage),
			)
		}
		det, err := trapdoc.NewDetector(data, *algoName, *algoVersion)
		if err != nil {
			log.Fatalf(
				utils.DecorateText("Unable to initialize the detector: %v", utils.ErrorMessage),
				utils.DecorateText(err.Error(), utils.DefaultMessage),
			)
		}
		det.Quality = float32(*quality)
		proc.Detector = det
	}

	proc.Execute(&trapdoc.Ops{
		Src:      *source,
		Dst:      *destination,
		PipeName: pipeName,
		Workers:  *workers,
	})
}
