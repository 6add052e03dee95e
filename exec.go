package trapdoc

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/trapdoc/trapdoc/utils"
)

// maxWorkers sets the maximum number of concurrently running workers.
const maxWorkers = 20

// Supported source files.
var validExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".webp", ".svg"}

// Processor drives the container codec over single files or whole
// directories. Photo sources are packed into container documents, container
// sources are rendered into raster previews or unpacked back to the
// original photo.
type Processor struct {
	// Scale resizes rendered previews relative to the true pixel size.
	Scale float64

	// Timestamp stamps the capture time onto rendered previews.
	Timestamp bool

	// Blend names the blend mode used when flattening previews.
	Blend string

	// Embed inlines the photo payload when packing containers.
	Embed bool

	// Metadata includes the metadata literal when packing containers.
	Metadata bool

	// DeclaredWidth and DeclaredHeight override the document coordinate
	// space when packing. Zero declares the true pixel size.
	DeclaredWidth  int
	DeclaredHeight int

	// Extract recovers the embedded photo from container sources instead
	// of rendering a preview.
	Extract bool

	// Sidecar writes a JSON annotation document next to every rendered
	// preview.
	Sidecar bool

	// PreviewExt selects the raster format container sources render into,
	// ".png" when empty.
	PreviewExt string

	// Detector, when set, runs over every packed photo and replaces its
	// annotations with the detection results.
	Detector *Detector

	// Spinner is the CLI progress indicator.
	Spinner *utils.Spinner
}

type Ops struct {
	Src, Dst, PipeName string
	Workers            int
}

// result holds the relevant information about one processed image.
type result struct {
	path string
	err  error
}

// Execute runs the processor against the source path, which may be a single
// file, a whole directory tree or a URL.
func (p *Processor) Execute(op *Ops) {
	var err error
	defaultMsg := fmt.Sprintf("%s %s",
		utils.DecorateText("⚡ TRAPDOC", utils.StatusMessage),
		utils.DecorateText("⇢ processing image...", utils.DefaultMessage),
	)
	p.Spinner = utils.NewSpinner(defaultMsg, time.Millisecond*80, true)

	// Capture CTRL-C and restore back the cursor visibility.
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalChan
		p.Spinner.RestoreCursor()
		os.Exit(1)
	}()

	// Check if the source path is a local image or URL. The remote file is
	// saved under its own name, since the image identity lives in it.
	if utils.IsValidUrl(op.Src) {
		src, err := utils.DownloadImage(op.Src)
		if src != nil {
			defer os.Remove(src.Name())
		}
		if err != nil {
			log.Fatalf(
				utils.DecorateText("Failed to load the source image: %v", utils.ErrorMessage),
				utils.DecorateText(err.Error(), utils.DefaultMessage),
			)
		}
		op.Src = src.Name()
	}

	fs, err := os.Stat(op.Src)
	if err != nil {
		log.Fatalf(
			utils.DecorateText("Failed to load the source image: %v", utils.ErrorMessage),
			utils.DecorateText(err.Error(), utils.DefaultMessage),
		)
	}

	now := time.Now()

	switch mode := fs.Mode(); {
	case mode.IsDir():
		var wg sync.WaitGroup
		// Read destination file or directory.
		if _, err := os.Stat(op.Dst); err != nil {
			if err = os.Mkdir(op.Dst, 0755); err != nil {
				log.Fatalf(
					utils.DecorateText("Unable to create the destination directory: %v\n", utils.ErrorMessage),
					utils.DecorateText(err.Error(), utils.DefaultMessage),
				)
			}
		}

		// Limit the concurrently running workers to maxWorkers.
		if op.Workers <= 0 || op.Workers > maxWorkers {
			op.Workers = runtime.NumCPU()
		}

		// Process the image files from the specified directory concurrently.
		ch := make(chan result)
		done := make(chan interface{})
		defer close(done)

		paths, errc := walkDir(done, op.Src, validExtensions)

		wg.Add(op.Workers)
		for i := 0; i < op.Workers; i++ {
			go func() {
				defer wg.Done()
				op.consumer(p, op.Dst, ch, done, paths)
			}()
		}

		// Close the channel after the values are consumed.
		go func() {
			defer close(ch)
			wg.Wait()
		}()

		// Consume the channel values.
		for res := range ch {
			if res.err != nil {
				err = res.err
			}
			op.printOpStatus(res.path, err)
		}

		if err = <-errc; err != nil {
			fmt.Fprint(os.Stderr, utils.DecorateText(err.Error(), utils.ErrorMessage))
		}

	case mode.IsRegular():
		ext := filepath.Ext(op.Dst)
		if op.Dst != op.PipeName && !isValidExtension(ext, validExtensions) {
			log.Fatalf(utils.DecorateText(fmt.Sprintf("%v file type not supported", ext), utils.ErrorMessage))
		}

		err = op.process(p, op.Src, op.Dst)
		op.printOpStatus(op.Dst, err)
	}
	if err == nil {
		fmt.Fprintf(os.Stderr, "\nExecution time: %s\n",
			utils.DecorateText(utils.FormatTime(time.Since(now)), utils.SuccessMessage))
	}
}

// consumer reads the path names from the paths channel and converts each
// source image into the destination directory.
func (op *Ops) consumer(
	p *Processor,
	dest string,
	res chan<- result,
	done <-chan interface{},
	paths <-chan string,
) {
	for src := range paths {
		dst := filepath.Join(dest, p.dstName(src))
		err := op.process(p, src, dst)

		select {
		case <-done:
			return
		case res <- result{
			path: src,
			err:  err,
		}:
		}
	}
}

// process converts one source image and reports progress on the spinner.
func (op *Ops) process(p *Processor, in, out string) error {
	// Start the progress indicator.
	p.Spinner.SetMessage(fmt.Sprintf("%s %s",
		utils.DecorateText("⚡ TRAPDOC", utils.StatusMessage),
		utils.DecorateText(fmt.Sprintf("⇢ processing %s...", filepath.Base(in)), utils.DefaultMessage),
	))
	p.Spinner.Start()

	successMsg := fmt.Sprintf("%s %s %s",
		utils.DecorateText("⚡ TRAPDOC", utils.StatusMessage),
		utils.DecorateText("⇢", utils.DefaultMessage),
		utils.DecorateText("the image has been processed successfully ✔", utils.SuccessMessage),
	)

	errorMsg := fmt.Sprintf("%s %s %s",
		utils.DecorateText("⚡ TRAPDOC", utils.StatusMessage),
		utils.DecorateText("processing image failed...", utils.DefaultMessage),
		utils.DecorateText("✘", utils.ErrorMessage),
	)

	if in == op.PipeName {
		p.Spinner.StopMsg = errorMsg
		p.Spinner.Stop()
		return errors.New("`-` cannot be used as the source: the image identity is derived from the file name")
	}

	pipeOut := out == op.PipeName
	if pipeOut {
		if term.IsTerminal(int(os.Stdout.Fd())) {
			p.Spinner.StopMsg = errorMsg
			p.Spinner.Stop()
			return errors.New("`-` should be used with a pipe for stdout")
		}
		tmpDir, err := os.MkdirTemp("", "trapdoc")
		if err != nil {
			p.Spinner.StopMsg = errorMsg
			p.Spinner.Stop()
			return err
		}
		defer os.RemoveAll(tmpDir)
		out = filepath.Join(tmpDir, p.dstName(in))
	}

	err := p.convert(in, out)
	if err == nil && pipeOut {
		err = streamFile(out, os.Stdout)
	}

	if err != nil {
		p.Spinner.StopMsg = errorMsg
	} else {
		p.Spinner.StopMsg = successMsg
	}
	// Stop the progress indicator.
	p.Spinner.Stop()

	return err
}

// convert dispatches one file on its extension: container sources are
// rendered or unpacked, photo sources are packed.
func (p *Processor) convert(in, out string) error {
	switch ext := strings.ToLower(filepath.Ext(in)); ext {
	case ".svg":
		img, warnings, err := OpenContainer(in)
		if err != nil {
			return err
		}
		for _, w := range warnings {
			fmt.Fprintf(os.Stderr, "\n%s %s\n",
				utils.DecorateText("⚠", utils.StatusMessage),
				utils.DecorateText(w.String(), utils.DefaultMessage))
		}
		if p.Extract {
			return img.ExtractPhoto(out)
		}
		if p.Sidecar {
			sidecar := strings.TrimSuffix(out, filepath.Ext(out)) + ".json"
			if err := img.WriteSidecar(sidecar); err != nil {
				return err
			}
		}
		return img.WritePreview(out, &PreviewOptions{
			Scale:     p.Scale,
			Timestamp: p.Timestamp,
			Blend:     p.Blend,
		})
	case ".jpg", ".jpeg", ".png", ".bmp", ".webp":
		img, err := p.openPhoto(in)
		if err != nil {
			return err
		}
		if p.Detector != nil {
			if err := p.Detector.Run(img); err != nil {
				return err
			}
		}
		return img.WriteContainer(out, &ContainerOptions{
			EmbedBitmap:     p.Embed,
			IncludeMetadata: p.Metadata,
			DeclaredWidth:   p.DeclaredWidth,
			DeclaredHeight:  p.DeclaredHeight,
		})
	default:
		return fmt.Errorf("%v file type not supported", ext)
	}
}

// openPhoto loads a photo source, picking up an adjacent JSON annotation
// document when one exists.
func (p *Processor) openPhoto(in string) (*Image, error) {
	sidecar := strings.TrimSuffix(in, filepath.Ext(in)) + ".json"
	if _, err := os.Stat(sidecar); err == nil {
		return OpenAnnotatedImageFile(in, sidecar)
	}
	return OpenImage(in)
}

// dstName maps a source file name to its destination name: photos pack into
// containers, containers render into previews or unpack into photos.
func (p *Processor) dstName(src string) string {
	base := filepath.Base(src)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if strings.EqualFold(filepath.Ext(base), ".svg") {
		if p.Extract {
			return stem + payloadExt(src)
		}
		return stem + p.previewExt()
	}
	return stem + ".svg"
}

// payloadExt sniffs the embedded payload of a container document and maps it
// to the extraction file extension. An unreadable document falls back to
// .jpg; its real error surfaces once the conversion opens it properly.
func payloadExt(src string) string {
	f, err := os.Open(src)
	if err != nil {
		return ".jpg"
	}
	defer f.Close()

	doc, err := parseContainer(f)
	if err != nil {
		return ".jpg"
	}
	payload, err := decodeDataURI(doc.href)
	if err != nil {
		return ".jpg"
	}
	return "." + extFromPayload(payload)
}

func (p *Processor) previewExt() string {
	ext := p.PreviewExt
	if ext == "" {
		return ".png"
	}
	if !strings.HasPrefix(ext, ".") {
		return "." + ext
	}
	return ext
}

// streamFile copies the produced file to the writer, for pipe destinations.
func streamFile(path string, w io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(w, f)
	return err
}

// printOpStatus displays the relevant information about the processed image.
func (op *Ops) printOpStatus(fname string, err error) {
	if err != nil {
		log.Fatalf(
			utils.DecorateText("\nError processing the image: %s", utils.ErrorMessage),
			utils.DecorateText(fmt.Sprintf("\n\tReason: %v\n", err.Error()), utils.DefaultMessage),
		)
	} else {
		if fname != op.PipeName {
			fmt.Fprintf(os.Stderr, "\nThe image has been saved as: %s %s\n\n",
				utils.DecorateText(filepath.Base(fname), utils.SuccessMessage),
				utils.DefaultColor,
			)
		}
	}
}

// walkDir starts a new goroutine to walk the specified directory tree
// in recursive manner and sends the path of each regular file to a new channel.
// It finishes in case the done channel is getting closed.
func walkDir(
	done <-chan interface{},
	src string,
	srcExts []string,
) (<-chan string, <-chan error) {
	pathChan := make(chan string)
	errChan := make(chan error, 1)

	go func() {
		// Close the paths channel after Walk returns.
		defer close(pathChan)

		errChan <- filepath.Walk(src, func(path string, f os.FileInfo, err error) error {
			isFileSupported := false
			if err != nil {
				return err
			}
			if !f.Mode().IsRegular() {
				return nil
			}

			// Get the file base name.
			fx := filepath.Ext(f.Name())
			for _, ext := range srcExts {
				if ext == fx {
					isFileSupported = true
					break
				}
			}

			if isFileSupported {
				select {
				case <-done:
					return errors.New("directory walk cancelled")
				case pathChan <- path:
				}
			}
			return nil
		})
	}()
	return pathChan, errChan
}

// isValidExtension checks for the supported extensions.
func isValidExtension(ext string, extensions []string) bool {
	for _, ex := range extensions {
		if ex == ext {
			return true
		}
	}
	return false
}
