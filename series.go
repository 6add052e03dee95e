package trapdoc

import (
	"fmt"
	"time"

	"golang.org/x/exp/slices"
)

// Series is the time window of images captured by one device, ordered by
// capture time.
type Series struct {
	Device string
	Start  time.Time
	End    time.Time
	Images []*Image
}

// NewSeries returns an empty series covering the [start, end] window.
func NewSeries(device string, start, end time.Time) (*Series, error) {
	if !isDeviceID(device) {
		return nil, validationErrorf("invalid device id %q, 8 hex digits expected", device)
	}
	if end.Before(start) {
		return nil, validationErrorf("series window ends before it starts")
	}
	return &Series{Device: device, Start: start, End: end}, nil
}

// Name returns the canonical identifier of the series,
// <device>.<start>.<end>.
func (s *Series) Name() string {
	return fmt.Sprintf("%s.%s.%s", s.Device, s.Start.Format(TimeLayout), s.End.Format(TimeLayout))
}

// Populate fills the series with the images captured by its device inside
// its window, sorted by capture time. Previously populated images are
// replaced.
func (s *Series) Populate(images []*Image) {
	s.Images = s.Images[:0]
	for _, img := range images {
		if img.Device() != s.Device {
			continue
		}
		t := img.CaptureTime()
		if t.Before(s.Start) || t.After(s.End) {
			continue
		}
		s.Images = append(s.Images, img)
	}
	sortByCaptureTime(s.Images)
}

// GroupImages splits a flat image list into per device series, starting a
// new series whenever the gap between consecutive shots exceeds maxGap.
// Images inside each series keep their capture time order.
func GroupImages(images []*Image, maxGap time.Duration) []*Series {
	byDevice := map[string][]*Image{}
	for _, img := range images {
		byDevice[img.Device()] = append(byDevice[img.Device()], img)
	}
	devices := make([]string, 0, len(byDevice))
	for device := range byDevice {
		devices = append(devices, device)
	}
	slices.Sort(devices)

	var out []*Series
	for _, device := range devices {
		batch := byDevice[device]
		sortByCaptureTime(batch)

		var run []*Image
		for _, img := range batch {
			if len(run) > 0 && img.CaptureTime().Sub(run[len(run)-1].CaptureTime()) > maxGap {
				out = append(out, seriesFromRun(device, run))
				run = nil
			}
			run = append(run, img)
		}
		if len(run) > 0 {
			out = append(out, seriesFromRun(device, run))
		}
	}
	return out
}

func seriesFromRun(device string, run []*Image) *Series {
	return &Series{
		Device: device,
		Start:  run[0].CaptureTime(),
		End:    run[len(run)-1].CaptureTime(),
		Images: run,
	}
}

func sortByCaptureTime(images []*Image) {
	slices.SortFunc(images, func(a, b *Image) bool {
		return a.CaptureTime().Before(b.CaptureTime())
	})
}
