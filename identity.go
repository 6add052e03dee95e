package trapdoc

import (
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the fixed timestamp format used in filenames and in the
// datetime metadata field.
const TimeLayout = "2006-01-02_15-04-05"

// Identity holds the filename derived identity of a photo: the capture device
// and the capture time. It is established once when the image is loaded and
// never changes afterwards.
type Identity struct {
	Device      string
	CaptureTime time.Time
	Ext         string
}

// ParseFilename derives the image identity from a file name of the form
// <device>.<timestamp>.<ext>, where the device is an 8 digit hex string and
// the timestamp follows TimeLayout. Any deviation yields a FormatError.
func ParseFilename(filename string) (Identity, error) {
	fields := strings.Split(filename, ".")
	if len(fields) != 3 {
		return Identity{}, formatErrorf("wrong file name %q, three dot-separated fields expected", filename)
	}

	device := fields[0]
	if !isDeviceID(device) {
		return Identity{}, formatErrorf("invalid device name field in file: %s", device)
	}

	captureTime, err := time.Parse(TimeLayout, fields[1])
	if err != nil {
		return Identity{}, &FormatError{Reason: fmt.Sprintf("could not retrieve datetime from filename %q", filename), Err: err}
	}

	return Identity{
		Device:      device,
		CaptureTime: captureTime,
		Ext:         fields[2],
	}, nil
}

// Filename reassembles the canonical <device>.<timestamp>.<ext> form.
func (id Identity) Filename() string {
	return fmt.Sprintf("%s.%s.%s", id.Device, id.CaptureTime.Format(TimeLayout), id.Ext)
}

// Key returns the extension independent identity handle <device>.<timestamp>,
// used for annotation back references and series lookups.
func (id Identity) Key() string {
	return fmt.Sprintf("%s.%s", id.Device, id.CaptureTime.Format(TimeLayout))
}

// TimeString returns the capture time in the fixed filename format.
func (id Identity) TimeString() string {
	return id.CaptureTime.Format(TimeLayout)
}

// isDeviceID reports whether the string is an 8 digit hex device id.
func isDeviceID(device string) bool {
	if len(device) != 8 {
		return false
	}
	for _, c := range device {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
