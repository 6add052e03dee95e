package trapdoc

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/trapdoc/trapdoc/utils"
)

// IndexEntry describes one image published in a remote series index.
type IndexEntry struct {
	// URL locates the photo or container document. Plain local paths are
	// accepted and used in place.
	URL string

	// MD5 is the expected payload digest. Empty skips verification.
	MD5 string

	// Sidecar optionally locates a JSON annotation document for a plain
	// photo entry.
	Sidecar string
}

// Fetcher mirrors remote files into a local cache directory, reusing cached
// copies whose digest still matches the index.
type Fetcher struct {
	// CacheDir is the existing directory the fetched files land in.
	CacheDir string

	// Client is the HTTP client used for downloads, http.DefaultClient
	// when nil.
	Client *http.Client
}

// NewFetcher returns a fetcher caching into dir.
func NewFetcher(dir string) *Fetcher {
	return &Fetcher{CacheDir: dir}
}

// Fetch returns a local path for rawURL. Local paths pass through untouched;
// remote files are downloaded into the cache unless a copy with the wanted
// digest is already there. The cached file is published atomically and
// verified against wantMD5 when one is given.
func (f *Fetcher) Fetch(rawURL, wantMD5 string) (string, error) {
	if !utils.IsValidUrl(rawURL) {
		if _, err := os.Stat(rawURL); err != nil {
			return "", ioError("open", rawURL, err)
		}
		return rawURL, nil
	}

	if f.CacheDir == "" {
		return "", validationErrorf("fetcher has no cache directory")
	}
	if _, err := os.Stat(f.CacheDir); err != nil {
		return "", ioError("stat", f.CacheDir, err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", validationErrorf("invalid url %q", rawURL)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return "", validationErrorf("url %q does not name a file", rawURL)
	}
	target := filepath.Join(f.CacheDir, name)

	if _, err := os.Stat(target); err == nil {
		sum, err := utils.FileMD5(target)
		if err == nil && (wantMD5 == "" || sum == wantMD5) {
			return target, nil
		}
	}

	data, err := f.download(rawURL)
	if err != nil {
		return "", err
	}
	if wantMD5 != "" && utils.BytesMD5(data) != wantMD5 {
		return "", ioError("verify", rawURL, fmt.Errorf("md5 mismatch, want %s", wantMD5))
	}
	err = writeFileAtomic(target, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
	if err != nil {
		return "", err
	}
	return target, nil
}

func (f *Fetcher) download(rawURL string) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Get(rawURL)
	if err != nil {
		return nil, ioError("download", rawURL, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, ioError("download", rawURL, fmt.Errorf("unexpected status %s", res.Status))
	}
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, ioError("download", rawURL, err)
	}
	return data, nil
}

// PopulateFromIndex fills the series from a published index, mirroring every
// entry through the fetcher cache. Container entries come back with their
// embedded annotations, plain photo entries with their sidecar annotations
// when the index names one. Entries that do not belong to the series device
// or window are skipped with a warning.
func (s *Series) PopulateFromIndex(entries []IndexEntry, f *Fetcher) ([]Warning, error) {
	var warnings []Warning
	s.Images = s.Images[:0]
	for _, e := range entries {
		local, err := f.Fetch(e.URL, e.MD5)
		if err != nil {
			return warnings, err
		}

		var img *Image
		if strings.EqualFold(filepath.Ext(local), ".svg") {
			var w []Warning
			img, w, err = OpenContainer(local)
			warnings = append(warnings, w...)
		} else if e.Sidecar != "" {
			var scLocal string
			scLocal, err = f.Fetch(e.Sidecar, "")
			if err != nil {
				return warnings, err
			}
			img, err = OpenAnnotatedImageFile(local, scLocal)
		} else {
			img, err = OpenImage(local)
		}
		if err != nil {
			return warnings, err
		}

		t := img.CaptureTime()
		if img.Device() != s.Device || t.Before(s.Start) || t.After(s.End) {
			warnings = append(warnings, warnf("index entry %s outside series %s, skipped", img.Filename(), s.Name()))
			continue
		}
		s.Images = append(s.Images, img)
	}
	sortByCaptureTime(s.Images)
	return warnings, nil
}
