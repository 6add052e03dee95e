package utils

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// DownloadImage downloads the image from the internet and saves it into a
// temporary directory. The file keeps the base name of the URL path, since
// the image identity is carried in the file name.
func DownloadImage(uri string) (*os.File, error) {
	u, err := url.Parse(uri)
	if err != nil || path.Base(u.Path) == "." || path.Base(u.Path) == "/" {
		return nil, fmt.Errorf("the URI %s does not name a file", uri)
	}

	// Retrieve the url and decode the response body.
	res, err := http.Get(uri)
	if err != nil {
		return nil, fmt.Errorf("unable to download image file from URI: %s: %w", uri, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unable to download image file from URI: %s, status %v", uri, res.Status)
	}

	tmpdir, err := os.MkdirTemp("", "download")
	if err != nil {
		return nil, fmt.Errorf("unable to create temporary directory: %w", err)
	}

	tmpfile, err := os.Create(filepath.Join(tmpdir, path.Base(u.Path)))
	if err != nil {
		return nil, fmt.Errorf("unable to create temporary file: %w", err)
	}

	// Copy the image binary data into the temporary file.
	if _, err := io.Copy(tmpfile, res.Body); err != nil {
		os.Remove(tmpfile.Name())
		return nil, fmt.Errorf("unable to copy the source URI into the destination file")
	}

	ctype, err := DetectContentType(tmpfile.Name())
	if err != nil {
		os.Remove(tmpfile.Name())
		return nil, err
	}

	// Container documents sniff as xml, plain photos as image types.
	if !strings.Contains(ctype, "image") && !strings.Contains(ctype, "xml") {
		os.Remove(tmpfile.Name())
		return nil, fmt.Errorf("the downloaded file is not a valid image type")
	}

	return tmpfile, nil
}

// IsValidUrl tests a string to determine if it is a well-structured url or not.
func IsValidUrl(uri string) bool {
	_, err := url.ParseRequestURI(uri)
	if err != nil {
		return false
	}

	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}

	return true
}
