package utils

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestUtils_ShouldDownloadImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("\x89PNG\r\n\x1a\n"))
	}))
	defer srv.Close()

	f, err := DownloadImage(srv.URL + "/5c173ff2.2020-06-20_21-33-24.png")
	if err != nil {
		t.Fatalf("could not download test file: %v", err)
	}
	defer os.Remove(f.Name())

	if got := filepath.Base(f.Name()); got != "5c173ff2.2020-06-20_21-33-24.png" {
		t.Errorf("The downloaded image should keep the remote file name. Got %s", got)
	}
	if !strings.Contains(f.Name(), "download") {
		t.Errorf("The downloaded image should have been saved in a temporary folder")
	}
}

func TestUtils_ShouldRejectNonImageDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("just some plain text"))
	}))
	defer srv.Close()

	if _, err := DownloadImage(srv.URL + "/notes.txt"); err == nil {
		t.Errorf("Downloading a non image file should have failed")
	}

	if _, err := DownloadImage(srv.URL); err == nil {
		t.Errorf("Downloading a URI without a file name should have failed")
	}
}

func TestUtils_ShouldBeValidUrl(t *testing.T) {
	cases := []struct {
		uri      string
		expected bool
	}{
		{"https://example.com/series/index.json", true},
		{"http://127.0.0.1:8080/photo.jpg", true},
		{"/var/photos/5c173ff2.2020-06-20_21-33-24.jpg", false},
		{"photo.jpg", false},
		{"", false},
	}
	for _, c := range cases {
		if got := IsValidUrl(c.uri); got != c.expected {
			t.Errorf("IsValidUrl(%q) expected to be %v. Got %v", c.uri, c.expected, got)
		}
	}
}
