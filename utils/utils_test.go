package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestUtils_MinMaxAbs(t *testing.T) {
	if got := Min(2, 5); got != 2 {
		t.Errorf("Min expected to be 2. Got %d", got)
	}
	if got := Min(0.5, -0.5); got != -0.5 {
		t.Errorf("Min expected to be -0.5. Got %f", got)
	}
	if got := Max(2, 5); got != 5 {
		t.Errorf("Max expected to be 5. Got %d", got)
	}
	if got := Max("a", "b"); got != "b" {
		t.Errorf("Max expected to be b. Got %s", got)
	}
	if got := Abs(-3); got != 3 {
		t.Errorf("Abs expected to be 3. Got %d", got)
	}
	if got := Abs(1.25); got != 1.25 {
		t.Errorf("Abs expected to be 1.25. Got %f", got)
	}
}

func TestUtils_ShouldContainValue(t *testing.T) {
	exts := []string{".jpg", ".png", ".svg"}
	if !Contains(exts, ".svg") {
		t.Errorf("The extension list should contain .svg")
	}
	if Contains(exts, ".gif") {
		t.Errorf("The extension list should not contain .gif")
	}
	if Contains([]int{}, 1) {
		t.Errorf("An empty slice should not contain anything")
	}
}

func TestUtils_FormatTime(t *testing.T) {
	cases := []struct {
		d        time.Duration
		expected string
	}{
		{1500 * time.Millisecond, "1.50s"},
		{45 * time.Second, "45.00s"},
		{90 * time.Second, "1m 30.00s"},
		{2*time.Hour + 3*time.Minute + 4*time.Second, "2h 3m 4.00s"},
		{26*time.Hour + 30*time.Minute + 15*time.Second, "1d 2h 30m 15.00s"},
	}
	for _, c := range cases {
		if got := FormatTime(c.d); got != c.expected {
			t.Errorf("Formatted duration expected to be %q. Got %q", c.expected, got)
		}
	}
}

func TestUtils_DecorateText(t *testing.T) {
	if got := DecorateText("boom", ErrorMessage); got != ErrorColor+"boom"+DefaultColor {
		t.Errorf("Error text expected to be wrapped in the error color. Got %q", got)
	}
	if got := DecorateText("ok", SuccessMessage); got != SuccessColor+"ok"+DefaultColor {
		t.Errorf("Success text expected to be wrapped in the success color. Got %q", got)
	}
	if got := DecorateText("plain", MessageType(42)); got != "plain" {
		t.Errorf("Unknown message types expected to pass through. Got %q", got)
	}
}

func TestUtils_ShouldDetectValidFileType(t *testing.T) {
	tmp := t.TempDir()

	png := filepath.Join(tmp, "sample.png")
	if err := os.WriteFile(png, []byte("\x89PNG\r\n\x1a\n"), 0644); err != nil {
		t.Fatalf("could not write sample file: %v", err)
	}
	ftype, err := DetectContentType(png)
	if err != nil {
		t.Fatalf("could not detect content type: %v", err)
	}
	if !strings.Contains(ftype, "image") {
		t.Errorf("Content type expected to be of type image. Got %v", ftype)
	}

	doc := filepath.Join(tmp, "sample.svg")
	if err := os.WriteFile(doc, []byte(`<?xml version="1.0"?><svg></svg>`), 0644); err != nil {
		t.Fatalf("could not write sample file: %v", err)
	}
	ftype, err = DetectContentType(doc)
	if err != nil {
		t.Fatalf("could not detect content type: %v", err)
	}
	if !strings.Contains(ftype, "xml") {
		t.Errorf("Content type expected to be of type xml. Got %v", ftype)
	}
}
