package trapdoc

import (
	"errors"
	"strings"
	"testing"
)

func TestContours_ScaleCorrection(t *testing.T) {
	// The document declares the embedded bitmap at twice its true pixel
	// size, so every document coordinate has to land on half its value.
	scale := NewScale(200, 200, 100, 100)

	contours, warnings, err := ExtractContours("M 4,4 L 8,4 L 8,8 Z", scale)
	if err != nil {
		t.Fatalf("Extracting a well formed path failed: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("Warnings expected to be empty. Got %v", warnings)
	}
	if len(contours) != 1 {
		t.Fatalf("Contour count expected to be %v. Got %v", 1, len(contours))
	}

	want := Contour{{X: 2, Y: 2}, {X: 4, Y: 2}, {X: 4, Y: 4}}
	assertContour(t, want, contours[0])
}

func TestContours_PerAxisScale(t *testing.T) {
	// Width declared at twice the true size, height untouched.
	scale := NewScale(200, 100, 100, 100)

	contours, _, err := ExtractContours("M 8,8 L 16,8 L 16,16 Z", scale)
	if err != nil {
		t.Fatalf("Extracting a well formed path failed: %v", err)
	}

	want := Contour{{X: 4, Y: 8}, {X: 8, Y: 8}, {X: 8, Y: 16}}
	assertContour(t, want, contours[0])
}

func TestContours_ContinuityTolerance(t *testing.T) {
	// A sub-micron jump at a moveto is numerical noise, the sub-path
	// continues as if the pen never lifted.
	contours, _, err := ExtractContours("M 0,0 L 1,0 M 1.000001,0 L 2,0 L 2,1", IdentityScale)
	if err != nil {
		t.Fatalf("A jump below the tolerance should be absorbed: %v", err)
	}
	if len(contours) != 1 {
		t.Fatalf("Contour count expected to be %v. Got %v", 1, len(contours))
	}
	want := Contour{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 1}}
	assertContour(t, want, contours[0])

	// Anything above the tolerance is a broken document.
	_, _, err = ExtractContours("M 0,0 L 1,0 M 1.01,0 L 2,0", IdentityScale)
	if err == nil {
		t.Fatal("A jump above the tolerance should fail the decode")
	}
	var ferr *FormatError
	if !errors.As(err, &ferr) {
		t.Errorf("Error expected to be a FormatError. Got %T", err)
	}
	if !strings.Contains(err.Error(), "discontinuous") {
		t.Errorf("Error expected to report a discontinuous path. Got %v", err)
	}
}

func TestContours_DegenerateDropped(t *testing.T) {
	contours, warnings, err := ExtractContours("M 0,0 L 10,0 L 10,10 Z M 20,20 L 30,30", IdentityScale)
	if err != nil {
		t.Fatalf("A degenerate sub-path should not fail the decode: %v", err)
	}
	if len(contours) != 1 {
		t.Errorf("Contour count expected to be %v. Got %v", 1, len(contours))
	}
	if len(warnings) != 1 {
		t.Fatalf("Warning count expected to be %v. Got %v", 1, len(warnings))
	}
	if !strings.Contains(warnings[0].String(), "2 points") {
		t.Errorf("Warning expected to report the dropped point count. Got %v", warnings[0])
	}
}

func TestContours_DisjointSubPaths(t *testing.T) {
	contours, _, err := ExtractContours("M 0,0 L 4,0 L 4,4 Z M 10,10 L 14,10 L 14,14 Z", IdentityScale)
	if err != nil {
		t.Fatalf("Extracting disjoint sub-paths failed: %v", err)
	}
	if len(contours) != 2 {
		t.Fatalf("Contour count expected to be %v. Got %v", 2, len(contours))
	}
	assertContour(t, Contour{{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 4}}, contours[0])
	assertContour(t, Contour{{X: 10, Y: 10}, {X: 14, Y: 10}, {X: 14, Y: 14}}, contours[1])
}

func TestContours_CurvesSampledAtEndpoints(t *testing.T) {
	contours, _, err := ExtractContours("M 0,0 C 1,5 3,5 4,0 L 4,4 Z", IdentityScale)
	if err != nil {
		t.Fatalf("Extracting a path with curves failed: %v", err)
	}

	// The control points at y=5 must not appear in the sampled contour.
	want := Contour{{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 4}}
	assertContour(t, want, contours[0])
}

func TestContours_RelativeAndImplicitCommands(t *testing.T) {
	contours, _, err := ExtractContours("m 1,1 l 2,0 0,2 z", IdentityScale)
	if err != nil {
		t.Fatalf("Extracting a relative path failed: %v", err)
	}
	assertContour(t, Contour{{X: 1, Y: 1}, {X: 3, Y: 1}, {X: 3, Y: 3}}, contours[0])

	contours, _, err = ExtractContours("M 0,0 10,0 10,10 Z", IdentityScale)
	if err != nil {
		t.Fatalf("Extracting a path with implicit linetos failed: %v", err)
	}
	assertContour(t, Contour{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}}, contours[0])
}

func TestContours_Rounding(t *testing.T) {
	contours, _, err := ExtractContours("M 1.4,1.6 L 5.5,0 L 5,5 Z", IdentityScale)
	if err != nil {
		t.Fatalf("Extracting a well formed path failed: %v", err)
	}
	assertContour(t, Contour{{X: 1, Y: 2}, {X: 6, Y: 0}, {X: 5, Y: 5}}, contours[0])
}

func TestContours_RejectsUnsupportedInput(t *testing.T) {
	testCases := []struct {
		name string
		d    string
	}{
		{"arc command", "M 0,0 A 5 5 0 0 1 10 10"},
		{"missing moveto", "L 1,1 2,2"},
		{"dangling coordinate", "M 0,0 L 1"},
		{"garbage coordinate", "M 0,0 L x,y"},
		{"command after closepath", "M 0,0 L 1,0 Z 5,5"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := ExtractContours(tc.d, IdentityScale)
			if err == nil {
				t.Fatalf("Path %q should have been rejected", tc.d)
			}
			var ferr *FormatError
			if !errors.As(err, &ferr) {
				t.Errorf("Error expected to be a FormatError. Got %T", err)
			}
		})
	}
}

func TestContours_ScaleMustBePositive(t *testing.T) {
	_, _, err := ExtractContours("M 0,0 L 1,0 L 1,1 Z", Scale{X: 0, Y: 1})
	if err == nil {
		t.Fatal("A zero scale ratio should have been rejected")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("Error expected to be a ValidationError. Got %T", err)
	}
}

func assertContour(t *testing.T, want, got Contour) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("Contour length expected to be %v. Got %v", len(want), len(got))
	}
	for i := range want {
		if want[i] != got[i] {
			t.Errorf("Contour point %d expected to be %v. Got %v", i, want[i], got[i])
		}
	}
}
