package visualization

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/tiff"

	"usbeamform/pkg/imagestore"
)

// gradientImage builds a height × width image whose pixel value is row*width+col
func gradientImage(height, width int) *imagestore.Image {
	pixels := make([]uint32, height*width)
	for i := range pixels {
		pixels[i] = uint32(i)
	}
	return imagestore.NewImage(height, width, pixels, 0, "sequential")
}

// TestNewViewer verifies construction and peak detection
func TestNewViewer(t *testing.T) {
	viewer, err := NewViewer(gradientImage(5, 3))
	if err != nil {
		t.Fatalf("Failed to create viewer: %v", err)
	}
	if viewer.Peak() != 14 {
		t.Errorf("Expected peak 14, got %d", viewer.Peak())
	}

	if _, err := NewViewer(nil); err == nil {
		t.Error("Expected error for nil image, got nil")
	}

	broken := &imagestore.Image{Height: 2, Width: 2, Pixels: make([]uint32, 3)}
	if _, err := NewViewer(broken); err == nil {
		t.Error("Expected error for inconsistent image, got nil")
	}
}

// TestRender verifies normalization and scaling
func TestRender(t *testing.T) {
	viewer, err := NewViewer(gradientImage(5, 3))
	if err != nil {
		t.Fatalf("Failed to create viewer: %v", err)
	}

	img, err := viewer.Render(4)
	if err != nil {
		t.Fatalf("Failed to render: %v", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() != 12 || bounds.Dy() != 20 {
		t.Errorf("Expected 12x20 render, got %dx%d", bounds.Dx(), bounds.Dy())
	}

	if got := img.Gray16At(0, 0).Y; got != 0 {
		t.Errorf("Expected black top-left, got %d", got)
	}
	if got := img.Gray16At(11, 19).Y; got != 65535 {
		t.Errorf("Expected white bottom-right, got %d", got)
	}
	// Every pixel in a block carries the same level
	if img.Gray16At(4, 0).Y != img.Gray16At(7, 3).Y {
		t.Error("Scaled block is not uniform")
	}

	if _, err := viewer.Render(0); err == nil {
		t.Error("Expected error for zero scale, got nil")
	}
}

// TestRenderBlank verifies that an all-zero image renders black
func TestRenderBlank(t *testing.T) {
	img := imagestore.NewImage(2, 2, make([]uint32, 4), 0, "parallel")
	viewer, err := NewViewer(img)
	if err != nil {
		t.Fatalf("Failed to create viewer: %v", err)
	}
	out, err := viewer.Render(1)
	if err != nil {
		t.Fatalf("Failed to render: %v", err)
	}
	for _, p := range out.Pix {
		if p != 0 {
			t.Fatal("Expected a black image")
		}
	}
}

// TestExtractLine verifies single steering line extraction
func TestExtractLine(t *testing.T) {
	viewer, err := NewViewer(gradientImage(5, 3))
	if err != nil {
		t.Fatalf("Failed to create viewer: %v", err)
	}

	line, err := viewer.ExtractLine(2)
	if err != nil {
		t.Fatalf("Failed to extract line: %v", err)
	}
	if len(line) != 5 {
		t.Fatalf("Expected 5 samples, got %d", len(line))
	}
	for i := 1; i < len(line); i++ {
		if line[i] <= line[i-1] {
			t.Errorf("Line should increase with depth: %v", line)
			break
		}
	}
	if line[4] != 65535 {
		t.Errorf("Expected peak at the bottom of the last line, got %d", line[4])
	}

	if _, err := viewer.ExtractLine(3); err == nil {
		t.Error("Expected error for out of range column, got nil")
	}
}

// TestExtractRegion verifies rectangular window extraction
func TestExtractRegion(t *testing.T) {
	img := gradientImage(5, 3)
	viewer, err := NewViewer(img)
	if err != nil {
		t.Fatalf("Failed to create viewer: %v", err)
	}

	region, err := viewer.ExtractRegion(1, 1, 3, 2)
	if err != nil {
		t.Fatalf("Failed to extract region: %v", err)
	}
	want := []uint32{4, 5, 7, 8, 10, 11}
	if len(region) != len(want) {
		t.Fatalf("Expected %d values, got %d", len(want), len(region))
	}
	for i := range want {
		if region[i] != want[i] {
			t.Errorf("Region value mismatch at %d: expected %d, got %d", i, want[i], region[i])
		}
	}

	if _, err := viewer.ExtractRegion(-1, 0, 1, 1); err == nil {
		t.Error("Expected error for negative start coordinate, got nil")
	}
	if _, err := viewer.ExtractRegion(0, 0, 0, 1); err == nil {
		t.Error("Expected error for zero size, got nil")
	}
	if _, err := viewer.ExtractRegion(4, 0, 2, 1); err == nil {
		t.Error("Expected error for region extending beyond image, got nil")
	}
}

// TestSave verifies that images can be written in both formats
func TestSave(t *testing.T) {
	// Skip this test in short mode
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}

	dir := t.TempDir()
	viewer, err := NewViewer(gradientImage(5, 3))
	if err != nil {
		t.Fatalf("Failed to create viewer: %v", err)
	}

	tifPath := filepath.Join(dir, "out", "image.tif")
	if err := viewer.Save(tifPath, 8); err != nil {
		t.Fatalf("Failed to save TIFF: %v", err)
	}

	f, err := os.Open(tifPath)
	if err != nil {
		t.Fatalf("Failed to open TIFF: %v", err)
	}
	defer f.Close()
	decoded, err := tiff.Decode(f)
	if err != nil {
		t.Fatalf("Failed to decode TIFF: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 24 || b.Dy() != 40 {
		t.Errorf("Expected 24x40 TIFF, got %dx%d", b.Dx(), b.Dy())
	}

	jpgPath := filepath.Join(dir, "image.jpg")
	if err := viewer.Save(jpgPath, 1); err != nil {
		t.Fatalf("Failed to save JPEG: %v", err)
	}
	if _, err := os.Stat(jpgPath); os.IsNotExist(err) {
		t.Errorf("Saved file does not exist: %s", jpgPath)
	}

	if err := viewer.Save(filepath.Join(dir, "image.bmp"), 1); err == nil {
		t.Error("Expected error for unsupported format, got nil")
	}
}
