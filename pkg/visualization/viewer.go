// Package visualization turns reconstructed beamformed images into
// displayable grayscale pictures and writes them to disk.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/tiff"

	"usbeamform/pkg/imagestore"
)

// Viewer renders one reconstructed image. Intensities are normalized
// against the brightest pixel so the full 16-bit range is used.
type Viewer struct {
	// img is the reconstructed image being rendered
	img *imagestore.Image

	// peak is the largest pixel value in img
	peak uint32
}

// NewViewer creates a viewer for img
func NewViewer(img *imagestore.Image) (*Viewer, error) {
	if img == nil {
		return nil, fmt.Errorf("no image to view")
	}
	if img.Height < 1 || img.Width < 1 || len(img.Pixels) != img.Height*img.Width {
		return nil, fmt.Errorf("image %dx%d carries %d pixels", img.Height, img.Width, len(img.Pixels))
	}

	v := &Viewer{img: img}
	for _, p := range img.Pixels {
		if p > v.peak {
			v.peak = p
		}
	}
	return v, nil
}

// Peak returns the brightest pixel value of the image
func (v *Viewer) Peak() uint32 {
	return v.peak
}

// level maps a raw pixel to a 16-bit gray level
func (v *Viewer) level(p uint32) uint16 {
	if v.peak == 0 {
		return 0
	}
	return uint16(uint64(p) * 65535 / uint64(v.peak))
}

// Render returns the image as 16-bit grayscale, each pixel enlarged to a
// scale × scale block. Columns are steering angles, rows are depth.
func (v *Viewer) Render(scale int) (*image.Gray16, error) {
	if scale < 1 {
		return nil, fmt.Errorf("scale must be at least 1, got %d", scale)
	}

	out := image.NewGray16(image.Rect(0, 0, v.img.Width*scale, v.img.Height*scale))
	for row := 0; row < v.img.Height; row++ {
		for col := 0; col < v.img.Width; col++ {
			c := color.Gray16{Y: v.level(v.img.At(row, col))}
			for dy := 0; dy < scale; dy++ {
				for dx := 0; dx < scale; dx++ {
					out.SetGray16(col*scale+dx, row*scale+dy, c)
				}
			}
		}
	}
	return out, nil
}

// ExtractLine returns the normalized intensities of a single steering line
func (v *Viewer) ExtractLine(col int) ([]uint16, error) {
	if col < 0 || col >= v.img.Width {
		return nil, fmt.Errorf("column %d outside [0, %d)", col, v.img.Width)
	}

	line := make([]uint16, v.img.Height)
	for row := range line {
		line[row] = v.level(v.img.At(row, col))
	}
	return line, nil
}

// ExtractRegion returns a rectangular window of raw pixel values, row-major
func (v *Viewer) ExtractRegion(startRow, startCol, rows, cols int) ([]uint32, error) {
	if startRow < 0 || startCol < 0 {
		return nil, fmt.Errorf("start coordinates must be non-negative")
	}
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("region dimensions must be positive")
	}
	if startRow+rows > v.img.Height || startCol+cols > v.img.Width {
		return nil, fmt.Errorf("region extends beyond image boundaries")
	}

	region := make([]uint32, 0, rows*cols)
	for r := startRow; r < startRow+rows; r++ {
		region = append(region, v.img.Pixels[r*v.img.Width+startCol:r*v.img.Width+startCol+cols]...)
	}
	return region, nil
}

// SaveJPEG writes img as a JPEG file
func SaveJPEG(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveTIFF writes img as a deflate-compressed TIFF file, keeping 16-bit depth
func SaveTIFF(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return tiff.Encode(file, img, &tiff.Options{Compression: tiff.Deflate})
}

// Save renders the image at the given scale and writes it to filename.
// The format follows the extension: .tif/.tiff or .jpg/.jpeg.
func (v *Viewer) Save(filename string, scale int) error {
	img, err := v.Render(scale)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".tif", ".tiff":
		return SaveTIFF(img, filename)
	case ".jpg", ".jpeg":
		return SaveJPEG(img, filename)
	default:
		return fmt.Errorf("unsupported image format: %s (must be .tif or .jpg)", filepath.Ext(filename))
	}
}
