// Package pdf abstracts page access over PDF and raster-image source files.
package pdf

import (
	"fmt"
	"image"
	_ "image/jpeg" // register decoders for raster sources
	_ "image/png"
	"os"
	"strings"

	"github.com/gen2brain/go-fitz"
	_ "golang.org/x/image/bmp"  // scanned receipts show up as BMP too
	_ "golang.org/x/image/tiff" // and multi-page TIFF exports

	"github.com/karelmartinek-a11y/kajovospend/constants"
)

// Source yields per-page embedded text and rendered images for one file.
// PDF sources return the embedded text layer; raster sources have no text.
type Source interface {
	NumPages() int
	// Text returns the embedded text of a zero-based page. Empty for raster
	// sources and for scanned PDFs without a text layer.
	Text(page int) (string, error)
	// Render rasterizes a zero-based page at roughly the given DPI.
	Render(page int, dpi float64) (image.Image, error)
	Close() error
}

// Open picks the implementation from the file extension.
func Open(path string) (Source, error) {
	ext := constants.NormalizeExt(path)
	if ext == "pdf" {
		doc, err := fitz.New(path)
		if err != nil {
			return nil, fmt.Errorf("opening pdf %s: %w", path, err)
		}
		return &fitzSource{doc: doc}, nil
	}
	return openImage(path)
}

type fitzSource struct {
	doc *fitz.Document
}

func (s *fitzSource) NumPages() int { return s.doc.NumPage() }

func (s *fitzSource) Text(page int) (string, error) {
	text, err := s.doc.Text(page)
	if err != nil {
		return "", fmt.Errorf("extracting text from page %d: %w", page+1, err)
	}
	return text, nil
}

func (s *fitzSource) Render(page int, dpi float64) (image.Image, error) {
	img, err := s.doc.ImageDPI(page, dpi)
	if err != nil {
		return nil, fmt.Errorf("rendering page %d: %w", page+1, err)
	}
	return img, nil
}

func (s *fitzSource) Close() error { return s.doc.Close() }

// imageSource treats one raster file as a single page with no text layer.
type imageSource struct {
	img image.Image
}

func openImage(path string) (*imageSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening image %s: %w", path, err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding image %s: %w", path, err)
	}
	return &imageSource{img: img}, nil
}

func (s *imageSource) NumPages() int { return 1 }

func (s *imageSource) Text(int) (string, error) { return "", nil }

func (s *imageSource) Render(int, float64) (image.Image, error) { return s.img, nil }

func (s *imageSource) Close() error { return nil }

// DetectMime returns a coarse MIME type from the extension. Good enough for
// the files table; content sniffing is not needed for dispatch.
func DetectMime(path string) string {
	switch ext := constants.NormalizeExt(path); ext {
	case "pdf":
		return "application/pdf"
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "tif", "tiff":
		return "image/tiff"
	case "bmp":
		return "image/bmp"
	default:
		if ext == "" {
			return "application/octet-stream"
		}
		return "image/" + strings.ToLower(ext)
	}
}
