package ocr

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Variant is one deterministic preprocessing of a page image. Variants are
// tried in order and the best-scoring OCR result across them wins.
type Variant struct {
	Name  string
	Image image.Image
}

// Variants builds the standard preprocessing set for one rendered page.
func Variants(src image.Image) []Variant {
	out := []Variant{{Name: "original", Image: src}}
	if cropped, changed := autocrop(src); changed {
		out = append(out, Variant{Name: "autocrop", Image: cropped})
	}
	out = append(out, Variant{Name: "enhanced", Image: enhance(src)})
	out = append(out, Variant{Name: "binarized", Image: binarize(src)})
	return out
}

// autocrop trims near-white margins down to the content bounding box, with a
// small padding. Returns the source unchanged when nothing was trimmed.
func autocrop(src image.Image) (image.Image, bool) {
	gray := imaging.Grayscale(src)
	b := gray.Bounds()
	const whiteCutoff = 245

	minX, minY := b.Max.X, b.Max.Y
	maxX, maxY := b.Min.X-1, b.Min.Y-1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.GrayModel.Convert(gray.At(x, y)).(color.Gray)
			if c.Y < whiteCutoff {
				if x < minX {
					minX = x
				}
				if x > maxX {
					maxX = x
				}
				if y < minY {
					minY = y
				}
				if y > maxY {
					maxY = y
				}
			}
		}
	}
	if maxX < minX || maxY < minY {
		return src, false
	}
	const pad = 8
	rect := image.Rect(maxInt(b.Min.X, minX-pad), maxInt(b.Min.Y, minY-pad),
		minInt(b.Max.X, maxX+pad+1), minInt(b.Max.Y, maxY+pad+1))
	if rect == b {
		return src, false
	}
	return imaging.Crop(src, rect), true
}

// enhance boosts contrast, sharpens, and upscales small pages so thermal
// receipt print survives OCR.
func enhance(src image.Image) image.Image {
	img := imaging.AdjustContrast(src, 25)
	img = imaging.Sharpen(img, 1.2)
	if w := img.Bounds().Dx(); w < 1600 {
		img = imaging.Resize(img, w*2, 0, imaging.Lanczos)
	}
	return img
}

// binarize applies global Otsu thresholding.
func binarize(src image.Image) image.Image {
	gray := imaging.Grayscale(src)
	t := otsuThreshold(gray)
	b := gray.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.GrayModel.Convert(gray.At(x, y)).(color.Gray)
			if c.Y > t {
				out.SetGray(x, y, color.Gray{Y: 255})
			} else {
				out.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return out
}

// otsuThreshold picks the threshold maximizing between-class variance over
// the grayscale histogram.
func otsuThreshold(img image.Image) uint8 {
	var hist [256]int
	b := img.Bounds()
	total := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			hist[c.Y]++
			total++
		}
	}
	if total == 0 {
		return 128
	}

	var sum float64
	for i, n := range hist {
		sum += float64(i) * float64(n)
	}
	var sumB, wB float64
	var best float64
	var threshold uint8 = 128
	for i := 0; i < 256; i++ {
		wB += float64(hist[i])
		if wB == 0 {
			continue
		}
		wF := float64(total) - wB
		if wF == 0 {
			break
		}
		sumB += float64(i) * float64(hist[i])
		mB := sumB / wB
		mF := (sum - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			threshold = uint8(i)
		}
	}
	return threshold
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
