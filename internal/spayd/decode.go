package spayd

import (
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// DecodeImage scans a rendered page for a QR code and returns its text
// payload. Pages without a readable code return false; decode failures are
// not errors, most documents simply carry no QR.
func DecodeImage(img image.Image) (string, bool) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", false
	}
	result, err := qrcode.NewQRCodeReader().Decode(bmp, nil)
	if err != nil || result == nil {
		return "", false
	}
	return result.GetText(), true
}
