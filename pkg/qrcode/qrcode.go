package qrcode

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/fogleman/gg"
	"github.com/nfnt/resize"
	goqr "github.com/skip2/go-qrcode"
)

// finderSize is the width in modules of the three corner finder patterns.
const finderSize = 7

type Config struct {
	Size       int // Output width and height in pixels
	QuietZone  int // Margin in pixels around the code
	Background color.Color
	Foreground color.Color
	// DotScale is the diameter of a data dot relative to a module, 0 or >= 1 draws squares
	DotScale      float64
	RecoveryLevel goqr.RecoveryLevel
	LogoPath      string
	LogoScale     float64 // Logo width relative to the code
}

var Default = Config{
	Size:          320,
	QuietZone:     16,
	Background:    color.RGBA{R: 255, G: 255, B: 255, A: 255},
	Foreground:    color.RGBA{R: 38, G: 50, B: 56, A: 255},
	DotScale:      0.9,
	RecoveryLevel: goqr.High,
	LogoScale:     0.2,
}

// Generate renders content as a PNG.
func (c Config) Generate(content string) ([]byte, error) {
	if c.Size <= 2*c.QuietZone {
		return nil, fmt.Errorf("qr size %d too small for quiet zone %d", c.Size, c.QuietZone)
	}

	qr, err := goqr.New(content, c.RecoveryLevel)
	if err != nil {
		return nil, err
	}
	qr.DisableBorder = true
	bitmap := qr.Bitmap()
	n := len(bitmap)

	inner := float64(c.Size - 2*c.QuietZone)
	module := inner / float64(n)
	offset := float64(c.QuietZone)

	var logo image.Image
	logoSize := 0
	if c.LogoPath != "" {
		logo, err = gg.LoadImage(c.LogoPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load qr logo: %w", err)
		}
		logoSize = int(inner * c.LogoScale)
	}
	center := float64(c.Size) / 2
	clearRadius := float64(logoSize)/2 + module

	dc := gg.NewContext(c.Size, c.Size)
	dc.SetColor(c.Background)
	dc.Clear()
	dc.SetColor(c.Foreground)

	for y, row := range bitmap {
		for x, dark := range row {
			if !dark {
				continue
			}
			px := offset + float64(x)*module
			py := offset + float64(y)*module
			cx, cy := px+module/2, py+module/2

			if logo != nil {
				dx, dy := cx-center, cy-center
				if dx*dx+dy*dy < clearRadius*clearRadius {
					continue
				}
			}

			if c.DotScale <= 0 || c.DotScale >= 1 || isFinder(x, y, n) {
				dc.DrawRectangle(px, py, module, module)
			} else {
				dc.DrawCircle(cx, cy, module*c.DotScale/2)
			}
		}
	}
	dc.Fill()

	if logo != nil {
		resized := resize.Resize(uint(logoSize), uint(logoSize), logo, resize.Lanczos3)

		dc.SetColor(c.Background)
		dc.DrawCircle(center, center, float64(logoSize)/2+module/2)
		dc.Fill()
		dc.DrawImageAnchored(resized, int(center), int(center), 0.5, 0.5)
	}

	var buf bytes.Buffer
	if err = png.Encode(&buf, dc.Image()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isFinder(x, y, n int) bool {
	top := y < finderSize
	left := x < finderSize
	return (top && left) || (top && x >= n-finderSize) || (left && y >= n-finderSize)
}
