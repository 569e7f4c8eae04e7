// Cover artwork for EPUB output: the first page's picture filling a square
// canvas, with the book title and page count on a white band. Books without
// pictures get a pattern of coloured dots seeded from the title.
package main

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const coverSize = 1200

// Crayon-box colours for the dot pattern.
var coverPalette = []color.RGBA{
	{0xE6, 0x39, 0x46, 0xFF},
	{0xF4, 0xA2, 0x61, 0xFF},
	{0xE9, 0xC4, 0x6A, 0xFF},
	{0x2A, 0x9D, 0x8F, 0xFF},
	{0x45, 0x7B, 0x9D, 0xFF},
	{0x8E, 0x7D, 0xBE, 0xFF},
}

// generateCover returns a JPEG cover for the book.
func generateCover(title string, pages []*Page) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, coverSize, coverSize))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	if pic := firstPicture(pages); pic != nil {
		drawCovering(img, pic)
	} else {
		drawDots(img, sha256.Sum256([]byte(title)))
	}

	boldFace, err := loadFace(gobold.TTF, 80)
	if err != nil {
		return nil, fmt.Errorf("loading bold font: %w", err)
	}
	regularFace, err := loadFace(goregular.TTF, 40)
	if err != nil {
		return nil, fmt.Errorf("loading regular font: %w", err)
	}
	drawTitleBand(img, title, len(pages), boldFace, regularFace)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: scaledJPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding cover JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// firstPicture decodes the image of the first page that has one. Pages whose
// image cannot be read are skipped.
func firstPicture(pages []*Page) image.Image {
	for _, p := range pages {
		if p.Image == nil {
			continue
		}
		f, err := os.Open(p.Image.Path)
		if err != nil {
			continue
		}
		pic, _, err := image.Decode(f)
		f.Close()
		if err == nil {
			return pic
		}
	}
	return nil
}

// drawCovering scales src to cover dst entirely and centres it, the same
// fit the PDF pages use.
func drawCovering(dst draw.Image, src image.Image) {
	sb, db := src.Bounds(), dst.Bounds()
	scale := max(float64(db.Dx())/float64(sb.Dx()), float64(db.Dy())/float64(sb.Dy()))
	w := int(math.Ceil(float64(sb.Dx()) * scale))
	h := int(math.Ceil(float64(sb.Dy()) * scale))
	x := (db.Dx() - w) / 2
	y := (db.Dy() - h) / 2
	draw.BiLinear.Scale(dst, image.Rect(x, y, x+w, y+h), src, sb, draw.Over, nil)
}

// drawDots fills the canvas with a grid of circles whose colour and size
// come from the hash bytes.
func drawDots(img *image.RGBA, hash [32]byte) {
	const (
		cells = 8
		cell  = coverSize / cells
	)
	for row := 0; row < cells; row++ {
		for col := 0; col < cells; col++ {
			idx := (row*cells + col) % len(hash)
			b := hash[idx] ^ byte(row*17+col*31)
			c := coverPalette[int(b)%len(coverPalette)]

			b2 := hash[(idx+7)%len(hash)] ^ byte(row*13+col*41)
			maxR := float64(cell) / 2.2
			minR := maxR * 0.3
			radius := minR + (maxR-minR)*float64(b2)/255.0

			fillCircle(img, col*cell+cell/2, row*cell+cell/2, radius, c)
		}
	}
}

func fillCircle(img *image.RGBA, cx, cy int, radius float64, c color.RGBA) {
	r := int(math.Ceil(radius))
	r2 := radius * radius
	b := img.Bounds()
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if float64(dx*dx+dy*dy) > r2 {
				continue
			}
			if p := image.Pt(cx+dx, cy+dy); p.In(b) {
				img.SetRGBA(p.X, p.Y, c)
			}
		}
	}
}

// drawTitleBand paints a white band across the lower third and writes the
// wrapped title and the page count in it.
func drawTitleBand(img *image.RGBA, title string, pageCount int, titleFace, metaFace font.Face) {
	const padX = 80
	maxWidth := coverSize - padX*2

	lines := wrapText(title, titleFace, maxWidth)
	lineHeight := titleFace.Metrics().Height.Ceil() + 8
	metaHeight := metaFace.Metrics().Height.Ceil() + 16
	bandHeight := len(lines)*lineHeight + metaHeight + 80

	bandTop := coverSize - bandHeight - 60
	draw.Draw(img,
		image.Rect(0, bandTop, coverSize, bandTop+bandHeight),
		image.NewUniform(color.RGBA{0xFF, 0xFF, 0xFF, 0xE6}),
		image.Point{},
		draw.Over,
	)

	y := bandTop + 40 + titleFace.Metrics().Ascent.Ceil()
	for _, line := range lines {
		lineW := font.MeasureString(titleFace, line).Ceil()
		drawString(img, line, titleFace, (coverSize-lineW)/2, y)
		y += lineHeight
	}

	y += 16
	meta := fmt.Sprintf("%d pages", pageCount)
	if pageCount == 1 {
		meta = "1 page"
	}
	metaW := font.MeasureString(metaFace, meta).Ceil()
	drawString(img, meta, metaFace, (coverSize-metaW)/2, y)
}

// drawString renders a string in black with its baseline at y.
func drawString(img draw.Image, s string, face font.Face, x, y int) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Black),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// wrapText splits text into lines that fit within maxWidth pixels. A single
// word wider than maxWidth gets a line of its own.
func wrapText(text string, face font.Face, maxWidth int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{text}
	}

	var lines []string
	current := words[0]
	for _, word := range words[1:] {
		trial := current + " " + word
		if font.MeasureString(face, trial).Ceil() <= maxWidth {
			current = trial
		} else {
			lines = append(lines, current)
			current = word
		}
	}
	return append(lines, current)
}

// loadFace parses an OpenType font and returns a Face at the given size in points.
func loadFace(ttf []byte, sizePt float64) (font.Face, error) {
	f, err := opentype.Parse(ttf)
	if err != nil {
		return nil, err
	}
	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    sizePt,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}
