// Image downscaling for page backgrounds. Scaled copies live next to the
// downloaded binary so repeat renders skip the work.
package main

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// maxScaledEdge bounds the longer edge of a scaled image, in pixels.
const maxScaledEdge = 512

const scaledJPEGQuality = 85

func humanSize(n int64) string {
	units := []string{"B", "KB", "MB", "GB", "TB"}
	f := float64(n)
	for _, u := range units {
		if math.Abs(f) < 1024 {
			return fmt.Sprintf("%.1f%s", f, u)
		}
		f /= 1024
	}
	return fmt.Sprintf("%.1f%s", f, units[len(units)-1])
}

// resize downscales an image using BiLinear resampling.
func resize(src image.Image, dstW, dstH int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, dstW, dstH))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)
	return dst
}

// flattenAlpha composites src onto a white background.
func flattenAlpha(src image.Image) *image.NRGBA {
	b := src.Bounds()
	dst := image.NewNRGBA(b)
	white := image.NewUniform(color.White)
	draw.Draw(dst, b, white, image.Point{}, draw.Src)
	draw.Draw(dst, b, src, b.Min, draw.Over)
	return dst
}

// scaledSize returns the dimensions with the longer edge bounded to limit.
// Images already within bounds keep their size.
func scaledSize(w, h, limit int) (int, int) {
	if w <= limit && h <= limit {
		return w, h
	}
	if w >= h {
		nh := int(math.Round(float64(h) * float64(limit) / float64(w)))
		if nh < 1 {
			nh = 1
		}
		return limit, nh
	}
	nw := int(math.Round(float64(w) * float64(limit) / float64(h)))
	if nw < 1 {
		nw = 1
	}
	return nw, limit
}

// scaledPath returns the sibling path for the scaled copy of path:
// "Tiger.jpg" becomes "Tiger.scaled.jpg".
func scaledPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".scaled" + ext
}

// unscaledName maps a scaled file name back to the image it came from.
func unscaledName(name string) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if s, ok := strings.CutSuffix(stem, ".scaled"); ok {
		return s + ext
	}
	return name
}

// imageKind reports how a file is encoded for embedding, by extension.
func imageKind(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "PNG"
	}
	return "JPG"
}

// scaleImage returns the path of a downscaled, alpha-flattened copy of the
// image at path, creating it unless it already exists. PNG stays PNG; every
// other input is written as JPEG.
func scaleImage(path string) (string, error) {
	dest := scaledPath(path)
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("could not decode %s: %w", filepath.Base(path), err)
	}

	var out image.Image = flattenAlpha(img)
	b := out.Bounds()
	if w, h := scaledSize(b.Dx(), b.Dy(), maxScaledEdge); w != b.Dx() || h != b.Dy() {
		out = resize(out, w, h)
	}

	var buf bytes.Buffer
	if imageKind(path) == "PNG" {
		err = png.Encode(&buf, out)
	} else {
		err = jpeg.Encode(&buf, out, &jpeg.Options{Quality: scaledJPEGQuality})
	}
	if err != nil {
		return "", fmt.Errorf("failed to encode scaled image: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write scaled image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write scaled image: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("failed to move scaled image into place: %w", err)
	}

	fmt.Fprintf(logOut, "Scaled %s: %s -> %s\n", filepath.Base(path),
		humanSize(int64(len(data))), humanSize(int64(buf.Len())))
	return dest, nil
}
