// PDF rendering: a title cover followed by one full-bleed picture page per
// book page, with translucent text boxes over the image.
package main

import (
	"fmt"
	"image"
	"os"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"golang.org/x/image/font/gofont/gobold"
)

const (
	pdfFontFamily = "Go"
	// haloPad is the gap between text and the edge of its backing box.
	haloPad = 3.0
	// lineSpacing is line height as a multiple of font size.
	lineSpacing = 1.2
	// textBackgroundAlpha is the opacity of the white box behind text.
	textBackgroundAlpha = 0.5
)

// textBlock is a chunk of text broken into lines for a given width.
type textBlock struct {
	lines      []string
	fontSize   float64
	lineHeight float64
}

func (b textBlock) height() float64 {
	return float64(len(b.lines)) * b.lineHeight
}

// fit drops the trailing lines that do not fit in h.
func (b textBlock) fit(h float64) textBlock {
	n := max(int(h/b.lineHeight), 0)
	if n < len(b.lines) {
		b.lines = b.lines[:n]
	}
	return b
}

// pdfText drops characters above U+FFFF, which gofpdf's UTF-8 width table
// cannot index, and closes up the gaps they leave.
func pdfText(s string) string {
	if !strings.ContainsFunc(s, func(r rune) bool { return r > 0xFFFF }) {
		return s
	}
	s = strings.Map(func(r rune) rune {
		if r > 0xFFFF {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// coverRect scales an imgW x imgH image so it covers the whole page and
// centres it. The overflowing axis gets a negative offset.
func coverRect(cfg BookConfig, imgW, imgH int) (x, y, w, h float64) {
	pw, ph := cfg.PageWidth, cfg.PageHeight
	scale := max(pw/float64(imgW), ph/float64(imgH))
	w, h = float64(imgW)*scale, float64(imgH)*scale
	return (pw - w) / 2, (ph - h) / 2, w, h
}

// bodyTop is where a body block of the given height starts so that its
// bottom edge sits one padding above the bottom of the page.
func bodyTop(cfg BookConfig, height float64) float64 {
	return max(cfg.PageHeight-cfg.Padding-height, cfg.Padding)
}

type pdfRenderer struct {
	pdf *gofpdf.Fpdf
	cfg BookConfig
}

func newPDFRenderer(bookTitle string, cfg BookConfig) *pdfRenderer {
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: cfg.PageWidth, Ht: cfg.PageHeight},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle(pdfText(bookTitle), true)
	pdf.SetCreator("picturebook", true)
	pdf.AddUTF8FontFromBytes(pdfFontFamily, "B", gobold.TTF)
	pdf.SetTextColor(0, 0, 0)
	return &pdfRenderer{pdf: pdf, cfg: cfg}
}

// textWidth is the usable column width inside the page padding.
func (r *pdfRenderer) textWidth() float64 {
	return r.cfg.PageWidth - 2*r.cfg.Padding - 4*haloPad
}

// measure wraps text to the column width and reports the lines it needs.
// It draws nothing.
func (r *pdfRenderer) measure(text string, fontSize float64) textBlock {
	r.pdf.SetFont(pdfFontFamily, "B", fontSize)
	return textBlock{
		lines:      r.pdf.SplitText(pdfText(text), r.textWidth()),
		fontSize:   fontSize,
		lineHeight: fontSize * lineSpacing,
	}
}

// place draws a measured block with its top edge at y. Each line gets a
// translucent white box; the boxes of adjacent lines touch without
// overlapping.
func (r *pdfRenderer) place(b textBlock, y float64) {
	pdf := r.pdf
	x := r.cfg.Padding + 2*haloPad
	pdf.SetFont(pdfFontFamily, "B", b.fontSize)

	for i, line := range b.lines {
		lineY := y + float64(i)*b.lineHeight
		boxY, boxH := lineY, b.lineHeight
		if i == 0 {
			boxY -= haloPad
			boxH += haloPad
		}
		if i == len(b.lines)-1 {
			boxH += haloPad
		}

		pdf.SetAlpha(textBackgroundAlpha, "Normal")
		pdf.SetFillColor(255, 255, 255)
		pdf.Rect(x-2*haloPad, boxY, pdf.GetStringWidth(line)+4*haloPad, boxH, "F")
		pdf.SetAlpha(1, "Normal")

		pdf.SetXY(x, lineY)
		pdf.CellFormat(pdf.GetStringWidth(line), b.lineHeight, line, "", 0, "LM", false, 0, "")
	}
}

func (r *pdfRenderer) cover(bookTitle string) {
	pdf := r.pdf
	pdf.AddPage()
	pdf.SetFont(pdfFontFamily, "B", r.cfg.TitleFontSize)
	pdf.SetXY(r.cfg.Padding, r.cfg.Padding)
	pdf.MultiCell(r.cfg.PageWidth-2*r.cfg.Padding, r.cfg.TitleFontSize*lineSpacing, pdfText(bookTitle), "", "L", false)
}

// background draws the image scaled to cover the whole page, centred, with
// any overflow cropped by the page edges.
func (r *pdfRenderer) background(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	cfg, _, err := image.DecodeConfig(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("could not read image size of %s: %w", path, err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return fmt.Errorf("image %s has no pixels", path)
	}

	x, y, w, h := coverRect(r.cfg, cfg.Width, cfg.Height)
	r.pdf.ImageOptions(path, x, y, w, h, false, gofpdf.ImageOptions{
		ImageType:             imageKind(path),
		AllowNegativePosition: true,
	}, 0, "")
	return r.pdf.Error()
}

func (r *pdfRenderer) page(p *Page) error {
	r.pdf.AddPage()

	if p.Image != nil {
		scaled, err := scaleImage(p.Image.Path)
		if err != nil {
			return fmt.Errorf("page %q: %w", p.Title.Effective(), err)
		}
		if err := r.background(scaled); err != nil {
			return fmt.Errorf("page %q: %w", p.Title.Effective(), err)
		}
	}

	pad := r.cfg.Padding
	below := pad
	if title := p.Title.Effective(); title != "" {
		heading := r.measure(title, r.cfg.PageTitleFontSize).fit(r.cfg.PageHeight - 2*pad)
		r.place(heading, pad)
		below = pad + heading.height() + 2*haloPad
	}

	// Body text sits a fixed padding above the bottom edge, however many
	// lines it wraps to. Lines that would run into the title are dropped.
	if text := p.Text.Effective(); text != "" {
		body := r.measure(text, r.cfg.TextFontSize).fit(r.cfg.PageHeight - pad - below)
		r.place(body, bodyTop(r.cfg, body.height()))
	}
	return r.pdf.Error()
}

// generatePDF writes a cover page plus one page per book page to out.
func generatePDF(bookTitle string, pages []*Page, out string, cfg BookConfig) error {
	fmt.Fprintf(logOut, "Writing PDF to %s\n", out)

	r := newPDFRenderer(bookTitle, cfg)
	r.cover(bookTitle)
	for _, p := range pages {
		pprintf("Writing page: %s\n", p.Title.Effective())
		if err := r.page(p); err != nil {
			return err
		}
	}

	if err := r.pdf.OutputFileAndClose(out); err != nil {
		return fmt.Errorf("failed to write PDF: %w", err)
	}
	return nil
}
