// Package render draws printable receipts for resolved invoices.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"strings"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/zombor/shoplist-invoicer/internal/pricing"
)

// Format is a receipt output format.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatPDF  Format = "pdf"
)

// ParseFormat accepts a format name or file extension; empty means JPEG.
func ParseFormat(s string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".") {
	case "", "jpeg", "jpg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	case "pdf":
		return FormatPDF, nil
	}
	return "", fmt.Errorf("unsupported receipt format %q", s)
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatPDF:
		return "application/pdf"
	default:
		return "image/jpeg"
	}
}

// Extension returns the file extension, with the dot.
func (f Format) Extension() string {
	switch f {
	case FormatPNG:
		return ".png"
	case FormatPDF:
		return ".pdf"
	default:
		return ".jpg"
	}
}

// Options describes the shop printed in the receipt header.
type Options struct {
	StoreName      string
	Location       string
	CurrencySymbol string
}

// DefaultOptions returns the header of the shop the tool was built for.
func DefaultOptions() Options {
	return Options{
		StoreName:      "ALH JIBRIN STORE",
		Location:       "Dukku, Gombe State",
		CurrencySymbol: "N",
	}
}

// Receipt geometry, in pixels.
const (
	receiptWidth   = 500
	baseHeight     = 350
	rowHeight      = 50
	lineStep       = 40
	maxItemRunes   = 18
	colQty         = 30
	colItem        = 100
	colPrice       = 380
	headerFontSize = 40
	bodyFontSize   = 24
)

// Renderer draws receipts. It is safe for concurrent use; font faces are
// created per receipt.
type Renderer struct {
	opts    Options
	regular *opentype.Font
	bold    *opentype.Font
}

// New parses the embedded Go fonts.
func New(opts Options) (*Renderer, error) {
	defaults := DefaultOptions()
	if opts.StoreName == "" {
		opts.StoreName = defaults.StoreName
	}
	if opts.CurrencySymbol == "" {
		opts.CurrencySymbol = defaults.CurrencySymbol
	}

	regular, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing regular font: %w", err)
	}
	bold, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing bold font: %w", err)
	}
	return &Renderer{opts: opts, regular: regular, bold: bold}, nil
}

// Options returns the effective header options.
func (r *Renderer) Options() Options {
	return r.opts
}

// Encode writes the receipt for inv in the given format.
func (r *Renderer) Encode(w io.Writer, inv pricing.Invoice, at time.Time, format Format) error {
	if format == FormatPDF {
		return r.writePDF(w, inv, at)
	}

	img, err := r.Image(inv, at)
	if err != nil {
		return err
	}
	switch format {
	case FormatPNG:
		if err := png.Encode(w, img); err != nil {
			return fmt.Errorf("encoding png: %w", err)
		}
	default:
		if err := jpeg.Encode(w, img, &jpeg.Options{Quality: 90}); err != nil {
			return fmt.Errorf("encoding jpeg: %w", err)
		}
	}
	return nil
}

type faces struct {
	header, body, bold font.Face
}

func (f faces) Close() {
	f.header.Close()
	f.body.Close()
	f.bold.Close()
}

func (r *Renderer) newFaces() (faces, error) {
	header, err := opentype.NewFace(r.bold, &opentype.FaceOptions{Size: headerFontSize, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return faces{}, fmt.Errorf("creating header face: %w", err)
	}
	body, err := opentype.NewFace(r.regular, &opentype.FaceOptions{Size: bodyFontSize, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		header.Close()
		return faces{}, fmt.Errorf("creating body face: %w", err)
	}
	bold, err := opentype.NewFace(r.bold, &opentype.FaceOptions{Size: bodyFontSize, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		header.Close()
		body.Close()
		return faces{}, fmt.Errorf("creating bold face: %w", err)
	}
	return faces{header: header, body: body, bold: bold}, nil
}

// Image draws the receipt: shop header and timestamp, one row per line
// (quantity, item, line total), the grand total and a thank-you line.
func (r *Renderer) Image(inv pricing.Invoice, at time.Time) (image.Image, error) {
	f, err := r.newFaces()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	height := baseHeight + len(inv.Lines)*rowHeight
	img := image.NewRGBA(image.Rect(0, 0, receiptWidth, height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	c := canvas{img: img}

	c.centered(f.header, receiptWidth/2, 30, r.opts.StoreName)
	if r.opts.Location != "" {
		c.centered(f.body, receiptWidth/2, 80, r.opts.Location)
	}
	c.centered(f.body, receiptWidth/2, 120, at.Format("2006-01-02 15:04"))
	c.rule(150)

	y := 170
	c.text(f.bold, colQty, y, "QTY")
	c.text(f.bold, colItem, y, "ITEM")
	c.text(f.bold, colPrice, y, "PRICE")
	y += lineStep

	for _, line := range inv.Lines {
		c.text(f.body, colQty, y, fmt.Sprint(line.Quantity))
		c.text(f.body, colItem, y, truncate(line.DisplayName, maxItemRunes))
		c.text(f.body, colPrice, y, line.LineTotal.Format(r.opts.CurrencySymbol))
		y += lineStep
	}

	c.rule(y + 10)
	y += 30
	c.text(f.bold, colQty, y, "TOTAL:")
	c.text(f.bold, colPrice, y, inv.GrandTotal().Format(r.opts.CurrencySymbol))
	y += 60
	c.centered(f.body, receiptWidth/2, y, "Thank you for your patronage!")

	return img, nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

type canvas struct {
	img *image.RGBA
}

// text draws s with its top-left corner at (x, y).
func (c canvas) text(face font.Face, x, y int, s string) {
	d := &font.Drawer{Dst: c.img, Src: image.Black, Face: face}
	d.Dot = fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y) + face.Metrics().Ascent}
	d.DrawString(s)
}

// centered draws s centred on (cx, cy).
func (c canvas) centered(face font.Face, cx, cy int, s string) {
	d := &font.Drawer{Dst: c.img, Src: image.Black, Face: face}
	m := face.Metrics()
	width := d.MeasureString(s)
	d.Dot = fixed.Point26_6{
		X: fixed.I(cx) - width/2,
		Y: fixed.I(cy) + (m.Ascent-m.Descent)/2,
	}
	d.DrawString(s)
}

// rule draws a two-pixel horizontal line with a 20px margin.
func (c canvas) rule(y int) {
	line := image.Rect(20, y-1, receiptWidth-20, y+1)
	draw.Draw(c.img, line, &image.Uniform{C: color.Black}, image.Point{}, draw.Src)
}
