package render

import (
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/zombor/shoplist-invoicer/internal/pricing"
)

// PDF receipt geometry, in millimetres, sized for an 80mm till roll.
const (
	pdfWidth    = 80.0
	pdfMargin   = 5.0
	pdfBase     = 70.0
	pdfRow      = 6.0
	pdfQtyCol   = 10.0
	pdfPriceCol = 25.0
)

func (r *Renderer) writePDF(w io.Writer, inv pricing.Invoice, at time.Time) error {
	height := pdfBase + float64(len(inv.Lines))*pdfRow
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           gofpdf.SizeType{Wd: pdfWidth, Ht: height},
	})
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle(r.opts.StoreName+" receipt", true)
	pdf.AddPage()

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	inner := pdfWidth - 2*pdfMargin
	itemCol := inner - pdfQtyCol - pdfPriceCol

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(inner, 8, tr(r.opts.StoreName), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	if r.opts.Location != "" {
		pdf.CellFormat(inner, 5, tr(r.opts.Location), "", 1, "C", false, 0, "")
	}
	pdf.CellFormat(inner, 5, at.Format("2006-01-02 15:04"), "", 1, "C", false, 0, "")
	r.pdfRule(pdf)

	pdf.SetFont("Helvetica", "B", 9)
	pdf.CellFormat(pdfQtyCol, pdfRow, "QTY", "", 0, "L", false, 0, "")
	pdf.CellFormat(itemCol, pdfRow, "ITEM", "", 0, "L", false, 0, "")
	pdf.CellFormat(pdfPriceCol, pdfRow, "PRICE", "", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	for _, line := range inv.Lines {
		pdf.CellFormat(pdfQtyCol, pdfRow, fmt.Sprint(line.Quantity), "", 0, "L", false, 0, "")
		pdf.CellFormat(itemCol, pdfRow, tr(truncate(line.DisplayName, maxItemRunes)), "", 0, "L", false, 0, "")
		pdf.CellFormat(pdfPriceCol, pdfRow, tr(line.LineTotal.Format(r.opts.CurrencySymbol)), "", 1, "R", false, 0, "")
	}
	r.pdfRule(pdf)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(pdfQtyCol+itemCol, pdfRow, "TOTAL:", "", 0, "L", false, 0, "")
	pdf.CellFormat(pdfPriceCol, pdfRow, tr(inv.GrandTotal().Format(r.opts.CurrencySymbol)), "", 1, "R", false, 0, "")
	pdf.Ln(4)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.CellFormat(inner, pdfRow, "Thank you for your patronage!", "", 1, "C", false, 0, "")

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("writing pdf: %w", err)
	}
	return nil
}

func (r *Renderer) pdfRule(pdf *gofpdf.Fpdf) {
	y := pdf.GetY() + 1
	pdf.SetLineWidth(0.3)
	pdf.Line(pdfMargin, y, pdfWidth-pdfMargin, y)
	pdf.SetY(y + 2)
}
