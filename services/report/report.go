// Package reportsvc renders the PDF documents of a task: the marks report and the answer book cover sheets.
package reportsvc

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/pkg/errors"
	"github.com/skip2/go-qrcode"

	"github.com/trezcool/markit/core"
	"github.com/trezcool/markit/core/answer"
	"github.com/trezcool/markit/core/marking"
	"github.com/trezcool/markit/core/task"
)

const (
	margin     = 10.0
	lineHeight = 6.0
	qrSize     = 60.0 // mm
	qrPixels   = 256

	// portrait up to this many sheet columns, landscape above
	maxPortraitColumns = 10
)

type Service struct {
	appName string
	baseURL string
}

func NewService(conf *core.Config) *Service {
	return &Service{appName: conf.AppName, baseURL: conf.FrontendBaseURL}
}

// BookURL returns the frontend URL of an answer book.
func (svc *Service) BookURL(b answer.Book) string {
	return fmt.Sprintf("%s/tasks/%d/answer-books/%d", svc.baseURL, b.TaskID, b.ID)
}

func newPDF(orientation string) (*gofpdf.Fpdf, func(string) string) {
	pdf := gofpdf.New(orientation, "mm", "A4", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	return pdf, pdf.UnicodeTranslatorFromDescriptor("")
}

// MarksReport writes the marking sheet and the statistics of t.
func (svc *Service) MarksReport(w io.Writer, t task.Task, sheet marking.Sheet, summary marking.Summary) error {
	orientation := "P"
	if len(sheet.Columns) > maxPortraitColumns {
		orientation = "L"
	}
	pdf, tr := newPDF(orientation)
	pdf.SetTitle(tr(svc.appName+" - "+t.Name), false)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-margin)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, lineHeight, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, tr(t.Name), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	status := "open"
	if t.IsLocked {
		status = "locked"
	}
	pdf.CellFormat(0, lineHeight, fmt.Sprintf("%d answer books - %s - %s", len(sheet.Rows), status,
		time.Now().UTC().Format("2006-01-02 15:04 MST")), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	svc.writeSheet(pdf, tr, sheet)
	svc.writeStats(pdf, tr, summary)

	if err := pdf.Output(w); err != nil {
		return errors.Wrap(err, "rendering marks report")
	}
	return nil
}

// columnWidths gives the Comments column three shares of the page width, every other column one.
func columnWidths(pdf *gofpdf.Fpdf, cols []string) []float64 {
	pageW, _ := pdf.GetPageSize()
	usable := pageW - 2*margin
	shares := 0.0
	for _, c := range cols {
		if c == "Comments" {
			shares += 3
		} else {
			shares++
		}
	}
	widths := make([]float64, len(cols))
	for i, c := range cols {
		widths[i] = usable / shares
		if c == "Comments" {
			widths[i] *= 3
		}
	}
	return widths
}

// fit truncates s so that it is at most width wide.
func fit(pdf *gofpdf.Fpdf, s string, width float64) string {
	const ellipsis = "..."
	if pdf.GetStringWidth(s) <= width-1 {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && pdf.GetStringWidth(string(runes)+ellipsis) > width-1 {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + ellipsis
}

func (svc *Service) writeSheet(pdf *gofpdf.Fpdf, tr func(string) string, sheet marking.Sheet) {
	widths := columnWidths(pdf, sheet.Columns)

	header := func() {
		pdf.SetFont("Helvetica", "B", 8)
		pdf.SetFillColor(230, 230, 230)
		for i, c := range sheet.Columns {
			pdf.CellFormat(widths[i], lineHeight, c, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 8)
	}

	header()
	_, pageH := pdf.GetPageSize()
	for _, row := range sheet.Rows {
		if pdf.GetY()+lineHeight > pageH-2*margin {
			pdf.AddPage()
			header()
		}
		for i, cell := range row {
			align := "C"
			if sheet.Columns[i] == "Comments" || sheet.Columns[i] == "UserName" {
				align = "L"
			}
			pdf.CellFormat(widths[i], lineHeight, fit(pdf, tr(cell), widths[i]), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}
}

func (svc *Service) writeStats(pdf *gofpdf.Fpdf, tr func(string) string, summary marking.Summary) {
	if len(summary.Questions) == 0 {
		return
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, "Statistics", "", 1, "L", false, 0, "")

	cols := []string{"Question", "Marks", "Count", "Mean", "Min", "Max"}
	width := 25.0
	pdf.SetFont("Helvetica", "B", 8)
	for _, c := range cols {
		pdf.CellFormat(width, lineHeight, c, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 8)
	for _, qs := range summary.Questions {
		cells := []string{"Q" + strconv.Itoa(qs.Question.Index), marking.FormatMarks(qs.Question.Marks), "-", "-", "-", "-"}
		if st := qs.Stats; st != nil {
			cells[2] = strconv.Itoa(st.Count)
			cells[3] = strconv.FormatFloat(st.Mean, 'f', 2, 64)
			cells[4] = marking.FormatMarks(st.Min)
			cells[5] = marking.FormatMarks(st.Max)
		}
		for _, c := range cells {
			pdf.CellFormat(width, lineHeight, tr(c), "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
	}
}

// CoverSheet writes the cover page of an answer book with a QR code of its URL.
// Scanning it from the capture screen opens the book.
func (svc *Service) CoverSheet(w io.Writer, t task.Task, b answer.Book) error {
	png, err := qrcode.Encode(svc.BookURL(b), qrcode.Medium, qrPixels)
	if err != nil {
		return errors.Wrap(err, "encoding qr code")
	}

	pdf, tr := newPDF("P")
	pdf.SetTitle(tr(fmt.Sprintf("%s - %s - #%d", svc.appName, t.Name, b.ID)), false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 12, tr(t.Name), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 14)
	pdf.CellFormat(0, 10, fmt.Sprintf("Answer book #%d", b.ID), "", 1, "C", false, 0, "")
	if b.Student != nil {
		pdf.CellFormat(0, 10, tr(b.Student.Name), "", 1, "C", false, 0, "")
	}

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", opts, bytes.NewReader(png))
	pageW, _ := pdf.GetPageSize()
	pdf.ImageOptions("qr", (pageW-qrSize)/2, pdf.GetY()+10, qrSize, qrSize, false, opts, 0, "")

	if err = pdf.Output(w); err != nil {
		return errors.Wrap(err, "rendering cover sheet")
	}
	return nil
}
