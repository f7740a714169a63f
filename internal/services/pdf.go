package services

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf/v2"

	"github.com/dlsdud9098/voice-summary-api/internal/domain"
)

type PDFService struct{}

func NewPDFService() *PDFService {
	return &PDFService{}
}

// Generate renders the recording's transcript and summary into a PDF
// document and returns the encoded bytes.
func (s *PDFService) Generate(rec domain.Recording) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Recording %s", rec.ID), false)
	pdf.SetAuthor("voice-summary-api", false)
	pdf.AddPage()

	title := rec.Title
	if strings.TrimSpace(title) == "" {
		title = rec.FileName
	}

	createdAt := time.Unix(rec.CreatedAt, 0).Local()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 6, fmt.Sprintf("Created: %s", createdAt.Format("2006-01-02 15:04")))
	pdf.Ln(6)
	if rec.SummaryType != "" {
		pdf.Cell(0, 6, fmt.Sprintf("Summary type: %s", rec.SummaryType))
		pdf.Ln(6)
	}
	pdf.Ln(6)

	s.writeSection(pdf, "Summary", rec.Summary, false)
	pdf.Ln(8)
	s.writeSection(pdf, "Key Points", strings.Join(rec.KeyPoints, "\n"), true)
	pdf.Ln(8)
	s.writeSection(pdf, "Transcript", rec.Transcript, false)

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}

	return buf.Bytes(), nil
}

func (s *PDFService) writeSection(pdf *gofpdf.Fpdf, title, content string, bullet bool) {
	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 8, title)
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 12)

	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		pdf.MultiCell(0, 6, "(none)", "", "L", false)
		return
	}

	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		text := line
		if bullet {
			text = fmt.Sprintf("- %s", line)
		}
		pdf.MultiCell(0, 6, text, "", "L", false)
	}
}
