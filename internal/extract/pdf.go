package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ledongthuc/pdf"

	"github.com/ppiankov/proofpulse/internal/model"
)

// PDFExtractor reads the text layer of an uploaded PDF
type PDFExtractor struct{}

// Extract opens the PDF at path and returns its plain text
func (PDFExtractor) Extract(ctx context.Context, path string) (*model.Extraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat pdf: %w", err)
	}

	text, err := pdfText(f, info.Size())
	if err != nil {
		return nil, err
	}

	text = normalizeLines(text)
	if err := requireLength(text, MinPDFChars); err != nil {
		return nil, err
	}
	return &model.Extraction{Text: text, Timestamps: []model.Timestamp{}}, nil
}

// pdfText extracts the plain text of every page. The parser panics on some
// malformed files; that is reported as an error.
func pdfText(r io.ReaderAt, size int64) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("parse pdf: %v", rec)
		}
	}()

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("parse pdf: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return buf.String(), nil
}
