package app

import (
	"fmt"

	"github.com/ledongthuc/pdf"
)

// pdfPageCount reads the page count from a staged PDF.
func pdfPageCount(path string) (int, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()
	return reader.NumPage(), nil
}
