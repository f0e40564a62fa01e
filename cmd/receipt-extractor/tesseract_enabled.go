//go:build tesseract

package main

import (
	"fmt"

	"github.com/zombor/receipt-extractor/internal/scanning"
	"github.com/zombor/receipt-extractor/internal/scanning/tesseract"
)

func newLocalRecognizer() (scanning.TextRecognizer, error) {
	r, err := tesseract.New()
	if err != nil {
		return nil, fmt.Errorf("initializing tesseract: %w", err)
	}
	return r, nil
}
