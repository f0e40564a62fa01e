//go:build !tesseract

package main

import (
	"errors"

	"github.com/zombor/receipt-extractor/internal/scanning"
)

func newLocalRecognizer() (scanning.TextRecognizer, error) {
	return nil, errors.New("built without tesseract support; rebuild with -tags tesseract")
}
