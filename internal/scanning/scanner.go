package scanning

import (
	"context"

	"github.com/zombor/receipt-extractor/internal/extraction"
)

// Generator asks a generative vision model to describe a receipt image.
// The reply is free-form text expected to contain a JSON object.
type Generator interface {
	// Generate sends the image with the receipt prompt and returns the raw reply
	Generate(ctx context.Context, imageData []byte, contentType string) (string, error)
	// Close releases the underlying client
	Close() error
}

// TextRecognizer returns plain recognized text for an image.
type TextRecognizer interface {
	// RecognizeText runs OCR over the image
	RecognizeText(ctx context.Context, imageData []byte, contentType string) (string, error)
	// Close releases the underlying client
	Close() error
}

// Source names the path that produced a Result.
type Source string

const (
	SourceGenerative          Source = "generative"
	SourceGenerativeEmergency Source = "generative_emergency"
	SourceOCR                 Source = "ocr"
	SourcePlaceholder         Source = "placeholder"
	SourceNone                Source = "none"
)

// Result is the output contract of the engine.
type Result struct {
	OCRText          string                     `json:"ocrText"`
	ExtractedData    extraction.ExtractedData   `json:"extractedData"`
	MultipleReceipts []extraction.ExtractedData `json:"multipleReceipts,omitempty"`
	TotalCount       int                        `json:"totalCount,omitempty"`
	Source           Source                     `json:"source"`
}
