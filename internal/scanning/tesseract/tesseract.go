//go:build tesseract

// Package tesseract provides an on-device TextRecognizer backed by libtesseract.
// Build with -tags tesseract; the Japanese and English traineddata must be installed.
package tesseract

import (
	"context"
	"fmt"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// Recognizer implements scanning.TextRecognizer with a single gosseract client.
// gosseract clients are not safe for concurrent use, so calls are serialized.
type Recognizer struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// New creates a Recognizer for the given languages (default jpn+eng)
func New(languages ...string) (*Recognizer, error) {
	if len(languages) == 0 {
		languages = []string{"jpn", "eng"}
	}

	client := gosseract.NewClient()
	if err := client.SetLanguage(languages...); err != nil {
		client.Close()
		return nil, fmt.Errorf("setting tesseract languages: %w", err)
	}
	return &Recognizer{client: client}, nil
}

// RecognizeText runs tesseract over the image bytes
func (r *Recognizer) RecognizeText(ctx context.Context, imageData []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.client.SetImageFromBytes(imageData); err != nil {
		return "", fmt.Errorf("loading image into tesseract: %w", err)
	}
	text, err := r.client.Text()
	if err != nil {
		return "", fmt.Errorf("recognizing text: %w", err)
	}
	return text, nil
}

// Close releases the tesseract client
func (r *Recognizer) Close() error {
	return r.client.Close()
}
