package scanning

import (
	"context"
	"log/slog"
	"time"

	"github.com/zombor/receipt-extractor/internal/extraction"
)

// ProcessorConfig controls fallback behavior.
type ProcessorConfig struct {
	// AllowPlaceholder returns synthetic low-confidence data when every
	// provider failed. Development only.
	AllowPlaceholder bool
}

// Processor runs the acquisition cascade: generative model, then OCR, then
// placeholder or empty data. It never returns an error.
type Processor struct {
	generator  Generator
	recognizer TextRecognizer
	extractor  *extraction.Extractor
	now        func() time.Time
	config     ProcessorConfig
}

// NewProcessor creates a Processor. Either provider may be nil.
func NewProcessor(generator Generator, recognizer TextRecognizer, config ProcessorConfig) *Processor {
	return NewProcessorWithDeps(generator, recognizer, config, time.Now)
}

// NewProcessorWithDeps creates a Processor with an explicit clock
func NewProcessorWithDeps(generator Generator, recognizer TextRecognizer, config ProcessorConfig, now func() time.Time) *Processor {
	return &Processor{
		generator:  generator,
		recognizer: recognizer,
		extractor:  extraction.NewExtractorWithClock(now),
		now:        now,
		config:     config,
	}
}

// ProcessReceipt extracts receipt data from an image. When preferGenerative is
// set the generative model is tried first; OCR is the fallback either way.
func (p *Processor) ProcessReceipt(ctx context.Context, imageData []byte, contentType string, preferGenerative bool) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Receipt processing panicked", "panic", r)
			result = p.unavailableResult()
		}
	}()

	if preferGenerative {
		if res, ok := p.tryGenerative(ctx, imageData, contentType); ok {
			return res
		}
	}
	if res, ok := p.tryOCR(ctx, imageData, contentType); ok {
		return res
	}
	if !preferGenerative {
		if res, ok := p.tryGenerative(ctx, imageData, contentType); ok {
			return res
		}
	}
	return p.unavailableResult()
}

// ProcessDataURI decodes a base64 data URI and processes the image.
func (p *Processor) ProcessDataURI(ctx context.Context, uri string, preferGenerative bool) Result {
	data, contentType, err := DecodeDataURI(uri)
	if err != nil {
		slog.Warn("Rejecting undecodable image", "error", err)
		return emptyResult()
	}
	return p.ProcessReceipt(ctx, data, contentType, preferGenerative)
}

func (p *Processor) tryGenerative(ctx context.Context, imageData []byte, contentType string) (Result, bool) {
	if p.generator == nil {
		return Result{}, false
	}

	reply, err := p.generator.Generate(ctx, imageData, contentType)
	if err != nil {
		slog.Warn("Generative extraction failed", "error", err)
		return Result{}, false
	}

	recovered, err := RecoverReply(reply, p.now())
	if err != nil {
		slog.Warn("Could not recover receipt data from generative reply", "error", err)
		return Result{}, false
	}

	result := Result{
		OCRText:       reply,
		ExtractedData: recovered.Reply.Primary(),
		Source:        SourceGenerative,
	}
	if recovered.Strategy == StrategyEmergency {
		result.Source = SourceGenerativeEmergency
	}

	switch r := recovered.Reply.(type) {
	case SingleReceiptReply:
		if r.OCRText != "" {
			result.OCRText = r.OCRText
		}
	case MultiReceiptReply:
		if r.OCRText != "" {
			result.OCRText = r.OCRText
		}
		result.MultipleReceipts = r.Receipts
		result.TotalCount = r.TotalCount
	}

	slog.Info("Extracted receipt with generative model", "strategy", recovered.Strategy, "receipts", max(result.TotalCount, 1))
	return result, true
}

func (p *Processor) tryOCR(ctx context.Context, imageData []byte, contentType string) (Result, bool) {
	if p.recognizer == nil {
		return Result{}, false
	}

	text, err := p.recognizer.RecognizeText(ctx, imageData, contentType)
	if err != nil {
		slog.Warn("OCR failed", "error", err)
		return Result{}, false
	}

	slog.Info("Extracted receipt with OCR", "chars", len(text))
	return Result{
		OCRText:       text,
		ExtractedData: p.extractor.Extract(text),
		Source:        SourceOCR,
	}, true
}

func (p *Processor) unavailableResult() Result {
	if !p.config.AllowPlaceholder {
		return emptyResult()
	}

	slog.Warn("Returning placeholder receipt data")
	today := p.now().Format("2006-01-02")
	return Result{
		ExtractedData: extraction.ExtractedData{
			Amount:       ptr(1000),
			MerchantName: ptr("サンプル店舗"),
			Description:  ptr("placeholder receipt"),
			Date:         &today,
			Category:     ptr(extraction.CategoryMiscellaneous),
			Confidence:   ptr(0.1),
		},
		Source: SourcePlaceholder,
	}
}

func emptyResult() Result {
	return Result{
		ExtractedData: extraction.ExtractedData{Confidence: ptr(0.0)},
		Source:        SourceNone,
	}
}
