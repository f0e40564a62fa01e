package extraction

import (
	"log/slog"
	"math"
	"time"
)

const (
	missingAmountConfidence = 0.3
	amountBaseConfidence    = 0.5
	maxHeuristicConfidence  = 0.9
)

// Extractor runs the deterministic pattern-based extraction over OCR text.
type Extractor struct {
	now func() time.Time
}

// NewExtractor creates an Extractor that reads the wall clock for yearless dates.
func NewExtractor() *Extractor {
	return &Extractor{now: time.Now}
}

// NewExtractorWithClock creates an Extractor with a custom clock for testing.
func NewExtractorWithClock(now func() time.Time) *Extractor {
	return &Extractor{now: now}
}

// Extract recovers amount, merchant, date and category from raw OCR text.
// Missing fields stay nil; it never fails.
func (e *Extractor) Extract(text string) ExtractedData {
	lines := NormalizeLines(text)
	receiptType := ClassifyReceipt(lines)

	var data ExtractedData
	candidate, candidates := ExtractAmount(lines, receiptType)
	if candidate != nil {
		data.Amount = ptr(candidate.Amount)
	}
	data.MerchantName = ExtractMerchant(lines)
	if data.MerchantName != nil {
		data.Description = ptr(*data.MerchantName)
	}
	data.Date = ExtractDate(lines, e.now())
	data.Category = ptr(MatchCategory(text))
	data.Confidence = ptr(heuristicConfidence(candidate, data))

	slog.Debug("Deterministic extraction finished",
		"receipt_type", receiptType,
		"candidates", len(candidates),
		"amount_found", data.Amount != nil,
		"merchant_found", data.MerchantName != nil,
		"date_found", data.Date != nil,
	)
	return data
}

func heuristicConfidence(candidate *Candidate, data ExtractedData) float64 {
	if candidate == nil {
		return missingAmountConfidence
	}
	c := amountBaseConfidence
	switch {
	case candidate.Tier <= TierTotal:
		c += 0.2
	case candidate.Tier == TierSubtotal:
		c += 0.1
	}
	if data.MerchantName != nil {
		c += 0.15
	}
	if data.Date != nil {
		c += 0.05
	}
	return roundConfidence(math.Min(c, maxHeuristicConfidence))
}
