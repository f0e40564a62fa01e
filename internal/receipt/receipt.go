package receipt

import (
	"time"

	"github.com/zombor/receipt-extractor/internal/extraction"
	"github.com/zombor/receipt-extractor/internal/scanning"
)

// Receipt represents an uploaded receipt with the data extracted from it
type Receipt struct {
	ID            string                     `json:"id"`
	Amount        *int                       `json:"amount,omitempty"`         // Whole currency units
	MerchantName  *string                    `json:"merchant_name,omitempty"`
	Description   *string                    `json:"description,omitempty"`
	Date          *string                    `json:"date,omitempty"`           // YYYY-MM-DD
	Category      *string                    `json:"category,omitempty"`
	Confidence    float64                    `json:"confidence"`
	Source        scanning.Source            `json:"source"`
	OCRText       string                     `json:"ocr_text"`
	OtherReceipts []extraction.ExtractedData `json:"other_receipts,omitempty"` // Receipts after the first in a multi-receipt image
	TotalCount    int                        `json:"total_count"`
	Edited        bool                       `json:"edited"`                   // Set once a field is corrected by hand
	Filename      string                     `json:"filename"`
	ContentType   string                     `json:"content_type"`
	CreatedAt     time.Time                  `json:"created_at"`
	UpdatedAt     time.Time                  `json:"updated_at"`
}

// ReceiptUpdate carries manual corrections. Nil fields are left alone;
// an empty string clears the field.
type ReceiptUpdate struct {
	Amount       *int    `json:"amount"`
	MerchantName *string `json:"merchant_name"`
	Description  *string `json:"description"`
	Date         *string `json:"date"`
	Category     *string `json:"category"`
}

// Upload is one file submitted for processing
type Upload struct {
	Filename    string
	Data        []byte
	ContentType string
}

// BatchResult reports the outcome of a batch upload
type BatchResult struct {
	Receipts []*Receipt     `json:"receipts"`
	Failures []BatchFailure `json:"failures"`
}

// BatchFailure describes an upload that could not be stored
type BatchFailure struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}
