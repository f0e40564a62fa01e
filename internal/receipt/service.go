package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/zombor/receipt-extractor/internal/extraction"
	"github.com/zombor/receipt-extractor/internal/scanning"
)

// ErrInvalidUpdate is returned when a manual correction fails validation
var ErrInvalidUpdate = errors.New("invalid receipt update")

// Processor runs the extraction engine over an image. It never fails.
type Processor interface {
	ProcessReceipt(ctx context.Context, imageData []byte, contentType string, preferGenerative bool) scanning.Result
	ProcessDataURI(ctx context.Context, uri string, preferGenerative bool) scanning.Result
}

// IDGenerator generates unique IDs for receipts
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.New().String()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// ServiceConfig holds processing options
type ServiceConfig struct {
	// PreferGenerative tries the generative model before OCR
	PreferGenerative bool
	// BatchDelay is the minimum spacing between engine calls in a batch
	BatchDelay time.Duration
}

// Service handles receipt operations
type Service struct {
	db               DB
	processor        Processor
	storage          Storage
	idGenerator      IDGenerator
	timeSource       TimeSource
	limiter          *rate.Limiter
	preferGenerative bool
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, processor Processor, storage Storage, config ServiceConfig) *Service {
	return NewServiceWithDeps(db, processor, storage, config, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, processor Processor, storage Storage, config ServiceConfig, idGen IDGenerator, timeSrc TimeSource) *Service {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.BatchDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(config.BatchDelay), 1)
	}

	return &Service{
		db:               db,
		processor:        processor,
		storage:          storage,
		idGenerator:      idGen,
		timeSource:       timeSrc,
		limiter:          limiter,
		preferGenerative: config.PreferGenerative,
	}
}

var (
	filenameDisallowedRe = regexp.MustCompile(`[^\p{L}\p{N}\s\-_]`)
	filenameSpaceRe      = regexp.MustCompile(`\s+`)
	filenameExtRe        = regexp.MustCompile(`^\.[A-Za-z0-9]{1,5}$`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	filename = filepath.Base(filename)
	ext := filepath.Ext(filename)
	if !filenameExtRe.MatchString(ext) {
		ext = ""
	}
	base := strings.TrimSuffix(filename, ext)

	base = filenameDisallowedRe.ReplaceAllString(base, "")
	base = strings.TrimSpace(filenameSpaceRe.ReplaceAllString(base, " "))

	// 50 characters for the base, plus extension
	if runes := []rune(base); len(runes) > 50 {
		base = string(runes[:50])
	}

	if base == "" {
		base = "receipt"
	}

	return base + strings.ToLower(ext)
}

// ProcessReceipt stores an upload, runs extraction and saves the receipt.
// Extraction never fails the upload; storage and database errors do.
func (s *Service) ProcessReceipt(ctx context.Context, filename string, data []byte, contentType string) (*Receipt, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty file %q", filename)
	}

	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	result := s.processor.ProcessReceipt(ctx, data, contentType, s.preferGenerative)
	slog.Info("Processed receipt",
		"id", id,
		"filename", filename,
		"content_type", contentType,
		"file_size", len(data),
		"source", result.Source,
	)

	receipt := receiptFromResult(result)
	receipt.ID = id
	receipt.Filename = savedPath
	receipt.ContentType = contentType
	receipt.CreatedAt = now
	receipt.UpdatedAt = now

	if err := s.db.SaveReceipt(receipt); err != nil {
		// Clean up file if database save fails
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("saving receipt to database: %w", err)
	}

	return receipt, nil
}

func receiptFromResult(result scanning.Result) *Receipt {
	data := result.ExtractedData
	receipt := &Receipt{
		Amount:       data.Amount,
		MerchantName: data.MerchantName,
		Description:  data.Description,
		Date:         data.Date,
		Category:     data.Category,
		Source:       result.Source,
		OCRText:      result.OCRText,
		TotalCount:   max(result.TotalCount, 1),
	}
	if data.Confidence != nil {
		receipt.Confidence = *data.Confidence
	}
	if len(result.MultipleReceipts) > 1 {
		receipt.OtherReceipts = result.MultipleReceipts[1:]
	}
	return receipt
}

// ProcessBatch processes uploads one at a time, spacing engine calls by the
// configured batch delay. Per-file failures are collected, not returned.
func (s *Service) ProcessBatch(ctx context.Context, uploads []Upload) (*BatchResult, error) {
	result := &BatchResult{
		Receipts: make([]*Receipt, 0, len(uploads)),
		Failures: make([]BatchFailure, 0),
	}

	for _, upload := range uploads {
		if err := s.limiter.Wait(ctx); err != nil {
			return result, fmt.Errorf("waiting to process %q: %w", upload.Filename, err)
		}

		receipt, err := s.ProcessReceipt(ctx, upload.Filename, upload.Data, upload.ContentType)
		if err != nil {
			slog.Warn("Failed to process upload in batch", "filename", upload.Filename, "error", err)
			result.Failures = append(result.Failures, BatchFailure{Filename: upload.Filename, Error: err.Error()})
			continue
		}
		result.Receipts = append(result.Receipts, receipt)
	}

	return result, nil
}

// Extract runs the engine over a data URI without storing anything.
// An undecodable URI yields the engine's empty result.
func (s *Service) Extract(ctx context.Context, dataURI string, preferGenerative *bool) scanning.Result {
	prefer := s.preferGenerative
	if preferGenerative != nil {
		prefer = *preferGenerative
	}
	return s.processor.ProcessDataURI(ctx, dataURI, prefer)
}

// UpdateReceipt applies manual corrections to a receipt
func (s *Service) UpdateReceipt(id string, update ReceiptUpdate) (*Receipt, error) {
	current, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	receipt := *current
	now := s.timeSource.Now()

	if update.Amount != nil {
		if *update.Amount <= 0 || *update.Amount >= extraction.MaxAmount {
			return nil, fmt.Errorf("%w: amount %d out of range", ErrInvalidUpdate, *update.Amount)
		}
		receipt.Amount = update.Amount
	}
	if update.Date != nil {
		if trimmed := strings.TrimSpace(*update.Date); trimmed == "" {
			receipt.Date = nil
		} else {
			date, ok := extraction.NormalizeDate(trimmed, now)
			if !ok {
				return nil, fmt.Errorf("%w: unrecognized date %q", ErrInvalidUpdate, trimmed)
			}
			receipt.Date = &date
		}
	}
	if update.Category != nil {
		category := strings.ToLower(strings.TrimSpace(*update.Category))
		if category != "" && !extraction.IsCategory(category) {
			return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidUpdate, category)
		}
		receipt.Category = optionalString(category)
	}
	if update.MerchantName != nil {
		receipt.MerchantName = optionalString(*update.MerchantName)
	}
	if update.Description != nil {
		receipt.Description = optionalString(*update.Description)
	}

	receipt.Edited = true
	receipt.UpdatedAt = now
	if err := s.db.SaveReceipt(&receipt); err != nil {
		return nil, fmt.Errorf("saving receipt: %w", err)
	}
	return &receipt, nil
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// GetReceipt retrieves a receipt by ID
func (s *Service) GetReceipt(id string) (*Receipt, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	return receipt, nil
}

// ListReceipts returns all receipts, newest first
func (s *Service) ListReceipts() ([]*Receipt, error) {
	receipts, err := s.db.ListReceipts()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	slices.SortStableFunc(receipts, func(a, b *Receipt) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return receipts, nil
}

// DeleteReceipt removes a receipt and its file
func (s *Service) DeleteReceipt(id string) error {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return fmt.Errorf("getting receipt for deletion: %w", err)
	}

	if err := s.storage.Delete(receipt.Filename); err != nil {
		// Log error but continue with database deletion
		slog.Warn("Failed to delete file", "filename", receipt.Filename, "error", err)
	}

	if err := s.db.DeleteReceipt(id); err != nil {
		return fmt.Errorf("deleting receipt from database: %w", err)
	}
	return nil
}

// GetReceiptFile retrieves the file data for a receipt
func (s *Service) GetReceiptFile(id string) ([]byte, string, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt: %w", err)
	}

	data, err := s.storage.Get(receipt.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt file: %w", err)
	}

	return data, receipt.ContentType, nil
}
