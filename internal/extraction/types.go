package extraction

// MaxAmount is the exclusive sanity ceiling for any recovered amount.
const MaxAmount = 10_000_000

// ExtractedData is the record produced by every extraction path.
// A nil field means the value was not recovered.
type ExtractedData struct {
	Amount       *int     `json:"amount,omitempty"` // whole currency units
	Description  *string  `json:"description,omitempty"`
	Date         *string  `json:"date,omitempty"` // YYYY-MM-DD
	MerchantName *string  `json:"merchantName,omitempty"`
	Category     *string  `json:"category,omitempty"`
	Confidence   *float64 `json:"confidence,omitempty"`
}

// IsEmpty reports whether no field other than confidence was recovered.
func (d ExtractedData) IsEmpty() bool {
	return d.Amount == nil && d.Description == nil && d.Date == nil &&
		d.MerchantName == nil && d.Category == nil
}

// MultiReceiptResult holds every receipt found in a single image.
type MultiReceiptResult struct {
	Receipts   []ExtractedData `json:"receipts"`
	TotalCount int             `json:"totalCount"`
	OCRText    string          `json:"ocrText"`
}

// Candidate is a tentative amount with the tier, line and pattern that produced it.
type Candidate struct {
	Amount  int
	Tier    Tier
	Line    string
	Pattern string
}

// ReceiptType is the coarse vendor archetype of a receipt.
type ReceiptType string

const (
	ReceiptConvenience ReceiptType = "convenience"
	ReceiptSupermarket ReceiptType = "supermarket"
	ReceiptRestaurant  ReceiptType = "restaurant"
	ReceiptPharmacy    ReceiptType = "pharmacy"
	ReceiptGasStation  ReceiptType = "gas_station"
	ReceiptRetail      ReceiptType = "retail"
	ReceiptUnknown     ReceiptType = "unknown"
)

// Tier is a priority group of amount patterns. Lower values win.
type Tier int

const (
	TierVendor Tier = iota
	TierFinalTotal
	TierSpecific
	TierTotal
	TierSubtotal
	TierFallback
)

func (t Tier) String() string {
	switch t {
	case TierVendor:
		return "vendor"
	case TierFinalTotal:
		return "finalTotal"
	case TierSpecific:
		return "specific"
	case TierTotal:
		return "total"
	case TierSubtotal:
		return "subtotal"
	case TierFallback:
		return "fallback"
	}
	return "unknown"
}

// shortCircuits reports whether a match in t ends the search immediately.
func (t Tier) shortCircuits() bool {
	return t == TierVendor || t == TierFinalTotal || t == TierSpecific
}

// ptr returns a pointer to v.
func ptr[T any](v T) *T {
	return &v
}
