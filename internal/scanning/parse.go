package scanning

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/text/width"

	"github.com/zombor/receipt-extractor/internal/extraction"
)

// defaultReplyConfidence is used when a cleanly parsed reply reports none.
const defaultReplyConfidence = 0.9

const (
	StrategyDirect    = "direct"
	StrategyRepaired  = "repaired"
	StrategyEmergency = "emergency"
)

// Reply is a decoded generative reply: SingleReceiptReply or MultiReceiptReply.
type Reply interface {
	Primary() extraction.ExtractedData
}

// SingleReceiptReply describes one receipt.
type SingleReceiptReply struct {
	Receipt extraction.ExtractedData
	OCRText string
}

// Primary returns the receipt.
func (r SingleReceiptReply) Primary() extraction.ExtractedData { return r.Receipt }

// MultiReceiptReply describes every receipt found in one image. Receipts is never empty.
type MultiReceiptReply struct {
	extraction.MultiReceiptResult
}

// Primary returns the first receipt.
func (r MultiReceiptReply) Primary() extraction.ExtractedData { return r.Receipts[0] }

// Recovered is a reply together with the strategy that produced it.
type Recovered struct {
	Reply    Reply
	Strategy string
}

type recoveryStrategy struct {
	name  string
	parse func(text string, now time.Time) (Reply, error)
}

// Tried in order; the first success wins.
var recoveryStrategies = []recoveryStrategy{
	{name: StrategyDirect, parse: parseDirect},
	{name: StrategyRepaired, parse: parseRepaired},
	{name: StrategyEmergency, parse: parseEmergency},
}

// RecoverReply turns a generative reply into structured receipt data.
// It fails only when every strategy, including the emergency extractor, fails.
func RecoverReply(text string, now time.Time) (*Recovered, error) {
	var errs []error
	for _, s := range recoveryStrategies {
		reply, err := s.parse(text, now)
		if err == nil {
			return &Recovered{Reply: reply, Strategy: s.name}, nil
		}
		slog.Debug("Reply recovery strategy failed", "strategy", s.name, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
	}
	return nil, errors.Join(errs...)
}

func parseDirect(text string, now time.Time) (Reply, error) {
	return decodeReply(cleanJSON(extractJSONBlock(text)), now)
}

func parseRepaired(text string, now time.Time) (Reply, error) {
	return decodeReply(repairJSON(cleanJSON(extractJSONBlock(text))), now)
}

func parseEmergency(text string, now time.Time) (Reply, error) {
	data := extraction.EmergencyExtract(text, now)
	if data == nil {
		return nil, fmt.Errorf("no fields recovered")
	}
	return SingleReceiptReply{Receipt: *data}, nil
}

var (
	fencedBlockRe = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

	quoteReplacer = strings.NewReplacer("“", `"`, "”", `"`, "„", `"`, "‘", "'", "’", "'")

	quotedNumberRe = regexp.MustCompile(`"(amount|total|totalAmount|totalCount|confidence)"\s*:\s*"\s*[¥\\]?\s*(-?[\d,]+(?:\.\d+)?)\s*円?\s*"`)

	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	whitespaceRunRe = regexp.MustCompile(`\s+`)
)

// extractJSONBlock returns the first fenced block, else the first top-level
// object span, else the whole text.
func extractJSONBlock(text string) string {
	if m := fencedBlockRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if span, ok := firstObjectSpan(text); ok {
		return span
	}
	return strings.TrimSpace(text)
}

// firstObjectSpan finds the first balanced {...} span, skipping braces inside strings.
// An unbalanced object runs to the last closing brace, or to the end of the text.
func firstObjectSpan(text string) (string, bool) {
	start := strings.Index(text, "{")
	if start == -1 {
		return "", false
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}

	if end := strings.LastIndex(text, "}"); end > start {
		return text[start : end+1], true
	}
	return text[start:], true
}

// cleanJSON strips control characters, folds full-width punctuation and
// turns quoted numbers under numeric keys into bare numbers.
func cleanJSON(block string) string {
	block = strings.Map(func(r rune) rune {
		if (r < 0x20 && r != '\n' && r != '\r' && r != '\t') || r == 0x7f {
			return -1
		}
		return r
	}, block)
	block = quoteReplacer.Replace(width.Fold.String(block))
	return quotedNumberRe.ReplaceAllStringFunc(block, func(m string) string {
		sub := quotedNumberRe.FindStringSubmatch(m)
		return fmt.Sprintf(`"%s": %s`, sub[1], strings.ReplaceAll(sub[2], ",", ""))
	})
}

// repairJSON fixes the structural mistakes models make most often.
func repairJSON(block string) string {
	block = trailingCommaRe.ReplaceAllString(block, "$1")
	block = whitespaceRunRe.ReplaceAllString(block, " ")
	return quoteKeys(block)
}

// quoteKeys rewrites single-quoted strings as double-quoted ones and quotes
// bareword keys. Text inside strings is copied untouched.
func quoteKeys(block string) string {
	var b strings.Builder
	b.Grow(len(block) + 16)

	keyPosition := false
	for i := 0; i < len(block); {
		c := block[i]
		switch {
		case c == '"' || c == '\'':
			end := closingQuote(block, i)
			writeQuoted(&b, block[i+1:end], c)
			i = end + 1
			keyPosition = false
		case keyPosition && isIdentStart(c):
			j := i
			for j < len(block) && (isIdentStart(block[j]) || (block[j] >= '0' && block[j] <= '9')) {
				j++
			}
			k := j
			for k < len(block) && (block[k] == ' ' || block[k] == '\t' || block[k] == '\n' || block[k] == '\r') {
				k++
			}
			if k < len(block) && block[k] == ':' {
				b.WriteString(`"` + block[i:j] + `"`)
			} else {
				b.WriteString(block[i:j])
			}
			i = j
			keyPosition = false
		default:
			b.WriteByte(c)
			switch c {
			case '{', ',':
				keyPosition = true
			case ' ', '\t', '\n', '\r':
			default:
				keyPosition = false
			}
			i++
		}
	}
	return b.String()
}

// closingQuote returns the index of the quote closing the string opened at
// start, or len(text) when the string is unterminated.
func closingQuote(text string, start int) int {
	quote := text[start]
	for i := start + 1; i < len(text); i++ {
		switch text[i] {
		case '\\':
			i++
		case quote:
			return i
		}
	}
	return len(text)
}

// writeQuoted writes body as a double-quoted JSON string.
func writeQuoted(b *strings.Builder, body string, quote byte) {
	b.WriteByte('"')
	if quote == '"' {
		b.WriteString(body)
		b.WriteByte('"')
		return
	}
	for i := 0; i < len(body); i++ {
		switch {
		case body[i] == '\\' && i+1 < len(body) && body[i+1] == '\'':
			b.WriteByte('\'')
			i++
		case body[i] == '\\' && i+1 < len(body):
			b.WriteString(body[i : i+2])
			i++
		case body[i] == '"':
			b.WriteString(`\"`)
		default:
			b.WriteByte(body[i])
		}
	}
	b.WriteByte('"')
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

const replySchemaJSON = `{
	"type": "object",
	"properties": {
		"amount": {"type": ["number", "string", "null"]},
		"total": {"type": ["number", "string", "null"]},
		"confidence": {"type": ["number", "string", "null"]},
		"totalCount": {"type": ["number", "string", "null"]},
		"receipts": {"type": "array", "items": {"type": "object"}}
	}
}`

var replySchema = jsonschema.MustCompileString("reply.json", replySchemaJSON)

// decodeReply parses a cleaned JSON block into a Reply.
// A "receipts" field selects the multi-receipt shape.
func decodeReply(block string, now time.Time) (Reply, error) {
	dec := json.NewDecoder(strings.NewReader(block))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}
	if err := replySchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("validating reply shape: %w", err)
	}
	obj := doc.(map[string]any)
	ocrText := derefString(stringField(obj, "ocrText", "rawText", "text"))

	if raw, ok := obj["receipts"]; ok {
		items, _ := raw.([]any)
		receipts := make([]extraction.ExtractedData, 0, len(items))
		for _, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if receipt := mapReceipt(m, now); !receipt.IsEmpty() {
				receipts = append(receipts, receipt)
			}
		}
		if len(receipts) == 0 {
			return nil, fmt.Errorf("no receipt fields in receipts array")
		}
		return MultiReceiptReply{extraction.MultiReceiptResult{
			Receipts:   receipts,
			TotalCount: len(receipts),
			OCRText:    ocrText,
		}}, nil
	}

	receipt := mapReceipt(obj, now)
	if receipt.IsEmpty() {
		return nil, fmt.Errorf("no receipt fields in reply")
	}
	return SingleReceiptReply{Receipt: receipt, OCRText: ocrText}, nil
}

// mapReceipt reads one receipt object, accepting the synonyms models tend to use.
func mapReceipt(m map[string]any, now time.Time) extraction.ExtractedData {
	var data extraction.ExtractedData

	for _, key := range []string{"amount", "total", "totalAmount"} {
		if amount, ok := extraction.ParseAmountValue(m[key]); ok {
			data.Amount = &amount
			break
		}
	}
	data.MerchantName = stringField(m, "merchantName", "merchant", "store", "storeName", "vendor")
	data.Description = stringField(m, "description", "title")
	if cat := stringField(m, "category"); cat != nil {
		data.Category = ptr(strings.ToLower(*cat))
	}
	if raw := stringField(m, "date", "transactionDate"); raw != nil {
		if d, ok := extraction.NormalizeDate(*raw, now); ok {
			data.Date = &d
		}
	}

	confidence := defaultReplyConfidence
	if c, ok := confidenceValue(m["confidence"]); ok {
		confidence = c
	}
	data.Confidence = &confidence
	return data
}

func stringField(m map[string]any, keys ...string) *string {
	for _, key := range keys {
		s, ok := m[key].(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "n/a") {
			continue
		}
		return &s
	}
	return nil
}

// confidenceValue reads a model-reported confidence. Percentages are scaled
// down and the result is clamped to [0,1].
func confidenceValue(v any) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = val
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(val), "%"), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if f > 1 && f <= 100 {
		f /= 100
	}
	return math.Max(0, math.Min(1, f)), true
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ptr[T any](v T) *T {
	return &v
}
