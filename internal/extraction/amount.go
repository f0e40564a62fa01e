package extraction

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/width"
)

var (
	maxAmount = decimal.NewFromInt(MaxAmount)

	amountNoiseRe = regexp.MustCompile(`[¥\\$,\s円]`)

	// Applied only to captured numerals, never to names or descriptions.
	digitRepairs = strings.NewReplacer(
		"O", "0", "o", "0", "D", "0",
		"l", "1", "I", "1",
		"S", "5", "s", "5",
		"G", "6", "B", "8", "Z", "2",
	)
)

// vendorRule matches a vendor layout that defeats the generic label patterns.
// Rules only see lines that survived the exclusion pass.
type vendorRule struct {
	name string
	find func(lines []string, excluded []bool, rt ReceiptType) (Candidate, bool)
}

var (
	labelThenAmountVendors = []string{"ダイソー", "DAISO", "ニトリ", "無印良品"}
	bareGrandTotalLabelRe  = regexp.MustCompile(`^(?:総合計|合計金額|お買上げ?合計|(?i:grand\s*total))\s*[:：]?$`)
	bareShortAmountRe      = regexp.MustCompile(`^\D{0,3}(\d{3,4})\s*円?$`)
	bareYenLineRe          = regexp.MustCompile(`^[¥\\]\s*([\d,]+)\s*円?(?:\s+\S{1,8})?$`)

	// A numeral followed by 点 is an item count, never an amount.
	itemCountSuffixRe = regexp.MustCompile(`^\s*点`)
)

const confusableLetters = "OoIlSsGBDZ"

var vendorRules = []vendorRule{
	{name: "label-then-amount", find: findLabelThenAmount},
	{name: "convenience-bare-yen", find: findConvenienceBareYen},
}

// findLabelThenAmount handles receipts that print the grand total label on its
// own line with a bare 3-4 digit amount directly below it.
func findLabelThenAmount(lines []string, excluded []bool, _ ReceiptType) (Candidate, bool) {
	if !containsAny(strings.Join(lines, "\n"), labelThenAmountVendors) {
		return Candidate{}, false
	}
	for i := 0; i+1 < len(lines); i++ {
		if excluded[i] || excluded[i+1] || !bareGrandTotalLabelRe.MatchString(lines[i]) {
			continue
		}
		m := bareShortAmountRe.FindStringSubmatch(lines[i+1])
		if m == nil {
			continue
		}
		if amount, ok := ParseAmount(m[1]); ok {
			return Candidate{Amount: amount, Tier: TierVendor, Line: lines[i+1], Pattern: bareShortAmountRe.String()}, true
		}
	}
	return Candidate{}, false
}

// findConvenienceBareYen treats a lone ¥NNN line on a convenience store receipt
// as the total when the value is plausible.
func findConvenienceBareYen(lines []string, excluded []bool, rt ReceiptType) (Candidate, bool) {
	if rt != ReceiptConvenience {
		return Candidate{}, false
	}
	for i, line := range lines {
		if excluded[i] {
			continue
		}
		m := bareYenLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		amount, ok := ParseAmount(m[1])
		if ok && amount >= 50 && amount <= 10_000 {
			return Candidate{Amount: amount, Tier: TierVendor, Line: line, Pattern: bareYenLineRe.String()}, true
		}
	}
	return Candidate{}, false
}

// ExtractAmount searches normalized lines for the payable total.
// It returns the chosen candidate (nil when none survives) and every
// candidate collected on the way.
func ExtractAmount(lines []string, rt ReceiptType) (*Candidate, []Candidate) {
	search := make([]string, len(lines))
	excluded := make([]bool, len(lines))
	for i, line := range lines {
		search[i] = stripTaxNotes(line)
		excluded[i] = isExcluded(search[i])
	}

	var candidates []Candidate
	for _, rule := range vendorRules {
		if c, ok := rule.find(lines, excluded, rt); ok {
			slog.Debug("Vendor rule matched", "rule", rule.name, "amount", c.Amount)
			return &c, append(candidates, c)
		}
	}

	for _, tier := range PatternsFor(rt) {
		for i, line := range lines {
			if excluded[i] {
				continue
			}
			for _, re := range tier.Patterns {
				numeral, ok := captureNumeral(re, search[i])
				if !ok {
					continue
				}
				amount, ok := parseNumeral(numeral)
				if !ok {
					continue
				}
				c := Candidate{Amount: amount, Tier: tier.Tier, Line: line, Pattern: re.String()}
				if tier.Tier.shortCircuits() {
					return &c, append(candidates, c)
				}
				candidates = append(candidates, c)
			}
		}
	}
	return selectCandidate(candidates), candidates
}

// captureNumeral returns the numeral captured by re in line. Item counts are
// rejected, and confusable letters glued to a preceding word are dropped.
func captureNumeral(re *regexp.Regexp, line string) (string, bool) {
	loc := re.FindStringSubmatchIndex(line)
	if loc == nil || loc[2] < 0 {
		return "", false
	}
	start, end := loc[2], loc[3]
	if itemCountSuffixRe.MatchString(line[end:]) {
		return "", false
	}

	numeral := line[start:end]
	lead := len(numeral) - len(strings.TrimLeft(numeral, confusableLetters))
	if lead > 1 || (lead == 1 && start > 0 && isASCIILetter(line[start-1])) {
		numeral = numeral[lead:]
	}
	return numeral, true
}

func isASCIILetter(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

// selectCandidate picks the earliest candidate of the highest-priority tier.
func selectCandidate(candidates []Candidate) *Candidate {
	var best *Candidate
	for i := range candidates {
		if best == nil || candidates[i].Tier < best.Tier {
			best = &candidates[i]
		}
	}
	return best
}

// RepairNumeral fixes digit/letter confusions in a captured numeral.
// It fails when the text has no real digit or still holds a non-digit after repair.
func RepairNumeral(raw string) (string, bool) {
	s := strings.NewReplacer(",", "", " ", "").Replace(raw)
	if !strings.ContainsAny(s, "0123456789") {
		return "", false
	}
	s = digitRepairs.Replace(s)
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return s, true
}

func parseNumeral(raw string) (int, bool) {
	s, ok := RepairNumeral(raw)
	if !ok {
		return 0, false
	}
	return ParseAmount(s)
}

// ParseAmount parses a money string such as "¥1,200", "1200円" or "1200.00"
// into whole currency units. Values outside (0, MaxAmount) are rejected.
func ParseAmount(s string) (int, bool) {
	s = amountNoiseRe.ReplaceAllString(width.Fold.String(s), "")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	return amountFromDecimal(d)
}

// ParseAmountValue accepts the loosely typed values found in decoded JSON.
func ParseAmountValue(v any) (int, bool) {
	switch val := v.(type) {
	case nil:
		return 0, false
	case json.Number:
		return ParseAmount(val.String())
	case float64:
		return amountFromDecimal(decimal.NewFromFloat(val))
	case int:
		return amountFromDecimal(decimal.NewFromInt(int64(val)))
	case int64:
		return amountFromDecimal(decimal.NewFromInt(val))
	case string:
		return ParseAmount(val)
	}
	return 0, false
}

func amountFromDecimal(d decimal.Decimal) (int, bool) {
	d = d.Round(0)
	if d.Sign() <= 0 || d.GreaterThanOrEqual(maxAmount) {
		return 0, false
	}
	return int(d.IntPart()), true
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}
