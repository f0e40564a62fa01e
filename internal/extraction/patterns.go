package extraction

import "regexp"

// PatternTier is one priority group of amount patterns.
// Every pattern captures the numeral in group 1.
type PatternTier struct {
	Tier     Tier
	Patterns []*regexp.Regexp
}

// PatternTierSet is an ordered list of tiers, highest priority first.
type PatternTierSet []PatternTier

const (
	// The numeral may carry OCR letter confusions; they are repaired after capture.
	amountNum = `([0-9OoIlSsGBDZ][0-9OoIlSsGBDZ,]*)`
	amountSep = `\s*[:：]?\s*(?:[(（]税込[)）]\s*)?(?:\d+\s*点\s*)?[¥\\]?\s*`
)

func labeled(label string) *regexp.Regexp {
	return regexp.MustCompile(label + amountSep + amountNum)
}

var (
	finalTotalPatterns = []*regexp.Regexp{
		labeled(`(?:お?支払(?:い)?(?:金額|合計)|ご?請求(?:金額|額)|総合計|合計金額|税込合計)`),
		labeled(`(?i:grand\s*total|amount\s*due|total\s*due)`),
	}

	specificPatterns = map[ReceiptType][]*regexp.Regexp{
		ReceiptConvenience: {
			regexp.MustCompile(`^合\s*計\s*[:：]?\s*(?:\d+\s*点\s*)?[¥\\]\s*` + amountNum),
		},
		ReceiptSupermarket: {
			labeled(`(?:お買上げ?|お買い上げ)(?:合計|金額|計)?`),
		},
		ReceiptRestaurant: {
			labeled(`(?:御会計|ご会計|お会計|御勘定|お勘定|ご利用金額)`),
		},
		ReceiptPharmacy: {
			labeled(`(?:お買上げ?合計|ご?負担金額|ご負担額|領収金額)`),
		},
		ReceiptGasStation: {
			labeled(`(?:給油(?:合計|金額)|燃料代)`),
		},
		ReceiptRetail: {
			labeled(`(?:お買上げ?(?:金額|計)|お買い上げ金額)`),
		},
	}

	totalPatterns = []*regexp.Regexp{
		labeled(`(?:^|[^小])(?:合\s*計|総\s*計)`),
		labeled(`^(?i:total)`),
		labeled(`^計`),
	}

	subtotalPatterns = []*regexp.Regexp{
		labeled(`小\s*計`),
		labeled(`(?i:sub\s*-?\s*total)`),
	}

	fallbackPatterns = []*regexp.Regexp{
		regexp.MustCompile(`[¥\\]\s*` + amountNum),
		regexp.MustCompile(amountNum + `\s*円`),
	}
)

// PatternsFor returns the amount tiers for a receipt type in priority order.
// Unknown receipts have no specific tier.
func PatternsFor(rt ReceiptType) PatternTierSet {
	set := PatternTierSet{{Tier: TierFinalTotal, Patterns: finalTotalPatterns}}
	if specific, ok := specificPatterns[rt]; ok {
		set = append(set, PatternTier{Tier: TierSpecific, Patterns: specific})
	}
	return append(set,
		PatternTier{Tier: TierTotal, Patterns: totalPatterns},
		PatternTier{Tier: TierSubtotal, Patterns: subtotalPatterns},
		PatternTier{Tier: TierFallback, Patterns: fallbackPatterns},
	)
}

// Lines matching any of these never contribute an amount.
var exclusionPatterns = []*regexp.Regexp{
	// ticket and receipt numbers
	regexp.MustCompile(`#\s*\d{3,}`),
	regexp.MustCompile(`(?i:\bno\.?\s*\d{3,})`),
	regexp.MustCompile(`(?:伝票|レシート|取引|登録|会員)\s*(?:番号|No)`),
	// phone numbers and postal codes
	regexp.MustCompile(`(?i:\btel\b|\bfax\b)|電話|☎`),
	regexp.MustCompile(`\d{2,4}-\d{2,4}-\d{4}`),
	regexp.MustCompile(`〒|\b\d{3}-\d{4}\b`),
	// change given and deposit
	regexp.MustCompile(`お釣り?|おつり|釣銭|釣り銭|(?i:\bchange\b)`),
	regexp.MustCompile(`預り|預かり|(?i:\btender)`),
	// unit price and quantity x price
	regexp.MustCompile(`単価|@\s*[¥\\]?\s*\d`),
	regexp.MustCompile(`\d+\s*[x×X*]\s*[¥\\]?\s*\d`),
	regexp.MustCompile(`\d+\s*(?:個|点)\s*[x×X]`),
	// tax breakdown lines; inline tax notes are stripped by stripTaxNotes instead
	regexp.MustCompile(`^[\s(（]*(?:\d+\s*%\s*)?(?:税率\s*\d+\s*%\s*)?(?:うち|内|非?課税)?(?:消費税|内税|外税|税額|対象)`),
}

// taxNoteRe matches a parenthesised tax note such as "(内税 ¥80)".
var taxNoteRe = regexp.MustCompile(`[(（][^()（）]*(?:消費税|内税|外税|税額|対象)[^()（）]*[)）]`)

func stripTaxNotes(line string) string {
	return taxNoteRe.ReplaceAllString(line, " ")
}

func isExcluded(line string) bool {
	for _, re := range exclusionPatterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}
