package extraction

import (
	"regexp"
	"unicode/utf8"
)

const merchantScanLines = 8

var (
	merchantRejectPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^[\d\s\-/:.,¥\\()年月日時分]+$`),
		regexp.MustCompile(`\d{4}[-/.]\d{1,2}[-/.]\d{1,2}|\d{1,2}月\d{1,2}日`),
		regexp.MustCompile(`\d{2,4}-\d{2,4}-\d{3,4}`),
		regexp.MustCompile(`〒|丁目|番地|[都道府県].{0,8}[市区町村]`),
		regexp.MustCompile(`領収書|領収証|レシート|(?i:receipt)|営業時間|ご来店|ありがと|いらっしゃいませ|(?i:\btel\b|thank)|電話|登録番号|お客様`),
	}

	legalEntityRe   = regexp.MustCompile(`株式会社|有限会社|合同会社|[(（]株[)）]|㈱|(?i:co\.,?\s*ltd|\binc\.?$|\bllc\b|\bcorp\.?\b)`)
	branchSuffixRe  = regexp.MustCompile(`^\S.*(?:店|支店|本店|営業所)$`)
	scriptOnlyRe    = regexp.MustCompile(`^[\p{Han}\p{Hiragana}\p{Katakana}\p{Latin}ー・&'\- ]+$`)
	anyDigitRe      = regexp.MustCompile(`\d`)
	knownChainNames = []string{
		"セブンイレブン", "セブン-イレブン", "ファミリーマート", "ローソン", "ミニストップ",
		"スターバックス", "ドトール", "マクドナルド", "イオン", "西友", "イトーヨーカドー",
		"ユニクロ", "無印良品", "ダイソー", "マツモトキヨシ", "ウエルシア", "ENEOS",
	}
)

// ExtractMerchant finds the vendor name near the top of the receipt.
// Criteria are tried in priority order; within one, the earliest line wins.
func ExtractMerchant(lines []string) *string {
	head := lines
	if len(head) > merchantScanLines {
		head = head[:merchantScanLines]
	}

	var usable []string
	for _, line := range head {
		if !isNonMerchantLine(line) {
			usable = append(usable, line)
		}
	}

	criteria := []func(string) bool{
		legalEntityRe.MatchString,
		branchSuffixRe.MatchString,
		func(line string) bool { return containsAny(line, knownChainNames) },
		isShortScriptLine,
	}
	for _, accept := range criteria {
		for _, line := range usable {
			if accept(line) {
				return ptr(line)
			}
		}
	}
	return nil
}

func isNonMerchantLine(line string) bool {
	for _, re := range merchantRejectPatterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

func isShortScriptLine(line string) bool {
	n := utf8.RuneCountInString(line)
	return n >= 3 && n <= 20 && !anyDigitRe.MatchString(line) && scriptOnlyRe.MatchString(line)
}
