package extraction

import (
	"math"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/width"
)

const (
	emergencyMaxAmount      = 100_000
	emergencyBaseConfidence = 0.3
	emergencyMaxConfidence  = 0.9
)

var (
	emergencyAmountPatterns = []*regexp.Regexp{
		regexp.MustCompile(`["']?\b(?:amount|total)["']?\s*:\s*["']?\s*[¥￥\\]?\s*([0-9０-９][0-9０-９,，.]*)`),
		regexp.MustCompile(`(?:合\s*計|総\s*額|金\s*額|お支払|(?i:total))\s*[:：]?\s*[¥￥\\]?\s*([0-9０-９][0-9０-９,，]*)`),
		regexp.MustCompile(`[¥￥]\s*([0-9０-９][0-9０-９,，]*)`),
		regexp.MustCompile(`([0-9０-９][0-9０-９,，]*)\s*円`),
	}

	emergencyMerchantPatterns = []*regexp.Regexp{
		regexp.MustCompile(`["']?\b(?:merchantName|merchant|store|storeName)["']?\s*:\s*["']([^"'\n]{1,40})["']`),
		regexp.MustCompile(`(セブン[-－]?イレブン|ファミリーマート|ローソン|ミニストップ|スターバックス|ドトール|マクドナルド|イオン|西友|イトーヨーカドー|ユニクロ|無印良品|ダイソー|マツモトキヨシ|ウエルシア)`),
		regexp.MustCompile(`([\p{Han}\p{Katakana}\p{Hiragana}A-Za-zー]{2,15}(?:店|支店|本店|営業所))`),
	}

	emergencyDatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`["']?\bdate["']?\s*:\s*["']([^"'\n]{6,20})["']`),
		regexp.MustCompile(`([0-9０-９]{4}\s*[/\-年]\s*[0-9０-９]{1,2}\s*[/\-月]\s*[0-9０-９]{1,2}\s*日?)`),
		regexp.MustCompile(`((?:令和|平成|R|H)\s*(?:[0-9０-９]{1,2}|元)\s*[年./]\s*[0-9０-９]{1,2}\s*[月./]\s*[0-9０-９]{1,2})`),
	}
)

// EmergencyExtract scans raw text for whatever fields it can find.
// It is the last resort when structured parsing has failed, so its
// confidence never exceeds 0.9. It returns nil when nothing is found.
func EmergencyExtract(text string, now time.Time) *ExtractedData {
	var data ExtractedData
	confidence := emergencyBaseConfidence

	for _, re := range emergencyAmountPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if amount, ok := ParseAmount(width.Fold.String(m[1])); ok && amount <= emergencyMaxAmount {
			data.Amount = ptr(amount)
			confidence += 0.3
			break
		}
	}

	for _, re := range emergencyMerchantPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if name := strings.TrimSpace(m[1]); name != "" {
				data.MerchantName = ptr(name)
				confidence += 0.2
				break
			}
		}
	}

	for _, re := range emergencyDatePatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if d, ok := NormalizeDate(m[1], now); ok {
			data.Date = ptr(d)
			confidence += 0.1
			break
		}
	}

	if data.IsEmpty() {
		return nil
	}
	data.Confidence = ptr(roundConfidence(math.Min(confidence, emergencyMaxConfidence)))
	return &data
}

func roundConfidence(c float64) float64 {
	return math.Round(c*100) / 100
}
