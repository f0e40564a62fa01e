package extraction

import (
	"slices"
	"strings"
)

const (
	CategoryFood           = "food"
	CategoryTransport      = "transport"
	CategoryCommunications = "communications"
	CategorySupplies       = "supplies"
	CategoryMiscellaneous  = "miscellaneous"
)

type categoryKeywords struct {
	category string
	keywords []string
}

// Checked in order; the first category with a hit wins.
var categoryTable = []categoryKeywords{
	{CategoryFood, []string{
		"食品", "飲料", "弁当", "おにぎり", "パン", "コーヒー", "珈琲", "カフェ", "レストラン", "食堂",
		"居酒屋", "ランチ", "スターバックス", "ドトール", "マクドナルド",
		"セブンイレブン", "セブン-イレブン", "ファミリーマート", "ローソン", "ミニストップ", "スーパー",
	}},
	{CategoryTransport, []string{
		"交通", "電車", "乗車券", "切符", "タクシー", "バス", "JR", "駐車", "高速", "ガソリン", "給油",
		"ENEOS", "Suica", "PASMO",
	}},
	{CategoryCommunications, []string{
		"通信", "携帯", "電話料", "インターネット", "ドコモ", "ソフトバンク", "郵便", "切手", "はがき",
	}},
	{CategorySupplies, []string{
		"文具", "文房具", "事務用品", "コピー", "用紙", "ノート", "消耗品", "電池", "ダイソー",
		"ヨドバシ", "ビックカメラ", "100円ショップ",
	}},
}

// Categories lists every category MatchCategory can return.
var Categories = []string{
	CategoryFood, CategoryTransport, CategoryCommunications, CategorySupplies, CategoryMiscellaneous,
}

// IsCategory reports whether c is a known category.
func IsCategory(c string) bool {
	return slices.Contains(Categories, c)
}

// MatchCategory maps the recognized text to a spending category.
func MatchCategory(text string) string {
	for _, c := range categoryTable {
		for _, kw := range c.keywords {
			if strings.Contains(text, kw) {
				return c.category
			}
		}
	}
	return CategoryMiscellaneous
}
