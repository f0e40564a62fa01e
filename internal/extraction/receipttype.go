package extraction

import "strings"

type archetypeKeywords struct {
	receiptType ReceiptType
	keywords    []string
}

// Checked in order; the first archetype with a hit wins.
var archetypeTable = []archetypeKeywords{
	{ReceiptConvenience, []string{
		"セブンイレブン", "セブン-イレブン", "7-ELEVEN", "7-Eleven", "ファミリーマート", "FamilyMart",
		"ローソン", "LAWSON", "ミニストップ", "デイリーヤマザキ", "セイコーマート", "ポプラ",
	}},
	{ReceiptGasStation, []string{
		"ENEOS", "エネオス", "出光", "コスモ石油", "昭和シェル", "ガソリン", "レギュラー", "ハイオク", "軽油", "給油",
	}},
	{ReceiptPharmacy, []string{
		"薬局", "ドラッグ", "マツモトキヨシ", "ウエルシア", "ツルハ", "サンドラッグ", "ココカラファイン", "調剤",
	}},
	{ReceiptRestaurant, []string{
		"レストラン", "食堂", "居酒屋", "カフェ", "珈琲", "スターバックス", "ドトール", "マクドナルド",
		"テーブル", "名様", "客数", "御会計", "ご会計",
	}},
	{ReceiptSupermarket, []string{
		"スーパー", "イオン", "AEON", "西友", "イトーヨーカドー", "ライフ", "マルエツ", "業務スーパー", "食品館",
	}},
	{ReceiptRetail, []string{
		"ユニクロ", "無印良品", "ヨドバシ", "ビックカメラ", "ダイソー", "DAISO", "百貨店", "ニトリ",
	}},
}

// ClassifyReceipt assigns a receipt archetype from keywords in the lines.
func ClassifyReceipt(lines []string) ReceiptType {
	text := strings.Join(lines, "\n")
	for _, a := range archetypeTable {
		for _, kw := range a.keywords {
			if strings.Contains(text, kw) {
				return a.receiptType
			}
		}
	}
	return ReceiptUnknown
}
