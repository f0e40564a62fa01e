package extraction

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ExtractAmount", func() {
	var (
		lines       []string
		receiptType ReceiptType
		candidate   *Candidate
		candidates  []Candidate
	)

	BeforeEach(func() {
		receiptType = ReceiptUnknown
	})

	JustBeforeEach(func() {
		candidate, candidates = ExtractAmount(lines, receiptType)
	})

	When("a final total and a fallback amount are both present", func() {
		BeforeEach(func() {
			lines = []string{"¥300", "コーヒー 300円", "お支払金額 ¥1,200"}
		})

		It("should pick the final total regardless of line order", func() {
			Expect(candidate).NotTo(BeNil())
			Expect(candidate.Amount).To(Equal(1200))
			Expect(candidate.Tier).To(Equal(TierFinalTotal))
		})

		It("should short-circuit before the fallback tier", func() {
			Expect(candidates).To(HaveLen(1))
		})
	})

	When("only change given is present", func() {
		BeforeEach(func() {
			lines = []string{"お釣り ¥500"}
		})

		It("should not produce an amount", func() {
			Expect(candidate).To(BeNil())
			Expect(candidates).To(BeEmpty())
		})
	})

	When("lines look numeric but are not the total", func() {
		BeforeEach(func() {
			lines = []string{
				"TEL 03-1234-5678",
				"〒150-0001",
				"レシート No.00123",
				"お預り ¥1,000",
				"単価 ¥120",
				"3 x ¥120",
				"内消費税 ¥40",
				"小計 ¥360",
			}
		})

		It("should fall back to the subtotal", func() {
			Expect(candidate).NotTo(BeNil())
			Expect(candidate.Amount).To(Equal(360))
			Expect(candidate.Tier).To(Equal(TierSubtotal))
		})
	})

	When("the numeral has OCR letter confusions", func() {
		BeforeEach(func() {
			lines = []string{"合計 S44"}
		})

		It("should repair the digits", func() {
			Expect(candidate).NotTo(BeNil())
			Expect(candidate.Amount).To(Equal(544))
		})
	})

	When("the amount exceeds the sanity ceiling", func() {
		BeforeEach(func() {
			lines = []string{"合計 ¥15,000,000"}
		})

		It("should discard it", func() {
			Expect(candidate).To(BeNil())
		})
	})

	When("an out-of-range total sits above a valid subtotal", func() {
		BeforeEach(func() {
			lines = []string{"合計 ¥15,000,000", "小計 ¥1,500"}
		})

		It("should use the valid candidate", func() {
			Expect(candidate).NotTo(BeNil())
			Expect(candidate.Amount).To(Equal(1500))
		})
	})

	When("several candidates share the best tier", func() {
		BeforeEach(func() {
			lines = []string{"りんご ¥200", "みかん ¥150"}
		})

		It("should keep the first by line order", func() {
			Expect(candidate.Amount).To(Equal(200))
			Expect(candidates).To(HaveLen(2))
		})
	})

	When("a total and a subtotal are both present", func() {
		BeforeEach(func() {
			lines = []string{"小計 ¥1,000", "合計 ¥1,100"}
		})

		It("should prefer the total tier", func() {
			Expect(candidate.Amount).To(Equal(1100))
			Expect(candidate.Tier).To(Equal(TierTotal))
		})
	})

	When("the receipt is from a convenience store", func() {
		BeforeEach(func() {
			receiptType = ReceiptConvenience
		})

		When("a bare yen line is present", func() {
			BeforeEach(func() {
				lines = []string{"ファミリーマート", "おにぎり 150", "¥298"}
			})

			It("should use the vendor rule", func() {
				Expect(candidate.Amount).To(Equal(298))
				Expect(candidate.Tier).To(Equal(TierVendor))
			})
		})

		When("the bare yen line is change given", func() {
			BeforeEach(func() {
				lines = []string{"ファミリーマート", "¥50 お釣り"}
			})

			It("should never bypass the exclusion list", func() {
				Expect(candidate).To(BeNil())
			})
		})

		When("the bare yen value is implausible", func() {
			BeforeEach(func() {
				lines = []string{"ファミリーマート", "¥20", "合計 ¥298"}
			})

			It("should fall through to the specific tier", func() {
				Expect(candidate.Amount).To(Equal(298))
				Expect(candidate.Tier).To(Equal(TierSpecific))
			})
		})
	})

	When("the total label only carries an item count", func() {
		BeforeEach(func() {
			lines = NormalizeLines("スーパーA\n合計 3点\n¥1,200")
		})

		It("should not take the count as the amount", func() {
			Expect(candidate).NotTo(BeNil())
			Expect(candidate.Amount).To(Equal(1200))
			Expect(candidate.Tier).To(Equal(TierFallback))
		})
	})

	When("the subtotal label only carries an item count", func() {
		BeforeEach(func() {
			lines = []string{"小計 12点", "¥980"}
		})

		It("should not take the count as the amount", func() {
			Expect(candidate.Amount).To(Equal(980))
			Expect(candidate.Tier).To(Equal(TierFallback))
		})
	})

	When("the item count and the amount share a line", func() {
		BeforeEach(func() {
			lines = []string{"合計 3点 ¥1,200"}
		})

		It("should skip the count", func() {
			Expect(candidate.Amount).To(Equal(1200))
			Expect(candidate.Tier).To(Equal(TierTotal))
		})
	})

	When("the total carries an inline tax note", func() {
		BeforeEach(func() {
			lines = []string{"ABC", "合計 ¥1,080 (内税 ¥80)", "¥100"}
		})

		It("should keep the total line", func() {
			Expect(candidate.Amount).To(Equal(1080))
			Expect(candidate.Tier).To(Equal(TierTotal))
		})
	})

	When("a tax breakdown sits on its own line", func() {
		BeforeEach(func() {
			lines = []string{"(8%対象 ¥1,000)", "10%対象 ¥2,000", "¥1,080"}
		})

		It("should ignore it", func() {
			Expect(candidate.Amount).To(Equal(1080))
			Expect(candidates).To(HaveLen(1))
		})
	})

	When("confusable letters are glued to a word", func() {
		BeforeEach(func() {
			lines = []string{"ID300円"}
		})

		It("should keep them out of the numeral", func() {
			Expect(candidate).NotTo(BeNil())
			Expect(candidate.Amount).To(Equal(300))
		})
	})

	When("the vendor prints the total below its label", func() {
		BeforeEach(func() {
			lines = []string{"ダイソー", "商品 ¥110", "総合計", "¥880"}
		})

		It("should read the following line", func() {
			Expect(candidate.Amount).To(Equal(880))
			Expect(candidate.Tier).To(Equal(TierVendor))
		})
	})

	When("the line below the vendor label is a ticket number", func() {
		BeforeEach(func() {
			lines = []string{"ダイソー", "総合計", "#1234"}
		})

		It("should never bypass the exclusion list", func() {
			Expect(candidate).To(BeNil())
		})
	})
})

var _ = Describe("RepairNumeral", func() {
	DescribeTable("repairs",
		func(raw, expected string, ok bool) {
			got, gotOK := RepairNumeral(raw)
			Expect(gotOK).To(Equal(ok))
			Expect(got).To(Equal(expected))
		},
		Entry("S for 5", "S44", "544", true),
		Entry("O and l", "1O0l", "1001", true),
		Entry("B G Z D", "B6GZD1", "866201", true),
		Entry("thousands separator", "1,2OO", "1200", true),
		Entry("letters only", "SOB", "", false),
		Entry("unrepairable letter", "12X", "", false),
	)
})

var _ = Describe("ParseAmountValue", func() {
	DescribeTable("values",
		func(v any, expected int, ok bool) {
			got, gotOK := ParseAmountValue(v)
			Expect(gotOK).To(Equal(ok))
			Expect(got).To(Equal(expected))
		},
		Entry("json number", json.Number("1200"), 1200, true),
		Entry("float", 450.0, 450, true),
		Entry("string with separators", "¥1,200", 1200, true),
		Entry("string with yen suffix", "980円", 980, true),
		Entry("zero", 0.0, 0, false),
		Entry("negative", "-5", 0, false),
		Entry("over the ceiling", "15,000,000", 0, false),
		Entry("garbage", "abc", 0, false),
		Entry("nil", nil, 0, false),
	)
})
