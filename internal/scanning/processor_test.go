package scanning

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// mockGenerator is a mock implementation of Generator
type mockGenerator struct {
	reply string
	err   error
	panic bool
	calls int
}

func (m *mockGenerator) Generate(ctx context.Context, imageData []byte, contentType string) (string, error) {
	m.calls++
	if m.panic {
		panic("provider exploded")
	}
	return m.reply, m.err
}

func (m *mockGenerator) Close() error { return nil }

// mockRecognizer is a mock implementation of TextRecognizer
type mockRecognizer struct {
	text  string
	err   error
	calls int
}

func (m *mockRecognizer) RecognizeText(ctx context.Context, imageData []byte, contentType string) (string, error) {
	m.calls++
	return m.text, m.err
}

func (m *mockRecognizer) Close() error { return nil }

var _ = Describe("Processor", func() {
	var (
		generator        *mockGenerator
		recognizer       *mockRecognizer
		config           ProcessorConfig
		preferGenerative bool
		processor        *Processor
		result           Result
		now              time.Time
	)

	BeforeEach(func() {
		now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
		generator = &mockGenerator{}
		recognizer = &mockRecognizer{}
		config = ProcessorConfig{}
		preferGenerative = true
	})

	JustBeforeEach(func() {
		processor = NewProcessorWithDeps(generator, recognizer, config, func() time.Time { return now })
		result = processor.ProcessReceipt(context.Background(), []byte("image"), "image/png", preferGenerative)
	})

	When("the generative model returns clean JSON", func() {
		BeforeEach(func() {
			generator.reply = `{"amount": 1200, "merchantName": "スターバックス", "confidence": 0.95}`
		})

		It("should use the generative result", func() {
			Expect(result.Source).To(Equal(SourceGenerative))
			Expect(*result.ExtractedData.Amount).To(Equal(1200))
			Expect(*result.ExtractedData.Confidence).To(BeNumerically("~", 0.95))
		})

		It("should not call OCR", func() {
			Expect(recognizer.calls).To(Equal(0))
		})

		It("should fall back to the raw reply for the recognized text", func() {
			Expect(result.OCRText).To(Equal(generator.reply))
		})
	})

	When("the generative model returns several receipts", func() {
		BeforeEach(func() {
			generator.reply = `{"receipts": [{"amount": 100}, {"amount": 200}], "totalCount": 2, "ocrText": "two"}`
		})

		It("should expose all of them", func() {
			Expect(result.MultipleReceipts).To(HaveLen(2))
			Expect(result.TotalCount).To(Equal(2))
			Expect(*result.ExtractedData.Amount).To(Equal(100))
			Expect(result.OCRText).To(Equal("two"))
		})
	})

	When("the generative model lists receipts with every field null", func() {
		BeforeEach(func() {
			generator.reply = `{"receipts":[{"amount":null,"merchantName":null,"date":null}],"totalCount":1}`
			recognizer.text = "ローソン\n合計 ¥450"
		})

		It("should fall back to OCR", func() {
			Expect(recognizer.calls).To(Equal(1))
			Expect(result.Source).To(Equal(SourceOCR))
			Expect(*result.ExtractedData.Amount).To(Equal(450))
			Expect(result.MultipleReceipts).To(BeEmpty())
		})
	})

	When("the generative reply is only recoverable by the emergency extractor", func() {
		BeforeEach(func() {
			generator.reply = "合計 ¥2,000 でした"
		})

		It("should mark the source", func() {
			Expect(result.Source).To(Equal(SourceGenerativeEmergency))
			Expect(*result.ExtractedData.Amount).To(Equal(2000))
		})
	})

	When("the generative model fails", func() {
		BeforeEach(func() {
			generator.err = errors.New("quota exceeded")
			recognizer.text = "ローソン\n合計 ¥450\nお釣り ¥50"
		})

		It("should fall back to OCR", func() {
			Expect(result.Source).To(Equal(SourceOCR))
			Expect(result.OCRText).To(Equal(recognizer.text))
			Expect(*result.ExtractedData.Amount).To(Equal(450))
		})
	})

	When("the generative reply is unusable", func() {
		BeforeEach(func() {
			generator.reply = "I cannot read this image."
			recognizer.text = "合計 ¥800"
		})

		It("should fall back to OCR", func() {
			Expect(result.Source).To(Equal(SourceOCR))
			Expect(*result.ExtractedData.Amount).To(Equal(800))
		})
	})

	When("OCR is preferred", func() {
		BeforeEach(func() {
			preferGenerative = false
			generator.reply = `{"amount": 1}`
			recognizer.text = "合計 ¥800"
		})

		It("should not call the generative model", func() {
			Expect(result.Source).To(Equal(SourceOCR))
			Expect(generator.calls).To(Equal(0))
		})
	})

	When("OCR is preferred but fails", func() {
		BeforeEach(func() {
			preferGenerative = false
			generator.reply = `{"amount": 990}`
			recognizer.err = errors.New("vision down")
		})

		It("should try the generative model afterwards", func() {
			Expect(result.Source).To(Equal(SourceGenerative))
			Expect(*result.ExtractedData.Amount).To(Equal(990))
		})
	})

	When("every provider fails", func() {
		BeforeEach(func() {
			generator.err = errors.New("boom")
			recognizer.err = errors.New("boom")
		})

		It("should return empty data", func() {
			Expect(result.Source).To(Equal(SourceNone))
			Expect(result.ExtractedData.IsEmpty()).To(BeTrue())
			Expect(*result.ExtractedData.Confidence).To(BeZero())
		})

		When("placeholders are allowed", func() {
			BeforeEach(func() {
				config.AllowPlaceholder = true
			})

			It("should return low-confidence placeholder data", func() {
				Expect(result.Source).To(Equal(SourcePlaceholder))
				Expect(*result.ExtractedData.Amount).To(Equal(1000))
				Expect(*result.ExtractedData.Date).To(Equal("2024-06-01"))
				Expect(*result.ExtractedData.Confidence).To(BeNumerically("~", 0.1))
			})
		})
	})

	When("a provider panics", func() {
		BeforeEach(func() {
			generator.panic = true
		})

		It("should recover and return empty data", func() {
			Expect(result.Source).To(Equal(SourceNone))
		})
	})

	When("no providers are configured", func() {
		JustBeforeEach(func() {
			processor = NewProcessor(nil, nil, ProcessorConfig{})
			result = processor.ProcessReceipt(context.Background(), []byte("image"), "image/png", true)
		})

		It("should return empty data", func() {
			Expect(result.Source).To(Equal(SourceNone))
		})
	})

	Describe("ProcessDataURI", func() {
		BeforeEach(func() {
			recognizer.text = "合計 ¥300"
			preferGenerative = false
		})

		It("should decode the image before processing", func() {
			uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("image"))
			res := processor.ProcessDataURI(context.Background(), uri, false)
			Expect(res.Source).To(Equal(SourceOCR))
			Expect(*res.ExtractedData.Amount).To(Equal(300))
		})

		It("should return empty data for an undecodable URI", func() {
			res := processor.ProcessDataURI(context.Background(), "data:image/png;base64,!!!", false)
			Expect(res.Source).To(Equal(SourceNone))
		})
	})
})
