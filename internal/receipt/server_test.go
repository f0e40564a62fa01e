package receipt

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gbytes"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/receipt-extractor/internal/scanning"
)

// multipartBody builds a form with one file part per name under field
func multipartBody(field string, names ...string) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, name := range names {
		part, err := writer.CreateFormFile(field, name)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write([]byte("image data for " + name))
		Expect(err).NotTo(HaveOccurred())
	}
	Expect(writer.Close()).To(Succeed())
	return body, writer.FormDataContentType()
}

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		processor   *mockProcessor
		auth        BasicAuth
		server      *Server
		ghttpServer *ghttp.Server
	)

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		processor = newMockProcessor()
		auth = BasicAuth{}
	})

	JustBeforeEach(func() {
		service := NewServiceWithDeps(db, processor, storage, ServiceConfig{}, &mockIDGenerator{ids: []string{"new-id"}}, &mockTimeSource{})
		server = NewServerWithMux(service, auth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	})

	AfterEach(func() {
		ghttpServer.Close()
	})

	do := func(method, path string, body io.Reader, contentType string) *http.Response {
		req, err := http.NewRequest(method, ghttpServer.URL()+path, body)
		Expect(err).NotTo(HaveOccurred())
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(resp.Body.Close)
		return resp
	}

	decode := func(resp *http.Response, v any) {
		Expect(json.NewDecoder(resp.Body).Decode(v)).To(Succeed())
	}

	Describe("middleware", func() {
		It("should answer health checks", func() {
			resp := do("GET", "/healthz", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("should tag responses with a request id", func() {
			resp := do("GET", "/healthz", nil, "")
			Expect(resp.Header.Get("X-Request-ID")).NotTo(BeEmpty())
		})

		It("should echo a caller-supplied request id", func() {
			req, err := http.NewRequest("GET", ghttpServer.URL()+"/healthz", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("X-Request-ID", "abc-123")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.Header.Get("X-Request-ID")).To(Equal("abc-123"))
		})

		It("should log failures with the request id", func() {
			logs := gbytes.NewBuffer()
			DeferCleanup(slog.SetDefault, slog.Default())
			slog.SetDefault(slog.New(slog.NewTextHandler(logs, nil)))

			req, err := http.NewRequest("PATCH", ghttpServer.URL()+"/api/receipts/missing", strings.NewReader(`{}`))
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("X-Request-ID", "req-42")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			Eventually(logs).Should(gbytes.Say(`Error updating receipt.*request_id=req-42`))
		})

		It("should answer CORS preflight requests", func() {
			resp := do("OPTIONS", "/api/receipts", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
			Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(ContainSubstring("PATCH"))
		})

		When("basic auth is configured", func() {
			BeforeEach(func() {
				auth = BasicAuth{Username: "user", Password: "pass"}
			})

			It("should reject requests without credentials", func() {
				resp := do("GET", "/api/receipts", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
				Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
			})

			It("should accept valid credentials", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/receipts", nil)
				Expect(err).NotTo(HaveOccurred())
				req.SetBasicAuth("user", "pass")
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			})

			It("should leave the health check open", func() {
				resp := do("GET", "/healthz", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			})
		})
	})

	Describe("POST /api/extract", func() {
		It("should return the engine result", func() {
			payload := `{"image": "data:image/png;base64,` + base64.StdEncoding.EncodeToString([]byte("png")) + `", "preferGenerative": true}`
			resp := do("POST", "/api/extract", strings.NewReader(payload), "application/json")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var result scanning.Result
			decode(resp, &result)
			Expect(result.Source).To(Equal(scanning.SourceOCR))
			Expect(*result.ExtractedData.Amount).To(Equal(1200))
			Expect(processor.preferGenerative).To(BeTrue())
		})

		It("should not store anything", func() {
			payload := `{"image": "` + base64.StdEncoding.EncodeToString([]byte("jpg")) + `"}`
			resp := do("POST", "/api/extract", strings.NewReader(payload), "application/json")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(db.receipts).To(BeEmpty())
			Expect(storage.files).To(BeEmpty())
		})

		It("should reject a missing image", func() {
			resp := do("POST", "/api/extract", strings.NewReader(`{}`), "application/json")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should reject malformed JSON", func() {
			resp := do("POST", "/api/extract", strings.NewReader(`{`), "application/json")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should hand undecodable images to the engine", func() {
			resp := do("POST", "/api/extract", strings.NewReader(`{"image": "data:image/png;base64,***"}`), "application/json")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(processor.lastURI).To(Equal("data:image/png;base64,***"))
		})
	})

	Describe("POST /api/receipts", func() {
		It("should create a receipt", func() {
			body, contentType := multipartBody("file", "receipt.png")
			resp := do("POST", "/api/receipts", body, contentType)
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var receipt Receipt
			decode(resp, &receipt)
			Expect(receipt.ID).To(Equal("new-id"))
			Expect(*receipt.Amount).To(Equal(1200))
			Expect(receipt.ContentType).To(Equal("image/png"))
			Expect(processor.lastContentType).To(Equal("image/png"))
		})

		It("should reject a form without a file", func() {
			body, contentType := multipartBody("other", "receipt.png")
			resp := do("POST", "/api/receipts", body, contentType)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should reject a non-multipart body", func() {
			resp := do("POST", "/api/receipts", strings.NewReader("x"), "text/plain")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("POST /api/receipts/batch", func() {
		It("should process every file", func() {
			body, contentType := multipartBody("files", "a.jpg", "b.heic")
			resp := do("POST", "/api/receipts/batch", body, contentType)
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var result BatchResult
			decode(resp, &result)
			Expect(result.Receipts).To(HaveLen(2))
			Expect(result.Failures).To(BeEmpty())
			Expect(result.Receipts[1].ContentType).To(Equal("image/heic"))
		})

		It("should reject an empty batch", func() {
			body, contentType := multipartBody("file", "a.jpg")
			resp := do("POST", "/api/receipts/batch", body, contentType)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /api/receipts", func() {
		BeforeEach(func() {
			db.receipts["id1"] = &Receipt{ID: "id1"}
			db.receipts["id2"] = &Receipt{ID: "id2"}
		})

		It("should return all receipts as JSON", func() {
			resp := do("GET", "/api/receipts", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))

			var receipts []*Receipt
			decode(resp, &receipts)
			Expect(receipts).To(HaveLen(2))
		})
	})

	Describe("GET /api/receipts/export.xlsx", func() {
		It("should return a workbook", func() {
			resp := do("GET", "/api/receipts/export.xlsx", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(ContainSubstring("spreadsheetml"))
			Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("receipts.xlsx"))
		})
	})

	Describe("GET /api/receipts/{id}", func() {
		BeforeEach(func() {
			db.receipts["id1"] = &Receipt{ID: "id1", OCRText: "text"}
		})

		It("should return the receipt", func() {
			resp := do("GET", "/api/receipts/id1", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var receipt Receipt
			decode(resp, &receipt)
			Expect(receipt.OCRText).To(Equal("text"))
		})

		It("should return 404 for a missing receipt", func() {
			resp := do("GET", "/api/receipts/missing", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("PATCH /api/receipts/{id}", func() {
		BeforeEach(func() {
			db.receipts["id1"] = &Receipt{ID: "id1"}
		})

		It("should apply the correction", func() {
			resp := do("PATCH", "/api/receipts/id1", strings.NewReader(`{"amount": 980, "date": "2024/03/04"}`), "application/json")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var receipt Receipt
			decode(resp, &receipt)
			Expect(*receipt.Amount).To(Equal(980))
			Expect(*receipt.Date).To(Equal("2024-03-04"))
			Expect(receipt.Edited).To(BeTrue())
		})

		It("should reject invalid values", func() {
			resp := do("PATCH", "/api/receipts/id1", strings.NewReader(`{"category": "travel"}`), "application/json")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should return 404 for a missing receipt", func() {
			resp := do("PATCH", "/api/receipts/missing", strings.NewReader(`{}`), "application/json")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("GET /api/receipts/{id}/file", func() {
		BeforeEach(func() {
			db.receipts["id1"] = &Receipt{ID: "id1", Filename: "id1_a.png", ContentType: "image/png"}
			storage.files["id1_a.png"] = []byte("png data")
		})

		It("should return the stored file", func() {
			resp := do("GET", "/api/receipts/id1/file", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(Equal("png data"))
		})

		It("should return 404 for a missing receipt", func() {
			resp := do("GET", "/api/receipts/missing/file", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("DELETE /api/receipts/{id}", func() {
		BeforeEach(func() {
			db.receipts["id1"] = &Receipt{ID: "id1", Filename: "id1_a.png"}
			storage.files["id1_a.png"] = []byte("png data")
		})

		It("should delete the receipt", func() {
			resp := do("DELETE", "/api/receipts/id1", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(db.receipts).To(BeEmpty())
		})

		It("should return 404 for a missing receipt", func() {
			resp := do("DELETE", "/api/receipts/missing", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})
})
