package invoice

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/shoplist-invoicer/internal/pricing"
	"github.com/zombor/shoplist-invoicer/internal/sales"
	"github.com/zombor/shoplist-invoicer/internal/scanning"
)

func uploadRequest(url, filename, contentType string, data []byte) *http.Request {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := writer.CreatePart(h)
	Expect(err).NotTo(HaveOccurred())
	_, err = part.Write(data)
	Expect(err).NotTo(HaveOccurred())
	Expect(writer.Close()).To(Succeed())

	req, err := http.NewRequest(http.MethodPost, url, body)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func postJSON(url string, v any) *http.Response {
	data, err := json.Marshal(v)
	Expect(err).NotTo(HaveOccurred())
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	Expect(err).NotTo(HaveOccurred())
	return resp
}

func decodeBody(resp *http.Response, v any) {
	defer resp.Body.Close()
	Expect(json.NewDecoder(resp.Body).Decode(v)).To(Succeed())
}

var _ = Describe("Server", func() {
	var (
		extractor   *mockExtractor
		db          *mockSalesDB
		storage     *mockStorage
		service     *Service
		auth        BasicAuth
		ghttpServer *ghttp.Server
		server      *Server
		now         time.Time
	)

	BeforeEach(func() {
		extractor = &mockExtractor{items: []pricing.RawLineItem{{Quantity: 2, Name: "sugar"}}}
		db = newMockSalesDB()
		storage = newMockStorage()
		auth = BasicAuth{}
		now = time.Date(2024, 3, 9, 14, 5, 0, 0, time.UTC)
	})

	JustBeforeEach(func() {
		service = NewServiceWithDeps(shopCatalog(), extractor, db, storage, &mockRenderer{}, &mockIDGenerator{id: "sale-1"}, &mockTimeSource{now: now})
		server = NewServerWithMux(service, auth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	})

	AfterEach(func() {
		ghttpServer.Close()
	})

	Describe("handleIndex", func() {
		It("should serve the page", func() {
			resp, err := http.Get(ghttpServer.URL() + "/")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("Shopping List Invoicer"))
		})

		It("should not serve unknown paths", func() {
			resp, err := http.Get(ghttpServer.URL() + "/nope")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("CORS", func() {
		It("should answer preflight requests", func() {
			req, err := http.NewRequest(http.MethodOptions, ghttpServer.URL()+"/api/sales", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})

	Describe("authentication", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "jibrin", Password: "secret"}
		})

		It("should reject missing credentials", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/catalog")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
		})

		It("should accept valid credentials", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/catalog", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("jibrin", "secret")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("should reject a wrong password", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/catalog", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("jibrin", "guess")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("handleScan", func() {
		When("a photo is uploaded", func() {
			It("should return the priced invoice", func() {
				resp, err := http.DefaultClient.Do(uploadRequest(ghttpServer.URL()+"/api/invoices/scan", "list.jpg", "image/jpeg", []byte("jpeg")))
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var result struct {
					Invoice struct {
						Lines      []pricing.ResolvedLineItem `json:"lines"`
						GrandTotal pricing.Money              `json:"grand_total"`
					} `json:"invoice"`
					Warnings []string `json:"warnings"`
				}
				decodeBody(resp, &result)
				Expect(result.Invoice.Lines).To(HaveLen(1))
				Expect(result.Invoice.GrandTotal).To(Equal(pricing.Money(240000)))
				Expect(result.Warnings).To(BeEmpty())
			})
		})

		When("the part has no content type", func() {
			It("should infer it from the extension", func() {
				resp, err := http.DefaultClient.Do(uploadRequest(ghttpServer.URL()+"/api/invoices/scan", "IMG_0001.HEIC", "", []byte("heic")))
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(extractor.contentType).To(Equal("image/heic"))
			})
		})

		When("no file is sent", func() {
			It("should return bad request", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/invoices/scan", "text/plain", strings.NewReader("hi"))
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})

		When("the model is throttled", func() {
			BeforeEach(func() {
				extractor.err = &scanning.RateLimitError{Provider: "gemini", RetryAfter: 1500 * time.Millisecond}
			})

			It("should return 429 with a retry hint", func() {
				resp, err := http.DefaultClient.Do(uploadRequest(ghttpServer.URL()+"/api/invoices/scan", "list.png", "image/png", []byte("png")))
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusTooManyRequests))
				Expect(resp.Header.Get("Retry-After")).To(Equal("2"))
			})
		})

		When("the model gives no retry hint", func() {
			BeforeEach(func() {
				extractor.err = &scanning.RateLimitError{Provider: "ollama"}
			})

			It("should suggest the default delay", func() {
				resp, err := http.DefaultClient.Do(uploadRequest(ghttpServer.URL()+"/api/invoices/scan", "list.png", "image/png", []byte("png")))
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.Header.Get("Retry-After")).To(Equal("30"))
			})
		})

		When("no list is found", func() {
			BeforeEach(func() {
				extractor.err = scanning.ErrNoItems
			})

			It("should still succeed with a warning", func() {
				resp, err := http.DefaultClient.Do(uploadRequest(ghttpServer.URL()+"/api/invoices/scan", "list.png", "image/png", []byte("png")))
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				var result ScanResult
				decodeBody(resp, &result)
				Expect(result.Warnings).To(ConsistOf(WarnNoList))
			})
		})
	})

	Describe("handleResolve", func() {
		It("should price the posted items", func() {
			resp := postJSON(ghttpServer.URL()+"/api/invoices/resolve", map[string]any{
				"items": []map[string]any{{"qty": 3, "item": "milk"}, {"qty": "1", "item": "bread", "unit_price": "800"}},
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var result ScanResult
			decodeBody(resp, &result)
			Expect(result.Invoice.Lines).To(HaveLen(2))
			Expect(result.Invoice.GrandTotal()).To(Equal(pricing.Money(230000)))
		})

		It("should reject malformed bodies", func() {
			resp, err := http.Post(ghttpServer.URL()+"/api/invoices/resolve", "application/json", strings.NewReader("{"))
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should keep elements that are not objects as unknown lines", func() {
			resp, err := http.Post(ghttpServer.URL()+"/api/invoices/resolve", "application/json",
				strings.NewReader(`{"items":[1,{"qty":2,"item":"sugar"}]}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var result ScanResult
			decodeBody(resp, &result)
			Expect(result.Invoice.Lines).To(HaveLen(2))
			Expect(result.Invoice.Lines[0].DisplayName).To(Equal(pricing.UnknownItem))
			Expect(result.Invoice.Lines[0].UnitPrice).To(Equal(pricing.Money(0)))
			Expect(result.Invoice.Lines[1].DisplayName).To(Equal("Sugar"))
			Expect(result.Invoice.GrandTotal()).To(Equal(pricing.Money(240000)))
		})
	})

	DescribeTable("oversized JSON bodies",
		func(path string) {
			body := `{"items":["` + strings.Repeat("a", int(maxJSONBody)) + `"]}`
			req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusRequestEntityTooLarge))
			Expect(rec.Body.String()).To(ContainSubstring(errBodyTooLarge))
		},
		Entry("resolve", "/api/invoices/resolve"),
		Entry("receipt", "/api/invoices/receipt"),
		Entry("record sale", "/api/sales"),
	)

	Describe("handleRenderReceipt", func() {
		var inv pricing.Invoice

		BeforeEach(func() {
			inv = pricing.Invoice{Lines: []pricing.ResolvedLineItem{{Quantity: 2, DisplayName: "Sugar", UnitPrice: 120000}}}
		})

		It("should render JPEG by default", func() {
			resp := postJSON(ghttpServer.URL()+"/api/invoices/receipt", inv)
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/jpeg"))
			body, _ := io.ReadAll(resp.Body)
			Expect(string(body)).To(HavePrefix("jpeg|1|2,400|"))
		})

		It("should honour the format parameter", func() {
			resp := postJSON(ghttpServer.URL()+"/api/invoices/receipt?format=pdf", inv)
			resp.Body.Close()
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/pdf"))
			Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("receipt.pdf"))
		})

		It("should reject unknown formats", func() {
			resp := postJSON(ghttpServer.URL()+"/api/invoices/receipt?format=bmp", inv)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("handleRecordSale", func() {
		It("should record the sale", func() {
			inv := pricing.Invoice{Lines: []pricing.ResolvedLineItem{{Quantity: 1, DisplayName: "Milk", UnitPrice: 50000}}}
			resp := postJSON(ghttpServer.URL()+"/api/sales", inv)
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			var sale sales.Sale
			decodeBody(resp, &sale)
			Expect(sale.ID).To(Equal("sale-1"))
			Expect(sale.Total).To(Equal(pricing.Money(50000)))
			Expect(db.sales).To(HaveKey("sale-1"))
		})

		It("should reject an empty invoice", func() {
			resp := postJSON(ghttpServer.URL()+"/api/sales", map[string]any{"lines": []any{}})
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("handleListSales", func() {
		It("should return an empty array", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/sales")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			Expect(strings.TrimSpace(string(body))).To(Equal("[]"))
		})
	})

	Describe("handleSalesSummary", func() {
		BeforeEach(func() {
			inv := pricing.Invoice{Lines: []pricing.ResolvedLineItem{{Quantity: 1, DisplayName: "Milk", UnitPrice: 50000, LineTotal: 50000}}}
			db.sales["today"] = sales.NewSale("today", now.Add(-time.Hour), inv)
			db.sales["before"] = sales.NewSale("before", now.AddDate(0, 0, -2), inv)
		})

		It("should default to today", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/sales/summary")
			Expect(err).NotTo(HaveOccurred())
			var summary sales.Summary
			decodeBody(resp, &summary)
			Expect(summary.Day).To(Equal("2024-03-09"))
			Expect(summary.Count).To(Equal(1))
		})

		It("should accept a day", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/sales/summary?day=2024-03-07")
			Expect(err).NotTo(HaveOccurred())
			var summary sales.Summary
			decodeBody(resp, &summary)
			Expect(summary.Count).To(Equal(1))
			Expect(summary.TopItems[0].Name).To(Equal("Milk"))
		})

		It("should reject a bad day", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/sales/summary?day=yesterday")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("handleGetSaleReceipt", func() {
		BeforeEach(func() {
			sale := sales.NewSale("s1", now, pricing.Invoice{Lines: []pricing.ResolvedLineItem{{Quantity: 1, DisplayName: "Milk", UnitPrice: 50000, LineTotal: 50000}}})
			db.sales["s1"] = sale
		})

		It("should return the receipt", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/sales/s1/receipt?format=png")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))
		})

		It("should return not found for unknown sales", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/sales/missing/receipt")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("handleCatalog", func() {
		It("should report the catalog", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/catalog")
			Expect(err).NotTo(HaveOccurred())
			var status CatalogStatus
			decodeBody(resp, &status)
			Expect(status.Items).To(Equal(2))
			Expect(status.Skipped).To(HaveLen(1))
		})
	})
})
