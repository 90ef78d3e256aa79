package scanning

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/shoplist-invoicer/internal/pricing"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		img.Set(x, x, color.Black)
	}
	return img
}

func testPNG() []byte {
	var buf bytes.Buffer
	Expect(png.Encode(&buf, testImage())).To(Succeed())
	return buf.Bytes()
}

func testJPEG() []byte {
	var buf bytes.Buffer
	Expect(jpeg.Encode(&buf, testImage(), nil)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("Ollama", func() {
	var (
		server      *ghttp.Server
		extractor   *Ollama
		imageData   []byte
		contentType string
		items       []pricing.RawLineItem
		err         error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		extractor, err = NewOllama(server.URL()+"/", "llava")
		Expect(err).NotTo(HaveOccurred())
		imageData = testPNG()
		contentType = "image/png"
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		items, err = extractor.ExtractItems(context.Background(), imageData, contentType)
	})

	When("the model returns a list", func() {
		var received ollamaChatRequest

		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
				ghttp.VerifyContentType("application/json"),
				func(w http.ResponseWriter, r *http.Request) {
					Expect(json.NewDecoder(r.Body).Decode(&received)).To(Succeed())
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
					Message: ollamaMessage{Role: "assistant", Content: `Sure! [{"qty": 2, "item": "Sugar"}]`},
					Done:    true,
				}),
			))
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should parse the items", func() {
			Expect(items).To(Equal([]pricing.RawLineItem{{Quantity: 2, Name: "Sugar"}}))
		})

		It("should send the model and prompt", func() {
			Expect(received.Model).To(Equal("llava"))
			Expect(received.Stream).To(BeFalse())
			Expect(received.Messages).To(HaveLen(2))
			Expect(received.Messages[1].Content).To(Equal(listScanPrompt))
		})

		It("should attach the image as base64 PNG", func() {
			Expect(received.Messages[1].Images).To(HaveLen(1))
			decoded, decErr := base64.StdEncoding.DecodeString(received.Messages[1].Images[0])
			Expect(decErr).NotTo(HaveOccurred())
			Expect(decoded).To(Equal(imageData))
		})
	})

	When("the model answers without a list", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
				Message: ollamaMessage{Role: "assistant", Content: "The image is too blurry."},
				Done:    true,
			}))
		})

		It("returns ErrNoItems", func() {
			Expect(err).To(MatchError(ErrNoItems))
		})
	})

	When("the server is throttling", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusTooManyRequests, "slow down", http.Header{
				"Retry-After": []string{"7"},
			}))
		})

		It("returns a rate limit error with the retry delay", func() {
			var rl *RateLimitError
			Expect(errors.As(err, &rl)).To(BeTrue())
			Expect(rl.Provider).To(Equal("ollama"))
			Expect(rl.RetryAfter).To(Equal(7 * time.Second))
		})
	})

	When("the server fails", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "model not loaded"))
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("status 500")))
		})
	})

	When("the upload is a JPEG", func() {
		var received ollamaChatRequest

		BeforeEach(func() {
			imageData = testJPEG()
			contentType = "image/jpeg"
			server.AppendHandlers(ghttp.CombineHandlers(
				func(w http.ResponseWriter, r *http.Request) {
					Expect(json.NewDecoder(r.Body).Decode(&received)).To(Succeed())
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
					Message: ollamaMessage{Content: "[]"},
					Done:    true,
				}),
			))
		})

		It("should convert it to PNG before sending", func() {
			Expect(err).NotTo(HaveOccurred())
			decoded, _ := base64.StdEncoding.DecodeString(received.Messages[1].Images[0])
			_, format, decErr := image.Decode(bytes.NewReader(decoded))
			Expect(decErr).NotTo(HaveOccurred())
			Expect(format).To(Equal("png"))
		})
	})
})
