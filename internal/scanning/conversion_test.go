package scanning

import (
	"bytes"
	"image"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("toPNG", func() {
	var (
		data        []byte
		contentType string
		out         []byte
		err         error
	)

	JustBeforeEach(func() {
		out, err = toPNG(data, contentType)
	})

	When("the upload is already PNG", func() {
		BeforeEach(func() {
			data = testPNG()
			contentType = "image/png"
		})

		It("should pass the bytes through", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal(data))
		})
	})

	When("the upload is JPEG", func() {
		BeforeEach(func() {
			data = testJPEG()
			contentType = "IMAGE/JPEG; charset=binary"
		})

		It("should convert to PNG", func() {
			Expect(err).NotTo(HaveOccurred())
			_, decErr := png.Decode(bytes.NewReader(out))
			Expect(decErr).NotTo(HaveOccurred())
		})
	})

	When("no content type is given", func() {
		BeforeEach(func() {
			data = testJPEG()
			contentType = ""
		})

		It("should sniff the format", func() {
			Expect(err).NotTo(HaveOccurred())
			_, format, decErr := image.Decode(bytes.NewReader(out))
			Expect(decErr).NotTo(HaveOccurred())
			Expect(format).To(Equal("png"))
		})
	})

	When("the upload is not an image", func() {
		BeforeEach(func() {
			data = []byte("this is a shopping list, honest")
			contentType = "image/jpeg"
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("unsupported image format")))
		})
	})
})

var _ = Describe("isHEIC", func() {
	It("should detect the ftyp brand", func() {
		header := append([]byte{0, 0, 0, 24}, []byte("ftypheic")...)
		Expect(isHEIC(header, "application/octet-stream")).To(BeTrue())
	})

	It("should trust the declared type", func() {
		Expect(isHEIC(nil, "image/heif")).To(BeTrue())
	})

	It("should reject other data", func() {
		Expect(isHEIC(testJPEG(), "image/jpeg")).To(BeFalse())
	})
})
