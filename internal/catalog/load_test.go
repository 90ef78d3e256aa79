package catalog

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/xuri/excelize/v2"

	"github.com/zombor/shoplist-invoicer/internal/pricing"
)

var _ = ginkgo.Describe("Load", func() {
	var (
		tmpDir string
		path   string
		opts   Options
		result LoadResult
	)

	ginkgo.BeforeEach(func() {
		tmpDir = ginkgo.GinkgoT().TempDir()
		opts = DefaultOptions()
	})

	ginkgo.JustBeforeEach(func() {
		result = Load(path, opts)
	})

	ginkgo.When("loading a CSV export", func() {
		ginkgo.BeforeEach(func() {
			path = filepath.Join(tmpDir, "stock.csv")
			content := strings.Join([]string{
				"Item Description,Category,Sale Price",
				"Sugar,Grocery,\"1,500\"",
				"  Indomie Supreme ,Noodles,\"11,500\"",
				"Cowbell,Dairy,850",
				",,",
				"Broken,Misc,ask",
				"Sugar,Grocery,1600",
			}, "\n")
			Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())
		})

		ginkgo.It("should not be degraded", func() {
			Expect(result.Degraded()).To(BeFalse())
		})

		ginkgo.It("should strip grouping separators", func() {
			price, ok := result.Catalog.Price("indomie supreme")
			Expect(ok).To(BeTrue())
			Expect(price).To(Equal(naira(11500)))
		})

		ginkgo.It("should let the later duplicate win", func() {
			price, _ := result.Catalog.Price("sugar")
			Expect(price).To(Equal(naira(1600)))
		})

		ginkgo.It("should report the unparsable row", func() {
			Expect(result.Skipped).To(HaveLen(1))
			Expect(result.Skipped[0].Row).To(Equal(6))
			Expect(result.Skipped[0].Name).To(Equal("Broken"))
		})

		ginkgo.It("should exclude the unparsable row", func() {
			_, ok := result.Catalog.Price("broken")
			Expect(ok).To(BeFalse())
			Expect(result.Catalog.Len()).To(Equal(3))
		})

		ginkgo.It("should record the source", func() {
			Expect(result.Source).To(Equal(path))
		})
	})

	ginkgo.When("a price is beyond the largest price", func() {
		ginkgo.BeforeEach(func() {
			path = filepath.Join(tmpDir, "stock.csv")
			content := "Item Description,Sale Price\nGold,\"100,000,000,000,000,000\"\nMilk,500\n"
			Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())
		})

		ginkgo.It("should skip the row as out of range", func() {
			Expect(result.Skipped).To(HaveLen(1))
			Expect(result.Skipped[0].Name).To(Equal("Gold"))
			Expect(result.Skipped[0]).To(MatchError(pricing.ErrOutOfRange))
		})

		ginkgo.It("should keep the other rows", func() {
			_, ok := result.Catalog.Price("gold")
			Expect(ok).To(BeFalse())
			price, ok := result.Catalog.Price("milk")
			Expect(ok).To(BeTrue())
			Expect(price).To(Equal(naira(500)))
		})
	})

	ginkgo.When("the headers use other names", func() {
		ginkgo.BeforeEach(func() {
			path = filepath.Join(tmpDir, "other.csv")
			Expect(os.WriteFile(path, []byte("product,unit_price\nMilk,500\n"), 0644)).To(Succeed())
		})

		ginkgo.It("should fall back to known aliases", func() {
			price, ok := result.Catalog.Price("milk")
			Expect(ok).To(BeTrue())
			Expect(price).To(Equal(naira(500)))
		})
	})

	ginkgo.When("custom column names are configured", func() {
		ginkgo.BeforeEach(func() {
			path = filepath.Join(tmpDir, "custom.csv")
			opts = Options{NameColumn: "Stock Name", PriceColumn: "Retail"}
			Expect(os.WriteFile(path, []byte("Stock Name,Cost,Retail\nRice,1800,2000\n"), 0644)).To(Succeed())
		})

		ginkgo.It("should read the configured columns", func() {
			price, _ := result.Catalog.Price("rice")
			Expect(price).To(Equal(naira(2000)))
		})
	})

	ginkgo.When("the CSV has no usable columns", func() {
		ginkgo.BeforeEach(func() {
			path = filepath.Join(tmpDir, "bad.csv")
			Expect(os.WriteFile(path, []byte("foo,bar\n1,2\n"), 0644)).To(Succeed())
		})

		ginkgo.It("should be degraded with a malformed source error", func() {
			Expect(result.Degraded()).To(BeTrue())
			Expect(result.Err).To(MatchError(ErrMalformedSource))
			Expect(result.Catalog.Len()).To(Equal(0))
		})
	})

	ginkgo.When("the source does not exist", func() {
		ginkgo.BeforeEach(func() {
			path = filepath.Join(tmpDir, "missing.csv")
		})

		ginkgo.It("should return an empty catalog", func() {
			Expect(result.Catalog).NotTo(BeNil())
			Expect(result.Catalog.Len()).To(Equal(0))
		})

		ginkgo.It("should signal degraded mode", func() {
			Expect(result.Degraded()).To(BeTrue())
			Expect(result.Err).To(MatchError(ErrSourceUnavailable))
		})

		ginkgo.It("should still let resolution complete", func() {
			inv := pricing.Resolve([]pricing.RawLineItem{{Quantity: 2, Name: "sugar"}}, result.Catalog)
			Expect(inv.Lines).To(HaveLen(1))
			Expect(inv.GrandTotal()).To(Equal(pricing.Money(0)))
		})
	})

	ginkgo.When("loading an XLSX workbook", func() {
		ginkgo.BeforeEach(func() {
			path = filepath.Join(tmpDir, "stock.xlsx")
			f := excelize.NewFile()
			sheet := f.GetSheetName(0)
			Expect(f.SetSheetRow(sheet, "A1", &[]any{"Item Description", "Sale Price"})).To(Succeed())
			Expect(f.SetSheetRow(sheet, "A2", &[]any{"Semovita", "9,500"})).To(Succeed())
			Expect(f.SetSheetRow(sheet, "A3", &[]any{"Macaroni", 1100})).To(Succeed())
			Expect(f.SetSheetRow(sheet, "A4", &[]any{"Mystery", "n/a"})).To(Succeed())
			Expect(f.SaveAs(path)).To(Succeed())
			Expect(f.Close()).To(Succeed())
		})

		ginkgo.It("should read the first sheet", func() {
			Expect(result.Degraded()).To(BeFalse())
			Expect(result.Catalog.Entries()).To(Equal([]Entry{
				{Name: "semovita", Price: naira(9500)},
				{Name: "macaroni", Price: naira(1100)},
			}))
		})

		ginkgo.It("should report the bad row", func() {
			Expect(result.Skipped).To(HaveLen(1))
			Expect(result.Skipped[0].Row).To(Equal(4))
		})
	})

	ginkgo.When("the XLSX sheet does not exist", func() {
		ginkgo.BeforeEach(func() {
			path = filepath.Join(tmpDir, "stock.xlsx")
			f := excelize.NewFile()
			Expect(f.SaveAs(path)).To(Succeed())
			Expect(f.Close()).To(Succeed())
			opts.Sheet = "Prices"
		})

		ginkgo.It("should be degraded", func() {
			Expect(result.Err).To(MatchError(ErrMalformedSource))
		})
	})

	ginkgo.When("loading a YAML mapping", func() {
		ginkgo.BeforeEach(func() {
			path = filepath.Join(tmpDir, "prices.yaml")
			content := "sugar: 1500\nindomie supreme: \"11,500\"\nmilk: [500]\ncowbell: 850\n"
			Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())
		})

		ginkgo.It("should keep document order", func() {
			Expect(result.Catalog.Entries()).To(Equal([]Entry{
				{Name: "sugar", Price: naira(1500)},
				{Name: "indomie supreme", Price: naira(11500)},
				{Name: "cowbell", Price: naira(850)},
			}))
		})

		ginkgo.It("should skip non-scalar prices", func() {
			Expect(result.Skipped).To(HaveLen(1))
			Expect(result.Skipped[0].Name).To(Equal("milk"))
			Expect(result.Skipped[0].Row).To(Equal(3))
		})
	})

	ginkgo.When("the YAML is a list", func() {
		ginkgo.BeforeEach(func() {
			path = filepath.Join(tmpDir, "prices.yml")
			Expect(os.WriteFile(path, []byte("- sugar\n- milk\n"), 0644)).To(Succeed())
		})

		ginkgo.It("should be degraded", func() {
			Expect(result.Err).To(MatchError(ErrMalformedSource))
		})
	})
})

var _ = ginkgo.Describe("FormatFromPath", func() {
	ginkgo.DescribeTable("extensions",
		func(path string, expected Format) {
			Expect(FormatFromPath(path)).To(Equal(expected))
		},
		ginkgo.Entry("csv", "stock.csv", FormatCSV),
		ginkgo.Entry("xlsx", "Stock.XLSX", FormatXLSX),
		ginkgo.Entry("yaml", "prices.yaml", FormatYAML),
		ginkgo.Entry("yml", "prices.yml", FormatYAML),
		ginkgo.Entry("unknown", "prices.txt", FormatCSV),
	)
})
