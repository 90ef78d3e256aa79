package sales

import (
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Postgres", func() {
	BeforeEach(func() {
		if os.Getenv("SHOPLIST_TEST_POSTGRES_DSN") == "" {
			Skip("SHOPLIST_TEST_POSTGRES_DSN not set")
		}
	})

	describeDB(func() DB {
		db, err := NewPostgres(os.Getenv("SHOPLIST_TEST_POSTGRES_DSN"))
		Expect(err).NotTo(HaveOccurred())
		_, err = db.db.Exec(`TRUNCATE sales`)
		Expect(err).NotTo(HaveOccurred())
		return db
	})
})
