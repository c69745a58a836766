package catalog

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Convert", func() {
	var (
		cat      *Catalog
		quantity float64
		from, to string
		result   float64
		err      error
	)

	BeforeEach(func() {
		var loadErr error
		cat, loadErr = Load()
		Expect(loadErr).NotTo(HaveOccurred())
	})

	JustBeforeEach(func() {
		result, err = cat.Convert(quantity, from, to)
	})

	When("converting within the weight category", func() {
		BeforeEach(func() {
			quantity, from, to = 2, "kg", "g"
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should scale by the unit factors", func() {
			Expect(result).To(Equal(2000.0))
		})
	})

	When("converting back down", func() {
		BeforeEach(func() {
			quantity, from, to = 500, "g", "kg"
		})

		It("should divide by the target factor", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(0.5))
		})
	})

	When("converting within the count category", func() {
		BeforeEach(func() {
			quantity, from, to = 2, "dozen", "piece"
		})

		It("should expand to pieces", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(24.0))
		})
	})

	When("converting kitchen volume units", func() {
		BeforeEach(func() {
			quantity, from, to = 3, "tsp", "tbsp"
		})

		It("should be close to one tablespoon", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(BeNumerically("~", 1.0, 0.001))
		})
	})

	When("converting a unit to itself", func() {
		BeforeEach(func() {
			quantity, from, to = 123.456, "cup", "cup"
		})

		It("should return the input unchanged", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(123.456))
		})
	})

	When("converting through an intermediate unit", func() {
		BeforeEach(func() {
			quantity, from, to = 2, "kg", "oz"
		})

		It("should agree with the direct conversion", func() {
			Expect(err).NotTo(HaveOccurred())
			grams, gramsErr := cat.Convert(quantity, "kg", "g")
			Expect(gramsErr).NotTo(HaveOccurred())
			indirect, ouncesErr := cat.Convert(grams, "g", "oz")
			Expect(ouncesErr).NotTo(HaveOccurred())
			Expect(indirect).To(BeNumerically("~", result, 1e-9))
		})
	})

	When("the categories differ", func() {
		BeforeEach(func() {
			quantity, from, to = 100, "g", "ml"
		})

		It("returns a category mismatch error", func() {
			var mismatch *CategoryMismatchError
			Expect(errors.As(err, &mismatch)).To(BeTrue())
			Expect(mismatch.From.Name).To(Equal("g"))
			Expect(mismatch.To.Name).To(Equal("ml"))
		})

		It("should not return a value", func() {
			Expect(result).To(BeZero())
		})
	})

	When("the source unit is unknown", func() {
		BeforeEach(func() {
			quantity, from, to = 1, "bushel", "g"
		})

		It("returns an unknown unit error", func() {
			var unknown *UnknownUnitError
			Expect(errors.As(err, &unknown)).To(BeTrue())
			Expect(unknown.Name).To(Equal("bushel"))
		})
	})

	When("the target unit is unknown", func() {
		BeforeEach(func() {
			quantity, from, to = 1, "g", "stone"
		})

		It("returns an unknown unit error", func() {
			var unknown *UnknownUnitError
			Expect(errors.As(err, &unknown)).To(BeTrue())
			Expect(unknown.Name).To(Equal("stone"))
		})
	})
})
