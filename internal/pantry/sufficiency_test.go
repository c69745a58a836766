package pantry

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/larderhq/pantry-scan/internal/catalog"
)

var _ = Describe("CheckSufficiency", func() {
	var (
		cat            *catalog.Catalog
		ingredients    []RecipeIngredient
		targetServings int
		baseServings   int
		items          []*PantryItem
		report         *SufficiencyReport
		err            error
	)

	BeforeEach(func() {
		cat = testCatalog()
		targetServings = 4
		baseServings = 2
		ingredients = nil
		items = nil
	})

	JustBeforeEach(func() {
		report, err = CheckSufficiency(cat, ingredients, targetServings, baseServings, items)
	})

	When("the pantry holds enough after unit conversion", func() {
		BeforeEach(func() {
			ingredients = []RecipeIngredient{{Name: "flour", Quantity: floatPtr(500), Unit: "g"}}
			items = []*PantryItem{{
				HouseholdID: "h", CanonicalName: "flour",
				Quantity: floatPtr(1.5), Unit: "kg", Current: true,
			}}
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should convert into the required unit", func() {
			Expect(report.Results).To(HaveLen(1))
			Expect(report.Results[0].RequiredQuantity).To(Equal(1000.0))
			Expect(report.Results[0].AvailableQuantity).To(Equal(1500.0))
			Expect(report.Results[0].AvailableUnit).To(Equal("g"))
		})

		It("should be sufficient with no shopping entry", func() {
			Expect(report.Results[0].Sufficient).To(BeTrue())
			Expect(report.Results[0].Shortage).To(BeZero())
			Expect(report.ShoppingList).To(BeEmpty())
		})
	})

	When("the pantry holds too little", func() {
		BeforeEach(func() {
			ingredients = []RecipeIngredient{{Name: "tomato", Quantity: floatPtr(100), Unit: "g"}}
			items = []*PantryItem{{
				HouseholdID: "h", CanonicalName: "tomato",
				Quantity: floatPtr(150), Unit: "g", Current: true,
			}}
		})

		It("should report the exact shortage", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Results[0].RequiredQuantity).To(Equal(200.0))
			Expect(report.Results[0].Shortage).To(Equal(50.0))
			Expect(report.Results[0].Sufficient).To(BeFalse())
		})

		It("should add the shortage to the shopping list", func() {
			Expect(report.ShoppingList).To(HaveLen(1))
			Expect(report.ShoppingList[0].Name).To(Equal("tomato"))
			Expect(report.ShoppingList[0].Quantity).To(Equal(50.0))
			Expect(report.ShoppingList[0].Unit).To(Equal("g"))
		})
	})

	When("an ingredient is absent from the pantry", func() {
		BeforeEach(func() {
			ingredients = []RecipeIngredient{{Name: "milk", Quantity: floatPtr(200), Unit: "ml"}}
		})

		It("should be short by the full requirement", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Results[0].Shortage).To(Equal(400.0))
			Expect(report.Results[0].AvailableQuantity).To(BeZero())
		})
	})

	When("a pantry item has no known quantity", func() {
		BeforeEach(func() {
			ingredients = []RecipeIngredient{{Name: "milk", Quantity: floatPtr(200), Unit: "ml"}}
			items = []*PantryItem{{
				HouseholdID: "h", CanonicalName: "milk", Current: true,
			}}
		})

		It("should be short by the full requirement", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Results[0].Shortage).To(Equal(400.0))
		})
	})

	When("a past item is the only match", func() {
		BeforeEach(func() {
			ingredients = []RecipeIngredient{{Name: "milk", Quantity: floatPtr(200), Unit: "ml"}}
			items = []*PantryItem{{
				HouseholdID: "h", CanonicalName: "milk",
				Quantity: floatPtr(1000), Unit: "ml", Current: false,
			}}
		})

		It("should ignore non-current items", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Results[0].Shortage).To(Equal(400.0))
		})
	})

	When("the pantry unit category differs from the required one", func() {
		BeforeEach(func() {
			ingredients = []RecipeIngredient{{Name: "milk", Quantity: floatPtr(200), Unit: "ml"}}
			items = []*PantryItem{{
				HouseholdID: "h", CanonicalName: "milk",
				Quantity: floatPtr(500), Unit: "g", Current: true,
			}}
		})

		It("should report the raw amount and count the full requirement short", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Results[0].AvailableQuantity).To(Equal(500.0))
			Expect(report.Results[0].AvailableUnit).To(Equal("g"))
			Expect(report.Results[0].Shortage).To(Equal(400.0))
			Expect(report.Results[0].Sufficient).To(BeFalse())
		})
	})

	When("the recipe gives no amount but a standard serving exists", func() {
		BeforeEach(func() {
			// eggs: 2 pieces per person
			ingredients = []RecipeIngredient{{Name: "eggs"}}
			items = []*PantryItem{{
				HouseholdID: "h", CanonicalName: "eggs",
				Quantity: floatPtr(6), Unit: "piece", Current: true,
			}}
		})

		It("should require the standard serving times target servings", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Results[0].RequiredQuantity).To(Equal(8.0))
			Expect(report.Results[0].RequiredUnit).To(Equal("piece"))
			Expect(report.Results[0].Shortage).To(Equal(2.0))
		})
	})

	When("neither an amount nor a standard serving exists", func() {
		BeforeEach(func() {
			ingredients = []RecipeIngredient{{Name: "dragonfruit"}}
		})

		It("should fall back to one piece per person", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Results[0].RequiredQuantity).To(Equal(4.0))
			Expect(report.Results[0].RequiredUnit).To(Equal("piece"))
		})
	})

	When("target servings is not positive", func() {
		BeforeEach(func() {
			targetServings = 0
			ingredients = []RecipeIngredient{{Name: "milk"}}
		})

		It("returns a validation error", func() {
			var validation *ValidationError
			Expect(errors.As(err, &validation)).To(BeTrue())
		})
	})

	When("an ingredient quantity is not positive", func() {
		BeforeEach(func() {
			ingredients = []RecipeIngredient{{Name: "milk", Quantity: floatPtr(-1), Unit: "ml"}}
		})

		It("returns a validation error", func() {
			var validation *ValidationError
			Expect(errors.As(err, &validation)).To(BeTrue())
		})
	})
})
