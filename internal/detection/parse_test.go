package detection

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("parseDetectionsJSON", func() {
	var (
		input      string
		detections []RawDetection
		err        error
	)

	JustBeforeEach(func() {
		detections, err = parseDetectionsJSON(input)
	})

	When("parsing a valid array", func() {
		BeforeEach(func() {
			input = `[{"name": "tomato", "confidence": 0.92, "quantity": 3, "unit": "piece", "quantity_confidence": 0.7}]`
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should parse the name", func() {
			Expect(detections).To(HaveLen(1))
			Expect(detections[0].Name).To(Equal("tomato"))
		})

		It("should parse the confidence", func() {
			Expect(detections[0].Confidence).To(Equal(0.92))
		})

		It("should parse the quantity and unit", func() {
			Expect(detections[0].Quantity).To(HaveValue(Equal(3.0)))
			Expect(detections[0].Unit).To(Equal("piece"))
			Expect(detections[0].QuantityConfidence).To(HaveValue(Equal(0.7)))
		})
	})

	When("the array is wrapped in markdown fences", func() {
		BeforeEach(func() {
			input = "```json\n[{\"name\": \"milk\", \"confidence\": 0.8}]\n```"
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should parse the detections", func() {
			Expect(detections).To(HaveLen(1))
			Expect(detections[0].Name).To(Equal("milk"))
		})
	})

	When("the model adds prose around the array", func() {
		BeforeEach(func() {
			input = `Here is what I found: [{"name": "eggs", "confidence": 0.75}] I hope that helps.`
		})

		It("should extract just the array", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(detections).To(HaveLen(1))
			Expect(detections[0].Name).To(Equal("eggs"))
		})
	})

	When("a confidence is out of range", func() {
		BeforeEach(func() {
			input = `[{"name": "tomato", "confidence": 1.4}, {"name": "milk", "confidence": -0.2}]`
		})

		It("should clamp scores into [0,1]", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(detections[0].Confidence).To(Equal(1.0))
			Expect(detections[1].Confidence).To(Equal(0.0))
		})
	})

	When("a quantity is not positive", func() {
		BeforeEach(func() {
			input = `[{"name": "tomato", "confidence": 0.9, "quantity": -2, "unit": "piece", "quantity_confidence": 0.8}]`
		})

		It("should drop the quantity, its confidence and the unit", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(detections[0].Quantity).To(BeNil())
			Expect(detections[0].QuantityConfidence).To(BeNil())
			Expect(detections[0].Unit).To(BeEmpty())
		})
	})

	When("an entry has a blank name", func() {
		BeforeEach(func() {
			input = `[{"name": "  ", "confidence": 0.9}, {"name": "milk", "confidence": 0.8}]`
		})

		It("should drop the nameless entry and keep the rest", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(detections).To(HaveLen(1))
			Expect(detections[0].Name).To(Equal("milk"))
		})
	})

	When("the unit is uppercase", func() {
		BeforeEach(func() {
			input = `[{"name": "milk", "confidence": 0.9, "quantity": 500, "unit": "ML"}]`
		})

		It("should lowercase the unit", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(detections[0].Unit).To(Equal("ml"))
		})
	})

	When("a unit is given without a quantity", func() {
		BeforeEach(func() {
			input = `[{"name": "milk", "confidence": 0.9, "unit": "ml"}]`
		})

		It("should clear the dangling unit", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(detections[0].Unit).To(BeEmpty())
		})
	})

	When("no array is present", func() {
		BeforeEach(func() {
			input = `I could not identify anything in this image.`
		})

		It("returns the error", func() {
			Expect(err).To(HaveOccurred())
		})
	})

	When("the array is malformed", func() {
		BeforeEach(func() {
			input = `[{"name": "tomato", "confidence": }]`
		})

		It("returns the error", func() {
			Expect(err).To(HaveOccurred())
		})
	})
})
