package pantry

import (
	"errors"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("BoltDB", func() {
	var (
		tmpDir string
		dbPath string
		db     *BoltDB
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	putSession := func(session *ScanSession) {
		Expect(db.Update(func(tx Txn) error {
			return tx.PutSession(session)
		})).To(Succeed())
	}

	putCandidate := func(candidate *DetectedCandidate) {
		Expect(db.Update(func(tx Txn) error {
			return tx.PutCandidate(candidate)
		})).To(Succeed())
	}

	putItem := func(item *PantryItem) {
		Expect(db.Update(func(tx Txn) error {
			return tx.PutPantryItem(item)
		})).To(Succeed())
	}

	Describe("sessions", func() {
		When("a session was saved", func() {
			BeforeEach(func() {
				putSession(&ScanSession{
					ID:          "sess-1",
					HouseholdID: "house-1",
					Context:     ContextFridge,
					Status:      SessionProcessing,
					CreatedAt:   time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
				})
			})

			It("should read it back", func() {
				var session *ScanSession
				err := db.View(func(tx Txn) error {
					var err error
					session, err = tx.GetSession("sess-1")
					return err
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(session.HouseholdID).To(Equal("house-1"))
				Expect(session.Context).To(Equal(ContextFridge))
				Expect(session.Status).To(Equal(SessionProcessing))
			})
		})

		When("the session does not exist", func() {
			It("returns a not found error", func() {
				err := db.View(func(tx Txn) error {
					_, err := tx.GetSession("nonexistent")
					return err
				})
				var notFound *NotFoundError
				Expect(errors.As(err, &notFound)).To(BeTrue())
				Expect(notFound.Kind).To(Equal("session"))
			})
		})

		When("multiple sessions exist", func() {
			BeforeEach(func() {
				putSession(&ScanSession{ID: "old", HouseholdID: "house-1", CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)})
				putSession(&ScanSession{ID: "new", HouseholdID: "house-1", CreatedAt: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)})
				putSession(&ScanSession{ID: "other", HouseholdID: "house-2", CreatedAt: time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)})
			})

			It("should list newest first", func() {
				var sessions []*ScanSession
				err := db.View(func(tx Txn) error {
					var err error
					sessions, err = tx.ListSessions("")
					return err
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(sessions).To(HaveLen(3))
				Expect(sessions[0].ID).To(Equal("new"))
			})

			It("should filter by household", func() {
				var sessions []*ScanSession
				err := db.View(func(tx Txn) error {
					var err error
					sessions, err = tx.ListSessions("house-2")
					return err
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(sessions).To(HaveLen(1))
				Expect(sessions[0].ID).To(Equal("other"))
			})
		})
	})

	Describe("candidates", func() {
		When("candidates exist for a session", func() {
			BeforeEach(func() {
				putCandidate(&DetectedCandidate{ID: "c-low", SessionID: "sess-1", Confidence: 0.4, Status: StatusPending})
				putCandidate(&DetectedCandidate{ID: "c-high", SessionID: "sess-1", Confidence: 0.9, Status: StatusPending})
				putCandidate(&DetectedCandidate{ID: "c-other", SessionID: "sess-2", Confidence: 0.8, Status: StatusPending})
			})

			It("should list them highest confidence first", func() {
				var candidates []*DetectedCandidate
				err := db.View(func(tx Txn) error {
					var err error
					candidates, err = tx.CandidatesBySession("sess-1")
					return err
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(candidates).To(HaveLen(2))
				Expect(candidates[0].ID).To(Equal("c-high"))
				Expect(candidates[1].ID).To(Equal("c-low"))
			})
		})

		When("the candidate does not exist", func() {
			It("returns a not found error", func() {
				err := db.View(func(tx Txn) error {
					_, err := tx.GetCandidate("nonexistent")
					return err
				})
				var notFound *NotFoundError
				Expect(errors.As(err, &notFound)).To(BeTrue())
			})
		})
	})

	Describe("pantry items", func() {
		When("items exist for two households", func() {
			BeforeEach(func() {
				putItem(&PantryItem{ID: "i1", HouseholdID: "house-1", CanonicalName: "tomato", Current: true})
				putItem(&PantryItem{ID: "i2", HouseholdID: "house-1", CanonicalName: "milk", Current: true})
				putItem(&PantryItem{ID: "i3", HouseholdID: "house-2", CanonicalName: "tomato", Current: true})
			})

			It("should key items per household and canonical name", func() {
				var item *PantryItem
				err := db.View(func(tx Txn) error {
					var err error
					item, err = tx.GetPantryItem("house-2", "tomato")
					return err
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(item.ID).To(Equal("i3"))
			})

			It("should list only the requested household, sorted by name", func() {
				var items []*PantryItem
				err := db.View(func(tx Txn) error {
					var err error
					items, err = tx.PantryItemsByHousehold("house-1")
					return err
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(items).To(HaveLen(2))
				Expect(items[0].CanonicalName).To(Equal("milk"))
				Expect(items[1].CanonicalName).To(Equal("tomato"))
			})

			It("should overwrite on the same key", func() {
				putItem(&PantryItem{ID: "i1", HouseholdID: "house-1", CanonicalName: "tomato", Current: false})
				var item *PantryItem
				err := db.View(func(tx Txn) error {
					var err error
					item, err = tx.GetPantryItem("house-1", "tomato")
					return err
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(item.Current).To(BeFalse())
			})
		})

		When("the item does not exist", func() {
			It("returns a not found error", func() {
				err := db.View(func(tx Txn) error {
					_, err := tx.GetPantryItem("house-1", "caviar")
					return err
				})
				var notFound *NotFoundError
				Expect(errors.As(err, &notFound)).To(BeTrue())
			})
		})
	})

	Describe("recipes", func() {
		When("recipes exist", func() {
			BeforeEach(func() {
				Expect(db.Update(func(tx Txn) error {
					if err := tx.PutRecipe(&Recipe{ID: "r1", Name: "Zucchini Bake", BaseServings: 2}); err != nil {
						return err
					}
					return tx.PutRecipe(&Recipe{ID: "r2", Name: "Apple Pie", BaseServings: 4})
				})).To(Succeed())
			})

			It("should read a recipe back", func() {
				var recipe *Recipe
				err := db.View(func(tx Txn) error {
					var err error
					recipe, err = tx.GetRecipe("r2")
					return err
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(recipe.Name).To(Equal("Apple Pie"))
				Expect(recipe.BaseServings).To(Equal(4))
			})

			It("should list recipes sorted by name", func() {
				var recipes []*Recipe
				err := db.View(func(tx Txn) error {
					var err error
					recipes, err = tx.ListRecipes()
					return err
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(recipes).To(HaveLen(2))
				Expect(recipes[0].Name).To(Equal("Apple Pie"))
			})
		})

		When("no recipes exist", func() {
			It("should return an empty list", func() {
				var recipes []*Recipe
				err := db.View(func(tx Txn) error {
					var err error
					recipes, err = tx.ListRecipes()
					return err
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(recipes).To(BeEmpty())
			})
		})
	})

	Describe("Update", func() {
		It("should roll back all writes when the closure fails", func() {
			boom := errors.New("boom")
			err := db.Update(func(tx Txn) error {
				if err := tx.PutSession(&ScanSession{ID: "sess-rollback"}); err != nil {
					return err
				}
				return boom
			})
			Expect(err).To(MatchError(boom))

			err = db.View(func(tx Txn) error {
				_, err := tx.GetSession("sess-rollback")
				return err
			})
			var notFound *NotFoundError
			Expect(errors.As(err, &notFound)).To(BeTrue())
		})

		It("should pass a closure error through without marking it transient", func() {
			boom := errors.New("boom")
			err := db.Update(func(tx Txn) error { return boom })
			Expect(err).To(MatchError(boom))
			Expect(IsTransient(err)).To(BeFalse())
		})
	})

	Describe("Close", func() {
		It("should not return an error", func() {
			Expect(db.Close()).To(Succeed())
		})
	})
})
