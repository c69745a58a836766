package pantry

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/larderhq/pantry-scan/internal/catalog"
	"github.com/larderhq/pantry-scan/internal/detection"
)

// IDGenerator generates unique record IDs
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Bounded retry budget for transient storage failures. Everything retried
// through this budget is idempotent or transactionally guarded.
const storageRetryAttempts = 3

// Service runs the detection-confirmation-reconciliation-sufficiency
// engine on top of a DB, a vision Detector and an image Storage.
type Service struct {
	db          DB
	detector    detection.Detector
	storage     Storage
	catalog     *catalog.Catalog
	classifier  *detection.Classifier
	ranker      *detection.Ranker
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a Service with default ID generator and time source
func NewService(db DB, detector detection.Detector, storage Storage, cat *catalog.Catalog, classifier *detection.Classifier, ranker *detection.Ranker) *Service {
	return NewServiceWithDeps(db, detector, storage, cat, classifier, ranker, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a Service with custom dependencies for testing
func NewServiceWithDeps(db DB, detector detection.Detector, storage Storage, cat *catalog.Catalog, classifier *detection.Classifier, ranker *detection.Ranker, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		detector:    detector,
		storage:     storage,
		catalog:     cat,
		classifier:  classifier,
		ranker:      ranker,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// update runs fn in a writable transaction, retrying transient storage
// failures a bounded number of times.
func (s *Service) update(fn func(tx Txn) error) error {
	return s.withRetry(func() error { return s.db.Update(fn) })
}

// view runs fn in a read-only snapshot transaction with the same retry
// budget.
func (s *Service) view(fn func(tx Txn) error) error {
	return s.withRetry(func() error { return s.db.View(fn) })
}

func (s *Service) withRetry(op func() error) error {
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), storageRetryAttempts)
	return backoff.Retry(func() error {
		err := op()
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

// sanitizeFilename cleans up phone-generated upload names before they hit
// the filesystem: special characters stripped, whitespace collapsed,
// length capped.
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	base = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`).ReplaceAllString(base, "")
	base = regexp.MustCompile(`\s+`).ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "scan"
	}
	return base + ext
}

// ProcessScan stores a captured image, runs the detector on it, annotates
// every raw detection with a confidence tier and (below HIGH) a ranked
// alternative list, and persists the new session with its pending
// candidates. A detector failure leaves a failed session behind and cleans
// up the stored image.
func (s *Service) ProcessScan(householdID string, context StorageContext, filename string, data []byte, contentType string) (*ScanSession, []*DetectedCandidate, error) {
	if strings.TrimSpace(householdID) == "" {
		return nil, nil, &ValidationError{Field: "household_id", Reason: "must not be empty"}
	}
	if !ValidContext(context) {
		return nil, nil, &ValidationError{Field: "context", Reason: fmt.Sprintf("unknown storage context %q", context)}
	}
	if len(data) == 0 {
		return nil, nil, &ValidationError{Field: "file", Reason: "image data must not be empty"}
	}

	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, nil, fmt.Errorf("saving image: %w", err)
	}

	session := &ScanSession{
		ID:          id,
		HouseholdID: householdID,
		Context:     context,
		Status:      SessionProcessing,
		ImagePath:   savedPath,
		ContentType: contentType,
		CreatedAt:   now,
	}

	raw, err := s.detector.DetectItems(data, contentType)
	if err != nil {
		slog.Error("Failed to detect ingredients",
			"session", id,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		session.Status = SessionFailed
		// the blob is deleted below, so the record must not point at it
		session.ImagePath = ""
		if saveErr := s.update(func(tx Txn) error { return tx.PutSession(session) }); saveErr != nil {
			slog.Error("Failed to record failed session", "session", id, "error", saveErr)
		}
		s.storage.Delete(savedPath)
		return nil, nil, fmt.Errorf("detecting ingredients: %w", err)
	}

	candidates := make([]*DetectedCandidate, 0, len(raw))
	for _, d := range raw {
		c := &DetectedCandidate{
			ID:                 s.idGenerator.Generate(),
			SessionID:          id,
			DetectedName:       catalog.Normalize(d.Name),
			Confidence:         d.Confidence,
			Tier:               s.classifier.Classify(d.Confidence),
			Quantity:           d.Quantity,
			Unit:               d.Unit,
			QuantityConfidence: d.QuantityConfidence,
			Box:                d.Box,
			Status:             StatusPending,
		}
		if detection.NeedsAlternatives(c.Tier) {
			c.Alternatives = s.ranker.Rank(c.DetectedName, "")
		}
		candidates = append(candidates, c)
	}

	if len(candidates) == 0 {
		// nothing to confirm, so the session completes immediately
		session.Status = SessionCompleted
		session.CompletedAt = &now
	}

	err = s.update(func(tx Txn) error {
		if err := tx.PutSession(session); err != nil {
			return err
		}
		for _, c := range candidates {
			if err := tx.PutCandidate(c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.storage.Delete(savedPath)
		return nil, nil, fmt.Errorf("saving scan session: %w", err)
	}

	slog.Info("Scan processed", "session", id, "household", householdID, "context", context, "candidates", len(candidates))
	return session, candidates, nil
}

// GetSession retrieves a session with its candidates.
func (s *Service) GetSession(id string) (*ScanSession, []*DetectedCandidate, error) {
	var session *ScanSession
	var candidates []*DetectedCandidate
	err := s.view(func(tx Txn) error {
		var err error
		if session, err = tx.GetSession(id); err != nil {
			return err
		}
		candidates, err = tx.CandidatesBySession(id)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return session, candidates, nil
}

// ListSessions returns sessions, newest first, optionally filtered by
// household.
func (s *Service) ListSessions(householdID string) ([]*ScanSession, error) {
	var sessions []*ScanSession
	err := s.view(func(tx Txn) error {
		var err error
		sessions, err = tx.ListSessions(householdID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// GetSessionImage retrieves the captured image for a session.
func (s *Service) GetSessionImage(id string) ([]byte, string, error) {
	var session *ScanSession
	err := s.view(func(tx Txn) error {
		var err error
		session, err = tx.GetSession(id)
		return err
	})
	if err != nil {
		return nil, "", err
	}
	if session.ImagePath == "" {
		return nil, "", &NotFoundError{Kind: "scan image", ID: id}
	}

	data, err := s.storage.Get(session.ImagePath)
	if err != nil {
		return nil, "", fmt.Errorf("getting session image: %w", err)
	}
	return data, session.ContentType, nil
}

// CancelSession abandons a processing session. Its candidates keep their
// current state but can no longer be resolved, and the captured image is
// removed.
func (s *Service) CancelSession(id string) (*ScanSession, error) {
	var session *ScanSession
	var imagePath string
	err := s.update(func(tx Txn) error {
		var err error
		if session, err = tx.GetSession(id); err != nil {
			return err
		}
		if session.Status != SessionProcessing {
			return &ConflictError{Reason: fmt.Sprintf("session is %s", session.Status)}
		}
		imagePath = session.ImagePath
		session.Status = SessionCancelled
		session.ImagePath = ""
		return tx.PutSession(session)
	})
	if err != nil {
		return nil, err
	}

	if imagePath != "" {
		if delErr := s.storage.Delete(imagePath); delErr != nil {
			slog.Warn("Failed to delete image of cancelled session", "session", id, "error", delErr)
		}
	}
	slog.Info("Scan cancelled", "session", id)
	return session, nil
}

// ResolveCandidates applies a batch of user resolutions to a session.
//
// The whole batch is validated before anything is written, so a rejected
// batch leaves every candidate exactly as it was. Each candidate is then
// applied in its own transaction (status transition and pantry merge
// commit together) and session completion is evaluated once after the
// whole batch, never per candidate, so out-of-order processing cannot
// produce spurious partial-completion signals.
//
// Each candidate transaction re-reads the session, so a batch racing a
// completing batch conflicts instead of writing into a finished session.
func (s *Service) ResolveCandidates(sessionID string, resolutions []Resolution) (*ResolutionSummary, error) {
	if len(resolutions) == 0 {
		return nil, &ValidationError{Field: "resolutions", Reason: "must not be empty"}
	}

	var session *ScanSession
	err := s.view(func(tx Txn) error {
		var err error
		if session, err = tx.GetSession(sessionID); err != nil {
			return err
		}
		if session.Status == SessionCompleted {
			return &ConflictError{Reason: "session already completed"}
		}
		if session.Status != SessionProcessing {
			return &ConflictError{Reason: fmt.Sprintf("session is %s", session.Status)}
		}
		for _, res := range resolutions {
			if err := validateResolution(res); err != nil {
				return err
			}
			c, err := tx.GetCandidate(res.CandidateID)
			if err != nil {
				return err
			}
			if c.SessionID != sessionID {
				return &NotFoundError{Kind: "candidate", ID: res.CandidateID}
			}
			if _, quantity, unit := resolvedFields(c, res); quantity != nil {
				if _, ok := s.catalog.Unit(unit); !ok {
					return &ValidationError{Field: "unit", Reason: fmt.Sprintf("unknown unit %q", unit)}
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	summary := &ResolutionSummary{}
	touched := make(map[string]struct{})
	now := s.timeSource.Now()

	for _, res := range resolutions {
		var resultStatus ConfirmationStatus
		var mergedName string
		err := s.update(func(tx Txn) error {
			resultStatus, mergedName = "", ""
			sess, err := tx.GetSession(sessionID)
			if err != nil {
				return err
			}
			if sess.Status != SessionProcessing {
				return &ConflictError{Reason: fmt.Sprintf("session is %s", sess.Status)}
			}
			c, err := tx.GetCandidate(res.CandidateID)
			if err != nil {
				return err
			}
			next, merge, err := transition(c, res, now)
			if err != nil {
				return err
			}
			if err := tx.PutCandidate(next); err != nil {
				return err
			}
			if merge {
				item, err := s.mergeConfirmed(tx, s.scanMerge(sess, next, res), now)
				if err != nil {
					return err
				}
				mergedName = item.CanonicalName
			}
			resultStatus = next.Status
			return nil
		})
		if err != nil {
			return nil, err
		}
		if mergedName != "" {
			touched[mergedName] = struct{}{}
		}
		switch resultStatus {
		case StatusConfirmed:
			summary.Confirmed++
		case StatusModified:
			summary.Modified++
		case StatusRejected:
			summary.Rejected++
		case StatusSkipped:
			summary.Skipped++
		}
	}

	completed := false
	err = s.update(func(tx Txn) error {
		sess, err := tx.GetSession(sessionID)
		if err != nil {
			return err
		}
		if sess.Status != SessionProcessing {
			return nil
		}
		candidates, err := tx.CandidatesBySession(sessionID)
		if err != nil {
			return err
		}
		for _, c := range candidates {
			if !c.Resolved() {
				return nil
			}
		}
		sess.Status = SessionCompleted
		completedAt := s.timeSource.Now()
		sess.CompletedAt = &completedAt
		completed = true
		return tx.PutSession(sess)
	})
	if err != nil {
		return nil, err
	}

	summary.PantryTouched = len(touched)
	summary.SessionCompleted = completed
	slog.Info("Resolutions applied",
		"session", sessionID,
		"confirmed", summary.Confirmed,
		"modified", summary.Modified,
		"rejected", summary.Rejected,
		"skipped", summary.Skipped,
		"pantry_touched", summary.PantryTouched,
		"completed", completed,
	)
	return summary, nil
}

// scanMerge builds the reconciler input for one confirmed candidate. A
// user-supplied quantity counts as entered, not estimated; a detector
// quantity (or the 1-piece default) stays an estimate.
func (s *Service) scanMerge(session *ScanSession, c *DetectedCandidate, res Resolution) mergeInput {
	display := c.ResolvedName
	category := ""
	if ing, ok := s.catalog.Ingredient(c.ResolvedName); ok {
		display = ing.Display
		category = ing.Category
	}

	estimated := res.Quantity == nil
	var confidence *float64
	if estimated && c.Quantity != nil {
		confidence = c.QuantityConfidence
	}

	return mergeInput{
		householdID:        session.HouseholdID,
		canonical:          c.ResolvedName,
		display:            display,
		category:           category,
		quantity:           c.ResolvedQuantity,
		unit:               c.ResolvedUnit,
		quantityConfidence: confidence,
		estimated:          estimated,
		provenance:         ProvenanceScan,
		context:            session.Context,
		sessionID:          session.ID,
	}
}

// ManualItem is a user-entered pantry addition.
type ManualItem struct {
	Name     string         `json:"name"`
	Display  string         `json:"display,omitempty"`
	Quantity *float64       `json:"quantity,omitempty"`
	Unit     string         `json:"unit,omitempty"`
	Context  StorageContext `json:"context,omitempty"`
}

// AddPantryItem upserts a manually entered item. Manual quantities are
// authoritative: they replace whatever estimate a scan left behind.
func (s *Service) AddPantryItem(householdID string, input ManualItem) (*PantryItem, error) {
	if strings.TrimSpace(householdID) == "" {
		return nil, &ValidationError{Field: "household_id", Reason: "must not be empty"}
	}
	canonical := catalog.Normalize(input.Name)
	if canonical == "" {
		return nil, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	unit := input.Unit
	if input.Quantity != nil {
		if *input.Quantity <= 0 {
			return nil, &ValidationError{Field: "quantity", Reason: "must be positive"}
		}
		if unit == "" {
			unit = defaultUnit
		}
		if _, ok := s.catalog.Unit(unit); !ok {
			return nil, &ValidationError{Field: "unit", Reason: fmt.Sprintf("unknown unit %q", unit)}
		}
	} else {
		unit = ""
	}
	if input.Context != "" && !ValidContext(input.Context) {
		return nil, &ValidationError{Field: "context", Reason: fmt.Sprintf("unknown storage context %q", input.Context)}
	}

	display := input.Display
	category := ""
	if ing, ok := s.catalog.Ingredient(canonical); ok {
		if display == "" {
			display = ing.Display
		}
		category = ing.Category
	}
	if display == "" {
		display = canonical
	}

	var item *PantryItem
	err := s.update(func(tx Txn) error {
		var err error
		item, err = s.mergeConfirmed(tx, mergeInput{
			householdID: householdID,
			canonical:   canonical,
			display:     display,
			category:    category,
			quantity:    input.Quantity,
			unit:        unit,
			overwrite:   true,
			provenance:  ProvenanceManual,
			context:     input.Context,
		}, s.timeSource.Now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// ListPantry returns a household's inventory, current items only unless
// includePast is set.
func (s *Service) ListPantry(householdID string, includePast bool) ([]*PantryItem, error) {
	if strings.TrimSpace(householdID) == "" {
		return nil, &ValidationError{Field: "household_id", Reason: "must not be empty"}
	}

	var items []*PantryItem
	err := s.view(func(tx Txn) error {
		all, err := tx.PantryItemsByHousehold(householdID)
		if err != nil {
			return err
		}
		items = make([]*PantryItem, 0, len(all))
		for _, item := range all {
			if includePast || item.Current {
				items = append(items, item)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// CreateRecipe stores an ingredient list for later sufficiency checks.
func (s *Service) CreateRecipe(name string, baseServings int, ingredients []RecipeIngredient) (*Recipe, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if baseServings <= 0 {
		return nil, &ValidationError{Field: "base_servings", Reason: "must be positive"}
	}
	if len(ingredients) == 0 {
		return nil, &ValidationError{Field: "ingredients", Reason: "must not be empty"}
	}

	normalized := make([]RecipeIngredient, 0, len(ingredients))
	for _, ing := range ingredients {
		ing.Name = catalog.Normalize(ing.Name)
		if ing.Name == "" {
			return nil, &ValidationError{Field: "ingredient", Reason: "name must not be empty"}
		}
		if ing.Quantity != nil {
			if *ing.Quantity <= 0 {
				return nil, &ValidationError{Field: "quantity", Reason: "must be positive for " + ing.Name}
			}
			if ing.Unit == "" {
				ing.Unit = defaultUnit
			}
			if _, ok := s.catalog.Unit(ing.Unit); !ok {
				return nil, &ValidationError{Field: "unit", Reason: fmt.Sprintf("unknown unit %q for %s", ing.Unit, ing.Name)}
			}
		}
		normalized = append(normalized, ing)
	}

	now := s.timeSource.Now()
	recipe := &Recipe{
		ID:           s.idGenerator.Generate(),
		Name:         strings.TrimSpace(name),
		BaseServings: baseServings,
		Ingredients:  normalized,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.update(func(tx Txn) error { return tx.PutRecipe(recipe) })
	if err != nil {
		return nil, fmt.Errorf("saving recipe: %w", err)
	}
	return recipe, nil
}

// GetRecipe retrieves a recipe by ID.
func (s *Service) GetRecipe(id string) (*Recipe, error) {
	var recipe *Recipe
	err := s.view(func(tx Txn) error {
		var err error
		recipe, err = tx.GetRecipe(id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return recipe, nil
}

// ListRecipes returns all recipes sorted by name.
func (s *Service) ListRecipes() ([]*Recipe, error) {
	var recipes []*Recipe
	err := s.view(func(tx Txn) error {
		var err error
		recipes, err = tx.ListRecipes()
		return err
	})
	if err != nil {
		return nil, err
	}
	return recipes, nil
}

// CheckRecipeSufficiency answers "can this household cook this recipe at
// this many servings" against a read-only pantry snapshot.
func (s *Service) CheckRecipeSufficiency(recipeID, householdID string, servings int) (*SufficiencyReport, error) {
	if strings.TrimSpace(householdID) == "" {
		return nil, &ValidationError{Field: "household_id", Reason: "must not be empty"}
	}

	var report *SufficiencyReport
	err := s.view(func(tx Txn) error {
		recipe, err := tx.GetRecipe(recipeID)
		if err != nil {
			return err
		}
		items, err := tx.PantryItemsByHousehold(householdID)
		if err != nil {
			return err
		}
		report, err = CheckSufficiency(s.catalog, recipe.Ingredients, servings, recipe.BaseServings, items)
		return err
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// CheckInlineSufficiency runs a sufficiency check for an ad-hoc ingredient
// list that was never stored as a recipe.
func (s *Service) CheckInlineSufficiency(householdID string, ingredients []RecipeIngredient, servings, baseServings int) (*SufficiencyReport, error) {
	if strings.TrimSpace(householdID) == "" {
		return nil, &ValidationError{Field: "household_id", Reason: "must not be empty"}
	}
	if len(ingredients) == 0 {
		return nil, &ValidationError{Field: "ingredients", Reason: "must not be empty"}
	}
	if baseServings == 0 {
		baseServings = 1
	}

	var report *SufficiencyReport
	err := s.view(func(tx Txn) error {
		items, err := tx.PantryItemsByHousehold(householdID)
		if err != nil {
			return err
		}
		report, err = CheckSufficiency(s.catalog, ingredients, servings, baseServings, items)
		return err
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
