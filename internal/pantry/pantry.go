package pantry

import (
	"time"

	"github.com/larderhq/pantry-scan/internal/detection"
)

// SessionStatus is the lifecycle state of a scan session.
type SessionStatus string

const (
	SessionProcessing SessionStatus = "processing"
	SessionCompleted  SessionStatus = "completed"
	SessionFailed     SessionStatus = "failed"
	SessionCancelled  SessionStatus = "cancelled"
)

// StorageContext tags which storage area a scan captured. The set is fixed;
// the reconciliation pass is scoped to one context at a time.
type StorageContext string

const (
	ContextFridge  StorageContext = "fridge"
	ContextFreezer StorageContext = "freezer"
	ContextPantry  StorageContext = "pantry"
	ContextCounter StorageContext = "counter"
	ContextCellar  StorageContext = "cellar"
)

// ValidContext reports whether a storage context tag is one of the fixed set.
func ValidContext(c StorageContext) bool {
	switch c {
	case ContextFridge, ContextFreezer, ContextPantry, ContextCounter, ContextCellar:
		return true
	}
	return false
}

// ScanSession represents one capture event. CompletedAt is set if and only
// if Status is completed; completion is derived from candidate states, never
// written directly by a caller.
type ScanSession struct {
	ID          string         `json:"id"`
	HouseholdID string         `json:"household_id"`
	Context     StorageContext `json:"context"`
	Status      SessionStatus  `json:"status"`
	ImagePath   string         `json:"image_path"`
	ContentType string         `json:"content_type"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// ConfirmationStatus is the state of one detected candidate in the
// confirmation lifecycle.
type ConfirmationStatus string

const (
	StatusPending   ConfirmationStatus = "pending"
	StatusConfirmed ConfirmationStatus = "confirmed"
	StatusModified  ConfirmationStatus = "modified"
	StatusRejected  ConfirmationStatus = "rejected"
	StatusSkipped   ConfirmationStatus = "skipped"
)

// Action is a user input driving a candidate transition.
type Action string

const (
	ActionConfirm Action = "confirm"
	ActionModify  Action = "modify"
	ActionReject  Action = "reject"
	ActionSkip    Action = "skip"
)

// DetectedCandidate is one proposed ingredient within a session.
//
// Invariant: ResolvedName is non-empty exactly when Status is confirmed or
// modified. A rejected candidate never contributes to inventory.
type DetectedCandidate struct {
	ID                 string                   `json:"id"`
	SessionID          string                   `json:"session_id"`
	DetectedName       string                   `json:"detected_name"`
	Confidence         float64                  `json:"confidence"`
	Tier               detection.Tier           `json:"tier"`
	Quantity           *float64                 `json:"quantity,omitempty"`
	Unit               string                   `json:"unit,omitempty"`
	QuantityConfidence *float64                 `json:"quantity_confidence,omitempty"`
	Box                *detection.BoundingBox   `json:"box,omitempty"`
	Alternatives       []detection.Alternative  `json:"alternatives,omitempty"`
	Status             ConfirmationStatus       `json:"status"`
	ResolvedName       string                   `json:"resolved_name,omitempty"`
	ResolvedQuantity   *float64                 `json:"resolved_quantity,omitempty"`
	ResolvedUnit       string                   `json:"resolved_unit,omitempty"`
	ResolvedAt         *time.Time               `json:"resolved_at,omitempty"`
}

// Resolved reports whether the candidate has left the pending state.
func (c *DetectedCandidate) Resolved() bool {
	return c.Status != StatusPending
}

// Provenance records how a pantry item's latest update originated.
type Provenance string

const (
	ProvenanceScan      Provenance = "scan"
	ProvenanceManual    Provenance = "manual"
	ProvenanceDeduction Provenance = "recipe-deduction"
	ProvenanceShopping  Provenance = "shopping"
)

// PantryItem is one canonical ingredient currently (or formerly) present in
// a household's inventory. Canonical name is unique per household.
//
// A nil Quantity means "known present, amount unknown". Current=false items
// are retained for history and excluded from sufficiency checks.
type PantryItem struct {
	ID                 string         `json:"id"`
	HouseholdID        string         `json:"household_id"`
	CanonicalName      string         `json:"canonical_name"`
	DisplayName        string         `json:"display_name"`
	Category           string         `json:"category,omitempty"`
	Quantity           *float64       `json:"quantity,omitempty"`
	Unit               string         `json:"unit,omitempty"`
	Estimated          bool           `json:"estimated"`
	QuantityConfidence *float64       `json:"quantity_confidence,omitempty"`
	Current            bool           `json:"current"`
	StorageContext     StorageContext `json:"storage_context,omitempty"`
	LastSeenAt         time.Time      `json:"last_seen_at"`
	LastSessionID      string         `json:"last_session_id,omitempty"`
	Provenance         Provenance     `json:"provenance"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// RecipeIngredient is one requirement line of a recipe. A nil Quantity
// means the recipe gives no absolute amount and the standard serving for
// the ingredient is used instead.
type RecipeIngredient struct {
	Name     string   `json:"name"`
	Display  string   `json:"display,omitempty"`
	Quantity *float64 `json:"quantity,omitempty"`
	Unit     string   `json:"unit,omitempty"`
}

// Recipe is a stored ingredient list with the serving count it was written
// for. Recipe generation itself happens elsewhere; this is just the record
// the sufficiency check runs against.
type Recipe struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	BaseServings int                `json:"base_servings"`
	Ingredients  []RecipeIngredient `json:"ingredients"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// SufficiencyResult is the per-ingredient outcome of a sufficiency check.
// It is derived, never persisted.
type SufficiencyResult struct {
	Name              string  `json:"name"`
	Display           string  `json:"display,omitempty"`
	RequiredQuantity  float64 `json:"required_quantity"`
	RequiredUnit      string  `json:"required_unit"`
	AvailableQuantity float64 `json:"available_quantity"`
	AvailableUnit     string  `json:"available_unit,omitempty"`
	Sufficient        bool    `json:"sufficient"`
	Shortage          float64 `json:"shortage"`
}

// ShoppingItem is one aggregated shortage line.
type ShoppingItem struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
}

// SufficiencyReport aggregates per-ingredient results and the shopping list
// of all shortages.
type SufficiencyReport struct {
	TargetServings int                 `json:"target_servings"`
	Results        []SufficiencyResult `json:"results"`
	ShoppingList   []ShoppingItem      `json:"shopping_list"`
}

// Resolution is one user decision about a detected candidate.
type Resolution struct {
	CandidateID  string   `json:"candidate_id"`
	Action       Action   `json:"action"`
	ResolvedName string   `json:"resolved_name,omitempty"`
	Quantity     *float64 `json:"quantity,omitempty"`
	Unit         string   `json:"unit,omitempty"`
}

// ResolutionSummary reports what a confirmation batch did.
type ResolutionSummary struct {
	Confirmed        int  `json:"confirmed"`
	Modified         int  `json:"modified"`
	Rejected         int  `json:"rejected"`
	Skipped          int  `json:"skipped"`
	PantryTouched    int  `json:"pantry_touched"`
	SessionCompleted bool `json:"session_completed"`
}
