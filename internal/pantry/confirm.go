package pantry

import (
	"fmt"
	"time"

	"github.com/larderhq/pantry-scan/internal/catalog"
)

// Default quantity when neither the user nor the detector supplied one.
const (
	defaultQuantity = 1.0
	defaultUnit     = "piece"
)

// statusFor maps a resolution action to the status it transitions into.
func statusFor(action Action) (ConfirmationStatus, bool) {
	switch action {
	case ActionConfirm:
		return StatusConfirmed, true
	case ActionModify:
		return StatusModified, true
	case ActionReject:
		return StatusRejected, true
	case ActionSkip:
		return StatusSkipped, true
	}
	return "", false
}

// validateResolution checks one resolution before anything is written.
// An empty name on modify is a validation error, never a silent fallback.
func validateResolution(res Resolution) error {
	if _, ok := statusFor(res.Action); !ok {
		return &ValidationError{Field: "action", Reason: fmt.Sprintf("unknown action %q", res.Action)}
	}
	if res.Action == ActionModify && catalog.Normalize(res.ResolvedName) == "" {
		return &ValidationError{Field: "resolved_name", Reason: "must not be empty on modify"}
	}
	if res.Quantity != nil && *res.Quantity <= 0 {
		return &ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	return nil
}

// resolvedFields computes the name/quantity/unit a confirm or modify
// resolves to: the user's values when supplied, the detector's estimate
// otherwise, and 1 piece when neither exists. Reject and skip resolve to
// nothing.
func resolvedFields(c *DetectedCandidate, res Resolution) (string, *float64, string) {
	target, _ := statusFor(res.Action)
	if target == StatusRejected || target == StatusSkipped {
		return "", nil, ""
	}

	name := catalog.Normalize(c.DetectedName)
	if res.Action == ActionModify {
		name = catalog.Normalize(res.ResolvedName)
	}

	var quantity *float64
	unit := ""
	switch {
	case res.Quantity != nil:
		quantity, unit = res.Quantity, res.Unit
	case c.Quantity != nil:
		quantity, unit = c.Quantity, c.Unit
	default:
		q := defaultQuantity
		quantity, unit = &q, defaultUnit
	}
	if unit == "" {
		unit = defaultUnit
	}
	return name, quantity, unit
}

// transition computes the next state of a candidate for one resolution,
// returning a new record rather than mutating the input. The second return
// reports whether the transition requires a pantry merge: true for a fresh
// confirm/modify, false for reject, skip, and idempotent replays.
//
// Replaying an identical resolution against an already-resolved candidate
// is a no-op so flaky-connection retries can never double-merge inventory.
// A rejected or skipped candidate may be re-resolved while its session is
// still open; a confirmed or modified one may not change.
func transition(c *DetectedCandidate, res Resolution, now time.Time) (*DetectedCandidate, bool, error) {
	target, ok := statusFor(res.Action)
	if !ok {
		return nil, false, &ValidationError{Field: "action", Reason: fmt.Sprintf("unknown action %q", res.Action)}
	}

	name, quantity, unit := resolvedFields(c, res)

	if c.Resolved() {
		if c.Status == target && c.ResolvedName == name &&
			floatPtrEqual(c.ResolvedQuantity, quantity) && c.ResolvedUnit == unit {
			replay := *c
			return &replay, false, nil
		}
		if c.Status == StatusConfirmed || c.Status == StatusModified {
			return nil, false, &ConflictError{
				Reason: fmt.Sprintf("candidate %s already resolved as %s", c.ID, c.Status),
			}
		}
		// rejected/skipped: fall through and re-resolve
	}

	next := *c
	next.Status = target
	next.ResolvedName = name
	next.ResolvedQuantity = quantity
	next.ResolvedUnit = unit
	next.ResolvedAt = &now

	return &next, target == StatusConfirmed || target == StatusModified, nil
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
