package pantry

import (
	"time"
)

// mergeInput carries one confirmed amount (or manual entry) into the
// reconciler. canonical is assumed normalized and non-empty; the caller
// enforces that precondition before anything reaches this file.
type mergeInput struct {
	householdID        string
	canonical          string
	display            string
	category           string
	quantity           *float64
	unit               string
	quantityConfidence *float64
	estimated          bool
	overwrite          bool
	provenance         Provenance
	context            StorageContext
	sessionID          string
}

// mergeConfirmed merges one amount into the household inventory inside tx.
//
// An existing current item with the same canonical name absorbs the
// incoming quantity (converted into the item's own unit first). When the
// unit categories differ the merge fails with a ConflictError and the old
// quantity is kept; a cross-category equivalence is never guessed.
// A quantity-less update refreshes last-seen
// without discarding a known quantity. Absent items are inserted.
func (s *Service) mergeConfirmed(tx Txn, in mergeInput, now time.Time) (*PantryItem, error) {
	existing, err := tx.GetPantryItem(in.householdID, in.canonical)
	if err != nil && !IsNotFound(err) {
		return nil, err
	}

	if existing == nil {
		item := &PantryItem{
			ID:                 s.idGenerator.Generate(),
			HouseholdID:        in.householdID,
			CanonicalName:      in.canonical,
			DisplayName:        in.display,
			Category:           in.category,
			Quantity:           in.quantity,
			Unit:               in.unit,
			Estimated:          in.estimated,
			QuantityConfidence: in.quantityConfidence,
			Current:            true,
			StorageContext:     in.context,
			LastSeenAt:         now,
			LastSessionID:      in.sessionID,
			Provenance:         in.provenance,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if item.Quantity == nil {
			item.Unit = ""
			item.QuantityConfidence = nil
		}
		if !item.Estimated {
			item.QuantityConfidence = nil
		}
		if err := tx.PutPantryItem(item); err != nil {
			return nil, err
		}
		return item, nil
	}

	next := *existing
	switch {
	case in.overwrite && in.quantity != nil:
		// manual entry is authoritative: replace the stored amount
		next.Quantity = in.quantity
		next.Unit = in.unit
		next.Estimated = false
		next.QuantityConfidence = nil
	case in.quantity != nil && existing.Quantity != nil:
		converted, err := s.catalog.Convert(*in.quantity, in.unit, existing.Unit)
		if err != nil {
			return nil, &ConflictError{
				Reason: "cannot merge quantity into " + in.canonical,
				Err:    err,
			}
		}
		sum := *existing.Quantity + converted
		next.Quantity = &sum
		next.Estimated = existing.Estimated || in.estimated
		next.QuantityConfidence = mergedConfidence(existing.QuantityConfidence, in.quantityConfidence)
		if !next.Estimated {
			next.QuantityConfidence = nil
		}
	case in.quantity != nil:
		// amount was unknown until now
		next.Quantity = in.quantity
		next.Unit = in.unit
		next.Estimated = in.estimated
		next.QuantityConfidence = in.quantityConfidence
		if !next.Estimated {
			next.QuantityConfidence = nil
		}
	default:
		// quantity-less observation: the known amount survives untouched
	}

	next.Current = true
	next.LastSeenAt = now
	next.UpdatedAt = now
	next.Provenance = in.provenance
	if in.sessionID != "" {
		next.LastSessionID = in.sessionID
	}
	if in.context != "" {
		next.StorageContext = in.context
	}
	if next.DisplayName == "" {
		next.DisplayName = in.display
	}
	if next.Category == "" {
		next.Category = in.category
	}

	if err := tx.PutPantryItem(&next); err != nil {
		return nil, err
	}
	return &next, nil
}

// mergedConfidence combines two quantity-confidence scores; a sum of
// estimates is only as trustworthy as its weakest part.
func mergedConfidence(a, b *float64) *float64 {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	min := *a
	if *b < min {
		min = *b
	}
	return &min
}

// markMissing flips current=false on every item for the household tied to
// the given storage context and not touched by the session. Rows are
// retained for history, never deleted.
func markMissing(tx Txn, householdID string, context StorageContext, sessionID string, now time.Time) (int, error) {
	items, err := tx.PantryItemsByHousehold(householdID)
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, item := range items {
		if !item.Current || item.StorageContext != context || item.LastSessionID == sessionID {
			continue
		}
		stale := *item
		stale.Current = false
		stale.UpdatedAt = now
		if err := tx.PutPantryItem(&stale); err != nil {
			return marked, err
		}
		marked++
	}
	return marked, nil
}

// ReconcileContext runs the mark-missing pass for one completed
// full-inventory scan: every current item previously tied to the session's
// storage context that the session did not re-observe loses its current
// flag. This is how consumption shows up without an explicit delete.
func (s *Service) ReconcileContext(householdID string, context StorageContext, sessionID string) (int, error) {
	if !ValidContext(context) {
		return 0, &ValidationError{Field: "context", Reason: "unknown storage context"}
	}

	marked := 0
	err := s.update(func(tx Txn) error {
		session, err := tx.GetSession(sessionID)
		if err != nil {
			return err
		}
		if session.HouseholdID != householdID {
			return &ValidationError{Field: "household_id", Reason: "session belongs to a different household"}
		}
		if session.Context != context {
			return &ValidationError{Field: "context", Reason: "session captured a different storage context"}
		}
		if session.Status != SessionCompleted {
			return &ConflictError{Reason: "session is not completed"}
		}

		marked, err = markMissing(tx, householdID, context, sessionID, s.timeSource.Now())
		return err
	})
	if err != nil {
		return 0, err
	}
	return marked, nil
}
