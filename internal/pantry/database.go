package pantry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

const (
	sessionBucket   = "scan_sessions"
	candidateBucket = "detected_candidates"
	pantryBucket    = "pantry_items"
	recipeBucket    = "recipes"
)

// Txn is the set of record operations available inside one storage
// transaction. A candidate transition and its pantry merge always share a
// Txn so retries can never observe (or produce) a half-applied resolution.
type Txn interface {
	GetSession(id string) (*ScanSession, error)
	PutSession(session *ScanSession) error
	ListSessions(householdID string) ([]*ScanSession, error)

	GetCandidate(id string) (*DetectedCandidate, error)
	PutCandidate(candidate *DetectedCandidate) error
	CandidatesBySession(sessionID string) ([]*DetectedCandidate, error)

	GetPantryItem(householdID, canonical string) (*PantryItem, error)
	PutPantryItem(item *PantryItem) error
	PantryItemsByHousehold(householdID string) ([]*PantryItem, error)

	GetRecipe(id string) (*Recipe, error)
	PutRecipe(recipe *Recipe) error
	ListRecipes() ([]*Recipe, error)
}

// DB defines the interface for database operations. View runs a read-only
// snapshot transaction; Update runs a writable one. Writers are serialized
// by the storage engine, which is what makes the per-(household, canonical)
// merge-or-insert race-free.
type DB interface {
	View(fn func(tx Txn) error) error
	Update(fn func(tx Txn) error) error
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB opens (creating if needed) the database file and its buckets.
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{sessionBucket, candidateBucket, pantryBucket, recipeBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// View runs fn in a read-only transaction. An error from the engine itself
// rather than from fn (begin or mmap failure) is wrapped as transient so
// callers can retry it.
func (b *BoltDB) View(fn func(tx Txn) error) error {
	var fnErr error
	err := b.db.View(func(tx *bbolt.Tx) error {
		fnErr = fn(&boltTxn{tx: tx})
		return fnErr
	})
	if err != nil && !errors.Is(err, fnErr) {
		return &TransientError{Err: err}
	}
	return err
}

// Update runs fn in a writable transaction; fn's writes commit atomically
// or not at all. An error from fn passes through unchanged; a begin or
// commit failure (typically disk I/O) is wrapped as transient.
func (b *BoltDB) Update(fn func(tx Txn) error) error {
	var fnErr error
	err := b.db.Update(func(tx *bbolt.Tx) error {
		fnErr = fn(&boltTxn{tx: tx})
		return fnErr
	})
	if err != nil && !errors.Is(err, fnErr) {
		return &TransientError{Err: err}
	}
	return err
}

// Close closes the database file.
func (b *BoltDB) Close() error {
	return b.db.Close()
}

// boltTxn adapts one bbolt transaction to the Txn interface. Records are
// stored as JSON, keyed by ID; pantry items use a composite
// household/canonical key so the per-household uniqueness invariant is the
// key itself.
type boltTxn struct {
	tx *bbolt.Tx
}

func pantryKey(householdID, canonical string) []byte {
	return []byte(householdID + "/" + canonical)
}

func putJSON(b *bbolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	return b.Put(key, data)
}

func (t *boltTxn) GetSession(id string) (*ScanSession, error) {
	data := t.tx.Bucket([]byte(sessionBucket)).Get([]byte(id))
	if data == nil {
		return nil, &NotFoundError{Kind: "session", ID: id}
	}
	var session ScanSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("unmarshaling session: %w", err)
	}
	return &session, nil
}

func (t *boltTxn) PutSession(session *ScanSession) error {
	return putJSON(t.tx.Bucket([]byte(sessionBucket)), []byte(session.ID), session)
}

func (t *boltTxn) ListSessions(householdID string) ([]*ScanSession, error) {
	sessions := make([]*ScanSession, 0)
	err := t.tx.Bucket([]byte(sessionBucket)).ForEach(func(k, v []byte) error {
		var session ScanSession
		if err := json.Unmarshal(v, &session); err != nil {
			return fmt.Errorf("unmarshaling session: %w", err)
		}
		if householdID == "" || session.HouseholdID == householdID {
			sessions = append(sessions, &session)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

func (t *boltTxn) GetCandidate(id string) (*DetectedCandidate, error) {
	data := t.tx.Bucket([]byte(candidateBucket)).Get([]byte(id))
	if data == nil {
		return nil, &NotFoundError{Kind: "candidate", ID: id}
	}
	var candidate DetectedCandidate
	if err := json.Unmarshal(data, &candidate); err != nil {
		return nil, fmt.Errorf("unmarshaling candidate: %w", err)
	}
	return &candidate, nil
}

func (t *boltTxn) PutCandidate(candidate *DetectedCandidate) error {
	return putJSON(t.tx.Bucket([]byte(candidateBucket)), []byte(candidate.ID), candidate)
}

func (t *boltTxn) CandidatesBySession(sessionID string) ([]*DetectedCandidate, error) {
	candidates := make([]*DetectedCandidate, 0)
	err := t.tx.Bucket([]byte(candidateBucket)).ForEach(func(k, v []byte) error {
		var candidate DetectedCandidate
		if err := json.Unmarshal(v, &candidate); err != nil {
			return fmt.Errorf("unmarshaling candidate: %w", err)
		}
		if candidate.SessionID == sessionID {
			candidates = append(candidates, &candidate)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Highest-confidence first; stable order for equal scores
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates, nil
}

func (t *boltTxn) GetPantryItem(householdID, canonical string) (*PantryItem, error) {
	data := t.tx.Bucket([]byte(pantryBucket)).Get(pantryKey(householdID, canonical))
	if data == nil {
		return nil, &NotFoundError{Kind: "pantry item", ID: canonical}
	}
	var item PantryItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("unmarshaling pantry item: %w", err)
	}
	return &item, nil
}

func (t *boltTxn) PutPantryItem(item *PantryItem) error {
	return putJSON(t.tx.Bucket([]byte(pantryBucket)), pantryKey(item.HouseholdID, item.CanonicalName), item)
}

func (t *boltTxn) PantryItemsByHousehold(householdID string) ([]*PantryItem, error) {
	items := make([]*PantryItem, 0)
	err := t.tx.Bucket([]byte(pantryBucket)).ForEach(func(k, v []byte) error {
		var item PantryItem
		if err := json.Unmarshal(v, &item); err != nil {
			return fmt.Errorf("unmarshaling pantry item: %w", err)
		}
		if item.HouseholdID == householdID {
			items = append(items, &item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CanonicalName < items[j].CanonicalName
	})
	return items, nil
}

func (t *boltTxn) GetRecipe(id string) (*Recipe, error) {
	data := t.tx.Bucket([]byte(recipeBucket)).Get([]byte(id))
	if data == nil {
		return nil, &NotFoundError{Kind: "recipe", ID: id}
	}
	var recipe Recipe
	if err := json.Unmarshal(data, &recipe); err != nil {
		return nil, fmt.Errorf("unmarshaling recipe: %w", err)
	}
	return &recipe, nil
}

func (t *boltTxn) PutRecipe(recipe *Recipe) error {
	return putJSON(t.tx.Bucket([]byte(recipeBucket)), []byte(recipe.ID), recipe)
}

func (t *boltTxn) ListRecipes() ([]*Recipe, error) {
	recipes := make([]*Recipe, 0)
	err := t.tx.Bucket([]byte(recipeBucket)).ForEach(func(k, v []byte) error {
		var recipe Recipe
		if err := json.Unmarshal(v, &recipe); err != nil {
			return fmt.Errorf("unmarshaling recipe: %w", err)
		}
		recipes = append(recipes, &recipe)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(recipes, func(i, j int) bool { return recipes[i].Name < recipes[j].Name })
	return recipes, nil
}
