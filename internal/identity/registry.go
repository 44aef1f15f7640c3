package identity

import (
	"errors"
	"fmt"
	"sync"

	"backend/internal/ledger"
	"backend/internal/logger"
	"backend/internal/storage"

	"go.uber.org/zap"
)

var (
	ErrHashNotFound = errors.New("identity: no student for ledger hash")
	ErrHashMismatch = errors.New("identity: student already has a different ledger hash")
)

// Registry maps student identifiers to the opaque identifiers that appear on
// the ledger. The mapping is append-only: once a hash is persisted for a
// student it never changes.
type Registry struct {
	mu        sync.RWMutex
	byHash    map[string]string
	byStudent map[string]string
	storage   storage.Storage
}

func NewRegistry(store storage.Storage) *Registry {
	return &Registry{
		byHash:    make(map[string]string),
		byStudent: make(map[string]string),
		storage:   store,
	}
}

// Hash derives the opaque ledger identifier for a student identifier. Same
// input, same output, on every call.
func Hash(studentID string) string {
	return ledger.Hash([]byte(studentID))
}

// Persist stores the (student, hash) pair for later reverse lookup.
// Re-persisting an identical pair is a no-op; a different hash for an
// already-registered student is rejected.
func (r *Registry) Persist(studentID string, opaqueID string) error {
	r.mu.RLock()
	known, ok := r.byStudent[studentID]
	r.mu.RUnlock()

	if ok {
		if known != opaqueID {
			return fmt.Errorf("%w: student %s", ErrHashMismatch, studentID)
		}
		return nil
	}

	existing, err := r.storage.GetIdentityHashByStudentID(studentID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	if existing != nil {
		if existing.LedgerHash != opaqueID {
			return fmt.Errorf("%w: student %s", ErrHashMismatch, studentID)
		}
		r.cache(studentID, opaqueID)
		return nil
	}

	entry := storage.IdentityHashEntry{StudentID: studentID, LedgerHash: opaqueID}
	if err := r.storage.CreateIdentityHash(&entry); err != nil {
		return err
	}

	r.cache(studentID, opaqueID)
	logger.Debug("identity hash persisted", zap.String("student_id", studentID))
	return nil
}

// ReverseLookup resolves an opaque ledger identifier back to the student
// identifier it was derived from. Cache first, durable store second, with
// lazy cache warm-up on a store hit.
func (r *Registry) ReverseLookup(opaqueID string) (string, error) {
	r.mu.RLock()
	studentID, ok := r.byHash[opaqueID]
	r.mu.RUnlock()

	if ok {
		return studentID, nil
	}

	entry, err := r.storage.GetIdentityHashByLedgerHash(opaqueID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrHashNotFound
		}
		return "", err
	}

	r.cache(entry.StudentID, entry.LedgerHash)
	return entry.StudentID, nil
}

func (r *Registry) cache(studentID string, opaqueID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// additive only, an earlier entry always wins
	if _, ok := r.byStudent[studentID]; ok {
		return
	}

	r.byStudent[studentID] = opaqueID
	r.byHash[opaqueID] = studentID
}
