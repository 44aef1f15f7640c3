package identity_test

import (
	"errors"
	"fmt"
	"testing"

	"backend/internal/identity"
	"backend/internal/storage"
)

func newTestRegistry(t *testing.T) (*identity.Registry, *storage.SqliteStorage) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	store, err := storage.NewSqliteStorage(dsn)
	if err != nil {
		t.Fatalf("failed to initialize storage: %v", err)
	}

	return identity.NewRegistry(store), store
}

func TestHashIsDeterministic(t *testing.T) {
	first := identity.Hash("000012345")
	second := identity.Hash("000012345")

	if first != second {
		t.Fatalf("hash is not deterministic: %s != %s", first, second)
	}

	if first == identity.Hash("000012346") {
		t.Fatalf("different identifiers produced the same hash")
	}

	if len(first) != 64 {
		t.Fatalf("expected 64 hex characters, got %d", len(first))
	}
}

func TestPersistAndReverseLookup(t *testing.T) {
	registry, _ := newTestRegistry(t)

	opaqueID := identity.Hash("000012345")
	if err := registry.Persist("000012345", opaqueID); err != nil {
		t.Fatalf("failed to persist: %v", err)
	}

	studentID, err := registry.ReverseLookup(opaqueID)
	if err != nil {
		t.Fatalf("failed to reverse lookup: %v", err)
	}
	if studentID != "000012345" {
		t.Fatalf("expected student 000012345, got %s", studentID)
	}
}

func TestPersistIsIdempotentForSamePair(t *testing.T) {
	registry, _ := newTestRegistry(t)

	opaqueID := identity.Hash("000012345")
	if err := registry.Persist("000012345", opaqueID); err != nil {
		t.Fatalf("failed to persist: %v", err)
	}
	if err := registry.Persist("000012345", opaqueID); err != nil {
		t.Fatalf("re-persisting the same pair must be a no-op: %v", err)
	}
}

func TestPersistRejectsConflictingHash(t *testing.T) {
	registry, _ := newTestRegistry(t)

	if err := registry.Persist("000012345", identity.Hash("000012345")); err != nil {
		t.Fatalf("failed to persist: %v", err)
	}

	err := registry.Persist("000012345", identity.Hash("something else"))
	if !errors.Is(err, identity.ErrHashMismatch) {
		t.Fatalf("expected ErrHashMismatch, got: %v", err)
	}
}

func TestReverseLookupFallsBackToDurableStore(t *testing.T) {
	registry, store := newTestRegistry(t)

	// entry written by an earlier process, cache is cold
	opaqueID := identity.Hash("000067890")
	entry := storage.IdentityHashEntry{StudentID: "000067890", LedgerHash: opaqueID}
	if err := store.CreateIdentityHash(&entry); err != nil {
		t.Fatalf("failed to create entry: %v", err)
	}

	studentID, err := registry.ReverseLookup(opaqueID)
	if err != nil {
		t.Fatalf("failed to reverse lookup: %v", err)
	}
	if studentID != "000067890" {
		t.Fatalf("expected student 000067890, got %s", studentID)
	}
}

func TestReverseLookupUnknownHash(t *testing.T) {
	registry, _ := newTestRegistry(t)

	_, err := registry.ReverseLookup(identity.Hash("never persisted"))
	if !errors.Is(err, identity.ErrHashNotFound) {
		t.Fatalf("expected ErrHashNotFound, got: %v", err)
	}
}

func TestConcurrentReverseLookups(t *testing.T) {
	registry, _ := newTestRegistry(t)

	opaqueID := identity.Hash("000012345")
	if err := registry.Persist("000012345", opaqueID); err != nil {
		t.Fatalf("failed to persist: %v", err)
	}

	done := make(chan error, 16)
	for i := 0; i < 16; i++ {
		go func() {
			studentID, err := registry.ReverseLookup(opaqueID)
			if err == nil && studentID != "000012345" {
				err = errors.New("wrong student id")
			}
			done <- err
		}()
	}

	for i := 0; i < 16; i++ {
		if err := <-done; err != nil {
			t.Fatalf("concurrent lookup failed: %v", err)
		}
	}
}
