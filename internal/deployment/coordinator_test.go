package deployment_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"backend/internal/deployment"
	"backend/internal/identity"
	"backend/internal/ledger"
	"backend/internal/storage"

	"github.com/vimeo/go-clocks/fake"
)

func newTestCoordinator(t *testing.T) (*deployment.Coordinator, *storage.SqliteStorage, *fake.Clock) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	store, err := storage.NewSqliteStorage(dsn)
	if err != nil {
		t.Fatalf("failed to initialize storage: %v", err)
	}

	clock := fake.NewClock(time.Unix(1_700_000_000, 0))
	return deployment.NewCoordinator(store, identity.NewRegistry(store), clock), store, clock
}

func seedElectionWithCandidates(t *testing.T, store *storage.SqliteStorage, election *storage.Election, studentIDs ...string) {
	t.Helper()

	if err := store.CreateElection(election); err != nil {
		t.Fatalf("failed to create election: %v", err)
	}

	for i, studentID := range studentIDs {
		candidate := storage.Candidate{
			ID:        election.ID*100 + int64(i) + 1,
			StudentID: studentID,
			FullName:  fmt.Sprintf("Candidate %d", i+1),
		}
		if err := store.CreateCandidate(&candidate); err != nil {
			t.Fatalf("failed to create candidate: %v", err)
		}

		association := storage.ElectionCandidate{ElectionID: election.ID, CandidateID: candidate.ID}
		if err := store.AddElectionCandidate(&association); err != nil {
			t.Fatalf("failed to associate candidate: %v", err)
		}
	}
}

func TestPrepareDeployment(t *testing.T) {
	coordinator, store, clock := newTestCoordinator(t)

	now := clock.Now().Unix()
	seedElectionWithCandidates(t, store, &storage.Election{
		ID:               1,
		Name:             "Student Council President 2026",
		PositionCategory: "President",
		StartsAt:         now + 3600,
		EndsAt:           now + 7200,
	}, "000012345", "000067890")

	params, err := coordinator.PrepareDeployment(context.Background(), 1)
	if err != nil {
		t.Fatalf("failed to prepare deployment: %v", err)
	}

	if params.Category != deployment.CategoryExecutive {
		t.Fatalf("expected executive category, got %d", params.Category)
	}
	if params.StartAdjusted {
		t.Fatalf("future start must not be adjusted")
	}
	if params.StartsAtUnix != now+3600 {
		t.Fatalf("expected start %d, got %d", now+3600, params.StartsAtUnix)
	}
	if len(params.Candidates) != 2 {
		t.Fatalf("expected 2 candidate params, got %d", len(params.Candidates))
	}
	if params.Candidates[0].LedgerHash != identity.Hash("000012345") {
		t.Fatalf("unexpected ledger hash for first candidate")
	}

	// identity hashes must be persisted on the candidate rows
	candidates, err := store.GetElectionCandidates(1)
	if err != nil {
		t.Fatalf("failed to get candidates: %v", err)
	}
	for _, candidate := range candidates {
		if candidate.LedgerHash == nil || *candidate.LedgerHash != identity.Hash(candidate.StudentID) {
			t.Fatalf("candidate %s missing persisted ledger hash", candidate.StudentID)
		}
	}

	// preparation never assigns the handle
	election, err := store.GetElection(1)
	if err != nil {
		t.Fatalf("failed to load election: %v", err)
	}
	if election.LedgerHandle != nil {
		t.Fatalf("prepare must not assign a ledger handle")
	}
}

func TestPrepareDeploymentAdjustsStaleStart(t *testing.T) {
	coordinator, store, clock := newTestCoordinator(t)

	now := clock.Now().Unix()
	storedStart := now - 600
	seedElectionWithCandidates(t, store, &storage.Election{
		ID:               1,
		Name:             "Faculty Representative 2026",
		PositionCategory: "Faculty Representative",
		StartsAt:         storedStart,
		EndsAt:           now + 7200,
	}, "000012345", "000067890")

	params, err := coordinator.PrepareDeployment(context.Background(), 1)
	if err != nil {
		t.Fatalf("failed to prepare deployment: %v", err)
	}

	if !params.StartAdjusted {
		t.Fatalf("stale start must be flagged as adjusted")
	}
	if params.StartsAtUnix < now {
		t.Fatalf("adjusted start %d is not in the future of %d", params.StartsAtUnix, now)
	}
	if params.StartsAtUnix != now+300 {
		t.Fatalf("expected start pushed by the five minute margin, got %d", params.StartsAtUnix)
	}

	// database record stays untouched
	election, err := store.GetElection(1)
	if err != nil {
		t.Fatalf("failed to load election: %v", err)
	}
	if election.StartsAt != storedStart {
		t.Fatalf("stored start mutated from %d to %d", storedStart, election.StartsAt)
	}
}

func TestPrepareDeploymentRequiresTwoCandidates(t *testing.T) {
	coordinator, store, clock := newTestCoordinator(t)

	now := clock.Now().Unix()
	seedElectionWithCandidates(t, store, &storage.Election{
		ID:               1,
		Name:             "Lonely Race",
		PositionCategory: "President",
		StartsAt:         now + 3600,
		EndsAt:           now + 7200,
	}, "000012345")

	_, err := coordinator.PrepareDeployment(context.Background(), 1)
	if !errors.Is(err, deployment.ErrNotDeployable) {
		t.Fatalf("expected ErrNotDeployable, got: %v", err)
	}
}

func TestPrepareDeploymentRejectsDeployedElection(t *testing.T) {
	coordinator, store, clock := newTestCoordinator(t)

	now := clock.Now().Unix()
	handle := int64(555)
	seedElectionWithCandidates(t, store, &storage.Election{
		ID:               1,
		Name:             "Already Deployed",
		PositionCategory: "President",
		StartsAt:         now + 3600,
		EndsAt:           now + 7200,
		LedgerHandle:     &handle,
	}, "000012345", "000067890")

	_, err := coordinator.PrepareDeployment(context.Background(), 1)
	if !errors.Is(err, deployment.ErrAlreadyDeployed) {
		t.Fatalf("expected ErrAlreadyDeployed, got: %v", err)
	}
}

func TestConfirmDeploymentIsIdempotent(t *testing.T) {
	coordinator, store, clock := newTestCoordinator(t)

	now := clock.Now().Unix()
	seedElectionWithCandidates(t, store, &storage.Election{
		ID:               1,
		Name:             "Student Council President 2026",
		PositionCategory: "President",
		StartsAt:         now - 60,
		EndsAt:           now + 7200,
	}, "000012345", "000067890")

	election, err := coordinator.ConfirmDeployment(context.Background(), 1, 555, "0xdead", "admin-1")
	if err != nil {
		t.Fatalf("failed to confirm deployment: %v", err)
	}
	if election.LedgerHandle == nil || *election.LedgerHandle != 555 {
		t.Fatalf("expected handle 555, got %v", election.LedgerHandle)
	}
	if election.Status != storage.StatusActive {
		t.Fatalf("expected active status after confirm inside window, got %s", election.Status)
	}

	// same handle again is a no-op success
	election, err = coordinator.ConfirmDeployment(context.Background(), 1, 555, "0xdead", "admin-1")
	if err != nil {
		t.Fatalf("repeated confirmation must succeed: %v", err)
	}
	if *election.LedgerHandle != 555 {
		t.Fatalf("expected single stored handle 555, got %d", *election.LedgerHandle)
	}

	// a different handle is a conflict
	_, err = coordinator.ConfirmDeployment(context.Background(), 1, 777, "0xbeef", "admin-1")
	if !errors.Is(err, deployment.ErrAlreadyDeployed) {
		t.Fatalf("expected ErrAlreadyDeployed for different handle, got: %v", err)
	}
}

func TestConfirmDeploymentKeepsUpcomingBeforeOriginalStart(t *testing.T) {
	coordinator, store, clock := newTestCoordinator(t)

	now := clock.Now().Unix()
	seedElectionWithCandidates(t, store, &storage.Election{
		ID:               1,
		Name:             "Future Election",
		PositionCategory: "President",
		StartsAt:         now + 3600,
		EndsAt:           now + 7200,
	}, "000012345", "000067890")

	election, err := coordinator.ConfirmDeployment(context.Background(), 1, 555, "0xdead", "admin-1")
	if err != nil {
		t.Fatalf("failed to confirm deployment: %v", err)
	}
	if election.Status != storage.StatusUpcoming {
		t.Fatalf("expected upcoming before the stored start, got %s", election.Status)
	}
}

func TestPrepareDeploymentBuildsSignerPayload(t *testing.T) {
	coordinator, store, clock := newTestCoordinator(t)

	now := clock.Now().Unix()
	seedElectionWithCandidates(t, store, &storage.Election{
		ID:               1,
		Name:             "Student Council President 2026",
		PositionCategory: "President",
		StartsAt:         now + 3600,
		EndsAt:           now + 7200,
	}, "000012345", "000067890")

	params, err := coordinator.PrepareDeployment(context.Background(), 1)
	if err != nil {
		t.Fatalf("failed to prepare deployment: %v", err)
	}

	if params.MessageBoc == "" {
		t.Fatalf("expected a serialized signer payload")
	}

	// root must commit to the candidate hashes in deployment order
	digest := sha256.New()
	for _, candidate := range params.Candidates {
		raw, err := hex.DecodeString(candidate.LedgerHash)
		if err != nil {
			t.Fatalf("candidate hash is not hex: %v", err)
		}
		digest.Write(raw)
	}
	if want := hex.EncodeToString(digest.Sum(nil)); params.CandidateRoot != want {
		t.Fatalf("candidate root %s, want %s", params.CandidateRoot, want)
	}
}

func TestPrepareDeploymentPayloadCarriesAdjustedStart(t *testing.T) {
	coordinator, store, clock := newTestCoordinator(t)

	now := clock.Now().Unix()
	seedElectionWithCandidates(t, store, &storage.Election{
		ID:               1,
		Name:             "Faculty Representative 2026",
		PositionCategory: "Faculty Representative",
		StartsAt:         now - 600,
		EndsAt:           now + 7200,
	}, "000012345", "000067890")

	params, err := coordinator.PrepareDeployment(context.Background(), 1)
	if err != nil {
		t.Fatalf("failed to prepare deployment: %v", err)
	}

	hashes := []string{params.Candidates[0].LedgerHash, params.Candidates[1].LedgerHash}
	body, err := ledger.NewElectionDeployMessageBody(params.Category, params.StartsAtUnix, params.EndsAtUnix, hashes)
	if err != nil {
		t.Fatalf("failed to build expected body: %v", err)
	}

	messageBoc, err := body.Serialize()
	if err != nil {
		t.Fatalf("failed to serialize expected body: %v", err)
	}
	if params.MessageBoc != messageBoc {
		t.Fatalf("signer payload does not encode the adjusted window")
	}
	if int64(body.StartsAtUnix) != now+300 {
		t.Fatalf("expected payload start %d, got %d", now+300, body.StartsAtUnix)
	}
}

func TestConfirmDeploymentAuditsActor(t *testing.T) {
	coordinator, store, clock := newTestCoordinator(t)

	now := clock.Now().Unix()
	seedElectionWithCandidates(t, store, &storage.Election{
		ID:               1,
		Name:             "Student Council President 2026",
		PositionCategory: "President",
		StartsAt:         now - 60,
		EndsAt:           now + 7200,
	}, "000012345", "000067890")

	if _, err := coordinator.ConfirmDeployment(context.Background(), 1, 555, "0xdead", "000099999"); err != nil {
		t.Fatalf("failed to confirm deployment: %v", err)
	}

	entries, err := store.GetAuditEntries(1)
	if err != nil {
		t.Fatalf("failed to load audit entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(entries))
	}
	if entries[0].Actor != "000099999" {
		t.Fatalf("audit actor %q, want the confirming administrator", entries[0].Actor)
	}
	if entries[0].Action != "deployment_confirmed" || entries[0].Detail != "0xdead" {
		t.Fatalf("unexpected audit entry: %+v", entries[0])
	}
}

func TestLedgerCategoryMapping(t *testing.T) {
	tests := []struct {
		label string
		want  uint8
	}{
		{"President", deployment.CategoryExecutive},
		{"president", deployment.CategoryExecutive},
		{"Vice President", deployment.CategoryExecutive},
		{"Vice-President", deployment.CategoryExecutive},
		{"Senator", deployment.CategoryRepresentative},
		{"Faculty Representative", deployment.CategoryRepresentative},
		{"Treasurer", deployment.CategoryRepresentative},
	}

	for _, test := range tests {
		if got := deployment.LedgerCategory(test.label); got != test.want {
			t.Fatalf("label %q mapped to %d, want %d", test.label, got, test.want)
		}
	}
}
