package deployment

import (
	"context"
	"errors"
	"strings"
	"time"

	"backend/internal/identity"
	"backend/internal/ledger"
	"backend/internal/logger"
	"backend/internal/storage"

	clocks "github.com/vimeo/go-clocks"
	"go.uber.org/zap"
)

var (
	ErrNotDeployable   = errors.New("deployment: election needs at least two candidates")
	ErrAlreadyDeployed = errors.New("deployment: election already has a ledger handle")
)

// startSafetyMargin is how far a stale start instant is pushed into the
// future so the ledger never receives a start time it considers already
// passed.
const startSafetyMargin = 5 * time.Minute

const minCandidates = 2

// Ledger category codes. The contract only distinguishes executive and
// representative seats; several human-facing position labels collapse onto
// the executive code. This many-to-one mapping is load-bearing for the
// contract layout.
const (
	CategoryExecutive      uint8 = 1
	CategoryRepresentative uint8 = 2
)

func LedgerCategory(positionCategory string) uint8 {
	switch strings.ToLower(strings.TrimSpace(positionCategory)) {
	case "president", "vice president", "vice-president":
		return CategoryExecutive
	default:
		return CategoryRepresentative
	}
}

type CandidateParams struct {
	CandidateID int64  `json:"candidateId"`
	LedgerHash  string `json:"ledgerHash"`
}

// DeployParams is everything the administrator's signing wallet needs to
// submit the deployment transaction. The service never submits it.
// MessageBoc is the serialized contract payload; CandidateRoot commits to
// the ordered candidate hash list baked into it.
type DeployParams struct {
	ElectionID    int64             `json:"electionId"`
	Category      uint8             `json:"category"`
	StartsAtUnix  int64             `json:"startsAtUnix"`
	EndsAtUnix    int64             `json:"endsAtUnix"`
	Candidates    []CandidateParams `json:"candidates"`
	StartAdjusted bool              `json:"startAdjusted"`
	CandidateRoot string            `json:"candidateRoot"`
	MessageBoc    string            `json:"messageBoc"`
}

type Coordinator struct {
	storage  storage.Storage
	registry *identity.Registry
	clock    clocks.Clock
}

func NewCoordinator(store storage.Storage, registry *identity.Registry, clock clocks.Clock) *Coordinator {
	return &Coordinator{
		storage:  store,
		registry: registry,
		clock:    clock,
	}
}

// PrepareDeployment hashes every candidate identity, persists the reverse
// index and returns ledger-ready parameters. The stored election row is not
// touched: the handle arrives later through ConfirmDeployment, and a
// skew-corrected start time exists only in the returned params.
func (c *Coordinator) PrepareDeployment(ctx context.Context, electionID int64) (*DeployParams, error) {
	election, err := c.storage.GetElection(electionID)
	if err != nil {
		return nil, err
	}

	if election.LedgerHandle != nil {
		return nil, ErrAlreadyDeployed
	}

	candidates, err := c.storage.GetElectionCandidates(electionID)
	if err != nil {
		return nil, err
	}

	if len(candidates) < minCandidates {
		return nil, ErrNotDeployable
	}

	params := &DeployParams{
		ElectionID: electionID,
		Category:   LedgerCategory(election.PositionCategory),
		EndsAtUnix: election.EndsAt,
		Candidates: make([]CandidateParams, 0, len(candidates)),
	}

	for _, candidate := range candidates {
		opaqueID := identity.Hash(candidate.StudentID)

		if err := c.registry.Persist(candidate.StudentID, opaqueID); err != nil {
			return nil, err
		}

		if candidate.LedgerHash == nil || *candidate.LedgerHash != opaqueID {
			if err := c.storage.SetCandidateLedgerHash(candidate.ID, opaqueID); err != nil {
				return nil, err
			}
		}

		params.Candidates = append(params.Candidates, CandidateParams{
			CandidateID: candidate.ID,
			LedgerHash:  opaqueID,
		})
	}

	now := c.clock.Now()
	params.StartsAtUnix = election.StartsAt
	if election.StartsAt <= now.Unix() {
		params.StartsAtUnix = now.Add(startSafetyMargin).Unix()
		params.StartAdjusted = true
		logger.Info("deployment start time adjusted for clock skew",
			zap.Int64("election_id", electionID),
			zap.Int64("stored_starts_at", election.StartsAt),
			zap.Int64("adjusted_starts_at", params.StartsAtUnix))
	}

	// the signer payload carries the adjusted window, so it is built last
	hashes := make([]string, 0, len(params.Candidates))
	for _, candidate := range params.Candidates {
		hashes = append(hashes, candidate.LedgerHash)
	}

	body, err := ledger.NewElectionDeployMessageBody(params.Category, params.StartsAtUnix, params.EndsAtUnix, hashes)
	if err != nil {
		return nil, err
	}

	messageBoc, err := body.Serialize()
	if err != nil {
		return nil, err
	}

	params.CandidateRoot = body.RootHex()
	params.MessageBoc = messageBoc

	logger.Info("deployment prepared",
		zap.Int64("election_id", electionID),
		zap.Int("candidates", len(params.Candidates)))
	return params, nil
}

// ConfirmDeployment records the ledger handle after the external submission
// succeeded. Confirming the same handle twice is a no-op; confirming a
// different one fails. Status is recomputed against the original stored
// window, so a skew-corrected deployment may stay "upcoming" for a while.
func (c *Coordinator) ConfirmDeployment(ctx context.Context, electionID int64, handle int64, txReference string, actor string) (*storage.Election, error) {
	election, err := c.storage.GetElection(electionID)
	if err != nil {
		return nil, err
	}

	if election.LedgerHandle == nil {
		err = c.storage.SetElectionLedgerHandle(electionID, handle)
		if errors.Is(err, storage.ErrDuplicate) {
			// lost a race against a concurrent confirmation
			election, err = c.storage.GetElection(electionID)
			if err != nil {
				return nil, err
			}
		} else if err != nil {
			return nil, err
		} else {
			election.LedgerHandle = &handle

			entry := storage.AuditEntry{
				Actor:      actor,
				Action:     "deployment_confirmed",
				ElectionID: electionID,
				Detail:     txReference,
				CreatedAt:  c.clock.Now().Unix(),
			}
			if err := c.storage.AppendAuditEntry(&entry); err != nil {
				return nil, err
			}
		}
	}

	if *election.LedgerHandle != handle {
		return nil, ErrAlreadyDeployed
	}

	status := election.DeriveStatus(c.clock.Now())
	if status != election.Status {
		if err := c.storage.UpdateElectionStatus(electionID, status); err != nil {
			return nil, err
		}
		election.Status = status
	}

	logger.Info("deployment confirmed",
		zap.Int64("election_id", electionID),
		zap.Int64("ledger_handle", handle),
		zap.String("tx_hash", txReference),
		zap.String("actor", actor))
	return election, nil
}
