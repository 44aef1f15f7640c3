package voting

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"backend/internal/logger"
	"backend/internal/storage"

	clocks "github.com/vimeo/go-clocks"
	"go.uber.org/zap"
)

var (
	ErrElectionNotActive = errors.New("voting: election is not active")
	ErrAlreadyVoted      = errors.New("voting: voter already participated in this election")
	ErrTokenInvalid      = errors.New("voting: token invalid or expired")
	ErrMissingProof      = errors.New("voting: ledger transaction proof is required")
	ErrNothingToReset    = errors.New("voting: no participation record to reset")
)

const tokenBytes = 32

// Service issues and consumes one-time voting tokens. Tokens are not the
// vote-once boundary; the participation record's unique index is. Two issued
// tokens for the same voter may coexist, but only one can ever be consumed.
type Service struct {
	storage  storage.Storage
	clock    clocks.Clock
	tokenTTL time.Duration
}

func NewService(store storage.Storage, clock clocks.Clock, tokenTTL time.Duration) *Service {
	return &Service{
		storage:  store,
		clock:    clock,
		tokenTTL: tokenTTL,
	}
}

// Issue hands out a fresh token for an active election. Only the bare token
// string leaves the service.
func (s *Service) Issue(ctx context.Context, voterID string, electionID int64) (string, error) {
	election, err := s.storage.GetElection(electionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrElectionNotActive
		}
		return "", err
	}

	now := s.clock.Now()
	status := election.DeriveStatus(now)
	if status != election.Status {
		if err := s.storage.UpdateElectionStatus(electionID, status); err != nil {
			return "", err
		}
	}

	if status != storage.StatusActive {
		return "", ErrElectionNotActive
	}

	voted, err := s.storage.HasParticipation(voterID, electionID)
	if err != nil {
		return "", err
	}
	if voted {
		return "", ErrAlreadyVoted
	}

	token, err := generateToken()
	if err != nil {
		return "", err
	}

	record := storage.VotingToken{
		Token:      token,
		VoterID:    voterID,
		ElectionID: electionID,
		ExpiresAt:  now.Add(s.tokenTTL).Unix(),
	}
	if err := s.storage.CreateVotingToken(&record); err != nil {
		return "", err
	}

	logger.Info("voting token issued", zap.Int64("election_id", electionID))
	return token, nil
}

// Validate reports whether a token could currently be consumed. No side
// effects.
func (s *Service) Validate(token string, electionID int64) bool {
	record, err := s.storage.GetVotingToken(token)
	if err != nil {
		return false
	}

	return record.ElectionID == electionID &&
		!record.Used &&
		record.ExpiresAt > s.clock.Now().Unix()
}

// Consume marks the token used and records participation atomically, keyed
// on the supplied ledger transaction reference. If another token for the
// same voter won the race, the participation insert fails, the transaction
// rolls back and this token stays unused so the caller can detect the race.
func (s *Service) Consume(ctx context.Context, token string, electionID int64, proof string) error {
	if strings.TrimSpace(proof) == "" {
		return ErrMissingProof
	}

	record, err := s.storage.GetVotingToken(token)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrTokenInvalid
		}
		return err
	}

	now := s.clock.Now()
	if record.ElectionID != electionID || record.Used || record.ExpiresAt <= now.Unix() {
		return ErrTokenInvalid
	}

	err = s.storage.ConsumeVotingToken(token, now.Unix())
	switch {
	case errors.Is(err, storage.ErrDuplicate):
		return ErrAlreadyVoted
	case errors.Is(err, storage.ErrTokenUsed), errors.Is(err, storage.ErrNotFound):
		return ErrTokenInvalid
	case err != nil:
		return err
	}

	logger.Info("vote confirmed",
		zap.Int64("election_id", electionID),
		zap.String("tx_hash", proof))
	return nil
}

// Reset deletes the participation record after a confirmed-failed ledger
// submission. Spent tokens stay spent; the voter must issue a new one.
func (s *Service) Reset(ctx context.Context, voterID string, electionID int64, reason string) error {
	err := s.storage.RemoveParticipation(voterID, electionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNothingToReset
		}
		return err
	}

	entry := storage.AuditEntry{
		Actor:      voterID,
		Action:     "vote_reset",
		ElectionID: electionID,
		Detail:     reason,
		CreatedAt:  s.clock.Now().Unix(),
	}
	if err := s.storage.AppendAuditEntry(&entry); err != nil {
		return err
	}

	logger.Warn("participation reset",
		zap.Int64("election_id", electionID),
		zap.String("reason", reason))
	return nil
}

// HasVoted reports participation regardless of which ledger account the
// voter used.
func (s *Service) HasVoted(voterID string, electionID int64) (bool, error) {
	return s.storage.HasParticipation(voterID, electionID)
}

func generateToken() (string, error) {
	buffer := make([]byte, tokenBytes)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}

	return hex.EncodeToString(buffer), nil
}
