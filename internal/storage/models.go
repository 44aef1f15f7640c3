package storage

import "time"

type ElectionStatus = string

const (
	StatusUpcoming  ElectionStatus = "upcoming"
	StatusActive    ElectionStatus = "active"
	StatusCompleted ElectionStatus = "completed"
)

type Election struct {
	ID                int64  `gorm:"primaryKey"`
	Name              string `gorm:"not null"`
	PositionCategory  string `gorm:"not null"`
	Description       string
	EligibleFaculties string
	StartsAt          int64          `gorm:"not null"`
	EndsAt            int64          `gorm:"not null"`
	Status            ElectionStatus `gorm:"not null;default:upcoming"`
	LedgerHandle      *int64
}

// DeriveStatus computes the lifecycle status from the time window. An
// election never becomes active before its ledger handle is assigned, no
// matter what the clock says.
func (e *Election) DeriveStatus(now time.Time) ElectionStatus {
	unix := now.Unix()

	if unix >= e.EndsAt {
		return StatusCompleted
	}

	if unix >= e.StartsAt && e.LedgerHandle != nil {
		return StatusActive
	}

	return StatusUpcoming
}

type Candidate struct {
	ID         int64   `gorm:"primaryKey"`
	StudentID  string  `gorm:"uniqueIndex;not null"`
	FullName   string  `gorm:"not null"`
	LedgerHash *string `gorm:"uniqueIndex"`
}

type ElectionCandidate struct {
	ID            int64 `gorm:"primaryKey"`
	ElectionID    int64 `gorm:"uniqueIndex:idx_election_candidate;not null"`
	CandidateID   int64 `gorm:"uniqueIndex:idx_election_candidate;not null"`
	RunningMateID *int64
}

type VotingToken struct {
	Token      string `gorm:"primaryKey"`
	VoterID    string `gorm:"index:idx_token_voter_election;not null"`
	ElectionID int64  `gorm:"index:idx_token_voter_election;not null"`
	Used       bool   `gorm:"not null;default:false"`
	ExpiresAt  int64  `gorm:"not null"`
}

// ParticipationRecord is voter-scoped, not wallet-scoped. The unique index
// on (voter_id, election_id) is the serialization point for the vote-once
// guarantee.
type ParticipationRecord struct {
	ID         int64  `gorm:"primaryKey"`
	VoterID    string `gorm:"uniqueIndex:idx_participation_voter_election;not null"`
	ElectionID int64  `gorm:"uniqueIndex:idx_participation_voter_election;not null"`
	RecordedAt int64  `gorm:"not null"`
}

type IdentityHashEntry struct {
	StudentID  string `gorm:"primaryKey"`
	LedgerHash string `gorm:"uniqueIndex;not null"`
}

type AuditEntry struct {
	ID         int64  `gorm:"primaryKey"`
	Actor      string `gorm:"not null"`
	Action     string `gorm:"not null"`
	ElectionID int64  `gorm:"not null"`
	Detail     string
	CreatedAt  int64 `gorm:"not null"`
}
