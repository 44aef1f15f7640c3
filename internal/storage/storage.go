package storage

import "errors"

var (
	ErrNotFound  = errors.New("storage: record not found")
	ErrDuplicate = errors.New("storage: duplicate record")
	ErrTokenUsed = errors.New("storage: voting token already used")
)

type Storage interface {
	// election
	CreateElection(election *Election) error
	GetElection(electionID int64) (*Election, error)
	GetElections() ([]*Election, error)
	UpdateElectionStatus(electionID int64, status ElectionStatus) error
	SetElectionLedgerHandle(electionID int64, handle int64) error

	// candidate
	CreateCandidate(candidate *Candidate) error
	AddElectionCandidate(association *ElectionCandidate) error
	GetElectionCandidates(electionID int64) ([]*Candidate, error)
	SetCandidateLedgerHash(candidateID int64, ledgerHash string) error

	// voting token
	CreateVotingToken(token *VotingToken) error
	GetVotingToken(token string) (*VotingToken, error)
	ConsumeVotingToken(token string, recordedAt int64) error

	// participation
	HasParticipation(voterID string, electionID int64) (bool, error)
	RecordParticipation(record *ParticipationRecord) error
	RemoveParticipation(voterID string, electionID int64) error

	// identity hash
	CreateIdentityHash(entry *IdentityHashEntry) error
	GetIdentityHashByStudentID(studentID string) (*IdentityHashEntry, error)
	GetIdentityHashByLedgerHash(ledgerHash string) (*IdentityHashEntry, error)

	// audit
	AppendAuditEntry(entry *AuditEntry) error
	GetAuditEntries(electionID int64) ([]*AuditEntry, error)
}
