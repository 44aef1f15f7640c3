package storage

import (
	"errors"

	"backend/internal/logger"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SqliteStorage struct {
	db *gorm.DB
}

func NewSqliteStorage(path string) (*SqliteStorage, error) {
	logger.Debug("initializing database...")

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&Election{},
		&Candidate{},
		&ElectionCandidate{},
		&VotingToken{},
		&ParticipationRecord{},
		&IdentityHashEntry{},
		&AuditEntry{},
	)
	if err != nil {
		return nil, err
	}

	logger.Debug("initializing database... done")
	return &SqliteStorage{db: db}, nil
}

func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}

func (s *SqliteStorage) CreateElection(election *Election) error {
	return translateError(s.db.Create(election).Error)
}

func (s *SqliteStorage) GetElection(electionID int64) (*Election, error) {
	var election Election
	err := s.db.Where("id = ?", electionID).First(&election).Error
	if err != nil {
		return nil, translateError(err)
	}

	return &election, nil
}

func (s *SqliteStorage) GetElections() ([]*Election, error) {
	var elections []*Election
	err := s.db.Order("id asc").Find(&elections).Error
	if err != nil {
		return nil, err
	}

	return elections, nil
}

func (s *SqliteStorage) UpdateElectionStatus(electionID int64, status ElectionStatus) error {
	tx := s.db.Model(&Election{}).Where("id = ?", electionID).Update("status", status)
	if tx.Error != nil {
		return tx.Error
	}

	if tx.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// SetElectionLedgerHandle assigns the handle only when none is stored yet.
// A second assignment surfaces ErrDuplicate so the caller can decide whether
// the confirmation is an idempotent repeat or a conflicting one.
func (s *SqliteStorage) SetElectionLedgerHandle(electionID int64, handle int64) error {
	tx := s.db.Model(&Election{}).
		Where("id = ? and ledger_handle is null", electionID).
		Update("ledger_handle", handle)
	if tx.Error != nil {
		return tx.Error
	}

	if tx.RowsAffected == 0 {
		var count int64
		if err := s.db.Model(&Election{}).Where("id = ?", electionID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrDuplicate
	}

	return nil
}

func (s *SqliteStorage) CreateCandidate(candidate *Candidate) error {
	return translateError(s.db.Create(candidate).Error)
}

func (s *SqliteStorage) AddElectionCandidate(association *ElectionCandidate) error {
	return translateError(s.db.Create(association).Error)
}

func (s *SqliteStorage) GetElectionCandidates(electionID int64) ([]*Candidate, error) {
	var candidates []*Candidate
	err := s.db.Raw(`
		select c.*
		from candidates c
			join election_candidates ec on ec.candidate_id = c.id
		where ec.election_id = ?
		order by c.id
	`, electionID).Scan(&candidates).Error
	if err != nil {
		return nil, err
	}

	return candidates, nil
}

func (s *SqliteStorage) SetCandidateLedgerHash(candidateID int64, ledgerHash string) error {
	tx := s.db.Model(&Candidate{}).Where("id = ?", candidateID).Update("ledger_hash", ledgerHash)
	if tx.Error != nil {
		return translateError(tx.Error)
	}

	if tx.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *SqliteStorage) CreateVotingToken(token *VotingToken) error {
	return translateError(s.db.Create(token).Error)
}

func (s *SqliteStorage) GetVotingToken(token string) (*VotingToken, error) {
	var record VotingToken
	err := s.db.Where("token = ?", token).First(&record).Error
	if err != nil {
		return nil, translateError(err)
	}

	return &record, nil
}

// ConsumeVotingToken marks the token used and records participation in one
// transaction. A concurrent consume through a different token loses on the
// participation unique index, which rolls the whole transaction back and
// leaves this token unused.
func (s *SqliteStorage) ConsumeVotingToken(token string, recordedAt int64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var record VotingToken
		if err := tx.Where("token = ?", token).First(&record).Error; err != nil {
			return translateError(err)
		}

		mark := tx.Model(&VotingToken{}).
			Where("token = ? and used = ?", token, false).
			Update("used", true)
		if mark.Error != nil {
			return mark.Error
		}
		if mark.RowsAffected == 0 {
			return ErrTokenUsed
		}

		participation := ParticipationRecord{
			VoterID:    record.VoterID,
			ElectionID: record.ElectionID,
			RecordedAt: recordedAt,
		}
		return translateError(tx.Create(&participation).Error)
	})
}

func (s *SqliteStorage) HasParticipation(voterID string, electionID int64) (bool, error) {
	var count int64
	err := s.db.Model(&ParticipationRecord{}).
		Where("voter_id = ? and election_id = ?", voterID, electionID).
		Count(&count).Error
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

func (s *SqliteStorage) RecordParticipation(record *ParticipationRecord) error {
	return translateError(s.db.Create(record).Error)
}

func (s *SqliteStorage) RemoveParticipation(voterID string, electionID int64) error {
	tx := s.db.Where("voter_id = ? and election_id = ?", voterID, electionID).
		Delete(&ParticipationRecord{})
	if tx.Error != nil {
		return tx.Error
	}

	if tx.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// CreateIdentityHash is idempotent for an identical pair; re-persisting a
// different hash for the same student is rejected by the caller before it
// ever reaches the store.
func (s *SqliteStorage) CreateIdentityHash(entry *IdentityHashEntry) error {
	return translateError(s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "student_id"}},
		DoNothing: true,
	}).Create(entry).Error)
}

func (s *SqliteStorage) GetIdentityHashByStudentID(studentID string) (*IdentityHashEntry, error) {
	var entry IdentityHashEntry
	err := s.db.Where("student_id = ?", studentID).First(&entry).Error
	if err != nil {
		return nil, translateError(err)
	}

	return &entry, nil
}

func (s *SqliteStorage) GetIdentityHashByLedgerHash(ledgerHash string) (*IdentityHashEntry, error) {
	var entry IdentityHashEntry
	err := s.db.Where("ledger_hash = ?", ledgerHash).First(&entry).Error
	if err != nil {
		return nil, translateError(err)
	}

	return &entry, nil
}

func (s *SqliteStorage) AppendAuditEntry(entry *AuditEntry) error {
	return s.db.Create(entry).Error
}

func (s *SqliteStorage) GetAuditEntries(electionID int64) ([]*AuditEntry, error) {
	var entries []*AuditEntry
	err := s.db.Where("election_id = ?", electionID).Order("id").Find(&entries).Error
	if err != nil {
		return nil, translateError(err)
	}

	return entries, nil
}
