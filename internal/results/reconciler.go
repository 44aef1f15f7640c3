package results

import (
	"context"
	"errors"
	"sort"
	"time"

	"backend/internal/identity"
	"backend/internal/ledger"
	"backend/internal/logger"
	"backend/internal/storage"

	"go.uber.org/zap"
)

type Source = string

const (
	SourceOnChain     Source = "on_chain"
	SourceFallback    Source = "fallback"
	SourceNotDeployed Source = "not_deployed"
)

type CandidateResult struct {
	CandidateID int64  `json:"candidateId"`
	StudentID   string `json:"studentId"`
	FullName    string `json:"fullName"`
	VoteCount   int64  `json:"voteCount"`
}

type ElectionResult struct {
	ElectionID int64             `json:"electionId"`
	Source     Source            `json:"source"`
	Rows       []CandidateResult `json:"rows"`
}

// Reconciler combines on-chain tallies with off-chain candidate metadata.
// When the ledger is unreachable or does not know the election yet, it
// degrades to an all-zero off-chain tally instead of failing.
type Reconciler struct {
	storage  storage.Storage
	registry *identity.Registry
	client   ledger.Client
	timeout  time.Duration
}

func NewReconciler(store storage.Storage, registry *identity.Registry, client ledger.Client, timeout time.Duration) *Reconciler {
	return &Reconciler{
		storage:  store,
		registry: registry,
		client:   client,
		timeout:  timeout,
	}
}

func (r *Reconciler) GetResults(ctx context.Context, electionID int64) (*ElectionResult, error) {
	election, err := r.storage.GetElection(electionID)
	if err != nil {
		return nil, err
	}

	candidates, err := r.storage.GetElectionCandidates(electionID)
	if err != nil {
		return nil, err
	}

	if election.LedgerHandle == nil {
		return &ElectionResult{
			ElectionID: electionID,
			Source:     SourceNotDeployed,
			Rows:       []CandidateResult{},
		}, nil
	}

	handle := *election.LedgerHandle

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	exists, err := r.client.Exists(ctx, handle)
	if err != nil {
		logger.Warn("ledger existence check failed, serving off-chain fallback",
			zap.Int64("election_id", electionID),
			zap.Int64("ledger_handle", handle),
			zap.Error(err))
		return r.fallback(electionID, candidates), nil
	}

	if !exists {
		// not yet mined, or the handle is stale
		return r.fallback(electionID, candidates), nil
	}

	tally, err := r.client.GetTally(ctx, handle)
	if err != nil {
		logger.Warn("ledger tally fetch failed, serving off-chain fallback",
			zap.Int64("election_id", electionID),
			zap.Int64("ledger_handle", handle),
			zap.Error(err))
		return r.fallback(electionID, candidates), nil
	}

	return r.reconcile(electionID, candidates, tally), nil
}

// GetAllResults computes results for every election independently. One
// unreachable ledger handle degrades only its own election; the batch keeps
// going.
func (r *Reconciler) GetAllResults(ctx context.Context) ([]*ElectionResult, error) {
	elections, err := r.storage.GetElections()
	if err != nil {
		return nil, err
	}

	all := make([]*ElectionResult, 0, len(elections))
	for _, election := range elections {
		result, err := r.GetResults(ctx, election.ID)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			logger.Warn("skipping election in results batch",
				zap.Int64("election_id", election.ID),
				zap.Error(err))
			continue
		}

		all = append(all, result)
	}

	return all, nil
}

// reconcile maps opaque ledger identifiers back to candidates. Unresolved
// identifiers stay in the output as placeholder rows so no vote mass is
// silently dropped from the displayed total.
func (r *Reconciler) reconcile(electionID int64, candidates []*storage.Candidate, tally []ledger.TallyEntry) *ElectionResult {
	byStudent := make(map[string]*storage.Candidate, len(candidates))
	for _, candidate := range candidates {
		byStudent[candidate.StudentID] = candidate
	}

	rows := make([]CandidateResult, 0, len(candidates))
	counted := make(map[int64]bool, len(tally))

	for _, entry := range tally {
		studentID, err := r.registry.ReverseLookup(entry.OpaqueID)
		if err != nil {
			logger.Warn("unresolved opaque identifier in tally",
				zap.Int64("election_id", electionID),
				zap.String("opaque_id", entry.OpaqueID))
			rows = append(rows, CandidateResult{
				CandidateID: 0,
				StudentID:   "",
				FullName:    "unresolved " + shorten(entry.OpaqueID),
				VoteCount:   entry.Count,
			})
			continue
		}

		candidate := byStudent[studentID]
		if candidate == nil {
			rows = append(rows, CandidateResult{
				CandidateID: 0,
				StudentID:   studentID,
				FullName:    "unresolved " + shorten(entry.OpaqueID),
				VoteCount:   entry.Count,
			})
			continue
		}

		counted[candidate.ID] = true
		rows = append(rows, CandidateResult{
			CandidateID: candidate.ID,
			StudentID:   candidate.StudentID,
			FullName:    candidate.FullName,
			VoteCount:   entry.Count,
		})
	}

	// candidates the chain has no entry for yet show up with zero votes
	for _, candidate := range candidates {
		if !counted[candidate.ID] {
			rows = append(rows, CandidateResult{
				CandidateID: candidate.ID,
				StudentID:   candidate.StudentID,
				FullName:    candidate.FullName,
			})
		}
	}

	sortRows(rows)
	return &ElectionResult{
		ElectionID: electionID,
		Source:     SourceOnChain,
		Rows:       rows,
	}
}

func (r *Reconciler) fallback(electionID int64, candidates []*storage.Candidate) *ElectionResult {
	rows := make([]CandidateResult, 0, len(candidates))
	for _, candidate := range candidates {
		rows = append(rows, CandidateResult{
			CandidateID: candidate.ID,
			StudentID:   candidate.StudentID,
			FullName:    candidate.FullName,
		})
	}

	sortRows(rows)
	return &ElectionResult{
		ElectionID: electionID,
		Source:     SourceFallback,
		Rows:       rows,
	}
}

// descending vote count, ascending candidate id on ties
func sortRows(rows []CandidateResult) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].VoteCount != rows[j].VoteCount {
			return rows[i].VoteCount > rows[j].VoteCount
		}
		return rows[i].CandidateID < rows[j].CandidateID
	})
}

func shorten(opaqueID string) string {
	if len(opaqueID) <= 8 {
		return opaqueID
	}
	return opaqueID[:8]
}
