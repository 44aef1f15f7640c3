package api

import (
	"net/http"
	"strconv"
	"time"

	"backend/internal/storage"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().Unix(),
	})
}

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	voterID, ok := s.requireVoter(w, r)
	if !ok {
		return
	}

	var request IssueTokenRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "malformed request body")
		return
	}
	if err := request.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	token, err := s.voting.Issue(r.Context(), voterID, request.ElectionID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, IssueTokenResponse{Token: token})
}

func (s *Server) handleVerifyToken(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireVoter(w, r); !ok {
		return
	}

	var request VerifyTokenRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "malformed request body")
		return
	}
	if err := request.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	valid := s.voting.Validate(request.Token, request.ElectionID)
	writeData(w, http.StatusOK, VerifyTokenResponse{Valid: valid})
}

func (s *Server) handleUseToken(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireVoter(w, r); !ok {
		return
	}

	var request UseTokenRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "malformed request body")
		return
	}
	if err := request.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	err := s.voting.Consume(r.Context(), request.Token, request.ElectionID, request.TxHash)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, nil)
}

func (s *Server) handleResetVote(w http.ResponseWriter, r *http.Request) {
	voterID, ok := s.requireVoter(w, r)
	if !ok {
		return
	}

	var request ResetVoteRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "malformed request body")
		return
	}
	if err := request.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	// resetting another voter's participation needs the admin role
	target := voterID
	if request.VoterID != "" && request.VoterID != voterID {
		if _, role := voterIdentity(r); role != roleAdmin {
			writeError(w, r, http.StatusForbidden, codeForbidden, "admin role required to reset another voter")
			return
		}
		target = request.VoterID
	}

	if err := s.voting.Reset(r.Context(), target, request.ElectionID, request.Reason); err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, nil)
}

func (s *Server) handlePrepareDeployment(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	electionID, ok := electionIDFromPath(w, r)
	if !ok {
		return
	}

	params, err := s.coordinator.PrepareDeployment(r.Context(), electionID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	response := PrepareDeploymentResponse{DeployParams: params}
	if params.StartAdjusted {
		response.AdjustedStartDate = &params.StartsAtUnix
	}

	writeData(w, http.StatusOK, response)
}

func (s *Server) handleConfirmDeployment(w http.ResponseWriter, r *http.Request) {
	adminID, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}

	electionID, ok := electionIDFromPath(w, r)
	if !ok {
		return
	}

	var request ConfirmDeploymentRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "malformed request body")
		return
	}
	if err := request.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	election, err := s.coordinator.ConfirmDeployment(r.Context(), electionID, request.LedgerHandle, request.TxHash, adminID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, electionToDTO(election))
}

func (s *Server) handleElectionResults(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireVoter(w, r); !ok {
		return
	}

	electionID, ok := electionIDFromPath(w, r)
	if !ok {
		return
	}

	result, err := s.reconciler.GetResults(r.Context(), electionID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, result)
}

func (s *Server) handleAllResults(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	all, err := s.reconciler.GetAllResults(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, all)
}

func (s *Server) requireVoter(w http.ResponseWriter, r *http.Request) (string, bool) {
	voterID, _ := voterIdentity(r)
	if voterID == "" {
		writeError(w, r, http.StatusUnauthorized, codeNotAuthenticated, "authentication required")
		return "", false
	}

	return voterID, true
}

func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) (string, bool) {
	voterID, role := voterIdentity(r)
	if voterID == "" {
		writeError(w, r, http.StatusUnauthorized, codeNotAuthenticated, "authentication required")
		return "", false
	}

	if role != roleAdmin {
		writeError(w, r, http.StatusForbidden, codeForbidden, "admin role required")
		return "", false
	}

	return voterID, true
}

func electionIDFromPath(w http.ResponseWriter, r *http.Request) (int64, bool) {
	electionID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || electionID <= 0 {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "invalid election id")
		return 0, false
	}

	return electionID, true
}

func electionToDTO(election *storage.Election) ElectionDTO {
	return ElectionDTO{
		ID:               election.ID,
		Name:             election.Name,
		PositionCategory: election.PositionCategory,
		StartsAt:         election.StartsAt,
		EndsAt:           election.EndsAt,
		Status:           election.Status,
		LedgerHandle:     election.LedgerHandle,
	}
}
