package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"backend/internal/deployment"
	"backend/internal/identity"
	"backend/internal/logger"
	"backend/internal/storage"
	"backend/internal/voting"

	"go.uber.org/zap"
)

// Stable error codes exposed to clients. Raw storage or ledger errors never
// cross this boundary.
const (
	codeNotAuthenticated  = "NOT_AUTHENTICATED"
	codeForbidden         = "FORBIDDEN"
	codeBadRequest        = "BAD_REQUEST"
	codeNotFound          = "NOT_FOUND"
	codeAlreadyVoted      = "ALREADY_VOTED"
	codeElectionNotActive = "ELECTION_NOT_ACTIVE"
	codeTokenInvalid      = "TOKEN_INVALID_OR_EXPIRED"
	codeMissingProof      = "MISSING_PROOF"
	codeAlreadyDeployed   = "ALREADY_DEPLOYED"
	codeNotDeployable     = "ELECTION_NOT_DEPLOYABLE"
	codeNothingToReset    = "NOTHING_TO_RESET"
	codeIdentityConflict  = "IDENTITY_HASH_CONFLICT"
	codeRateLimited       = "RATE_LIMITED"
	codeInternal          = "INTERNAL_ERROR"
)

func writeJSON(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, Response{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string, message string) {
	writeJSON(w, status, Response{
		Success: false,
		Error: &ErrorDTO{
			Code:      code,
			Message:   message,
			RequestID: requestIDFromContext(r.Context()),
			Timestamp: time.Now().Unix(),
		},
	})
}

// writeDomainError translates a domain sentinel into a status and stable
// error code.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, voting.ErrAlreadyVoted):
		writeError(w, r, http.StatusConflict, codeAlreadyVoted, "voter has already voted in this election")
	case errors.Is(err, voting.ErrElectionNotActive):
		writeError(w, r, http.StatusConflict, codeElectionNotActive, "election is not active")
	case errors.Is(err, voting.ErrTokenInvalid):
		writeError(w, r, http.StatusBadRequest, codeTokenInvalid, "voting token is invalid or expired")
	case errors.Is(err, voting.ErrMissingProof):
		writeError(w, r, http.StatusBadRequest, codeMissingProof, "ledger transaction hash is required")
	case errors.Is(err, voting.ErrNothingToReset):
		writeError(w, r, http.StatusNotFound, codeNothingToReset, "no participation record to reset")
	case errors.Is(err, deployment.ErrAlreadyDeployed):
		writeError(w, r, http.StatusConflict, codeAlreadyDeployed, "election is already deployed with a different handle")
	case errors.Is(err, deployment.ErrNotDeployable):
		writeError(w, r, http.StatusUnprocessableEntity, codeNotDeployable, "election needs at least two candidates")
	case errors.Is(err, identity.ErrHashMismatch):
		writeError(w, r, http.StatusConflict, codeIdentityConflict, "candidate identity hash conflict")
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, r, http.StatusNotFound, codeNotFound, "record not found")
	default:
		logger.Error("unhandled error on request",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, codeInternal, "internal error")
	}
}

// decodeJSON rejects unknown fields and trailing garbage; loosely shaped
// payloads do not make it past the boundary.
func decodeJSON(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return err
	}

	if decoder.More() {
		return errors.New("unexpected trailing data in request body")
	}

	return nil
}
