package api

import "fmt"

// Response is the envelope for every API reply.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorDTO   `json:"error,omitempty"`
}

type ErrorDTO struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

type IssueTokenRequest struct {
	ElectionID int64 `json:"electionId"`
}

func (r *IssueTokenRequest) Validate() error {
	if r.ElectionID <= 0 {
		return fmt.Errorf("electionId is required")
	}
	return nil
}

type IssueTokenResponse struct {
	Token string `json:"token"`
}

type VerifyTokenRequest struct {
	Token      string `json:"token"`
	ElectionID int64  `json:"electionId"`
}

func (r *VerifyTokenRequest) Validate() error {
	if r.Token == "" {
		return fmt.Errorf("token is required")
	}
	if r.ElectionID <= 0 {
		return fmt.Errorf("electionId is required")
	}
	return nil
}

type VerifyTokenResponse struct {
	Valid bool `json:"valid"`
}

type UseTokenRequest struct {
	Token      string `json:"token"`
	ElectionID int64  `json:"electionId"`
	TxHash     string `json:"txHash"`
}

func (r *UseTokenRequest) Validate() error {
	if r.Token == "" {
		return fmt.Errorf("token is required")
	}
	if r.ElectionID <= 0 {
		return fmt.Errorf("electionId is required")
	}
	return nil
}

type ResetVoteRequest struct {
	ElectionID int64  `json:"electionId"`
	VoterID    string `json:"voterId,omitempty"`
	Reason     string `json:"reason"`
}

func (r *ResetVoteRequest) Validate() error {
	if r.ElectionID <= 0 {
		return fmt.Errorf("electionId is required")
	}
	if r.Reason == "" {
		return fmt.Errorf("reason is required")
	}
	return nil
}

type ConfirmDeploymentRequest struct {
	LedgerHandle int64  `json:"ledgerHandle"`
	TxHash       string `json:"txHash"`
}

func (r *ConfirmDeploymentRequest) Validate() error {
	if r.LedgerHandle <= 0 {
		return fmt.Errorf("ledgerHandle is required")
	}
	if r.TxHash == "" {
		return fmt.Errorf("txHash is required")
	}
	return nil
}

type ElectionDTO struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	PositionCategory string `json:"positionCategory"`
	StartsAt         int64  `json:"startsAt"`
	EndsAt           int64  `json:"endsAt"`
	Status           string `json:"status"`
	LedgerHandle     *int64 `json:"ledgerHandle,omitempty"`
}

type PrepareDeploymentResponse struct {
	DeployParams      interface{} `json:"deployParams"`
	AdjustedStartDate *int64      `json:"adjustedStartDate,omitempty"`
}
