package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"rentledger/escrow"
)

type resolutionResponse struct {
	Winner       string `json:"winner"`
	RefundTenant bool   `json:"refundTenant"`
	ResolvedAt   string `json:"resolvedAt"`
}

type disputeResponse struct {
	AgreementID   int64               `json:"agreementId"`
	Initiator     string              `json:"initiator"`
	Reason        string              `json:"reason"`
	Evidence      []string            `json:"evidence"`
	CreatedAt     string              `json:"createdAt"`
	IsRentDispute bool                `json:"isRentDispute"`
	Resolution    *resolutionResponse `json:"resolution,omitempty"`
}

func toDisputeResponse(d escrow.Dispute) disputeResponse {
	out := disputeResponse{
		AgreementID:   int64(d.AgreementID),
		Initiator:     string(d.Initiator),
		Reason:        d.Reason,
		Evidence:      d.Evidence,
		CreatedAt:     d.CreatedAt.Format(time.RFC3339),
		IsRentDispute: d.IsRentDispute,
	}
	if out.Evidence == nil {
		out.Evidence = []string{}
	}
	if d.Resolution != nil {
		out.Resolution = &resolutionResponse{
			Winner:       string(d.Resolution.Winner),
			RefundTenant: d.Resolution.RefundTenant,
			ResolvedAt:   d.Resolution.ResolvedAt.Format(time.RFC3339),
		}
	}
	return out
}

type raiseDisputeRequest struct {
	Reason      string `json:"reason"`
	EvidenceRef string `json:"evidenceRef"`
}

func (s *Server) handleRaiseDispute(w http.ResponseWriter, r *http.Request) {
	id, err := agreementIDParam(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	var req raiseDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	d, err := s.arbitrator.Raise(r.Context(), id, escrow.Actor(callerID(r.Context())), req.Reason, req.EvidenceRef)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toDisputeResponse(d))
}

func (s *Server) handleGetDispute(w http.ResponseWriter, r *http.Request) {
	id, err := agreementIDParam(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	d, err := s.arbitrator.Get(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toDisputeResponse(d))
}

type submitEvidenceRequest struct {
	EvidenceRef string `json:"evidenceRef"`
}

func (s *Server) handleSubmitEvidence(w http.ResponseWriter, r *http.Request) {
	id, err := agreementIDParam(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	var req submitEvidenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	d, err := s.arbitrator.SubmitEvidence(r.Context(), id, escrow.Actor(callerID(r.Context())), req.EvidenceRef)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toDisputeResponse(d))
}

type resolveDisputeRequest struct {
	RefundTenant bool `json:"refundTenant"`
}

type rulingResponse struct {
	Winner        string `json:"winner"`
	Status        string `json:"status"`
	TenantRefund  int64  `json:"tenantRefund"`
	LandlordShare int64  `json:"landlordShare"`
	PlatformFee   int64  `json:"platformFee"`
}

func (s *Server) handleResolveDispute(w http.ResponseWriter, r *http.Request) {
	id, err := agreementIDParam(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	var req resolveDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	ctx := r.Context()
	ruling, err := s.arbitrator.Resolve(ctx, id, escrow.Actor(callerID(ctx)), escrow.Role(callerRole(ctx)), req.RefundTenant)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rulingResponse{
		Winner:        string(ruling.Winner),
		Status:        string(ruling.Status),
		TenantRefund:  ruling.TenantRefund,
		LandlordShare: ruling.LandlordShare,
		PlatformFee:   ruling.PlatformFee,
	})
}
