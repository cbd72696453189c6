package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"rentledger/escrow"
	"rentledger/registry"
)

type propertyResponse struct {
	ID           int64  `json:"id"`
	Owner        string `json:"owner"`
	Eligible     bool   `json:"eligible"`
	MetadataHash string `json:"metadataHash"`
	CreatedAt    string `json:"createdAt"`
}

func toPropertyResponse(p registry.Property) propertyResponse {
	return propertyResponse{
		ID:           int64(p.ID),
		Owner:        string(p.Owner),
		Eligible:     p.Eligible,
		MetadataHash: p.MetadataHash,
		CreatedAt:    p.CreatedAt.Format(time.RFC3339),
	}
}

func propertyIDParam(r *http.Request) (escrow.PropertyID, error) {
	raw := chi.URLParam(r, "propertyID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid property id %q", raw)
	}
	return escrow.PropertyID(id), nil
}

type registerPropertyRequest struct {
	ID           int64  `json:"id"`
	MetadataHash string `json:"metadataHash"`
}

func (s *Server) handleRegisterProperty(w http.ResponseWriter, r *http.Request) {
	var req registerPropertyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.ID <= 0 {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "property id must be positive"})
		return
	}

	owner := escrow.Actor(callerID(r.Context()))
	p, err := s.propertyReg.Register(r.Context(), owner, escrow.PropertyID(req.ID), req.MetadataHash)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toPropertyResponse(p))
}

func (s *Server) handleGetProperty(w http.ResponseWriter, r *http.Request) {
	id, err := propertyIDParam(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	p, err := s.propertyReg.Get(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toPropertyResponse(p))
}

type setEligibilityRequest struct {
	Eligible bool `json:"eligible"`
}

func (s *Server) handleSetEligibility(w http.ResponseWriter, r *http.Request) {
	id, err := propertyIDParam(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	var req setEligibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	ctx := r.Context()
	if err := s.propertyReg.SetEligibility(ctx, escrow.Role(callerRole(ctx)), id, req.Eligible); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	p, err := s.propertyReg.Get(ctx, id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toPropertyResponse(p))
}

type quoteResponse struct {
	PropertyID int64  `json:"propertyId"`
	Eligible   bool   `json:"eligible"`
	Owner      string `json:"owner,omitempty"`
	ListingFee int64  `json:"listingFee"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	id, err := propertyIDParam(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	q, err := s.escrowService.Quote(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, quoteResponse{
		PropertyID: int64(q.PropertyID),
		Eligible:   q.Eligible,
		Owner:      string(q.Owner),
		ListingFee: q.ListingFee,
	})
}
