package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"rentledger/auth"
	"rentledger/escrow"
	"rentledger/receipts"
)

type userResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"fullName"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt"`
}

func toUserResponse(u auth.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Email == "" || req.FullName == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "email and full_name are required"})
		return
	}
	switch auth.Role(strings.TrimSpace(string(req.Role))) {
	case "", auth.RoleTenant, auth.RoleLandlord, auth.RoleAdmin:
	default:
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid role"})
		return
	}

	user, err := s.authService.Register(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toUserResponse(*user))
}

type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	res, err := s.authService.Login(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, loginResponse{
		Token: res.Token,
		User:  toUserResponse(res.User),
	})
}

type feesResponse struct {
	PlatformFeePercent int64 `json:"platformFeePercent"`
	RentFeePercent     int64 `json:"rentFeePercent"`
}

func (s *Server) handleGetFees(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, feesResponse{
		PlatformFeePercent: s.schedule.PlatformFeePercent(),
		RentFeePercent:     s.schedule.RentProcessingFeePercent(),
	})
}

type updateFeesRequest struct {
	PlatformFeePercent *int64 `json:"platformFeePercent"`
	RentFeePercent     *int64 `json:"rentFeePercent"`
}

func (s *Server) handleUpdateFees(w http.ResponseWriter, r *http.Request) {
	if callerRole(r.Context()) != auth.RoleAdmin {
		s.writeJSON(w, http.StatusForbidden, errorResponse{Error: "admin role required"})
		return
	}
	var req updateFeesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	if req.PlatformFeePercent != nil {
		if err := s.schedule.SetPlatformFeePercent(*req.PlatformFeePercent); err != nil {
			s.writeDomainError(w, r, err)
			return
		}
	}
	if req.RentFeePercent != nil {
		if err := s.schedule.SetRentProcessingFeePercent(*req.RentFeePercent); err != nil {
			s.writeDomainError(w, r, err)
			return
		}
	}
	s.writeJSON(w, http.StatusOK, feesResponse{
		PlatformFeePercent: s.schedule.PlatformFeePercent(),
		RentFeePercent:     s.schedule.RentProcessingFeePercent(),
	})
}

type receiptResponse struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	Tenant       string `json:"tenant"`
	Landlord     string `json:"landlord"`
	PropertyID   int64  `json:"propertyId,omitempty"`
	AgreementID  int64  `json:"agreementId,omitempty"`
	Amount       int64  `json:"amount"`
	RentAmount   int64  `json:"rentAmount,omitempty"`
	StartDate    string `json:"startDate,omitempty"`
	EndDate      string `json:"endDate,omitempty"`
	PaidDate     string `json:"paidDate,omitempty"`
	PeriodStart  string `json:"periodStart,omitempty"`
	PeriodEnd    string `json:"periodEnd,omitempty"`
	MetadataHash string `json:"metadataHash,omitempty"`
	IssuedAt     string `json:"issuedAt"`
}

func toReceiptResponse(rc receipts.Receipt) receiptResponse {
	return receiptResponse{
		ID:           rc.ID,
		Kind:         string(rc.Kind),
		Tenant:       string(rc.Tenant),
		Landlord:     string(rc.Landlord),
		PropertyID:   int64(rc.PropertyID),
		AgreementID:  int64(rc.AgreementID),
		Amount:       rc.Amount,
		RentAmount:   rc.RentAmount,
		StartDate:    formatTime(rc.StartDate),
		EndDate:      formatTime(rc.EndDate),
		PaidDate:     formatTime(rc.PaidDate),
		PeriodStart:  formatTime(rc.PeriodStart),
		PeriodEnd:    formatTime(rc.PeriodEnd),
		MetadataHash: rc.MetadataHash,
		IssuedAt:     rc.IssuedAt.Format(time.RFC3339),
	}
}

func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := escrow.Actor(callerID(ctx))
	// Admins may pull another tenant's receipt trail.
	if raw := r.URL.Query().Get("tenant"); raw != "" {
		if callerRole(ctx) != auth.RoleAdmin {
			s.writeJSON(w, http.StatusForbidden, errorResponse{Error: "tenant filter is admin only"})
			return
		}
		tenant = escrow.Actor(raw)
	}

	items, err := s.receiptLedger.ListByTenant(ctx, tenant)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	out := make([]receiptResponse, 0, len(items))
	for _, rc := range items {
		out = append(out, toReceiptResponse(rc))
	}
	s.writeJSON(w, http.StatusOK, struct {
		Items []receiptResponse `json:"items"`
		Total int               `json:"total"`
	}{Items: out, Total: len(out)})
}

func (s *Server) handleAgreementReceipts(w http.ResponseWriter, r *http.Request) {
	id, err := agreementIDParam(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	items, err := s.receiptLedger.ListByAgreement(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	out := make([]receiptResponse, 0, len(items))
	for _, rc := range items {
		out = append(out, toReceiptResponse(rc))
	}
	s.writeJSON(w, http.StatusOK, struct {
		Items []receiptResponse `json:"items"`
		Total int               `json:"total"`
	}{Items: out, Total: len(out)})
}

type subsidyResponse struct {
	Balance  int64 `json:"balance"`
	Eligible bool  `json:"eligible"`
}

func (s *Server) handleSubsidyBalance(w http.ResponseWriter, r *http.Request) {
	caller := escrow.Actor(callerID(r.Context()))
	s.writeJSON(w, http.StatusOK, subsidyResponse{
		Balance:  s.subsidyPool.Balance(),
		Eligible: s.subsidyPool.Eligible(caller),
	})
}

type fundSubsidyRequest struct {
	Amount int64 `json:"amount"`
}

func (s *Server) handleFundSubsidy(w http.ResponseWriter, r *http.Request) {
	var req fundSubsidyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if err := s.subsidyPool.Fund(r.Context(), req.Amount); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int64{"balance": s.subsidyPool.Balance()})
}

type grantSubsidyRequest struct {
	Tenant string `json:"tenant"`
}

func (s *Server) handleGrantSubsidy(w http.ResponseWriter, r *http.Request) {
	var req grantSubsidyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Tenant == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "tenant is required"})
		return
	}

	ctx := r.Context()
	if err := s.subsidyPool.Grant(ctx, escrow.Role(callerRole(ctx)), escrow.Actor(req.Tenant)); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"tenant": req.Tenant, "eligible": true})
}

func (s *Server) handleRevokeSubsidy(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	if tenant == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "tenant is required"})
		return
	}

	ctx := r.Context()
	if err := s.subsidyPool.Revoke(ctx, escrow.Role(callerRole(ctx)), escrow.Actor(tenant)); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type balanceResponse struct {
	Actor   string `json:"actor"`
	Balance int64  `json:"balance"`
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	actor := chi.URLParam(r, "actor")
	ctx := r.Context()
	if actor != callerID(ctx) && callerRole(ctx) != auth.RoleAdmin {
		s.writeJSON(w, http.StatusForbidden, errorResponse{Error: "cannot view another actor's balance"})
		return
	}
	s.writeJSON(w, http.StatusOK, balanceResponse{
		Actor:   actor,
		Balance: s.bankLedger.Balance(escrow.Actor(actor)),
	})
}
