package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"rentledger/auth"
	"rentledger/escrow"
)

type agreementResponse struct {
	ID                  int64  `json:"id"`
	PropertyID          int64  `json:"propertyId"`
	Tenant              string `json:"tenant"`
	Landlord            string `json:"landlord"`
	DepositAmount       int64  `json:"depositAmount"`
	MonthlyRent         int64  `json:"monthlyRent"`
	RentIntervalSeconds int64  `json:"rentIntervalSeconds"`
	StartDate           string `json:"startDate"`
	EndDate             string `json:"endDate"`
	CreatedAt           string `json:"createdAt"`
	Status              string `json:"status"`
	MetadataHash        string `json:"metadataHash"`
	TenantConfirmed     bool   `json:"tenantConfirmed"`
	LandlordConfirmed   bool   `json:"landlordConfirmed"`
	DisputeDeadline     string `json:"disputeDeadline,omitempty"`
	NextRentDueDate     string `json:"nextRentDueDate"`
	TotalRentPaid       int64  `json:"totalRentPaid"`
}

func toAgreementResponse(a escrow.RentalAgreement) agreementResponse {
	return agreementResponse{
		ID:                  int64(a.ID),
		PropertyID:          int64(a.PropertyID),
		Tenant:              string(a.Tenant),
		Landlord:            string(a.Landlord),
		DepositAmount:       a.DepositAmount,
		MonthlyRent:         a.MonthlyRent,
		RentIntervalSeconds: int64(a.RentInterval.Seconds()),
		StartDate:           a.StartDate.Format(time.RFC3339),
		EndDate:             a.EndDate.Format(time.RFC3339),
		CreatedAt:           a.CreatedAt.Format(time.RFC3339),
		Status:              string(a.Status),
		MetadataHash:        a.MetadataHash,
		TenantConfirmed:     a.TenantConfirmed,
		LandlordConfirmed:   a.LandlordConfirmed,
		DisputeDeadline:     formatTime(a.DisputeDeadline),
		NextRentDueDate:     a.NextRentDueDate.Format(time.RFC3339),
		TotalRentPaid:       a.TotalRentPaid,
	}
}

type paymentResponse struct {
	AgreementID int64  `json:"agreementId"`
	Seq         int    `json:"seq"`
	Amount      int64  `json:"amount"`
	PaidDate    string `json:"paidDate"`
	PeriodStart string `json:"periodStart"`
	PeriodEnd   string `json:"periodEnd"`
	Status      string `json:"status"`
}

func toPaymentResponse(p escrow.RentPayment) paymentResponse {
	return paymentResponse{
		AgreementID: int64(p.AgreementID),
		Seq:         p.Seq,
		Amount:      p.Amount,
		PaidDate:    p.PaidDate.Format(time.RFC3339),
		PeriodStart: p.PeriodStart.Format(time.RFC3339),
		PeriodEnd:   p.PeriodEnd.Format(time.RFC3339),
		Status:      string(p.Status),
	}
}

type settlementResponse struct {
	Status        string `json:"status"`
	TenantRefund  int64  `json:"tenantRefund"`
	LandlordShare int64  `json:"landlordShare"`
	PlatformFee   int64  `json:"platformFee"`
	ReceiptID     string `json:"receiptId,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func agreementIDParam(r *http.Request) (escrow.AgreementID, error) {
	raw := chi.URLParam(r, "agreementID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid agreement id %q", raw)
	}
	return escrow.AgreementID(id), nil
}

type createAgreementRequest struct {
	PropertyID          int64  `json:"propertyId"`
	Landlord            string `json:"landlord"`
	DepositAmount       int64  `json:"depositAmount"`
	MonthlyRent         int64  `json:"monthlyRent"`
	RentIntervalSeconds int64  `json:"rentIntervalSeconds"`
	StartDate           string `json:"startDate"`
	EndDate             string `json:"endDate"`
	MetadataHash        string `json:"metadataHash"`
}

func (s *Server) handleCreateAgreement(w http.ResponseWriter, r *http.Request) {
	var req createAgreementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartDate)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "startDate must be RFC3339"})
		return
	}
	end, err := time.Parse(time.RFC3339, req.EndDate)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "endDate must be RFC3339"})
		return
	}

	tenant := escrow.Actor(callerID(r.Context()))
	a, err := s.escrowService.CreateAgreement(r.Context(), tenant, escrow.CreateParams{
		PropertyID:    escrow.PropertyID(req.PropertyID),
		Landlord:      escrow.Actor(req.Landlord),
		DepositAmount: req.DepositAmount,
		MonthlyRent:   req.MonthlyRent,
		RentInterval:  time.Duration(req.RentIntervalSeconds) * time.Second,
		StartDate:     start,
		EndDate:       end,
		MetadataHash:  req.MetadataHash,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toAgreementResponse(a))
}

func (s *Server) handleListAgreements(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := escrow.Actor(callerID(ctx))

	role := escrow.RoleTenant
	if callerRole(ctx) == auth.RoleLandlord {
		role = escrow.RoleLandlord
	}
	if raw := r.URL.Query().Get("role"); raw != "" {
		role = escrow.Role(raw)
	}
	// Admins may inspect any actor's agreements.
	if raw := r.URL.Query().Get("actor"); raw != "" {
		if callerRole(ctx) != auth.RoleAdmin {
			s.writeJSON(w, http.StatusForbidden, errorResponse{Error: "actor filter is admin only"})
			return
		}
		actor = escrow.Actor(raw)
	}

	items, err := s.escrowService.ListAgreements(ctx, actor, role)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	out := make([]agreementResponse, 0, len(items))
	for _, a := range items {
		out = append(out, toAgreementResponse(a))
	}
	s.writeJSON(w, http.StatusOK, struct {
		Items []agreementResponse `json:"items"`
		Total int                 `json:"total"`
	}{Items: out, Total: len(out)})
}

func (s *Server) handleGetAgreement(w http.ResponseWriter, r *http.Request) {
	id, err := agreementIDParam(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	a, err := s.escrowService.GetAgreement(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toAgreementResponse(a))
}

// handleConfirm routes the confirmation to the side matching the caller's
// role claim; standing on the agreement itself is checked by the service.
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	id, err := agreementIDParam(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	caller := escrow.Actor(callerID(r.Context()))

	var a escrow.RentalAgreement
	switch callerRole(r.Context()) {
	case auth.RoleTenant:
		a, err = s.escrowService.TenantConfirm(r.Context(), id, caller)
	case auth.RoleLandlord:
		a, err = s.escrowService.LandlordConfirm(r.Context(), id, caller)
	default:
		s.writeJSON(w, http.StatusForbidden, errorResponse{Error: "only tenants and landlords confirm agreements"})
		return
	}
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toAgreementResponse(a))
}

type payRentRequest struct {
	Amount       int64  `json:"amount"`
	MetadataHash string `json:"metadataHash"`
}

type payRentResponse struct {
	Payment        paymentResponse `json:"payment"`
	LandlordShare  int64           `json:"landlordShare"`
	PlatformFee    int64           `json:"platformFee"`
	RefundToTenant int64           `json:"refundToTenant"`
	SubsidyPaid    int64           `json:"subsidyPaid"`
	ReceiptID      string          `json:"receiptId"`
}

func (s *Server) handlePayRent(w http.ResponseWriter, r *http.Request) {
	id, err := agreementIDParam(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	var req payRentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	caller := escrow.Actor(callerID(r.Context()))
	res, err := s.escrowService.PayRent(r.Context(), id, caller, req.Amount, req.MetadataHash)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, payRentResponse{
		Payment:        toPaymentResponse(res.Payment),
		LandlordShare:  res.LandlordShare,
		PlatformFee:    res.PlatformFee,
		RefundToTenant: res.RefundToTenant,
		SubsidyPaid:    res.SubsidyPaid,
		ReceiptID:      res.ReceiptID,
	})
}

type overdueResponse struct {
	DaysOverdue   int  `json:"daysOverdue"`
	DisputeRaised bool `json:"disputeRaised"`
}

func (s *Server) handleOverdueCheck(w http.ResponseWriter, r *http.Request) {
	id, err := agreementIDParam(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	ctx := r.Context()
	res, err := s.escrowService.CheckRentOverdue(ctx, id, escrow.Actor(callerID(ctx)), escrow.Role(callerRole(ctx)))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, overdueResponse{
		DaysOverdue:   res.DaysOverdue,
		DisputeRaised: res.DisputeRaised,
	})
}

func (s *Server) handleReleaseDeposit(w http.ResponseWriter, r *http.Request) {
	id, err := agreementIDParam(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	ctx := r.Context()
	res, err := s.escrowService.ReleaseDeposit(ctx, id, escrow.Actor(callerID(ctx)), escrow.Role(callerRole(ctx)))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, settlementResponse{
		Status:        string(res.Status),
		TenantRefund:  res.TenantRefund,
		LandlordShare: res.LandlordShare,
		PlatformFee:   res.PlatformFee,
		ReceiptID:     res.ReceiptID,
	})
}

func (s *Server) handleCancelAgreement(w http.ResponseWriter, r *http.Request) {
	id, err := agreementIDParam(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	res, err := s.escrowService.CancelAgreement(r.Context(), id, escrow.Actor(callerID(r.Context())))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, settlementResponse{
		Status:       string(res.Status),
		TenantRefund: res.TenantRefund,
	})
}

type terminateRequest struct {
	Refund int64 `json:"refund"`
}

func (s *Server) handleTerminateAgreement(w http.ResponseWriter, r *http.Request) {
	id, err := agreementIDParam(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	var req terminateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	ctx := r.Context()
	res, err := s.escrowService.TerminateAgreement(ctx, id, escrow.Actor(callerID(ctx)), escrow.Role(callerRole(ctx)), req.Refund)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, settlementResponse{
		Status:        string(res.Status),
		TenantRefund:  res.TenantRefund,
		LandlordShare: res.LandlordShare,
		PlatformFee:   res.PlatformFee,
	})
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	id, err := agreementIDParam(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	items, err := s.escrowService.ListPayments(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	out := make([]paymentResponse, 0, len(items))
	for _, p := range items {
		out = append(out, toPaymentResponse(p))
	}
	s.writeJSON(w, http.StatusOK, struct {
		Items []paymentResponse `json:"items"`
		Total int               `json:"total"`
	}{Items: out, Total: len(out)})
}

type breakdownResponse struct {
	DepositFee  int64 `json:"depositFee"`
	RentFee     int64 `json:"rentFee"`
	LandlordNet int64 `json:"landlordNet"`
}

func (s *Server) handleFeePreview(w http.ResponseWriter, r *http.Request) {
	id, err := agreementIDParam(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	b, err := s.escrowService.FeePreview(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, breakdownResponse{
		DepositFee:  b.DepositFee,
		RentFee:     b.RentFee,
		LandlordNet: b.LandlordNet,
	})
}
