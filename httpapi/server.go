package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"rentledger/auth"
	"rentledger/bank"
	"rentledger/dispute"
	"rentledger/escrow"
	"rentledger/fees"
	"rentledger/metrics"
	"rentledger/receipts"
	"rentledger/registry"
	"rentledger/subsidy"
)

// Deps collects everything the HTTP surface needs. Log and Metrics may be nil.
type Deps struct {
	Escrow         *escrow.Service
	Disputes       *dispute.Arbitrator
	Auth           *auth.Service
	Registry       *registry.Registry
	Receipts       *receipts.Ledger
	Subsidy        *subsidy.Pool
	Bank           *bank.Ledger
	Schedule       *fees.Schedule
	Log            *zap.Logger
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
}

// Server exposes the escrow ledger over HTTP. Every route except auth,
// healthz and metrics requires a bearer token.
type Server struct {
	escrowService  *escrow.Service
	arbitrator     *dispute.Arbitrator
	authService    *auth.Service
	propertyReg    *registry.Registry
	receiptLedger  *receipts.Ledger
	subsidyPool    *subsidy.Pool
	bankLedger     *bank.Ledger
	schedule       *fees.Schedule
	log            *zap.Logger
	metrics        *metrics.Metrics
	metricsHandler http.Handler
}

func NewServer(d Deps) *Server {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		escrowService:  d.Escrow,
		arbitrator:     d.Disputes,
		authService:    d.Auth,
		propertyReg:    d.Registry,
		receiptLedger:  d.Receipts,
		subsidyPool:    d.Subsidy,
		bankLedger:     d.Bank,
		schedule:       d.Schedule,
		log:            log,
		metrics:        d.Metrics,
		metricsHandler: d.MetricsHandler,
	}
}

// Router assembles the chi mux.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(s.observeRequests)

	r.Get("/healthz", s.handleHealthz)
	if s.metricsHandler != nil {
		r.Handle("/metrics", s.metricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Route("/agreements", func(r chi.Router) {
				r.Post("/", s.handleCreateAgreement)
				r.Get("/", s.handleListAgreements)
				r.Route("/{agreementID}", func(r chi.Router) {
					r.Get("/", s.handleGetAgreement)
					r.Post("/confirm", s.handleConfirm)
					r.Post("/rent", s.handlePayRent)
					r.Post("/overdue-check", s.handleOverdueCheck)
					r.Post("/release", s.handleReleaseDeposit)
					r.Post("/cancel", s.handleCancelAgreement)
					r.Post("/terminate", s.handleTerminateAgreement)
					r.Get("/payments", s.handleListPayments)
					r.Get("/receipts", s.handleAgreementReceipts)
					r.Get("/fees", s.handleFeePreview)
					r.Route("/disputes", func(r chi.Router) {
						r.Post("/", s.handleRaiseDispute)
						r.Get("/", s.handleGetDispute)
						r.Post("/evidence", s.handleSubmitEvidence)
						r.Post("/resolve", s.handleResolveDispute)
					})
				})
			})

			r.Route("/properties", func(r chi.Router) {
				r.Post("/", s.handleRegisterProperty)
				r.Get("/{propertyID}", s.handleGetProperty)
				r.Patch("/{propertyID}/eligibility", s.handleSetEligibility)
				r.Get("/{propertyID}/quote", s.handleQuote)
			})

			r.Get("/fees", s.handleGetFees)
			r.Patch("/fees", s.handleUpdateFees)
			r.Get("/receipts", s.handleListReceipts)

			r.Route("/subsidy", func(r chi.Router) {
				r.Get("/", s.handleSubsidyBalance)
				r.Post("/fund", s.handleFundSubsidy)
				r.Post("/grants", s.handleGrantSubsidy)
				r.Delete("/grants/{tenant}", s.handleRevokeSubsidy)
			})

			r.Get("/balances/{actor}", s.handleBalance)
		})
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encode response", zap.Error(err))
	}
}

func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		s.writeJSON(w, status, errorResponse{Error: "internal error"})
		return
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// statusForError maps domain sentinels onto HTTP status codes: malformed
// input is 400, bad credentials 401, authorization 403, unknown records 404,
// lifecycle conflicts 409 and fund-level rejections 422.
func statusForError(err error) int {
	switch {
	case errors.Is(err, escrow.ErrInvalidTerms),
		errors.Is(err, dispute.ErrEmptyReason),
		errors.Is(err, dispute.ErrEmptyEvidence),
		errors.Is(err, fees.ErrPlatformFeeOutOfRange),
		errors.Is(err, fees.ErrRentFeeOutOfRange),
		errors.Is(err, registry.ErrInvalidOwner),
		errors.Is(err, subsidy.ErrInvalidAmount),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, escrow.ErrUnknownRole):
		return http.StatusBadRequest

	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized

	case errors.Is(err, escrow.ErrNotTenant),
		errors.Is(err, escrow.ErrNotLandlord),
		errors.Is(err, escrow.ErrNotParty),
		errors.Is(err, escrow.ErrNotAdmin),
		errors.Is(err, dispute.ErrNotParty),
		errors.Is(err, dispute.ErrNotAdmin),
		errors.Is(err, registry.ErrNotAdmin),
		errors.Is(err, subsidy.ErrNotAdmin):
		return http.StatusForbidden

	case errors.Is(err, escrow.ErrAgreementNotFound),
		errors.Is(err, escrow.ErrDisputeNotFound),
		errors.Is(err, auth.ErrUserNotFound),
		errors.Is(err, registry.ErrPropertyNotFound):
		return http.StatusNotFound

	case errors.Is(err, escrow.ErrAgreementNotPending),
		errors.Is(err, escrow.ErrAgreementNotActive),
		errors.Is(err, escrow.ErrAlreadyConfirmed),
		errors.Is(err, escrow.ErrInvalidTransition),
		errors.Is(err, escrow.ErrOperationInProgress),
		errors.Is(err, escrow.ErrCooldownActive),
		errors.Is(err, escrow.ErrRentNotOverdue),
		errors.Is(err, escrow.ErrLeaseEnded),
		errors.Is(err, escrow.ErrDepositLocked),
		errors.Is(err, dispute.ErrWrongState),
		errors.Is(err, dispute.ErrNotDisputed),
		errors.Is(err, dispute.ErrAlreadyResolved),
		errors.Is(err, auth.ErrDuplicateEmail),
		errors.Is(err, registry.ErrPropertyExists):
		return http.StatusConflict

	case errors.Is(err, escrow.ErrInsufficientRent),
		errors.Is(err, escrow.ErrRefundTooLarge),
		errors.Is(err, escrow.ErrPropertyNotEligible),
		errors.Is(err, escrow.ErrLandlordMismatch):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
