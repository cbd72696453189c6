package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the escrow ledger. A nil *Metrics is
// valid and records nothing, so services can run unwired in tests.
type Metrics struct {
	AgreementsCreated    prometheus.Counter
	AgreementsActivated  prometheus.Counter
	AgreementsCancelled  prometheus.Counter
	AgreementsTerminated prometheus.Counter
	DepositsReleased     prometheus.Counter
	RentPayments         prometheus.Counter
	SubsidyPaidUnits     prometheus.Counter
	DisputesOpened       *prometheus.CounterVec
	DisputesResolved     *prometheus.CounterVec
	RequestDuration      *prometheus.HistogramVec
}

// New registers all ledger metrics with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AgreementsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "rentledger_agreements_created_total",
			Help: "Total number of agreements created",
		}),
		AgreementsActivated: factory.NewCounter(prometheus.CounterOpts{
			Name: "rentledger_agreements_activated_total",
			Help: "Total number of agreements confirmed by both parties",
		}),
		AgreementsCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "rentledger_agreements_cancelled_total",
			Help: "Total number of pending agreements cancelled by tenants",
		}),
		AgreementsTerminated: factory.NewCounter(prometheus.CounterOpts{
			Name: "rentledger_agreements_terminated_total",
			Help: "Total number of agreements terminated by admins",
		}),
		DepositsReleased: factory.NewCounter(prometheus.CounterOpts{
			Name: "rentledger_deposits_released_total",
			Help: "Total number of deposits released to landlords",
		}),
		RentPayments: factory.NewCounter(prometheus.CounterOpts{
			Name: "rentledger_rent_payments_total",
			Help: "Total number of rent payments recorded",
		}),
		SubsidyPaidUnits: factory.NewCounter(prometheus.CounterOpts{
			Name: "rentledger_subsidy_paid_units_total",
			Help: "Total subsidy units reimbursed to tenants",
		}),
		DisputesOpened: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rentledger_disputes_opened_total",
			Help: "Total disputes opened, by initiator kind",
		}, []string{"initiator"}),
		DisputesResolved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rentledger_disputes_resolved_total",
			Help: "Total disputes resolved, by outcome",
		}, []string{"outcome"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rentledger_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route and status",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"route", "method", "status"}),
	}
}

func (m *Metrics) AgreementCreated() {
	if m == nil {
		return
	}
	m.AgreementsCreated.Inc()
}

func (m *Metrics) AgreementActivated() {
	if m == nil {
		return
	}
	m.AgreementsActivated.Inc()
}

func (m *Metrics) AgreementCancelled() {
	if m == nil {
		return
	}
	m.AgreementsCancelled.Inc()
}

func (m *Metrics) AgreementTerminated() {
	if m == nil {
		return
	}
	m.AgreementsTerminated.Inc()
}

func (m *Metrics) DepositReleased() {
	if m == nil {
		return
	}
	m.DepositsReleased.Inc()
}

func (m *Metrics) RentPaymentRecorded() {
	if m == nil {
		return
	}
	m.RentPayments.Inc()
}

// SubsidyPaid adds the reimbursed amount in minor units.
func (m *Metrics) SubsidyPaid(amount int64) {
	if m == nil {
		return
	}
	m.SubsidyPaidUnits.Add(float64(amount))
}

// DisputeOpened records a new dispute by initiator kind ("party" or "system").
func (m *Metrics) DisputeOpened(initiator string) {
	if m == nil {
		return
	}
	m.DisputesOpened.WithLabelValues(initiator).Inc()
}

// DisputeResolved records a ruling by outcome ("tenant_refund" or "landlord_release").
func (m *Metrics) DisputeResolved(outcome string) {
	if m == nil {
		return
	}
	m.DisputesResolved.WithLabelValues(outcome).Inc()
}

// ObserveRequest records one HTTP request observation.
func (m *Metrics) ObserveRequest(route, method, status string, start time.Time) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(route, method, status).Observe(time.Since(start).Seconds())
}
