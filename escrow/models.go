package escrow

import "time"

// Actor is an opaque caller identity (wallet or account id). The ledger never
// interprets it beyond equality checks.
type Actor string

// SystemActor initiates auto-raised rent disputes.
const SystemActor Actor = "system"

// Role is the caller's platform role as asserted by the auth layer. Tenant
// and landlord standing on a given agreement is always re-checked against the
// record itself.
type Role string

const (
	RoleTenant   Role = "tenant"
	RoleLandlord Role = "landlord"
	RoleAdmin    Role = "admin"
)

// PropertyID identifies a registered property token.
type PropertyID int64

// AgreementID is assigned monotonically by the store.
type AgreementID int64

// Bounds on the rent interval accepted at creation.
const (
	MinRentInterval = 24 * time.Hour
	MaxRentInterval = 365 * 24 * time.Hour
)

// RentalAgreement mirrors the agreements table. Terminal records are retained
// for audit, never deleted.
type RentalAgreement struct {
	ID                 AgreementID
	PropertyID         PropertyID
	Tenant             Actor
	Landlord           Actor
	DepositAmount      int64
	MonthlyRent        int64
	RentInterval       time.Duration
	StartDate          time.Time
	EndDate            time.Time
	CreatedAt          time.Time
	Status             Status
	MetadataHash       string
	TenantConfirmed    bool
	LandlordConfirmed  bool
	DisputeDeadline    time.Time
	NextRentDueDate    time.Time
	OverdueGracePeriod time.Duration
	TotalRentPaid      int64
}

func (a *RentalAgreement) clone() *RentalAgreement {
	cp := *a
	return &cp
}

// PaymentStatus tags entries in the rent ledger.
type PaymentStatus string

const (
	PaymentPaid     PaymentStatus = "paid"
	PaymentOverdue  PaymentStatus = "overdue"
	PaymentDisputed PaymentStatus = "disputed"
)

// RentPayment is one entry in the per-agreement rent ledger. Seq is the
// 1-based position; entries are append-only.
type RentPayment struct {
	AgreementID AgreementID
	Seq         int
	Amount      int64
	PaidDate    time.Time
	PeriodStart time.Time
	PeriodEnd   time.Time
	Status      PaymentStatus
}

// Dispute is the single dispute record an agreement may carry. It is created
// when the agreement enters Disputed and finalized, never deleted, on
// resolution.
type Dispute struct {
	AgreementID   AgreementID
	Initiator     Actor
	Reason        string
	Evidence      []string
	CreatedAt     time.Time
	IsRentDispute bool
	Resolution    *Resolution
}

// Resolution exists only once an admin has ruled. A nil Resolution on a
// Dispute means the dispute is still open.
type Resolution struct {
	Winner       Actor
	RefundTenant bool
	ResolvedAt   time.Time
}

func (d *Dispute) Resolved() bool {
	return d != nil && d.Resolution != nil
}

func (d *Dispute) clone() *Dispute {
	if d == nil {
		return nil
	}
	cp := *d
	cp.Evidence = append([]string(nil), d.Evidence...)
	if d.Resolution != nil {
		r := *d.Resolution
		cp.Resolution = &r
	}
	return &cp
}
