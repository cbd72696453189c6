package receipts

import (
	"time"

	"rentledger/escrow"
)

// Kind distinguishes agreement proofs from payment proofs.
type Kind string

const (
	KindAgreement Kind = "agreement"
	KindPayment   Kind = "payment"
)

// Receipt mirrors the receipts table. Agreement proofs leave the payment
// period fields zero and vice versa.
type Receipt struct {
	ID           string
	Kind         Kind
	Tenant       escrow.Actor
	Landlord     escrow.Actor
	PropertyID   escrow.PropertyID
	AgreementID  escrow.AgreementID
	Amount       int64
	RentAmount   int64
	StartDate    time.Time
	EndDate      time.Time
	PaidDate     time.Time
	PeriodStart  time.Time
	PeriodEnd    time.Time
	MetadataHash string
	IssuedAt     time.Time
}
