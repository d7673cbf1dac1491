package escrow

import (
	"fmt"
	"math/big"
)

// Kind selects the release condition of an escrow: either the buyer confirms
// delivery, or a release time elapses.
type Kind uint8

const (
	KindAgreementBased Kind = iota
	KindTimeBased
)

// Valid reports whether the kind value is within the supported range.
func (k Kind) Valid() bool {
	switch k {
	case KindAgreementBased, KindTimeBased:
		return true
	default:
		return false
	}
}

func (k Kind) String() string {
	switch k {
	case KindAgreementBased:
		return "AGREEMENT_BASED"
	case KindTimeBased:
		return "TIME_BASED"
	default:
		return fmt.Sprintf("KIND_%d", uint8(k))
	}
}

// Status represents the lifecycle states of an escrow record. The numeric
// codes are part of the external contract and are exposed as-is over RPC.
type Status uint8

const (
	StatusNotInit             Status = iota // sentinel for a never-created id
	StatusWaitingConfirmation               // both parties must confirm the terms
	StatusCanceled                          // terminal: funds returned to the buyer
	StatusWaitingPayment                    // buyer must deposit the exact amount
	StatusWaitingAgreement                  // funded, release gated on buyer delivery confirmation
	StatusWaitingTime                       // funded, release gated on the end time
	StatusDisputeBuyer                      // administrator routed the escrow to a buyer refund
	StatusDisputeSeller                     // administrator routed the escrow to a forced completion
	StatusCompleted                         // terminal: funds paid to the seller
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	return s <= StatusCompleted
}

// Terminal reports whether the status is absorbing. No operation may
// transition a record out of a terminal status.
func (s Status) Terminal() bool {
	return s == StatusCanceled || s == StatusCompleted
}

func (s Status) String() string {
	switch s {
	case StatusNotInit:
		return "NOT_INIT"
	case StatusWaitingConfirmation:
		return "WAITING_CONFIRMATION"
	case StatusCanceled:
		return "ESCROW_CANCELED"
	case StatusWaitingPayment:
		return "WAITING_PAYMENT"
	case StatusWaitingAgreement:
		return "WAITING_AGREEMENT"
	case StatusWaitingTime:
		return "WAITING_TIME"
	case StatusDisputeBuyer:
		return "DISPUTE_BUYER"
	case StatusDisputeSeller:
		return "DISPUTE_SELLER"
	case StatusCompleted:
		return "COMPLETED"
	default:
		return fmt.Sprintf("STATUS_%d", uint8(s))
	}
}

// Description returns the operator-facing explanation of a status.
func (s Status) Description() string {
	switch s {
	case StatusNotInit:
		return "Escrow isn't initiated yet"
	case StatusWaitingConfirmation:
		return "Escrow awaiting for the buyer and the seller to confirm the agreement"
	case StatusCanceled:
		return "Escrow is canceled and the deposit was returned to the buyer"
	case StatusWaitingPayment:
		return "Escrow waiting for the buyer to deposit the escrow amount"
	case StatusWaitingAgreement:
		return "Escrow funded, waiting for the buyer to confirm delivery"
	case StatusWaitingTime:
		return "Escrow funded, waiting for the release time to pass"
	case StatusDisputeBuyer:
		return "Escrow disputed, the buyer may claim a refund"
	case StatusDisputeSeller:
		return "Escrow disputed, the seller may claim the funds"
	case StatusCompleted:
		return "Escrow is finished and the seller received the funds"
	default:
		return "Unknown escrow status"
	}
}

// Escrow captures the immutable metadata and runtime status of a single
// custody agreement. Identifiers are allocated sequentially starting at 1;
// id 0 is the NOT_INIT sentinel and never names a record.
type Escrow struct {
	ID              uint64
	Kind            Kind
	Status          Status
	BuyerConfirmed  bool
	SellerConfirmed bool
	Buyer           [20]byte
	Seller          [20]byte
	Custodian       [20]byte
	Amount          *big.Int
	StartTime       int64
	EndTime         int64 // 0 for AGREEMENT_BASED escrows
}

// Clone returns a deep copy of the escrow object so callers can safely mutate
// the copy without affecting the stored instance.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Amount != nil {
		clone.Amount = new(big.Int).Set(e.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// SanitizeEscrow validates the supplied escrow definition and returns a cloned
// instance with a non-nil amount field. The function does not mutate the
// original value.
func SanitizeEscrow(e *Escrow) (*Escrow, error) {
	if e == nil {
		return nil, fmt.Errorf("nil escrow")
	}
	clone := e.Clone()
	if clone.ID == 0 {
		return nil, fmt.Errorf("escrow id must be non-zero")
	}
	if !clone.Kind.Valid() {
		return nil, fmt.Errorf("invalid escrow kind: %d", clone.Kind)
	}
	if !clone.Status.Valid() || clone.Status == StatusNotInit {
		return nil, fmt.Errorf("invalid escrow status: %d", clone.Status)
	}
	if clone.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("escrow amount must be positive")
	}
	if clone.EndTime < 0 {
		return nil, fmt.Errorf("escrow end time must be non-negative")
	}
	return clone, nil
}
