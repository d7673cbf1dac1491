package escrow

import (
	"encoding/hex"
	"strconv"

	"vaultd/core/types"
)

const (
	EventTypeEscrowCreated   = "escrow.created"
	EventTypeEscrowConfirmed = "escrow.confirmed"
	EventTypeEscrowAgreed    = "escrow.agreed"
	EventTypeEscrowFunded    = "escrow.funded"
	EventTypeEscrowReleased  = "escrow.released"
	EventTypeEscrowRefunded  = "escrow.refunded"
	EventTypeEscrowDisputed  = "escrow.disputed"
	EventTypeEscrowResolved  = "escrow.resolved"
)

// NewCreatedEvent returns the canonical event payload for a newly created
// escrow.
func NewCreatedEvent(e *Escrow) *types.Event { return newEscrowEvent(EventTypeEscrowCreated, e) }

// NewConfirmedEvent returns the event payload emitted when one party confirms
// the escrow terms. The party attribute is "buyer" or "seller".
func NewConfirmedEvent(e *Escrow, party string) *types.Event {
	evt := newEscrowEvent(EventTypeEscrowConfirmed, e)
	if evt != nil {
		evt.Attributes["party"] = party
	}
	return evt
}

// NewAgreedEvent returns the event payload emitted once both parties have
// confirmed and the escrow moves to WAITING_PAYMENT.
func NewAgreedEvent(e *Escrow) *types.Event { return newEscrowEvent(EventTypeEscrowAgreed, e) }

// NewFundedEvent returns the event payload emitted when the buyer deposits the
// escrow amount into custody.
func NewFundedEvent(e *Escrow) *types.Event { return newEscrowEvent(EventTypeEscrowFunded, e) }

// NewReleasedEvent returns the event payload for a payout of custodied funds
// to the seller.
func NewReleasedEvent(e *Escrow) *types.Event { return newEscrowEvent(EventTypeEscrowReleased, e) }

// NewRefundedEvent returns the event payload for a refund of custodied funds
// to the buyer.
func NewRefundedEvent(e *Escrow) *types.Event { return newEscrowEvent(EventTypeEscrowRefunded, e) }

// NewDisputedEvent returns the event payload emitted when the administrator
// routes an escrow onto a dispute path. The resulting status identifies the
// favoured side.
func NewDisputedEvent(e *Escrow) *types.Event { return newEscrowEvent(EventTypeEscrowDisputed, e) }

// NewResolvedEvent returns the event payload emitted when a seller-side
// dispute settles in the seller's favour.
func NewResolvedEvent(e *Escrow) *types.Event { return newEscrowEvent(EventTypeEscrowResolved, e) }

func newEscrowEvent(eventType string, e *Escrow) *types.Event {
	if e == nil {
		return nil
	}
	attributes := map[string]string{
		"id":        strconv.FormatUint(e.ID, 10),
		"kind":      e.Kind.String(),
		"status":    strconv.FormatUint(uint64(e.Status), 10),
		"buyer":     hex.EncodeToString(e.Buyer[:]),
		"seller":    hex.EncodeToString(e.Seller[:]),
		"custodian": hex.EncodeToString(e.Custodian[:]),
		"startTime": strconv.FormatInt(e.StartTime, 10),
		"endTime":   strconv.FormatInt(e.EndTime, 10),
	}
	if e.Amount != nil {
		attributes["amount"] = e.Amount.String()
	} else {
		attributes["amount"] = "0"
	}
	return &types.Event{Type: eventType, Attributes: attributes}
}
