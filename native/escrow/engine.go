package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"vaultd/core/events"
	"vaultd/core/types"
)

var (
	errNilState = errors.New("escrow engine: state not configured")
	errNilVault = errors.New("escrow engine: vault address not configured")
	errNilAdmin = errors.New("escrow engine: administrator not configured")
)

type engineState interface {
	EscrowPut(*Escrow) error
	EscrowGet(id uint64) (*Escrow, bool)
	EscrowLastID() uint64
	EscrowSetLastID(id uint64) error
	EscrowCredit(id uint64, amt *big.Int) error
	EscrowDebit(id uint64, amt *big.Int) error
	EscrowBalance(id uint64) *big.Int
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// Engine wires the escrow state machine and fund ledger with external state
// and event emitters. It is the single serialization point mandated by the
// execution model: every operation takes the engine lock, so the
// read-validate-mutate-persist cycle of one call never interleaves with
// another.
type Engine struct {
	mu      sync.Mutex
	state   engineState
	emitter events.Emitter
	vault   [20]byte
	admin   [20]byte
	nowFn   func() int64
}

// NewEngine creates an escrow engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetVaultAddress configures the custodian account that holds deposits until
// release. It is recorded on every escrow created afterwards.
func (e *Engine) SetVaultAddress(addr [20]byte) { e.vault = addr }

// SetAdministrator configures the single privileged principal allowed to flag
// disputes. Fixed at deployment, never per-record.
func (e *Engine) SetAdministrator(addr [20]byte) { e.admin = addr }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Administrator returns the configured arbiter address.
func (e *Engine) Administrator() [20]byte { return e.admin }

// VaultAddress returns the configured custodian address.
func (e *Engine) VaultAddress() [20]byte { return e.vault }

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(escrowEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func ensureAccount(acc *types.Account) *types.Account {
	if acc == nil {
		return &types.Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}

func (e *Engine) loadEscrow(id uint64) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	esc, ok := e.state.EscrowGet(id)
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return esc, nil
}

func (e *Engine) storeEscrow(esc *Escrow) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.EscrowPut(esc)
}

// transition enforces the state machine centrally: terminal states are
// absorbing and every target must be a real status. All status writes funnel
// through here so the invariant is checked exactly once.
func transition(esc *Escrow, to Status) error {
	if esc == nil {
		return fmt.Errorf("escrow: nil escrow")
	}
	if esc.Status.Terminal() {
		return fmt.Errorf("%w: status %s is terminal", ErrWrongStatus, esc.Status)
	}
	if !to.Valid() || to == StatusNotInit {
		return fmt.Errorf("escrow: invalid target status %d", to)
	}
	esc.Status = to
	return nil
}

func (e *Engine) transfer(from, to [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("%w: negative transfer amount", ErrTransferFailed)
	}
	fromAcc, err := e.state.GetAccount(from[:])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	toAcc, err := e.state.GetAccount(to[:])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	fromAcc = ensureAccount(fromAcc)
	toAcc = ensureAccount(toAcc)
	if fromAcc.Balance.Cmp(amt) < 0 {
		return fmt.Errorf("%w: insufficient balance", ErrTransferFailed)
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	if err := e.state.PutAccount(from[:], fromAcc); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := e.state.PutAccount(to[:], toAcc); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	return nil
}

// Create allocates the next sequential identifier and persists a new escrow
// record in WAITING_CONFIRMATION. No value moves here; the buyer deposits
// only after both parties confirmed the terms.
func (e *Engine) Create(kind Kind, buyer, seller [20]byte, amount *big.Int, releaseOffset int64) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.vault == ([20]byte{}) {
		return nil, errNilVault
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("escrow: invalid kind %d", kind)
	}
	if buyer == ([20]byte{}) || seller == ([20]byte{}) {
		return nil, fmt.Errorf("%w: missing party", ErrInvalidParty)
	}
	if buyer == seller {
		return nil, fmt.Errorf("%w: buyer and seller must differ", ErrInvalidParty)
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	if releaseOffset < 0 {
		return nil, fmt.Errorf("escrow: negative release offset")
	}
	now := e.now()
	endTime := int64(0)
	if kind == KindTimeBased {
		endTime = now + releaseOffset
	}
	id := e.state.EscrowLastID() + 1
	esc := &Escrow{
		ID:        id,
		Kind:      kind,
		Status:    StatusWaitingConfirmation,
		Buyer:     buyer,
		Seller:    seller,
		Custodian: e.vault,
		Amount:    amt,
		StartTime: now,
		EndTime:   endTime,
	}
	if err := e.storeEscrow(esc); err != nil {
		return nil, err
	}
	if err := e.state.EscrowSetLastID(id); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(esc))
	return esc.Clone(), nil
}

// Get returns a snapshot of the escrow record. Readable by anyone; the data
// is not confidential.
func (e *Engine) Get(id uint64) (*Escrow, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	esc, err := e.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	return esc.Clone(), nil
}

// LastID returns the most recently allocated identifier, or 0 when no escrow
// was ever created.
func (e *Engine) LastID() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.EscrowLastID(), nil
}

// Confirm records a party's agreement to the escrow terms. The entry point is
// deliberately permissive: a caller that is neither the buyer nor the seller
// is a silent no-op, never an error. Re-confirming an already-set flag is
// idempotent. Once both flags are set the record advances to WAITING_PAYMENT.
func (e *Engine) Confirm(id uint64, caller [20]byte) (*Escrow, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	esc, err := e.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	if esc.Status != StatusWaitingConfirmation {
		return nil, fmt.Errorf("%w: cannot confirm in status %s", ErrWrongStatus, esc.Status)
	}
	party := ""
	switch caller {
	case esc.Buyer:
		if !esc.BuyerConfirmed {
			esc.BuyerConfirmed = true
			party = "buyer"
		}
	case esc.Seller:
		if !esc.SellerConfirmed {
			esc.SellerConfirmed = true
			party = "seller"
		}
	default:
		// Non-parties may call the entry point without effect.
		return esc.Clone(), nil
	}
	if party == "" {
		return esc.Clone(), nil
	}
	agreed := esc.BuyerConfirmed && esc.SellerConfirmed
	if agreed {
		if err := transition(esc, StatusWaitingPayment); err != nil {
			return nil, err
		}
	}
	if err := e.storeEscrow(esc); err != nil {
		return nil, err
	}
	e.emit(NewConfirmedEvent(esc, party))
	if agreed {
		e.emit(NewAgreedEvent(esc))
	}
	return esc.Clone(), nil
}

// Deposit takes the escrow amount from the buyer into custody. The value must
// match the record's amount exactly; partial or excess deposits are rejected.
// Exactly one successful deposit is possible per record because the status
// advances out of WAITING_PAYMENT on success.
func (e *Engine) Deposit(id uint64, from [20]byte, value *big.Int) (*Escrow, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	esc, err := e.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	if esc.Status != StatusWaitingPayment {
		return nil, fmt.Errorf("%w: cannot deposit in status %s", ErrWrongStatus, esc.Status)
	}
	if from != esc.Buyer {
		return nil, fmt.Errorf("%w: only the buyer may deposit", ErrWrongParty)
	}
	amt := cloneBigInt(value)
	if esc.Amount == nil || amt.Cmp(esc.Amount) != 0 {
		return nil, fmt.Errorf("%w: deposit must equal %s exactly", ErrWrongAmount, esc.Amount)
	}
	if err := e.transfer(esc.Buyer, esc.Custodian, esc.Amount); err != nil {
		return nil, err
	}
	if err := e.state.EscrowCredit(id, esc.Amount); err != nil {
		return nil, err
	}
	next := StatusWaitingAgreement
	if esc.Kind == KindTimeBased {
		next = StatusWaitingTime
	}
	if err := transition(esc, next); err != nil {
		return nil, err
	}
	if err := e.storeEscrow(esc); err != nil {
		return nil, err
	}
	e.emit(NewFundedEvent(esc))
	return esc.Clone(), nil
}

// ReleaseToSeller pays the custodied amount to the seller and completes the
// escrow in one failure-atomic step. From WAITING_AGREEMENT the caller must be
// the buyer (confirming delivery); from WAITING_TIME the caller must be the
// seller and the end time must have passed.
func (e *Engine) ReleaseToSeller(id uint64, caller [20]byte) (*Escrow, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	esc, err := e.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	switch esc.Status {
	case StatusWaitingAgreement:
		if caller != esc.Buyer {
			return nil, fmt.Errorf("%w: only the buyer may confirm delivery", ErrWrongParty)
		}
	case StatusWaitingTime:
		if caller != esc.Seller {
			return nil, fmt.Errorf("%w: only the seller may claim after time", ErrWrongParty)
		}
		if e.now() < esc.EndTime {
			return nil, fmt.Errorf("%w: end time %d not reached", ErrTooEarly, esc.EndTime)
		}
	default:
		return nil, fmt.Errorf("%w: cannot release in status %s", ErrWrongStatus, esc.Status)
	}
	if err := e.payout(esc, esc.Seller, StatusCompleted, NewReleasedEvent); err != nil {
		return nil, err
	}
	return esc.Clone(), nil
}

// ReleaseToBuyer refunds the custodied amount to the buyer after the
// administrator flagged a buyer dispute. The record lands on ESCROW_CANCELED.
func (e *Engine) ReleaseToBuyer(id uint64, caller [20]byte) (*Escrow, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	esc, err := e.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	if esc.Status != StatusDisputeBuyer {
		return nil, fmt.Errorf("%w: cannot refund in status %s", ErrWrongStatus, esc.Status)
	}
	if caller != esc.Buyer {
		return nil, fmt.Errorf("%w: only the buyer may claim the refund", ErrWrongParty)
	}
	if err := e.payout(esc, esc.Buyer, StatusCanceled, NewRefundedEvent); err != nil {
		return nil, err
	}
	return esc.Clone(), nil
}

// FlagBuyerDispute forces a non-terminal escrow onto the buyer-refund path.
// Administrator only.
func (e *Engine) FlagBuyerDispute(id uint64, caller [20]byte) (*Escrow, error) {
	return e.flagDispute(id, caller, StatusDisputeBuyer)
}

// FlagSellerDispute forces a non-terminal escrow onto the forced-completion
// path. Administrator only.
func (e *Engine) FlagSellerDispute(id uint64, caller [20]byte) (*Escrow, error) {
	return e.flagDispute(id, caller, StatusDisputeSeller)
}

func (e *Engine) flagDispute(id uint64, caller [20]byte, status Status) (*Escrow, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.admin == ([20]byte{}) {
		return nil, errNilAdmin
	}
	if caller != e.admin {
		return nil, fmt.Errorf("%w: administrator only", ErrUnauthorized)
	}
	esc, err := e.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	if err := transition(esc, status); err != nil {
		return nil, err
	}
	if err := e.storeEscrow(esc); err != nil {
		return nil, err
	}
	e.emit(NewDisputedEvent(esc))
	return esc.Clone(), nil
}

// ResolveSellerDispute settles a seller-side dispute in the seller's favour,
// paying the custodied amount and completing the escrow. The seller or the
// administrator may invoke it.
func (e *Engine) ResolveSellerDispute(id uint64, caller [20]byte) (*Escrow, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	esc, err := e.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	if esc.Status != StatusDisputeSeller {
		return nil, fmt.Errorf("%w: cannot resolve in status %s", ErrWrongStatus, esc.Status)
	}
	if caller != esc.Seller && (e.admin == ([20]byte{}) || caller != e.admin) {
		return nil, fmt.Errorf("%w: seller or administrator only", ErrWrongParty)
	}
	if err := e.payout(esc, esc.Seller, StatusCompleted, NewResolvedEvent); err != nil {
		return nil, err
	}
	return esc.Clone(), nil
}

// VaultBalance returns the total value currently held by the custodian
// account.
func (e *Engine) VaultBalance() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	acc, err := e.state.GetAccount(e.vault[:])
	if err != nil {
		return nil, err
	}
	return cloneBigInt(ensureAccount(acc).Balance), nil
}

// payout moves the custodied amount to the recipient and lands the record on
// a terminal status as a single failure-atomic unit: the transfer runs first,
// and the status is committed only once the funds moved. A dispute flagged
// before any deposit carries no custody balance, so the claim fails without
// touching the record.
func (e *Engine) payout(esc *Escrow, recipient [20]byte, status Status, eventFn func(*Escrow) *types.Event) error {
	if esc == nil {
		return fmt.Errorf("escrow: nil escrow")
	}
	amount := cloneBigInt(esc.Amount)
	if amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	held := e.state.EscrowBalance(esc.ID)
	if held == nil || held.Cmp(amount) < 0 {
		return fmt.Errorf("%w: nothing in custody for escrow %d", ErrTransferFailed, esc.ID)
	}
	if err := e.transfer(esc.Custodian, recipient, amount); err != nil {
		return err
	}
	if err := e.state.EscrowDebit(esc.ID, amount); err != nil {
		return err
	}
	if err := transition(esc, status); err != nil {
		return err
	}
	if err := e.storeEscrow(esc); err != nil {
		return err
	}
	e.emit(eventFn(esc))
	return nil
}
