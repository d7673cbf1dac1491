package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"vaultd/crypto"
	"vaultd/native/escrow"
)

const (
	codeEscrowInvalidParams = -32021
	codeEscrowNotFound      = -32022
	codeEscrowForbidden     = -32023
	codeEscrowConflict      = -32024
	codeEscrowInternal      = -32025
)

type escrowCreateParams struct {
	Kind          uint8  `json:"kind"`
	Buyer         string `json:"buyer"`
	Seller        string `json:"seller"`
	Amount        string `json:"amount"`
	ReleaseOffset int64  `json:"releaseOffset"`
}

type escrowIDParams struct {
	ID uint64 `json:"id"`
}

type escrowActorParams struct {
	ID     uint64 `json:"id"`
	Caller string `json:"caller"`
}

type escrowDepositParams struct {
	ID    uint64 `json:"id"`
	From  string `json:"from"`
	Value string `json:"value"`
}

type escrowCreateResult struct {
	ID uint64 `json:"id"`
}

type escrowLastIDResult struct {
	ID uint64 `json:"id"`
}

type escrowBalanceResult struct {
	Custodian string `json:"custodian"`
	Balance   string `json:"balance"`
}

type escrowJSON struct {
	ID              uint64 `json:"id"`
	Kind            uint8  `json:"kind"`
	KindName        string `json:"kindName"`
	Status          uint8  `json:"status"`
	StatusName      string `json:"statusName"`
	StatusText      string `json:"statusText"`
	BuyerConfirmed  bool   `json:"buyerConfirmed"`
	SellerConfirmed bool   `json:"sellerConfirmed"`
	Buyer           string `json:"buyer"`
	Seller          string `json:"seller"`
	Custodian       string `json:"custodian"`
	Amount          string `json:"amount"`
	StartTime       int64  `json:"startTime"`
	EndTime         int64  `json:"endTime"`
}

func (s *Server) escrowHandlers() map[string]rpcHandler {
	return map[string]rpcHandler{
		"escrow_create":          {fn: s.handleEscrowCreate, mutating: true},
		"escrow_get":             {fn: s.handleEscrowGet},
		"escrow_getLastId":       {fn: s.handleEscrowGetLastID},
		"escrow_vaultBalance":    {fn: s.handleEscrowVaultBalance},
		"escrow_confirm":         {fn: s.handleEscrowConfirm, mutating: true},
		"escrow_deposit":         {fn: s.handleEscrowDeposit, mutating: true},
		"escrow_confirmDelivery": {fn: s.handleEscrowConfirmDelivery, mutating: true},
		"escrow_claim":           {fn: s.handleEscrowClaim, mutating: true},
		"escrow_disputeBuyer":    {fn: s.handleEscrowDisputeBuyer, mutating: true},
		"escrow_disputeSeller":   {fn: s.handleEscrowDisputeSeller, mutating: true},
		"escrow_refund":          {fn: s.handleEscrowRefund, mutating: true},
		"escrow_resolveSeller":   {fn: s.handleEscrowResolveSeller, mutating: true},
	}
}

func escrowToJSON(e *escrow.Escrow) *escrowJSON {
	if e == nil {
		return nil
	}
	amount := "0"
	if e.Amount != nil {
		amount = e.Amount.String()
	}
	return &escrowJSON{
		ID:              e.ID,
		Kind:            uint8(e.Kind),
		KindName:        e.Kind.String(),
		Status:          uint8(e.Status),
		StatusName:      e.Status.String(),
		StatusText:      e.Status.Description(),
		BuyerConfirmed:  e.BuyerConfirmed,
		SellerConfirmed: e.SellerConfirmed,
		Buyer:           crypto.NewAddress(crypto.VaultPrefix, e.Buyer[:]).String(),
		Seller:          crypto.NewAddress(crypto.VaultPrefix, e.Seller[:]).String(),
		Custodian:       crypto.NewAddress(crypto.VaultPrefix, e.Custodian[:]).String(),
		Amount:          amount,
		StartTime:       e.StartTime,
		EndTime:         e.EndTime,
	}
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseBech32Address(value string) ([20]byte, error) {
	var out [20]byte
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return out, err
	}
	copy(out[:], addr.Bytes())
	return out, nil
}

func parsePositiveBigInt(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return amount, nil
}

// writeEscrowError maps engine sentinel errors onto JSON-RPC error codes.
func (s *Server) writeEscrowError(w http.ResponseWriter, req *RPCRequest, method string, err error) {
	status := http.StatusInternalServerError
	code := codeEscrowInternal
	message := "internal_error"
	switch {
	case errors.Is(err, escrow.ErrNotFound):
		status, code, message = http.StatusNotFound, codeEscrowNotFound, "not_found"
	case errors.Is(err, escrow.ErrInvalidParty), errors.Is(err, escrow.ErrInvalidAmount):
		status, code, message = http.StatusBadRequest, codeEscrowInvalidParams, "invalid_params"
	case errors.Is(err, escrow.ErrWrongParty), errors.Is(err, escrow.ErrUnauthorized):
		status, code, message = http.StatusForbidden, codeEscrowForbidden, "forbidden"
	case errors.Is(err, escrow.ErrWrongStatus), errors.Is(err, escrow.ErrWrongAmount),
		errors.Is(err, escrow.ErrTooEarly), errors.Is(err, escrow.ErrTransferFailed):
		status, code, message = http.StatusConflict, codeEscrowConflict, "conflict"
	}
	s.metrics.ObserveError(method, strconv.Itoa(code))
	writeError(w, status, req.ID, code, message, err.Error())
}

func (s *Server) handleEscrowCreate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params escrowCreateParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	buyer, err := parseBech32Address(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	seller, err := parseBech32Address(params.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	esc, err := s.engine.Create(escrow.Kind(params.Kind), buyer, seller, amount, params.ReleaseOffset)
	if err != nil {
		s.writeEscrowError(w, req, "escrow_create", err)
		return
	}
	writeResult(w, req.ID, escrowCreateResult{ID: esc.ID})
}

func (s *Server) handleEscrowGet(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params escrowIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	esc, err := s.engine.Get(params.ID)
	if err != nil {
		s.writeEscrowError(w, req, "escrow_get", err)
		return
	}
	writeResult(w, req.ID, escrowToJSON(esc))
}

func (s *Server) handleEscrowGetLastID(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	id, err := s.engine.LastID()
	if err != nil {
		s.writeEscrowError(w, req, "escrow_getLastId", err)
		return
	}
	writeResult(w, req.ID, escrowLastIDResult{ID: id})
}

func (s *Server) handleEscrowVaultBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	balance, err := s.engine.VaultBalance()
	if err != nil {
		s.writeEscrowError(w, req, "escrow_vaultBalance", err)
		return
	}
	vault := s.engine.VaultAddress()
	writeResult(w, req.ID, escrowBalanceResult{
		Custodian: crypto.NewAddress(crypto.VaultPrefix, vault[:]).String(),
		Balance:   balance.String(),
	})
}

// actorCall factors the shape shared by every id+caller entry point.
func (s *Server) actorCall(w http.ResponseWriter, req *RPCRequest, method string, fn func(uint64, [20]byte) (*escrow.Escrow, error)) {
	var params escrowActorParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	esc, err := fn(params.ID, caller)
	if err != nil {
		s.writeEscrowError(w, req, method, err)
		return
	}
	writeResult(w, req.ID, escrowToJSON(esc))
}

func (s *Server) handleEscrowConfirm(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.actorCall(w, req, "escrow_confirm", s.engine.Confirm)
}

func (s *Server) handleEscrowDeposit(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params escrowDepositParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	from, err := parseBech32Address(params.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	value, err := parsePositiveBigInt(params.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	esc, err := s.engine.Deposit(params.ID, from, value)
	if err != nil {
		s.writeEscrowError(w, req, "escrow_deposit", err)
		return
	}
	writeResult(w, req.ID, escrowToJSON(esc))
}

func (s *Server) handleEscrowConfirmDelivery(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.actorCall(w, req, "escrow_confirmDelivery", s.engine.ReleaseToSeller)
}

func (s *Server) handleEscrowClaim(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.actorCall(w, req, "escrow_claim", s.engine.ReleaseToSeller)
}

func (s *Server) handleEscrowDisputeBuyer(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.actorCall(w, req, "escrow_disputeBuyer", s.engine.FlagBuyerDispute)
}

func (s *Server) handleEscrowDisputeSeller(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.actorCall(w, req, "escrow_disputeSeller", s.engine.FlagSellerDispute)
}

func (s *Server) handleEscrowRefund(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.actorCall(w, req, "escrow_refund", s.engine.ReleaseToBuyer)
}

func (s *Server) handleEscrowResolveSeller(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.actorCall(w, req, "escrow_resolveSeller", s.engine.ResolveSellerDispute)
}
