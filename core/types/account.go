package types

import "math/big"

// Account tracks the funds and replay counter of a single address on the
// custody ledger. Buyers, sellers, the administrator and the vault itself are
// all plain accounts; the engine moves value between them.
type Account struct {
	Nonce   uint64   `json:"nonce"`
	Balance *big.Int `json:"balance"`
}
