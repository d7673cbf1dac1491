package escrow_test

import (
	"math/big"
	"testing"

	escrowpkg "vaultd/native/escrow"
)

func TestStatusTerminal(t *testing.T) {
	terminal := map[escrowpkg.Status]bool{
		escrowpkg.StatusCanceled:  true,
		escrowpkg.StatusCompleted: true,
	}
	for s := escrowpkg.StatusNotInit; s <= escrowpkg.StatusCompleted; s++ {
		if got := s.Terminal(); got != terminal[s] {
			t.Fatalf("Terminal(%s) = %v", s, got)
		}
	}
}

func TestStatusStringCodes(t *testing.T) {
	cases := map[escrowpkg.Status]string{
		escrowpkg.StatusNotInit:             "NOT_INIT",
		escrowpkg.StatusWaitingConfirmation: "WAITING_CONFIRMATION",
		escrowpkg.StatusCanceled:            "ESCROW_CANCELED",
		escrowpkg.StatusWaitingPayment:      "WAITING_PAYMENT",
		escrowpkg.StatusWaitingAgreement:    "WAITING_AGREEMENT",
		escrowpkg.StatusWaitingTime:         "WAITING_TIME",
		escrowpkg.StatusDisputeBuyer:        "DISPUTE_BUYER",
		escrowpkg.StatusDisputeSeller:       "DISPUTE_SELLER",
		escrowpkg.StatusCompleted:           "COMPLETED",
	}
	for status, want := range cases {
		if got := status.String(); got != want {
			t.Fatalf("String(%d) = %q, want %q", status, got, want)
		}
		if status.Description() == "Unknown escrow status" {
			t.Fatalf("missing description for %s", status)
		}
	}
	if escrowpkg.Status(42).Valid() {
		t.Fatalf("out-of-range status must not be valid")
	}
}

func TestKindValidation(t *testing.T) {
	if !escrowpkg.KindAgreementBased.Valid() || !escrowpkg.KindTimeBased.Valid() {
		t.Fatalf("supported kinds must be valid")
	}
	if escrowpkg.Kind(2).Valid() {
		t.Fatalf("unknown kind must not be valid")
	}
	if escrowpkg.KindAgreementBased.String() != "AGREEMENT_BASED" || escrowpkg.KindTimeBased.String() != "TIME_BASED" {
		t.Fatalf("unexpected kind names")
	}
}

func TestCloneIsDeep(t *testing.T) {
	original := &escrowpkg.Escrow{
		ID:     1,
		Kind:   escrowpkg.KindAgreementBased,
		Status: escrowpkg.StatusWaitingConfirmation,
		Buyer:  eventTestAddress(0x01),
		Seller: eventTestAddress(0x02),
		Amount: big.NewInt(50),
	}
	clone := original.Clone()
	clone.Amount.SetInt64(99)
	clone.Status = escrowpkg.StatusCompleted
	if original.Amount.Int64() != 50 {
		t.Fatalf("clone shares the amount with the original")
	}
	if original.Status != escrowpkg.StatusWaitingConfirmation {
		t.Fatalf("clone shares status with the original")
	}
}

func TestSanitizeEscrow(t *testing.T) {
	valid := &escrowpkg.Escrow{
		ID:     1,
		Kind:   escrowpkg.KindAgreementBased,
		Status: escrowpkg.StatusWaitingConfirmation,
		Buyer:  eventTestAddress(0x01),
		Seller: eventTestAddress(0x02),
		Amount: big.NewInt(10),
	}
	sanitized, err := escrowpkg.SanitizeEscrow(valid)
	if err != nil {
		t.Fatalf("SanitizeEscrow: %v", err)
	}
	if sanitized == valid {
		t.Fatalf("sanitize must return a copy")
	}

	for name, mutate := range map[string]func(*escrowpkg.Escrow){
		"zero id":        func(e *escrowpkg.Escrow) { e.ID = 0 },
		"invalid kind":   func(e *escrowpkg.Escrow) { e.Kind = escrowpkg.Kind(9) },
		"not-init state": func(e *escrowpkg.Escrow) { e.Status = escrowpkg.StatusNotInit },
		"invalid state":  func(e *escrowpkg.Escrow) { e.Status = escrowpkg.Status(42) },
		"zero amount":    func(e *escrowpkg.Escrow) { e.Amount = big.NewInt(0) },
		"negative end":   func(e *escrowpkg.Escrow) { e.EndTime = -1 },
	} {
		broken := valid.Clone()
		mutate(broken)
		if _, err := escrowpkg.SanitizeEscrow(broken); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := escrowpkg.SanitizeEscrow(nil); err == nil {
		t.Fatalf("nil escrow: expected error")
	}
}
