package subscription

import "shogunrelay/internal/errs"

// VerifyOutcome is the Payment Verifier's settlement result (spec §4.6).
type VerifyOutcome string

const (
	Settled     VerifyOutcome = "settled"
	Insufficient VerifyOutcome = "insufficient"
	Expired     VerifyOutcome = "expired"
	Fraudulent  VerifyOutcome = "fraudulent"
)

// VerifyResult carries the outcome and, on success, an opaque receipt.
type VerifyResult struct {
	Outcome VerifyOutcome
	Receipt string
}

// PaymentVerifier is the external collaborator contract from spec §4.6:
// "verify(payload) -> Settled{receipt} | Insufficient | Expired |
// Fraudulent". On-chain settlement itself is out of scope (spec.md §1).
type PaymentVerifier interface {
	Verify(requiredAtomic string, payload []byte) (VerifyResult, error)
}

// ToError converts a non-Settled VerifyResult into the typed error a caller
// should surface.
func (r VerifyResult) ToError() error {
	switch r.Outcome {
	case Settled:
		return nil
	case Insufficient:
		return errs.New(errs.PaymentInvalid, "payment-insufficient", "payment amount is insufficient")
	case Expired:
		return errs.New(errs.PaymentInvalid, "payment-expired", "payment payload has expired")
	case Fraudulent:
		return errs.New(errs.PaymentInvalid, "payment-fraudulent", "payment payload failed fraud checks")
	default:
		return errs.New(errs.PaymentInvalid, "payment-unknown", "payment verifier returned an unknown outcome")
	}
}
