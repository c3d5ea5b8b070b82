package coordinator

import (
	"fmt"
	"strings"

	"github.com/Hawthorne001/execution-coordinator/types"
)

// The closed error taxonomy returned by the sync engine and send pipeline.
// Each kind is a distinct Go type so callers can type-switch or errors.As
// against them; none is constructed ad hoc at call sites, only by the
// quirks layer below, by the sync engine's own case analysis, or by the fee
// policy's downgrade check.

// WaitingForConfirmationsError is raised when the sync engine observes
// unconfirmed transactions for a sender we have nothing pending for.
type WaitingForConfirmationsError struct {
	Sender                types.Sender
	RequiredConfirmations uint64
}

func (e *WaitingForConfirmationsError) Error() string {
	return fmt.Sprintf("waiting for confirmations: sender %s requires %d confirmations",
		e.Sender, e.RequiredConfirmations)
}

// WaitingForNonceError is raised when a user transaction has displaced or
// exceeded a nonce we own, without enough confirmations yet to declare it
// replaced.
type WaitingForNonceError struct {
	Sender                types.Sender
	Nonce                 uint64
	RequiredConfirmations uint64
}

func (e *WaitingForNonceError) Error() string {
	return fmt.Sprintf("waiting for nonce %d: sender %s requires %d confirmations",
		e.Nonce, e.Sender, e.RequiredConfirmations)
}

// InsufficientFundsForTransferError is raised when gas estimation fails
// because the sender cannot cover a value transfer.
type InsufficientFundsForTransferError struct {
	Sender types.Sender
	Amount *types.BigInt
}

func (e *InsufficientFundsForTransferError) Error() string {
	return fmt.Sprintf("insufficient funds for transfer: sender %s, amount %s", e.Sender, e.Amount)
}

// InsufficientFundsForDeployError is raised when gas estimation fails
// because the sender cannot cover contract-creation storage costs.
type InsufficientFundsForDeployError struct {
	Sender types.Sender
}

func (e *InsufficientFundsForDeployError) Error() string {
	return fmt.Sprintf("insufficient funds for deploy: sender %s", e.Sender)
}

// GasEstimationFailedError is raised for any estimation failure not matched
// by a more specific kind above.
type GasEstimationFailedError struct {
	Sender  types.Sender
	Message string
}

func (e *GasEstimationFailedError) Error() string {
	return fmt.Sprintf("gas estimation failed: sender %s: %s", e.Sender, e.Message)
}

// Eip1559DowngradeError is raised when the node's recommended fee market
// regresses from EIP-1559 to legacy for an interaction that already has an
// EIP-1559 transaction in flight.
type Eip1559DowngradeError struct {
	Sender types.Sender
}

func (e *Eip1559DowngradeError) Error() string {
	return fmt.Sprintf("eip1559 downgrade: node switched to legacy fees mid-flight for sender %s", e.Sender)
}

// classifyEstimateErr turns a raw estimate_gas failure message into one of
// the typed estimation-failure errors above. Centralizing the patterns here
// keeps them updatable without touching the send pipeline.
func classifyEstimateErr(sender types.Sender, amount *types.BigInt, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case containsErr(err, "insufficient funds for transfer"):
		return &InsufficientFundsForTransferError{Sender: sender, Amount: amount}
	case containsErr(err, "contract creation code storage out of gas"):
		return &InsufficientFundsForDeployError{Sender: sender}
	default:
		return &GasEstimationFailedError{Sender: sender, Message: err.Error()}
	}
}

func containsErr(err error, sub string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), strings.ToLower(sub))
}
