// Package types defines the data model shared by the coordinator's
// components: senders, fees, on-chain interactions, execution state, and the
// narrow views the coordinator needs onto the deployment module it is
// driving.
package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Sender is a 20-byte account identifier. It keys all nonce state.
type Sender = common.Address

// FeeKind distinguishes the two fee markets NetworkFees can represent.
type FeeKind uint8

const (
	// FeeKindLegacy is the single-field gasPrice market.
	FeeKindLegacy FeeKind = iota
	// FeeKindEip1559 is the two-field priority/max-fee market.
	FeeKindEip1559
)

func (k FeeKind) String() string {
	if k == FeeKindEip1559 {
		return "eip1559"
	}
	return "legacy"
}

// NetworkFees is a tagged union over the two fee markets this coordinator
// understands. Only the fields belonging to Kind are meaningful.
type NetworkFees struct {
	Kind                 FeeKind
	GasPrice             *BigInt // legacy
	MaxFeePerGas         *BigInt // eip1559
	MaxPriorityFeePerGas *BigInt // eip1559
}

// LegacyFees builds a Legacy NetworkFees.
func LegacyFees(gasPrice *BigInt) NetworkFees {
	return NetworkFees{Kind: FeeKindLegacy, GasPrice: gasPrice}
}

// Eip1559Fees builds an Eip1559 NetworkFees.
func Eip1559Fees(maxFeePerGas, maxPriorityFeePerGas *BigInt) NetworkFees {
	return NetworkFees{
		Kind:                 FeeKindEip1559,
		MaxFeePerGas:         maxFeePerGas,
		MaxPriorityFeePerGas: maxPriorityFeePerGas,
	}
}

func (f NetworkFees) String() string {
	if f.Kind == FeeKindEip1559 {
		return fmt.Sprintf("eip1559{maxFee:%s,maxPrio:%s}", f.MaxFeePerGas, f.MaxPriorityFeePerGas)
	}
	return fmt.Sprintf("legacy{gasPrice:%s}", f.GasPrice)
}

// TransactionRecord is one broadcast attempt for an OnchainInteraction.
// Immutable once created.
type TransactionRecord struct {
	Hash common.Hash
	Fees NetworkFees
}

// OnchainInteraction is the logical action the send pipeline drives to
// completion. Nonce is absent (nil) until the first send allocates one; once
// set it is immutable. Transactions is append-only: every entry shares
// Nonce, and each entry's Fees strictly exceeds its predecessor's, per the
// replacement-bump rule.
type OnchainInteraction struct {
	ID           int
	From         Sender
	To           *common.Address // nil => contract creation
	Data         []byte
	Value        *BigInt
	Nonce        *uint64
	Transactions []TransactionRecord
}

// LastTransaction returns the most recent broadcast attempt, or false if
// none has been made yet.
func (oi *OnchainInteraction) LastTransaction() (TransactionRecord, bool) {
	if len(oi.Transactions) == 0 {
		return TransactionRecord{}, false
	}
	return oi.Transactions[len(oi.Transactions)-1], true
}

// ExecutionStatus is the lifecycle state of an ExecutionState.
type ExecutionStatus int

const (
	StatusStarted ExecutionStatus = iota
	StatusRunning
	StatusSuccess
	StatusTimeout
	StatusFailure
)

func (s ExecutionStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusTimeout || s == StatusFailure
}

// ExecutionKind identifies the future variant an ExecutionState was created
// for. The three read-only kinds (read-event-argument, contract-at,
// encode-function-call) never produce transactions or allocate a nonce.
type ExecutionKind int

const (
	KindDeployment ExecutionKind = iota
	KindCall
	KindSend
	KindStaticCall
	KindReadEventArgument
	KindContractAt
	KindEncodeFunctionCall
)

// TransactionProducing reports whether executions of this kind ever submit
// a transaction (and therefore ever need a nonce).
func (k ExecutionKind) TransactionProducing() bool {
	switch k {
	case KindReadEventArgument, KindContractAt, KindEncodeFunctionCall:
		return false
	default:
		return true
	}
}

// ExecutionState is one future's run-time record within a DeploymentState.
type ExecutionState struct {
	ID           string
	Type         ExecutionKind
	Status       ExecutionStatus
	From         Sender
	Interactions []*OnchainInteraction
}

// DeploymentState is the full set of execution states for one deployment.
type DeploymentState map[string]*ExecutionState

// Future is one step of an IgnitionModule's plan, prior to execution having
// started for it (so it has no ExecutionState entry yet). ResolveFrom
// resolves its declared sender descriptor to a concrete Sender given the
// accounts available to the deployment and its default sender; it returns
// ok=false for the four read-only future kinds, which never allocate a
// nonce.
type Future interface {
	ID() string
	ResolveFrom(accounts []Sender, defaultSender Sender) (sender Sender, ok bool)
}

// Module is the opaque deployment plan the coordinator drives: it never
// inspects dependency structure, only enumerates futures to find senders
// that might constrain future nonce allocation during a sync pass.
type Module interface {
	Futures() []Future
}

// RawResult is the opaque outcome of an eth_call-style simulation: a byte
// string plus a success/revert flag. Decoding it into a structured
// simulation error is the caller's responsibility (DecodeSimulation).
type RawResult struct {
	Data     []byte
	Reverted bool
}
