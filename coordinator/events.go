package coordinator

// Event is one reconciliation outcome from a sync pass.
type Event interface {
	isEvent()
}

// OnchainInteractionDropped means all of our transactions at this
// interaction's nonce are gone from the node and no other transaction has
// taken that nonce.
type OnchainInteractionDropped struct {
	FutureID             string
	NetworkInteractionID int
}

func (OnchainInteractionDropped) isEvent() {}

// OnchainInteractionReplacedByUser means a transaction at this
// interaction's nonce was mined, but it was not one of ours.
type OnchainInteractionReplacedByUser struct {
	FutureID             string
	NetworkInteractionID int
}

func (OnchainInteractionReplacedByUser) isEvent() {}
