package engine

import "fmt"

// LookupFailedError means the platform has no record of the fulfillment order
// a sync was requested for. Nothing is written locally in that case.
type LookupFailedError struct {
	FulfillmentOrderID string
	Topic              string
}

func (e *LookupFailedError) Error() string {
	return fmt.Sprintf("fulfillment order %s not found on platform (topic %s)", e.FulfillmentOrderID, e.Topic)
}

// MissingSnapshotError means a mock transition was requested for a key that
// was never observed, so there is no state to apply it to.
type MissingSnapshotError struct {
	FulfillmentOrderID string
}

func (e *MissingSnapshotError) Error() string {
	return fmt.Sprintf("no state snapshot for fulfillment order %s; sync it first", e.FulfillmentOrderID)
}
