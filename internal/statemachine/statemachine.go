package statemachine

import (
	"fmt"

	"fulfillsim/internal/domain"
)

// Kind classifies how a transition is executed.
type Kind string

const (
	// KindAPI transitions call the external platform and must be reconciled
	// against the re-fetched remote state afterwards.
	KindAPI Kind = "api"
	// KindMock transitions simulate an external actor and are applied
	// directly to the stored snapshot without any platform call.
	KindMock Kind = "mock"
	// KindSystem transitions simulate an autonomous platform decision and
	// are offered regardless of the current state.
	KindSystem Kind = "system"
)

type TransitionID string

const (
	AcceptFulfillmentRequest TransitionID = "ACCEPT_FULFILLMENT_REQUEST"
	RejectFulfillmentRequest TransitionID = "REJECT_FULFILLMENT_REQUEST"
	CreateFulfillment        TransitionID = "CREATE_FULFILLMENT"
	UpdateTracking           TransitionID = "UPDATE_TRACKING"
	CancelFulfillment        TransitionID = "CANCEL_FULFILLMENT"
	AcceptCancellation       TransitionID = "ACCEPT_CANCELLATION"
	RejectCancellation       TransitionID = "REJECT_CANCELLATION"
	PlaceHold                TransitionID = "PLACE_HOLD"
	ReleaseHold              TransitionID = "RELEASE_HOLD"
	CloseFulfillmentOrder    TransitionID = "CLOSE_FULFILLMENT_ORDER"
	MockExternalFulfillment  TransitionID = "MOCK_EXTERNAL_FULFILLMENT"
	MockMoveFulfillmentOrder TransitionID = "MOCK_MOVE_FULFILLMENT_ORDER"
	MockSystemCancellation   TransitionID = "MOCK_SYSTEM_CANCELLATION"
)

// Definition is one legal lifecycle operation. Apply returns the expected
// post-condition; the platform remains the source of truth, so call sites
// re-fetch and reconcile after executing an api transition.
type Definition struct {
	ID          TransitionID
	Label       string
	Description string
	Kind        Kind
	Guard       func(domain.CompositeState) bool
	Apply       func(domain.CompositeState) domain.CompositeState
}

// Matches reports whether every non-empty field of expected equals the
// corresponding field of state. Unconstrained (empty) fields always pass, so
// a guard keys off exactly the dimensions relevant to it.
func Matches(state, expected domain.CompositeState) bool {
	for _, pair := range [][2]string{
		{state.OrderStatus, expected.OrderStatus},
		{state.OrderFinancialStatus, expected.OrderFinancialStatus},
		{state.FulfillmentOrderStatus, expected.FulfillmentOrderStatus},
		{state.RequestStatus, expected.RequestStatus},
		{state.FulfillmentStatus, expected.FulfillmentStatus},
	} {
		if pair[1] != "" && pair[0] != pair[1] {
			return false
		}
	}
	return true
}

func guard(expected domain.CompositeState) func(domain.CompositeState) bool {
	return func(state domain.CompositeState) bool {
		return Matches(state, expected)
	}
}

// catalog is closed and ordered; iteration order determines the order
// transitions are offered to callers.
var catalog = []Definition{
	{
		ID:    AcceptFulfillmentRequest,
		Label: "Accept fulfillment request",
		Kind:  KindAPI,
		Guard: guard(domain.CompositeState{
			FulfillmentOrderStatus: domain.FulfillmentOrderOpen,
			RequestStatus:          domain.RequestSubmitted,
		}),
		Apply: func(s domain.CompositeState) domain.CompositeState {
			s.FulfillmentOrderStatus = domain.FulfillmentOrderInProgress
			s.RequestStatus = domain.RequestAccepted
			return s
		},
	},
	{
		ID:    RejectFulfillmentRequest,
		Label: "Reject fulfillment request",
		Kind:  KindAPI,
		Guard: guard(domain.CompositeState{
			FulfillmentOrderStatus: domain.FulfillmentOrderOpen,
			RequestStatus:          domain.RequestSubmitted,
		}),
		Apply: func(s domain.CompositeState) domain.CompositeState {
			s.RequestStatus = domain.RequestRejected
			return s
		},
	},
	{
		ID:          CreateFulfillment,
		Label:       "Create fulfillment",
		Description: "Creates a fulfillment for the remaining line items (tracking optional).",
		Kind:        KindAPI,
		Guard: guard(domain.CompositeState{
			FulfillmentOrderStatus: domain.FulfillmentOrderInProgress,
			RequestStatus:          domain.RequestAccepted,
		}),
		Apply: func(s domain.CompositeState) domain.CompositeState {
			s.OrderStatus = domain.OrderFulfilled
			s.FulfillmentOrderStatus = domain.FulfillmentOrderClosed
			// The platform reports a null fulfillmentStatus on the order
			// snapshot even after the fulfillment is created, so the
			// prediction leaves it unset and defers to reconciliation.
			s.FulfillmentStatus = ""
			return s
		},
	},
	{
		ID:    UpdateTracking,
		Label: "Update tracking",
		Kind:  KindAPI,
		Guard: guard(domain.CompositeState{
			FulfillmentOrderStatus: domain.FulfillmentOrderClosed,
		}),
		Apply: func(s domain.CompositeState) domain.CompositeState {
			// Side-channel only; no state change expected.
			return s
		},
	},
	{
		ID:    CancelFulfillment,
		Label: "Cancel fulfillment",
		Kind:  KindAPI,
		Guard: guard(domain.CompositeState{
			FulfillmentStatus: domain.FulfillmentSuccess,
		}),
		Apply: func(s domain.CompositeState) domain.CompositeState {
			s.FulfillmentStatus = domain.FulfillmentCancelled
			s.FulfillmentOrderStatus = domain.FulfillmentOrderOpen
			s.RequestStatus = domain.RequestCancellationRequested
			return s
		},
	},
	{
		ID:    AcceptCancellation,
		Label: "Accept cancellation",
		Kind:  KindAPI,
		Guard: guard(domain.CompositeState{
			RequestStatus: domain.RequestCancellationRequested,
		}),
		Apply: func(s domain.CompositeState) domain.CompositeState {
			s.RequestStatus = domain.RequestCancellationAccepted
			s.FulfillmentOrderStatus = domain.FulfillmentOrderCancelled
			return s
		},
	},
	{
		ID:    RejectCancellation,
		Label: "Reject cancellation",
		Kind:  KindAPI,
		Guard: guard(domain.CompositeState{
			RequestStatus: domain.RequestCancellationRequested,
		}),
		Apply: func(s domain.CompositeState) domain.CompositeState {
			s.RequestStatus = domain.RequestCancellationRejected
			s.FulfillmentOrderStatus = domain.FulfillmentOrderInProgress
			return s
		},
	},
	{
		ID:    PlaceHold,
		Label: "Place hold",
		Kind:  KindAPI,
		Guard: guard(domain.CompositeState{
			FulfillmentOrderStatus: domain.FulfillmentOrderOpen,
		}),
		Apply: func(s domain.CompositeState) domain.CompositeState {
			s.FulfillmentOrderStatus = domain.FulfillmentOrderOnHold
			return s
		},
	},
	{
		ID:    ReleaseHold,
		Label: "Release hold",
		Kind:  KindAPI,
		Guard: guard(domain.CompositeState{
			FulfillmentOrderStatus: domain.FulfillmentOrderOnHold,
		}),
		Apply: func(s domain.CompositeState) domain.CompositeState {
			s.FulfillmentOrderStatus = domain.FulfillmentOrderOpen
			return s
		},
	},
	{
		ID:    CloseFulfillmentOrder,
		Label: "Close fulfillment order",
		Kind:  KindAPI,
		Guard: guard(domain.CompositeState{
			FulfillmentOrderStatus: domain.FulfillmentOrderInProgress,
		}),
		Apply: func(s domain.CompositeState) domain.CompositeState {
			s.FulfillmentOrderStatus = domain.FulfillmentOrderIncomplete
			s.RequestStatus = domain.RequestClosed
			return s
		},
	},
	{
		ID:          MockExternalFulfillment,
		Label:       "Mock: External fulfillment complete",
		Description: "Represents an external 3PL marking the order fulfilled outside the platform.",
		Kind:        KindMock,
		Guard: guard(domain.CompositeState{
			RequestStatus: domain.RequestSubmitted,
		}),
		Apply: func(s domain.CompositeState) domain.CompositeState {
			s.FulfillmentOrderStatus = domain.FulfillmentOrderClosed
			s.RequestStatus = domain.RequestAccepted
			s.FulfillmentStatus = domain.FulfillmentSuccess
			return s
		},
	},
	{
		ID:          MockMoveFulfillmentOrder,
		Label:       "Mock: Move fulfillment order",
		Description: "Simulates re-routing work to another location. In practice the platform splits the fulfillment order.",
		Kind:        KindMock,
		Guard: guard(domain.CompositeState{
			FulfillmentOrderStatus: domain.FulfillmentOrderOpen,
		}),
		Apply: func(s domain.CompositeState) domain.CompositeState {
			s.FulfillmentOrderStatus = domain.FulfillmentOrderOpen
			s.RequestStatus = domain.RequestUnsubmitted
			return s
		},
	},
	{
		ID:          MockSystemCancellation,
		Label:       "Mock: System cancellation",
		Description: "Emulates the platform automatically cancelling the fulfillment order (e.g. inventory shortfall).",
		Kind:        KindSystem,
		Guard:       func(domain.CompositeState) bool { return true },
		Apply: func(s domain.CompositeState) domain.CompositeState {
			s.FulfillmentOrderStatus = domain.FulfillmentOrderCancelled
			s.RequestStatus = domain.RequestCancellationAccepted
			s.FulfillmentStatus = domain.FulfillmentCancelled
			return s
		},
	},
}

// Catalog returns the full ordered transition catalog.
func Catalog() []Definition {
	out := make([]Definition, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds a transition definition by id.
func Lookup(id TransitionID) (Definition, bool) {
	for _, def := range catalog {
		if def.ID == id {
			return def, true
		}
	}
	return Definition{}, false
}

// AvailableTransitions filters the catalog by guard, preserving catalog
// order. It is side-effect free.
func AvailableTransitions(state domain.CompositeState) []Definition {
	var out []Definition
	for _, def := range catalog {
		if def.Guard(state) {
			out = append(out, def)
		}
	}
	return out
}

// UnknownTransitionError reports a transition id not present in the catalog.
type UnknownTransitionError struct {
	ID TransitionID
}

func (e UnknownTransitionError) Error() string {
	return fmt.Sprintf("unknown transition %q", string(e.ID))
}

// ApplyTransition returns the expected state after the named transition. It
// does not re-check the guard: callers are expected to offer only transitions
// returned by AvailableTransitions, and the unconditional system transition
// relies on being applied regardless of the current state.
func ApplyTransition(state domain.CompositeState, id TransitionID) (domain.CompositeState, error) {
	def, ok := Lookup(id)
	if !ok {
		return domain.CompositeState{}, UnknownTransitionError{ID: id}
	}
	return def.Apply(state), nil
}
