package statemachine

import (
	"testing"

	"fulfillsim/internal/domain"
)

func TestMatchesIgnoresUnconstrainedFields(t *testing.T) {
	state := domain.CompositeState{
		OrderStatus:            domain.OrderInProgress,
		FulfillmentOrderStatus: domain.FulfillmentOrderOpen,
		RequestStatus:          domain.RequestSubmitted,
	}
	if !Matches(state, domain.CompositeState{FulfillmentOrderStatus: domain.FulfillmentOrderOpen}) {
		t.Fatal("single-field guard should match")
	}
	if !Matches(state, domain.CompositeState{}) {
		t.Fatal("empty guard should match everything")
	}
	if Matches(state, domain.CompositeState{FulfillmentOrderStatus: domain.FulfillmentOrderClosed}) {
		t.Fatal("mismatching field should fail")
	}
	if Matches(state, domain.CompositeState{
		FulfillmentOrderStatus: domain.FulfillmentOrderOpen,
		FulfillmentStatus:      domain.FulfillmentSuccess,
	}) {
		t.Fatal("guard on an unobserved dimension should fail")
	}
}

func TestAvailableTransitionsForSubmittedRequest(t *testing.T) {
	state := domain.CompositeState{
		FulfillmentOrderStatus: domain.FulfillmentOrderOpen,
		RequestStatus:          domain.RequestSubmitted,
	}
	defs := AvailableTransitions(state)
	want := []TransitionID{
		AcceptFulfillmentRequest,
		RejectFulfillmentRequest,
		PlaceHold,
		MockExternalFulfillment,
		MockMoveFulfillmentOrder,
		MockSystemCancellation,
	}
	if len(defs) != len(want) {
		t.Fatalf("got %d transitions, want %d", len(defs), len(want))
	}
	for i, id := range want {
		if defs[i].ID != id {
			t.Fatalf("transition %d: got %s, want %s", i, defs[i].ID, id)
		}
	}
}

func TestAvailableTransitionsForUnobservedState(t *testing.T) {
	defs := AvailableTransitions(domain.CompositeState{})
	if len(defs) != 1 {
		t.Fatalf("got %d transitions, want only the unconditional one", len(defs))
	}
	if defs[0].ID != MockSystemCancellation {
		t.Fatalf("got %s, want %s", defs[0].ID, MockSystemCancellation)
	}
}

func TestLookupUnknownTransition(t *testing.T) {
	if _, ok := Lookup("NOT_A_TRANSITION"); ok {
		t.Fatal("lookup of unknown id should fail")
	}
	_, err := ApplyTransition(domain.CompositeState{}, "NOT_A_TRANSITION")
	unknown, ok := err.(UnknownTransitionError)
	if !ok {
		t.Fatalf("expected UnknownTransitionError, got %v", err)
	}
	if unknown.ID != "NOT_A_TRANSITION" {
		t.Fatalf("unexpected id %s", unknown.ID)
	}
}

func TestApplyIsPure(t *testing.T) {
	state := domain.CompositeState{
		FulfillmentOrderStatus: domain.FulfillmentOrderOpen,
		RequestStatus:          domain.RequestSubmitted,
	}
	next, err := ApplyTransition(state, AcceptFulfillmentRequest)
	if err != nil {
		t.Fatal(err)
	}
	if state.RequestStatus != domain.RequestSubmitted {
		t.Fatal("input state was mutated")
	}
	again, _ := ApplyTransition(state, AcceptFulfillmentRequest)
	if next != again {
		t.Fatal("apply is not deterministic")
	}
}

func TestCatalogPostconditions(t *testing.T) {
	cases := []struct {
		id    TransitionID
		from  domain.CompositeState
		check func(domain.CompositeState) bool
	}{
		{
			id: AcceptFulfillmentRequest,
			from: domain.CompositeState{
				FulfillmentOrderStatus: domain.FulfillmentOrderOpen,
				RequestStatus:          domain.RequestSubmitted,
			},
			check: func(s domain.CompositeState) bool {
				return s.FulfillmentOrderStatus == domain.FulfillmentOrderInProgress && s.RequestStatus == domain.RequestAccepted
			},
		},
		{
			id: CreateFulfillment,
			from: domain.CompositeState{
				FulfillmentOrderStatus: domain.FulfillmentOrderInProgress,
				RequestStatus:          domain.RequestAccepted,
			},
			check: func(s domain.CompositeState) bool {
				return s.OrderStatus == domain.OrderFulfilled &&
					s.FulfillmentOrderStatus == domain.FulfillmentOrderClosed &&
					s.FulfillmentStatus == ""
			},
		},
		{
			id:   UpdateTracking,
			from: domain.CompositeState{FulfillmentOrderStatus: domain.FulfillmentOrderClosed},
			check: func(s domain.CompositeState) bool {
				return s == domain.CompositeState{FulfillmentOrderStatus: domain.FulfillmentOrderClosed}
			},
		},
		{
			id:   PlaceHold,
			from: domain.CompositeState{FulfillmentOrderStatus: domain.FulfillmentOrderOpen},
			check: func(s domain.CompositeState) bool {
				return s.FulfillmentOrderStatus == domain.FulfillmentOrderOnHold
			},
		},
		{
			id:   ReleaseHold,
			from: domain.CompositeState{FulfillmentOrderStatus: domain.FulfillmentOrderOnHold},
			check: func(s domain.CompositeState) bool {
				return s.FulfillmentOrderStatus == domain.FulfillmentOrderOpen
			},
		},
		{
			id:   MockSystemCancellation,
			from: domain.CompositeState{},
			check: func(s domain.CompositeState) bool {
				return s.FulfillmentOrderStatus == domain.FulfillmentOrderCancelled &&
					s.RequestStatus == domain.RequestCancellationAccepted &&
					s.FulfillmentStatus == domain.FulfillmentCancelled
			},
		},
	}
	for _, tc := range cases {
		def, ok := Lookup(tc.id)
		if !ok {
			t.Fatalf("%s missing from catalog", tc.id)
		}
		if !def.Guard(tc.from) {
			t.Fatalf("%s guard rejects its own precondition", tc.id)
		}
		next := def.Apply(tc.from)
		if !tc.check(next) {
			t.Fatalf("%s postcondition failed: %+v", tc.id, next)
		}
	}
}

func TestCatalogOrderAndSize(t *testing.T) {
	defs := Catalog()
	if len(defs) != 13 {
		t.Fatalf("catalog has %d entries, want 13", len(defs))
	}
	if defs[0].ID != AcceptFulfillmentRequest || defs[len(defs)-1].ID != MockSystemCancellation {
		t.Fatal("catalog order changed")
	}
	kinds := map[Kind]int{}
	for _, def := range defs {
		kinds[def.Kind]++
	}
	if kinds[KindAPI] != 10 || kinds[KindMock] != 2 || kinds[KindSystem] != 1 {
		t.Fatalf("unexpected kind split: %v", kinds)
	}
}
