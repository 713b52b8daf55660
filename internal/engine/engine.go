package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"fulfillsim/internal/config"
	"fulfillsim/internal/domain"
	"fulfillsim/internal/repo"
	"fulfillsim/internal/shopify"
	"fulfillsim/internal/statemachine"
)

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	GraphQL   shopify.GraphQL
	Config    *config.Config
	Locations *shopify.AddressCache
	Now       func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:        db,
		Repo:      repo.Repo{DB: db},
		GraphQL:   shopify.NewClient(cfg.Endpoint(), cfg.Shop.AccessToken),
		Config:    cfg,
		Locations: shopify.NewAddressCache(),
		Now:       time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) client(label string) shopify.GraphQL {
	if c, ok := e.GraphQL.(*shopify.Client); ok {
		return c.Labeled(label)
	}
	return e.GraphQL
}

// SyncResult is the outcome of one reconciliation pass.
type SyncResult struct {
	Snapshot domain.StateSnapshot
	Previous *domain.CompositeState
	Changed  bool
	Log      domain.TransitionLog
}

// SyncState fetches the remote truth for a fulfillment order, upserts the
// local mirror and snapshot, and appends exactly one log entry. topic names
// the trigger (a webhook topic, "manual/<transition>" or "provision/..."),
// actor identifies who caused it. A state differing from the previous
// snapshot is recorded as an ERROR entry but the sync still succeeds.
func (e Engine) SyncState(ctx context.Context, fulfillmentOrderID, topic, actor string) (SyncResult, error) {
	remote, err := shopify.FetchFulfillmentState(ctx, e.client(topic), fulfillmentOrderID)
	if err != nil {
		if errors.Is(err, shopify.ErrNotFound) {
			log.Printf("sync %s: fulfillment order %s not found on platform", topic, fulfillmentOrderID)
			return SyncResult{}, &LookupFailedError{FulfillmentOrderID: fulfillmentOrderID, Topic: topic}
		}
		return SyncResult{}, err
	}

	now := e.now().UTC().Format(time.RFC3339)
	state := domain.CompositeState{
		OrderStatus:            remote.Order.DisplayFulfillmentStatus,
		OrderFinancialStatus:   remote.Order.DisplayFinancialStatus,
		FulfillmentOrderStatus: remote.FulfillmentOrder.Status,
		RequestStatus:          remote.FulfillmentOrder.RequestStatus,
		// Order-level fulfillments are not part of the remote projection;
		// only mock transitions write this dimension.
		FulfillmentStatus: "",
	}
	actions := ""
	if len(remote.FulfillmentOrder.SupportedActions) > 0 {
		raw, err := json.Marshal(remote.FulfillmentOrder.SupportedActions)
		if err == nil {
			actions = string(raw)
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return SyncResult{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpsertOrderTx(ctx, tx, domain.Order{
		ID:                remote.Order.ID,
		ShopDomain:        e.Config.Shop.Domain,
		Name:              remote.Order.Name,
		CustomerFirstName: remote.Order.CustomerFirstName,
		CustomerLastName:  remote.Order.CustomerLastName,
		CustomerEmail:     remote.Order.CustomerEmail,
		CurrencyCode:      remote.Order.CurrencyCode,
		ProcessedAt:       remote.Order.ProcessedAt,
		CreatedAt:         now,
	}); err != nil {
		return SyncResult{}, fmt.Errorf("upsert order: %w", err)
	}
	if err := e.Repo.UpsertFulfillmentOrderTx(ctx, tx, domain.FulfillmentOrder{
		ID:                   remote.FulfillmentOrder.ID,
		OrderID:              remote.Order.ID,
		AssignedLocationID:   remote.FulfillmentOrder.AssignedLocationID,
		Status:               remote.FulfillmentOrder.Status,
		RequestStatus:        remote.FulfillmentOrder.RequestStatus,
		SupportedActionsJSON: actions,
		FulfillAt:            remote.FulfillmentOrder.FulfillAt,
		CreatedAt:            now,
		UpdatedAt:            now,
	}); err != nil {
		return SyncResult{}, fmt.Errorf("upsert fulfillment order: %w", err)
	}

	var previous *domain.CompositeState
	prev, err := e.Repo.GetSnapshotTx(ctx, tx, remote.Order.ID, remote.FulfillmentOrder.ID)
	switch {
	case err == nil:
		previous = &prev.State
	case errors.Is(err, repo.ErrNotFound):
	default:
		return SyncResult{}, err
	}

	snapshot := domain.StateSnapshot{
		OrderID:            remote.Order.ID,
		FulfillmentOrderID: remote.FulfillmentOrder.ID,
		State:              state,
		LastSyncAt:         now,
	}
	if err := e.Repo.UpsertSnapshotTx(ctx, tx, snapshot); err != nil {
		return SyncResult{}, fmt.Errorf("upsert snapshot: %w", err)
	}

	changed := previous != nil && *previous != state
	entry := domain.TransitionLog{
		ID:                 uuid.NewString(),
		OrderID:            remote.Order.ID,
		FulfillmentOrderID: remote.FulfillmentOrder.ID,
		Kind:               domain.LogStateChange,
		Action:             topic,
		Actor:              actor,
		NextState:          mustJSON(state),
		CreatedAt:          now,
	}
	switch {
	case previous == nil:
		entry.Message = fmt.Sprintf("Applied %s. State %s", topic, state.Summary())
	case changed:
		entry.Kind = domain.LogError
		entry.PreviousState = mustJSON(*previous)
		entry.Message = fmt.Sprintf("Mismatch after %s. New state %s", topic, state.Summary())
	default:
		entry.PreviousState = mustJSON(*previous)
		entry.Message = fmt.Sprintf("Applied %s. No change (%s)", topic, state.Summary())
	}
	if err := e.Repo.AppendTransitionLogTx(ctx, tx, entry); err != nil {
		return SyncResult{}, fmt.Errorf("append log: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return SyncResult{}, err
	}
	if changed {
		log.Printf("sync %s: state mismatch for %s (was %s, now %s)", topic, remote.FulfillmentOrder.ID, previous.Summary(), state.Summary())
	}
	return SyncResult{Snapshot: snapshot, Previous: previous, Changed: changed, Log: entry}, nil
}

// ExecuteTransition runs one catalog transition. API transitions call the
// platform and then reconcile; mock and system transitions rewrite the stored
// snapshot directly.
func (e Engine) ExecuteTransition(ctx context.Context, id statemachine.TransitionID, fulfillmentOrderID, actor string) (SyncResult, error) {
	def, ok := statemachine.Lookup(id)
	if !ok {
		return SyncResult{}, statemachine.UnknownTransitionError{ID: id}
	}
	if def.Kind == statemachine.KindAPI {
		if err := e.executeAPI(ctx, def, fulfillmentOrderID); err != nil {
			return SyncResult{}, err
		}
		return e.SyncState(ctx, fulfillmentOrderID, "manual/"+string(id), actor)
	}
	return e.applyMock(ctx, def, fulfillmentOrderID, actor)
}

func (e Engine) executeAPI(ctx context.Context, def statemachine.Definition, fulfillmentOrderID string) error {
	g := e.client(string(def.ID))
	switch def.ID {
	case statemachine.AcceptFulfillmentRequest:
		return shopify.AcceptFulfillmentRequest(ctx, g, fulfillmentOrderID, "Accepted by simulator")
	case statemachine.RejectFulfillmentRequest:
		return shopify.RejectFulfillmentRequest(ctx, g, fulfillmentOrderID, "Rejected by simulator")
	case statemachine.CreateFulfillment:
		items, err := shopify.FulfillableLineItems(ctx, g, fulfillmentOrderID)
		if err != nil {
			if errors.Is(err, shopify.ErrNotFound) {
				return &shopify.UserErrorsError{Messages: []string{"no fulfillable line items remain"}}
			}
			return err
		}
		origin := e.resolveOrigin(ctx, g, fulfillmentOrderID)
		tracking := &shopify.TrackingInput{
			Company: "Simulated Carrier",
			Number:  fmt.Sprintf("SIM-%d", e.now().Unix()),
		}
		return shopify.CreateFulfillment(ctx, g, fulfillmentOrderID, items, origin, tracking)
	case statemachine.UpdateTracking:
		fulfillmentID, err := shopify.LatestFulfillmentID(ctx, g, fulfillmentOrderID)
		if err != nil {
			return err
		}
		return shopify.UpdateTracking(ctx, g, fulfillmentID, shopify.TrackingInput{
			Company: "Simulated Carrier",
			Number:  fmt.Sprintf("SIM-%d", e.now().Unix()),
		})
	case statemachine.CancelFulfillment:
		fulfillmentID, err := shopify.LatestFulfillmentID(ctx, g, fulfillmentOrderID)
		if err != nil {
			return err
		}
		return shopify.CancelFulfillment(ctx, g, fulfillmentID)
	case statemachine.AcceptCancellation:
		return shopify.AcceptCancellationRequest(ctx, g, fulfillmentOrderID, "Cancellation accepted by simulator")
	case statemachine.RejectCancellation:
		return shopify.RejectCancellationRequest(ctx, g, fulfillmentOrderID, "Cancellation rejected by simulator")
	case statemachine.PlaceHold:
		return shopify.PlaceHold(ctx, g, fulfillmentOrderID, shopify.HoldInput{
			Reason:      "INVENTORY_OUT_OF_STOCK",
			ReasonNotes: "Hold placed from simulator",
			Handle:      fmt.Sprintf("sim-hold-%d", e.now().Unix()),
		})
	case statemachine.ReleaseHold:
		return shopify.ReleaseHold(ctx, g, fulfillmentOrderID)
	case statemachine.CloseFulfillmentOrder:
		return shopify.CloseFulfillmentOrder(ctx, g, fulfillmentOrderID, "Closed by simulator")
	}
	return fmt.Errorf("transition %s has no executor", def.ID)
}

// resolveOrigin best-effort resolves the shipping origin from the assigned
// location. Fulfillment creation works without it, so failures only warn.
func (e Engine) resolveOrigin(ctx context.Context, g shopify.GraphQL, fulfillmentOrderID string) *shopify.OriginAddress {
	fo, err := e.Repo.GetFulfillmentOrder(ctx, fulfillmentOrderID)
	if err != nil || fo.AssignedLocationID == "" {
		return nil
	}
	if e.Locations == nil {
		return nil
	}
	origin, err := e.Locations.Resolve(ctx, g, fo.AssignedLocationID)
	if err != nil {
		log.Printf("resolve origin for %s: %v", fulfillmentOrderID, err)
		return nil
	}
	return &origin
}

func (e Engine) applyMock(ctx context.Context, def statemachine.Definition, fulfillmentOrderID, actor string) (SyncResult, error) {
	fo, err := e.Repo.GetFulfillmentOrder(ctx, fulfillmentOrderID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return SyncResult{}, &MissingSnapshotError{FulfillmentOrderID: fulfillmentOrderID}
		}
		return SyncResult{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return SyncResult{}, err
	}
	defer tx.Rollback()

	prev, err := e.Repo.GetSnapshotTx(ctx, tx, fo.OrderID, fulfillmentOrderID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return SyncResult{}, &MissingSnapshotError{FulfillmentOrderID: fulfillmentOrderID}
		}
		return SyncResult{}, err
	}
	next := def.Apply(prev.State)
	now := e.now().UTC().Format(time.RFC3339)
	snapshot := domain.StateSnapshot{
		OrderID:            fo.OrderID,
		FulfillmentOrderID: fulfillmentOrderID,
		State:              next,
		LastSyncAt:         now,
	}
	if err := e.Repo.UpsertSnapshotTx(ctx, tx, snapshot); err != nil {
		return SyncResult{}, fmt.Errorf("upsert snapshot: %w", err)
	}
	entry := domain.TransitionLog{
		ID:                 uuid.NewString(),
		OrderID:            fo.OrderID,
		FulfillmentOrderID: fulfillmentOrderID,
		Kind:               domain.LogMock,
		Action:             string(def.ID),
		Actor:              actor,
		PreviousState:      mustJSON(prev.State),
		NextState:          mustJSON(next),
		Message:            fmt.Sprintf("Mock transition %s executed from manual simulator", def.ID),
		CreatedAt:          now,
	}
	if err := e.Repo.AppendTransitionLogTx(ctx, tx, entry); err != nil {
		return SyncResult{}, fmt.Errorf("append log: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return SyncResult{}, err
	}
	return SyncResult{Snapshot: snapshot, Previous: &prev.State, Changed: prev.State != next, Log: entry}, nil
}

func mustJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
