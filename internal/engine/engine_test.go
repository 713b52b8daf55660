package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"fulfillsim/internal/config"
	"fulfillsim/internal/db"
	"fulfillsim/internal/domain"
	"fulfillsim/internal/migrate"
	"fulfillsim/internal/repo"
	"fulfillsim/internal/shopify"
)

const (
	testOrderID = "gid://shopify/Order/1001"
	testFOID    = "gid://shopify/FulfillmentOrder/2001"
)

// fakeShop serves canned GraphQL responses and mutates its own state the way
// the platform would.
type fakeShop struct {
	orderStatus      string
	financialStatus  string
	status           string
	requestStatus    string
	notFound         bool
	acceptUserErrors []string
	calls            []string
}

func (f *fakeShop) Execute(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	switch {
	case strings.Contains(query, "query FulfillmentState"):
		f.calls = append(f.calls, "state")
		if f.notFound {
			return json.RawMessage(`{"fulfillmentOrder":null}`), nil
		}
		return json.RawMessage(fmt.Sprintf(`{
			"fulfillmentOrder": {
				"id": %q,
				"status": %q,
				"requestStatus": %q,
				"fulfillAt": "",
				"supportedActions": [{"action": "ACCEPT_FULFILLMENT_REQUEST"}],
				"assignedLocation": {"location": {"id": "gid://shopify/Location/77"}},
				"order": {
					"id": %q,
					"name": "#1001",
					"displayFulfillmentStatus": %q,
					"displayFinancialStatus": %q,
					"processedAt": "2025-04-01T10:00:00Z",
					"currencyCode": "EUR",
					"customer": {"firstName": "Ada", "lastName": "Byron", "email": "ada@example.com"}
				}
			}
		}`, testFOID, f.status, f.requestStatus, testOrderID, f.orderStatus, f.financialStatus)), nil
	case strings.Contains(query, "fulfillmentOrderAcceptFulfillmentRequest"):
		f.calls = append(f.calls, "accept")
		if len(f.acceptUserErrors) > 0 {
			var entries []string
			for _, msg := range f.acceptUserErrors {
				entries = append(entries, fmt.Sprintf(`{"message": %q}`, msg))
			}
			return json.RawMessage(`{"fulfillmentOrderAcceptFulfillmentRequest":{"userErrors":[` + strings.Join(entries, ",") + `]}}`), nil
		}
		f.status = domain.FulfillmentOrderInProgress
		f.requestStatus = domain.RequestAccepted
		return json.RawMessage(`{"fulfillmentOrderAcceptFulfillmentRequest":{"fulfillmentOrder":{"id":"x"},"userErrors":[]}}`), nil
	}
	return nil, fmt.Errorf("unexpected query: %s", query)
}

func newTestEngine(t *testing.T, fake shopify.GraphQL) (Engine, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := &config.Config{}
	cfg.Shop.Domain = "test-shop.myshopify.com"
	e := Engine{
		DB:        conn,
		Repo:      repo.Repo{DB: conn},
		GraphQL:   fake,
		Config:    cfg,
		Locations: shopify.NewAddressCache(),
		Now:       func() time.Time { return time.Date(2025, 4, 2, 12, 0, 0, 0, time.UTC) },
	}
	return e, func() { conn.Close() }
}

func newSubmittedShop() *fakeShop {
	return &fakeShop{
		orderStatus:     domain.OrderUnfulfilled,
		financialStatus: domain.FinancialPaid,
		status:          domain.FulfillmentOrderOpen,
		requestStatus:   domain.RequestSubmitted,
	}
}

func countLogs(t *testing.T, e Engine) []domain.TransitionLog {
	t.Helper()
	logs, err := e.Repo.TailTransitionLogs(context.Background(), 100)
	if err != nil {
		t.Fatalf("tail logs: %v", err)
	}
	return logs
}

func TestSyncStateFirstObservation(t *testing.T) {
	e, cleanup := newTestEngine(t, newSubmittedShop())
	defer cleanup()
	ctx := context.Background()

	res, err := e.SyncState(ctx, testFOID, "fulfillment_request_submitted", "test-shop.myshopify.com")
	if err != nil {
		t.Fatal(err)
	}
	if res.Previous != nil || res.Changed {
		t.Fatalf("first observation should have no previous state: %+v", res)
	}
	want := domain.CompositeState{
		OrderStatus:            domain.OrderUnfulfilled,
		OrderFinancialStatus:   domain.FinancialPaid,
		FulfillmentOrderStatus: domain.FulfillmentOrderOpen,
		RequestStatus:          domain.RequestSubmitted,
	}
	if res.Snapshot.State != want {
		t.Fatalf("state = %+v, want %+v", res.Snapshot.State, want)
	}

	order, err := e.Repo.GetOrder(ctx, testOrderID)
	if err != nil {
		t.Fatalf("order not mirrored: %v", err)
	}
	if order.CustomerEmail != "ada@example.com" || order.CurrencyCode != "EUR" {
		t.Fatalf("order metadata not mirrored: %+v", order)
	}
	fo, err := e.Repo.GetFulfillmentOrder(ctx, testFOID)
	if err != nil {
		t.Fatalf("fulfillment order not mirrored: %v", err)
	}
	if fo.AssignedLocationID != "gid://shopify/Location/77" {
		t.Fatalf("assigned location not mirrored: %+v", fo)
	}

	logs := countLogs(t, e)
	if len(logs) != 1 {
		t.Fatalf("got %d log rows, want 1", len(logs))
	}
	entry := logs[0]
	if entry.Kind != domain.LogStateChange || entry.Action != "fulfillment_request_submitted" {
		t.Fatalf("unexpected log entry: %+v", entry)
	}
	if entry.PreviousState != "" {
		t.Fatalf("first observation should log empty previous state: %q", entry.PreviousState)
	}
	if !strings.HasPrefix(entry.Message, "Applied fulfillment_request_submitted. State OPEN/SUBMITTED") {
		t.Fatalf("unexpected message: %q", entry.Message)
	}
}

func TestSyncStateNoChange(t *testing.T) {
	e, cleanup := newTestEngine(t, newSubmittedShop())
	defer cleanup()
	ctx := context.Background()

	if _, err := e.SyncState(ctx, testFOID, "fulfillment_request_submitted", ""); err != nil {
		t.Fatal(err)
	}
	res, err := e.SyncState(ctx, testFOID, "fulfillment_request_submitted", "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Changed {
		t.Fatal("identical state should not count as changed")
	}
	if res.Log.Kind != domain.LogStateChange {
		t.Fatalf("unchanged sync logged kind %s", res.Log.Kind)
	}
	if !strings.Contains(res.Log.Message, "No change") {
		t.Fatalf("unexpected message: %q", res.Log.Message)
	}
	if len(countLogs(t, e)) != 2 {
		t.Fatal("every sync should append exactly one log row")
	}
}

func TestSyncStateMismatchLogsError(t *testing.T) {
	shop := newSubmittedShop()
	e, cleanup := newTestEngine(t, shop)
	defer cleanup()
	ctx := context.Background()

	if _, err := e.SyncState(ctx, testFOID, "fulfillment_request_submitted", ""); err != nil {
		t.Fatal(err)
	}
	shop.status = domain.FulfillmentOrderOnHold

	res, err := e.SyncState(ctx, testFOID, "placed_on_hold", "")
	if err != nil {
		t.Fatalf("mismatch must not fail the sync: %v", err)
	}
	if !res.Changed {
		t.Fatal("expected a state change")
	}
	if res.Log.Kind != domain.LogError {
		t.Fatalf("mismatch logged kind %s, want %s", res.Log.Kind, domain.LogError)
	}
	if res.Log.PreviousState == "" || res.Log.NextState == "" {
		t.Fatalf("mismatch entry should carry both states: %+v", res.Log)
	}
	if !strings.HasPrefix(res.Log.Message, "Mismatch after placed_on_hold") {
		t.Fatalf("unexpected message: %q", res.Log.Message)
	}

	snapshot, err := e.Repo.GetSnapshot(ctx, testOrderID, testFOID)
	if err != nil {
		t.Fatal(err)
	}
	if snapshot.State.FulfillmentOrderStatus != domain.FulfillmentOrderOnHold {
		t.Fatal("snapshot should hold the new state despite the mismatch")
	}
}

func TestSyncStateLookupFailed(t *testing.T) {
	shop := newSubmittedShop()
	shop.notFound = true
	e, cleanup := newTestEngine(t, shop)
	defer cleanup()

	_, err := e.SyncState(context.Background(), testFOID, "cancelled", "")
	var lookup *LookupFailedError
	if !errors.As(err, &lookup) {
		t.Fatalf("expected LookupFailedError, got %v", err)
	}
	if lookup.FulfillmentOrderID != testFOID || lookup.Topic != "cancelled" {
		t.Fatalf("unexpected error detail: %+v", lookup)
	}
	if len(countLogs(t, e)) != 0 {
		t.Fatal("failed lookup must not write log rows")
	}
}

func TestExecuteMockTransition(t *testing.T) {
	e, cleanup := newTestEngine(t, newSubmittedShop())
	defer cleanup()
	ctx := context.Background()

	if _, err := e.SyncState(ctx, testFOID, "fulfillment_request_submitted", ""); err != nil {
		t.Fatal(err)
	}
	res, err := e.ExecuteTransition(ctx, "MOCK_EXTERNAL_FULFILLMENT", testFOID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if res.Snapshot.State.FulfillmentStatus != domain.FulfillmentSuccess {
		t.Fatalf("mock did not apply: %+v", res.Snapshot.State)
	}
	if res.Log.Kind != domain.LogMock || res.Log.Actor != "tester" {
		t.Fatalf("unexpected log entry: %+v", res.Log)
	}

	snapshot, err := e.Repo.GetSnapshot(ctx, testOrderID, testFOID)
	if err != nil {
		t.Fatal(err)
	}
	if snapshot.State != res.Snapshot.State {
		t.Fatal("stored snapshot differs from result")
	}
}

func TestExecuteMockWithoutSnapshot(t *testing.T) {
	e, cleanup := newTestEngine(t, newSubmittedShop())
	defer cleanup()

	_, err := e.ExecuteTransition(context.Background(), "MOCK_SYSTEM_CANCELLATION", testFOID, "tester")
	var missing *MissingSnapshotError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSnapshotError, got %v", err)
	}
	if len(countLogs(t, e)) != 0 {
		t.Fatal("failed mock must not write log rows")
	}
}

func TestExecuteUnknownTransition(t *testing.T) {
	e, cleanup := newTestEngine(t, newSubmittedShop())
	defer cleanup()

	_, err := e.ExecuteTransition(context.Background(), "TELEPORT", testFOID, "tester")
	if err == nil || !strings.Contains(err.Error(), "unknown transition") {
		t.Fatalf("expected unknown transition error, got %v", err)
	}
}

func TestExecuteAPITransitionReconciles(t *testing.T) {
	shop := newSubmittedShop()
	e, cleanup := newTestEngine(t, shop)
	defer cleanup()
	ctx := context.Background()

	if _, err := e.SyncState(ctx, testFOID, "fulfillment_request_submitted", ""); err != nil {
		t.Fatal(err)
	}
	res, err := e.ExecuteTransition(ctx, "ACCEPT_FULFILLMENT_REQUEST", testFOID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if res.Snapshot.State.FulfillmentOrderStatus != domain.FulfillmentOrderInProgress ||
		res.Snapshot.State.RequestStatus != domain.RequestAccepted {
		t.Fatalf("reconciled state = %+v", res.Snapshot.State)
	}
	if res.Log.Action != "manual/ACCEPT_FULFILLMENT_REQUEST" {
		t.Fatalf("unexpected action: %q", res.Log.Action)
	}
	// The mutation ran before the state fetch.
	joined := strings.Join(shop.calls, ",")
	if !strings.Contains(joined, "accept,state") {
		t.Fatalf("unexpected call order: %v", shop.calls)
	}
}

func TestExecuteAPITransitionUserErrors(t *testing.T) {
	shop := newSubmittedShop()
	shop.acceptUserErrors = []string{"Request already accepted.", "Nothing to do."}
	e, cleanup := newTestEngine(t, shop)
	defer cleanup()
	ctx := context.Background()

	if _, err := e.SyncState(ctx, testFOID, "fulfillment_request_submitted", ""); err != nil {
		t.Fatal(err)
	}
	before := len(countLogs(t, e))

	_, err := e.ExecuteTransition(ctx, "ACCEPT_FULFILLMENT_REQUEST", testFOID, "tester")
	var userErrs *shopify.UserErrorsError
	if !errors.As(err, &userErrs) {
		t.Fatalf("expected UserErrorsError, got %v", err)
	}
	if got := userErrs.Error(); got != "Request already accepted.; Nothing to do." {
		t.Fatalf("unexpected message: %q", got)
	}
	if len(countLogs(t, e)) != before {
		t.Fatal("rejected mutation must not append log rows")
	}
}
