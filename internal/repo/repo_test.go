package repo

import (
	"context"
	"database/sql"
	"testing"

	"fulfillsim/internal/db"
	"fulfillsim/internal/domain"
	"fulfillsim/internal/migrate"
)

func newTestRepo(t *testing.T) Repo {
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
	t.Cleanup(func() { conn.Close() })
	return Repo{DB: conn}
}

func inTx(t *testing.T, r Repo, fn func(tx *sql.Tx) error) {
	t.Helper()
	tx, err := r.DB.BeginTx(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

func seedPair(t *testing.T, r Repo) (string, string) {
	t.Helper()
	orderID := "gid://shopify/Order/1"
	foID := "gid://shopify/FulfillmentOrder/2"
	inTx(t, r, func(tx *sql.Tx) error {
		ctx := context.Background()
		if err := r.UpsertOrderTx(ctx, tx, domain.Order{
			ID:         orderID,
			ShopDomain: "test-shop.myshopify.com",
			Name:       "#1",
			CreatedAt:  "2025-04-01T00:00:00Z",
		}); err != nil {
			return err
		}
		return r.UpsertFulfillmentOrderTx(ctx, tx, domain.FulfillmentOrder{
			ID:        foID,
			OrderID:   orderID,
			Status:    domain.FulfillmentOrderOpen,
			CreatedAt: "2025-04-01T00:00:00Z",
			UpdatedAt: "2025-04-01T00:00:00Z",
		})
	})
	return orderID, foID
}

func TestSnapshotUpsertReplacesWholeState(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	orderID, foID := seedPair(t, r)

	inTx(t, r, func(tx *sql.Tx) error {
		return r.UpsertSnapshotTx(ctx, tx, domain.StateSnapshot{
			OrderID:            orderID,
			FulfillmentOrderID: foID,
			State: domain.CompositeState{
				OrderStatus:            domain.OrderUnfulfilled,
				OrderFinancialStatus:   domain.FinancialPaid,
				FulfillmentOrderStatus: domain.FulfillmentOrderOpen,
				RequestStatus:          domain.RequestSubmitted,
				FulfillmentStatus:      domain.FulfillmentSuccess,
			},
			LastSyncAt: "2025-04-01T01:00:00Z",
		})
	})

	// Replace with a state that nulls several dimensions back out.
	replacement := domain.CompositeState{
		FulfillmentOrderStatus: domain.FulfillmentOrderCancelled,
	}
	inTx(t, r, func(tx *sql.Tx) error {
		return r.UpsertSnapshotTx(ctx, tx, domain.StateSnapshot{
			OrderID:            orderID,
			FulfillmentOrderID: foID,
			State:              replacement,
			LastSyncAt:         "2025-04-01T02:00:00Z",
		})
	})

	got, err := r.GetSnapshot(ctx, orderID, foID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != replacement {
		t.Fatalf("state = %+v, want %+v", got.State, replacement)
	}
	if got.LastSyncAt != "2025-04-01T02:00:00Z" {
		t.Fatalf("last_sync_at not updated: %s", got.LastSyncAt)
	}
}

func TestGetSnapshotNotFound(t *testing.T) {
	r := newTestRepo(t)
	if _, err := r.GetSnapshot(context.Background(), "missing", "missing"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestOrderUpsertKeepsFirstCreatedAt(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	orderID, _ := seedPair(t, r)

	inTx(t, r, func(tx *sql.Tx) error {
		return r.UpsertOrderTx(ctx, tx, domain.Order{
			ID:         orderID,
			ShopDomain: "test-shop.myshopify.com",
			Name:       "#1-renamed",
			CreatedAt:  "2025-04-02T00:00:00Z",
		})
	})
	got, err := r.GetOrder(ctx, orderID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "#1-renamed" {
		t.Fatalf("name not refreshed: %s", got.Name)
	}
	if got.CreatedAt != "2025-04-01T00:00:00Z" {
		t.Fatalf("created_at was overwritten: %s", got.CreatedAt)
	}
}

func TestTransitionLogOrdering(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	orderID, foID := seedPair(t, r)

	for i, ts := range []string{"2025-04-01T01:00:00Z", "2025-04-01T02:00:00Z", "2025-04-01T03:00:00Z"} {
		entry := domain.TransitionLog{
			ID:                 string(rune('a' + i)),
			OrderID:            orderID,
			FulfillmentOrderID: foID,
			Kind:               domain.LogStateChange,
			Action:             "manual/sync",
			NextState:          "{}",
			CreatedAt:          ts,
		}
		inTx(t, r, func(tx *sql.Tx) error {
			return r.AppendTransitionLogTx(ctx, tx, entry)
		})
	}

	logs, err := r.ListTransitionLogs(ctx, orderID)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 3 {
		t.Fatalf("got %d rows", len(logs))
	}
	if logs[0].CreatedAt != "2025-04-01T03:00:00Z" {
		t.Fatalf("not newest first: %+v", logs)
	}

	tail, err := r.TailTransitionLogs(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(tail) != 2 || tail[0].CreatedAt != "2025-04-01T03:00:00Z" {
		t.Fatalf("unexpected tail: %+v", tail)
	}
}
