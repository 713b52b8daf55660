package repo

import (
	"context"
	"database/sql"
	"errors"

	"fulfillsim/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

const orderColumns = `id,shop_domain,COALESCE(name,'') AS name,COALESCE(customer_first_name,'') AS customer_first_name,COALESCE(customer_last_name,'') AS customer_last_name,COALESCE(customer_email,'') AS customer_email,COALESCE(currency_code,'') AS currency_code,COALESCE(processed_at,'') AS processed_at,created_at`

func scanOrder(row *sql.Row) (domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.ID, &o.ShopDomain, &o.Name, &o.CustomerFirstName, &o.CustomerLastName, &o.CustomerEmail, &o.CurrencyCode, &o.ProcessedAt, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	return o, err
}

// UpsertOrderTx inserts the order or refreshes its mutable fields. The
// created_at of the first observation wins.
func (r Repo) UpsertOrderTx(ctx context.Context, tx *sql.Tx, o domain.Order) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO orders(id,shop_domain,name,customer_first_name,customer_last_name,customer_email,currency_code,processed_at,created_at)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			shop_domain=excluded.shop_domain,
			name=excluded.name,
			customer_first_name=excluded.customer_first_name,
			customer_last_name=excluded.customer_last_name,
			customer_email=excluded.customer_email,
			currency_code=excluded.currency_code,
			processed_at=excluded.processed_at`,
		o.ID, o.ShopDomain, nullable(o.Name), nullable(o.CustomerFirstName), nullable(o.CustomerLastName), nullable(o.CustomerEmail), nullable(o.CurrencyCode), nullable(o.ProcessedAt), o.CreatedAt)
	return err
}

func (r Repo) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return scanOrder(r.DB.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=?`, id))
}

func (r Repo) ListOrders(ctx context.Context) ([]domain.Order, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Order
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.ShopDomain, &o.Name, &o.CustomerFirstName, &o.CustomerLastName, &o.CustomerEmail, &o.CurrencyCode, &o.ProcessedAt, &o.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

const fulfillmentOrderColumns = `id,order_id,COALESCE(assigned_location_id,'') AS assigned_location_id,COALESCE(status,'') AS status,COALESCE(request_status,'') AS request_status,COALESCE(supported_actions_json,'') AS supported_actions_json,COALESCE(fulfill_at,'') AS fulfill_at,created_at,updated_at`

func scanFulfillmentOrder(row *sql.Row) (domain.FulfillmentOrder, error) {
	var fo domain.FulfillmentOrder
	err := row.Scan(&fo.ID, &fo.OrderID, &fo.AssignedLocationID, &fo.Status, &fo.RequestStatus, &fo.SupportedActionsJSON, &fo.FulfillAt, &fo.CreatedAt, &fo.UpdatedAt)
	if err == sql.ErrNoRows {
		return fo, ErrNotFound
	}
	return fo, err
}

// UpsertFulfillmentOrderTx inserts the fulfillment order or refreshes its
// mutable fields, bumping updated_at.
func (r Repo) UpsertFulfillmentOrderTx(ctx context.Context, tx *sql.Tx, fo domain.FulfillmentOrder) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO fulfillment_orders(id,order_id,assigned_location_id,status,request_status,supported_actions_json,fulfill_at,created_at,updated_at)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			order_id=excluded.order_id,
			assigned_location_id=excluded.assigned_location_id,
			status=excluded.status,
			request_status=excluded.request_status,
			supported_actions_json=excluded.supported_actions_json,
			fulfill_at=excluded.fulfill_at,
			updated_at=excluded.updated_at`,
		fo.ID, fo.OrderID, nullable(fo.AssignedLocationID), nullable(fo.Status), nullable(fo.RequestStatus), nullable(fo.SupportedActionsJSON), nullable(fo.FulfillAt), fo.CreatedAt, fo.UpdatedAt)
	return err
}

func (r Repo) GetFulfillmentOrder(ctx context.Context, id string) (domain.FulfillmentOrder, error) {
	return scanFulfillmentOrder(r.DB.QueryRowContext(ctx, `SELECT `+fulfillmentOrderColumns+` FROM fulfillment_orders WHERE id=?`, id))
}

func (r Repo) ListFulfillmentOrdersByOrder(ctx context.Context, orderID string) ([]domain.FulfillmentOrder, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+fulfillmentOrderColumns+` FROM fulfillment_orders WHERE order_id=? ORDER BY created_at ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.FulfillmentOrder
	for rows.Next() {
		var fo domain.FulfillmentOrder
		if err := rows.Scan(&fo.ID, &fo.OrderID, &fo.AssignedLocationID, &fo.Status, &fo.RequestStatus, &fo.SupportedActionsJSON, &fo.FulfillAt, &fo.CreatedAt, &fo.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, fo)
	}
	return res, rows.Err()
}

const snapshotColumns = `order_id,fulfillment_order_id,COALESCE(order_status,'') AS order_status,COALESCE(order_financial_status,'') AS order_financial_status,COALESCE(fulfillment_order_status,'') AS fulfillment_order_status,COALESCE(request_status,'') AS request_status,COALESCE(fulfillment_status,'') AS fulfillment_status,last_sync_at`

func scanSnapshot(row *sql.Row) (domain.StateSnapshot, error) {
	var s domain.StateSnapshot
	err := row.Scan(&s.OrderID, &s.FulfillmentOrderID, &s.State.OrderStatus, &s.State.OrderFinancialStatus, &s.State.FulfillmentOrderStatus, &s.State.RequestStatus, &s.State.FulfillmentStatus, &s.LastSyncAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) GetSnapshot(ctx context.Context, orderID, fulfillmentOrderID string) (domain.StateSnapshot, error) {
	return scanSnapshot(r.DB.QueryRowContext(ctx, `SELECT `+snapshotColumns+` FROM state_snapshots WHERE order_id=? AND fulfillment_order_id=?`, orderID, fulfillmentOrderID))
}

func (r Repo) GetSnapshotTx(ctx context.Context, tx *sql.Tx, orderID, fulfillmentOrderID string) (domain.StateSnapshot, error) {
	return scanSnapshot(tx.QueryRowContext(ctx, `SELECT `+snapshotColumns+` FROM state_snapshots WHERE order_id=? AND fulfillment_order_id=?`, orderID, fulfillmentOrderID))
}

// UpsertSnapshotTx replaces the whole composite state for the key, including
// resetting dimensions back to null.
func (r Repo) UpsertSnapshotTx(ctx context.Context, tx *sql.Tx, s domain.StateSnapshot) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO state_snapshots(order_id,fulfillment_order_id,order_status,order_financial_status,fulfillment_order_status,request_status,fulfillment_status,last_sync_at)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(order_id,fulfillment_order_id) DO UPDATE SET
			order_status=excluded.order_status,
			order_financial_status=excluded.order_financial_status,
			fulfillment_order_status=excluded.fulfillment_order_status,
			request_status=excluded.request_status,
			fulfillment_status=excluded.fulfillment_status,
			last_sync_at=excluded.last_sync_at`,
		s.OrderID, s.FulfillmentOrderID, nullable(s.State.OrderStatus), nullable(s.State.OrderFinancialStatus), nullable(s.State.FulfillmentOrderStatus), nullable(s.State.RequestStatus), nullable(s.State.FulfillmentStatus), s.LastSyncAt)
	return err
}

func (r Repo) AppendTransitionLogTx(ctx context.Context, tx *sql.Tx, entry domain.TransitionLog) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO transition_logs(id,order_id,fulfillment_order_id,kind,action,actor,previous_state,next_state,message,created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		entry.ID, entry.OrderID, entry.FulfillmentOrderID, entry.Kind, entry.Action, nullable(entry.Actor), nullable(entry.PreviousState), entry.NextState, nullable(entry.Message), entry.CreatedAt)
	return err
}

const transitionLogColumns = `id,order_id,fulfillment_order_id,kind,action,COALESCE(actor,'') AS actor,COALESCE(previous_state,'') AS previous_state,next_state,COALESCE(message,'') AS message,created_at`

func collectTransitionLogs(rows *sql.Rows) ([]domain.TransitionLog, error) {
	defer rows.Close()
	var res []domain.TransitionLog
	for rows.Next() {
		var l domain.TransitionLog
		if err := rows.Scan(&l.ID, &l.OrderID, &l.FulfillmentOrderID, &l.Kind, &l.Action, &l.Actor, &l.PreviousState, &l.NextState, &l.Message, &l.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

// ListTransitionLogs returns the log for one order, newest first.
func (r Repo) ListTransitionLogs(ctx context.Context, orderID string) ([]domain.TransitionLog, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+transitionLogColumns+` FROM transition_logs WHERE order_id=? ORDER BY created_at DESC, id DESC`, orderID)
	if err != nil {
		return nil, err
	}
	return collectTransitionLogs(rows)
}

// TailTransitionLogs returns the newest entries across all orders.
func (r Repo) TailTransitionLogs(ctx context.Context, limit int) ([]domain.TransitionLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+transitionLogColumns+` FROM transition_logs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return collectTransitionLogs(rows)
}
