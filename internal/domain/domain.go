package domain

// Status dimensions are open string enums: values arriving from the platform
// that are not in the known sets below are preserved verbatim rather than
// rejected, since the upstream enumerations grow over time. An empty string
// means the dimension has not been observed yet.

// Order display fulfillment statuses.
const (
	OrderFulfilled          = "FULFILLED"
	OrderInProgress         = "IN_PROGRESS"
	OrderOpen               = "OPEN"
	OrderPartiallyFulfilled = "PARTIALLY_FULFILLED"
	OrderPendingFulfillment = "PENDING_FULFILLMENT"
	OrderRequestDeclined    = "REQUEST_DECLINED"
	OrderRestocked          = "RESTOCKED"
	OrderScheduled          = "SCHEDULED"
	OrderUnfulfilled        = "UNFULFILLED"
	OrderStatusUnknown      = "UNKNOWN"
)

// Order display financial statuses.
const (
	FinancialAuthorized        = "AUTHORIZED"
	FinancialPaid              = "PAID"
	FinancialPartiallyPaid     = "PARTIALLY_PAID"
	FinancialPartiallyRefunded = "PARTIALLY_REFUNDED"
	FinancialPending           = "PENDING"
	FinancialRefunded          = "REFUNDED"
	FinancialVoided            = "VOIDED"
)

// Fulfillment order statuses.
const (
	FulfillmentOrderCancelled  = "CANCELLED"
	FulfillmentOrderClosed     = "CLOSED"
	FulfillmentOrderIncomplete = "INCOMPLETE"
	FulfillmentOrderInProgress = "IN_PROGRESS"
	FulfillmentOrderOnHold     = "ON_HOLD"
	FulfillmentOrderOpen       = "OPEN"
	FulfillmentOrderScheduled  = "SCHEDULED"
)

// Fulfillment order request statuses.
const (
	RequestAccepted              = "ACCEPTED"
	RequestCancellationAccepted  = "CANCELLATION_ACCEPTED"
	RequestCancellationRejected  = "CANCELLATION_REJECTED"
	RequestCancellationRequested = "CANCELLATION_REQUESTED"
	RequestClosed                = "CLOSED"
	RequestRejected              = "REJECTED"
	RequestSubmitted             = "SUBMITTED"
	RequestUnsubmitted           = "UNSUBMITTED"
)

// Fulfillment statuses.
const (
	FulfillmentCancelled = "CANCELLED"
	FulfillmentError     = "ERROR"
	FulfillmentFailure   = "FAILURE"
	FulfillmentOpen      = "OPEN"
	FulfillmentPending   = "PENDING"
	FulfillmentSuccess   = "SUCCESS"
)

// Transition log kinds.
const (
	LogStateChange = "STATE_CHANGE"
	LogError       = "ERROR"
	LogMock        = "MOCK"
)

// CompositeState is the five-dimension snapshot of the platform's order plus
// fulfillment order lifecycle status. Comparison is plain structural equality;
// any single differing field counts as a state change.
type CompositeState struct {
	OrderStatus            string `json:"order_status,omitempty"`
	OrderFinancialStatus   string `json:"order_financial_status,omitempty"`
	FulfillmentOrderStatus string `json:"fulfillment_order_status,omitempty"`
	RequestStatus          string `json:"request_status,omitempty"`
	FulfillmentStatus      string `json:"fulfillment_status,omitempty"`
}

// Summary renders the two most telling dimensions for log messages.
func (s CompositeState) Summary() string {
	return orUnknown(s.FulfillmentOrderStatus) + "/" + orUnknown(s.RequestStatus)
}

func orUnknown(v string) string {
	if v == "" {
		return "UNKNOWN"
	}
	return v
}

type Order struct {
	ID                string `json:"id"`
	ShopDomain        string `json:"shop_domain"`
	Name              string `json:"name,omitempty"`
	CustomerFirstName string `json:"customer_first_name,omitempty"`
	CustomerLastName  string `json:"customer_last_name,omitempty"`
	CustomerEmail     string `json:"customer_email,omitempty"`
	CurrencyCode      string `json:"currency_code,omitempty"`
	ProcessedAt       string `json:"processed_at,omitempty" format:"date-time"`
	CreatedAt         string `json:"created_at" format:"date-time"`
}

// FulfillmentOrder mirrors the platform's fulfillment order record. Rows are
// created on first webhook or reconciliation and never deleted.
type FulfillmentOrder struct {
	ID                   string `json:"id"`
	OrderID              string `json:"order_id"`
	AssignedLocationID   string `json:"assigned_location_id,omitempty"`
	Status               string `json:"status,omitempty"`
	RequestStatus        string `json:"request_status,omitempty"`
	SupportedActionsJSON string `json:"supported_actions_json,omitempty"`
	FulfillAt            string `json:"fulfill_at,omitempty" format:"date-time"`
	CreatedAt            string `json:"created_at" format:"date-time"`
	UpdatedAt            string `json:"updated_at" format:"date-time"`
}

type SupportedAction struct {
	Action      string `json:"action"`
	ExternalURL string `json:"external_url,omitempty"`
}

// StateSnapshot is the last-known composite state per
// (order, fulfillment order) pair. Exactly one row exists per key.
type StateSnapshot struct {
	OrderID            string         `json:"order_id"`
	FulfillmentOrderID string         `json:"fulfillment_order_id"`
	State              CompositeState `json:"state"`
	LastSyncAt         string         `json:"last_sync_at" format:"date-time"`
}

// TransitionLog is the append-only audit record; rows are never mutated or
// deleted. PreviousState is empty on the first observation of a key.
type TransitionLog struct {
	ID                 string `json:"id"`
	OrderID            string `json:"order_id"`
	FulfillmentOrderID string `json:"fulfillment_order_id"`
	Kind               string `json:"kind" enum:"STATE_CHANGE,ERROR,MOCK"`
	Action             string `json:"action"`
	Actor              string `json:"actor,omitempty"`
	PreviousState      string `json:"previous_state,omitempty"`
	NextState          string `json:"next_state"`
	Message            string `json:"message,omitempty"`
	CreatedAt          string `json:"created_at" format:"date-time"`
}
