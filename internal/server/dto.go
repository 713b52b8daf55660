package server

import (
	"encoding/json"

	"fulfillsim/internal/domain"
	"fulfillsim/internal/engine"
	"fulfillsim/internal/statemachine"
)

// Response payloads

type OrderResponse struct {
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

type TransitionResponse struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	Kind        string `json:"kind" enum:"api,mock,system"`
}

type FulfillmentOrderResponse struct {
	ID                   string                   `json:"id"`
	OrderID              string                   `json:"order_id"`
	AssignedLocationID   string                   `json:"assigned_location_id,omitempty"`
	Status               string                   `json:"status,omitempty"`
	RequestStatus        string                   `json:"request_status,omitempty"`
	SupportedActions     []domain.SupportedAction `json:"supported_actions,omitempty"`
	FulfillAt            string                   `json:"fulfill_at,omitempty" format:"date-time"`
	State                *domain.CompositeState   `json:"state,omitempty"`
	LastSyncAt           string                   `json:"last_sync_at,omitempty" format:"date-time"`
	AvailableTransitions []TransitionResponse     `json:"available_transitions,omitempty"`
	UpdatedAt            string                   `json:"updated_at" format:"date-time"`
}

type OrderDetailResponse struct {
	Order             OrderResponse              `json:"order"`
	FulfillmentOrders []FulfillmentOrderResponse `json:"fulfillment_orders,omitempty"`
}

type TransitionLogResponse struct {
	ID                 string                 `json:"id"`
	OrderID            string                 `json:"order_id"`
	FulfillmentOrderID string                 `json:"fulfillment_order_id"`
	Kind               string                 `json:"kind" enum:"STATE_CHANGE,ERROR,MOCK"`
	Action             string                 `json:"action"`
	Actor              string                 `json:"actor,omitempty"`
	PreviousState      *domain.CompositeState `json:"previous_state,omitempty"`
	NextState          *domain.CompositeState `json:"next_state,omitempty"`
	Message            string                 `json:"message,omitempty"`
	CreatedAt          string                 `json:"created_at" format:"date-time"`
}

type SyncResponse struct {
	OrderID            string                 `json:"order_id"`
	FulfillmentOrderID string                 `json:"fulfillment_order_id"`
	State              domain.CompositeState  `json:"state"`
	PreviousState      *domain.CompositeState `json:"previous_state,omitempty"`
	Changed            bool                   `json:"changed"`
	Log                TransitionLogResponse  `json:"log"`
}

func orderResponse(o domain.Order) OrderResponse {
	return OrderResponse{
		ID:                o.ID,
		ShopDomain:        o.ShopDomain,
		Name:              o.Name,
		CustomerFirstName: o.CustomerFirstName,
		CustomerLastName:  o.CustomerLastName,
		CustomerEmail:     o.CustomerEmail,
		CurrencyCode:      o.CurrencyCode,
		ProcessedAt:       o.ProcessedAt,
		CreatedAt:         o.CreatedAt,
	}
}

func transitionResponse(def statemachine.Definition) TransitionResponse {
	return TransitionResponse{
		ID:          string(def.ID),
		Label:       def.Label,
		Description: def.Description,
		Kind:        string(def.Kind),
	}
}

func transitionResponses(defs []statemachine.Definition) []TransitionResponse {
	out := make([]TransitionResponse, 0, len(defs))
	for _, def := range defs {
		out = append(out, transitionResponse(def))
	}
	return out
}

func fulfillmentOrderResponse(fo domain.FulfillmentOrder, snapshot *domain.StateSnapshot) FulfillmentOrderResponse {
	res := FulfillmentOrderResponse{
		ID:                 fo.ID,
		OrderID:            fo.OrderID,
		AssignedLocationID: fo.AssignedLocationID,
		Status:             fo.Status,
		RequestStatus:      fo.RequestStatus,
		FulfillAt:          fo.FulfillAt,
		UpdatedAt:          fo.UpdatedAt,
	}
	if fo.SupportedActionsJSON != "" {
		var actions []domain.SupportedAction
		if err := json.Unmarshal([]byte(fo.SupportedActionsJSON), &actions); err == nil {
			res.SupportedActions = actions
		}
	}
	if snapshot != nil {
		state := snapshot.State
		res.State = &state
		res.LastSyncAt = snapshot.LastSyncAt
		res.AvailableTransitions = transitionResponses(statemachine.AvailableTransitions(state))
	}
	return res
}

func transitionLogResponse(l domain.TransitionLog) TransitionLogResponse {
	return TransitionLogResponse{
		ID:                 l.ID,
		OrderID:            l.OrderID,
		FulfillmentOrderID: l.FulfillmentOrderID,
		Kind:               l.Kind,
		Action:             l.Action,
		Actor:              l.Actor,
		PreviousState:      decodeState(l.PreviousState),
		NextState:          decodeState(l.NextState),
		Message:            l.Message,
		CreatedAt:          l.CreatedAt,
	}
}

func decodeState(raw string) *domain.CompositeState {
	if raw == "" {
		return nil
	}
	var s domain.CompositeState
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil
	}
	return &s
}

func syncResponse(res engine.SyncResult) SyncResponse {
	return SyncResponse{
		OrderID:            res.Snapshot.OrderID,
		FulfillmentOrderID: res.Snapshot.FulfillmentOrderID,
		State:              res.Snapshot.State,
		PreviousState:      res.Previous,
		Changed:            res.Changed,
		Log:                transitionLogResponse(res.Log),
	}
}
