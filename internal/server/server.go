package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"fulfillsim/internal/domain"
	"fulfillsim/internal/engine"
	"fulfillsim/internal/repo"
	"fulfillsim/internal/shopify"
	"fulfillsim/internal/statemachine"
)

// Config for the HTTP API handler.
type Config struct {
	Engine        engine.Engine
	BasePath      string
	WebhookSecret string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"unknown_transition"`
	Message string         `json:"message" example:"unknown transition \"FOO\""`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the fulfillment simulator API plus the
// platform webhook receiver.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	hcfg := huma.DefaultConfig("Fulfillsim API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerTransitions(group)
	registerOrders(group, cfg.Engine)
	registerFulfillmentOrders(group, cfg.Engine)
	registerLogs(group, cfg.Engine)
	registerWebhooks(router, cfg.Engine, cfg.WebhookSecret)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var unknown statemachine.UnknownTransitionError
	if errors.As(err, &unknown) {
		return newAPIError(http.StatusNotFound, "unknown_transition", err.Error(), map[string]any{"transition": string(unknown.ID)})
	}
	var lookup *engine.LookupFailedError
	if errors.As(err, &lookup) {
		return newAPIError(http.StatusNotFound, "lookup_failed", err.Error(), map[string]any{"fulfillment_order_id": lookup.FulfillmentOrderID})
	}
	var missing *engine.MissingSnapshotError
	if errors.As(err, &missing) {
		return newAPIError(http.StatusConflict, "missing_snapshot", err.Error(), map[string]any{"fulfillment_order_id": missing.FulfillmentOrderID})
	}
	var userErrs *shopify.UserErrorsError
	if errors.As(err, &userErrs) {
		return newAPIError(http.StatusUnprocessableEntity, "mutation_rejected", err.Error(), map[string]any{"user_errors": userErrs.Messages})
	}
	var transport *shopify.TransportError
	if errors.As(err, &transport) {
		return newAPIError(http.StatusBadGateway, "upstream_error", err.Error(), nil)
	}
	var response *shopify.ResponseError
	if errors.As(err, &response) {
		return newAPIError(http.StatusBadGateway, "upstream_error", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) || errors.Is(err, shopify.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusBadGateway:
		return "upstream_error"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerTransitions(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-transitions",
		Method:      http.MethodGet,
		Path:        "/transitions",
		Summary:     "List the transition catalog",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []TransitionResponse `json:"body"`
	}, error) {
		return &struct {
			Body []TransitionResponse `json:"body"`
		}{Body: transitionResponses(statemachine.Catalog())}, nil
	})
}

func registerOrders(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-orders",
		Method:      http.MethodGet,
		Path:        "/orders",
		Summary:     "List mirrored orders",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []OrderResponse `json:"body"`
	}, error) {
		orders, err := e.Repo.ListOrders(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]OrderResponse, 0, len(orders))
		for _, o := range orders {
			res = append(res, orderResponse(o))
		}
		return &struct {
			Body []OrderResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-order",
		Method:      http.MethodGet,
		Path:        "/orders/{order_id}",
		Summary:     "Order with fulfillment orders, state and available transitions",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrderID string `path:"order_id" doc:"Numeric order id or full gid"`
	}) (*struct {
		Body OrderDetailResponse `json:"body"`
	}, error) {
		order, err := e.Repo.GetOrder(ctx, shopify.ToGid("Order", input.OrderID))
		if err != nil {
			return nil, handleError(err)
		}
		fos, err := e.Repo.ListFulfillmentOrdersByOrder(ctx, order.ID)
		if err != nil {
			return nil, handleError(err)
		}
		detail := OrderDetailResponse{Order: orderResponse(order)}
		for _, fo := range fos {
			snapshot, err := e.Repo.GetSnapshot(ctx, order.ID, fo.ID)
			switch {
			case err == nil:
				detail.FulfillmentOrders = append(detail.FulfillmentOrders, fulfillmentOrderResponse(fo, &snapshot))
			case errors.Is(err, repo.ErrNotFound):
				detail.FulfillmentOrders = append(detail.FulfillmentOrders, fulfillmentOrderResponse(fo, nil))
			default:
				return nil, handleError(err)
			}
		}
		return &struct {
			Body OrderDetailResponse `json:"body"`
		}{Body: detail}, nil
	})
}

func registerFulfillmentOrders(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "run-transition",
		Method:      http.MethodPost,
		Path:        "/fulfillment-orders/{fulfillment_order_id}/transitions/{transition_id}",
		Summary:     "Execute a transition",
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		FulfillmentOrderID string `path:"fulfillment_order_id"`
		TransitionID       string `path:"transition_id"`
		Actor              string `header:"X-Actor-Id"`
	}) (*struct {
		Body SyncResponse `json:"body"`
	}, error) {
		actor := input.Actor
		if actor == "" {
			actor = "api"
		}
		res, err := e.ExecuteTransition(ctx, statemachine.TransitionID(input.TransitionID), shopify.ToGid("FulfillmentOrder", input.FulfillmentOrderID), actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SyncResponse `json:"body"`
		}{Body: syncResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sync-fulfillment-order",
		Method:      http.MethodPost,
		Path:        "/fulfillment-orders/{fulfillment_order_id}/sync",
		Summary:     "Reconcile one fulfillment order against the platform",
		Errors:      []int{http.StatusNotFound, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		FulfillmentOrderID string `path:"fulfillment_order_id"`
		Actor              string `header:"X-Actor-Id"`
	}) (*struct {
		Body SyncResponse `json:"body"`
	}, error) {
		actor := input.Actor
		if actor == "" {
			actor = "api"
		}
		res, err := e.SyncState(ctx, shopify.ToGid("FulfillmentOrder", input.FulfillmentOrderID), "manual/sync", actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SyncResponse `json:"body"`
		}{Body: syncResponse(res)}, nil
	})
}

func registerLogs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-logs",
		Method:      http.MethodGet,
		Path:        "/logs",
		Summary:     "Transition log, newest first",
	}, func(ctx context.Context, input *struct {
		OrderID string `query:"order_id"`
		Limit   int    `query:"limit"`
	}) (*struct {
		Body []TransitionLogResponse `json:"body"`
	}, error) {
		var (
			logs []domain.TransitionLog
			err  error
		)
		if input.OrderID != "" {
			logs, err = e.Repo.ListTransitionLogs(ctx, shopify.ToGid("Order", input.OrderID))
		} else {
			logs, err = e.Repo.TailTransitionLogs(ctx, input.Limit)
		}
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]TransitionLogResponse, 0, len(logs))
		for _, l := range logs {
			res = append(res, transitionLogResponse(l))
		}
		return &struct {
			Body []TransitionLogResponse `json:"body"`
		}{Body: res}, nil
	})
}
