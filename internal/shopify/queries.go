package shopify

import (
	"context"
	"encoding/json"

	"fulfillsim/internal/domain"
)

// OrderSnapshot is the order-level slice of the state query result.
type OrderSnapshot struct {
	ID                       string
	Name                     string
	DisplayFulfillmentStatus string
	DisplayFinancialStatus   string
	ProcessedAt              string
	CurrencyCode             string
	CustomerFirstName        string
	CustomerLastName         string
	CustomerEmail            string
}

// FulfillmentOrderSnapshot is the fulfillment-order slice of the state query
// result.
type FulfillmentOrderSnapshot struct {
	ID                 string
	Status             string
	RequestStatus      string
	FulfillAt          string
	SupportedActions   []domain.SupportedAction
	AssignedLocationID string
}

// FulfillmentState is the authoritative remote truth for one fulfillment
// order, fetched in a single round trip.
type FulfillmentState struct {
	Order            OrderSnapshot
	FulfillmentOrder FulfillmentOrderSnapshot
}

// FetchFulfillmentState loads the current remote state. Returns ErrNotFound
// when the platform has no matching fulfillment order or owning order.
func FetchFulfillmentState(ctx context.Context, g GraphQL, fulfillmentOrderID string) (FulfillmentState, error) {
	var payload struct {
		FulfillmentOrder *struct {
			ID               string            `json:"id"`
			Status           string            `json:"status"`
			RequestStatus    string            `json:"requestStatus"`
			FulfillAt        string            `json:"fulfillAt"`
			SupportedActions []json.RawMessage `json:"supportedActions"`
			AssignedLocation *struct {
				Location *struct {
					ID string `json:"id"`
				} `json:"location"`
			} `json:"assignedLocation"`
			Order *struct {
				ID                       string `json:"id"`
				Name                     string `json:"name"`
				DisplayFulfillmentStatus string `json:"displayFulfillmentStatus"`
				DisplayFinancialStatus   string `json:"displayFinancialStatus"`
				ProcessedAt              string `json:"processedAt"`
				CurrencyCode             string `json:"currencyCode"`
				Customer                 *struct {
					FirstName string `json:"firstName"`
					LastName  string `json:"lastName"`
					Email     string `json:"email"`
				} `json:"customer"`
			} `json:"order"`
		} `json:"fulfillmentOrder"`
	}
	if err := run(ctx, g, fulfillmentStateQuery, map[string]any{"fulfillmentOrderId": fulfillmentOrderID}, &payload); err != nil {
		return FulfillmentState{}, err
	}
	fo := payload.FulfillmentOrder
	if fo == nil || fo.Order == nil {
		return FulfillmentState{}, ErrNotFound
	}

	state := FulfillmentState{
		Order: OrderSnapshot{
			ID:                       fo.Order.ID,
			Name:                     fo.Order.Name,
			DisplayFulfillmentStatus: fo.Order.DisplayFulfillmentStatus,
			DisplayFinancialStatus:   fo.Order.DisplayFinancialStatus,
			ProcessedAt:              fo.Order.ProcessedAt,
			CurrencyCode:             fo.Order.CurrencyCode,
		},
		FulfillmentOrder: FulfillmentOrderSnapshot{
			ID:            fo.ID,
			Status:        fo.Status,
			RequestStatus: fo.RequestStatus,
			FulfillAt:     fo.FulfillAt,
		},
	}
	if fo.Order.Customer != nil {
		state.Order.CustomerFirstName = fo.Order.Customer.FirstName
		state.Order.CustomerLastName = fo.Order.Customer.LastName
		state.Order.CustomerEmail = fo.Order.Customer.Email
	}
	if fo.AssignedLocation != nil && fo.AssignedLocation.Location != nil {
		state.FulfillmentOrder.AssignedLocationID = fo.AssignedLocation.Location.ID
	}
	for _, raw := range fo.SupportedActions {
		state.FulfillmentOrder.SupportedActions = append(state.FulfillmentOrder.SupportedActions, decodeSupportedAction(raw))
	}
	return state, nil
}

// decodeSupportedAction tolerates both the bare-string and the object shape
// the platform has used for supportedActions entries.
func decodeSupportedAction(raw json.RawMessage) domain.SupportedAction {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return domain.SupportedAction{Action: s}
	}
	var obj struct {
		Action      string `json:"action"`
		ExternalURL string `json:"externalUrl"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Action != "" {
		return domain.SupportedAction{Action: obj.Action, ExternalURL: obj.ExternalURL}
	}
	return domain.SupportedAction{Action: "UNKNOWN"}
}

// LineItemInput identifies one fulfillable line item and its quantity.
type LineItemInput struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

// FulfillableLineItems resolves the remaining fulfillable line items of a
// fulfillment order. Returns ErrNotFound when nothing remains to fulfill.
func FulfillableLineItems(ctx context.Context, g GraphQL, fulfillmentOrderID string) ([]LineItemInput, error) {
	var payload struct {
		FulfillmentOrder *struct {
			LineItems struct {
				Edges []struct {
					Node *struct {
						ID                string `json:"id"`
						RemainingQuantity int    `json:"remainingQuantity"`
					} `json:"node"`
				} `json:"edges"`
			} `json:"lineItems"`
		} `json:"fulfillmentOrder"`
	}
	if err := run(ctx, g, fulfillmentOrderLineItemsQuery, map[string]any{"fulfillmentOrderId": fulfillmentOrderID}, &payload); err != nil {
		return nil, err
	}
	if payload.FulfillmentOrder == nil {
		return nil, ErrNotFound
	}
	var items []LineItemInput
	for _, edge := range payload.FulfillmentOrder.LineItems.Edges {
		if edge.Node == nil {
			continue
		}
		items = append(items, LineItemInput{ID: edge.Node.ID, Quantity: edge.Node.RemainingQuantity})
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	return items, nil
}

// LatestFulfillmentID resolves the most recent fulfillment of the order
// owning a fulfillment order; needed by the tracking and fulfillment
// cancellation mutations, which address fulfillments rather than fulfillment
// orders. Returns ErrNotFound when the order has no fulfillments yet.
func LatestFulfillmentID(ctx context.Context, g GraphQL, fulfillmentOrderID string) (string, error) {
	var payload struct {
		FulfillmentOrder *struct {
			Order *struct {
				Fulfillments []struct {
					ID     string `json:"id"`
					Status string `json:"status"`
				} `json:"fulfillments"`
			} `json:"order"`
		} `json:"fulfillmentOrder"`
	}
	if err := run(ctx, g, latestFulfillmentQuery, map[string]any{"fulfillmentOrderId": fulfillmentOrderID}, &payload); err != nil {
		return "", err
	}
	if payload.FulfillmentOrder == nil || payload.FulfillmentOrder.Order == nil {
		return "", ErrNotFound
	}
	fulfillments := payload.FulfillmentOrder.Order.Fulfillments
	if len(fulfillments) == 0 {
		return "", ErrNotFound
	}
	for i := len(fulfillments) - 1; i >= 0; i-- {
		if fulfillments[i].Status == domain.FulfillmentSuccess {
			return fulfillments[i].ID, nil
		}
	}
	return fulfillments[len(fulfillments)-1].ID, nil
}

// OriginAddress is the shipping origin resolved from an assigned location.
type OriginAddress struct {
	Address1     string `json:"address1,omitempty"`
	Address2     string `json:"address2,omitempty"`
	City         string `json:"city,omitempty"`
	ProvinceCode string `json:"provinceCode,omitempty"`
	Zip          string `json:"zip,omitempty"`
	CountryCode  string `json:"countryCode,omitempty"`
}

// LocationAddress fetches the address of a location by gid.
func LocationAddress(ctx context.Context, g GraphQL, locationID string) (OriginAddress, error) {
	var payload struct {
		Location *struct {
			Address struct {
				Address1     string `json:"address1"`
				Address2     string `json:"address2"`
				City         string `json:"city"`
				ProvinceCode string `json:"provinceCode"`
				Zip          string `json:"zip"`
				CountryCode  string `json:"countryCode"`
			} `json:"address"`
		} `json:"location"`
	}
	if err := run(ctx, g, locationAddressQuery, map[string]any{"locationId": locationID}, &payload); err != nil {
		return OriginAddress{}, err
	}
	if payload.Location == nil {
		return OriginAddress{}, ErrNotFound
	}
	addr := payload.Location.Address
	return OriginAddress{
		Address1:     addr.Address1,
		Address2:     addr.Address2,
		City:         addr.City,
		ProvinceCode: addr.ProvinceCode,
		Zip:          addr.Zip,
		CountryCode:  addr.CountryCode,
	}, nil
}

// RecentFulfillmentOrderIDs lists the fulfillment order gids of the shop's
// most recent orders, newest first; used to seed the local mirror.
func RecentFulfillmentOrderIDs(ctx context.Context, g GraphQL, first int) ([]string, error) {
	var payload struct {
		Orders struct {
			Edges []struct {
				Node *struct {
					FulfillmentOrders struct {
						Edges []struct {
							Node *struct {
								ID string `json:"id"`
							} `json:"node"`
						} `json:"edges"`
					} `json:"fulfillmentOrders"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"orders"`
	}
	if err := run(ctx, g, recentFulfillmentOrdersQuery, map[string]any{"first": first}, &payload); err != nil {
		return nil, err
	}
	var ids []string
	for _, edge := range payload.Orders.Edges {
		if edge.Node == nil {
			continue
		}
		for _, fe := range edge.Node.FulfillmentOrders.Edges {
			if fe.Node == nil {
				continue
			}
			ids = append(ids, fe.Node.ID)
		}
	}
	return ids, nil
}

const fulfillmentStateQuery = `#graphql
  query FulfillmentState($fulfillmentOrderId: ID!) {
    fulfillmentOrder(id: $fulfillmentOrderId) {
      id
      status
      requestStatus
      fulfillAt
      supportedActions {
        action
        externalUrl
      }
      assignedLocation {
        location {
          id
        }
      }
      order {
        id
        name
        displayFulfillmentStatus
        displayFinancialStatus
        processedAt
        currencyCode
        customer {
          firstName
          lastName
          email
        }
      }
    }
  }
`

const fulfillmentOrderLineItemsQuery = `#graphql
  query FulfillmentOrderLineItems($fulfillmentOrderId: ID!) {
    fulfillmentOrder(id: $fulfillmentOrderId) {
      id
      lineItems(first: 50) {
        edges {
          node {
            id
            remainingQuantity
          }
        }
      }
    }
  }
`

const latestFulfillmentQuery = `#graphql
  query LatestFulfillment($fulfillmentOrderId: ID!) {
    fulfillmentOrder(id: $fulfillmentOrderId) {
      order {
        fulfillments(first: 10) {
          id
          status
        }
      }
    }
  }
`

const locationAddressQuery = `#graphql
  query LocationAddress($locationId: ID!) {
    location(id: $locationId) {
      address {
        address1
        address2
        city
        provinceCode
        zip
        countryCode
      }
    }
  }
`

const recentFulfillmentOrdersQuery = `#graphql
  query RecentFulfillmentOrders($first: Int!) {
    orders(first: $first, reverse: true) {
      edges {
        node {
          id
          fulfillmentOrders(first: 10) {
            edges {
              node {
                id
              }
            }
          }
        }
      }
    }
  }
`
