package shopify

import (
	"context"
)

type userError struct {
	Message string `json:"message"`
}

func userErrorsToError(errs []userError) error {
	if len(errs) == 0 {
		return nil
	}
	messages := make([]string, len(errs))
	for i, e := range errs {
		messages[i] = e.Message
	}
	return &UserErrorsError{Messages: messages}
}

// AcceptFulfillmentRequest accepts a submitted fulfillment request.
func AcceptFulfillmentRequest(ctx context.Context, g GraphQL, fulfillmentOrderID, message string) error {
	var payload struct {
		Result struct {
			UserErrors []userError `json:"userErrors"`
		} `json:"fulfillmentOrderAcceptFulfillmentRequest"`
	}
	if err := run(ctx, g, acceptFulfillmentRequestMutation, map[string]any{
		"id":      fulfillmentOrderID,
		"message": message,
	}, &payload); err != nil {
		return err
	}
	return userErrorsToError(payload.Result.UserErrors)
}

// RejectFulfillmentRequest rejects a submitted fulfillment request.
func RejectFulfillmentRequest(ctx context.Context, g GraphQL, fulfillmentOrderID, message string) error {
	var payload struct {
		Result struct {
			UserErrors []userError `json:"userErrors"`
		} `json:"fulfillmentOrderRejectFulfillmentRequest"`
	}
	if err := run(ctx, g, rejectFulfillmentRequestMutation, map[string]any{
		"id":      fulfillmentOrderID,
		"message": message,
	}, &payload); err != nil {
		return err
	}
	return userErrorsToError(payload.Result.UserErrors)
}

// TrackingInput is the optional tracking side channel of fulfillments.
type TrackingInput struct {
	Company string `json:"company,omitempty"`
	Number  string `json:"number,omitempty"`
	URL     string `json:"url,omitempty"`
}

// CreateFulfillment creates a fulfillment for the given line items. Origin,
// when resolved from the assigned location, is passed as the shipping origin
// address; tracking is optional.
func CreateFulfillment(ctx context.Context, g GraphQL, fulfillmentOrderID string, lineItems []LineItemInput, origin *OriginAddress, tracking *TrackingInput) error {
	fulfillment := map[string]any{
		"notifyCustomer": false,
		"lineItemsByFulfillmentOrder": []map[string]any{
			{
				"fulfillmentOrderId":        fulfillmentOrderID,
				"fulfillmentOrderLineItems": lineItems,
			},
		},
	}
	if origin != nil {
		fulfillment["originAddress"] = origin
	}
	if tracking != nil {
		fulfillment["trackingInfo"] = tracking
	}
	var payload struct {
		Result struct {
			UserErrors []userError `json:"userErrors"`
		} `json:"fulfillmentCreateV2"`
	}
	if err := run(ctx, g, createFulfillmentMutation, map[string]any{"fulfillment": fulfillment}, &payload); err != nil {
		return err
	}
	return userErrorsToError(payload.Result.UserErrors)
}

// UpdateTracking replaces the tracking info of an existing fulfillment.
func UpdateTracking(ctx context.Context, g GraphQL, fulfillmentID string, tracking TrackingInput) error {
	var payload struct {
		Result struct {
			UserErrors []userError `json:"userErrors"`
		} `json:"fulfillmentTrackingInfoUpdate"`
	}
	if err := run(ctx, g, updateTrackingMutation, map[string]any{
		"fulfillmentId":     fulfillmentID,
		"trackingInfoInput": tracking,
		"notifyCustomer":    false,
	}, &payload); err != nil {
		return err
	}
	return userErrorsToError(payload.Result.UserErrors)
}

// CancelFulfillment cancels an existing fulfillment.
func CancelFulfillment(ctx context.Context, g GraphQL, fulfillmentID string) error {
	var payload struct {
		Result struct {
			UserErrors []userError `json:"userErrors"`
		} `json:"fulfillmentCancel"`
	}
	if err := run(ctx, g, cancelFulfillmentMutation, map[string]any{"id": fulfillmentID}, &payload); err != nil {
		return err
	}
	return userErrorsToError(payload.Result.UserErrors)
}

// AcceptCancellationRequest accepts a merchant cancellation request.
func AcceptCancellationRequest(ctx context.Context, g GraphQL, fulfillmentOrderID, message string) error {
	var payload struct {
		Result struct {
			UserErrors []userError `json:"userErrors"`
		} `json:"fulfillmentOrderAcceptCancellationRequest"`
	}
	if err := run(ctx, g, acceptCancellationRequestMutation, map[string]any{
		"fulfillmentOrderId": fulfillmentOrderID,
		"message":            message,
	}, &payload); err != nil {
		return err
	}
	return userErrorsToError(payload.Result.UserErrors)
}

// RejectCancellationRequest rejects a merchant cancellation request.
func RejectCancellationRequest(ctx context.Context, g GraphQL, fulfillmentOrderID, message string) error {
	var payload struct {
		Result struct {
			UserErrors []userError `json:"userErrors"`
		} `json:"fulfillmentOrderRejectCancellationRequest"`
	}
	if err := run(ctx, g, rejectCancellationRequestMutation, map[string]any{
		"fulfillmentOrderId": fulfillmentOrderID,
		"message":            message,
	}, &payload); err != nil {
		return err
	}
	return userErrorsToError(payload.Result.UserErrors)
}

// HoldInput describes a fulfillment hold.
type HoldInput struct {
	Reason         string `json:"reason"`
	ReasonNotes    string `json:"reasonNotes,omitempty"`
	NotifyMerchant bool   `json:"notifyMerchant"`
	Handle         string `json:"handle,omitempty"`
}

// PlaceHold places a hold on a fulfillment order.
func PlaceHold(ctx context.Context, g GraphQL, fulfillmentOrderID string, hold HoldInput) error {
	var payload struct {
		Result struct {
			UserErrors []userError `json:"userErrors"`
		} `json:"fulfillmentOrderHold"`
	}
	if err := run(ctx, g, placeHoldMutation, map[string]any{
		"id":              fulfillmentOrderID,
		"fulfillmentHold": hold,
	}, &payload); err != nil {
		return err
	}
	return userErrorsToError(payload.Result.UserErrors)
}

// ReleaseHold releases all holds on a fulfillment order.
func ReleaseHold(ctx context.Context, g GraphQL, fulfillmentOrderID string) error {
	var payload struct {
		Result struct {
			UserErrors []userError `json:"userErrors"`
		} `json:"fulfillmentOrderReleaseHold"`
	}
	if err := run(ctx, g, releaseHoldMutation, map[string]any{"id": fulfillmentOrderID}, &payload); err != nil {
		return err
	}
	return userErrorsToError(payload.Result.UserErrors)
}

// CloseFulfillmentOrder closes a fulfillment order as incomplete.
func CloseFulfillmentOrder(ctx context.Context, g GraphQL, fulfillmentOrderID, message string) error {
	var payload struct {
		Result struct {
			UserErrors []userError `json:"userErrors"`
		} `json:"fulfillmentOrderClose"`
	}
	if err := run(ctx, g, closeFulfillmentOrderMutation, map[string]any{
		"fulfillmentOrderId": fulfillmentOrderID,
		"message":            message,
	}, &payload); err != nil {
		return err
	}
	return userErrorsToError(payload.Result.UserErrors)
}

const acceptFulfillmentRequestMutation = `#graphql
  mutation AcceptFulfillmentRequest($id: ID!, $message: String) {
    fulfillmentOrderAcceptFulfillmentRequest(id: $id, message: $message) {
      fulfillmentOrder {
        id
        status
        requestStatus
      }
      userErrors {
        message
      }
    }
  }
`

const rejectFulfillmentRequestMutation = `#graphql
  mutation RejectFulfillmentRequest($id: ID!, $message: String) {
    fulfillmentOrderRejectFulfillmentRequest(id: $id, message: $message) {
      fulfillmentOrder {
        id
        status
        requestStatus
      }
      userErrors {
        message
      }
    }
  }
`

const createFulfillmentMutation = `#graphql
  mutation CreateFulfillment($fulfillment: FulfillmentV2Input!) {
    fulfillmentCreateV2(fulfillment: $fulfillment) {
      fulfillment {
        id
        status
      }
      userErrors {
        message
      }
    }
  }
`

const updateTrackingMutation = `#graphql
  mutation UpdateTrackingInfo(
    $fulfillmentId: ID!
    $trackingInfoInput: FulfillmentTrackingInput!
    $notifyCustomer: Boolean
  ) {
    fulfillmentTrackingInfoUpdate(
      fulfillmentId: $fulfillmentId
      trackingInfoInput: $trackingInfoInput
      notifyCustomer: $notifyCustomer
    ) {
      fulfillment {
        id
        status
      }
      userErrors {
        message
      }
    }
  }
`

const cancelFulfillmentMutation = `#graphql
  mutation CancelFulfillment($id: ID!) {
    fulfillmentCancel(id: $id) {
      fulfillment {
        id
        status
      }
      userErrors {
        message
      }
    }
  }
`

const acceptCancellationRequestMutation = `#graphql
  mutation AcceptCancellationRequest($fulfillmentOrderId: ID!, $message: String) {
    fulfillmentOrderAcceptCancellationRequest(
      id: $fulfillmentOrderId
      message: $message
    ) {
      fulfillmentOrder {
        id
        status
        requestStatus
      }
      userErrors {
        message
      }
    }
  }
`

const rejectCancellationRequestMutation = `#graphql
  mutation RejectCancellationRequest($fulfillmentOrderId: ID!, $message: String) {
    fulfillmentOrderRejectCancellationRequest(
      id: $fulfillmentOrderId
      message: $message
    ) {
      fulfillmentOrder {
        id
        status
        requestStatus
      }
      userErrors {
        message
      }
    }
  }
`

const placeHoldMutation = `#graphql
  mutation PlaceFulfillmentHold($id: ID!, $fulfillmentHold: FulfillmentOrderHoldInput!) {
    fulfillmentOrderHold(id: $id, fulfillmentHold: $fulfillmentHold) {
      fulfillmentOrder {
        id
        status
      }
      userErrors {
        message
      }
    }
  }
`

const releaseHoldMutation = `#graphql
  mutation ReleaseFulfillmentHold($id: ID!) {
    fulfillmentOrderReleaseHold(id: $id) {
      fulfillmentOrder {
        id
        status
      }
      userErrors {
        message
      }
    }
  }
`

const closeFulfillmentOrderMutation = `#graphql
  mutation CloseFulfillmentOrder($fulfillmentOrderId: ID!, $message: String) {
    fulfillmentOrderClose(id: $fulfillmentOrderId, message: $message) {
      fulfillmentOrder {
        id
        status
        requestStatus
      }
      userErrors {
        message
      }
    }
  }
`
