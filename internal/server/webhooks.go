package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fulfillsim/internal/engine"
	"fulfillsim/internal/shopify"
)

// fulfillmentOrderTopics is the set of fulfillment-order webhook topics the
// receiver subscribes to. Anything else is acknowledged and ignored so the
// platform does not retry.
var fulfillmentOrderTopics = map[string]bool{
	"order_routing_complete":                 true,
	"fulfillment_request_submitted":          true,
	"fulfillment_request_accepted":           true,
	"fulfillment_request_rejected":           true,
	"placed_on_hold":                         true,
	"hold_released":                          true,
	"scheduled_fulfillment_order_ready":      true,
	"rescheduled":                            true,
	"cancellation_request_submitted":         true,
	"cancellation_request_accepted":          true,
	"cancellation_request_rejected":          true,
	"cancelled":                              true,
	"fulfillment_service_failed_to_complete": true,
}

// payloadIDKeys are the envelope keys the platform uses to carry the subject
// fulfillment order, varying by topic.
var payloadIDKeys = []string{
	"fulfillment_order",
	"original_fulfillment_order",
	"submitted_fulfillment_order",
	"unsubmitted_fulfillment_order",
	"replacement_fulfillment_order",
}

const maxWebhookBody = 1 << 20

func registerWebhooks(router chi.Router, e engine.Engine, secret string) {
	router.Post("/webhooks/fulfillment_orders/{topic}", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}
		if !verifySignature(body, r.Header.Get("X-Shopify-Hmac-Sha256"), secret) {
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}

		topic := chi.URLParam(r, "topic")
		if !fulfillmentOrderTopics[topic] {
			log.Printf("webhook: ignoring unknown topic %q", topic)
			w.WriteHeader(http.StatusOK)
			return
		}
		fulfillmentOrderID, ok := extractFulfillmentOrderID(body)
		if !ok {
			log.Printf("webhook %s: no fulfillment order id in payload", topic)
			w.WriteHeader(http.StatusOK)
			return
		}

		actor := r.Header.Get("X-Shopify-Shop-Domain")
		if _, err := e.SyncState(r.Context(), fulfillmentOrderID, topic, actor); err != nil {
			log.Printf("webhook %s: sync %s failed: %v", topic, fulfillmentOrderID, err)
			http.Error(w, "sync failed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}

// verifySignature checks the base64 HMAC-SHA256 digest the platform sends
// with every webhook. An empty configured secret rejects everything.
func verifySignature(body []byte, header, secret string) bool {
	if secret == "" || header == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}

// extractFulfillmentOrderID digs the subject fulfillment order gid out of the
// topic-specific payload envelope.
func extractFulfillmentOrderID(body []byte) (string, bool) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", false
	}
	for _, key := range payloadIDKeys {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		var envelope struct {
			ID json.RawMessage `json:"id"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil || len(envelope.ID) == 0 {
			continue
		}
		if id, ok := decodeID(envelope.ID); ok {
			return shopify.ToGid("FulfillmentOrder", id), true
		}
	}
	// Some topics put the id at the top level.
	if raw, ok := payload["id"]; ok {
		if id, ok := decodeID(raw); ok {
			return shopify.ToGid("FulfillmentOrder", id), true
		}
	}
	return "", false
}

func decodeID(raw json.RawMessage) (any, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil && n.String() != "" {
		return n.String(), true
	}
	return nil, false
}
