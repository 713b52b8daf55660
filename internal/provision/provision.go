package provision

import (
	"context"
	"errors"
	"log"

	"fulfillsim/internal/engine"
	"fulfillsim/internal/shopify"
)

const topic = "provision/initial_sync"

// Result summarizes one provisioning run.
type Result struct {
	Synced []string
	Failed []string
}

// Run seeds the local mirror from the shop's most recent orders, syncing each
// fulfillment order found. Individual failures are logged and skipped so one
// bad record does not abort the seed.
func Run(ctx context.Context, e engine.Engine, graphql shopify.GraphQL, first int) (Result, error) {
	ids, err := shopify.RecentFulfillmentOrderIDs(ctx, graphql, first)
	if err != nil {
		return Result{}, err
	}
	var res Result
	for _, id := range ids {
		if _, err := e.SyncState(ctx, id, topic, "provision"); err != nil {
			var lookup *engine.LookupFailedError
			if errors.As(err, &lookup) {
				log.Printf("provision: skipping %s: %v", id, err)
				res.Failed = append(res.Failed, id)
				continue
			}
			return res, err
		}
		res.Synced = append(res.Synced, id)
	}
	return res, nil
}
