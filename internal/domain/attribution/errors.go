// Package attribution holds the pure order-attribution decision logic
// and the domain errors shared across the ingestion services.
package attribution

import "errors"

// Standard domain errors. Callers branch on these with errors.Is; the
// sync loop skips on not-found, request handlers report them.
var (
	ErrShopNotFound         = errors.New("shop not found")
	ErrUploadNotFound       = errors.New("upload not found")
	ErrCustomerNotFound     = errors.New("customer not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrCampaignNotFound     = errors.New("campaign not found")
	ErrDuplicateLead        = errors.New("lead already exists for this campaign and email")
)
