package billingsync

import (
	"context"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
)

// SubscriptionFetcher loads a subscription from the billing processor.
type SubscriptionFetcher interface {
	GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
}

// StripeFetcher reads subscriptions through the Stripe API.
type StripeFetcher struct {
	api *client.API
}

// NewStripeFetcher creates a fetcher using the given secret key.
func NewStripeFetcher(secretKey string) *StripeFetcher {
	return &StripeFetcher{api: client.New(secretKey, nil)}
}

func (f *StripeFetcher) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	params.AddExpand("items.data.price")
	return f.api.Subscriptions.Get(id, params)
}

var _ SubscriptionFetcher = (*StripeFetcher)(nil)
