package ingest

import (
	"context"

	pubsub "cloud.google.com/go/pubsub/v2"
	pkgerrors "github.com/angelmondragon/velora-notify/pkg/errors"
	pkgpubsub "github.com/angelmondragon/velora-notify/pkg/pubsub"
)

// PubSubSource adapts one Pub/Sub subscription into a Source. Receive runs
// with a single goroutine so events from the same source arrive in order;
// ordering across sources is not promised.
type PubSubSource struct {
	name       string
	subscriber *pubsub.Subscriber
}

// PubSubSources builds one source per subscription the client has configured.
func PubSubSources(client *pkgpubsub.Client) ([]Source, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "pubsub client required")
	}
	subs := client.SourceSubscriptions()
	sources := make([]Source, 0, len(subs))
	for source, subscription := range subs {
		subscriber := client.Subscriber(subscription)
		if subscriber == nil {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "subscriber unavailable for "+source)
		}
		subscriber.ReceiveSettings.NumGoroutines = 1
		sources = append(sources, &PubSubSource{name: source, subscriber: subscriber})
	}
	return sources, nil
}

func (s *PubSubSource) Name() string {
	return s.name
}

// Run blocks receiving messages until the context is canceled or the
// subscription fails. Messages are acked after handling; the store's
// duplicate check absorbs redelivery.
func (s *PubSubSource) Run(ctx context.Context, deliver func(ctx context.Context, data []byte)) error {
	return s.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		deliver(ctx, msg.Data)
		msg.Ack()
	})
}
