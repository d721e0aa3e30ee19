package inventory

import (
	"context"

	"go.uber.org/zap"

	domain "github.com/xiebiao/freshmart/internal/domain/inventory"
	"github.com/xiebiao/freshmart/pkg/mq"
	"github.com/xiebiao/freshmart/pkg/tracing"
)

const tracerName = "freshmart/inventory"

// Transactor store transaction with post-commit hooks (mysql.TxManager)
type Transactor interface {
	domain.Transactor

	// AfterCommit runs fn after the outermost transaction in ctx commits,
	// immediately when there is none
	AfterCommit(ctx context.Context, fn func(ctx context.Context))
}

// AvailabilityCache display availability cache (redis.AvailabilityCache)
type AvailabilityCache interface {
	Get(ctx context.Context, storeID, productID, variantSKU string) (int64, bool, error)
	Set(ctx context.Context, storeID, productID, variantSKU string, quantity int64) error
	Invalidate(ctx context.Context, storeID, productID string) error
}

// NoCache disables caching
type NoCache struct{}

func (NoCache) Get(ctx context.Context, storeID, productID, variantSKU string) (int64, bool, error) {
	return 0, false, nil
}

func (NoCache) Set(ctx context.Context, storeID, productID, variantSKU string, quantity int64) error {
	return nil
}

func (NoCache) Invalidate(ctx context.Context, storeID, productID string) error {
	return nil
}

// productRef cache invalidation unit
type productRef struct {
	StoreID   string
	ProductID string
}

// notifier post-commit side effects shared by the use cases
//
// Cache invalidation and events are best effort: failures are logged, the
// committed stock change stands.
type notifier struct {
	tx     Transactor
	cache  AvailabilityCache
	events mq.EventPublisher
	log    *zap.Logger
}

func newNotifier(tx Transactor, cache AvailabilityCache, events mq.EventPublisher, log *zap.Logger) *notifier {
	if cache == nil {
		cache = NoCache{}
	}
	if events == nil {
		events = mq.NopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &notifier{tx: tx, cache: cache, events: events, log: log}
}

// outgoing one event to publish
type outgoing struct {
	routingKey string
	payload    interface{}
}

// afterCommit invalidates products and publishes events once ctx's
// transaction commits
func (n *notifier) afterCommit(ctx context.Context, products []productRef, events ...outgoing) {
	n.tx.AfterCommit(ctx, func(ctx context.Context) {
		seen := make(map[productRef]bool, len(products))
		for _, p := range products {
			if seen[p] {
				continue
			}
			seen[p] = true
			if err := n.cache.Invalidate(ctx, p.StoreID, p.ProductID); err != nil {
				n.log.Warn("availability cache invalidation failed",
					zap.String("store_id", p.StoreID),
					zap.String("product_id", p.ProductID),
					zap.Error(err))
			}
		}

		for _, e := range events {
			if err := n.events.Publish(ctx, e.routingKey, e.payload); err != nil {
				n.log.Warn("event publish failed",
					append(tracing.LogFields(ctx),
						zap.String("routing_key", e.routingKey),
						zap.Error(err))...)
			}
		}
	})
}
