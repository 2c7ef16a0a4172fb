// Package variant provides a Go library for experiment variant bucketing with
// mutually-exclusive page groups and reliable exposure reporting.
//
// Variant assigns a visitor to at most one experiment per page group, derives
// two-tier exposure attribution (the variant a user holds vs. the variant they
// are actually exposed to), and delivers the resulting tracking events to a
// remote collector with at-least-once semantics across host suspensions and
// restarts.
//
// # Quick Start
//
// Basic usage with default settings:
//
//	import (
//	    variant "github.com/eladnissenberg/variant-shopify-setup"
//	    "github.com/eladnissenberg/variant-shopify-setup/catalog"
//	    "github.com/eladnissenberg/variant-shopify-setup/storage"
//	)
//
//	cfg := variant.Config{
//	    CollectorURL: "https://collect.example.com/events",
//	    APIKey:       os.Getenv("COLLECTOR_API_KEY"),
//	}
//
//	cat, err := catalog.LoadFile("experiments.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	client, err := variant.New(&cfg, storage.NewMemory(), cat)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := client.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Stop(context.Background())
//
// # Key Features
//
//   - Mutually-Exclusive Bucketing: one uniform draw per page group decides
//     whether the group's traffic enters a test at all, then which test wins;
//     everyone else becomes an attributable control
//   - Two-Tier Attribution: AssignedVariant records the held variant,
//     TestedVariant records actual exposure (recomputed after every change)
//   - At-Least-Once Delivery: batches leave the FIFO queue only after the
//     collector accepts them; failures retry with exponential backoff and a
//     circuit breaker pauses delivery after repeated failures
//   - Interruptible Lifecycle: Suspend persists the pending queue, Resume
//     restarts delivery cleanly, and a stopped instance's queue is adopted
//     by the next one
//   - Durable Identity: a stable user id plus a session id that rotates
//     after 30 minutes of inactivity, mirrored across stores
//
// # Architecture
//
// A Client moves through a small lifecycle:
//
//	Init → Running ⇄ Suspended → Stopped
//
// Start resolves identity, adopts persisted assignments and the pending
// queue, buckets the catalog, and reports new assignments. While running,
// a scheduler drains the queue in batches; TrackAssignment and QueueEvent
// feed it. Suspend/Stop persist the queue for the next instance.
//
// # Advanced Usage
//
// Custom stores, sinks, and hooks:
//
//	import (
//	    variant "github.com/eladnissenberg/variant-shopify-setup"
//	    "github.com/eladnissenberg/variant-shopify-setup/sink"
//	    "github.com/eladnissenberg/variant-shopify-setup/storage"
//	)
//
//	store := storage.NewRedis(redisClient, 45*24*time.Hour)
//	announcer := sink.NewNATS(natsConn, "variant.assignments", logger)
//
//	hooks := &variant.Hooks{
//	    OnAssignment: func(ctx context.Context, a variant.Assignment) error {
//	        return applyVariant(a) // e.g. swap theme sections
//	    },
//	}
//
//	client, err := variant.New(&cfg, store, cat,
//	    variant.WithSink(announcer),
//	    variant.WithHooks(hooks),
//	    variant.WithMirror(storage.NewMemory()),
//	)
//
// See the examples/ directory for complete working examples.
package variant
