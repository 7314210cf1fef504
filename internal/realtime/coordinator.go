package realtime

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/livedoc/internal/docstore"
	"github.com/roach88/livedoc/internal/filter"
	"github.com/roach88/livedoc/internal/schema"
)

// DefaultMaxConcurrentQueries bounds the re-queries of one event that run
// at the same time.
const DefaultMaxConcurrentQueries = 8

// Querier re-runs a subscription query. Implemented by tables.DB.
type Querier interface {
	Find(ctx context.Context, table string, where filter.Predicate) ([]docstore.Document, error)
}

// Coordinator owns the subscription registry and fans mutations out.
//
// Thread-safety model:
//   - Subscribe, Unsubscribe, HandleMessage, Recover, Publish: any goroutine
//   - Run: exactly one goroutine
type Coordinator struct {
	schema        *schema.Schema
	querier       Querier
	registry      *Registry
	queue         *mutationQueue
	clock         *Clock
	logger        *zap.SugaredLogger
	maxConcurrent int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// WithMaxConcurrentQueries bounds concurrent re-queries per event.
// Values below 1 fall back to DefaultMaxConcurrentQueries.
func WithMaxConcurrentQueries(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxConcurrent = n
		}
	}
}

// NewCoordinator creates a coordinator re-querying through q.
func NewCoordinator(s *schema.Schema, q Querier, opts ...Option) *Coordinator {
	c := &Coordinator{
		schema:        s,
		querier:       q,
		registry:      NewRegistry(),
		queue:         newMutationQueue(),
		clock:         NewClock(),
		logger:        zap.NewNop().Sugar(),
		maxConcurrent: DefaultMaxConcurrentQueries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry exposes the subscription registry.
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// Schema returns the schema subscriptions are validated against.
func (c *Coordinator) Schema() *schema.Schema {
	return c.schema
}

func (c *Coordinator) subscription(conn Conn, p QueryParams) (*Subscription, error) {
	if err := p.Validate(c.schema); err != nil {
		return nil, err
	}
	sig, err := p.Signature()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	return &Subscription{Conn: conn, Params: p, Signature: sig, predicate: p.Predicate(c.schema)}, nil
}

// Subscribe validates p, persists it as the connection attachment, sends
// the subscribed acknowledgement and then registers conn. A failed ack
// closes conn without registering it. A connection holds one subscription;
// subscribing again replaces it.
func (c *Coordinator) Subscribe(ctx context.Context, conn Conn, p QueryParams) error {
	sub, err := c.subscription(conn, p)
	if err != nil {
		return err
	}
	attachment, err := encodeAttachment(p)
	if err != nil {
		return fmt.Errorf("encode attachment: %w", err)
	}
	ack, err := encodeSubscribed(p)
	if err != nil {
		return fmt.Errorf("encode subscribed frame: %w", err)
	}

	// The ack goes out before the subscription becomes visible to Broadcast,
	// so subscribed is always the first frame on the connection.
	conn.SetAttachment(attachment)
	if err := conn.Send(ctx, ack); err != nil {
		c.drop(conn, err)
		return fmt.Errorf("send subscribed frame: %w", err)
	}

	replaced := c.registry.Put(sub)
	c.logger.Debugw("subscribed", "conn", conn.ID(), "table", p.Table, "signature", sub.Signature, "replaced", replaced)
	return nil
}

// Unsubscribe removes connID. Safe to call more than once.
func (c *Coordinator) Unsubscribe(connID string) bool {
	removed := c.registry.Remove(connID)
	if removed {
		c.logger.Debugw("unsubscribed", "conn", connID)
	}
	return removed
}

// HandleMessage answers the text keepalive. Other messages are ignored.
func (c *Coordinator) HandleMessage(ctx context.Context, conn Conn, msg []byte) error {
	if string(msg) != PingMessage {
		c.logger.Debugw("ignoring client message", "conn", conn.ID(), "size", len(msg))
		return nil
	}
	if err := conn.Send(ctx, []byte(PongMessage)); err != nil {
		c.drop(conn, err)
		return err
	}
	return nil
}

// Recover rebuilds the registry from the attachments of conns. Connections
// without a usable attachment are skipped. Nothing is re-queried. A host
// replacing a coordinator calls it on the new one with Transport.Conns().
func (c *Coordinator) Recover(conns []Conn) int {
	recovered := 0
	for _, conn := range conns {
		p, err := decodeAttachment(conn.Attachment())
		if err == nil {
			var sub *Subscription
			if sub, err = c.subscription(conn, p); err == nil {
				c.registry.Put(sub)
				recovered++
				continue
			}
		}
		c.logger.Warnw("skipping connection without a valid subscription", "conn", conn.ID(), "error", err)
	}
	c.logger.Infow("registry recovered", "subscriptions", recovered, "connections", len(conns))
	return recovered
}

// Publish queues a mutation for the Run loop and returns its sequence
// number. Returns false after the coordinator stopped.
func (c *Coordinator) Publish(table string, doc docstore.Document) (int64, bool) {
	m := Mutation{Seq: c.clock.Next(), Table: table, Document: doc}
	if !c.queue.Enqueue(m) {
		return 0, false
	}
	return m.Seq, true
}

// Pending returns the number of queued mutations.
func (c *Coordinator) Pending() int {
	return c.queue.Len()
}

// Run processes queued mutations until ctx is cancelled or Stop is called.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Infow("coordinator starting")
	for {
		if m, ok := c.queue.TryDequeue(); ok {
			c.Broadcast(ctx, m)
			continue
		}

		select {
		case <-ctx.Done():
			c.logger.Infow("coordinator stopping", "reason", ctx.Err())
			c.queue.Close()
			return ctx.Err()
		case <-c.queue.Wait():
			if c.queue.Len() == 0 {
				c.logger.Infow("coordinator stopping", "reason", "queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue; Run returns once it is drained.
func (c *Coordinator) Stop() {
	c.queue.Close()
}

// BroadcastStats summarizes one broadcast.
type BroadcastStats struct {
	Matched   int
	Queries   int
	Failed    int
	Delivered int
	Dropped   int
}

// Broadcast delivers m to every matching subscription. Subscriptions with
// the same signature share one re-query; distinct signatures run
// concurrently.
func (c *Coordinator) Broadcast(ctx context.Context, m Mutation) BroadcastStats {
	matched := c.registry.Matching(m.Table, m.Document)
	stats := BroadcastStats{Matched: len(matched)}
	if len(matched) == 0 {
		return stats
	}

	var order []string
	groups := map[string][]*Subscription{}
	for _, sub := range matched {
		if _, ok := groups[sub.Signature]; !ok {
			order = append(order, sub.Signature)
		}
		groups[sub.Signature] = append(groups[sub.Signature], sub)
	}
	stats.Queries = len(order)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConcurrent)
	for _, sig := range order {
		group := groups[sig]
		g.Go(func() error {
			delivered, dropped, err := c.deliver(gctx, group)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.Failed++
				c.logger.Errorw("re-query failed",
					"seq", m.Seq, "table", m.Table, "signature", sig, "subscribers", len(group), "error", err)
				return nil
			}
			stats.Delivered += delivered
			stats.Dropped += dropped
			return nil
		})
	}
	_ = g.Wait()

	c.logger.Debugw("broadcast",
		"seq", m.Seq, "table", m.Table, "matched", stats.Matched, "queries", stats.Queries,
		"delivered", stats.Delivered, "dropped", stats.Dropped, "failed", stats.Failed)
	return stats
}

// deliver runs the group's query once and sends the result to each member.
func (c *Coordinator) deliver(ctx context.Context, group []*Subscription) (delivered, dropped int, err error) {
	params := group[0].Params
	docs, err := c.querier.Find(ctx, params.Table, group[0].predicate)
	if err != nil {
		return 0, 0, err
	}
	frame, err := encodeData(params, docs)
	if err != nil {
		return 0, 0, err
	}
	for _, sub := range group {
		if err := sub.Conn.Send(ctx, frame); err != nil {
			c.drop(sub.Conn, err)
			dropped++
			continue
		}
		delivered++
	}
	return delivered, dropped, nil
}

// drop closes conn and removes its subscription after a failed send.
func (c *Coordinator) drop(conn Conn, cause error) {
	c.logger.Warnw("dropping connection after failed send", "conn", conn.ID(), "error", cause)
	c.registry.Remove(conn.ID())
	if err := conn.Close("send failed"); err != nil {
		c.logger.Debugw("close after failed send", "conn", conn.ID(), "error", err)
	}
}
