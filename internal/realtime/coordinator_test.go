package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/roach88/livedoc/internal/docstore"
	"github.com/roach88/livedoc/internal/testutil"
)

func newTestCoordinator(t *testing.T, opts ...Option) (*Coordinator, *fakeQuerier) {
	t.Helper()
	q := newFakeQuerier()
	return NewCoordinator(testSchema(), q, opts...), q
}

func subscribe(t *testing.T, c *Coordinator, conn *testutil.FakeConn, p QueryParams) {
	t.Helper()
	require.NoError(t, c.Subscribe(context.Background(), conn, p))
}

func TestSubscribe_AcknowledgesAndPersists(t *testing.T) {
	c, _ := newTestCoordinator(t)
	conn := testutil.NewFakeConn("c1")
	subscribe(t, c, conn, QueryParams{Table: "tickets", Status: "open"})

	frames := conn.Frames()
	require.Len(t, frames, 1)
	ack := decodeFrame(t, frames[0])
	assert.Equal(t, FrameSubscribed, ack.Type)
	assert.Equal(t, map[string]any{"table": "tickets", "status": "open"}, ack.Query)

	assert.JSONEq(t, `{"table":"tickets","status":"open"}`, string(conn.Attachment()))
	sub, ok := c.Registry().Get("c1")
	require.True(t, ok)
	assert.Equal(t, "open", sub.Params.Status)
}

func TestSubscribe_Rejected(t *testing.T) {
	c, _ := newTestCoordinator(t)
	conn := testutil.NewFakeConn("c1")

	err := c.Subscribe(context.Background(), conn, QueryParams{Table: "tickets", Max: ptr(5000)})
	assert.ErrorIs(t, err, ErrInvalidQuery)
	assert.Zero(t, c.Registry().Len())
	assert.Empty(t, conn.Frames())
	assert.Nil(t, conn.Attachment())
}

func TestSubscribe_ReplacesPriorSubscription(t *testing.T) {
	c, _ := newTestCoordinator(t)
	conn := testutil.NewFakeConn("c1")
	subscribe(t, c, conn, QueryParams{Table: "tickets", Status: "open"})
	subscribe(t, c, conn, QueryParams{Table: "users"})

	assert.Equal(t, 1, c.Registry().Len())
	sub, _ := c.Registry().Get("c1")
	assert.Equal(t, "users", sub.Params.Table)
}

func TestSubscribe_AckFailureDropsConnection(t *testing.T) {
	c, _ := newTestCoordinator(t)
	conn := testutil.NewBrokenConn("c1")

	err := c.Subscribe(context.Background(), conn, QueryParams{Table: "users"})
	assert.Error(t, err)
	assert.Zero(t, c.Registry().Len())
	closed, _ := conn.Closed()
	assert.True(t, closed)
}

// ackHookConn runs beforeAck on another goroutine during the first Send and
// waits for it, so work can interleave with the subscribed acknowledgement.
type ackHookConn struct {
	*testutil.FakeConn
	once      sync.Once
	beforeAck func()
}

func (c *ackHookConn) Send(ctx context.Context, frame []byte) error {
	c.once.Do(func() {
		done := make(chan struct{})
		go func() {
			defer close(done)
			c.beforeAck()
		}()
		<-done
	})
	return c.FakeConn.Send(ctx, frame)
}

func TestSubscribe_AckPrecedesConcurrentBroadcast(t *testing.T) {
	ctx := context.Background()
	c, q := newTestCoordinator(t)
	doc := docstore.Document{"_id": "u1", "name": "ada"}
	q.add("users", doc)

	var during BroadcastStats
	conn := &ackHookConn{FakeConn: testutil.NewFakeConn("c1")}
	conn.beforeAck = func() {
		during = c.Broadcast(ctx, Mutation{Table: "users", Document: doc})
	}
	require.NoError(t, c.Subscribe(ctx, conn, QueryParams{Table: "users"}))

	assert.Zero(t, during.Matched, "an unacknowledged connection must not receive data")

	after := c.Broadcast(ctx, Mutation{Table: "users", Document: doc})
	assert.Equal(t, 1, after.Delivered)

	frames := conn.Frames()
	require.Len(t, frames, 2)
	assert.Equal(t, FrameSubscribed, decodeFrame(t, frames[0]).Type)
	assert.Equal(t, FrameData, decodeFrame(t, frames[1]).Type)
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	c, _ := newTestCoordinator(t)
	subscribe(t, c, testutil.NewFakeConn("c1"), QueryParams{Table: "users"})

	assert.True(t, c.Unsubscribe("c1"))
	assert.False(t, c.Unsubscribe("c1"))
	assert.False(t, c.Unsubscribe("never"))
	assert.Zero(t, c.Registry().Len())
}

func TestHandleMessage_PingPong(t *testing.T) {
	c, _ := newTestCoordinator(t)
	conn := testutil.NewFakeConn("c1")
	subscribe(t, c, conn, QueryParams{Table: "users"})

	require.NoError(t, c.HandleMessage(context.Background(), conn, []byte("ping")))
	require.NoError(t, c.HandleMessage(context.Background(), conn, []byte("hello")))

	frames := conn.Frames()
	require.Len(t, frames, 2)
	assert.Equal(t, "pong", string(frames[1]))
	assert.Equal(t, 1, c.Registry().Len())
}

func TestBroadcast_DeduplicatesIdenticalQueries(t *testing.T) {
	ctx := context.Background()
	c, q := newTestCoordinator(t)
	a := testutil.NewFakeConn("a")
	b := testutil.NewFakeConn("b")
	subscribe(t, c, a, QueryParams{Table: "users"})
	subscribe(t, c, b, QueryParams{Table: "users"})

	doc := docstore.Document{"_id": "u1", "name": "ada"}
	q.add("users", doc)
	stats := c.Broadcast(ctx, Mutation{Table: "users", Document: doc})

	assert.Equal(t, BroadcastStats{Matched: 2, Queries: 1, Delivered: 2}, stats)
	assert.Equal(t, 1, q.callCount())
	for _, conn := range []*testutil.FakeConn{a, b} {
		frames := conn.Frames()
		require.Len(t, frames, 2)
		push := decodeFrame(t, frames[1])
		assert.Equal(t, FrameData, push.Type)
		assert.Equal(t, map[string]any{"table": "users"}, push.Query)
		require.Len(t, push.Data, 1)
		assert.Equal(t, "ada", push.Data[0]["name"])
	}
}

func TestBroadcast_IsolatesBrokenConnection(t *testing.T) {
	ctx := context.Background()
	c, q := newTestCoordinator(t)
	conns := []*testutil.FakeConn{
		testutil.NewFakeConn("a"),
		testutil.NewFakeConn("b"),
		testutil.NewFakeConn("c"),
	}
	for _, conn := range conns {
		subscribe(t, c, conn, QueryParams{Table: "tickets", Status: "open"})
	}
	conns[1].Break()

	doc := docstore.Document{"_id": "t1", "status": "open", "stock": 3}
	q.add("tickets", doc)
	stats := c.Broadcast(ctx, Mutation{Table: "tickets", Document: doc})

	assert.Equal(t, 2, stats.Delivered)
	assert.Equal(t, 1, stats.Dropped)
	assert.Len(t, conns[0].Frames(), 2)
	assert.Len(t, conns[2].Frames(), 2)

	_, ok := c.Registry().Get("b")
	assert.False(t, ok, "broken connection is unregistered")
	closed, _ := conns[1].Closed()
	assert.True(t, closed)
	assert.Equal(t, 2, c.Registry().Len())
}

func TestBroadcast_MatchesInMemory(t *testing.T) {
	ctx := context.Background()
	c, q := newTestCoordinator(t)
	cheap := testutil.NewFakeConn("cheap")
	closed := testutil.NewFakeConn("closed")
	single := testutil.NewFakeConn("single")
	users := testutil.NewFakeConn("users")
	subscribe(t, c, cheap, QueryParams{Table: "tickets", Max: ptr(10)})
	subscribe(t, c, closed, QueryParams{Table: "tickets", Status: "closed"})
	subscribe(t, c, single, QueryParams{Table: "tickets", ID: "t1"})
	subscribe(t, c, users, QueryParams{Table: "users"})

	stats := c.Broadcast(ctx, Mutation{Table: "tickets", Document: docstore.Document{
		"_id": "t1", "status": "open", "stock": 5,
	}})

	assert.Equal(t, 2, stats.Matched)
	assert.Equal(t, 2, stats.Queries)
	assert.Equal(t, 2, q.callCount())
	assert.Len(t, cheap.Frames(), 2)
	assert.Len(t, single.Frames(), 2)
	assert.Len(t, closed.Frames(), 1)
	assert.Len(t, users.Frames(), 1)
}

func TestBroadcast_NoMatchSkipsQueries(t *testing.T) {
	c, q := newTestCoordinator(t)
	subscribe(t, c, testutil.NewFakeConn("a"), QueryParams{Table: "tickets", Status: "closed"})

	stats := c.Broadcast(context.Background(), Mutation{Table: "tickets", Document: docstore.Document{"status": "open"}})
	assert.Equal(t, BroadcastStats{}, stats)
	assert.Zero(t, q.callCount())
}

func TestBroadcast_FailedQueryIsLoggedAndSkipped(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	c, q := newTestCoordinator(t, WithLogger(zap.New(core).Sugar()))
	q.failOn = "stock gte"

	ranged := testutil.NewFakeConn("ranged")
	all := testutil.NewFakeConn("all")
	subscribe(t, c, ranged, QueryParams{Table: "tickets", Min: ptr(1)})
	subscribe(t, c, all, QueryParams{Table: "tickets"})

	stats := c.Broadcast(context.Background(), Mutation{Table: "tickets", Document: docstore.Document{"stock": 5}})

	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Delivered)
	assert.Len(t, ranged.Frames(), 1, "no data frame for the failed query")
	assert.Len(t, all.Frames(), 2)
	assert.Equal(t, 2, c.Registry().Len(), "query failures never drop subscribers")
	assert.Equal(t, 1, logs.FilterMessage("re-query failed").Len())
}

func TestRecover(t *testing.T) {
	first, _ := newTestCoordinator(t)
	a := testutil.NewFakeConn("a")
	b := testutil.NewFakeConn("b")
	subscribe(t, first, a, QueryParams{Table: "tickets", Status: "open"})
	subscribe(t, first, b, QueryParams{Table: "users", ID: "u1"})

	garbage := testutil.NewFakeConn("garbage")
	garbage.SetAttachment([]byte("{not json"))
	bare := testutil.NewFakeConn("bare")

	restarted, q := newTestCoordinator(t)
	n := restarted.Recover([]Conn{a, b, garbage, bare})

	assert.Equal(t, 2, n)
	assert.Equal(t, 2, restarted.Registry().Len())
	assert.Zero(t, q.callCount(), "recovery does not re-query")
	assert.Len(t, a.Frames(), 1, "recovery sends nothing")

	sub, ok := restarted.Registry().Get("b")
	require.True(t, ok)
	assert.Equal(t, QueryParams{Table: "users", ID: "u1"}, sub.Params)

	stats := restarted.Broadcast(context.Background(), Mutation{Table: "users", Document: docstore.Document{"_id": "u1"}})
	assert.Equal(t, 1, stats.Delivered)
}

func TestRun_ProcessesPublishedMutations(t *testing.T) {
	c, q := newTestCoordinator(t)
	conn := testutil.NewFakeConn("a")
	subscribe(t, c, conn, QueryParams{Table: "users"})
	q.add("users", docstore.Document{"_id": "u1"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	seq1, ok := c.Publish("users", docstore.Document{"_id": "u1"})
	require.True(t, ok)
	seq2, ok := c.Publish("users", docstore.Document{"_id": "u1"})
	require.True(t, ok)
	assert.Equal(t, seq1+1, seq2)

	require.Eventually(t, func() bool { return len(conn.Frames()) == 3 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}

	_, ok = c.Publish("users", docstore.Document{})
	assert.False(t, ok, "publish after stop is rejected")
}

func TestRun_StopDrainsQueue(t *testing.T) {
	c, _ := newTestCoordinator(t)
	c.Publish("users", docstore.Document{})
	c.Publish("users", docstore.Document{})
	c.Stop()

	require.NoError(t, c.Run(context.Background()))
	assert.Zero(t, c.Pending())
}
