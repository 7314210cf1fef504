package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roach88/livedoc/internal/docstore"
	"github.com/roach88/livedoc/internal/docstore/sqlitestore"
	"github.com/roach88/livedoc/internal/realtime"
	"github.com/roach88/livedoc/internal/schema"
	"github.com/roach88/livedoc/internal/tables"
)

type testEnv struct {
	db    *tables.DB
	coord *realtime.Coordinator
	srv   *httptest.Server
}

func testSchema() *schema.Schema {
	users := schema.NewTable("users", schema.Field{Name: "name", Kind: schema.KindString})
	tickets := schema.NewTable("tickets",
		schema.Field{Name: "title", Kind: schema.KindString},
		schema.Field{Name: "stock", Kind: schema.KindNumber},
		schema.Field{Name: "user", Kind: schema.KindReference, Target: "users"},
	)
	return schema.MustNew([]schema.Table{users, tickets}, nil)
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("disk on fire") }

func newTestEnv(t *testing.T, pinger Pinger) *testEnv {
	t.Helper()
	s := testSchema()
	store, err := sqlitestore.Open(filepath.Join(t.TempDir(), "test.db"), s)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	if pinger == nil {
		pinger = store
	}

	logger := zap.NewNop().Sugar()
	var coord *realtime.Coordinator
	db := tables.New(store, s, tables.WithLogger(logger), tables.WithMutationHook(func(table string, doc docstore.Document) {
		coord.Publish(table, doc)
	}))
	coord = realtime.NewCoordinator(s, db, realtime.WithLogger(logger))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = coord.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	transport := realtime.NewTransport(coord, logger)
	srv := httptest.NewServer(New(":0", db, coord, transport, pinger, logger).Handler())
	t.Cleanup(srv.Close)
	return &testEnv{db: db, coord: coord, srv: srv}
}

func (e *testEnv) post(t *testing.T, path, body string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(e.srv.URL+path, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, err := http.Get(env.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	down := newTestEnv(t, failingPinger{})
	resp2, err := http.Get(down.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp2.StatusCode)
}

func TestTableAPI(t *testing.T) {
	env := newTestEnv(t, nil)

	status, body := env.post(t, "/api/users/create", `{"data": {"name": "ada"}}`)
	require.Equal(t, http.StatusOK, status, body)
	user := body["data"].(map[string]any)
	id := user["_id"].(string)
	assert.Equal(t, "ada", user["name"])

	status, body = env.post(t, "/api/tickets/create", `{"data": {"title": "t", "stock": 4, "user": "`+id+`"}, "include": ["user"]}`)
	require.Equal(t, http.StatusOK, status, body)
	ticket := body["data"].(map[string]any)
	assert.Equal(t, "ada", ticket["user"].(map[string]any)["name"])

	status, body = env.post(t, "/api/users/findUnique", `{"where": {"_id": "`+id+`"}, "include": {"tickets": true}}`)
	require.Equal(t, http.StatusOK, status, body)
	found := body["data"].(map[string]any)
	assert.Len(t, found["tickets"], 1)

	status, body = env.post(t, "/api/tickets/count", `{"where": {"stock": {"gte": 4}}}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.EqualValues(t, 1, body["data"].(map[string]any)["count"])

	status, body = env.post(t, "/api/tickets/aggregate", `{"sum": ["stock"], "groupBy": ["user"]}`)
	require.Equal(t, http.StatusOK, status, body)
	rows := body["data"].([]any)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 4, rows[0].(map[string]any)["sum_stock"])
}

func TestTableAPI_Errors(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"unknown table", "/api/orders/findMany", `{}`, http.StatusNotFound},
		{"unknown op", "/api/users/upsert", `{}`, http.StatusNotFound},
		{"findUnique without where", "/api/users/findUnique", `{}`, http.StatusBadRequest},
		{"bad where", "/api/users/findMany", `{"where": {"name": {"like": "a"}}}`, http.StatusBadRequest},
		{"create without data", "/api/users/create", `{}`, http.StatusBadRequest},
		{"malformed json", "/api/users/findMany", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.post(t, tt.path, tt.body)
			assert.Equal(t, tt.status, status)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestMutations(t *testing.T) {
	env := newTestEnv(t, nil)

	status, body := env.post(t, "/mutations", `{"table": "users", "document": {"_id": "u1"}}`)
	assert.Equal(t, http.StatusAccepted, status)
	assert.NotZero(t, body["seq"])

	status, _ = env.post(t, "/mutations", `{"table": "orders", "document": {}}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.post(t, "/mutations", `{"table": "users"}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestWritesReachSubscribers(t *testing.T) {
	env := newTestEnv(t, nil)

	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/subscribe?table=users"
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	defer ws.Close()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))

	var ack map[string]any
	require.NoError(t, ws.ReadJSON(&ack))
	assert.Equal(t, "subscribed", ack["type"])

	status, _ := env.post(t, "/api/users/create", `{"data": {"name": "ada"}}`)
	require.Equal(t, http.StatusOK, status)

	var push struct {
		Type string           `json:"type"`
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, ws.ReadJSON(&push))
	assert.Equal(t, "data", push.Type)
	require.Len(t, push.Data, 1)
	assert.Equal(t, "ada", push.Data[0]["name"])
}
