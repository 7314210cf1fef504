package realtime

import (
	"sort"
	"sync"

	"github.com/roach88/livedoc/internal/filter"
)

// Subscription is one connection's active query.
type Subscription struct {
	Conn      Conn
	Params    QueryParams
	Signature string

	predicate filter.Predicate
}

// Registry maps connection ids to subscriptions. Removal is idempotent and
// all methods are safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	subs map[string]*Subscription
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{subs: make(map[string]*Subscription)}
}

// Put stores sub, replacing any prior subscription of the same connection.
func (r *Registry) Put(sub *Subscription) (replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, replaced = r.subs[sub.Conn.ID()]
	r.subs[sub.Conn.ID()] = sub
	return replaced
}

// Remove drops the subscription of connID. Returns false if none existed.
func (r *Registry) Remove(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[connID]; !ok {
		return false
	}
	delete(r.subs, connID)
	return true
}

// Get returns the subscription of connID.
func (r *Registry) Get(connID string) (*Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.subs[connID]
	return sub, ok
}

// Len returns the number of subscriptions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Matching returns the subscriptions on table whose predicate matches doc,
// ordered by connection id.
func (r *Registry) Matching(table string, doc map[string]any) []*Subscription {
	r.mu.RLock()
	var out []*Subscription
	for _, sub := range r.subs {
		if sub.Params.Table == table && filter.Match(sub.predicate, doc) {
			out = append(out, sub)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Conn.ID() < out[j].Conn.ID() })
	return out
}
