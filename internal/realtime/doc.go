// Package realtime keeps live subscribers synchronized with mutations.
//
// A Coordinator owns the subscription registry. Connections subscribe with
// a small query (table plus optional id, numeric range and status
// filters) validated against the table's channel configuration. Writers
// publish mutation events; the coordinator's single Run loop matches each
// event against the registry in memory, groups matching subscriptions by
// the canonical signature of their query, re-runs each distinct query once
// and pushes the result to every connection in the group.
//
// A failed send removes only the connection it was addressed to. A failed
// re-query is logged and skipped; other groups of the same event are still
// delivered.
//
// Transport serves the WebSocket side: handshake validation before upgrade,
// the subscribed/data frames, and the text ping/pong keepalive.
package realtime
