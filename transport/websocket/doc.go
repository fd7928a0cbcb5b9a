// Package websocket streams session snapshots to WebSocket clients.
//
// A Hub groups connections by session ID. The service publishes every
// committed snapshot through Hub.Publish, and the hub fans it out to the
// session's clients as:
//
//	{"session_id": "abc", "event": "snapshot", "snapshot": {...}}
//
// Clients may also submit actions when the hub has an ActionSink:
//
//	{"type": "actions", "actions": [{"actor": "x", "kind": "place", "targets": ["c11"]}]}
//
// The reply is an "action_result" event carrying the play result, or an
// "error" event. Only the Run loop touches the client registry; clients that
// fall behind are disconnected.
package websocket
