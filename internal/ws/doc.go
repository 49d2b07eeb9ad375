// Package ws streams session output to WebSocket clients.
//
// The package implements:
//   - Hub: the clients listening on one topic
//   - HubManager: the hubs by topic; it is the Publisher handed to sessions
//   - Handler: upgrades connections and runs their read and write pumps
//
// Clients join a topic such as "terminal_output#term-1700000000" and receive
// one JSON frame per published chunk:
//
//	{"type":"output","topic":"terminal_output#term-1700000000","data":"..."}
//
// Slow clients are disconnected when their send queue fills, so publishing
// never blocks the session's output pump.
package ws
