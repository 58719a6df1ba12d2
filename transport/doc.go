// Package transport implements the per-relay transport collaborator over a
// WebSocket: dialing, heartbeat, and NIP-01 envelope routing
// (REQ/CLOSE/EVENT/EOSE/NOTICE/OK). It satisfies the relay package's
// Transport interface and carries no lifecycle policy of its own.
package transport
