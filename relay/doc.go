// Package relay implements the relay connection manager.
//
// A Connection:
//   - Owns one logical connection to a nostr relay
//   - Tracks attempt/success counters and connection-lifetime history
//   - Detects flapping (rapid low-variance connect/drop cycling)
//   - Reconnects with a two-tier backoff keyed on the last lifetime
//   - Multiplexes subscriptions and publishes over the transport
//   - Re-emits lifecycle signals to observers
package relay
