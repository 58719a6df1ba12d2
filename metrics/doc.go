// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Connection status per relay
//   - Connect/disconnect/notice/flapping signal counts
//   - Connection lifetime distribution
//   - Attempt and success counters
package metrics
