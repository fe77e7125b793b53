// Package transport holds the concrete remote and fallback transports the
// bus forwards events to: an AWS EventBridge remote, an SNS fallback, and a
// NATS remote for self-hosted deployments. All of them are best-effort
// carriers; delivery guarantees stay with the in-process bus.
package transport
