// Package dedupe provides a TTL cache used to make retried requests
// idempotent within a configurable window.
package dedupe
