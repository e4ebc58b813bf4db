// Package notifier delivers chat messages asynchronously.
//
// Messages are queued and sent by a small worker pool under a shared rate
// limit, retried with jittered exponential backoff, and suppressed when an
// identical message was sent within the dedup window. Dedup keys can be
// persisted so a restart does not repeat goal announcements.
package notifier
