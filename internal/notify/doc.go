// Package notify implements the response delivery pipeline: it composes a
// per-recipient notification (summary text, optional prompt image, answer
// recording), dispatches it over the Telegram Bot API, and fans out across
// every configured recipient.
//
// Delivery is best-effort and exactly-once per recipient per response: there
// is no retry, no outbox, and no rollback of the local save. A failure for
// one recipient never stops the remaining recipients; all failures are
// aggregated and surfaced to the caller at the end.
package notify
