// Package alerts turns health snapshots into deduplicated alert records.
//
// Engine.Analyze runs one rule per check category (disk encryption, OS
// updates, antivirus, sleep). Each rule yields decisions of the form "this
// alert type should be open with severity S" or "this alert type should be
// resolved", and the engine applies them against the store with
// create-if-not-exists and resolve-by-type semantics, so replaying the same
// snapshot is idempotent.
//
// A check that failed on the agent (error payload) fails safe: the rule
// treats it as non-compliant and opens its alert.
//
// Open and resolve events are fanned out asynchronously to Notifiers:
// webhooks (Slack, Teams, generic HTTP) through go-retryablehttp, and an
// AMQP topic exchange. Delivery failures are logged and counted only.
package alerts
