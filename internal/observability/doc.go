// Package observability records what the recorder did across runs: an
// append-only JSONL event log in the logs root, metrics derived from it on
// demand, alert rules over the event log and the session files on disk, and
// a Slack notifier for those alerts.
package observability
