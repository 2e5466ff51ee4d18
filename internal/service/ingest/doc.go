// Package ingest is the application service behind the HTTP surface:
// submission, preview, job reads, record reads, and deletion. It owns the
// pre-queue validation rules and hides which repository backing is live.
package ingest
