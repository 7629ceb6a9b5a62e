// Package crawler defines the shared vocabulary of the lead discovery pipeline:
// postings, leads, checkpoints, run states, the error taxonomy, and the small
// capability interfaces implemented by sources, fetchers, and stores.
package crawler
