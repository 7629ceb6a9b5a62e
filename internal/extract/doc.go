// Package extract turns raw origin payloads into pipeline-ready values: cleaned and
// truncated text, email addresses, and candidate links for the email resolver.
//
// Nothing in this package panics on malformed input; missing data resolves to empty values.
package extract
