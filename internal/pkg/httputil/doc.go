// Package httputil holds the JSON response and request helpers every
// handler uses, so error envelopes and content types stay consistent.
package httputil
