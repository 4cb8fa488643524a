// Package httputil provides shared HTTP response/request utilities for the
// waitlist handlers.
//
// Handlers use these helpers instead of writing raw http.ResponseWriter
// calls so that every endpoint emits the same JSON envelope and never leaks
// internal error text to clients.
package httputil
