// Package esp implements outbound email delivery through external
// providers (AWS SES v2, SparkPost) plus a logging provider for local
// development.
//
// Every provider is a single-attempt dispatcher: it hands one rendered
// message to the provider and returns the provider-assigned message ID or
// the provider's error. Retrying is the caller's decision.
package esp
