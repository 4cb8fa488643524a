// Package notification renders one of the fixed waitlist templates and
// hands it to an email provider.
//
// The service is stateless: given a recipient, a template name and template
// data it renders, dispatches once and returns the provider message ID.
// Provider failures are surfaced to the caller without retry. A "sent"
// event is appended after a successful dispatch when an event recorder is
// configured; recording failures never fail the send.
package notification
