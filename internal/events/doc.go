// Package events moves notification events in and out of the service.
//
// Recorder appends events to the signup store and optionally fans them out
// to an SQS queue. Consumer long-polls an SQS queue fed by an SES
// configuration set and turns delivery, open, click and bounce
// notifications into recorded engagement.
package events
