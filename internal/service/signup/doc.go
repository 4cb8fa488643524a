// Package signup implements the waitlist signup lifecycle.
//
// Submit validates and normalizes a candidate signup, inserts it exactly
// once and requests a best-effort welcome email. Duplicate emails are a
// benign conflict: the store's uniqueness constraint rejects the insert and
// the caller gets a successful "already subscribed" result. There is no
// read-before-write; concurrent duplicate submissions are resolved entirely
// by the store.
//
// The service depends on the Repository interface defined in repository.go
// and never imports net/http or database/sql.
package signup
