// Package sanitizer normalizes free text submitted by sponsors and admins
// before it is validated and stored.
//
// All functions are idempotent and never fail: invalid input becomes an empty
// string rather than an error, leaving rejection to the validators.
//
// Normalization includes:
//   - Names: collapse whitespace, drop control characters, cap the length
//   - Notes: same as names per line, keeping at most one blank line in a row
//   - E-mails: trim and lowercase
package sanitizer
