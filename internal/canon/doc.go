// Package canon produces canonical JSON and content hashes for query
// parameter sets.
//
// Two subscriptions share a re-query exactly when their parameters hash to
// the same signature, so the encoding must be independent of map iteration
// order, Unicode normalization form and numeric Go type:
//   - object keys sorted by UTF-16 code units (RFC 8785)
//   - strings NFC normalized, no HTML escaping
//   - integral numbers printed without a fraction; NaN and Inf rejected
package canon
