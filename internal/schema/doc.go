// Package schema holds the statically built table descriptors and the
// reference map derived from them.
//
// Tables are declared in CUE (see LoadDir and Parse) or constructed directly
// with New. Every field is described by a tagged variant (Field) built once at
// startup; nothing in the query layer inspects schema values at call time.
//
// The RefMap answers two questions for the populate resolver:
//   - Forward: which table does tickets.user point at?
//   - Backward: which (table, field) pairs point at users?
//
// A Schema is immutable after construction and safe for concurrent use.
package schema
