// Package filter defines the predicate IR shared by the query builder, both
// store adapters and the realtime matcher.
//
// Predicates are a sealed set (Compare, In, And). The store adapters compile
// them to SQL or BSON; Match evaluates them in memory with document-store
// semantics so a subscription matches a mutation exactly when the re-query
// would return it:
//   - a missing field equals nil
//   - an array field matches when any element matches
//   - range comparisons only succeed between values of the same type class
//     (numbers with numbers, strings with strings, times with times)
package filter
