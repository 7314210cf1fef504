// Package docstore defines the adapter contract the table layer runs on and
// the id codec shared by all adapters.
//
// Adapters (sqlitestore, mongostore) speak store-native values: document ids
// and reference fields are primitive.ObjectID on the way in and on the way
// out. Converting to and from the external string form is the caller's job
// (see ToNative and ToExternal); the table layer does it at every boundary.
package docstore
