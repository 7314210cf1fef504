// Package mongostore is the MongoDB docstore adapter.
//
// Each schema table is a collection of the same name. Documents are stored
// as-is: _id is the ObjectID, _creationTime an int64 of unix millis, and
// reference fields hold ObjectIDs. Filters compile one-to-one onto MongoDB
// query operators, which already have the array-element and type-bracketing
// semantics the in-memory matcher reproduces.
package mongostore
