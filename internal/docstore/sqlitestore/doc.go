// Package sqlitestore is the embedded docstore adapter.
//
// Each schema table becomes one SQLite table:
//
//	id            TEXT PRIMARY KEY  -- ObjectID hex
//	creation_time INTEGER NOT NULL  -- unix millis
//	body          TEXT NOT NULL     -- JSON of every other field
//
// Filters compile to json_each/json_extract expressions so array fields match
// when any element matches, the same way the in-memory matcher and MongoDB
// behave. All values are parameterized; only table names (validated
// identifiers) are interpolated.
//
// Reads rehydrate _id and reference fields back into native ObjectIDs using
// the schema the store was opened with.
package sqlitestore
