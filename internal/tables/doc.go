// Package tables is the schema-aware CRUD layer over a docstore.Store.
//
// A DB materializes one Client per schema table. Clients speak external ids
// (hex strings) and convert to store-native ids at the boundary: filter
// values and written reference values on the way in, every document on the
// way out.
//
// Reading is done through a QueryBuilder:
//
//	open, err := db.MustTable("tickets").Query().
//		Where(filter.Eq("status", "open")).
//		Sort(docstore.SortKey{Field: "stock", Desc: true}).
//		Populate("user").
//		Find(ctx)
//
// Populate resolves references one level deep with exactly one extra store
// round trip per key. A key that names a reference field of the table is
// resolved forward (the field's ids are replaced by the target documents);
// a key that names another table referencing this one is resolved backward
// (each document receives the list of source documents pointing at it).
package tables
