// Package database provides SQLite persistence for the SOMweb bridge.
//
// The bridge persists one thing: configuration entries (one per physical
// SOMweb device). SQLite is a deliberate fit — a single small table, one
// writer, zero operational overhead.
//
// # Features
//
//   - WAL mode for concurrent reads during writes
//   - Embedded, versioned SQL migrations
//   - Health checks for monitoring
//
// # Usage
//
//	db, err := database.Open(ctx, database.Config{Path: "./data/somweb.db", WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package database
