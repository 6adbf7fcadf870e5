// Package state holds the run-state document of a test harness run.
//
// The document is a tree of Values addressed by dotted paths such as
// "spec.cluster.zones". A Store owns one document and rewrites its JSON
// snapshot after every mutation, so the file on disk always reflects the
// last completed change. Readers never fail: a missing path and a path
// holding a falsy value both report "not found".
//
// Lifecycle:
//
//	Uninitialized --Init--> Active --Finish--> Finished
//
// Writes are accepted while Active or Finished. Init is allowed once.
package state
