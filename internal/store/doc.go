// Package store persists community snapshots.
//
// A snapshot is the full engine state of one community (users, rights,
// reservations, break logs, waitlist) serialized as a single JSON
// document. Two drivers are provided:
//   - "file": one JSON file per community under a directory
//   - "sqlite": one row per community in a SQLite database
package store
