// Package persistence provides the embedded relational store of the FRACAS dashboard.
// It keeps work orders, failure reports, corrective actions, assets, users and lookup tables
// in a single SQLite file opened in WAL mode. All access goes through one pooled connection,
// so every round-trip is serialized. Aggregation queries feeding the charts live here as well,
// the math on top of them lives in the analytics package.
package persistence
