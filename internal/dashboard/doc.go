// Package dashboard keeps one card per registered device in a stored
// dashboard document.
//
// A document is a JSON tree of the form
//
//	{"views": [{"path": "womgr", "title": "HaWoManager", "cards": [...]}]}
//
// The reconciler reads only views[].path and views[].cards[].title and
// leaves every other key untouched, so documents edited by hand survive a
// load/modify/save cycle.
//
// # Serialization
//
// Every load→modify→save cycle runs under a mutex keyed by the resolved view
// path. Two devices upserting into the same view are serialized; devices in
// different views do not contend. Stores only need read-then-write
// semantics.
//
// # Stores
//
//   - MemoryStore: in-process map, used by tests and the "memory" backend
//   - SQLiteStore: dashboards table in the service database
//   - LovelaceStore: remote Lovelace config endpoint over HTTP
package dashboard
