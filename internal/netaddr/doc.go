// Package netaddr parses and derives the identifiers attached to a managed
// device: its hardware address, its network address, a stable display colour
// and a slug used to build entity identifiers.
//
// Every function is pure and safe for concurrent use.
package netaddr
