// Package model provides the provenance domain types for BRAID.
//
// This package contains type definitions only. All other internal packages
// import model; model imports nothing internal.
//
// Key design constraints:
//   - Record ids are assigned by the store (0 means "not yet persisted")
//   - Invalidation and action ids are opaque strings (UUIDv7 in production)
//   - Tag values are always text; Type only records the declared kind
//   - Action params are a structured template tree; integral numbers are Int
//   - All JSON tags use snake_case
package model
