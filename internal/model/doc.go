// Package model defines the order data shapes shared across the basemap order tooling.
//
// All types mirror the Orders v2 and Basemaps v1 JSON documents.
//
// Conventions:
//   - An OrderSpec is built once by the caller and never mutated after submission
//   - Tool and delivery descriptors are pass-through configuration
//   - Timestamps are time.Time in UTC
package model
