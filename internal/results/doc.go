// Package results downloads the artifacts listed in an order's result
// manifest and optionally mirrors them into an S3 bucket.
package results
