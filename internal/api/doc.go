// Package api provides the REST client for the ordering, basemap and analytics services.
//
// Endpoints (relative to https://api.planet.com):
//   - Orders: /compute/ops/orders/v2
//   - Basemaps: /basemaps/v1/mosaics, /basemaps/v1/mosaics/{id}/quads
//   - Analytics: /analytics/feeds, /analytics/subscriptions
//
// Requests authenticate with HTTP basic auth, API key as user name.
// Order creation is never retried; reads retry on 5xx and 429.
package api
