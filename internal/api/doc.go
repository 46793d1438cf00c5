// Package api hosts the read-only HTTP facade over the movie catalog.
// Notable routes:
//   - GET /healthz and /readyz for probes; readyz asks the catalog for a count.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/movies with genre, year, rating, name, limit and offset filters.
//   - GET /v1/movies/{external_id}, /top/{percentage}, /recent and /dontwatch.
//   - GET /v1/search?q= which reads the term as a year, a rating, a title
//     fragment and finally a genre.
package api
