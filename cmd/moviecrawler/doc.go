// Command moviecrawler crawls a movie chart into a catalog and serves it.
//
// Architecture overview:
//   - crawl: the dispatcher fetches each listing page, discovers title links,
//     and feeds a bounded in-memory queue drained by a fixed worker pool sized
//     by crawler.concurrency. Each worker fetches with retries, optionally
//     archives the raw page, assembles a record through the IMDb selector
//     profile, and hands it to the ingest pipeline.
//   - ingest: records are inserted only when their external id is new. The
//     store (memory, Postgres or MongoDB) arbitrates duplicates atomically.
//     Inserted records may be announced on Pub/Sub.
//   - serve: a chi router exposes the stored catalog read-only, together with
//     health probes and Prometheus metrics.
//
// Configuration comes from an optional YAML file (--config) overlaid with
// MOVIECRAWL_* environment variables, for example MOVIECRAWL_STORE_DRIVER=postgres
// and MOVIECRAWL_STORE_DSN=postgres://... SIGINT and SIGTERM cancel a running
// crawl; records already assembled are still committed before exit.
package main
