// Package crawler holds the types, interfaces and error taxonomy shared by the
// crawl-and-ingest pipeline: the movie Record, ingest outcomes, the fetch,
// store, queue and publisher contracts, and the read-side Query.
package crawler
