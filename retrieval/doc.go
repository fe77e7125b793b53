// Package retrieval chunks a corpus of regulatory documents, embeds the
// chunks into a fixed-dimension vector space, and serves k-nearest-neighbor
// queries with metadata filtering.
//
// Design decisions:
//   - Exact search: scoring is brute-force cosine over the filtered subset
//     at every corpus size, so results are reproducible
//   - Snapshot reads: the chunk store is an atomically swapped immutable
//     snapshot; readers never block on ingestion and always see a complete
//     corpus state
//   - Deterministic ties: equal similarities order by (document_id, ordinal)
//   - Degrade, don't drop: when embeddings are unavailable the index falls
//     back to lexical IDF scoring and flags the results as such
package retrieval
