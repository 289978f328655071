// Package chunking splits extracted document text into ordered, bounded
// chunks ready for embedding.
//
// Text whose estimated token count fits the budget is returned as a single
// chunk. Larger text is split with a per-type profile ("smart chunking")
// scaled down for larger files, by one of three splitters:
//
//   - markdown: one chunk per heading section, oversized sections sub-split
//   - code: top-level declarations grouped up to the budget
//   - generic: separator-based windows with configurable overlap
//
// Token counts are estimates produced by a TokenEstimator. HeuristicEstimator
// is the default; TiktokenEstimator gives exact BPE counts for OpenAI models.
package chunking
