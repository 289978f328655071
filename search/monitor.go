package search

import (
	"github.com/poiesic/vectorit/core"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query string)
	AfterQueryEmbedding(dimensions int)
	AfterSemanticSearch(ids []uint64)
	SemanticHit(chunk *core.EmbeddedChunk, similarity float32)
	VerbatimHit(chunk *core.EmbeddedChunk, similarity float32)
	Finish(results []*core.SearchResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                               {}
func (n *noopMonitor) AfterQueryEmbedding(_ int)                    {}
func (n *noopMonitor) AfterSemanticSearch(_ []uint64)               {}
func (n *noopMonitor) SemanticHit(_ *core.EmbeddedChunk, _ float32) {}
func (n *noopMonitor) VerbatimHit(_ *core.EmbeddedChunk, _ float32) {}
func (n *noopMonitor) Finish(_ []*core.SearchResult)                {}
