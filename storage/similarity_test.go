package storage

import (
	"testing"

	"github.com/poiesic/vectorit/core"
	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"scaled", []float32{1, 0}, []float32{5, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 1}, []float32{-1, -1}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"empty", nil, []float32{1}, 0},
		{"common prefix", []float32{1, 0, 9}, []float32{1, 0}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-5)
		})
	}
}

func TestRankResults(t *testing.T) {
	results := []*core.SearchResult{
		{Score: 0.2}, {Score: 0.9}, {Score: 0.5}, {Score: 0.7},
	}

	ranked := RankResults(results, 3)
	assert.Len(t, ranked, 3)
	assert.Equal(t, float32(0.9), ranked[0].Score)
	assert.Equal(t, float32(0.7), ranked[1].Score)
	assert.Equal(t, float32(0.5), ranked[2].Score)
}
