package mock

import (
	"context"
	"sync"
	"testing"

	"github.com/poiesic/vectorit/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEmbedder_Deterministic(t *testing.T) {
	m := NewMockEmbedder()

	a, err := m.EmbedText(context.Background(), "hello")
	require.NoError(t, err)
	b, err := m.EmbedText(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, DefaultDimensions)

	var sum float64
	for _, v := range a {
		sum += float64(v * v)
	}
	assert.InDelta(t, 1.0, sum, 1e-4)
}

func TestMockEmbedder_Counts(t *testing.T) {
	m := NewMockEmbedder()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.EmbedText(ctx, "x")
		}()
	}
	wg.Wait()

	_, err := m.EmbedTexts(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)

	assert.Equal(t, 10, m.TextCalls())
	assert.Equal(t, 11, m.CallCount())
	assert.Equal(t, []int{3}, m.BatchSizes())

	m.Reset()
	assert.Zero(t, m.CallCount())
}

func TestMockEmbedder_WithoutBatch(t *testing.T) {
	m := NewMockEmbedder()
	e := m.WithoutBatch()

	_, ok := e.(ai.BatchEmbedder)
	assert.False(t, ok)

	_, err := e.EmbedText(context.Background(), "")
	assert.ErrorIs(t, err, ai.ErrEmptyInput)
	assert.Equal(t, 1, m.TextCalls())
}
