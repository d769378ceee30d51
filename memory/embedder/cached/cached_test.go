package cached_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/memkit/memory/embedder/cached"
	"github.com/becomeliminal/memkit/memory/embedder/mock"
)

// countingEmbedder counts how often the inner embedder is actually hit.
type countingEmbedder struct {
	inner       *mock.Embedder
	embeds      int
	batchEmbeds int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.embeds++
	return c.inner.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batchEmbeds += len(texts)
	return c.inner.EmbedBatch(ctx, texts)
}

func (c *countingEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

func TestCachedEmbed(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{inner: mock.New()}
	e, err := cached.New(inner, 100)
	require.NoError(t, err)
	defer e.Close()

	first, err := e.Embed(ctx, "user lives in Mumbai")
	require.NoError(t, err)
	e.Wait()

	second, err := e.Embed(ctx, "user lives in Mumbai")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.embeds, "second call should be served from cache")
	assert.Equal(t, mock.DefaultDimensions, e.Dimensions())
}

func TestCachedEmbedBatchOnlyMisses(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{inner: mock.New()}
	e, err := cached.New(inner, 100)
	require.NoError(t, err)
	defer e.Close()

	warm, err := e.Embed(ctx, "warm")
	require.NoError(t, err)
	e.Wait()

	vecs, err := e.EmbedBatch(ctx, []string{"warm", "cold"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)

	assert.Equal(t, warm, vecs[0])
	assert.Equal(t, 1, inner.batchEmbeds, "only the miss should reach the inner embedder")

	direct, err := inner.inner.Embed(ctx, "cold")
	require.NoError(t, err)
	assert.Equal(t, direct, vecs[1])
}

func TestCachedEmbedBatchAllHits(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{inner: mock.New()}
	e, err := cached.New(inner, 100)
	require.NoError(t, err)
	defer e.Close()

	_, err = e.EmbedBatch(ctx, []string{"a", "b"})
	require.NoError(t, err)
	e.Wait()
	before := inner.batchEmbeds

	_, err = e.EmbedBatch(ctx, []string{"a", "b"})
	require.NoError(t, err)

	assert.Equal(t, before, inner.batchEmbeds, "fully warm batch must not call the inner embedder")
}
