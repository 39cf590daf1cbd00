package modelcache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/flow/pkg/flow/model/modeltest"
)

func TestLM_CachesInference(t *testing.T) {
	inner := modeltest.NewLM("a", "b")
	wrapped, err := NewLM(inner, 8)
	require.NoError(t, err)
	ctx := context.Background()

	ids := []int{modeltest.BOS, inner.ID("a"), modeltest.Mask, modeltest.EOS}
	first, err := wrapped.Infer(ctx, ids)
	require.NoError(t, err)
	second, err := wrapped.Infer(ctx, ids)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, inner.Calls(), 1, "second call served from cache")

	_, err = wrapped.Infer(ctx, []int{modeltest.BOS, inner.ID("b"), modeltest.Mask, modeltest.EOS})
	require.NoError(t, err)
	assert.Len(t, inner.Calls(), 2)
	assert.Equal(t, 2, wrapped.(*LM).Len())
	assert.Equal(t, modeltest.Mask, wrapped.MaskID(), "other methods pass through")
}

func TestLM_ErrorsAreNotCached(t *testing.T) {
	inner := modeltest.NewLM("a")
	wrapped, err := NewLM(inner, 8)
	require.NoError(t, err)
	ids := []int{modeltest.BOS, modeltest.Mask, modeltest.EOS}

	inner.InferErr = errors.New("down")
	_, err = wrapped.Infer(context.Background(), ids)
	require.Error(t, err)

	inner.InferErr = nil
	_, err = wrapped.Infer(context.Background(), ids)
	require.NoError(t, err)
	assert.Len(t, inner.Calls(), 2)
}

func TestNewLM_Disabled(t *testing.T) {
	inner := modeltest.NewLM()
	wrapped, err := NewLM(inner, 0)
	require.NoError(t, err)
	assert.Same(t, inner, wrapped)
}

func TestIDsKey(t *testing.T) {
	assert.Equal(t, idsKey([]int{1, 2, 3}), idsKey([]int{1, 2, 3}))
	assert.NotEqual(t, idsKey([]int{1, 23}), idsKey([]int{12, 3}))
}

type fakeRedis struct {
	mu     sync.Mutex
	data   map[string]string
	ttl    map[string]time.Duration
	getErr error
	sets   int
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	f.data[key] = string(value.([]byte))
	f.ttl[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func TestEmbedder_ReadThrough(t *testing.T) {
	inner := modeltest.NewBagOfWords()
	rdb := newFakeRedis()
	e := NewEmbedder(inner, rdb, time.Hour, nil)
	ctx := context.Background()

	first, err := e.Embed(ctx, "the use of technology")
	require.NoError(t, err)
	second, err := e.Embed(ctx, "the use of technology")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.Calls())
	assert.Equal(t, 1, rdb.sets)
	for _, ttl := range rdb.ttl {
		assert.Equal(t, time.Hour, ttl)
	}
}

func TestEmbedder_RedisDownFallsThrough(t *testing.T) {
	inner := modeltest.NewBagOfWords()
	rdb := newFakeRedis()
	rdb.getErr = errors.New("connection refused")
	e := NewEmbedder(inner, rdb, 0, nil)

	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, vec)
	assert.Equal(t, 1, inner.Calls())
}

func TestEmbedder_CorruptEntryRecomputed(t *testing.T) {
	inner := modeltest.NewBagOfWords()
	rdb := newFakeRedis()
	e := NewEmbedder(inner, rdb, 0, nil)
	rdb.data[e.key("hello")] = "abc"

	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, vec)
	assert.Equal(t, 1, inner.Calls())
}

func TestVectorCodec(t *testing.T) {
	vec := []float64{0, 1.5, -2.25, 1e-300}
	got, err := decodeVector(encodeVector(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
