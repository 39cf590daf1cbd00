package modelcache

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zeebo/blake3"

	"github.com/cognicore/flow/pkg/flow/model"
)

// Redis is the subset of a go-redis client used by Embedder.
type Redis interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Embedder caches sentence embeddings in Redis so that separate processes
// share them. Redis failures fall through to the wrapped embedder.
type Embedder struct {
	next   model.Embedder
	client Redis
	ttl    time.Duration
	prefix string
	log    *slog.Logger
}

// NewEmbedder wraps next. A zero ttl keeps entries until evicted by Redis.
func NewEmbedder(next model.Embedder, client Redis, ttl time.Duration, logger *slog.Logger) *Embedder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Embedder{next: next, client: client, ttl: ttl, prefix: "flow:emb:", log: logger}
}

// Embed implements model.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	key := e.key(text)
	raw, err := e.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		vec, derr := decodeVector(raw)
		if derr == nil {
			return vec, nil
		}
		e.log.WarnContext(ctx, "corrupt cached embedding", "key", key, "error", derr)
	case !errors.Is(err, redis.Nil):
		e.log.WarnContext(ctx, "embedding cache unavailable", "error", err)
	}

	vec, err := e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := e.client.Set(ctx, key, encodeVector(vec), e.ttl).Err(); err != nil {
		e.log.WarnContext(ctx, "embedding cache write failed", "error", err)
	}
	return vec, nil
}

func (e *Embedder) key(text string) string {
	sum := blake3.Sum256([]byte(text))
	return e.prefix + hex.EncodeToString(sum[:])
}

func encodeVector(vec []float64) []byte {
	buf := make([]byte, 8*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return buf
}

func decodeVector(buf []byte) ([]float64, error) {
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("embedding payload of %d bytes", len(buf))
	}
	vec := make([]float64, len(buf)/8)
	for i := range vec {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))
	}
	return vec, nil
}
