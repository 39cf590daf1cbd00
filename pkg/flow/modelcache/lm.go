// Package modelcache memoizes model service calls. Refinement re-scores the
// same masked sequences many times (every candidate shares its window with
// the original), so the inference cache sits directly in front of the LM.
package modelcache

import (
	"context"
	"encoding/binary"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/blake3"

	"github.com/cognicore/flow/pkg/flow/model"
)

// LM wraps a model.MaskedLM with an in-process LRU of Infer results.
// Cached logits are shared between callers and must not be modified.
type LM struct {
	model.MaskedLM
	infer *lru.Cache[string, [][]float64]
}

// NewLM wraps lm with an LRU holding up to size inference results. A
// non-positive size returns lm unchanged.
func NewLM(lm model.MaskedLM, size int) (model.MaskedLM, error) {
	if size <= 0 {
		return lm, nil
	}
	c, err := lru.New[string, [][]float64](size)
	if err != nil {
		return nil, err
	}
	return &LM{MaskedLM: lm, infer: c}, nil
}

// Infer implements model.MaskedLM.
func (c *LM) Infer(ctx context.Context, ids []int) ([][]float64, error) {
	key := idsKey(ids)
	if logits, ok := c.infer.Get(key); ok {
		return logits, nil
	}
	logits, err := c.MaskedLM.Infer(ctx, ids)
	if err != nil {
		return nil, err
	}
	c.infer.Add(key, logits)
	return logits, nil
}

// Len returns the number of cached inference results.
func (c *LM) Len() int { return c.infer.Len() }

func idsKey(ids []int) string {
	buf := make([]byte, 0, len(ids)*3)
	for _, id := range ids {
		buf = binary.AppendUvarint(buf, uint64(id))
	}
	sum := blake3.Sum256(buf)
	return hex.EncodeToString(sum[:])
}
