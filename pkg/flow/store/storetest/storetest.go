// Package storetest holds behaviour checks shared by every store.Store
// implementation.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/flow/pkg/flow/internalerr"
	"github.com/cognicore/flow/pkg/flow/store"
)

// Run exercises open, which must return an empty store.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Run("RoundTrip", func(t *testing.T) { testRoundTrip(t, open(t)) })
	t.Run("Replace", func(t *testing.T) { testReplace(t, open(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, open(t)) })
	t.Run("ListOrder", func(t *testing.T) { testListOrder(t, open(t)) })
	t.Run("TopReplacements", func(t *testing.T) { testTopReplacements(t, open(t)) })
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleRun(id string, at time.Time, edits ...store.EditRecord) store.Run {
	return store.Run{
		ID:         id,
		CreatedAt:  at,
		Original:   "The utilize of technology is important.",
		Refined:    "The use of technology is important.",
		ConfigJSON: `{"min_pll_gain":2}`,
		Edits:      edits,
	}
}

func edit(orig, repl string) store.EditRecord {
	return store.EditRecord{WordIdx: 1, Original: orig, Replacement: repl, Gain: 3.5, Similarity: 0.98, Reason: "low rank (#66)"}
}

func testRoundTrip(t *testing.T, st store.Store) {
	defer st.Close()
	ctx := context.Background()

	in := sampleRun("run-1", base, edit("utilize", "use"), store.EditRecord{Sentence: 1, WordIdx: 4, Original: "leverage", Replacement: "use", Gain: 2, Similarity: 1})
	require.NoError(t, st.SaveRun(ctx, in))

	got, err := st.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, in.Original, got.Original)
	assert.Equal(t, in.Refined, got.Refined)
	assert.Equal(t, in.ConfigJSON, got.ConfigJSON)
	assert.True(t, got.CreatedAt.Equal(base), "CreatedAt = %v, want %v", got.CreatedAt, base)
	assert.Equal(t, in.Edits, got.Edits)

	assert.ErrorIs(t, st.SaveRun(ctx, store.Run{}), internalerr.ErrInvalidInput, "empty id")
}

func testReplace(t *testing.T, st store.Store) {
	defer st.Close()
	ctx := context.Background()

	require.NoError(t, st.SaveRun(ctx, sampleRun("r", base, edit("utilize", "use"), edit("leverage", "use"))))
	updated := sampleRun("r", base, edit("utilize", "employ"))
	updated.Refined = "The employ of technology is important."
	require.NoError(t, st.SaveRun(ctx, updated))

	got, err := st.GetRun(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, updated.Refined, got.Refined)
	require.Len(t, got.Edits, 1, "edits are replaced")
	assert.Equal(t, "employ", got.Edits[0].Replacement)
}

func testNotFound(t *testing.T, st store.Store) {
	defer st.Close()
	_, err := st.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, internalerr.ErrNotFound)
}

func testListOrder(t *testing.T, st store.Store) {
	defer st.Close()
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, st.SaveRun(ctx, sampleRun(id, base.Add(time.Duration(i)*time.Minute))))
	}
	runs, err := st.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)

	all, err := st.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3, "default limit")
}

func testTopReplacements(t *testing.T, st store.Store) {
	defer st.Close()
	ctx := context.Background()

	runs := []store.Run{
		sampleRun("1", base, edit("utilize", "use"), edit("leverage", "use")),
		sampleRun("2", base, edit("utilize", "use")),
		sampleRun("3", base, edit("utilize", "use"), edit("commence", "start")),
	}
	for _, r := range runs {
		require.NoError(t, st.SaveRun(ctx, r))
	}

	top, err := st.TopReplacements(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []store.Replacement{
		{Original: "utilize", Replacement: "use", Count: 3},
		{Original: "commence", Replacement: "start", Count: 1},
	}, top)
}
