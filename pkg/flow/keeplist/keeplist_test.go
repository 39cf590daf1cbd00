package keeplist

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListBasic(t *testing.T) {
	l := New([]string{"Paris", "utilize"})

	assert.True(t, l.Contains("paris"), "case-insensitive")
	assert.True(t, l.Contains("UTILIZE"))
	assert.False(t, l.Contains("use"))
}

func TestListAddRemove(t *testing.T) {
	l := New(nil)

	l.Add("  Leverage ")
	assert.True(t, l.Contains("leverage"))

	l.Remove("LEVERAGE")
	assert.False(t, l.Contains("leverage"))

	l.Add("   ")
	assert.Zero(t, l.Len(), "blank words are ignored")
}

func TestListAll(t *testing.T) {
	l := New([]string{"c", "A", "b", "a"})
	assert.Equal(t, []string{"a", "b", "c"}, l.All())
}

func TestNilListProtectsNothing(t *testing.T) {
	var l *List
	assert.False(t, l.Contains("anything"))
}

func TestListConcurrentUse(t *testing.T) {
	l := New(nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := string(rune('a' + i))
			l.Add(w)
			_ = l.Contains(w)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 8, l.Len())
}
