package keeplist

import (
	"sort"
	"strings"
	"sync"
)

// List holds protected words: words the refiner must never replace.
// Matching is case-insensitive.
type List struct {
	mu    sync.RWMutex
	words map[string]struct{}
}

// New creates a keep-list seeded with words.
func New(words []string) *List {
	l := &List{words: make(map[string]struct{}, len(words))}
	for _, w := range words {
		l.Add(w)
	}
	return l
}

// Contains reports whether word is protected. A nil list protects nothing.
func (l *List) Contains(word string) bool {
	if l == nil {
		return false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.words[normalize(word)]
	return ok
}

// Add protects word. Blank words are ignored.
func (l *List) Add(word string) {
	key := normalize(word)
	if key == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.words[key] = struct{}{}
}

// Remove unprotects word.
func (l *List) Remove(word string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.words, normalize(word))
}

// All returns the protected words, sorted.
func (l *List) All() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.words))
	for w := range l.words {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of protected words.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.words)
}

func normalize(word string) string {
	return strings.ToLower(strings.TrimSpace(word))
}
