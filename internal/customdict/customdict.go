package customdict

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/cognicore/flow/pkg/flow/keeplist"
)

// Redis is the subset of a go-redis client used by CustomDict.
type Redis interface {
	SAdd(ctx context.Context, key string, members ...any) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...any) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
}

// CustomDict stores protected words in a Redis set so that every process
// sharing the server sees the same keep-list.
type CustomDict struct {
	client Redis
	key    string
}

// New creates a new CustomDict with the provided Redis client.
func New(client Redis) *CustomDict {
	return &CustomDict{client: client, key: "flow:keep_words"}
}

// Add inserts a word. Words are stored lowercased.
func (cd *CustomDict) Add(ctx context.Context, word string) error {
	word = normalize(word)
	if word == "" {
		return nil
	}
	return cd.client.SAdd(ctx, cd.key, word).Err()
}

// Remove deletes a word.
func (cd *CustomDict) Remove(ctx context.Context, word string) error {
	return cd.client.SRem(ctx, cd.key, normalize(word)).Err()
}

// All returns all stored words.
func (cd *CustomDict) All(ctx context.Context) ([]string, error) {
	return cd.client.SMembers(ctx, cd.key).Result()
}

// MergeInto adds every stored word to list.
func (cd *CustomDict) MergeInto(ctx context.Context, list *keeplist.List) error {
	words, err := cd.All(ctx)
	if err != nil {
		return err
	}
	for _, w := range words {
		list.Add(w)
	}
	return nil
}

func normalize(word string) string {
	return strings.ToLower(strings.TrimSpace(word))
}
