// Package session keeps per-user continuation tokens and per-conversation
// message history in bounded, expiring caches.
package session

import (
	"time"

	"github.com/m-mizutani/knowbot/pkg/cache"
)

const (
	DefaultContinuationTTL      = 24 * time.Hour
	DefaultContinuationCapacity = 1000
)

// Continuation maps a user id to the backend's multi-turn token.
type Continuation struct {
	cache *cache.Cache[string, string]
}

func NewContinuation(capacity int, ttl time.Duration) *Continuation {
	return &Continuation{
		cache: cache.New[string, string](capacity, ttl),
	}
}

// Get returns the token for userID. An expired or evicted token is simply
// absent.
func (c *Continuation) Get(userID string) (string, bool) {
	return c.cache.Get(userID)
}

// Set overwrites any previous token.
func (c *Continuation) Set(userID, token string) {
	c.cache.Set(userID, token)
}

func (c *Continuation) Clear(userID string) {
	c.cache.Delete(userID)
}
